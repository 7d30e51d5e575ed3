package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/PixPMusic/cubase-control/internal/midi"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Flags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_WritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(testFlags(t, "--config", path))
	require.NoError(t, err)

	assert.Equal(t, midi.DefaultOutputPattern, cfg.Ports.Output)
	assert.Equal(t, midi.DefaultInputPattern, cfg.Ports.Input)
	assert.Equal(t, 10, cfg.Presets.RecentLimit)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "settings.json", filepath.Base(cfg.Presets.Index))
	assert.Equal(t, path, cfg.Path())
	assert.FileExists(t, path)
}

func TestLoad_FileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ports:
  output: MyOut
  input: MyFeedback
presets:
  recent_limit: 3
log:
  level: debug
`), 0644))

	cfg, err := Load(testFlags(t, "--config", path))
	require.NoError(t, err)
	assert.Equal(t, "MyOut", cfg.Ports.Output)
	assert.Equal(t, "MyFeedback", cfg.Ports.Input)
	assert.Equal(t, 3, cfg.Presets.RecentLimit)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0644))
	t.Setenv("CUBASECONTROL_PORTS_INPUT", "EnvFeedback")

	cfg, err := Load(testFlags(t, "--config", path, "--log-level", "error"))
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level, "flag wins over file")
	assert.Equal(t, "EnvFeedback", cfg.Ports.Input, "env wins over default")
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ports: [unclosed"), 0644))

	_, err := Load(testFlags(t, "--config", path))
	assert.Error(t, err)
}

func TestConfig_YAML(t *testing.T) {
	cfg := &Config{Ports: PortsConfig{Output: "o", Input: "i"}, Presets: PresetsConfig{RecentLimit: 10}}

	data, err := cfg.YAML()
	require.NoError(t, err)

	var decoded Config
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, cfg.Ports, decoded.Ports)
	assert.Contains(t, string(data), "recent_limit: 10")
}
