package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/PixPMusic/cubase-control/internal/midi"
	"github.com/PixPMusic/cubase-control/internal/preset"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment variable overrides, e.g. CUBASECONTROL_LOG_LEVEL
const EnvPrefix = "CUBASECONTROL"

// PortsConfig holds the product-name patterns used to find the MIDI ports
type PortsConfig struct {
	Output string `mapstructure:"output" yaml:"output"` // sends to the DAW
	Input  string `mapstructure:"input" yaml:"input"`   // feedback from the DAW
}

// PresetsConfig locates preset files and the recent index
type PresetsConfig struct {
	Index       string `mapstructure:"index" yaml:"index"`
	Dir         string `mapstructure:"dir" yaml:"dir"`
	RecentLimit int    `mapstructure:"recent_limit" yaml:"recent_limit"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn" yaml:"dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// Config holds application configuration
type Config struct {
	Ports   PortsConfig   `mapstructure:"ports" yaml:"ports"`
	Presets PresetsConfig `mapstructure:"presets" yaml:"presets"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Sentry  SentryConfig  `mapstructure:"sentry" yaml:"sentry"`

	// path the config was read from
	path string
}

// configDir returns the platform-appropriate config directory
func configDir() (string, error) {
	configHome, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configHome, "cubase-control"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// defaultIndexPath keeps the recent index next to the executable
func defaultIndexPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "settings.json"
	}
	return filepath.Join(filepath.Dir(exe), "settings.json")
}

// defaultPresetDir is the user's documents folder
func defaultPresetDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Documents")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ports.output", midi.DefaultOutputPattern)
	v.SetDefault("ports.input", midi.DefaultInputPattern)
	v.SetDefault("presets.index", defaultIndexPath())
	v.SetDefault("presets.dir", defaultPresetDir())
	v.SetDefault("presets.recent_limit", preset.DefaultRecentLimit)
	v.SetDefault("log.level", "info")
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
}

// Flags declares the command-line overrides understood by Load
func Flags(flags *pflag.FlagSet) {
	flags.String("config", "", "config file (default is <user config dir>/cubase-control/config.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("output-port", "", "output port name pattern")
	flags.String("input-port", "", "feedback port name pattern")
}

var flagKeys = map[string]string{
	"log-level":   "log.level",
	"output-port": "ports.output",
	"input-port":  "ports.input",
}

// Load reads the config file, writing one with defaults when none exists.
// Environment variables and flags (when given) override file values.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := ""
	if flags != nil {
		if f := flags.Lookup("config"); f != nil {
			path = f.Value.String()
		}
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}
	if path == "" {
		var err error
		if path, err = ConfigPath(); err != nil {
			return nil, err
		}
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		if err := v.SafeWriteConfigAs(path); err != nil {
			return nil, fmt.Errorf("write default config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Presets.RecentLimit <= 0 {
		cfg.Presets.RecentLimit = preset.DefaultRecentLimit
	}
	cfg.path = path
	return &cfg, nil
}

// Path returns the file the config was loaded from
func (c *Config) Path() string {
	return c.path
}

// YAML renders the effective configuration
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
