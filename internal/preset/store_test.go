package preset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Southclaws/fault/ftag"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	opts = append([]Option{WithLogger(log.New(io.Discard))}, opts...)
	return NewStore(filepath.Join(dir, "settings.json"), filepath.Join(dir, "docs"), opts...), dir
}

func savePreset(t *testing.T, s *Store, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name+Extension)
	require.NoError(t, s.Save(New(name), path))
	require.NoError(t, s.RecordUse(New(name), path))
	return path
}

func indexNames(t *testing.T, s *Store) []string {
	t.Helper()
	idx, err := s.Index()
	require.NoError(t, err)
	var names []string
	for _, e := range idx.Entries() {
		names = append(names, e.Name)
	}
	return names
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	s, dir := newTestStore(t)
	path := filepath.Join(dir, "a.preset")

	p := &Preset{Name: "A", Tracks: []Track{
		{Name: "Kick", Number: 1, Volume: 80, IsMuted: false},
		{Name: "Snare", Number: 2, Volume: 0, IsMuted: true},
	}}
	require.NoError(t, s.Save(p, path))

	loaded, err := s.Load(path)
	require.NoError(t, err)
	assert.Equal(t, p, loaded)
}

func TestStore_FileFormat(t *testing.T) {
	s, dir := newTestStore(t)
	path := filepath.Join(dir, "a.preset")
	require.NoError(t, s.Save(&Preset{Name: "A", Tracks: []Track{{Name: "Kick", Number: 1, Volume: 80}}}, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "A", raw["Name"])
	track := raw["Tracks"].([]any)[0].(map[string]any)
	assert.Equal(t, "Kick", track["Name"])
	assert.EqualValues(t, 1, track["Number"])
	assert.EqualValues(t, 80, track["Volume"])
	assert.Equal(t, false, track["IsMuted"])
}

func TestStore_LoadErrors(t *testing.T) {
	s, dir := newTestStore(t)

	_, err := s.Load(filepath.Join(dir, "missing.preset"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPresetRead))
	assert.Equal(t, ftag.NotFound, ftag.Get(err))

	bad := filepath.Join(dir, "bad.preset")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	_, err = s.Load(bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPresetRead))
	assert.Equal(t, ftag.InvalidArgument, ftag.Get(err))
}

func TestStore_LoadFillsDefaults(t *testing.T) {
	s, dir := newTestStore(t)
	path := filepath.Join(dir, "empty.preset")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	p, err := s.Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultName, p.Name)
	assert.NotNil(t, p.Tracks)
}

func TestStore_RecordUseMovesToMostRecent(t *testing.T) {
	s, dir := newTestStore(t)
	pathA := savePreset(t, s, dir, "A")
	savePreset(t, s, dir, "B")
	savePreset(t, s, dir, "C")

	require.NoError(t, s.RecordUse(New("A"), pathA))
	assert.Equal(t, []string{"B", "C", "A"}, indexNames(t, s))
}

func TestStore_RecordUseSameNameLastWriterWins(t *testing.T) {
	s, dir := newTestStore(t)
	savePreset(t, s, dir, "A")
	other := filepath.Join(dir, "elsewhere", "A.preset")
	require.NoError(t, s.Save(New("A"), other))
	require.NoError(t, s.RecordUse(New("A"), other))

	idx, err := s.Index()
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
	path, ok := idx.Path("A")
	require.True(t, ok)
	assert.Equal(t, other, path)
}

func TestStore_RecentIndexIsBounded(t *testing.T) {
	s, dir := newTestStore(t)
	for i := 0; i < DefaultRecentLimit+1; i++ {
		savePreset(t, s, dir, fmt.Sprintf("P%02d", i))
	}

	names := indexNames(t, s)
	require.Len(t, names, DefaultRecentLimit)
	assert.Equal(t, "P01", names[0], "oldest entry evicted")
	assert.Equal(t, fmt.Sprintf("P%02d", DefaultRecentLimit), names[len(names)-1])
}

func TestStore_PrunesDeletedFiles(t *testing.T) {
	s, dir := newTestStore(t)
	savePreset(t, s, dir, "A")
	pathB := savePreset(t, s, dir, "B")
	savePreset(t, s, dir, "C")

	require.NoError(t, os.Remove(pathB))

	recents, err := s.ListRecent()
	require.NoError(t, err)
	require.Len(t, recents, 2)
	assert.Equal(t, "A", recents[0].Name)
	assert.Equal(t, "C", recents[1].Name)

	// pruned index was persisted
	data, err := os.ReadFile(s.indexPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"B"`)
}

func TestStore_IndexFileFormat(t *testing.T) {
	s, dir := newTestStore(t)
	pathA := savePreset(t, s, dir, "A")
	pathB := savePreset(t, s, dir, "B")

	data, err := os.ReadFile(s.indexPath)
	require.NoError(t, err)

	var raw struct {
		Presets map[string]string `json:"Presets"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, map[string]string{"A": pathA, "B": pathB}, raw.Presets)
}

func TestStore_MissingOrMalformedIndex(t *testing.T) {
	s, _ := newTestStore(t)

	recents, err := s.ListRecent()
	require.NoError(t, err)
	assert.Empty(t, recents)

	for _, content := range []string{"garbage", `{"Presets": null}`, `{}`} {
		require.NoError(t, os.WriteFile(s.indexPath, []byte(content), 0644))
		recents, err = s.ListRecent()
		require.NoError(t, err, content)
		assert.Empty(t, recents, content)
	}
}

func TestStore_OpenMostRecent(t *testing.T) {
	s, dir := newTestStore(t)

	_, _, err := s.OpenMostRecent()
	assert.ErrorIs(t, err, ErrNoRecent)

	savePreset(t, s, dir, "A")
	pathB := savePreset(t, s, dir, "B")
	require.NoError(t, os.WriteFile(pathB, []byte("corrupt"), 0644))

	p, path, err := s.OpenMostRecent()
	require.NoError(t, err)
	assert.Equal(t, "A", p.Name)
	assert.Equal(t, filepath.Join(dir, "A"+Extension), path)
}

func TestStore_CreateNew(t *testing.T) {
	clock := func() time.Time { return time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC) }
	s, dir := newTestStore(t, WithClock(clock))

	p, path, err := s.CreateNew()
	require.NoError(t, err)
	assert.Equal(t, "Preset_20261017093000", p.Name)
	assert.Empty(t, p.Tracks)
	assert.Equal(t, filepath.Join(dir, "docs", "Preset_20261017093000.preset"), path)
	assert.FileExists(t, path)
	assert.Equal(t, []string{p.Name}, indexNames(t, s))

	// same second: a unique suffix keeps the first file intact
	p2, path2, err := s.CreateNew()
	require.NoError(t, err)
	assert.NotEqual(t, path, path2)
	assert.Contains(t, p2.Name, "Preset_20261017093000_")
	assert.Equal(t, []string{p.Name, p2.Name}, indexNames(t, s))
}

func TestStore_CreateNewUsesMostRecentFolder(t *testing.T) {
	s, dir := newTestStore(t)
	sub := filepath.Join(dir, "projects")
	require.NoError(t, os.MkdirAll(sub, 0755))
	savePreset(t, s, sub, "Song")

	assert.Equal(t, sub, s.Folder())

	_, path, err := s.CreateNew()
	require.NoError(t, err)
	assert.Equal(t, sub, filepath.Dir(path))
}
