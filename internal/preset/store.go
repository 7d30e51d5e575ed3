package preset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Extension is the file extension used for preset files
const Extension = ".preset"

var (
	ErrPresetRead  = errors.New("preset read failed")
	ErrPresetWrite = errors.New("preset write failed")
	ErrNoRecent    = errors.New("no recent preset could be opened")
)

// Recent is a preset listed in the recent index together with its file
type Recent struct {
	Name   string
	Path   string
	Preset *Preset
}

// Store reads and writes preset files and maintains the recent index file.
// It is safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	indexPath  string
	defaultDir string
	limit      int
	now        func() time.Time
	logger     *log.Logger
}

// Option configures a Store
type Option func(*Store)

// WithLimit sets the recent index capacity
func WithLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithClock overrides the time source used for new preset names
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a store keeping its recent index at indexPath.
// defaultDir is where new presets go when no recent preset exists.
func NewStore(indexPath, defaultDir string, opts ...Option) *Store {
	s := &Store{
		indexPath:  indexPath,
		defaultDir: defaultDir,
		limit:      DefaultRecentLimit,
		now:        time.Now,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads a preset file
func (s *Store) Load(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		kind := ftag.Internal
		if errors.Is(err, os.ErrNotExist) {
			kind = ftag.NotFound
		}
		return nil, readError(path, err, kind)
	}

	var p Preset
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, readError(path, err, ftag.InvalidArgument)
	}
	if p.Name == "" {
		p.Name = DefaultName
	}
	if p.Tracks == nil {
		p.Tracks = []Track{}
	}
	return &p, nil
}

// Save writes p to path, replacing any existing file
func (s *Store) Save(p *Preset, path string) error {
	if p == nil {
		return writeError(path, errors.New("nil preset"))
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return writeError(path, err)
	}
	if err := writeFile(path, data); err != nil {
		return writeError(path, err)
	}

	s.logger.Debug("preset saved", "name", p.Name, "path", path, "tracks", len(p.Tracks))
	return nil
}

// ListRecent loads every preset in the recent index, most recent last.
// Entries whose files no longer exist are pruned from the index first.
// Presets that exist but fail to parse are skipped.
func (s *Store) ListRecent() ([]Recent, error) {
	s.mu.Lock()
	idx, err := s.loadIndex()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	entries := idx.Entries()
	recents := make([]Recent, 0, len(entries))
	for _, e := range entries {
		p, err := s.Load(e.Path)
		if err != nil {
			s.logger.Warn("skipping unreadable recent preset", "name", e.Name, "path", e.Path, "err", err)
			continue
		}
		recents = append(recents, Recent{Name: e.Name, Path: e.Path, Preset: p})
	}
	return recents, nil
}

// RecordUse moves p to the most-recent position of the index, pointing at path
func (s *Store) RecordUse(p *Preset, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return err
	}
	s.touch(idx, p.Name, path)
	return s.writeIndex(idx)
}

// OpenMostRecent walks the index from newest to oldest and returns the first
// preset that loads. It returns ErrNoRecent when none does.
func (s *Store) OpenMostRecent() (*Preset, string, error) {
	s.mu.Lock()
	idx, err := s.loadIndex()
	s.mu.Unlock()
	if err != nil {
		return nil, "", err
	}

	entries := idx.Entries()
	for i := len(entries) - 1; i >= 0; i-- {
		p, err := s.Load(entries[i].Path)
		if err != nil {
			s.logger.Warn("recent preset failed to load", "name", entries[i].Name, "err", err)
			continue
		}
		return p, entries[i].Path, nil
	}
	return nil, "", ErrNoRecent
}

// CreateNew writes an empty preset with a timestamped name into Folder() and
// records it as most recent
func (s *Store) CreateNew() (*Preset, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return nil, "", err
	}

	dir := s.folder(idx)
	name := "Preset_" + s.now().Format("20060102150405")
	path := filepath.Join(dir, name+Extension)
	if fileExists(path) {
		name = name + "_" + strings.SplitN(uuid.NewString(), "-", 2)[0]
		path = filepath.Join(dir, name+Extension)
	}

	p := New(name)
	if err := s.Save(p, path); err != nil {
		return nil, "", err
	}

	s.touch(idx, p.Name, path)
	if err := s.writeIndex(idx); err != nil {
		return nil, "", err
	}

	s.logger.Info("created preset", "name", p.Name, "path", path)
	return p, path, nil
}

// Folder returns the folder of the most recent preset, or the default folder
func (s *Store) Folder() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return s.defaultDir
	}
	return s.folder(idx)
}

// Index returns the current (pruned) recent index
func (s *Store) Index() (*RecentIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadIndex()
}

func (s *Store) folder(idx *RecentIndex) string {
	if _, path, ok := idx.Newest(); ok {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			return dir
		}
	}
	return s.defaultDir
}

func (s *Store) touch(idx *RecentIndex, name, path string) {
	for _, evicted := range idx.Touch(name, path, s.limit) {
		s.logger.Debug("evicted recent preset", "name", evicted)
	}
}

// loadIndex reads the index file and prunes stale paths, persisting the
// pruned index. A missing file yields an empty index. Callers hold s.mu.
func (s *Store) loadIndex() (*RecentIndex, error) {
	idx := NewRecentIndex()

	data, err := os.ReadFile(s.indexPath)
	if errors.Is(err, os.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return nil, readError(s.indexPath, err, ftag.Internal)
	}

	if err := json.Unmarshal(data, idx); err != nil {
		s.logger.Warn("recent index is malformed, starting empty", "path", s.indexPath, "err", err)
		return NewRecentIndex(), nil
	}
	if idx.Presets == nil {
		idx = NewRecentIndex()
	}

	stale := idx.prune(fileExists)
	if len(stale) > 0 {
		s.logger.Warn("pruned missing presets from recent index", "names", stale)
		if err := s.writeIndex(idx); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (s *Store) writeIndex(idx *RecentIndex) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return writeError(s.indexPath, err)
	}
	if err := writeFile(s.indexPath, data); err != nil {
		return writeError(s.indexPath, err)
	}
	return nil
}

// writeFile writes through a sibling temp file so readers never see a
// truncated preset
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func readError(path string, err error, kind ftag.Kind) error {
	return fault.Wrap(fmt.Errorf("%w: %s: %w", ErrPresetRead, path, err),
		fmsg.WithDesc("read preset", fmt.Sprintf("The preset file %q could not be opened.", filepath.Base(path))),
		ftag.With(kind),
	)
}

func writeError(path string, err error) error {
	return fault.Wrap(fmt.Errorf("%w: %s: %w", ErrPresetWrite, path, err),
		fmsg.WithDesc("write preset", fmt.Sprintf("The preset could not be saved to %q.", filepath.Base(path))),
		ftag.With(ftag.Internal),
	)
}
