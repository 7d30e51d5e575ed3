package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/PixPMusic/cubase-control/internal/config"
	"github.com/PixPMusic/cubase-control/internal/logging"
	"github.com/PixPMusic/cubase-control/internal/metrics"
	"github.com/PixPMusic/cubase-control/internal/midi"
	"github.com/PixPMusic/cubase-control/internal/mixer"
	"github.com/PixPMusic/cubase-control/internal/preset"
	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/charmbracelet/log"
)

// ErrRecentMissing is returned alongside a freshly created preset when a
// recent entry could not be opened
var ErrRecentMissing = errors.New("recent preset unavailable")

// Deps are the collaborators a Bridge is built from. Zero values are
// replaced with defaults derived from the config.
type Deps struct {
	Transport midi.Transport
	Store     *preset.Store
	Reporter  *metrics.Reporter
	Logger    *log.Logger
}

// Bridge ties the MIDI session, the coordinator and the preset store
// together. It is what the GUI, the tray and the terminal monitor drive.
type Bridge struct {
	mu sync.Mutex // guards path, session, dirty and file writes

	cfg       *config.Config
	transport midi.Transport
	store     *preset.Store
	coord     *mixer.Coordinator
	session   *midi.Session
	path      string
	dirty     bool // volume adjusted since the last save
	reporter  *metrics.Reporter
	logger    *log.Logger

	listenersMu sync.RWMutex
	listeners   []subscription
	nextID      int
}

type subscription struct {
	id int
	l  mixer.Listener
}

// New builds a Bridge. Nothing is opened until Start.
func New(cfg *config.Config, deps Deps) *Bridge {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	store := deps.Store
	if store == nil {
		store = preset.NewStore(cfg.Presets.Index, cfg.Presets.Dir,
			preset.WithLimit(cfg.Presets.RecentLimit),
			preset.WithLogger(logging.For(logger, "preset")),
		)
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter, _ = metrics.NewReporter("", "", "", logger)
	}

	b := &Bridge{
		cfg:       cfg,
		transport: deps.Transport,
		store:     store,
		reporter:  reporter,
		logger:    logger,
	}
	b.coord = mixer.NewCoordinator(b, logging.For(logger, "mixer"))
	return b
}

// Subscribe registers l for track changes arriving from the DAW. The
// returned func removes it again and may be called more than once.
func (b *Bridge) Subscribe(l mixer.Listener) (unsubscribe func()) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, subscription{id: id, l: l})

	return func() {
		b.listenersMu.Lock()
		defer b.listenersMu.Unlock()
		for i, s := range b.listeners {
			if s.id == id {
				b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

// TrackChanged fans feedback out to every subscriber
func (b *Bridge) TrackChanged(t preset.Track) {
	b.listenersMu.RLock()
	listeners := make([]subscription, len(b.listeners))
	copy(listeners, b.listeners)
	b.listenersMu.RUnlock()

	for _, s := range listeners {
		s.l.TrackChanged(t)
	}
}

// Start opens the MIDI ports and activates the most recent preset, creating
// one when none loads. A non-nil preset returned with an error means the
// bridge is running degraded, e.g. without feedback.
func (b *Bridge) Start() (*preset.Preset, error) {
	var errs []error

	b.mu.Lock()
	port, err := b.openLocked()
	b.mu.Unlock()
	if err != nil {
		errs = append(errs, err)
	}

	b.reporter.Breadcrumb("lifecycle", "start")
	start := time.Now()
	p, path, err := b.coord.Start(port, b.store)
	if p == nil {
		return nil, errors.Join(append(errs, b.fail("start", err))...)
	}
	b.recordPush(p, time.Since(start), err)
	if err != nil {
		errs = append(errs, b.fail("push preset", err))
	}

	b.mu.Lock()
	b.path = path
	b.mu.Unlock()

	b.logger.Info("bridge started", "preset", p.Name, "path", path)
	return p, errors.Join(errs...)
}

// Connect opens the MIDI ports and routes them through the coordinator
// without loading a preset. ErrPortNotFound leaves output usable.
func (b *Bridge) Connect() error {
	b.mu.Lock()
	port, err := b.openLocked()
	b.mu.Unlock()

	b.coord.Attach(port)
	return err
}

// openLocked opens the session once. Errors are reported here so callers
// only need to decide whether they are fatal.
func (b *Bridge) openLocked() (mixer.Port, error) {
	if b.session != nil {
		return b.session, nil
	}
	if b.transport == nil {
		b.logger.Warn("no MIDI transport, running offline")
		return nil, nil
	}
	s, err := midi.Open(b.transport, b.cfg.Ports.Output, b.cfg.Ports.Input, logging.For(b.logger, "midi"))
	b.session = s
	if err != nil {
		b.logger.Warn("feedback unavailable", "err", err)
	}
	return s, b.fail("open ports", err)
}

// Preset returns a snapshot of the active preset
func (b *Bridge) Preset() *preset.Preset {
	return b.coord.Snapshot()
}

// Path returns the file the active preset is saved to
func (b *Bridge) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path
}

// Connected reports which ports are open
func (b *Bridge) Connected() (output, feedback bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return false, false
	}
	return b.session.HasOutput(), b.session.HasFeedback()
}

// NewPreset creates an empty preset in the recent folder and activates it
func (b *Bridge) NewPreset() (*preset.Preset, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, path, err := b.store.CreateNew()
	if err != nil {
		return nil, b.fail("new preset", err)
	}
	return b.activateLocked(p, path)
}

// LoadPreset reads the preset at path, pushes it to the DAW and records it as
// most recent. A rejected preset leaves the active one in place.
func (b *Bridge) LoadPreset(path string) (*preset.Preset, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, err := b.store.Load(path)
	if err != nil {
		return nil, b.fail("load preset", err)
	}
	return b.activateLocked(p, path)
}

// activateLocked applies p and records it. A push failure still leaves p
// active and recorded.
func (b *Bridge) activateLocked(p *preset.Preset, path string) (*preset.Preset, error) {
	if b.dirty {
		b.autoSaveLocked()
	}

	start := time.Now()
	pushErr := b.coord.ApplyPreset(p)
	if errors.Is(pushErr, mixer.ErrDuplicateTrack) || errors.Is(pushErr, mixer.ErrInvalidTrack) {
		return nil, b.fail("apply preset", pushErr)
	}
	b.recordPush(p, time.Since(start), pushErr)

	b.path = path
	b.reporter.Breadcrumb("preset", "activated "+p.Name)
	b.logger.Info("preset activated", "preset", p.Name, "path", path, "tracks", len(p.Tracks))

	var errs []error
	if pushErr != nil {
		errs = append(errs, pushErr)
	}
	if err := b.store.RecordUse(p, path); err != nil {
		errs = append(errs, err)
	}
	return b.coord.Snapshot(), b.fail("activate preset", errors.Join(errs...))
}

// SaveAs writes the active preset to path, makes path the auto-save target and
// records it as most recent. The preset extension is added when missing.
func (b *Bridge) SaveAs(path string) error {
	if !strings.EqualFold(filepath.Ext(path), preset.Extension) {
		path += preset.Extension
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.coord.Snapshot()
	if err := b.store.Save(p, path); err != nil {
		return b.fail("save preset", err)
	}
	b.path = path
	b.dirty = false
	if err := b.store.RecordUse(p, path); err != nil {
		return b.fail("save preset", err)
	}
	b.logger.Info("preset saved", "preset", p.Name, "path", path)
	return nil
}

// OpenRecent activates the recent preset called name. Selecting the active
// preset does nothing. When the file cannot be opened a new preset is created
// and returned together with ErrRecentMissing.
func (b *Bridge) OpenRecent(name string) (*preset.Preset, error) {
	current := b.coord.Snapshot()
	if current.Name == name {
		return current, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var cause error
	idx, err := b.store.Index()
	if err != nil {
		cause = err
	} else if path, ok := idx.Path(name); !ok {
		cause = fmt.Errorf("%q is not in the recent list", name)
	} else if p, err := b.store.Load(path); err != nil {
		cause = err
	} else {
		return b.activateLocked(p, path)
	}

	b.logger.Warn("recent preset unavailable, creating a new one", "preset", name, "err", cause)
	p, path, err := b.store.CreateNew()
	if err != nil {
		return nil, b.fail("new preset", err)
	}
	active, err := b.activateLocked(p, path)
	notice := fault.Wrap(fmt.Errorf("%w: %s: %w", ErrRecentMissing, name, cause),
		fmsg.WithDesc("open recent", fmt.Sprintf("The preset %q could not be opened. A new preset was created.", name)),
		ftag.With(ftag.NotFound),
	)
	return active, errors.Join(notice, err)
}

// Recent lists the recent presets, most recent last
func (b *Bridge) Recent() ([]preset.Recent, error) {
	return b.store.ListRecent()
}

// Folder is where file dialogs should start
func (b *Bridge) Folder() string {
	return b.store.Folder()
}

// Suggest proposes a name and number for the next track
func (b *Bridge) Suggest() (string, int) {
	return b.coord.Suggest()
}

// AddTrack appends a new track at the default volume and saves the preset
func (b *Bridge) AddTrack(name string, number int) error {
	if err := b.coord.AddTrack(preset.NewTrack(strings.TrimSpace(name), number)); err != nil {
		return err
	}
	b.autoSave()
	return nil
}

// SetVolume changes a track's volume, sends it and saves the preset
func (b *Bridge) SetVolume(number, volume int) error {
	err := b.coord.SetVolume(number, volume)
	b.autoSave()
	return b.fail("set volume", err)
}

// AdjustVolume sends an intermediate volume, e.g. while a fader is dragged.
// The preset is saved by the next Save, preset switch or Close.
func (b *Bridge) AdjustVolume(number, volume int) error {
	err := b.coord.SetVolume(number, volume)

	b.mu.Lock()
	b.dirty = true
	b.mu.Unlock()
	return b.fail("set volume", err)
}

// Save writes the active preset to its current path
func (b *Bridge) Save() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fail("save preset", b.saveLocked())
}

// SetMute changes a track's mute state, sends it and saves the preset
func (b *Bridge) SetMute(number int, muted bool) error {
	err := b.coord.SetMute(number, muted)
	b.autoSave()
	return b.fail("set mute", err)
}

// autoSave writes the active preset to its current path. Failures are
// logged and reported only.
func (b *Bridge) autoSave() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.autoSaveLocked()
}

func (b *Bridge) autoSaveLocked() {
	if err := b.saveLocked(); err != nil {
		b.logger.Error("auto-save failed", "path", b.path, "err", err)
		b.reporter.CaptureError(err, map[string]string{"op": "auto-save"})
	}
}

func (b *Bridge) saveLocked() error {
	if b.path == "" {
		return nil
	}
	if err := b.store.Save(b.coord.Snapshot(), b.path); err != nil {
		return err
	}
	b.dirty = false
	return nil
}

// Close saves pending volume changes, releases the MIDI ports and flushes
// pending reports
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.dirty {
		b.autoSaveLocked()
	}
	s := b.session
	b.session = nil
	b.mu.Unlock()

	var err error
	if s != nil {
		err = s.Close()
	}
	b.reporter.Flush(2 * time.Second)
	return err
}

func (b *Bridge) recordPush(p *preset.Preset, d time.Duration, err error) {
	b.reporter.RecordPresetPush(context.Background(), p.Name, len(p.Tracks), d, err == nil)
}

// fail reports unexpected errors. Expected conditions such as a missing port
// are only logged by their callers.
func (b *Bridge) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, midi.ErrPortNotFound) && !errors.Is(err, preset.ErrNoRecent) {
		b.reporter.CaptureError(err, map[string]string{"op": op})
	}
	return err
}
