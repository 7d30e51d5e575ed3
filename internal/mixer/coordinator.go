package mixer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/PixPMusic/cubase-control/internal/midi"
	"github.com/PixPMusic/cubase-control/internal/preset"
	"github.com/charmbracelet/log"
	gomidi "gitlab.com/gomidi/midi/v2"
)

// ErrSend wraps failures reported by the port while pushing state
var ErrSend = errors.New("send to device failed")

// Port is the device connection the Coordinator talks through
type Port interface {
	Send(msg gomidi.Message) error
	OnMessage(fn func(gomidi.Message))
}

// Listener receives track state introduced by device feedback.
// Calls are serialized and made without the coordinator lock held, so a
// listener may call the outbound methods of the Coordinator. It must not
// call HandleMessage, nor wait on another goroutine that does.
type Listener interface {
	TrackChanged(t preset.Track)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(t preset.Track)

func (f ListenerFunc) TrackChanged(t preset.Track) { f(t) }

// PresetSource provides the preset to start with
type PresetSource interface {
	OpenMostRecent() (*preset.Preset, string, error)
	CreateNew() (*preset.Preset, string, error)
}

// Coordinator owns the active preset and keeps it in step with the device.
//
// Inbound messages only update the registry and notify the listener; they
// never cause a send. Sends only originate from SetVolume, SetMute and
// ApplyPreset. No message received can therefore provoke another one.
type Coordinator struct {
	mu       sync.Mutex
	notifyMu sync.Mutex

	name     string
	registry *Registry
	port     Port
	listener Listener
	logger   *log.Logger
}

// NewCoordinator creates a coordinator with an empty preset. listener may be nil.
func NewCoordinator(listener Listener, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	registry, _ := NewRegistry(nil, logger)
	return &Coordinator{
		name:     preset.DefaultName,
		registry: registry,
		listener: listener,
		logger:   logger,
	}
}

// Attach routes outbound messages to p and registers the inbound handler on it.
// A nil port disables sending.
func (c *Coordinator) Attach(p Port) {
	c.mu.Lock()
	c.port = p
	c.mu.Unlock()

	if p != nil {
		p.OnMessage(c.HandleMessage)
	}
}

// Start attaches the port, loads the most recent preset (or creates a new
// one) and pushes it to the device. The returned error may accompany a valid
// preset when only the push failed.
func (c *Coordinator) Start(p Port, src PresetSource) (*preset.Preset, string, error) {
	c.Attach(p)

	loaded, path, err := src.OpenMostRecent()
	if err != nil {
		c.logger.Info("no recent preset, creating a new one", "reason", err)
		return c.startNew(src)
	}

	err = c.ApplyPreset(loaded)
	if errors.Is(err, ErrDuplicateTrack) || errors.Is(err, ErrInvalidTrack) {
		c.logger.Warn("recent preset rejected, creating a new one", "preset", loaded.Name, "err", err)
		return c.startNew(src)
	}
	c.logger.Info("preset loaded", "preset", loaded.Name, "path", path, "tracks", len(loaded.Tracks))
	return c.Snapshot(), path, err
}

func (c *Coordinator) startNew(src PresetSource) (*preset.Preset, string, error) {
	created, path, err := src.CreateNew()
	if err != nil {
		return nil, "", err
	}
	err = c.ApplyPreset(created)
	return c.Snapshot(), path, err
}

// HandleMessage processes one message from the device
func (c *Coordinator) HandleMessage(msg gomidi.Message) {
	ev, ok := midi.Decode(msg)
	if !ok {
		return
	}

	// notifyMu is always taken before mu, and outbound paths never take it,
	// so notifications keep message order without a lock cycle
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	var (
		t     preset.Track
		known bool
	)
	switch ev.Kind {
	case midi.MuteEvent:
		t, known = c.registry.ApplyMute(ev.Track, ev.Muted)
	case midi.VolumeEvent:
		t, known = c.registry.ApplyVolume(ev.Track, ev.Volume)
	}
	listener := c.listener
	c.mu.Unlock()

	if !known {
		return
	}
	c.logger.Debug("feedback", "track", t.Number, "volume", t.Volume, "muted", t.IsMuted)
	if listener != nil {
		listener.TrackChanged(t)
	}
}

// SetVolume applies a user volume edit and sends it. Unknown tracks are ignored.
func (c *Coordinator) SetVolume(number, volume int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.registry.ApplyVolume(number, volume)
	if !ok {
		return nil
	}
	return c.sendLocked(t, midi.VolumeChange)
}

// SetMute applies a user mute toggle and sends it. Unknown tracks are ignored.
func (c *Coordinator) SetMute(number int, muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.registry.ApplyMute(number, muted)
	if !ok {
		return nil
	}
	return c.sendLocked(t, midi.MuteChange)
}

// AddTrack appends a track to the active preset
func (c *Coordinator) AddTrack(t preset.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Add(t)
}

// ApplyPreset replaces the active preset and pushes every track to the
// device in order. A preset with duplicate tracks is rejected and leaves the
// active preset untouched. A send failure stops the push; tracks already sent
// stay sent.
func (c *Coordinator) ApplyPreset(p *preset.Preset) error {
	registry, err := NewRegistry(p.Tracks, c.logger)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.registry = registry
	c.name = p.Name

	for _, t := range registry.Tracks() {
		err := c.sendLocked(t, midi.MuteChange)
		if errors.Is(err, midi.ErrControlRange) {
			c.logger.Warn("track has no control number, not sent", "track", t.Number, "name", t.Name)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns a copy of the active preset
func (c *Coordinator) Snapshot() *preset.Preset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &preset.Preset{Name: c.name, Tracks: c.registry.Tracks()}
}

// Lookup returns the current state of a track
func (c *Coordinator) Lookup(number int) (preset.Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Lookup(number)
}

// Suggest proposes a name and number for a new track
func (c *Coordinator) Suggest() (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Suggest()
}

func (c *Coordinator) sendLocked(t preset.Track, change midi.Change) error {
	msgs, err := midi.Encode(t, change)
	if err != nil {
		return err
	}
	if c.port == nil {
		return nil
	}
	for _, m := range msgs {
		if err := c.port.Send(m.Message()); err != nil {
			return fmt.Errorf("%w: track %d %s: %w", ErrSend, t.Number, m, err)
		}
		c.logger.Debug("sent", "track", t.Number, "cc", m)
	}
	return nil
}
