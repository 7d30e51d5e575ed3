package mixer

import (
	"errors"
	"fmt"

	"github.com/PixPMusic/cubase-control/internal/preset"
	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/charmbracelet/log"
)

var (
	ErrDuplicateTrack = errors.New("duplicate track")
	ErrInvalidTrack   = errors.New("invalid track")
)

// Registry holds the tracks of the active preset in insertion order,
// indexed by number and by name. It is not safe for concurrent use; the
// Coordinator serializes access.
type Registry struct {
	tracks   []preset.Track
	byNumber map[int]int
	byName   map[string]int
	logger   *log.Logger
}

// NewRegistry builds a registry from tracks, rejecting duplicate numbers or
// names
func NewRegistry(tracks []preset.Track, logger *log.Logger) (*Registry, error) {
	if logger == nil {
		logger = log.Default()
	}
	r := &Registry{
		tracks:   make([]preset.Track, 0, len(tracks)),
		byNumber: make(map[int]int, len(tracks)),
		byName:   make(map[string]int, len(tracks)),
		logger:   logger,
	}
	for _, t := range tracks {
		if err := r.Add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add appends a track. The registry is unchanged on error.
func (r *Registry) Add(t preset.Track) error {
	if t.Number < 0 || t.Number >= preset.MaxTrackNumber {
		return trackError(ErrInvalidTrack, ftag.InvalidArgument,
			fmt.Sprintf("track number %d out of range", t.Number),
			fmt.Sprintf("Track number must be between 0 and %d.", preset.MaxTrackNumber-1))
	}
	if t.Name == "" {
		return trackError(ErrInvalidTrack, ftag.InvalidArgument,
			"empty track name", "Track name must not be empty.")
	}
	if _, ok := r.byNumber[t.Number]; ok {
		return trackError(ErrDuplicateTrack, ftag.AlreadyExists,
			fmt.Sprintf("track number %d already used", t.Number),
			fmt.Sprintf("A track with number %d already exists.", t.Number))
	}
	if _, ok := r.byName[t.Name]; ok {
		return trackError(ErrDuplicateTrack, ftag.AlreadyExists,
			fmt.Sprintf("track name %q already used", t.Name),
			fmt.Sprintf("A track named %q already exists.", t.Name))
	}

	t.Volume = preset.ClampVolume(t.Volume)
	r.byNumber[t.Number] = len(r.tracks)
	r.byName[t.Name] = len(r.tracks)
	r.tracks = append(r.tracks, t)
	return nil
}

// Lookup returns the track with the given number
func (r *Registry) Lookup(number int) (preset.Track, bool) {
	i, ok := r.byNumber[number]
	if !ok {
		return preset.Track{}, false
	}
	return r.tracks[i], true
}

// LookupName returns the track with the given name
func (r *Registry) LookupName(name string) (preset.Track, bool) {
	i, ok := r.byName[name]
	if !ok {
		return preset.Track{}, false
	}
	return r.tracks[i], true
}

// ApplyVolume sets the clamped volume of a track and returns the new state.
// Unknown numbers are logged and ignored.
func (r *Registry) ApplyVolume(number, volume int) (preset.Track, bool) {
	i, ok := r.byNumber[number]
	if !ok {
		r.logger.Debug("volume for unknown track ignored", "track", number, "volume", volume)
		return preset.Track{}, false
	}
	r.tracks[i].Volume = preset.ClampVolume(volume)
	return r.tracks[i], true
}

// ApplyMute sets the mute state of a track and returns the new state.
// Unknown numbers are logged and ignored.
func (r *Registry) ApplyMute(number int, muted bool) (preset.Track, bool) {
	i, ok := r.byNumber[number]
	if !ok {
		r.logger.Debug("mute for unknown track ignored", "track", number, "muted", muted)
		return preset.Track{}, false
	}
	r.tracks[i].IsMuted = muted
	return r.tracks[i], true
}

// Tracks returns a copy of the tracks in insertion order
func (r *Registry) Tracks() []preset.Track {
	out := make([]preset.Track, len(r.tracks))
	copy(out, r.tracks)
	return out
}

// Len returns the number of tracks
func (r *Registry) Len() int {
	return len(r.tracks)
}

// Suggest proposes a free name ("Mixer N") and a free number for the next track
func (r *Registry) Suggest() (string, int) {
	next := len(r.tracks) + 1

	index := next
	name := fmt.Sprintf("Mixer %d", index)
	for {
		if _, taken := r.byName[name]; !taken {
			break
		}
		index++
		name = fmt.Sprintf("Mixer %d", index)
	}

	number := next
	for {
		if _, taken := r.byNumber[number]; !taken {
			break
		}
		number++
	}
	return name, number
}

func trackError(sentinel error, kind ftag.Kind, internal, external string) error {
	return fault.Wrap(fmt.Errorf("%w: %s", sentinel, internal),
		fmsg.WithDesc("add track", external),
		ftag.With(kind),
	)
}
