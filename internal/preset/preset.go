package preset

import "fmt"

const (
	// MaxVolume is the largest volume a track can hold (7-bit MIDI data byte)
	MaxVolume = 127

	// MaxTrackNumber is the exclusive upper bound for track numbers
	MaxTrackNumber = 127

	// DefaultVolume is the volume given to newly added tracks
	DefaultVolume = 50

	// DefaultName is used when a preset file carries no name
	DefaultName = "New Preset"
)

// Track holds the mixer state of a single track.
// JSON field names match the preset file format.
type Track struct {
	Name    string `json:"Name"`
	Number  int    `json:"Number"`
	Volume  int    `json:"Volume"`
	IsMuted bool   `json:"IsMuted"`
}

// NewTrack creates an unmuted track at the default volume
func NewTrack(name string, number int) Track {
	return Track{
		Name:   name,
		Number: number,
		Volume: DefaultVolume,
	}
}

func (t Track) String() string {
	return fmt.Sprintf("%s (#%d vol=%d muted=%t)", t.Name, t.Number, t.Volume, t.IsMuted)
}

// ClampVolume limits v to [0, MaxVolume]
func ClampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxVolume {
		return MaxVolume
	}
	return v
}

// Preset is a named, ordered set of tracks
type Preset struct {
	Name   string  `json:"Name"`
	Tracks []Track `json:"Tracks"`
}

// New creates an empty preset
func New(name string) *Preset {
	if name == "" {
		name = DefaultName
	}
	return &Preset{Name: name, Tracks: []Track{}}
}

// Clone returns a deep copy so callers can hand out snapshots
func (p *Preset) Clone() *Preset {
	if p == nil {
		return nil
	}
	c := &Preset{Name: p.Name, Tracks: make([]Track, len(p.Tracks))}
	copy(c.Tracks, p.Tracks)
	return c
}
