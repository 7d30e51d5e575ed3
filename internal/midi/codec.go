package midi

import (
	"errors"
	"fmt"

	"github.com/PixPMusic/cubase-control/internal/preset"
	"gitlab.com/gomidi/midi/v2"
)

const (
	// MuteOffset is added to a track number to address its mute control
	MuteOffset = 50

	// Channel is the MIDI channel used for outgoing Control Change messages
	Channel = 0

	MuteOn  uint8 = 127
	MuteOff uint8 = 0

	// values at or above the threshold mean muted
	muteThreshold = 64
)

// ErrControlRange is returned when a track number has no control number
var ErrControlRange = errors.New("control number out of range")

// ControlMessage is a Control Change on Channel
type ControlMessage struct {
	Control uint8
	Value   uint8
}

// Message returns the 3-byte wire form
func (m ControlMessage) Message() midi.Message {
	return midi.ControlChange(Channel, m.Control, m.Value)
}

func (m ControlMessage) String() string {
	return fmt.Sprintf("CC %d=%d", m.Control, m.Value)
}

// Change selects which part of a track's state is encoded
type Change int

const (
	// VolumeChange sends the track volume only
	VolumeChange Change = iota
	// MuteChange sends the mute state; unmuting is followed by the volume
	MuteChange
)

// EventKind tells a decoded volume event from a mute event
type EventKind int

const (
	VolumeEvent EventKind = iota + 1
	MuteEvent
)

// Event is a decoded feedback message
type Event struct {
	Kind   EventKind
	Track  int
	Volume int  // set for VolumeEvent
	Muted  bool // set for MuteEvent
}

// Encode converts a track state change into the messages the device expects.
//
// A volume change yields one message on control = track number. A mute change
// yields the mute control (number + MuteOffset) with 127 or 0; unmuting also
// resends the volume so both states land in one action.
func Encode(t preset.Track, c Change) ([]ControlMessage, error) {
	if t.Number < 0 || t.Number >= MuteOffset {
		return nil, fmt.Errorf("%w: track %d", ErrControlRange, t.Number)
	}

	volume := ControlMessage{Control: uint8(t.Number), Value: uint8(preset.ClampVolume(t.Volume))}

	switch c {
	case VolumeChange:
		return []ControlMessage{volume}, nil
	case MuteChange:
		mute := ControlMessage{Control: uint8(t.Number + MuteOffset), Value: MuteOff}
		if t.IsMuted {
			mute.Value = MuteOn
			return []ControlMessage{mute}, nil
		}
		return []ControlMessage{mute, volume}, nil
	default:
		return nil, fmt.Errorf("unknown change %d", c)
	}
}

// Decode interprets a message received from the device. Anything that is
// not a Control Change reports ok=false.
func Decode(msg midi.Message) (ev Event, ok bool) {
	if len(msg) != 3 {
		return Event{}, false
	}

	var channel, control, value uint8
	if !msg.GetControlChange(&channel, &control, &value) {
		return Event{}, false
	}

	if control >= MuteOffset {
		return Event{
			Kind:  MuteEvent,
			Track: int(control) - MuteOffset,
			Muted: value >= muteThreshold,
		}, true
	}
	return Event{
		Kind:   VolumeEvent,
		Track:  int(control),
		Volume: int(value),
	}, true
}
