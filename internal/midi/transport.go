package midi

import (
	"fmt"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register rtmidi driver
)

// Transport enumerates MIDI ports and opens connections to them
type Transport interface {
	InPorts() []string
	OutPorts() []string

	// Listen delivers every message arriving on the named input port to fn
	// until stop is called
	Listen(port string, fn func(midi.Message)) (stop func(), err error)

	// Sender opens the named output port
	Sender(port string) (send func(midi.Message) error, closePort func() error, err error)
}

// Manager is the Transport backed by the registered gomidi driver
type Manager struct {
	mu sync.RWMutex
}

// NewManager creates a new MIDI manager
func NewManager() *Manager {
	return &Manager{}
}

// Close cleans up the MIDI driver
func (m *Manager) Close() {
	midi.CloseDriver()
}

// InPorts returns the names of available MIDI input ports
func (m *Manager) InPorts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ins := midi.GetInPorts()
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	return names
}

// OutPorts returns the names of available MIDI output ports
func (m *Manager) OutPorts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	outs := midi.GetOutPorts()
	names := make([]string, 0, len(outs))
	for _, out := range outs {
		names = append(names, out.String())
	}
	return names
}

// Listen begins listening for MIDI input on the named port
func (m *Manager) Listen(port string, fn func(midi.Message)) (func(), error) {
	m.mu.RLock()
	in := m.findInPort(port)
	m.mu.RUnlock()
	if in == nil {
		return nil, fmt.Errorf("%w: input %s", ErrPortNotFound, port)
	}

	stop, err := midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
		fn(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start listening: %w", err)
	}

	return func() {
		stop()
		_ = in.Close()
	}, nil
}

// Sender opens the named output port for sending
func (m *Manager) Sender(port string) (func(midi.Message) error, func() error, error) {
	m.mu.RLock()
	out := m.findOutPort(port)
	m.mu.RUnlock()
	if out == nil {
		return nil, nil, fmt.Errorf("%w: output %s", ErrPortNotFound, port)
	}

	send, err := midi.SendTo(out)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create sender: %w", err)
	}
	return send, out.Close, nil
}

func (m *Manager) findInPort(name string) drivers.In {
	for _, in := range midi.GetInPorts() {
		if in.String() == name {
			return in
		}
	}
	return nil
}

func (m *Manager) findOutPort(name string) drivers.Out {
	for _, out := range midi.GetOutPorts() {
		if out.String() == name {
			return out
		}
	}
	return nil
}
