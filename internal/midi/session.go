package midi

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

// Default port name patterns created by the virtual MIDI driver
const (
	DefaultOutputPattern = "CubaseControl-input"
	DefaultInputPattern  = "CubaseControl-feedback"
)

var (
	ErrPortNotFound  = errors.New("midi port not found")
	ErrSessionClosed = errors.New("midi session closed")
)

// Session owns the output connection to the DAW and the feedback listener.
//
// The handler registered with OnMessage is invoked on the transport's
// goroutine. Close stops the listener, waits for in-flight handler calls to
// return and releases the ports. Handlers must not call Close themselves.
type Session struct {
	mu       sync.RWMutex
	sendMu   sync.Mutex
	inflight sync.WaitGroup

	send      func(midi.Message) error
	closeOut  func() error
	stop      func()
	handler   func(midi.Message)
	closed    bool
	closeOnce sync.Once
	closeErr  error

	outPort string
	inPort  string
	logger  *log.Logger
}

// Open connects to the first output port whose name contains outPattern and
// the first input port whose name contains inPattern.
//
// A missing output port only disables sending. A missing input port returns
// ErrPortNotFound together with a session that is still usable for output.
func Open(t Transport, outPattern, inPattern string, logger *log.Logger) (*Session, error) {
	if logger == nil {
		logger = log.Default()
	}
	s := &Session{logger: logger}

	if name, ok := findPort(t.OutPorts(), outPattern); ok {
		send, closeOut, err := t.Sender(name)
		if err != nil {
			logger.Warn("output port unavailable, sending disabled", "port", name, "err", err)
		} else {
			s.send, s.closeOut, s.outPort = send, closeOut, name
			logger.Info("output port opened", "port", name)
		}
	} else {
		logger.Warn("no output port matches, sending disabled", "pattern", outPattern)
	}

	name, ok := findPort(t.InPorts(), inPattern)
	if !ok {
		return s, fault.Wrap(fmt.Errorf("%w: %q", ErrPortNotFound, inPattern),
			fmsg.WithDesc("open feedback port", fmt.Sprintf("The %s MIDI input port could not be found. Live feedback is disabled.", inPattern)),
			ftag.With(ftag.NotFound),
		)
	}

	stop, err := t.Listen(name, s.dispatch)
	if err != nil {
		return s, fault.Wrap(err,
			fmsg.WithDesc("listen on feedback port", fmt.Sprintf("Could not listen on %s. Live feedback is disabled.", name)),
			ftag.With(ftag.Internal),
		)
	}
	s.stop, s.inPort = stop, name
	logger.Info("feedback port opened", "port", name)

	return s, nil
}

// OnMessage registers the handler for inbound messages, replacing any
// previous one
func (s *Session) OnMessage(fn func(midi.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = fn
}

// Send transmits msg. Without an output port it does nothing.
func (s *Session) Send(msg midi.Message) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.send == nil {
		return nil
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.send(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg, err)
	}
	return nil
}

// HasOutput reports whether messages actually reach a port
func (s *Session) HasOutput() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.send != nil && !s.closed
}

// HasFeedback reports whether the feedback port is being listened to
func (s *Session) HasFeedback() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stop != nil && !s.closed
}

// Ports returns the names of the connected output and input ports
func (s *Session) Ports() (out, in string) {
	return s.outPort, s.inPort
}

// Close releases the ports. It is safe to call more than once and
// concurrently with message delivery.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		stop, closeOut := s.stop, s.closeOut
		s.mu.Unlock()

		if stop != nil {
			stop()
		}
		s.inflight.Wait()

		if closeOut != nil {
			s.closeErr = closeOut()
		}
		s.logger.Debug("session closed", "out", s.outPort, "in", s.inPort)
	})
	return s.closeErr
}

func (s *Session) dispatch(msg midi.Message) {
	s.mu.RLock()
	if s.closed || s.handler == nil {
		s.mu.RUnlock()
		return
	}
	handler := s.handler
	s.inflight.Add(1)
	s.mu.RUnlock()

	defer s.inflight.Done()
	handler(msg)
}

// findPort returns the first name containing pattern
func findPort(names []string, pattern string) (string, bool) {
	if pattern == "" {
		return "", false
	}
	for _, name := range names {
		if strings.Contains(name, pattern) {
			return name, true
		}
	}
	return "", false
}
