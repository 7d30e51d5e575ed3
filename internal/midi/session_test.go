package midi

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
)

type fakeTransport struct {
	mu       sync.Mutex
	ins      []string
	outs     []string
	listenFn func(midi.Message)
	listenOn string
	sendTo   string
	sent     []midi.Message
	sendErr  error
	stopped  bool
	outShut  bool
}

func (f *fakeTransport) InPorts() []string  { return f.ins }
func (f *fakeTransport) OutPorts() []string { return f.outs }

func (f *fakeTransport) Listen(port string, fn func(midi.Message)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listenOn, f.listenFn = port, fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stopped = true
	}, nil
}

func (f *fakeTransport) Sender(port string) (func(midi.Message) error, func() error, error) {
	f.sendTo = port
	send := func(msg midi.Message) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.sendErr != nil {
			return f.sendErr
		}
		f.sent = append(f.sent, msg)
		return nil
	}
	return send, func() error { f.outShut = true; return nil }, nil
}

// deliver mimics the driver calling back, even after stop
func (f *fakeTransport) deliver(msg midi.Message) {
	f.mu.Lock()
	fn := f.listenFn
	f.mu.Unlock()
	fn(msg)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestOpen_MatchesBySubstringFirstWins(t *testing.T) {
	tr := &fakeTransport{
		ins:  []string{"Other", "loopMIDI CubaseControl-feedback 1", "CubaseControl-feedback 2"},
		outs: []string{"CubaseControl-input 0", "CubaseControl-input 1"},
	}

	s, err := Open(tr, DefaultOutputPattern, DefaultInputPattern, quietLogger())
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "loopMIDI CubaseControl-feedback 1", tr.listenOn)
	assert.Equal(t, "CubaseControl-input 0", tr.sendTo)
	assert.True(t, s.HasFeedback())
	assert.True(t, s.HasOutput())

	out, in := s.Ports()
	assert.Equal(t, "CubaseControl-input 0", out)
	assert.Equal(t, "loopMIDI CubaseControl-feedback 1", in)
}

func TestOpen_MissingFeedbackPortKeepsOutput(t *testing.T) {
	tr := &fakeTransport{outs: []string{"CubaseControl-input"}}

	s, err := Open(tr, DefaultOutputPattern, DefaultInputPattern, quietLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPortNotFound))
	require.NotNil(t, s)
	assert.False(t, s.HasFeedback())

	msg := ControlMessage{Control: 1, Value: 2}.Message()
	require.NoError(t, s.Send(msg))
	assert.Equal(t, []midi.Message{msg}, tr.sent)
}

func TestOpen_MissingOutputDisablesSend(t *testing.T) {
	tr := &fakeTransport{ins: []string{"CubaseControl-feedback"}}

	s, err := Open(tr, DefaultOutputPattern, DefaultInputPattern, quietLogger())
	require.NoError(t, err)
	assert.False(t, s.HasOutput())
	assert.NoError(t, s.Send(ControlMessage{Control: 1}.Message()))
	assert.Empty(t, tr.sent)
}

func TestSession_DeliversToHandler(t *testing.T) {
	tr := &fakeTransport{ins: []string{"CubaseControl-feedback"}}
	s, err := Open(tr, DefaultOutputPattern, DefaultInputPattern, quietLogger())
	require.NoError(t, err)

	// nothing registered yet: dropped
	tr.deliver(midi.Message{0xB0, 1, 1})

	var got []midi.Message
	s.OnMessage(func(msg midi.Message) { got = append(got, msg) })
	tr.deliver(midi.Message{0xB0, 51, 127})

	assert.Equal(t, []midi.Message{{0xB0, 51, 127}}, got)
}

func TestSession_SendError(t *testing.T) {
	tr := &fakeTransport{outs: []string{"CubaseControl-input"}, sendErr: errors.New("unplugged")}
	s, _ := Open(tr, DefaultOutputPattern, DefaultInputPattern, quietLogger())

	err := s.Send(ControlMessage{Control: 1}.Message())
	assert.ErrorContains(t, err, "unplugged")
}

func TestSession_CloseIsIdempotentAndStopsDelivery(t *testing.T) {
	tr := &fakeTransport{
		ins:  []string{"CubaseControl-feedback"},
		outs: []string{"CubaseControl-input"},
	}
	s, err := Open(tr, DefaultOutputPattern, DefaultInputPattern, quietLogger())
	require.NoError(t, err)

	calls := 0
	s.OnMessage(func(midi.Message) { calls++ })

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, tr.stopped)
	assert.True(t, tr.outShut)

	tr.deliver(midi.Message{0xB0, 1, 1})
	assert.Zero(t, calls)
	assert.ErrorIs(t, s.Send(midi.Message{0xB0, 1, 1}), ErrSessionClosed)
}

func TestSession_CloseDrainsInflightHandler(t *testing.T) {
	tr := &fakeTransport{ins: []string{"CubaseControl-feedback"}}
	s, err := Open(tr, DefaultOutputPattern, DefaultInputPattern, quietLogger())
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	s.OnMessage(func(midi.Message) {
		close(entered)
		<-release
	})

	go tr.deliver(midi.Message{0xB0, 1, 1})
	<-entered

	closed := make(chan struct{})
	go func() {
		_ = s.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a handler was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after the handler finished")
	}
}
