package monitor

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/PixPMusic/cubase-control/internal/mixer"
	"github.com/PixPMusic/cubase-control/internal/preset"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	number int
	volume int
	muted  bool
	mute   bool
}

type fakeMixer struct {
	preset       *preset.Preset
	calls        []call
	err          error
	listener     mixer.Listener
	unsubscribed int
}

func (f *fakeMixer) Preset() *preset.Preset  { return f.preset.Clone() }
func (f *fakeMixer) Connected() (bool, bool) { return true, true }

func (f *fakeMixer) Subscribe(l mixer.Listener) func() {
	f.listener = l
	return func() { f.unsubscribed++ }
}

func (f *fakeMixer) SetVolume(number, volume int) error {
	f.calls = append(f.calls, call{number: number, volume: volume})
	return f.err
}

func (f *fakeMixer) SetMute(number int, muted bool) error {
	f.calls = append(f.calls, call{number: number, muted: muted, mute: true})
	return f.err
}

func newFake() *fakeMixer {
	return &fakeMixer{preset: &preset.Preset{Name: "Live", Tracks: []preset.Track{
		{Name: "Kick", Number: 1, Volume: 80},
		{Name: "Bass", Number: 2, Volume: 125},
	}}}
}

func press(t *testing.T, m tea.Model, keys ...tea.KeyMsg) Model {
	t.Helper()
	for _, k := range keys {
		m, _ = m.Update(k)
	}
	model, ok := m.(Model)
	require.True(t, ok)
	return model
}

var (
	down  = tea.KeyMsg{Type: tea.KeyDown}
	up    = tea.KeyMsg{Type: tea.KeyUp}
	right = tea.KeyMsg{Type: tea.KeyRight}
	left  = tea.KeyMsg{Type: tea.KeyLeft}
	pgup  = tea.KeyMsg{Type: tea.KeyPgUp}
	muteK = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'m'}}
)

func TestUpdate_AdjustsSelectedTrack(t *testing.T) {
	f := newFake()

	m := press(t, New(f), right, down, pgup, muteK, up, left)

	assert.Equal(t, []call{
		{number: 1, volume: 81},
		{number: 2, volume: 127},
		{number: 2, muted: true, mute: true},
		{number: 1, volume: 80},
	}, f.calls)
	assert.Equal(t, 80, m.tracks[0].Volume)
	assert.Equal(t, 127, m.tracks[1].Volume)
	assert.True(t, m.tracks[1].IsMuted)
}

func TestUpdate_CursorStaysInRange(t *testing.T) {
	m := press(t, New(newFake()), up, up, down, down, down)
	assert.Equal(t, 1, m.cursor)
}

func TestUpdate_FeedbackDoesNotSend(t *testing.T) {
	f := newFake()

	var model tea.Model = New(f)
	model, _ = model.Update(trackMsg(preset.Track{Name: "Bass", Number: 2, Volume: 10, IsMuted: true}))
	model, _ = model.Update(trackMsg(preset.Track{Name: "Other", Number: 9, Volume: 10}))
	m := model.(Model)

	assert.Empty(t, f.calls)
	assert.Equal(t, 10, m.tracks[1].Volume)
	assert.True(t, m.tracks[1].IsMuted)
	assert.Len(t, m.tracks, 2)
}

func TestUpdate_EmptyPresetAndErrors(t *testing.T) {
	empty := &fakeMixer{preset: preset.New("Empty")}
	m := press(t, New(empty), right, muteK)
	assert.Empty(t, empty.calls)
	assert.Contains(t, m.View(), "no tracks")

	failing := newFake()
	failing.err = errors.New("send to device failed")
	m = press(t, New(failing), right)
	assert.Contains(t, m.View(), "send to device failed")
}

func TestUpdate_Quit(t *testing.T) {
	_, cmd := New(newFake()).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestRun_UnsubscribesOnExit(t *testing.T) {
	f := newFake()
	err := Run(f, tea.WithInput(strings.NewReader("q")), tea.WithOutput(io.Discard), tea.WithoutSignalHandler())
	require.NoError(t, err)

	assert.Equal(t, 1, f.unsubscribed)
	require.NotNil(t, f.listener)
	// late feedback after the program is gone must neither block nor panic
	for i := 0; i < feedbackBuffer+1; i++ {
		f.listener.TrackChanged(preset.Track{Name: "Kick", Number: 1, Volume: i % 128})
	}
}
