package monitor

import (
	"fmt"
	"strings"

	"github.com/PixPMusic/cubase-control/internal/mixer"
	"github.com/PixPMusic/cubase-control/internal/preset"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Mixer is the bridge the monitor drives
type Mixer interface {
	Preset() *preset.Preset
	Connected() (output, feedback bool)
	SetVolume(number, volume int) error
	SetMute(number int, muted bool) error
	Subscribe(l mixer.Listener) (unsubscribe func())
}

// trackMsg carries DAW feedback into the program
type trackMsg preset.Track

type keyMap struct {
	Up, Down          key.Binding
	Left, Right       key.Binding
	BigLeft, BigRight key.Binding
	Mute              key.Binding
	Quit              key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Left, k.Right, k.Mute, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down}, {k.Left, k.Right, k.BigLeft, k.BigRight}, {k.Mute, k.Quit}}
}

var keys = keyMap{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "prev track")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next track")),
	Left:     key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "volume -1")),
	Right:    key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "volume +1")),
	BigLeft:  key.NewBinding(key.WithKeys("pgdown", "shift+left"), key.WithHelp("pgdn", "volume -10")),
	BigRight: key.NewBinding(key.WithKeys("pgup", "shift+right"), key.WithHelp("pgup", "volume +10")),
	Mute:     key.NewBinding(key.WithKeys("m", " "), key.WithHelp("m", "mute")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#88C0D0"))
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EBCB8B")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#BF616A"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#BF616A"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#4C566A")).Padding(0, 1)
)

// Model is the terminal mixer
type Model struct {
	mixer  Mixer
	name   string
	tracks []preset.Track
	cursor int

	bar  progress.Model
	help help.Model
	err  error
}

// New builds a model showing the active preset
func New(m Mixer) Model {
	p := m.Preset()
	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	bar.Width = 40

	return Model{
		mixer:  m,
		name:   p.Name,
		tracks: p.Tracks,
		bar:    bar,
		help:   help.New(),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.tracks)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.Left):
			m.nudge(-1)
		case key.Matches(msg, keys.Right):
			m.nudge(1)
		case key.Matches(msg, keys.BigLeft):
			m.nudge(-10)
		case key.Matches(msg, keys.BigRight):
			m.nudge(10)
		case key.Matches(msg, keys.Mute):
			m.toggleMute()
		}

	case trackMsg:
		t := preset.Track(msg)
		for i := range m.tracks {
			if m.tracks[i].Number == t.Number {
				m.tracks[i] = t
			}
		}

	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(60, msg.Width-40))
		m.help.Width = msg.Width
	}
	return m, nil
}

func (m *Model) nudge(delta int) {
	if len(m.tracks) == 0 {
		return
	}
	t := &m.tracks[m.cursor]
	t.Volume = preset.ClampVolume(t.Volume + delta)
	m.err = m.mixer.SetVolume(t.Number, t.Volume)
}

func (m *Model) toggleMute() {
	if len(m.tracks) == 0 {
		return
	}
	t := &m.tracks[m.cursor]
	t.IsMuted = !t.IsMuted
	m.err = m.mixer.SetMute(t.Number, t.IsMuted)
}

func (m Model) View() string {
	var b strings.Builder

	output, feedback := m.mixer.Connected()
	b.WriteString(titleStyle.Render(m.name))
	b.WriteString(faintStyle.Render(fmt.Sprintf("  output %s · feedback %s", state(output), state(feedback))))
	b.WriteString("\n\n")

	if len(m.tracks) == 0 {
		b.WriteString(faintStyle.Render("no tracks in this preset"))
		b.WriteString("\n")
	}
	for i, t := range m.tracks {
		pointer := "  "
		name := fmt.Sprintf("%-16s", truncate(t.Name, 16))
		if i == m.cursor {
			pointer = cursorStyle.Render("▸ ")
			name = cursorStyle.Render(name)
		}
		mute := faintStyle.Render("[ ]")
		if t.IsMuted {
			mute = mutedStyle.Render("[M]")
		}
		fmt.Fprintf(&b, "%s%s #%-3d %s %3d %s\n",
			pointer, name, t.Number,
			m.bar.ViewAs(float64(t.Volume)/preset.MaxVolume), t.Volume, mute)
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}

	return panelStyle.Render(b.String()) + "\n" + m.help.View(keys) + "\n"
}

func state(ok bool) string {
	if ok {
		return "connected"
	}
	return "offline"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// feedbackBuffer bounds how far feedback may run ahead of the view
const feedbackBuffer = 1024

// Run shows the terminal mixer until the user quits. Feedback from the DAW
// is queued and forwarded into the program in arrival order.
func Run(m Mixer, opts ...tea.ProgramOption) error {
	p := tea.NewProgram(New(m), opts...)

	// Program.Send blocks while Update runs, and Update calls into the
	// mixer, so the listener only enqueues.
	feedback := make(chan preset.Track, feedbackBuffer)
	done := make(chan struct{})
	unsubscribe := m.Subscribe(mixer.ListenerFunc(func(t preset.Track) {
		select {
		case feedback <- t:
		case <-done:
		default:
		}
	}))
	go func() {
		for {
			select {
			case t := <-feedback:
				p.Send(trackMsg(t))
			case <-done:
				return
			}
		}
	}()
	defer func() {
		unsubscribe()
		close(done)
	}()

	_, err := p.Run()
	return err
}
