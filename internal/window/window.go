package window

import (
	"errors"
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/PixPMusic/cubase-control/internal/mixer"
	"github.com/PixPMusic/cubase-control/internal/preset"
	"github.com/Southclaws/fault/fmsg"
	"github.com/charmbracelet/log"
)

// Controller is the bridge the window drives
type Controller interface {
	Preset() *preset.Preset
	Path() string
	Connected() (output, feedback bool)

	NewPreset() (*preset.Preset, error)
	LoadPreset(path string) (*preset.Preset, error)
	SaveAs(path string) error
	OpenRecent(name string) (*preset.Preset, error)
	Recent() ([]preset.Recent, error)
	Folder() string

	Suggest() (string, int)
	AddTrack(name string, number int) error
	AdjustVolume(number, volume int) error
	SetMute(number int, muted bool) error
	Save() error

	Subscribe(l mixer.Listener) (unsubscribe func())
}

// MainWindow manages the mixer window
type MainWindow struct {
	window fyne.Window
	app    fyne.App
	ctrl   Controller
	logger *log.Logger

	strip   *fyne.Container
	columns map[int]*trackColumn
	status  *widget.Label
	onQuit  func()

	onChange func()
}

// NewMainWindow creates the mixer window and subscribes it to feedback
func NewMainWindow(app fyne.App, ctrl Controller, logger *log.Logger, onQuit func()) *MainWindow {
	win := app.NewWindow("CubaseControl")

	mw := &MainWindow{
		window:  win,
		app:     app,
		ctrl:    ctrl,
		logger:  logger,
		columns: make(map[int]*trackColumn),
		onQuit:  onQuit,
	}

	mw.setupUI()
	ctrl.Subscribe(mw)

	win.Resize(fyne.NewSize(720, 420))
	win.CenterOnScreen()

	win.SetCloseIntercept(func() {
		win.Hide()
	})

	return mw
}

func (mw *MainWindow) setupUI() {
	mw.strip = container.NewHBox()
	mw.status = widget.NewLabel("")

	toolbar := widget.NewToolbar(
		widget.NewToolbarAction(theme.DocumentCreateIcon(), mw.newPreset),
		widget.NewToolbarAction(theme.FolderOpenIcon(), mw.loadPreset),
		widget.NewToolbarAction(theme.DocumentSaveIcon(), mw.savePresetAs),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.ContentAddIcon(), mw.addTrack),
	)

	mw.window.SetContent(container.NewBorder(
		toolbar,
		container.NewVBox(widget.NewSeparator(), mw.status),
		nil, nil,
		container.NewHScroll(mw.strip),
	))
	mw.refreshMenu()
	mw.Render()
}

// Render rebuilds the track strip from the active preset
func (mw *MainWindow) Render() {
	p := mw.ctrl.Preset()

	mw.strip.RemoveAll()
	mw.columns = make(map[int]*trackColumn, len(p.Tracks))
	for _, t := range p.Tracks {
		col := newTrackColumn(t, mw.setVolume, mw.commitVolume, mw.setMute)
		mw.columns[t.Number] = col
		mw.strip.Add(col.container)
	}
	mw.strip.Refresh()

	mw.window.SetTitle("CubaseControl - " + p.Name)
	mw.refreshStatus(p)
}

func (mw *MainWindow) refreshStatus(p *preset.Preset) {
	output, feedback := mw.ctrl.Connected()
	mw.status.SetText(fmt.Sprintf("%s  |  %d tracks  |  output %s  |  feedback %s",
		mw.ctrl.Path(), len(p.Tracks), onOff(output), onOff(feedback)))
}

func onOff(b bool) string {
	if b {
		return "connected"
	}
	return "offline"
}

// TrackChanged applies DAW feedback to the matching column
func (mw *MainWindow) TrackChanged(t preset.Track) {
	fyne.Do(func() {
		if col, ok := mw.columns[t.Number]; ok {
			col.update(t)
		}
	})
}

func (mw *MainWindow) setVolume(number, volume int) {
	if err := mw.ctrl.AdjustVolume(number, volume); err != nil {
		mw.logger.Error("volume not sent", "track", number, "err", err)
	}
}

func (mw *MainWindow) commitVolume(number, volume int) {
	if err := mw.ctrl.Save(); err != nil {
		mw.logger.Error("preset not saved", "track", number, "volume", volume, "err", err)
		mw.showError(err)
	}
}

func (mw *MainWindow) setMute(number int, muted bool) {
	if err := mw.ctrl.SetMute(number, muted); err != nil {
		mw.logger.Error("mute not sent", "track", number, "err", err)
		mw.showError(err)
	}
}

// showError displays the user-facing part of err
func (mw *MainWindow) showError(err error) {
	if err == nil {
		return
	}
	msg := fmsg.GetIssue(err)
	if msg == "" {
		msg = err.Error()
	}
	dialog.ShowError(errors.New(msg), mw.window)
}

// OnPresetChanged registers fn to run after the window replaced the active preset
func (mw *MainWindow) OnPresetChanged(fn func()) {
	mw.onChange = fn
}

// PresetChanged re-renders after the active preset was replaced. A non-nil
// err with a preset is shown as a notice.
func (mw *MainWindow) PresetChanged(p *preset.Preset, err error) {
	if p != nil {
		mw.Render()
		mw.refreshMenu()
	}
	mw.showError(err)
}

// ShowNotice displays err to the user
func (mw *MainWindow) ShowNotice(err error) {
	mw.showError(err)
}

func (mw *MainWindow) presetChanged(p *preset.Preset, err error) {
	mw.PresetChanged(p, err)
	if mw.onChange != nil {
		mw.onChange()
	}
}

// Show displays the window
func (mw *MainWindow) Show() {
	mw.Render()
	mw.refreshMenu()
	mw.window.Show()
}

// Hide hides the window
func (mw *MainWindow) Hide() {
	mw.window.Hide()
}

// Window returns the underlying fyne.Window
func (mw *MainWindow) Window() fyne.Window {
	return mw.window
}
