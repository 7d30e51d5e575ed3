package tray

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"github.com/PixPMusic/cubase-control/internal/preset"
	"github.com/charmbracelet/log"
)

// Presets is the part of the bridge the tray menu needs
type Presets interface {
	Preset() *preset.Preset
	Recent() ([]preset.Recent, error)
	OpenRecent(name string) (*preset.Preset, error)
	NewPreset() (*preset.Preset, error)
}

// Callbacks for tray menu actions
type Callbacks struct {
	OnOpen          func()
	OnQuit          func()
	OnPresetChanged func(p *preset.Preset, err error)
}

// Tray owns the system tray menu
type Tray struct {
	desk      desktop.App
	presets   Presets
	callbacks Callbacks
	logger    *log.Logger
}

// Setup initializes the system tray using Fyne's built-in support. It returns
// nil when the app is not running on a desktop.
func Setup(app fyne.App, presets Presets, logger *log.Logger, callbacks Callbacks) *Tray {
	desk, ok := app.(desktop.App)
	if !ok {
		logger.Debug("no desktop driver, tray disabled")
		return nil
	}

	t := &Tray{desk: desk, presets: presets, callbacks: callbacks, logger: logger}
	t.Refresh()
	desk.SetSystemTrayIcon(theme.VolumeUpIcon())
	return t
}

// Refresh rebuilds the menu so the recent list and active preset stay current
func (t *Tray) Refresh() {
	if t == nil || t.desk == nil {
		return
	}
	t.desk.SetSystemTrayMenu(t.menu())
}

func (t *Tray) menu() *fyne.Menu {
	active := t.presets.Preset().Name

	openItem := fyne.NewMenuItem("Open CubaseControl", func() {
		if t.callbacks.OnOpen != nil {
			t.callbacks.OnOpen()
		}
	})

	items := []*fyne.MenuItem{openItem, fyne.NewMenuItemSeparator()}

	recents, err := t.presets.Recent()
	if err != nil {
		t.logger.Warn("recent presets unavailable", "err", err)
	}
	for i := len(recents) - 1; i >= 0; i-- {
		name := recents[i].Name
		item := fyne.NewMenuItem(name, func() {
			t.changed(t.presets.OpenRecent(name))
		})
		item.Checked = name == active
		items = append(items, item)
	}

	quitItem := fyne.NewMenuItem("Quit", func() {
		if t.callbacks.OnQuit != nil {
			t.callbacks.OnQuit()
		}
	})
	quitItem.IsQuit = true

	items = append(items,
		fyne.NewMenuItem("New Preset", func() {
			t.changed(t.presets.NewPreset())
		}),
		fyne.NewMenuItemSeparator(),
		quitItem,
	)

	return fyne.NewMenu("CubaseControl", items...)
}

func (t *Tray) changed(p *preset.Preset, err error) {
	if err != nil {
		t.logger.Warn("preset change from tray", "err", err)
	}
	t.Refresh()
	if t.callbacks.OnPresetChanged != nil {
		t.callbacks.OnPresetChanged(p, err)
	}
}
