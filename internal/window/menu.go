package window

import (
	"errors"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
	"github.com/PixPMusic/cubase-control/internal/preset"
)

// ============ FILE MENU ============

// refreshMenu rebuilds the main menu so the recent list stays current
func (mw *MainWindow) refreshMenu() {
	recentItem := fyne.NewMenuItem("Open Recent", nil)
	recentItem.ChildMenu = mw.recentMenu()

	quitItem := fyne.NewMenuItem("Quit", mw.quit)
	quitItem.IsQuit = true

	file := fyne.NewMenu("File",
		fyne.NewMenuItem("New Preset", mw.newPreset),
		fyne.NewMenuItem("Load Preset...", mw.loadPreset),
		fyne.NewMenuItem("Save Preset As...", mw.savePresetAs),
		recentItem,
		fyne.NewMenuItemSeparator(),
		quitItem,
	)
	track := fyne.NewMenu("Track",
		fyne.NewMenuItem("Add Track...", mw.addTrack),
	)

	mw.window.SetMainMenu(fyne.NewMainMenu(file, track))
}

// recentMenu lists recent presets, newest first
func (mw *MainWindow) recentMenu() *fyne.Menu {
	recents, err := mw.ctrl.Recent()
	if err != nil {
		mw.logger.Warn("recent presets unavailable", "err", err)
	}

	items := make([]*fyne.MenuItem, 0, len(recents))
	for i := len(recents) - 1; i >= 0; i-- {
		name := recents[i].Name
		items = append(items, fyne.NewMenuItem(name, func() {
			mw.presetChanged(mw.ctrl.OpenRecent(name))
		}))
	}
	if len(items) == 0 {
		empty := fyne.NewMenuItem("(none)", nil)
		empty.Disabled = true
		items = append(items, empty)
	}
	return fyne.NewMenu("", items...)
}

func (mw *MainWindow) newPreset() {
	mw.presetChanged(mw.ctrl.NewPreset())
}

func (mw *MainWindow) loadPreset() {
	d := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			mw.showError(err)
			return
		}
		if reader == nil {
			return
		}
		path := reader.URI().Path()
		_ = reader.Close()

		mw.presetChanged(mw.ctrl.LoadPreset(path))
	}, mw.window)
	d.SetFilter(storage.NewExtensionFileFilter([]string{preset.Extension}))
	mw.startIn(d)
	d.Show()
}

func (mw *MainWindow) savePresetAs() {
	d := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil {
			mw.showError(err)
			return
		}
		if writer == nil {
			return
		}
		path := writer.URI().Path()
		_ = writer.Close()

		if err := mw.ctrl.SaveAs(path); err != nil {
			mw.showError(err)
			return
		}
		mw.refreshStatus(mw.ctrl.Preset())
		mw.refreshMenu()
		if mw.onChange != nil {
			mw.onChange()
		}
	}, mw.window)
	d.SetFilter(storage.NewExtensionFileFilter([]string{preset.Extension}))
	d.SetFileName(mw.ctrl.Preset().Name + preset.Extension)
	mw.startIn(d)
	d.Show()
}

// startIn points a file dialog at the most recent preset folder
func (mw *MainWindow) startIn(d *dialog.FileDialog) {
	lister, err := storage.ListerForURI(storage.NewFileURI(mw.ctrl.Folder()))
	if err != nil {
		mw.logger.Debug("dialog folder unavailable", "err", err)
		return
	}
	d.SetLocation(lister)
}

func (mw *MainWindow) quit() {
	if mw.onQuit != nil {
		mw.onQuit()
		return
	}
	mw.app.Quit()
}

// ============ ADD TRACK ============

func (mw *MainWindow) addTrack() {
	suggestedName, suggestedNumber := mw.ctrl.Suggest()

	nameEntry := widget.NewEntry()
	nameEntry.SetText(suggestedName)
	nameEntry.Validator = func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New("name is required")
		}
		return nil
	}

	numberEntry := widget.NewEntry()
	numberEntry.SetText(strconv.Itoa(suggestedNumber))
	numberEntry.Validator = func(s string) error {
		_, err := parseTrackNumber(s)
		return err
	}

	items := []*widget.FormItem{
		widget.NewFormItem("Name", nameEntry),
		widget.NewFormItem("Number", numberEntry),
	}

	dialog.ShowForm("Add Track", "Add", "Cancel", items, func(confirm bool) {
		if !confirm {
			return
		}
		number, err := parseTrackNumber(numberEntry.Text)
		if err != nil {
			mw.showError(err)
			return
		}
		if err := mw.ctrl.AddTrack(nameEntry.Text, number); err != nil {
			mw.showError(err)
			return
		}
		mw.Render()
	}, mw.window)
}

func parseTrackNumber(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.New("number must be an integer")
	}
	if n < 0 || n >= preset.MaxTrackNumber {
		return 0, errors.New("number must be between 0 and 126")
	}
	return n, nil
}
