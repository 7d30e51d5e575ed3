package window

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/PixPMusic/cubase-control/internal/preset"
)

// ============ TRACK COLUMN ============

// trackColumn is one fader strip: name, vertical volume slider and mute.
// Programmatic updates never reach the callbacks, so feedback from the DAW
// is not echoed back to it. While the user holds the fader, feedback leaves
// the slider alone; onCommit fires once the gesture ends.
type trackColumn struct {
	number    int
	name      *widget.Label
	value     *widget.Label
	slider    *widget.Slider
	mute      *widget.Check
	container fyne.CanvasObject

	updating bool
	dragging bool
	onVolume func(number, volume int)
	onCommit func(number, volume int)
	onMute   func(number int, muted bool)
}

func newTrackColumn(t preset.Track, onVolume, onCommit func(int, int), onMute func(int, bool)) *trackColumn {
	c := &trackColumn{
		number:   t.Number,
		onVolume: onVolume,
		onCommit: onCommit,
		onMute:   onMute,
	}

	c.name = widget.NewLabel(t.Name)
	c.name.Alignment = fyne.TextAlignCenter
	c.name.Truncation = fyne.TextTruncateEllipsis
	c.name.TextStyle = fyne.TextStyle{Bold: true}

	c.value = widget.NewLabel("")
	c.value.Alignment = fyne.TextAlignCenter

	c.slider = widget.NewSlider(0, preset.MaxVolume)
	c.slider.Step = 1
	c.slider.Orientation = widget.Vertical
	c.slider.OnChanged = func(v float64) {
		c.value.SetText(fmt.Sprintf("%d", int(v)))
		if c.updating {
			return
		}
		c.dragging = true
		if c.onVolume != nil {
			c.onVolume(c.number, int(v))
		}
	}
	c.slider.OnChangeEnded = func(v float64) {
		if c.updating {
			return
		}
		c.dragging = false
		if c.onCommit != nil {
			c.onCommit(c.number, int(v))
		}
	}

	c.mute = widget.NewCheck("Mute", func(muted bool) {
		if c.updating || c.onMute == nil {
			return
		}
		c.onMute(c.number, muted)
	})

	number := widget.NewLabel(fmt.Sprintf("#%d", t.Number))
	number.Alignment = fyne.TextAlignCenter

	c.container = container.NewGridWrap(fyne.NewSize(96, 320),
		container.NewBorder(
			c.name,
			container.NewVBox(c.value, container.NewCenter(c.mute), number),
			nil, nil,
			c.slider,
		),
	)

	c.update(t)
	return c
}

// update shows t without invoking the callbacks. The volume is skipped while
// the fader is held.
func (c *trackColumn) update(t preset.Track) {
	c.updating = true
	defer func() { c.updating = false }()

	if !c.dragging {
		c.slider.SetValue(float64(t.Volume))
		c.value.SetText(fmt.Sprintf("%d", t.Volume))
	}
	c.mute.SetChecked(t.IsMuted)
}
