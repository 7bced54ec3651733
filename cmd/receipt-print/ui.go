package main

import (
	"fmt"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"receipt-print/internal/preview"
	"receipt-print/internal/printer"
)

func (a *App) buildUI() fyne.CanvasObject {
	a.statusLabel = widget.NewLabel("Not connected")

	// === PRINTER SECTION ===
	a.deviceSelect = widget.NewSelect([]string{}, func(s string) {})
	a.deviceSelect.PlaceHolder = "Select or type below"
	nameEntry := widget.NewEntry()
	nameEntry.SetPlaceHolder("Printer name")
	nameEntry.SetText(a.cfg.Printer.DeviceName)
	a.deviceSelect.OnChanged = func(s string) {
		nameEntry.SetText(s)
	}

	a.refreshBtn = widget.NewButton("↻", func() {
		go a.refreshDevices()
	})
	a.connectBtn = widget.NewButton("Connect", func() {
		a.connect(strings.TrimSpace(nameEntry.Text))
	})

	go a.refreshDevices()

	deviceRow := container.NewBorder(
		nil, nil, nil,
		container.NewHBox(a.refreshBtn, a.connectBtn),
		a.deviceSelect,
	)

	// === RECEIPT SECTION ===
	a.headerEntry = widget.NewMultiLineEntry()
	a.headerEntry.SetPlaceHolder("Header (shop name, address...)")
	a.headerEntry.SetMinRowsVisible(2)
	a.headerEntry.OnChanged = func(string) { a.updatePreview() }

	a.bodyEntry = widget.NewMultiLineEntry()
	a.bodyEntry.SetPlaceHolder("Receipt lines...")
	a.bodyEntry.SetMinRowsVisible(6)
	a.bodyEntry.OnChanged = func(string) { a.updatePreview() }

	headerFont := fontSlider(a.headerFont, func(n int) {
		a.headerFont = n
		a.updatePreview()
	})
	bodyFont := fontSlider(a.bodyFont, func(n int) {
		a.bodyFont = n
		a.updatePreview()
	})

	centerHeader := widget.NewCheck("Center header", func(b bool) {
		a.centerHeader = b
		a.updatePreview()
	})
	centerHeader.SetChecked(a.centerHeader)
	centerBody := widget.NewCheck("Center body", func(b bool) {
		a.centerBody = b
		a.updatePreview()
	})
	centerBody.SetChecked(a.centerBody)

	paperSelect := widget.NewSelect([]string{"58mm", "80mm"}, func(s string) {
		width := preview.Width58mm
		if s == "80mm" {
			width = preview.Width80mm
		}
		if r, err := preview.New(width); err == nil {
			a.renderer = r
			a.updatePreview()
		}
	})
	paperSelect.SetSelected("58mm")

	a.printBtn = widget.NewButton("Print", func() {
		a.print()
	})
	a.printBtn.Importance = widget.HighImportance
	a.printBtn.Disable()

	settings := widget.NewForm(
		widget.NewFormItem("Header size", headerFont),
		widget.NewFormItem("Body size", bodyFont),
		widget.NewFormItem("", centerHeader),
		widget.NewFormItem("", centerBody),
		widget.NewFormItem("Paper", paperSelect),
	)

	leftPanel := container.NewVBox(
		widget.NewLabel("Printer:"),
		deviceRow,
		nameEntry,
		widget.NewSeparator(),
		widget.NewLabel("Header"),
		a.headerEntry,
		widget.NewLabel("Body"),
		a.bodyEntry,
		settings,
		widget.NewSeparator(),
		a.printBtn,
	)

	a.previewImg = canvas.NewImageFromImage(nil)
	a.previewImg.SetMinSize(fyne.NewSize(240, 360))
	a.previewImg.FillMode = canvas.ImageFillContain

	content := container.NewHSplit(
		container.NewVScroll(leftPanel),
		container.NewCenter(a.previewImg),
	)
	content.SetOffset(0.55)

	return container.NewBorder(
		nil,
		container.NewHBox(a.statusLabel),
		nil, nil,
		content,
	)
}

func fontSlider(value int, onChanged func(int)) *widget.Slider {
	s := widget.NewSlider(8, 36)
	s.Step = 1
	s.Value = float64(value)
	s.OnChanged = func(f float64) {
		onChanged(int(f))
	}
	return s
}

func (a *App) refreshDevices() {
	a.statusLabel.SetText("Listing paired devices...")
	names := a.svc.PairedDevices(a.ctx)

	a.deviceSelect.Options = names
	a.deviceSelect.Refresh()
	for _, n := range names {
		if n == a.cfg.Printer.DeviceName {
			a.deviceSelect.SetSelected(n)
			break
		}
	}
	a.statusLabel.SetText(fmt.Sprintf("Found %d paired device(s)", len(names)))
}

func (a *App) connect(name string) {
	if a.svc.State() == printer.StateReady {
		a.disconnect()
		return
	}
	if name == "" {
		dialog.ShowError(fmt.Errorf("no printer selected"), a.window)
		return
	}

	a.connectBtn.Disable()
	a.deviceSelect.Disable()
	a.refreshBtn.Disable()

	go func() {
		ok := a.svc.Connect(a.ctx, name)
		if ok {
			a.connectBtn.SetText("Disconnect")
			a.printBtn.Enable()
		} else {
			a.deviceSelect.Enable()
			a.refreshBtn.Enable()
		}
		a.connectBtn.Enable()
	}()
}

// disconnect waits for a running print in the background; the returned
// channel closes once the link is released
func (a *App) disconnect() <-chan struct{} {
	a.connectBtn.Disable()
	a.printBtn.Disable()

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.svc.Disconnect(a.ctx)
		a.printBtn.Disable()
		a.connectBtn.SetText("Connect")
		a.connectBtn.Enable()
		a.deviceSelect.Enable()
		a.refreshBtn.Enable()
	}()
	return done
}

func (a *App) blocks() (header, body preview.Block) {
	header = preview.Block{
		Lines:       splitLines(a.headerEntry.Text),
		FontSize:    a.headerFont,
		CenterAlign: a.centerHeader,
	}
	body = preview.Block{
		Lines:       splitLines(a.bodyEntry.Text),
		FontSize:    a.bodyFont,
		CenterAlign: a.centerBody,
		IsBody:      true,
	}
	return header, body
}

func (a *App) updatePreview() {
	if a.previewImg == nil {
		return
	}
	header, body := a.blocks()
	a.previewImg.Image = a.renderer.Render(header, body)
	a.previewImg.Refresh()
}

// print sends the header, then the body that feeds and cuts
func (a *App) print() {
	header, body := a.blocks()
	if len(header.Lines) == 0 && len(body.Lines) == 0 {
		dialog.ShowError(fmt.Errorf("nothing to print"), a.window)
		return
	}

	a.statusLabel.SetText("Printing...")
	a.printBtn.Disable()

	go func() {
		defer func() {
			if a.svc.State() == printer.StateReady {
				a.printBtn.Enable()
			}
		}()

		if len(header.Lines) > 0 {
			if !a.svc.PrintFormattedText(a.ctx, header.Lines, header.FontSize, header.CenterAlign, false) {
				a.statusLabel.SetText("Print failed")
				return
			}
		}
		if !a.svc.PrintFormattedText(a.ctx, body.Lines, body.FontSize, body.CenterAlign, true) {
			a.statusLabel.SetText("Print failed")
			return
		}
		a.statusLabel.SetText("Print complete!")
	}()
}
