package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"

	"receipt-print/internal/backend"
	"receipt-print/internal/config"
	"receipt-print/internal/logger"
	"receipt-print/internal/preview"
	"receipt-print/internal/printer"
)

const (
	AppVersion = "1.0.0"
	AppName    = "Receipt Print"
)

type App struct {
	fyneApp fyne.App
	window  fyne.Window
	cfg     *config.Config
	log     *zap.Logger
	svc     *printer.Service
	radio   io.Closer

	ctx    context.Context
	cancel context.CancelFunc

	renderer   *preview.Renderer
	previewImg *canvas.Image

	// Settings
	headerFont   int
	bodyFont     int
	centerHeader bool
	centerBody   bool

	// Widgets that need updating
	statusLabel  *widget.Label
	connectBtn   *widget.Button
	printBtn     *widget.Button
	deviceSelect *widget.Select
	refreshBtn   *widget.Button
	headerEntry  *widget.Entry
	bodyEntry    *widget.Entry
}

func main() {
	configPath := flag.String("config", "", "config file (default: receipt-print.toml in . or ~/.config/receipt-print)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	renderer, err := preview.New(preview.Width58mm)
	if err != nil {
		log.Fatal("preview renderer", zap.Error(err))
	}

	a := app.New()
	w := a.NewWindow(fmt.Sprintf("%s v%s", AppName, AppVersion))
	w.Resize(fyne.NewSize(720, 560))

	ctx, cancel := context.WithCancel(context.Background())
	receiptApp := &App{
		fyneApp:      a,
		window:       w,
		cfg:          cfg,
		log:          log,
		ctx:          ctx,
		cancel:       cancel,
		renderer:     renderer,
		headerFont:   24,
		bodyFont:     cfg.Print.FontSize,
		centerHeader: true,
		centerBody:   cfg.Print.CenterAlign,
	}

	svc, radio, err := backend.NewService(cfg, log, dialogNotifier{window: w}, receiptApp.onStateChange)
	if err != nil {
		log.Fatal("printer backend", zap.String("backend", cfg.Printer.Backend), zap.Error(err))
	}
	receiptApp.svc = svc
	receiptApp.radio = radio

	w.SetMainMenu(receiptApp.buildMenu())
	w.SetContent(receiptApp.buildUI())
	w.SetOnClosed(func() {
		receiptApp.cleanup()
	})
	w.ShowAndRun()
}

// dialogNotifier shows printer alerts as modal dialogs
type dialogNotifier struct {
	window fyne.Window
}

func (n dialogNotifier) Alert(title, message string) {
	dialog.ShowInformation(title, message, n.window)
}

func (a *App) buildMenu() *fyne.MainMenu {
	aboutItem := fyne.NewMenuItem("About", func() {
		a.showAboutDialog()
	})
	return fyne.NewMainMenu(fyne.NewMenu("Help", aboutItem))
}

func (a *App) showAboutDialog() {
	content := container.NewVBox(
		widget.NewLabelWithStyle(AppName, fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
		widget.NewLabel(fmt.Sprintf("Version %s", AppVersion)),
		widget.NewSeparator(),
		widget.NewLabel("Prints text receipts on BLE ESC/POS thermal printers."),
		widget.NewLabel(fmt.Sprintf("Backend: %s", a.cfg.Printer.Backend)),
		widget.NewLabel(""),
		widget.NewLabel("Built with Fyne and Go"),
	)
	dialog.ShowCustom("About", "Close", content, a.window)
}

func (a *App) cleanup() {
	a.cancel()
	a.svc.Disconnect(context.Background())
	if err := a.radio.Close(); err != nil {
		a.log.Warn("failed to release adapter", zap.Error(err))
	}
}

// onStateChange mirrors the connection state in the status bar
func (a *App) onStateChange(old, new printer.State) {
	if a.statusLabel == nil {
		return
	}
	switch new {
	case printer.StateScanning:
		a.statusLabel.SetText("Looking for printer...")
	case printer.StateConnecting:
		a.statusLabel.SetText("Connecting...")
	case printer.StateServiceResolved:
		a.statusLabel.SetText("Negotiating...")
	case printer.StateReady:
		dev := a.svc.Manager().Device()
		a.statusLabel.SetText(fmt.Sprintf("Connected to %s (%s)", dev.Name, a.svc.Manager().Params()))
	case printer.StateDisconnected:
		a.statusLabel.SetText("Not connected")
	}
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
