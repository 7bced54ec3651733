// Command receiptctl prints text receipts on a BLE ESC/POS printer from the
// command line.
//
// Usage:
//
//	receiptctl [flags] [body-file]
//
// The body is read from body-file, or stdin when omitted.
//
// Flags:
//
//	-config string       Config file (default: receipt-print.toml in . or ~/.config/receipt-print)
//	-device string       Printer name (overrides printer.device_name)
//	-backend string      tinyble, goble or serial (overrides printer.backend)
//	-list                List paired devices and exit
//	-scan                Scan for nearby devices and exit
//	-header string       File with header lines
//	-header-font int     Header point size (default 24)
//	-font int            Body point size (default from config)
//	-center              Center the body
//	-preview string      Write a PNG preview instead of printing
//	-raw string          Write the ESC/POS byte stream to a file instead of printing
//	-timeout duration    Overall timeout (default 1m)
//	-v                   Debug logging
//
// Examples:
//
//	# Print a receipt from stdin
//	printf 'Milk  1.00\nBread 2.00\n' | receiptctl -device MPT-II
//
//	# Check the layout first
//	receiptctl -header shop.txt -preview out.png body.txt
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"receipt-print/internal/backend"
	"receipt-print/internal/config"
	"receipt-print/internal/escpos"
	"receipt-print/internal/logger"
	"receipt-print/internal/preview"
	"receipt-print/internal/printer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath string
	device     string
	backend    string
	list       bool
	scan       bool
	headerPath string
	headerFont int
	font       int
	center     bool
	centerSet  bool
	preview    string
	raw        string
	timeout    time.Duration
	verbose    bool
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	fs := flag.NewFlagSet("receiptctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "Config file (default: receipt-print.toml in . or ~/.config/receipt-print)")
	fs.StringVar(&o.device, "device", "", "Printer name (overrides printer.device_name)")
	fs.StringVar(&o.backend, "backend", "", "tinyble, goble or serial (overrides printer.backend)")
	fs.BoolVar(&o.list, "list", false, "List paired devices and exit")
	fs.BoolVar(&o.scan, "scan", false, "Scan for nearby devices and exit")
	fs.StringVar(&o.headerPath, "header", "", "File with header lines")
	fs.IntVar(&o.headerFont, "header-font", 24, "Header point size")
	fs.IntVar(&o.font, "font", 0, "Body point size (default from config)")
	fs.BoolVar(&o.center, "center", false, "Center the body")
	fs.StringVar(&o.preview, "preview", "", "Write a PNG preview instead of printing")
	fs.StringVar(&o.raw, "raw", "", "Write the ESC/POS byte stream to a file instead of printing")
	fs.DurationVar(&o.timeout, "timeout", time.Minute, "Overall timeout")
	fs.BoolVar(&o.verbose, "v", false, "Debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "center" {
			o.centerSet = true
		}
	})
	return o, fs.Args(), nil
}

// stderrNotifier reports printer alerts as "title: message" lines
func stderrNotifier(w io.Writer) printer.Notifier {
	return printer.NotifierFunc(func(title, message string) {
		fmt.Fprintf(w, "%s: %s\n", title, message)
	})
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o, rest, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if o.device != "" {
		cfg.Printer.DeviceName = o.device
	}
	if o.backend != "" {
		cfg.Printer.Backend = strings.ToLower(o.backend)
	}
	if o.font <= 0 {
		o.font = cfg.Print.FontSize
	}
	if !o.centerSet {
		o.center = cfg.Print.CenterAlign
	}

	logCfg := cfg.LoggerConfig()
	if o.verbose {
		logCfg.Level = "debug"
	}
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if o.list || o.scan {
		return listDevices(ctx, cfg, log, o.scan, stdout, stderr)
	}

	var header []string
	if o.headerPath != "" {
		header, err = readLinesFile(o.headerPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	var body []string
	if len(rest) > 0 {
		body, err = readLinesFile(rest[0])
	} else {
		body, err = readLines(stdin)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(header) == 0 && len(body) == 0 {
		fmt.Fprintln(stderr, "Error: nothing to print")
		return 1
	}

	headerBlock := preview.Block{Lines: header, FontSize: o.headerFont, CenterAlign: true}
	bodyBlock := preview.Block{Lines: body, FontSize: o.font, CenterAlign: o.center, IsBody: true}

	switch {
	case o.preview != "":
		return writePreview(o.preview, headerBlock, bodyBlock, stderr)
	case o.raw != "":
		return writeRaw(o.raw, headerBlock, bodyBlock, stderr)
	}

	if cfg.Printer.DeviceName == "" {
		fmt.Fprintln(stderr, "Error: printer name is required (-device or printer.device_name)")
		return 1
	}

	svc, radio, err := backend.NewService(cfg, log, stderrNotifier(stderr), nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer radio.Close()
	defer svc.Disconnect(context.WithoutCancel(ctx))

	if !svc.Connect(ctx, cfg.Printer.DeviceName) {
		return 1
	}
	if len(header) > 0 && !svc.PrintFormattedText(ctx, header, o.headerFont, true, false) {
		return 1
	}
	if !svc.PrintFormattedText(ctx, body, o.font, o.center, true) {
		return 1
	}
	log.Debug("receipt printed", zap.Int("header_lines", len(header)), zap.Int("body_lines", len(body)))
	fmt.Fprintln(stdout, "Print complete")
	return 0
}

func listDevices(ctx context.Context, cfg *config.Config, log *zap.Logger, scan bool, stdout, stderr io.Writer) int {
	adapter, radio, err := backend.NewAdapter(cfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer radio.Close()
	if err := adapter.Enable(); err != nil {
		fmt.Fprintf(stderr, "Error: %v: %v\n", printer.ErrAdapterOff, err)
		return 1
	}

	d := printer.NewDiscovery(adapter, cfg.Connect.ScanTimeout, log)
	var devices []printer.Device
	if scan {
		devices, err = d.Nearby(ctx)
	} else {
		devices, err = d.Paired(ctx)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	for _, dev := range devices {
		name := dev.Name
		if name == "" {
			name = "Unknown Device"
		}
		fmt.Fprintf(stdout, "%s\t%s\n", dev.Address, name)
	}
	return 0
}

func writePreview(path string, header, body preview.Block, stderr io.Writer) int {
	r, err := preview.New(preview.Width58mm)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer f.Close()
	if err := r.WritePNG(f, header, body); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func writeRaw(path string, header, body preview.Block, stderr io.Writer) int {
	var data []byte
	if len(header.Lines) > 0 {
		data = append(data, escpos.BuildReceipt(header.Lines, header.FontSize, header.CenterAlign, false)...)
	}
	data = append(data, escpos.BuildReceipt(body.Lines, body.FontSize, body.CenterAlign, true)...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func readLinesFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLines(f)
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	return lines, sc.Err()
}
