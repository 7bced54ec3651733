package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"receipt-print/internal/logger"
	"receipt-print/internal/printer"
)

// MaxConnectAttempts bounds connect.max_attempts
const MaxConnectAttempts = printer.MaxConnectAttempts

// Backends selectable with printer.backend
const (
	BackendTinyBLE = "tinyble"
	BackendGoBLE   = "goble"
	BackendSerial  = "serial"
)

// Config holds all application configuration
type Config struct {
	Printer  PrinterConfig
	Connect  ConnectConfig
	Transfer TransferConfig
	Print    PrintConfig
	Log      LogConfig
}

// PrinterConfig selects the device and how to reach it
type PrinterConfig struct {
	DeviceName         string
	Backend            string // tinyble, goble, serial
	ServiceUUID        string
	CharacteristicUUID string
	SerialBaudRate     int
	HCIDevice          int // goble only
}

// ConnectConfig holds the connect retry policy
type ConnectConfig struct {
	MaxAttempts            int
	SettleDelay            time.Duration
	DisconnectDelay        time.Duration
	RetryDelay             time.Duration
	ScanTimeout            time.Duration
	PairingErrorSignatures []string
}

// TransferConfig holds chunk sizing and pacing
type TransferConfig struct {
	DefaultChunkSize int
	MaxChunkSize     int
	MTURequest       int
	MTUOverhead      int
	ThrottleEvery    int
	ThrottleDelay    time.Duration
}

// PrintConfig holds front-end defaults for a job
type PrintConfig struct {
	FontSize    int
	CenterAlign bool
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// Load reads configuration with this priority, highest first:
//  1. Environment variables with RECEIPT_ prefix (e.g. RECEIPT_PRINTER_DEVICE_NAME)
//  2. path, or receipt-print.toml in . or $HOME/.config/receipt-print
//  3. Built-in defaults
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("receipt-print")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/receipt-print")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	setDefaults(v)

	v.SetEnvPrefix("RECEIPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Printer: PrinterConfig{
			DeviceName:         v.GetString("printer.device_name"),
			Backend:            strings.ToLower(v.GetString("printer.backend")),
			ServiceUUID:        v.GetString("printer.service_uuid"),
			CharacteristicUUID: v.GetString("printer.characteristic_uuid"),
			SerialBaudRate:     v.GetInt("printer.serial_baud_rate"),
			HCIDevice:          v.GetInt("printer.hci_device"),
		},
		Connect: ConnectConfig{
			MaxAttempts:            v.GetInt("connect.max_attempts"),
			SettleDelay:            v.GetDuration("connect.settle_delay"),
			DisconnectDelay:        v.GetDuration("connect.disconnect_delay"),
			RetryDelay:             v.GetDuration("connect.retry_delay"),
			ScanTimeout:            v.GetDuration("connect.scan_timeout"),
			PairingErrorSignatures: v.GetStringSlice("connect.pairing_error_signatures"),
		},
		Transfer: TransferConfig{
			DefaultChunkSize: v.GetInt("transfer.default_chunk_size"),
			MaxChunkSize:     v.GetInt("transfer.max_chunk_size"),
			MTURequest:       v.GetInt("transfer.mtu_request"),
			MTUOverhead:      v.GetInt("transfer.mtu_overhead"),
			ThrottleEvery:    v.GetInt("transfer.throttle_every"),
			ThrottleDelay:    v.GetDuration("transfer.throttle_delay"),
		},
		Print: PrintConfig{
			FontSize:    v.GetInt("print.font_size"),
			CenterAlign: v.GetBool("print.center_align"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers defaults for keys where zero or false is a
// meaningful setting and so cannot be detected after loading
func setDefaults(v *viper.Viper) {
	d := printer.DefaultConfig()
	v.SetDefault("connect.settle_delay", d.SettleDelay)
	v.SetDefault("connect.disconnect_delay", d.DisconnectDelay)
	v.SetDefault("connect.retry_delay", d.RetryDelay)
	v.SetDefault("transfer.mtu_overhead", d.MTUOverhead)
	v.SetDefault("transfer.throttle_delay", d.ThrottleDelay)
	v.SetDefault("print.center_align", true)
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	d := printer.DefaultConfig()

	if cfg.Printer.Backend == "" {
		cfg.Printer.Backend = BackendTinyBLE
	}
	if cfg.Printer.ServiceUUID == "" {
		cfg.Printer.ServiceUUID = d.ServiceUUID.String()
	}
	if cfg.Printer.CharacteristicUUID == "" {
		cfg.Printer.CharacteristicUUID = d.CharacteristicUUID.String()
	}
	if cfg.Printer.SerialBaudRate == 0 {
		cfg.Printer.SerialBaudRate = 115200
	}

	if cfg.Connect.MaxAttempts == 0 {
		cfg.Connect.MaxAttempts = d.MaxAttempts
	}
	if cfg.Connect.ScanTimeout == 0 {
		cfg.Connect.ScanTimeout = d.ScanTimeout
	}
	if len(cfg.Connect.PairingErrorSignatures) == 0 {
		cfg.Connect.PairingErrorSignatures = d.PairingErrorSignatures
	}

	if cfg.Transfer.DefaultChunkSize == 0 {
		cfg.Transfer.DefaultChunkSize = d.DefaultChunkSize
	}
	if cfg.Transfer.MaxChunkSize == 0 {
		cfg.Transfer.MaxChunkSize = d.MaxChunkSize
	}
	if cfg.Transfer.MTURequest == 0 {
		cfg.Transfer.MTURequest = d.MTURequest
	}
	if cfg.Transfer.ThrottleEvery == 0 {
		cfg.Transfer.ThrottleEvery = d.ThrottleEvery
	}

	if cfg.Print.FontSize == 0 {
		cfg.Print.FontSize = 12
	}

	ld := logger.DefaultConfig()
	if cfg.Log.Level == "" {
		cfg.Log.Level = ld.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = ld.Format
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = ld.Output
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Printer.Backend {
	case BackendTinyBLE, BackendGoBLE, BackendSerial:
	default:
		return fmt.Errorf("printer.backend must be one of %s, %s, %s; got %q",
			BackendTinyBLE, BackendGoBLE, BackendSerial, c.Printer.Backend)
	}
	if _, err := uuid.Parse(c.Printer.ServiceUUID); err != nil {
		return fmt.Errorf("printer.service_uuid: %w", err)
	}
	if _, err := uuid.Parse(c.Printer.CharacteristicUUID); err != nil {
		return fmt.Errorf("printer.characteristic_uuid: %w", err)
	}
	if c.Printer.SerialBaudRate < 0 {
		return fmt.Errorf("printer.serial_baud_rate cannot be negative")
	}
	if c.Printer.HCIDevice < 0 {
		return fmt.Errorf("printer.hci_device cannot be negative")
	}

	if c.Connect.MaxAttempts < 1 || c.Connect.MaxAttempts > MaxConnectAttempts {
		return fmt.Errorf("connect.max_attempts must be between 1 and %d", MaxConnectAttempts)
	}
	if c.Connect.SettleDelay < 0 || c.Connect.DisconnectDelay < 0 || c.Connect.RetryDelay < 0 {
		return fmt.Errorf("connect delays cannot be negative")
	}
	if c.Connect.ScanTimeout < 0 {
		return fmt.Errorf("connect.scan_timeout cannot be negative")
	}

	if c.Transfer.MaxChunkSize < printer.MinChunkSize {
		return fmt.Errorf("transfer.max_chunk_size must be at least %d", printer.MinChunkSize)
	}
	if c.Transfer.DefaultChunkSize < printer.MinChunkSize || c.Transfer.DefaultChunkSize > c.Transfer.MaxChunkSize {
		return fmt.Errorf("transfer.default_chunk_size (%d) must be between %d and transfer.max_chunk_size (%d)",
			c.Transfer.DefaultChunkSize, printer.MinChunkSize, c.Transfer.MaxChunkSize)
	}
	if c.Transfer.MTURequest < 23 {
		return fmt.Errorf("transfer.mtu_request must be at least 23")
	}
	if c.Transfer.MTUOverhead < 0 {
		return fmt.Errorf("transfer.mtu_overhead cannot be negative")
	}
	if c.Transfer.ThrottleEvery < 1 {
		return fmt.Errorf("transfer.throttle_every must be positive")
	}

	if c.Print.FontSize < 1 {
		return fmt.Errorf("print.font_size must be positive")
	}
	return nil
}

// LoggerConfig returns the log section in the logger package's form
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.Log.Level, Format: c.Log.Format, Output: c.Log.Output}
}

// ManagerConfig converts the loaded values into the connection manager's
// configuration. Print sequence delays keep their defaults.
func (c *Config) ManagerConfig() printer.Config {
	pc := printer.DefaultConfig()
	pc.ServiceUUID = uuid.MustParse(c.Printer.ServiceUUID)
	pc.CharacteristicUUID = uuid.MustParse(c.Printer.CharacteristicUUID)
	pc.MaxAttempts = c.Connect.MaxAttempts
	pc.SettleDelay = c.Connect.SettleDelay
	pc.DisconnectDelay = c.Connect.DisconnectDelay
	pc.RetryDelay = c.Connect.RetryDelay
	pc.ScanTimeout = c.Connect.ScanTimeout
	pc.PairingErrorSignatures = c.Connect.PairingErrorSignatures
	pc.DefaultChunkSize = c.Transfer.DefaultChunkSize
	pc.MaxChunkSize = c.Transfer.MaxChunkSize
	pc.MTURequest = c.Transfer.MTURequest
	pc.MTUOverhead = c.Transfer.MTUOverhead
	pc.ThrottleEvery = c.Transfer.ThrottleEvery
	pc.ThrottleDelay = c.Transfer.ThrottleDelay
	return pc
}
