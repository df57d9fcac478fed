package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultBridgeConfig matches a typical panel console: 9600 8N1, ESC to
// interrupt, "PASSWORD" login prompt and a "MAIN MENU" home screen.
func DefaultBridgeConfig() *BridgeConfig {
	return &BridgeConfig{
		LogLevel: "info",
		Serial: SerialConfig{
			Device:         "/dev/ttyUSB0",
			Baudrate:       9600,
			DataBits:       8,
			Parity:         "none",
			StopBits:       1,
			ReadTimeoutMs:  100,
			WriteTimeoutMs: 1000,
		},
		Terminal: TerminalConfig{
			Rows:            24,
			Cols:            80,
			QuietGapMs:      250,
			PollIntervalMs:  20,
			StepTimeoutMs:   2000,
			LoginMarker:     "PASSWORD",
			MainMenuMarker:  "MAIN MENU",
			LoginCredential: "0000",
			InterruptKey:    "\x1b",
			MaxHomeAttempts: 5,
		},
		Jobs: JobsConfig{
			DefaultTimeoutMs: 3000,
			QueueCapacity:    1024,
		},
		API: APIConfig{
			ListenAddress: "0.0.0.0",
			ListenPort:    9040,
		},
	}
}

// LoadBridgeConfig reads the config at path, writing the defaults there first
// if no file exists yet.
func LoadBridgeConfig(path string) (*BridgeConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultBridgeConfig()
		cfgFile, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		defer cfgFile.Close()
		if err := toml.NewEncoder(cfgFile).Encode(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	// Start from defaults so omitted keys keep sane values
	cfg := DefaultBridgeConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadActionCatalog reads the action and point definitions at path. A missing file
// yields an empty catalog.
func LoadActionCatalog(path string) (*ActionCatalog, error) {
	var catalog ActionCatalog
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &catalog, nil
	}
	if _, err := toml.DecodeFile(path, &catalog); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(catalog.Actions))
	for _, action := range catalog.Actions {
		if action.Slug == "" {
			return nil, fmt.Errorf("%s: action %q has no slug", path, action.Name)
		}
		if seen[action.Slug] {
			return nil, fmt.Errorf("%s: duplicate action slug %q", path, action.Slug)
		}
		seen[action.Slug] = true
	}

	points := make(map[[2]int]bool, len(catalog.Points))
	for _, p := range catalog.Points {
		if p.GroupNumber < 1 || p.PointNumber < 1 {
			return nil, fmt.Errorf("%s: point %q needs a positive group and point number", path, p.Name)
		}
		key := [2]int{p.GroupNumber, p.PointNumber}
		if points[key] {
			return nil, fmt.Errorf("%s: duplicate point %d/%d", path, p.GroupNumber, p.PointNumber)
		}
		points[key] = true
	}
	return &catalog, nil
}

func (c *BridgeConfig) Validate() error {
	var errs []error
	if c.Serial.Device == "" {
		errs = append(errs, errors.New("serial.device is required"))
	}
	if c.Serial.Baudrate == 0 {
		errs = append(errs, errors.New("serial.baudrate must be positive"))
	}
	if c.Serial.DataBits < 5 || c.Serial.DataBits > 8 {
		errs = append(errs, fmt.Errorf("serial.data_bits %d out of range [5, 8]", c.Serial.DataBits))
	}
	switch c.Serial.Parity {
	case "none", "odd", "even":
	default:
		errs = append(errs, fmt.Errorf("serial.parity %q must be none, odd or even", c.Serial.Parity))
	}
	if c.Serial.StopBits != 1 && c.Serial.StopBits != 2 {
		errs = append(errs, fmt.Errorf("serial.stop_bits %d must be 1 or 2", c.Serial.StopBits))
	}
	if c.Terminal.Rows < 1 || c.Terminal.Cols < 1 {
		errs = append(errs, fmt.Errorf("terminal size %dx%d is invalid", c.Terminal.Rows, c.Terminal.Cols))
	}
	if c.Terminal.QuietGapMs <= 0 {
		errs = append(errs, errors.New("terminal.quiet_gap_ms must be positive"))
	} else if c.Serial.ReadTimeout() >= c.Terminal.QuietGap() {
		// a drain may block for the whole read timeout
		errs = append(errs, fmt.Errorf("serial.read_timeout_ms %d (at least %d) must be below terminal.quiet_gap_ms %d",
			c.Serial.ReadTimeoutMs, MinReadTimeoutMs, c.Terminal.QuietGapMs))
	}
	if c.Terminal.MaxHomeAttempts < 1 {
		errs = append(errs, errors.New("terminal.max_home_attempts must be at least 1"))
	}
	if c.Jobs.DefaultTimeoutMs <= 0 {
		errs = append(errs, errors.New("jobs.default_timeout_ms must be positive"))
	}
	if c.Jobs.QueueCapacity < 1 {
		errs = append(errs, errors.New("jobs.queue_capacity must be at least 1"))
	}
	return errors.Join(errs...)
}
