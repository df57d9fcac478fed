package config

import (
	"time"

	"github.com/NotCoffee418/panel_bridge/pkg/types"
)

type BridgeConfig struct {
	LogLevel string         `toml:"log_level"`
	Serial   SerialConfig   `toml:"serial"`
	Terminal TerminalConfig `toml:"terminal"`
	Jobs     JobsConfig     `toml:"jobs"`
	API      APIConfig      `toml:"api"`
}

type SerialConfig struct {
	Device   string `toml:"device"`
	Baudrate uint   `toml:"baudrate"`
	DataBits uint   `toml:"data_bits"`
	// none, odd or even
	Parity         string `toml:"parity"`
	StopBits       uint   `toml:"stop_bits"`
	ReadTimeoutMs  uint   `toml:"read_timeout_ms"`
	WriteTimeoutMs uint   `toml:"write_timeout_ms"`
	RTSCTS         bool   `toml:"rtscts"`
}

type TerminalConfig struct {
	Rows            int    `toml:"rows"`
	Cols            int    `toml:"cols"`
	QuietGapMs      int    `toml:"quiet_gap_ms"`
	PollIntervalMs  int    `toml:"poll_interval_ms"`
	StepTimeoutMs   int    `toml:"step_timeout_ms"`
	LoginMarker     string `toml:"login_marker"`
	MainMenuMarker  string `toml:"main_menu_marker"`
	LoginCredential string `toml:"login_credential"`
	InterruptKey    string `toml:"interrupt_key"`
	MaxHomeAttempts int    `toml:"max_home_attempts"`
}

type JobsConfig struct {
	DefaultTimeoutMs int `toml:"default_timeout_ms"`
	QueueCapacity    int `toml:"queue_capacity"`
}

type APIConfig struct {
	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`
}

// ActionCatalog is the on-disk list of action definitions and the panel
// points that commands and group reads may touch.
type ActionCatalog struct {
	Actions []types.ActionDefinition `toml:"action"`
	Points  []types.Point            `toml:"point"`
}

// MinReadTimeoutMs is the shortest inter-character timeout the serial
// driver can express; it counts in deciseconds.
const MinReadTimeoutMs = 100

// EffectiveReadTimeoutMs is the configured read timeout raised to the
// driver minimum.
func (c SerialConfig) EffectiveReadTimeoutMs() uint {
	return max(c.ReadTimeoutMs, MinReadTimeoutMs)
}

// ReadTimeout is the longest a single drain of an idle line blocks.
func (c SerialConfig) ReadTimeout() time.Duration {
	return time.Duration(c.EffectiveReadTimeoutMs()) * time.Millisecond
}

func (c SerialConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMs) * time.Millisecond
}

func (c TerminalConfig) QuietGap() time.Duration {
	return time.Duration(c.QuietGapMs) * time.Millisecond
}

func (c TerminalConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c TerminalConfig) StepTimeout() time.Duration {
	return time.Duration(c.StepTimeoutMs) * time.Millisecond
}

func (c JobsConfig) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutMs) * time.Millisecond
}
