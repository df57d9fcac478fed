package terminal

import (
	"time"

	"github.com/NotCoffee418/panel_bridge/pkg/config"
	"github.com/NotCoffee418/panel_bridge/pkg/port_link"
	"github.com/NotCoffee418/panel_bridge/pkg/types"
)

// Keystrokes that open a group summary from the main menu.
const (
	groupMenuKey   = "G"
	summaryMenuKey = "S"
	enterKey       = "\r"
)

// Linker grants exclusive use of the panel line for one interaction.
type Linker interface {
	Interact(fn func(port_link.Session) error) error
}

type Settings struct {
	Rows            int
	Cols            int
	QuietGap        time.Duration
	PollInterval    time.Duration
	StepTimeout     time.Duration
	LoginMarker     string
	MainMenuMarker  string
	LoginCredential string
	InterruptKey    string
	MaxHomeAttempts int
}

func SettingsFromConfig(cfg config.TerminalConfig) Settings {
	return Settings{
		Rows:            cfg.Rows,
		Cols:            cfg.Cols,
		QuietGap:        cfg.QuietGap(),
		PollInterval:    cfg.PollInterval(),
		StepTimeout:     cfg.StepTimeout(),
		LoginMarker:     cfg.LoginMarker,
		MainMenuMarker:  cfg.MainMenuMarker,
		LoginCredential: cfg.LoginCredential,
		InterruptKey:    cfg.InterruptKey,
		MaxHomeAttempts: cfg.MaxHomeAttempts,
	}
}

// Capture is what one action sequence produced.
type Capture struct {
	// Screen is the rendered text after the device went quiet.
	Screen string
	// Raw is the byte transcript received during the wait.
	Raw []byte
}

type GroupRead struct {
	GroupNumber int                 `json:"group_number"`
	Points      []types.ParsedPoint `json:"points"`
	RawScreen   string              `json:"raw_screen"`
}

type CommandResult struct {
	GroupNumber  int    `json:"group_number"`
	PointNumber  int    `json:"point_number"`
	CommandType  string `json:"command_type"`
	CommandValue string `json:"command_value"`
	RawScreen    string `json:"raw_screen"`
}
