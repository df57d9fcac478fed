package port_link

import (
	"fmt"
	"time"

	"github.com/NotCoffee418/panel_bridge/pkg/config"
	"github.com/NotCoffee418/panel_bridge/pkg/logger"
	"github.com/jacobsa/go-serial/serial"
)

// LinkOption customises a PortLink.
type LinkOption func(*PortLink)

// WithOpener replaces serial.Open.
func WithOpener(opener PortOpener) LinkOption {
	return func(l *PortLink) {
		l.opener = opener
	}
}

func WithLogger(log logger.Logger) LinkOption {
	return func(l *PortLink) {
		if log != nil {
			l.logger = log
		}
	}
}

// WithWriteTimeout bounds a single write. Zero disables the bound.
func WithWriteTimeout(d time.Duration) LinkOption {
	return func(l *PortLink) {
		l.writeTimeout = d
	}
}

// OpenOptionsFromConfig translates the [serial] config section.
func OpenOptionsFromConfig(cfg config.SerialConfig) (serial.OpenOptions, error) {
	parity, err := parseParity(cfg.Parity)
	if err != nil {
		return serial.OpenOptions{}, err
	}

	return serial.OpenOptions{
		PortName:              cfg.Device,
		BaudRate:              cfg.Baudrate,
		DataBits:              cfg.DataBits,
		StopBits:              cfg.StopBits,
		ParityMode:            parity,
		RTSCTSFlowControl:     cfg.RTSCTS,
		InterCharacterTimeout: cfg.EffectiveReadTimeoutMs(),
		MinimumReadSize:       0,
	}, nil
}

func parseParity(name string) (serial.ParityMode, error) {
	switch name {
	case "", "none":
		return serial.PARITY_NONE, nil
	case "odd":
		return serial.PARITY_ODD, nil
	case "even":
		return serial.PARITY_EVEN, nil
	default:
		return serial.PARITY_NONE, fmt.Errorf("unsupported parity %q", name)
	}
}
