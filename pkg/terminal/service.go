package terminal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/NotCoffee418/panel_bridge/pkg/extractor"
	"github.com/NotCoffee418/panel_bridge/pkg/logger"
	"github.com/NotCoffee418/panel_bridge/pkg/port_link"
	"github.com/NotCoffee418/panel_bridge/pkg/screen"
	"github.com/NotCoffee418/panel_bridge/pkg/types"
)

// Navigator drives the panel's menus. Every public method holds the link
// for exactly one interaction.
type Navigator struct {
	link     Linker
	settings Settings
	logger   logger.Logger

	// screen is only touched while the link is held.
	screen *screen.Buffer
}

func NewNavigator(link Linker, settings Settings, log logger.Logger) *Navigator {
	if settings.MaxHomeAttempts < 1 {
		settings.MaxHomeAttempts = 5
	}
	if settings.InterruptKey == "" {
		settings.InterruptKey = "\x1b"
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Navigator{
		link:     link,
		settings: settings,
		logger:   log.With("component", "navigator"),
		screen:   screen.NewBuffer(settings.Rows, settings.Cols),
	}
}

// ExecuteSequence sends input to a fresh screen and waits for the device to
// go quiet within timeout.
func (n *Navigator) ExecuteSequence(ctx context.Context, input string, timeout time.Duration) (*Capture, error) {
	var capture *Capture
	err := n.link.Interact(func(s port_link.Session) error {
		n.screen.Reset()
		if err := s.DiscardPending(); err != nil {
			return err
		}
		if err := s.Send([]byte(input)); err != nil {
			return err
		}

		raw, err := n.waitForQuiet(ctx, s, timeout)
		capture = &Capture{Screen: n.screen.Text(), Raw: raw}
		return err
	})
	return capture, err
}

// ReachHome returns the main menu screen, or the last screen seen when the
// menu was not recognised.
func (n *Navigator) ReachHome(ctx context.Context) (string, error) {
	var text string
	err := n.link.Interact(func(s port_link.Session) error {
		var err error
		text, err = n.reachHome(ctx, s)
		return err
	})
	return text, err
}

// OpenGroupSummary navigates home and opens the summary for group.
func (n *Navigator) OpenGroupSummary(ctx context.Context, group int) (string, error) {
	var text string
	err := n.link.Interact(func(s port_link.Session) error {
		var err error
		text, err = n.openGroupSummary(ctx, s, group)
		return err
	})
	return text, err
}

// ReadGroup opens a group summary and parses its rows.
func (n *Navigator) ReadGroup(ctx context.Context, group int) (*GroupRead, error) {
	text, err := n.OpenGroupSummary(ctx, group)
	if err != nil {
		return nil, err
	}
	return &GroupRead{
		GroupNumber: group,
		Points:      extractor.ParseGroupSummary(text),
		RawScreen:   text,
	}, nil
}

// SelectAndCommand opens a group summary, selects point and enters the
// command type and value, each followed by a carriage return.
func (n *Navigator) SelectAndCommand(ctx context.Context, group, point int, commandType, commandValue string) (*CommandResult, error) {
	result := &CommandResult{
		GroupNumber:  group,
		PointNumber:  point,
		CommandType:  commandType,
		CommandValue: commandValue,
	}
	err := n.link.Interact(func(s port_link.Session) error {
		if _, err := n.openGroupSummary(ctx, s, group); err != nil {
			return err
		}

		if err := n.sendLine(s, strconv.Itoa(point)); err != nil {
			return err
		}
		if err := n.settle(ctx, s); err != nil {
			return err
		}
		if err := n.sendLine(s, commandType); err != nil {
			return err
		}
		if err := n.settle(ctx, s); err != nil {
			return err
		}
		if err := n.sendLine(s, commandValue); err != nil {
			return err
		}
		if _, err := n.waitForQuiet(ctx, s, n.settings.StepTimeout); err != nil {
			return err
		}

		result.RawScreen = n.screen.Text()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// reachHome starts from a blank screen so markers left by an earlier
// operation cannot be mistaken for the current one.
func (n *Navigator) reachHome(ctx context.Context, s port_link.Session) (string, error) {
	n.screen.Reset()
	received := false
	for attempt := 1; attempt <= n.settings.MaxHomeAttempts; attempt++ {
		if err := s.Send([]byte(n.settings.InterruptKey)); err != nil {
			return "", err
		}
		raw, err := n.waitForQuiet(ctx, s, n.settings.StepTimeout)
		if err != nil && !errors.Is(err, types.ErrProtocolTimeout) {
			return "", err
		}
		received = received || len(raw) > 0

		text := n.screen.Text()
		if n.settings.LoginMarker != "" && strings.Contains(text, n.settings.LoginMarker) {
			text, err = n.login(ctx, s, text)
			if err != nil {
				return "", err
			}
		}
		if strings.Contains(text, n.settings.MainMenuMarker) {
			n.logger.Debug("main menu reached", "attempt", attempt)
			return text, nil
		}
		n.logger.Debug("unrecognised screen while seeking main menu", "attempt", attempt)
	}

	raw, err := n.waitForQuiet(ctx, s, n.settings.StepTimeout)
	if err != nil && !errors.Is(err, types.ErrProtocolTimeout) {
		return "", err
	}
	if !received && len(raw) == 0 {
		return "", fmt.Errorf("%w: panel did not respond to %d interrupts", types.ErrProtocolTimeout, n.settings.MaxHomeAttempts)
	}

	n.logger.Warn("main menu not recognised, using last screen", "attempts", n.settings.MaxHomeAttempts)
	return n.screen.Text(), nil
}

func (n *Navigator) login(ctx context.Context, s port_link.Session, text string) (string, error) {
	if n.settings.LoginCredential == "" {
		n.logger.Warn("login prompt shown but no credential configured")
		return text, nil
	}

	n.logger.Info("login prompt detected, sending credential")
	if err := n.sendLine(s, n.settings.LoginCredential); err != nil {
		return "", err
	}
	if err := n.settle(ctx, s); err != nil {
		return "", err
	}
	return n.screen.Text(), nil
}

func (n *Navigator) openGroupSummary(ctx context.Context, s port_link.Session, group int) (string, error) {
	if _, err := n.reachHome(ctx, s); err != nil {
		return "", err
	}

	for _, key := range []string{groupMenuKey, summaryMenuKey, strconv.Itoa(group), enterKey} {
		if err := s.Send([]byte(key)); err != nil {
			return "", err
		}
	}
	if _, err := n.waitForQuiet(ctx, s, n.settings.StepTimeout); err != nil {
		return "", err
	}
	return n.screen.Text(), nil
}

func (n *Navigator) sendLine(s port_link.Session, text string) error {
	return s.Send([]byte(text + enterKey))
}

// settle waits for an intermediate screen. Not reaching quiet is tolerated
// since some prompts echo nothing.
func (n *Navigator) settle(ctx context.Context, s port_link.Session) error {
	_, err := n.waitForQuiet(ctx, s, n.settings.StepTimeout)
	if errors.Is(err, types.ErrProtocolTimeout) {
		n.logger.Debug("intermediate screen did not settle", "error", err)
		return nil
	}
	return err
}

// waitForQuiet feeds incoming bytes into the screen until none arrive for
// the quiet gap or budget runs out. Quiet only counts once a byte has
// arrived, so a silent device always ends in a protocol timeout.
func (n *Navigator) waitForQuiet(ctx context.Context, s port_link.Session, budget time.Duration) ([]byte, error) {
	var raw []byte
	start := time.Now()
	var lastData time.Time

	for {
		if err := ctx.Err(); err != nil {
			return raw, contextErr(err)
		}

		data, err := s.Drain()
		if err != nil {
			return raw, err
		}

		now := time.Now()
		if len(data) > 0 {
			n.screen.Feed(data)
			raw = append(raw, data...)
			lastData = now
		}

		if len(raw) > 0 && now.Sub(lastData) >= n.settings.QuietGap {
			n.logger.Debug("screen settled", "bytes", len(raw), "elapsed", now.Sub(start), "raw", string(raw))
			return raw, nil
		}
		if elapsed := now.Sub(start); elapsed >= budget {
			return raw, fmt.Errorf("%w: device not quiet after %s (%d bytes)", types.ErrProtocolTimeout, elapsed.Round(time.Millisecond), len(raw))
		}

		if len(data) == 0 {
			pause := min(n.settings.PollInterval, budget-now.Sub(start))
			if pause > 0 {
				if err := sleepCtx(ctx, pause); err != nil {
					return raw, contextErr(err)
				}
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func contextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", types.ErrProtocolTimeout, err)
	}
	return err
}
