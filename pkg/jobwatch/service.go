package jobwatch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/NotCoffee418/panel_bridge/pkg/logger"
	"github.com/NotCoffee418/panel_bridge/pkg/types"
	"github.com/gorilla/websocket"
)

var ErrGaveUp = errors.New("gave up reconnecting to job stream")

// Watcher follows the bridge's job event stream and calls handler for each
// decoded job update, reconnecting with exponential backoff.
type Watcher struct {
	url     url.URL
	handler func(job *types.Job)
	logger  logger.Logger

	maxRetries     int
	baseRetryDelay time.Duration
	maxRetryDelay  time.Duration
	readTimeout    time.Duration
}

type Option func(*Watcher)

// WithBackoff overrides the retry schedule.
func WithBackoff(base, max time.Duration, retries int) Option {
	return func(w *Watcher) {
		w.baseRetryDelay = base
		w.maxRetryDelay = max
		w.maxRetries = retries
	}
}

// WithReadTimeout sets how long a silent connection is trusted. The bridge
// pings well inside the default.
func WithReadTimeout(d time.Duration) Option {
	return func(w *Watcher) {
		w.readTimeout = d
	}
}

func WithLogger(log logger.Logger) Option {
	return func(w *Watcher) {
		if log != nil {
			w.logger = log
		}
	}
}

func NewWatcher(host string, handler func(job *types.Job), opts ...Option) *Watcher {
	w := &Watcher{
		url:            url.URL{Scheme: "ws", Host: host, Path: "/ws"},
		handler:        handler,
		logger:         logger.GetLogger(),
		maxRetries:     10,
		baseRetryDelay: 2 * time.Second,
		maxRetryDelay:  60 * time.Second,
		readTimeout:    60 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until ctx is done or reconnecting is abandoned.
func (w *Watcher) Run(ctx context.Context) error {
	retryCount := 0

	for {
		if retryCount > 0 {
			retryDelay := min(time.Duration(1<<retryCount)*w.baseRetryDelay, w.maxRetryDelay)
			w.logger.Info("retrying connection", "delay", retryDelay, "attempt", retryCount+1, "max_attempts", w.maxRetries)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil
			}
		}

		w.logger.Info("connecting to job stream", "url", w.url.String())
		dialer := *websocket.DefaultDialer
		dialer.HandshakeTimeout = 10 * time.Second
		conn, _, err := dialer.DialContext(ctx, w.url.String(), nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			retryCount++
			w.logger.Warn("connection failed", "error", err)
			if retryCount >= w.maxRetries {
				return fmt.Errorf("%w after %d attempts: %w", ErrGaveUp, retryCount, err)
			}
			continue
		}

		w.logger.Info("connected, following job updates")
		retryCount = 0

		broken := w.handleConnection(ctx, conn)
		conn.Close()
		if !broken {
			return nil
		}
		w.logger.Warn("connection lost, will retry")
		retryCount = 1
	}
}

// handleConnection reports whether the connection broke, as opposed to a
// requested shutdown.
func (w *Watcher) handleConnection(ctx context.Context, conn *websocket.Conn) bool {
	done := make(chan struct{})

	conn.SetReadDeadline(time.Now().Add(w.readTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(w.readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					w.logger.Warn("websocket error", "error", err)
				} else {
					w.logger.Info("connection closed", "error", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(w.readTimeout))

			if messageType != websocket.TextMessage {
				w.logger.Debug("ignoring non-text message", "type", messageType)
				continue
			}
			job := types.JobFromJsonBytes(message)
			if job == nil {
				w.logger.Warn("failed to parse job update", "message", string(message))
				continue
			}
			w.handler(job)
		}
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		w.logger.Info("shutting down, closing connection")
		err := conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		if err != nil {
			w.logger.Debug("error sending close message", "error", err)
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return false
	}
}
