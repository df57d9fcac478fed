package port_link

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/NotCoffee418/panel_bridge/pkg/logger"
	"github.com/NotCoffee418/panel_bridge/pkg/types"
	"github.com/jacobsa/go-serial/serial"
)

const (
	readBufferSize = 1024
	// maxDiscardReads bounds DiscardPending on a chatty line.
	maxDiscardReads = 16
)

var ErrPortNotOpen = errors.New("serial port not open")

// NewPortLink creates a link for the given port options. The port is opened
// lazily by Acquire or the first Interact.
func NewPortLink(options serial.OpenOptions, opts ...LinkOption) *PortLink {
	link := &PortLink{
		options: options,
		opener:  serial.Open,
		logger:  logger.GetLogger(),
		readBuf: make([]byte, readBufferSize),
	}
	for _, opt := range opts {
		opt(link)
	}
	link.logger = link.logger.With("port", options.PortName)
	return link
}

// Acquire opens the port if it is not open already.
func (l *PortLink) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquireLocked()
}

// Reset force-closes the port and forgets the handle.
func (l *PortLink) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked()
}

// Close is Reset for use in defer chains.
func (l *PortLink) Close() error {
	l.Reset()
	return nil
}

// Metrics exposes the link counters.
func (l *PortLink) Metrics() *LinkMetrics {
	return &l.metrics
}

// Interact runs fn with exclusive use of the line. A transport failure
// closes and reopens the port and runs fn once more; a second failure is
// returned to the caller. Other errors are returned as they are.
func (l *PortLink) Interact(fn func(Session) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.attemptLocked(fn)
	if !errors.Is(err, types.ErrTransport) {
		return err
	}

	l.logger.Warn("transport failure, reconnecting", "error", err)
	l.resetLocked()
	l.metrics.ReconnectCount.Add(1)

	err = l.attemptLocked(fn)
	if errors.Is(err, types.ErrTransport) {
		l.logger.Error("transport failure after reconnect", "error", err)
		l.resetLocked()
	}
	return err
}

func (l *PortLink) attemptLocked(fn func(Session) error) error {
	if err := l.acquireLocked(); err != nil {
		return err
	}
	return fn(&linkSession{link: l})
}

func (l *PortLink) acquireLocked() error {
	if l.port != nil {
		return nil
	}

	port, err := l.opener(l.options)
	if err != nil {
		l.metrics.TransportErrs.Add(1)
		return fmt.Errorf("%w: failed to open serial port: %w", types.ErrTransport, err)
	}

	l.port = port
	l.metrics.OpenCount.Add(1)
	l.logger.Info("connected to panel port", "baudrate", l.options.BaudRate)
	return nil
}

func (l *PortLink) resetLocked() {
	if l.port == nil {
		return
	}
	if err := l.port.Close(); err != nil {
		l.logger.Debug("error closing serial port", "error", err)
	}
	l.port = nil
	l.logger.Info("disconnected from panel port")
}

func (l *PortLink) transportErr(op string, err error) error {
	l.metrics.TransportErrs.Add(1)
	return fmt.Errorf("%w: %s: %w", types.ErrTransport, op, err)
}

type linkSession struct {
	link *PortLink
}

func (s *linkSession) Send(data []byte) error {
	l := s.link
	if l.port == nil {
		return l.transportErr("write", ErrPortNotOpen)
	}
	if len(data) == 0 {
		return nil
	}

	if err := l.writeAll(data); err != nil {
		return l.transportErr("write", err)
	}
	l.metrics.BytesSent.Add(uint64(len(data)))
	return nil
}

func (s *linkSession) Drain() ([]byte, error) {
	l := s.link
	if l.port == nil {
		return nil, l.transportErr("read", ErrPortNotOpen)
	}

	n, err := l.port.Read(l.readBuf)
	// The driver reports an expired inter-character timeout as EOF.
	if err != nil && !(errors.Is(err, io.EOF) && n == 0) {
		return nil, l.transportErr("read", err)
	}
	if n == 0 {
		return nil, nil
	}

	l.metrics.BytesReceived.Add(uint64(n))
	out := make([]byte, n)
	copy(out, l.readBuf[:n])
	return out, nil
}

func (s *linkSession) DiscardPending() error {
	for range maxDiscardReads {
		data, err := s.Drain()
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return nil
		}
		s.link.logger.Debug("discarded stale input", "bytes", len(data))
	}
	return nil
}

// writeAll writes data, bounded by the write timeout when one is set. A
// timed out write is left to finish on its own; the caller resets the port.
func (l *PortLink) writeAll(data []byte) error {
	if l.writeTimeout <= 0 {
		return writeFull(l.port, data)
	}

	done := make(chan error, 1)
	port := l.port
	go func() {
		done <- writeFull(port, data)
	}()

	timer := time.NewTimer(l.writeTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("write timed out after %s", l.writeTimeout)
	}
}

func writeFull(w io.Writer, data []byte) error {
	for written := 0; written < len(data); {
		n, err := w.Write(data[written:])
		written += n
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}
