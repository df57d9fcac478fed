package port_link

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NotCoffee418/panel_bridge/pkg/logger"
	"github.com/jacobsa/go-serial/serial"
)

// PortOpener opens the physical line. Tests replace it with scripted ports.
type PortOpener func(options serial.OpenOptions) (io.ReadWriteCloser, error)

// PortLink owns the exclusive handle to the panel's serial line.
type PortLink struct {
	options      serial.OpenOptions
	writeTimeout time.Duration
	opener       PortOpener
	logger       logger.Logger

	// mu is held for an entire interaction, never re-entered.
	mu      sync.Mutex
	port    io.ReadWriteCloser
	readBuf []byte

	metrics LinkMetrics
}

// Session is the view of the line handed to an interaction while the
// link lock is held.
type Session interface {
	// Send writes all of data to the line.
	Send(data []byte) error
	// Drain returns the bytes currently available. An idle line yields an
	// empty slice and no error.
	Drain() ([]byte, error)
	// DiscardPending drops stale unread input.
	DiscardPending() error
}

// LinkMetrics are atomic counters usable as prometheus CounterFunc values.
type LinkMetrics struct {
	OpenCount      atomic.Uint64
	ReconnectCount atomic.Uint64
	TransportErrs  atomic.Uint64
	BytesSent      atomic.Uint64
	BytesReceived  atomic.Uint64
}
