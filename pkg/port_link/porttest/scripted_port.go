// Package porttest provides in-memory serial lines for tests.
package porttest

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
)

var ErrPortClosed = errors.New("port closed")

// Responder produces device output for one write.
type Responder func(written []byte) []byte

// ScriptedPort is an in-memory serial line. Bytes queued with Push or
// produced by the responder are returned by Read; an empty queue reads as
// an idle line (0 bytes, io.EOF), the same as the real driver.
type ScriptedPort struct {
	mu        sync.Mutex
	pending   []byte
	writes    [][]byte
	closed    bool
	respond   Responder
	chunkSize int
	idleDelay time.Duration
	writeErr  error
	readErr   error
	failOnce  bool
}

func NewScriptedPort() *ScriptedPort {
	return &ScriptedPort{idleDelay: time.Millisecond}
}

// WithResponder sets the device behaviour for writes.
func (p *ScriptedPort) WithResponder(fn Responder) *ScriptedPort {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.respond = fn
	return p
}

// WithChunkSize limits how many bytes one Read returns.
func (p *ScriptedPort) WithChunkSize(n int) *ScriptedPort {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunkSize = n
	return p
}

// WithIdleDelay sets how long a Read on an idle line blocks.
func (p *ScriptedPort) WithIdleDelay(d time.Duration) *ScriptedPort {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idleDelay = d
	return p
}

// Push queues device output.
func (p *ScriptedPort) Push(data ...[]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range data {
		p.pending = append(p.pending, d...)
	}
}

// FailWrites makes writes return err. With once set only the next write fails.
func (p *ScriptedPort) FailWrites(err error, once bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
	p.failOnce = once
}

// FailReads makes every read return err until cleared with nil.
func (p *ScriptedPort) FailReads(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

// Writes returns every write in order.
func (p *ScriptedPort) Writes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.writes))
	for _, w := range p.writes {
		out = append(out, string(w))
	}
	return out
}

// Written returns all written bytes concatenated.
func (p *ScriptedPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []byte
	for _, w := range p.writes {
		out = append(out, w...)
	}
	return string(out)
}

func (p *ScriptedPort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *ScriptedPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrPortClosed
	}
	if p.readErr != nil {
		err := p.readErr
		p.mu.Unlock()
		return 0, err
	}
	if len(p.pending) == 0 {
		delay := p.idleDelay
		p.mu.Unlock()
		time.Sleep(delay)
		return 0, io.EOF
	}
	defer p.mu.Unlock()

	n := len(p.pending)
	if p.chunkSize > 0 && n > p.chunkSize {
		n = p.chunkSize
	}
	n = copy(buf, p.pending[:n])
	p.pending = p.pending[n:]
	return n, nil
}

func (p *ScriptedPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrPortClosed
	}
	if p.writeErr != nil {
		err := p.writeErr
		if p.failOnce {
			p.writeErr = nil
		}
		return 0, err
	}

	p.writes = append(p.writes, append([]byte(nil), data...))
	if p.respond != nil {
		p.pending = append(p.pending, p.respond(data)...)
	}
	return len(data), nil
}

func (p *ScriptedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *ScriptedPort) reopen() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = false
}

// Opener hands out one port across reconnects and can be told to fail.
type Opener struct {
	mu      sync.Mutex
	port    *ScriptedPort
	calls   int
	openErr []error
	options []serial.OpenOptions
}

func NewOpener(port *ScriptedPort) *Opener {
	return &Opener{port: port}
}

// FailNext queues errors for the following opens.
func (o *Opener) FailNext(errs ...error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.openErr = append(o.openErr, errs...)
}

// Open matches the signature of serial.Open.
func (o *Opener) Open(options serial.OpenOptions) (io.ReadWriteCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	o.options = append(o.options, options)
	if len(o.openErr) > 0 {
		err := o.openErr[0]
		o.openErr = o.openErr[1:]
		if err != nil {
			return nil, err
		}
	}
	o.port.reopen()
	return o.port, nil
}

func (o *Opener) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func (o *Opener) LastOptions() serial.OpenOptions {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.options) == 0 {
		return serial.OpenOptions{}
	}
	return o.options[len(o.options)-1]
}
