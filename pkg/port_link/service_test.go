package port_link

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NotCoffee418/panel_bridge/pkg/config"
	"github.com/NotCoffee418/panel_bridge/pkg/port_link/porttest"
	"github.com/NotCoffee418/panel_bridge/pkg/types"
	"github.com/jacobsa/go-serial/serial"
	"github.com/stretchr/testify/require"
)

var errLineDown = errors.New("input/output error")

func newTestLink(port *porttest.ScriptedPort) (*PortLink, *porttest.Opener) {
	opener := porttest.NewOpener(port)
	link := NewPortLink(serial.OpenOptions{PortName: "/dev/ttyTEST", BaudRate: 9600}, WithOpener(opener.Open))
	return link, opener
}

func TestAcquireIsIdempotent(t *testing.T) {
	r := require.New(t)
	link, opener := newTestLink(porttest.NewScriptedPort())

	r.NoError(link.Acquire())
	r.NoError(link.Acquire())
	r.Equal(1, opener.Calls())
	r.EqualValues(1, link.Metrics().OpenCount.Load())
}

func TestInteractSendAndDrain(t *testing.T) {
	r := require.New(t)
	port := porttest.NewScriptedPort().WithResponder(func(written []byte) []byte {
		return []byte("ACK " + string(written))
	})
	link, _ := newTestLink(port)

	var got []byte
	err := link.Interact(func(s Session) error {
		if err := s.Send([]byte("ping")); err != nil {
			return err
		}
		data, err := s.Drain()
		got = data
		return err
	})
	r.NoError(err)
	r.Equal("ACK ping", string(got))
	r.EqualValues(4, link.Metrics().BytesSent.Load())
	r.EqualValues(8, link.Metrics().BytesReceived.Load())
}

func TestDrainIdleLineIsNotAnError(t *testing.T) {
	r := require.New(t)
	link, _ := newTestLink(porttest.NewScriptedPort())

	err := link.Interact(func(s Session) error {
		data, err := s.Drain()
		r.Empty(data)
		return err
	})
	r.NoError(err)
}

func TestInteractRetriesOnceAfterTransportFailure(t *testing.T) {
	r := require.New(t)
	port := porttest.NewScriptedPort()
	port.FailWrites(errLineDown, true)
	link, opener := newTestLink(port)

	attempts := 0
	err := link.Interact(func(s Session) error {
		attempts++
		return s.Send([]byte("G"))
	})
	r.NoError(err)
	r.Equal(2, attempts)
	r.Equal(2, opener.Calls())
	r.Equal([]string{"G"}, port.Writes())
	r.EqualValues(1, link.Metrics().ReconnectCount.Load())
}

func TestInteractSecondFailureIsTransportError(t *testing.T) {
	r := require.New(t)
	port := porttest.NewScriptedPort()
	port.FailReads(errLineDown)
	link, opener := newTestLink(port)

	attempts := 0
	err := link.Interact(func(s Session) error {
		attempts++
		_, err := s.Drain()
		return err
	})
	r.ErrorIs(err, types.ErrTransport)
	r.ErrorIs(err, errLineDown)
	r.Equal(2, attempts)
	r.Equal(2, opener.Calls())
	r.True(port.Closed())
}

func TestInteractOpenFailureIsRetried(t *testing.T) {
	r := require.New(t)
	port := porttest.NewScriptedPort()
	link, opener := newTestLink(port)
	opener.FailNext(errLineDown)

	err := link.Interact(func(s Session) error {
		return s.Send([]byte("x"))
	})
	r.NoError(err)
	r.Equal(2, opener.Calls())
}

func TestInteractDoesNotRetryOtherErrors(t *testing.T) {
	r := require.New(t)
	link, opener := newTestLink(porttest.NewScriptedPort())

	attempts := 0
	err := link.Interact(func(s Session) error {
		attempts++
		return types.ErrProtocolTimeout
	})
	r.ErrorIs(err, types.ErrProtocolTimeout)
	r.Equal(1, attempts)
	r.Equal(1, opener.Calls())
}

func TestInteractionsNeverOverlap(t *testing.T) {
	r := require.New(t)
	link, _ := newTestLink(porttest.NewScriptedPort())

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = link.Interact(func(s Session) error {
				n := active.Add(1)
				for {
					m := maxActive.Load()
					if n <= m || maxActive.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	r.EqualValues(1, maxActive.Load())
}

func TestResetClosesPort(t *testing.T) {
	r := require.New(t)
	port := porttest.NewScriptedPort()
	link, opener := newTestLink(port)

	r.NoError(link.Acquire())
	link.Reset()
	r.True(port.Closed())

	r.NoError(link.Acquire())
	r.Equal(2, opener.Calls())
	r.False(port.Closed())
}

func TestDiscardPendingDropsStaleInput(t *testing.T) {
	r := require.New(t)
	port := porttest.NewScriptedPort().WithChunkSize(4)
	port.Push([]byte("stale output"))
	link, _ := newTestLink(port)

	err := link.Interact(func(s Session) error {
		if err := s.DiscardPending(); err != nil {
			return err
		}
		data, err := s.Drain()
		r.Empty(data)
		return err
	})
	r.NoError(err)
}

func TestOpenOptionsFromConfig(t *testing.T) {
	r := require.New(t)

	opts, err := OpenOptionsFromConfig(config.SerialConfig{
		Device:        "/dev/ttyUSB1",
		Baudrate:      19200,
		DataBits:      7,
		Parity:        "even",
		StopBits:      2,
		ReadTimeoutMs: 40,
		RTSCTS:        true,
	})
	r.NoError(err)
	r.Equal("/dev/ttyUSB1", opts.PortName)
	r.Equal(uint(19200), opts.BaudRate)
	r.Equal(uint(7), opts.DataBits)
	r.Equal(uint(2), opts.StopBits)
	r.Equal(serial.PARITY_EVEN, opts.ParityMode)
	r.Equal(uint(100), opts.InterCharacterTimeout)
	r.True(opts.RTSCTSFlowControl)

	_, err = OpenOptionsFromConfig(config.SerialConfig{Parity: "mark"})
	r.Error(err)
}
