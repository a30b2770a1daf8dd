package modem

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

//go:generate go tool mockgen -destination=mock_transport_test.go -package=modem . Transport,Dialer

// Transport represents an established, bidirectional byte stream to the modem.
//
// A Transport is assumed to be already connected and ready for use. Read must
// return (0, nil) when no data arrived within its own read timeout, the way
// a serial port opened with a read timeout behaves; the Modem keeps its own
// deadline on top of it.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to the modem.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port or a test double) and is used during modem construction only.
// Once a Transport is obtained, the Dialer is no longer needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It may
	// perform blocking operations and should respect cancellation and deadlines
	// provided by the context. Dial returns an error if the transport cannot be
	// established.
	Dial(ctx context.Context) (Transport, error)
}

// DefaultReadTimeout is the per read timeout set on serial ports.
const DefaultReadTimeout = 50 * time.Millisecond

// SerialDialer opens the modem over a serial port using go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, e.g. "/dev/ttyS0".
	PortName string
	// BaudRate is used when Mode is nil. Zero means 115200.
	BaudRate int
	// Mode overrides the 8N1 default.
	Mode *serial.Mode
	// ReadTimeout is the per read timeout. Zero means DefaultReadTimeout.
	ReadTimeout time.Duration
}

// Dial opens the port and sets its read timeout, so that reads return
// (0, nil) when the modem is silent.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("modem: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("modem: serial port name is required")
	}
	if d.ReadTimeout < 0 {
		return nil, errors.Errorf("modem: negative read timeout %s", d.ReadTimeout)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	port, err := serial.Open(d.PortName, d.mode())
	if err != nil {
		return nil, errors.Wrapf(err, "modem: open serial port %s", d.PortName)
	}

	if err := port.SetReadTimeout(d.readTimeout()); err != nil {
		port.Close()
		return nil, errors.Wrapf(err, "modem: set read timeout on %s", d.PortName)
	}
	return port, nil
}

// mode returns Mode, or 8N1 at BaudRate when Mode is nil.
func (d SerialDialer) mode() *serial.Mode {
	if d.Mode != nil {
		return d.Mode
	}
	baud := d.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	return &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
}

func (d SerialDialer) readTimeout() time.Duration {
	if d.ReadTimeout == 0 {
		return DefaultReadTimeout
	}
	return d.ReadTimeout
}
