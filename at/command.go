package at

import (
	"bytes"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidCommand is returned by Frame when a command cannot be put
	// on the wire as given: an empty body, or a framed body that already
	// carries the CR terminator.
	ErrInvalidCommand = errors.New("at: invalid command")
)

// Mode tells Frame how to treat a command body.
type Mode int

const (
	// Framed commands hold only the body, e.g. "CGNSINF". Frame adds the
	// "AT+" prefix and the CR terminator.
	Framed Mode = iota
	// Raw commands hold the complete wire bytes, terminator included.
	Raw
)

func (m Mode) String() string {
	if m == Raw {
		return "raw"
	}
	return "framed"
}

// Command is a single logical instruction for the modem.
type Command struct {
	Mode Mode
	Body []byte
}

// Cmd returns a framed command for body.
func Cmd(body string) Command {
	return Command{Mode: Framed, Body: []byte(body)}
}

// RawCmd returns a raw command sending b verbatim.
func RawCmd(b []byte) Command {
	return Command{Mode: Raw, Body: b}
}

func (c Command) String() string {
	if c.Mode == Framed {
		return Prefix + string(c.Body)
	}
	return string(bytes.TrimRight(c.Body, CRLF))
}

// Frame turns c into the bytes written to the link.
func Frame(c Command) ([]byte, error) {
	if len(c.Body) == 0 {
		return nil, errors.Wrapf(ErrInvalidCommand, "empty %s command", c.Mode)
	}
	if c.Mode == Raw {
		return c.Body, nil
	}
	if bytes.Contains(c.Body, []byte(CR)) {
		return nil, errors.Wrapf(ErrInvalidCommand, "body %q contains the terminator", c.Body)
	}

	wire := make([]byte, 0, len(Prefix)+len(c.Body)+len(CR))
	wire = append(wire, Prefix...)
	wire = append(wire, c.Body...)
	wire = append(wire, CR...)
	return wire, nil
}
