package at

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrLinkTimeout is returned by ReadResponse when no terminal line arrives
// before the timeout. It is never a device error: the modem may be off,
// busy, or the link may be broken.
var ErrLinkTimeout = errors.New("at: no terminal response before timeout")

// StatusKind is the outcome carried by the terminal line of a response.
type StatusKind int

const (
	// StatusUnknown covers terminal lines that are neither OK nor an error:
	// the SMS prompt and the call progress finals (NO CARRIER, BUSY...).
	StatusUnknown StatusKind = iota
	StatusOK
	StatusError
)

func (k StatusKind) String() string {
	switch k {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is derived from the terminal line of a response only.
type Status struct {
	Kind StatusKind
	// Code is the vendor error code of a +CME/+CMS ERROR line. Empty for
	// a plain ERROR.
	Code string
}

func (s Status) String() string {
	if s.Code != "" {
		return s.Kind.String() + " " + s.Code
	}
	return s.Kind.String()
}

// StatusOf classifies a terminal line.
func StatusOf(line string) Status {
	switch {
	case line == OK:
		return Status{Kind: StatusOK}
	case line == ERROR:
		return Status{Kind: StatusError}
	}
	if code, ok := ErrorCode(line); ok {
		return Status{Kind: StatusError, Code: code}
	}
	return Status{Kind: StatusUnknown}
}

// Response is what the modem answered to a single command.
type Response struct {
	// Lines holds every non-empty line before the terminal one, in the
	// order the modem emitted them, echo excluded. Unsolicited result
	// codes interleaved with the response are kept.
	Lines []string
	// Status is taken from the terminal line alone.
	Status Status
	// Final is the terminal line as received.
	Final string
}

// OK reports whether the response ended with OK.
func (r Response) OK() bool {
	return r.Status.Kind == StatusOK
}

// Prompt reports whether the response ended with the SMS input prompt.
func (r Response) Prompt() bool {
	return r.Final == Prompt
}

// Line returns the first payload line starting with prefix, with the prefix
// and surrounding blanks removed.
func (r Response) Line(prefix string) (string, bool) {
	for _, l := range r.Lines {
		if strings.HasPrefix(l, prefix) {
			return strings.TrimSpace(l[len(prefix):]), true
		}
	}
	return "", false
}

type parseState int

const (
	waitingFirstLine parseState = iota
	collecting
	done
)

const readChunk = 256

// promptCommands are answered with the SMS input prompt instead of a final
// result code.
var promptCommands = []string{"+CMGS=", "+CMGW="}

func awaitsPrompt(cmd string) bool {
	for _, c := range promptCommands {
		if strings.Contains(cmd, c) {
			return true
		}
	}
	return false
}

// Reader collects responses from the link. Bytes that arrive after a
// terminal line are kept for the next call.
//
// The underlying reader is expected to return (0, nil) when its own read
// timeout elapses without data, the way a serial port configured with a
// read timeout does. Any error aborts the current response.
type Reader struct {
	r   io.Reader
	buf []byte
	tmp []byte
}

// NewReader returns a Reader pulling bytes from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:   r,
		tmp: make([]byte, readChunk),
	}
}

// Buffered returns the number of bytes read from the link but not yet
// consumed.
func (rd *Reader) Buffered() int {
	return len(rd.buf)
}

// Discard drops everything buffered so far.
func (rd *Reader) Discard() {
	rd.buf = rd.buf[:0]
}

// ReadResponse collects lines until a terminal line is seen or timeout
// elapses. sent is the command just written; when the first non-empty line
// repeats it byte for byte (modem echo enabled) that line is dropped.
//
// The SMS prompt ends the response only for commands that ask for one
// (+CMGS, +CMGW). For every other command "> " is ordinary text, such as a
// quoted reply in a stored message.
func (rd *Reader) ReadResponse(sent []byte, timeout time.Duration) (Response, error) {
	echo := strings.TrimRight(string(sent), CRLF)
	prompt := awaitsPrompt(echo)
	deadline := time.Now().Add(timeout)
	state := waitingFirstLine

	var resp Response
	for state != done {
		line, ok := rd.next(prompt)
		if !ok {
			if !time.Now().Before(deadline) {
				return Response{}, errors.Wrapf(ErrLinkTimeout, "%q after %s", echo, timeout)
			}
			if err := rd.fill(); err != nil {
				return Response{}, err
			}
			continue
		}

		if strings.TrimRight(line, CR) == "" {
			continue
		}
		if state == waitingFirstLine {
			state = collecting
			if strings.TrimRight(line, CR) == echo {
				continue
			}
		}

		kind := Classify(line)
		if kind == TypePrompt && !prompt {
			kind = TypeData
		}
		switch kind {
		case TypeFinal, TypePrompt:
			resp.Status = StatusOf(line)
			resp.Final = line
			state = done
		default:
			resp.Lines = append(resp.Lines, line)
		}
	}
	return resp, nil
}

// next pops one token off the buffer. The prompt is only split off as its
// own token when prompt is set.
func (rd *Reader) next(prompt bool) (string, bool) {
	split := splitLines
	if prompt {
		split = Splitter
	}
	advance, token, _ := split(rd.buf, false)
	if advance == 0 {
		return "", false
	}
	line := string(token)
	rd.buf = append(rd.buf[:0], rd.buf[advance:]...)
	return line, true
}

// splitLines is Splitter without the SMS prompt.
func splitLines(data []byte, _ bool) (int, []byte, error) {
	if i := bytes.Index(data, []byte(CRLF)); i >= 0 {
		return i + len(CRLF), data[0:i], nil
	}
	return 0, nil, nil
}

func (rd *Reader) fill() error {
	n, err := rd.r.Read(rd.tmp)
	rd.buf = append(rd.buf, rd.tmp[:n]...)
	if err != nil {
		return errors.Wrap(err, "at: read from link")
	}
	return nil
}
