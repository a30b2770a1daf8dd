package modem

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"i4.energy/across/simhat/at"
)

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has not been successfully initialized.
	//
	// This can occur if initialization failed or if the Modem was not created
	// via New.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when an operation or Close is attempted
	// on a Modem that has already been closed.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrSIMPinRequired is returned when the SIM card requires a PIN and no
	// PIN was provided in the Config.
	//
	// Callers may handle this error specially (for example, by prompting
	// the user for a PIN) and retry initialization.
	ErrSIMPinRequired = errors.New("SIM PIN required")

	// ErrPoweredOff is returned by operations that need the modem On while
	// the power controller says otherwise.
	ErrPoweredOff = errors.New("modem is not turned on")

	// ErrUnexpectedResponse is returned when a response ends well but its
	// payload does not have the expected structure.
	ErrUnexpectedResponse = errors.New("unexpected modem response")

	// ErrNoMessage is returned when a storage slot holds no message.
	ErrNoMessage = errors.New("no message at index")

	// ErrIndexOutOfRange is returned when a message index falls outside the
	// storage capacity reported by the modem.
	ErrIndexOutOfRange = errors.New("message index out of range")

	// ErrEmptyMessage is returned by SendSMS for empty text.
	ErrEmptyMessage = errors.New("empty message")

	// ErrNoRecipient is returned by SendSMS when the recipient is blank.
	ErrNoRecipient = errors.New("no recipient")
)

// DeviceError is returned when the modem answered a command with an error
// status, or with a terminal line other than the one the operation needs
// (NO CARRIER where OK was due, OK where the SMS prompt was due). It is
// distinct from at.ErrLinkTimeout: the modem is alive and rejected the
// command.
type DeviceError struct {
	// Command is the command as sent, without the terminator.
	Command string
	Status  at.Status
	// Final is the terminal line, e.g. "+CMS ERROR: 500" or "NO CARRIER".
	Final string
	// Lines is the payload preceding the terminal line.
	Lines []string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Final)
}

// Code returns the vendor error code, empty for a plain ERROR.
func (e *DeviceError) Code() string {
	return e.Status.Code
}

// PartialSendError reports a multi part SMS that stopped before its last
// chunk. Chunks after the failing one were not sent.
type PartialSendError struct {
	// LastSucceeded is the 1-based index of the last chunk the modem
	// accepted, 0 when none was.
	LastSucceeded int
	Total         int
	Err           error
}

func (e *PartialSendError) Error() string {
	return fmt.Sprintf("sms sent %d of %d chunks: %v", e.LastSucceeded, e.Total, e.Err)
}

func (e *PartialSendError) Unwrap() error {
	return e.Err
}

func deviceError(cmd at.Command, resp at.Response) *DeviceError {
	return &DeviceError{
		Command: strings.TrimRight(cmd.String(), at.CRLF),
		Status:  resp.Status,
		Final:   resp.Final,
		Lines:   resp.Lines,
	}
}
