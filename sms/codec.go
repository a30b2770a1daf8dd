package sms

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/warthog618/sms/encoding/gsm7"
	"github.com/warthog618/sms/encoding/ucs2"
	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrUnknownEncoding is returned by Lookup for names with no codec.
	ErrUnknownEncoding = errors.New("sms: unknown encoding")

	// ErrEncoding is the sentinel wrapped by every EncodingError.
	ErrEncoding = errors.New("sms: text not representable in encoding")
)

// EncodingError reports a character the configured codec cannot carry.
type EncodingError struct {
	Codec  string
	Rune   rune
	Offset int // byte offset of Rune in the original text
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("sms: %q at offset %d not representable in %s", e.Rune, e.Offset, e.Codec)
}

func (e *EncodingError) Unwrap() error {
	return ErrEncoding
}

// Codec converts message text to the bytes counted against the SMS length
// limit and back.
type Codec interface {
	// Name is the registry name of the codec.
	Name() string
	// Charset is the TE character set selected with AT+CSCS before text
	// mode sends.
	Charset() string
	// EncodeRune returns the encoded form of a single character.
	EncodeRune(r rune) ([]byte, error)
	// Decode turns encoded bytes back into text.
	Decode(b []byte) (string, error)
	// Payload returns the bytes written after the +CMGS prompt for
	// encoded content.
	Payload(b []byte) []byte
	// FromPayload reverses Payload for text read back from the modem.
	FromPayload(p []byte) ([]byte, error)
}

// DecodePayload turns message text as shown by the modem in text mode back
// into a string.
func DecodePayload(c Codec, p []byte) (string, error) {
	b, err := c.FromPayload(p)
	if err != nil {
		return "", errors.Wrapf(err, "%s payload", c.Name())
	}
	return c.Decode(b)
}

var codecs = map[string]Codec{
	"gsm7":       gsm7Codec{},
	"gsm":        gsm7Codec{},
	"ucs2":       ucs2Codec{},
	"latin1":     latin1Codec{},
	"iso-8859-1": latin1Codec{},
}

// Lookup returns the codec registered under name (case insensitive).
func Lookup(name string) (Codec, error) {
	c, ok := codecs[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEncoding, "%q", name)
	}
	return c, nil
}

// Names lists the canonical codec names.
func Names() []string {
	return []string{"gsm7", "ucs2", "latin1"}
}

// gsm7Codec counts length in GSM 03.38 septets, one per byte (unpacked),
// extension table characters taking two. On the wire it uses the IRA
// character set and the modem converts to GSM itself, so only characters
// present in both alphabets are accepted. Septets never go on the wire.
type gsm7Codec struct{}

func (gsm7Codec) Name() string    { return "gsm7" }
func (gsm7Codec) Charset() string { return "IRA" }

func (gsm7Codec) EncodeRune(r rune) ([]byte, error) {
	if r >= 0x80 || !textSafe(r) {
		return nil, errors.Errorf("rune %U not carried by IRA text mode", r)
	}
	return gsm7.Encode([]byte(string(r)))
}

func (gsm7Codec) Decode(b []byte) (string, error) {
	u, err := gsm7.Decode(b)
	if err != nil {
		return "", err
	}
	return string(u), nil
}

// Payload turns septets back into the IRA text typed after the prompt.
func (gsm7Codec) Payload(b []byte) []byte {
	u, err := gsm7.Decode(b)
	if err != nil {
		return b
	}
	return u
}

func (gsm7Codec) FromPayload(p []byte) ([]byte, error) {
	return gsm7.Encode(p)
}

// ucs2Codec uses big endian UCS-2, two bytes per character. Characters
// outside the basic multilingual plane are not representable.
type ucs2Codec struct{}

func (ucs2Codec) Name() string    { return "ucs2" }
func (ucs2Codec) Charset() string { return "UCS2" }

func (ucs2Codec) EncodeRune(r rune) ([]byte, error) {
	if r > 0xFFFF || (r >= 0xD800 && r <= 0xDFFF) {
		return nil, errors.Errorf("rune %U outside UCS-2", r)
	}
	return ucs2.Encode([]rune{r}), nil
}

func (ucs2Codec) Decode(b []byte) (string, error) {
	runes, err := ucs2.Decode(b)
	if err != nil {
		return "", err
	}
	return string(runes), nil
}

// Payload hex codes the content, which is how text mode expects UCS2
// when AT+CSCS="UCS2" is selected.
func (ucs2Codec) Payload(b []byte) []byte {
	return []byte(strings.ToUpper(hex.EncodeToString(b)))
}

func (ucs2Codec) FromPayload(p []byte) ([]byte, error) {
	return hex.DecodeString(string(p))
}

// textSafe reports whether r may be typed after the text mode prompt. Line
// feeds are allowed; other control characters such as Ctrl-Z and ESC end or
// cancel the entry.
func textSafe(r rune) bool {
	return r == '\n' || (r >= 0x20 && r != 0x7F && !(r >= 0x80 && r < 0xA0))
}

type latin1Codec struct{}

func (latin1Codec) Name() string    { return "latin1" }
func (latin1Codec) Charset() string { return "8859-1" }

func (latin1Codec) EncodeRune(r rune) ([]byte, error) {
	if !textSafe(r) {
		return nil, errors.Errorf("control character %U in text mode", r)
	}
	return charmap.ISO8859_1.NewEncoder().Bytes([]byte(string(r)))
}

func (latin1Codec) Decode(b []byte) (string, error) {
	u, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(u), nil
}

func (latin1Codec) Payload(b []byte) []byte { return b }

func (latin1Codec) FromPayload(p []byte) ([]byte, error) { return p, nil }
