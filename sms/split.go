// Package sms splits message text into chunks that fit a single text mode
// SMS, measuring length in encoded bytes rather than characters.
package sms

import (
	"github.com/pkg/errors"
)

// DefaultMaxLength is the chunk limit used when none is given.
const DefaultMaxLength = 160

// ErrMaxLength is returned when the limit cannot hold even one character.
var ErrMaxLength = errors.New("sms: max length too small")

// Message is an outgoing text message.
type Message struct {
	Recipient string
	Text      string
	Codec     Codec
	// MaxLength bounds the encoded size of each chunk. Zero means
	// DefaultMaxLength.
	MaxLength int
}

// Chunk is one ordered piece of a message.
type Chunk struct {
	Index   int // 1-based
	Total   int
	Content []byte
}

// Split splits the message using its codec and limit.
func (m Message) Split() ([]Chunk, error) {
	return Split(m.Text, m.Codec, m.MaxLength)
}

// Split partitions the encoded text greedily into chunks of at most
// maxLength bytes, in order. The encoded bytes of a character always land
// in the same chunk, so every chunk decodes on its own; with a single byte
// encoding the result is a plain fixed size partition.
//
// Split is deterministic. It fails with an *EncodingError when a character
// cannot be encoded, before producing any chunk.
func Split(text string, codec Codec, maxLength int) ([]Chunk, error) {
	if codec == nil {
		return nil, errors.Wrap(ErrUnknownEncoding, "no codec")
	}
	if maxLength == 0 {
		maxLength = DefaultMaxLength
	}
	if maxLength < 0 {
		return nil, errors.Wrapf(ErrMaxLength, "%d", maxLength)
	}

	var (
		contents [][]byte
		current  []byte
	)
	for offset, r := range text {
		encoded, err := codec.EncodeRune(r)
		if err != nil {
			return nil, &EncodingError{Codec: codec.Name(), Rune: r, Offset: offset}
		}
		if len(encoded) > maxLength {
			return nil, errors.Wrapf(ErrMaxLength, "%d bytes cannot hold %q in %s", maxLength, r, codec.Name())
		}
		if len(current)+len(encoded) > maxLength {
			contents = append(contents, current)
			current = nil
		}
		current = append(current, encoded...)
	}
	if len(current) > 0 {
		contents = append(contents, current)
	}

	chunks := make([]Chunk, len(contents))
	for i, content := range contents {
		chunks[i] = Chunk{Index: i + 1, Total: len(contents), Content: content}
	}
	return chunks, nil
}

// Join decodes the chunks in order and concatenates the text.
func Join(chunks []Chunk, codec Codec) (string, error) {
	var text []byte
	for _, c := range chunks {
		s, err := codec.Decode(c.Content)
		if err != nil {
			return "", errors.Wrapf(err, "decode chunk %d/%d", c.Index, c.Total)
		}
		text = append(text, s...)
	}
	return string(text), nil
}

// Encode encodes the whole text with codec.
func Encode(text string, codec Codec) ([]byte, error) {
	if codec == nil {
		return nil, errors.Wrap(ErrUnknownEncoding, "no codec")
	}
	var out []byte
	for offset, r := range text {
		encoded, err := codec.EncodeRune(r)
		if err != nil {
			return nil, &EncodingError{Codec: codec.Name(), Rune: r, Offset: offset}
		}
		out = append(out, encoded...)
	}
	return out, nil
}
