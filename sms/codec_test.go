package sms_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i4.energy/across/simhat/sms"
)

func TestLookup(t *testing.T) {
	testCases := []struct {
		name    string
		codec   string
		charset string
	}{
		{name: "gsm7", codec: "gsm7", charset: "IRA"},
		{name: "GSM", codec: "gsm7", charset: "IRA"},
		{name: " UCS2 ", codec: "ucs2", charset: "UCS2"},
		{name: "latin1", codec: "latin1", charset: "8859-1"},
		{name: "ISO-8859-1", codec: "latin1", charset: "8859-1"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			c, err := sms.Lookup(testCase.name)
			require.NoError(t, err)
			assert.Equal(t, testCase.codec, c.Name())
			assert.Equal(t, testCase.charset, c.Charset())
		})
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := sms.Lookup("ebcdic")
	assert.True(t, errors.Is(err, sms.ErrUnknownEncoding))
}

func TestNamesResolve(t *testing.T) {
	for _, name := range sms.Names() {
		c, err := sms.Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}
}

func TestEncodeRuneLengths(t *testing.T) {
	testCases := []struct {
		codec string
		r     rune
		size  int
	}{
		{codec: "gsm7", r: 'A', size: 1},
		{codec: "gsm7", r: '@', size: 1},
		{codec: "gsm7", r: '[', size: 2},
		{codec: "gsm7", r: '~', size: 2},
		{codec: "gsm7", r: '\n', size: 1},
		{codec: "ucs2", r: 'A', size: 2},
		{codec: "ucs2", r: '中', size: 2},
		{codec: "latin1", r: 'é', size: 1},
	}

	for _, testCase := range testCases {
		t.Run(testCase.codec+"/"+string(testCase.r), func(t *testing.T) {
			b, err := mustCodec(t, testCase.codec).EncodeRune(testCase.r)
			require.NoError(t, err)
			assert.Len(t, b, testCase.size)
		})
	}
}

func TestEncodeRuneRejectsTextModeBreakers(t *testing.T) {
	testCases := []struct {
		name  string
		codec string
		r     rune
	}{
		{name: "euro outside IRA", codec: "gsm7", r: '€'},
		{name: "GSM letter outside IRA", codec: "gsm7", r: 'é'},
		{name: "backtick outside GSM", codec: "gsm7", r: '`'},
		{name: "ctrl-z in gsm7", codec: "gsm7", r: 0x1A},
		{name: "escape in gsm7", codec: "gsm7", r: 0x1B},
		{name: "carriage return in gsm7", codec: "gsm7", r: '\r'},
		{name: "ctrl-z in latin1", codec: "latin1", r: 0x1A},
		{name: "escape in latin1", codec: "latin1", r: 0x1B},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := mustCodec(t, testCase.codec).EncodeRune(testCase.r)
			assert.Error(t, err)
		})
	}
}

func TestPayload(t *testing.T) {
	t.Run("ucs2 is hex coded", func(t *testing.T) {
		codec := mustCodec(t, "ucs2")
		b, err := codec.EncodeRune('中')
		require.NoError(t, err)
		assert.Equal(t, "4E2D", string(codec.Payload(b)))
	})

	t.Run("gsm7 is passed through", func(t *testing.T) {
		codec := mustCodec(t, "gsm7")
		b, err := codec.EncodeRune('A')
		require.NoError(t, err)
		assert.Equal(t, b, codec.Payload(b))
	})

	t.Run("gsm7 is typed as IRA", func(t *testing.T) {
		codec := mustCodec(t, "gsm7")
		b, err := sms.Encode("mail me@x {ok}", codec)
		require.NoError(t, err)
		assert.Len(t, b, 16)

		payload := codec.Payload(b)
		assert.Equal(t, "mail me@x {ok}", string(payload))
		assert.NotContains(t, string(payload), "\x00")
		assert.NotContains(t, string(payload), "\x1b")
	})
}

func TestEncodingErrorMessage(t *testing.T) {
	err := &sms.EncodingError{Codec: "gsm7", Rune: '中', Offset: 4}
	assert.Contains(t, err.Error(), "offset 4")
	assert.Contains(t, err.Error(), "gsm7")
	assert.True(t, errors.Is(err, sms.ErrEncoding))
}

func TestDecodePayload(t *testing.T) {
	t.Run("ucs2 hex", func(t *testing.T) {
		text, err := sms.DecodePayload(mustCodec(t, "ucs2"), []byte("0048006900204E2D"))
		require.NoError(t, err)
		assert.Equal(t, "Hi 中", text)
	})

	t.Run("ucs2 not hex", func(t *testing.T) {
		_, err := sms.DecodePayload(mustCodec(t, "ucs2"), []byte("Hello"))
		assert.Error(t, err)
	})

	t.Run("latin1 passthrough", func(t *testing.T) {
		text, err := sms.DecodePayload(mustCodec(t, "latin1"), []byte("caf\xe9"))
		require.NoError(t, err)
		assert.Equal(t, "café", text)
	})

	t.Run("gsm7 round trip", func(t *testing.T) {
		codec := mustCodec(t, "gsm7")
		chunks, err := sms.Split("Hello {world}", codec, 160)
		require.NoError(t, err)
		require.Len(t, chunks, 1)

		text, err := sms.DecodePayload(codec, codec.Payload(chunks[0].Content))
		require.NoError(t, err)
		assert.Equal(t, "Hello {world}", text)
	})
}
