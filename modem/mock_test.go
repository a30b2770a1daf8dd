package modem_test

import (
	"time"

	gomock "go.uber.org/mock/gomock"

	"i4.energy/across/simhat/modem"
)

// readSize matches the read buffer of at.Reader; longer replies are served
// over several reads.
const readSize = 256

// MockSequenceBuilder scripts a conversation with the modem as an ordered
// list of gomock calls: each command write is followed by the reads that
// deliver its reply.
type MockSequenceBuilder struct {
	transport *modem.MockTransport
	calls     []any
}

func NewMockSequence(transport *modem.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

// Exchange expects sent to be written and answers with reply.
func (b *MockSequenceBuilder) Exchange(sent, reply string) *MockSequenceBuilder {
	b.calls = append(b.calls, b.transport.EXPECT().Write([]byte(sent)).Return(len(sent), nil))
	for len(reply) > 0 {
		chunk := reply[:min(readSize, len(reply))]
		reply = reply[len(chunk):]
		b.calls = append(b.calls,
			b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
				return copy(p, chunk), nil
			}),
		)
	}
	return b
}

// Silent expects sent to be written and never answers it, like a modem
// that is powered off.
func (b *MockSequenceBuilder) Silent(sent string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(sent)).Return(len(sent), nil),
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			time.Sleep(time.Millisecond)
			return 0, nil
		}).AnyTimes(),
	)
	return b
}

// AT answers the probe with echo enabled.
func (b *MockSequenceBuilder) AT() *MockSequenceBuilder {
	return b.Exchange("AT\r", "AT\r\r\nOK\r\n")
}

func (b *MockSequenceBuilder) OK(cmd string) *MockSequenceBuilder {
	return b.Exchange(cmd, "\r\nOK\r\n")
}

// TextMode covers the text mode and character set selection.
func (b *MockSequenceBuilder) TextMode(charset string) *MockSequenceBuilder {
	return b.OK("AT+CMGF=1\r").
		OK(`AT+CSCS="` + charset + `"` + "\r")
}

// Storage answers the storage selection for source.
func (b *MockSequenceBuilder) Storage(source, counts string) *MockSequenceBuilder {
	return b.Exchange(`AT+CPMS="`+source+`"`+"\r", "\r\n+CPMS: "+counts+"\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SimStatus(status string) *MockSequenceBuilder {
	return b.Exchange("AT+CPIN?\r", "\r\n+CPIN: "+status+"\r\n\r\nOK\r\n")
}

// SendChunk covers one successful CMGS exchange.
func (b *MockSequenceBuilder) SendChunk(recipient, body string, ref string) *MockSequenceBuilder {
	return b.Exchange(`AT+CMGS="`+recipient+`"`+"\r", "\r\n> ").
		Exchange(body+"\x1A", "\r\n+CMGS: "+ref+"\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) Close() *MockSequenceBuilder {
	b.calls = append(b.calls, b.transport.EXPECT().Close().Return(nil))
	return b
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}

// initMockCalls is the constructor conversation with a modem that is on.
func initMockCalls(transport *modem.MockTransport) []any {
	return NewMockSequence(transport).AT().Build()
}
