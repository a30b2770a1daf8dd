package modem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.uber.org/mock/gomock"
)

func TestSerialDialerRejectsBeforeOpening(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	testCases := map[string]struct {
		dialer SerialDialer
		ctx    context.Context
		want   string
	}{
		"nil context": {
			dialer: SerialDialer{PortName: "/dev/ttyS0"},
			ctx:    nil,
			want:   "modem: context is nil",
		},
		"empty port name": {
			dialer: SerialDialer{},
			ctx:    context.Background(),
			want:   "modem: serial port name is required",
		},
		"negative read timeout": {
			dialer: SerialDialer{PortName: "/dev/nonexistent", ReadTimeout: -time.Millisecond},
			ctx:    context.Background(),
			want:   "modem: negative read timeout -1ms",
		},
		"cancelled context": {
			dialer: SerialDialer{PortName: "/dev/nonexistent"},
			ctx:    cancelled,
			want:   context.Canceled.Error(),
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			transport, err := testCase.dialer.Dial(testCase.ctx)
			require.Error(t, err)
			assert.Nil(t, transport)
			assert.Equal(t, testCase.want, err.Error())
		})
	}
}

func TestSerialDialerOpenFailureNamesPort(t *testing.T) {
	dialer := SerialDialer{PortName: "/dev/nonexistent", ReadTimeout: 10 * time.Millisecond}

	transport, err := dialer.Dial(context.Background())
	require.Error(t, err)
	assert.Nil(t, transport)
	assert.Contains(t, err.Error(), "/dev/nonexistent")
}

func TestSerialDialerMode(t *testing.T) {
	t.Run("8N1 at the default baud rate", func(t *testing.T) {
		mode := SerialDialer{PortName: "/dev/ttyS0"}.mode()
		assert.Equal(t, &serial.Mode{
			BaudRate: DefaultBaudRate,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}, mode)
	})

	t.Run("baud rate", func(t *testing.T) {
		mode := SerialDialer{PortName: "/dev/ttyS0", BaudRate: 9600}.mode()
		assert.Equal(t, 9600, mode.BaudRate)
		assert.Equal(t, 8, mode.DataBits)
	})

	t.Run("explicit mode wins over baud rate", func(t *testing.T) {
		custom := &serial.Mode{BaudRate: 57600, Parity: serial.EvenParity, DataBits: 7, StopBits: serial.TwoStopBits}
		mode := SerialDialer{PortName: "/dev/ttyS0", BaudRate: 9600, Mode: custom}.mode()
		assert.Same(t, custom, mode)
	})
}

func TestSerialDialerReadTimeout(t *testing.T) {
	assert.Equal(t, DefaultReadTimeout, SerialDialer{}.readTimeout())
	assert.Equal(t, 200*time.Millisecond, SerialDialer{ReadTimeout: 200 * time.Millisecond}.readTimeout())
}

func TestDialerInterface(t *testing.T) {
	ctrl := gomock.NewController(t)

	mockDialer := NewMockDialer(ctrl)
	mockTransport := NewMockTransport(ctrl)

	var _ Dialer = mockDialer
	var _ Dialer = SerialDialer{}
	var _ Transport = mockTransport

	ctx := context.Background()
	dialError := errors.New("dial failed")
	gomock.InOrder(
		mockDialer.EXPECT().Dial(ctx).Return(mockTransport, nil),
		mockDialer.EXPECT().Dial(ctx).Return(nil, dialError),
	)

	transport, err := mockDialer.Dial(ctx)
	require.NoError(t, err)
	assert.Equal(t, mockTransport, transport)

	transport, err = mockDialer.Dial(ctx)
	assert.Equal(t, dialError, err)
	assert.Nil(t, transport)
}
