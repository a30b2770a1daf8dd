//go:build linux

// Package gpio drives the modem power key through the Linux GPIO character
// device.
package gpio

import (
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/zap"
)

const (
	// DefaultChip is the Raspberry Pi header chip.
	DefaultChip = "gpiochip0"
	// DefaultOffset is BCM 4, physical pin 7, wired to PWRKEY on the
	// Waveshare GSM/GPRS/GNSS hat.
	DefaultOffset = 4
	// DefaultPress is how long the key is held low.
	DefaultPress = time.Second

	consumer = "simhat-pwrkey"
)

// Line is the part of a requested GPIO line the key press needs.
type Line interface {
	SetValue(value int) error
	Close() error
}

// Requester requests an output line initially driven high.
type Requester func(chip string, offset int) (Line, error)

func requestOutput(chip string, offset int) (Line, error) {
	return gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(1), gpiocdev.WithConsumer(consumer))
}

// PowerKey pulses the power key line. It implements power.Pin.
//
// The line is requested per press and released afterwards so that other
// tools can inspect it between presses.
type PowerKey struct {
	Chip   string
	Offset int
	Press  time.Duration

	Request Requester
	Sleep   func(time.Duration)
	Logger  *zap.Logger
}

// NewPowerKey returns a PowerKey on the default chip, offset and press
// duration.
func NewPowerKey(logger *zap.Logger) *PowerKey {
	return &PowerKey{
		Chip:   DefaultChip,
		Offset: DefaultOffset,
		Press:  DefaultPress,
		Logger: logger,
	}
}

// Toggle drives the line low for the press duration, then high again.
func (k *PowerKey) Toggle() error {
	request := k.Request
	if request == nil {
		request = requestOutput
	}
	sleep := k.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	logger := k.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	press := k.Press
	if press <= 0 {
		press = DefaultPress
	}

	l, err := request(k.Chip, k.Offset)
	if err != nil {
		return errors.Wrapf(err, "gpio: request %s:%d", k.Chip, k.Offset)
	}
	defer func() {
		if cerr := l.Close(); cerr != nil {
			logger.Warn("failed to release power key line", zap.Error(cerr))
		}
	}()

	logger.Debug("power key down", zap.String("chip", k.Chip), zap.Int("offset", k.Offset), zap.Duration("press", press))
	if err := l.SetValue(0); err != nil {
		return errors.Wrap(err, "gpio: press power key")
	}
	sleep(press)
	if err := l.SetValue(1); err != nil {
		return errors.Wrap(err, "gpio: release power key")
	}
	logger.Debug("power key up")
	return nil
}
