// Package power tracks the power state of the modem and drives the
// transitions through a power key pin.
//
// The modem has no power sense line: a single key press toggles it, and the
// firmware needs a few seconds after a press before it answers. The
// Controller therefore owns the only record of the state and blocks for a
// settle duration after each press.
package power

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:generate go tool mockgen -destination=mock_pin_test.go -package=power_test . Pin

// DefaultSettle is how long the modem needs after a power key press.
const DefaultSettle = 4 * time.Second

// ErrNoPin is returned when a transition is needed but no pin is attached.
var ErrNoPin = errors.New("power: no power key pin configured")

// State is the power state of the modem.
type State int

const (
	Off State = iota
	TurningOn
	On
	TurningOff
)

func (s State) String() string {
	switch s {
	case Off:
		return "off"
	case TurningOn:
		return "turning on"
	case On:
		return "on"
	case TurningOff:
		return "turning off"
	default:
		return "unknown"
	}
}

// Pin toggles the modem power. One call is one key press.
type Pin interface {
	Toggle() error
}

// Sleeper blocks for the given duration.
type Sleeper func(time.Duration)

// Option configures a Controller.
type Option func(*Controller)

// WithSettleDuration overrides DefaultSettle.
func WithSettleDuration(d time.Duration) Option {
	return func(c *Controller) {
		c.settle = d
	}
}

// WithSleeper replaces time.Sleep for the settle wait.
func WithSleeper(s Sleeper) Option {
	return func(c *Controller) {
		if s != nil {
			c.sleep = s
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// Controller is the power state machine. It starts Off.
//
// Controller is not safe for concurrent use.
type Controller struct {
	pin    Pin
	state  State
	settle time.Duration
	sleep  Sleeper
	logger *zap.Logger
}

// NewController returns a Controller in state Off. pin may be nil when the
// modem is powered some other way; transitions then fail with ErrNoPin.
func NewController(pin Pin, opts ...Option) *Controller {
	c := &Controller{
		pin:    pin,
		state:  Off,
		settle: DefaultSettle,
		sleep:  time.Sleep,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() State {
	return c.state
}

// Assume records a steady state observed from outside, typically after
// probing the modem. Transitional states are ignored.
func (c *Controller) Assume(s State) {
	if s != On && s != Off {
		return
	}
	c.state = s
}

// TurnOn presses the power key and waits for the modem to settle. It is a
// no-op when the modem is already On.
func (c *Controller) TurnOn() error {
	return c.transition(On, TurningOn)
}

// TurnOff presses the power key and waits for the modem to shut down. It is
// a no-op when the modem is already Off.
func (c *Controller) TurnOff() error {
	return c.transition(Off, TurningOff)
}

func (c *Controller) transition(target, via State) error {
	if c.state == target {
		return nil
	}
	if c.pin == nil {
		return errors.Wrapf(ErrNoPin, "turn %s", target)
	}

	previous := c.state
	c.state = via
	c.logger.Info("pressing power key", zap.Stringer("from", previous), zap.Stringer("to", target))

	if err := c.pin.Toggle(); err != nil {
		c.state = previous
		c.logger.Error("power key press failed", zap.Stringer("state", previous), zap.Error(err))
		return errors.Wrapf(err, "power: turn %s", target)
	}

	c.logger.Debug("waiting for modem to settle", zap.Duration("settle", c.settle))
	c.sleep(c.settle)
	c.state = target
	c.logger.Info("modem power state changed", zap.Stringer("state", target))
	return nil
}
