package modem

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"i4.energy/across/simhat/power"
	"i4.energy/across/simhat/sms"
)

const (
	DefaultATTimeout    = 5 * time.Second
	DefaultProbeTimeout = time.Second
	DefaultSendTimeout  = 60 * time.Second
	DefaultInitTimeout  = 30 * time.Second
	DefaultSMSSource    = "SM"
	DefaultEncoding     = "gsm7"
	DefaultBaudRate     = 115200
)

// Config holds everything New needs. Build it with NewConfigBuilder or fill
// it directly; zero values are replaced by defaults.
type Config struct {
	Dialer Dialer
	// PowerPin presses the modem power key. Without it the modem must
	// already be on.
	PowerPin power.Pin
	Logger   *zap.Logger

	// SimPIN unlocks the SIM during New when set.
	SimPIN  string
	SIMPoll PollConfig

	// ATTimeout bounds the wait for the terminal line of a command.
	ATTimeout time.Duration
	// ProbeTimeout bounds the power probe sent by New. A probe that times
	// out means the modem is off.
	ProbeTimeout time.Duration
	// SendTimeout bounds the wait for the network to accept an SMS chunk.
	SendTimeout time.Duration
	InitTimeout time.Duration

	SettleDuration time.Duration
	Sleeper        power.Sleeper

	SMSSource    string
	Encoding     string
	SMSMaxLength int
}

// PollConfig defines configuration for polling operations like waiting for SIM readiness.
type PollConfig struct {
	// Interval is the time between polling attempts
	Interval time.Duration
	// Timeout is the maximum time to wait for the condition
	Timeout time.Duration
	// MaxRetries is the maximum number of polling attempts
	MaxRetries int
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.ATTimeout == 0 {
		c.ATTimeout = DefaultATTimeout
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.InitTimeout == 0 {
		c.InitTimeout = DefaultInitTimeout
	}
	if c.SettleDuration == 0 {
		c.SettleDuration = power.DefaultSettle
	}
	if c.SMSSource == "" {
		c.SMSSource = DefaultSMSSource
	}
	if c.Encoding == "" {
		c.Encoding = DefaultEncoding
	}
	if c.SMSMaxLength == 0 {
		c.SMSMaxLength = sms.DefaultMaxLength
	}
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	if _, err := sms.Lookup(c.Encoding); err != nil {
		return err
	}
	if c.SMSMaxLength < 0 {
		return errors.Errorf("negative SMS max length %d", c.SMSMaxLength)
	}
	if c.ATTimeout < 0 || c.ProbeTimeout < 0 || c.SendTimeout < 0 || c.SettleDuration < 0 {
		return errors.New("negative timeout")
	}
	return nil
}

// ConfigBuilder assembles a Config step by step.
type ConfigBuilder struct {
	config Config
	err    error
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithPowerPin(p power.Pin) *ConfigBuilder {
	b.config.PowerPin = p
	return b
}

func (b *ConfigBuilder) WithLogger(l *zap.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

func (b *ConfigBuilder) WithSimPIN(pin string) *ConfigBuilder {
	b.config.SimPIN = pin
	return b
}

func (b *ConfigBuilder) WithSIMPoll(p PollConfig) *ConfigBuilder {
	b.config.SIMPoll = p
	return b
}

func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.ATTimeout = d
	return b
}

func (b *ConfigBuilder) WithProbeTimeout(d time.Duration) *ConfigBuilder {
	b.config.ProbeTimeout = d
	return b
}

func (b *ConfigBuilder) WithSendTimeout(d time.Duration) *ConfigBuilder {
	b.config.SendTimeout = d
	return b
}

func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.config.InitTimeout = d
	return b
}

func (b *ConfigBuilder) WithSettleDuration(d time.Duration) *ConfigBuilder {
	b.config.SettleDuration = d
	return b
}

func (b *ConfigBuilder) WithSleeper(s power.Sleeper) *ConfigBuilder {
	b.config.Sleeper = s
	return b
}

func (b *ConfigBuilder) WithSMSSource(source string) *ConfigBuilder {
	b.config.SMSSource = source
	return b
}

func (b *ConfigBuilder) WithEncoding(name string) *ConfigBuilder {
	b.config.Encoding = name
	return b
}

func (b *ConfigBuilder) WithSMSMaxLength(n int) *ConfigBuilder {
	b.config.SMSMaxLength = n
	return b
}

// FromEnv loads settings from environment variables. Unset variables leave
// the current value alone. SERIAL_PORT, when set, installs a SerialDialer.
func (b *ConfigBuilder) FromEnv() *ConfigBuilder {
	if port := os.Getenv("SERIAL_PORT"); port != "" {
		dialer := SerialDialer{PortName: port, BaudRate: DefaultBaudRate}
		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			rate, err := strconv.Atoi(baud)
			if err != nil {
				b.fail(errors.Wrapf(err, "BAUD_RATE %q", baud))
			}
			dialer.BaudRate = rate
		}
		b.config.Dialer = dialer
	}

	if pin := os.Getenv("SIM_PIN"); pin != "" {
		b.config.SimPIN = pin
	}
	if source := os.Getenv("SMS_SOURCE"); source != "" {
		b.config.SMSSource = source
	}
	if encoding := os.Getenv("SMS_ENCODING"); encoding != "" {
		b.config.Encoding = encoding
	}
	if length := os.Getenv("SMS_MAX_LENGTH"); length != "" {
		n, err := strconv.Atoi(length)
		if err != nil {
			b.fail(errors.Wrapf(err, "SMS_MAX_LENGTH %q", length))
		}
		b.config.SMSMaxLength = n
	}
	b.durationFromEnv("AT_TIMEOUT", &b.config.ATTimeout)
	b.durationFromEnv("SETTLE_DURATION", &b.config.SettleDuration)
	return b
}

func (b *ConfigBuilder) durationFromEnv(name string, dst *time.Duration) {
	value := os.Getenv(name)
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		b.fail(errors.Wrapf(err, "%s %q", name, value))
		return
	}
	*dst = d
}

func (b *ConfigBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build applies defaults and validates the result.
func (b *ConfigBuilder) Build() (Config, error) {
	if b.err != nil {
		return Config{}, b.err
	}
	config := b.config
	config.setDefaults()
	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}
