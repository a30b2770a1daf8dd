// Package modem drives a SIM868 modem: power handling, GNSS readings and
// text mode SMS, on top of the wire protocol in package at.
package modem

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"i4.energy/across/simhat/at"
	"i4.energy/across/simhat/gnss"
	"i4.energy/across/simhat/power"
	"i4.energy/across/simhat/sms"
)

const (
	simReady = "READY"
	simPin   = "SIM PIN"
)

var probeCmd = at.RawCmd([]byte("AT\r"))

// Modem is a session with one modem over one Transport.
//
// Exactly one command is in flight at a time: every operation writes a
// command and blocks until its terminal line arrives or the timeout elapses.
// Unsolicited result codes that arrive in between are kept in the payload
// of the response they interleave with.
//
// A Modem is not safe for concurrent use.
type Modem struct {
	transport Transport
	reader    *at.Reader
	config    Config
	power     *power.Controller
	codec     sms.Codec
	logger    *zap.Logger
	closed    bool
}

// New dials the modem and makes sure it is on.
//
// It probes the modem with a bare AT. When nothing answers within the probe
// timeout the modem is considered off and the power key is pressed, which
// blocks New for the settle duration. A configured SIM PIN is entered last.
//
// Returns an error if the transport connection or modem initialization
// fails.
func New(ctx context.Context, config Config) (*Modem, error) {
	if config.Dialer == nil {
		return nil, ErrNoDialer
	}
	config.setDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	codec, err := sms.Lookup(config.Encoding)
	if err != nil {
		return nil, err
	}

	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "dial modem")
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	logger := config.Logger.Named("modem")
	m := &Modem{
		transport: transport,
		reader:    at.NewReader(transport),
		config:    config,
		codec:     codec,
		logger:    logger,
	}

	opts := []power.Option{
		power.WithSettleDuration(config.SettleDuration),
		power.WithLogger(logger.Named("power")),
	}
	if config.Sleeper != nil {
		opts = append(opts, power.WithSleeper(config.Sleeper))
	}
	m.power = power.NewController(config.PowerPin, opts...)

	initCtx := ctx
	if config.InitTimeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, config.InitTimeout)
		defer cancel()
	}

	if err := m.init(initCtx); err != nil {
		transport.Close()
		return nil, errors.Wrap(err, "initialize modem")
	}

	return m, nil
}

// init performs the power probe and the optional SIM unlock.
func (m *Modem) init(ctx context.Context) error {
	on, err := m.probe(ctx)
	if err != nil {
		return err
	}

	if on {
		m.power.Assume(power.On)
	} else {
		m.logger.Info("modem did not answer the probe, powering on")
		if err := m.TurnHat(ctx, true); err != nil {
			return err
		}
	}

	if m.config.SimPIN != "" {
		if err := m.UnlockSIM(ctx); err != nil {
			return err
		}
	}
	return nil
}

// probe reports whether anything answers a bare AT. A link timeout means
// off; any terminal line, even an error, means on.
func (m *Modem) probe(ctx context.Context) (bool, error) {
	_, err := m.send(ctx, probeCmd, m.config.ProbeTimeout)
	var devErr *DeviceError
	switch {
	case err == nil, errors.As(err, &devErr):
		return true, nil
	case errors.Is(err, at.ErrLinkTimeout):
		m.reader.Discard()
		return false, nil
	default:
		return false, errors.Wrap(err, "probe modem")
	}
}

// State returns the power state as last established.
func (m *Modem) State() power.State {
	return m.power.State()
}

// TurnHat switches the modem on or off with the power key. Turning on waits
// for the settle duration and then requires an OK to a bare AT.
func (m *Modem) TurnHat(ctx context.Context, on bool) error {
	if m.closed {
		return ErrAlreadyClosed
	}
	if !on {
		if err := m.power.TurnOff(); err != nil {
			return err
		}
		m.reader.Discard()
		return nil
	}

	if err := m.power.TurnOn(); err != nil {
		return err
	}
	m.reader.Discard()
	if _, err := m.expectOK(ctx, probeCmd); err != nil {
		return errors.Wrap(err, "modem not responding after power on")
	}
	return nil
}

// TurnGNSS powers the GNSS engine on or off.
func (m *Modem) TurnGNSS(ctx context.Context, on bool) error {
	state := "0"
	if on {
		state = "1"
	}
	_, err := m.expectOK(ctx, at.Cmd("CGNSPWR="+state))
	return err
}

// Position reads the current navigation record. A modem that answers OK
// without a +CGNSINF line yields an empty Fix and no error.
//
// A fresh fix needs the GNSS engine powered for a while; until then the
// record reports FixNone.
func (m *Modem) Position(ctx context.Context) (gnss.Fix, error) {
	resp, err := m.expectOK(ctx, at.Cmd("CGNSINF"))
	if err != nil {
		return gnss.Fix{}, err
	}
	line, ok := resp.Line(gnss.Prefix)
	if !ok {
		return gnss.Fix{}, nil
	}
	return gnss.Parse(line)
}

// AT sends cmd as is and returns the modem's response. A response with an
// error status is returned together with a *DeviceError. Other terminal
// lines, such as the SMS prompt, are returned without error.
func (m *Modem) AT(ctx context.Context, cmd at.Command) (at.Response, error) {
	return m.exec(ctx, cmd)
}

// UnlockSIM enters the configured PIN if the SIM asks for one and waits for
// the SIM to become ready.
func (m *Modem) UnlockSIM(ctx context.Context) error {
	status, err := m.simStatus(ctx)
	if err != nil {
		return errors.Wrap(err, "query SIM status")
	}

	switch {
	case status == simReady:
		return nil

	case status == simPin:
		if m.config.SimPIN == "" {
			return ErrSIMPinRequired
		}
		if _, err := m.expectOK(ctx, at.Cmd(`CPIN="`+m.config.SimPIN+`"`)); err != nil {
			return errors.Wrap(err, "enter SIM PIN")
		}
		return m.waitForSIMReady(ctx, m.config.SIMPoll)

	default:
		return errors.Errorf("unsupported SIM state: %q", status)
	}
}

func (m *Modem) simStatus(ctx context.Context) (string, error) {
	resp, err := m.expectOK(ctx, at.Cmd("CPIN?"))
	if err != nil {
		return "", err
	}
	status, ok := resp.Line("+CPIN:")
	if !ok {
		return "", errors.Wrapf(ErrUnexpectedResponse, "no +CPIN line in %q", resp.Lines)
	}
	return status, nil
}

// waitForSIMReady polls the SIM card status until it reports ready state.
// This is necessary after entering a SIM PIN, as the SIM card needs time
// to authenticate and become operational.
func (m *Modem) waitForSIMReady(ctx context.Context, config PollConfig) error {
	var (
		pollInterval = config.Interval
		timeout      = config.Timeout
		maxRetries   = config.MaxRetries
	)

	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = int(timeout / pollInterval)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	retries := 0

	for {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "SIM not ready")
		case <-ticker.C:
			retries++
			if retries > maxRetries {
				return errors.Errorf("SIM not ready after %d retries", maxRetries)
			}
			status, err := m.simStatus(ctx)
			if err != nil {
				// Fail fast on critical errors
				if errors.Is(err, ErrAlreadyClosed) || errors.Is(err, ErrNotInitialized) {
					return errors.Wrap(err, "SIM status check failed")
				}
				m.logger.Debug("SIM status check failed", zap.Error(err))
				continue
			}
			if status == simReady {
				return nil
			}
		}
	}
}

// Close closes the transport. The modem power state is left as is. After
// calling Close, the Modem cannot be reused.
func (m *Modem) Close() error {
	if m.closed {
		return ErrAlreadyClosed
	}
	m.closed = true

	if m.transport != nil {
		return m.transport.Close()
	}
	return nil
}

// exec runs one command on a modem that is on, with the AT timeout.
func (m *Modem) exec(ctx context.Context, cmd at.Command) (at.Response, error) {
	return m.execWithin(ctx, cmd, m.config.ATTimeout)
}

func (m *Modem) execWithin(ctx context.Context, cmd at.Command, timeout time.Duration) (at.Response, error) {
	if m.power != nil && m.power.State() != power.On {
		return at.Response{}, errors.Wrapf(ErrPoweredOff, "%s", cmd)
	}
	return m.send(ctx, cmd, timeout)
}

// expectOK is exec for commands whose only acceptable outcome is OK. Any
// other terminal line is a *DeviceError.
func (m *Modem) expectOK(ctx context.Context, cmd at.Command) (at.Response, error) {
	resp, err := m.exec(ctx, cmd)
	if err != nil {
		return resp, err
	}
	if !resp.OK() {
		return resp, deviceError(cmd, resp)
	}
	return resp, nil
}

// send writes one command and reads its response. The context deadline, if
// closer than timeout, shortens the wait.
func (m *Modem) send(ctx context.Context, cmd at.Command, timeout time.Duration) (at.Response, error) {
	if m.closed {
		return at.Response{}, ErrAlreadyClosed
	}
	if m.transport == nil {
		return at.Response{}, ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return at.Response{}, errors.Wrapf(err, "%s cancelled before sending", cmd)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	wire, err := at.Frame(cmd)
	if err != nil {
		return at.Response{}, err
	}

	m.logger.Debug("tx", zap.Stringer("cmd", cmd))
	if _, err := m.transport.Write(wire); err != nil {
		return at.Response{}, errors.Wrapf(err, "write command %q", cmd)
	}

	resp, err := m.reader.ReadResponse(wire, timeout)
	if err != nil {
		m.logger.Warn("no response", zap.Stringer("cmd", cmd), zap.Error(err))
		return resp, err
	}
	m.logger.Debug("rx",
		zap.Stringer("cmd", cmd),
		zap.Strings("lines", resp.Lines),
		zap.String("final", strings.TrimSpace(resp.Final)),
	)

	if resp.Status.Kind == at.StatusError {
		return resp, deviceError(cmd, resp)
	}
	return resp, nil
}
