package modem

import (
	"context"
	"encoding/csv"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"i4.energy/across/simhat/at"
	"i4.energy/across/simhat/sms"
)

// SMS represents a text message stored on the modem.
type SMS struct {
	Index  int
	Source string
	Status string // "REC UNREAD", "REC READ", "STO UNSENT", "STO SENT"
	Sender string
	Time   string // service centre time stamp as shown by the modem
	Text   string
}

// smsTimeLayout is the date part of the text mode time stamp; the time zone
// follows as a signed count of quarter hours.
const smsTimeLayout = "06/01/02,15:04:05"

// Timestamp parses Time, e.g. "23/06/15,08:30:15+08".
func (s SMS) Timestamp() (time.Time, error) {
	if len(s.Time) < len(smsTimeLayout)+2 {
		return time.Time{}, errors.Errorf("short time stamp %q", s.Time)
	}
	local, zone := s.Time[:len(smsTimeLayout)], s.Time[len(smsTimeLayout):]

	quarters, err := strconv.Atoi(zone)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "time zone of %q", s.Time)
	}
	loc := time.FixedZone("", quarters*15*60)
	t, err := time.ParseInLocation(smsTimeLayout, local, loc)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "time stamp %q", s.Time)
	}
	return t, nil
}

// SendSMS sends text to recipient in text mode, split into chunks of at
// most maxLength encoded bytes (zero means the configured length). It
// returns the message reference of every chunk the network accepted.
//
// Chunks are sent strictly in order and each one waits for the previous to
// be acknowledged. When a chunk fails the remaining ones are not sent and a
// *PartialSendError tells how far the message got. Text the configured
// encoding cannot carry fails before anything is sent.
func (m *Modem) SendSMS(ctx context.Context, text, recipient string, maxLength int) ([]int, error) {
	if text == "" {
		return nil, ErrEmptyMessage
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return nil, ErrNoRecipient
	}
	if maxLength == 0 {
		maxLength = m.config.SMSMaxLength
	}

	msg := sms.Message{
		Recipient: recipient,
		Text:      text,
		Codec:     m.codec,
		MaxLength: maxLength,
	}
	chunks, err := msg.Split()
	if err != nil {
		return nil, err
	}
	to, err := m.textParam(recipient)
	if err != nil {
		return nil, errors.Wrap(err, "recipient")
	}

	if err := m.textMode(ctx); err != nil {
		return nil, err
	}

	refs := make([]int, 0, len(chunks))
	for _, chunk := range chunks {
		ref, err := m.sendChunk(ctx, to, chunk)
		if err != nil {
			m.logger.Error("sms chunk not sent",
				zap.Int("chunk", chunk.Index),
				zap.Int("total", chunk.Total),
				zap.Error(err),
			)
			return refs, &PartialSendError{
				LastSucceeded: chunk.Index - 1,
				Total:         chunk.Total,
				Err:           err,
			}
		}
		refs = append(refs, ref)
		m.logger.Info("sms chunk sent",
			zap.Int("chunk", chunk.Index),
			zap.Int("total", chunk.Total),
			zap.Int("ref", ref),
		)
	}
	return refs, nil
}

// sendChunk runs one AT+CMGS exchange: command, prompt, body, OK.
func (m *Modem) sendChunk(ctx context.Context, to string, chunk sms.Chunk) (int, error) {
	cmgs := at.Cmd(`CMGS="` + to + `"`)
	resp, err := m.exec(ctx, cmgs)
	if err != nil {
		return 0, err
	}
	if !resp.Prompt() {
		m.reader.Discard()
		return 0, deviceError(cmgs, resp)
	}

	payload := m.codec.Payload(chunk.Content)
	body := make([]byte, 0, len(payload)+len(at.CtrlZ))
	body = append(body, payload...)
	body = append(body, at.CtrlZ...)

	bodyCmd := at.RawCmd(body)
	resp, err = m.execWithin(ctx, bodyCmd, m.config.SendTimeout)
	if err != nil {
		return 0, err
	}
	if !resp.OK() {
		return 0, deviceError(bodyCmd, resp)
	}

	value, ok := resp.Line("+CMGS:")
	if !ok {
		return 0, errors.Wrapf(ErrUnexpectedResponse, "sms body: no +CMGS reference in %q", resp.Lines)
	}
	ref, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Wrapf(ErrUnexpectedResponse, "sms body: message reference %q", value)
	}
	return ref, nil
}

// SMSCapacity selects source as message storage and returns how many slots
// are used and how many exist. An empty source means the configured one.
func (m *Modem) SMSCapacity(ctx context.Context, source string) (used, total int, err error) {
	source = m.source(source)
	cmd := at.Cmd(`CPMS="` + source + `"`)
	resp, err := m.expectOK(ctx, cmd)
	if err != nil {
		return 0, 0, err
	}

	value, ok := resp.Line("+CPMS:")
	if !ok {
		return 0, 0, errors.Wrapf(ErrUnexpectedResponse, "%s: no +CPMS line", cmd)
	}
	fields := strings.Split(value, ",")
	if len(fields) < 2 {
		return 0, 0, errors.Wrapf(ErrUnexpectedResponse, "%s: %q", cmd, value)
	}
	used, err = strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return 0, 0, errors.Wrapf(ErrUnexpectedResponse, "%s: used %q", cmd, fields[0])
	}
	total, err = strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return 0, 0, errors.Wrapf(ErrUnexpectedResponse, "%s: total %q", cmd, fields[1])
	}
	return used, total, nil
}

// ListSMS returns every message stored in source.
func (m *Modem) ListSMS(ctx context.Context, source string) ([]SMS, error) {
	source = m.source(source)
	if err := m.textMode(ctx); err != nil {
		return nil, err
	}
	if _, _, err := m.SMSCapacity(ctx, source); err != nil {
		return nil, err
	}

	all, err := m.textParam("ALL")
	if err != nil {
		return nil, err
	}
	resp, err := m.expectOK(ctx, at.Cmd(`CMGL="`+all+`"`))
	if err != nil {
		return nil, err
	}
	return m.parseMessages(resp.Lines, "+CMGL:", source)
}

// GetSMS reads the message at index (1-based) in source. The index is
// checked against the storage capacity first. An empty slot yields
// ErrNoMessage.
func (m *Modem) GetSMS(ctx context.Context, index int, source string) (SMS, error) {
	return m.readSMS(ctx, index, m.source(source), true)
}

func (m *Modem) readSMS(ctx context.Context, index int, source string, checkRange bool) (SMS, error) {
	if index < 1 {
		return SMS{}, errors.Wrapf(ErrIndexOutOfRange, "%d", index)
	}
	if err := m.textMode(ctx); err != nil {
		return SMS{}, err
	}
	_, total, err := m.SMSCapacity(ctx, source)
	if err != nil {
		return SMS{}, err
	}
	if checkRange && index > total {
		return SMS{}, errors.Wrapf(ErrIndexOutOfRange, "%d not in 1..%d of %s", index, total, source)
	}

	resp, err := m.expectOK(ctx, at.Cmd("CMGR="+strconv.Itoa(index)))
	if err != nil {
		return SMS{}, err
	}
	msgs, err := m.parseMessages(resp.Lines, "+CMGR:", source)
	if err != nil {
		return SMS{}, err
	}
	if len(msgs) == 0 {
		return SMS{}, errors.Wrapf(ErrNoMessage, "%d in %s", index, source)
	}
	msg := msgs[0]
	msg.Index = index
	return msg, nil
}

// DeleteSMS deletes the message at index in source and returns it.
// Indices of the remaining messages do not change.
func (m *Modem) DeleteSMS(ctx context.Context, index int, source string) (SMS, error) {
	msg, err := m.readSMS(ctx, index, m.source(source), true)
	if err != nil {
		return SMS{}, err
	}
	if err := m.deleteSMS(ctx, index); err != nil {
		return SMS{}, err
	}
	return msg, nil
}

// DeleteAllSMS deletes every message in source one by one and returns the
// deleted messages. On failure the messages deleted so far are returned
// along with the error.
func (m *Modem) DeleteAllSMS(ctx context.Context, source string) ([]SMS, error) {
	msgs, err := m.ListSMS(ctx, source)
	if err != nil {
		return nil, err
	}

	deleted := make([]SMS, 0, len(msgs))
	for _, msg := range msgs {
		if err := m.deleteSMS(ctx, msg.Index); err != nil {
			return deleted, errors.Wrapf(err, "delete message %d", msg.Index)
		}
		deleted = append(deleted, msg)
	}
	return deleted, nil
}

func (m *Modem) deleteSMS(ctx context.Context, index int) error {
	_, err := m.expectOK(ctx, at.Cmd("CMGD="+strconv.Itoa(index)))
	return err
}

// textMode selects SMS text mode and the character set of the codec.
func (m *Modem) textMode(ctx context.Context) error {
	if _, err := m.expectOK(ctx, at.Cmd("CMGF=1")); err != nil {
		return errors.Wrap(err, "set SMS text mode")
	}
	if _, err := m.expectOK(ctx, at.Cmd(`CSCS="`+m.codec.Charset()+`"`)); err != nil {
		return errors.Wrap(err, "select character set")
	}
	return nil
}

// textParam encodes a string parameter the way the selected character set
// expects it on the command line.
func (m *Modem) textParam(s string) (string, error) {
	b, err := sms.Encode(s, m.codec)
	if err != nil {
		return "", err
	}
	p := string(m.codec.Payload(b))
	if strings.ContainsAny(p, "\"\r\n") {
		return "", errors.Wrapf(at.ErrInvalidCommand, "parameter %q", s)
	}
	return p, nil
}

func (m *Modem) source(source string) string {
	if source == "" {
		return m.config.SMSSource
	}
	return source
}

// parseMessages turns +CMGL or +CMGR output into messages. Each header
// line is followed by the message text, possibly spanning several lines.
// Lines before the first header are unsolicited and dropped.
func (m *Modem) parseMessages(lines []string, prefix, source string) ([]SMS, error) {
	var (
		msgs []SMS
		text []string
	)
	flush := func() {
		if len(msgs) == 0 {
			return
		}
		msgs[len(msgs)-1].Text = m.decodeText(strings.Join(text, "\n"))
		text = nil
	}

	for _, line := range lines {
		if !strings.HasPrefix(line, prefix) {
			if len(msgs) > 0 {
				text = append(text, line)
			}
			continue
		}

		flush()
		msg, err := parseHeader(strings.TrimSpace(line[len(prefix):]), prefix == "+CMGL:")
		if err != nil {
			return nil, err
		}
		msg.Source = source
		msg.Sender = m.decodeText(msg.Sender)
		msgs = append(msgs, msg)
	}
	flush()
	return msgs, nil
}

// parseHeader reads the quoted, comma separated header of a message.
// +CMGL headers start with the index, +CMGR ones do not.
func parseHeader(header string, indexed bool) (SMS, error) {
	r := csv.NewReader(strings.NewReader(header))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	fields, err := r.Read()
	if err != nil {
		return SMS{}, errors.Wrapf(ErrUnexpectedResponse, "message header %q: %v", header, err)
	}

	var msg SMS
	if indexed {
		if len(fields) == 0 {
			return SMS{}, errors.Wrapf(ErrUnexpectedResponse, "message header %q", header)
		}
		msg.Index, err = strconv.Atoi(fields[0])
		if err != nil {
			return SMS{}, errors.Wrapf(ErrUnexpectedResponse, "message index in %q", header)
		}
		fields = fields[1:]
	}
	if len(fields) < 2 {
		return SMS{}, errors.Wrapf(ErrUnexpectedResponse, "message header %q", header)
	}
	msg.Status = fields[0]
	msg.Sender = fields[1]
	// fields[2] is the phonebook name, usually empty.
	if len(fields) > 3 {
		msg.Time = fields[3]
	}
	return msg, nil
}

func (m *Modem) decodeText(s string) string {
	text, err := sms.DecodePayload(m.codec, []byte(s))
	if err != nil {
		m.logger.Warn("keeping undecodable text as is", zap.String("codec", m.codec.Name()), zap.Error(err))
		return s
	}
	return text
}
