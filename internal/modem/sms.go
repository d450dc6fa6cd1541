package modem

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/warthog618/sms/encoding/ucs2"
	"github.com/zerynth/lib-quectel-ug96/internal/at"
)

const (
	charsetUCS2 = "UCS2"
	ctrlZ       = 0x1A
)

// SMS is one text mode message read from the SIM.
type SMS struct {
	Index     int       `json:"index"`
	Unread    bool      `json:"unread"`
	Sender    string    `json:"sender"`
	Alpha     string    `json:"alpha,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RawTime   string    `json:"raw_time"`
	Text      string    `json:"text"`
}

// encodeText converts s for the configured TE character set.
func (d *Driver) encodeText(s string) string {
	if d.cfg.SMSCharset != charsetUCS2 {
		return s
	}
	return strings.ToUpper(hex.EncodeToString(ucs2.Encode([]rune(s))))
}

// decodeText reverses encodeText. Input that is not valid hex UCS2 is
// returned unchanged.
func (d *Driver) decodeText(s string) string {
	if d.cfg.SMSCharset != charsetUCS2 || len(s)%4 != 0 {
		return s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return s
	}
	runes, err := ucs2.Decode(raw)
	if err != nil {
		return s
	}
	return string(runes)
}

// smsCollector fills a list of messages from a +CMGL answer: a header line
// per message followed by its text.
type smsCollector struct {
	d      *Driver
	max    int
	offset int
	list   []SMS
	skip   bool

	// blank counts empty lines not yet known to belong to the text: the
	// modem also separates entries and the final OK with one.
	blank   int
	started bool
}

func (c *smsCollector) header(args []byte) {
	c.skip = true
	c.blank, c.started = 0, false
	var idx int
	var stat, oa, alpha, scts []byte
	if at.ParseArgs(args, "issss", &idx, &stat, &oa, &alpha, &scts) < 3 {
		c.d.log.Warnf("malformed +CMGL header: %s", args)
		return
	}
	status := c.d.decodeText(string(at.Unquote(stat)))
	if status != "REC READ" && status != "REC UNREAD" {
		return
	}
	if len(c.list) >= c.max || idx < c.offset {
		return
	}
	raw := string(at.Unquote(scts))
	ts, err := ParseModemTime(raw)
	if err != nil {
		c.d.log.Debugf("sms %d timestamp %q: %v", idx, raw, err)
	}
	c.skip = false
	c.list = append(c.list, SMS{
		Index:     idx,
		Unread:    status == "REC UNREAD",
		Sender:    c.d.decodeText(string(at.Unquote(oa))),
		Alpha:     c.d.decodeText(string(at.Unquote(alpha))),
		Timestamp: ts,
		RawTime:   raw,
	})
}

func (c *smsCollector) body(line []byte) {
	if c.skip || len(c.list) == 0 {
		return
	}
	text := bytes.TrimRight(line, "\r\n")
	if len(text) == 0 {
		c.blank++
		return
	}
	last := &c.list[len(c.list)-1]
	if c.started {
		last.Text += "\n"
	}
	last.Text += strings.Repeat("\n", c.blank) + c.d.decodeText(string(text))
	c.blank, c.started = 0, true
}

// SendSMS sends text to number and returns the message reference.
func (d *Driver) SendSMS(ctx context.Context, number, text string) (int, error) {
	payload := append([]byte(d.encodeText(text)), ctrlZ)
	resp, err := d.withPrompt(ctx, at.CMGS, "="+at.FormatArgs(d.encodeText(number)), payload,
		SlotOptions{Max: 64, Params: 1, Timeout: smsSendTimeout})
	if err != nil {
		return -1, fmt.Errorf("send sms to %s: %w", number, err)
	}
	var mr int
	if at.ParseArgs(resp, "i", &mr) != 1 {
		return -1, fmt.Errorf("+CMGS %q: %w", resp, ErrMalformedResponse)
	}
	d.log.Infof("sms to %s sent, reference %d", number, mr)
	return mr, nil
}

// ListSMS returns up to max messages with index >= offset, only unread ones
// if unread is set. It resets the pending counter.
func (d *Driver) ListSMS(ctx context.Context, unread bool, max, offset int) ([]SMS, error) {
	filter := "ALL"
	if unread {
		filter = "REC UNREAD"
	}
	c := &smsCollector{d: d, max: max, offset: offset, skip: true}
	s, err := d.Acquire(ctx, at.CMGL, SlotOptions{Max: 64, Variable: true, Timeout: smsListTimeout, sms: c})
	if err != nil {
		return nil, err
	}
	defer d.Release(s)

	d.mu.Lock()
	d.pendingSMS = 0
	d.mu.Unlock()
	if err := d.Send(at.CMGL, "="+at.FormatArgs(filter)); err != nil {
		return nil, err
	}
	if err := d.Wait(s); err != nil {
		return nil, fmt.Errorf("list sms: %w", err)
	}
	return c.list, nil
}

func (d *Driver) DeleteSMS(ctx context.Context, index int) error {
	_, err := d.Exec(ctx, at.CMGD, "="+at.FormatArgs(index), SlotOptions{})
	return err
}

// PendingSMS counts +CMTI notifications since the last ListSMS.
func (d *Driver) PendingSMS() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pendingSMS
}

// SMSC queries the service center address.
func (d *Driver) SMSC(ctx context.Context) (string, error) {
	resp, err := d.Exec(ctx, at.CSCA, "?", SlotOptions{Max: 128, Params: 1})
	if err != nil {
		return "", err
	}
	var addr []byte
	if at.ParseArgs(resp, "s", &addr) != 1 {
		return "", fmt.Errorf("+CSCA %q: %w", resp, ErrMalformedResponse)
	}
	smsc := d.decodeText(string(at.Unquote(addr)))
	d.mu.Lock()
	d.smsc = smsc
	d.mu.Unlock()
	return smsc, nil
}

func (d *Driver) SetSMSC(ctx context.Context, addr string) error {
	if _, err := d.Exec(ctx, at.CSCA, "="+at.FormatArgs(d.encodeText(addr)), SlotOptions{}); err != nil {
		return err
	}
	d.mu.Lock()
	d.smsc = addr
	d.mu.Unlock()
	return nil
}
