// Package modem drives a Quectel UG96 class modem over its AT command port.
//
// A single protocol loop goroutine owns the transport. Callers issue commands
// through the one command slot (Acquire, Send, Wait, Release); the loop
// correlates responses with it, dispatches unsolicited notifications and
// switches between line, prompt and raw data framing.
package modem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/zerynth/lib-quectel-ug96/internal/at"
	"go.uber.org/zap"
)

// Mode is the framing the protocol loop currently expects.
type Mode uint8

const (
	ModeNormal Mode = iota
	ModePrompt
	ModeBuffer
)

func (m Mode) String() string {
	switch m {
	case ModePrompt:
		return "prompt"
	case ModeBuffer:
		return "buffer"
	}
	return "normal"
}

// Info identifies the modem as reported by ATI.
type Info struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Revision     string `json:"revision"`
}

type Driver struct {
	cfg  Config
	log  *zap.SugaredLogger
	port Transport
	lr   *at.LineReader

	sendMu sync.Mutex
	permit chan struct{}

	mu         sync.Mutex
	slot       *Slot
	mode       Mode
	net        NetworkInfo
	pendingSMS int
	info       Info
	smsc       string
	dns        *dnsQuery
	loopStop   chan struct{}
	loopDone   chan struct{}

	dnsMu   sync.Mutex
	sockMu  sync.Mutex
	sockets []*Socket
	events  *eventHub

	closed    chan struct{}
	closeOnce sync.Once
}

// New dials the transport and prepares the driver. Call Start to run the
// startup handshake and the protocol loop.
func New(ctx context.Context, cfg Config) (*Driver, error) {
	if cfg.Dialer == nil {
		return nil, fmt.Errorf("no dialer configured: %w", ErrHardwareNotReady)
	}
	port, err := cfg.Dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return newDriver(port, cfg), nil
}

func newDriver(port Transport, cfg Config) *Driver {
	cfg.setDefaults()
	d := &Driver{
		cfg:    cfg,
		log:    cfg.Logger,
		port:   port,
		lr:     at.NewLineReader(port),
		permit: make(chan struct{}, 1),
		events: newEventHub(cfg.EventBuffer),
		closed: make(chan struct{}),
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		d.log.Warnf("set read timeout: %v", err)
	}
	d.sockets = make([]*Socket, cfg.MaxSockets)
	for i := range d.sockets {
		d.sockets[i] = newSocket(i)
	}
	return d
}

// Start runs the startup handshake and launches the protocol loop.
func (d *Driver) Start(ctx context.Context) error {
	if err := d.lock(ctx); err != nil {
		return err
	}
	defer d.unlock()

	d.mu.Lock()
	running := d.loopStop != nil
	d.mu.Unlock()
	if running {
		return nil
	}
	if err := d.handshake(ctx); err != nil {
		return err
	}
	d.startLoop()
	info := d.Info()
	d.log.Infof("modem ready: %s %s (%s)", info.Manufacturer, info.Model, info.Revision)
	return nil
}

func (d *Driver) handshake(ctx context.Context) error {
	alive := false
	for i := 0; i < d.cfg.AutobaudTries && !alive; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := d.direct("ATE1", 200*time.Millisecond)
		alive = err == nil
	}
	if !alive {
		return fmt.Errorf("no answer to autobaud probe: %w", ErrHardwareNotReady)
	}

	for _, cmd := range []string{"ATE0", "AT+IPR=115200", "AT+CMEE=2", "AT+CREG=2"} {
		if _, err := d.direct(cmd, cmdTimeout); err != nil {
			return fmt.Errorf("%s: %w: %w", cmd, ErrHardwareNotReady, err)
		}
	}

	lines, err := d.direct("ATI", cmdTimeout)
	if err != nil {
		return fmt.Errorf("ATI: %w: %w", ErrHardwareNotReady, err)
	}
	info := parseInfo(lines)
	d.mu.Lock()
	d.info = info
	d.mu.Unlock()

	optional := []string{"AT+CTZU=1", "AT+CMGF=1"}
	if d.cfg.SMSCharset == charsetUCS2 {
		optional = append(optional, `AT+CSCS="UCS2"`)
	}
	optional = append(optional, "AT+CNMI=2,1,0,0,0")
	for _, cmd := range optional {
		if _, err := d.direct(cmd, cmdTimeout); err != nil {
			d.log.Warnf("%s: %v", cmd, err)
		}
	}
	if lines, err := d.direct("AT+CSCA?", cmdTimeout); err == nil {
		for _, l := range lines {
			if rest, ok := strings.CutPrefix(l, "+CSCA:"); ok {
				var addr []byte
				at.ParseArgs([]byte(strings.TrimSpace(rest)), "s", &addr)
				smsc := d.decodeText(string(at.Unquote(addr)))
				d.mu.Lock()
				d.smsc = smsc
				d.mu.Unlock()
			}
		}
	}
	return nil
}

func parseInfo(lines []string) Info {
	var info Info
	for _, l := range lines {
		switch {
		case strings.HasPrefix(l, "Revision:"):
			info.Revision = strings.TrimSpace(strings.TrimPrefix(l, "Revision:"))
		case strings.HasPrefix(l, "AT"):
		case info.Manufacturer == "":
			info.Manufacturer = l
		case info.Model == "":
			info.Model = l
		}
	}
	return info
}

// direct runs a command synchronously while the protocol loop is not running.
func (d *Driver) direct(cmd string, timeout time.Duration) ([]string, error) {
	d.log.Debugf("TX: %s", cmd)
	if err := d.write([]byte(cmd + "\r")); err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	var lines []string
	for {
		left := time.Until(deadline)
		if left <= 0 {
			d.lr.Discard()
			return lines, ErrTimeout
		}
		raw, err := d.lr.ReadLine(left)
		if errors.Is(err, at.ErrTimeout) {
			d.lr.Discard()
			return lines, ErrTimeout
		}
		if err != nil && !errors.Is(err, at.ErrLineTooLong) {
			return lines, err
		}
		line := bytes.TrimSpace(raw)
		d.log.Debugf("RX: %s", line)
		switch {
		case len(line) == 0:
		case string(line) == "OK":
			return lines, nil
		case string(line) == "ERROR":
			return lines, &ProtocolError{Command: cmd}
		default:
			if msg, ok := errorMessage(line); ok {
				return lines, &ProtocolError{Command: cmd, Message: msg}
			}
			lines = append(lines, string(line))
		}
	}
}

// errorMessage extracts the text of a +CME ERROR or +CMS ERROR line.
func errorMessage(line []byte) (string, bool) {
	for _, p := range []string{"+CME ERROR:", "+CMS ERROR:"} {
		if rest, ok := bytes.CutPrefix(line, []byte(p)); ok {
			return string(bytes.TrimSpace(rest)), true
		}
	}
	return "", false
}

// Shutdown switches the radio off, powers the modem down and closes the driver.
func (d *Driver) Shutdown(ctx context.Context) error {
	if err := d.lock(ctx); err != nil {
		return err
	}
	defer d.unlock()

	d.stopLoop()
	if _, err := d.direct("AT+CFUN=0", cfunTimeout); err != nil {
		d.log.Warnf("AT+CFUN=0: %v", err)
	}
	_, err := d.direct("AT+QPOWD", 5*time.Second)
	if cerr := d.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close stops the protocol loop and closes the transport without talking to
// the modem. Blocked callers are released with ErrClosed.
func (d *Driver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.closed)
		d.stopLoop()
		for _, s := range d.sockets {
			s.signal()
		}
		err = d.port.Close()
		d.events.closeAll()
	})
	return err
}

// Bypass stops the protocol loop and hands the raw stream to fn. The loop is
// restarted when fn returns.
func (d *Driver) Bypass(ctx context.Context, fn func(rw io.ReadWriter) error) error {
	if err := d.lock(ctx); err != nil {
		return err
	}
	defer d.unlock()

	d.mu.Lock()
	running := d.loopStop != nil
	d.mu.Unlock()
	d.stopLoop()
	if running {
		defer d.startLoop()
	}
	d.lr.Discard()
	return fn(struct {
		io.Reader
		io.Writer
	}{d.lr, writerFunc(d.write)})
}

// RawCommand runs one command line outside the slot machinery and returns the
// lines before the final OK.
func (d *Driver) RawCommand(ctx context.Context, cmd string, timeout time.Duration) ([]string, error) {
	var lines []string
	err := d.Bypass(ctx, func(io.ReadWriter) error {
		var err error
		lines, err = d.direct(cmd, timeout)
		return err
	})
	return lines, err
}

type writerFunc func([]byte) error

func (f writerFunc) Write(p []byte) (int, error) {
	if err := f(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (d *Driver) write(b []byte) error {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	_, err := d.port.Write(b)
	return err
}

// lock takes the slot permit for driver-wide operations.
func (d *Driver) lock(ctx context.Context) error {
	select {
	case <-d.closed:
		return ErrClosed
	default:
	}
	select {
	case d.permit <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.closed:
		return ErrClosed
	}
}

func (d *Driver) unlock() { <-d.permit }

func (d *Driver) startLoop() {
	stop, done := make(chan struct{}), make(chan struct{})
	d.mu.Lock()
	d.loopStop, d.loopDone = stop, done
	d.mu.Unlock()
	go d.loop(stop, done)
}

func (d *Driver) stopLoop() {
	d.mu.Lock()
	stop, done := d.loopStop, d.loopDone
	d.loopStop, d.loopDone = nil, nil
	d.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Mode reports the framing the loop is in.
func (d *Driver) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

func (d *Driver) setMode(m Mode) {
	d.mu.Lock()
	d.mode = m
	d.mu.Unlock()
}

// Info returns what the modem reported at startup.
func (d *Driver) Info() Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

// Subscribe returns a channel of handled notifications and a function that
// cancels the subscription.
func (d *Driver) Subscribe() (<-chan Event, func()) {
	return d.events.subscribe()
}
