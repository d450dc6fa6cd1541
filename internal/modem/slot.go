package modem

import (
	"context"
	"time"

	"github.com/zerynth/lib-quectel-ug96/internal/at"
)

// Result is the outcome of a command.
type Result uint8

const (
	ResultPending Result = iota
	ResultOK
	ResultError
	ResultTimeout
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultError:
		return "error"
	case ResultTimeout:
		return "timeout"
	}
	return "pending"
}

// SlotOptions describe the command about to be issued.
type SlotOptions struct {
	// Max sizes the slot's own buffer for the last parameter line.
	Max int
	// Timeout defaults to one second.
	Timeout time.Duration
	// Params is the number of parameter lines expected before OK.
	Params int
	// Variable completes the command on OK whatever the number of lines.
	Variable bool

	sms *smsCollector
}

// Slot is the single in-flight command of a Driver.
type Slot struct {
	cmd      *at.Descriptor
	resp     []byte
	n        int
	params   int
	received int
	variable bool
	start    time.Time
	timeout  time.Duration

	result Result
	errMsg string

	done     chan struct{}
	entered  chan Mode
	resume   chan struct{}
	sms      *smsCollector
	released bool
}

// Result is valid once Wait returned.
func (s *Slot) Result() Result { return s.result }

// Response is the stored parameter line without its token.
func (s *Slot) Response() []byte { return s.resp[:s.n] }

// Err converts the result into an error.
func (s *Slot) Err() error {
	switch s.result {
	case ResultOK:
		return nil
	case ResultError:
		return &ProtocolError{Command: s.cmd.Token, Message: s.errMsg}
	}
	return ErrTimeout
}

func (s *Slot) store(b []byte) {
	s.n = copy(s.resp, b)
}

// Acquire blocks until the command slot is free and publishes a new slot
// for cmd. ctx only bounds the wait for the slot.
func (d *Driver) Acquire(ctx context.Context, cmd at.Command, opts SlotOptions) (*Slot, error) {
	if err := d.lock(ctx); err != nil {
		return nil, err
	}
	s := &Slot{
		cmd:      at.Get(cmd),
		params:   opts.Params,
		variable: opts.Variable,
		timeout:  opts.Timeout,
		done:     make(chan struct{}),
		entered:  make(chan Mode, 1),
		resume:   make(chan struct{}, 1),
		sms:      opts.sms,
	}
	if opts.Max > 0 {
		s.resp = make([]byte, opts.Max)
	}
	if s.timeout <= 0 {
		s.timeout = cmdTimeout
	}
	d.mu.Lock()
	s.start = time.Now()
	d.slot = s
	d.mu.Unlock()
	return s, nil
}

// Send writes AT<token><args>\r.
func (d *Driver) Send(cmd at.Command, args string) error {
	d.log.Debugf("TX: AT%s%s", at.Get(cmd).Token, args)
	return d.write(at.Encode(cmd, args))
}

// Wait blocks until the loop resolves s to OK, ERROR or TIMEOUT.
func (d *Driver) Wait(s *Slot) error {
	select {
	case <-s.done:
		return s.Err()
	case <-d.closed:
		return ErrClosed
	}
}

// Release frees the slot for the next caller. Extra calls are ignored.
func (d *Driver) Release(s *Slot) {
	if s.released {
		return
	}
	s.released = true
	d.mu.Lock()
	if d.slot == s {
		d.slot = nil
	}
	d.mu.Unlock()
	s.unpark()
	d.unlock()
}

// Exec runs one command and returns a copy of its parameter line.
func (d *Driver) Exec(ctx context.Context, cmd at.Command, args string, opts SlotOptions) ([]byte, error) {
	s, err := d.Acquire(ctx, cmd, opts)
	if err != nil {
		return nil, err
	}
	defer d.Release(s)
	if err := d.Send(cmd, args); err != nil {
		return nil, err
	}
	if err := d.Wait(s); err != nil {
		return nil, err
	}
	return append([]byte(nil), s.Response()...), nil
}

// complete resolves s if it is still the active slot.
func (d *Driver) complete(s *Slot, r Result, msg string) {
	d.mu.Lock()
	if d.slot != s {
		d.mu.Unlock()
		return
	}
	d.slot = nil
	d.mu.Unlock()
	s.result = r
	s.errMsg = msg
	close(s.done)
}

func (d *Driver) active() *Slot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slot
}

// awaitMode waits until the loop parked in mode m for this slot.
func (d *Driver) awaitMode(s *Slot, m Mode) error {
	t := time.NewTimer(d.cfg.ModeWait)
	defer t.Stop()
	select {
	case got := <-s.entered:
		if got != m {
			return ErrNoPrompt
		}
		return nil
	case <-s.done:
		if err := s.Err(); err != nil {
			return err
		}
		return ErrNoPrompt
	case <-t.C:
		return ErrNoPrompt
	case <-d.closed:
		return ErrClosed
	}
}

// unpark lets the loop leave prompt or buffer mode.
func (s *Slot) unpark() {
	select {
	case s.resume <- struct{}{}:
	default:
	}
}
