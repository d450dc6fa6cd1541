package modem

import (
	"bytes"
	"errors"
	"time"

	"github.com/zerynth/lib-quectel-ug96/internal/at"
)

var (
	lineOK        = []byte("OK")
	lineError     = []byte("ERROR")
	lineConnect   = []byte("CONNECT")
	crlf          = "\r\n"
	promptAllowed = map[at.Command]bool{at.QISEND: true, at.QSSLSEND: true, at.CMGS: true}
)

// loop is the only reader of the transport while the driver runs.
func (d *Driver) loop(stop, done chan struct{}) {
	defer close(done)
	d.log.Debug("protocol loop started")
	for {
		select {
		case <-stop:
			d.log.Debug("protocol loop stopped")
			return
		default:
		}

		line, err := d.lr.ReadLine(d.cfg.PollInterval)
		switch {
		case err == nil:
			d.handleLine(bytes.TrimRight(line, crlf), stop)
		case errors.Is(err, at.ErrTimeout):
			d.handleIdle(line, stop)
		case errors.Is(err, at.ErrLineTooLong):
			d.log.Warnf("discarding %d bytes without line terminator", len(line))
		default:
			d.log.Errorf("read: %v", err)
			select {
			case <-stop:
			case <-time.After(d.cfg.PollInterval):
			}
		}
		d.checkTimeout()
	}
}

func (d *Driver) checkTimeout() {
	s := d.active()
	if s == nil || time.Since(s.start) <= s.timeout {
		return
	}
	d.log.Warnf("%s timed out after %v", s.cmd.Token, s.timeout)
	d.complete(s, ResultTimeout, "")
}

// handleIdle looks at the bytes of an unterminated line for a data prompt.
func (d *Driver) handleIdle(partial []byte, stop chan struct{}) {
	if len(partial) == 0 || partial[0] != '>' {
		return
	}
	d.lr.Discard()
	s := d.active()
	if s == nil || !promptAllowed[s.cmd.ID] {
		d.log.Debug("ignoring unexpected prompt")
		return
	}
	d.park(s, ModePrompt, stop)
}

// park hands the stream to the slot owner until it calls unpark. Prompt mode
// is time boxed so a caller that never writes cannot stall the loop.
func (d *Driver) park(s *Slot, m Mode, stop chan struct{}) {
	d.setMode(m)
	defer d.setMode(ModeNormal)
	select {
	case s.entered <- m:
	default:
	}

	var limit <-chan time.Time
	if m == ModePrompt {
		t := time.NewTimer(d.cfg.PromptLimit)
		defer t.Stop()
		limit = t.C
	}
	select {
	case <-s.resume:
	case <-limit:
		d.log.Warnf("%s: prompt not served within %v", s.cmd.Token, d.cfg.PromptLimit)
	case <-stop:
	}
}

func (d *Driver) handleLine(line []byte, stop chan struct{}) {
	s := d.active()
	if len(line) == 0 {
		if s != nil && s.sms != nil {
			s.sms.body(line)
		}
		return
	}
	d.log.Debugf("RX: %s", line)

	if desc, ok := at.Lookup(line); ok {
		args := bytes.TrimLeft(line[len(desc.Token)+1:], " ")
		solicited := s != nil && s.cmd.ID == desc.ID &&
			!(desc.Notification && s.params == 0 && !s.variable)
		switch {
		case solicited:
			s.received++
			if s.sms != nil {
				s.sms.header(args)
				return
			}
			s.store(args)
			if desc.ID == at.QIRD || desc.ID == at.QSSLRECV {
				d.park(s, ModeBuffer, stop)
			}
		case desc.Notification:
			d.dispatchURC(desc, args)
		default:
			d.log.Debugf("discarding late %s response", desc.Token)
		}
		return
	}

	if s == nil {
		d.log.Debugf("discarding %q: no command pending", line)
		return
	}
	msg, failed := errorMessage(line)
	switch {
	case bytes.Equal(line, lineOK):
		if s.variable || s.received >= s.params {
			d.complete(s, ResultOK, "")
		} else {
			d.log.Warnf("%s: OK after %d of %d parameter lines", s.cmd.Token, s.received, s.params)
		}
	case bytes.Equal(line, lineError):
		d.complete(s, ResultError, "")
	case failed:
		d.complete(s, ResultError, msg)
	case s.cmd.ID == at.QFUPL && bytes.HasPrefix(line, lineConnect):
		d.park(s, ModeBuffer, stop)
	case s.sms != nil:
		s.sms.body(line)
	case line[0] == '+':
		d.log.Debugf("discarding unregistered %q", line)
	case s.cmd.Shape == at.ShapeString:
		s.store(line)
		s.received++
		d.complete(s, ResultOK, "")
	case s.cmd.Shape == at.ShapeStringOK:
		s.store(line)
		s.received++
	default:
		d.log.Debugf("discarding %q while waiting for %s", line, s.cmd.Token)
	}
}
