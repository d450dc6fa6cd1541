package modem

import (
	"github.com/zerynth/lib-quectel-ug96/internal/at"
)

// dispatchURC applies a notification to the driver state. It runs on the
// loop goroutine and never blocks.
func (d *Driver) dispatchURC(desc *at.Descriptor, args []byte) {
	switch desc.ID {
	case at.CMTI:
		var index int
		at.ParseArgs(args, "si", nil, &index)
		d.mu.Lock()
		d.pendingSMS++
		pending := d.pendingSMS
		d.mu.Unlock()
		d.log.Infof("SMS received at index %d, %d pending", index, pending)
		d.events.publish(Event{Kind: EventSMSReceived, Index: index, Status: pending})

	case at.CREG:
		var stat, tech int
		var lac, ci []byte
		n := at.ParseArgs(args, "issi", &stat, &lac, &ci, &tech)
		if n == 0 {
			d.log.Warnf("malformed %s notification: %s", desc.Token, args)
			return
		}
		d.mu.Lock()
		d.net.Registration = RegStatus(stat)
		if n >= 3 {
			d.net.LAC = string(at.Unquote(lac))
			d.net.CI = string(at.Unquote(ci))
		}
		if n == 4 {
			d.net.Tech = tech
		}
		d.mu.Unlock()
		d.log.Infof("registration: %s", RegStatus(stat))
		d.events.publish(Event{Kind: EventRegistration, Status: stat})

	case at.QIOPEN, at.QSSLOPEN:
		var id, code int
		if at.ParseArgs(args, "ii", &id, &code) != 2 {
			d.log.Warnf("malformed %s notification: %s", desc.Token, args)
			return
		}
		s := d.socketAt(id)
		if s == nil {
			d.log.Warnf("%s for unknown socket %d", desc.Token, id)
			return
		}
		s.openResult(code == 0)
		if code == 0 {
			d.events.publish(Event{Kind: EventSocketOpened, Socket: id})
		} else {
			d.log.Warnf("socket %d open failed with code %d", id, code)
			d.events.publish(Event{Kind: EventSocketFailed, Socket: id, Status: code})
		}

	case at.QIURC, at.QSSLURC:
		d.ipNotification(desc, args)

	default:
		d.log.Debugf("ignoring notification %s", desc.Token)
	}
}

func (d *Driver) ipNotification(desc *at.Descriptor, args []byte) {
	var kind []byte
	if at.ParseArgs(args, "s", &kind) != 1 {
		d.log.Warnf("malformed %s notification: %s", desc.Token, args)
		return
	}
	switch string(at.Unquote(kind)) {
	case "closed":
		if s := d.notifiedSocket(desc, args); s != nil {
			s.closing()
			d.log.Infof("socket %d closed by peer", s.id)
			d.events.publish(Event{Kind: EventSocketClosed, Socket: s.id})
		}
	case "recv":
		if s := d.notifiedSocket(desc, args); s != nil {
			s.signal()
			d.events.publish(Event{Kind: EventDataPending, Socket: s.id})
		}
	case "dnsgip":
		d.dnsLine(args)
	case "pdpdeact":
		d.mu.Lock()
		d.net.Active = false
		d.mu.Unlock()
		d.log.Warn("PDP context deactivated by network")
		d.events.publish(Event{Kind: EventPDPDeactivated})
	default:
		d.log.Infof("ignoring %s %s", desc.Token, args)
	}
}

func (d *Driver) notifiedSocket(desc *at.Descriptor, args []byte) *Socket {
	var id int
	if at.ParseArgs(args, "si", nil, &id) != 2 {
		d.log.Warnf("malformed %s notification: %s", desc.Token, args)
		return nil
	}
	s := d.socketAt(id)
	if s == nil {
		d.log.Warnf("%s for unknown socket %d", desc.Token, id)
	}
	return s
}
