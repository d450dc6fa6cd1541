package modem

import (
	"sync"
	"time"
)

type EventKind string

const (
	EventSMSReceived    EventKind = "sms_received"
	EventRegistration   EventKind = "registration"
	EventSocketOpened   EventKind = "socket_opened"
	EventSocketFailed   EventKind = "socket_failed"
	EventSocketClosed   EventKind = "socket_closed"
	EventDataPending    EventKind = "data_pending"
	EventDNSResolved    EventKind = "dns_resolved"
	EventPDPDeactivated EventKind = "pdp_deactivated"
)

// Event reports a notification handled by the driver.
type Event struct {
	Kind   EventKind `json:"kind"`
	Socket int       `json:"socket"`
	Index  int       `json:"index,omitempty"`
	Status int       `json:"status,omitempty"`
	Time   time.Time `json:"time"`
}

type eventHub struct {
	mu   sync.Mutex
	size int
	subs map[chan Event]struct{}
}

func newEventHub(size int) *eventHub {
	return &eventHub{size: size, subs: make(map[chan Event]struct{})}
}

// publish never blocks; a subscriber that is not keeping up loses events.
func (h *eventHub) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *eventHub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.size)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (h *eventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
