package modem

import (
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakePort is a scripted modem. Each write that equals a registered key is
// answered with the next queued reply for that key; the last reply repeats.
type fakePort struct {
	mu      sync.Mutex
	rx      []byte
	written []string
	replies map[string][]string
	closed  bool
	avail   chan struct{}
	timeout time.Duration
}

func newFakePort() *fakePort {
	return &fakePort{
		replies: make(map[string][]string),
		avail:   make(chan struct{}, 1),
		timeout: 5 * time.Millisecond,
	}
}

// on registers replies for a written command or payload.
func (f *fakePort) on(write string, replies ...string) *fakePort {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[write] = append(f.replies[write], replies...)
	return f
}

// feed makes data readable as if the modem sent it unsolicited.
func (f *fakePort) feed(data string) {
	f.mu.Lock()
	f.rx = append(f.rx, data...)
	f.mu.Unlock()
	select {
	case f.avail <- struct{}{}:
	default:
	}
}

func (f *fakePort) Read(p []byte) (int, error) {
	deadline := time.Now().Add(f.timeout)
	for {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return 0, io.EOF
		}
		if len(f.rx) > 0 {
			n := copy(p, f.rx)
			f.rx = f.rx[n:]
			f.mu.Unlock()
			return n, nil
		}
		f.mu.Unlock()

		left := time.Until(deadline)
		if left <= 0 {
			return 0, nil
		}
		select {
		case <-f.avail:
		case <-time.After(left):
		}
	}
}

func (f *fakePort) Write(p []byte) (int, error) {
	w := string(p)
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	f.written = append(f.written, w)
	queue := f.replies[w]
	var reply string
	if len(queue) > 0 {
		reply = queue[0]
		if len(queue) > 1 {
			f.replies[w] = queue[1:]
		}
	}
	f.mu.Unlock()
	if reply != "" {
		f.feed(reply)
	}
	return len(p), nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (f *fakePort) writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

// count returns how many writes start with prefix.
func (f *fakePort) count(prefix string) int {
	n := 0
	for _, w := range f.writes() {
		if strings.HasPrefix(w, prefix) {
			n++
		}
	}
	return n
}

// newTestDriver returns a driver on f with its protocol loop running and
// short timing defaults.
func newTestDriver(t *testing.T, f *fakePort, tweak ...func(*Config)) *Driver {
	t.Helper()
	cfg := Config{
		PollInterval: 10 * time.Millisecond,
		ModeWait:     time.Second,
		PromptLimit:  time.Second,
		RecvWait:     200 * time.Millisecond,
		ConnectWait:  time.Second,
		DNSWait:      time.Second,
	}
	for _, fn := range tweak {
		fn(&cfg)
	}
	d := newDriver(f, cfg)
	d.startLoop()
	t.Cleanup(func() { d.Close() })
	return d
}
