package modem

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/zerynth/lib-quectel-ug96/internal/at"
)

// pdpContext is the PDP context used for all data services.
const pdpContext = 1

// dnsQuery collects the "dnsgip" notifications of one resolution.
type dnsQuery struct {
	header bool
	count  int
	code   int
	addrs  []string
	ready  chan struct{}
	done   bool
}

func (q *dnsQuery) finish() {
	if !q.done {
		q.done = true
		close(q.ready)
	}
}

// dnsLine handles either the header `"dnsgip",<err>,<count>,<ttl>` or one
// `"dnsgip","<address>"` line. The query is ready once count addresses have
// been seen or the modem reported an error.
func (d *Driver) dnsLine(args []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.dns
	if q == nil || q.done {
		d.log.Debugf("stray dnsgip notification: %s", args)
		return
	}

	var val []byte
	at.ParseArgs(args, "ss", nil, &val)
	val = bytes.TrimSpace(val)
	if len(val) > 0 && val[0] == '"' {
		q.addrs = append(q.addrs, string(at.Unquote(val)))
		q.count--
	} else {
		var code, count int
		n := at.ParseArgs(args, "sii", nil, &code, &count)
		switch {
		case n == 3 && code == 0:
			q.header = true
			q.count = count
		case n >= 2:
			q.code = code
			q.count = 0
		default:
			q.code = -1
			q.count = 0
		}
	}
	if q.count <= 0 {
		q.finish()
		d.events.publish(Event{Kind: EventDNSResolved, Status: len(q.addrs)})
	}
}

// Resolve asks the modem to resolve host and returns every address received.
func (d *Driver) Resolve(ctx context.Context, host string) ([]string, error) {
	d.dnsMu.Lock()
	defer d.dnsMu.Unlock()

	q := &dnsQuery{ready: make(chan struct{})}
	d.mu.Lock()
	d.dns = q
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.dns = nil
		d.mu.Unlock()
	}()

	_, err := d.Exec(ctx, at.QIDNSGIP, "="+at.FormatArgs(pdpContext, host), SlotOptions{Timeout: d.cfg.DNSWait})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}

	t := time.NewTimer(d.cfg.DNSWait)
	defer t.Stop()
	select {
	case <-q.ready:
	case <-t.C:
		return nil, fmt.Errorf("resolve %s: %w", host, ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.closed:
		return nil, ErrClosed
	}

	d.mu.Lock()
	addrs, code := q.addrs, q.code
	d.mu.Unlock()
	if len(addrs) == 0 {
		return nil, &ProtocolError{Command: "+QIDNSGIP", Message: fmt.Sprintf("resolve %s failed (%d)", host, code)}
	}
	d.log.Debugf("resolved %s to %v", host, addrs)
	return addrs, nil
}
