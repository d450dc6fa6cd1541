package modem

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestResolve(t *testing.T) {
	t.Run("all addresses", func(t *testing.T) {
		f := newFakePort().on("AT+QIDNSGIP=1,\"example.com\"\r", okReply+
			"\r\n+QIURC: \"dnsgip\",0,2,600\r\n"+
			"\r\n+QIURC: \"dnsgip\",\"93.184.216.34\"\r\n"+
			"\r\n+QIURC: \"dnsgip\",\"93.184.216.35\"\r\n")
		d := newTestDriver(t, f)

		addrs, err := d.Resolve(context.Background(), "example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"93.184.216.34", "93.184.216.35"}
		if !slices.Equal(addrs, want) {
			t.Errorf("got %v, want %v", addrs, want)
		}
	})

	t.Run("modem error code", func(t *testing.T) {
		f := newFakePort().on("AT+QIDNSGIP=1,\"nowhere.invalid\"\r", okReply+
			"\r\n+QIURC: \"dnsgip\",565\r\n")
		d := newTestDriver(t, f)

		_, err := d.Resolve(context.Background(), "nowhere.invalid")
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			t.Errorf("expected ProtocolError, got %v", err)
		}
	})

	t.Run("no answer", func(t *testing.T) {
		f := newFakePort().on("AT+QIDNSGIP=1,\"slow.example\"\r", okReply)
		d := newTestDriver(t, f)

		if _, err := d.Resolve(context.Background(), "slow.example"); !errors.Is(err, ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})
}

func TestDNSCountDown(t *testing.T) {
	d := newDriver(newFakePort(), Config{})
	q := &dnsQuery{ready: make(chan struct{})}
	d.dns = q

	isReady := func() bool {
		select {
		case <-q.ready:
			return true
		default:
			return false
		}
	}

	d.dnsLine([]byte(`"dnsgip",0,2,60`))
	if isReady() {
		t.Fatal("ready after header")
	}
	d.dnsLine([]byte(`"dnsgip","1.1.1.1"`))
	if isReady() {
		t.Fatal("ready after first address")
	}
	d.dnsLine([]byte(`"dnsgip","8.8.8.8"`))
	if !isReady() {
		t.Fatal("not ready after both addresses")
	}
	if !slices.Equal(q.addrs, []string{"1.1.1.1", "8.8.8.8"}) {
		t.Errorf("addrs = %v", q.addrs)
	}

	// a late line must not close the channel twice
	d.dnsLine([]byte(`"dnsgip","9.9.9.9"`))
}
