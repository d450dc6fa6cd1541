package at_test

import (
	"testing"

	"github.com/zerynth/lib-quectel-ug96/internal/at"
)

func TestLookup(t *testing.T) {
	cases := []struct {
		line string
		want at.Command
		ok   bool
	}{
		{"+CSQ: 18,99\r\n", at.CSQ, true},
		{"+CCLK: \"19/03/07,10:00:00+04\"\r\n", at.CCLK, true},
		{"+QSSLURC: \"closed\",1\r\n", at.QSSLURC, true},
		{"+QGPS: 1\r\n", at.QGPS, true},
		{"+QGPSLOC: 123519.0,4807.038N\r\n", at.QGPSLOC, true},
		{"+QGPSCFG: \"outport\",\"usbnmea\"\r\n", at.QGPSCFG, true},
		{"+QIDNSGIP: 0\r\n", at.QIDNSGIP, true},
		{"+QIURC: \"recv\",0\r\n", at.QIURC, true},
		{"+CME ERROR: no network service\r\n", 0, false},
		{"+UNKNOWN: 1\r\n", 0, false},
		{"OK\r\n", 0, false},
		{"+CSQ\r\n", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			d, ok := at.Lookup([]byte(tc.line))
			if ok != tc.ok {
				t.Fatalf("Lookup(%q) ok = %v, want %v", tc.line, ok, tc.ok)
			}
			if ok && d.ID != tc.want {
				t.Errorf("Lookup(%q) = %s, want %s", tc.line, d.ID, tc.want)
			}
		})
	}
}

// A line carrying a longer token must never resolve to a shorter token it
// starts with.
func TestLookupPrefixSafe(t *testing.T) {
	for c := at.Command(0); c <= at.QSSLURC; c++ {
		short := at.Get(c).Token
		for o := at.Command(0); o <= at.QSSLURC; o++ {
			long := at.Get(o).Token
			if len(long) <= len(short) || long[:len(short)] != short {
				continue
			}
			d, ok := at.Lookup([]byte(long + ": 1\r\n"))
			if !ok || d.ID != o {
				t.Errorf("Lookup(%s) resolved to %v (ok=%v)", long, d, ok)
			}
			if d, ok := at.Lookup([]byte(short + "X: 1\r\n")); ok && d.ID == c {
				t.Errorf("Lookup(%sX) matched %s", short, short)
			}
		}
	}
}

func TestGetRoundTrip(t *testing.T) {
	for c := at.Command(0); c <= at.QSSLURC; c++ {
		d := at.Get(c)
		if d.ID != c {
			t.Errorf("Get(%d).ID = %d", c, d.ID)
		}
		got, ok := at.Lookup([]byte(d.Token + ": 0\r\n"))
		if !ok || got.ID != c {
			t.Errorf("Lookup(%s) = %v, %v", d.Token, got, ok)
		}
	}
}

func TestNotificationFlags(t *testing.T) {
	urcs := map[at.Command]bool{
		at.CMTI: true, at.CREG: true, at.QIOPEN: true,
		at.QIURC: true, at.QSSLOPEN: true, at.QSSLURC: true,
	}
	for c := at.Command(0); c <= at.QSSLURC; c++ {
		if got := at.Get(c).Notification; got != urcs[c] {
			t.Errorf("%s notification = %v, want %v", c, got, urcs[c])
		}
	}
}
