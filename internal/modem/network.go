package modem

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zerynth/lib-quectel-ug96/internal/at"
)

// RegStatus is the <stat> field of +CREG.
type RegStatus int

const (
	RegNotRegistered RegStatus = 0
	RegHome          RegStatus = 1
	RegSearching     RegStatus = 2
	RegDenied        RegStatus = 3
	RegUnknown       RegStatus = 4
	RegRoaming       RegStatus = 5
)

func (r RegStatus) String() string {
	switch r {
	case RegHome:
		return "Home Network"
	case RegSearching:
		return "Searching..."
	case RegDenied:
		return "Denied"
	case RegUnknown:
		return "Unknown"
	case RegRoaming:
		return "Roaming"
	}
	return "Not Registered"
}

func (r RegStatus) Registered() bool { return r == RegHome || r == RegRoaming }

// NetworkInfo is the last known network state, kept up to date by +CREG
// notifications and the queries below.
type NetworkInfo struct {
	Registration RegStatus `json:"registration"`
	LAC          string    `json:"lac"`
	CI           string    `json:"ci"`
	Tech         int       `json:"tech"`
	Attached     bool      `json:"attached"`
	Active       bool      `json:"active"`
}

// APN holds the packet data context settings used by Attach.
type APN struct {
	Name     string
	User     string
	Password string
	// Auth is 0 none, 1 PAP, 2 CHAP, 3 PAP or CHAP.
	Auth int
}

// Operator is one entry of the +COPS=? scan.
type Operator struct {
	Type  int    `json:"type"`
	Long  string `json:"long"`
	Short string `json:"short"`
	Code  string `json:"code"`
}

const maxOperators = 6

// Network returns a copy of the cached network state.
func (d *Driver) Network() NetworkInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net
}

// CheckNetwork queries +CREG? and updates the cached registration.
func (d *Driver) CheckNetwork(ctx context.Context) (RegStatus, error) {
	resp, err := d.Exec(ctx, at.CREG, "?", SlotOptions{Max: 64, Params: 1, Timeout: regTimeout})
	if err != nil {
		return RegUnknown, err
	}
	var n, stat, tech int
	var lac, ci []byte
	parsed := at.ParseArgs(resp, "iissi", &n, &stat, &lac, &ci, &tech)
	if parsed < 2 {
		return RegUnknown, fmt.Errorf("+CREG %q: %w", resp, ErrMalformedResponse)
	}
	d.mu.Lock()
	d.net.Registration = RegStatus(stat)
	if parsed == 5 {
		d.net.LAC = string(at.Unquote(lac))
		d.net.CI = string(at.Unquote(ci))
		d.net.Tech = tech
	}
	d.mu.Unlock()
	return RegStatus(stat), nil
}

// Attach waits up to timeout for registration, then configures and
// activates the packet data context.
func (d *Driver) Attach(ctx context.Context, apn APN, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		stat, err := d.CheckNetwork(ctx)
		if err != nil {
			d.log.Debugf("registration check: %v", err)
		}
		if stat.Registered() {
			break
		}
		if time.Now().After(deadline) {
			return ErrNotRegistered
		}
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return ctx.Err()
		case <-d.closed:
			return ErrClosed
		}
	}

	args := "=" + at.FormatArgs(pdpContext, 1, apn.Name, apn.User, apn.Password, apn.Auth)
	if _, err := d.Exec(ctx, at.QICSGP, args, SlotOptions{}); err != nil {
		return fmt.Errorf("configure APN %q: %w", apn.Name, err)
	}
	if _, err := d.Exec(ctx, at.QIACT, "="+at.FormatArgs(pdpContext), SlotOptions{Timeout: pdpTimeout}); err != nil {
		return fmt.Errorf("activate PDP context: %w", err)
	}
	d.mu.Lock()
	d.net.Active = true
	d.mu.Unlock()
	d.log.Infof("attached to APN %q", apn.Name)
	return nil
}

// Detach deactivates the packet data context and stays registered.
func (d *Driver) Detach(ctx context.Context) error {
	if _, err := d.Exec(ctx, at.QIDEACT, "="+at.FormatArgs(pdpContext), SlotOptions{Timeout: pdpTimeout}); err != nil {
		return fmt.Errorf("deactivate PDP context: %w", err)
	}
	d.mu.Lock()
	d.net.Active = false
	d.mu.Unlock()
	return nil
}

// GPRSAttach attaches to (on) or detaches from the packet domain.
func (d *Driver) GPRSAttach(ctx context.Context, on bool) error {
	v := 0
	if on {
		v = 1
	}
	_, err := d.Exec(ctx, at.CGATT, "="+at.FormatArgs(v), SlotOptions{Timeout: pdpTimeout})
	return err
}

func (d *Driver) IsAttached(ctx context.Context) (bool, error) {
	resp, err := d.Exec(ctx, at.CGATT, "?", SlotOptions{Max: 32, Params: 1, Timeout: pdpTimeout})
	if err != nil {
		return false, err
	}
	var status int
	if at.ParseArgs(resp, "i", &status) != 1 {
		return false, fmt.Errorf("+CGATT %q: %w", resp, ErrMalformedResponse)
	}
	d.mu.Lock()
	d.net.Attached = status == 1
	d.mu.Unlock()
	return status == 1, nil
}

// Signal returns the raw +CSQ values. 99 means unknown.
func (d *Driver) Signal(ctx context.Context) (rssi, ber int, err error) {
	resp, err := d.Exec(ctx, at.CSQ, "", SlotOptions{Max: 32, Params: 1})
	if err != nil {
		return 99, 99, err
	}
	if at.ParseArgs(resp, "ii", &rssi, &ber) != 2 {
		return 99, 99, fmt.Errorf("+CSQ %q: %w", resp, ErrMalformedResponse)
	}
	return rssi, ber, nil
}

// RSSI returns the signal strength in dBm, 0 when unknown.
func (d *Driver) RSSI(ctx context.Context) (int, error) {
	rssi, _, err := d.Signal(ctx)
	if err != nil {
		return 0, err
	}
	return RSSIToDBm(rssi), nil
}

func RSSIToDBm(rssi int) int {
	if rssi == 99 || rssi > 31 {
		return 0
	}
	return -113 + 2*rssi
}

// Operators scans the available networks. The scan can take up to a minute.
func (d *Driver) Operators(ctx context.Context) ([]Operator, error) {
	resp, err := d.Exec(ctx, at.COPS, "=?", SlotOptions{Max: 512, Params: 1, Timeout: scanTimeout})
	if err != nil {
		return nil, err
	}
	return parseOperators(resp), nil
}

// parseOperators reads the (type,"long","short","code"[,act]) records of a
// +COPS=? answer and stops at the trailing ranges.
func parseOperators(resp []byte) []Operator {
	var ops []Operator
	rest := resp
	for len(ops) < maxOperators {
		start := bytes.IndexByte(rest, '(')
		if start < 0 {
			break
		}
		end := bytes.IndexByte(rest[start:], ')')
		if end < 0 {
			break
		}
		rec := rest[start+1 : start+end]
		rest = rest[start+end+1:]

		var op Operator
		var long, short, code []byte
		if at.ParseArgs(rec, "isss", &op.Type, &long, &short, &code) != 4 {
			break
		}
		op.Long = string(at.Unquote(long))
		op.Short = string(at.Unquote(short))
		op.Code = string(at.Unquote(code))
		ops = append(ops, op)
	}
	return ops
}

// SetOperator selects an operator manually by its long alphanumeric name.
func (d *Driver) SetOperator(ctx context.Context, name string) error {
	_, err := d.Exec(ctx, at.COPS, "="+at.FormatArgs(1, 1, name), SlotOptions{Timeout: scanTimeout})
	return err
}

// CurrentOperator returns the registered operator in numeric format.
func (d *Driver) CurrentOperator(ctx context.Context) (string, error) {
	if _, err := d.Exec(ctx, at.COPS, "="+at.FormatArgs(3, 2), SlotOptions{}); err != nil {
		return "", err
	}
	resp, err := d.Exec(ctx, at.COPS, "?", SlotOptions{Max: 64, Params: 1, Timeout: scanTimeout})
	if err != nil {
		return "", err
	}
	var mode, format int
	var oper []byte
	if at.ParseArgs(resp, "iis", &mode, &format, &oper) != 3 {
		return "", nil
	}
	return string(at.Unquote(oper)), nil
}

// RAT scan modes of AT+QCFG="nwscanmode".
const (
	RATAuto = 0
	RATGSM  = 1
	RATUMTS = 2
)

func (d *Driver) SetRAT(ctx context.Context, mode int) error {
	_, err := d.Exec(ctx, at.QCFG, "="+at.FormatArgs("nwscanmode", mode, 1), SlotOptions{})
	return err
}

func (d *Driver) IMEI(ctx context.Context) (string, error) {
	resp, err := d.Exec(ctx, at.GSN, "", SlotOptions{Max: 32, Params: 1})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(resp)), nil
}

func (d *Driver) ICCID(ctx context.Context) (string, error) {
	resp, err := d.Exec(ctx, at.QCCID, "", SlotOptions{Max: 32, Params: 1})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(resp)), nil
}

// RTC returns the modem clock.
func (d *Driver) RTC(ctx context.Context) (time.Time, error) {
	resp, err := d.Exec(ctx, at.CCLK, "?", SlotOptions{Max: 64, Params: 1})
	if err != nil {
		return time.Time{}, err
	}
	var raw []byte
	if at.ParseArgs(resp, "s", &raw) != 1 {
		return time.Time{}, fmt.Errorf("+CCLK %q: %w", resp, ErrMalformedResponse)
	}
	t, err := ParseModemTime(string(at.Unquote(raw)))
	if err != nil {
		return time.Time{}, fmt.Errorf("+CCLK %q: %w", resp, ErrMalformedResponse)
	}
	return t, nil
}

// ParseModemTime parses "yy/MM/dd,hh:mm:ss±zz", where zz counts quarters of
// an hour, as used by +CCLK and SMS timestamps.
func ParseModemTime(s string) (time.Time, error) {
	if len(s) < 17 {
		return time.Time{}, fmt.Errorf("time %q too short", s)
	}
	t, err := time.Parse("06/01/02,15:04:05", s[:17])
	if err != nil {
		return time.Time{}, err
	}
	if len(s) < 19 {
		return t, nil
	}
	var q int
	if _, err := fmt.Sscanf(s[18:], "%d", &q); err != nil {
		return t, nil
	}
	offset := q * 15 * 60
	if s[17] == '-' {
		offset = -offset
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0,
		time.FixedZone("", offset)), nil
}

// LocalIP returns the address of the packet data context.
func (d *Driver) LocalIP(ctx context.Context) (string, error) {
	resp, err := d.Exec(ctx, at.CGPADDR, "="+at.FormatArgs(pdpContext), SlotOptions{Max: 64, Params: 1})
	if err != nil {
		return "", err
	}
	var cid int
	var addr []byte
	if at.ParseArgs(resp, "is", &cid, &addr) != 2 {
		return "", fmt.Errorf("+CGPADDR %q: %w", resp, ErrMalformedResponse)
	}
	return string(at.Unquote(addr)), nil
}

// DNSServers returns the primary and secondary resolvers of the context.
func (d *Driver) DNSServers(ctx context.Context) ([]string, error) {
	resp, err := d.Exec(ctx, at.QIDNSCFG, "="+at.FormatArgs(pdpContext), SlotOptions{Max: 128, Params: 1})
	if err != nil {
		return nil, err
	}
	var cid int
	var pri, sec []byte
	n := at.ParseArgs(resp, "iss", &cid, &pri, &sec)
	if n < 2 {
		return nil, fmt.Errorf("+QIDNSCFG %q: %w", resp, ErrMalformedResponse)
	}
	servers := []string{string(at.Unquote(pri))}
	if n == 3 {
		servers = append(servers, string(at.Unquote(sec)))
	}
	return servers, nil
}
