package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/zerynth/lib-quectel-ug96/internal/mccmnc"
	"github.com/zerynth/lib-quectel-ug96/internal/modem"
	"github.com/zerynth/lib-quectel-ug96/pkg/logger"
)

// CLI is the root command structure for ug96ctl.
type CLI struct {
	Port     string   `short:"p" default:"auto" env:"UG96_SERIAL_PORT" help:"Serial port, or auto to pick the first one"`
	Baud     int      `short:"b" default:"115200" help:"Baud rate"`
	Exclude  []string `help:"Ports skipped by auto discovery"`
	Charset  string   `default:"GSM" enum:"GSM,UCS2" help:"SMS character set"`
	Verbose  bool     `short:"v" help:"Enable debug output including AT traffic"`
	JSON     bool     `help:"Print results as JSON"`
	Operator string   `name:"mccmnc" help:"Operator table (mcc_mnc.json) for name lookups"`

	Info     InfoCmd     `cmd:"" help:"Show modem identity"`
	Signal   SignalCmd   `cmd:"" help:"Show signal quality"`
	Network  NetworkCmd  `cmd:"" help:"Show registration and operator"`
	Attach   AttachCmd   `cmd:"" help:"Activate the packet data context"`
	Detach   DetachCmd   `cmd:"" help:"Deactivate the packet data context"`
	Scan     ScanCmd     `cmd:"" help:"Scan for operators"`
	Resolve  ResolveCmd  `cmd:"" help:"Resolve a host name through the modem"`
	TCP      TCPCmd      `cmd:"" name:"tcp" help:"Send a payload over TCP and print the answer"`
	SMS      SMSCmd      `cmd:"" name:"sms" help:"SMS operations"`
	Location LocationCmd `cmd:"" help:"Read a GNSS fix"`
	Clock    ClockCmd    `cmd:"" help:"Show the modem clock"`
	AT       ATCmd       `cmd:"" name:"at" help:"Run a raw AT command"`
}

func (c *CLI) open(ctx context.Context) (*modem.Driver, error) {
	level := "warn"
	if c.Verbose {
		level = "debug"
	}
	logger.InitLogger(level)
	if c.Operator != "" {
		if err := mccmnc.LoadOperators(c.Operator); err != nil {
			return nil, err
		}
	}

	drv, err := modem.New(ctx, modem.Config{
		Dialer:     modem.SerialDialer{PortName: c.Port, BaudRate: c.Baud, ExcludePorts: c.Exclude},
		SMSCharset: c.Charset,
	})
	if err != nil {
		return nil, err
	}
	if err := drv.Start(ctx); err != nil {
		drv.Close()
		return nil, err
	}
	return drv, nil
}

// with opens the modem, runs fn and closes the modem again.
func (c *CLI) with(ctx context.Context, fn func(*modem.Driver) (any, error)) error {
	drv, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer drv.Close()

	out, err := fn(drv)
	if err != nil {
		return fmt.Errorf("%w (%s)", err, modem.Classify(err))
	}
	if out == nil {
		return nil
	}
	return c.print(os.Stdout, out)
}

func (c *CLI) print(w io.Writer, v any) error {
	if c.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	if s, ok := v.(fmt.Stringer); ok {
		_, err := fmt.Fprintln(w, s.String())
		return err
	}
	switch t := v.(type) {
	case string:
		_, err := fmt.Fprintln(w, t)
		return err
	case []string:
		_, err := fmt.Fprintln(w, strings.Join(t, "\n"))
		return err
	}
	_, err := fmt.Fprintf(w, "%+v\n", v)
	return err
}

type InfoCmd struct{}

type identity struct {
	modem.Info
	IMEI  string `json:"imei"`
	ICCID string `json:"iccid"`
}

func (i identity) String() string {
	return fmt.Sprintf("%s %s (%s)\nIMEI:  %s\nICCID: %s",
		i.Manufacturer, i.Model, i.Revision, i.IMEI, i.ICCID)
}

func (c *InfoCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.with(ctx, func(d *modem.Driver) (any, error) {
		id := identity{Info: d.Info()}
		var err error
		if id.IMEI, err = d.IMEI(ctx); err != nil {
			return nil, err
		}
		if id.ICCID, err = d.ICCID(ctx); err != nil {
			return nil, err
		}
		return id, nil
	})
}

type SignalCmd struct{}

func (c *SignalCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.with(ctx, func(d *modem.Driver) (any, error) {
		rssi, ber, err := d.Signal(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int{"rssi": rssi, "ber": ber, "dbm": modem.RSSIToDBm(rssi)}, nil
	})
}

type NetworkCmd struct{}

func (c *NetworkCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.with(ctx, func(d *modem.Driver) (any, error) {
		reg, err := d.CheckNetwork(ctx)
		if err != nil {
			return nil, err
		}
		out := map[string]any{"registration": reg.String(), "network": d.Network()}
		if reg.Registered() {
			code, err := d.CurrentOperator(ctx)
			if err != nil {
				return nil, err
			}
			out["operator"] = code
			if name := mccmnc.Lookup(code); name != "" {
				out["operator_name"] = name
			}
		}
		return out, nil
	})
}

type AttachCmd struct {
	APN      string        `arg:"" help:"Access point name"`
	User     string        `help:"APN user"`
	Password string        `help:"APN password"`
	Auth     int           `default:"0" help:"0 none, 1 PAP, 2 CHAP, 3 PAP or CHAP"`
	Timeout  time.Duration `default:"60s" help:"Registration wait"`
}

func (c *AttachCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.with(ctx, func(d *modem.Driver) (any, error) {
		apn := modem.APN{Name: c.APN, User: c.User, Password: c.Password, Auth: c.Auth}
		if err := d.Attach(ctx, apn, c.Timeout); err != nil {
			return nil, err
		}
		return d.LocalIP(ctx)
	})
}

type DetachCmd struct{}

func (c *DetachCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.with(ctx, func(d *modem.Driver) (any, error) {
		return nil, d.Detach(ctx)
	})
}

type ScanCmd struct {
	Select string `help:"Register on this operator (long alphanumeric name) after the scan"`
}

func (c *ScanCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.with(ctx, func(d *modem.Driver) (any, error) {
		ops, err := d.Operators(ctx)
		if err != nil {
			return nil, err
		}
		if c.Select != "" {
			if err := d.SetOperator(ctx, c.Select); err != nil {
				return nil, err
			}
		}
		return ops, nil
	})
}

type ResolveCmd struct {
	Host string `arg:"" help:"Host name"`
}

func (c *ResolveCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.with(ctx, func(d *modem.Driver) (any, error) {
		return d.Resolve(ctx, c.Host)
	})
}

type TCPCmd struct {
	Host    string `arg:"" help:"Remote host"`
	Port    int    `arg:"" help:"Remote port"`
	Payload string `arg:"" optional:"" help:"Data to send; stdin when omitted"`
	TLS     bool   `name:"tls" help:"Use a TLS socket without certificate checks"`
	Max     int    `default:"4096" help:"Stop after this many bytes"`
}

func (c *TCPCmd) Run(globals *CLI, ctx context.Context) error {
	payload := []byte(c.Payload)
	if c.Payload == "" {
		var err error
		if payload, err = io.ReadAll(os.Stdin); err != nil {
			return err
		}
	}
	return globals.with(ctx, func(d *modem.Driver) (any, error) {
		id, err := d.OpenSocket(ctx, modem.TCP, c.TLS)
		if err != nil {
			return nil, err
		}
		defer d.CloseSocket(context.Background(), id)

		if c.TLS {
			if err := d.SocketTLS(ctx, id, nil, nil, nil, modem.AuthNone); err != nil {
				return nil, err
			}
		}
		if err := d.Connect(ctx, id, c.Host, c.Port); err != nil {
			return nil, err
		}
		if _, err := d.SendSocket(ctx, id, payload); err != nil {
			return nil, err
		}

		buf := make([]byte, c.Max)
		got := 0
		for got < len(buf) {
			n, err := d.Recv(ctx, id, buf[got:])
			got += n
			if errors.Is(err, modem.ErrConnectionClosed) || (err == nil && n == 0) {
				break
			}
			if err != nil {
				return nil, err
			}
		}
		_, err = os.Stdout.Write(buf[:got])
		return nil, err
	})
}

type LocationCmd struct {
	Keep bool `help:"Leave the GNSS engine running"`
}

func (c *LocationCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.with(ctx, func(d *modem.Driver) (any, error) {
		if err := d.EnableGNSS(ctx); err != nil {
			var perr *modem.ProtocolError
			// 504: session already active
			if !errors.As(err, &perr) || perr.Message != "504" {
				return nil, err
			}
		}
		if !c.Keep {
			defer d.DisableGNSS(context.Background())
		}
		return d.Location(ctx)
	})
}

type ClockCmd struct{}

func (c *ClockCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.with(ctx, func(d *modem.Driver) (any, error) {
		t, err := d.RTC(ctx)
		if err != nil {
			return nil, err
		}
		return t.Format(time.RFC3339), nil
	})
}

type ATCmd struct {
	Command string        `arg:"" help:"Command line, e.g. AT+CSQ"`
	Timeout time.Duration `default:"10s" help:"Response timeout"`
}

func (c *ATCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.with(ctx, func(d *modem.Driver) (any, error) {
		return d.RawCommand(ctx, c.Command, c.Timeout)
	})
}
