package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/zerynth/lib-quectel-ug96/internal/modem"
)

type SMSCmd struct {
	Send   SMSSendCmd   `cmd:"" help:"Send a text message"`
	List   SMSListCmd   `cmd:"" help:"List messages stored on the SIM"`
	Delete SMSDeleteCmd `cmd:"" help:"Delete a message from the SIM"`
	Center SMSCenterCmd `cmd:"" help:"Show or set the service center address"`
}

type SMSSendCmd struct {
	Number string   `arg:"" help:"Destination number"`
	Text   []string `arg:"" help:"Message text"`
}

func (c *SMSSendCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.with(ctx, func(d *modem.Driver) (any, error) {
		ref, err := d.SendSMS(ctx, c.Number, strings.Join(c.Text, " "))
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("sent, reference %d", ref), nil
	})
}

type SMSListCmd struct {
	Unread bool `help:"Only unread messages"`
	Max    int  `default:"32" help:"Maximum number of messages"`
	Offset int  `help:"Skip messages with a lower index"`
}

type smsList []modem.SMS

func (l smsList) String() string {
	var b strings.Builder
	for i, m := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		flag := " "
		if m.Unread {
			flag = "*"
		}
		fmt.Fprintf(&b, "%s[%d] %s %s\n%s\n", flag, m.Index, m.Sender, m.RawTime, m.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *SMSListCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.with(ctx, func(d *modem.Driver) (any, error) {
		list, err := d.ListSMS(ctx, c.Unread, c.Max, c.Offset)
		if err != nil {
			return nil, err
		}
		return smsList(list), nil
	})
}

type SMSDeleteCmd struct {
	Index []int `arg:"" help:"Storage indexes"`
}

func (c *SMSDeleteCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.with(ctx, func(d *modem.Driver) (any, error) {
		for _, i := range c.Index {
			if err := d.DeleteSMS(ctx, i); err != nil {
				return nil, fmt.Errorf("delete %d: %w", i, err)
			}
		}
		return nil, nil
	})
}

type SMSCenterCmd struct {
	Set string `help:"New service center address"`
}

func (c *SMSCenterCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.with(ctx, func(d *modem.Driver) (any, error) {
		if c.Set != "" {
			if err := d.SetSMSC(ctx, c.Set); err != nil {
				return nil, err
			}
		}
		return d.SMSC(ctx)
	})
}
