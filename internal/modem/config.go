package modem

import (
	"time"

	"github.com/zerynth/lib-quectel-ug96/pkg/logger"
	"go.uber.org/zap"
)

// Command budgets, in multiples of the base one second timeout.
const (
	cmdTimeout     = time.Second
	openTimeout    = 180 * time.Second
	pdpTimeout     = 180 * time.Second
	uploadTimeout  = 60 * time.Second
	sslCfgTimeout  = 5 * time.Second
	scanTimeout    = 60 * time.Second
	regTimeout     = 5 * time.Second
	smsSendTimeout = 120 * time.Second
	smsListTimeout = 60 * time.Second
	closeTimeout   = 10 * time.Second
	dataTimeout    = 10 * time.Second
	cfunTimeout    = 15 * time.Second
)

// Config tunes a Driver. Zero values pick the defaults.
type Config struct {
	Dialer Dialer
	Logger *zap.SugaredLogger

	// PollInterval bounds each line read of the protocol loop and therefore
	// how late a slot timeout may be detected.
	PollInterval time.Duration
	// ReadTimeout is the per-read timeout set on the transport.
	ReadTimeout time.Duration
	MaxSockets  int
	// SMSCharset is "GSM" (default) or "UCS2".
	SMSCharset string

	// ModeWait bounds how long a caller waits for a prompt or data hand-off.
	ModeWait time.Duration
	// PromptLimit bounds how long the loop stays parked in prompt mode.
	PromptLimit time.Duration
	// RecvWait is how long Recv blocks for new data before returning 0.
	RecvWait time.Duration
	// ConnectWait bounds the wait for the open result notification.
	ConnectWait time.Duration
	// DNSWait bounds a name resolution.
	DNSWait time.Duration
	// AutobaudTries is the number of ATE1 probes sent by Start.
	AutobaudTries int
	EventBuffer   int
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		if logger.Log != nil {
			c.Logger = logger.Log
		} else {
			c.Logger = zap.NewNop().Sugar()
		}
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 20 * time.Millisecond
	}
	if c.MaxSockets <= 0 {
		c.MaxSockets = 4
	}
	if c.SMSCharset == "" {
		c.SMSCharset = "GSM"
	}
	if c.ModeWait <= 0 {
		c.ModeWait = 10 * time.Second
	}
	if c.PromptLimit <= 0 {
		c.PromptLimit = 20 * time.Second
	}
	if c.RecvWait <= 0 {
		c.RecvWait = 5 * time.Second
	}
	if c.ConnectWait <= 0 {
		c.ConnectWait = 150 * time.Second
	}
	if c.DNSWait <= 0 {
		c.DNSWait = 60 * time.Second
	}
	if c.AutobaudTries <= 0 {
		c.AutobaudTries = 200
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 32
	}
}
