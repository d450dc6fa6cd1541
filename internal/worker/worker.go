// Package worker keeps the database in step with the modem: it drains the SIM
// inbox into the SMS table and refreshes the modem status snapshot.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zerynth/lib-quectel-ug96/internal/model"
	"github.com/zerynth/lib-quectel-ug96/internal/modem"
	"github.com/zerynth/lib-quectel-ug96/pkg/logger"
	"go.uber.org/zap"
)

// Modem is the part of the driver the worker uses.
type Modem interface {
	Subscribe() (<-chan modem.Event, func())
	Info() modem.Info
	Network() modem.NetworkInfo
	IMEI(ctx context.Context) (string, error)
	ICCID(ctx context.Context) (string, error)
	Signal(ctx context.Context) (rssi, ber int, err error)
	CheckNetwork(ctx context.Context) (modem.RegStatus, error)
	CurrentOperator(ctx context.Context) (string, error)
	LocalIP(ctx context.Context) (string, error)
	ListSMS(ctx context.Context, unread bool, max, offset int) ([]modem.SMS, error)
	DeleteSMS(ctx context.Context, index int) error
}

type ModemStore interface {
	Upsert(m *model.Modem) error
}

type SMSStore interface {
	Store(sms *model.SMS) (bool, error)
}

type Dispatcher interface {
	Dispatch(sms *model.SMS)
}

type Options struct {
	PortName     string
	ScanInterval time.Duration
	// DeleteRead removes messages from the SIM once stored.
	DeleteRead bool
	// CommandTimeout bounds each poll.
	CommandTimeout time.Duration
}

type ModemWorker struct {
	drv    Modem
	modems ModemStore
	sms    SMSStore
	hooks  Dispatcher
	opts   Options
	log    *zap.SugaredLogger

	mu    sync.Mutex
	iccid string
	last  model.Modem

	triggerChan chan struct{}
	stop        chan struct{}
	done        chan struct{}
	started     atomic.Bool
	stopOnce    sync.Once
}

func NewModemWorker(drv Modem, modems ModemStore, sms SMSStore, hooks Dispatcher, opts Options) *ModemWorker {
	if opts.ScanInterval < time.Second {
		opts.ScanInterval = 30 * time.Second
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 2 * time.Minute
	}
	return &ModemWorker{
		drv:         drv,
		modems:      modems,
		sms:         sms,
		hooks:       hooks,
		opts:        opts,
		log:         logger.Named("worker"),
		triggerChan: make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (w *ModemWorker) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	events, cancel := w.drv.Subscribe()
	go w.watch(events, cancel)
	go w.logicLoop()
}

// Stop ends the worker and waits for the running poll to finish. It is a
// no-op wait for a worker that was never started.
func (w *ModemWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	if w.started.Load() {
		<-w.done
	}
}

// Trigger asks for a poll as soon as possible.
func (w *ModemWorker) Trigger() {
	select {
	case w.triggerChan <- struct{}{}:
	default:
	}
}

// ICCID returns the SIM identity read by the last status refresh.
func (w *ModemWorker) ICCID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.iccid
}

// Snapshot returns the last status written to the database.
func (w *ModemWorker) Snapshot() model.Modem {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

func (w *ModemWorker) watch(events <-chan modem.Event, cancel func()) {
	defer cancel()
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case modem.EventSMSReceived, modem.EventRegistration, modem.EventPDPDeactivated:
				w.log.Debugf("%s: poll requested", ev.Kind)
				w.Trigger()
			}
		}
	}
}

var _ Modem = (*modem.Driver)(nil)
