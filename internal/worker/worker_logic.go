package worker

import (
	"context"
	"errors"
	"time"

	"github.com/zerynth/lib-quectel-ug96/internal/mccmnc"
	"github.com/zerynth/lib-quectel-ug96/internal/model"
	"github.com/zerynth/lib-quectel-ug96/internal/modem"
)

// maxListed bounds one +CMGL read; a full SIM is drained over several polls.
const maxListed = 32

func (w *ModemWorker) logicLoop() {
	defer close(w.done)

	w.log.Infof("Starting polling loop with interval %v", w.opts.ScanInterval)

	w.poll()

	ticker := time.NewTicker(w.opts.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-w.triggerChan:
			w.poll()
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *ModemWorker) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.CommandTimeout)
	defer cancel()
	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := w.checkStatus(ctx); err != nil {
		if errors.Is(err, modem.ErrClosed) {
			return
		}
		w.log.Warnf("status refresh: %v", err)
	}
	if err := w.checkSMS(ctx); err != nil {
		w.log.Warnf("sms poll: %v", err)
	}
}

// signalPercent maps CSQ 0..31 to 0..100; 99 (unknown) is 0.
func signalPercent(rssi int) int {
	if rssi < 0 || rssi > 31 {
		return 0
	}
	return rssi * 100 / 31
}

func (w *ModemWorker) checkStatus(ctx context.Context) error {
	w.mu.Lock()
	iccid := w.iccid
	w.mu.Unlock()

	snap := model.Modem{PortName: w.opts.PortName, Status: "online", LastSeen: time.Now()}
	if iccid == "" {
		id, err := w.drv.ICCID(ctx)
		if err != nil {
			return err
		}
		iccid = id
	}
	snap.ICCID = iccid

	imei, err := w.drv.IMEI(ctx)
	if err != nil {
		return err
	}
	snap.IMEI = imei

	info := w.drv.Info()
	snap.Manufacturer, snap.Model, snap.Revision = info.Manufacturer, info.Model, info.Revision

	if rssi, _, err := w.drv.Signal(ctx); err == nil {
		snap.SignalStrength = signalPercent(rssi)
		snap.RSSI = modem.RSSIToDBm(rssi)
	} else {
		w.log.Debugf("signal: %v", err)
	}

	reg, err := w.drv.CheckNetwork(ctx)
	if err != nil {
		return err
	}
	snap.Registration = reg.String()

	if reg.Registered() {
		if code, err := w.drv.CurrentOperator(ctx); err == nil {
			snap.Operator = code
			if name := mccmnc.Lookup(code); name != "" {
				snap.Operator = name
			}
		}
	}
	if w.drv.Network().Active {
		if ip, err := w.drv.LocalIP(ctx); err == nil {
			snap.LocalIP = ip
		}
	}

	if err := w.modems.Upsert(&snap); err != nil {
		return err
	}
	w.mu.Lock()
	w.iccid = iccid
	w.last = snap
	w.mu.Unlock()
	return nil
}

// checkSMS moves messages from the SIM into the database. A message is
// deleted from the SIM only after it has been stored.
func (w *ModemWorker) checkSMS(ctx context.Context) error {
	iccid := w.ICCID()
	if iccid == "" {
		return nil
	}
	list, err := w.drv.ListSMS(ctx, false, maxListed, 0)
	if err != nil {
		return err
	}

	for _, m := range list {
		rec := &model.SMS{
			ICCID:     iccid,
			SIMIndex:  m.Index,
			Phone:     m.Sender,
			Alpha:     m.Alpha,
			Content:   m.Text,
			Timestamp: m.Timestamp,
			Type:      model.SMSReceived,
			IsRead:    !m.Unread,
		}
		added, err := w.sms.Store(rec)
		if err != nil {
			w.log.Errorf("store sms %d: %v", m.Index, err)
			continue
		}
		if added {
			w.log.Infof("New SMS from %s", m.Sender)
			if w.hooks != nil {
				w.hooks.Dispatch(rec)
			}
		}
		if w.opts.DeleteRead {
			if err := w.drv.DeleteSMS(ctx, m.Index); err != nil {
				w.log.Warnf("delete sms %d: %v", m.Index, err)
			}
		}
	}
	return nil
}
