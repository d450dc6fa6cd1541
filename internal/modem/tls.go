package modem

import (
	"context"
	"fmt"

	"github.com/zerynth/lib-quectel-ug96/internal/at"
)

// TLS authentication modes of AT+QSSLCFG="seclevel".
const (
	AuthNone         = 0
	AuthServer       = 1
	AuthServerClient = 2
)

const tls12 = 3

// SocketTLS provisions the SSL context of a secure socket: TLS 1.2 only,
// the given PEM material uploaded to the modem RAM file system and the
// authentication mode. Empty certificates or keys are left unconfigured.
func (d *Driver) SocketTLS(ctx context.Context, id int, caCert, clientCert, clientKey []byte, authMode int) error {
	s, err := d.lockSocket(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()
	if !s.secure {
		return fmt.Errorf("tls on socket %d: %w", id, ErrUnsupported)
	}

	if err := d.sslConfig(ctx, "sslversion", id, tls12); err != nil {
		return err
	}
	files := []struct {
		option  string
		name    string
		content []byte
	}{
		{"cacert", fmt.Sprintf("RAM:cacert%d.pem", id), caCert},
		{"clientcert", fmt.Sprintf("RAM:clicrt%d.pem", id), clientCert},
		{"clientkey", fmt.Sprintf("RAM:prvkey%d.pem", id), clientKey},
	}
	for _, f := range files {
		if len(f.content) == 0 {
			continue
		}
		if err := d.DeleteFile(ctx, f.name); err != nil {
			d.log.Debugf("delete %s: %v", f.name, err)
		}
		if err := d.UploadFile(ctx, f.name, f.content); err != nil {
			return fmt.Errorf("upload %s: %w", f.name, err)
		}
		if err := d.sslConfig(ctx, f.option, id, f.name); err != nil {
			return err
		}
	}
	if err := d.sslConfig(ctx, "seclevel", id, authMode); err != nil {
		return err
	}
	return d.sslConfig(ctx, "ignorelocaltime", id, 0)
}

func (d *Driver) sslConfig(ctx context.Context, option string, sslCtx int, value any) error {
	args := "=" + at.FormatArgs(option, sslCtx, value)
	if _, err := d.Exec(ctx, at.QSSLCFG, args, SlotOptions{Timeout: sslCfgTimeout}); err != nil {
		return fmt.Errorf("ssl %s: %w", option, err)
	}
	return nil
}

// DeleteFile removes a file from the modem file system.
func (d *Driver) DeleteFile(ctx context.Context, name string) error {
	_, err := d.Exec(ctx, at.QFDEL, "="+at.FormatArgs(name), SlotOptions{})
	return err
}

// UploadFile writes content to the modem file system. The modem answers
// CONNECT and then takes exactly len(content) raw bytes.
func (d *Driver) UploadFile(ctx context.Context, name string, content []byte) error {
	s, err := d.Acquire(ctx, at.QFUPL, SlotOptions{Max: 64, Params: 1, Timeout: uploadTimeout})
	if err != nil {
		return err
	}
	defer d.Release(s)
	if err := d.Send(at.QFUPL, "="+at.FormatArgs(name, len(content), 5, 0)); err != nil {
		return err
	}
	if err := d.awaitMode(s, ModeBuffer); err != nil {
		return err
	}
	err = d.write(content)
	s.unpark()
	if err != nil {
		return err
	}
	return d.Wait(s)
}
