package modem

//go:generate go tool mockgen -source=transport.go -destination=mock_transport_test.go -package=modem

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"go.bug.st/serial"
)

// Transport is the byte pipe to the modem. Read must return (0, nil) once the
// timeout configured with SetReadTimeout expires without data.
type Transport interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Dialer opens a Transport.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// SerialDialer opens a serial port. An empty or "auto" PortName picks the
// first port reported by the system that is not excluded.
type SerialDialer struct {
	PortName     string
	BaudRate     int
	ExcludePorts []string
}

func (s SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := s.PortName
	if name == "" || name == "auto" {
		ports, err := serial.GetPortsList()
		if err != nil {
			return nil, fmt.Errorf("list serial ports: %w", err)
		}
		name = ""
		for _, p := range ports {
			if !slices.Contains(s.ExcludePorts, p) {
				name = p
				break
			}
		}
		if name == "" {
			return nil, fmt.Errorf("no usable serial port: %w", ErrHardwareNotReady)
		}
	}

	baud := s.BaudRate
	if baud <= 0 {
		baud = 115200
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", name, ErrHardwareNotReady, err)
	}
	return port, nil
}
