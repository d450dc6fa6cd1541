package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zerynth/lib-quectel-ug96/internal/modem"
	"gorm.io/gorm"
)

// Modem is the part of the driver exposed over HTTP.
type Modem interface {
	Info() modem.Info
	Network() modem.NetworkInfo
	PendingSMS() int
	Subscribe() (<-chan modem.Event, func())

	Attach(ctx context.Context, apn modem.APN, timeout time.Duration) error
	Detach(ctx context.Context) error
	Signal(ctx context.Context) (rssi, ber int, err error)
	Operators(ctx context.Context) ([]modem.Operator, error)
	SetOperator(ctx context.Context, name string) error
	Resolve(ctx context.Context, host string) ([]string, error)
	Location(ctx context.Context) (modem.Fix, error)
	RawCommand(ctx context.Context, cmd string, timeout time.Duration) ([]string, error)

	SendSMS(ctx context.Context, number, text string) (int, error)
	DeleteSMS(ctx context.Context, index int) error
	SMSC(ctx context.Context) (string, error)
	SetSMSC(ctx context.Context, addr string) error

	OpenSocket(ctx context.Context, proto modem.Proto, secure bool) (int, error)
	SocketTLS(ctx context.Context, id int, caCert, clientCert, clientKey []byte, authMode int) error
	Connect(ctx context.Context, id int, host string, port int) error
	SendSocket(ctx context.Context, id int, data []byte) (int, error)
	Recv(ctx context.Context, id int, p []byte) (int, error)
	CloseSocket(ctx context.Context, id int) error
}

var _ Modem = (*modem.Driver)(nil)

var classStatus = map[modem.Class]int{
	modem.ClassTimeout:           http.StatusGatewayTimeout,
	modem.ClassProtocol:          http.StatusBadGateway,
	modem.ClassMalformed:         http.StatusBadGateway,
	modem.ClassHardwareNotReady:  http.StatusServiceUnavailable,
	modem.ClassResourceExhausted: http.StatusTooManyRequests,
	modem.ClassClosed:            http.StatusGone,
}

// fail writes err with a status derived from its class.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, modem.ErrInvalidSocket), errors.Is(err, modem.ErrUnsupported):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		status = 499
	default:
		if s, ok := classStatus[modem.Classify(err)]; ok {
			status = s
		}
	}
	c.JSON(status, gin.H{"error": err.Error(), "class": modem.Classify(err).String()})
}
