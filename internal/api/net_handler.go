package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zerynth/lib-quectel-ug96/internal/modem"
	"github.com/zerynth/lib-quectel-ug96/pkg/logger"
)

type NetHandler struct {
	drv Modem
}

func NewNetHandler(drv Modem) *NetHandler {
	return &NetHandler{drv: drv}
}

type TCPRequest struct {
	Host      string `json:"host" binding:"required"`
	Port      int    `json:"port" binding:"required,min=1,max=65535"`
	Payload   string `json:"payload"`
	TLS       bool   `json:"tls"`
	ReadBytes int    `json:"read_bytes"`
	TimeoutMs int    `json:"timeout_ms"`
}

type TCPResponse struct {
	Socket       int    `json:"socket"`
	Sent         int    `json:"sent"`
	Received     string `json:"received"`
	ClosedByPeer bool   `json:"closed_by_peer"`
}

// TCPExchange opens a socket, writes the payload, reads the answer until
// ReadBytes arrived, the peer closed or the modem went quiet, and closes it.
func (h *NetHandler) TCPExchange(c *gin.Context) {
	var req TCPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ReadBytes <= 0 {
		req.ReadBytes = 1500
	}
	timeout := 3 * time.Minute
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	resp, err := h.exchange(ctx, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *NetHandler) exchange(ctx context.Context, req TCPRequest) (resp TCPResponse, err error) {
	id, err := h.drv.OpenSocket(ctx, modem.TCP, req.TLS)
	if err != nil {
		return resp, err
	}
	resp.Socket = id
	defer func() {
		// Closing needs the slot even when ctx already expired.
		cctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if cerr := h.drv.CloseSocket(cctx, id); cerr != nil && !errors.Is(cerr, modem.ErrSocketClosed) {
			logger.Log.Warnf("close socket %d: %v", id, cerr)
		}
	}()

	if req.TLS {
		if err := h.drv.SocketTLS(ctx, id, nil, nil, nil, modem.AuthNone); err != nil {
			return resp, err
		}
	}
	if err := h.drv.Connect(ctx, id, req.Host, req.Port); err != nil {
		return resp, err
	}
	if req.Payload != "" {
		n, err := h.drv.SendSocket(ctx, id, []byte(req.Payload))
		resp.Sent = n
		if err != nil {
			return resp, err
		}
	}

	buf := make([]byte, req.ReadBytes)
	got := 0
	for got < len(buf) {
		n, err := h.drv.Recv(ctx, id, buf[got:])
		got += n
		if errors.Is(err, modem.ErrConnectionClosed) {
			resp.ClosedByPeer = true
			break
		}
		if err != nil {
			return resp, err
		}
		if n == 0 {
			break
		}
	}
	resp.Received = string(buf[:got])
	return resp, nil
}
