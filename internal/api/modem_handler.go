package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zerynth/lib-quectel-ug96/internal/model"
	"github.com/zerynth/lib-quectel-ug96/internal/modem"
	"github.com/zerynth/lib-quectel-ug96/internal/repository"
	"github.com/zerynth/lib-quectel-ug96/pkg/logger"
)

// Status reports what the background worker last saw.
type Status interface {
	ICCID() string
	Snapshot() model.Modem
	Trigger()
}

type ModemHandler struct {
	drv           Modem
	repo          *repository.ModemRepository
	status        Status
	apn           modem.APN
	attachTimeout time.Duration
}

func NewModemHandler(drv Modem, repo *repository.ModemRepository, status Status, apn modem.APN, attachTimeout time.Duration) *ModemHandler {
	if attachTimeout <= 0 {
		attachTimeout = time.Minute
	}
	return &ModemHandler{drv: drv, repo: repo, status: status, apn: apn, attachTimeout: attachTimeout}
}

func (h *ModemHandler) GetModem(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"info":        h.drv.Info(),
		"network":     h.drv.Network(),
		"pending_sms": h.drv.PendingSMS(),
		"snapshot":    h.status.Snapshot(),
	})
}

func (h *ModemHandler) ListModems(c *gin.Context) {
	list, err := h.repo.List()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ModemHandler) UpdateModem(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.repo.Rename(c.Param("iccid"), req.Name); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

type AttachRequest struct {
	APN       string `json:"apn"`
	User      string `json:"user"`
	Password  string `json:"password"`
	Auth      *int   `json:"auth"`
	TimeoutMs int    `json:"timeout_ms"`
}

// Attach activates the data context. Fields left empty use the configured
// access point.
func (h *ModemHandler) Attach(c *gin.Context) {
	var req AttachRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	apn := h.apn
	if req.APN != "" {
		apn = modem.APN{Name: req.APN, User: req.User, Password: req.Password}
	}
	if req.Auth != nil {
		apn.Auth = *req.Auth
	}
	timeout := h.attachTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	logger.Log.Infof("Attaching to APN %q", apn.Name)
	if err := h.drv.Attach(c.Request.Context(), apn, timeout); err != nil {
		fail(c, err)
		return
	}
	h.status.Trigger()
	c.JSON(http.StatusOK, gin.H{"status": "attached", "network": h.drv.Network()})
}

func (h *ModemHandler) Detach(c *gin.Context) {
	if err := h.drv.Detach(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "detached"})
}

func (h *ModemHandler) Signal(c *gin.Context) {
	rssi, ber, err := h.drv.Signal(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rssi": rssi, "ber": ber, "dbm": modem.RSSIToDBm(rssi)})
}

func (h *ModemHandler) ScanNetworks(c *gin.Context) {
	ops, err := h.drv.Operators(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ops)
}

func (h *ModemHandler) SetOperator(c *gin.Context) {
	var req struct {
		Operator string `json:"operator" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.drv.SetOperator(c.Request.Context(), req.Operator); err != nil {
		fail(c, err)
		return
	}
	h.status.Trigger()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *ModemHandler) Resolve(c *gin.Context) {
	host := c.Query("host")
	if host == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "host is required"})
		return
	}
	addrs, err := h.drv.Resolve(c.Request.Context(), host)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"host": host, "addresses": addrs})
}

func (h *ModemHandler) Location(c *gin.Context) {
	fix, err := h.drv.Location(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, fix)
}

// ExecuteAT runs a raw command line with the protocol loop paused.
func (h *ModemHandler) ExecuteAT(c *gin.Context) {
	var req struct {
		Cmd     string `json:"cmd" binding:"required"`
		Timeout int    `json:"timeout"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	timeout := 10 * time.Second
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Millisecond
	}

	lines, err := h.drv.RawCommand(c.Request.Context(), req.Cmd, timeout)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": lines})
}
