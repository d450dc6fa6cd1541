package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zerynth/lib-quectel-ug96/internal/model"
	"github.com/zerynth/lib-quectel-ug96/internal/repository"
	"github.com/zerynth/lib-quectel-ug96/pkg/logger"
)

type SMSHandler struct {
	drv    Modem
	repo   *repository.SMSRepository
	status Status
}

func NewSMSHandler(drv Modem, repo *repository.SMSRepository, status Status) *SMSHandler {
	return &SMSHandler{drv: drv, repo: repo, status: status}
}

func queryInt(c *gin.Context, name string, def int) int {
	if v, err := strconv.Atoi(c.Query(name)); err == nil && v > 0 {
		return v
	}
	return def
}

// ListSMS pages through the stored messages.
func (h *SMSHandler) ListSMS(c *gin.Context) {
	limit := min(queryInt(c, "limit", 20), 200)
	page := queryInt(c, "page", 1)

	list, total, err := h.repo.Page(c.Query("iccid"), limit, (page-1)*limit)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  list,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

type SendSMSRequest struct {
	Phone   string `json:"phone" binding:"required"`
	Content string `json:"content" binding:"required"`
}

func (h *SMSHandler) SendSMS(c *gin.Context) {
	var req SendSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ref, err := h.drv.SendSMS(c.Request.Context(), req.Phone, req.Content)
	if err != nil {
		fail(c, err)
		return
	}

	rec := &model.SMS{
		ICCID:     h.status.ICCID(),
		Phone:     req.Phone,
		Content:   req.Content,
		Timestamp: time.Now(),
		Type:      model.SMSSent,
		IsRead:    true,
		Reference: ref,
	}
	if err := h.repo.Create(rec); err != nil {
		logger.Log.Errorf("Failed to store sent SMS: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent", "reference": ref})
}

// DeleteSMS removes a message from SIM storage.
func (h *SMSHandler) DeleteSMS(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid index"})
		return
	}
	if err := h.drv.DeleteSMS(c.Request.Context(), index); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *SMSHandler) GetSMSC(c *gin.Context) {
	addr, err := h.drv.SMSC(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"smsc": addr})
}

func (h *SMSHandler) SetSMSC(c *gin.Context) {
	var req struct {
		SMSC string `json:"smsc" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.drv.SetSMSC(c.Request.Context(), req.SMSC); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"smsc": req.SMSC})
}
