package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zerynth/lib-quectel-ug96/internal/auth"
	"github.com/zerynth/lib-quectel-ug96/pkg/logger"
)

type UserHandler struct {
	iss *auth.Issuer
}

func NewUserHandler(iss *auth.Issuer) *UserHandler {
	return &UserHandler{iss: iss}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, acc, err := h.iss.Login(req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		logger.Log.Warnf("Failed login for %q from %s", req.Username, c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"username": acc.Username,
		"role":     acc.Role,
	})
}
