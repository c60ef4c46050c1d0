package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"minex-server/internal/service"
)

// Rotator triggers an immediate round rotation.
type Rotator interface {
	Rotate(ctx context.Context) error
}

// AdminHandler exposes the operator endpoints: hack-mode toggle,
// balance adjustment and manual round rotation. All routes sit behind
// AdminRequired.
type AdminHandler struct {
	accounts  *service.AccountService
	scheduler Rotator
}

func NewAdminHandler(accounts *service.AccountService, scheduler Rotator) *AdminHandler {
	return &AdminHandler{accounts: accounts, scheduler: scheduler}
}

type hackModeRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetHackMode toggles the forced-loss exemption for a user.
func (h *AdminHandler) SetHackMode(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	var req hackModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	if err := h.accounts.SetHackMode(c.Request.Context(), userID, *req.Enabled); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type adjustRequest struct {
	Amount float64 `json:"amount" binding:"required"`
	Reason string  `json:"reason" binding:"required"`
}

// AdjustBalance applies a manual balance change with an audit reason.
func (h *AdminHandler) AdjustBalance(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	user, err := h.accounts.Adjust(c.Request.Context(), userID, req.Amount, req.Reason)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "balance": user.Balance})
}

// RotateRound ends the current round immediately.
func (h *AdminHandler) RotateRound(c *gin.Context) {
	if err := h.scheduler.Rotate(c.Request.Context()); err != nil {
		log.Error().Err(err).Msg("Manual rotation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Rotation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
