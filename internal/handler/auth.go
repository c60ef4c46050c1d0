// Package handler wires the game services to the HTTP and websocket
// transport.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"minex-server/internal/model"
	"minex-server/internal/pkg/token"
	"minex-server/internal/service"
)

// AdminChecker decides whether a username belongs to an operator.
type AdminChecker interface {
	IsAdmin(username string) bool
}

// TransactionHistory lists a user's balance-change records.
type TransactionHistory interface {
	ListByUser(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error)
}

// AuthHandler handles login and profile endpoints.
type AuthHandler struct {
	accounts *service.AccountService
	tokens   *token.Service
	admins   AdminChecker
	txs      TransactionHistory
}

func NewAuthHandler(accounts *service.AccountService, tokens *token.Service, admins AdminChecker, txs TransactionHistory) *AuthHandler {
	return &AuthHandler{accounts: accounts, tokens: tokens, admins: admins, txs: txs}
}

type loginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=32"`
}

// Login registers the username on first contact and returns a signed
// token. There is no password; identity is demo-grade by design of the
// game client.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	isAdmin := h.admins.IsAdmin(req.Username)
	user, err := h.accounts.EnsureUser(c.Request.Context(), req.Username, isAdmin)
	if err != nil {
		log.Error().Err(err).Str("username", req.Username).Msg("Login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}

	tok, err := h.tokens.Generate(user.ID, user.IsAdmin)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Token generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": tok,
		"user":  userView(user),
	})
}

// Me returns the authenticated user's profile and balance.
func (h *AuthHandler) Me(c *gin.Context) {
	userID := c.GetInt64("user_id")

	user, err := h.accounts.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userView(user)})
}

// Transactions lists the caller's recent balance changes.
func (h *AuthHandler) Transactions(c *gin.Context) {
	userID := c.GetInt64("user_id")

	txs, err := h.txs.ListByUser(c.Request.Context(), userID, 50)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to list transactions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	out := make([]gin.H, 0, len(txs))
	for _, tx := range txs {
		item := gin.H{
			"id":         tx.ID,
			"amount":     tx.Amount,
			"type":       tx.Type,
			"created_at": tx.CreatedAt,
		}
		if tx.Description != nil {
			item["description"] = *tx.Description
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

func userView(u *model.User) gin.H {
	return gin.H{
		"id":            u.ID,
		"username":      u.Username,
		"balance":       u.Balance,
		"total_wagered": u.TotalWagered,
		"is_admin":      u.IsAdmin,
	}
}
