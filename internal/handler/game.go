package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"minex-server/internal/game/mines"
	"minex-server/internal/model"
	"minex-server/internal/service"
)

// SessionHistory lists a user's past game sessions.
type SessionHistory interface {
	ListByUser(ctx context.Context, userID int64, limit int) ([]*model.GameSession, error)
}

// GameHandler exposes the three player operations plus the round
// snapshot and per-user history.
type GameHandler struct {
	engine  *service.Engine
	history SessionHistory
}

func NewGameHandler(engine *service.Engine, history SessionHistory) *GameHandler {
	return &GameHandler{engine: engine, history: history}
}

type startRequest struct {
	BetAmount float64 `json:"bet_amount" binding:"required"`
	MineCount int     `json:"mine_count" binding:"required"`
}

type revealRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Position  *int   `json:"position" binding:"required"`
}

type cashoutRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// Start opens a session in the current round.
func (h *GameHandler) Start(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	res, err := h.engine.StartGame(c.Request.Context(), userID, req.BetAmount, req.MineCount)
	if err != nil {
		writeGameError(c, err)
		return
	}

	body := gin.H{
		"session_id":      res.Session.ID,
		"round_id":        res.Session.RoundID,
		"bet_amount":      res.Session.BetAmount,
		"mine_count":      res.Session.MineCount,
		"base_multiplier": res.BaseMultiplier,
		"multiplier":      res.Session.Multiplier,
		"status":          res.Session.Status,
	}
	if res.MinePositions != nil {
		body["mine_positions"] = res.MinePositions
	}
	c.JSON(http.StatusOK, body)
}

// Reveal uncovers one cell of an active session.
func (h *GameHandler) Reveal(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req revealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	res, err := h.engine.Reveal(c.Request.Context(), req.SessionID, userID, *req.Position)
	if err != nil {
		writeGameError(c, err)
		return
	}

	body := gin.H{
		"is_mine":        res.IsMine,
		"game_over":      res.GameOver,
		"revealed_cells": res.RevealedCells,
	}
	if res.IsMine {
		body["mine_positions"] = res.MinePositions
	} else {
		body["multiplier"] = res.Multiplier
		body["potential_winnings"] = res.PotentialWinnings
		body["next_multiplier"] = res.NextMultiplier
	}
	c.JSON(http.StatusOK, body)
}

// CashOut settles an active session as won.
func (h *GameHandler) CashOut(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req cashoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	winnings, err := h.engine.CashOut(c.Request.Context(), req.SessionID, userID)
	if err != nil {
		writeGameError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"winnings": winnings,
	})
}

// Round returns the current round snapshot. Admins also get the mine
// layout.
func (h *GameHandler) Round(c *gin.Context) {
	info := h.engine.CurrentRound(c.GetBool("is_admin"))

	body := gin.H{
		"round_id":      info.RoundID,
		"next_round_id": info.NextRoundID,
		"started_at":    info.StartedAt,
		"remaining_ms":  info.RemainingMs,
	}
	if info.MinePositions != nil {
		body["mine_positions"] = info.MinePositions
	}
	c.JSON(http.StatusOK, body)
}

// History lists the caller's most recent sessions. Other users' mine
// layouts never leave the server, so only terminal sessions disclose
// positions.
func (h *GameHandler) History(c *gin.Context) {
	userID := c.GetInt64("user_id")

	sessions, err := h.history.ListByUser(c.Request.Context(), userID, 50)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to list session history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	out := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		item := gin.H{
			"session_id":     s.ID,
			"round_id":       s.RoundID,
			"bet_amount":     s.BetAmount,
			"mine_count":     s.MineCount,
			"revealed_cells": s.RevealedCells,
			"multiplier":     s.Multiplier,
			"status":         s.Status,
			"winnings":       s.Winnings,
			"created_at":     s.CreatedAt,
		}
		if s.Status != model.SessionStatusActive {
			item["mine_positions"] = s.MinePositions
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// writeGameError maps the game sentinels onto HTTP statuses. Unknown
// errors are logged and hidden from the client.
func writeGameError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, mines.ErrInvalidBet),
		errors.Is(err, mines.ErrInvalidMineCount),
		errors.Is(err, mines.ErrInvalidPosition),
		errors.Is(err, mines.ErrAlreadyRevealed),
		errors.Is(err, mines.ErrNothingRevealed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, mines.ErrDuplicateBet):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInsufficientBalance):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, mines.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Msg("Game operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
