// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"

	"minex-server/internal/model"
)

// ErrInsufficientBalance is returned when a non-admin stake exceeds the
// user's balance.
var ErrInsufficientBalance = errors.New("insufficient balance")

// UserStore is the slice of account persistence the game core needs.
// Keeping it an interface lets the engine and scheduler run against
// in-memory fakes in tests, the same way the rob game decoupled itself
// from the shop through ItemEffectChecker in the bot this grew out of.
type UserStore interface {
	GetByID(ctx context.Context, userID int64) (*model.User, error)
	// AdjustBalance atomically adds delta (possibly negative) to the
	// user's balance and returns the updated user.
	AdjustBalance(ctx context.Context, userID int64, delta float64) (*model.User, error)
	// RecordWin credits winnings, adds the stake to lifetime wagered and
	// increments the consecutive-win counter in one write.
	RecordWin(ctx context.Context, userID int64, winnings, wagered float64) error
	// ResetStreak zeroes the consecutive-win counter.
	ResetStreak(ctx context.Context, userID int64) error
}

// LedgerStore appends balance-change records.
type LedgerStore interface {
	Create(ctx context.Context, userID int64, amount float64, txType string, description *string) (*model.Transaction, error)
}

// SessionWriter is the write-through persistence for game sessions.
type SessionWriter interface {
	Create(ctx context.Context, s model.GameSession) error
	Update(ctx context.Context, s model.GameSession) error
}

// RoundWriter is the write-through persistence for rounds.
type RoundWriter interface {
	Create(ctx context.Context, round *model.Round) error
	End(ctx context.Context, roundID string) error
}

// RoundSource exposes the current round to the engine. WithCurrentRound
// runs fn under the scheduler's rotation lock, so a bet placed through
// it can never interleave with a rotation.
type RoundSource interface {
	WithCurrentRound(fn func(round model.Round) error) error
	CurrentRound() (round model.Round, nextID string, remainingMs int64)
}
