package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"minex-server/internal/model"
	"minex-server/internal/repository"
)

// AccountStore extends UserStore with the account lifecycle operations
// the ledger-aware service needs.
type AccountStore interface {
	UserStore
	Create(ctx context.Context, username string, balance float64, isAdmin bool) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	SetHackMode(ctx context.Context, userID int64, enabled bool) error
}

// AccountService handles user registration and the admin-side account
// operations. Balance mutations go through it so every change leaves a
// transaction record.
type AccountService struct {
	users          AccountStore
	ledger         LedgerStore
	initialBalance float64
}

func NewAccountService(users AccountStore, ledger LedgerStore, initialBalance float64) *AccountService {
	return &AccountService{
		users:          users,
		ledger:         ledger,
		initialBalance: initialBalance,
	}
}

// EnsureUser returns the user with the given username, creating it with
// the configured starting balance on first contact.
func (s *AccountService) EnsureUser(ctx context.Context, username string, isAdmin bool) (*model.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to look up user %s: %w", username, err)
	}

	balance := s.initialBalance
	if isAdmin {
		balance = 0
	}
	user, err = s.users.Create(ctx, username, balance, isAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", username, err)
	}
	if balance > 0 {
		desc := "Initial balance"
		if _, lerr := s.ledger.Create(ctx, user.ID, balance, model.TxTypeInitial, &desc); lerr != nil {
			log.Warn().Err(lerr).Int64("user_id", user.ID).Msg("Failed to record initial balance transaction")
		}
	}

	log.Info().Int64("user_id", user.ID).Str("username", username).Bool("is_admin", isAdmin).
		Msg("User registered")
	return user, nil
}

// GetUser loads one user by ID.
func (s *AccountService) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	return s.users.GetByID(ctx, userID)
}

// SetHackMode toggles the per-user override that suspends the forced
// loss policy. Admin-only at the transport layer.
func (s *AccountService) SetHackMode(ctx context.Context, userID int64, enabled bool) error {
	if err := s.users.SetHackMode(ctx, userID, enabled); err != nil {
		return fmt.Errorf("failed to set hack mode for user %d: %w", userID, err)
	}
	log.Info().Int64("user_id", userID).Bool("enabled", enabled).Msg("Hack mode toggled")
	return nil
}

// Adjust applies an admin balance change and records it in the ledger.
func (s *AccountService) Adjust(ctx context.Context, userID int64, amount float64, reason string) (*model.User, error) {
	user, err := s.users.AdjustBalance(ctx, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to adjust balance for user %d: %w", userID, err)
	}
	if _, lerr := s.ledger.Create(ctx, userID, amount, model.TxTypeAdminAdjust, &reason); lerr != nil {
		log.Warn().Err(lerr).Int64("user_id", userID).Msg("Failed to record admin adjustment")
	}
	return user, nil
}
