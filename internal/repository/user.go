package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"minex-server/internal/model"
)

const userColumns = `id, username, balance, total_wagered, consecutive_wins,
	hack_mode_enabled, is_admin, created_at, updated_at`

// UserRepository handles user account persistence: balances, win
// streaks and the per-user override flag.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Balance,
		&u.TotalWagered,
		&u.ConsecutiveWins,
		&u.HackModeEnabled,
		&u.IsAdmin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Create creates a new user with the given username and starting balance.
func (r *UserRepository) Create(ctx context.Context, username string, balance float64, isAdmin bool) (*model.User, error) {
	const query = `
		INSERT INTO users (username, balance, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING ` + userColumns

	u, err := scanUser(r.pool.QueryRow(ctx, query, username, balance, isAdmin))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by ID. Returns ErrUserNotFound if missing.
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	u, err := scanUser(r.pool.QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// AdjustBalance adds delta (which may be negative) to a user's balance
// and returns the updated user. The UPDATE is atomic; callers that need
// a check-then-deduct sequence serialize through the user lock.
func (r *UserRepository) AdjustBalance(ctx context.Context, userID int64, delta float64) (*model.User, error) {
	const query = `
		UPDATE users
		SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	u, err := scanUser(r.pool.QueryRow(ctx, query, userID, delta))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to adjust balance: %w", err)
	}
	return u, nil
}

// RecordWin credits a cashout in a single statement: balance goes up by
// winnings, lifetime wagered by the stake, and the win streak by one.
func (r *UserRepository) RecordWin(ctx context.Context, userID int64, winnings, wagered float64) error {
	const query = `
		UPDATE users
		SET balance = balance + $2,
			total_wagered = total_wagered + $3,
			consecutive_wins = consecutive_wins + 1,
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, userID, winnings, wagered)
	if err != nil {
		return fmt.Errorf("failed to record win: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ResetStreak zeroes a user's consecutive-win counter after a loss.
func (r *UserRepository) ResetStreak(ctx context.Context, userID int64) error {
	const query = `
		UPDATE users
		SET consecutive_wins = 0, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to reset streak: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetHackMode flips the per-user override flag that disables the
// forced-loss policy.
func (r *UserRepository) SetHackMode(ctx context.Context, userID int64, enabled bool) error {
	const query = `
		UPDATE users
		SET hack_mode_enabled = $2, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, userID, enabled)
	if err != nil {
		return fmt.Errorf("failed to set hack mode: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
