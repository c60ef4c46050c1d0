// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"minex-server/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrRoundNotFound = errors.New("round not found")
)

// RoundRepository handles game round persistence. Rounds are never
// deleted; ended rounds stay for audit and history.
type RoundRepository struct {
	pool *pgxpool.Pool
}

// NewRoundRepository creates a new RoundRepository instance.
func NewRoundRepository(pool *pgxpool.Pool) *RoundRepository {
	return &RoundRepository{pool: pool}
}

// Create inserts a new active round.
func (r *RoundRepository) Create(ctx context.Context, round *model.Round) error {
	const query = `
		INSERT INTO rounds (round_id, mine_positions, start_time, status)
		VALUES ($1, $2, $3, $4)
	`

	positions, err := json.Marshal(round.MinePositions)
	if err != nil {
		return fmt.Errorf("failed to encode mine positions: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, round.ID, string(positions), round.StartTime, round.Status)
	if err != nil {
		return fmt.Errorf("failed to create round: %w", err)
	}
	return nil
}

// End marks a round as ended.
func (r *RoundRepository) End(ctx context.Context, roundID string) error {
	const query = `
		UPDATE rounds
		SET status = $2, end_time = NOW()
		WHERE round_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, roundID, model.RoundStatusEnded)
	if err != nil {
		return fmt.Errorf("failed to end round: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoundNotFound
	}
	return nil
}

// GetByID retrieves a round by its identifier.
func (r *RoundRepository) GetByID(ctx context.Context, roundID string) (*model.Round, error) {
	const query = `
		SELECT round_id, mine_positions, start_time, end_time, status
		FROM rounds
		WHERE round_id = $1
	`

	var round model.Round
	var positions string
	err := r.pool.QueryRow(ctx, query, roundID).Scan(
		&round.ID,
		&positions,
		&round.StartTime,
		&round.EndTime,
		&round.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to get round: %w", err)
	}

	if err := json.Unmarshal([]byte(positions), &round.MinePositions); err != nil {
		return nil, fmt.Errorf("failed to decode mine positions: %w", err)
	}
	return &round, nil
}
