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

// ErrSessionNotFound is returned when a persisted session is missing.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository handles game session persistence. The in-memory
// registry is authoritative for live play; rows here are the durable
// write-through copy and the long-term history.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create inserts a freshly started session.
func (r *SessionRepository) Create(ctx context.Context, s model.GameSession) error {
	const query = `
		INSERT INTO sessions (id, user_id, round_id, bet_amount, mine_count,
			mine_positions, revealed_cells, multiplier, status, winnings, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	mines, revealed, err := encodeCells(s)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, query,
		s.ID, s.UserID, s.RoundID, s.BetAmount, s.MineCount,
		mines, revealed, s.Multiplier, s.Status, s.Winnings, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Update writes the mutable session fields after a reveal or a terminal
// transition.
func (r *SessionRepository) Update(ctx context.Context, s model.GameSession) error {
	const query = `
		UPDATE sessions
		SET revealed_cells = $2, multiplier = $3, status = $4, winnings = $5
		WHERE id = $1
	`

	_, revealed, err := encodeCells(s)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, query, s.ID, revealed, s.Multiplier, s.Status, s.Winnings)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetByID retrieves a persisted session.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.GameSession, error) {
	const query = `
		SELECT id, user_id, round_id, bet_amount, mine_count,
			mine_positions, revealed_cells, multiplier, status, winnings, created_at
		FROM sessions
		WHERE id = $1
	`

	var s model.GameSession
	var mines, revealed string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.RoundID, &s.BetAmount, &s.MineCount,
		&mines, &revealed, &s.Multiplier, &s.Status, &s.Winnings, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if err := json.Unmarshal([]byte(mines), &s.MinePositions); err != nil {
		return nil, fmt.Errorf("failed to decode mine positions: %w", err)
	}
	if err := json.Unmarshal([]byte(revealed), &s.RevealedCells); err != nil {
		return nil, fmt.Errorf("failed to decode revealed cells: %w", err)
	}
	return &s, nil
}

// ListByUser retrieves a user's sessions, most recent first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.GameSession, error) {
	const query = `
		SELECT id, user_id, round_id, bet_amount, mine_count,
			mine_positions, revealed_cells, multiplier, status, winnings, created_at
		FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.GameSession
	for rows.Next() {
		var s model.GameSession
		var mines, revealed string
		err := rows.Scan(
			&s.ID, &s.UserID, &s.RoundID, &s.BetAmount, &s.MineCount,
			&mines, &revealed, &s.Multiplier, &s.Status, &s.Winnings, &s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if err := json.Unmarshal([]byte(mines), &s.MinePositions); err != nil {
			return nil, fmt.Errorf("failed to decode mine positions: %w", err)
		}
		if err := json.Unmarshal([]byte(revealed), &s.RevealedCells); err != nil {
			return nil, fmt.Errorf("failed to decode revealed cells: %w", err)
		}
		sessions = append(sessions, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

func encodeCells(s model.GameSession) (mines string, revealed string, err error) {
	m, err := json.Marshal(s.MinePositions)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode mine positions: %w", err)
	}
	rv, err := json.Marshal(s.RevealedCells)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode revealed cells: %w", err)
	}
	return string(m), string(rv), nil
}
