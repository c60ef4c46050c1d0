// Package model defines the data models for the MineX game server.
package model

import "time"

// Round statuses. A round moves active -> ended exactly once and is
// never deleted, so history stays queryable for audit.
const (
	RoundStatusActive = "active"
	RoundStatusEnded  = "ended"
)

// Session statuses. An active session may transition to won or lost;
// both are terminal.
const (
	SessionStatusActive = "active"
	SessionStatusWon    = "won"
	SessionStatusLost   = "lost"
)

// User represents a player account in the game system.
type User struct {
	ID              int64     `db:"id"`
	Username        string    `db:"username"`
	Balance         float64   `db:"balance"`
	TotalWagered    float64   `db:"total_wagered"`
	ConsecutiveWins int       `db:"consecutive_wins"`
	HackModeEnabled bool      `db:"hack_mode_enabled"`
	IsAdmin         bool      `db:"is_admin"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// FraudState is the slice of user state the forced-loss policy reads.
type FraudState struct {
	ConsecutiveWins int
	OverrideEnabled bool
}

// Round represents one global fixed-duration betting window shared by
// all connected players. MinePositions is fixed at creation.
type Round struct {
	ID            string     `db:"round_id"`
	MinePositions []int      `db:"mine_positions"`
	StartTime     time.Time  `db:"start_time"`
	EndTime       *time.Time `db:"end_time"`
	Status        string     `db:"status"`
}

// GameSession represents one user's single bet within one round.
// MinePositions is the session's own layout; it is generated at bet time
// and is independent of the round's shared layout.
type GameSession struct {
	ID            string    `db:"id"`
	UserID        int64     `db:"user_id"`
	RoundID       string    `db:"round_id"`
	BetAmount     float64   `db:"bet_amount"`
	MineCount     int       `db:"mine_count"`
	MinePositions []int     `db:"mine_positions"`
	RevealedCells []int     `db:"revealed_cells"`
	Multiplier    float64   `db:"multiplier"`
	Status        string    `db:"status"`
	Winnings      float64   `db:"winnings"`
	CreatedAt     time.Time `db:"created_at"`
}

// Transaction represents a balance change record.
type Transaction struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	Amount      float64   `db:"amount"`
	Type        string    `db:"type"`
	Description *string   `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// Transaction types for categorizing balance changes.
const (
	TxTypeInitial     = "initial"      // Initial balance on account creation
	TxTypeBet         = "bet"          // Stake deducted on bet placement
	TxTypeWinnings    = "winnings"     // Cashout credit
	TxTypeAutoCashout = "auto_cashout" // Credit from round-end auto-cashout
	TxTypeAdminAdjust = "admin_adjust" // Manual balance adjustment by an operator
)
