// Package mines implements the 25-cell mines board and the per-user
// game session registry.
package mines

import (
	"errors"
	"math/rand/v2"
	"sort"
)

const (
	// BoardSize is the number of cells on the board.
	BoardSize = 25

	// MinBet and MaxBet bound the stake for a single session.
	MinBet = 10
	MaxBet = 10000

	// MinMines and MaxMines bound the configurable mine count.
	MinMines = 1
	MaxMines = 24
)

// Errors for board and session operations.
var (
	ErrTooManyMines     = errors.New("mine count must be less than board size")
	ErrInvalidBet       = errors.New("bet amount out of allowed range")
	ErrInvalidMineCount = errors.New("mine count must be between 1 and 24")
	ErrInvalidPosition  = errors.New("position out of board range")
	ErrDuplicateBet     = errors.New("an active session already exists for this round")
	ErrSessionNotFound  = errors.New("session not found or not active")
	ErrAlreadyRevealed  = errors.New("position already revealed")
	ErrNothingRevealed  = errors.New("no positions revealed yet")
)

// ValidateBet checks the stake and mine count against the allowed
// ranges.
func ValidateBet(betAmount float64, mineCount int) error {
	if betAmount < MinBet || betAmount > MaxBet {
		return ErrInvalidBet
	}
	if mineCount < MinMines || mineCount > MaxMines {
		return ErrInvalidMineCount
	}
	return nil
}

// GenerateLayout samples mineCount distinct positions in [0, boardSize)
// and returns them sorted. The top-level math/rand/v2 source is seeded
// from OS entropy, so layouts are not reproducible by clients.
func GenerateLayout(mineCount, boardSize int) ([]int, error) {
	if mineCount >= boardSize {
		return nil, ErrTooManyMines
	}

	seen := make(map[int]struct{}, mineCount)
	positions := make([]int, 0, mineCount)
	for len(positions) < mineCount {
		pos := rand.IntN(boardSize)
		if _, ok := seen[pos]; ok {
			continue
		}
		seen[pos] = struct{}{}
		positions = append(positions, pos)
	}

	sort.Ints(positions)
	return positions, nil
}
