// Package payout implements the multiplier curve for the mines game.
package payout

import "errors"

const (
	// BoardSize is the number of cells on the board.
	BoardSize = 25

	// MinMultiplier is the floor applied to every computed multiplier.
	// The hypergeometric product can dip below 1.01 through floating
	// rounding near the safe-cell limit.
	MinMultiplier = 1.01

	// FallbackBaseMultiplier is returned by BaseMultiplierOrDefault for
	// mine counts outside [1,24].
	FallbackBaseMultiplier = 1.08
)

// ErrInvalidMineCount is returned when a mine count is outside [1,24].
var ErrInvalidMineCount = errors.New("mine count must be between 1 and 24")

// baseMultipliers maps mine count to the first-click payout multiplier.
// Values are monotonically increasing: more mines, higher reward.
var baseMultipliers = map[int]float64{
	1:  1.01,
	2:  1.05,
	3:  1.08,
	4:  1.10,
	5:  1.15,
	6:  1.21,
	7:  1.27,
	8:  1.34,
	9:  1.42,
	10: 1.51,
	11: 1.61,
	12: 1.73,
	13: 1.86,
	14: 2.02,
	15: 2.20,
	16: 2.40,
	17: 2.63,
	18: 2.89,
	19: 3.19,
	20: 3.54,
	21: 3.95,
	22: 4.44,
	23: 5.02,
	24: 5.74,
}

// BaseMultiplier returns the first-click multiplier for the given mine count.
func BaseMultiplier(mineCount int) (float64, error) {
	m, ok := baseMultipliers[mineCount]
	if !ok {
		return 0, ErrInvalidMineCount
	}
	return m, nil
}

// BaseMultiplierOrDefault is the lenient variant for display paths:
// malformed input yields the fallback instead of an error.
func BaseMultiplierOrDefault(mineCount int) float64 {
	if m, ok := baseMultipliers[mineCount]; ok {
		return m
	}
	return FallbackBaseMultiplier
}

// MultiplierAfter returns the payout multiplier after safeRevealed safe
// cells have been revealed with mineCount mines on the board.
//
// The value is the inverse of the cumulative probability of drawing
// safeRevealed safe cells in a row without replacement:
//
//	prod(i=1..k) (25 - i + 1) / (25 - mineCount - i + 1)
//
// which makes it the fair-odds multiplier for a purely random reveal.
// Deterministic and pure: same inputs always give the same output.
func MultiplierAfter(mineCount, safeRevealed int) float64 {
	if safeRevealed == 0 {
		return 1.0
	}

	safeCells := BoardSize - mineCount

	multiplier := 1.0
	for i := 1; i <= safeRevealed; i++ {
		remainingTotal := float64(BoardSize - i + 1)
		remainingSafe := float64(safeCells - i + 1)
		multiplier *= remainingTotal / remainingSafe
	}

	if multiplier < MinMultiplier {
		return MinMultiplier
	}
	return multiplier
}
