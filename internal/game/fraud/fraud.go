// Package fraud implements the controlled-loss policy for streaking
// players. The rule is deliberate product behavior carried over from the
// operators: it is kept behind an interface so a deployment can swap it
// out or disable it outright.
package fraud

// Policy decides whether a reveal must resolve as a mine hit regardless
// of the session's true layout. Implementations must be pure: no side
// effects, same inputs always give the same answer.
type Policy interface {
	// ForceLoss is consulted before a reveal is applied.
	// consecutiveWins is the user's current win streak, overrideEnabled
	// is the per-user operator flag ("hack mode"), and revealedBefore is
	// the number of cells revealed prior to this reveal.
	ForceLoss(consecutiveWins int, overrideEnabled bool, revealedBefore int) bool
}

// StreakPolicy forces a mine on exactly the third reveal for a user who
// has cashed out two rounds in a row, unless an operator has enabled the
// override flag for that user.
type StreakPolicy struct {
	// WinThreshold is the streak length that arms the policy.
	WinThreshold int
	// ForcedReveal is the zero-based reveal index that hits.
	ForcedReveal int
}

// NewStreakPolicy returns the policy with the standard parameters:
// streak of 2 arms it, the third click loses.
func NewStreakPolicy() *StreakPolicy {
	return &StreakPolicy{WinThreshold: 2, ForcedReveal: 2}
}

// ForceLoss implements Policy.
func (p *StreakPolicy) ForceLoss(consecutiveWins int, overrideEnabled bool, revealedBefore int) bool {
	return consecutiveWins >= p.WinThreshold &&
		!overrideEnabled &&
		revealedBefore == p.ForcedReveal
}

// Disabled never forces a loss. Used when the deployment turns the
// policy off.
type Disabled struct{}

// ForceLoss implements Policy.
func (Disabled) ForceLoss(int, bool, int) bool { return false }
