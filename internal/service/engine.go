package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"minex-server/internal/game/fraud"
	"minex-server/internal/game/mines"
	"minex-server/internal/game/payout"
	"minex-server/internal/model"
	"minex-server/internal/notify"
	"minex-server/internal/pkg/lock"
)

// Engine is the front door of the mines game. It composes the session
// store, the round scheduler, account persistence and the fraud policy
// into the three player operations: start, reveal, cash out.
//
// Admins play outside the economy: no stake is taken, no winnings are
// credited and the fraud policy never applies to them.
type Engine struct {
	store    *mines.Store
	rounds   RoundSource
	users    UserStore
	ledger   LedgerStore
	sessions SessionWriter
	policy   fraud.Policy
	locks    *lock.UserLock
	notifier notify.Notifier
}

func NewEngine(
	store *mines.Store,
	rounds RoundSource,
	users UserStore,
	ledger LedgerStore,
	sessions SessionWriter,
	policy fraud.Policy,
	locks *lock.UserLock,
	notifier notify.Notifier,
) *Engine {
	return &Engine{
		store:    store,
		rounds:   rounds,
		users:    users,
		ledger:   ledger,
		sessions: sessions,
		policy:   policy,
		locks:    locks,
		notifier: notifier,
	}
}

// StartResult is returned from StartGame. MinePositions is populated
// for admin players only.
type StartResult struct {
	Session        model.GameSession
	BaseMultiplier float64
	MinePositions  []int
}

// RoundInfo is a client-facing snapshot of the round cycle.
// MinePositions is populated for admins only.
type RoundInfo struct {
	RoundID       string
	NextRoundID   string
	StartedAt     int64
	RemainingMs   int64
	MinePositions []int
}

// StartGame opens a session in the current round. For non-admins the
// stake is checked and deducted under the per-user lock, and the whole
// operation runs under the scheduler's rotation lock so the round
// cannot end between the duplicate check and the registration.
func (e *Engine) StartGame(ctx context.Context, userID int64, betAmount float64, mineCount int) (StartResult, error) {
	if err := mines.ValidateBet(betAmount, mineCount); err != nil {
		return StartResult{}, err
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return StartResult{}, fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	var snap model.GameSession
	err = e.rounds.WithCurrentRound(func(round model.Round) error {
		if user.IsAdmin {
			var serr error
			snap, serr = e.store.StartSession(userID, betAmount, mineCount, round.ID)
			return serr
		}
		return e.locks.WithLock(userID, func() error {
			fresh, lerr := e.users.GetByID(ctx, userID)
			if lerr != nil {
				return fmt.Errorf("failed to load user %d: %w", userID, lerr)
			}
			if fresh.Balance < betAmount {
				return ErrInsufficientBalance
			}
			snap, lerr = e.store.StartSession(userID, betAmount, mineCount, round.ID)
			if lerr != nil {
				return lerr
			}
			if _, lerr = e.users.AdjustBalance(ctx, userID, -betAmount); lerr != nil {
				log.Error().Err(lerr).Int64("user_id", userID).Msg("Failed to deduct stake")
			}
			desc := fmt.Sprintf("Bet placed in round %s", round.ID)
			if _, lerr = e.ledger.Create(ctx, userID, -betAmount, model.TxTypeBet, &desc); lerr != nil {
				log.Warn().Err(lerr).Int64("user_id", userID).Msg("Failed to record bet transaction")
			}
			return nil
		})
	})
	if err != nil {
		return StartResult{}, err
	}

	if perr := e.sessions.Create(ctx, snap); perr != nil {
		log.Warn().Err(perr).Str("session_id", snap.ID).Msg("Failed to persist new session")
	}

	e.notifier.Broadcast(notify.SessionStarted{
		SessionID:         snap.ID,
		RoundID:           snap.RoundID,
		BaseMultiplier:    payout.BaseMultiplierOrDefault(mineCount),
		CurrentMultiplier: snap.Multiplier,
	})

	res := StartResult{
		Session:        snap,
		BaseMultiplier: payout.BaseMultiplierOrDefault(mineCount),
	}
	if user.IsAdmin {
		res.MinePositions = snap.MinePositions
	}
	return res, nil
}

// Reveal uncovers one cell. The fraud policy inputs (win streak and
// override flag) are read once up front; the decision itself is applied
// under the session lock together with the reveal, so whether the cell
// comes up mined is settled atomically with the session state.
func (e *Engine) Reveal(ctx context.Context, sessionID string, userID int64, position int) (mines.RevealResult, error) {
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return mines.RevealResult{}, fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	var forceLoss func(revealedBefore int) bool
	if !user.IsAdmin {
		wins := user.ConsecutiveWins
		override := user.HackModeEnabled
		forceLoss = func(revealedBefore int) bool {
			return e.policy.ForceLoss(wins, override, revealedBefore)
		}
	}

	res, snap, err := e.store.Reveal(sessionID, userID, position, forceLoss)
	if err != nil {
		return mines.RevealResult{}, err
	}

	if perr := e.sessions.Update(ctx, snap); perr != nil {
		log.Warn().Err(perr).Str("session_id", snap.ID).Msg("Failed to persist reveal")
	}

	if res.IsMine {
		if !user.IsAdmin {
			if serr := e.users.ResetStreak(ctx, userID); serr != nil {
				log.Warn().Err(serr).Int64("user_id", userID).Msg("Failed to reset win streak")
			}
		}
		e.notifier.Broadcast(notify.SessionLost{
			SessionID:     snap.ID,
			RevealedCells: res.RevealedCells,
			MinePositions: res.MinePositions,
		})
		return res, nil
	}

	e.notifier.Broadcast(notify.MultiplierUpdate{
		SessionID:         snap.ID,
		CurrentMultiplier: res.Multiplier,
		PotentialWinnings: res.PotentialWinnings,
		RevealedCells:     res.RevealedCells,
		NextMultiplier:    res.NextMultiplier,
	})
	return res, nil
}

// CashOut settles an active session as won at its current multiplier
// and credits the winnings for non-admins.
func (e *Engine) CashOut(ctx context.Context, sessionID string, userID int64) (float64, error) {
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	winnings, snap, err := e.store.CashOut(sessionID, userID)
	if err != nil {
		return 0, err
	}

	if perr := e.sessions.Update(ctx, snap); perr != nil {
		log.Warn().Err(perr).Str("session_id", snap.ID).Msg("Failed to persist cashout")
	}

	if !user.IsAdmin {
		if werr := e.users.RecordWin(ctx, userID, winnings, snap.BetAmount); werr != nil {
			log.Error().Err(werr).Int64("user_id", userID).Float64("winnings", winnings).
				Msg("Failed to credit winnings")
		}
		desc := fmt.Sprintf("Winnings from round %s", snap.RoundID)
		if _, lerr := e.ledger.Create(ctx, userID, winnings, model.TxTypeWinnings, &desc); lerr != nil {
			log.Warn().Err(lerr).Int64("user_id", userID).Msg("Failed to record winnings transaction")
		}
	}

	e.notifier.Broadcast(notify.CashoutSuccess{
		SessionID: snap.ID,
		Winnings:  winnings,
	})
	return winnings, nil
}

// CurrentRound reports the live round. Admins additionally see the mine
// layout.
func (e *Engine) CurrentRound(isAdmin bool) RoundInfo {
	round, nextID, remaining := e.rounds.CurrentRound()
	info := RoundInfo{
		RoundID:     round.ID,
		NextRoundID: nextID,
		StartedAt:   round.StartTime.UnixMilli(),
		RemainingMs: remaining,
	}
	if isAdmin {
		info.MinePositions = round.MinePositions
	}
	return info
}
