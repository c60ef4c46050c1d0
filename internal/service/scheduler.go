package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"minex-server/internal/game/mines"
	"minex-server/internal/model"
	"minex-server/internal/notify"
)

// roundIDLayout turns a rotation timestamp into a sortable round ID,
// e.g. 20260829143000.
const roundIDLayout = "20060102150405"

// Scheduler owns the global round cycle. Every roundDuration it ends
// the current round, auto-cashes-out every still-active session at its
// current multiplier, and opens a fresh round with a newly generated
// mine layout. The in-memory round is authoritative; database writes
// are best-effort with a bounded retry so a flaky database never stalls
// the game loop.
type Scheduler struct {
	store    *mines.Store
	rounds   RoundWriter
	sessions SessionWriter
	users    UserStore
	ledger   LedgerStore
	notifier notify.Notifier

	duration  time.Duration
	mineCount int

	persistRetries int
	persistBackoff time.Duration

	mu      sync.Mutex
	current model.Round
	nextID  string

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewScheduler(
	store *mines.Store,
	rounds RoundWriter,
	sessions SessionWriter,
	users UserStore,
	ledger LedgerStore,
	notifier notify.Notifier,
	duration time.Duration,
	mineCount int,
) *Scheduler {
	return &Scheduler{
		store:          store,
		rounds:         rounds,
		sessions:       sessions,
		users:          users,
		ledger:         ledger,
		notifier:       notifier,
		duration:       duration,
		mineCount:      mineCount,
		persistRetries: 3,
		persistBackoff: time.Second,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start opens the first round synchronously, then rotates on a ticker
// until Stop is called. The caller has a live round as soon as Start
// returns.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Rotate(ctx); err != nil {
		return fmt.Errorf("failed to open initial round: %w", err)
	}
	go s.loop(ctx)
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.duration)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Rotate(ctx); err != nil {
				log.Error().Err(err).Msg("Round rotation failed")
			}
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts the rotation loop and waits for it to exit. The current
// round stays open; sessions in it resolve on shutdown policy instead.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// Rotate ends the current round (if any), resolves its sessions and
// opens the next one. Safe to call manually, e.g. from an admin
// endpoint or a test.
func (s *Scheduler) Rotate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	newID := now.Format(roundIDLayout)

	ending := s.current
	if ending.ID != "" && newID <= ending.ID {
		// Manual rotation within the same second as the last one. Bump
		// off the ending round's ID, not its start time, so repeated
		// rotations keep IDs strictly increasing.
		prev, perr := time.Parse(roundIDLayout, ending.ID)
		if perr != nil {
			return fmt.Errorf("malformed current round id %q: %w", ending.ID, perr)
		}
		newID = prev.Add(time.Second).Format(roundIDLayout)
	}

	layout, err := mines.GenerateLayout(s.mineCount, mines.BoardSize)
	if err != nil {
		return fmt.Errorf("failed to generate round layout: %w", err)
	}

	if ending.ID != "" {
		s.closeRound(ctx, ending)
	}

	round := model.Round{
		ID:            newID,
		MinePositions: layout,
		StartTime:     now,
		Status:        model.RoundStatusActive,
	}
	s.current = round
	s.nextID = now.Add(s.duration).Format(roundIDLayout)

	go s.persistRound(ctx, round)

	s.notifier.Broadcast(notify.RoundUpdate{
		CurrentRoundID: round.ID,
		NextRoundID:    s.nextID,
		RemainingMs:    s.duration.Milliseconds(),
		StartedAt:      now.UnixMilli(),
	})
	s.notifier.BroadcastAdmin(notify.RoundMineLayout{
		RoundID:   round.ID,
		Positions: layout,
	})

	log.Info().
		Str("round_id", round.ID).
		Str("next_round_id", s.nextID).
		Int("active_sessions", s.store.ActiveCount()).
		Msg("Round opened")
	return nil
}

// closeRound marks the round ended and auto-cashes-out every session
// that is still active in it. Called with s.mu held.
func (s *Scheduler) closeRound(ctx context.Context, ending model.Round) {
	if err := s.rounds.End(ctx, ending.ID); err != nil {
		log.Warn().Err(err).Str("round_id", ending.ID).Msg("Failed to mark round ended")
	}

	resolutions := s.store.ResolveRound(ending.ID)
	for _, res := range resolutions {
		if err := s.sessions.Update(ctx, res.Session); err != nil {
			log.Warn().Err(err).Str("session_id", res.Session.ID).Msg("Failed to persist auto-cashout")
		}
		s.creditResolution(ctx, res)
		s.notifier.Broadcast(notify.AutoCashout{
			SessionID: res.Session.ID,
			Winnings:  res.Winnings,
			Reason:    "round_ended",
		})
	}
	if len(resolutions) > 0 {
		log.Info().Str("round_id", ending.ID).Int("resolved", len(resolutions)).Msg("Auto-cashed-out open sessions")
	}
}

func (s *Scheduler) creditResolution(ctx context.Context, res mines.Resolution) {
	user, err := s.users.GetByID(ctx, res.Session.UserID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", res.Session.UserID).Msg("Failed to load user for auto-cashout credit")
		return
	}
	if user.IsAdmin {
		return
	}
	if _, err := s.users.AdjustBalance(ctx, user.ID, res.Winnings); err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Float64("winnings", res.Winnings).
			Msg("Failed to credit auto-cashout")
		return
	}
	desc := fmt.Sprintf("Auto-cashout from round %s", res.Session.RoundID)
	if _, err := s.ledger.Create(ctx, user.ID, res.Winnings, model.TxTypeAutoCashout, &desc); err != nil {
		log.Warn().Err(err).Int64("user_id", user.ID).Msg("Failed to record auto-cashout transaction")
	}
}

// persistRound writes the round with a bounded retry. Round state lives
// in memory first, so failures only cost history.
func (s *Scheduler) persistRound(ctx context.Context, round model.Round) {
	var err error
	for attempt := 1; attempt <= s.persistRetries; attempt++ {
		if err = s.rounds.Create(ctx, &round); err == nil {
			return
		}
		log.Warn().Err(err).Str("round_id", round.ID).Int("attempt", attempt).
			Msg("Failed to persist round, retrying")
		select {
		case <-time.After(s.persistBackoff):
		case <-ctx.Done():
			return
		}
	}
	log.Error().Err(err).Str("round_id", round.ID).Msg("Giving up on round persistence, continuing in memory")
}

// WithCurrentRound runs fn with the rotation lock held, guaranteeing
// the round cannot rotate while fn executes. Bets are placed through
// here so a session is never opened against an already-ended round.
func (s *Scheduler) WithCurrentRound(fn func(round model.Round) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.current)
}

// CurrentRound returns a snapshot of the live round, the upcoming round
// ID and the milliseconds left before rotation.
func (s *Scheduler) CurrentRound() (model.Round, string, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := s.duration - time.Since(s.current.StartTime)
	if remaining < 0 {
		remaining = 0
	}
	return s.current, s.nextID, remaining.Milliseconds()
}
