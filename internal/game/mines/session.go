package mines

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"minex-server/internal/game/payout"
	"minex-server/internal/model"
)

// session is the mutable in-memory state of one bet. All field access
// after construction goes through mu.
type session struct {
	mu sync.Mutex

	id            string
	userID        int64
	roundID       string
	betAmount     float64
	mineCount     int
	minePositions []int
	revealed      []int
	multiplier    float64
	status        string
	winnings      float64
	createdAt     time.Time
}

// ownerRound keys the one-active-session-per-(user, round) index.
type ownerRound struct {
	userID  int64
	roundID string
}

// RevealResult describes the outcome of a single cell reveal.
type RevealResult struct {
	IsMine            bool
	GameOver          bool
	RevealedCells     []int
	Multiplier        float64
	PotentialWinnings float64
	NextMultiplier    float64
	// MinePositions is populated only on a loss, for client disclosure.
	MinePositions []int
}

// Resolution describes a session force-resolved at round end.
type Resolution struct {
	Session  model.GameSession
	Winnings float64
}

// Store is the authoritative in-memory registry of game sessions.
// The engine is its only writer; persistence is write-through and
// handled by the caller.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	active   map[ownerRound]string // index of active sessions
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*session),
		active:   make(map[ownerRound]string),
	}
}

// StartSession validates the bet, generates an independent mine layout
// and registers a new active session. Exactly one concurrent caller wins
// for a given (user, round) pair; the rest get ErrDuplicateBet.
func (s *Store) StartSession(userID int64, betAmount float64, mineCount int, roundID string) (model.GameSession, error) {
	if err := ValidateBet(betAmount, mineCount); err != nil {
		return model.GameSession{}, err
	}

	layout, err := GenerateLayout(mineCount, BoardSize)
	if err != nil {
		return model.GameSession{}, err
	}

	sess := &session{
		id:            uuid.New().String(),
		userID:        userID,
		roundID:       roundID,
		betAmount:     betAmount,
		mineCount:     mineCount,
		minePositions: layout,
		revealed:      []int{},
		multiplier:    1.0,
		status:        model.SessionStatusActive,
		createdAt:     time.Now(),
	}

	key := ownerRound{userID: userID, roundID: roundID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.active[key]; exists {
		return model.GameSession{}, ErrDuplicateBet
	}
	s.sessions[sess.id] = sess
	s.active[key] = sess.id

	return sess.snapshotLocked(), nil
}

// Reveal applies one cell reveal to an active session owned by userID.
// forceLoss is consulted with the number of cells revealed before this
// reveal; when it returns true the reveal resolves as a mine hit
// regardless of the true layout.
func (s *Store) Reveal(sessionID string, userID int64, position int, forceLoss func(revealedBefore int) bool) (RevealResult, model.GameSession, error) {
	if position < 0 || position >= BoardSize {
		return RevealResult{}, model.GameSession{}, ErrInvalidPosition
	}

	sess, err := s.lookup(sessionID, userID)
	if err != nil {
		return RevealResult{}, model.GameSession{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.status != model.SessionStatusActive {
		return RevealResult{}, model.GameSession{}, ErrSessionNotFound
	}
	for _, p := range sess.revealed {
		if p == position {
			return RevealResult{}, model.GameSession{}, ErrAlreadyRevealed
		}
	}

	forced := forceLoss != nil && forceLoss(len(sess.revealed))
	isMine := forced || contains(sess.minePositions, position)

	sess.revealed = append(sess.revealed, position)

	if isMine {
		sess.status = model.SessionStatusLost
		sess.winnings = 0
		s.release(sess)

		res := RevealResult{
			IsMine:        true,
			GameOver:      true,
			RevealedCells: copyInts(sess.revealed),
			MinePositions: copyInts(sess.minePositions),
		}
		return res, sess.snapshotLocked(), nil
	}

	safeCount := len(sess.revealed)
	totalSafe := BoardSize - sess.mineCount
	sess.multiplier = payout.MultiplierAfter(sess.mineCount, safeCount)

	next := sess.multiplier
	if safeCount < totalSafe {
		next = payout.MultiplierAfter(sess.mineCount, safeCount+1)
	}

	res := RevealResult{
		IsMine:            false,
		GameOver:          false,
		RevealedCells:     copyInts(sess.revealed),
		Multiplier:        sess.multiplier,
		PotentialWinnings: sess.betAmount * sess.multiplier,
		NextMultiplier:    next,
	}
	return res, sess.snapshotLocked(), nil
}

// CashOut terminates an active session as won at its current multiplier.
// At least one cell must have been revealed.
func (s *Store) CashOut(sessionID string, userID int64) (float64, model.GameSession, error) {
	sess, err := s.lookup(sessionID, userID)
	if err != nil {
		return 0, model.GameSession{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.status != model.SessionStatusActive {
		return 0, model.GameSession{}, ErrSessionNotFound
	}
	if len(sess.revealed) == 0 {
		return 0, model.GameSession{}, ErrNothingRevealed
	}

	sess.winnings = sess.betAmount * sess.multiplier
	sess.status = model.SessionStatusWon
	s.release(sess)

	return sess.winnings, sess.snapshotLocked(), nil
}

// ResolveRound force-resolves every active session of the given round as
// won at its current multiplier and prunes the sessions from the
// registry. Already-resolved sessions are skipped, so re-invoking for a
// round is safe and yields nothing to credit twice.
func (s *Store) ResolveRound(roundID string) []Resolution {
	s.mu.Lock()
	var candidates []*session
	for _, sess := range s.sessions {
		if sess.roundID == roundID {
			candidates = append(candidates, sess)
		}
	}
	s.mu.Unlock()

	var resolutions []Resolution
	for _, sess := range candidates {
		sess.mu.Lock()
		if sess.status == model.SessionStatusActive {
			sess.winnings = sess.betAmount * sess.multiplier
			sess.status = model.SessionStatusWon
			s.release(sess)
			resolutions = append(resolutions, Resolution{
				Session:  sess.snapshotLocked(),
				Winnings: sess.winnings,
			})
		}
		sess.mu.Unlock()

		// Terminal state is persisted by the caller; drop the in-memory copy.
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
	}

	return resolutions
}

// Get returns a snapshot of the session, terminal or not.
func (s *Store) Get(sessionID string) (model.GameSession, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return model.GameSession{}, false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshotLocked(), true
}

// ActiveCount reports the number of active sessions in the registry.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// lookup finds a session by id and owner.
func (s *Store) lookup(sessionID string, userID int64) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok || sess.userID != userID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// release removes a session from the active index once it reaches a
// terminal state. Callers hold sess.mu.
func (s *Store) release(sess *session) {
	key := ownerRound{userID: sess.userID, roundID: sess.roundID}
	s.mu.Lock()
	if s.active[key] == sess.id {
		delete(s.active, key)
	}
	s.mu.Unlock()
}

// snapshotLocked copies the session into a model value. Callers hold
// sess.mu (or hold the only reference, at construction).
func (sess *session) snapshotLocked() model.GameSession {
	return model.GameSession{
		ID:            sess.id,
		UserID:        sess.userID,
		RoundID:       sess.roundID,
		BetAmount:     sess.betAmount,
		MineCount:     sess.mineCount,
		MinePositions: copyInts(sess.minePositions),
		RevealedCells: copyInts(sess.revealed),
		Multiplier:    sess.multiplier,
		Status:        sess.status,
		Winnings:      sess.winnings,
		CreatedAt:     sess.createdAt,
	}
}

func contains(positions []int, p int) bool {
	for _, v := range positions {
		if v == p {
			return true
		}
	}
	return false
}

func copyInts(src []int) []int {
	dst := make([]int, len(src))
	copy(dst, src)
	return dst
}
