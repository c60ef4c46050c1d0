package service

import (
	"context"
	"errors"
	"sync"

	"minex-server/internal/model"
	"minex-server/internal/notify"
	"minex-server/internal/repository"
)

// In-memory fakes for the persistence ports. They mirror the SQL
// repositories closely enough for the engine and scheduler tests to
// exercise real flows without a database.

type fakeUsers struct {
	mu    sync.Mutex
	users map[int64]*model.User
}

func newFakeUsers(users ...*model.User) *fakeUsers {
	f := &fakeUsers{users: make(map[int64]*model.User)}
	for _, u := range users {
		cp := *u
		f.users[u.ID] = &cp
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, userID int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, errors.New("user not found")
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) AdjustBalance(_ context.Context, userID int64, delta float64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, errors.New("user not found")
	}
	u.Balance += delta
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) RecordWin(_ context.Context, userID int64, winnings, wagered float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return errors.New("user not found")
	}
	u.Balance += winnings
	u.TotalWagered += wagered
	u.ConsecutiveWins++
	return nil
}

func (f *fakeUsers) ResetStreak(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return errors.New("user not found")
	}
	u.ConsecutiveWins = 0
	return nil
}

// fakeAccountStore adds the lifecycle methods on top of fakeUsers.
type fakeAccountStore struct {
	*fakeUsers
	nextID int64
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{fakeUsers: newFakeUsers(), nextID: 1}
}

func (f *fakeAccountStore) Create(_ context.Context, username string, balance float64, isAdmin bool) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &model.User{
		ID:       f.nextID,
		Username: username,
		Balance:  balance,
		IsAdmin:  isAdmin,
	}
	f.nextID++
	f.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (f *fakeAccountStore) GetByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeAccountStore) SetHackMode(_ context.Context, userID int64, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.HackModeEnabled = enabled
	return nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []model.Transaction
}

func (f *fakeLedger) Create(_ context.Context, userID int64, amount float64, txType string, description *string) (*model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx := model.Transaction{
		ID:     int64(len(f.entries) + 1),
		UserID: userID,
		Amount: amount,
		Type:   txType,
	}
	if description != nil {
		tx.Description = description
	}
	f.entries = append(f.entries, tx)
	return &tx, nil
}

func (f *fakeLedger) byType(txType string) []model.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Transaction
	for _, tx := range f.entries {
		if tx.Type == txType {
			out = append(out, tx)
		}
	}
	return out
}

type fakeSessions struct {
	mu      sync.Mutex
	created []model.GameSession
	updated []model.GameSession
}

func (f *fakeSessions) Create(_ context.Context, s model.GameSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, s)
	return nil
}

func (f *fakeSessions) Update(_ context.Context, s model.GameSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, s)
	return nil
}

func (f *fakeSessions) lastUpdate() (model.GameSession, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updated) == 0 {
		return model.GameSession{}, false
	}
	return f.updated[len(f.updated)-1], true
}

type fakeRounds struct {
	mu          sync.Mutex
	created     []model.Round
	ended       []string
	failCreates int
}

func (f *fakeRounds) Create(_ context.Context, round *model.Round) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreates > 0 {
		f.failCreates--
		return errors.New("database unavailable")
	}
	f.created = append(f.created, *round)
	return nil
}

func (f *fakeRounds) End(_ context.Context, roundID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, roundID)
	return nil
}

func (f *fakeRounds) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// staticRound is a RoundSource pinned to one round, for engine tests
// that do not care about rotation.
type staticRound struct {
	mu    sync.Mutex
	round model.Round
}

func (s *staticRound) WithCurrentRound(fn func(round model.Round) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.round)
}

func (s *staticRound) CurrentRound() (model.Round, string, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round, "", 0
}

// recordingNotifier captures broadcast events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	admin  []notify.Event
}

func (n *recordingNotifier) Broadcast(e notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) BroadcastAdmin(e notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admin = append(n.admin, e)
}

func (n *recordingNotifier) ofType(eventType string) []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Event
	for _, e := range n.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}
