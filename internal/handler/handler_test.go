package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minex-server/internal/game/fraud"
	"minex-server/internal/game/mines"
	"minex-server/internal/model"
	"minex-server/internal/notify"
	"minex-server/internal/pkg/lock"
	"minex-server/internal/pkg/token"
	"minex-server/internal/repository"
	"minex-server/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memStore is an in-memory stand-in for the SQL repositories, enough to
// drive the full API surface in tests.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]*model.User
	sessions map[string]model.GameSession
	txs      []model.Transaction
}

func newMemStore() *memStore {
	return &memStore{
		nextID:   1,
		users:    make(map[int64]*model.User),
		sessions: make(map[string]model.GameSession),
	}
}

func (m *memStore) Create(_ context.Context, username string, balance float64, isAdmin bool) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &model.User{ID: m.nextID, Username: username, Balance: balance, IsAdmin: isAdmin}
	m.nextID++
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memStore) GetByID(_ context.Context, userID int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetByUsername(_ context.Context, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memStore) AdjustBalance(_ context.Context, userID int64, delta float64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	u.Balance += delta
	cp := *u
	return &cp, nil
}

func (m *memStore) RecordWin(_ context.Context, userID int64, winnings, wagered float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Balance += winnings
	u.TotalWagered += wagered
	u.ConsecutiveWins++
	return nil
}

func (m *memStore) ResetStreak(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.ConsecutiveWins = 0
	return nil
}

func (m *memStore) SetHackMode(_ context.Context, userID int64, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.HackModeEnabled = enabled
	return nil
}

func (m *memStore) CreateTx(_ context.Context, userID int64, amount float64, txType string, description *string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := model.Transaction{ID: int64(len(m.txs) + 1), UserID: userID, Amount: amount, Type: txType, Description: description, CreatedAt: time.Now()}
	m.txs = append(m.txs, tx)
	return &tx, nil
}

func (m *memStore) CreateSession(_ context.Context, s model.GameSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memStore) UpdateSession(_ context.Context, s model.GameSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return errors.New("session not found")
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *memStore) session(id string) (model.GameSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Adapters giving the memStore the repository method sets the handlers
// and services expect.
type txStore struct{ *memStore }

func (t txStore) Create(ctx context.Context, userID int64, amount float64, txType string, description *string) (*model.Transaction, error) {
	return t.CreateTx(ctx, userID, amount, txType, description)
}

func (t txStore) ListByUser(_ context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*model.Transaction
	for i := len(t.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if t.txs[i].UserID == userID {
			tx := t.txs[i]
			out = append(out, &tx)
		}
	}
	return out, nil
}

type sessionStore struct{ *memStore }

func (s sessionStore) Create(ctx context.Context, sess model.GameSession) error {
	return s.CreateSession(ctx, sess)
}

func (s sessionStore) Update(ctx context.Context, sess model.GameSession) error {
	return s.UpdateSession(ctx, sess)
}

func (s sessionStore) ListByUser(_ context.Context, userID int64, limit int) ([]*model.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.GameSession
	for _, sess := range s.sessions {
		if sess.UserID == userID && len(out) < limit {
			cp := sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

// staticRound pins the engine to one round so tests control rotation.
type staticRound struct {
	round model.Round
}

func (s *staticRound) WithCurrentRound(fn func(round model.Round) error) error {
	return fn(s.round)
}

func (s *staticRound) CurrentRound() (model.Round, string, int64) {
	return s.round, "20260829130000", 45000
}

type adminList []string

func (a adminList) IsAdmin(username string) bool {
	for _, name := range a {
		if name == username {
			return true
		}
	}
	return false
}

type noopRotator struct{}

func (noopRotator) Rotate(context.Context) error { return nil }

func newTestRouter(t *testing.T) (*gin.Engine, *memStore) {
	t.Helper()

	store := newMemStore()
	tokens := token.NewService("test-secret", time.Hour)
	rounds := &staticRound{round: model.Round{
		ID:            "20260829120000",
		MinePositions: []int{2, 13, 21},
		StartTime:     time.Now(),
		Status:        model.RoundStatusActive,
	}}

	engine := service.NewEngine(
		mines.NewStore(),
		rounds,
		store,
		txStore{store},
		sessionStore{store},
		fraud.NewStreakPolicy(),
		lock.NewUserLock(),
		notify.Nop{},
	)
	accounts := service.NewAccountService(store, txStore{store}, 1000)

	auth := NewAuthHandler(accounts, tokens, adminList{"root"}, txStore{store})
	game := NewGameHandler(engine, sessionStore{store})
	admin := NewAdminHandler(accounts, noopRotator{})
	ws := NewWebSocketHandler(notify.NewHub(), engine)

	return NewRouter(auth, game, admin, ws, tokens, nil), store
}

func doJSON(t *testing.T, router *gin.Engine, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, router *gin.Engine, username string) string {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/auth/login", "", gin.H{"username": username})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestLoginCreatesUserWithStartingBalance(t *testing.T) {
	router, _ := newTestRouter(t)

	tok := login(t, router, "alice")

	w := doJSON(t, router, http.MethodGet, "/api/me", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		User struct {
			Username string  `json:"username"`
			Balance  float64 `json:"balance"`
			IsAdmin  bool    `json:"is_admin"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.User.Username)
	assert.Equal(t, 1000.0, resp.User.Balance)
	assert.False(t, resp.User.IsAdmin)
}

func TestAuthRequired(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminEndpointsRejectPlayers(t *testing.T) {
	router, _ := newTestRouter(t)
	tok := login(t, router, "alice")

	w := doJSON(t, router, http.MethodPost, "/api/admin/round/rotate", tok, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	rootTok := login(t, router, "root")
	w = doJSON(t, router, http.MethodPost, "/api/admin/round/rotate", rootTok, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGameFlowOverHTTP(t *testing.T) {
	router, store := newTestRouter(t)
	tok := login(t, router, "alice")

	// Place the bet.
	w := doJSON(t, router, http.MethodPost, "/api/game/start", tok, gin.H{"bet_amount": 100, "mine_count": 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var start struct {
		SessionID  string  `json:"session_id"`
		RoundID    string  `json:"round_id"`
		Multiplier float64 `json:"multiplier"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &start))
	assert.Equal(t, "20260829120000", start.RoundID)
	assert.Equal(t, 1.0, start.Multiplier)

	// Second bet in the same round conflicts.
	w = doJSON(t, router, http.MethodPost, "/api/game/start", tok, gin.H{"bet_amount": 100, "mine_count": 3})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Find a safe cell from the persisted layout.
	sess, ok := store.session(start.SessionID)
	require.True(t, ok)
	isMine := make(map[int]bool)
	for _, p := range sess.MinePositions {
		isMine[p] = true
	}
	safe := -1
	for pos := 0; pos < mines.BoardSize; pos++ {
		if !isMine[pos] {
			safe = pos
			break
		}
	}

	w = doJSON(t, router, http.MethodPost, "/api/game/reveal", tok, gin.H{"session_id": start.SessionID, "position": safe})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var reveal struct {
		IsMine     bool    `json:"is_mine"`
		Multiplier float64 `json:"multiplier"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reveal))
	assert.False(t, reveal.IsMine)
	assert.InDelta(t, 25.0/22.0, reveal.Multiplier, 1e-9)

	// Revealing the same cell again is a bad request.
	w = doJSON(t, router, http.MethodPost, "/api/game/reveal", tok, gin.H{"session_id": start.SessionID, "position": safe})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Cash out and verify the credit.
	w = doJSON(t, router, http.MethodPost, "/api/game/cashout", tok, gin.H{"session_id": start.SessionID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cashout struct {
		Winnings float64 `json:"winnings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cashout))
	assert.InDelta(t, 100*25.0/22.0, cashout.Winnings, 1e-9)

	w = doJSON(t, router, http.MethodGet, "/api/me", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me struct {
		User struct {
			Balance float64 `json:"balance"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.InDelta(t, 900+cashout.Winnings, me.User.Balance, 1e-9)

	// History and transactions reflect the play.
	w = doJSON(t, router, http.MethodGet, "/api/game/history", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), start.SessionID)

	w = doJSON(t, router, http.MethodGet, "/api/me/transactions", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), model.TxTypeWinnings)
}

func TestGameErrorsOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)
	tok := login(t, router, "alice")

	// Stake outside the allowed range.
	w := doJSON(t, router, http.MethodPost, "/api/game/start", tok, gin.H{"bet_amount": 5, "mine_count": 3})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Not enough money for an otherwise valid stake.
	w = doJSON(t, router, http.MethodPost, "/api/game/start", tok, gin.H{"bet_amount": mines.MaxBet, "mine_count": 3})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	// Unknown session.
	w = doJSON(t, router, http.MethodPost, "/api/game/cashout", tok, gin.H{"session_id": "550e8400-e29b-41d4-a716-446655440000"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoundEndpointHidesLayout(t *testing.T) {
	router, _ := newTestRouter(t)

	tok := login(t, router, "alice")
	w := doJSON(t, router, http.MethodGet, "/api/game/round", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "mine_positions")

	rootTok := login(t, router, "root")
	w = doJSON(t, router, http.MethodGet, "/api/game/round", rootTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mine_positions")
}

func TestAdminHackModeToggle(t *testing.T) {
	router, store := newTestRouter(t)
	_ = login(t, router, "alice")
	rootTok := login(t, router, "root")

	alice, err := store.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)

	path := fmt.Sprintf("/api/admin/users/%d/hack-mode", alice.ID)
	w := doJSON(t, router, http.MethodPost, path, rootTok, gin.H{"enabled": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	alice, err = store.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, alice.HackModeEnabled)

	w = doJSON(t, router, http.MethodPost, "/api/admin/users/99999/hack-mode", rootTok, gin.H{"enabled": true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminBalanceAdjust(t *testing.T) {
	router, store := newTestRouter(t)
	_ = login(t, router, "alice")
	rootTok := login(t, router, "root")

	alice, err := store.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)

	path := fmt.Sprintf("/api/admin/users/%d/balance", alice.ID)
	w := doJSON(t, router, http.MethodPost, path, rootTok, gin.H{"amount": 500.0, "reason": "promo credit"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Balance float64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1500.0, resp.Balance)
}

type staticHealth struct {
	err error
}

func (h staticHealth) HealthCheck(context.Context) error { return h.err }

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthEndpointReportsDegradedBackend(t *testing.T) {
	check := staticHealth{err: errors.New("connection refused")}
	r := NewRouter(&AuthHandler{}, &GameHandler{}, &AdminHandler{}, &WebSocketHandler{}, token.NewService("health-test-secret", time.Hour), check)

	w := doJSON(t, r, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}
