// Package notify defines the push events the game engine emits and the
// websocket hub that fans them out to connected clients.
package notify

// Event is a broadcastable game event. Each implementation is a fixed
// schema identified by its type tag; payloads never carry free-form
// maps.
type Event interface {
	EventType() string
}

// Envelope is the wire framing for every pushed event.
type Envelope struct {
	Type string `json:"type"`
	Data Event  `json:"data"`
}

// Notifier fans events out to connected clients. BroadcastAdmin
// delivers only to admin-privileged connections.
type Notifier interface {
	Broadcast(e Event)
	BroadcastAdmin(e Event)
}

// RoundUpdate announces the current round to all clients; sent on every
// rotation and to each client on connect.
type RoundUpdate struct {
	CurrentRoundID string `json:"currentRoundId"`
	NextRoundID    string `json:"nextRoundId"`
	RemainingMs    int64  `json:"remainingMs"`
	StartedAt      int64  `json:"startedAt"`
}

func (RoundUpdate) EventType() string { return "roundUpdate" }

// RoundMineLayout discloses the round's shared layout. Admin-only.
type RoundMineLayout struct {
	RoundID   string `json:"roundId"`
	Positions []int  `json:"positions"`
}

func (RoundMineLayout) EventType() string { return "roundMineLayout" }

// SessionStarted announces a newly placed bet.
type SessionStarted struct {
	SessionID         string  `json:"sessionId"`
	RoundID           string  `json:"roundId"`
	BaseMultiplier    float64 `json:"baseMultiplier"`
	CurrentMultiplier float64 `json:"currentMultiplier"`
}

func (SessionStarted) EventType() string { return "sessionStarted" }

// MultiplierUpdate follows each safe reveal.
type MultiplierUpdate struct {
	SessionID         string  `json:"sessionId"`
	CurrentMultiplier float64 `json:"currentMultiplier"`
	PotentialWinnings float64 `json:"potentialWinnings"`
	RevealedCells     []int   `json:"revealedCells"`
	NextMultiplier    float64 `json:"nextMultiplier"`
}

func (MultiplierUpdate) EventType() string { return "multiplierUpdate" }

// SessionLost discloses the full layout after a mine hit.
type SessionLost struct {
	SessionID     string `json:"sessionId"`
	RevealedCells []int  `json:"revealedCells"`
	MinePositions []int  `json:"minePositions"`
}

func (SessionLost) EventType() string { return "sessionLost" }

// CashoutSuccess follows an explicit cashout.
type CashoutSuccess struct {
	SessionID string  `json:"sessionId"`
	Winnings  float64 `json:"winnings"`
}

func (CashoutSuccess) EventType() string { return "cashoutSuccess" }

// AutoCashout follows a force-resolved session at round rotation.
type AutoCashout struct {
	SessionID string  `json:"sessionId"`
	Winnings  float64 `json:"winnings"`
	Reason    string  `json:"reason"`
}

func (AutoCashout) EventType() string { return "autoCashout" }

// Nop discards all events. Used in tests and as a placeholder until the
// hub is wired.
type Nop struct{}

// Broadcast implements Notifier.
func (Nop) Broadcast(Event) {}

// BroadcastAdmin implements Notifier.
func (Nop) BroadcastAdmin(Event) {}
