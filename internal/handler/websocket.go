package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"minex-server/internal/notify"
	"minex-server/internal/service"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler upgrades authenticated connections and registers
// them with the broadcast hub. Game state flows out through the
// client's send queue (the connection's single writer); the read side
// only services pings and detects disconnects.
type WebSocketHandler struct {
	hub    *notify.Hub
	engine *service.Engine
}

func NewWebSocketHandler(hub *notify.Hub, engine *service.Engine) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, engine: engine}
}

func (h *WebSocketHandler) Handle(c *gin.Context) {
	userID := c.GetInt64("user_id")
	isAdmin := c.GetBool("is_admin")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Websocket upgrade failed")
		return
	}

	client := notify.NewClient(userID, isAdmin, conn)
	h.hub.Register(client)
	defer func() {
		h.hub.Unregister(client)
		_ = conn.Close()
	}()

	h.sendRoundState(client, isAdmin)

	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Int64("user_id", userID).Msg("Websocket read error")
			}
			return
		}
		if msg.Type == "ping" {
			client.Enqueue(notify.Envelope{Type: "pong"})
		}
	}
}

// sendRoundState queues the current round for a new connection so the
// client does not wait out the rest of the rotation period.
func (h *WebSocketHandler) sendRoundState(client *notify.Client, isAdmin bool) {
	info := h.engine.CurrentRound(isAdmin)

	update := notify.RoundUpdate{
		CurrentRoundID: info.RoundID,
		NextRoundID:    info.NextRoundID,
		RemainingMs:    info.RemainingMs,
		StartedAt:      info.StartedAt,
	}
	client.Enqueue(notify.Envelope{Type: update.EventType(), Data: update})

	if isAdmin && info.MinePositions != nil {
		layout := notify.RoundMineLayout{RoundID: info.RoundID, Positions: info.MinePositions}
		client.Enqueue(notify.Envelope{Type: layout.EventType(), Data: layout})
	}
}
