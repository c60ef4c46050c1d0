package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"minex-server/internal/middleware"
	"minex-server/internal/pkg/token"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewRouter assembles the API surface. Everything under /api except
// login requires a valid token; /api/admin additionally requires the
// admin flag. A nil health checker makes /health unconditionally ok.
func NewRouter(
	auth *AuthHandler,
	game *GameHandler,
	admin *AdminHandler,
	ws *WebSocketHandler,
	tokens *token.Service,
	health HealthChecker,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		if health != nil {
			if err := health.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.POST("/auth/login", auth.Login)

	authed := api.Group("")
	authed.Use(middleware.AuthRequired(tokens))
	{
		authed.GET("/me", auth.Me)
		authed.GET("/me/transactions", auth.Transactions)

		authed.POST("/game/start", game.Start)
		authed.POST("/game/reveal", game.Reveal)
		authed.POST("/game/cashout", game.CashOut)
		authed.GET("/game/round", game.Round)
		authed.GET("/game/history", game.History)

		authed.GET("/ws", ws.Handle)
	}

	adminGroup := authed.Group("/admin")
	adminGroup.Use(middleware.AdminRequired())
	{
		adminGroup.POST("/users/:id/hack-mode", admin.SetHackMode)
		adminGroup.POST("/users/:id/balance", admin.AdjustBalance)
		adminGroup.POST("/round/rotate", admin.RotateRound)
	}

	return r
}
