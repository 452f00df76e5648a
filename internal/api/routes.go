package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/playludo/backend/internal/api/handlers"
	"github.com/playludo/backend/internal/config"
	"github.com/playludo/backend/internal/game"
	"github.com/playludo/backend/internal/history"
	"github.com/playludo/backend/internal/middleware"
	"github.com/playludo/backend/internal/store"
	"github.com/playludo/backend/internal/ws"
)

// SetupRoutes configures all HTTP routes. Gameplay rides the websocket at
// /ws; everything else is observability.
func SetupRoutes(router *gin.Engine, cfg *config.Config, st store.UserStore, rooms *game.Registry, hub *ws.Hub, dispatcher *ws.Dispatcher, hist *history.Store) {
	router.Use(middleware.CORSMiddleware(cfg))

	router.GET("/", handlers.HealthCheck)
	router.GET("/status", handlers.Status(rooms, hub, st))
	router.GET("/leaderboard", handlers.Leaderboard(st))
	router.GET("/history/:user_id", handlers.UserHistory(hist))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/ws", func(c *gin.Context) {
		ws.HandleWebSocket(dispatcher, c.Writer, c.Request)
	})
}
