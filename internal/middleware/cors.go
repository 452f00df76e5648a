package middleware

import (
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/playludo/backend/internal/config"
)

// CORSMiddleware returns a CORS middleware configured for the environment.
// Game traffic rides the websocket, so this mostly covers the status and
// metrics endpoints plus any browser-hosted test client.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Length", "Content-Type", "Authorization",
			"Accept", "Cache-Control", "X-Requested-With",
		},
		MaxAge: 12 * time.Hour,
	}

	if cfg.Environment == "development" {
		corsConfig.AllowAllOrigins = true
		return cors.New(corsConfig)
	}

	allowedOrigins := []string{
		"https://playludo.app",
	}
	if cfg.FrontendURL != "" {
		allowedOrigins = append(allowedOrigins, cfg.FrontendURL)
	}
	corsConfig.AllowOrigins = allowedOrigins
	log.Printf("[CORS] Production allowed origins: %v", allowedOrigins)
	return cors.New(corsConfig)
}
