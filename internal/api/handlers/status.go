package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/playludo/backend/internal/game"
	"github.com/playludo/backend/internal/history"
	"github.com/playludo/backend/internal/store"
	"github.com/playludo/backend/internal/ws"
)

// HealthCheck is the liveness probe
func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "Ludo server is running")
}

// Status reports the coordinator's live counters
func Status(rooms *game.Registry, hub *ws.Hub, st store.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		userCount := 0
		if users, err := st.ListUsers(ctx); err == nil {
			userCount = len(users)
		} else {
			log.Printf("[STATUS] list users failed: %v", err)
		}

		c.JSON(http.StatusOK, gin.H{
			"status":          "ok",
			"rooms":           rooms.Count(),
			"users":           userCount,
			"connections":     hub.ConnectionCount(),
			"store_connected": st.Connected(ctx),
		})
	}
}

// Leaderboard returns the top players by win count
func Leaderboard(st store.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		limit := 10
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		entries, err := st.LeaderboardTop(ctx, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "leaderboard unavailable"})
			return
		}

		type row struct {
			Rank     int    `json:"rank"`
			UserID   string `json:"user_id"`
			UserName string `json:"user_name"`
			WinCount int    `json:"win_count"`
			Level    int    `json:"level"`
		}
		rows := make([]row, 0, len(entries))
		for i, e := range entries {
			r := row{Rank: i + 1, UserID: e.UserID, WinCount: e.WinCount}
			if user, err := st.GetUser(ctx, e.UserID); err == nil {
				r.UserName = user.UserName
				r.Level = user.Level
			}
			rows = append(rows, r)
		}
		c.JSON(http.StatusOK, gin.H{"leaderboard": rows})
	}
}

// UserHistory returns a player's recent archived games. Empty when the
// archive database is not configured.
func UserHistory(hist *history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("user_id")

		limit := 20
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		rows, err := hist.RecentForUser(c.Request.Context(), userID, limit)
		if err != nil {
			log.Printf("[STATUS] history lookup for %s failed: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
			return
		}
		if rows == nil {
			rows = []history.HistoryRow{}
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "games": rows})
	}
}
