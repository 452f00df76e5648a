package store

import (
	"context"
	"errors"
	"time"

	"github.com/playludo/backend/internal/models"
)

// ErrNotFound is returned when a user or session does not exist in the backend
var ErrNotFound = errors.New("store: not found")

// UserStore persists user profiles, the win-count leaderboard and TTL sessions.
// Two backends satisfy it: Redis (durable) and Memory (in-process fallback).
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	PutUser(ctx context.Context, user *models.User) error
	// UpdateUser applies fn to the stored user as one atomic read-modify-write.
	// Concurrent updates for the same user are serialized; an error from fn
	// aborts without writing. All balance mutations go through here so a
	// settlement credit can never race a seat charge.
	UpdateUser(ctx context.Context, userID string, fn func(*models.User) error) error
	DeleteUser(ctx context.Context, userID string) error
	ListUsers(ctx context.Context) ([]*models.User, error)

	LeaderboardUpsert(ctx context.Context, userID string, winCount int) error
	LeaderboardTop(ctx context.Context, n int) ([]models.LeaderboardEntry, error)
	// LeaderboardRank returns a 1-based rank, or 0 when the user is not ranked
	LeaderboardRank(ctx context.Context, userID string) (int, error)

	SessionPut(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error
	SessionGet(ctx context.Context, sessionID string) ([]byte, error)
	SessionDelete(ctx context.Context, sessionID string) error

	// Connected reports whether the backend is reachable
	Connected(ctx context.Context) bool
}
