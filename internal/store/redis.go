package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/playludo/backend/internal/models"
)

const (
	userKeyPrefix    = "user:"
	sessionKeyPrefix = "session:"
	leaderboardKey   = "leaderboard:wins"
)

// Redis is the durable UserStore backend
type Redis struct {
	client    *redis.Client
	userLocks keyedMutex
}

// NewRedis builds the durable backend. It does not fail when Redis is down;
// Connected() reports reachability per call so the server can demote to the
// in-memory store transparently.
func NewRedis(host, port, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       db,
	})
	return &Redis{client: client}
}

// Close releases the underlying connection pool
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Connected(ctx context.Context) bool {
	return r.client.Ping(ctx).Err() == nil
}

func (r *Redis) GetUser(ctx context.Context, userID string) (*models.User, error) {
	data, err := r.client.Get(ctx, userKeyPrefix+userID).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", userID, err)
	}
	return &u, nil
}

func (r *Redis) PutUser(ctx context.Context, user *models.User) error {
	user.LastUpdate = time.Now()
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, userKeyPrefix+user.UserID, data, 0).Err()
}

// UpdateUser serializes same-user read-modify-writes behind a per-user lock.
// The lock is process-local; the coordinator is the single writer for user
// blobs.
func (r *Redis) UpdateUser(ctx context.Context, userID string, fn func(*models.User) error) error {
	unlock := r.userLocks.lock(userID)
	defer unlock()
	u, err := r.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := fn(u); err != nil {
		return err
	}
	return r.PutUser(ctx, u)
}

func (r *Redis) DeleteUser(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, userKeyPrefix+userID).Err(); err != nil {
		return err
	}
	return r.client.ZRem(ctx, leaderboardKey, userID).Err()
}

func (r *Redis) ListUsers(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	iter := r.client.Scan(ctx, 0, userKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var u models.User
		if err := json.Unmarshal(data, &u); err != nil {
			continue
		}
		users = append(users, &u)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *Redis) LeaderboardUpsert(ctx context.Context, userID string, winCount int) error {
	return r.client.ZAdd(ctx, leaderboardKey, redis.Z{
		Score:  float64(winCount),
		Member: userID,
	}).Err()
}

func (r *Redis) LeaderboardTop(ctx context.Context, n int) ([]models.LeaderboardEntry, error) {
	zs, err := r.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]models.LeaderboardEntry, 0, len(zs))
	for _, z := range zs {
		userID, _ := z.Member.(string)
		entries = append(entries, models.LeaderboardEntry{
			UserID:   userID,
			WinCount: int(z.Score),
		})
	}
	return entries, nil
}

func (r *Redis) LeaderboardRank(ctx context.Context, userID string) (int, error) {
	rank, err := r.client.ZRevRank(ctx, leaderboardKey, userID).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int(rank) + 1, nil
}

func (r *Redis) SessionPut(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error {
	return r.client.Set(ctx, sessionKeyPrefix+sessionID, data, ttl).Err()
}

func (r *Redis) SessionGet(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := r.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return data, err
}

func (r *Redis) SessionDelete(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, sessionKeyPrefix+sessionID).Err()
}
