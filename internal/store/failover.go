package store

import (
	"context"
	"log"
	"time"

	"github.com/playludo/backend/internal/models"
)

// Failover prefers the durable backend and transparently demotes individual
// failed calls to the in-memory map. Writes are mirrored into memory so a
// flapping backend never loses in-process state; a backend outage is never
// surfaced to the caller.
type Failover struct {
	durable   UserStore
	memory    *Memory
	userLocks keyedMutex
}

// NewFailover wraps durable with the in-memory fallback. durable may be nil,
// in which case every call runs against memory.
func NewFailover(durable UserStore, memory *Memory) *Failover {
	if memory == nil {
		memory = NewMemory()
	}
	return &Failover{durable: durable, memory: memory}
}

func (f *Failover) durableUp(ctx context.Context) bool {
	return f.durable != nil && f.durable.Connected(ctx)
}

func (f *Failover) Connected(ctx context.Context) bool {
	return f.durableUp(ctx)
}

func (f *Failover) GetUser(ctx context.Context, userID string) (*models.User, error) {
	if f.durableUp(ctx) {
		u, err := f.durable.GetUser(ctx, userID)
		if err == nil {
			return u, nil
		}
		if err == ErrNotFound {
			// A durable miss can still be a memory hit if the user was
			// created while the backend was down.
			if mu, merr := f.memory.GetUser(ctx, userID); merr == nil {
				return mu, nil
			}
			return nil, ErrNotFound
		}
		log.Printf("[STORE] durable GetUser failed, using memory: %v", err)
	}
	return f.memory.GetUser(ctx, userID)
}

func (f *Failover) PutUser(ctx context.Context, user *models.User) error {
	if err := f.memory.PutUser(ctx, user); err != nil {
		return err
	}
	if f.durableUp(ctx) {
		if err := f.durable.PutUser(ctx, user); err != nil {
			log.Printf("[STORE] durable PutUser failed for %s: %v", user.UserID, err)
		}
	}
	return nil
}

// UpdateUser holds the per-user lock across the read and both mirrored
// writes, so concurrent balance mutations for one user apply one at a time
// regardless of which backend serves the read.
func (f *Failover) UpdateUser(ctx context.Context, userID string, fn func(*models.User) error) error {
	unlock := f.userLocks.lock(userID)
	defer unlock()
	u, err := f.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := fn(u); err != nil {
		return err
	}
	return f.PutUser(ctx, u)
}

func (f *Failover) DeleteUser(ctx context.Context, userID string) error {
	f.memory.DeleteUser(ctx, userID)
	if f.durableUp(ctx) {
		if err := f.durable.DeleteUser(ctx, userID); err != nil {
			log.Printf("[STORE] durable DeleteUser failed for %s: %v", userID, err)
		}
	}
	return nil
}

func (f *Failover) ListUsers(ctx context.Context) ([]*models.User, error) {
	if f.durableUp(ctx) {
		if users, err := f.durable.ListUsers(ctx); err == nil {
			return users, nil
		} else {
			log.Printf("[STORE] durable ListUsers failed, using memory: %v", err)
		}
	}
	return f.memory.ListUsers(ctx)
}

func (f *Failover) LeaderboardUpsert(ctx context.Context, userID string, winCount int) error {
	f.memory.LeaderboardUpsert(ctx, userID, winCount)
	if f.durableUp(ctx) {
		if err := f.durable.LeaderboardUpsert(ctx, userID, winCount); err != nil {
			log.Printf("[STORE] durable LeaderboardUpsert failed for %s: %v", userID, err)
		}
	}
	return nil
}

func (f *Failover) LeaderboardTop(ctx context.Context, n int) ([]models.LeaderboardEntry, error) {
	if f.durableUp(ctx) {
		if entries, err := f.durable.LeaderboardTop(ctx, n); err == nil {
			return entries, nil
		} else {
			log.Printf("[STORE] durable LeaderboardTop failed, using memory: %v", err)
		}
	}
	return f.memory.LeaderboardTop(ctx, n)
}

func (f *Failover) LeaderboardRank(ctx context.Context, userID string) (int, error) {
	if f.durableUp(ctx) {
		if rank, err := f.durable.LeaderboardRank(ctx, userID); err == nil {
			return rank, nil
		} else {
			log.Printf("[STORE] durable LeaderboardRank failed, using memory: %v", err)
		}
	}
	return f.memory.LeaderboardRank(ctx, userID)
}

func (f *Failover) SessionPut(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error {
	f.memory.SessionPut(ctx, sessionID, data, ttl)
	if f.durableUp(ctx) {
		if err := f.durable.SessionPut(ctx, sessionID, data, ttl); err != nil {
			log.Printf("[STORE] durable SessionPut failed for %s: %v", sessionID, err)
		}
	}
	return nil
}

func (f *Failover) SessionGet(ctx context.Context, sessionID string) ([]byte, error) {
	if f.durableUp(ctx) {
		data, err := f.durable.SessionGet(ctx, sessionID)
		if err == nil {
			return data, nil
		}
		if err != ErrNotFound {
			log.Printf("[STORE] durable SessionGet failed, using memory: %v", err)
		}
	}
	return f.memory.SessionGet(ctx, sessionID)
}

func (f *Failover) SessionDelete(ctx context.Context, sessionID string) error {
	f.memory.SessionDelete(ctx, sessionID)
	if f.durableUp(ctx) {
		if err := f.durable.SessionDelete(ctx, sessionID); err != nil {
			log.Printf("[STORE] durable SessionDelete failed for %s: %v", sessionID, err)
		}
	}
	return nil
}
