package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/playludo/backend/internal/models"
)

// flakyStore is a scriptable durable backend for failover tests
type flakyStore struct {
	*Memory
	up      bool
	failAll bool
}

var errBackendDown = errors.New("backend down")

func (f *flakyStore) Connected(ctx context.Context) bool { return f.up }

func (f *flakyStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	if f.failAll {
		return nil, errBackendDown
	}
	return f.Memory.GetUser(ctx, userID)
}

func (f *flakyStore) PutUser(ctx context.Context, user *models.User) error {
	if f.failAll {
		return errBackendDown
	}
	return f.Memory.PutUser(ctx, user)
}

func (f *flakyStore) LeaderboardTop(ctx context.Context, n int) ([]models.LeaderboardEntry, error) {
	if f.failAll {
		return nil, errBackendDown
	}
	return f.Memory.LeaderboardTop(ctx, n)
}

func TestFailoverPrefersDurable(t *testing.T) {
	durable := &flakyStore{Memory: NewMemory(), up: true}
	f := NewFailover(durable, NewMemory())
	ctx := context.Background()

	if !f.Connected(ctx) {
		t.Fatal("failover not connected with durable up")
	}

	if err := f.PutUser(ctx, models.NewUser("alice", "Alice", 1000)); err != nil {
		t.Fatal(err)
	}
	// The write must land in the durable backend, not only in memory
	if _, err := durable.Memory.GetUser(ctx, "alice"); err != nil {
		t.Errorf("durable backend missing the user: %v", err)
	}
	if _, err := f.GetUser(ctx, "alice"); err != nil {
		t.Errorf("read-through failed: %v", err)
	}
}

func TestFailoverServesThroughOutage(t *testing.T) {
	durable := &flakyStore{Memory: NewMemory(), up: true}
	f := NewFailover(durable, NewMemory())
	ctx := context.Background()

	if err := f.PutUser(ctx, models.NewUser("alice", "Alice", 1000)); err != nil {
		t.Fatal(err)
	}

	// Backend goes away; reads keep working from the memory mirror
	durable.up = false
	if f.Connected(ctx) {
		t.Error("Connected true with durable down")
	}
	u, err := f.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("read during outage failed: %v", err)
	}
	if u.Coins != 1000 {
		t.Errorf("coins = %d, want 1000", u.Coins)
	}

	// Writes during the outage land in memory and never error
	u.Coins = 800
	if err := f.PutUser(ctx, u); err != nil {
		t.Fatalf("write during outage failed: %v", err)
	}
	again, _ := f.GetUser(ctx, "alice")
	if again.Coins != 800 {
		t.Errorf("coins after outage write = %d, want 800", again.Coins)
	}
}

func TestFailoverDemotesFailedCalls(t *testing.T) {
	// Backend claims to be up but every call errors; reads fall to memory
	durable := &flakyStore{Memory: NewMemory(), up: true, failAll: true}
	f := NewFailover(durable, NewMemory())
	ctx := context.Background()

	if err := f.PutUser(ctx, models.NewUser("alice", "Alice", 1000)); err != nil {
		t.Fatalf("PutUser surfaced a durable error: %v", err)
	}
	u, err := f.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUser with failing durable: %v", err)
	}
	if u.Coins != 1000 {
		t.Errorf("coins = %d, want 1000", u.Coins)
	}

	f.LeaderboardUpsert(ctx, "alice", 5)
	top, err := f.LeaderboardTop(ctx, 10)
	if err != nil || len(top) != 1 {
		t.Errorf("LeaderboardTop = (%v, %v), want one memory entry", top, err)
	}
}

func TestFailoverDurableMissFallsToMemory(t *testing.T) {
	durable := &flakyStore{Memory: NewMemory(), up: false}
	f := NewFailover(durable, NewMemory())
	ctx := context.Background()

	// Created while the backend was down
	if err := f.PutUser(ctx, models.NewUser("alice", "Alice", 1000)); err != nil {
		t.Fatal(err)
	}

	// Backend comes back without the user; the memory copy still serves
	durable.up = true
	u, err := f.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUser after backend recovery: %v", err)
	}
	if u.UserID != "alice" {
		t.Errorf("got %+v", u)
	}

	if _, err := f.GetUser(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing-everywhere err = %v, want ErrNotFound", err)
	}
}

func TestFailoverUpdateUserSerializesAcrossBackends(t *testing.T) {
	durable := &flakyStore{Memory: NewMemory(), up: true}
	f := NewFailover(durable, NewMemory())
	ctx := context.Background()
	f.PutUser(ctx, models.NewUser("alice", "Alice", 0))

	const workers, iters = 4, 100
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iters; j++ {
				f.UpdateUser(ctx, "alice", func(u *models.User) error {
					u.Coins++
					return nil
				})
			}
		}()
	}
	wg.Wait()

	u, _ := f.GetUser(ctx, "alice")
	if u.Coins != workers*iters {
		t.Errorf("coins = %d, want %d", u.Coins, workers*iters)
	}
	// The mirrored writes land in both backends
	du, _ := durable.Memory.GetUser(ctx, "alice")
	if du.Coins != workers*iters {
		t.Errorf("durable coins = %d, want %d", du.Coins, workers*iters)
	}
}

func TestFailoverNilDurable(t *testing.T) {
	f := NewFailover(nil, nil)
	ctx := context.Background()

	if f.Connected(ctx) {
		t.Error("Connected true with no durable backend")
	}
	if err := f.PutUser(ctx, models.NewUser("alice", "Alice", 1000)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.GetUser(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := f.SessionPut(ctx, "s1", []byte("x"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := f.SessionGet(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
}
