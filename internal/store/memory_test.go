package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/playludo/backend/internal/models"
)

func TestMemoryUserRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.GetUser(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing user err = %v, want ErrNotFound", err)
	}

	u := models.NewUser("alice", "Alice", 1000)
	if err := m.PutUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	if u.LastUpdate.IsZero() {
		t.Error("PutUser did not stamp LastUpdate")
	}

	got, err := m.GetUser(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.Coins != 1000 || got.UserName != "Alice" || got.Level != 1 {
		t.Errorf("round trip lost fields: %+v", got)
	}

	// Returned value is a copy; mutating it must not touch the store
	got.Coins = 0
	again, _ := m.GetUser(ctx, "alice")
	if again.Coins != 1000 {
		t.Error("GetUser returned an aliased value")
	}

	if err := m.DeleteUser(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetUser(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted user err = %v, want ErrNotFound", err)
	}
}

func TestMemoryUpdateUser(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.UpdateUser(ctx, "alice", func(u *models.User) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update of missing user err = %v, want ErrNotFound", err)
	}

	m.PutUser(ctx, models.NewUser("alice", "Alice", 1000))
	if err := m.UpdateUser(ctx, "alice", func(u *models.User) error {
		u.Coins -= 100
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	u, _ := m.GetUser(ctx, "alice")
	if u.Coins != 900 {
		t.Errorf("coins = %d, want 900", u.Coins)
	}

	// An error from the mutator aborts without writing
	boom := errors.New("boom")
	if err := m.UpdateUser(ctx, "alice", func(u *models.User) error {
		u.Coins = 0
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("mutator error not surfaced: %v", err)
	}
	u, _ = m.GetUser(ctx, "alice")
	if u.Coins != 900 {
		t.Errorf("aborted update still wrote: coins = %d", u.Coins)
	}
}

func TestMemoryUpdateUserSerializesConcurrentMutations(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.PutUser(ctx, models.NewUser("alice", "Alice", 0))

	const workers, iters = 8, 250
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iters; j++ {
				m.UpdateUser(ctx, "alice", func(u *models.User) error {
					u.Coins++
					return nil
				})
			}
		}()
	}
	wg.Wait()

	u, _ := m.GetUser(ctx, "alice")
	if u.Coins != workers*iters {
		t.Errorf("coins = %d, want %d; concurrent updates lost writes", u.Coins, workers*iters)
	}
}

func TestMemoryLeaderboardOrdering(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.LeaderboardUpsert(ctx, "carol", 3)
	m.LeaderboardUpsert(ctx, "alice", 7)
	m.LeaderboardUpsert(ctx, "bob", 3)

	top, err := m.LeaderboardTop(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"alice", "bob", "carol"} // ties break on user id
	if len(top) != 3 {
		t.Fatalf("got %d entries, want 3", len(top))
	}
	for i, id := range want {
		if top[i].UserID != id {
			t.Errorf("top[%d] = %s, want %s", i, top[i].UserID, id)
		}
	}

	if rank, _ := m.LeaderboardRank(ctx, "alice"); rank != 1 {
		t.Errorf("alice rank = %d, want 1", rank)
	}
	if rank, _ := m.LeaderboardRank(ctx, "carol"); rank != 3 {
		t.Errorf("carol rank = %d, want 3", rank)
	}
	if rank, _ := m.LeaderboardRank(ctx, "nobody"); rank != 0 {
		t.Errorf("unranked user rank = %d, want 0", rank)
	}

	// Upsert replaces the score and reorders
	m.LeaderboardUpsert(ctx, "carol", 9)
	if rank, _ := m.LeaderboardRank(ctx, "carol"); rank != 1 {
		t.Errorf("carol rank after upsert = %d, want 1", rank)
	}

	top, _ = m.LeaderboardTop(ctx, 2)
	if len(top) != 2 {
		t.Errorf("LeaderboardTop(2) returned %d entries", len(top))
	}
}

func TestMemorySessionTTL(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.SessionPut(ctx, "s1", []byte(`{"user_id":"alice"}`), 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	data, err := m.SessionGet(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"user_id":"alice"}` {
		t.Errorf("session data = %s", data)
	}

	time.Sleep(80 * time.Millisecond)
	if _, err := m.SessionGet(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired session err = %v, want ErrNotFound", err)
	}

	m.SessionPut(ctx, "s2", []byte("x"), time.Minute)
	m.SessionDelete(ctx, "s2")
	if _, err := m.SessionGet(ctx, "s2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted session err = %v, want ErrNotFound", err)
	}
}

func TestMemoryListUsers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.PutUser(ctx, models.NewUser("alice", "Alice", 1000))
	m.PutUser(ctx, models.NewUser("bob", "Bob", 1000))

	users, err := m.ListUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Errorf("ListUsers returned %d users, want 2", len(users))
	}
}
