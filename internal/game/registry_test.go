package game

import (
	"testing"
	"time"
)

func TestRoomCodeShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code := NewRoomCode()
		if len(code) != 6 {
			t.Fatalf("code %q length = %d, want 6", code, len(code))
		}
		for _, ch := range code {
			if !(ch >= 'A' && ch <= 'Z') && !(ch >= '0' && ch <= '9') {
				t.Fatalf("code %q contains %q", code, ch)
			}
		}
		seen[code] = true
	}
	if len(seen) < 90 {
		t.Errorf("only %d distinct codes out of 100", len(seen))
	}
}

func TestAddRefusesDuplicateID(t *testing.T) {
	reg := NewRegistry()
	first := NewRoom("ABC123", "alice", 100, 2, true)
	if !reg.Add(first) {
		t.Fatal("first Add refused")
	}

	// A racing create with the same code must not displace the paid room
	if reg.Add(NewRoom("ABC123", "bob", 100, 2, true)) {
		t.Error("duplicate Add accepted")
	}
	if got := reg.Get("ABC123"); got != first {
		t.Errorf("registry holds %v, want the original room", got)
	}
	if reg.Count() != 1 {
		t.Errorf("Count = %d, want 1", reg.Count())
	}
}

func TestFindAvailableMatchesBetAndSizeInOrder(t *testing.T) {
	reg := NewRegistry()
	a := NewRoom("a", "host-a", 100, 2, false)
	b := NewRoom("b", "host-b", 100, 2, false)
	c := NewRoom("c", "host-c", 200, 2, false)
	reg.Add(a)
	reg.Add(b)
	reg.Add(c)

	if got := reg.FindAvailable(100, 2); got != a {
		t.Errorf("FindAvailable picked %v, want the oldest open room a", got)
	}
	if got := reg.FindAvailable(200, 2); got != c {
		t.Errorf("FindAvailable(200) picked %v, want c", got)
	}
	if got := reg.FindAvailable(100, 4); got != nil {
		t.Errorf("FindAvailable(100, 4) = %v, want nil", got)
	}

	// Fill a; matchmaking moves on to b
	a.AddPlayer("p1", "p1")
	a.AddPlayer("p2", "p2")
	if got := reg.FindAvailable(100, 2); got != b {
		t.Errorf("FindAvailable after fill picked %v, want b", got)
	}
}

func TestFindAvailableSkipsFriendRooms(t *testing.T) {
	reg := NewRegistry()
	friend := NewRoom("ABC123", "host", 100, 2, true)
	reg.Add(friend)

	if got := reg.FindAvailable(100, 2); got != nil {
		t.Errorf("matchmaking entered a friend room: %v", got)
	}
	if reg.Get("ABC123") != friend {
		t.Error("friend room not reachable by code")
	}
}

func TestFindByUser(t *testing.T) {
	reg := NewRegistry()
	room := NewRoom("a", "alice", 100, 2, false)
	room.AddPlayer("alice", "alice")
	reg.Add(room)

	if got, ok := reg.FindByUser("alice"); !ok || got != room {
		t.Errorf("FindByUser(alice) = (%v, %v)", got, ok)
	}
	if _, ok := reg.FindByUser("nobody"); ok {
		t.Error("FindByUser matched an unseated user")
	}
}

func TestRemoveAfter(t *testing.T) {
	reg := NewRegistry()
	room := NewRoom("a", "alice", 100, 2, false)
	reg.Add(room)

	reg.RemoveAfter("a", 20*time.Millisecond)
	if reg.Count() != 1 {
		t.Fatal("room removed before the delay")
	}

	deadline := time.Now().Add(2 * time.Second)
	for reg.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("room never removed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
