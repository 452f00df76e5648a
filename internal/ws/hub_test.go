package ws

import (
	"encoding/json"
	"testing"
)

func recvFrame(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case raw := <-c.send:
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		return f
	default:
		t.Fatal("no frame queued")
		return Frame{}
	}
}

func TestHubBindDisplacesOldConnection(t *testing.T) {
	h := NewHub()
	old := &Client{send: make(chan []byte, 4)}
	h.Bind("alice", old)
	h.JoinRoom("room-1", "alice", old)

	// A reconnect takes over the binding and the room membership
	fresh := &Client{send: make(chan []byte, 4)}
	h.Bind("alice", fresh)

	if h.Client("alice") != fresh {
		t.Fatal("new connection is not the live one")
	}
	h.ToRoom("room-1", "ping", 1)
	if f := recvFrame(t, fresh); f.Event != "ping" {
		t.Errorf("room traffic went to %q", f.Event)
	}
	select {
	case <-old.send:
		t.Error("displaced connection still receives room traffic")
	default:
	}

	// The displaced connection cannot evict its replacement
	if h.Unbind("alice", old) {
		t.Error("stale unbind succeeded")
	}
	if h.Client("alice") != fresh {
		t.Error("stale unbind evicted the live connection")
	}
	if !h.Unbind("alice", fresh) {
		t.Error("live unbind refused")
	}
}

func TestHubRoomBroadcastExcept(t *testing.T) {
	h := NewHub()
	a := &Client{send: make(chan []byte, 4)}
	b := &Client{send: make(chan []byte, 4)}
	h.Bind("alice", a)
	h.Bind("bob", b)
	h.JoinRoom("room-1", "alice", a)
	h.JoinRoom("room-1", "bob", b)

	h.ToRoomExcept("room-1", "alice", "evt", map[string]int{"x": 1})
	if f := recvFrame(t, b); f.Event != "evt" {
		t.Errorf("bob got %q", f.Event)
	}
	select {
	case <-a.send:
		t.Error("except-user still received the broadcast")
	default:
	}

	h.LeaveRoom("room-1", "bob")
	h.ToRoom("room-1", "evt", 2)
	select {
	case <-b.send:
		t.Error("departed member still received room traffic")
	default:
	}
	if f := recvFrame(t, a); f.Event != "evt" || f.Data != "2" {
		t.Errorf("remaining member got %q %q", f.Event, f.Data)
	}
}

func TestHubToUserEncodesBarePayloads(t *testing.T) {
	h := NewHub()
	a := &Client{send: make(chan []byte, 4)}
	h.Bind("alice", a)

	h.ToUser("alice", "auth_token", "token_alice_1")
	f := recvFrame(t, a)
	if f.Data != `"token_alice_1"` {
		t.Errorf("string payload encoded as %q", f.Data)
	}

	h.ToUser("alice", "turn_changed", 2)
	f = recvFrame(t, a)
	if f.Data != "2" {
		t.Errorf("int payload encoded as %q", f.Data)
	}

	// No live connection: silently dropped
	h.ToUser("nobody", "evt", 1)
}
