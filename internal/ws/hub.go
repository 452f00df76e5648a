package ws

import (
	"log"
	"sync"

	"github.com/playludo/backend/internal/metrics"
)

// Hub tracks which connection currently speaks for each user, plus the
// per-room broadcast groups. A user has at most one live connection; binding a
// new one displaces and closes the old (reconnect wins).
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client            // user id -> live connection
	rooms   map[string]map[string]*Client // room id -> user id -> connection
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

// Bind makes c the live connection for userID. Any previous connection for
// the same user is closed; its pending room memberships are transferred to c.
func (h *Hub) Bind(userID string, c *Client) {
	h.mu.Lock()
	old := h.clients[userID]
	h.clients[userID] = c
	if old != nil && old != c {
		for _, members := range h.rooms {
			if members[userID] == old {
				members[userID] = c
			}
		}
	}
	n := len(h.clients)
	h.mu.Unlock()

	if old != nil && old != c {
		log.Printf("[HUB] user %s reconnected, closing stale connection", userID)
		old.close()
	}
	metrics.ConnectedClients.Set(float64(n))
}

// Unbind clears the mapping for userID, but only if c is still the live
// connection. A stale connection that was already displaced must not evict
// its replacement.
func (h *Hub) Unbind(userID string, c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] != c {
		return false
	}
	delete(h.clients, userID)
	metrics.ConnectedClients.Set(float64(len(h.clients)))
	return true
}

// Client returns the live connection for userID, or nil
func (h *Hub) Client(userID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[userID]
}

// ConnectionCount returns the number of bound connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// JoinRoom adds c to the broadcast group for roomID
func (h *Hub) JoinRoom(roomID, userID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[roomID]
	if members == nil {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
	}
	members[userID] = c
}

// LeaveRoom removes userID from the broadcast group for roomID
func (h *Hub) LeaveRoom(roomID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[roomID]
	if members == nil {
		return
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

// DropRoom tears down the whole broadcast group
func (h *Hub) DropRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, roomID)
}

// ToUser sends one event to a single user. Dropped silently if the user has
// no live connection or their send buffer is full.
func (h *Hub) ToUser(userID, event string, payload interface{}) {
	h.mu.RLock()
	c := h.clients[userID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	frame, err := encodeFrame(event, payload)
	if err != nil {
		log.Printf("[HUB] encode %s failed: %v", event, err)
		return
	}
	c.enqueue(frame)
}

// ToRoom broadcasts one event to every member of a room group
func (h *Hub) ToRoom(roomID, event string, payload interface{}) {
	h.broadcast(roomID, "", event, payload)
}

// ToRoomExcept broadcasts to the room group minus one user (typically the
// sender of the event being relayed)
func (h *Hub) ToRoomExcept(roomID, exceptUserID, event string, payload interface{}) {
	h.broadcast(roomID, exceptUserID, event, payload)
}

func (h *Hub) broadcast(roomID, exceptUserID, event string, payload interface{}) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		log.Printf("[HUB] encode %s failed: %v", event, err)
		return
	}

	h.mu.RLock()
	members := h.rooms[roomID]
	targets := make([]*Client, 0, len(members))
	for uid, c := range members {
		if uid == exceptUserID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(frame)
	}
}
