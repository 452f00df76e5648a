package game

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewRoomID mints an opaque id for a matchmade room
func NewRoomID() string {
	return uuid.NewString()
}

// NewRoomCode mints a 6-character uppercase friend-room code. Codes share the
// registry keyspace with matchmade room ids.
func NewRoomCode() string {
	b := make([]byte, 6)
	rand.Read(b)
	for i := range b {
		b[i] = roomCodeAlphabet[int(b[i])%len(roomCodeAlphabet)]
	}
	return string(b)
}

// Registry owns all active rooms. Iteration for matchmaking follows insertion
// order so the earliest-open room fills first.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	order []string
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Add registers a room under its id. Returns false without touching the
// registry when the id is already taken, so two racing creates with the same
// code cannot clobber each other's room.
func (reg *Registry) Add(room *Room) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.rooms[room.ID]; exists {
		return false
	}
	reg.order = append(reg.order, room.ID)
	reg.rooms[room.ID] = room
	return true
}

// Get returns the room for id, or nil
func (reg *Registry) Get(id string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.rooms[id]
}

// Remove drops a room from the registry
func (reg *Registry) Remove(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.rooms[id]; !exists {
		return
	}
	delete(reg.rooms, id)
	for i, rid := range reg.order {
		if rid == id {
			reg.order = append(reg.order[:i], reg.order[i+1:]...)
			break
		}
	}
}

// RemoveAfter schedules removal, tolerating a room that is already gone
func (reg *Registry) RemoveAfter(id string, d time.Duration) {
	time.AfterFunc(d, func() { reg.Remove(id) })
}

// Count returns the number of active rooms
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// FindAvailable returns the first WAITING room matching bet and size exactly
// with a free seat, in insertion order. nil when no room fits.
func (reg *Registry) FindAvailable(betAmount, maxPlayers int) *Room {
	reg.mu.RLock()
	order := make([]string, len(reg.order))
	copy(order, reg.order)
	reg.mu.RUnlock()

	for _, id := range order {
		reg.mu.RLock()
		room := reg.rooms[id]
		reg.mu.RUnlock()
		if room != nil && !room.Friend && room.Joinable(betAmount, maxPlayers) {
			return room
		}
	}
	return nil
}

// FindByUser returns the first room in which userID holds a seat
func (reg *Registry) FindByUser(userID string) (*Room, bool) {
	reg.mu.RLock()
	order := make([]string, len(reg.order))
	copy(order, reg.order)
	reg.mu.RUnlock()

	for _, id := range order {
		reg.mu.RLock()
		room := reg.rooms[id]
		reg.mu.RUnlock()
		if room == nil {
			continue
		}
		if _, ok := room.FindPlayer(userID); ok {
			return room, true
		}
	}
	return nil, false
}
