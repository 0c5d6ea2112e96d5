package room

import (
	"log/slog"
	"sync"
)

const defaultLanguage = "python"

// Registry maps room identifiers to their authoritative state for the life
// of the process. It is created once at startup and handed to everything
// that needs room access; rooms are created lazily and never evicted.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	log   *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		log:   log,
	}
}

// GetOrCreate returns the room for roomID, creating it seeded with seedCode
// if it is not resident yet. Creation is atomic: concurrent calls for the
// same unseen id observe a single Room instance.
func (g *Registry) GetOrCreate(roomID, seedCode string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rooms[roomID]; ok {
		return r
	}
	r := newRoom(roomID, seedCode, defaultLanguage, g.log)
	g.rooms[roomID] = r
	g.log.Debug("room.create", "room", roomID, "seeded", seedCode != "")
	return r
}

// Get returns the room for roomID, or nil when it is not resident.
func (g *Registry) Get(roomID string) *Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rooms[roomID]
}

// RemoveConnection drops a connection from a room. Absent room or
// unregistered connection is a no-op.
func (g *Registry) RemoveConnection(roomID string, s Sender) {
	if r := g.Get(roomID); r != nil {
		r.Leave(s)
	}
}

// ConnectionCount reports the live connections in a room, zero if absent.
func (g *Registry) ConnectionCount(roomID string) int {
	r := g.Get(roomID)
	if r == nil {
		return 0
	}
	return r.ConnectionCount()
}

// GetCode returns the room's current text, empty if the room is not resident.
func (g *Registry) GetCode(roomID string) string {
	r := g.Get(roomID)
	if r == nil {
		return ""
	}
	return r.Code()
}

// UpdateCode replaces a room's text, creating the room with code as its seed
// when it is not resident. An update to an unknown room never fails.
func (g *Registry) UpdateCode(roomID, code string) {
	r := g.GetOrCreate(roomID, code)
	r.SetCode(code)
}

// ActiveRoomCount counts rooms with at least one live connection.
func (g *Registry) ActiveRoomCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, r := range g.rooms {
		if r.ConnectionCount() > 0 {
			n++
		}
	}
	return n
}

// ConnectionTotal counts live connections across all rooms.
func (g *Registry) ConnectionTotal() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, r := range g.rooms {
		n += r.ConnectionCount()
	}
	return n
}
