package room

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Sender is a live connection as the room sees it. Enqueue must not block;
// it reports false when the message could not be buffered.
type Sender interface {
	UserID() string
	Enqueue(data []byte) bool
}

// Room is the authoritative state of one collaborative session: the current
// document text, its language tag, and the set of live connections. The text
// has its own lock so broadcasts and persistence never happen under it.
type Room struct {
	ID string

	mu   sync.RWMutex
	code string

	language string

	connMu sync.RWMutex
	conns  map[Sender]struct{}

	log *slog.Logger
}

func newRoom(id, code, language string, log *slog.Logger) *Room {
	return &Room{
		ID:       id,
		code:     code,
		language: language,
		conns:    make(map[Sender]struct{}),
		log:      log,
	}
}

// Code returns a snapshot of the current document text.
func (r *Room) Code() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.code
}

// SetCode replaces the document text under the room's lock.
func (r *Room) SetCode(code string) {
	r.mu.Lock()
	r.code = code
	r.mu.Unlock()
}

func (r *Room) Language() string {
	return r.language
}

// Join registers a connection and returns the connection counts before and
// after the join.
func (r *Room) Join(s Sender) (before, after int) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	before = len(r.conns)
	r.conns[s] = struct{}{}
	return before, len(r.conns)
}

// Leave removes a connection if present and returns the remaining count.
// Calling it for an unregistered connection is a no-op.
func (r *Room) Leave(s Sender) int {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	delete(r.conns, s)
	return len(r.conns)
}

// ConnectionCount returns the number of live connections in the room.
func (r *Room) ConnectionCount() int {
	r.connMu.RLock()
	defer r.connMu.RUnlock()
	return len(r.conns)
}

// Broadcast serializes msg once and delivers it to every connection except
// exclude. A recipient whose buffer is full is skipped and logged; it is not
// removed from the room (removal only happens on disconnect).
func (r *Room) Broadcast(msg any, exclude Sender) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("room.broadcast.marshal", "room", r.ID, "err", err)
		return
	}

	r.connMu.RLock()
	defer r.connMu.RUnlock()
	for s := range r.conns {
		if s == exclude {
			continue
		}
		if !s.Enqueue(data) {
			r.log.Warn("room.broadcast.drop", "room", r.ID, "user", s.UserID())
		}
	}
}
