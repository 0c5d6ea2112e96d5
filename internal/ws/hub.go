package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/AnweshaRoses/Pair-Programmers/internal/metrics"
	"github.com/AnweshaRoses/Pair-Programmers/internal/protocol"
	"github.com/AnweshaRoses/Pair-Programmers/internal/room"
)

// Store is the durable side of a room: a read on cold start, best-effort
// writes on update and on last-connection departure. Failures are never
// surfaced to clients.
type Store interface {
	GetRoomCode(ctx context.Context, roomID string) (string, error)
	SaveRoomCode(ctx context.Context, roomID, code string) error
}

// Hub drives the per-connection protocol: it validates inbound messages,
// mutates room state, fans results out, and requests persistence.
type Hub struct {
	registry *room.Registry
	store    Store
	log      *slog.Logger
}

func NewHub(registry *room.Registry, store Store, log *slog.Logger) *Hub {
	return &Hub{registry: registry, store: store, log: log}
}

// ServeWS upgrades the request and runs the connection lifecycle for the
// room named in the path.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	if roomID == "" {
		http.Error(w, "room id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("ws.upgrade", "room", roomID, "err", err)
		return
	}

	userID := newUserID()
	client := newClient(h, conn, roomID, userID, h.log)

	// Resident room wins; otherwise seed from the durable store.
	rm := h.registry.Get(roomID)
	if rm == nil {
		code, err := h.store.GetRoomCode(r.Context(), roomID)
		if err != nil {
			h.log.Error("store.read", "room", roomID, "err", err)
			code = ""
		}
		rm = h.registry.GetOrCreate(roomID, code)
	}

	before, after := rm.Join(client)
	metrics.ConnectionsActive.Inc()
	h.log.Info("ws.connect", "room", roomID, "user", userID, "connections", after)

	go client.writePump()

	h.sendTo(client, protocol.Init(roomID, rm.Code(), after))

	if before > 0 {
		rm.Broadcast(protocol.UserJoined(roomID, userID, after), client)
	}

	client.readPump()
}

// disconnect runs the ACTIVE -> CLOSED transition exactly once: deregister,
// notify peers, and flush the room's code when it just went idle.
func (h *Hub) disconnect(c *Client) {
	c.closeOnce.Do(func() {
		close(c.done)

		rm := h.registry.Get(c.roomID)
		if rm == nil {
			return
		}
		// Leave returns the remaining count atomically, so exactly one
		// departing connection observes zero.
		count := rm.Leave(c)
		metrics.ConnectionsActive.Dec()
		h.log.Info("ws.disconnect", "room", c.roomID, "user", c.userID, "connections", count)

		if count > 0 {
			rm.Broadcast(protocol.UserLeft(c.roomID, c.userID, count), nil)
			return
		}

		// Last one out flushes the room.
		code := rm.Code()
		if err := h.store.SaveRoomCode(context.Background(), c.roomID, code); err != nil {
			metrics.PersistFailuresTotal.Inc()
			h.log.Error("room.flush", "room", c.roomID, "err", err)
			return
		}
		h.log.Debug("room.flush", "room", c.roomID, "bytes", len(code))
	})
}

func (h *Hub) handleMessage(c *Client, raw []byte) {
	msg, errCode := protocol.Parse(raw)
	if errCode != "" {
		h.sendError(c, errCode, errorText(errCode))
		return
	}

	if msg.RoomID != c.roomID {
		h.sendError(c, protocol.CodeRoomIDMismatch,
			fmt.Sprintf("Room ID mismatch. Expected %s, got %s", c.roomID, msg.RoomID))
		return
	}

	switch msg.Type {
	case protocol.TypeCodeUpdate:
		metrics.MessagesTotal.WithLabelValues(msg.Type).Inc()
		h.handleCodeUpdate(c, msg.Payload)

	case protocol.TypeCursorUpdate:
		metrics.MessagesTotal.WithLabelValues(msg.Type).Inc()
		h.handleCursorUpdate(c, msg.Payload)

	case protocol.TypePing:
		metrics.MessagesTotal.WithLabelValues(msg.Type).Inc()
		h.sendTo(c, protocol.Pong(c.roomID))

	default:
		h.sendError(c, protocol.CodeUnknownMessageType,
			fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (h *Hub) handleCodeUpdate(c *Client, raw json.RawMessage) {
	// Missing or partial payload degrades to defaults.
	var p protocol.CodeUpdatePayload
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &p)
	}

	h.registry.UpdateCode(c.roomID, p.Code)

	if rm := h.registry.Get(c.roomID); rm != nil {
		rm.Broadcast(protocol.CodeUpdate(c.roomID, p.Code, p.Cursor, time.Now()), c)
	}

	// Best-effort durable write; the in-memory copy stays authoritative.
	go func() {
		if err := h.store.SaveRoomCode(context.Background(), c.roomID, p.Code); err != nil {
			metrics.PersistFailuresTotal.Inc()
			h.log.Error("store.write", "room", c.roomID, "err", err)
		}
	}()
}

func (h *Hub) handleCursorUpdate(c *Client, raw json.RawMessage) {
	var p protocol.CursorUpdatePayload
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &p)
	}

	if rm := h.registry.Get(c.roomID); rm != nil {
		rm.Broadcast(protocol.CursorUpdate(c.roomID, p, c.userID), c)
	}
}

func (h *Hub) sendTo(c *Client, msg protocol.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("ws.marshal", "room", c.roomID, "type", msg.Type, "err", err)
		return
	}
	if !c.Enqueue(data) {
		h.log.Warn("ws.send.drop", "room", c.roomID, "user", c.userID, "type", msg.Type)
	}
}

func (h *Hub) sendError(c *Client, code, message string) {
	metrics.ProtocolErrorsTotal.WithLabelValues(code).Inc()
	h.sendTo(c, protocol.Error(c.roomID, message, code))
}

func errorText(code string) string {
	switch code {
	case protocol.CodeInvalidJSON:
		return "Invalid JSON format"
	case protocol.CodeInvalidMessage:
		return "Message must be a JSON object"
	default:
		return "Invalid message"
	}
}

// newUserID generates the short identifier peers see in cursor and
// presence messages.
func newUserID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
