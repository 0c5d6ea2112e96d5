package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/AnweshaRoses/Pair-Programmers/internal/autocomplete"
	"github.com/AnweshaRoses/Pair-Programmers/internal/db"
	"github.com/AnweshaRoses/Pair-Programmers/internal/metrics"
	"github.com/AnweshaRoses/Pair-Programmers/internal/room"
	"github.com/AnweshaRoses/Pair-Programmers/internal/ws"
)

type API struct {
	registry *room.Registry
	store    *db.Database
	log      *slog.Logger
}

func New(registry *room.Registry, store *db.Database, log *slog.Logger) *API {
	return &API{registry: registry, store: store, log: log}
}

// Router wires every HTTP and WebSocket route behind CORS.
func (a *API) Router(hub *ws.Hub, corsAllow []string) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", a.Health).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", a.Stats).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/rooms", a.CreateRoom).Methods(http.MethodPost)
	r.HandleFunc("/api/rooms/{roomId}", a.GetRoom).Methods(http.MethodGet)
	r.HandleFunc("/api/autocomplete", a.Autocomplete).Methods(http.MethodPost)

	r.HandleFunc("/ws/{roomId}", hub.ServeWS)

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllow,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"active_rooms":       a.registry.ActiveRoomCount(),
		"active_connections": a.registry.ConnectionTotal(),
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
	}

	if total, err := a.store.CountRooms(r.Context()); err == nil {
		stats["total_rooms"] = total
	}

	jsonResponse(w, http.StatusOK, stats)
}

type createRoomRequest struct {
	Language string `json:"language"`
}

type createRoomResponse struct {
	RoomID string `json:"roomId"`
}

type roomResponse struct {
	RoomID   string `json:"roomId"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

// CreateRoom generates a room id, records the room durably, and returns the
// id for clients to share.
func (a *API) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	roomID := newRoomID()
	if err := a.store.CreateRoom(r.Context(), roomID, req.Language); err != nil {
		a.log.Error("api.room.create", "err", err)
		errorResponse(w, http.StatusInternalServerError, "Failed to create room")
		return
	}

	a.log.Info("api.room.create", "room", roomID)
	jsonResponse(w, http.StatusCreated, createRoomResponse{RoomID: roomID})
}

// GetRoom returns a room's current code and language. The in-memory copy
// wins over the stored one when the room is live.
func (a *API) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	stored, err := a.store.GetRoom(r.Context(), roomID)
	if err != nil {
		a.log.Error("api.room.get", "room", roomID, "err", err)
		errorResponse(w, http.StatusInternalServerError, "Failed to load room")
		return
	}
	if stored == nil {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	code := a.registry.GetCode(roomID)
	if code == "" {
		code = stored.Code
	}

	jsonResponse(w, http.StatusOK, roomResponse{
		RoomID:   roomID,
		Code:     code,
		Language: stored.Language,
	})
}

type autocompleteRequest struct {
	Code           string `json:"code"`
	CursorPosition int    `json:"cursorPosition"`
	Language       string `json:"language"`
}

type autocompleteResponse struct {
	Suggestion string `json:"suggestion"`
}

func (a *API) Autocomplete(w http.ResponseWriter, r *http.Request) {
	var req autocompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	jsonResponse(w, http.StatusOK, autocompleteResponse{
		Suggestion: autocomplete.Suggest(req.Code, req.CursorPosition),
	})
}

// newRoomID returns a short shareable identifier.
func newRoomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
