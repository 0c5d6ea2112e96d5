package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/AnweshaRoses/Pair-Programmers/internal/protocol"
	"github.com/AnweshaRoses/Pair-Programmers/internal/room"
)

type fakeStore struct {
	mu       sync.Mutex
	codes    map[string]string
	saves    []string
	readErr  error
	writeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{codes: map[string]string{}}
}

func (f *fakeStore) GetRoomCode(_ context.Context, roomID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return "", f.readErr
	}
	return f.codes[roomID], nil
}

func (f *fakeStore) SaveRoomCode(_ context.Context, roomID, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.codes[roomID] = code
	f.saves = append(f.saves, roomID)
	return nil
}

func (f *fakeStore) saveCount(roomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.saves {
		if id == roomID {
			n++
		}
	}
	return n
}

func newTestHub(store Store) (*Hub, *room.Registry) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := room.NewRegistry(logger)
	return NewHub(registry, store, logger), registry
}

// drains one buffered frame from a client without a running write pump
func receive(t *testing.T, c *Client) protocol.ServerMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg protocol.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Received frame is not valid JSON: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for a frame")
		return protocol.ServerMessage{}
	}
}

func expectSilence(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("Expected no frame, got %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMalformedJSONAnsweredToSenderOnly(t *testing.T) {
	hub, registry := newTestHub(newFakeStore())

	a := newClient(hub, nil, "abc123", "aaaa1111", hub.log)
	b := newClient(hub, nil, "abc123", "bbbb2222", hub.log)
	rm := registry.GetOrCreate("abc123", "")
	rm.Join(a)
	rm.Join(b)

	hub.handleMessage(a, []byte(`{not json`))

	msg := receive(t, a)
	if msg.Type != protocol.TypeError || msg.Code != protocol.CodeInvalidJSON {
		t.Errorf("Expected ERROR/INVALID_JSON, got %s/%s", msg.Type, msg.Code)
	}
	expectSilence(t, b)

	// the connection stays usable
	hub.handleMessage(a, []byte(`{"type":"PING","roomId":"abc123","payload":{}}`))
	if msg := receive(t, a); msg.Type != protocol.TypePong {
		t.Errorf("Expected PONG after recovered error, got %s", msg.Type)
	}
}

func TestNonObjectMessage(t *testing.T) {
	hub, registry := newTestHub(newFakeStore())
	a := newClient(hub, nil, "r1", "aaaa1111", hub.log)
	registry.GetOrCreate("r1", "").Join(a)

	hub.handleMessage(a, []byte(`[1,2,3]`))

	msg := receive(t, a)
	if msg.Code != protocol.CodeInvalidMessage {
		t.Errorf("Expected INVALID_MESSAGE, got %q", msg.Code)
	}
}

func TestRoomIDMismatch(t *testing.T) {
	hub, registry := newTestHub(newFakeStore())
	a := newClient(hub, nil, "r1", "aaaa1111", hub.log)
	registry.GetOrCreate("r1", "").Join(a)

	hub.handleMessage(a, []byte(`{"type":"CODE_UPDATE","roomId":"r2","payload":{"code":"x"}}`))

	msg := receive(t, a)
	if msg.Type != protocol.TypeError || msg.Code != protocol.CodeRoomIDMismatch {
		t.Errorf("Expected ERROR/ROOM_ID_MISMATCH, got %s/%s", msg.Type, msg.Code)
	}
	if registry.GetCode("r1") != "" {
		t.Error("Mismatched update must not touch room state")
	}
}

func TestUnknownMessageType(t *testing.T) {
	hub, registry := newTestHub(newFakeStore())
	a := newClient(hub, nil, "r1", "aaaa1111", hub.log)
	registry.GetOrCreate("r1", "").Join(a)

	hub.handleMessage(a, []byte(`{"type":"TELEPORT","roomId":"r1","payload":{}}`))

	msg := receive(t, a)
	if msg.Code != protocol.CodeUnknownMessageType {
		t.Errorf("Expected UNKNOWN_MESSAGE_TYPE, got %q", msg.Code)
	}
}

func TestCodeUpdateReachesPeersNotSender(t *testing.T) {
	store := newFakeStore()
	hub, registry := newTestHub(store)

	a := newClient(hub, nil, "r1", "aaaa1111", hub.log)
	b := newClient(hub, nil, "r1", "bbbb2222", hub.log)
	rm := registry.GetOrCreate("r1", "")
	rm.Join(a)
	rm.Join(b)

	hub.handleMessage(a, []byte(`{"type":"CODE_UPDATE","roomId":"r1","payload":{"code":"x=1","cursor":3}}`))

	msg := receive(t, b)
	if msg.Type != protocol.TypeCodeUpdate {
		t.Fatalf("Expected CODE_UPDATE, got %s", msg.Type)
	}
	payload := msg.Payload.(map[string]any)
	if payload["code"] != "x=1" {
		t.Errorf("Expected code 'x=1', got %v", payload["code"])
	}
	if msg.Timestamp == "" {
		t.Error("Server CODE_UPDATE must carry a timestamp")
	}
	expectSilence(t, a)

	if registry.GetCode("r1") != "x=1" {
		t.Errorf("Expected room code 'x=1', got %q", registry.GetCode("r1"))
	}

	// async persistence lands eventually
	deadline := time.Now().Add(time.Second)
	for store.saveCount("r1") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got, _ := store.GetRoomCode(context.Background(), "r1"); got != "x=1" {
		t.Errorf("Expected persisted code 'x=1', got %q", got)
	}
}

func TestCodeUpdatePersistFailureInvisible(t *testing.T) {
	store := newFakeStore()
	store.writeErr = errors.New("disk on fire")
	hub, registry := newTestHub(store)

	a := newClient(hub, nil, "r1", "aaaa1111", hub.log)
	registry.GetOrCreate("r1", "").Join(a)

	hub.handleMessage(a, []byte(`{"type":"CODE_UPDATE","roomId":"r1","payload":{"code":"x=1"}}`))

	// no ERROR reaches the sender, in-memory state is updated regardless
	expectSilence(t, a)
	if registry.GetCode("r1") != "x=1" {
		t.Error("In-memory update must survive a persistence failure")
	}
}

func TestCursorUpdateCarriesUserID(t *testing.T) {
	hub, registry := newTestHub(newFakeStore())

	a := newClient(hub, nil, "r1", "aaaa1111", hub.log)
	b := newClient(hub, nil, "r1", "bbbb2222", hub.log)
	rm := registry.GetOrCreate("r1", "")
	rm.Join(a)
	rm.Join(b)

	hub.handleMessage(a, []byte(`{"type":"CURSOR_UPDATE","roomId":"r1","payload":{"cursor":7,"selectionStart":1,"selectionEnd":4}}`))

	msg := receive(t, b)
	if msg.Type != protocol.TypeCursorUpdate {
		t.Fatalf("Expected CURSOR_UPDATE, got %s", msg.Type)
	}
	if msg.UserID != "aaaa1111" {
		t.Errorf("Expected sender's userId, got %q", msg.UserID)
	}
	payload := msg.Payload.(map[string]any)
	if payload["cursor"] != float64(7) {
		t.Errorf("Expected cursor 7, got %v", payload["cursor"])
	}
	expectSilence(t, a)
}

func TestDisconnectNotifiesAndFlushesOnce(t *testing.T) {
	store := newFakeStore()
	hub, registry := newTestHub(store)

	a := newClient(hub, nil, "r2", "aaaa1111", hub.log)
	b := newClient(hub, nil, "r2", "bbbb2222", hub.log)
	rm := registry.GetOrCreate("r2", "")
	rm.Join(a)
	rm.Join(b)
	registry.UpdateCode("r2", "final draft")

	hub.disconnect(a)

	msg := receive(t, b)
	if msg.Type != protocol.TypeUserLeft {
		t.Fatalf("Expected USER_LEFT, got %s", msg.Type)
	}
	if msg.ConnectionCount != 1 {
		t.Errorf("Expected connectionCount 1, got %d", msg.ConnectionCount)
	}
	if store.saveCount("r2") != 0 {
		t.Error("No flush while connections remain")
	}

	hub.disconnect(b)

	if store.saveCount("r2") != 1 {
		t.Errorf("Expected exactly one flush, got %d", store.saveCount("r2"))
	}
	if got, _ := store.GetRoomCode(context.Background(), "r2"); got != "final draft" {
		t.Errorf("Expected flushed code, got %q", got)
	}

	// a repeated disconnect is a no-op
	hub.disconnect(b)
	if store.saveCount("r2") != 1 {
		t.Error("Repeated disconnect must not flush again")
	}
	if registry.ConnectionCount("r2") != 0 {
		t.Error("Expected no leaked connections")
	}
}

// Full lifecycle over a real WebSocket: INIT, USER_JOINED, relay, USER_LEFT.
func TestServeWSLifecycle(t *testing.T) {
	store := newFakeStore()
	store.codes["r1"] = "seeded"
	hub, _ := newTestHub(store)

	router := mux.NewRouter()
	router.HandleFunc("/ws/{roomId}", hub.ServeWS)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/r1"

	connA, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial A failed: %v", err)
	}
	defer connA.Close()

	init := readServerMessage(t, connA)
	if init.Type != protocol.TypeInit {
		t.Fatalf("Expected INIT first, got %s", init.Type)
	}
	if init.ConnectionCount != 1 {
		t.Errorf("Expected connectionCount 1, got %d", init.ConnectionCount)
	}
	if code := init.Payload.(map[string]any)["code"]; code != "seeded" {
		t.Errorf("Expected INIT seeded from store, got %v", code)
	}

	connB, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial B failed: %v", err)
	}
	defer connB.Close()

	initB := readServerMessage(t, connB)
	if initB.Type != protocol.TypeInit || initB.ConnectionCount != 2 {
		t.Errorf("Expected INIT with connectionCount 2, got %s/%d", initB.Type, initB.ConnectionCount)
	}

	joined := readServerMessage(t, connA)
	if joined.Type != protocol.TypeUserJoined || joined.ConnectionCount != 2 {
		t.Errorf("Expected USER_JOINED with connectionCount 2, got %s/%d", joined.Type, joined.ConnectionCount)
	}

	// A edits; B sees it, A gets no echo
	update := `{"type":"CODE_UPDATE","roomId":"r1","payload":{"code":"x = 1"}}`
	if err := connA.WriteMessage(websocket.TextMessage, []byte(update)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	relayed := readServerMessage(t, connB)
	if relayed.Type != protocol.TypeCodeUpdate {
		t.Fatalf("Expected relayed CODE_UPDATE, got %s", relayed.Type)
	}
	if code := relayed.Payload.(map[string]any)["code"]; code != "x = 1" {
		t.Errorf("Expected relayed code, got %v", code)
	}

	connA.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := connA.ReadMessage(); err == nil {
		t.Error("Sender must not receive its own CODE_UPDATE")
	}
	connA.SetReadDeadline(time.Time{})

	// B leaves; A is told
	connB.Close()
	left := readServerMessage(t, connA)
	if left.Type != protocol.TypeUserLeft || left.ConnectionCount != 1 {
		t.Errorf("Expected USER_LEFT with connectionCount 1, got %s/%d", left.Type, left.ConnectionCount)
	}

	// A leaves; room flushes the final code
	connA.Close()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if code, _ := store.GetRoomCode(context.Background(), "r1"); code == "x = 1" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("Expected final code flushed on last disconnect")
}

func readServerMessage(t *testing.T, conn *websocket.Conn) protocol.ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var msg protocol.ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Frame is not valid JSON: %v", err)
	}
	return msg
}
