package protocol

import (
	"encoding/json"
	"errors"
	"time"
)

// Message types exchanged over a room's WebSocket.
const (
	TypeCodeUpdate   = "CODE_UPDATE"
	TypeCursorUpdate = "CURSOR_UPDATE"
	TypeInit         = "INIT"
	TypeUserJoined   = "USER_JOINED"
	TypeUserLeft     = "USER_LEFT"
	TypeError        = "ERROR"
	TypePing         = "PING"
	TypePong         = "PONG"
)

// Error codes carried on ERROR messages.
const (
	CodeInvalidJSON        = "INVALID_JSON"
	CodeInvalidMessage     = "INVALID_MESSAGE"
	CodeRoomIDMismatch     = "ROOM_ID_MISMATCH"
	CodeUnknownMessageType = "UNKNOWN_MESSAGE_TYPE"
)

// ClientMessage is the envelope every client frame must decode into.
// Payload is left raw; each handler decodes the payload it expects.
type ClientMessage struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload"`
}

// CodeUpdatePayload carries a whole-document replacement. Cursor is nil
// when the client did not report a position.
type CodeUpdatePayload struct {
	Code   string `json:"code"`
	Cursor *int   `json:"cursor"`
}

// CursorUpdatePayload carries a cursor position and optional selection bounds.
type CursorUpdatePayload struct {
	Cursor         int  `json:"cursor"`
	SelectionStart *int `json:"selectionStart"`
	SelectionEnd   *int `json:"selectionEnd"`
}

type initPayload struct {
	Code   string `json:"code"`
	Cursor int    `json:"cursor"`
}

type userPayload struct {
	UserID string `json:"userId"`
}

// ServerMessage is the single envelope for all server-originated messages.
// Optional top-level fields are omitted when zero; Payload is always present,
// an empty object at minimum.
type ServerMessage struct {
	Type            string `json:"type"`
	RoomID          string `json:"roomId"`
	Payload         any    `json:"payload"`
	ConnectionCount int    `json:"connectionCount,omitempty"`
	Timestamp       string `json:"timestamp,omitempty"`
	UserID          string `json:"userId,omitempty"`
	Message         string `json:"message,omitempty"`
	Code            string `json:"code,omitempty"`
}

// Parse decodes a raw client frame. The second return value is an error code
// (CodeInvalidJSON or CodeInvalidMessage) when the frame is unusable, empty
// otherwise. Broken JSON is INVALID_JSON; well-formed JSON that is not a
// message object (wrong shape, missing type) is INVALID_MESSAGE.
func Parse(data []byte) (ClientMessage, string) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return ClientMessage{}, CodeInvalidMessage
		}
		return ClientMessage{}, CodeInvalidJSON
	}
	if msg.Type == "" {
		return ClientMessage{}, CodeInvalidMessage
	}
	return msg, ""
}

func Init(roomID, code string, connectionCount int) ServerMessage {
	return ServerMessage{
		Type:            TypeInit,
		RoomID:          roomID,
		Payload:         initPayload{Code: code, Cursor: 0},
		ConnectionCount: connectionCount,
	}
}

func CodeUpdate(roomID, code string, cursor *int, at time.Time) ServerMessage {
	return ServerMessage{
		Type:      TypeCodeUpdate,
		RoomID:    roomID,
		Payload:   CodeUpdatePayload{Code: code, Cursor: cursor},
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

func CursorUpdate(roomID string, payload CursorUpdatePayload, userID string) ServerMessage {
	return ServerMessage{
		Type:    TypeCursorUpdate,
		RoomID:  roomID,
		Payload: payload,
		UserID:  userID,
	}
}

func UserJoined(roomID, userID string, connectionCount int) ServerMessage {
	return ServerMessage{
		Type:            TypeUserJoined,
		RoomID:          roomID,
		Payload:         userPayload{UserID: userID},
		ConnectionCount: connectionCount,
	}
}

func UserLeft(roomID, userID string, connectionCount int) ServerMessage {
	return ServerMessage{
		Type:            TypeUserLeft,
		RoomID:          roomID,
		Payload:         userPayload{UserID: userID},
		ConnectionCount: connectionCount,
	}
}

func Pong(roomID string) ServerMessage {
	return ServerMessage{Type: TypePong, RoomID: roomID, Payload: struct{}{}}
}

func Error(roomID, message, code string) ServerMessage {
	return ServerMessage{
		Type:    TypeError,
		RoomID:  roomID,
		Payload: struct{}{},
		Message: message,
		Code:    code,
	}
}
