package gateway

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gorilla/websocket"

	"github.com/teamforge/collab/pkg/message"
)

// Inbound event types.
const (
	EventJoinProject = "join-project"
	EventSendMessage = "send-message"
	EventTypingStart = "typing-start"
	EventTypingStop  = "typing-stop"
	EventPing        = "ping"
)

// Outbound event types.
const (
	EventPreviousMessages  = "previous-messages"
	EventNewMessage        = "new-message"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventPong              = "pong"
	EventError             = "error"
)

// InEvent is an event received from a client. The body is decoded into a
// specific payload type by the handler for the event type.
type InEvent struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// OutEvent is an event written to one or many clients.
type OutEvent struct {
	Type string `json:"type"`
	Body any    `json:"body"`
}

type JoinProjectPayload struct {
	ProjectID string `json:"projectId"`
}

type SendMessagePayload struct {
	ProjectID string `json:"projectId"`
	Content   string `json:"content"`
}

type TypingPayload struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
}

type NewMessagePayload = message.Message

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeInEvent(t int, r io.Reader) (*InEvent, error) {
	if t != websocket.TextMessage {
		return nil, fmt.Errorf("unexpected message type: %d", t)
	}

	var event InEvent
	if err := json.NewDecoder(r).Decode(&event); err != nil {
		return nil, fmt.Errorf("json.Decoder.Decode: %w", err)
	}
	return &event, nil
}
