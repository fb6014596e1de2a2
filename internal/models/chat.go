package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatRequest is the payload sent to the chat endpoint.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the reply from the assistant. Errors use the same shape.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// SocketReply is a chat reply sent over the WebSocket endpoint.
type SocketReply struct {
	Reply  string `json:"reply"`
	Status int    `json:"status"`
}

// Exchange is one request/reply pair kept in the transcript log.
type Exchange struct {
	ID         uuid.UUID `json:"id"`
	RequestID  string    `json:"request_id"`
	Route      string    `json:"route"` // "math", "identity", "generation" or "" on failure
	Message    string    `json:"message"`
	Reply      string    `json:"reply"`
	Status     int       `json:"status"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
