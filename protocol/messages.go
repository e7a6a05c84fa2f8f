// Package protocol defines the WebSocket message protocol between clients
// and the relay's change feed.
package protocol

import "time"

// Message types from client to server
const (
	TypeHello = "hello"
)

// Message types from server to client
const (
	TypeHelloAck = "hello_ack"
	TypeMessage  = "message"
	TypeError    = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type string `json:"type"`
	Ts   int64  `json:"ts"`
}

// HelloMessage is sent by the client to authenticate the subscription.
type HelloMessage struct {
	BaseMessage
	Token string `json:"token"`
}

// HelloAckMessage is sent by the server after a successful hello.
type HelloAckMessage struct {
	BaseMessage
	UserID string `json:"user_id"`
}

// MessageEvent notifies the client of a committed message insert for its
// owner. Events arrive in store commit order.
type MessageEvent struct {
	BaseMessage
	ID        int64     `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Text      string    `json:"text"`
	IsBot     bool      `json:"is_bot"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorMessage is sent by the server when an error occurs.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeUnauthorized   = "unauthorized"
)
