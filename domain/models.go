// Package domain defines the core domain models for the relay.
package domain

import "time"

// Message is a single transcript entry owned by one user. Messages are
// append-only: once stored they are never edited or deleted.
type Message struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Text      string    `json:"text"`
	IsBot     bool      `json:"is_bot"`
	CreatedAt time.Time `json:"created_at"`
}

// Session maps an opaque token to a user. Sessions are issued by the
// identity collaborator; the relay only resolves them.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity is the resolved caller of a request.
type Identity struct {
	UserID string `json:"user_id"`
}
