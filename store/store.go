// Package store defines the storage interface and implementations.
package store

import (
	"context"

	"chatrelay/domain"
)

// Store defines the interface for data persistence. Messages are append-only;
// the store assigns ids and timestamps at insert time and publishes every
// committed insert, in commit order, to all feed subscribers.
type Store interface {
	// Message operations
	InsertMessage(ctx context.Context, message *domain.Message) error
	GetMessages(ctx context.Context, ownerID string) ([]domain.Message, error)

	// SubscribeInserts returns a channel that receives every message insert
	// in commit order, and a cancel function that must be called to release
	// the subscription.
	SubscribeInserts() (<-chan domain.Message, func())

	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, token string) (*domain.Session, error)

	// Lifecycle
	Close() error
}
