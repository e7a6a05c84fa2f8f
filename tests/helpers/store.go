package helpers

import (
	"fmt"
	"sync/atomic"
	"testing"

	"chatrelay/store"
)

var memDBCounter int64

// NewTestSQLiteStore returns an in-memory store scoped to the test. The
// named shared-memory DSN keeps all pooled connections on the same database.
func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", atomic.AddInt64(&memDBCounter, 1))
	s, err := store.NewSQLiteStore(dsn)
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}
