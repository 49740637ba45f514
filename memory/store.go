package memory

import (
	"context"
	"errors"
	"time"

	"github.com/randalmurphal/quorum/task"
)

// Store errors.
var (
	// ErrNotFound indicates no records exist for the key.
	ErrNotFound = errors.New("no records for key")
)

// Key addresses a batch of stored results.
type Key struct {
	Namespace string `json:"namespace"`
	SessionID string `json:"sessionId"`
}

// Record is one completed (request, response) pair handed to the
// store by the engine.
type Record struct {
	Request  task.Request  `json:"request"`
	Response task.Response `json:"response"`
	StoredAt time.Time     `json:"storedAt"`
}

// Store persists orchestration results across sessions. The engine
// treats the backend as opaque; durability is the implementation's
// concern.
type Store interface {
	// Save appends a record under the key.
	Save(ctx context.Context, key Key, rec Record) error

	// Load returns all records for the key in storage order.
	// Returns ErrNotFound when none exist.
	Load(ctx context.Context, key Key) ([]Record, error)
}
