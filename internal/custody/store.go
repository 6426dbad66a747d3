package custody

import (
	"context"
	"errors"
	"time"
)

// ErrKeyUnusable reports a handle whose key material failed validation.
var ErrKeyUnusable = errors.New("key material unusable")

// Record is the persisted form of a keypair. It only crosses the boundary
// between the custody service and its store; nothing outside this package
// sees the seed.
type Record struct {
	Alias     string    `json:"alias"`
	KeyID     string    `json:"key_id"`
	Seed      []byte    `json:"seed"`
	CreatedAt time.Time `json:"created_at"`
}

// Error Contract:
// All store methods follow this error pattern:
// - Return sentinel.ErrNotFound (wrapped) when no record exists for the alias
// - Return sentinel.ErrCorrupt (wrapped) when persisted data cannot be decoded
// - Return wrapped errors with context for other infrastructure failures
//
// Store persists keypair records, at most one per alias.
type Store interface {
	Load(ctx context.Context, alias string) (*Record, error)
	Save(ctx context.Context, record *Record) error
	Delete(ctx context.Context, alias string) error
}
