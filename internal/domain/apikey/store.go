package apikey

import "context"

// Store persists issued key records, indexed by the SHA-256 hash of the raw
// token. The raw token itself never reaches storage.
//
// Errors use the fault kinds: NotFound for missing hashes.
type Store interface {
	// Put inserts a key record under its token hash.
	Put(ctx context.Context, tokenHash string, key *Key) error

	// Get retrieves the record for a token hash.
	Get(ctx context.Context, tokenHash string) (*Key, error)

	// Touch advances LastUsed for the record, best effort. Touching a
	// missing record is a no-op.
	Touch(ctx context.Context, tokenHash string, lastUsed int64) error

	// Remove deletes the record. It reports whether a record existed.
	Remove(ctx context.Context, tokenHash string) (bool, error)

	// ListByUser returns the records owned by the user, oldest first.
	// Records carry metadata only; neither tokens nor hashes appear.
	ListByUser(ctx context.Context, userID string) ([]*Key, error)
}
