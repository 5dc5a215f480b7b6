package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warden-platform/warden-core/internal/domain/apikey"
	"github.com/warden-platform/warden-core/internal/domain/fault"
)

// MemoryKeyStore implements apikey.Store with in-memory maps keyed by the
// SHA-256 token hash. Thread-safe for concurrent access via sync.RWMutex.
// Includes background cleanup that evicts long-expired records to prevent
// unbounded memory growth; validation rejects expired keys regardless.
type MemoryKeyStore struct {
	mu     sync.RWMutex
	keys   map[string]*apikey.Key // by token hash
	byUser map[string][]string    // user id -> hashes in issuance order

	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
	expiredTTL      time.Duration
}

// NewKeyStore creates a new in-memory key store with default cleanup
// settings. Default cleanup interval: 10 minutes; expired records linger
// 24 hours so revocation audits can still resolve metadata.
func NewKeyStore() *MemoryKeyStore {
	return NewKeyStoreWithConfig(10*time.Minute, 24*time.Hour)
}

// NewKeyStoreWithConfig creates a new in-memory key store with custom
// cleanup settings.
func NewKeyStoreWithConfig(cleanupInterval, expiredTTL time.Duration) *MemoryKeyStore {
	return &MemoryKeyStore{
		keys:            make(map[string]*apikey.Key),
		byUser:          make(map[string][]string),
		stopChan:        make(chan struct{}),
		cleanupInterval: cleanupInterval,
		expiredTTL:      expiredTTL,
	}
}

// Put inserts a key record under its token hash.
func (s *MemoryKeyStore) Put(ctx context.Context, tokenHash string, key *apikey.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[tokenHash]; ok {
		return fault.New(fault.AlreadyExists, "token hash already present")
	}
	stored := *key
	s.keys[tokenHash] = &stored
	s.byUser[key.UserID] = append(s.byUser[key.UserID], tokenHash)
	return nil
}

// Get returns the record for a token hash as a copy.
func (s *MemoryKeyStore) Get(ctx context.Context, tokenHash string) (*apikey.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[tokenHash]
	if !ok {
		return nil, fault.New(fault.NotFound, "api key not found")
	}
	out := *key
	return &out, nil
}

// Touch advances LastUsed, best effort. It never moves the stamp backwards
// and touching a missing record is a no-op.
func (s *MemoryKeyStore) Touch(ctx context.Context, tokenHash string, lastUsed int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[tokenHash]
	if !ok {
		return nil
	}
	if lastUsed > key.LastUsed {
		key.LastUsed = lastUsed
	}
	return nil
}

// Remove deletes the record and reports whether one existed.
func (s *MemoryKeyStore) Remove(ctx context.Context, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[tokenHash]
	if !ok {
		return false, nil
	}
	delete(s.keys, tokenHash)
	s.dropUserHashLocked(key.UserID, tokenHash)
	return true, nil
}

// ListByUser returns the user's key records, oldest first, as copies.
func (s *MemoryKeyStore) ListByUser(ctx context.Context, userID string) ([]*apikey.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hashes := s.byUser[userID]
	result := make([]*apikey.Key, 0, len(hashes))
	for _, h := range hashes {
		if key, ok := s.keys[h]; ok {
			out := *key
			result = append(result, &out)
		}
	}
	return result, nil
}

// StartCleanup starts the background eviction goroutine. It stops when ctx
// is cancelled or Stop() is called.
func (s *MemoryKeyStore) StartCleanup(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.cleanup()
			}
		}
	}()
}

// cleanup evicts records that have been expired longer than expiredTTL.
func (s *MemoryKeyStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	horizon := time.Now().Add(-s.expiredTTL)
	cleaned := 0
	for hash, key := range s.keys {
		if key.IsExpired(horizon) {
			delete(s.keys, hash)
			s.dropUserHashLocked(key.UserID, hash)
			cleaned++
		}
	}
	if cleaned > 0 {
		slog.Debug("key store cleanup completed",
			"cleaned_keys", cleaned,
			"remaining_keys", len(s.keys))
	}
}

// Stop gracefully stops the cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (s *MemoryKeyStore) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// Size returns the number of stored records. Useful for tests.
func (s *MemoryKeyStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Export returns every record keyed by token hash, as copies. Used by the
// snapshot service; not part of apikey.Store.
func (s *MemoryKeyStore) Export() map[string]apikey.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]apikey.Key, len(s.keys))
	for hash, key := range s.keys {
		out[hash] = *key
	}
	return out
}

// dropUserHashLocked removes one hash from the user's issuance list.
// Caller must hold s.mu.
func (s *MemoryKeyStore) dropUserHashLocked(userID, tokenHash string) {
	hashes := s.byUser[userID]
	for i, h := range hashes {
		if h == tokenHash {
			s.byUser[userID] = append(hashes[:i], hashes[i+1:]...)
			break
		}
	}
	if len(s.byUser[userID]) == 0 {
		delete(s.byUser, userID)
	}
}

// Compile-time interface verification.
var _ apikey.Store = (*MemoryKeyStore)(nil)
