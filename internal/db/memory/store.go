// Package memory is an in-process db.Store for tests and single-node runs.
package memory

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/kailas-cloud/kvecd/internal/db"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// Store is a thread-safe in-memory key-value store with lazy TTL eviction.
type Store struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time
}

var _ db.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string]entry), now: time.Now}
}

// NewStoreWithClock creates a store with an injected clock for expiry tests.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{data: make(map[string]entry), now: now}
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Get retrieves a value by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()
	if !ok || e.expired(s.now()) {
		return nil, db.ErrKeyNotFound
	}
	return e.value, nil
}

// GetMulti retrieves values for all existing keys; missing keys are absent
// from the result, not errors.
func (s *Store) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &db.Error{Op: db.OpMGet, Err: err}
	}
	now := s.now()
	out := make(map[string][]byte, len(keys))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, key := range keys {
		if e, ok := s.data[key]; ok && !e.expired(now) {
			out[key] = e.value
		}
	}
	return out, nil
}

// Set stores a value without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL stores a value; ttl <= 0 means no expiry.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.data[key] = e
	s.mu.Unlock()
	return nil
}

// Del removes a key and reports whether a live value existed.
func (s *Store) Del(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &db.Error{Op: db.OpDel, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	delete(s.data, key)
	return ok && !e.expired(s.now()), nil
}

// Scan returns keys matching a glob-style pattern.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}
	now := s.now()
	var keys []string
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key, e := range s.data {
		if e.expired(now) {
			continue
		}
		if ok, err := path.Match(pattern, key); err == nil && ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// WaitForReady is immediate for the in-memory store.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	return ctx.Err()
}

// Close drops all data.
func (s *Store) Close() {
	s.mu.Lock()
	s.data = make(map[string]entry)
	s.mu.Unlock()
}
