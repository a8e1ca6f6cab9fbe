// Package db defines the key-value store contract used for adapter-side
// state: point payloads and scroll sessions. The kernel device stores only
// vectors; everything it cannot hold lives behind this interface.
package db

import (
	"context"
	"time"
)

// Store is a minimal key-value contract with TTL support. Implementations:
// memory (single node, tests) and redis (rueidis, multi-replica deployments).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetMulti(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Del removes a key and reports whether it existed.
	Del(ctx context.Context, key string) (bool, error)
	// Scan returns all keys matching a glob-style pattern.
	Scan(ctx context.Context, pattern string) ([]string, error)

	Ping(ctx context.Context) error
	WaitForReady(ctx context.Context, timeout time.Duration) error
	Close()
}
