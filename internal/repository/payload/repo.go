// Package payload persists point payloads beside the kernel device, which
// stores only vectors. Keys are namespaced per collection so payloads die
// with their collection.
package payload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/kvecd/internal/db"
	"github.com/kailas-cloud/kvecd/internal/domain"
)

// Repository stores payloads in a db.Store.
type Repository struct {
	store  db.Store
	prefix string
}

// New creates a payload repository. prefix namespaces all keys.
func New(store db.Store, prefix string) *Repository {
	return &Repository{store: store, prefix: prefix}
}

func (r *Repository) key(collection string, id uint64) string {
	return r.prefix + "payload:" + collection + ":" + strconv.FormatUint(id, 10)
}

// SetMulti stores the payloads of the given points. Points without payload
// get their key removed so stale metadata never outlives an overwrite.
func (r *Repository) SetMulti(ctx context.Context, collection string, points []domain.Point) error {
	for _, p := range points {
		key := r.key(collection, p.ID())
		if len(p.Payload()) == 0 {
			if _, err := r.store.Del(ctx, key); err != nil {
				return fmt.Errorf("clear payload %s: %w", key, err)
			}
			continue
		}
		data, err := json.Marshal(p.Payload())
		if err != nil {
			return fmt.Errorf("marshal payload for point %d: %w", p.ID(), err)
		}
		if err := r.store.Set(ctx, key, data); err != nil {
			return fmt.Errorf("store payload %s: %w", key, err)
		}
	}
	return nil
}

// GetMulti loads payloads for the given ids. Points without payload are
// absent from the result.
func (r *Repository) GetMulti(ctx context.Context, collection string, ids []uint64) (map[uint64]domain.Payload, error) {
	if len(ids) == 0 {
		return map[uint64]domain.Payload{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(collection, id)
	}
	values, err := r.store.GetMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load payloads: %w", err)
	}
	out := make(map[uint64]domain.Payload, len(values))
	for i, id := range ids {
		data, ok := values[keys[i]]
		if !ok {
			continue
		}
		var p domain.Payload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode payload for point %d: %w", id, err)
		}
		out[id] = p
	}
	return out, nil
}

// Get loads one point's payload; nil if none is stored.
func (r *Repository) Get(ctx context.Context, collection string, id uint64) (domain.Payload, error) {
	data, err := r.store.Get(ctx, r.key(collection, id))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load payload: %w", err)
	}
	var p domain.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode payload for point %d: %w", id, err)
	}
	return p, nil
}

// Delete removes payloads for the given ids.
func (r *Repository) Delete(ctx context.Context, collection string, ids []uint64) error {
	for _, id := range ids {
		if _, err := r.store.Del(ctx, r.key(collection, id)); err != nil {
			return fmt.Errorf("delete payload for point %d: %w", id, err)
		}
	}
	return nil
}

// DeleteCollection removes every payload stored for a collection.
func (r *Repository) DeleteCollection(ctx context.Context, collection string) error {
	keys, err := r.store.Scan(ctx, r.prefix+"payload:"+collection+":*")
	if err != nil {
		return fmt.Errorf("scan payloads of %s: %w", collection, err)
	}
	for _, key := range keys {
		if _, err := r.store.Del(ctx, key); err != nil {
			return fmt.Errorf("delete payload %s: %w", key, err)
		}
	}
	return nil
}
