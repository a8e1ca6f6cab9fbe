package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/kvecd/internal/db"
	"github.com/kailas-cloud/kvecd/internal/domain"
)

// Store persists sessions in a db.Store with a TTL. Every save refreshes
// the idle timeout. Records stay in the store for twice the TTL so an
// expired session is reported as expired, not unknown, until it finally
// falls out.
type Store struct {
	store  db.Store
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewStore creates a session store. ttl is the idle timeout.
func NewStore(store db.Store, prefix string, ttl time.Duration) *Store {
	return &Store{store: store, prefix: prefix, ttl: ttl, now: time.Now}
}

// WithClock injects a clock for expiry tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) key(id string) string { return s.prefix + "session:" + id }

// TTL returns the configured idle timeout.
func (s *Store) TTL() time.Duration { return s.ttl }

// Create allocates a new session starting before the lowest possible id.
func (s *Store) Create(ctx context.Context, collection string, batchSize int) (Session, error) {
	now := s.now()
	sess := Session{
		ID:         uuid.NewString(),
		Collection: collection,
		Cursor:     0,
		BatchSize:  batchSize,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
	}
	if err := s.save(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Get loads a session, distinguishing expired from unknown.
func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	data, err := s.store.Get(ctx, s.key(id))
	if errors.Is(err, db.ErrKeyNotFound) {
		return Session{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session %s: %w", id, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	if sess.Expired(s.now()) {
		return Session{}, fmt.Errorf("%w: %s", domain.ErrSessionExpired, id)
	}
	return sess, nil
}

// Advance saves a new cursor position and refreshes the idle timeout.
func (s *Store) Advance(ctx context.Context, sess Session, cursor uint64, exhausted bool) (Session, error) {
	sess.Cursor = cursor
	sess.Exhausted = exhausted
	sess.ExpiresAt = s.now().Add(s.ttl)
	if err := s.save(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Delete removes a session and reports whether a live one existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		// Expired or unknown: nothing live to release.
		if _, delErr := s.store.Del(ctx, s.key(id)); delErr != nil {
			return false, fmt.Errorf("delete session %s: %w", id, delErr)
		}
		return false, nil
	}
	existed, err := s.store.Del(ctx, s.key(sess.ID))
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", id, err)
	}
	return existed, nil
}

func (s *Store) save(ctx context.Context, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	if err := s.store.SetWithTTL(ctx, s.key(sess.ID), data, 2*s.ttl); err != nil {
		return fmt.Errorf("store session %s: %w", sess.ID, err)
	}
	return nil
}
