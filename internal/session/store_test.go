package session

import (
	"context"
	"errors"
	"testing"
	"time"

	dbmemory "github.com/kailas-cloud/kvecd/internal/db/memory"
	"github.com/kailas-cloud/kvecd/internal/domain"
)

func newTestStore(ttl time.Duration) (*Store, *time.Time) {
	now := time.Now()
	clock := func() time.Time { return now }
	kv := dbmemory.NewStoreWithClock(clock)
	return NewStore(kv, "kvecd:", ttl).WithClock(clock), &now
}

func TestStore_CreateGet(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	ctx := context.Background()

	sess, err := s.Create(ctx, "products", 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.ID == "" {
		t.Error("session id is empty")
	}
	if sess.Cursor != 0 {
		t.Errorf("initial cursor = %d", sess.Cursor)
	}

	got, err := s.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Collection != "products" || got.BatchSize != 100 {
		t.Errorf("session = %+v", got)
	}
}

func TestStore_GetUnknown(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestStore_Expiry(t *testing.T) {
	s, now := newTestStore(time.Minute)
	ctx := context.Background()

	sess, err := s.Create(ctx, "products", 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Past the idle timeout but inside the record's retention window:
	// expired, not unknown.
	*now = now.Add(90 * time.Second)
	if _, err := s.Get(ctx, sess.ID); !errors.Is(err, domain.ErrSessionExpired) {
		t.Errorf("error = %v, want ErrSessionExpired", err)
	}

	// Past retention: the record is gone entirely.
	*now = now.Add(time.Hour)
	if _, err := s.Get(ctx, sess.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestStore_AdvanceRefreshesTimeout(t *testing.T) {
	s, now := newTestStore(time.Minute)
	ctx := context.Background()

	sess, _ := s.Create(ctx, "products", 10)

	*now = now.Add(45 * time.Second)
	sess, err := s.Advance(ctx, sess, 42, false)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if sess.Cursor != 42 {
		t.Errorf("cursor = %d", sess.Cursor)
	}

	// 45s after the advance the original timeout would have elapsed,
	// but the advance refreshed it.
	*now = now.Add(45 * time.Second)
	if _, err := s.Get(ctx, sess.ID); err != nil {
		t.Errorf("session should still be live: %v", err)
	}
}

func TestStore_DeleteIdempotent(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	ctx := context.Background()

	sess, _ := s.Create(ctx, "products", 10)

	existed, err := s.Delete(ctx, sess.ID)
	if err != nil || !existed {
		t.Errorf("Delete = %v, %v, want true, nil", existed, err)
	}
	existed, err = s.Delete(ctx, sess.ID)
	if err != nil || existed {
		t.Errorf("second Delete = %v, %v, want false, nil", existed, err)
	}
	existed, err = s.Delete(ctx, "never-existed")
	if err != nil || existed {
		t.Errorf("Delete unknown = %v, %v, want false, nil", existed, err)
	}
}
