// Package scroll implements id-ordered reads over a collection, both as
// resumable server-side sessions and as stateless offset pagination.
package scroll

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/kailas-cloud/kvecd/internal/domain"
	"github.com/kailas-cloud/kvecd/internal/domain/filter"
	"github.com/kailas-cloud/kvecd/internal/kernel"
	"github.com/kailas-cloud/kvecd/internal/session"
)

// ErrBadOffset marks an offset token the service did not issue.
var ErrBadOffset = errors.New("malformed scroll offset")

// Page is one scroll step.
type Page struct {
	Points  []domain.Point
	HasMore bool
}

// Options tune stateless scrolling.
type Options struct {
	Filter      *filter.Condition
	WithPayload bool
	WithVector  bool
}

// Service handles scrolling. Each session is driven by at most one request
// at a time; concurrent continues on the same session fail fast instead of
// corrupting the cursor.
type Service struct {
	bridge       Bridge
	payloads     PayloadStore
	sessions     SessionStore
	locks        sync.Map // session id -> *sync.Mutex
	defaultBatch int
	maxBatch     int
}

// New creates a scroll service. defaultBatch is the page size used when a
// session is created without one; maxBatch caps every page.
func New(bridge Bridge, payloads PayloadStore, sessions SessionStore, defaultBatch, maxBatch int) *Service {
	return &Service{
		bridge:       bridge,
		payloads:     payloads,
		sessions:     sessions,
		defaultBatch: defaultBatch,
		maxBatch:     maxBatch,
	}
}

// CreateSession opens a scroll session positioned before the first point.
func (s *Service) CreateSession(ctx context.Context, collection string, batchSize int) (session.Session, error) {
	if _, err := s.bridge.CollectionInfo(ctx, collection); err != nil {
		return session.Session{}, fmt.Errorf("resolve collection: %w", err)
	}
	if batchSize <= 0 {
		batchSize = s.defaultBatch
	}
	if batchSize > s.maxBatch {
		batchSize = s.maxBatch
	}
	sess, err := s.sessions.Create(ctx, collection, batchSize)
	if err != nil {
		return session.Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Continue reads the next page of a session and advances its cursor.
// limit overrides the session batch size when positive.
func (s *Service) Continue(ctx context.Context, id string, limit int) (Page, error) {
	lock := s.lockFor(id)
	if !lock.TryLock() {
		return Page{}, fmt.Errorf("%w: %s", domain.ErrSessionBusy, id)
	}
	defer lock.Unlock()

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return Page{}, err
	}
	if sess.Exhausted {
		return Page{Points: []domain.Point{}}, nil
	}
	if limit <= 0 {
		limit = sess.BatchSize
	}
	if limit > s.maxBatch {
		limit = s.maxBatch
	}

	records, err := s.bridge.ScanPoints(ctx, sess.Collection, sess.Cursor, limit)
	if err != nil {
		return Page{}, fmt.Errorf("scan points: %w", err)
	}

	points, err := s.hydrate(ctx, sess.Collection, records, Options{WithPayload: true})
	if err != nil {
		return Page{}, err
	}

	// A short page means the collection ran out.
	hasMore := len(records) == limit
	cursor := sess.Cursor
	if len(records) > 0 {
		cursor = records[len(records)-1].ID
	}
	if _, err := s.sessions.Advance(ctx, sess, cursor, !hasMore); err != nil {
		return Page{}, fmt.Errorf("advance session: %w", err)
	}
	return Page{Points: points, HasMore: hasMore}, nil
}

// CloseSession releases a session. Closing an unknown or already-closed
// session is not an error; the call reports whether a live session existed.
func (s *Service) CloseSession(ctx context.Context, id string) (bool, error) {
	existed, err := s.sessions.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("close session: %w", err)
	}
	s.locks.Delete(id)
	return existed, nil
}

// Scroll reads one stateless page ordered by id. offset is the opaque
// token from a previous page, empty for the first. The returned token is
// empty when the collection is exhausted.
func (s *Service) Scroll(ctx context.Context, collection string, limit int, offset string, opts Options) ([]domain.Point, string, error) {
	if _, err := s.bridge.CollectionInfo(ctx, collection); err != nil {
		return nil, "", fmt.Errorf("resolve collection: %w", err)
	}
	if limit <= 0 {
		limit = s.defaultBatch
	}
	if limit > s.maxBatch {
		limit = s.maxBatch
	}
	cursor, err := decodeOffset(offset)
	if err != nil {
		return nil, "", err
	}

	page := make([]domain.Point, 0, limit)
	for len(page) < limit {
		records, err := s.bridge.ScanPoints(ctx, collection, cursor, limit)
		if err != nil {
			return nil, "", fmt.Errorf("scan points: %w", err)
		}
		if len(records) == 0 {
			return page, "", nil
		}
		cursor = records[len(records)-1].ID
		exhausted := len(records) < limit

		points, err := s.hydrate(ctx, collection, records, opts)
		if err != nil {
			return nil, "", err
		}
		for _, p := range points {
			if opts.Filter != nil && !opts.Filter.Matches(p) {
				continue
			}
			page = append(page, p)
			if len(page) == limit {
				return page, encodeOffset(p.ID()), nil
			}
		}
		if exhausted {
			return page, "", nil
		}
	}
	return page, encodeOffset(cursor), nil
}

// hydrate attaches payloads and strips vectors per the options. Filter
// evaluation always needs payloads, so they are loaded whenever a filter
// is present even if the caller did not ask for them.
func (s *Service) hydrate(ctx context.Context, collection string, records []kernel.VectorRecord, opts Options) ([]domain.Point, error) {
	if len(records) == 0 {
		return []domain.Point{}, nil
	}
	ids := make([]uint64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}

	var metas map[uint64]domain.Payload
	if opts.WithPayload || opts.Filter != nil {
		var err error
		metas, err = s.payloads.GetMulti(ctx, collection, ids)
		if err != nil {
			return nil, fmt.Errorf("load payloads: %w", err)
		}
	}

	points := make([]domain.Point, len(records))
	for i, r := range records {
		vector := r.Vector
		if !opts.WithVector {
			vector = nil
		}
		var meta domain.Payload
		if metas != nil {
			meta = metas[r.ID]
		}
		points[i] = domain.RestoredPoint(r.ID, vector, meta)
	}
	return points, nil
}

func (s *Service) lockFor(id string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func encodeOffset(cursor uint64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatUint(cursor, 10)))
}

func decodeOffset(offset string) (uint64, error) {
	if offset == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(offset)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadOffset, err)
	}
	cursor, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadOffset, err)
	}
	return cursor, nil
}
