package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	dbmemory "github.com/kailas-cloud/kvecd/internal/db/memory"
	"github.com/kailas-cloud/kvecd/internal/domain"
	domainbatch "github.com/kailas-cloud/kvecd/internal/domain/batch"
	"github.com/kailas-cloud/kvecd/internal/kernel"
	"github.com/kailas-cloud/kvecd/internal/repository/payload"
	"github.com/kailas-cloud/kvecd/internal/usecase/point"
	"github.com/kailas-cloud/kvecd/internal/usecase/search"
)

// --- Mocks ---

var errBoom = errors.New("boom")

// mockSearcher fails any query whose first component is 13.
type mockSearcher struct{}

func (mockSearcher) Search(_ context.Context, _ string, vector []float32, limit int, _ search.Options) ([]domain.ScoredPoint, error) {
	if len(vector) > 0 && vector[0] == 13 {
		return nil, errBoom
	}
	hits := make([]domain.ScoredPoint, limit)
	for i := range hits {
		hits[i] = domain.NewScoredPoint(domain.RestoredPoint(uint64(i+1), nil, nil), 1)
	}
	return hits, nil
}

type mockUpserter struct {
	calls   int
	failOn  int
	partial int
}

func (m *mockUpserter) Upsert(_ context.Context, _ string, inputs []point.Input) (int, error) {
	m.calls++
	if m.calls == m.failOn {
		return m.partial, fmt.Errorf("device full: %w", errBoom)
	}
	return len(inputs), nil
}

// --- Tests ---

func TestService_SearchSlotIsolation(t *testing.T) {
	s := New(mockSearcher{}, nil, 4)

	queries := []SearchQuery{
		{Vector: []float32{1, 0}, Limit: 2},
		{Vector: []float32{13, 0}, Limit: 2},
		{Vector: []float32{2, 0}, Limit: 2},
	}
	results := s.Search(context.Background(), "products", queries)
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}

	for i, want := range []domainbatch.ItemStatus{
		domainbatch.StatusOK, domainbatch.StatusError, domainbatch.StatusOK,
	} {
		if results[i].Index() != i {
			t.Errorf("slot %d index = %d", i, results[i].Index())
		}
		if results[i].Status() != want {
			t.Errorf("slot %d status = %s, want %s", i, results[i].Status(), want)
		}
	}
	if !errors.Is(results[1].Err(), errBoom) {
		t.Errorf("slot 1 err = %v", results[1].Err())
	}
	if len(results[0].Value()) != 2 || len(results[2].Value()) != 2 {
		t.Error("healthy slots lost their hits")
	}
}

func TestService_SearchCancelledBatch(t *testing.T) {
	s := New(mockSearcher{}, nil, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := s.Search(ctx, "products", []SearchQuery{
		{Vector: []float32{1, 0}, Limit: 1},
		{Vector: []float32{2, 0}, Limit: 1},
	})
	for i, r := range results {
		if r.Status() != domainbatch.StatusCancelled {
			t.Errorf("slot %d status = %s, want cancelled", i, r.Status())
		}
		if !errors.Is(r.Err(), domain.ErrCancelled) {
			t.Errorf("slot %d err = %v, want ErrCancelled", i, r.Err())
		}
	}
}

func newGroupedFixture(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()

	bridge := kernel.NewMemory()
	if err := bridge.CreateCollection(ctx, "products", 2, domain.DistanceDot); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	payloads := payload.New(dbmemory.NewStore(), "kvecd:")

	ids := []uint64{1, 2, 3, 4, 5, 6, 7}
	vectors := [][]float32{{1, 0}, {2, 0}, {3, 0}, {4, 0}, {5, 0}, {6, 0}, {7, 0}}
	if err := bridge.InsertPoints(ctx, "products", ids, vectors); err != nil {
		t.Fatalf("insert: %v", err)
	}
	brands := map[uint64]string{1: "c", 2: "c", 3: "b", 4: "b", 5: "a", 6: "a"}
	points := make([]domain.Point, 0, len(brands))
	for id, brand := range brands {
		points = append(points, domain.RestoredPoint(id, nil, domain.Payload{"brand": brand}))
	}
	if err := payloads.SetMulti(ctx, "products", points); err != nil {
		t.Fatalf("payloads: %v", err)
	}

	searcher := search.New(bridge, payloads, search.DefaultOverfetch)
	return New(searcher, nil, 4)
}

func TestService_GroupedSearch(t *testing.T) {
	s := newGroupedFixture(t)

	groups, err := s.GroupedSearch(context.Background(), "products", []float32{1, 0}, "brand", 2, 2, search.Options{})
	if err != nil {
		t.Fatalf("grouped search: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(groups))
	}

	// Point 7 outranks everything but has no brand, so it never groups.
	if groups[0].Key != "a" || groups[1].Key != "b" {
		t.Errorf("group keys = %s, %s, want a, b", groups[0].Key, groups[1].Key)
	}
	wantIDs := [][]uint64{{6, 5}, {4, 3}}
	for gi, want := range wantIDs {
		if len(groups[gi].Points) != len(want) {
			t.Fatalf("group %d has %d points", gi, len(groups[gi].Points))
		}
		for pi, id := range want {
			if groups[gi].Points[pi].ID() != id {
				t.Errorf("group %d point %d = %d, want %d", gi, pi, groups[gi].Points[pi].ID(), id)
			}
		}
	}
}

func TestService_GroupedSearchValidation(t *testing.T) {
	s := New(mockSearcher{}, nil, 1)
	ctx := context.Background()

	if _, err := s.GroupedSearch(ctx, "c", []float32{1}, "", 2, 2, search.Options{}); err == nil {
		t.Error("expected error for empty group_by")
	}
	if _, err := s.GroupedSearch(ctx, "c", []float32{1}, "brand", 0, 2, search.Options{}); err == nil {
		t.Error("expected error for zero limit")
	}
}

func TestService_UpsertStopsAtFirstFailure(t *testing.T) {
	up := &mockUpserter{failOn: 2, partial: 1}
	s := New(mockSearcher{}, up, 1)

	inputs := make([]point.Input, 10)
	written, err := s.Upsert(context.Background(), "products", inputs, 3)
	if !errors.Is(err, errBoom) {
		t.Fatalf("error = %v, want errBoom", err)
	}
	// First chunk of 3 landed, the failing chunk wrote 1 before dying,
	// remaining chunks never ran.
	if written != 4 {
		t.Errorf("written = %d, want 4", written)
	}
	if up.calls != 2 {
		t.Errorf("upsert calls = %d, want 2", up.calls)
	}
}

func TestService_UpsertAllChunks(t *testing.T) {
	up := &mockUpserter{failOn: -1}
	s := New(mockSearcher{}, up, 1)

	written, err := s.Upsert(context.Background(), "products", make([]point.Input, 10), 4)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if written != 10 || up.calls != 3 {
		t.Errorf("written = %d, calls = %d, want 10, 3", written, up.calls)
	}
}

func TestService_CollectionSearch(t *testing.T) {
	ctx := context.Background()
	bridge := kernel.NewMemory()
	if err := bridge.CreateCollection(ctx, "present", 2, domain.DistanceDot); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	if err := bridge.InsertPoints(ctx, "present", []uint64{1}, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	searcher := search.New(bridge, payload.New(dbmemory.NewStore(), "kvecd:"), search.DefaultOverfetch)
	s := New(searcher, nil, 4)

	results := s.CollectionSearch(ctx, []string{"present", "missing"}, []float32{1, 0}, 5, search.Options{})
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Collection != "present" || results[0].Err != nil || len(results[0].Points) != 1 {
		t.Errorf("present slot = %+v", results[0])
	}
	if results[1].Collection != "missing" || !errors.Is(results[1].Err, domain.ErrCollectionNotFound) {
		t.Errorf("missing slot = %+v", results[1])
	}
}
