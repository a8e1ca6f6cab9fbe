package collection

import (
	"context"
	"errors"
	"testing"

	dbmemory "github.com/kailas-cloud/kvecd/internal/db/memory"
	"github.com/kailas-cloud/kvecd/internal/domain"
	"github.com/kailas-cloud/kvecd/internal/kernel"
	"github.com/kailas-cloud/kvecd/internal/repository/payload"
)

func newTestService() (*Service, *kernel.Memory, *payload.Repository) {
	bridge := kernel.NewMemory()
	payloads := payload.New(dbmemory.NewStore(), "kvecd:")
	return New(bridge, payloads, kernel.MaxDim), bridge, payloads
}

func TestService_CreateGet(t *testing.T) {
	s, _, _ := newTestService()
	ctx := context.Background()

	created, err := s.Create(ctx, "products", 4, "Cosine")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Name() != "products" || created.Dimension() != 4 {
		t.Errorf("created = %+v", created)
	}

	got, err := s.Get(ctx, "products")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Distance() != domain.DistanceCosine || got.PointCount() != 0 {
		t.Errorf("got = %+v", got)
	}
}

func TestService_CreateValidation(t *testing.T) {
	s, _, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name      string
		colName   string
		dimension int
		distance  string
		wantErr   error
	}{
		{"zero dimension", "c", 0, "Cosine", domain.ErrDimension},
		{"negative dimension", "c", -3, "Cosine", domain.ErrDimension},
		{"dimension over cap", "c", kernel.MaxDim + 1, "Cosine", domain.ErrDimension},
		{"unknown metric", "c", 4, "Manhattan", domain.ErrInvalidDistance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(ctx, tt.colName, tt.dimension, tt.distance)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_CreateDuplicate(t *testing.T) {
	s, _, _ := newTestService()
	ctx := context.Background()

	if _, err := s.Create(ctx, "dup", 4, "Dot"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := s.Create(ctx, "dup", 4, "Dot")
	if !errors.Is(err, domain.ErrCollectionExists) {
		t.Errorf("error = %v, want ErrCollectionExists", err)
	}
}

func TestService_GetUnknown(t *testing.T) {
	s, _, _ := newTestService()
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Errorf("error = %v, want ErrCollectionNotFound", err)
	}
}

func TestService_List(t *testing.T) {
	s, _, _ := newTestService()
	ctx := context.Background()

	_, _ = s.Create(ctx, "a", 4, "Cosine")
	_, _ = s.Create(ctx, "b", 8, "Euclidean")

	cols, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cols) != 2 {
		t.Fatalf("len(cols) = %d, want 2", len(cols))
	}
}

func TestService_DeleteClearsPayloads(t *testing.T) {
	s, bridge, payloads := newTestService()
	ctx := context.Background()

	_, _ = s.Create(ctx, "doomed", 2, "Cosine")
	_ = bridge.InsertPoints(ctx, "doomed", []uint64{1}, [][]float32{{1, 0}})
	_ = payloads.SetMulti(ctx, "doomed", []domain.Point{
		domain.RestoredPoint(1, nil, domain.Payload{"k": "v"}),
	})

	if err := s.Delete(ctx, "doomed"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.Get(ctx, "doomed"); !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Errorf("collection survived delete: %v", err)
	}
	left, err := payloads.GetMulti(ctx, "doomed", []uint64{1})
	if err != nil {
		t.Fatalf("get payloads: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("payloads survived delete: %v", left)
	}
}

func TestService_DeleteUnknown(t *testing.T) {
	s, _, _ := newTestService()
	if err := s.Delete(context.Background(), "missing"); !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Errorf("error = %v, want ErrCollectionNotFound", err)
	}
}
