package kernel

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/kvecd/internal/domain"
)

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	if err := m.CreateCollection(context.Background(), "test", 4, domain.DistanceCosine); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	return m
}

func TestMemory_CreateCollection_Duplicate(t *testing.T) {
	m := newTestMemory(t)
	err := m.CreateCollection(context.Background(), "test", 4, domain.DistanceCosine)
	if !errors.Is(err, domain.ErrCollectionExists) {
		t.Errorf("duplicate create error = %v", err)
	}
	var kerr *Error
	if !errors.As(err, &kerr) {
		t.Fatalf("error %v is not a kernel error", err)
	}
	if kerr.Op != "CREATE_COLLECTION" || kerr.Code != -17 {
		t.Errorf("kernel error = %+v", kerr)
	}
}

func TestMemory_NameReuseAfterDelete(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	if err := m.DeleteCollection(ctx, "test"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.CreateCollection(ctx, "test", 8, domain.DistanceDot); err != nil {
		t.Fatalf("recreate after delete: %v", err)
	}
	info, err := m.CollectionInfo(ctx, "test")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Dimension != 8 || info.Distance != domain.DistanceDot {
		t.Errorf("recreated collection info = %+v", info)
	}
}

func TestMemory_UnknownCollection(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if _, err := m.CollectionInfo(ctx, "nope"); !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Errorf("info error = %v", err)
	}
	if err := m.DeleteCollection(ctx, "nope"); !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Errorf("delete error = %v", err)
	}
	if _, err := m.Search(ctx, "nope", []float32{1}, 1); !errors.Is(err, domain.ErrCollectionNotFound) {
		t.Errorf("search error = %v", err)
	}
}

func TestMemory_InsertAndCount(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	err := m.InsertPoints(ctx, "test",
		[]uint64{1, 2, 3},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}},
	)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	info, err := m.CollectionInfo(ctx, "test")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.PointCount != 3 {
		t.Errorf("PointCount = %d", info.PointCount)
	}

	// Overwrite is not a new point.
	if err := m.InsertPoints(ctx, "test", []uint64{2}, [][]float32{{0, 0, 0, 1}}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	info, _ = m.CollectionInfo(ctx, "test")
	if info.PointCount != 3 {
		t.Errorf("PointCount after overwrite = %d", info.PointCount)
	}
}

func TestMemory_InsertDimensionMismatch(t *testing.T) {
	m := newTestMemory(t)
	err := m.InsertPoints(context.Background(), "test", []uint64{1}, [][]float32{{1, 2}})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("mismatched insert error = %v", err)
	}
	info, _ := m.CollectionInfo(context.Background(), "test")
	if info.PointCount != 0 {
		t.Error("failed insert left partial state")
	}
}

func TestMemory_SearchCosineSelf(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	vectors := [][]float32{
		{1, 0, 0, 0},
		{0.9, 0.1, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0.5, 0.5, 0.5, 0.5},
	}
	ids := []uint64{10, 20, 30, 40, 50}
	if err := m.InsertPoints(ctx, "test", ids, vectors); err != nil {
		t.Fatalf("insert: %v", err)
	}

	hits, err := m.Search(ctx, "test", vectors[0], 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("len(hits) = %d", len(hits))
	}
	if hits[0].ID != 10 {
		t.Errorf("top hit = %d, want 10", hits[0].ID)
	}
	if hits[0].Score < 0.999 {
		t.Errorf("self-similarity score = %f, want >= 0.999", hits[0].Score)
	}
}

func TestMemory_SearchEuclideanOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.CreateCollection(ctx, "l2", 2, domain.DistanceEuclidean); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.InsertPoints(ctx, "l2",
		[]uint64{1, 2, 3},
		[][]float32{{0, 0}, {3, 4}, {1, 1}},
	); err != nil {
		t.Fatalf("insert: %v", err)
	}

	hits, err := m.Search(ctx, "l2", []float32{0, 0}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	wantOrder := []uint64{1, 3, 2}
	for i, want := range wantOrder {
		if hits[i].ID != want {
			t.Errorf("hit %d = %d, want %d", i, hits[i].ID, want)
		}
	}
	if hits[0].Score != 0 {
		t.Errorf("distance to self = %f", -hits[0].Score)
	}
}

func TestMemory_ScanPoints(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	ids := []uint64{5, 1, 9, 3, 7}
	vectors := make([][]float32, len(ids))
	for i := range vectors {
		vectors[i] = []float32{float32(i), 0, 0, 0}
	}
	if err := m.InsertPoints(ctx, "test", ids, vectors); err != nil {
		t.Fatalf("insert: %v", err)
	}

	records, err := m.ScanPoints(ctx, "test", 0, 3)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	got := []uint64{records[0].ID, records[1].ID, records[2].ID}
	want := []uint64{1, 3, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("first page ids = %v, want %v", got, want)
		}
	}

	records, err = m.ScanPoints(ctx, "test", 5, 10)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(records) != 2 || records[0].ID != 7 || records[1].ID != 9 {
		t.Errorf("second page = %+v", records)
	}
}

func TestMemory_GetPoints_SkipsMissing(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	if err := m.InsertPoints(ctx, "test", []uint64{1}, [][]float32{{1, 2, 3, 4}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	records, err := m.GetPoints(ctx, "test", []uint64{1, 2})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(records) != 1 || records[0].ID != 1 {
		t.Errorf("records = %+v", records)
	}
	if records[0].Vector[3] != 4 {
		t.Errorf("vector = %v", records[0].Vector)
	}
}
