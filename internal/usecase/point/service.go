// Package point implements point storage operations: upsert, retrieval
// and deletion. Vectors live in the kernel device, payloads beside it.
package point

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/kvecd/internal/domain"
)

// Input is one point as submitted by a caller, before dimension validation.
type Input struct {
	ID      uint64
	Vector  []float32
	Payload domain.Payload
}

// Service handles point CRUD operations.
type Service struct {
	bridge   Bridge
	payloads PayloadStore
	maxBatch int
}

// New creates a point service. maxBatch caps one device insert; larger
// upserts are chunked.
func New(bridge Bridge, payloads PayloadStore, maxBatch int) *Service {
	return &Service{bridge: bridge, payloads: payloads, maxBatch: maxBatch}
}

// Upsert validates every point against the collection dimension, then
// writes vectors to the device and payloads to the store. Validation runs
// before any write so a bad point never leaves partial state. Returns the
// number of points written.
func (s *Service) Upsert(ctx context.Context, collection string, inputs []Input) (int, error) {
	if len(inputs) == 0 {
		return 0, nil
	}
	info, err := s.bridge.CollectionInfo(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("resolve collection: %w", err)
	}

	points := make([]domain.Point, len(inputs))
	for i, in := range inputs {
		p, err := domain.NewPoint(in.ID, in.Vector, in.Payload, info.Dimension)
		if err != nil {
			return 0, fmt.Errorf("validate point: %w", err)
		}
		points[i] = p
	}

	for start := 0; start < len(points); start += s.maxBatch {
		end := min(start+s.maxBatch, len(points))
		chunk := points[start:end]

		ids := make([]uint64, len(chunk))
		vectors := make([][]float32, len(chunk))
		for i, p := range chunk {
			ids[i] = p.ID()
			vectors[i] = p.Vector()
		}
		if err := s.bridge.InsertPoints(ctx, collection, ids, vectors); err != nil {
			return start, fmt.Errorf("insert points: %w", err)
		}
		if err := s.payloads.SetMulti(ctx, collection, chunk); err != nil {
			return start, fmt.Errorf("store payloads: %w", err)
		}
	}
	return len(points), nil
}

// Get retrieves points by id. Missing ids are silently skipped; results
// keep the device order. Vectors are dropped unless withVector is set.
func (s *Service) Get(ctx context.Context, collection string, ids []uint64, withVector bool) ([]domain.Point, error) {
	records, err := s.bridge.GetPoints(ctx, collection, ids)
	if err != nil {
		return nil, fmt.Errorf("get points: %w", err)
	}
	if len(records) == 0 {
		return []domain.Point{}, nil
	}

	found := make([]uint64, len(records))
	for i, r := range records {
		found[i] = r.ID
	}
	metas, err := s.payloads.GetMulti(ctx, collection, found)
	if err != nil {
		return nil, fmt.Errorf("get payloads: %w", err)
	}

	points := make([]domain.Point, len(records))
	for i, r := range records {
		vector := r.Vector
		if !withVector {
			vector = nil
		}
		points[i] = domain.RestoredPoint(r.ID, vector, metas[r.ID])
	}
	return points, nil
}

// Delete removes points from the device and drops their payloads.
func (s *Service) Delete(ctx context.Context, collection string, ids []uint64) error {
	if err := s.bridge.DeletePoints(ctx, collection, ids); err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	if err := s.payloads.Delete(ctx, collection, ids); err != nil {
		return fmt.Errorf("delete payloads: %w", err)
	}
	return nil
}
