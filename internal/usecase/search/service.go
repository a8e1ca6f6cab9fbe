// Package search implements similarity search over the kernel device,
// with adapter-side payload filtering. The device ranks by vector
// similarity only; filters are evaluated against stored payloads on an
// overfetched candidate set.
package search

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/kvecd/internal/domain"
	"github.com/kailas-cloud/kvecd/internal/domain/filter"
)

// DefaultOverfetch is the candidate multiplier for filtered searches.
const DefaultOverfetch = 4

// Options tune one search call.
type Options struct {
	Filter      *filter.Condition
	MinScore    *float64
	WithPayload bool
	WithVector  bool
}

// Service handles similarity search.
type Service struct {
	bridge    Bridge
	payloads  PayloadStore
	overfetch int
}

// New creates a search service. overfetch is the candidate multiplier for
// filtered searches; values below 2 fall back to the default.
func New(bridge Bridge, payloads PayloadStore, overfetch int) *Service {
	if overfetch < 2 {
		overfetch = DefaultOverfetch
	}
	return &Service{bridge: bridge, payloads: payloads, overfetch: overfetch}
}

// Search runs a k-nearest search and returns up to limit scored points,
// best first. Higher score is always better regardless of metric.
func (s *Service) Search(ctx context.Context, collection string, vector []float32, limit int, opts Options) ([]domain.ScoredPoint, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("search limit must be positive, got %d", limit)
	}
	info, err := s.bridge.CollectionInfo(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("resolve collection: %w", err)
	}
	if len(vector) != info.Dimension {
		return nil, fmt.Errorf(
			"%w: query has %d components, collection expects %d",
			domain.ErrDimensionMismatch, len(vector), info.Dimension,
		)
	}
	if info.PointCount == 0 {
		return []domain.ScoredPoint{}, nil
	}

	var hits []scoredID
	if opts.Filter == nil {
		hits, err = s.plainSearch(ctx, collection, vector, limit, opts.MinScore)
	} else {
		hits, err = s.filteredSearch(ctx, collection, vector, limit, int(info.PointCount), opts)
	}
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, collection, hits, opts)
}

type scoredID struct {
	id      uint64
	score   float64
	payload domain.Payload
}

func (s *Service) plainSearch(ctx context.Context, collection string, vector []float32, limit int, minScore *float64) ([]scoredID, error) {
	hits, err := s.bridge.Search(ctx, collection, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("device search: %w", err)
	}
	out := make([]scoredID, 0, len(hits))
	for _, h := range hits {
		if minScore != nil && h.Score < *minScore {
			continue
		}
		out = append(out, scoredID{id: h.ID, score: h.Score})
	}
	return out, nil
}

// filteredSearch overfetches candidates from the device, evaluates the
// filter against their payloads, and keeps the best limit matches. If one
// round does not fill the page and more candidates exist, it widens to the
// whole collection once.
func (s *Service) filteredSearch(ctx context.Context, collection string, vector []float32, limit, pointCount int, opts Options) ([]scoredID, error) {
	fetch := min(limit*s.overfetch, pointCount)
	for {
		hits, err := s.bridge.Search(ctx, collection, vector, fetch)
		if err != nil {
			return nil, fmt.Errorf("device search: %w", err)
		}

		ids := make([]uint64, len(hits))
		for i, h := range hits {
			ids[i] = h.ID
		}
		metas, err := s.payloads.GetMulti(ctx, collection, ids)
		if err != nil {
			return nil, fmt.Errorf("load candidate payloads: %w", err)
		}

		matched := make([]scoredID, 0, limit)
		for _, h := range hits {
			if opts.MinScore != nil && h.Score < *opts.MinScore {
				continue
			}
			if !opts.Filter.Matches(domain.RestoredPoint(h.ID, nil, metas[h.ID])) {
				continue
			}
			matched = append(matched, scoredID{id: h.ID, score: h.Score, payload: metas[h.ID]})
			if len(matched) == limit {
				return matched, nil
			}
		}
		if len(hits) < fetch || fetch >= pointCount {
			// The device is exhausted; the page stays short.
			return matched, nil
		}
		fetch = pointCount
	}
}

// hydrate attaches payloads and vectors per the options.
func (s *Service) hydrate(ctx context.Context, collection string, hits []scoredID, opts Options) ([]domain.ScoredPoint, error) {
	if len(hits) == 0 {
		return []domain.ScoredPoint{}, nil
	}
	ids := make([]uint64, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}

	var metas map[uint64]domain.Payload
	if opts.WithPayload {
		if opts.Filter != nil {
			// Filtered candidates already carry their payloads.
			metas = make(map[uint64]domain.Payload, len(hits))
			for _, h := range hits {
				if h.payload != nil {
					metas[h.id] = h.payload
				}
			}
		} else {
			var err error
			metas, err = s.payloads.GetMulti(ctx, collection, ids)
			if err != nil {
				return nil, fmt.Errorf("load payloads: %w", err)
			}
		}
	}

	var vectors map[uint64][]float32
	if opts.WithVector {
		records, err := s.bridge.GetPoints(ctx, collection, ids)
		if err != nil {
			return nil, fmt.Errorf("load vectors: %w", err)
		}
		vectors = make(map[uint64][]float32, len(records))
		for _, r := range records {
			vectors[r.ID] = r.Vector
		}
	}

	out := make([]domain.ScoredPoint, len(hits))
	for i, h := range hits {
		out[i] = domain.NewScoredPoint(domain.RestoredPoint(h.id, vectors[h.id], metas[h.id]), h.score)
	}
	return out, nil
}
