// Package batch fans single-query operations out over many queries,
// collections, or point chunks. Sub-operations are isolated: one failing
// slot never poisons its siblings, and slots are correlated by index.
package batch

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/kvecd/internal/domain"
	domainbatch "github.com/kailas-cloud/kvecd/internal/domain/batch"
	"github.com/kailas-cloud/kvecd/internal/usecase/point"
	"github.com/kailas-cloud/kvecd/internal/usecase/search"
)

// DefaultConcurrency bounds parallel sub-searches when none is configured.
const DefaultConcurrency = 8

// SearchQuery is one slot of a batch search.
type SearchQuery struct {
	Vector  []float32
	Limit   int
	Options search.Options
}

// Group is one bucket of a grouped search: the payload value shared by its
// points plus the best-scoring points carrying it.
type Group struct {
	Key    string
	Points []domain.ScoredPoint
}

// CollectionResult is one collection's slot of a cross-collection search.
type CollectionResult struct {
	Collection string
	Points     []domain.ScoredPoint
	Err        error
}

// Service handles batched operations.
type Service struct {
	searcher    Searcher
	upserter    Upserter
	concurrency int
}

// New creates a batch service. concurrency bounds parallel sub-operations;
// non-positive values fall back to the default.
func New(searcher Searcher, upserter Upserter, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Service{searcher: searcher, upserter: upserter, concurrency: concurrency}
}

// Search runs every query concurrently against one collection. The result
// slice is ordered by input index. A slot whose sub-search never started
// because the batch deadline had already passed is marked cancelled.
func (s *Service) Search(ctx context.Context, collection string, queries []SearchQuery) []domainbatch.Result[[]domain.ScoredPoint] {
	results := make([]domainbatch.Result[[]domain.ScoredPoint], len(queries))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = domainbatch.NewCancelled[[]domain.ScoredPoint](i)
				return nil
			}
			hits, err := s.searcher.Search(ctx, collection, q.Vector, q.Limit, q.Options)
			if err != nil {
				results[i] = domainbatch.NewError[[]domain.ScoredPoint](i, err)
				return nil
			}
			results[i] = domainbatch.NewOK(i, hits)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// GroupedSearch buckets search hits by a payload field and keeps the best
// groupSize hits per bucket. Groups are ordered by their best hit; at most
// limit groups are returned. Hits lacking the field are dropped.
func (s *Service) GroupedSearch(ctx context.Context, collection string, vector []float32, groupBy string, limit, groupSize int, opts search.Options) ([]Group, error) {
	if groupBy == "" {
		return nil, fmt.Errorf("group_by field is required")
	}
	if limit <= 0 || groupSize <= 0 {
		return nil, fmt.Errorf("limit and group_size must be positive")
	}

	// Grouping needs payloads and a wide net: every kept group costs up
	// to groupSize hits, plus slack for hits that miss the field.
	opts.WithPayload = true
	hits, err := s.searcher.Search(ctx, collection, vector, limit*groupSize*2, opts)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*Group)
	var order []string
	for _, h := range hits {
		raw, ok := h.Payload()[groupBy]
		if !ok {
			continue
		}
		key := cast.ToString(raw)
		grp, ok := byKey[key]
		if !ok {
			grp = &Group{Key: key}
			byKey[key] = grp
			order = append(order, key)
		}
		if len(grp.Points) < groupSize {
			grp.Points = append(grp.Points, h)
		}
	}

	// Hits arrive best first, so each group's first point is its best and
	// first-seen order already ranks groups by best score.
	sort.SliceStable(order, func(i, j int) bool {
		return byKey[order[i]].Points[0].Score() > byKey[order[j]].Points[0].Score()
	})
	if len(order) > limit {
		order = order[:limit]
	}
	groups := make([]Group, len(order))
	for i, key := range order {
		groups[i] = *byKey[key]
	}
	return groups, nil
}

// Upsert loads points in sequential chunks and stops at the first failed
// chunk, reporting how many points were durably written before it.
func (s *Service) Upsert(ctx context.Context, collection string, inputs []point.Input, chunkSize int) (int, error) {
	if chunkSize <= 0 {
		return 0, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	written := 0
	for start := 0; start < len(inputs); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		end := min(start+chunkSize, len(inputs))
		n, err := s.upserter.Upsert(ctx, collection, inputs[start:end])
		written += n
		if err != nil {
			return written, fmt.Errorf("chunk at %d: %w", start, err)
		}
	}
	return written, nil
}

// CollectionSearch runs the same query concurrently against several
// collections. Results keep the input order; each collection fails or
// succeeds on its own.
func (s *Service) CollectionSearch(ctx context.Context, collections []string, vector []float32, limit int, opts search.Options) []CollectionResult {
	results := make([]CollectionResult, len(collections))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, name := range collections {
		i, name := i, name
		g.Go(func() error {
			hits, err := s.searcher.Search(ctx, name, vector, limit, opts)
			results[i] = CollectionResult{Collection: name, Points: hits, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
