// Package recommend implements example-based recommendation strategies
// and graph-style discovery on top of plain similarity search.
package recommend

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/kailas-cloud/kvecd/internal/domain"
	"github.com/kailas-cloud/kvecd/internal/usecase/search"
)

// Strategy names accepted by Recommend. Empty defaults to StrategyAverage.
const (
	StrategyAverage   = "average_vector"
	StrategyCentroid  = "centroid"
	StrategyBestScore = "best_score"
	StrategyDiversity = "diversity"
)

// DefaultLambda weights the similarity penalty in the diversity
// strategy. 0 is pure relevance; 1 penalizes a near-duplicate by its
// full similarity.
const DefaultLambda = 0.5

// diversityPoolFactor sizes the candidate pool reranked by the diversity
// strategy relative to the requested limit.
const diversityPoolFactor = 3

// discoverBeamWidth is how many hits per level seed the next discovery hop.
const discoverBeamWidth = 3

// Request is one recommendation call.
type Request struct {
	Collection string
	Positive   []uint64
	Negative   []uint64
	Strategy   string
	Limit      int
	Options    search.Options
}

// Service handles recommendation and discovery.
type Service struct {
	bridge   Bridge
	searcher Searcher
	lambda   float64
}

// New creates a recommendation service. lambda outside (0, 1] falls back
// to the default.
func New(bridge Bridge, searcher Searcher, lambda float64) *Service {
	if lambda <= 0 || lambda > 1 {
		lambda = DefaultLambda
	}
	return &Service{bridge: bridge, searcher: searcher, lambda: lambda}
}

// Recommend finds points similar to the positive examples and dissimilar
// to the negative ones. The examples themselves never appear in results.
func (s *Service) Recommend(ctx context.Context, req Request) ([]domain.ScoredPoint, error) {
	if len(req.Positive) == 0 {
		return nil, fmt.Errorf("at least one positive example is required")
	}
	if req.Limit <= 0 {
		return nil, fmt.Errorf("recommendation limit must be positive, got %d", req.Limit)
	}

	positive, err := s.exampleVectors(ctx, req.Collection, req.Positive)
	if err != nil {
		return nil, err
	}
	negative, err := s.exampleVectors(ctx, req.Collection, req.Negative)
	if err != nil {
		return nil, err
	}

	exclude := make(map[uint64]struct{}, len(req.Positive)+len(req.Negative))
	for _, id := range req.Positive {
		exclude[id] = struct{}{}
	}
	for _, id := range req.Negative {
		exclude[id] = struct{}{}
	}

	switch req.Strategy {
	case "", StrategyAverage:
		return s.queryVectorSearch(ctx, req, averageQuery(positive, negative), exclude)
	case StrategyCentroid:
		return s.queryVectorSearch(ctx, req, centroid(positive), exclude)
	case StrategyBestScore:
		return s.bestScore(ctx, req, positive, exclude)
	case StrategyDiversity:
		return s.diversity(ctx, req, positive, exclude)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedStrategy, req.Strategy)
	}
}

// exampleVectors resolves example ids to vectors, failing if any is missing.
func (s *Service) exampleVectors(ctx context.Context, collection string, ids []uint64) ([][]float32, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	records, err := s.bridge.GetPoints(ctx, collection, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve examples: %w", err)
	}
	found := make(map[uint64][]float32, len(records))
	for _, r := range records {
		found[r.ID] = r.Vector
	}
	vectors := make([][]float32, len(ids))
	for i, id := range ids {
		v, ok := found[id]
		if !ok {
			return nil, fmt.Errorf("%w: example %d", domain.ErrPointNotFound, id)
		}
		vectors[i] = v
	}
	return vectors, nil
}

// queryVectorSearch runs one search with a synthetic query vector and
// drops the examples from the results.
func (s *Service) queryVectorSearch(ctx context.Context, req Request, query []float32, exclude map[uint64]struct{}) ([]domain.ScoredPoint, error) {
	hits, err := s.searcher.Search(ctx, req.Collection, query, req.Limit+len(exclude), req.Options)
	if err != nil {
		return nil, err
	}
	return truncate(dropExcluded(hits, exclude), req.Limit), nil
}

// bestScorePool searches once per positive vector and merges the hits,
// keeping each candidate's best score across the calls. Negatives never
// issue searches; they only contribute to the exclusion set.
func (s *Service) bestScorePool(ctx context.Context, req Request, positive [][]float32, exclude map[uint64]struct{}, perQuery int, withVector bool) ([]domain.ScoredPoint, error) {
	opts := req.Options
	if withVector {
		opts.WithVector = true
	}

	best := make(map[uint64]domain.ScoredPoint)
	for _, q := range positive {
		hits, err := s.searcher.Search(ctx, req.Collection, q, perQuery, opts)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			if _, skip := exclude[h.ID()]; skip {
				continue
			}
			if prev, ok := best[h.ID()]; !ok || h.Score() > prev.Score() {
				best[h.ID()] = h
			}
		}
	}

	out := make([]domain.ScoredPoint, 0, len(best))
	for _, h := range best {
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score() != out[j].Score() {
			return out[i].Score() > out[j].Score()
		}
		return out[i].ID() < out[j].ID()
	})
	return out, nil
}

// bestScore runs one search per positive example and keeps each
// candidate's best score across the calls.
func (s *Service) bestScore(ctx context.Context, req Request, positive [][]float32, exclude map[uint64]struct{}) ([]domain.ScoredPoint, error) {
	pool, err := s.bestScorePool(ctx, req, positive, exclude, req.Limit+len(exclude), false)
	if err != nil {
		return nil, err
	}
	return truncate(pool, req.Limit), nil
}

// diversity pools candidates the best_score way, then reranks with
// maximal marginal relevance: each pick maximizes relevance minus lambda
// times its similarity to what was already picked.
func (s *Service) diversity(ctx context.Context, req Request, positive [][]float32, exclude map[uint64]struct{}) ([]domain.ScoredPoint, error) {
	pool, err := s.bestScorePool(ctx, req, positive, exclude, req.Limit*diversityPoolFactor+len(exclude), true)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return []domain.ScoredPoint{}, nil
	}

	picked := make([]domain.ScoredPoint, 0, req.Limit)
	remaining := append([]domain.ScoredPoint(nil), pool...)
	for len(picked) < req.Limit && len(remaining) > 0 {
		bestIdx, bestVal := 0, math.Inf(-1)
		for i, cand := range remaining {
			penalty := 0.0
			for _, p := range picked {
				penalty = math.Max(penalty, cosine(cand.Vector(), p.Vector()))
			}
			val := cand.Score() - s.lambda*penalty
			if val > bestVal {
				bestIdx, bestVal = i, val
			}
		}
		picked = append(picked, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	if !req.Options.WithVector {
		for i, p := range picked {
			picked[i] = domain.NewScoredPoint(domain.RestoredPoint(p.ID(), nil, p.Payload()), p.Score())
		}
	}
	return picked, nil
}

// Discover walks outward from a target point: each hop searches the
// near neighborhood of the previous hop's hits, skipping everything
// already visited. A point keeps the score from the hop that found it,
// so results closest to the walk rank first. Reach is governed by depth
// and the beam width, not by limit; limit only truncates the result.
func (s *Service) Discover(ctx context.Context, collection string, target uint64, limit, depth int) ([]domain.ScoredPoint, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("discovery limit must be positive, got %d", limit)
	}
	if depth <= 0 {
		depth = 1
	}

	seeds, err := s.exampleVectors(ctx, collection, []uint64{target})
	if err != nil {
		return nil, err
	}

	visited := map[uint64]struct{}{target: {}}
	best := make(map[uint64]domain.ScoredPoint)
	frontier := seeds

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next [][]float32
		for _, q := range frontier {
			// Window past the already-visited points to reach beam new ones.
			hits, err := s.searcher.Search(ctx, collection, q, discoverBeamWidth+len(visited), search.Options{WithVector: true})
			if err != nil {
				return nil, err
			}
			expanded := 0
			for _, h := range hits {
				if _, seen := visited[h.ID()]; seen {
					continue
				}
				visited[h.ID()] = struct{}{}
				best[h.ID()] = h
				if expanded < discoverBeamWidth {
					next = append(next, h.Vector())
					expanded++
				}
			}
		}
		frontier = next
	}

	out := make([]domain.ScoredPoint, 0, len(best))
	for _, p := range best {
		out = append(out, domain.NewScoredPoint(domain.RestoredPoint(p.ID(), nil, p.Payload()), p.Score()))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score() != out[j].Score() {
			return out[i].Score() > out[j].Score()
		}
		return out[i].ID() < out[j].ID()
	})
	return truncate(out, limit), nil
}

// averageQuery builds the recommendation query: the positive mean minus
// the negative mean (the positive mean alone if there are no negatives).
func averageQuery(positive, negative [][]float32) []float32 {
	avgPos := centroid(positive)
	if len(negative) == 0 {
		return avgPos
	}
	avgNeg := centroid(negative)
	out := make([]float32, len(avgPos))
	for i := range out {
		out[i] = avgPos[i] - avgNeg[i]
	}
	return out
}

// centroid is the component-wise mean.
func centroid(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	out := make([]float32, len(vectors[0]))
	for _, v := range vectors {
		for i, c := range v {
			out[i] += c
		}
	}
	n := float32(len(vectors))
	for i := range out {
		out[i] /= n
	}
	return out
}

func dropExcluded(hits []domain.ScoredPoint, exclude map[uint64]struct{}) []domain.ScoredPoint {
	out := hits[:0]
	for _, h := range hits {
		if _, skip := exclude[h.ID()]; !skip {
			out = append(out, h)
		}
	}
	return out
}

func truncate(hits []domain.ScoredPoint, limit int) []domain.ScoredPoint {
	if len(hits) > limit {
		return hits[:limit]
	}
	return hits
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
