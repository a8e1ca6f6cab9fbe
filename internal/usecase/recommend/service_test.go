package recommend

import (
	"context"
	"errors"
	"math"
	"testing"

	dbmemory "github.com/kailas-cloud/kvecd/internal/db/memory"
	"github.com/kailas-cloud/kvecd/internal/domain"
	"github.com/kailas-cloud/kvecd/internal/kernel"
	"github.com/kailas-cloud/kvecd/internal/repository/payload"
	"github.com/kailas-cloud/kvecd/internal/usecase/search"
)

func newTestService(t *testing.T, distance domain.Distance, ids []uint64, vectors [][]float32) *Service {
	t.Helper()
	ctx := context.Background()
	bridge := kernel.NewMemory()
	if err := bridge.CreateCollection(ctx, "products", len(vectors[0]), distance); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	if err := bridge.InsertPoints(ctx, "products", ids, vectors); err != nil {
		t.Fatalf("insert: %v", err)
	}
	searcher := search.New(bridge, payload.New(dbmemory.NewStore(), "kvecd:"), search.DefaultOverfetch)
	return New(bridge, searcher, DefaultLambda)
}

func resultIDs(points []domain.ScoredPoint) []uint64 {
	ids := make([]uint64, len(points))
	for i, p := range points {
		ids[i] = p.ID()
	}
	return ids
}

func TestService_AverageExcludesExamples(t *testing.T) {
	s := newTestService(t, domain.DistanceDot,
		[]uint64{1, 2, 3, 4},
		[][]float32{{4, 0}, {3, 0}, {2, 0}, {1, 0}},
	)

	got, err := s.Recommend(context.Background(), Request{
		Collection: "products",
		Positive:   []uint64{1},
		Limit:      2,
	})
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	ids := resultIDs(got)
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 3 {
		t.Errorf("ids = %v, want [2 3]", ids)
	}
}

func TestService_NegativeExamplesSteerAway(t *testing.T) {
	// Positive pulls toward the x axis, negative pushes off the y axis.
	s := newTestService(t, domain.DistanceDot,
		[]uint64{1, 2, 3, 4},
		[][]float32{{1, 0}, {0, 1}, {0.9, -0.1}, {0.1, 0.9}},
	)

	got, err := s.Recommend(context.Background(), Request{
		Collection: "products",
		Positive:   []uint64{1},
		Negative:   []uint64{2},
		Limit:      2,
	})
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	ids := resultIDs(got)
	if len(ids) != 2 || ids[0] != 3 {
		t.Errorf("ids = %v, want the anti-negative point (3) first", ids)
	}
}

func TestAverageQuery(t *testing.T) {
	got := averageQuery([][]float32{{1, 0}}, [][]float32{{0, 1}})
	if len(got) != 2 || got[0] != 1 || got[1] != -1 {
		t.Errorf("averageQuery = %v, want [1 -1]", got)
	}

	got = averageQuery([][]float32{{1, 0}, {0, 1}}, nil)
	if len(got) != 2 || got[0] != 0.5 || got[1] != 0.5 {
		t.Errorf("averageQuery without negatives = %v, want [0.5 0.5]", got)
	}
}

func TestService_BestScoreMergesPerPositiveMaxima(t *testing.T) {
	s := newTestService(t, domain.DistanceDot,
		[]uint64{1, 2, 3, 4, 5},
		[][]float32{{1, 0}, {0.9, 0.2}, {0.2, 0.8}, {0, 1}, {0.5, 0.5}},
	)

	got, err := s.Recommend(context.Background(), Request{
		Collection: "products",
		Positive:   []uint64{1, 4},
		Negative:   []uint64{5},
		Strategy:   StrategyBestScore,
		Limit:      3,
	})
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].ID() != 2 || got[1].ID() != 3 {
		t.Errorf("ids = %v, want [2 3]", resultIDs(got))
	}
	// Each candidate carries its best similarity across the per-positive
	// searches: 0.9 for point 2 (vs positive 1), 0.8 for point 3 (vs
	// positive 4). The negative example is excluded, never subtracted.
	if math.Abs(got[0].Score()-0.9) > 1e-6 {
		t.Errorf("score of 2 = %f, want 0.9", got[0].Score())
	}
	if math.Abs(got[1].Score()-0.8) > 1e-6 {
		t.Errorf("score of 3 = %f, want 0.8", got[1].Score())
	}
}

func TestService_DiversityAvoidsNearDuplicates(t *testing.T) {
	// 2 and 3 are near duplicates; 4 is orthogonal but less relevant.
	s := newTestService(t, domain.DistanceDot,
		[]uint64{1, 2, 3, 4},
		[][]float32{{1, 0}, {0.95, 0}, {0.94, 0}, {0, 0.9}},
	)
	// Full-strength penalty so the near-duplicate loses to the orthogonal point.
	s.lambda = 1
	ctx := context.Background()

	base := Request{Collection: "products", Positive: []uint64{1}, Limit: 2}

	plain, err := s.Recommend(ctx, base)
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if ids := resultIDs(plain); ids[0] != 2 || ids[1] != 3 {
		t.Errorf("average ids = %v, want [2 3]", ids)
	}

	div := base
	div.Strategy = StrategyDiversity
	diverse, err := s.Recommend(ctx, div)
	if err != nil {
		t.Fatalf("diversity: %v", err)
	}
	if ids := resultIDs(diverse); ids[0] != 2 || ids[1] != 4 {
		t.Errorf("diversity ids = %v, want [2 4]", ids)
	}
	if diverse[0].Vector() != nil {
		t.Errorf("vector leaked without with_vector: %v", diverse[0].Vector())
	}
}

func TestService_DiversityPoolsPerPositive(t *testing.T) {
	// The two positives point in opposite directions, so their mean is the
	// zero vector and a single averaged search ranks nothing. Per-positive
	// pooling still reaches each positive's own neighborhood.
	s := newTestService(t, domain.DistanceDot,
		[]uint64{1, 2, 3, 4, 5},
		[][]float32{{1, 0}, {-1, 0}, {0.9, 0}, {-0.9, 0}, {0, 0.1}},
	)

	got, err := s.Recommend(context.Background(), Request{
		Collection: "products",
		Positive:   []uint64{1, 2},
		Strategy:   StrategyDiversity,
		Limit:      2,
	})
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	ids := resultIDs(got)
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 4 {
		t.Fatalf("ids = %v, want [3 4]", ids)
	}
	for _, p := range got {
		if p.Score() < 0.8 {
			t.Errorf("score of %d = %f, want its per-positive similarity", p.ID(), p.Score())
		}
	}
}

func TestService_UnknownStrategy(t *testing.T) {
	s := newTestService(t, domain.DistanceDot, []uint64{1}, [][]float32{{1, 0}})
	_, err := s.Recommend(context.Background(), Request{
		Collection: "products",
		Positive:   []uint64{1},
		Strategy:   "mystery",
		Limit:      1,
	})
	if !errors.Is(err, domain.ErrUnsupportedStrategy) {
		t.Errorf("error = %v, want ErrUnsupportedStrategy", err)
	}
}

func TestService_MissingExample(t *testing.T) {
	s := newTestService(t, domain.DistanceDot, []uint64{1}, [][]float32{{1, 0}})
	_, err := s.Recommend(context.Background(), Request{
		Collection: "products",
		Positive:   []uint64{99},
		Limit:      1,
	})
	if !errors.Is(err, domain.ErrPointNotFound) {
		t.Errorf("error = %v, want ErrPointNotFound", err)
	}
}

func TestService_NoPositives(t *testing.T) {
	s := newTestService(t, domain.DistanceDot, []uint64{1}, [][]float32{{1, 0}})
	_, err := s.Recommend(context.Background(), Request{
		Collection: "products",
		Negative:   []uint64{1},
		Limit:      1,
	})
	if err == nil {
		t.Error("expected an error without positive examples")
	}
}

// circlePoints lays ids 1..n on the unit circle, 36 degrees apart.
func circlePoints(n int) ([]uint64, [][]float32) {
	ids := make([]uint64, n)
	vectors := make([][]float32, n)
	for i := range ids {
		ids[i] = uint64(i + 1)
		angle := float64(i) * 36 * math.Pi / 180
		vectors[i] = []float32{float32(math.Cos(angle)), float32(math.Sin(angle))}
	}
	return ids, vectors
}

func TestService_DiscoverDepthExtendsReach(t *testing.T) {
	ids, vectors := circlePoints(6)
	s := newTestService(t, domain.DistanceCosine, ids, vectors)
	ctx := context.Background()

	shallow, err := s.Discover(ctx, "products", 1, 10, 1)
	if err != nil {
		t.Fatalf("discover depth 1: %v", err)
	}
	shallowIDs := resultIDs(shallow)
	if len(shallowIDs) != 3 {
		t.Fatalf("depth 1 ids = %v, want the 3 nearest neighbors", shallowIDs)
	}
	for _, id := range shallowIDs {
		if id == 1 {
			t.Error("target leaked into results")
		}
		if id > 4 {
			t.Errorf("depth 1 reached id %d", id)
		}
	}

	deep, err := s.Discover(ctx, "products", 1, 10, 2)
	if err != nil {
		t.Fatalf("discover depth 2: %v", err)
	}
	deepIDs := resultIDs(deep)
	if len(deepIDs) != 5 {
		t.Fatalf("depth 2 ids = %v, want all 5 non-target points", deepIDs)
	}
	if deepIDs[0] != 2 {
		t.Errorf("best hit = %d, want the nearest neighbor", deepIDs[0])
	}
	for i := 1; i < len(deep); i++ {
		if deep[i].Score() > deep[i-1].Score() {
			t.Errorf("scores not descending at %d", i)
		}
	}
}

func TestService_DiscoverRespectsLimit(t *testing.T) {
	ids, vectors := circlePoints(6)
	s := newTestService(t, domain.DistanceCosine, ids, vectors)

	got, err := s.Discover(context.Background(), "products", 1, 2, 3)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len(got) = %d, want 2", len(got))
	}
}

func TestService_DiscoverUnknownTarget(t *testing.T) {
	s := newTestService(t, domain.DistanceDot, []uint64{1}, [][]float32{{1, 0}})
	_, err := s.Discover(context.Background(), "products", 99, 5, 2)
	if !errors.Is(err, domain.ErrPointNotFound) {
		t.Errorf("error = %v, want ErrPointNotFound", err)
	}
}
