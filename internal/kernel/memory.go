package kernel

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kailas-cloud/kvecd/internal/domain"
)

// Memory is an in-process Bridge with the same semantics as the device.
// Vectors pass through the bit-pattern codec on the way in and out, so
// float narrowing behaves exactly as it does across the ioctl boundary.
// Used by tests and by the "memory" device driver.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	dimension int
	distance  domain.Distance
	points    map[uint64][]uint32 // encoded bit patterns
}

var _ Bridge = (*Memory)(nil)

// NewMemory creates an empty in-memory device.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memCollection)}
}

// CreateCollection allocates a collection with a fixed dimension and metric.
func (m *Memory) CreateCollection(ctx context.Context, name string, dimension int, distance domain.Distance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dimension <= 0 || dimension > MaxDim {
		return fmt.Errorf("%w: dimension %d", domain.ErrDimension, dimension)
	}
	if _, err := MetricCode(distance); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; ok {
		return statusError(OpCreateCollection, statusExists)
	}
	m.collections[name] = &memCollection{
		dimension: dimension,
		distance:  distance,
		points:    make(map[uint64][]uint32),
	}
	return nil
}

// DeleteCollection releases a collection. The name may be reused afterwards.
func (m *Memory) DeleteCollection(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		return statusError(OpDeleteCollection, statusNotFound)
	}
	delete(m.collections, name)
	return nil
}

// CollectionInfo reports a collection's dimension, metric, and point count.
func (m *Memory) CollectionInfo(ctx context.Context, name string) (CollectionInfo, error) {
	if err := ctx.Err(); err != nil {
		return CollectionInfo{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	col, ok := m.collections[name]
	if !ok {
		return CollectionInfo{}, statusError(OpCollectionInfo, statusNotFound)
	}
	return CollectionInfo{
		Name:       name,
		Dimension:  col.dimension,
		Distance:   col.distance,
		PointCount: uint64(len(col.points)),
	}, nil
}

// ListCollections returns all collections ordered by name.
func (m *Memory) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]CollectionInfo, 0, len(m.collections))
	for name, col := range m.collections {
		infos = append(infos, CollectionInfo{
			Name:       name,
			Dimension:  col.dimension,
			Distance:   col.distance,
			PointCount: uint64(len(col.points)),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// InsertPoints stores encoded vectors, overwriting existing ids.
func (m *Memory) InsertPoints(ctx context.Context, collection string, ids []uint64, vectors [][]float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("%w: %d ids for %d vectors", domain.ErrDimensionMismatch, len(ids), len(vectors))
	}
	buf, err := EncodeBatch(vectors)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	col, ok := m.collections[collection]
	if !ok {
		return statusError(OpInsertPoints, statusNotFound)
	}
	dim := len(vectors[0])
	if dim != col.dimension {
		return fmt.Errorf(
			"%w: vectors have %d components, collection %q expects %d",
			domain.ErrDimensionMismatch, dim, collection, col.dimension,
		)
	}
	for i, id := range ids {
		row := make([]uint32, dim)
		copy(row, buf[i*dim:(i+1)*dim])
		col.points[id] = row
	}
	return nil
}

// DeletePoints removes points; unknown ids are ignored.
func (m *Memory) DeletePoints(ctx context.Context, collection string, ids []uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	col, ok := m.collections[collection]
	if !ok {
		return statusError(OpDeletePoints, statusNotFound)
	}
	for _, id := range ids {
		delete(col.points, id)
	}
	return nil
}

// GetPoints returns stored vectors for the given ids; missing ids are
// skipped, matching device semantics.
func (m *Memory) GetPoints(ctx context.Context, collection string, ids []uint64) ([]VectorRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	col, ok := m.collections[collection]
	if !ok {
		return nil, statusError(OpGetPoints, statusNotFound)
	}
	records := make([]VectorRecord, 0, len(ids))
	for _, id := range ids {
		bits, ok := col.points[id]
		if !ok {
			continue
		}
		records = append(records, VectorRecord{ID: id, Vector: DecodeVector(bits)})
	}
	return records, nil
}

// ScanPoints returns up to limit points with id > afterID, id ascending.
func (m *Memory) ScanPoints(ctx context.Context, collection string, afterID uint64, limit int) ([]VectorRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	col, ok := m.collections[collection]
	if !ok {
		return nil, statusError(OpScanPoints, statusNotFound)
	}
	ids := make([]uint64, 0, len(col.points))
	for id := range col.points {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	records := make([]VectorRecord, len(ids))
	for i, id := range ids {
		records[i] = VectorRecord{ID: id, Vector: DecodeVector(col.points[id])}
	}
	return records, nil
}

// Search scores every stored point against the query and returns the top
// limit hits, best first. Euclidean scores are negated distances so that
// higher is better for every metric.
func (m *Memory) Search(ctx context.Context, collection string, vector []float32, limit int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	queryBits, err := EncodeVector(vector)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	col, ok := m.collections[collection]
	if !ok {
		return nil, statusError(OpSearchVectors, statusNotFound)
	}
	if len(vector) != col.dimension {
		return nil, fmt.Errorf(
			"%w: query has %d components, collection %q expects %d",
			domain.ErrDimensionMismatch, len(vector), collection, col.dimension,
		)
	}

	query := DecodeVector(queryBits)
	hits := make([]Hit, 0, len(col.points))
	for id, bits := range col.points {
		hits = append(hits, Hit{ID: id, Score: score(col.distance, query, DecodeVector(bits))})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Ping always succeeds for the in-memory device.
func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

// Close releases all collections.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections = make(map[string]*memCollection)
	return nil
}

func score(d domain.Distance, a, b []float32) float64 {
	switch d {
	case domain.DistanceCosine:
		return cosine(a, b)
	case domain.DistanceEuclidean:
		return -euclidean(a, b)
	default:
		return dot(a, b)
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cosine(a, b []float32) float64 {
	var ab, aa, bb float64
	for i := range a {
		ab += float64(a[i]) * float64(b[i])
		aa += float64(a[i]) * float64(a[i])
		bb += float64(b[i]) * float64(b[i])
	}
	if aa == 0 || bb == 0 {
		return 0
	}
	return ab / (math.Sqrt(aa) * math.Sqrt(bb))
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
