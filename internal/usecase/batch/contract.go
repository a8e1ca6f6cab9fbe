package batch

import (
	"context"

	"github.com/kailas-cloud/kvecd/internal/domain"
	"github.com/kailas-cloud/kvecd/internal/usecase/point"
	"github.com/kailas-cloud/kvecd/internal/usecase/search"
)

// Searcher runs one similarity search per batch slot.
type Searcher interface {
	Search(ctx context.Context, collection string, vector []float32, limit int, opts search.Options) ([]domain.ScoredPoint, error)
}

// Upserter writes point chunks during optimized bulk loads.
type Upserter interface {
	Upsert(ctx context.Context, collection string, inputs []point.Input) (int, error)
}
