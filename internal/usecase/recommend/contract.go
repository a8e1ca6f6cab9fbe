package recommend

import (
	"context"

	"github.com/kailas-cloud/kvecd/internal/domain"
	"github.com/kailas-cloud/kvecd/internal/kernel"
	"github.com/kailas-cloud/kvecd/internal/usecase/search"
)

// Bridge is the slice of the kernel device contract this service needs.
type Bridge interface {
	GetPoints(ctx context.Context, collection string, ids []uint64) ([]kernel.VectorRecord, error)
}

// Searcher runs similarity searches on behalf of recommendation strategies.
type Searcher interface {
	Search(ctx context.Context, collection string, vector []float32, limit int, opts search.Options) ([]domain.ScoredPoint, error)
}
