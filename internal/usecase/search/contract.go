package search

import (
	"context"

	"github.com/kailas-cloud/kvecd/internal/domain"
	"github.com/kailas-cloud/kvecd/internal/kernel"
)

// Bridge is the slice of the kernel device contract this service needs.
type Bridge interface {
	CollectionInfo(ctx context.Context, name string) (kernel.CollectionInfo, error)
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]kernel.Hit, error)
	GetPoints(ctx context.Context, collection string, ids []uint64) ([]kernel.VectorRecord, error)
}

// PayloadStore loads point payloads for filtering and hydration.
type PayloadStore interface {
	GetMulti(ctx context.Context, collection string, ids []uint64) (map[uint64]domain.Payload, error)
}
