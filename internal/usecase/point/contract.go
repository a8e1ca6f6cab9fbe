package point

import (
	"context"

	"github.com/kailas-cloud/kvecd/internal/domain"
	"github.com/kailas-cloud/kvecd/internal/kernel"
)

// Bridge is the slice of the kernel device contract this service needs.
type Bridge interface {
	CollectionInfo(ctx context.Context, name string) (kernel.CollectionInfo, error)
	InsertPoints(ctx context.Context, collection string, ids []uint64, vectors [][]float32) error
	DeletePoints(ctx context.Context, collection string, ids []uint64) error
	GetPoints(ctx context.Context, collection string, ids []uint64) ([]kernel.VectorRecord, error)
}

// PayloadStore persists point payloads beside the device.
type PayloadStore interface {
	SetMulti(ctx context.Context, collection string, points []domain.Point) error
	GetMulti(ctx context.Context, collection string, ids []uint64) (map[uint64]domain.Payload, error)
	Delete(ctx context.Context, collection string, ids []uint64) error
}
