package scroll

import (
	"context"

	"github.com/kailas-cloud/kvecd/internal/domain"
	"github.com/kailas-cloud/kvecd/internal/kernel"
	"github.com/kailas-cloud/kvecd/internal/session"
)

// Bridge is the slice of the kernel device contract this service needs.
type Bridge interface {
	CollectionInfo(ctx context.Context, name string) (kernel.CollectionInfo, error)
	ScanPoints(ctx context.Context, collection string, afterID uint64, limit int) ([]kernel.VectorRecord, error)
}

// PayloadStore loads point payloads for hydration and filtering.
type PayloadStore interface {
	GetMulti(ctx context.Context, collection string, ids []uint64) (map[uint64]domain.Payload, error)
}

// SessionStore persists scroll cursors between requests.
type SessionStore interface {
	Create(ctx context.Context, collection string, batchSize int) (session.Session, error)
	Get(ctx context.Context, id string) (session.Session, error)
	Advance(ctx context.Context, sess session.Session, cursor uint64, exhausted bool) (session.Session, error)
	Delete(ctx context.Context, id string) (bool, error)
}
