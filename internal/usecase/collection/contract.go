package collection

import (
	"context"

	"github.com/kailas-cloud/kvecd/internal/domain"
	"github.com/kailas-cloud/kvecd/internal/kernel"
)

// Bridge is the slice of the kernel device contract this service needs.
type Bridge interface {
	CreateCollection(ctx context.Context, name string, dimension int, distance domain.Distance) error
	DeleteCollection(ctx context.Context, name string) error
	CollectionInfo(ctx context.Context, name string) (kernel.CollectionInfo, error)
	ListCollections(ctx context.Context) ([]kernel.CollectionInfo, error)
}

// PayloadStore removes adapter-side metadata when a collection dies.
type PayloadStore interface {
	DeleteCollection(ctx context.Context, collection string) error
}
