// Package collection implements collection lifecycle operations over the
// kernel device.
package collection

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/kvecd/internal/domain"
)

// Service handles collection CRUD operations.
type Service struct {
	bridge   Bridge
	payloads PayloadStore
	maxDim   int
}

// New creates a collection service. maxDim caps the vector dimension.
func New(bridge Bridge, payloads PayloadStore, maxDim int) *Service {
	return &Service{bridge: bridge, payloads: payloads, maxDim: maxDim}
}

// Create validates and registers a new collection on the device.
func (s *Service) Create(ctx context.Context, name string, dimension int, distance string) (domain.Collection, error) {
	col, err := domain.NewCollection(name, dimension, domain.Distance(distance), s.maxDim)
	if err != nil {
		return domain.Collection{}, fmt.Errorf("validate collection: %w", err)
	}

	if err := s.bridge.CreateCollection(ctx, col.Name(), col.Dimension(), col.Distance()); err != nil {
		return domain.Collection{}, fmt.Errorf("create collection: %w", err)
	}

	return col, nil
}

// Get retrieves a collection by name, including its live point count.
func (s *Service) Get(ctx context.Context, name string) (domain.Collection, error) {
	info, err := s.bridge.CollectionInfo(ctx, name)
	if err != nil {
		return domain.Collection{}, fmt.Errorf("get collection: %w", err)
	}
	return domain.RestoredCollection(info.Name, info.Dimension, info.Distance, info.PointCount), nil
}

// List returns all collections known to the device.
func (s *Service) List(ctx context.Context) ([]domain.Collection, error) {
	infos, err := s.bridge.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	cols := make([]domain.Collection, len(infos))
	for i, info := range infos {
		cols[i] = domain.RestoredCollection(info.Name, info.Dimension, info.Distance, info.PointCount)
	}
	return cols, nil
}

// Delete removes a collection from the device and drops its payloads.
// The device delete is the authority; payloads are cleaned up after so a
// failed device call leaves everything intact.
func (s *Service) Delete(ctx context.Context, name string) error {
	if err := s.bridge.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if err := s.payloads.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("delete collection payloads: %w", err)
	}
	return nil
}
