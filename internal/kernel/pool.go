package kernel

import (
	"context"
	"errors"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kailas-cloud/kvecd/internal/domain"
	"github.com/kailas-cloud/kvecd/internal/metrics"
)

// Pool is a Bridge that bounds device concurrency. Every submission first
// acquires one of size slots, then runs under an independent per-call
// timeout. Size should equal the device's real concurrency limit;
// oversubscribing it only adds queuing delay, not throughput.
//
// The pool is the only admission control on the device handle. There is no
// mutex: up to size calls are in flight at once.
type Pool struct {
	bridge  Bridge
	sem     *semaphore.Weighted
	timeout time.Duration
}

var _ Bridge = (*Pool)(nil)

// NewPool wraps a bridge with a bounded worker pool.
func NewPool(bridge Bridge, size int, callTimeout time.Duration) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		bridge:  bridge,
		sem:     semaphore.NewWeighted(int64(size)),
		timeout: callTimeout,
	}
}

// do acquires a slot, applies the per-call timeout, runs fn, and records
// metrics. Once fn has started it runs to completion; the device interface
// offers no mid-call cancellation.
func (p *Pool) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	waitStart := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		metrics.DeviceCallsTotal.WithLabelValues(op, "queue_cancelled").Inc()
		return err
	}
	defer p.sem.Release(1)
	metrics.DevicePoolWaitDuration.Observe(time.Since(waitStart).Seconds())

	callCtx := ctx
	var cancel context.CancelFunc
	if p.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	metrics.DevicePoolInFlight.Inc()
	start := time.Now()
	err := fn(callCtx)
	metrics.DevicePoolInFlight.Dec()
	metrics.DeviceCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.DeviceCallsTotal.WithLabelValues(op, callStatus(err)).Inc()
	return err
}

func callStatus(err error) string {
	if err == nil {
		return "ok"
	}
	var kerr *Error
	if errors.As(err, &kerr) {
		return strconv.Itoa(int(kerr.Code))
	}
	return "error"
}

// CreateCollection submits through the pool.
func (p *Pool) CreateCollection(ctx context.Context, name string, dimension int, distance domain.Distance) error {
	return p.do(ctx, OpCreateCollection.String(), func(ctx context.Context) error {
		return p.bridge.CreateCollection(ctx, name, dimension, distance)
	})
}

// DeleteCollection submits through the pool.
func (p *Pool) DeleteCollection(ctx context.Context, name string) error {
	return p.do(ctx, OpDeleteCollection.String(), func(ctx context.Context) error {
		return p.bridge.DeleteCollection(ctx, name)
	})
}

// CollectionInfo submits through the pool.
func (p *Pool) CollectionInfo(ctx context.Context, name string) (CollectionInfo, error) {
	var info CollectionInfo
	err := p.do(ctx, OpCollectionInfo.String(), func(ctx context.Context) error {
		var err error
		info, err = p.bridge.CollectionInfo(ctx, name)
		return err
	})
	return info, err
}

// ListCollections submits through the pool.
func (p *Pool) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	var infos []CollectionInfo
	err := p.do(ctx, OpListCollections.String(), func(ctx context.Context) error {
		var err error
		infos, err = p.bridge.ListCollections(ctx)
		return err
	})
	return infos, err
}

// InsertPoints submits through the pool.
func (p *Pool) InsertPoints(ctx context.Context, collection string, ids []uint64, vectors [][]float32) error {
	return p.do(ctx, OpInsertPoints.String(), func(ctx context.Context) error {
		return p.bridge.InsertPoints(ctx, collection, ids, vectors)
	})
}

// DeletePoints submits through the pool.
func (p *Pool) DeletePoints(ctx context.Context, collection string, ids []uint64) error {
	return p.do(ctx, OpDeletePoints.String(), func(ctx context.Context) error {
		return p.bridge.DeletePoints(ctx, collection, ids)
	})
}

// GetPoints submits through the pool.
func (p *Pool) GetPoints(ctx context.Context, collection string, ids []uint64) ([]VectorRecord, error) {
	var records []VectorRecord
	err := p.do(ctx, OpGetPoints.String(), func(ctx context.Context) error {
		var err error
		records, err = p.bridge.GetPoints(ctx, collection, ids)
		return err
	})
	return records, err
}

// ScanPoints submits through the pool.
func (p *Pool) ScanPoints(ctx context.Context, collection string, afterID uint64, limit int) ([]VectorRecord, error) {
	var records []VectorRecord
	err := p.do(ctx, OpScanPoints.String(), func(ctx context.Context) error {
		var err error
		records, err = p.bridge.ScanPoints(ctx, collection, afterID, limit)
		return err
	})
	return records, err
}

// Search submits through the pool.
func (p *Pool) Search(ctx context.Context, collection string, vector []float32, limit int) ([]Hit, error) {
	var hits []Hit
	err := p.do(ctx, OpSearchVectors.String(), func(ctx context.Context) error {
		var err error
		hits, err = p.bridge.Search(ctx, collection, vector, limit)
		return err
	})
	return hits, err
}

// Ping submits through the pool.
func (p *Pool) Ping(ctx context.Context) error {
	return p.do(ctx, "PING", func(ctx context.Context) error {
		return p.bridge.Ping(ctx)
	})
}

// Close closes the underlying bridge.
func (p *Pool) Close() error { return p.bridge.Close() }
