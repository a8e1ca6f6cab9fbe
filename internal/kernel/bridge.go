package kernel

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/kvecd/internal/domain"
)

// Bridge is the device contract. The production implementation submits
// control blocks through ioctl; the in-memory implementation backs tests
// and single-node development. Callers inject one or the other; there is
// no process-wide default.
//
// Every method validates and encodes its arguments before touching the
// device, so a validation failure never leaves partial device state.
type Bridge interface {
	CreateCollection(ctx context.Context, name string, dimension int, distance domain.Distance) error
	DeleteCollection(ctx context.Context, name string) error
	CollectionInfo(ctx context.Context, name string) (CollectionInfo, error)
	ListCollections(ctx context.Context) ([]CollectionInfo, error)

	InsertPoints(ctx context.Context, collection string, ids []uint64, vectors [][]float32) error
	DeletePoints(ctx context.Context, collection string, ids []uint64) error
	GetPoints(ctx context.Context, collection string, ids []uint64) ([]VectorRecord, error)
	// ScanPoints returns up to limit points with id strictly greater than
	// afterID, ordered by id ascending.
	ScanPoints(ctx context.Context, collection string, afterID uint64, limit int) ([]VectorRecord, error)

	Search(ctx context.Context, collection string, vector []float32, limit int) ([]Hit, error)

	Ping(ctx context.Context) error
	Close() error
}

// CollectionInfo is the device-side view of one collection.
type CollectionInfo struct {
	Name       string
	Dimension  int
	Distance   domain.Distance
	PointCount uint64
}

// VectorRecord is one stored point as the device returns it.
type VectorRecord struct {
	ID     uint64
	Vector []float32
}

// Hit is one similarity search result. Higher score is always better; the
// device negates Euclidean distances so ordering is uniform across metrics.
type Hit struct {
	ID    uint64
	Score float64
}

// Device status codes (negated errno-style values in ControlBlock.Status).
const (
	statusNotFound  int32 = -2
	statusExists    int32 = -17
	statusBadArg    int32 = -22
	statusNoSpace   int32 = -28
	statusNameLimit int32 = -36
)

// Error is a device failure: the originating operation plus the raw status
// code. Known codes unwrap to domain sentinels so callers can use errors.Is
// without knowing device numerology.
type Error struct {
	Op   string
	Code int32
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("kernel %s: status %d: %s", e.Op, e.Code, e.err)
	}
	return fmt.Sprintf("kernel %s: status %d", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.err }

// statusError maps a nonzero device status to a typed error.
func statusError(op OpCode, code int32) error {
	if code == 0 {
		return nil
	}
	e := &Error{Op: op.String(), Code: code}
	switch code {
	case statusNotFound:
		switch op {
		case OpGetPoints, OpDeletePoints:
			e.err = domain.ErrPointNotFound
		default:
			e.err = domain.ErrCollectionNotFound
		}
	case statusExists:
		e.err = domain.ErrCollectionExists
	case statusBadArg:
		e.err = domain.ErrDimension
	}
	return e
}
