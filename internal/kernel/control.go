package kernel

import (
	"encoding/binary"
	"fmt"

	"github.com/kailas-cloud/kvecd/internal/domain"
)

// OpCode selects the device operation in a control block.
type OpCode uint32

// Device operation codes.
const (
	OpCreateCollection OpCode = 1
	OpDeleteCollection OpCode = 2
	OpCollectionInfo   OpCode = 3
	OpListCollections  OpCode = 4
	OpInsertPoints     OpCode = 5
	OpSearchVectors    OpCode = 6
	OpGetPoints        OpCode = 7
	OpScanPoints       OpCode = 8
	OpDeletePoints     OpCode = 9
)

// String returns the operation name used in errors and metrics labels.
func (o OpCode) String() string {
	switch o {
	case OpCreateCollection:
		return "CREATE_COLLECTION"
	case OpDeleteCollection:
		return "DELETE_COLLECTION"
	case OpCollectionInfo:
		return "GET_COLLECTION_INFO"
	case OpListCollections:
		return "LIST_COLLECTIONS"
	case OpInsertPoints:
		return "INSERT_POINTS"
	case OpSearchVectors:
		return "SEARCH_VECTORS"
	case OpGetPoints:
		return "GET_POINTS"
	case OpScanPoints:
		return "SCAN_POINTS"
	case OpDeletePoints:
		return "DELETE_POINTS"
	default:
		return fmt.Sprintf("OP_%d", uint32(o))
	}
}

// Device metric codes. The wire value is pinned; domain.Distance is the
// adapter-side name.
const (
	metricCosine    uint32 = 1
	metricEuclidean uint32 = 2
	metricDot       uint32 = 3
)

// MetricCode maps a distance metric to its device wire value.
func MetricCode(d domain.Distance) (uint32, error) {
	switch d {
	case domain.DistanceCosine:
		return metricCosine, nil
	case domain.DistanceEuclidean:
		return metricEuclidean, nil
	case domain.DistanceDot:
		return metricDot, nil
	default:
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidDistance, d)
	}
}

// MetricDistance maps a device wire value back to a distance metric.
func MetricDistance(code uint32) (domain.Distance, error) {
	switch code {
	case metricCosine:
		return domain.DistanceCosine, nil
	case metricEuclidean:
		return domain.DistanceEuclidean, nil
	case metricDot:
		return domain.DistanceDot, nil
	default:
		return "", fmt.Errorf("%w: device code %d", domain.ErrInvalidDistance, code)
	}
}

// Control-block binary layout. Little-endian, pointer-width 64. The offsets
// below are the device ABI; the layout test pins them. Re-pin here if the
// device revs its ABI.
const (
	// ControlBlockSize is the marshalled size of a control block in bytes.
	ControlBlockSize = 136
	// NameSize is the fixed, NUL-padded collection name field width.
	NameSize = 64

	offOpCode       = 0
	offStatus       = 4
	offDimension    = 8
	offMetric       = 12
	offVectorCount  = 16
	offLimit        = 20
	offName         = 24
	offVectorBufPtr = 88
	offVectorBufLen = 96
	offIDsPtr       = 104
	offIDsLen       = 112
	offOutPtr       = 120
	offOutLen       = 128
)

// ControlBlock is the fixed-layout request/response structure submitted to
// the device. Vector buffers always hold IEEE-754 bit patterns, never raw
// floats; ids and output buffers are passed by address and length.
type ControlBlock struct {
	OpCode      OpCode
	Status      int32 // out: 0 on success, negative errno-style code otherwise
	Dimension   uint32
	Metric      uint32
	VectorCount uint32
	Limit       uint32
	Name        string

	VectorBufPtr uint64
	VectorBufLen uint64
	IDsPtr       uint64
	IDsLen       uint64
	OutPtr       uint64
	OutLen       uint64 // in: capacity in entries, out: entries written
}

// NewControlBlock constructs a block for an operation on one collection.
// The name must fit the fixed-width field.
func NewControlBlock(op OpCode, name string) (*ControlBlock, error) {
	if len(name) >= NameSize {
		return nil, fmt.Errorf("collection name %q exceeds %d bytes", name, NameSize-1)
	}
	return &ControlBlock{OpCode: op, Name: name}, nil
}

// MarshalBinary encodes the block into its device layout.
func (b *ControlBlock) MarshalBinary() ([]byte, error) {
	if len(b.Name) >= NameSize {
		return nil, fmt.Errorf("collection name %q exceeds %d bytes", b.Name, NameSize-1)
	}
	buf := make([]byte, ControlBlockSize)
	le := binary.LittleEndian
	le.PutUint32(buf[offOpCode:], uint32(b.OpCode))
	le.PutUint32(buf[offStatus:], uint32(b.Status))
	le.PutUint32(buf[offDimension:], b.Dimension)
	le.PutUint32(buf[offMetric:], b.Metric)
	le.PutUint32(buf[offVectorCount:], b.VectorCount)
	le.PutUint32(buf[offLimit:], b.Limit)
	copy(buf[offName:offName+NameSize-1], b.Name)
	le.PutUint64(buf[offVectorBufPtr:], b.VectorBufPtr)
	le.PutUint64(buf[offVectorBufLen:], b.VectorBufLen)
	le.PutUint64(buf[offIDsPtr:], b.IDsPtr)
	le.PutUint64(buf[offIDsLen:], b.IDsLen)
	le.PutUint64(buf[offOutPtr:], b.OutPtr)
	le.PutUint64(buf[offOutLen:], b.OutLen)
	return buf, nil
}

// UnmarshalBinary decodes a block from its device layout.
func (b *ControlBlock) UnmarshalBinary(buf []byte) error {
	if len(buf) != ControlBlockSize {
		return fmt.Errorf("control block is %d bytes, want %d", len(buf), ControlBlockSize)
	}
	le := binary.LittleEndian
	b.OpCode = OpCode(le.Uint32(buf[offOpCode:]))
	b.Status = int32(le.Uint32(buf[offStatus:]))
	b.Dimension = le.Uint32(buf[offDimension:])
	b.Metric = le.Uint32(buf[offMetric:])
	b.VectorCount = le.Uint32(buf[offVectorCount:])
	b.Limit = le.Uint32(buf[offLimit:])
	name := buf[offName : offName+NameSize]
	end := 0
	for end < len(name) && name[end] != 0 {
		end++
	}
	b.Name = string(name[:end])
	b.VectorBufPtr = le.Uint64(buf[offVectorBufPtr:])
	b.VectorBufLen = le.Uint64(buf[offVectorBufLen:])
	b.IDsPtr = le.Uint64(buf[offIDsPtr:])
	b.IDsLen = le.Uint64(buf[offIDsLen:])
	b.OutPtr = le.Uint64(buf[offOutPtr:])
	b.OutLen = le.Uint64(buf[offOutLen:])
	return nil
}
