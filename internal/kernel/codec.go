// Package kernel talks to the vector-storage device: a bit-exact float
// codec, the fixed control-block layout, and bridge implementations that
// submit blocks to the device.
package kernel

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/kvecd/internal/domain"
)

const (
	// MaxDim is the largest vector dimension the device accepts.
	MaxDim = 4096
	// MaxBatch is the largest number of vectors per insert submission.
	MaxBatch = 1024
)

// EncodeFloat narrows f to IEEE-754 single precision and returns its bit
// pattern. Lossy beyond ~7 significant decimal digits, which is expected:
// the device stores single-precision components.
func EncodeFloat(f float64) uint32 {
	return math.Float32bits(float32(f))
}

// DecodeFloat is the inverse of EncodeFloat. DecodeFloat(EncodeFloat(f))
// equals f narrowed to float32 precision.
func DecodeFloat(bits uint32) float64 {
	return float64(math.Float32frombits(bits))
}

// EncodeVector converts one vector into device bit patterns.
func EncodeVector(v []float32) ([]uint32, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: empty vector", domain.ErrDimension)
	}
	if len(v) > MaxDim {
		return nil, fmt.Errorf("%w: %d components exceed maximum %d", domain.ErrDimension, len(v), MaxDim)
	}
	out := make([]uint32, len(v))
	for i, f := range v {
		out[i] = math.Float32bits(f)
	}
	return out, nil
}

// DecodeVector converts device bit patterns back into a vector.
func DecodeVector(bits []uint32) []float32 {
	out := make([]float32, len(bits))
	for i, b := range bits {
		out[i] = math.Float32frombits(b)
	}
	return out
}

// EncodeBatch flattens vectors row-major into one device buffer. Every row
// must have the same length as the first; the flat buffer length is always
// len(vs) * len(vs[0]).
func EncodeBatch(vs [][]float32) ([]uint32, error) {
	if len(vs) == 0 {
		return nil, fmt.Errorf("%w: empty batch", domain.ErrDimension)
	}
	if len(vs) > MaxBatch {
		return nil, fmt.Errorf("%w: %d vectors exceed maximum batch %d", domain.ErrDimension, len(vs), MaxBatch)
	}
	dim := len(vs[0])
	if dim == 0 || dim > MaxDim {
		return nil, fmt.Errorf("%w: row dimension %d", domain.ErrDimension, dim)
	}
	out := make([]uint32, 0, len(vs)*dim)
	for i, row := range vs {
		if len(row) != dim {
			return nil, fmt.Errorf(
				"%w: row %d has %d components, row 0 has %d",
				domain.ErrDimensionMismatch, i, len(row), dim,
			)
		}
		for _, f := range row {
			out = append(out, math.Float32bits(f))
		}
	}
	return out, nil
}
