package domain

import (
	"fmt"
	"strconv"

	"github.com/spaolacci/murmur3"
)

// Payload is the unordered scalar metadata attached to a point.
// Values are JSON scalars: string, float64, bool, or integer kinds.
type Payload map[string]any

// Point is a stored vector with its identifier and payload.
type Point struct {
	id      uint64
	vector  []float32
	payload Payload
}

// NewPoint validates and creates a point. The vector length must equal
// the collection dimension; this is checked before any device call.
func NewPoint(id uint64, vector []float32, payload Payload, dimension int) (Point, error) {
	if len(vector) != dimension {
		return Point{}, fmt.Errorf(
			"%w: point %d has %d components, collection expects %d",
			ErrDimensionMismatch, id, len(vector), dimension,
		)
	}
	return Point{id: id, vector: vector, payload: payload}, nil
}

// RestoredPoint rebuilds a point from stored state without re-validation.
func RestoredPoint(id uint64, vector []float32, payload Payload) Point {
	return Point{id: id, vector: vector, payload: payload}
}

// ID returns the point identifier.
func (p Point) ID() uint64 { return p.id }

// Vector returns the point vector.
func (p Point) Vector() []float32 { return p.vector }

// Payload returns the point payload.
func (p Point) Payload() Payload { return p.payload }

// WithPayload returns a copy of the point carrying the given payload.
func (p Point) WithPayload(payload Payload) Point {
	p.payload = payload
	return p
}

// ScoredPoint is a point paired with a similarity score.
type ScoredPoint struct {
	Point
	score float64
}

// NewScoredPoint creates a scored point.
func NewScoredPoint(p Point, score float64) ScoredPoint {
	return ScoredPoint{Point: p, score: score}
}

// Score returns the similarity score.
func (s ScoredPoint) Score() float64 { return s.score }

// WithScore returns a copy carrying the given score.
func (s ScoredPoint) WithScore(score float64) ScoredPoint {
	s.score = score
	return s
}

// PointIDFromString derives a stable 64-bit identifier from a string id.
// Numeric strings map to their numeric value so that "42" and 42 address
// the same point; everything else hashes via murmur3.
func PointIDFromString(s string) uint64 {
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n
	}
	return murmur3.Sum64([]byte(s))
}
