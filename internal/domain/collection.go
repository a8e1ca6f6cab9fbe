package domain

import "fmt"

// Distance is the similarity metric of a collection.
type Distance string

// Supported distance metrics.
const (
	DistanceCosine    Distance = "Cosine"
	DistanceEuclidean Distance = "Euclidean"
	DistanceDot       Distance = "Dot"
)

// ParseDistance validates a distance metric name.
func ParseDistance(s string) (Distance, error) {
	switch Distance(s) {
	case DistanceCosine, DistanceEuclidean, DistanceDot:
		return Distance(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDistance, s)
	}
}

// Collection is a named set of points sharing one dimension and metric.
// The dimension and metric are fixed at creation.
type Collection struct {
	name       string
	dimension  int
	distance   Distance
	pointCount uint64
}

// NewCollection validates and creates a collection.
// maxDim caps the dimension; zero means no cap beyond positivity.
func NewCollection(name string, dimension int, distance Distance, maxDim int) (Collection, error) {
	if name == "" {
		return Collection{}, fmt.Errorf("collection name is required")
	}
	if dimension <= 0 {
		return Collection{}, fmt.Errorf("%w: dimension must be positive, got %d", ErrDimension, dimension)
	}
	if maxDim > 0 && dimension > maxDim {
		return Collection{}, fmt.Errorf("%w: dimension %d exceeds maximum %d", ErrDimension, dimension, maxDim)
	}
	if _, err := ParseDistance(string(distance)); err != nil {
		return Collection{}, err
	}
	return Collection{
		name:      name,
		dimension: dimension,
		distance:  distance,
	}, nil
}

// RestoredCollection rebuilds a collection from device state without re-validation.
func RestoredCollection(name string, dimension int, distance Distance, pointCount uint64) Collection {
	return Collection{name: name, dimension: dimension, distance: distance, pointCount: pointCount}
}

// Name returns the unique collection name.
func (c Collection) Name() string { return c.name }

// Dimension returns the fixed vector dimension.
func (c Collection) Dimension() int { return c.dimension }

// Distance returns the similarity metric.
func (c Collection) Distance() Distance { return c.distance }

// PointCount returns the number of stored points.
func (c Collection) PointCount() uint64 { return c.pointCount }
