package chi

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/kvecd/internal/domain"
	"github.com/kailas-cloud/kvecd/internal/domain/filter"
	"github.com/kailas-cloud/kvecd/internal/usecase/point"
	"github.com/kailas-cloud/kvecd/internal/usecase/search"
)

func idsFromWire(ids []wireID) []uint64 {
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return out
}

func inputsFromWire(points []wirePoint) []point.Input {
	inputs := make([]point.Input, len(points))
	for i, p := range points {
		inputs[i] = point.Input{ID: uint64(p.ID), Vector: p.Vector, Payload: p.Payload}
	}
	return inputs
}

// filterFromWire parses an optional filter body. nil raw means no filter.
func filterFromWire(raw json.RawMessage) (*filter.Condition, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	cond, err := filter.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &cond, nil
}

func searchOptionsFromWire(req searchRequest) (search.Options, error) {
	cond, err := filterFromWire(req.Filter)
	if err != nil {
		return search.Options{}, err
	}
	return search.Options{
		Filter:      cond,
		MinScore:    req.MinScore,
		WithPayload: req.WithPayload,
		WithVector:  req.WithVector,
	}, nil
}

func validateSearchRequest(req searchRequest) error {
	if len(req.Vector) == 0 {
		return fmt.Errorf("vector is required")
	}
	if req.Limit <= 0 {
		return fmt.Errorf("limit must be positive")
	}
	return nil
}

func collectionToWire(c domain.Collection) collectionResponse {
	return collectionResponse{
		Name:       c.Name(),
		Dimension:  c.Dimension(),
		Distance:   string(c.Distance()),
		PointCount: c.PointCount(),
	}
}

func pointToWire(p domain.Point) pointResponse {
	return pointResponse{ID: p.ID(), Vector: p.Vector(), Payload: p.Payload()}
}

func pointsToWire(points []domain.Point) []pointResponse {
	out := make([]pointResponse, len(points))
	for i, p := range points {
		out[i] = pointToWire(p)
	}
	return out
}

func scoredPointToWire(p domain.ScoredPoint) scoredPointResponse {
	return scoredPointResponse{
		ID:      p.ID(),
		Score:   p.Score(),
		Vector:  p.Vector(),
		Payload: p.Payload(),
	}
}

func scoredPointsToWire(points []domain.ScoredPoint) []scoredPointResponse {
	out := make([]scoredPointResponse, len(points))
	for i, p := range points {
		out[i] = scoredPointToWire(p)
	}
	return out
}
