package filter

import (
	"github.com/spf13/cast"

	"github.com/kailas-cloud/kvecd/internal/domain"
	"github.com/kailas-cloud/kvecd/internal/domain/geo"
)

// Matches evaluates the condition tree against one point. Boolean groups
// short-circuit: must on the first false child, should on the first true one.
// Matching is deterministic; candidate order is the caller's concern.
func (c Condition) Matches(p domain.Point) bool {
	switch c.kind {
	case KindMatch:
		return matchScalar(p.Payload()[c.field], c.match)
	case KindRange:
		v, err := cast.ToFloat64E(p.Payload()[c.field])
		if err != nil {
			return false
		}
		return c.rng.Contains(v)
	case KindGeoRadius:
		lat, lon, ok := payloadCoordinates(p.Payload()[c.field])
		if !ok {
			return false
		}
		return geo.Haversine(c.geo.Center.Lat, c.geo.Center.Lon, lat, lon) <= c.geo.RadiusMeters
	case KindHasID:
		return c.HasID(p.ID())
	case KindBool:
		return c.matchesBool(p)
	default:
		return false
	}
}

func (c Condition) matchesBool(p domain.Point) bool {
	for _, child := range c.must {
		if !child.Matches(p) {
			return false
		}
	}
	if len(c.should) > 0 {
		matched := false
		for _, child := range c.should {
			if child.Matches(p) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, child := range c.mustNot {
		if child.Matches(p) {
			return false
		}
	}
	return true
}

// Complexity estimates the evaluation cost of the tree: leaves cost 1,
// a boolean node costs 1 plus the sum of its children. Used to order
// execution across candidates, never for correctness.
func (c Condition) Complexity() int {
	if c.kind != KindBool {
		return 1
	}
	total := 1
	for _, groups := range [][]Condition{c.must, c.should, c.mustNot} {
		for _, child := range groups {
			total += child.Complexity()
		}
	}
	return total
}

// matchScalar compares a payload value to the wanted scalar after loose
// coercion, so a payload "7" matches the numeric 7 and vice versa.
func matchScalar(got, want any) bool {
	if got == nil {
		return false
	}
	switch w := want.(type) {
	case bool:
		g, err := cast.ToBoolE(got)
		return err == nil && g == w
	case string:
		g, err := cast.ToStringE(got)
		return err == nil && g == w
	default:
		w64, err := cast.ToFloat64E(want)
		if err != nil {
			return false
		}
		g, err := cast.ToFloat64E(got)
		return err == nil && g == w64
	}
}

// payloadCoordinates extracts lat/lon degrees from a payload geo object.
func payloadCoordinates(v any) (lat, lon float64, ok bool) {
	obj, err := cast.ToStringMapE(v)
	if err != nil {
		return 0, 0, false
	}
	lat, latErr := cast.ToFloat64E(obj["lat"])
	lon, lonErr := cast.ToFloat64E(obj["lon"])
	if latErr != nil || lonErr != nil || !geo.ValidateCoordinates(lat, lon) {
		return 0, 0, false
	}
	return lat, lon, true
}
