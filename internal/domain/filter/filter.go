// Package filter implements the recursive filter expression language:
// a closed set of condition kinds evaluated against point payloads.
package filter

import (
	"fmt"
	"sort"

	"github.com/kailas-cloud/kvecd/internal/domain/geo"
)

// MaxConditionsPerGroup is the maximum number of conditions per boolean group.
const MaxConditionsPerGroup = 32

// Kind discriminates the condition variants.
type Kind string

// Condition kinds.
const (
	KindMatch     Kind = "match"
	KindRange     Kind = "range"
	KindGeoRadius Kind = "geo_radius"
	KindHasID     Kind = "has_id"
	KindBool      Kind = "bool"
)

// Condition is one node of a filter tree. Immutable once constructed;
// the evaluator switches exhaustively on Kind.
type Condition struct {
	kind  Kind
	field string

	match any
	rng   *Range
	geo   *GeoRadius
	ids   map[uint64]struct{}

	must    []Condition
	should  []Condition
	mustNot []Condition
}

// Kind returns the condition variant.
func (c Condition) Kind() Kind { return c.kind }

// Field returns the payload field name for leaf conditions.
func (c Condition) Field() string { return c.field }

// NewMatch creates an exact payload match condition. The value must be a
// JSON scalar (string, number, or bool).
func NewMatch(field string, value any) (Condition, error) {
	if field == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	switch value.(type) {
	case string, bool, float64, int, int64, uint64:
	default:
		return Condition{}, fmt.Errorf("match value for %q must be a scalar, got %T", field, value)
	}
	return Condition{kind: KindMatch, field: field, match: value}, nil
}

// NewRange creates a numeric range condition.
func NewRange(field string, r Range) (Condition, error) {
	if field == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	return Condition{kind: KindRange, field: field, rng: &r}, nil
}

// NewGeoRadius creates a great-circle radius condition. The payload field is
// expected to hold an object with lat/lon in degrees; distance is haversine
// on a spherical earth.
func NewGeoRadius(field string, center GeoPoint, radiusMeters float64) (Condition, error) {
	if field == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if !geo.ValidateCoordinates(center.Lat, center.Lon) {
		return Condition{}, fmt.Errorf("invalid geo center: lat=%f lon=%f", center.Lat, center.Lon)
	}
	if radiusMeters <= 0 {
		return Condition{}, fmt.Errorf("geo radius must be positive, got %f", radiusMeters)
	}
	return Condition{kind: KindGeoRadius, field: field, geo: &GeoRadius{Center: center, RadiusMeters: radiusMeters}}, nil
}

// NewHasID creates an id-set membership condition.
func NewHasID(ids []uint64) (Condition, error) {
	if len(ids) == 0 {
		return Condition{}, fmt.Errorf("has_id requires at least one id")
	}
	set := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return Condition{kind: KindHasID, ids: set}, nil
}

// NewBool creates a boolean group. must = AND, should = OR, must_not = NOR;
// groups may nest arbitrarily. At least one group must be non-empty.
func NewBool(must, should, mustNot []Condition) (Condition, error) {
	if len(must) == 0 && len(should) == 0 && len(mustNot) == 0 {
		return Condition{}, fmt.Errorf("boolean filter requires at least one condition")
	}
	if len(must) > MaxConditionsPerGroup {
		return Condition{}, fmt.Errorf("too many must conditions (max %d)", MaxConditionsPerGroup)
	}
	if len(should) > MaxConditionsPerGroup {
		return Condition{}, fmt.Errorf("too many should conditions (max %d)", MaxConditionsPerGroup)
	}
	if len(mustNot) > MaxConditionsPerGroup {
		return Condition{}, fmt.Errorf("too many must_not conditions (max %d)", MaxConditionsPerGroup)
	}
	// Evaluate cheap children first so short-circuiting skips the
	// expensive ones as often as possible.
	return Condition{
		kind:    KindBool,
		must:    sortByComplexity(must),
		should:  sortByComplexity(should),
		mustNot: sortByComplexity(mustNot),
	}, nil
}

func sortByComplexity(conds []Condition) []Condition {
	if len(conds) < 2 {
		return conds
	}
	out := make([]Condition, len(conds))
	copy(out, conds)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Complexity() < out[j].Complexity()
	})
	return out
}

// Must returns the must group of a boolean condition.
func (c Condition) Must() []Condition { return c.must }

// Should returns the should group of a boolean condition.
func (c Condition) Should() []Condition { return c.should }

// MustNot returns the must_not group of a boolean condition.
func (c Condition) MustNot() []Condition { return c.mustNot }

// Range is a numeric range with gt/gte/lt/lte boundaries.
type Range struct {
	gt  *float64
	gte *float64
	lt  *float64
	lte *float64
}

// NewRangeBounds validates and creates a Range.
// At least one boundary required. gt/gte and lt/lte are mutually exclusive.
func NewRangeBounds(gt, gte, lt, lte *float64) (Range, error) {
	if gt == nil && gte == nil && lt == nil && lte == nil {
		return Range{}, fmt.Errorf("at least one range boundary is required")
	}
	if gt != nil && gte != nil {
		return Range{}, fmt.Errorf("cannot specify both gt and gte")
	}
	if lt != nil && lte != nil {
		return Range{}, fmt.Errorf("cannot specify both lt and lte")
	}
	return Range{gt: gt, gte: gte, lt: lt, lte: lte}, nil
}

// GT returns the lower exclusive bound.
func (r Range) GT() *float64 { return r.gt }

// GTE returns the lower inclusive bound.
func (r Range) GTE() *float64 { return r.gte }

// LT returns the upper exclusive bound.
func (r Range) LT() *float64 { return r.lt }

// LTE returns the upper inclusive bound.
func (r Range) LTE() *float64 { return r.lte }

// Contains reports whether v satisfies all configured bounds.
func (r Range) Contains(v float64) bool {
	if r.gt != nil && !(v > *r.gt) {
		return false
	}
	if r.gte != nil && !(v >= *r.gte) {
		return false
	}
	if r.lt != nil && !(v < *r.lt) {
		return false
	}
	if r.lte != nil && !(v <= *r.lte) {
		return false
	}
	return true
}

// GeoPoint is a latitude/longitude pair in degrees.
type GeoPoint struct {
	Lat float64
	Lon float64
}

// GeoRadius is a center plus radius in meters.
type GeoRadius struct {
	Center       GeoPoint
	RadiusMeters float64
}

// HasID reports whether the condition's id set contains id.
// Only meaningful for KindHasID.
func (c Condition) HasID(id uint64) bool {
	_, ok := c.ids[id]
	return ok
}
