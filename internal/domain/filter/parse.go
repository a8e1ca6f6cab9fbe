package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/kvecd/internal/domain"
)

// wire mirrors the JSON shape of one filter node. Exactly one of the five
// recognized shapes must be present; DisallowUnknownFields rejects the rest.
type wire struct {
	Key       string           `json:"key,omitempty"`
	Match     *wireMatch       `json:"match,omitempty"`
	Range     *wireRange       `json:"range,omitempty"`
	GeoRadius *wireGeoRadius   `json:"geo_radius,omitempty"`
	HasID     []any            `json:"has_id,omitempty"`
	Must      []json.RawMessage `json:"must,omitempty"`
	Should    []json.RawMessage `json:"should,omitempty"`
	MustNot   []json.RawMessage `json:"must_not,omitempty"`
}

type wireMatch struct {
	Value any `json:"value"`
}

type wireRange struct {
	GT  *float64 `json:"gt,omitempty"`
	GTE *float64 `json:"gte,omitempty"`
	LT  *float64 `json:"lt,omitempty"`
	LTE *float64 `json:"lte,omitempty"`
}

type wireGeoRadius struct {
	Center struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"center"`
	Radius float64 `json:"radius"`
}

// Parse decodes a filter expression into a condition tree. It recognizes
// exactly five shapes (match, range, geo_radius, has_id, boolean groups) and
// fails with domain.ErrFilterParse on anything else, including unknown or
// conflicting keys. Invalid shapes are rejected here, never at evaluation.
func Parse(raw json.RawMessage) (Condition, error) {
	cond, err := parseNode(raw)
	if err != nil {
		return Condition{}, fmt.Errorf("%w: %w", domain.ErrFilterParse, err)
	}
	return cond, nil
}

func parseNode(raw json.RawMessage) (Condition, error) {
	var w wire
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return Condition{}, fmt.Errorf("decode filter node: %w", err)
	}

	isBool := w.Must != nil || w.Should != nil || w.MustNot != nil
	leafOps := 0
	if w.Match != nil {
		leafOps++
	}
	if w.Range != nil {
		leafOps++
	}
	if w.GeoRadius != nil {
		leafOps++
	}
	if w.HasID != nil {
		leafOps++
	}

	switch {
	case isBool && leafOps > 0:
		return Condition{}, fmt.Errorf("boolean groups cannot be combined with leaf operators")
	case leafOps > 1:
		return Condition{}, fmt.Errorf("exactly one of match, range, geo_radius, has_id is allowed")
	case isBool:
		return parseBool(w)
	case w.Match != nil:
		return parseMatch(w)
	case w.Range != nil:
		if w.Key == "" {
			return Condition{}, fmt.Errorf("range condition requires key")
		}
		r, err := NewRangeBounds(w.Range.GT, w.Range.GTE, w.Range.LT, w.Range.LTE)
		if err != nil {
			return Condition{}, err
		}
		return NewRange(w.Key, r)
	case w.GeoRadius != nil:
		if w.Key == "" {
			return Condition{}, fmt.Errorf("geo_radius condition requires key")
		}
		center := GeoPoint{Lat: w.GeoRadius.Center.Lat, Lon: w.GeoRadius.Center.Lon}
		return NewGeoRadius(w.Key, center, w.GeoRadius.Radius)
	case w.HasID != nil:
		if w.Key != "" {
			return Condition{}, fmt.Errorf("has_id does not take a key")
		}
		ids := make([]uint64, 0, len(w.HasID))
		for _, v := range w.HasID {
			id, err := parseID(v)
			if err != nil {
				return Condition{}, err
			}
			ids = append(ids, id)
		}
		return NewHasID(ids)
	default:
		return Condition{}, fmt.Errorf("empty filter condition")
	}
}

func parseMatch(w wire) (Condition, error) {
	if w.Key == "" {
		return Condition{}, fmt.Errorf("match condition requires key")
	}
	v := w.Match.Value
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		if err != nil {
			return Condition{}, fmt.Errorf("match value for %q: %w", w.Key, err)
		}
		v = f
	}
	return NewMatch(w.Key, v)
}

func parseBool(w wire) (Condition, error) {
	if w.Key != "" {
		return Condition{}, fmt.Errorf("boolean groups do not take a key")
	}
	must, err := parseGroup(w.Must)
	if err != nil {
		return Condition{}, fmt.Errorf("must: %w", err)
	}
	should, err := parseGroup(w.Should)
	if err != nil {
		return Condition{}, fmt.Errorf("should: %w", err)
	}
	mustNot, err := parseGroup(w.MustNot)
	if err != nil {
		return Condition{}, fmt.Errorf("must_not: %w", err)
	}
	return NewBool(must, should, mustNot)
}

func parseGroup(raws []json.RawMessage) ([]Condition, error) {
	if len(raws) == 0 {
		return nil, nil
	}
	conds := make([]Condition, 0, len(raws))
	for i, raw := range raws {
		c, err := parseNode(raw)
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", i, err)
		}
		conds = append(conds, c)
	}
	return conds, nil
}

// parseID accepts numeric ids and string ids; strings are derived the same
// way point upserts derive them.
func parseID(v any) (uint64, error) {
	switch n := v.(type) {
	case json.Number:
		id, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid point id %q", n.String())
		}
		return id, nil
	case string:
		return domain.PointIDFromString(n), nil
	default:
		return 0, fmt.Errorf("invalid point id of type %T", v)
	}
}
