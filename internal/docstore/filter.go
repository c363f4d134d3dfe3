package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type FilterOp string

const (
	OpEqual         FilterOp = "=="
	OpArrayContains FilterOp = "array-contains"
)

// Filter restricts a query to documents whose Field satisfies Op against Value.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// Where matches documents whose field equals value.
func Where(field string, value any) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

// ArrayContains matches documents whose array field contains value. A scalar
// field equal to value also matches, so single-value legacy documents are
// found by the same query.
func ArrayContains(field string, value any) Filter {
	return Filter{Field: field, Op: OpArrayContains, Value: value}
}

func (f Filter) String() string {
	return fmt.Sprintf("%s %s %v", f.Field, f.Op, f.Value)
}

// Match reports whether body satisfies the filter.
func (f Filter) Match(body map[string]any) bool {
	v, ok := body[f.Field]
	if !ok {
		return false
	}
	switch f.Op {
	case OpEqual:
		return equalValues(v, f.Value)
	case OpArrayContains:
		if arr, ok := v.([]any); ok {
			for _, elem := range arr {
				if equalValues(elem, f.Value) {
					return true
				}
			}
			return false
		}
		return equalValues(v, f.Value)
	default:
		return false
	}
}

func matchAll(body map[string]any, filters []Filter) bool {
	for _, f := range filters {
		if !f.Match(body) {
			return false
		}
	}
	return true
}

// equalValues compares values by their JSON encoding, so an int and the
// float64 decoded from the same number compare equal.
func equalValues(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// ownerFilter returns the user_id equality value if one is present, so the
// SQL layer can narrow the scan with the indexed column.
func ownerFilter(filters []Filter) (string, bool) {
	for _, f := range filters {
		if f.Field == "user_id" && f.Op == OpEqual {
			if s, ok := f.Value.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}
