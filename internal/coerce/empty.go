package coerce

import "github.com/roach88/marcbridge/internal/ir"

// IsEmpty reports whether v is absent: nil, Null, "", an empty Array or an
// empty Object. False and zero are values, not absences.
func IsEmpty(v ir.Value) bool {
	switch val := v.(type) {
	case nil, ir.Null:
		return true
	case ir.String:
		return val == ""
	case ir.Array:
		return len(val) == 0
	case ir.Object:
		return len(val) == 0
	default:
		return false
	}
}

// FilterEmpty recursively drops empty values from objects and lists.
// Containers that become empty after filtering are dropped as well; if v
// itself ends up empty the result is nil.
func FilterEmpty(v ir.Value) ir.Value {
	switch val := v.(type) {
	case ir.Object:
		out := make(ir.Object, len(val))
		for k, elem := range val {
			if filtered := FilterEmpty(elem); !IsEmpty(filtered) {
				out[k] = filtered
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case ir.Array:
		out := make(ir.Array, 0, len(val))
		for _, elem := range val {
			if filtered := FilterEmpty(elem); !IsEmpty(filtered) {
				out = append(out, filtered)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		if IsEmpty(v) {
			return nil
		}
		return v
	}
}

// FilterEmptyObject is FilterEmpty for a top-level record. It always
// returns a non-nil Object.
func FilterEmptyObject(obj ir.Object) ir.Object {
	if filtered, ok := FilterEmpty(obj).(ir.Object); ok {
		return filtered
	}
	return ir.Object{}
}
