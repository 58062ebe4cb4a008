package coerce

import "github.com/roach88/marcbridge/internal/ir"

// ForceList wraps a scalar in a one-element list, returns lists unchanged,
// and maps an absent value (nil or Null) to an empty, non-nil list.
func ForceList(v ir.Value) ir.Array {
	switch val := v.(type) {
	case nil, ir.Null:
		return ir.Array{}
	case ir.Array:
		if val == nil {
			return ir.Array{}
		}
		return val
	default:
		return ir.Array{v}
	}
}

// ForceSingle returns the first element of a list (nil when empty) and
// returns scalars unchanged.
func ForceSingle(v ir.Value) ir.Value {
	switch val := v.(type) {
	case ir.Array:
		if len(val) == 0 {
			return nil
		}
		return val[0]
	case ir.Null:
		return nil
	default:
		return v
	}
}

// Strings returns every String element of v (scalar or list) in order.
// Non-string elements are skipped.
func Strings(v ir.Value) []string {
	var out []string
	for _, elem := range ForceList(v) {
		if s, ok := elem.(ir.String); ok {
			out = append(out, string(s))
		}
	}
	return out
}

// Objects returns every Object element of v (scalar or list) in order.
func Objects(v ir.Value) []ir.Object {
	var out []ir.Object
	for _, elem := range ForceList(v) {
		if obj, ok := elem.(ir.Object); ok {
			out = append(out, obj)
		}
	}
	return out
}

// StringOrNil wraps s as a String, or returns nil for the empty string so
// callers can pass the result straight into ir.NewObject.
func StringOrNil(s string) ir.Value {
	if s == "" {
		return nil
	}
	return ir.String(s)
}

// StringsOrNil returns a String array, or nil when vals is empty.
func StringsOrNil(vals []string) ir.Value {
	var arr ir.Array
	for _, v := range vals {
		if v != "" {
			arr = append(arr, ir.String(v))
		}
	}
	if len(arr) == 0 {
		return nil
	}
	return arr
}
