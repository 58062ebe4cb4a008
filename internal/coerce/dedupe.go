package coerce

import "github.com/roach88/marcbridge/internal/ir"

// pairwiseLimit is the list length up to which Dedupe compares elements
// pairwise. Longer lists are bucketed by content hash first.
const pairwiseLimit = 10

// Dedupe removes duplicate elements preserving first-seen order. Objects
// compare structurally, so key order never matters.
func Dedupe(list ir.Array) ir.Array {
	if len(list) <= 1 {
		return list
	}
	if len(list) <= pairwiseLimit {
		return dedupePairwise(list)
	}
	return dedupeBucketed(list)
}

func dedupePairwise(list ir.Array) ir.Array {
	out := make(ir.Array, 0, len(list))
	for _, elem := range list {
		if !containsEqual(out, elem) {
			out = append(out, elem)
		}
	}
	return out
}

func dedupeBucketed(list ir.Array) ir.Array {
	out := make(ir.Array, 0, len(list))
	buckets := make(map[string]ir.Array, len(list))
	for _, elem := range list {
		key, err := ir.ValueHash(elem)
		if err != nil {
			// Unhashable values are compared against everything kept so far.
			if !containsEqual(out, elem) {
				out = append(out, elem)
			}
			continue
		}
		if containsEqual(buckets[key], elem) {
			continue
		}
		buckets[key] = append(buckets[key], elem)
		out = append(out, elem)
	}
	return out
}

func containsEqual(list ir.Array, v ir.Value) bool {
	for _, elem := range list {
		if ir.Equal(elem, v) {
			return true
		}
	}
	return false
}

// DedupeLists applies Dedupe to every top-level list of obj in place.
func DedupeLists(obj ir.Object) {
	for k, v := range obj {
		if arr, ok := v.(ir.Array); ok {
			obj[k] = Dedupe(arr)
		}
	}
}
