package ir

import "fmt"

// RawSubfield is the closed set of shapes a subfield value may take before
// tokenization settles it. Only Scalar, ScalarList, and Node implement it.
// Decoders resolve incoming values here once, so handlers only ever see
// plain Subfield strings.
type RawSubfield interface {
	// Values returns the subfield values in order. Empty strings are kept;
	// callers decide whether to drop them.
	Values() []string
}

// Scalar is a single string value.
type Scalar string

// Values implements RawSubfield.
func (s Scalar) Values() []string { return []string{string(s)} }

// ScalarList is a repeated subfield given as a list of strings.
type ScalarList []Scalar

// Values implements RawSubfield.
func (l ScalarList) Values() []string {
	out := make([]string, len(l))
	for i, s := range l {
		out[i] = string(s)
	}
	return out
}

// Node is an element-like value exposing its text content.
type Node struct {
	Text string
}

// Values implements RawSubfield.
func (n Node) Values() []string { return []string{n.Text} }

// ResolveRawSubfield classifies a decoded value into a RawSubfield.
// Integers and booleans are rendered as text; anything else is rejected.
func ResolveRawSubfield(v Value) (RawSubfield, error) {
	switch val := v.(type) {
	case nil, Null:
		return Scalar(""), nil
	case String:
		return Scalar(val), nil
	case Int:
		return Scalar(fmt.Sprintf("%d", val)), nil
	case Bool:
		return Scalar(fmt.Sprintf("%t", val)), nil
	case Array:
		list := make(ScalarList, 0, len(val))
		for i, elem := range val {
			inner, err := ResolveRawSubfield(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			if _, nested := inner.(ScalarList); nested {
				return nil, fmt.Errorf("[%d]: nested lists are not subfield values", i)
			}
			for _, s := range inner.Values() {
				list = append(list, Scalar(s))
			}
		}
		return list, nil
	case Object:
		text, ok := val.GetString("text")
		if !ok {
			return nil, fmt.Errorf("node value must carry a string \"text\"")
		}
		return Node{Text: text}, nil
	default:
		return nil, fmt.Errorf("unsupported subfield value type %T", v)
	}
}
