package registry

import (
	"regexp"
	"regexp/syntax"
	"strings"

	"github.com/roach88/marcbridge/internal/ir"
)

// Rule maps one pattern, in one direction, to a handler and target key.
//
// For ToStructured rules Pattern matches legacy tag keys ("0247_") and Key
// is the structured key (or ir.SelfKey). For ToLegacy rules Pattern matches
// structured keys and Key is the legacy tag key fields are built from.
//
// Repeatable means the tag may recur. For a structured key it also means
// the key holds a list. A singular rule handles only the first occurrence
// of its tag in a record.
type Rule struct {
	Direction  ir.Direction
	Pattern    string
	Key        string
	Repeatable bool
	When       *When

	// Handler names the handler for diagnostics and fingerprints.
	Handler string
	Forward ForwardFunc
	Reverse ReverseFunc

	// Spec is the declaration the rule was compiled from. Builtin handlers
	// read their parameters (subfield code, mappings, reference) from it.
	Spec ir.RuleSpec

	re       *regexp.Regexp
	prefix   string
	complete bool
	order    int
}

// Matches reports whether the rule's pattern matches input.
func (r *Rule) Matches(input string) bool {
	return r.re.MatchString(input)
}

// Accepts reports whether the rule's discriminator admits f.
func (r *Rule) Accepts(f ir.Field) bool {
	return r.When.Accepts(f)
}

// Specificity is the length of the pattern's literal prefix.
func (r *Rule) Specificity() int {
	return len(r.prefix)
}

// Discriminated reports whether the rule carries a discriminator.
func (r *Rule) Discriminated() bool {
	return !r.When.IsZero()
}

// outranks reports whether r precedes o among candidates.
func (r *Rule) outranks(o *Rule) bool {
	if r.Specificity() != o.Specificity() {
		return r.Specificity() > o.Specificity()
	}
	if r.Discriminated() != o.Discriminated() {
		return r.Discriminated()
	}
	return r.order < o.order
}

// When is a declared discriminator inspected before a handler runs. All
// constraints must hold. The zero When accepts every field.
type When struct {
	// Present requires the subfield code to occur.
	Present string
	// Absent requires the subfield code not to occur.
	Absent string
	// Equals requires, per entry, that the first value of the code equals
	// the given value (case-insensitively).
	Equals []ir.Subfield
}

// WhenFromSpec converts a declared discriminator. Nil in, nil out.
func WhenFromSpec(s *ir.WhenSpec) *When {
	if s == nil {
		return nil
	}
	w := &When{Present: s.Present, Absent: s.Absent, Equals: s.Equals}
	if w.IsZero() {
		return nil
	}
	return w
}

// IsZero reports whether w imposes no constraint.
func (w *When) IsZero() bool {
	return w == nil || (w.Present == "" && w.Absent == "" && len(w.Equals) == 0)
}

// Accepts reports whether f satisfies every constraint.
func (w *When) Accepts(f ir.Field) bool {
	if w.IsZero() {
		return true
	}
	if w.Present != "" && !f.Has(w.Present) {
		return false
	}
	if w.Absent != "" && f.Has(w.Absent) {
		return false
	}
	for _, eq := range w.Equals {
		v, ok := f.Get(eq.Code)
		if !ok || !strings.EqualFold(strings.TrimSpace(v), eq.Value) {
			return false
		}
	}
	return true
}

// required returns the subfield codes w requires to be present.
func (w *When) required() []string {
	var out []string
	if w.Present != "" {
		out = append(out, w.Present)
	}
	for _, eq := range w.Equals {
		out = append(out, eq.Code)
	}
	return out
}

// Disjoint reports whether no field can satisfy both w and o: one requires
// a subfield the other forbids, or both pin the same subfield to different
// values.
func (w *When) Disjoint(o *When) bool {
	if w.IsZero() || o.IsZero() {
		return false
	}
	for _, code := range w.required() {
		if code == o.Absent {
			return true
		}
	}
	for _, code := range o.required() {
		if code == w.Absent {
			return true
		}
	}
	for _, a := range w.Equals {
		for _, b := range o.Equals {
			if a.Code == b.Code && !strings.EqualFold(a.Value, b.Value) {
				return true
			}
		}
	}
	return false
}

// literalPrefix returns the literal text every match of pattern starts
// with (after an optional ^ anchor) and whether the pattern is exactly that
// literal (optionally followed by $).
func literalPrefix(pattern string) (string, bool, error) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return "", false, err
	}
	re = re.Simplify()

	subs := []*syntax.Regexp{re}
	if re.Op == syntax.OpConcat {
		subs = re.Sub
	}

	var b strings.Builder
	anchored := false
	for i, sub := range subs {
		switch {
		case sub.Op == syntax.OpBeginText && i == 0:
			anchored = true
		case sub.Op == syntax.OpLiteral && sub.Flags&syntax.FoldCase == 0:
			for _, r := range sub.Rune {
				b.WriteRune(r)
			}
		case sub.Op == syntax.OpEndText && i == len(subs)-1:
			return b.String(), anchored, nil
		default:
			if !anchored {
				// An unanchored pattern may match anywhere in the input.
				return "", false, nil
			}
			return b.String(), false, nil
		}
	}
	if !anchored {
		return "", false, nil
	}
	return b.String(), false, nil
}
