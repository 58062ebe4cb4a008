package registry

import (
	"sort"

	"github.com/roach88/marcbridge/internal/ir"
)

// Model describes one domain model and its conversion settings.
type Model struct {
	Name        string
	Collection  string
	Schema      string
	Postprocess ir.PostprocessSpec
}

// table holds the rules of one model in one direction.
type table struct {
	rules      []*Rule
	index      map[string][]*Rule
	wildcard   []*Rule
	repeatable map[string]bool
	finalizers []Finalizer
}

func newTable() *table {
	return &table{
		index:      make(map[string][]*Rule),
		repeatable: make(map[string]bool),
	}
}

type modelEntry struct {
	Model
	tables map[ir.Direction]*table
}

// Registry is the immutable, process-wide rule table.
type Registry struct {
	models      map[string]*modelEntry
	fingerprint string
}

// indexKey returns the bucket a rule is filed under, or false when the rule
// must be checked against every input.
func indexKey(dir ir.Direction, r *Rule) (string, bool) {
	if dir == ir.ToLegacy {
		return r.prefix, r.complete
	}
	if len(r.prefix) < tagCodeLen {
		return "", false
	}
	return r.prefix[:tagCodeLen], true
}

// lookupKey returns the bucket an input is looked up in.
func lookupKey(dir ir.Direction, input string) string {
	if dir == ir.ToLegacy || len(input) < tagCodeLen {
		return input
	}
	return input[:tagCodeLen]
}

func (r *Registry) table(model string, dir ir.Direction) *table {
	m, ok := r.models[model]
	if !ok {
		return nil
	}
	return m.tables[dir]
}

// Match returns every rule of model/dir whose pattern matches input,
// most preferred first. Unknown models yield nil.
func (r *Registry) Match(model string, dir ir.Direction, input string) []*Rule {
	t := r.table(model, dir)
	if t == nil {
		return nil
	}
	var out []*Rule
	for _, rule := range t.index[lookupKey(dir, input)] {
		if rule.Matches(input) {
			out = append(out, rule)
		}
	}
	for _, rule := range t.wildcard {
		if rule.Matches(input) {
			out = append(out, rule)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].outranks(out[j])
	})
	return out
}

// Resolve returns the preferred rule for a legacy field: the first
// candidate whose discriminator accepts it. Nil means unmapped.
func (r *Registry) Resolve(model string, f ir.Field) *Rule {
	for _, rule := range r.Match(model, ir.ToStructured, f.TagKey()) {
		if rule.Accepts(f) {
			return rule
		}
	}
	return nil
}

// ResolveKey returns the preferred rule for a structured key, or nil.
func (r *Registry) ResolveKey(model, key string) *Rule {
	candidates := r.Match(model, ir.ToLegacy, key)
	if len(candidates) == 0 {
		return nil
	}
	return candidates[0]
}

// Rules returns the rules of model/dir in registration order.
func (r *Registry) Rules(model string, dir ir.Direction) []*Rule {
	t := r.table(model, dir)
	if t == nil {
		return nil
	}
	out := make([]*Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Finalizers returns the finalizers of model/dir in registration order.
func (r *Registry) Finalizers(model string, dir ir.Direction) []Finalizer {
	t := r.table(model, dir)
	if t == nil {
		return nil
	}
	out := make([]Finalizer, len(t.finalizers))
	copy(out, t.finalizers)
	return out
}

// Multiplicity reports whether key is declared repeatable by a
// ToStructured rule of model. declared is false when no rule targets key.
func (r *Registry) Multiplicity(model, key string) (repeatable, declared bool) {
	t := r.table(model, ir.ToStructured)
	if t == nil {
		return false, false
	}
	repeatable, declared = t.repeatable[key]
	return repeatable, declared
}

// Model returns the settings of a model.
func (r *Registry) Model(name string) (Model, bool) {
	m, ok := r.models[name]
	if !ok {
		return Model{}, false
	}
	return m.Model, true
}

// Models returns every model name, sorted.
func (r *Registry) Models() []string {
	out := make([]string, 0, len(r.models))
	for name := range r.models {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Fingerprint identifies the rule sets the registry was built from.
// Empty when the builder was given none.
func (r *Registry) Fingerprint() string {
	return r.fingerprint
}
