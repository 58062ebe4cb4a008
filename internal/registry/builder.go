package registry

import (
	"fmt"
	"regexp"

	"github.com/roach88/marcbridge/internal/ir"
)

// Builder assembles a Registry. It is not safe for concurrent use and is
// spent by Build.
type Builder struct {
	models      map[string]*modelEntry
	order       int
	fingerprint string
	built       bool
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{models: make(map[string]*modelEntry)}
}

// AddModel declares a model. Rules and finalizers may only be registered
// for declared models.
func (b *Builder) AddModel(m Model) error {
	if err := b.checkOpen(m.Name); err != nil {
		return err
	}
	if m.Name == "" {
		return &ConfigError{Message: "model name is required"}
	}
	if _, exists := b.models[m.Name]; exists {
		return &ConfigError{Model: m.Name, Message: "model declared twice"}
	}
	b.models[m.Name] = &modelEntry{
		Model: m,
		tables: map[ir.Direction]*table{
			ir.ToStructured: newTable(),
			ir.ToLegacy:     newTable(),
		},
	}
	return nil
}

// Register adds a rule to model. It fails fast with an AmbiguousRuleError
// when the rule could match the same input as an existing rule with no
// deterministic precedence between them, and with a ConfigError when the
// rule itself is malformed.
func (b *Builder) Register(model string, rule Rule) error {
	if err := b.checkOpen(model); err != nil {
		return err
	}
	entry, ok := b.models[model]
	if !ok {
		return &ConfigError{Model: model, Pattern: rule.Pattern, Message: "unknown model"}
	}

	r := rule
	if err := b.prepare(model, &r); err != nil {
		return err
	}
	t := entry.tables[r.Direction]

	if r.Direction == ir.ToStructured && r.Key != ir.SelfKey {
		if repeatable, declared := t.repeatable[r.Key]; declared && repeatable != r.Repeatable {
			return &ConfigError{
				Model:   model,
				Pattern: r.Pattern,
				Message: fmt.Sprintf("key %q is declared both repeatable and singular", r.Key),
			}
		}
	}

	for _, existing := range t.rules {
		if err := conflict(model, r.Direction, existing, &r); err != nil {
			return err
		}
	}

	b.order++
	r.order = b.order
	stored := &r
	t.rules = append(t.rules, stored)
	if key, ok := indexKey(r.Direction, stored); ok {
		t.index[key] = append(t.index[key], stored)
	} else {
		t.wildcard = append(t.wildcard, stored)
	}
	if r.Direction == ir.ToStructured && r.Key != ir.SelfKey {
		t.repeatable[r.Key] = r.Repeatable
	}
	return nil
}

// prepare validates a rule and compiles its pattern.
func (b *Builder) prepare(model string, r *Rule) error {
	fail := func(format string, args ...any) error {
		return &ConfigError{Model: model, Pattern: r.Pattern, Message: fmt.Sprintf(format, args...)}
	}

	if !ir.ValidDirections[r.Direction] {
		return fail("invalid direction %q", r.Direction)
	}
	if r.Pattern == "" {
		return fail("pattern is required")
	}
	if r.Key == "" {
		return fail("target key is required")
	}
	switch r.Direction {
	case ir.ToStructured:
		if r.Forward == nil {
			return fail("to_structured rule needs a forward handler")
		}
	case ir.ToLegacy:
		if r.Reverse == nil {
			return fail("to_legacy rule needs a reverse handler")
		}
		if !r.When.IsZero() {
			return fail("discriminators apply only to to_structured rules")
		}
	}

	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		return fail("invalid pattern: %v", err)
	}
	prefix, complete, err := literalPrefix(r.Pattern)
	if err != nil {
		return fail("invalid pattern: %v", err)
	}
	r.re = re
	r.prefix = prefix
	r.complete = complete
	if r.When.IsZero() {
		r.When = nil
	}
	return nil
}

// conflict returns an AmbiguousRuleError when existing and r can match the
// same input with no precedence between them.
func conflict(model string, dir ir.Direction, existing, r *Rule) error {
	if existing.Specificity() != r.Specificity() || existing.Key == r.Key {
		return nil
	}
	// A discriminated rule paired with an undiscriminated fallback is ordered.
	if existing.Discriminated() != r.Discriminated() {
		return nil
	}
	if existing.Discriminated() && existing.When.Disjoint(r.When) {
		return nil
	}
	example, overlaps := overlapExample(dir, existing, r)
	if !overlaps {
		return nil
	}
	return &AmbiguousRuleError{
		Model:       model,
		Direction:   dir,
		Example:     example,
		Existing:    existing.Pattern,
		New:         r.Pattern,
		ExistingKey: existing.Key,
		NewKey:      r.Key,
	}
}

// AddFinalizer appends a finalizer to model. Finalizers run in the order
// they were added.
func (b *Builder) AddFinalizer(model string, f Finalizer) error {
	if err := b.checkOpen(model); err != nil {
		return err
	}
	entry, ok := b.models[model]
	if !ok {
		return &ConfigError{Model: model, Message: fmt.Sprintf("finalizer %q: unknown model", f.Name)}
	}
	switch {
	case f.Direction == ir.ToStructured && f.Structured != nil && f.Legacy == nil:
	case f.Direction == ir.ToLegacy && f.Legacy != nil && f.Structured == nil:
	default:
		return &ConfigError{Model: model, Message: fmt.Sprintf("finalizer %q: function does not match direction %q", f.Name, f.Direction)}
	}
	t := entry.tables[f.Direction]
	t.finalizers = append(t.finalizers, f)
	return nil
}

// SetFingerprint records the identity of the rule sets being registered.
func (b *Builder) SetFingerprint(fp string) {
	b.fingerprint = fp
}

// Build returns the finished registry. The builder cannot be used again.
func (b *Builder) Build() (*Registry, error) {
	if b.built {
		return nil, &ConfigError{Message: "builder already built"}
	}
	b.built = true
	reg := &Registry{models: b.models, fingerprint: b.fingerprint}
	b.models = nil
	return reg, nil
}

func (b *Builder) checkOpen(model string) error {
	if b.built {
		return &ConfigError{Model: model, Message: "builder already built"}
	}
	return nil
}
