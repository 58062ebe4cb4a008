package rules

import (
	"errors"
	"fmt"

	"github.com/roach88/marcbridge/internal/compiler"
	"github.com/roach88/marcbridge/internal/ir"
	"github.com/roach88/marcbridge/internal/registry"
)

// BindError reports a rule or finalizer that names something the catalog
// cannot provide.
type BindError struct {
	Model   string
	Name    string
	Pos     string
	Message string
}

func (e *BindError) Error() string {
	if e.Pos != "" {
		return fmt.Sprintf("%s: %s: %q: %s", e.Pos, e.Model, e.Name, e.Message)
	}
	return fmt.Sprintf("%s: %q: %s", e.Model, e.Name, e.Message)
}

// Build validates specs, binds every rule and finalizer to the catalog and
// returns the resulting registry. Any validation error, unknown handler or
// ambiguous rule pair fails the whole build.
func Build(specs []ir.RuleSetSpec) (*registry.Registry, error) {
	if verrs := compiler.Validate(specs); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, verr := range verrs {
			errs[i] = verr
		}
		return nil, fmt.Errorf("invalid rule sets: %w", errors.Join(errs...))
	}

	fp, err := ir.RuleSetHash(specs)
	if err != nil {
		return nil, err
	}

	b := registry.NewBuilder()
	b.SetFingerprint(fp)
	for _, spec := range specs {
		if err := register(b, spec); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

func register(b *registry.Builder, spec ir.RuleSetSpec) error {
	err := b.AddModel(registry.Model{
		Name:        spec.Model,
		Collection:  spec.Collection,
		Schema:      spec.Schema,
		Postprocess: spec.Postprocess,
	})
	if err != nil {
		return err
	}

	for _, rs := range spec.Rules {
		rule, err := bind(spec.Model, rs)
		if err != nil {
			return err
		}
		if err := b.Register(spec.Model, rule); err != nil {
			if rs.Pos == "" {
				return err
			}
			return fmt.Errorf("%s: %w", rs.Pos, err)
		}
	}

	for _, fs := range spec.Finalizers {
		newFinalizer, ok := finalizers[fs.Name]
		if !ok {
			return &BindError{Model: spec.Model, Name: fs.Name, Message: "unknown finalizer"}
		}
		fin := newFinalizer(spec)
		if fin.Direction != fs.Direction {
			return &BindError{
				Model:   spec.Model,
				Name:    fs.Name,
				Message: fmt.Sprintf("finalizer runs %s only", fin.Direction),
			}
		}
		if err := b.AddFinalizer(spec.Model, fin); err != nil {
			return err
		}
	}
	return nil
}

// bind resolves a compiled rule's handler for the rule's direction.
func bind(model string, rs ir.RuleSpec) (registry.Rule, error) {
	h, ok := handlers[rs.Handler]
	if !ok {
		return registry.Rule{}, &BindError{Model: model, Name: rs.Handler, Pos: rs.Pos, Message: "unknown handler"}
	}
	rule := registry.Rule{
		Direction:  rs.Direction,
		Pattern:    rs.Pattern,
		Key:        rs.Key,
		Repeatable: rs.Repeatable,
		When:       registry.WhenFromSpec(rs.When),
		Handler:    rs.Handler,
		Spec:       rs,
	}
	switch rs.Direction {
	case ir.ToStructured:
		rule.Forward = h.Forward
	case ir.ToLegacy:
		rule.Reverse = h.Reverse
	}
	if rule.Forward == nil && rule.Reverse == nil {
		return registry.Rule{}, &BindError{
			Model:   model,
			Name:    rs.Handler,
			Pos:     rs.Pos,
			Message: fmt.Sprintf("handler cannot convert %s", rs.Direction),
		}
	}
	return rule, nil
}
