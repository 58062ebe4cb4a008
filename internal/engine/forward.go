package engine

import (
	"context"

	"github.com/roach88/marcbridge/internal/coerce"
	"github.com/roach88/marcbridge/internal/diag"
	"github.com/roach88/marcbridge/internal/ir"
	"github.com/roach88/marcbridge/internal/registry"
)

// ToStructured converts a legacy record into a structured record.
//
// Occurrences are visited in source order. A repeatable rule appends one
// element per occurrence in arrival order. A singular rule handles only the
// first occurrence of its tag; every later one is skipped with exactly one
// DuplicateSingularFieldWarning. Fields no rule accepts produce an
// UnmappedFieldWarning and no output.
func (d *Dispatcher) ToStructured(ctx context.Context, model string, rec ir.LegacyRecord) (ir.Object, diag.Warnings, error) {
	m, ok := d.reg.Model(model)
	if !ok {
		return nil, nil, newUnknownModelError(model)
	}

	out := ir.Object{}
	r := newRun(d, model, ir.ToStructured, out)
	seen := make(map[*registry.Rule]bool)

	for i, f := range rec {
		r.at(f.TagKey(), i)

		rule := d.reg.Resolve(model, f)
		if rule == nil {
			r.warn.Unmapped(r.field, i)
			continue
		}
		if !rule.Repeatable {
			if seen[rule] {
				r.warn.DuplicateSingular(r.field, i, rule.Key)
				continue
			}
			seen[rule] = true
		}

		res := rule.Forward(r, rule, f)
		r.apply(rule, res, out)
	}

	for i, fin := range d.reg.Finalizers(model, ir.ToStructured) {
		r.at(fin.Name, i)
		fin.Structured(r, out)
	}

	if m.Postprocess.FilterEmpty {
		out = coerce.FilterEmptyObject(out)
	}
	if m.Postprocess.Dedupe {
		coerce.DedupeLists(out)
	}

	ws := r.warn.Warnings()
	d.finish(ctx, model, ir.ToStructured, len(rec), ws)
	return out, ws, nil
}

// apply accumulates a handler result into out.
func (r *run) apply(rule *registry.Rule, res registry.Result, out ir.Object) {
	switch res.Outcome {
	case registry.OutcomeEmit:
		for _, v := range res.Values {
			r.accumulate(out, rule.Key, rule.Repeatable, v)
		}
	case registry.OutcomeRedirect:
		repeatable, declared := r.d.reg.Multiplicity(r.model, res.Key)
		for _, v := range res.Values {
			if !declared {
				_, repeatable = v.(ir.Array)
			}
			r.accumulate(out, res.Key, repeatable, v)
		}
	}
	for _, next := range res.Then {
		r.apply(rule, next, out)
	}
}

// accumulate writes v under key.
//
// Repeatable keys append (a list value extends). Singular keys are set once;
// a later object merges into an existing object, anything else keeps the
// first value and warns. The self key merges an object into the top level.
func (r *run) accumulate(out ir.Object, key string, repeatable bool, v ir.Value) {
	if key == ir.SelfKey {
		r.mergeSelf(out, v)
		return
	}
	if repeatable {
		list := coerce.ForceList(out[key])
		if arr, ok := v.(ir.Array); ok {
			list = append(list, arr...)
		} else {
			list = append(list, v)
		}
		out[key] = list
		return
	}

	existing, ok := out[key]
	if !ok {
		out[key] = v
		return
	}
	dst, dstObj := existing.(ir.Object)
	src, srcObj := v.(ir.Object)
	if dstObj && srcObj {
		merged, clean := mergeObjects(dst, src)
		out[key] = merged
		if !clean {
			r.warn.DuplicateSingular(r.field, r.index, key)
		}
		return
	}
	if !ir.Equal(existing, v) {
		r.warn.DuplicateSingular(r.field, r.index, key)
	}
}

// mergeSelf spreads an object's keys over the top level. Each key follows
// its declared multiplicity; undeclared keys are lists when the value is.
func (r *run) mergeSelf(out ir.Object, v ir.Value) {
	obj, ok := v.(ir.Object)
	if !ok {
		r.Malformed(ir.SelfKey, "handler for a self rule must emit an object")
		return
	}
	for _, k := range obj.SortedKeys() {
		val := obj[k]
		repeatable, declared := r.d.reg.Multiplicity(r.model, k)
		if !declared {
			_, repeatable = val.(ir.Array)
		}
		r.accumulate(out, k, repeatable, val)
	}
}

// mergeObjects fills keys missing from dst with src's values and
// concatenates list sub-keys. clean is false when a scalar sub-key held two
// different values; the dst value is kept.
func mergeObjects(dst, src ir.Object) (ir.Object, bool) {
	merged := make(ir.Object, len(dst)+len(src))
	for k, v := range dst {
		merged[k] = v
	}
	clean := true
	for _, k := range src.SortedKeys() {
		sv := src[k]
		dv, ok := merged[k]
		if !ok {
			merged[k] = sv
			continue
		}
		switch d := dv.(type) {
		case ir.Array:
			merged[k] = append(append(ir.Array{}, d...), coerce.ForceList(sv)...)
		case ir.Object:
			if so, isObj := sv.(ir.Object); isObj {
				var inner bool
				merged[k], inner = mergeObjects(d, so)
				clean = clean && inner
			} else {
				clean = false
			}
		default:
			if !ir.Equal(dv, sv) {
				clean = false
			}
		}
	}
	return merged, clean
}
