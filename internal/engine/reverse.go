package engine

import (
	"context"
	"sort"

	"github.com/roach88/marcbridge/internal/coerce"
	"github.com/roach88/marcbridge/internal/diag"
	"github.com/roach88/marcbridge/internal/ir"
)

// ToLegacy converts a structured record into a legacy record.
//
// Keys are visited in sorted order. A repeatable rule's handler runs once
// per list element; a singular rule's handler sees the whole value. Output
// fields are stably sorted by tag, and empty subfields and empty fields are
// dropped. Occurrences of a tag several keys share come back grouped by key:
// order holds within a key, not across keys.
func (d *Dispatcher) ToLegacy(ctx context.Context, model string, obj ir.Object) (ir.LegacyRecord, diag.Warnings, error) {
	if _, ok := d.reg.Model(model); !ok {
		return nil, nil, newUnknownModelError(model)
	}

	r := newRun(d, model, ir.ToLegacy, obj)
	var out ir.LegacyRecord

	for i, key := range obj.SortedKeys() {
		r.at(key, i)

		rule := d.reg.ResolveKey(model, key)
		if rule == nil {
			r.warn.Unmapped(key, i)
			continue
		}

		v := obj[key]
		if rule.Repeatable {
			for _, elem := range coerce.ForceList(v) {
				out = append(out, rule.Reverse(r, rule, elem)...)
			}
			continue
		}
		out = append(out, rule.Reverse(r, rule, v)...)
	}

	for i, fin := range d.reg.Finalizers(model, ir.ToLegacy) {
		r.at(fin.Name, i)
		fin.Legacy(r, &out)
	}

	out = cleanFields(out)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Tag < out[j].Tag
	})

	ws := r.warn.Warnings()
	d.finish(ctx, model, ir.ToLegacy, len(obj), ws)
	return out, ws, nil
}

// cleanFields drops empty subfields and fields left with no data. The
// result is non-nil.
func cleanFields(fields ir.LegacyRecord) ir.LegacyRecord {
	out := make(ir.LegacyRecord, 0, len(fields))
	for _, f := range fields {
		if len(f.Subfields) > 0 {
			kept := make([]ir.Subfield, 0, len(f.Subfields))
			for _, sf := range f.Subfields {
				if sf.Value != "" {
					kept = append(kept, sf)
				}
			}
			f.Subfields = kept
		}
		if f.IsEmpty() {
			continue
		}
		if len(f.Subfields) == 0 {
			f.Subfields = nil
		}
		out = append(out, f)
	}
	return out
}
