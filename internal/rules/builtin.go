package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/marcbridge/internal/coerce"
	"github.com/roach88/marcbridge/internal/ir"
	"github.com/roach88/marcbridge/internal/registry"
)

// defaultCode is the subfield a builtin reads when the rule names none.
const defaultCode = "a"

// listSuffix on a subfield mapping key collects every occurrence of the
// code into a list instead of keeping the first.
const listSuffix = "[]"

func ruleCode(r *registry.Rule) string {
	if r.Spec.Code != "" {
		return r.Spec.Code
	}
	return defaultCode
}

// texts normalizes vals and drops the ones left empty.
func texts(vals []string) []string {
	var out []string
	for _, v := range vals {
		if t := coerce.Text(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func firstText(f ir.Field, code string) string {
	for _, v := range f.All(code) {
		if t := coerce.Text(v); t != "" {
			return t
		}
	}
	return ""
}

func stringValues(vals []string) []ir.Value {
	out := make([]ir.Value, len(vals))
	for i, v := range vals {
		out[i] = ir.String(v)
	}
	return out
}

// scalarText renders a scalar value as subfield text.
func scalarText(v ir.Value) (string, bool) {
	switch val := v.(type) {
	case ir.String:
		return string(val), true
	case ir.Int:
		return strconv.FormatInt(int64(val), 10), true
	case ir.Bool:
		return strconv.FormatBool(bool(val)), true
	}
	return "", false
}

// scalarTexts renders a scalar or a list of scalars.
func scalarTexts(v ir.Value) []string {
	var out []string
	for _, elem := range coerce.ForceList(v) {
		if s, ok := scalarText(elem); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// newField starts an output field for a to_legacy rule, carrying the
// rule's fixed subfields.
func newField(r *registry.Rule) ir.Field {
	f := ir.FieldFromTagKey(r.Key)
	for _, sf := range r.Spec.Fixed {
		f = f.Add(sf.Code, sf.Value)
	}
	return f
}

func controlForward(ctx registry.Context, r *registry.Rule, f ir.Field) registry.Result {
	raw := strings.TrimSpace(f.Value)
	if raw == "" {
		raw = f.First(defaultCode)
	}
	n := coerce.Int(raw)
	if n == nil {
		if raw != "" {
			ctx.Malformed(r.Key, fmt.Sprintf("control number %q is not an integer", raw))
		}
		return registry.Ignore()
	}
	return registry.Emit(n)
}

func controlReverse(ctx registry.Context, r *registry.Rule, v ir.Value) []ir.Field {
	s := coerce.IntString(v)
	if s == "" {
		ctx.Malformed(r.Key, "control number must be an integer")
		return nil
	}
	f := ir.FieldFromTagKey(r.Key)
	f.Value = s
	return []ir.Field{f}
}

// valueForward emits the text of the rule's subfield: every occurrence for
// a repeatable rule, the first otherwise. Control fields emit their value.
func valueForward(_ registry.Context, r *registry.Rule, f ir.Field) registry.Result {
	if f.IsControl() {
		return registry.Emit(coerce.StringOrNil(coerce.Text(f.Value)))
	}
	if r.Repeatable {
		return registry.EmitEach(stringValues(texts(f.All(ruleCode(r))))...)
	}
	return registry.Emit(coerce.StringOrNil(firstText(f, ruleCode(r))))
}

func valueReverse(ctx registry.Context, r *registry.Rule, v ir.Value) []ir.Field {
	s, ok := scalarText(v)
	if !ok {
		ctx.Malformed(r.Key, fmt.Sprintf("expected a scalar, got %T", v))
		return nil
	}
	f := newField(r)
	if f.IsControl() {
		f.Value = s
		return []ir.Field{f}
	}
	return []ir.Field{f.Add(ruleCode(r), s)}
}

func intForward(ctx registry.Context, r *registry.Rule, f ir.Field) registry.Result {
	raw := firstText(f, ruleCode(r))
	n := coerce.Int(raw)
	if n == nil && raw != "" {
		ctx.Malformed(r.Key, fmt.Sprintf("%q is not an integer", raw))
	}
	return registry.Emit(n)
}

func intReverse(ctx registry.Context, r *registry.Rule, v ir.Value) []ir.Field {
	s := coerce.IntString(v)
	if s == "" {
		ctx.Malformed(r.Key, "expected an integer")
		return nil
	}
	return []ir.Field{newField(r).Add(ruleCode(r), s)}
}

func dateForward(ctx registry.Context, r *registry.Rule, f ir.Field) registry.Result {
	raw := firstText(f, ruleCode(r))
	d := coerce.Date(raw)
	if d == nil && raw != "" {
		ctx.Malformed(r.Key, fmt.Sprintf("%q is not a date", raw))
	}
	return registry.Emit(d)
}

// listForward emits every occurrence of the rule's subfield as one list.
func listForward(_ registry.Context, r *registry.Rule, f ir.Field) registry.Result {
	return registry.Emit(coerce.StringsOrNil(texts(f.All(ruleCode(r)))))
}

func listReverse(_ registry.Context, r *registry.Rule, v ir.Value) []ir.Field {
	f := newField(r)
	for _, s := range scalarTexts(v) {
		f = f.Add(ruleCode(r), s)
	}
	return []ir.Field{f}
}

// objectForward builds an object from the rule's subfield mappings, plus a
// curated relation when the rule declares a reference.
func objectForward(ctx registry.Context, r *registry.Rule, f ir.Field) registry.Result {
	obj := ir.Object{}
	for _, m := range r.Spec.Subfields {
		key, many := strings.CutSuffix(m.Key, listSuffix)
		if many {
			if v := coerce.StringsOrNil(texts(f.All(m.Code))); v != nil {
				obj[key] = v
			}
			continue
		}
		if s := firstText(f, m.Code); s != "" {
			obj[key] = ir.String(s)
		}
	}

	if ref := r.Spec.Ref; ref != nil {
		raw := firstText(f, ref.Code)
		if len(obj) == 0 && raw == "" {
			return registry.Ignore()
		}
		id := coerce.StringOrNil(raw)
		if raw != "" && ctx.Refs().ToReference(id, ref.Collection) == nil {
			ctx.Malformed(r.Key, fmt.Sprintf("%q is not a record id", raw))
		}
		for k, v := range ctx.Refs().Relation(id, ref.Collection, ref.Key, ref.Curated) {
			obj[k] = v
		}
	}

	if len(obj) == 0 {
		return registry.Ignore()
	}
	return registry.Emit(obj)
}

func objectReverse(ctx registry.Context, r *registry.Rule, v ir.Value) []ir.Field {
	obj, ok := v.(ir.Object)
	if !ok {
		ctx.Malformed(r.Key, fmt.Sprintf("expected an object, got %T", v))
		return nil
	}
	f := newField(r)
	for _, m := range r.Spec.Subfields {
		key, _ := strings.CutSuffix(m.Key, listSuffix)
		for _, s := range scalarTexts(obj[key]) {
			f = f.Add(m.Code, s)
		}
	}
	if ref := r.Spec.Ref; ref != nil {
		if id, ok := ctx.Refs().FromReference(obj[ref.Key]); ok {
			f = f.Add(ref.Code, strconv.FormatInt(id, 10))
		}
	}
	return []ir.Field{f}
}

// flagForward marks the rule's key true whenever the field occurs.
func flagForward(registry.Context, *registry.Rule, ir.Field) registry.Result {
	return registry.Emit(ir.Bool(true))
}

// flagReverse emits the rule's fixed subfields for a true flag and nothing
// for false.
func flagReverse(ctx registry.Context, r *registry.Rule, v ir.Value) []ir.Field {
	b, ok := v.(ir.Bool)
	if !ok {
		ctx.Malformed(r.Key, fmt.Sprintf("expected a boolean, got %T", v))
		return nil
	}
	if !b {
		return nil
	}
	return []ir.Field{newField(r)}
}

func ignoreForward(registry.Context, *registry.Rule, ir.Field) registry.Result {
	return registry.Ignore()
}

func ignoreReverse(registry.Context, *registry.Rule, ir.Value) []ir.Field {
	return nil
}
