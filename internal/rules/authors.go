package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/marcbridge/internal/coerce"
	"github.com/roach88/marcbridge/internal/ir"
	"github.com/roach88/marcbridge/internal/registry"
)

// nameVariantTag carries one alternative spelling of an author's name.
const nameVariantTag = "400"

func authorNameForward(_ registry.Context, _ *registry.Rule, f ir.Field) registry.Result {
	return registry.Emit(ir.NewObject(
		ir.O("value", coerce.StringOrNil(firstText(f, "a"))),
		ir.O("numeration", coerce.StringOrNil(firstText(f, "b"))),
		ir.O("title", coerce.StringOrNil(firstText(f, "c"))),
		ir.O("preferred_name", coerce.StringOrNil(firstText(f, "q"))),
	))
}

// nameVariantForward folds each 400 occurrence into name.name_variants.
func nameVariantForward(_ registry.Context, _ *registry.Rule, f ir.Field) registry.Result {
	variants := coerce.StringsOrNil(texts(f.All("a")))
	if variants == nil {
		return registry.Ignore()
	}
	return registry.Emit(ir.Object{
		"name": ir.Object{"name_variants": variants},
	})
}

// authorNameReverse writes the name as 100 and each variant as its own 400.
func authorNameReverse(ctx registry.Context, r *registry.Rule, v ir.Value) []ir.Field {
	name, ok := v.(ir.Object)
	if !ok {
		ctx.Malformed(r.Key, fmt.Sprintf("expected an object, got %T", v))
		return nil
	}
	out := []ir.Field{ir.FieldFromTagKey(r.Key).
		Add("a", str(name, "value")).
		Add("b", str(name, "numeration")).
		Add("c", str(name, "title")).
		Add("q", str(name, "preferred_name")),
	}
	for _, variant := range coerce.Strings(name["name_variants"]) {
		out = append(out, ir.Field{Tag: nameVariantTag}.Add("a", variant))
	}
	return out
}

// positionForward converts a 371 occurrence into one position held at an
// institution.
func positionForward(ctx registry.Context, r *registry.Rule, f ir.Field) registry.Result {
	date := func(code string) ir.Value {
		raw := firstText(f, code)
		if raw == "" {
			return nil
		}
		d := coerce.Date(raw)
		if d == nil {
			ctx.Malformed(r.Key, fmt.Sprintf("subfield %s: %q is not a date", code, raw))
		}
		return d
	}

	var current ir.Value
	if strings.EqualFold(firstText(f, "z"), "current") {
		current = ir.Bool(true)
	}

	pos := ir.NewObject(
		ir.O("institution", coerce.StringOrNil(firstText(f, "a"))),
		ir.O("rank", coerce.StringOrNil(firstText(f, "r"))),
		ir.O("start_date", date("s")),
		ir.O("end_date", date("t")),
		ir.O("current", current),
	)
	recid := coerce.StringOrNil(firstText(f, "0"))
	if len(pos) == 0 && recid == nil {
		return registry.Ignore()
	}
	for k, v := range ctx.Refs().Relation(recid, ir.CollectionInstitutions, "record", "curated_relation") {
		pos[k] = v
	}
	return registry.Emit(pos)
}

func positionReverse(ctx registry.Context, r *registry.Rule, v ir.Value) []ir.Field {
	pos, ok := v.(ir.Object)
	if !ok {
		ctx.Malformed(r.Key, fmt.Sprintf("expected an object, got %T", v))
		return nil
	}
	f := ir.FieldFromTagKey(r.Key).
		Add("a", str(pos, "institution")).
		Add("r", str(pos, "rank")).
		Add("s", str(pos, "start_date")).
		Add("t", str(pos, "end_date"))
	if current, _ := pos["current"].(ir.Bool); current {
		f = f.Add("z", "Current")
	}
	if id, ok := ctx.Refs().FromReference(pos["record"]); ok {
		f = f.Add("0", strconv.FormatInt(id, 10))
	}
	return []ir.Field{f}
}
