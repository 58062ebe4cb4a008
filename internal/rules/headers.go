package rules

import (
	"fmt"

	"github.com/roach88/marcbridge/internal/coerce"
	"github.com/roach88/marcbridge/internal/ir"
	"github.com/roach88/marcbridge/internal/registry"
)

// institutionHeaderForward spreads a 110 occurrence over the record: the
// legacy ICN and one hierarchy level per "a", paired with the "u" acronym
// at the same position.
func institutionHeaderForward(_ registry.Context, _ *registry.Rule, f ir.Field) registry.Result {
	names := texts(f.All("a"))
	acronyms := texts(f.All("u"))
	var levels ir.Array
	for i, name := range names {
		level := ir.Object{"name": ir.String(name)}
		if i < len(acronyms) {
			level["acronym"] = ir.String(acronyms[i])
		}
		levels = append(levels, level)
	}
	header := ir.NewObject(
		ir.O("legacy_ICN", coerce.StringOrNil(firstText(f, "t"))),
		ir.O("institution_hierarchy", arrayOrNil(levels)),
	)
	if len(header) == 0 {
		return registry.Ignore()
	}
	return registry.Emit(header)
}

// institutionHeaderReverse rebuilds 110 from the hierarchy, reading the
// legacy ICN from the record.
func institutionHeaderReverse(ctx registry.Context, r *registry.Rule, v ir.Value) []ir.Field {
	f := ir.FieldFromTagKey(r.Key)
	for _, level := range coerce.Objects(v) {
		f = f.Add("a", str(level, "name"))
	}
	for _, level := range coerce.Objects(v) {
		f = f.Add("u", str(level, "acronym"))
	}
	if icn, ok := ctx.Lookup("legacy_ICN"); ok {
		if s, ok := icn.(ir.String); ok {
			f = f.Add("t", string(s))
		}
	}
	return []ir.Field{f}
}

// conferenceHeaderForward spreads a 111 occurrence over the record: titles
// ("a" paired with the "b" subtitle at the same position), the cnum and the
// opening and closing dates.
func conferenceHeaderForward(ctx registry.Context, r *registry.Rule, f ir.Field) registry.Result {
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

	subtitles := texts(f.All("b"))
	var titles ir.Array
	for i, title := range texts(f.All("a")) {
		t := ir.Object{"title": ir.String(title)}
		if i < len(subtitles) {
			t["subtitle"] = ir.String(subtitles[i])
		}
		titles = append(titles, t)
	}

	header := ir.NewObject(
		ir.O("titles", arrayOrNil(titles)),
		ir.O("cnum", coerce.StringOrNil(firstText(f, "g"))),
		ir.O("opening_date", date("x")),
		ir.O("closing_date", date("y")),
	)
	if len(header) == 0 {
		return registry.Ignore()
	}
	return registry.Emit(header)
}

// conferenceHeaderReverse rebuilds 111 from the titles plus the cnum and
// dates read from the record.
func conferenceHeaderReverse(ctx registry.Context, r *registry.Rule, v ir.Value) []ir.Field {
	f := ir.FieldFromTagKey(r.Key)
	for _, t := range coerce.Objects(v) {
		f = f.Add("a", str(t, "title"))
	}
	for _, t := range coerce.Objects(v) {
		f = f.Add("b", str(t, "subtitle"))
	}
	for _, sf := range []ir.SubfieldMapping{
		{Code: "g", Key: "cnum"},
		{Code: "x", Key: "opening_date"},
		{Code: "y", Key: "closing_date"},
	} {
		if val, ok := ctx.Lookup(sf.Key); ok {
			if s, ok := val.(ir.String); ok {
				f = f.Add(sf.Code, string(s))
			}
		}
	}
	return []ir.Field{f}
}
