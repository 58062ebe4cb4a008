package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/marcbridge/internal/coerce"
	"github.com/roach88/marcbridge/internal/diag"
	"github.com/roach88/marcbridge/internal/ir"
	"github.com/roach88/marcbridge/internal/refs"
	"github.com/roach88/marcbridge/internal/registry"
)

const testBase = "https://example.org"

func controlNumber(ctx registry.Context, _ *registry.Rule, f ir.Field) registry.Result {
	n := coerce.Int(f.Value)
	if n == nil {
		ctx.Malformed("control_number", "not a number: "+f.Value)
	}
	return registry.Emit(n)
}

func doi(_ registry.Context, _ *registry.Rule, f ir.Field) registry.Result {
	return registry.Emit(ir.NewObject(
		ir.O("value", coerce.StringOrNil(f.First("a"))),
		ir.O("source", coerce.StringOrNil(f.First("9"))),
	))
}

func pid(_ registry.Context, _ *registry.Rule, f ir.Field) registry.Result {
	return registry.Emit(ir.NewObject(
		ir.O("schema", coerce.StringOrNil(f.First("2"))),
		ir.O("value", coerce.StringOrNil(f.First("a"))),
	))
}

func name(_ registry.Context, _ *registry.Rule, f ir.Field) registry.Result {
	return registry.Emit(ir.Object{"value": ir.String(f.First("a"))})
}

func nameVariant(_ registry.Context, _ *registry.Rule, f ir.Field) registry.Result {
	return registry.Emit(ir.Object{"name": ir.Object{"name_variants": ir.StringsArray(f.First("a"))}})
}

func publicationInfo(ctx registry.Context, _ *registry.Rule, f ir.Field) registry.Result {
	rel := ctx.Refs().Relation(ir.String(f.First("0")), ir.CollectionLiterature, "parent_record", "curated_relation")
	if title := f.First("t"); title != "" {
		rel["parent_title"] = ir.String(title)
	}
	return registry.Emit(rel)
}

func collection(_ registry.Context, _ *registry.Rule, f ir.Field) registry.Result {
	switch f.First("a") {
	case "CORE":
		return registry.Redirect("core", ir.Bool(true))
	case "HEP":
		return registry.Ignore()
	case "Review":
		return registry.Emit(ir.String("review"))
	case "Keywords":
		return registry.Redirect("keywords", ir.StringsArray("k1", "k2"))
	}
	if c := f.First("c"); c != "" {
		return registry.Redirect("_collections", ir.StringsArray(c))
	}
	return registry.Ignore()
}

func imprint(ctx registry.Context, _ *registry.Rule, f ir.Field) registry.Result {
	date := coerce.Date(f.First("c"))
	if date == nil {
		ctx.Malformed("imprints", "unparseable date "+f.First("c"))
		return registry.Ignore()
	}
	return registry.Emit(ir.Object{"date": date})
}

func thesis(_ registry.Context, _ *registry.Rule, f ir.Field) registry.Result {
	return registry.Emit(ir.Object{
		"thesis_info":   ir.Object{"degree_type": ir.String(f.First("b"))},
		"document_type": ir.StringsArray("thesis"),
	})
}

func emptyTitle(_ registry.Context, _ *registry.Rule, f ir.Field) registry.Result {
	return registry.Emit(ir.Object{"title": ir.String(f.First("a")), "subtitle": ir.String(f.First("b"))})
}

func keywords(_ registry.Context, _ *registry.Rule, f ir.Field) registry.Result {
	return registry.Emit(ir.String(f.First("a")))
}

func reverseControl(_ registry.Context, r *registry.Rule, v ir.Value) []ir.Field {
	f := ir.FieldFromTagKey(r.Key)
	f.Value = coerce.IntString(v)
	return []ir.Field{f}
}

func reverseDOI(_ registry.Context, r *registry.Rule, v ir.Value) []ir.Field {
	obj, _ := v.(ir.Object)
	value, _ := obj.GetString("value")
	source, _ := obj.GetString("source")
	f := ir.FieldFromTagKey(r.Key).Add("2", "DOI").Add("a", value).Add("9", source)
	return []ir.Field{f}
}

func reverseName(ctx registry.Context, r *registry.Rule, v ir.Value) []ir.Field {
	obj, _ := v.(ir.Object)
	value, _ := obj.GetString("value")
	out := []ir.Field{ir.FieldFromTagKey(r.Key).Add("a", value)}
	for _, variant := range coerce.Strings(obj["name_variants"]) {
		out = append(out, ir.FieldFromTagKey("400__").Add("a", variant))
	}
	return out
}

func reverseCore(_ registry.Context, r *registry.Rule, v ir.Value) []ir.Field {
	if b, ok := v.(ir.Bool); ok && bool(b) {
		return []ir.Field{ir.FieldFromTagKey(r.Key).Add("a", "CORE")}
	}
	return nil
}

func reverseEmpty(_ registry.Context, r *registry.Rule, _ ir.Value) []ir.Field {
	return []ir.Field{ir.FieldFromTagKey(r.Key).Add("a", ""), {Tag: "500", Subfields: []ir.Subfield{ir.SF("a", ""), ir.SF("9", "x")}}}
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	b := registry.NewBuilder()
	require.NoError(t, b.AddModel(registry.Model{
		Name:        "books",
		Collection:  ir.CollectionLiterature,
		Schema:      "hep",
		Postprocess: ir.PostprocessSpec{FilterEmpty: true, Dedupe: true},
	}))
	require.NoError(t, b.AddModel(registry.Model{Name: "raw", Collection: ir.CollectionLiterature}))

	fwd := func(pattern, key string, repeatable bool, h registry.ForwardFunc, when *registry.When) {
		require.NoError(t, b.Register("books", registry.Rule{
			Direction: ir.ToStructured, Pattern: pattern, Key: key, Repeatable: repeatable, Forward: h, When: when,
		}))
	}
	rev := func(pattern, key string, repeatable bool, h registry.ReverseFunc) {
		require.NoError(t, b.Register("books", registry.Rule{
			Direction: ir.ToLegacy, Pattern: pattern, Key: key, Repeatable: repeatable, Reverse: h,
		}))
	}

	fwd("^001", "control_number", false, controlNumber, nil)
	fwd("^024..", "dois", true, doi, &registry.When{Equals: []ir.Subfield{ir.SF("2", "DOI")}})
	fwd("^024..", "persistent_identifiers", true, pid, nil)
	fwd("^100..", "name", false, name, nil)
	fwd("^400..", ir.SelfKey, true, nameVariant, nil)
	fwd("^773..", "publication_info", true, publicationInfo, nil)
	fwd("^980..", "document_type", true, collection, nil)
	fwd("^269..", "imprints", true, imprint, nil)
	fwd("^502..", ir.SelfKey, false, thesis, nil)
	fwd("^245..", "titles", true, emptyTitle, nil)
	fwd("^653..", "keywords", true, keywords, nil)

	rev(`^control_number$`, "001__", false, reverseControl)
	rev(`^dois$`, "0247_", true, reverseDOI)
	rev(`^name$`, "100__", false, reverseName)
	rev(`^core$`, "980__", false, reverseCore)
	rev(`^notes$`, "500__", false, reverseEmpty)

	require.NoError(t, b.AddFinalizer("books", registry.Finalizer{
		Name:      "default_document_type",
		Direction: ir.ToStructured,
		Structured: func(_ registry.Context, out ir.Object) {
			if _, ok := out["document_type"]; !ok {
				out["document_type"] = ir.StringsArray("article")
			}
		},
	}))
	require.NoError(t, b.AddFinalizer("books", registry.Finalizer{
		Name:      "uses_previous_finalizer",
		Direction: ir.ToStructured,
		Structured: func(_ registry.Context, out ir.Object) {
			if dt, ok := out["document_type"].(ir.Array); ok {
				out["document_type_count"] = ir.Int(len(dt))
			}
		},
	}))

	reg, err := b.Build()
	require.NoError(t, err)
	return reg
}

func newDispatcher(t *testing.T, opts ...Option) *Dispatcher {
	t.Helper()
	return New(testRegistry(t), refs.NewResolver(testBase), opts...)
}

func field(tag, ind1, ind2 string, sfs ...string) ir.Field {
	f := ir.Field{Tag: tag, Ind1: ind1, Ind2: ind2}
	for i := 0; i+1 < len(sfs); i += 2 {
		f.Subfields = append(f.Subfields, ir.SF(sfs[i], sfs[i+1]))
	}
	return f
}

func TestToStructured_DOIScenario(t *testing.T) {
	d := newDispatcher(t)
	rec := ir.LegacyRecord{
		field("024", "7", "", "2", "DOI", "a", "10.1088/0264-9381/31/24/245004"),
	}
	out, ws, err := d.ToStructured(context.Background(), "books", rec)
	require.NoError(t, err)
	assert.Empty(t, ws)
	assert.Equal(t, ir.Array{ir.Object{"value": ir.String("10.1088/0264-9381/31/24/245004")}}, out["dois"])
}

func TestToStructured_RepeatableKeepsOrder(t *testing.T) {
	d := newDispatcher(t)
	rec := ir.LegacyRecord{
		field("024", "7", "", "2", "DOI", "a", "10.1/first"),
		field("024", "7", "", "2", "DOI", "a", "10.1/second", "9", "bibmatch"),
		field("024", "7", "", "2", "HDL", "a", "1234/5"),
		field("024", "7", "", "2", "DOI", "a", "10.1/third"),
	}
	out, ws, err := d.ToStructured(context.Background(), "books", rec)
	require.NoError(t, err)
	assert.Empty(t, ws)
	assert.Equal(t, ir.Array{
		ir.Object{"value": ir.String("10.1/first")},
		ir.Object{"source": ir.String("bibmatch"), "value": ir.String("10.1/second")},
		ir.Object{"value": ir.String("10.1/third")},
	}, out["dois"])
	assert.Equal(t, ir.Array{
		ir.Object{"schema": ir.String("HDL"), "value": ir.String("1234/5")},
	}, out["persistent_identifiers"])
}

func TestToStructured_DuplicateSingularField(t *testing.T) {
	d := newDispatcher(t)
	rec := ir.LegacyRecord{
		field("100", "", "", "a", "Smith, J."),
		field("100", "", "", "a", "Doe, J."),
	}
	out, ws, err := d.ToStructured(context.Background(), "books", rec)
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"value": ir.String("Smith, J.")}, out["name"])
	require.Len(t, ws, 1)
	assert.Equal(t, diag.CodeDuplicateSingularField, ws[0].Code)
	assert.Equal(t, "100__", ws[0].Field)
	assert.Equal(t, 1, ws[0].Index)
}

func TestToStructured_UnmappedTag(t *testing.T) {
	d := newDispatcher(t)
	rec := ir.LegacyRecord{
		field("999", "C", "5", "a", "whatever"),
		field("100", "", "", "a", "Smith, J."),
	}
	out, ws, err := d.ToStructured(context.Background(), "books", rec)
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, diag.CodeUnmappedField, ws[0].Code)
	assert.Equal(t, "999C5", ws[0].Field)
	assert.Equal(t, []string{"document_type", "document_type_count", "name"}, out.SortedKeys())
}

func TestToStructured_RedirectAndIgnore(t *testing.T) {
	d := newDispatcher(t)
	rec := ir.LegacyRecord{
		field("980", "", "", "a", "HEP"),
		field("980", "", "", "a", "CORE"),
		field("980", "", "", "a", "Review"),
		field("980", "", "", "a", "Keywords"),
		field("653", "", "", "a", "k0"),
		field("980", "", "", "c", "Alpha"),
		field("980", "", "", "c", "Beta"),
	}
	out, ws, err := d.ToStructured(context.Background(), "books", rec)
	require.NoError(t, err)
	assert.Empty(t, ws)
	assert.Equal(t, ir.StringsArray("Alpha", "Beta"), out["_collections"])
	assert.Equal(t, ir.Bool(true), out["core"])
	assert.Equal(t, ir.StringsArray("review"), out["document_type"])
	// Redirect follows the multiplicity declared for the target key.
	assert.Equal(t, ir.StringsArray("k1", "k2", "k0"), out["keywords"])
}

func TestToStructured_IgnoreLeavesNoKey(t *testing.T) {
	d := newDispatcher(t)
	out, _, err := d.ToStructured(context.Background(), "books", ir.LegacyRecord{field("980", "", "", "a", "HEP")})
	require.NoError(t, err)
	// Only the finalizers contributed.
	assert.Equal(t, ir.Object{
		"document_type":       ir.StringsArray("article"),
		"document_type_count": ir.Int(1),
	}, out)
}

func TestToStructured_FinalizersRunInOrder(t *testing.T) {
	d := newDispatcher(t)
	rec := ir.LegacyRecord{field("502", "", "", "b", "PhD")}
	out, _, err := d.ToStructured(context.Background(), "books", rec)
	require.NoError(t, err)
	assert.Equal(t, ir.StringsArray("thesis"), out["document_type"])
	assert.Equal(t, ir.Int(1), out["document_type_count"])
	assert.Equal(t, ir.Object{"degree_type": ir.String("PhD")}, out["thesis_info"])
}

func TestToStructured_SelfMergesIntoSingularKey(t *testing.T) {
	d := newDispatcher(t)
	rec := ir.LegacyRecord{
		field("400", "", "", "a", "Smith, John"),
		field("100", "", "", "a", "Smith, J."),
		field("400", "", "", "a", "Smith, Johnny"),
	}
	out, ws, err := d.ToStructured(context.Background(), "books", rec)
	require.NoError(t, err)
	assert.Empty(t, ws)
	assert.Equal(t, ir.Object{
		"value":         ir.String("Smith, J."),
		"name_variants": ir.StringsArray("Smith, John", "Smith, Johnny"),
	}, out["name"])
}

func TestToStructured_MalformedValue(t *testing.T) {
	d := newDispatcher(t)
	rec := ir.LegacyRecord{
		{Tag: "001", Value: "abc"},
		field("269", "", "", "c", "someday"),
		field("269", "", "", "c", "2014-12"),
	}
	out, ws, err := d.ToStructured(context.Background(), "books", rec)
	require.NoError(t, err)
	require.Len(t, ws, 2)
	assert.Equal(t, 2, ws.Count(diag.CodeMalformedValue))
	assert.Equal(t, "001__", ws[0].Field)
	assert.Equal(t, "control_number", ws[0].Key)
	assert.Equal(t, "269__", ws[1].Field)
	assert.NotContains(t, out, "control_number")
	assert.Equal(t, ir.Array{ir.Object{"date": ir.String("2014-12")}}, out["imprints"])
}

func TestToStructured_PostprocessFilterAndDedupe(t *testing.T) {
	d := newDispatcher(t)
	rec := ir.LegacyRecord{
		field("245", "", "", "a", "A title"),
		field("245", "", "", "b", ""),
		field("653", "", "", "a", "x"),
		field("653", "", "", "a", "x"),
		field("024", "7", "", "2", "DOI", "a", "10.1/a"),
		field("024", "7", "", "2", "DOI", "a", "10.1/a"),
	}
	out, _, err := d.ToStructured(context.Background(), "books", rec)
	require.NoError(t, err)
	assert.Equal(t, ir.Array{ir.Object{"title": ir.String("A title")}}, out["titles"])
	assert.Equal(t, ir.StringsArray("x"), out["keywords"])
	assert.Len(t, out["dois"], 1)
}

func TestToStructured_CuratedRecomputedPerConversion(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	linked, _, err := d.ToStructured(ctx, "books", ir.LegacyRecord{field("773", "", "", "0", "1408366", "t", "Parent")})
	require.NoError(t, err)
	info := linked["publication_info"].(ir.Array)[0].(ir.Object)
	assert.Equal(t, ir.Bool(true), info["curated_relation"])
	assert.Equal(t, ir.Object{"$ref": ir.String(testBase + "/api/literature/1408366")}, info["parent_record"])
	id, ok := d.Resolver().FromReference(info["parent_record"])
	require.True(t, ok)
	assert.Equal(t, int64(1408366), id)

	unlinked, ws, err := d.ToStructured(ctx, "books", ir.LegacyRecord{field("773", "", "", "t", "Parent")})
	require.NoError(t, err)
	assert.Empty(t, ws)
	info = unlinked["publication_info"].(ir.Array)[0].(ir.Object)
	assert.Equal(t, ir.Object{"curated_relation": ir.Bool(false), "parent_title": ir.String("Parent")}, info)
}

func TestToStructured_Deterministic(t *testing.T) {
	d := newDispatcher(t)
	rec := ir.LegacyRecord{
		{Tag: "001", Value: "42"},
		field("024", "7", "", "2", "DOI", "a", "10.1/a"),
		field("100", "", "", "a", "Smith, J."),
		field("400", "", "", "a", "Smith, John"),
		field("773", "", "", "0", "5"),
		field("980", "", "", "a", "CORE"),
		field("999", "", "", "a", "?"),
	}
	first, ws1, err := d.ToStructured(context.Background(), "books", rec)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, ws2, err := d.ToStructured(context.Background(), "books", rec)
		require.NoError(t, err)
		assert.True(t, ir.Equal(first, again))
		assert.Equal(t, ws1, ws2)
		assert.Equal(t, ir.MustValueHash(first), ir.MustValueHash(again))
	}
}

func TestToStructured_NoPostprocess(t *testing.T) {
	b := registry.NewBuilder()
	require.NoError(t, b.AddModel(registry.Model{Name: "raw"}))
	require.NoError(t, b.Register("raw", registry.Rule{Direction: ir.ToStructured, Pattern: "^245", Key: "titles", Repeatable: true, Forward: emptyTitle}))
	reg, err := b.Build()
	require.NoError(t, err)

	d := New(reg, nil)
	out, _, err := d.ToStructured(context.Background(), "raw", ir.LegacyRecord{field("245", "", "", "a", "T")})
	require.NoError(t, err)
	assert.Equal(t, ir.Array{ir.Object{"title": ir.String("T"), "subtitle": ir.String("")}}, out["titles"])
	assert.Equal(t, refs.DefaultBaseURL, d.Resolver().BaseURL())
}

func TestToLegacy(t *testing.T) {
	d := newDispatcher(t)
	obj := ir.Object{
		"control_number": ir.Int(42),
		"dois": ir.Array{
			ir.Object{"value": ir.String("10.1/a")},
			ir.Object{"value": ir.String("10.1/b"), "source": ir.String("bibmatch")},
		},
		"name": ir.Object{"value": ir.String("Smith, J."), "name_variants": ir.StringsArray("Smith, John")},
		"core": ir.Bool(true),
		"unknown_key": ir.String("x"),
		"notes":       ir.String("ignored"),
	}
	out, ws, err := d.ToLegacy(context.Background(), "books", obj)
	require.NoError(t, err)

	require.Len(t, ws, 1)
	assert.Equal(t, diag.CodeUnmappedField, ws[0].Code)
	assert.Equal(t, "unknown_key", ws[0].Field)

	want := ir.LegacyRecord{
		{Tag: "001", Value: "42"},
		field("024", "7", "", "2", "DOI", "a", "10.1/a"),
		field("024", "7", "", "2", "DOI", "a", "10.1/b", "9", "bibmatch"),
		field("100", "", "", "a", "Smith, J."),
		field("400", "", "", "a", "Smith, John"),
		field("500", "", "", "9", "x"),
		field("980", "", "", "a", "CORE"),
	}
	assert.Equal(t, want, out)
}

func TestRoundTrip_DOI(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()
	rec := ir.LegacyRecord{
		field("024", "7", "", "2", "DOI", "a", "10.1088/0264-9381/31/24/245004"),
		field("024", "7", "", "2", "DOI", "9", "bibmatch", "a", "10.1/second"),
	}
	structured, _, err := d.ToStructured(ctx, "books", rec)
	require.NoError(t, err)
	back, ws, err := d.ToLegacy(ctx, "books", ir.Object{"dois": structured["dois"]})
	require.NoError(t, err)
	assert.Empty(t, ws)
	assert.True(t, ir.EquivalentFields(rec, back), "got %v", back)
}

func TestConvert(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	out, _, err := d.Convert(ctx, "books", ir.ToStructured, ir.LegacyRecord{{Tag: "001", Value: "7"}})
	require.NoError(t, err)
	assert.Equal(t, ir.Int(7), out.(ir.Object)["control_number"])

	back, _, err := d.Convert(ctx, "books", ir.ToLegacy, ir.Object{"control_number": ir.Int(7)})
	require.NoError(t, err)
	assert.Equal(t, ir.LegacyRecord{{Tag: "001", Value: "7"}}, back)

	_, _, err = d.Convert(ctx, "nope", ir.ToStructured, ir.LegacyRecord{})
	assert.True(t, IsUnknownModel(err))
	_, _, err = d.Convert(ctx, "nope", ir.ToLegacy, ir.Object{})
	assert.True(t, IsUnknownModel(err))

	_, _, err = d.Convert(ctx, "books", ir.ToStructured, ir.Object{})
	assert.True(t, IsInvalidRecord(err))
	_, _, err = d.Convert(ctx, "books", ir.ToLegacy, ir.LegacyRecord{})
	assert.True(t, IsInvalidRecord(err))

	_, _, err = d.Convert(ctx, "books", "sideways", ir.Object{})
	assert.True(t, IsInvalidDirection(err))
	assert.Contains(t, err.Error(), "INVALID_DIRECTION")
}

func TestSink_ConcurrentConversions(t *testing.T) {
	var buf diag.Buffer
	d := newDispatcher(t, WithSink(&buf))
	rec := ir.LegacyRecord{
		field("999", "", "", "a", "x"),
		field("100", "", "", "a", "A"),
		field("100", "", "", "a", "B"),
	}

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ws, err := d.ToStructured(context.Background(), "books", rec)
			assert.NoError(t, err)
			assert.Len(t, ws, 2)
		}()
	}
	wg.Wait()

	all := buf.Drain()
	assert.Len(t, all, workers*2)
	assert.Equal(t, workers, all.Count(diag.CodeUnmappedField))
	assert.Equal(t, workers, all.Count(diag.CodeDuplicateSingularField))
}

func TestMergeObjects(t *testing.T) {
	merged, clean := mergeObjects(
		ir.Object{"a": ir.String("x"), "list": ir.StringsArray("1"), "nested": ir.Object{"k": ir.Int(1)}},
		ir.Object{"b": ir.String("y"), "list": ir.StringsArray("2"), "nested": ir.Object{"j": ir.Int(2)}},
	)
	assert.True(t, clean)
	assert.Equal(t, ir.Object{
		"a":      ir.String("x"),
		"b":      ir.String("y"),
		"list":   ir.StringsArray("1", "2"),
		"nested": ir.Object{"k": ir.Int(1), "j": ir.Int(2)},
	}, merged)

	merged, clean = mergeObjects(ir.Object{"a": ir.String("x")}, ir.Object{"a": ir.String("z")})
	assert.False(t, clean)
	assert.Equal(t, ir.Object{"a": ir.String("x")}, merged)
}
