package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/marcbridge/internal/diag"
	"github.com/roach88/marcbridge/internal/engine"
	"github.com/roach88/marcbridge/internal/ir"
	"github.com/roach88/marcbridge/internal/registry"
)

func spec(rules ...ir.RuleSpec) ir.RuleSetSpec {
	return ir.RuleSetSpec{
		Model:       "test",
		Collection:  ir.CollectionLiterature,
		Schema:      "hep",
		Postprocess: ir.PostprocessSpec{FilterEmpty: true},
		Rules:       rules,
	}
}

func fwd(pattern, key, handler string) ir.RuleSpec {
	return ir.RuleSpec{Direction: ir.ToStructured, Pattern: pattern, Key: key, Handler: handler}
}

func TestBuildUnknownHandler(t *testing.T) {
	_, err := Build([]ir.RuleSetSpec{spec(fwd("^001", "control_number", "nope"))})
	var bindErr *BindError
	require.True(t, errors.As(err, &bindErr))
	assert.Equal(t, "nope", bindErr.Name)
	assert.Contains(t, err.Error(), "unknown handler")
}

func TestBuildHandlerWrongDirection(t *testing.T) {
	rule := ir.RuleSpec{Direction: ir.ToLegacy, Pattern: "^authors$", Key: "100__", Handler: "author"}
	_, err := Build([]ir.RuleSetSpec{spec(rule)})
	var bindErr *BindError
	require.True(t, errors.As(err, &bindErr))
	assert.Contains(t, err.Error(), "cannot convert to_legacy")
}

func TestBuildFinalizers(t *testing.T) {
	s := spec(fwd("^001", "control_number", "control"))
	s.Finalizers = []ir.FinalizerSpec{{Name: "missing", Direction: ir.ToStructured}}
	_, err := Build([]ir.RuleSetSpec{s})
	assert.ErrorContains(t, err, "unknown finalizer")

	s.Finalizers = []ir.FinalizerSpec{{Name: "hep_marker", Direction: ir.ToStructured}}
	_, err = Build([]ir.RuleSetSpec{s})
	assert.ErrorContains(t, err, "runs to_legacy only")
}

func TestBuildAmbiguous(t *testing.T) {
	_, err := Build([]ir.RuleSetSpec{spec(
		fwd("^245..", "titles", "value"),
		fwd("^245[_1].", "title", "value"),
	)})
	require.Error(t, err)
	assert.True(t, registry.IsAmbiguous(err))
}

func TestBuildInvalid(t *testing.T) {
	s := spec(fwd("^001", "control_number", "control"))
	s.Collection = "nope"
	_, err := Build([]ir.RuleSetSpec{s})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E102")
}

func TestBuiltinHandlers(t *testing.T) {
	date := fwd("^269..", "date", "date")
	date.Code = "c"
	list := fwd("^041..", "languages", "list")
	flag := fwd("^980..", "core", "flag")
	obj := fwd("^710..", "collaborations", "object")
	obj.Repeatable = true
	obj.Subfields = []ir.SubfieldMapping{{Code: "g", Key: "value"}}
	obj.Ref = &ir.RefSpec{Code: "0", Collection: ir.CollectionExperiments, Key: "record", Curated: "curated_relation"}

	reg, err := Build([]ir.RuleSetSpec{spec(
		fwd("^001", "control_number", "control"),
		fwd("^300..", "number_of_pages", "int"),
		date, list, flag, obj,
	)})
	require.NoError(t, err)

	d := engine.New(reg, nil)
	out, ws, err := d.ToStructured(context.Background(), "test", ir.LegacyRecord{
		{Tag: "001", Value: "12x"},
		field("300", "", "", "a", "abc"),
		field("269", "", "", "c", "2014-13-01"),
		field("041", "", "", "a", "en", "a", " fr "),
		field("980", "", "", "a", "CORE"),
		field("710", "", "", "g", "ATLAS", "0", "not-an-id"),
	})
	require.NoError(t, err)

	assert.Equal(t, ir.Object{
		"languages": ir.StringsArray("en", "fr"),
		"core":      ir.Bool(true),
		"collaborations": ir.Array{ir.Object{
			"value":            ir.String("ATLAS"),
			"curated_relation": ir.Bool(false),
		}},
	}, out)
	assert.Equal(t, 4, ws.Count(diag.CodeMalformedValue))
	assert.Equal(t, []string{"001__", "269__", "300__", "710__"}, ws.Fields())
}
