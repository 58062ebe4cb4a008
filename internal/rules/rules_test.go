package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/marcbridge/internal/diag"
	"github.com/roach88/marcbridge/internal/engine"
	"github.com/roach88/marcbridge/internal/ir"
	"github.com/roach88/marcbridge/internal/refs"
	"github.com/roach88/marcbridge/internal/testutil"
)

const base = "https://inspirehep.net"

func newDispatcher(t *testing.T) *engine.Dispatcher {
	t.Helper()
	reg, err := Default()
	require.NoError(t, err)
	return engine.New(reg, refs.NewResolver(base))
}

var (
	field   = testutil.Field
	control = testutil.Control
)

func ref(collection, id string) ir.Object {
	return ir.Object{ir.RefKey: ir.String(base + "/api/" + collection + "/" + id)}
}

func toStructured(t *testing.T, model string, rec ir.LegacyRecord) (ir.Object, diag.Warnings) {
	t.Helper()
	out, ws, err := newDispatcher(t).ToStructured(context.Background(), model, rec)
	require.NoError(t, err)
	return out, ws
}

func toLegacy(t *testing.T, model string, obj ir.Object) (ir.LegacyRecord, diag.Warnings) {
	t.Helper()
	out, ws, err := newDispatcher(t).ToLegacy(context.Background(), model, obj)
	require.NoError(t, err)
	return out, ws
}

func TestEmbeddedRuleSets(t *testing.T) {
	specs, err := Embedded()
	require.NoError(t, err)

	var models []string
	for _, s := range specs {
		models = append(models, s.Model)
	}
	assert.Equal(t, []string{
		"authors", "conferences", "experiments", "institutions", "jobs", "journals", "literature",
	}, models)

	reg, err := Build(specs)
	require.NoError(t, err)
	assert.Equal(t, models, reg.Models())
	assert.NotEmpty(t, reg.Fingerprint())

	again, err := Default()
	require.NoError(t, err)
	assert.Equal(t, reg.Fingerprint(), again.Fingerprint())
}

func TestDOI(t *testing.T) {
	rec := ir.LegacyRecord{
		field("024", "7", "", "2", "DOI", "a", "10.1088/0264-9381/31/24/245004"),
	}
	out, ws := toStructured(t, "literature", rec)
	assert.Empty(t, ws)
	assert.Equal(t, ir.Array{
		ir.Object{"value": ir.String("10.1088/0264-9381/31/24/245004")},
	}, out["dois"])

	back, ws := toLegacy(t, "literature", out)
	assert.Empty(t, ws)
	assert.True(t, ir.EquivalentFields(rec, back.WithTags("024")))
}

func TestRepeatedDOIWithSource(t *testing.T) {
	rec := ir.LegacyRecord{
		field("024", "7", "", "2", "DOI", "a", "10.1000/first"),
		field("024", "7", "", "2", "DOI", "a", "10.1000/second", "9", "bibmatch"),
	}
	out, ws := toStructured(t, "literature", rec)
	assert.Empty(t, ws)
	assert.Equal(t, ir.Array{
		ir.Object{"value": ir.String("10.1000/first")},
		ir.Object{"source": ir.String("bibmatch"), "value": ir.String("10.1000/second")},
	}, out["dois"])
}

func TestPersistentIdentifierFallback(t *testing.T) {
	rec := ir.LegacyRecord{
		field("024", "7", "", "2", "HDL", "a", "20.500.12345/1"),
	}
	out, ws := toStructured(t, "literature", rec)
	assert.Empty(t, ws)
	assert.Nil(t, out["dois"])
	assert.Equal(t, ir.Array{
		ir.Object{"schema": ir.String("HDL"), "value": ir.String("20.500.12345/1")},
	}, out["persistent_identifiers"])
}

func TestPublicationInfoReference(t *testing.T) {
	rec := ir.LegacyRecord{field("773", "", "", "0", "1408366")}
	out, ws := toStructured(t, "literature", rec)
	assert.Empty(t, ws)

	infos, ok := out["publication_info"].(ir.Array)
	require.True(t, ok)
	require.Len(t, infos, 1)
	parent := infos[0].(ir.Object)["parent_record"]
	assert.Equal(t, ref("literature", "1408366"), parent)

	id, ok := refs.NewResolver(base).FromReference(parent)
	require.True(t, ok)
	assert.Equal(t, int64(1408366), id)
}

func TestPublicationInfoPages(t *testing.T) {
	rec := ir.LegacyRecord{
		field("773", "", "", "p", "Phys.Rev.", "v", "D91", "c", "1-10", "y", "2015"),
		field("773", "", "", "p", "JHEP", "c", "e123", "y", "20xx", "1", "abc"),
	}
	out, ws := toStructured(t, "literature", rec)

	assert.Equal(t, ir.Array{
		ir.Object{
			"journal_title":  ir.String("Phys.Rev."),
			"journal_volume": ir.String("D91"),
			"page_start":     ir.String("1"),
			"page_end":       ir.String("10"),
			"year":           ir.Int(2015),
		},
		ir.Object{
			"journal_title": ir.String("JHEP"),
			"artid":         ir.String("e123"),
		},
	}, out["publication_info"])

	require.Len(t, ws, 2)
	assert.Equal(t, 2, ws.Count(diag.CodeMalformedValue))
	assert.Equal(t, []string{"773__"}, ws.Fields())
}

func TestDuplicateSingularName(t *testing.T) {
	rec := ir.LegacyRecord{
		field("100", "", "", "a", "Smith, John"),
		field("100", "", "", "a", "Smith, J."),
	}
	out, ws := toStructured(t, "authors", rec)
	assert.Equal(t, ir.Object{"value": ir.String("Smith, John")}, out["name"])
	require.Len(t, ws, 1)
	assert.Equal(t, diag.CodeDuplicateSingularField, ws[0].Code)
	assert.Equal(t, 1, ws[0].Index)
}

func TestUnmappedTag(t *testing.T) {
	rec := ir.LegacyRecord{
		field("245", "", "", "a", "A title"),
		field("999", "C", "5", "a", "whatever"),
	}
	out, ws := toStructured(t, "literature", rec)
	require.Len(t, ws, 1)
	assert.Equal(t, diag.CodeUnmappedField, ws[0].Code)
	assert.Equal(t, "999C5", ws[0].Field)
	assert.Equal(t, ir.Array{ir.Object{"title": ir.String("A title")}}, out["titles"])
}

func literatureRecord() ir.LegacyRecord {
	return ir.LegacyRecord{
		control("001", "1408366"),
		field("024", "7", "", "2", "DOI", "a", "10.1103/PhysRevD.91.012345"),
		field("037", "", "", "a", "arXiv:1501.00001", "9", "arXiv", "c", "hep-th"),
		field("100", "", "", "a", "Smith, J.", "u", "CERN", "z", "902725", "x", "1010819"),
		field("245", "", "", "a", "A title"),
		field("650", "1", "7", "a", "Theory-HEP", "9", "arXiv"),
		field("700", "", "", "a", "Doe, J.", "u", "DESY"),
		field("773", "", "", "p", "Phys.Rev.", "v", "D91", "c", "1-10", "y", "2015"),
		field("980", "", "", "a", "CORE"),
		field("980", "", "", "a", "HEP"),
		field("980", "", "", "a", "Published"),
		field("980", "", "", "a", "ConferencePaper"),
		field("980", "", "", "a", "Foo"),
	}
}

func TestLiteratureRecord(t *testing.T) {
	out, ws := toStructured(t, "literature", literatureRecord())
	assert.Empty(t, ws)

	assert.Equal(t, ir.Object{
		"$schema":        ir.String(base + "/schemas/records/hep.json"),
		"control_number": ir.Int(1408366),
		"dois":           ir.Array{ir.Object{"value": ir.String("10.1103/PhysRevD.91.012345")}},
		"arxiv_eprints": ir.Array{ir.Object{
			"value":      ir.String("1501.00001"),
			"categories": ir.StringsArray("hep-th"),
		}},
		"authors": ir.Array{
			ir.Object{
				"full_name": ir.String("Smith, J."),
				"affiliations": ir.Array{ir.Object{
					"value":  ir.String("CERN"),
					"record": ref("institutions", "902725"),
				}},
				"record":           ref("authors", "1010819"),
				"curated_relation": ir.Bool(true),
			},
			ir.Object{
				"full_name":        ir.String("Doe, J."),
				"affiliations":     ir.Array{ir.Object{"value": ir.String("DESY")}},
				"curated_relation": ir.Bool(false),
			},
		},
		"titles":             ir.Array{ir.Object{"title": ir.String("A title")}},
		"inspire_categories": ir.Array{ir.Object{"term": ir.String("Theory-HEP"), "source": ir.String("arXiv")}},
		"publication_info": ir.Array{ir.Object{
			"journal_title":  ir.String("Phys.Rev."),
			"journal_volume": ir.String("D91"),
			"page_start":     ir.String("1"),
			"page_end":       ir.String("10"),
			"year":           ir.Int(2015),
		}},
		"core":          ir.Bool(true),
		"refereed":      ir.Bool(true),
		"document_type": ir.StringsArray("conference paper"),
		"_collections":  ir.StringsArray("Foo"),
	}, out)
}

func TestLiteratureRoundTrip(t *testing.T) {
	rec := literatureRecord()
	out, _ := toStructured(t, "literature", rec)
	back, ws := toLegacy(t, "literature", out)
	assert.Empty(t, ws)

	assert.True(t, ir.EquivalentFields(rec.WithoutTags("980"), back.WithoutTags("980")))

	collections := func(r ir.LegacyRecord) []string {
		var vals []string
		for _, f := range r.WithTags("980") {
			vals = append(vals, f.First("a"))
		}
		return vals
	}
	assert.ElementsMatch(t, collections(rec), collections(back))

	for i := 1; i < len(back); i++ {
		assert.LessOrEqual(t, back[i-1].Tag, back[i].Tag)
	}
}

func TestThesisInfo(t *testing.T) {
	rec := ir.LegacyRecord{
		field("502", "", "", "b", "PhD", "c", "Munich U.", "d", "2014"),
		field("980", "", "", "a", "Thesis"),
	}
	out, ws := toStructured(t, "literature", rec)
	assert.Empty(t, ws)
	assert.Equal(t, ir.Object{
		"degree_type":  ir.String("phd"),
		"date":         ir.String("2014"),
		"institutions": ir.Array{ir.Object{"name": ir.String("Munich U.")}},
	}, out["thesis_info"])
	assert.Equal(t, ir.StringsArray("thesis"), out["document_type"])

	back, ws := toLegacy(t, "literature", out)
	assert.Empty(t, ws)
	assert.True(t, ir.EquivalentFields(rec.WithTags("502"), back.WithTags("502")))
}

func TestDefaultDocumentType(t *testing.T) {
	out, _ := toStructured(t, "literature", ir.LegacyRecord{field("245", "", "", "a", "T")})
	assert.Equal(t, ir.StringsArray("article"), out["document_type"])

	back, ws := toLegacy(t, "literature", out)
	assert.Empty(t, ws)
	assert.Equal(t, ir.LegacyRecord{
		field("245", "", "", "a", "T"),
		field("980", "", "", "a", "HEP"),
	}, back)
}

func TestPrivateAndHiddenNotes(t *testing.T) {
	rec := ir.LegacyRecord{
		field("595", "", "", "a", "private"),
		field("595", "", "", "h", "hidden", "9", "CDS"),
	}
	out, ws := toStructured(t, "literature", rec)
	assert.Empty(t, ws)
	assert.Equal(t, ir.Array{ir.Object{"value": ir.String("private")}}, out["_private_notes"])
	assert.Equal(t, ir.Array{ir.Object{"value": ir.String("hidden"), "source": ir.String("CDS")}}, out["hidden_notes"])
}

func TestSharedTagRoundTrip(t *testing.T) {
	rec := ir.LegacyRecord{
		field("024", "7", "", "2", "DOI", "a", "10.1000/first"),
		field("024", "7", "", "2", "HDL", "a", "2027/abc"),
		field("024", "7", "", "2", "DOI", "a", "10.1000/second"),
		field("595", "", "", "h", "hidden first"),
		field("595", "", "", "a", "private"),
		field("595", "", "", "h", "hidden second"),
	}
	out, ws := toStructured(t, "literature", rec)
	assert.Empty(t, ws)
	assert.Equal(t, ir.Array{
		ir.Object{"value": ir.String("10.1000/first")},
		ir.Object{"value": ir.String("10.1000/second")},
	}, out["dois"])
	assert.Equal(t, ir.Array{
		ir.Object{"value": ir.String("hidden first")},
		ir.Object{"value": ir.String("hidden second")},
	}, out["hidden_notes"])

	back, ws := toLegacy(t, "literature", out)
	assert.Empty(t, ws)

	// Occurrences come back grouped by structured key, each key in order.
	shared := back.WithTags("024", "595")
	assert.False(t, ir.EquivalentFields(rec, shared))
	assert.True(t, ir.SameOccurrences(rec, shared))

	var dois, hidden []string
	for _, f := range shared {
		switch {
		case f.First("2") == "DOI":
			dois = append(dois, f.First("a"))
		case f.First("h") != "":
			hidden = append(hidden, f.First("h"))
		}
	}
	assert.Equal(t, []string{"10.1000/first", "10.1000/second"}, dois)
	assert.Equal(t, []string{"hidden first", "hidden second"}, hidden)
}

func TestKeywordsLossy(t *testing.T) {
	rec := ir.LegacyRecord{
		field("650", "", "7", "a", "gravitation"),
		field("653", "1", "", "a", "black hole", "9", "author"),
	}
	out, ws := toStructured(t, "literature", rec)
	assert.Empty(t, ws)
	assert.Equal(t, ir.Array{
		ir.Object{"value": ir.String("gravitation")},
		ir.Object{"value": ir.String("black hole"), "source": ir.String("author")},
	}, out["keywords"])

	back, _ := toLegacy(t, "literature", out)
	assert.Len(t, back.WithTags("653"), 2)
	assert.Empty(t, back.WithTags("650"))
}

func TestCollaborationRelation(t *testing.T) {
	rec := ir.LegacyRecord{
		field("710", "", "", "g", "ATLAS", "0", "1108541"),
		field("710", "", "", "g", "CMS"),
	}
	out, ws := toStructured(t, "literature", rec)
	assert.Empty(t, ws)
	assert.Equal(t, ir.Array{
		ir.Object{
			"value":            ir.String("ATLAS"),
			"record":           ref("experiments", "1108541"),
			"curated_relation": ir.Bool(true),
		},
		ir.Object{
			"value":            ir.String("CMS"),
			"curated_relation": ir.Bool(false),
		},
	}, out["collaborations"])

	back, _ := toLegacy(t, "literature", out)
	assert.True(t, ir.EquivalentFields(rec, back.WithTags("710")))
}

func TestDeletedFlag(t *testing.T) {
	out, ws := toStructured(t, "literature", ir.LegacyRecord{field("980", "", "", "c", "DELETED")})
	assert.Empty(t, ws)
	assert.Equal(t, ir.Bool(true), out["deleted"])

	out, ws = toStructured(t, "literature", ir.LegacyRecord{field("980", "", "", "a", "CORE", "c", "DELETED")})
	assert.Empty(t, ws)
	assert.Equal(t, ir.Bool(true), out["deleted"])
	assert.Equal(t, ir.Bool(true), out["core"])

	out, _ = toStructured(t, "literature", ir.LegacyRecord{field("980", "", "", "a", "Thesis", "c", "DELETED")})
	assert.Equal(t, ir.Bool(true), out["deleted"])
	assert.Equal(t, ir.StringsArray("thesis"), out["document_type"])

	back, _ := toLegacy(t, "literature", ir.Object{"deleted": ir.Bool(false), "core": ir.Bool(true)})
	assert.Equal(t, ir.LegacyRecord{
		field("980", "", "", "a", "CORE"),
		field("980", "", "", "a", "HEP"),
	}, back)
}

func TestArxivEprintOldStyle(t *testing.T) {
	rec := ir.LegacyRecord{field("037", "", "", "a", "hep-th/9901001", "9", "arXiv")}
	out, _ := toStructured(t, "literature", rec)
	assert.Equal(t, ir.Array{ir.Object{"value": ir.String("hep-th/9901001")}}, out["arxiv_eprints"])

	back, _ := toLegacy(t, "literature", out)
	assert.True(t, ir.EquivalentFields(rec, back.WithTags("037")))
}

func TestAuthorsRecord(t *testing.T) {
	rec := ir.LegacyRecord{
		control("001", "1010819"),
		field("100", "", "", "a", "Smith, John", "q", "John Smith"),
		field("371", "", "", "a", "CERN", "r", "SENIOR", "s", "2010", "z", "Current", "0", "902725"),
		field("400", "", "", "a", "Smith, J."),
		field("400", "", "", "a", "Smith, Jon"),
	}
	out, ws := toStructured(t, "authors", rec)
	assert.Empty(t, ws)
	assert.Equal(t, ir.Object{
		"$schema":        ir.String(base + "/schemas/records/authors.json"),
		"control_number": ir.Int(1010819),
		"name": ir.Object{
			"value":          ir.String("Smith, John"),
			"preferred_name": ir.String("John Smith"),
			"name_variants":  ir.StringsArray("Smith, J.", "Smith, Jon"),
		},
		"positions": ir.Array{ir.Object{
			"institution":      ir.String("CERN"),
			"rank":             ir.String("SENIOR"),
			"start_date":       ir.String("2010"),
			"current":          ir.Bool(true),
			"record":           ref("institutions", "902725"),
			"curated_relation": ir.Bool(true),
		}},
	}, out)

	back, ws := toLegacy(t, "authors", out)
	assert.Empty(t, ws)
	assert.True(t, ir.EquivalentFields(rec, back))
}

func TestNameVariantsBeforeName(t *testing.T) {
	rec := ir.LegacyRecord{
		field("400", "", "", "a", "Smith, J."),
		field("100", "", "", "a", "Smith, John"),
	}
	out, ws := toStructured(t, "authors", rec)
	assert.Empty(t, ws)
	assert.Equal(t, ir.Object{
		"value":         ir.String("Smith, John"),
		"name_variants": ir.StringsArray("Smith, J."),
	}, out["name"])
}

func TestInstitutionHeaderRoundTrip(t *testing.T) {
	rec := ir.LegacyRecord{
		field("110", "", "", "a", "European Organization for Nuclear Research", "u", "CERN", "t", "CERN"),
		field("371", "", "", "a", "CH-1211 Genève 23", "b", "Geneva", "g", "CH"),
	}
	out, ws := toStructured(t, "institutions", rec)
	assert.Empty(t, ws)
	assert.Equal(t, ir.String("CERN"), out["legacy_ICN"])
	assert.Equal(t, ir.Array{ir.Object{
		"name":    ir.String("European Organization for Nuclear Research"),
		"acronym": ir.String("CERN"),
	}}, out["institution_hierarchy"])
	assert.Equal(t, ir.Array{ir.Object{
		"postal_address": ir.StringsArray("CH-1211 Genève 23"),
		"cities":         ir.StringsArray("Geneva"),
		"country_code":   ir.String("CH"),
	}}, out["addresses"])

	back, ws := toLegacy(t, "institutions", out)
	assert.Empty(t, ws)
	assert.True(t, ir.EquivalentFields(rec, back))
}

func TestConferenceHeaderRoundTrip(t *testing.T) {
	rec := ir.LegacyRecord{
		field("111", "", "", "a", "Lattice 2016", "g", "C16-07-24", "x", "2016-07-24", "y", "2016-07-30"),
	}
	out, ws := toStructured(t, "conferences", rec)
	assert.Empty(t, ws)
	assert.Equal(t, ir.String("C16-07-24"), out["cnum"])
	assert.Equal(t, ir.String("2016-07-24"), out["opening_date"])
	assert.Equal(t, ir.Array{ir.Object{"title": ir.String("Lattice 2016")}}, out["titles"])

	back, ws := toLegacy(t, "conferences", out)
	assert.Empty(t, ws)
	assert.True(t, ir.EquivalentFields(rec, back))
}

func TestJournalAndJobRecords(t *testing.T) {
	out, ws := toStructured(t, "journals", ir.LegacyRecord{
		field("130", "", "", "a", "Physical Review D"),
		field("711", "", "", "a", "Phys.Rev.D"),
		field("730", "", "", "a", "Phys Rev D"),
		field("730", "", "", "a", "PRD"),
	})
	assert.Empty(t, ws)
	assert.Equal(t, ir.Object{"title": ir.String("Physical Review D")}, out["journal_title"])
	assert.Equal(t, ir.String("Phys.Rev.D"), out["short_title"])
	assert.Equal(t, ir.StringsArray("Phys Rev D", "PRD"), out["title_variants"])

	out, ws = toStructured(t, "jobs", ir.LegacyRecord{
		field("046", "", "", "i", "20170101"),
		field("656", "", "", "a", "POSTDOC", "a", "SENIOR"),
	})
	assert.Empty(t, ws)
	assert.Equal(t, ir.String("2017-01-01"), out["deadline_date"])
	assert.Equal(t, ir.StringsArray("POSTDOC", "SENIOR"), out["ranks"])
}

func TestExperimentRecord(t *testing.T) {
	rec := ir.LegacyRecord{
		field("119", "", "", "a", "CERN-LHC-ATLAS"),
		field("371", "", "", "a", "CERN", "z", "902725"),
		field("710", "", "", "g", "ATLAS", "q", "Muon", "q", "Tile"),
	}
	out, ws := toStructured(t, "experiments", rec)
	assert.Empty(t, ws)
	assert.Equal(t, ir.String("CERN-LHC-ATLAS"), out["legacy_name"])
	assert.Equal(t, ir.Object{
		"value":          ir.String("ATLAS"),
		"subgroup_names": ir.StringsArray("Muon", "Tile"),
	}, out["collaboration"])

	back, ws := toLegacy(t, "experiments", out)
	assert.Empty(t, ws)
	assert.True(t, ir.EquivalentFields(rec, back))
}

func TestHandlerCatalog(t *testing.T) {
	for _, name := range HandlerNames() {
		h, ok := LookupHandler(name)
		require.True(t, ok, name)
		assert.True(t, h.Forward != nil || h.Reverse != nil, name)
	}
	assert.Equal(t, []string{"default_document_type", "hep_marker", "schema"}, FinalizerNames())
}
