package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/marcbridge/internal/coerce"
	"github.com/roach88/marcbridge/internal/ir"
	"github.com/roach88/marcbridge/internal/registry"
)

// Legacy tags of author occurrences. The first author is written as 100,
// the rest as 700.
const (
	firstAuthorTag = "100"
	otherAuthorTag = "700"
)

// authorForward converts a 100 or 700 occurrence into one author.
//
// A "z" subfield attaches an institution record to the affiliation named
// by the closest preceding "u".
func authorForward(ctx registry.Context, r *registry.Rule, f ir.Field) registry.Result {
	var affiliations ir.Array
	var current ir.Object
	for _, sf := range f.Subfields {
		switch sf.Code {
		case "u":
			if v := coerce.Text(sf.Value); v != "" {
				current = ir.Object{"value": ir.String(v)}
				affiliations = append(affiliations, current)
			}
		case "z":
			if current == nil {
				continue
			}
			if _, linked := current["record"]; linked {
				continue
			}
			if ref := ctx.Refs().ToReference(ir.String(sf.Value), ir.CollectionInstitutions); ref != nil {
				current["record"] = ref
			} else {
				ctx.Malformed(r.Key, fmt.Sprintf("affiliation record %q is not a record id", sf.Value))
			}
		}
	}

	var ids ir.Array
	for _, v := range texts(f.All("i")) {
		ids = append(ids, ir.Object{"schema": ir.String("INSPIRE ID"), "value": ir.String(v)})
	}
	for _, v := range texts(f.All("j")) {
		schema, value, ok := parseAuthorID(v)
		if !ok {
			ctx.Malformed(r.Key, fmt.Sprintf("unrecognized author identifier %q", v))
			continue
		}
		ids = append(ids, ir.Object{"schema": ir.String(schema), "value": ir.String(value)})
	}

	var roles []string
	for _, v := range texts(f.All("e")) {
		if role, ok := legacyRoles[strings.ToLower(v)]; ok {
			roles = append(roles, role)
		}
	}

	var raw ir.Array
	for _, v := range texts(f.All("v")) {
		raw = append(raw, ir.Object{"value": ir.String(v)})
	}

	author := ir.NewObject(
		ir.O("full_name", coerce.StringOrNil(firstText(f, "a"))),
		ir.O("affiliations", arrayOrNil(affiliations)),
		ir.O("raw_affiliations", arrayOrNil(raw)),
		ir.O("ids", arrayOrNil(ids)),
		ir.O("emails", coerce.StringsOrNil(texts(f.All("m")))),
		ir.O("inspire_roles", coerce.StringsOrNil(roles)),
	)
	recid := coerce.StringOrNil(firstText(f, "x"))
	if len(author) == 0 && recid == nil {
		return registry.Ignore()
	}
	for k, v := range ctx.Refs().Relation(recid, ir.CollectionAuthors, "record", "curated_relation") {
		author[k] = v
	}
	return registry.Emit(author)
}

// authorsReverse writes the whole author list: the first as 100, the rest
// as 700.
func authorsReverse(ctx registry.Context, r *registry.Rule, v ir.Value) []ir.Field {
	var out []ir.Field
	for i, author := range coerce.Objects(v) {
		tag := otherAuthorTag
		if i == 0 {
			tag = firstAuthorTag
		}
		f := ir.Field{Tag: tag}
		f = f.Add("a", str(author, "full_name"))
		for _, aff := range coerce.Objects(author["affiliations"]) {
			f = f.Add("u", str(aff, "value"))
			if id, ok := ctx.Refs().FromReference(aff["record"]); ok {
				f = f.Add("z", strconv.FormatInt(id, 10))
			}
		}
		for _, aff := range coerce.Objects(author["raw_affiliations"]) {
			f = f.Add("v", str(aff, "value"))
		}
		for _, id := range coerce.Objects(author["ids"]) {
			schema, value := str(id, "schema"), str(id, "value")
			if schema == "INSPIRE ID" {
				f = f.Add("i", value)
			} else if schema != "" {
				f = f.Add("j", schema+":"+value)
			}
		}
		for _, email := range coerce.Strings(author["emails"]) {
			f = f.Add("m", email)
		}
		for _, role := range coerce.Strings(author["inspire_roles"]) {
			if legacy, ok := structuredRoles[role]; ok {
				f = f.Add("e", legacy)
			}
		}
		if id, ok := ctx.Refs().FromReference(author["record"]); ok {
			f = f.Add("x", strconv.FormatInt(id, 10))
		}
		out = append(out, f)
	}
	return out
}

var authorIDSchemas = map[string]string{
	"CERN":    "CERN",
	"INSPIRE": "INSPIRE BAI",
	"JACOW":   "JACOW",
	"ORCID":   "ORCID",
}

// parseAuthorID splits "ORCID:0000-0002-..." into schema and value.
func parseAuthorID(v string) (string, string, bool) {
	prefix, value, ok := strings.Cut(v, ":")
	if !ok || value == "" {
		return "", "", false
	}
	schema, ok := authorIDSchemas[strings.ToUpper(prefix)]
	return schema, value, ok
}

var legacyRoles = map[string]string{
	"ed.":  "editor",
	"dir.": "supervisor",
}

var structuredRoles = map[string]string{
	"editor":     "ed.",
	"supervisor": "dir.",
}

// publicationInfoForward converts one 773 occurrence.
func publicationInfoForward(ctx registry.Context, r *registry.Rule, f ir.Field) registry.Result {
	resolver := ctx.Refs()
	link := func(code, collection string) ir.Value {
		raw := firstText(f, code)
		if raw == "" {
			return nil
		}
		ref := resolver.ToReference(ir.String(raw), collection)
		if ref == nil {
			ctx.Malformed(r.Key, fmt.Sprintf("subfield %s: %q is not a record id", code, raw))
		}
		return ref
	}

	var year ir.Value
	if raw := firstText(f, "y"); raw != "" {
		if year = coerce.Year(raw); year == nil {
			ctx.Malformed(r.Key, fmt.Sprintf("%q is not a year", raw))
		}
	}

	info := ir.NewObject(
		ir.O("journal_title", coerce.StringOrNil(firstText(f, "p"))),
		ir.O("journal_volume", coerce.StringOrNil(firstText(f, "v"))),
		ir.O("journal_issue", coerce.StringOrNil(firstText(f, "n"))),
		ir.O("year", year),
		ir.O("cnum", coerce.StringOrNil(firstText(f, "w"))),
		ir.O("pubinfo_freetext", coerce.StringOrNil(firstText(f, "x"))),
		ir.O("parent_record", link("0", ir.CollectionLiterature)),
		ir.O("journal_record", link("1", ir.CollectionJournals)),
		ir.O("conference_record", link("2", ir.CollectionConferences)),
	)
	for k, v := range pages(firstText(f, "c")) {
		info[k] = v
	}
	if len(info) == 0 {
		return registry.Ignore()
	}
	return registry.Emit(info)
}

var pageNumber = regexp.MustCompile(`^[0-9]+$`)

// pages splits a 773 page string: "1-10" is a page range, a bare number a
// start page, anything else an article id.
func pages(s string) ir.Object {
	if s == "" {
		return nil
	}
	if start, end, ok := strings.Cut(s, "-"); ok && start != "" && end != "" {
		return ir.Object{"page_start": ir.String(start), "page_end": ir.String(end)}
	}
	if pageNumber.MatchString(s) {
		return ir.Object{"page_start": ir.String(s)}
	}
	return ir.Object{"artid": ir.String(s)}
}

func publicationInfoReverse(ctx registry.Context, r *registry.Rule, v ir.Value) []ir.Field {
	info, ok := v.(ir.Object)
	if !ok {
		ctx.Malformed(r.Key, fmt.Sprintf("expected an object, got %T", v))
		return nil
	}
	resolver := ctx.Refs()
	id := func(key string) string {
		if n, ok := resolver.FromReference(info[key]); ok {
			return strconv.FormatInt(n, 10)
		}
		return ""
	}

	page := str(info, "page_start")
	if end := str(info, "page_end"); page != "" && end != "" {
		page += "-" + end
	}
	if page == "" {
		page = str(info, "artid")
	}

	f := ir.FieldFromTagKey(r.Key).
		Add("p", str(info, "journal_title")).
		Add("v", str(info, "journal_volume")).
		Add("n", str(info, "journal_issue")).
		Add("c", page).
		Add("y", coerce.IntString(info["year"])).
		Add("w", str(info, "cnum")).
		Add("x", str(info, "pubinfo_freetext")).
		Add("0", id("parent_record")).
		Add("1", id("journal_record")).
		Add("2", id("conference_record"))
	return []ir.Field{f}
}

const arxivPrefix = "arXiv:"

// newStyleArxivID matches identifiers minted since 2007 ("1501.00001").
var newStyleArxivID = regexp.MustCompile(`^[0-9]{4}\.[0-9]{4,5}(v[0-9]+)?$`)

// arxivEprintForward converts a 037 occurrence whose source is arXiv.
func arxivEprintForward(_ registry.Context, _ *registry.Rule, f ir.Field) registry.Result {
	id := firstText(f, "a")
	if len(id) > len(arxivPrefix) && strings.EqualFold(id[:len(arxivPrefix)], arxivPrefix) {
		id = id[len(arxivPrefix):]
	}
	if id == "" {
		return registry.Ignore()
	}
	return registry.Emit(ir.NewObject(
		ir.O("value", ir.String(id)),
		ir.O("categories", coerce.StringsOrNil(texts(f.All("c")))),
	))
}

// arxivEprintReverse writes new-style identifiers with their "arXiv:"
// prefix and old-style ones ("hep-th/9901001") bare.
func arxivEprintReverse(ctx registry.Context, r *registry.Rule, v ir.Value) []ir.Field {
	eprint, ok := v.(ir.Object)
	if !ok {
		ctx.Malformed(r.Key, fmt.Sprintf("expected an object, got %T", v))
		return nil
	}
	id := str(eprint, "value")
	if newStyleArxivID.MatchString(id) {
		id = arxivPrefix + id
	}
	f := newField(r).Add("a", id)
	for _, c := range coerce.Strings(eprint["categories"]) {
		f = f.Add("c", c)
	}
	return []ir.Field{f}
}

// Document types carried by 980 "a", legacy spelling to structured value.
var documentTypes = map[string]string{
	"Activityreport":  "activity report",
	"Book":            "book",
	"BookChapter":     "book chapter",
	"ConferencePaper": "conference paper",
	"Note":            "note",
	"Proceedings":     "proceedings",
	"Report":          "report",
	"Thesis":          "thesis",
}

var legacyDocumentTypes = invert(documentTypes)

// defaultDocumentType is assumed when no 980 names one. It is never
// written back.
const defaultDocumentType = "article"

// hepMarker is the 980 value every literature record carries.
const hepMarker = "HEP"

// collectionForward routes a 980 occurrence: flags and document types are
// redirected to their own keys, any other collection name is kept under the
// rule's key. A deletion mark in "c" and a collection in "a" are both kept.
func collectionForward(_ registry.Context, _ *registry.Rule, f ir.Field) registry.Result {
	var res registry.Result
	if strings.EqualFold(firstText(f, "c"), "DELETED") {
		res = registry.Redirect("deleted", ir.Bool(true))
	}
	return res.And(collectionName(firstText(f, "a")))
}

func collectionName(v string) registry.Result {
	switch strings.ToUpper(v) {
	case "", hepMarker:
		return registry.Ignore()
	case "CORE":
		return registry.Redirect("core", ir.Bool(true))
	case "CITEABLE":
		return registry.Redirect("citeable", ir.Bool(true))
	case "PUBLISHED":
		return registry.Redirect("refereed", ir.Bool(true))
	}
	if dt, ok := documentTypes[v]; ok {
		return registry.Redirect("document_type", ir.StringsArray(dt))
	}
	return registry.Emit(ir.String(v))
}

func documentTypeReverse(ctx registry.Context, r *registry.Rule, v ir.Value) []ir.Field {
	dt, ok := v.(ir.String)
	if !ok {
		ctx.Malformed(r.Key, fmt.Sprintf("expected a string, got %T", v))
		return nil
	}
	if dt == defaultDocumentType {
		return nil
	}
	legacy, ok := legacyDocumentTypes[string(dt)]
	if !ok {
		ctx.Malformed(r.Key, fmt.Sprintf("unknown document type %q", dt))
		return nil
	}
	return []ir.Field{newField(r).Add("a", legacy)}
}

// Degree types of a 502 "b", lowercased legacy spelling to structured value.
var degreeTypes = map[string]string{
	"bachelor":     "bachelor",
	"diploma":      "diploma",
	"habilitation": "habilitation",
	"laurea":       "laurea",
	"master":       "master",
	"phd":          "phd",
}

var legacyDegrees = map[string]string{
	"bachelor":     "Bachelor",
	"diploma":      "Diploma",
	"habilitation": "Habilitation",
	"laurea":       "Laurea",
	"master":       "Master",
	"other":        "Other",
	"phd":          "PhD",
}

// thesisInfoForward converts a 502 occurrence. It also marks the record a
// thesis.
func thesisInfoForward(ctx registry.Context, r *registry.Rule, f ir.Field) registry.Result {
	var degree ir.Value
	if raw := firstText(f, "b"); raw != "" {
		dt, ok := degreeTypes[strings.ToLower(raw)]
		if !ok {
			dt = "other"
		}
		degree = ir.String(dt)
	}

	var date ir.Value
	if raw := firstText(f, "d"); raw != "" {
		if date = coerce.Date(raw); date == nil {
			ctx.Malformed("thesis_info", fmt.Sprintf("%q is not a date", raw))
		}
	}

	var institutions ir.Array
	for _, name := range texts(f.All("c")) {
		institutions = append(institutions, ir.Object{"name": ir.String(name)})
	}

	info := ir.NewObject(
		ir.O("degree_type", degree),
		ir.O("date", date),
		ir.O("institutions", arrayOrNil(institutions)),
	)
	if len(info) == 0 {
		return registry.Ignore()
	}
	return registry.Emit(ir.Object{
		"thesis_info":   info,
		"document_type": ir.StringsArray("thesis"),
	})
}

func thesisInfoReverse(ctx registry.Context, r *registry.Rule, v ir.Value) []ir.Field {
	info, ok := v.(ir.Object)
	if !ok {
		ctx.Malformed(r.Key, fmt.Sprintf("expected an object, got %T", v))
		return nil
	}
	f := newField(r).Add("b", legacyDegrees[str(info, "degree_type")])
	for _, inst := range coerce.Objects(info["institutions"]) {
		f = f.Add("c", str(inst, "name"))
	}
	return []ir.Field{f.Add("d", str(info, "date"))}
}

// str returns obj[key] when it is a string.
func str(obj ir.Object, key string) string {
	s, _ := obj.GetString(key)
	return s
}

func arrayOrNil(arr ir.Array) ir.Value {
	if len(arr) == 0 {
		return nil
	}
	return arr
}

func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}
