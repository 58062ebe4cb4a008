package ir

import (
	"fmt"
	"strings"
)

// BlankIndicator is how an empty indicator slot is written in a tag key.
const BlankIndicator = '_'

// Record is a sealed interface over the two record shapes a conversion
// consumes or produces. Only LegacyRecord and Object implement it.
type Record interface {
	record()
}

func (LegacyRecord) record() {}
func (Object) record()       {}

// Direction names which way a conversion runs.
type Direction string

const (
	// ToStructured converts a LegacyRecord into an Object.
	ToStructured Direction = "to_structured"
	// ToLegacy converts an Object into a LegacyRecord.
	ToLegacy Direction = "to_legacy"
)

// ValidDirections defines allowed directions.
var ValidDirections = map[Direction]bool{
	ToStructured: true,
	ToLegacy:     true,
}

// ParseDirection validates a direction name.
func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	if !ValidDirections[d] {
		return "", fmt.Errorf("invalid direction %q: must be %q or %q", s, ToStructured, ToLegacy)
	}
	return d, nil
}

// Subfield is a single-character-coded datum within one field occurrence.
type Subfield struct {
	Code  string `json:"code"`
	Value string `json:"value"`
}

// SF is a shorthand Subfield constructor.
func SF(code, value string) Subfield {
	return Subfield{Code: code, Value: value}
}

// Field is one occurrence of a tag in a legacy record.
// Control fields (tags 001-009) carry Value and no subfields.
// A subfield code may repeat within one occurrence; order is significant.
type Field struct {
	Tag       string     `json:"tag"`
	Ind1      string     `json:"ind1,omitempty"`
	Ind2      string     `json:"ind2,omitempty"`
	Value     string     `json:"value,omitempty"`
	Subfields []Subfield `json:"subfields,omitempty"`
}

// LegacyRecord is an ordered sequence of field occurrences.
type LegacyRecord []Field

// IsControl reports whether the field is a control field (001-009).
func (f Field) IsControl() bool {
	return len(f.Tag) == 3 && strings.HasPrefix(f.Tag, "00")
}

// TagKey returns the match key: tag plus two indicator characters,
// blanks written as '_' (e.g. "0247_", "001__").
func (f Field) TagKey() string {
	return f.Tag + indicator(f.Ind1) + indicator(f.Ind2)
}

func indicator(ind string) string {
	if ind == "" || ind == " " || ind == "#" {
		return string(BlankIndicator)
	}
	return ind[:1]
}

// FieldFromTagKey creates an empty field from a tag key such as "0247_".
// Short keys are padded with blank indicators.
func FieldFromTagKey(key string) Field {
	f := Field{}
	if len(key) < 3 {
		f.Tag = key
		return f
	}
	f.Tag = key[:3]
	if len(key) > 3 && key[3] != BlankIndicator {
		f.Ind1 = key[3:4]
	}
	if len(key) > 4 && key[4] != BlankIndicator {
		f.Ind2 = key[4:5]
	}
	return f
}

// Get returns the first value of the given subfield code.
func (f Field) Get(code string) (string, bool) {
	for _, sf := range f.Subfields {
		if sf.Code == code {
			return sf.Value, true
		}
	}
	return "", false
}

// First returns the first value of the given subfield code or "".
func (f Field) First(code string) string {
	v, _ := f.Get(code)
	return v
}

// All returns every value of the given subfield code in order.
func (f Field) All(code string) []string {
	var out []string
	for _, sf := range f.Subfields {
		if sf.Code == code {
			out = append(out, sf.Value)
		}
	}
	return out
}

// Has reports whether the subfield code occurs at least once.
func (f Field) Has(code string) bool {
	_, ok := f.Get(code)
	return ok
}

// Add appends a subfield when value is non-empty and returns the field.
func (f Field) Add(code, value string) Field {
	if value == "" {
		return f
	}
	f.Subfields = append(f.Subfields, Subfield{Code: code, Value: value})
	return f
}

// IsEmpty reports whether the field carries no data at all.
func (f Field) IsEmpty() bool {
	if f.Value != "" {
		return false
	}
	for _, sf := range f.Subfields {
		if sf.Value != "" {
			return false
		}
	}
	return true
}

// ToValue converts the record into its JSON-compatible Value form:
// an Array of objects {tag, ind1, ind2, value, subfields: [{code, value}]}.
func (r LegacyRecord) ToValue() Array {
	arr := make(Array, len(r))
	for i, f := range r {
		obj := Object{"tag": String(f.Tag)}
		if f.Ind1 != "" {
			obj["ind1"] = String(f.Ind1)
		}
		if f.Ind2 != "" {
			obj["ind2"] = String(f.Ind2)
		}
		if f.Value != "" {
			obj["value"] = String(f.Value)
		}
		if len(f.Subfields) > 0 {
			sfs := make(Array, len(f.Subfields))
			for j, sf := range f.Subfields {
				sfs[j] = Object{"code": String(sf.Code), "value": String(sf.Value)}
			}
			obj["subfields"] = sfs
		}
		arr[i] = obj
	}
	return arr
}

// LegacyFromValue decodes the Value form produced by ToValue (or by an
// external tokenizer emitting the same shape) into a LegacyRecord.
//
// Subfield values are resolved through RawSubfield at this boundary, so a
// value may be a string, a list of strings, or a node object {"text": ...}.
// Subfields may also be given as an object keyed by code.
func LegacyFromValue(v Value) (LegacyRecord, error) {
	arr, ok := v.(Array)
	if !ok {
		return nil, fmt.Errorf("legacy record must be an array of fields, got %T", v)
	}

	rec := make(LegacyRecord, 0, len(arr))
	for i, elem := range arr {
		obj, ok := elem.(Object)
		if !ok {
			return nil, fmt.Errorf("field[%d]: must be an object, got %T", i, elem)
		}
		f, err := fieldFromObject(obj)
		if err != nil {
			return nil, fmt.Errorf("field[%d]: %w", i, err)
		}
		rec = append(rec, f)
	}
	return rec, nil
}

func fieldFromObject(obj Object) (Field, error) {
	tag, ok := obj.GetString("tag")
	if !ok || tag == "" {
		return Field{}, fmt.Errorf("tag is required")
	}

	f := Field{Tag: tag}
	// A five-character tag carries its indicators inline ("0247_").
	if len(tag) == 5 {
		f = FieldFromTagKey(tag)
	}
	if s, ok := obj.GetString("ind1"); ok {
		f.Ind1 = strings.TrimSpace(s)
	}
	if s, ok := obj.GetString("ind2"); ok {
		f.Ind2 = strings.TrimSpace(s)
	}
	if s, ok := obj.GetString("value"); ok {
		f.Value = s
	}

	switch sfs := obj["subfields"].(type) {
	case nil, Null:
	case Array:
		for j, elem := range sfs {
			sfObj, ok := elem.(Object)
			if !ok {
				return Field{}, fmt.Errorf("subfields[%d]: must be an object, got %T", j, elem)
			}
			code, ok := sfObj.GetString("code")
			if !ok || len(code) != 1 {
				return Field{}, fmt.Errorf("subfields[%d]: code must be a single character", j)
			}
			raw, err := ResolveRawSubfield(sfObj["value"])
			if err != nil {
				return Field{}, fmt.Errorf("subfields[%d]: %w", j, err)
			}
			for _, val := range raw.Values() {
				f.Subfields = append(f.Subfields, Subfield{Code: code, Value: val})
			}
		}
	case Object:
		for _, code := range sfs.SortedKeys() {
			if len(code) != 1 {
				return Field{}, fmt.Errorf("subfield code %q must be a single character", code)
			}
			raw, err := ResolveRawSubfield(sfs[code])
			if err != nil {
				return Field{}, fmt.Errorf("subfield %q: %w", code, err)
			}
			for _, val := range raw.Values() {
				f.Subfields = append(f.Subfields, Subfield{Code: code, Value: val})
			}
		}
	default:
		return Field{}, fmt.Errorf("subfields must be an array or object, got %T", sfs)
	}

	return f, nil
}

// WithTags returns the occurrences whose tag is one of tags, in order.
func (r LegacyRecord) WithTags(tags ...string) LegacyRecord {
	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[t] = true
	}
	var out LegacyRecord
	for _, f := range r {
		if want[f.Tag] {
			out = append(out, f)
		}
	}
	return out
}

// WithoutTags returns the occurrences whose tag is not one of tags, in order.
func (r LegacyRecord) WithoutTags(tags ...string) LegacyRecord {
	skip := make(map[string]bool, len(tags))
	for _, t := range tags {
		skip[t] = true
	}
	var out LegacyRecord
	for _, f := range r {
		if !skip[f.Tag] {
			out = append(out, f)
		}
	}
	return out
}

// EquivalentFields reports whether two field sequences are semantically
// equivalent: per tag, the same occurrences in the same relative order,
// each carrying the same control value and the same multiset of subfields.
// Empty subfields are ignored; occurrences of different tags may interleave
// differently.
func EquivalentFields(a, b []Field) bool {
	ma, mb := byTagKey(a), byTagKey(b)
	if len(ma) != len(mb) {
		return false
	}
	for tag, fa := range ma {
		fb, ok := mb[tag]
		if !ok || len(fa) != len(fb) {
			return false
		}
		for i := range fa {
			if !sameOccurrence(fa[i], fb[i]) {
				return false
			}
		}
	}
	return true
}

// SameOccurrences is EquivalentFields without the ordering: each tag key
// must carry the same occurrences in any order.
func SameOccurrences(a, b []Field) bool {
	ma, mb := byTagKey(a), byTagKey(b)
	if len(ma) != len(mb) {
		return false
	}
	for tag, fa := range ma {
		fb, ok := mb[tag]
		if !ok || len(fa) != len(fb) {
			return false
		}
		used := make([]bool, len(fb))
		for _, f := range fa {
			found := false
			for j, g := range fb {
				if !used[j] && sameOccurrence(f, g) {
					used[j], found = true, true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func byTagKey(fields []Field) map[string][]Field {
	m := make(map[string][]Field)
	for _, f := range fields {
		if f.IsEmpty() {
			continue
		}
		m[f.TagKey()] = append(m[f.TagKey()], f)
	}
	return m
}

func sameOccurrence(a, b Field) bool {
	if a.Value != b.Value {
		return false
	}
	counts := make(map[Subfield]int)
	for _, sf := range a.Subfields {
		if sf.Value != "" {
			counts[sf]++
		}
	}
	for _, sf := range b.Subfields {
		if sf.Value == "" {
			continue
		}
		counts[sf]--
		if counts[sf] < 0 {
			return false
		}
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}
