package compiler

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/marcbridge/internal/ir"
)

// RuleSetsPath is where rule sets live in a CUE instance, keyed by model.
const RuleSetsPath = "rulesets"

const directionBoth = "both"

// IgnoreHandler is the builtin handler that drops its input. A to_legacy
// ignore rule needs no legacy tag key.
const IgnoreHandler = "ignore"

// ignoredLegacyKey stands in for the legacy key of a to_legacy ignore rule.
const ignoredLegacyKey = "-"

// ruleDecl mirrors #Rule for decoding.
type ruleDecl struct {
	Direction  string            `json:"direction"`
	Tag        string            `json:"tag"`
	Key        string            `json:"key"`
	ReverseKey string            `json:"reverse_key"`
	Legacy     string            `json:"legacy"`
	Handler    string            `json:"handler"`
	Repeatable bool              `json:"repeatable"`
	When       *whenDecl         `json:"when"`
	Code       string            `json:"code"`
	Subfields  map[string]string `json:"subfields"`
	Fixed      map[string]string `json:"fixed"`
	Ref        *ir.RefSpec       `json:"ref"`
}

type whenDecl struct {
	Present string            `json:"present"`
	Absent  string            `json:"absent"`
	Equals  map[string]string `json:"equals"`
}

// CompileRuleSets compiles every rule set under RuleSetsPath of root,
// sorted by model name.
func CompileRuleSets(root cue.Value) ([]ir.RuleSetSpec, error) {
	if err := root.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	setsVal := root.LookupPath(cue.ParsePath(RuleSetsPath))
	if !setsVal.Exists() {
		return nil, &CompileError{
			Field:   RuleSetsPath,
			Message: "no rule sets declared",
			Pos:     root.Pos(),
		}
	}

	iter, err := setsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []ir.RuleSetSpec
	for iter.Next() {
		spec, err := CompileRuleSet(iter.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, *spec)
	}
	sort.Slice(specs, func(i, j int) bool {
		return specs[i].Model < specs[j].Model
	})
	return specs, nil
}

// CompileRuleSet compiles one rule set. The model name is the value's
// label, e.g. the value at path "rulesets.literature" is model "literature".
func CompileRuleSet(v cue.Value) (*ir.RuleSetSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.RuleSetSpec{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Model = strings.Trim(labels[len(labels)-1].String(), `"`)
	}
	if spec.Model == "" {
		return nil, &CompileError{Field: "model", Message: "rule set must be declared under a model label", Pos: v.Pos()}
	}

	def := SchemaValue(v.Context()).LookupPath(cue.ParsePath("#RuleSet"))
	if err := def.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	u := def.Unify(v)
	if err := u.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var err error
	if spec.Collection, err = u.LookupPath(cue.ParsePath("collection")).String(); err != nil {
		return nil, formatCUEError(err)
	}
	if spec.Schema, err = u.LookupPath(cue.ParsePath("schema")).String(); err != nil {
		return nil, formatCUEError(err)
	}
	if spec.Postprocess.FilterEmpty, err = u.LookupPath(cue.ParsePath("postprocess.filter_empty")).Bool(); err != nil {
		return nil, formatCUEError(err)
	}
	if spec.Postprocess.Dedupe, err = u.LookupPath(cue.ParsePath("postprocess.dedupe")).Bool(); err != nil {
		return nil, formatCUEError(err)
	}

	for _, dir := range []ir.Direction{ir.ToStructured, ir.ToLegacy} {
		names, err := parseStrings(u.LookupPath(cue.MakePath(cue.Str("finalizers"), cue.Str(string(dir)))))
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			spec.Finalizers = append(spec.Finalizers, ir.FinalizerSpec{Name: name, Direction: dir})
		}
	}

	spec.Rules, err = parseRules(u.LookupPath(cue.ParsePath("rules")), rulePositions(v))
	if err != nil {
		return nil, err
	}
	return spec, nil
}

func parseStrings(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// rulePositions returns the source position of each rule as declared,
// before unification with the schema.
func rulePositions(v cue.Value) []token.Pos {
	iter, err := v.LookupPath(cue.ParsePath("rules")).List()
	if err != nil {
		return nil
	}
	var out []token.Pos
	for iter.Next() {
		out = append(out, iter.Value().Pos())
	}
	return out
}

// parseRules decodes and expands every rule declaration in order.
func parseRules(v cue.Value, positions []token.Pos) ([]ir.RuleSpec, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rules []ir.RuleSpec
	for i := 0; iter.Next(); i++ {
		ruleVal := iter.Value()
		var decl ruleDecl
		if err := ruleVal.Decode(&decl); err != nil {
			return nil, formatCUEError(err)
		}
		pos := ruleVal.Pos()
		if i < len(positions) {
			pos = positions[i]
		}
		expanded, err := expandRule(decl, pos)
		if err != nil {
			return nil, err
		}
		rules = append(rules, expanded...)
	}
	return rules, nil
}

// expandRule turns one declaration into its per-direction RuleSpecs.
func expandRule(decl ruleDecl, pos token.Pos) ([]ir.RuleSpec, error) {
	base := ir.RuleSpec{
		Handler:    decl.Handler,
		Repeatable: decl.Repeatable,
		Code:       decl.Code,
		Subfields:  subfieldMappings(decl.Subfields),
		Fixed:      sortedSubfields(decl.Fixed),
		Ref:        decl.Ref,
	}
	if pos.IsValid() {
		base.Pos = pos.String()
	}

	var out []ir.RuleSpec
	if decl.Direction == directionBoth || decl.Direction == string(ir.ToStructured) {
		if decl.Tag == "" {
			return nil, &CompileError{
				Field:   "tag",
				Message: fmt.Sprintf("rule for key %q needs a tag to convert to_structured", decl.Key),
				Pos:     pos,
			}
		}
		fwd := base
		fwd.Direction = ir.ToStructured
		fwd.Pattern = anchor(decl.Tag)
		fwd.Key = decl.Key
		if decl.When != nil {
			fwd.When = &ir.WhenSpec{
				Present: decl.When.Present,
				Absent:  decl.When.Absent,
				Equals:  sortedSubfields(decl.When.Equals),
			}
		}
		out = append(out, fwd)
	}

	if decl.Direction == directionBoth || decl.Direction == string(ir.ToLegacy) {
		source := decl.Key
		if decl.ReverseKey != "" {
			source = decl.ReverseKey
		}
		if source == ir.SelfKey {
			return nil, &CompileError{
				Field:   "reverse_key",
				Message: fmt.Sprintf("a %q rule needs reverse_key to convert to_legacy", ir.SelfKey),
				Pos:     pos,
			}
		}
		target := decl.Legacy
		if target == "" {
			target = literalTagKey(decl.Tag)
		}
		if target == "" && decl.Handler == IgnoreHandler {
			target = ignoredLegacyKey
		}
		if target == "" {
			return nil, &CompileError{
				Field:   "legacy",
				Message: fmt.Sprintf("rule for key %q needs a legacy tag key to convert to_legacy", source),
				Pos:     pos,
			}
		}
		rev := base
		rev.Direction = ir.ToLegacy
		rev.Pattern = "^" + regexp.QuoteMeta(source) + "$"
		rev.Key = target
		out = append(out, rev)
	}
	return out, nil
}

// anchor prefixes a tag pattern with ^ so its literal prefix counts
// towards specificity.
func anchor(tag string) string {
	if strings.HasPrefix(tag, "^") {
		return tag
	}
	return "^" + tag
}

// literalTagKey returns tag as a legacy tag key when it is a plain one
// ("0247_", "^245__"), or "".
func literalTagKey(tag string) string {
	tag = strings.TrimPrefix(tag, "^")
	tag = strings.TrimSuffix(tag, "$")
	if len(tag) != 5 || regexp.QuoteMeta(tag) != tag {
		return ""
	}
	return tag
}

func sortedSubfields(m map[string]string) []ir.Subfield {
	if len(m) == 0 {
		return nil
	}
	codes := make([]string, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	out := make([]ir.Subfield, len(codes))
	for i, code := range codes {
		out[i] = ir.Subfield{Code: code, Value: m[code]}
	}
	return out
}

func subfieldMappings(m map[string]string) []ir.SubfieldMapping {
	sfs := sortedSubfields(m)
	if sfs == nil {
		return nil
	}
	out := make([]ir.SubfieldMapping, len(sfs))
	for i, sf := range sfs {
		out[i] = ir.SubfieldMapping{Code: sf.Code, Key: sf.Value}
	}
	return out
}

// CompileError represents an error found while compiling CUE declarations.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
