package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/marcbridge/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// RuleSetSpec errors (E101-E109)
	ErrModelNameEmpty     = "E101" // model name is required
	ErrUnknownCollection  = "E102" // collection is not a known collection
	ErrSchemaEmpty        = "E103" // schema name is required
	ErrDuplicateModel     = "E104" // model declared twice
	ErrInvalidFinalizer   = "E105" // finalizer name empty or direction invalid
	ErrDuplicateFinalizer = "E106" // same finalizer listed twice for a direction
	ErrNoRules            = "E107" // rule set has no rules

	// RuleSpec errors (E110-E119)
	ErrInvalidDirection    = "E110" // rule direction invalid
	ErrInvalidPattern      = "E111" // pattern empty or not a valid regexp
	ErrKeyEmpty            = "E112" // target key is required
	ErrHandlerEmpty        = "E113" // handler is required
	ErrInvalidSubfieldCode = "E114" // subfield code must be one character
	ErrInvalidRef          = "E115" // reference declaration incomplete
	ErrDiscriminatorScope  = "E116" // discriminators apply only to to_structured
	ErrDuplicateRule       = "E117" // identical rule declared twice
	ErrInvalidLegacyKey    = "E118" // legacy tag key malformed
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Pos     string `json:"pos,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Pos != "" {
		return fmt.Sprintf("[%s] %s: %s: %s", e.Code, e.Pos, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// legacyKeyPattern matches a legacy tag key: a three-character tag and two
// indicator slots.
var legacyKeyPattern = regexp.MustCompile(`^[0-9A-Z]{3}[0-9a-zA-Z_]{2}$`)

// Validate validates compiled rule sets.
// Returns all errors found (does not fail-fast).
// Supports RuleSetSpec and []RuleSetSpec.
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.RuleSetSpec:
		return validateRuleSet(spec)
	case ir.RuleSetSpec:
		return validateRuleSet(&spec)
	case []ir.RuleSetSpec:
		return validateRuleSets(spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateRuleSets(specs []ir.RuleSetSpec) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for i := range specs {
		// E104: duplicate model
		if seen[specs[i].Model] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("rulesets[%d].model", i),
				Message: fmt.Sprintf("model %q declared twice", specs[i].Model),
				Code:    ErrDuplicateModel,
			})
		}
		seen[specs[i].Model] = true
		errs = append(errs, validateRuleSet(&specs[i])...)
	}
	return errs
}

// validateRuleSet validates one model's rule set.
func validateRuleSet(spec *ir.RuleSetSpec) []ValidationError {
	var errs []ValidationError
	prefix := spec.Model

	// E101: model name is required
	if strings.TrimSpace(spec.Model) == "" {
		errs = append(errs, ValidationError{
			Field:   "model",
			Message: "model name is required and must be non-empty",
			Code:    ErrModelNameEmpty,
		})
		prefix = "<unnamed>"
	}

	// E102: collection must be known
	if !ir.ValidCollections[spec.Collection] {
		errs = append(errs, ValidationError{
			Field:   prefix + ".collection",
			Message: fmt.Sprintf("unknown collection %q", spec.Collection),
			Code:    ErrUnknownCollection,
		})
	}

	// E103: schema is required
	if strings.TrimSpace(spec.Schema) == "" {
		errs = append(errs, ValidationError{
			Field:   prefix + ".schema",
			Message: "schema is required",
			Code:    ErrSchemaEmpty,
		})
	}

	// E105/E106: finalizers
	finalizers := make(map[ir.FinalizerSpec]bool)
	for i, f := range spec.Finalizers {
		field := fmt.Sprintf("%s.finalizers[%d]", prefix, i)
		if f.Name == "" || !ir.ValidDirections[f.Direction] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("finalizer %q has invalid direction %q", f.Name, f.Direction),
				Code:    ErrInvalidFinalizer,
			})
			continue
		}
		if finalizers[f] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("finalizer %q listed twice for %s", f.Name, f.Direction),
				Code:    ErrDuplicateFinalizer,
			})
		}
		finalizers[f] = true
	}

	// E107: at least one rule
	if len(spec.Rules) == 0 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".rules",
			Message: "at least one rule is required",
			Code:    ErrNoRules,
		})
	}

	seen := make(map[string]int)
	for i, rule := range spec.Rules {
		field := fmt.Sprintf("%s.rules[%d]", prefix, i)
		errs = append(errs, validateRule(rule, field)...)

		// E117: duplicate rule
		fp := ruleIdentity(rule)
		if j, dup := seen[fp]; dup {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicates rules[%d]", j),
				Code:    ErrDuplicateRule,
				Pos:     rule.Pos,
			})
		} else {
			seen[fp] = i
		}
	}

	return errs
}

// validateRule validates one compiled rule.
func validateRule(rule ir.RuleSpec, field string) []ValidationError {
	var errs []ValidationError
	add := func(suffix, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   field + suffix,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
			Pos:     rule.Pos,
		})
	}

	// E110: direction
	if !ir.ValidDirections[rule.Direction] {
		add(".direction", ErrInvalidDirection, "invalid direction %q", rule.Direction)
	}

	// E111: pattern
	if rule.Pattern == "" {
		add(".pattern", ErrInvalidPattern, "pattern is required")
	} else if _, err := regexp.Compile(rule.Pattern); err != nil {
		add(".pattern", ErrInvalidPattern, "invalid pattern %q: %v", rule.Pattern, err)
	}

	// E112/E113: key and handler
	if rule.Key == "" {
		add(".key", ErrKeyEmpty, "target key is required")
	}
	if rule.Handler == "" {
		add(".handler", ErrHandlerEmpty, "handler is required")
	}

	// E118: to_legacy targets a legacy tag key
	if rule.Direction == ir.ToLegacy && rule.Handler != IgnoreHandler && rule.Key != "" && !legacyKeyPattern.MatchString(rule.Key) {
		add(".legacy", ErrInvalidLegacyKey, "legacy tag key %q must be a tag plus two indicators", rule.Key)
	}

	// E114: subfield codes
	codes := []struct{ where, code string }{{".code", rule.Code}}
	for _, m := range rule.Subfields {
		codes = append(codes, struct{ where, code string }{".subfields", m.Code})
	}
	for _, sf := range rule.Fixed {
		codes = append(codes, struct{ where, code string }{".fixed", sf.Code})
	}
	if rule.When != nil {
		codes = append(codes,
			struct{ where, code string }{".when.present", rule.When.Present},
			struct{ where, code string }{".when.absent", rule.When.Absent})
		for _, sf := range rule.When.Equals {
			codes = append(codes, struct{ where, code string }{".when.equals", sf.Code})
		}
	}
	for _, c := range codes {
		if c.code != "" && len(c.code) != 1 {
			add(c.where, ErrInvalidSubfieldCode, "subfield code %q must be one character", c.code)
		}
	}

	// E115: reference declaration
	if rule.Ref != nil {
		if len(rule.Ref.Code) != 1 {
			add(".ref.code", ErrInvalidRef, "reference subfield code %q must be one character", rule.Ref.Code)
		}
		if !ir.ValidCollections[rule.Ref.Collection] {
			add(".ref.collection", ErrInvalidRef, "unknown collection %q", rule.Ref.Collection)
		}
		if rule.Ref.Key == "" || rule.Ref.Curated == "" {
			add(".ref", ErrInvalidRef, "reference needs record and curated keys")
		}
	}

	// E116: discriminators are forward-only
	if rule.Direction == ir.ToLegacy && rule.When != nil {
		add(".when", ErrDiscriminatorScope, "discriminators apply only to to_structured rules")
	}

	return errs
}

// ruleIdentity is the part of a rule that makes two declarations the same
// rule: direction, pattern, key and discriminator.
func ruleIdentity(rule ir.RuleSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s", rule.Direction, rule.Pattern, rule.Key)
	if rule.When != nil {
		fmt.Fprintf(&b, "|%s|%s", rule.When.Present, rule.When.Absent)
		for _, sf := range rule.When.Equals {
			fmt.Fprintf(&b, "|%s=%s", sf.Code, sf.Value)
		}
	}
	return b.String()
}
