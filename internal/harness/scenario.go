package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/marcbridge/internal/codec"
	"github.com/roach88/marcbridge/internal/diag"
	"github.com/roach88/marcbridge/internal/ir"
)

// Scenario defines a conformance test scenario.
// A scenario converts one record and asserts on the output, the warnings,
// and optionally on the record surviving the trip back.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model is the rule-set model to convert with (e.g. "literature").
	Model string `yaml:"model"`

	// Direction is "to_structured" or "to_legacy". When empty it is
	// inferred from Input: a list of fields converts to_structured, a
	// mapping to_legacy.
	Direction string `yaml:"direction,omitempty"`

	// Input is the record to convert, in the same shape the codecs read.
	Input any `yaml:"input"`

	// Assertions validate the conversion.
	// Supported types: output_equals, output_contains, fields_contain,
	// warning_count, warnings, round_trip, replay_stable
	Assertions []Assertion `yaml:"assertions"`
}

// ExpectedWarning matches one warning. Key is compared only when set.
type ExpectedWarning struct {
	Code  string `yaml:"code"`
	Field string `yaml:"field"`
	Key   string `yaml:"key,omitempty"`
}

// Assertion validates the conversion result.
type Assertion struct {
	// Type specifies the assertion type:
	// - "output_equals": output is exactly Value
	// - "output_contains": structured output holds every key of Value (subset match, recursive)
	// - "fields_contain": legacy output holds every field listed in Value
	// - "warning_count": exactly Count warnings carry Code
	// - "warnings": the warnings are exactly Warnings, in order
	// - "round_trip": converting the output back reproduces the input, minus Ignore;
	//   Unordered tags are compared without their occurrence order
	// - "replay_stable": replaying the stored conversions reproduces every output
	Type string `yaml:"type"`

	// Value is the expected record or record fragment.
	Value any `yaml:"value,omitempty"`

	// Code is the warning code (used by warning_count).
	Code string `yaml:"code,omitempty"`

	// Count is the expected number of warnings (used by warning_count).
	Count int `yaml:"count,omitempty"`

	// Warnings is the expected warning list (used by warnings).
	Warnings []ExpectedWarning `yaml:"warnings,omitempty"`

	// Ignore lists legacy tags or structured keys left out of the
	// round_trip comparison, for documented lossy fields.
	Ignore []string `yaml:"ignore,omitempty"`

	// Unordered lists legacy tags whose occurrences round_trip compares
	// as a multiset: tags several structured keys share come back grouped
	// by key.
	Unordered []string `yaml:"unordered,omitempty"`
}

// Assertion type constants.
const (
	AssertOutputEquals   = "output_equals"
	AssertOutputContains = "output_contains"
	AssertFieldsContain  = "fields_contain"
	AssertWarningCount   = "warning_count"
	AssertWarnings       = "warnings"
	AssertRoundTrip      = "round_trip"
	AssertReplayStable   = "replay_stable"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by file
// name. A non-empty filter is a filepath.Match pattern on scenario names.
func LoadScenarios(dir, filter string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	seen := make(map[string]string)
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if prev, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", path, s.Name, prev)
		}
		seen[s.Name] = path

		if filter != "" {
			ok, err := filepath.Match(filter, s.Name)
			if err != nil {
				return nil, fmt.Errorf("bad filter %q: %w", filter, err)
			}
			if !ok {
				continue
			}
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// InputRecord decodes Input and resolves the conversion direction.
func (s *Scenario) InputRecord() (ir.Record, ir.Direction, error) {
	v, err := ir.FromGo(s.Input)
	if err != nil {
		return nil, "", fmt.Errorf("input: %w", err)
	}

	var dir ir.Direction
	if s.Direction != "" {
		dir, err = ir.ParseDirection(s.Direction)
	} else {
		dir, err = codec.DetectDirection(v)
	}
	if err != nil {
		return nil, "", fmt.Errorf("input: %w", err)
	}

	switch dir {
	case ir.ToStructured:
		rec, err := ir.LegacyFromValue(v)
		if err != nil {
			return nil, "", fmt.Errorf("input: %w", err)
		}
		return rec, dir, nil
	default:
		obj, ok := v.(ir.Object)
		if !ok {
			return nil, "", fmt.Errorf("input: to_legacy input must be a mapping, got %T", v)
		}
		return obj, dir, nil
	}
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if strings.ContainsAny(s.Name, `/\`) {
		return fmt.Errorf("name %q must not contain path separators", s.Name)
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Model == "" {
		return fmt.Errorf("model is required")
	}

	if s.Input == nil {
		return fmt.Errorf("input is required")
	}

	if _, _, err := s.InputRecord(); err != nil {
		return err
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOutputEquals, AssertOutputContains, AssertFieldsContain:
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: %s requires value", index, a.Type)
		}
	case AssertWarningCount:
		if !diag.ValidCodes[diag.Code(a.Code)] {
			return fmt.Errorf("assertions[%d]: warning_count requires a known code, got %q", index, a.Code)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be >= 0", index)
		}
	case AssertWarnings:
		for j, w := range a.Warnings {
			if !diag.ValidCodes[diag.Code(w.Code)] {
				return fmt.Errorf("assertions[%d].warnings[%d]: unknown code %q", index, j, w.Code)
			}
			if w.Field == "" {
				return fmt.Errorf("assertions[%d].warnings[%d]: field is required", index, j)
			}
		}
	case AssertRoundTrip, AssertReplayStable:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
