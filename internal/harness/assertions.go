package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/marcbridge/internal/diag"
	"github.com/roach88/marcbridge/internal/ir"
	"github.com/roach88/marcbridge/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Warnings diag.Warnings // Conversion warnings for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Warnings) > 0 {
		fmt.Fprintf(&buf, "\nWarnings:\n")
		for i, w := range e.Warnings {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, w)
		}
	}

	return buf.String()
}

// evaluate runs every assertion of the scenario against result.
// Returns a slice of error messages for failed assertions.
func (r *run) evaluate(ctx context.Context, result *Result) []string {
	var errors []string

	for i, assertion := range r.s.Assertions {
		var err error

		switch assertion.Type {
		case AssertOutputEquals:
			err = assertOutputEquals(result, assertion)
		case AssertOutputContains:
			err = assertOutputContains(result, assertion)
		case AssertFieldsContain:
			err = assertFieldsContain(result, assertion)
		case AssertWarningCount:
			err = assertWarningCount(result, assertion)
		case AssertWarnings:
			err = assertWarnings(result, assertion)
		case AssertRoundTrip:
			err = r.assertRoundTrip(ctx, result, assertion)
		case AssertReplayStable:
			err = r.assertReplayStable(ctx, result)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func expectedValue(a Assertion) (ir.Value, error) {
	v, err := ir.FromGo(a.Value)
	if err != nil {
		return nil, fmt.Errorf("%s: value: %w", a.Type, err)
	}
	return v, nil
}

func describe(v ir.Value) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// assertOutputEquals checks the output against the expected record exactly.
// A legacy expectation is decoded like input, so subfields may be given in
// any accepted shape.
func assertOutputEquals(result *Result, a Assertion) error {
	want, err := expectedValue(a)
	if err != nil {
		return err
	}

	var ok bool
	switch out := result.Output.(type) {
	case ir.LegacyRecord:
		var legacy ir.LegacyRecord
		legacy, err = ir.LegacyFromValue(want)
		if err != nil {
			return fmt.Errorf("output_equals: value: %w", err)
		}
		want = legacy.ToValue()
		ok = ir.Equal(want, out.ToValue())
	case ir.Object:
		ok = ir.Equal(want, out)
	}
	if !ok {
		return &AssertionError{
			Type:     AssertOutputEquals,
			Expected: describe(want),
			Actual:   describe(recordValue(result.Output)),
			Warnings: result.Warnings,
		}
	}
	return nil
}

// assertOutputContains checks that the structured output holds every key
// of the expected object (subset match). Nested objects match as subsets
// too; arrays and scalars must be equal.
func assertOutputContains(result *Result, a Assertion) error {
	want, err := expectedValue(a)
	if err != nil {
		return err
	}
	wantObj, ok := want.(ir.Object)
	if !ok {
		return fmt.Errorf("output_contains: value must be a mapping")
	}
	out, ok := result.Output.(ir.Object)
	if !ok {
		return fmt.Errorf("output_contains: output is not a structured record")
	}

	for _, key := range wantObj.SortedKeys() {
		got, exists := out[key]
		if !exists {
			return &AssertionError{
				Type:     AssertOutputContains,
				Expected: fmt.Sprintf("key %q", key),
				Actual:   fmt.Sprintf("missing; keys are %v", out.SortedKeys()),
				Warnings: result.Warnings,
			}
		}
		if !matchSubset(got, wantObj[key]) {
			return &AssertionError{
				Type:     AssertOutputContains,
				Expected: fmt.Sprintf("%s = %s", key, describe(wantObj[key])),
				Actual:   fmt.Sprintf("%s = %s", key, describe(got)),
				Warnings: result.Warnings,
			}
		}
	}
	return nil
}

// matchSubset checks if actual contains expected. Extra object keys in
// actual are ignored.
func matchSubset(actual, expected ir.Value) bool {
	expObj, ok := expected.(ir.Object)
	if !ok {
		return ir.Equal(actual, expected)
	}
	actObj, ok := actual.(ir.Object)
	if !ok {
		return false
	}
	for key, val := range expObj {
		got, exists := actObj[key]
		if !exists || !matchSubset(got, val) {
			return false
		}
	}
	return true
}

// assertFieldsContain checks that every expected field occurs in the legacy
// output with the same indicators, value and subfields.
func assertFieldsContain(result *Result, a Assertion) error {
	want, err := expectedValue(a)
	if err != nil {
		return err
	}
	fields, err := ir.LegacyFromValue(want)
	if err != nil {
		return fmt.Errorf("fields_contain: value: %w", err)
	}
	out, ok := result.Output.(ir.LegacyRecord)
	if !ok {
		return fmt.Errorf("fields_contain: output is not a legacy record")
	}

	for _, f := range fields {
		found := false
		for _, g := range out {
			if ir.EquivalentFields([]ir.Field{f}, []ir.Field{g}) {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertFieldsContain,
				Expected: describe(ir.LegacyRecord{f}.ToValue()),
				Actual:   describe(out.ToValue()),
				Warnings: result.Warnings,
			}
		}
	}
	return nil
}

// assertWarningCount checks how many warnings carry the code.
func assertWarningCount(result *Result, a Assertion) error {
	got := result.Warnings.Count(diag.Code(a.Code))
	if got != a.Count {
		return &AssertionError{
			Type:     AssertWarningCount,
			Expected: fmt.Sprintf("%d %s", a.Count, a.Code),
			Actual:   fmt.Sprintf("%d", got),
			Warnings: result.Warnings,
		}
	}
	return nil
}

// assertWarnings checks the warning list exactly, in order.
func assertWarnings(result *Result, a Assertion) error {
	mismatch := len(result.Warnings) != len(a.Warnings)
	for i := 0; !mismatch && i < len(a.Warnings); i++ {
		want, got := a.Warnings[i], result.Warnings[i]
		if string(got.Code) != want.Code || got.Field != want.Field {
			mismatch = true
		}
		if want.Key != "" && got.Key != want.Key {
			mismatch = true
		}
	}
	if !mismatch {
		return nil
	}

	expected := make([]string, len(a.Warnings))
	for i, w := range a.Warnings {
		expected[i] = fmt.Sprintf("[%s] %s", w.Code, w.Field)
		if w.Key != "" {
			expected[i] += " -> " + w.Key
		}
	}
	return &AssertionError{
		Type:     AssertWarnings,
		Expected: fmt.Sprintf("%d warnings: %s", len(a.Warnings), strings.Join(expected, "; ")),
		Actual:   fmt.Sprintf("%d warnings", len(result.Warnings)),
		Warnings: result.Warnings,
	}
}

// assertRoundTrip converts the output back and compares it with the input,
// leaving out the ignored tags or keys. Unordered legacy tags only need the
// same occurrences.
func (r *run) assertRoundTrip(ctx context.Context, result *Result, a Assertion) error {
	if result.Back == nil {
		back, _, err := r.convert(ctx, reverse(result.Direction), result.Output)
		if err != nil {
			return fmt.Errorf("round_trip: %w", err)
		}
		result.Back = back
	}

	var ok bool
	var expected, actual ir.Value
	switch in := r.input.(type) {
	case ir.LegacyRecord:
		back, _ := result.Back.(ir.LegacyRecord)
		in, back = in.WithoutTags(a.Ignore...), back.WithoutTags(a.Ignore...)
		skip := append(append([]string(nil), a.Ignore...), a.Unordered...)
		ok = ir.EquivalentFields(in.WithoutTags(skip...), back.WithoutTags(skip...)) &&
			ir.SameOccurrences(in.WithTags(a.Unordered...), back.WithTags(a.Unordered...))
		expected, actual = in.ToValue(), back.ToValue()
	case ir.Object:
		back, _ := result.Back.(ir.Object)
		in, back = withoutKeys(in, a.Ignore), withoutKeys(back, a.Ignore)
		ok = ir.Equal(in, back)
		expected, actual = in, back
	}
	if !ok {
		return &AssertionError{
			Type:     AssertRoundTrip,
			Expected: describe(expected),
			Actual:   describe(actual),
			Warnings: result.Warnings,
		}
	}
	return nil
}

func withoutKeys(obj ir.Object, keys []string) ir.Object {
	out := make(ir.Object, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// assertReplayStable replays every conversion stored so far and requires
// identical output hashes.
func (r *run) assertReplayStable(ctx context.Context, result *Result) error {
	report, err := r.store.Replay(ctx, r.h.conv, r.h.fingerprint)
	if err != nil {
		return fmt.Errorf("replay_stable: %w", err)
	}
	if report.OK() && report.Drifted == 0 {
		return nil
	}

	var bad []string
	for _, res := range report.Results {
		if res.Status != store.ReplayMatch {
			bad = append(bad, fmt.Sprintf("%s: %s", res.ID, res.Status))
		}
	}
	return &AssertionError{
		Type:     AssertReplayStable,
		Expected: fmt.Sprintf("%d conversions replay identically", len(report.Results)),
		Actual:   strings.Join(bad, ", "),
		Warnings: result.Warnings,
	}
}
