package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/marcbridge/internal/ir"
)

// Snapshot captures a scenario's conversion for golden comparison.
// It serializes as canonical JSON so identical conversions produce
// byte-identical files.
type Snapshot struct {
	ScenarioName string
	Model        string
	Result       *Result
}

// ToValue converts the snapshot into a Value for canonical output.
func (s Snapshot) ToValue() ir.Object {
	return ir.NewObject(
		ir.O("scenario_name", ir.String(s.ScenarioName)),
		ir.O("model", ir.String(s.Model)),
		ir.O("direction", ir.String(s.Result.Direction)),
		ir.O("output", recordValue(s.Result.Output)),
		ir.O("warnings", s.Result.Warnings.ToValue()),
	)
}

// Marshal returns the snapshot's golden file contents.
func (s Snapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.ToValue())
}

// RunWithGolden executes a scenario, fails the test on any assertion error,
// and compares the conversion against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func (h *Harness) RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := h.Run(context.Background(), scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	return AssertGolden(t, scenario.Name, scenario.Model, result)
}

// AssertGolden compares a result against a golden file without re-running
// the scenario.
func AssertGolden(t *testing.T, scenarioName, model string, result *Result) error {
	t.Helper()

	snapshot := Snapshot{ScenarioName: scenarioName, Model: model, Result: result}
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
