package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/marcbridge/internal/diag"
	"github.com/roach88/marcbridge/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestConversion creates a to_structured conversion of a record with
// the given control number.
func createTestConversion(id string, seq int64, controlNumber int64) Conversion {
	return Conversion{
		ID:        id,
		Seq:       seq,
		Name:      id + ".json",
		Model:     "literature",
		Direction: ir.ToStructured,
		Input: ir.LegacyRecord{
			{Tag: "001", Value: "1"},
			{Tag: "245", Subfields: []ir.Subfield{ir.SF("a", "A title")}},
		},
		Output: ir.Object{
			"control_number": ir.Int(controlNumber),
			"titles":         ir.Array{ir.Object{"title": ir.String("A title")}},
		},
		RulesFingerprint: "rules-v1",
	}
}

func unmapped(field string, index int) diag.Warning {
	return diag.Warning{
		Code:      diag.CodeUnmappedField,
		Model:     "literature",
		Direction: ir.ToStructured,
		Field:     field,
		Index:     index,
		Message:   "no rule matches this field",
	}
}
