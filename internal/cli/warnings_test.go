package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarningsText(t *testing.T) {
	db := auditWithJournal(t)

	stdout, _, err := execute(t, "warnings", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "(seq 1, journals, to_structured)")
	assert.Contains(t, stdout, "(seq 2, journals, to_structured)")
	assert.Contains(t, stdout, "[UnmappedFieldWarning] 999C5 #")
	assert.Contains(t, stdout, "Summary:")
	assert.Regexp(t, `journals\s+UnmappedFieldWarning\s+2`, stdout)
}

func TestWarningsJSON(t *testing.T) {
	db := auditWithJournal(t)

	stdout, _, err := execute(t, "--format", "json", "warnings", "--db", db)
	require.NoError(t, err)

	var result WarningsResult
	resp := decodeResponse(t, stdout, &result)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, result.Warnings, 2)
	assert.Equal(t, int64(1), result.Warnings[0].Seq)
	assert.Equal(t, int64(2), result.Warnings[1].Seq)
	for _, w := range result.Warnings {
		assert.Equal(t, "UnmappedFieldWarning", w.Code)
		assert.Equal(t, "999C5", w.Field)
		assert.Equal(t, "journals", w.Model)
	}
	assert.Equal(t, []WarningCount{{Model: "journals", Code: "UnmappedFieldWarning", Count: 2}}, result.Summary)
}

func TestWarningsFilterByCode(t *testing.T) {
	db := auditWithJournal(t)

	stdout, _, err := execute(t, "--format", "json", "warnings", "--db", db, "--code", "MalformedValueWarning")
	require.NoError(t, err)

	var result WarningsResult
	decodeResponse(t, stdout, &result)
	assert.Empty(t, result.Warnings)
	assert.Empty(t, result.Summary)

	text, _, err := execute(t, "warnings", "--db", db, "--code", "MalformedValueWarning")
	require.NoError(t, err)
	assert.Contains(t, text, "No warnings recorded.")
}

func TestWarningsUnknownCode(t *testing.T) {
	db := auditWithJournal(t)

	_, _, err := execute(t, "warnings", "--db", db, "--code", "LoudWarning")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "LoudWarning")
}

func TestWarningsMissingDatabase(t *testing.T) {
	_, _, err := execute(t, "warnings", "--db", filepath.Join(t.TempDir(), "absent.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
