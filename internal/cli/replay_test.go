package cli

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/marcbridge/internal/store"
)

// auditWithJournal converts the journal fixture twice into a fresh audit
// database and returns its path.
func auditWithJournal(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	in := writeFile(t, dir, "journal.json", journalRecord)
	db := filepath.Join(dir, "audit.db")
	for range 2 {
		_, _, err := execute(t, "convert", in, "-m", "journals", "--db", db)
		require.NoError(t, err)
	}
	return db
}

func TestReplayDeterministic(t *testing.T) {
	db := auditWithJournal(t)

	stdout, _, err := execute(t, "replay", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Replay Summary: 2 conversion(s)")
	assert.Contains(t, stdout, "2 matched, 0 drifted, 0 mismatched, 0 failed")
	assert.Contains(t, stdout, "✓ All conversions verified deterministic")
	assert.NotContains(t, stdout, "✓ match")
}

func TestReplayVerboseListsMatches(t *testing.T) {
	db := auditWithJournal(t)

	stdout, _, err := execute(t, "-v", "replay", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ match")
	assert.Contains(t, stdout, "seq: 2")
}

func TestReplayJSON(t *testing.T) {
	db := auditWithJournal(t)

	stdout, _, err := execute(t, "--format", "json", "replay", "--db", db)
	require.NoError(t, err)

	var result ReplayResult
	resp := decodeResponse(t, stdout, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.Deterministic)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Matched)
	require.Len(t, result.Conversions, 2)
	assert.Equal(t, int64(1), result.Conversions[0].Seq)
	assert.Equal(t, result.Conversions[0].StoredHash, result.Conversions[0].ReplayHash)
	assert.Equal(t, result.Fingerprint, result.Conversions[0].StoredFingerprint)
}

func TestReplayDetectsMismatch(t *testing.T) {
	db := auditWithJournal(t)

	raw, err := sql.Open("sqlite3", db)
	require.NoError(t, err)
	_, err = raw.Exec(`UPDATE conversions SET output_hash = 'tampered' WHERE seq = 2`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	stdout, _, err := execute(t, "replay", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "Non-deterministic replay detected!")
	assert.Contains(t, stdout, "1 matched, 0 drifted, 1 mismatched, 0 failed")
	assert.Contains(t, stdout, "✗ Determinism verification failed")
}

func TestReplayReportsDrift(t *testing.T) {
	db := auditWithJournal(t)

	// Same model name, fewer rules: the output changes with the rules.
	rulesDir := t.TempDir()
	writeFile(t, rulesDir, "journals.cue", `package rulesets

rulesets: journals: {
	collection: "journals"
	schema:     "journals"
	finalizers: to_structured: ["schema"]
	rules: [
		{tag: "001__", key: "control_number", handler: "control"},
		{direction: "to_legacy", key: "$schema", handler: "ignore"},
	]
}
`)

	stdout, _, err := execute(t, "--format", "json", "--rules", rulesDir, "replay", "--db", db)
	require.NoError(t, err)

	var result ReplayResult
	decodeResponse(t, stdout, &result)
	assert.True(t, result.Deterministic)
	assert.Equal(t, 2, result.Drifted)
	assert.Equal(t, 0, result.Mismatched)
	for _, c := range result.Conversions {
		assert.Equal(t, string(store.ReplayDrift), c.Status)
		assert.NotEqual(t, result.Fingerprint, c.StoredFingerprint)
	}
}

func TestReplayEmptyDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(db)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	stdout, _, err := execute(t, "replay", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "No conversions found in database.")
}

func TestReplayMissingDatabase(t *testing.T) {
	_, _, err := execute(t, "replay", "--db", filepath.Join(t.TempDir(), "absent.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}

func TestReplayRequiresDatabaseFlag(t *testing.T) {
	_, _, err := execute(t, "replay")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}
