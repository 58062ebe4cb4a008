package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// journalRecord is a legacy journal record with one tag no rule maps.
const journalRecord = `[
  {"tag": "001", "value": "42"},
  {"tag": "130", "subfields": [{"code": "a", "value": "Physical Review D"}]},
  {"tag": "711", "subfields": [{"code": "a", "value": "Phys.Rev.D"}]},
  {"tag": "643", "subfields": [{"code": "b", "value": "APS"}]},
  {"tag": "999", "ind1": "C", "ind2": "5", "subfields": [{"code": "a", "value": "x"}]}
]`

// journalStructured is journalRecord converted, as the json codec prints it.
const journalStructured = `{"$schema":"https://inspirehep.net/schemas/records/journals.json",` +
	`"control_number":42,"journal_title":{"title":"Physical Review D"},` +
	`"publisher":["APS"],"short_title":"Phys.Rev.D"}` + "\n"

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// writeFile writes content under dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// decodeResponse parses a JSON CLI response, re-decoding Data into data
// when data is non-nil.
func decodeResponse(t *testing.T, stdout string, data any) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), "stdout: %s", stdout)
	if data != nil && resp.Data != nil {
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, data))
	}
	return resp
}
