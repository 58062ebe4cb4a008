package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/marcbridge/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayConversion holds the replay result for a single stored conversion.
type ReplayConversion struct {
	ID                string `json:"id"`
	Seq               int64  `json:"seq"`
	Name              string `json:"name"`
	Model             string `json:"model"`
	Direction         string `json:"direction"`
	Status            string `json:"status"`
	StoredHash        string `json:"stored_hash"`
	ReplayHash        string `json:"replay_hash,omitempty"`
	StoredFingerprint string `json:"stored_fingerprint"`
	Error             string `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Fingerprint   string             `json:"fingerprint"`
	Conversions   []ReplayConversion `json:"conversions"`
	Total         int                `json:"total"`
	Matched       int                `json:"matched"`
	Mismatched    int                `json:"mismatched"`
	Drifted       int                `json:"drifted"`
	Failed        int                `json:"failed"`
	Deterministic bool               `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run stored conversions and verify determinism",
		Long: `Re-convert every stored input with the current rule sets and compare
output hashes against the audit log.

A different hash under the same rules fingerprint is a determinism
failure. A different hash after the rules changed is drift: reported,
but not a failure.

Exit codes:
  0 - Every conversion replays identically or drifted with the rules
  1 - Determinism failure, or a stored input no longer converts
  2 - Command error (database not found, etc.)

Examples:
  marcbridge replay --db ./audit.db
  marcbridge replay --db ./audit.db --rules ./my-rules
  marcbridge replay --db ./audit.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Opening a missing path would create an empty database.
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}

	conv, err := opts.newConverter()
	if err != nil {
		return err
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = opts.formatter(cmd).Fail(ErrCodeStore, err.Error())
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	report, err := st.Replay(ctx, conv.dispatcher, conv.registry.Fingerprint())
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	result := ReplayResult{
		Fingerprint:   report.Fingerprint,
		Conversions:   make([]ReplayConversion, 0, len(report.Results)),
		Total:         len(report.Results),
		Matched:       report.Matched,
		Mismatched:    report.Mismatched,
		Drifted:       report.Drifted,
		Failed:        report.Failed,
		Deterministic: report.OK(),
	}
	for _, r := range report.Results {
		rc := ReplayConversion{
			ID:                r.ID,
			Seq:               r.Seq,
			Name:              r.Name,
			Model:             r.Model,
			Direction:         string(r.Direction),
			Status:            string(r.Status),
			StoredHash:        r.StoredHash,
			ReplayHash:        r.ReplayHash,
			StoredFingerprint: r.StoredFingerprint,
		}
		if r.Err != nil {
			rc.Error = r.Err.Error()
		}
		result.Conversions = append(result.Conversions, rc)
	}

	if opts.Format == "json" {
		return outputReplayJSON(opts.formatter(cmd), result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(f *OutputFormatter, result ReplayResult) error {
	if result.Deterministic {
		return f.Success(result)
	}

	if err := f.Error(ErrCodeDeterminism, "determinism verification failed", result); err != nil {
		return err
	}
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if result.Total == 0 {
		fmt.Fprintln(w, "No conversions found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d conversion(s), rules %s\n", result.Total, shortHash(result.Fingerprint))
	fmt.Fprintln(w)

	for _, c := range result.Conversions {
		var mark string
		switch store.ReplayStatus(c.Status) {
		case store.ReplayMatch:
			if !verbose {
				continue
			}
			mark = "✓"
		case store.ReplayDrift:
			mark = "~"
		default:
			mark = "✗"
		}

		fmt.Fprintf(w, "%s %s %s (%s, %s)\n", mark, c.Status, c.Name, c.Model, c.Direction)
		if verbose || c.Status != string(store.ReplayMatch) {
			fmt.Fprintf(w, "  id: %s  seq: %d\n", c.ID, c.Seq)
		}
		switch store.ReplayStatus(c.Status) {
		case store.ReplayMismatch:
			fmt.Fprintf(w, "  Warning: Non-deterministic replay detected! stored %s, replayed %s\n",
				shortHash(c.StoredHash), shortHash(c.ReplayHash))
		case store.ReplayDrift:
			fmt.Fprintf(w, "  output changed with the rules (stored under %s)\n", shortHash(c.StoredFingerprint))
		case store.ReplayFailed:
			fmt.Fprintf(w, "  %s\n", c.Error)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d matched, %d drifted, %d mismatched, %d failed\n",
		result.Matched, result.Drifted, result.Mismatched, result.Failed)

	if result.Deterministic {
		fmt.Fprintln(w, "✓ All conversions verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
