package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/marcbridge/internal/diag"
	"github.com/roach88/marcbridge/internal/store"
)

// WarningsOptions holds flags for the warnings command.
type WarningsOptions struct {
	*RootOptions
	Database string
	Code     string // optional - one warning code only
}

// WarningEntry is one stored warning in JSON output.
type WarningEntry struct {
	ConversionID string `json:"conversion_id"`
	Seq          int64  `json:"seq"`
	Name         string `json:"name"`
	Code         string `json:"code"`
	Model        string `json:"model"`
	Direction    string `json:"direction"`
	Field        string `json:"field"`
	Index        int    `json:"index"`
	Key          string `json:"key,omitempty"`
	Message      string `json:"message"`
}

// WarningCount is one row of the per-model summary.
type WarningCount struct {
	Model string `json:"model"`
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// WarningsResult is the JSON payload of the warnings command.
type WarningsResult struct {
	Warnings []WarningEntry `json:"warnings"`
	Summary  []WarningCount `json:"summary"`
}

// NewWarningsCommand creates the warnings command.
func NewWarningsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WarningsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "warnings",
		Short: "Report warnings recorded in the audit log",
		Long: `List the warnings stored with conversions, in conversion order,
followed by a count per model and code.

Examples:
  marcbridge warnings --db ./audit.db
  marcbridge warnings --db ./audit.db --code UnmappedFieldWarning
  marcbridge warnings --db ./audit.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWarnings(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Code, "code", "", "only warnings with this code")

	return cmd
}

func runWarnings(ctx context.Context, opts *WarningsOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	code := diag.Code(opts.Code)
	if code != "" && !diag.ValidCodes[code] {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown warning code %q", opts.Code))
	}
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = opts.formatter(cmd).Fail(ErrCodeStore, err.Error())
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	stored, err := st.ReadWarnings(ctx, code)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read warnings", err)
	}
	summary, err := st.WarningSummary(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to summarize warnings", err)
	}

	result := WarningsResult{
		Warnings: make([]WarningEntry, 0, len(stored)),
		Summary:  make([]WarningCount, 0, len(summary)),
	}
	for _, sw := range stored {
		result.Warnings = append(result.Warnings, WarningEntry{
			ConversionID: sw.ConversionID,
			Seq:          sw.Seq,
			Name:         sw.Name,
			Code:         string(sw.Code),
			Model:        sw.Model,
			Direction:    string(sw.Direction),
			Field:        sw.Field,
			Index:        sw.Index,
			Key:          sw.Key,
			Message:      sw.Message,
		})
	}
	for _, cc := range summary {
		if code != "" && cc.Code != code {
			continue
		}
		result.Summary = append(result.Summary, WarningCount{Model: cc.Model, Code: string(cc.Code), Count: cc.Count})
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(result)
	}
	outputWarningsText(cmd, result)
	return nil
}

func outputWarningsText(cmd *cobra.Command, result WarningsResult) {
	w := cmd.OutOrStdout()

	if len(result.Warnings) == 0 {
		fmt.Fprintln(w, "No warnings recorded.")
		return
	}

	current := ""
	for _, e := range result.Warnings {
		if e.ConversionID != current {
			current = e.ConversionID
			fmt.Fprintf(w, "%s (seq %d, %s, %s)\n", e.Name, e.Seq, e.Model, e.Direction)
		}
		line := fmt.Sprintf("  [%s] %s #%d", e.Code, e.Field, e.Index)
		if e.Key != "" {
			line += " -> " + e.Key
		}
		fmt.Fprintf(w, "%s: %s\n", line, e.Message)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary:")
	for _, c := range result.Summary {
		fmt.Fprintf(w, "  %-14s %-32s %d\n", c.Model, c.Code, c.Count)
	}
}
