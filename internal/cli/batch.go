package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/marcbridge/internal/batch"
	"github.com/roach88/marcbridge/internal/codec"
	"github.com/roach88/marcbridge/internal/ir"
	"github.com/roach88/marcbridge/internal/store"
)

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
	Model        string
	Direction    string
	Workers      int // 0: from config
	Database     string
	OutDir       string
	OutputFormat string
}

// BatchFileResult is the outcome for one input file.
type BatchFileResult struct {
	File     string `json:"file"`
	ID       string `json:"id,omitempty"`
	Seq      int64  `json:"seq,omitempty"`
	Warnings int    `json:"warnings"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BatchResult is the JSON payload of a batch run.
type BatchResult struct {
	Model     string            `json:"model"`
	Direction ir.Direction      `json:"direction"`
	Workers   int               `json:"workers"`
	Total     int               `json:"total"`
	Failed    int               `json:"failed"`
	Warnings  int               `json:"warnings"`
	ByCode    map[string]int    `json:"by_code"`
	Stored    int               `json:"stored"`
	Files     []BatchFileResult `json:"files"`
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Convert every record file in a directory",
		Long: `Convert every record file in a directory concurrently.

Files are taken in name order and get sequence numbers in that order, so
results and stored conversions are the same whatever the worker count.
Without --direction, the first file's shape decides the direction for the
whole run.

Exit codes:
  0 - Every file converted
  1 - One or more files could not be read or converted
  2 - Command error (directory not found, unknown model, etc.)

Examples:
  marcbridge batch ./records --model literature
  marcbridge batch ./records --model authors --workers 8 --db ./audit.db
  marcbridge batch ./records --model journals --out-dir ./out --output-format yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "rule-set model (required)")
	_ = cmd.MarkFlagRequired("model")
	cmd.Flags().StringVarP(&opts.Direction, "direction", "d", "", "to_structured or to_legacy (default: inferred)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent conversions (default: config, else GOMAXPROCS)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record conversions in this SQLite database")
	cmd.Flags().StringVar(&opts.OutDir, "out-dir", "", "write each converted record to this directory")
	cmd.Flags().StringVar(&opts.OutputFormat, "output-format", "json", fmt.Sprintf("record encoding for --out-dir %v", codec.Names()))

	return cmd
}

func runBatch(ctx context.Context, opts *BatchOptions, dir string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	outCodec, err := codec.Lookup(opts.OutputFormat)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --output-format", err)
	}

	files, err := findRecordFiles(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read directory %s", dir), err)
	}

	conv, err := opts.newConverter()
	if err != nil {
		return err
	}
	if _, ok := conv.registry.Model(opts.Model); !ok {
		_ = formatter.Fail(ErrCodeUnknownModel, fmt.Sprintf("unknown model %q", opts.Model))
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown model %q (have %s)",
			opts.Model, strings.Join(conv.registry.Models(), ", ")))
	}

	workers := opts.Workers
	if workers < 1 {
		workers = conv.cfg.Workers
	}

	jobs, dirn, unreadable, err := readJobs(files, opts.Direction)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --direction", err)
	}

	runnerOpts := []batch.Option{
		batch.WithWorkers(workers),
		batch.WithLogger(opts.Logger()),
	}

	var st *store.Store
	if opts.Database != "" {
		var clock *batch.Clock
		if st, clock, err = openAudit(ctx, opts.Database); err != nil {
			return err
		}
		defer st.Close()
		runnerOpts = append(runnerOpts, batch.WithClock(clock))
	}

	results, err := batch.NewRunner(conv.dispatcher, runnerOpts...).Run(ctx, opts.Model, dirn, jobs)
	if err != nil {
		return WrapExitError(ExitCommandError, "batch interrupted", err)
	}

	var stored int
	if st != nil {
		if stored, err = record(ctx, st, conv.registry.Fingerprint(), results); err != nil {
			return err
		}
	}

	report := buildBatchResult(opts.Model, dirn, workers, results, unreadable)
	report.Stored = stored

	if opts.OutDir != "" {
		if err := writeOutputs(opts.OutDir, outCodec, results, report.Files); err != nil {
			return err
		}
	}

	if opts.Format == "json" {
		if err := formatter.Success(report); err != nil {
			return err
		}
	} else {
		outputBatchText(cmd, report, opts.Verbose)
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d files failed", report.Failed, report.Total))
	}
	return nil
}

// findRecordFiles lists the record files directly in dir, sorted by name.
func findRecordFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !codec.IsRecordFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// readJobs decodes every file. Files that cannot be decoded are returned
// separately, keyed by path; they never reach the runner.
func readJobs(files []string, direction string) ([]batch.Job, ir.Direction, map[string]error, error) {
	var dir ir.Direction
	if direction != "" {
		var err error
		if dir, err = ir.ParseDirection(direction); err != nil {
			return nil, "", nil, err
		}
	}

	jobs := make([]batch.Job, 0, len(files))
	unreadable := make(map[string]error)
	for _, path := range files {
		rec, got, err := readRecord(path, string(dir))
		if err != nil {
			unreadable[path] = err
			continue
		}
		if dir == "" {
			dir = got
		}
		jobs = append(jobs, batch.Job{Name: path, Record: rec})
	}
	if dir == "" {
		dir = ir.ToStructured
	}
	return jobs, dir, unreadable, nil
}

func buildBatchResult(model string, dir ir.Direction, workers int, results []batch.Result, unreadable map[string]error) BatchResult {
	summary := batch.Summarize(results)
	report := BatchResult{
		Model:     model,
		Direction: dir,
		Workers:   workers,
		Total:     summary.Jobs + len(unreadable),
		Failed:    summary.Failed + len(unreadable),
		Warnings:  summary.Warnings,
		ByCode:    make(map[string]int, len(summary.ByCode)),
		Files:     make([]BatchFileResult, 0, len(results)+len(unreadable)),
	}
	for code, n := range summary.ByCode {
		report.ByCode[string(code)] = n
	}

	for _, res := range results {
		fr := BatchFileResult{File: res.Name, ID: res.ID, Seq: res.Seq, Warnings: len(res.Warnings)}
		if res.Err != nil {
			fr.Error = res.Err.Error()
		}
		report.Files = append(report.Files, fr)
	}
	for path, err := range unreadable {
		report.Files = append(report.Files, BatchFileResult{File: path, Error: err.Error()})
	}
	sort.SliceStable(report.Files, func(i, j int) bool {
		return report.Files[i].File < report.Files[j].File
	})
	return report
}

// writeOutputs writes each converted record next to its siblings in
// outDir, named after the input file with the codec's extension.
func writeOutputs(outDir string, c codec.Codec, results []batch.Result, files []BatchFileResult) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create output directory", err)
	}

	written := make(map[string]string, len(results))
	for _, res := range results {
		if res.Err != nil || res.Output == nil {
			continue
		}
		data, err := codec.EncodeRecord(c, res.Output)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to encode %s", res.Name), err)
		}
		base := strings.TrimSuffix(filepath.Base(res.Name), filepath.Ext(res.Name))
		out := filepath.Join(outDir, base+"."+c.Name())
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to write %s", out), err)
		}
		written[res.Name] = out
	}
	for i := range files {
		files[i].Output = written[files[i].File]
	}
	return nil
}

func outputBatchText(cmd *cobra.Command, report BatchResult, verbose bool) {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Batch: %d file(s), model %s, %s, %d worker(s)\n",
		report.Total, report.Model, report.Direction, report.Workers)
	fmt.Fprintln(w)

	for _, f := range report.Files {
		switch {
		case f.Error != "":
			fmt.Fprintf(w, "✗ %s\n", f.File)
			fmt.Fprintf(w, "  %s\n", f.Error)
		case verbose || f.Warnings > 0:
			fmt.Fprintf(w, "✓ %s (%d warning(s))\n", f.File, f.Warnings)
		}
	}

	codes := make([]string, 0, len(report.ByCode))
	for code := range report.ByCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	if len(codes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Warnings:")
		for _, code := range codes {
			fmt.Fprintf(w, "  %-32s %d\n", code, report.ByCode[code])
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Results: %d converted, %d failed, %d warning(s)",
		report.Total-report.Failed, report.Failed, report.Warnings)
	if report.Stored > 0 {
		fmt.Fprintf(w, ", %d stored", report.Stored)
	}
	fmt.Fprintln(w)
}
