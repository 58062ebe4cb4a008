package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/marcbridge/internal/batch"
	"github.com/roach88/marcbridge/internal/codec"
	"github.com/roach88/marcbridge/internal/ir"
)

// ConvertOptions holds flags for the convert command.
type ConvertOptions struct {
	*RootOptions
	Model        string
	Direction    string // empty: inferred from the input's shape
	OutputFormat string
	Output       string
	Database     string
}

// ConvertResult is the JSON payload of a conversion.
type ConvertResult struct {
	Model        string       `json:"model"`
	Direction    ir.Direction `json:"direction"`
	Output       any          `json:"output,omitempty"`
	OutputFile   string       `json:"output_file,omitempty"`
	Warnings     any          `json:"warnings"`
	ConversionID string       `json:"conversion_id,omitempty"`
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Convert one record",
		Long: `Convert a single record file in either direction.

The input format follows the file extension (.json, .yaml/.yml,
.msgpack/.mpk). Without --direction, an array of fields converts
to_structured and an object converts to_legacy.

Warnings never fail the command; they are printed to stderr (text) or
included in the response (json).

Exit codes:
  0 - Record converted
  2 - Command error (unreadable input, unknown model, etc.)

Examples:
  marcbridge convert record.json --model literature
  marcbridge convert author.yaml --model authors --direction to_legacy
  marcbridge convert record.json --model literature --output-format yaml -o out.yaml
  marcbridge convert record.json --model literature --db ./audit.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "rule-set model (required)")
	_ = cmd.MarkFlagRequired("model")
	cmd.Flags().StringVarP(&opts.Direction, "direction", "d", "", "to_structured or to_legacy (default: inferred)")
	cmd.Flags().StringVar(&opts.OutputFormat, "output-format", "json", fmt.Sprintf("record encoding %v", codec.Names()))
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the converted record to this file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the conversion in this SQLite database")

	return cmd
}

func runConvert(ctx context.Context, opts *ConvertOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	outCodec, err := codec.Lookup(opts.OutputFormat)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --output-format", err)
	}

	conv, err := opts.newConverter()
	if err != nil {
		return err
	}

	input, dir, err := readRecord(path, opts.Direction)
	if err != nil {
		_ = formatter.Fail(ErrCodeDecode, err.Error())
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read %s", path), err)
	}
	formatter.VerboseLog("Converting %s (%s) with model %s", path, dir, opts.Model)

	out, ws, err := conv.dispatcher.Convert(ctx, opts.Model, dir, input)
	if err != nil {
		_ = formatter.Fail(conversionErrorCode(err), err.Error())
		return WrapExitError(ExitCommandError, "conversion failed", err)
	}

	result := ConvertResult{
		Model:     opts.Model,
		Direction: dir,
		Warnings:  ir.ToGo(ws.ToValue()),
	}

	if opts.Database != "" {
		st, clock, err := openAudit(ctx, opts.Database)
		if err != nil {
			return err
		}
		defer st.Close()

		res := batch.Result{
			Seq:       clock.Next(),
			ID:        batch.UUIDv7Generator{}.Generate(),
			Name:      path,
			Model:     opts.Model,
			Direction: dir,
			Input:     input,
			Output:    out,
			Warnings:  ws,
		}
		if _, err := record(ctx, st, conv.registry.Fingerprint(), []batch.Result{res}); err != nil {
			return err
		}
		result.ConversionID = res.ID
		formatter.VerboseLog("Stored conversion %s (seq %d)", res.ID, res.Seq)
	}

	data, err := codec.EncodeRecord(outCodec, out)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode output", err)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			_ = formatter.Fail(ErrCodeWriteFailed, err.Error())
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
		result.OutputFile = opts.Output
	}

	if opts.Format == "json" {
		if opts.Output == "" {
			result.Output = ir.ToGo(recordValue(out))
		}
		return formatter.Success(result)
	}

	if opts.Output == "" {
		if _, err := cmd.OutOrStdout().Write(data); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s -> %s (%s)\n", path, opts.Output, dir)
	}
	formatter.Warnings(ws)
	return nil
}

// readRecord reads a record file. An empty direction is inferred from the
// record's shape.
func readRecord(path, direction string) (ir.Record, ir.Direction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	c := codec.ForPath(path)

	if direction == "" {
		return codec.DecodeAny(c, data)
	}
	dir, err := ir.ParseDirection(direction)
	if err != nil {
		return nil, "", err
	}
	rec, err := codec.DecodeRecord(c, data, dir)
	if err != nil {
		return nil, "", err
	}
	return rec, dir, nil
}

// recordValue returns the Value form of either record shape.
func recordValue(rec ir.Record) ir.Value {
	switch r := rec.(type) {
	case ir.LegacyRecord:
		return r.ToValue()
	case ir.Object:
		return r
	default:
		return ir.Null{}
	}
}
