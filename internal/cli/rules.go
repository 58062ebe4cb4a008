package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/marcbridge/internal/compiler"
	"github.com/roach88/marcbridge/internal/ir"
	"github.com/roach88/marcbridge/internal/registry"
	"github.com/roach88/marcbridge/internal/rules"
)

// RulesOptions holds flags for the rules command.
type RulesOptions struct {
	*RootOptions
	Model string // optional - one model only
}

// RuleInfo describes one registered rule.
type RuleInfo struct {
	Pattern    string `json:"pattern"`
	Key        string `json:"key"`
	Handler    string `json:"handler"`
	Repeatable bool   `json:"repeatable"`
	When       string `json:"when,omitempty"`
	Pos        string `json:"pos,omitempty"`
}

// ModelInfo describes one model's rule set.
type ModelInfo struct {
	Model        string     `json:"model"`
	Collection   string     `json:"collection"`
	Schema       string     `json:"schema"`
	ToStructured []RuleInfo `json:"to_structured"`
	ToLegacy     []RuleInfo `json:"to_legacy"`
	Finalizers   []string   `json:"finalizers,omitempty"`
}

// RulesResult is the JSON payload of the rules command.
type RulesResult struct {
	Source      string      `json:"source"`
	Fingerprint string      `json:"fingerprint"`
	Models      []ModelInfo `json:"models"`
}

// NewRulesCommand creates the rules command.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RulesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Compile, validate and list rule sets",
		Long: `Compile the rule sets (built-in, or --rules <dir>), validate them,
build the registry, and list every rule per model and direction.

Build failures include ambiguous rule pairs and handlers or finalizers
the catalog does not provide.

Exit codes:
  0 - Rule sets build
  1 - Rule sets are invalid
  2 - Command error (directory not found, etc.)

Examples:
  marcbridge rules
  marcbridge rules --model literature
  marcbridge rules --rules ./my-rules --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRules(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "list one model only")

	return cmd
}

func runRules(opts *RulesOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.config()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	loaded, err := loadSpecs(cfg.Rules)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Code == ErrCodeCompile {
			_ = formatter.Error(loadErr.Code, loadErr.Error(), nil)
			return WrapExitError(ExitFailure, "rule sets do not compile", err)
		}
		_ = formatter.Fail(ErrCodeNotFound, err.Error())
		return WrapExitError(ExitCommandError, "failed to load rule sets", err)
	}
	formatter.VerboseLog("Loaded %d rule set(s) from %s", len(loaded.Specs), loaded.Source)

	if verrs := compiler.Validate(loaded.Specs); len(verrs) > 0 {
		return outputValidationErrors(formatter, verrs)
	}

	reg, err := rules.Build(loaded.Specs)
	if err != nil {
		_ = formatter.Error(ErrCodeRegistry, err.Error(), nil)
		return WrapExitError(ExitFailure, "rule sets do not build", err)
	}

	models := reg.Models()
	if opts.Model != "" {
		if _, ok := reg.Model(opts.Model); !ok {
			_ = formatter.Fail(ErrCodeUnknownModel, fmt.Sprintf("unknown model %q", opts.Model))
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown model %q", opts.Model))
		}
		models = []string{opts.Model}
	}

	result := RulesResult{
		Source:      loaded.Source,
		Fingerprint: reg.Fingerprint(),
		Models:      make([]ModelInfo, 0, len(models)),
	}
	for _, name := range models {
		result.Models = append(result.Models, describeModel(reg, name))
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	outputRulesText(cmd, result, opts.Verbose)
	return nil
}

func describeModel(reg *registry.Registry, name string) ModelInfo {
	m, _ := reg.Model(name)
	info := ModelInfo{
		Model:        name,
		Collection:   m.Collection,
		Schema:       m.Schema,
		ToStructured: describeRules(reg.Rules(name, ir.ToStructured)),
		ToLegacy:     describeRules(reg.Rules(name, ir.ToLegacy)),
	}
	for _, dir := range []ir.Direction{ir.ToStructured, ir.ToLegacy} {
		for _, f := range reg.Finalizers(name, dir) {
			info.Finalizers = append(info.Finalizers, fmt.Sprintf("%s:%s", dir, f.Name))
		}
	}
	return info
}

func describeRules(rs []*registry.Rule) []RuleInfo {
	out := make([]RuleInfo, 0, len(rs))
	for _, r := range rs {
		out = append(out, RuleInfo{
			Pattern:    r.Pattern,
			Key:        r.Key,
			Handler:    r.Handler,
			Repeatable: r.Repeatable,
			When:       describeWhen(r.Spec.When),
			Pos:        r.Spec.Pos,
		})
	}
	return out
}

// describeWhen renders a discriminator as e.g. "present 2, equals 2=DOI".
func describeWhen(w *ir.WhenSpec) string {
	if w == nil {
		return ""
	}
	var parts []string
	if w.Present != "" {
		parts = append(parts, "present "+w.Present)
	}
	if w.Absent != "" {
		parts = append(parts, "absent "+w.Absent)
	}
	for _, sf := range w.Equals {
		parts = append(parts, fmt.Sprintf("equals %s=%s", sf.Code, sf.Value))
	}
	return strings.Join(parts, ", ")
}

func outputValidationErrors(f *OutputFormatter, verrs []compiler.ValidationError) error {
	if f.Format == "json" {
		_ = f.Error(verrs[0].Code, "rule set validation failed", verrs)
	} else {
		w := f.Writer
		fmt.Fprintf(w, "✗ %d validation error(s)\n", len(verrs))
		for _, e := range verrs {
			fmt.Fprintf(w, "  %s\n", e.Error())
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(verrs)))
}

func outputRulesText(cmd *cobra.Command, result RulesResult, verbose bool) {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Rule sets: %s (fingerprint %s)\n", result.Source, shortHash(result.Fingerprint))
	for _, m := range result.Models {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s  collection=%s schema=%s\n", m.Model, m.Collection, m.Schema)
		for _, dir := range []struct {
			name  string
			rules []RuleInfo
		}{
			{string(ir.ToStructured), m.ToStructured},
			{string(ir.ToLegacy), m.ToLegacy},
		} {
			fmt.Fprintf(w, "  %s: %d rule(s)\n", dir.name, len(dir.rules))
			for _, r := range dir.rules {
				line := fmt.Sprintf("    %-12s -> %-28s [%s]", r.Pattern, r.Key, r.Handler)
				if r.Repeatable {
					line += " repeatable"
				}
				if r.When != "" {
					line += " when " + r.When
				}
				if verbose && r.Pos != "" {
					line += "  (" + r.Pos + ")"
				}
				fmt.Fprintln(w, line)
			}
		}
		if len(m.Finalizers) > 0 {
			fmt.Fprintf(w, "  finalizers: %v\n", m.Finalizers)
		}
	}
}

// shortHash abbreviates a fingerprint for text output.
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
