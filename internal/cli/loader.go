package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/marcbridge/internal/compiler"
	"github.com/roach88/marcbridge/internal/diag"
	"github.com/roach88/marcbridge/internal/engine"
	"github.com/roach88/marcbridge/internal/ir"
	"github.com/roach88/marcbridge/internal/refs"
	"github.com/roach88/marcbridge/internal/registry"
	"github.com/roach88/marcbridge/internal/rules"
)

// LoadResult contains the rule sets loaded from a directory.
type LoadResult struct {
	Specs     []ir.RuleSetSpec
	Source    string // directory, or "builtin"
	FileCount int    // Number of CUE files found
}

// LoadError represents an error that occurred while loading rule sets.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// builtinSource names the embedded rule sets in output.
const builtinSource = "builtin"

// LoadRuleSets loads and compiles every CUE rule set in dir.
func LoadRuleSets(dir string) (*LoadResult, error) {
	// Verify directory exists
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("rules directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing rules directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	specs, err := compiler.CompileRuleSets(value)
	if err != nil {
		return nil, convertCompileError(err)
	}

	return &LoadResult{Specs: specs, Source: dir, FileCount: len(cueFiles)}, nil
}

// FindCUEFiles returns every .cue file directly in dir, matching what
// load.Instances reads for the package there.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.Type()&fs.ModeType == 0 && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeCompile,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeCompile, Message: err.Error()}
}

// loadSpecs returns the rule sets from dir, or the built-in ones when dir
// is empty.
func loadSpecs(dir string) (*LoadResult, error) {
	if dir == "" {
		specs, err := rules.Embedded()
		if err != nil {
			return nil, &LoadError{Code: ErrCodeCompile, Message: err.Error()}
		}
		return &LoadResult{Specs: specs, Source: builtinSource}, nil
	}
	return LoadRuleSets(dir)
}

// converter is everything a command needs to convert records.
type converter struct {
	cfg        *Config
	source     string
	registry   *registry.Registry
	dispatcher *engine.Dispatcher
}

// newConverter resolves the configuration, loads and builds the rule sets
// and wires a dispatcher over them. Failures are command errors.
func (o *RootOptions) newConverter() (*converter, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	loaded, err := loadSpecs(cfg.Rules)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load rule sets", err)
	}
	reg, err := rules.Build(loaded.Specs)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build rule registry", err)
	}

	logger := o.Logger()
	logger.Debug("rules loaded",
		slog.String("source", loaded.Source),
		slog.Int("models", len(reg.Models())),
		slog.String("fingerprint", reg.Fingerprint()),
	)

	engineOpts := []engine.Option{engine.WithLogger(logger)}
	if o.Verbose {
		// Every warning also goes to stderr as it is raised.
		engineOpts = append(engineOpts, engine.WithSink(diag.NewLogSink(logger)))
	}
	d := engine.New(reg, refs.NewResolver(cfg.BaseURL), engineOpts...)
	return &converter{cfg: cfg, source: loaded.Source, registry: reg, dispatcher: d}, nil
}
