package rules

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/marcbridge/internal/compiler"
	"github.com/roach88/marcbridge/internal/ir"
	"github.com/roach88/marcbridge/internal/registry"
)

//go:embed cue/*.cue
var embedded embed.FS

// Files returns the embedded rule-set sources, keyed by file name.
func Files() (map[string][]byte, error) {
	entries, err := fs.ReadDir(embedded, "cue")
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(entries))
	for _, e := range entries {
		data, err := embedded.ReadFile(path.Join("cue", e.Name()))
		if err != nil {
			return nil, err
		}
		out[e.Name()] = data
	}
	return out, nil
}

// CompileFiles compiles each source on its own and returns every rule set
// they declare, sorted by model.
func CompileFiles(files map[string][]byte) ([]ir.RuleSetSpec, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	ctx := cuecontext.New()
	var specs []ir.RuleSetSpec
	for _, name := range names {
		v := ctx.CompileBytes(files[name], cue.Filename(name))
		sets, err := compiler.CompileRuleSets(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		specs = append(specs, sets...)
	}
	sort.SliceStable(specs, func(i, j int) bool {
		return specs[i].Model < specs[j].Model
	})
	return specs, nil
}

// Embedded compiles the embedded rule sets.
func Embedded() ([]ir.RuleSetSpec, error) {
	files, err := Files()
	if err != nil {
		return nil, err
	}
	return CompileFiles(files)
}

// Default builds a registry from the embedded rule sets.
func Default() (*registry.Registry, error) {
	specs, err := Embedded()
	if err != nil {
		return nil, err
	}
	return Build(specs)
}
