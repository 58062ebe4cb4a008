package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/marcbridge/internal/diag"
	"github.com/roach88/marcbridge/internal/ir"
	"github.com/roach88/marcbridge/internal/refs"
	"github.com/roach88/marcbridge/internal/registry"
)

// Dispatcher converts records using an immutable registry.
//
// Thread-safety model:
//   - Convert, ToStructured, ToLegacy: safe from any goroutine
//   - The configured sink must itself be safe for concurrent use
type Dispatcher struct {
	reg    *registry.Registry
	refs   *refs.Resolver
	sink   diag.Sink
	logger *slog.Logger
}

// Option allows configuration of dispatcher parameters.
type Option func(*Dispatcher)

// WithSink sets the sink that receives each conversion's warnings after it
// finishes. Warnings are always returned to the caller as well.
func WithSink(s diag.Sink) Option {
	return func(d *Dispatcher) {
		d.sink = s
	}
}

// WithLogger sets the logger used for per-conversion debug output.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// New creates a Dispatcher over reg. A nil resolver uses refs.DefaultBaseURL.
func New(reg *registry.Registry, resolver *refs.Resolver, opts ...Option) *Dispatcher {
	if resolver == nil {
		resolver = refs.NewResolver("")
	}
	d := &Dispatcher{
		reg:    reg,
		refs:   resolver,
		sink:   diag.Discard,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher converts with.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.reg
}

// Resolver returns the reference resolver.
func (d *Dispatcher) Resolver() *refs.Resolver {
	return d.refs
}

// Convert converts rec in the given direction. A LegacyRecord is expected
// for ToStructured and an Object for ToLegacy.
//
// Only misuse (unknown model, invalid direction, wrong record shape) is an
// error. Data problems degrade to best-effort output plus warnings.
func (d *Dispatcher) Convert(ctx context.Context, model string, dir ir.Direction, rec ir.Record) (ir.Record, diag.Warnings, error) {
	switch dir {
	case ir.ToStructured:
		legacy, ok := rec.(ir.LegacyRecord)
		if !ok {
			return nil, nil, invalidRecord(model, dir, rec)
		}
		return d.ToStructured(ctx, model, legacy)
	case ir.ToLegacy:
		obj, ok := rec.(ir.Object)
		if !ok {
			return nil, nil, invalidRecord(model, dir, rec)
		}
		return d.ToLegacy(ctx, model, obj)
	default:
		return nil, nil, &RuntimeError{
			Code:    ErrCodeInvalidDirection,
			Message: fmt.Sprintf("invalid direction %q", dir),
			Model:   model,
		}
	}
}

func invalidRecord(model string, dir ir.Direction, rec ir.Record) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidRecord,
		Message: fmt.Sprintf("%s conversion cannot take a %T", dir, rec),
		Model:   model,
	}
}

// finish reports warnings to the sink and logs a summary.
func (d *Dispatcher) finish(ctx context.Context, model string, dir ir.Direction, fields int, ws diag.Warnings) {
	if len(ws) > 0 {
		d.sink.Report(ctx, ws)
	}
	d.logger.LogAttrs(ctx, slog.LevelDebug, "converted record",
		slog.String("model", model),
		slog.String("direction", string(dir)),
		slog.Int("fields", fields),
		slog.Int("warnings", len(ws)),
	)
}

// run is the per-conversion state handlers see through registry.Context.
// One run is created per conversion and never shared.
type run struct {
	d     *Dispatcher
	model string
	dir   ir.Direction
	warn  *diag.Collector

	// lookup reads the output (forward) or the input (reverse).
	lookup ir.Object

	// field and index identify the occurrence being handled.
	field string
	index int
}

func newRun(d *Dispatcher, model string, dir ir.Direction, lookup ir.Object) *run {
	return &run{
		d:      d,
		model:  model,
		dir:    dir,
		warn:   diag.NewCollector(model, dir),
		lookup: lookup,
	}
}

var _ registry.Context = (*run)(nil)

func (r *run) Model() string           { return r.model }
func (r *run) Direction() ir.Direction { return r.dir }
func (r *run) Refs() *refs.Resolver    { return r.d.refs }

func (r *run) Lookup(key string) (ir.Value, bool) {
	v, ok := r.lookup[key]
	return v, ok
}

func (r *run) Malformed(key, message string) {
	r.warn.Malformed(r.field, r.index, key, message)
}

func (r *run) at(field string, index int) {
	r.field = field
	r.index = index
}
