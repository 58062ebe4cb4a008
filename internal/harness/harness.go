package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/marcbridge/internal/batch"
	"github.com/roach88/marcbridge/internal/diag"
	"github.com/roach88/marcbridge/internal/ir"
	"github.com/roach88/marcbridge/internal/store"
)

// Converter is what scenarios run against. *engine.Dispatcher implements
// it.
type Converter interface {
	Convert(ctx context.Context, model string, dir ir.Direction, rec ir.Record) (ir.Record, diag.Warnings, error)
}

// Harness is the test execution engine.
// It runs scenarios against a converter with a deterministic clock and
// conversion ids, recording every conversion in a fresh in-memory store.
type Harness struct {
	conv        Converter
	fingerprint string
	logger      *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// New creates a harness over conv. fingerprint identifies the rules conv
// runs with; it is stored with each conversion and used by replay_stable.
func New(conv Converter, fingerprint string, opts ...Option) *Harness {
	h := &Harness{
		conv:        conv,
		fingerprint: fingerprint,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// run is the per-scenario state.
type run struct {
	h     *Harness
	s     *Scenario
	store *store.Store
	clock *batch.Clock
	ids   *batch.FixedGenerator
	input ir.Record
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Decode the input record and resolve the direction
// 3. Convert and store the conversion
// 4. Evaluate assertions (round_trip converts and stores a second time)
// 5. Return result with pass/fail, output, warnings and errors
//
// An error is returned only when the scenario cannot run at all; a
// conversion the converter rejects is a failed result.
func (h *Harness) Run(ctx context.Context, s *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	input, dir, err := s.InputRecord()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	r := &run{
		h:     h,
		s:     s,
		store: st,
		clock: batch.NewClock(),
		ids:   batch.NewFixedGenerator(s.Name+"/forward", s.Name+"/back"),
		input: input,
	}

	result := NewResult()
	result.Direction = dir

	out, ws, err := r.convert(ctx, dir, input)
	if err != nil {
		result.AddError(fmt.Sprintf("convert: %v", err))
		return result, nil
	}
	result.Output = out
	result.Warnings = ws

	for _, errMsg := range r.evaluate(ctx, result) {
		result.AddError(errMsg)
	}

	h.logger.Debug("scenario finished",
		"scenario", s.Name,
		"model", s.Model,
		"direction", string(dir),
		"pass", result.Pass,
		"warnings", len(result.Warnings),
	)
	return result, nil
}

// convert runs one conversion and records it in the scenario's store.
func (r *run) convert(ctx context.Context, dir ir.Direction, rec ir.Record) (ir.Record, diag.Warnings, error) {
	out, ws, err := r.h.conv.Convert(ctx, r.s.Model, dir, rec)
	if err != nil {
		return nil, nil, err
	}

	id := r.ids.Generate()
	_, err = r.store.WriteConversion(ctx, store.Conversion{
		ID:               id,
		Seq:              r.clock.Next(),
		Name:             id,
		Model:            r.s.Model,
		Direction:        dir,
		Input:            rec,
		Output:           out,
		RulesFingerprint: r.h.fingerprint,
		Warnings:         ws,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("store conversion: %w", err)
	}
	return out, ws, nil
}

// reverse converts the output back in the opposite direction.
func reverse(dir ir.Direction) ir.Direction {
	if dir == ir.ToStructured {
		return ir.ToLegacy
	}
	return ir.ToStructured
}
