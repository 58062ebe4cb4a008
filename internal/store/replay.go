package store

import (
	"context"
	"fmt"

	"github.com/roach88/marcbridge/internal/diag"
	"github.com/roach88/marcbridge/internal/ir"
)

// Converter re-runs a stored conversion. *engine.Dispatcher implements it.
type Converter interface {
	Convert(ctx context.Context, model string, dir ir.Direction, rec ir.Record) (ir.Record, diag.Warnings, error)
}

// ReplayStatus classifies one replayed conversion.
type ReplayStatus string

const (
	// ReplayMatch: the output hash is unchanged.
	ReplayMatch ReplayStatus = "match"
	// ReplayMismatch: same rules fingerprint, different output. The engine
	// is not deterministic.
	ReplayMismatch ReplayStatus = "mismatch"
	// ReplayDrift: the rules changed since the conversion was stored and the
	// output changed with them.
	ReplayDrift ReplayStatus = "drift"
	// ReplayFailed: the converter rejected the stored input.
	ReplayFailed ReplayStatus = "failed"
)

// ReplayResult is the outcome of replaying one stored conversion.
type ReplayResult struct {
	ID         string
	Seq        int64
	Name       string
	Model      string
	Direction  ir.Direction
	Status     ReplayStatus
	StoredHash string
	ReplayHash string
	// StoredFingerprint is the rules fingerprint recorded with the
	// conversion.
	StoredFingerprint string
	Err               error
}

// ReplayReport summarises a replay run.
type ReplayReport struct {
	Fingerprint string
	Results     []ReplayResult
	Matched     int
	Mismatched  int
	Drifted     int
	Failed      int
}

// OK reports whether the replay found no determinism failure and no
// rejected input. Drift alone is not a failure.
func (r ReplayReport) OK() bool {
	return r.Mismatched == 0 && r.Failed == 0
}

// Replay re-converts every stored input, in stored order, with conv and
// compares output hashes. fingerprint identifies the rules conv runs with.
//
// Replay never writes; the stored log is the reference. Only store or
// context errors are returned; per-conversion outcomes go in the report.
func (s *Store) Replay(ctx context.Context, conv Converter, fingerprint string) (ReplayReport, error) {
	report := ReplayReport{Fingerprint: fingerprint, Results: []ReplayResult{}}

	conversions, err := s.ListConversions(ctx, ListFilter{})
	if err != nil {
		return report, fmt.Errorf("replay: %w", err)
	}

	for _, c := range conversions {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := replayOne(ctx, conv, fingerprint, c)
		switch res.Status {
		case ReplayMatch:
			report.Matched++
		case ReplayMismatch:
			report.Mismatched++
		case ReplayDrift:
			report.Drifted++
		case ReplayFailed:
			report.Failed++
		}
		report.Results = append(report.Results, res)
	}
	return report, nil
}

func replayOne(ctx context.Context, conv Converter, fingerprint string, c Conversion) ReplayResult {
	res := ReplayResult{
		ID:                c.ID,
		Seq:               c.Seq,
		Name:              c.Name,
		Model:             c.Model,
		Direction:         c.Direction,
		StoredHash:        c.OutputHash,
		StoredFingerprint: c.RulesFingerprint,
	}

	out, _, err := conv.Convert(ctx, c.Model, c.Direction, c.Input)
	if err != nil {
		res.Status = ReplayFailed
		res.Err = err
		return res
	}
	res.ReplayHash, err = ir.RecordHash(out)
	if err != nil {
		res.Status = ReplayFailed
		res.Err = err
		return res
	}

	switch {
	case res.ReplayHash == res.StoredHash:
		res.Status = ReplayMatch
	case c.RulesFingerprint == fingerprint:
		res.Status = ReplayMismatch
	default:
		res.Status = ReplayDrift
	}
	return res
}
