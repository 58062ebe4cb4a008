package cli

import (
	"context"
	"fmt"

	"github.com/roach88/marcbridge/internal/batch"
	"github.com/roach88/marcbridge/internal/store"
)

// openAudit opens the audit database at path and returns a clock that
// continues after the last stored sequence number, so new conversions
// sort after old ones.
func openAudit(ctx context.Context, path string) (*store.Store, *batch.Clock, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	last, err := st.LastSeq(ctx)
	if err != nil {
		st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to read database", err)
	}
	return st, batch.NewClockAt(last), nil
}

// record writes every successful result to the audit log, in input order.
// Failed results have no output and are not stored.
func record(ctx context.Context, st *store.Store, fingerprint string, results []batch.Result) (int, error) {
	written := 0
	for _, res := range results {
		if res.Err != nil || res.Output == nil {
			continue
		}
		inserted, err := st.WriteConversion(ctx, store.Conversion{
			ID:               res.ID,
			Seq:              res.Seq,
			Name:             res.Name,
			Model:            res.Model,
			Direction:        res.Direction,
			Input:            res.Input,
			Output:           res.Output,
			RulesFingerprint: fingerprint,
			Warnings:         res.Warnings,
		})
		if err != nil {
			return written, WrapExitError(ExitCommandError, fmt.Sprintf("failed to store %s", res.Name), err)
		}
		if inserted {
			written++
		}
	}
	return written, nil
}
