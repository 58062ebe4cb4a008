package store

import (
	"context"
	"fmt"

	"github.com/roach88/marcbridge/internal/diag"
	"github.com/roach88/marcbridge/internal/ir"
)

// Conversion is one stored conversion.
type Conversion struct {
	ID        string
	Seq       int64
	Name      string
	Model     string
	Direction ir.Direction
	Input     ir.Record
	Output    ir.Record

	// InputHash and OutputHash are ir.RecordHash values. WriteConversion
	// fills them when empty.
	InputHash  string
	OutputHash string

	RulesFingerprint string
	EngineVersion    string
	IRVersion        string

	Warnings diag.Warnings
}

// WriteConversion stores a conversion and its warnings atomically.
// Returns inserted=false when a conversion with the same id already
// exists; the stored row is left untouched.
//
// EngineVersion and IRVersion default to the running build's.
func (s *Store) WriteConversion(ctx context.Context, c Conversion) (inserted bool, err error) {
	if c.ID == "" {
		return false, fmt.Errorf("write conversion: empty id")
	}
	if !ir.ValidDirections[c.Direction] {
		return false, fmt.Errorf("write conversion %s: invalid direction %q", c.ID, c.Direction)
	}

	inputJSON, err := marshalRecord(c.Input)
	if err != nil {
		return false, fmt.Errorf("write conversion %s: input: %w", c.ID, err)
	}
	outputJSON, err := marshalRecord(c.Output)
	if err != nil {
		return false, fmt.Errorf("write conversion %s: output: %w", c.ID, err)
	}
	if c.InputHash == "" {
		if c.InputHash, err = ir.RecordHash(c.Input); err != nil {
			return false, fmt.Errorf("write conversion %s: %w", c.ID, err)
		}
	}
	if c.OutputHash == "" {
		if c.OutputHash, err = ir.RecordHash(c.Output); err != nil {
			return false, fmt.Errorf("write conversion %s: %w", c.ID, err)
		}
	}
	if c.EngineVersion == "" {
		c.EngineVersion = ir.EngineVersion
	}
	if c.IRVersion == "" {
		c.IRVersion = ir.IRVersion
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write conversion: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO conversions
		(id, seq, name, model, direction, input, output, input_hash, output_hash,
		 rules_fingerprint, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		c.ID,
		c.Seq,
		c.Name,
		c.Model,
		string(c.Direction),
		inputJSON,
		outputJSON,
		c.InputHash,
		c.OutputHash,
		c.RulesFingerprint,
		c.EngineVersion,
		c.IRVersion,
	)
	if err != nil {
		return false, fmt.Errorf("write conversion: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write conversion: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	for i, w := range c.Warnings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversion_warnings
			(conversion_id, position, code, field, field_index, key, message)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			c.ID,
			i,
			string(w.Code),
			w.Field,
			w.Index,
			w.Key,
			w.Message,
		)
		if err != nil {
			return false, fmt.Errorf("write conversion: warning %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write conversion: commit: %w", err)
	}
	return true, nil
}
