package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/marcbridge/internal/diag"
	"github.com/roach88/marcbridge/internal/ir"
)

const conversionColumns = `id, seq, name, model, direction, input, output, input_hash, output_hash,
	rules_fingerprint, engine_version, ir_version`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// GetConversion retrieves a single conversion, with its warnings, by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetConversion(ctx context.Context, id string) (Conversion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conversionColumns+`
		FROM conversions
		WHERE id = ?
	`, id)

	c, err := scanConversion(row)
	if err != nil {
		return Conversion{}, err
	}
	c.Warnings, err = s.conversionWarnings(ctx, id, c.Model, c.Direction)
	if err != nil {
		return Conversion{}, err
	}
	return c, nil
}

// ListFilter narrows ListConversions. Zero values match everything.
type ListFilter struct {
	Model     string
	Direction ir.Direction
}

// ListConversions returns stored conversions in deterministic order:
// ORDER BY seq ASC, id COLLATE BINARY ASC. Warnings are not loaded.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListConversions(ctx context.Context, filter ListFilter) ([]Conversion, error) {
	var where []string
	var args []any
	if filter.Model != "" {
		where = append(where, "model = ?")
		args = append(args, filter.Model)
	}
	if filter.Direction != "" {
		where = append(where, "direction = ?")
		args = append(args, string(filter.Direction))
	}

	query := `SELECT ` + conversionColumns + ` FROM conversions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq ASC, id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversions: %w", err)
	}
	defer rows.Close()

	conversions := []Conversion{}
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		conversions = append(conversions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversions: %w", err)
	}
	return conversions, nil
}

func scanConversion(row scanner) (Conversion, error) {
	var (
		c             Conversion
		direction     string
		input, output string
	)
	err := row.Scan(
		&c.ID,
		&c.Seq,
		&c.Name,
		&c.Model,
		&direction,
		&input,
		&output,
		&c.InputHash,
		&c.OutputHash,
		&c.RulesFingerprint,
		&c.EngineVersion,
		&c.IRVersion,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return Conversion{}, err
		}
		return Conversion{}, fmt.Errorf("scan conversion: %w", err)
	}

	c.Direction = ir.Direction(direction)
	inLegacy, outLegacy := shapes(c.Direction)
	if c.Input, err = unmarshalRecord(input, inLegacy); err != nil {
		return Conversion{}, fmt.Errorf("conversion %s: input: %w", c.ID, err)
	}
	if c.Output, err = unmarshalRecord(output, outLegacy); err != nil {
		return Conversion{}, fmt.Errorf("conversion %s: output: %w", c.ID, err)
	}
	return c, nil
}

func (s *Store) conversionWarnings(ctx context.Context, id, model string, dir ir.Direction) (diag.Warnings, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, field, field_index, key, message
		FROM conversion_warnings
		WHERE conversion_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query warnings: %w", err)
	}
	defer rows.Close()

	ws := diag.Warnings{}
	for rows.Next() {
		w := diag.Warning{Model: model, Direction: dir}
		var code string
		if err := rows.Scan(&code, &w.Field, &w.Index, &w.Key, &w.Message); err != nil {
			return nil, fmt.Errorf("scan warning: %w", err)
		}
		w.Code = diag.Code(code)
		ws = append(ws, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate warnings: %w", err)
	}
	return ws, nil
}

// StoredWarning is a warning together with the conversion that raised it.
type StoredWarning struct {
	ConversionID string
	Seq          int64
	Name         string
	diag.Warning
}

// ReadWarnings returns stored warnings ordered by conversion seq and then
// by the order the conversion raised them. An empty code returns all.
func (s *Store) ReadWarnings(ctx context.Context, code diag.Code) ([]StoredWarning, error) {
	query := `
		SELECT c.id, c.seq, c.name, c.model, c.direction,
		       w.code, w.field, w.field_index, w.key, w.message
		FROM conversion_warnings w
		JOIN conversions c ON w.conversion_id = c.id`
	var args []any
	if code != "" {
		query += ` WHERE w.code = ?`
		args = append(args, string(code))
	}
	query += ` ORDER BY c.seq ASC, c.id COLLATE BINARY ASC, w.position ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query warnings: %w", err)
	}
	defer rows.Close()

	out := []StoredWarning{}
	for rows.Next() {
		var (
			sw            StoredWarning
			direction, wc string
		)
		err := rows.Scan(
			&sw.ConversionID, &sw.Seq, &sw.Name, &sw.Model, &direction,
			&wc, &sw.Field, &sw.Index, &sw.Key, &sw.Message,
		)
		if err != nil {
			return nil, fmt.Errorf("scan warning: %w", err)
		}
		sw.Direction = ir.Direction(direction)
		sw.Code = diag.Code(wc)
		out = append(out, sw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate warnings: %w", err)
	}
	return out, nil
}

// CodeCount is one row of WarningSummary.
type CodeCount struct {
	Model string
	Code  diag.Code
	Count int
}

// WarningSummary counts stored warnings per model and code, ordered by
// model then code.
func (s *Store) WarningSummary(ctx context.Context) ([]CodeCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.model, w.code, COUNT(*)
		FROM conversion_warnings w
		JOIN conversions c ON w.conversion_id = c.id
		GROUP BY c.model, w.code
		ORDER BY c.model COLLATE BINARY ASC, w.code COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("warning summary: %w", err)
	}
	defer rows.Close()

	out := []CodeCount{}
	for rows.Next() {
		var (
			cc   CodeCount
			code string
		)
		if err := rows.Scan(&cc.Model, &code, &cc.Count); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		cc.Code = diag.Code(code)
		out = append(out, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary: %w", err)
	}
	return out, nil
}
