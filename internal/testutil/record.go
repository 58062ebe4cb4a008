// Package testutil holds small builders shared by tests across packages.
package testutil

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/marcbridge/internal/ir"
)

// Field builds a field occurrence from code/value pairs:
//
//	Field("024", "7", "", "2", "DOI", "a", "10.1000/x")
//
// A trailing unpaired code is ignored.
func Field(tag, ind1, ind2 string, codeValues ...string) ir.Field {
	f := ir.Field{Tag: tag, Ind1: ind1, Ind2: ind2}
	for i := 0; i+1 < len(codeValues); i += 2 {
		f.Subfields = append(f.Subfields, ir.SF(codeValues[i], codeValues[i+1]))
	}
	return f
}

// Control builds a control field (001-009).
func Control(tag, value string) ir.Field {
	return ir.Field{Tag: tag, Value: value}
}

// Ref builds the reference object a resolver with baseURL produces.
func Ref(baseURL, collection string, id int64) ir.Object {
	return ir.Object{ir.RefKey: ir.String(fmt.Sprintf("%s/api/%s/%d", baseURL, collection, id))}
}

// IDs returns n predictable conversion ids: prefix-01, prefix-02, ...
func IDs(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%02d", prefix, i+1)
	}
	return ids
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
