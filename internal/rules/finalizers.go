package rules

import (
	"github.com/roach88/marcbridge/internal/ir"
	"github.com/roach88/marcbridge/internal/registry"
)

// schemaKey is where a structured record names its JSON schema.
const schemaKey = "$schema"

// schemaFinalizer stamps the record with the rule set's schema address.
func schemaFinalizer(spec ir.RuleSetSpec) registry.Finalizer {
	return registry.Finalizer{
		Name:      "schema",
		Direction: ir.ToStructured,
		Structured: func(ctx registry.Context, out ir.Object) {
			out[schemaKey] = ir.String(ctx.Refs().SchemaURL(spec.Schema))
		},
	}
}

// defaultDocumentTypeFinalizer marks records no 980 typed as articles.
func defaultDocumentTypeFinalizer(ir.RuleSetSpec) registry.Finalizer {
	return registry.Finalizer{
		Name:      "default_document_type",
		Direction: ir.ToStructured,
		Structured: func(_ registry.Context, out ir.Object) {
			if _, ok := out["document_type"]; !ok {
				out["document_type"] = ir.StringsArray(defaultDocumentType)
			}
		},
	}
}

// hepMarkerFinalizer restores the 980 HEP marker, which the forward
// direction drops.
func hepMarkerFinalizer(ir.RuleSetSpec) registry.Finalizer {
	return registry.Finalizer{
		Name:      "hep_marker",
		Direction: ir.ToLegacy,
		Legacy: func(_ registry.Context, out *ir.LegacyRecord) {
			for _, f := range *out {
				if f.Tag == "980" && f.First("a") == hepMarker {
					return
				}
			}
			*out = append(*out, ir.Field{Tag: "980"}.Add("a", hepMarker))
		},
	}
}
