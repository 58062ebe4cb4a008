package compiler

import "cuelang.org/go/cue"

// Schema is the CUE definition every rule set is unified with.
const Schema = `
#Direction: "both" | "to_structured" | "to_legacy"

#Code: =~"^[0-9a-z]$"

#Rule: {
	direction:    #Direction | *"both"
	tag?:         string
	key:          string
	reverse_key?: string
	legacy?:      string
	handler:      string
	repeatable:   bool | *false
	when?: {
		present?: #Code
		absent?:  #Code
		equals?: [#Code]: string
	}
	code?: #Code
	subfields?: [#Code]: string
	fixed?: [#Code]: string
	ref?: {
		code:       #Code
		collection: string
		key:        string | *"record"
		curated:    string | *"curated_relation"
	}
}

#RuleSet: {
	collection: string
	schema:     string
	postprocess: {
		filter_empty: bool | *true
		dedupe:       bool | *false
	}
	finalizers: {
		to_structured: [...string] | *[]
		to_legacy:     [...string] | *[]
	}
	rules: [...#Rule]
}
`

// SchemaValue compiles Schema in ctx. Values being unified with it must
// come from the same context.
func SchemaValue(ctx *cue.Context) cue.Value {
	return ctx.CompileString(Schema, cue.Filename("schema.cue"))
}
