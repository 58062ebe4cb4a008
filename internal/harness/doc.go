// Package harness provides conformance testing for rule sets.
//
// A scenario converts one record with one model and asserts on the
// outcome. Scenarios are the executable form of the behaviour each rule
// set promises, including which fields are knowingly lossy.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: doi_round_trip
//	description: "What this scenario validates"
//	model: literature
//	direction: to_structured   # optional, inferred from input
//	input:
//	  - tag: "024"
//	    ind1: "7"
//	    subfields: [{code: "2", value: DOI}, {code: a, value: 10.1000/x}]
//	assertions:
//	  - type: output_contains
//	    value: {dois: [{value: 10.1000/x}]}
//	  - type: warning_count
//	    code: UnmappedFieldWarning
//	    count: 0
//	  - type: round_trip
//	    ignore: ["980"]
//
// # Assertion Types
//
//   - output_equals: the output is exactly the given record
//   - output_contains: the structured output holds the given keys (subset match)
//   - fields_contain: the legacy output holds the given fields
//   - warning_count: exactly N warnings carry a code
//   - warnings: the warning list matches exactly, in order
//   - round_trip: converting back reproduces the input, minus ignored tags or keys
//   - replay_stable: replaying the stored conversions reproduces every output hash
//
// # Deterministic Testing
//
// The harness uses:
//   - Fixed conversion ids ({name}/forward, {name}/back)
//   - A logical clock starting at 1 per scenario
//   - In-memory SQLite database (isolated per scenario)
//
// Conversions are deterministic, so the same scenario always produces a
// byte-identical golden snapshot.
//
// # Usage
//
//	scenarios, err := harness.LoadScenarios("testdata/scenarios", "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	h := harness.New(dispatcher, registry.Fingerprint())
//	for _, s := range scenarios {
//	    result, err := h.Run(ctx, s)
//	    ...
//	}
package harness
