package ir

// Version constants for the record IR and engine.
const (
	// IRVersion is the rule-set IR schema version.
	IRVersion = "1"

	// EngineVersion is the marcbridge engine version.
	EngineVersion = "0.3.0"
)
