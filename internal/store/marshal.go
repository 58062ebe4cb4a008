package store

import (
	"fmt"

	"github.com/roach88/marcbridge/internal/ir"
)

// marshalRecord converts a record to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalRecord(rec ir.Record) (string, error) {
	data, err := ir.MarshalRecord(rec)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return string(data), nil
}

// unmarshalRecord parses stored TEXT back into the record shape given by
// legacy. Integers go through ir.UnmarshalValue, which keeps values above
// 2^53 exact.
func unmarshalRecord(data string, legacy bool) (ir.Record, error) {
	v, err := ir.UnmarshalValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	if legacy {
		rec, err := ir.LegacyFromValue(v)
		if err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		return rec, nil
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, fmt.Errorf("unmarshal record: expected object, got %T", v)
	}
	return obj, nil
}

// shapes reports which side of a conversion in dir is legacy.
func shapes(dir ir.Direction) (inputLegacy, outputLegacy bool) {
	return dir == ir.ToStructured, dir == ir.ToLegacy
}
