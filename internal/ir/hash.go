package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainValue   = "marcbridge/value/v1"
	DomainRecord  = "marcbridge/record/v1"
	DomainRuleSet = "marcbridge/ruleset/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ValueHash returns a content hash of v. Structurally equal values hash
// identically regardless of object key order.
func ValueHash(v Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("ValueHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainValue, canonical), nil
}

// RecordHash returns the content hash of a record in either shape.
func RecordHash(r Record) (string, error) {
	canonical, err := MarshalRecord(r)
	if err != nil {
		return "", fmt.Errorf("RecordHash: %w", err)
	}
	return hashWithDomain(DomainRecord, canonical), nil
}

// RuleSetHash fingerprints compiled rule sets so stored conversions can
// tell which rules produced them.
func RuleSetHash(sets []RuleSetSpec) (string, error) {
	arr := make(Array, len(sets))
	for i, s := range sets {
		arr[i] = s.ToValue()
	}
	canonical, err := MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("RuleSetHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRuleSet, canonical), nil
}

// MarshalRecord produces canonical JSON for either record shape.
func MarshalRecord(r Record) ([]byte, error) {
	switch rec := r.(type) {
	case LegacyRecord:
		return MarshalCanonical(rec.ToValue())
	case Object:
		return MarshalCanonical(rec)
	default:
		return nil, fmt.Errorf("unsupported record type %T", r)
	}
}

// MustValueHash is like ValueHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustValueHash(v Value) string {
	h, err := ValueHash(v)
	if err != nil {
		panic(err)
	}
	return h
}
