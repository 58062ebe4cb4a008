package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueHashIgnoresKeyOrder(t *testing.T) {
	a := Object{"value": String("x"), "source": String("arXiv")}
	b := Object{"source": String("arXiv"), "value": String("x")}

	assert.Equal(t, MustValueHash(a), MustValueHash(b))
	assert.Len(t, MustValueHash(a), 64, "SHA-256 hex is 64 characters")
}

func TestValueHashDistinguishesValues(t *testing.T) {
	assert.NotEqual(t, MustValueHash(String("1")), MustValueHash(Int(1)))
	assert.NotEqual(t, MustValueHash(Array{Int(1), Int(2)}), MustValueHash(Array{Int(2), Int(1)}))
}

func TestRecordHashDomainSeparation(t *testing.T) {
	obj := Object{}
	rec := LegacyRecord{}

	h1, err := RecordHash(obj)
	require.NoError(t, err)
	h2, err := ValueHash(obj)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2, "record and value hashes use different domains")

	h3, err := RecordHash(rec)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3, "{} and [] must not collide")
}

func TestRuleSetHashChangesWithRules(t *testing.T) {
	set := RuleSetSpec{
		Model: "literature",
		Rules: []RuleSpec{{Direction: ToStructured, Pattern: "^0247.", Key: "dois", Handler: "object"}},
	}
	h1, err := RuleSetHash([]RuleSetSpec{set})
	require.NoError(t, err)

	set.Rules[0].Repeatable = true
	h2, err := RuleSetHash([]RuleSetSpec{set})
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}
