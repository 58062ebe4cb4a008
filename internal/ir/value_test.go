package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestValueSealed(t *testing.T) {
	// Compile-time check that every variant implements Value.
	var _ Value = Null{}
	var _ Value = String("test")
	var _ Value = Int(42)
	var _ Value = Bool(true)
	var _ Value = Array{String("a"), Int(1)}
	var _ Value = Object{"key": String("value")}

	var _ Record = LegacyRecord{}
	var _ Record = Object{}
}

func TestObjectSortedKeys(t *testing.T) {
	obj := Object{
		"zebra":  String("z"),
		"apple":  String("a"),
		"banana": String("b"),
		"$ref":   String("r"),
	}

	assert.Equal(t, []string{"$ref", "apple", "banana", "zebra"}, obj.SortedKeys())
}

func TestObjectSortedKeysRFC8785Order(t *testing.T) {
	obj := Object{"a": Int(1), "A": Int(2), "aa": Int(3), "aA": Int(4), "Aa": Int(5), "AA": Int(6)}

	// 'A' = 65, 'a' = 97
	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestNewObjectSkipsNil(t *testing.T) {
	obj := NewObject(O("value", String("x")), O("source", nil))

	assert.Equal(t, Object{"value": String("x")}, obj)
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same string", String("a"), String("a"), true},
		{"different string", String("a"), String("b"), false},
		{"string vs int", String("1"), Int(1), false},
		{"nil vs null", nil, Null{}, true},
		{"null vs empty string", Null{}, String(""), false},
		{"false vs zero", Bool(false), Int(0), false},
		{"array order matters", Array{Int(1), Int(2)}, Array{Int(2), Int(1)}, false},
		{"object key order ignored",
			Object{"a": Int(1), "b": Array{String("x")}},
			Object{"b": Array{String("x")}, "a": Int(1)}, true},
		{"object missing key", Object{"a": Int(1)}, Object{"b": Int(1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestObjectJSONRoundTrip(t *testing.T) {
	obj := Object{
		"dois": Array{
			Object{"value": String("10.1088/0264-9381/31/24/245004")},
			Object{"source": String("bibmatch"), "value": String("10.1/x")},
		},
		"citeable":       Bool(true),
		"control_number": Int(1408366),
		"note":           Null{},
	}

	data, err := json.Marshal(obj)
	require.NoError(t, err)

	var decoded Object
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, Equal(obj, decoded))
}

func TestUnmarshalValueRejectsFloats(t *testing.T) {
	_, err := UnmarshalValue([]byte(`{"pages": 1.5}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestUnmarshalValueLargeInt(t *testing.T) {
	v, err := UnmarshalValue([]byte(`9007199254740993`))
	require.NoError(t, err)
	assert.Equal(t, Int(9007199254740993), v)
}

func TestFromGoYAML(t *testing.T) {
	var raw any
	require.NoError(t, yaml.Unmarshal([]byte("a: 1\nb: [x, true]\nc: null\n"), &raw))

	v, err := FromGo(raw)
	require.NoError(t, err)
	assert.Equal(t, Object{
		"a": Int(1),
		"b": Array{String("x"), Bool(true)},
		"c": Null{},
	}, v)
}

func TestFromGoRejectsFractionalFloat(t *testing.T) {
	_, err := FromGo(2.5)
	require.Error(t, err)

	v, err := FromGo(float64(3))
	require.NoError(t, err)
	assert.Equal(t, Int(3), v)
}

func TestToGoRoundTrip(t *testing.T) {
	obj := Object{"a": Array{Int(1), String("x")}, "b": Bool(false), "c": Null{}}

	back, err := FromGo(ToGo(obj))
	require.NoError(t, err)
	assert.True(t, Equal(obj, back))
}
