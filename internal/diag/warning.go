package diag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/marcbridge/internal/ir"
)

// Code identifies the kind of warning.
type Code string

const (
	// CodeUnmappedField: an input tag or key had no matching rule.
	CodeUnmappedField Code = "UnmappedFieldWarning"
	// CodeDuplicateSingularField: a non-repeatable field was seen more than once.
	CodeDuplicateSingularField Code = "DuplicateSingularFieldWarning"
	// CodeMalformedValue: a handler could not coerce a value; the key was omitted.
	CodeMalformedValue Code = "MalformedValueWarning"
)

// ValidCodes defines the known warning codes.
var ValidCodes = map[Code]bool{
	CodeUnmappedField:          true,
	CodeDuplicateSingularField: true,
	CodeMalformedValue:         true,
}

// Warning is one diagnostic raised while converting a record.
type Warning struct {
	// Code is the kind of warning.
	Code Code `json:"code"`
	// Model and Direction identify the conversion.
	Model     string       `json:"model"`
	Direction ir.Direction `json:"direction"`
	// Field is the legacy tag key or structured key the warning concerns.
	Field string `json:"field"`
	// Index is the position of the occurrence in the input (field index for
	// legacy input, sorted key index for structured input).
	Index int `json:"index"`
	// Key is the structured target key, when one was resolved.
	Key string `json:"key,omitempty"`
	// Message is the human-readable description.
	Message string `json:"message"`
}

// String returns a formatted warning line.
func (w Warning) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s #%d", w.Code, w.Field, w.Index)
	if w.Key != "" {
		fmt.Fprintf(&b, " -> %s", w.Key)
	}
	if w.Message != "" {
		b.WriteString(": ")
		b.WriteString(w.Message)
	}
	return b.String()
}

// ToValue converts the warning into a Value for canonical output.
func (w Warning) ToValue() ir.Object {
	return ir.NewObject(
		ir.O("code", ir.String(w.Code)),
		ir.O("model", ir.String(w.Model)),
		ir.O("direction", ir.String(w.Direction)),
		ir.O("field", ir.String(w.Field)),
		ir.O("index", ir.Int(w.Index)),
		ir.O("key", optional(w.Key)),
		ir.O("message", ir.String(w.Message)),
	)
}

func optional(s string) ir.Value {
	if s == "" {
		return nil
	}
	return ir.String(s)
}

// Warnings is an ordered list of warnings for one conversion.
type Warnings []Warning

// Count returns how many warnings carry code.
func (ws Warnings) Count(code Code) int {
	n := 0
	for _, w := range ws {
		if w.Code == code {
			n++
		}
	}
	return n
}

// ByCode returns the warnings carrying code, in order.
func (ws Warnings) ByCode(code Code) Warnings {
	var out Warnings
	for _, w := range ws {
		if w.Code == code {
			out = append(out, w)
		}
	}
	return out
}

// Fields returns the distinct fields named by warnings, sorted.
func (ws Warnings) Fields() []string {
	seen := make(map[string]bool, len(ws))
	var out []string
	for _, w := range ws {
		if !seen[w.Field] {
			seen[w.Field] = true
			out = append(out, w.Field)
		}
	}
	sort.Strings(out)
	return out
}

// ToValue converts the list into a Value array.
func (ws Warnings) ToValue() ir.Array {
	arr := make(ir.Array, len(ws))
	for i, w := range ws {
		arr[i] = w.ToValue()
	}
	return arr
}

// Collector accumulates the warnings of a single conversion.
// It is not safe for concurrent use; each conversion owns one.
type Collector struct {
	model     string
	direction ir.Direction
	warnings  Warnings
}

// NewCollector creates a collector stamping every warning with model and
// direction.
func NewCollector(model string, direction ir.Direction) *Collector {
	return &Collector{model: model, direction: direction}
}

// Unmapped records an UnmappedFieldWarning.
func (c *Collector) Unmapped(field string, index int) {
	c.add(CodeUnmappedField, field, index, "", "no rule matches this field")
}

// DuplicateSingular records a DuplicateSingularFieldWarning.
func (c *Collector) DuplicateSingular(field string, index int, key string) {
	c.add(CodeDuplicateSingularField, field, index, key, "non-repeatable field seen again; keeping the first occurrence")
}

// Malformed records a MalformedValueWarning.
func (c *Collector) Malformed(field string, index int, key, message string) {
	c.add(CodeMalformedValue, field, index, key, message)
}

func (c *Collector) add(code Code, field string, index int, key, message string) {
	c.warnings = append(c.warnings, Warning{
		Code:      code,
		Model:     c.model,
		Direction: c.direction,
		Field:     field,
		Index:     index,
		Key:       key,
		Message:   message,
	})
}

// Warnings returns the warnings recorded so far. The result is non-nil.
func (c *Collector) Warnings() Warnings {
	if c.warnings == nil {
		return Warnings{}
	}
	return c.warnings
}
