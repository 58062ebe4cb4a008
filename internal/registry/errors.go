package registry

import (
	"errors"
	"fmt"

	"github.com/roach88/marcbridge/internal/ir"
)

// AmbiguousRuleError reports two rules of one model and direction that can
// match the same input without a deterministic winner.
type AmbiguousRuleError struct {
	Model     string
	Direction ir.Direction

	// Example is an input both rules match.
	Example string

	// Existing and New are the patterns of the conflicting rules.
	Existing string
	New      string

	// ExistingKey and NewKey are their target keys.
	ExistingKey string
	NewKey      string
}

// Error implements the error interface.
func (e *AmbiguousRuleError) Error() string {
	return fmt.Sprintf("ambiguous rules in %s/%s: %q (-> %s) and %q (-> %s) both match %q with equal specificity",
		e.Model, e.Direction, e.Existing, e.ExistingKey, e.New, e.NewKey, e.Example)
}

// ConfigError reports a malformed rule or model declaration.
type ConfigError struct {
	Model   string
	Pattern string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("rule %s %q: %s", e.Model, e.Pattern, e.Message)
	}
	return fmt.Sprintf("model %s: %s", e.Model, e.Message)
}

// IsAmbiguous returns true if err is or wraps an AmbiguousRuleError.
func IsAmbiguous(err error) bool {
	var ae *AmbiguousRuleError
	return errors.As(err, &ae)
}

// IsConfigError returns true if err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
