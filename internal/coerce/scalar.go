package coerce

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/marcbridge/internal/ir"
)

// Year range accepted by Year. Anything outside is treated as malformed.
const (
	minYear = 1000
	maxYear = 2100
)

// Text normalizes a subfield string: NFC composition, surrounding
// whitespace trimmed, internal whitespace runs collapsed to one space.
func Text(s string) string {
	s = norm.NFC.String(s)
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// Int parses a whole number, tolerating surrounding whitespace.
// Returns nil when s is empty or not an integer.
func Int(s string) ir.Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return ir.Int(n)
}

// Year extracts a four-digit year from the start of s ("2014", "2014-12-01",
// "2014 (reprint)"). Returns nil when no plausible year is present.
func Year(s string) ir.Value {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return nil
	}
	n, err := strconv.Atoi(s[:4])
	if err != nil || n < minYear || n > maxYear {
		return nil
	}
	if len(s) > 4 && unicode.IsDigit(rune(s[4])) {
		return nil
	}
	return ir.Int(n)
}

// Date normalizes a partial ISO-8601 date ("2014", "2014-12", "2014-12-01").
// Compact forms "201412" and "20141201" are expanded. Returns nil when s is
// not a valid date.
func Date(s string) ir.Value {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "-") {
		switch len(s) {
		case 6:
			s = s[:4] + "-" + s[4:]
		case 8:
			s = s[:4] + "-" + s[4:6] + "-" + s[6:]
		}
	}

	var layout string
	switch len(s) {
	case 4:
		layout = "2006"
	case 7:
		layout = "2006-01"
	case 10:
		layout = "2006-01-02"
	default:
		return nil
	}
	t, err := time.Parse(layout, s)
	if err != nil || t.Year() < minYear || t.Year() > maxYear {
		return nil
	}
	return ir.String(s)
}

// IntString renders an Int (or numeric String) as text, or "" when v is
// neither.
func IntString(v ir.Value) string {
	switch val := v.(type) {
	case ir.Int:
		return strconv.FormatInt(int64(val), 10)
	case ir.String:
		if Int(string(val)) != nil {
			return strings.TrimSpace(string(val))
		}
	}
	return ""
}

// BoolString renders a Bool as "true"/"false" text, or "" when v is not a Bool.
func BoolString(v ir.Value) string {
	if b, ok := v.(ir.Bool); ok {
		return strconv.FormatBool(bool(b))
	}
	return ""
}
