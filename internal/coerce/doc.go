// Package coerce normalizes values flowing between legacy subfields and
// structured records.
//
// None of these functions panic or return errors. Malformed input (for
// example a non-numeric year) yields nil, leaving the fallback policy to the
// caller; handlers typically report a MalformedValueWarning and omit the key.
//
// FilterEmpty never removes Bool(false) or Int(0): only nil, Null, the empty
// string, and empty containers count as empty.
package coerce
