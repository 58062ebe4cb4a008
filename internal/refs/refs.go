// Package refs converts bare record identifiers into cross-collection
// references and back.
//
// A reference is an object {"$ref": "<base>/api/<collection>/<id>"}. The
// resolver never checks that the target exists. Legacy data is known to
// carry broken back-references, so every decoding function fails soft.
package refs

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/roach88/marcbridge/internal/ir"
)

// DefaultBaseURL is used when no base_url is configured.
const DefaultBaseURL = "https://inspirehep.net"

// Resolver builds and parses references against one base address.
// It holds no per-record state and is safe for concurrent use.
type Resolver struct {
	baseURL string
}

// NewResolver creates a resolver for baseURL. A trailing slash is ignored
// and an empty baseURL falls back to DefaultBaseURL.
func NewResolver(baseURL string) *Resolver {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Resolver{baseURL: baseURL}
}

// BaseURL returns the configured base address without a trailing slash.
func (r *Resolver) BaseURL() string {
	return r.baseURL
}

// URI returns the reference URI for id in collection.
func (r *Resolver) URI(collection string, id int64) string {
	return r.baseURL + "/api/" + collection + "/" + strconv.FormatInt(id, 10)
}

// ToReference converts a record id into a reference object. A nil, Null
// or non-numeric id yields nil.
func (r *Resolver) ToReference(id ir.Value, collection string) ir.Value {
	n, ok := ParseID(id)
	if !ok {
		return nil
	}
	return ir.Object{ir.RefKey: ir.String(r.URI(collection, n))}
}

// FromReference extracts the record id from a reference object or a bare
// reference URI. It reports false for anything malformed.
func (r *Resolver) FromReference(ref ir.Value) (int64, bool) {
	_, id, ok := split(ref)
	return id, ok
}

// Collection returns the collection a reference points at, or "" when the
// reference is malformed.
func (r *Resolver) Collection(ref ir.Value) string {
	collection, _, ok := split(ref)
	if !ok {
		return ""
	}
	return collection
}

// Curated reports whether ref resolves to a record id. It is evaluated on
// every call: curation state belongs to the record being converted, not to
// the resolver.
func (r *Resolver) Curated(ref ir.Value) bool {
	_, ok := r.FromReference(ref)
	return ok
}

// Relation builds the reference half of a curated relation: the reference
// under recordKey (when id resolves) and the curated flag under curatedKey.
// Callers add the raw textual value themselves.
func (r *Resolver) Relation(id ir.Value, collection, recordKey, curatedKey string) ir.Object {
	ref := r.ToReference(id, collection)
	obj := ir.Object{curatedKey: ir.Bool(ref != nil)}
	if ref != nil {
		obj[recordKey] = ref
	}
	return obj
}

// SchemaURL returns the JSON schema address for a model schema name.
func (r *Resolver) SchemaURL(schema string) string {
	return r.baseURL + "/schemas/records/" + schema + ".json"
}

// ParseID accepts an Int or a string of digits and returns it as a
// non-negative id.
func ParseID(v ir.Value) (int64, bool) {
	switch val := v.(type) {
	case ir.Int:
		if val < 0 {
			return 0, false
		}
		return int64(val), true
	case ir.String:
		s := strings.TrimSpace(string(val))
		if s == "" || strings.IndexFunc(s, notDigit) >= 0 {
			return 0, false
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func notDigit(r rune) bool {
	return r < '0' || r > '9'
}

// split decodes the collection and id of a reference. Only the last two
// path segments are inspected, so references minted under another base
// address still decode.
func split(ref ir.Value) (string, int64, bool) {
	var raw string
	switch val := ref.(type) {
	case ir.Object:
		s, ok := val.GetString(ir.RefKey)
		if !ok {
			return "", 0, false
		}
		raw = s
	case ir.String:
		raw = string(val)
	default:
		return "", 0, false
	}

	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", 0, false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 {
		return "", 0, false
	}
	id, ok := ParseID(ir.String(segments[len(segments)-1]))
	if !ok {
		return "", 0, false
	}
	return segments[len(segments)-2], id, true
}
