// Package codec encodes and decodes records as JSON, YAML or MessagePack.
//
// Every codec decodes into ir.Value first; DecodeRecord then picks the
// record shape. Floats are rejected at that boundary (ir.FromGo), so all
// three formats accept exactly the same records.
package codec

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/roach88/marcbridge/internal/ir"
)

// Codec converts between bytes and record values.
type Codec interface {
	// Name is the --format name of the codec.
	Name() string
	// ContentType returns the MIME type.
	ContentType() string
	// Encode writes v. Object keys are emitted in sorted order.
	Encode(v ir.Value) ([]byte, error)
	// Decode parses data into a Value.
	Decode(data []byte) (ir.Value, error)
}

var codecs = map[string]Codec{
	"json":    jsonCodec{},
	"yaml":    yamlCodec{},
	"msgpack": msgpackCodec{},
}

var extensions = map[string]string{
	".json":    "json",
	".yaml":    "yaml",
	".yml":     "yaml",
	".msgpack": "msgpack",
	".mpk":     "msgpack",
}

// Lookup returns the codec registered under name.
func Lookup(name string) (Codec, error) {
	c, ok := codecs[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown format %q (want one of %s)", name, strings.Join(Names(), ", "))
	}
	return c, nil
}

// ForPath picks a codec from a file extension, falling back to JSON.
func ForPath(path string) Codec {
	if name, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return codecs[name]
	}
	return codecs["json"]
}

// IsRecordFile reports whether path has an extension some codec reads.
func IsRecordFile(path string) bool {
	_, ok := extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Names returns the codec names, sorted.
func Names() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EncodeRecord encodes either record shape.
func EncodeRecord(c Codec, rec ir.Record) ([]byte, error) {
	switch r := rec.(type) {
	case ir.LegacyRecord:
		return c.Encode(r.ToValue())
	case ir.Object:
		return c.Encode(r)
	default:
		return nil, fmt.Errorf("unsupported record type %T", rec)
	}
}

// DecodeRecord decodes the input record of a conversion in dir: a legacy
// record (array of fields) for to_structured, an object for to_legacy.
func DecodeRecord(c Codec, data []byte, dir ir.Direction) (ir.Record, error) {
	v, err := c.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.Name(), err)
	}
	rec, err := recordFromValue(v, dir)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.Name(), err)
	}
	return rec, nil
}

// DecodeAny decodes a record of either shape and returns the direction it
// converts in.
func DecodeAny(c Codec, data []byte) (ir.Record, ir.Direction, error) {
	v, err := c.Decode(data)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", c.Name(), err)
	}
	dir, err := DetectDirection(v)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", c.Name(), err)
	}
	rec, err := recordFromValue(v, dir)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", c.Name(), err)
	}
	return rec, dir, nil
}

func recordFromValue(v ir.Value, dir ir.Direction) (ir.Record, error) {
	switch dir {
	case ir.ToStructured:
		return ir.LegacyFromValue(v)
	case ir.ToLegacy:
		obj, ok := v.(ir.Object)
		if !ok {
			return nil, fmt.Errorf("structured record must be an object, got %T", v)
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("invalid direction %q", dir)
	}
}

// DetectDirection infers the conversion direction from a decoded value's
// shape: an array is a legacy record, an object a structured one.
func DetectDirection(v ir.Value) (ir.Direction, error) {
	switch v.(type) {
	case ir.Array:
		return ir.ToStructured, nil
	case ir.Object:
		return ir.ToLegacy, nil
	default:
		return "", fmt.Errorf("cannot infer direction from %T", v)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string        { return "json" }
func (jsonCodec) ContentType() string { return "application/json" }

// Encode writes canonical JSON followed by a newline.
func (jsonCodec) Encode(v ir.Value) ([]byte, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (jsonCodec) Decode(data []byte) (ir.Value, error) {
	return ir.UnmarshalValue(data)
}

type yamlCodec struct{}

func (yamlCodec) Name() string        { return "yaml" }
func (yamlCodec) ContentType() string { return "application/yaml" }

func (yamlCodec) Encode(v ir.Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(ir.ToGo(v)); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (yamlCodec) Decode(data []byte) (ir.Value, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return ir.FromGo(raw)
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string        { return "msgpack" }
func (msgpackCodec) ContentType() string { return "application/msgpack" }

func (msgpackCodec) Encode(v ir.Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(ir.ToGo(v)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Decode(data []byte) (ir.Value, error) {
	var raw any
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return ir.FromGo(raw)
}
