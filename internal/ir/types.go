package ir

// SelfKey is the target key that merges a handler's object into the
// record top level instead of a single key.
const SelfKey = "self"

// RuleSetSpec represents one model's compiled rule-set declaration.
type RuleSetSpec struct {
	Model       string          `json:"model"`
	Collection  string          `json:"collection"`
	Schema      string          `json:"schema"`
	Postprocess PostprocessSpec `json:"postprocess"`
	Finalizers  []FinalizerSpec `json:"finalizers,omitempty"`
	Rules       []RuleSpec      `json:"rules"`
}

// PostprocessSpec configures the terminal cleanup step of a conversion.
type PostprocessSpec struct {
	FilterEmpty bool `json:"filter_empty"`
	Dedupe      bool `json:"dedupe"`
}

// FinalizerSpec names a finalizer to run after dispatch.
type FinalizerSpec struct {
	Name      string    `json:"name"`
	Direction Direction `json:"direction"`
}

// RuleSpec represents one compiled mapping rule for a single direction.
//
// For ToStructured rules Pattern matches legacy tag keys ("0247_") and Key
// is the structured key (or SelfKey). For ToLegacy rules Pattern matches
// structured keys and Key is the legacy tag key fields are emitted under.
type RuleSpec struct {
	Direction  Direction         `json:"direction"`
	Pattern    string            `json:"pattern"`
	Key        string            `json:"key"`
	Handler    string            `json:"handler"`
	Repeatable bool              `json:"repeatable"`
	When       *WhenSpec         `json:"when,omitempty"`
	Code       string            `json:"code,omitempty"`
	Subfields  []SubfieldMapping `json:"subfields,omitempty"`
	Fixed      []Subfield        `json:"fixed,omitempty"`
	Ref        *RefSpec          `json:"ref,omitempty"`
	Pos        string            `json:"-"` // CUE source position for diagnostics
}

// WhenSpec is a declared discriminator inspected before a handler runs.
// Multiple constraints must all hold.
type WhenSpec struct {
	Present string     `json:"present,omitempty"`
	Absent  string     `json:"absent,omitempty"`
	Equals  []Subfield `json:"equals,omitempty"`
}

// SubfieldMapping maps a subfield code to a structured key.
type SubfieldMapping struct {
	Code string `json:"code"`
	Key  string `json:"key"`
}

// RefSpec declares a curated relation carried by one subfield.
type RefSpec struct {
	Code       string `json:"code"`
	Collection string `json:"collection"`
	Key        string `json:"key"`
	Curated    string `json:"curated"`
}

// ToValue converts the spec into a Value for canonical hashing.
func (s RuleSetSpec) ToValue() Object {
	rules := make(Array, len(s.Rules))
	for i, r := range s.Rules {
		rules[i] = r.ToValue()
	}
	finalizers := make(Array, len(s.Finalizers))
	for i, f := range s.Finalizers {
		finalizers[i] = Object{"name": String(f.Name), "direction": String(f.Direction)}
	}
	return Object{
		"model":      String(s.Model),
		"collection": String(s.Collection),
		"schema":     String(s.Schema),
		"postprocess": Object{
			"filter_empty": Bool(s.Postprocess.FilterEmpty),
			"dedupe":       Bool(s.Postprocess.Dedupe),
		},
		"finalizers": finalizers,
		"rules":      rules,
	}
}

// ToValue converts the rule into a Value for canonical hashing.
func (r RuleSpec) ToValue() Object {
	obj := Object{
		"direction":  String(r.Direction),
		"pattern":    String(r.Pattern),
		"key":        String(r.Key),
		"handler":    String(r.Handler),
		"repeatable": Bool(r.Repeatable),
	}
	if r.When != nil {
		when := Object{}
		if r.When.Present != "" {
			when["present"] = String(r.When.Present)
		}
		if r.When.Absent != "" {
			when["absent"] = String(r.When.Absent)
		}
		if len(r.When.Equals) > 0 {
			when["equals"] = subfieldsValue(r.When.Equals)
		}
		obj["when"] = when
	}
	if r.Code != "" {
		obj["code"] = String(r.Code)
	}
	if len(r.Subfields) > 0 {
		arr := make(Array, len(r.Subfields))
		for i, m := range r.Subfields {
			arr[i] = Object{"code": String(m.Code), "key": String(m.Key)}
		}
		obj["subfields"] = arr
	}
	if len(r.Fixed) > 0 {
		obj["fixed"] = subfieldsValue(r.Fixed)
	}
	if r.Ref != nil {
		obj["ref"] = Object{
			"code":       String(r.Ref.Code),
			"collection": String(r.Ref.Collection),
			"key":        String(r.Ref.Key),
			"curated":    String(r.Ref.Curated),
		}
	}
	return obj
}

func subfieldsValue(sfs []Subfield) Array {
	arr := make(Array, len(sfs))
	for i, sf := range sfs {
		arr[i] = Object{"code": String(sf.Code), "value": String(sf.Value)}
	}
	return arr
}
