package core

import (
	"encoding/json"
	"fmt"
)

// AgentDataValue is a tagged union over the scalar and composite types that
// flow through function parameters, results, and messages: string, int,
// float64, bool, a list of strings, or a nested AgentData map. It marshals
// to plain JSON (no wrapper object) so an AgentData looks like an ordinary
// JSON object on the wire, with hand-rolled MarshalJSON/UnmarshalJSON
// rather than a generic "any" envelope.
type AgentDataValue struct {
	kind byte // 's','i','f','b','l','m','n' (string,int,float,bool,list,map,nil)
	s    string
	i    int
	f    float64
	b    bool
	l    []string
	m    AgentData
}

func StringValue(v string) AgentDataValue { return AgentDataValue{kind: 's', s: v} }
func IntValue(v int) AgentDataValue       { return AgentDataValue{kind: 'i', i: v} }
func FloatValue(v float64) AgentDataValue { return AgentDataValue{kind: 'f', f: v} }
func BoolValue(v bool) AgentDataValue     { return AgentDataValue{kind: 'b', b: v} }
func ListValue(v []string) AgentDataValue { return AgentDataValue{kind: 'l', l: v} }
func MapValue(v AgentData) AgentDataValue { return AgentDataValue{kind: 'm', m: v} }

// AgentData is the universal parameter/result envelope: a mapping from
// string keys to AgentDataValue. Key order carries no meaning.
type AgentData map[string]AgentDataValue

// NewAgentData returns an empty, non-nil AgentData.
func NewAgentData() AgentData {
	return make(AgentData)
}

// Kind reports which variant is populated: "string","int","float","bool","list","map","nil".
func (v AgentDataValue) Kind() string {
	switch v.kind {
	case 's':
		return "string"
	case 'i':
		return "int"
	case 'f':
		return "float"
	case 'b':
		return "bool"
	case 'l':
		return "list"
	case 'm':
		return "map"
	default:
		return "nil"
	}
}

func (v AgentDataValue) String() (string, bool)       { return v.s, v.kind == 's' }
func (v AgentDataValue) Int() (int, bool)             { return v.i, v.kind == 'i' }
func (v AgentDataValue) Float() (float64, bool)       { return v.f, v.kind == 'f' }
func (v AgentDataValue) Bool() (bool, bool)           { return v.b, v.kind == 'b' }
func (v AgentDataValue) StringList() ([]string, bool) { return v.l, v.kind == 'l' }
func (v AgentDataValue) Map() (AgentData, bool)       { return v.m, v.kind == 'm' }

// AsString returns the value formatted as a string regardless of its kind,
// used by builtin functions (text_analysis, data_transform) that accept
// loosely-typed input.
func (v AgentDataValue) AsString() string {
	switch v.kind {
	case 's':
		return v.s
	case 'i':
		return fmt.Sprintf("%d", v.i)
	case 'f':
		return fmt.Sprintf("%g", v.f)
	case 'b':
		return fmt.Sprintf("%t", v.b)
	default:
		return ""
	}
}

func (v AgentDataValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case 's':
		return json.Marshal(v.s)
	case 'i':
		return json.Marshal(v.i)
	case 'f':
		return json.Marshal(v.f)
	case 'b':
		return json.Marshal(v.b)
	case 'l':
		return json.Marshal(v.l)
	case 'm':
		return json.Marshal(v.m)
	default:
		return []byte("null"), nil
	}
}

func (v *AgentDataValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = fromInterface(raw)
	return nil
}

func fromInterface(raw interface{}) AgentDataValue {
	switch t := raw.(type) {
	case nil:
		return AgentDataValue{kind: 'n'}
	case string:
		return StringValue(t)
	case bool:
		return BoolValue(t)
	case float64:
		if t == float64(int(t)) {
			return IntValue(int(t))
		}
		return FloatValue(t)
	case []interface{}:
		list := make([]string, 0, len(t))
		allStrings := true
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				allStrings = false
				break
			}
			list = append(list, s)
		}
		if allStrings {
			return ListValue(list)
		}
		// Mixed-type arrays collapse to a map keyed by index so round-trip
		// stays lossless without introducing a third composite kind.
		m := NewAgentData()
		for i, e := range t {
			m[fmt.Sprintf("%d", i)] = fromInterface(e)
		}
		return MapValue(m)
	case map[string]interface{}:
		m := NewAgentData()
		for k, e := range t {
			m[k] = fromInterface(e)
		}
		return MapValue(m)
	default:
		return AgentDataValue{kind: 'n'}
	}
}

// Merge returns a new AgentData with entries of override replacing entries
// of base on key collision — the "input wins" rule used throughout workflow
// context merging (globalContext ⊕ inputContext, context ⊕ step parameters).
func Merge(base, override AgentData) AgentData {
	out := NewAgentData()
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy safe for independent mutation of top-level keys.
func (d AgentData) Clone() AgentData {
	out := make(AgentData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
