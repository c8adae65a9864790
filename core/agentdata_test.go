package core

import (
	"encoding/json"
	"testing"
)

func TestAgentDataJSONRoundTrip(t *testing.T) {
	original := AgentData{
		"name":    StringValue("kolosal"),
		"count":   IntValue(42),
		"ratio":   FloatValue(3.5),
		"enabled": BoolValue(true),
		"tags":    ListValue([]string{"a", "b", "c"}),
		"nested": MapValue(AgentData{
			"inner": StringValue("value"),
		}),
	}

	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var roundTripped AgentData
	if err := json.Unmarshal(raw, &roundTripped); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for k, v := range original {
		got, ok := roundTripped[k]
		if !ok {
			t.Fatalf("missing key %q after round trip", k)
		}
		if got.Kind() != v.Kind() {
			t.Fatalf("key %q: kind changed %s -> %s", k, v.Kind(), got.Kind())
		}
	}

	name, ok := roundTripped["name"].String()
	if !ok || name != "kolosal" {
		t.Fatalf("name mismatch: %q ok=%v", name, ok)
	}
	count, ok := roundTripped["count"].Int()
	if !ok || count != 42 {
		t.Fatalf("count mismatch: %d ok=%v", count, ok)
	}
	tags, ok := roundTripped["tags"].StringList()
	if !ok || len(tags) != 3 || tags[0] != "a" {
		t.Fatalf("tags mismatch: %v ok=%v", tags, ok)
	}
}

func TestMergeInputWinsOnCollision(t *testing.T) {
	base := AgentData{"a": StringValue("base"), "b": StringValue("base")}
	override := AgentData{"b": StringValue("override"), "c": StringValue("override")}

	merged := Merge(base, override)

	if v, _ := merged["a"].String(); v != "base" {
		t.Errorf("expected a=base, got %q", v)
	}
	if v, _ := merged["b"].String(); v != "override" {
		t.Errorf("expected b=override, got %q", v)
	}
	if v, _ := merged["c"].String(); v != "override" {
		t.Errorf("expected c=override, got %q", v)
	}
}

func TestAgentDataValueAsString(t *testing.T) {
	if s := IntValue(7).AsString(); s != "7" {
		t.Errorf("IntValue.AsString() = %q, want 7", s)
	}
	if s := BoolValue(true).AsString(); s != "true" {
		t.Errorf("BoolValue.AsString() = %q, want true", s)
	}
}
