package models

import (
	"encoding/json"
	"testing"
)

func TestValueStatus(t *testing.T) {
	tests := []struct {
		name     string
		value    Value
		expected string
	}{
		{name: "scalar", value: Scalar(12.3), expected: "ok"},
		{name: "mapping", value: Mapping(map[string]Value{"a": Scalar("x")}), expected: "ok"},
		{name: "missing", value: Missing("no_data"), expected: "missing"},
		{name: "parse fault", value: Fault(FaultParse, "bad number"), expected: "parse_error"},
		{name: "locator fault", value: Fault(FaultLocator, "no node"), expected: "locator_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.Status(); got != tt.expected {
				t.Errorf("Status() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestValueCell(t *testing.T) {
	tests := []struct {
		name     string
		value    Value
		expected string
	}{
		{name: "float", value: Scalar(12.3), expected: "12.3"},
		{name: "integral float", value: Scalar(12.0), expected: "12"},
		{name: "string", value: Scalar("06:12"), expected: "06:12"},
		{name: "profile", value: Scalar([]string{"25", "", "80"}), expected: "25||80"},
		{
			name: "tides",
			value: Scalar([]TideEvent{
				{Time: "06:10", Kind: TideHigh},
				{Time: "09:30", Kind: TideLow},
			}),
			expected: "06:10 high|09:30 low",
		},
		{name: "missing", value: Missing("no_data"), expected: ""},
		{name: "fault", value: Fault(FaultNoMatch, "regex"), expected: "#no_match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.Cell(); got != tt.expected {
				t.Errorf("Cell() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestValueMarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		value    Value
		expected string
	}{
		{name: "float", value: Scalar(48.1), expected: "48.1"},
		{name: "string", value: Scalar("06:12"), expected: `"06:12"`},
		{name: "missing", value: Missing("no_data"), expected: "null"},
		{
			name:     "fault",
			value:    Fault(FaultParse, "bad"),
			expected: `{"error":{"kind":"parse_error","detail":"bad"}}`,
		},
		{
			name: "mapping",
			value: Mapping(map[string]Value{
				"sunrise": Scalar("06:12"),
			}),
			expected: `{"sunrise":"06:12"}`,
		},
		{
			name: "tides",
			value: Scalar([]TideEvent{
				{Time: "06:10", Kind: TideHigh},
			}),
			expected: `[{"time":"06:10","kind":"high"}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.value)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(data) != tt.expected {
				t.Errorf("marshal = %s, want %s", data, tt.expected)
			}
		})
	}
}

func TestValueAccessors(t *testing.T) {
	if f, ok := Scalar(12.3).Float(); !ok || f != 12.3 {
		t.Fatalf("Float() = %v, %v; want 12.3, true", f, ok)
	}
	if _, ok := Scalar("text").Float(); ok {
		t.Fatalf("Float() on string scalar should not be ok")
	}
	if s, ok := Scalar("text").Text(); !ok || s != "text" {
		t.Fatalf("Text() = %v, %v; want text, true", s, ok)
	}
	if _, _, ok := Scalar(1.0).Fault(); ok {
		t.Fatalf("Fault() on scalar should not be ok")
	}

	kind, detail, ok := Fault(FaultLocator, "no cell").Fault()
	if !ok || kind != FaultLocator || detail != "no cell" {
		t.Fatalf("Fault() = %v, %q, %v; want locator_not_found, no cell, true", kind, detail, ok)
	}

	if Missing("empty").MissingReason() != "empty" {
		t.Fatalf("MissingReason() should preserve the reason")
	}
}
