// Package models defines the value and record types produced by the
// extraction engine.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the variants of a Value.
type Kind uint8

const (
	// KindScalar holds a single extracted payload: a number, a string,
	// an ordered string profile, or a tide-event sequence.
	KindScalar Kind = iota
	// KindMapping holds named sub-values, e.g. regex capture groups.
	KindMapping
	// KindMissing marks data that is legitimately absent from the page.
	KindMissing
	// KindFault marks data that was present but could not be extracted.
	KindFault
)

// FaultKind classifies extraction failures.
type FaultKind string

const (
	FaultConfig  FaultKind = "config_error"
	FaultLocator FaultKind = "locator_not_found"
	FaultParse   FaultKind = "parse_error"
	FaultNoMatch FaultKind = "no_match"
)

// Value is the result of applying one extraction strategy to one node.
// It is a closed tagged union: scalar, mapping, missing, or fault.
// Values are immutable; construct them with Scalar, Mapping, Missing,
// or Fault.
type Value struct {
	kind    Kind
	scalar  any
	mapping map[string]Value
	reason  string
	fault   FaultKind
	detail  string
}

// Scalar wraps a payload value. Accepted payloads are float64, string,
// []string, and []TideEvent; anything else is stored as-is and
// serialized with encoding/json defaults.
func Scalar(v any) Value {
	return Value{kind: KindScalar, scalar: v}
}

// Mapping wraps named sub-values.
func Mapping(m map[string]Value) Value {
	return Value{kind: KindMapping, mapping: m}
}

// Missing marks an absent datum with a short machine-readable reason.
func Missing(reason string) Value {
	return Value{kind: KindMissing, reason: reason}
}

// Fault marks a failed extraction with its kind and a human-readable detail.
func Fault(kind FaultKind, detail string) Value {
	return Value{kind: KindFault, fault: kind, detail: detail}
}

// Kind reports the variant of the value.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether the value marks absent data.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// MissingReason returns the reason recorded by Missing, or "".
func (v Value) MissingReason() string { return v.reason }

// Fault returns the fault kind and detail; ok is false unless the value
// is a fault.
func (v Value) Fault() (kind FaultKind, detail string, ok bool) {
	if v.kind != KindFault {
		return "", "", false
	}
	return v.fault, v.detail, true
}

// Float returns the scalar as a float64 when it holds one.
func (v Value) Float() (float64, bool) {
	if v.kind != KindScalar {
		return 0, false
	}
	f, ok := v.scalar.(float64)
	return f, ok
}

// Text returns the scalar as a string when it holds one.
func (v Value) Text() (string, bool) {
	if v.kind != KindScalar {
		return "", false
	}
	s, ok := v.scalar.(string)
	return s, ok
}

// Strings returns the scalar as an ordered string profile when it holds one.
func (v Value) Strings() ([]string, bool) {
	if v.kind != KindScalar {
		return nil, false
	}
	s, ok := v.scalar.([]string)
	return s, ok
}

// Tides returns the scalar as a tide-event sequence when it holds one.
func (v Value) Tides() ([]TideEvent, bool) {
	if v.kind != KindScalar {
		return nil, false
	}
	t, ok := v.scalar.([]TideEvent)
	return t, ok
}

// Map returns the named sub-values of a mapping.
func (v Value) Map() (map[string]Value, bool) {
	if v.kind != KindMapping {
		return nil, false
	}
	return v.mapping, true
}

// Status returns a short label for metrics and storage: "ok" for scalars
// and mappings, "missing", or the fault kind.
func (v Value) Status() string {
	switch v.kind {
	case KindMissing:
		return "missing"
	case KindFault:
		return string(v.fault)
	default:
		return "ok"
	}
}

// Cell renders the value for a single tabular cell. Missing data renders
// as an empty cell, faults as "#<kind>" so they stay visible downstream.
func (v Value) Cell() string {
	switch v.kind {
	case KindMissing:
		return ""
	case KindFault:
		return "#" + string(v.fault)
	case KindMapping:
		data, err := json.Marshal(v)
		if err != nil {
			return "#" + string(FaultParse)
		}
		return string(data)
	}

	switch s := v.scalar.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case string:
		return s
	case []string:
		return strings.Join(s, "|")
	case []TideEvent:
		parts := make([]string, len(s))
		for i, e := range s {
			parts[i] = fmt.Sprintf("%s %s", e.Time, e.Kind)
		}
		return strings.Join(parts, "|")
	default:
		return fmt.Sprint(s)
	}
}

type faultJSON struct {
	Kind   FaultKind `json:"kind"`
	Detail string    `json:"detail"`
}

// MarshalJSON renders scalars and mappings as their raw value, missing
// data as null, and faults as {"error": {"kind": ..., "detail": ...}}.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindMissing:
		return []byte("null"), nil
	case KindFault:
		return json.Marshal(map[string]faultJSON{
			"error": {Kind: v.fault, Detail: v.detail},
		})
	case KindMapping:
		return json.Marshal(v.mapping)
	default:
		return json.Marshal(v.scalar)
	}
}
