package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestValueKind_IsValid(t *testing.T) {
	tests := []struct {
		kind     ValueKind
		expected bool
	}{
		{ValueText, true},
		{ValueNumber, true},
		{ValueBool, true},
		{ValueDate, true},
		{ValueEntityRef, true},
		{ValueKind("string"), false},
		{ValueKind(""), false},
	}

	for _, tt := range tests {
		name := string(tt.kind)
		if name == "" {
			name = "empty"
		}
		t.Run(name, func(t *testing.T) {
			if got := tt.kind.IsValid(); got != tt.expected {
				t.Errorf("ValueKind.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestValue_Validate(t *testing.T) {
	tests := []struct {
		name    string
		value   Value
		wantErr bool
	}{
		{"text", TextValue("123 Main St"), false},
		{"number", NumberValue(42.5), false},
		{"boolean", BoolValue(true), false},
		{"date", DateValue(time.Now()), false},
		{"entity_ref", EntityRefValue(uuid.New()), false},
		{"text without payload", Value{Kind: ValueText}, true},
		{"number without payload", Value{Kind: ValueNumber}, true},
		{"entity_ref without payload", Value{Kind: ValueEntityRef}, true},
		{"unknown kind", Value{Kind: ValueKind("blob")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.value.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Value.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValue_Equal(t *testing.T) {
	id := uuid.New()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		a, b     Value
		expected bool
	}{
		{"same text", TextValue("a"), TextValue("a"), true},
		{"different text", TextValue("a"), TextValue("b"), false},
		{"same number", NumberValue(1850), NumberValue(1850), true},
		{"different number", NumberValue(1850), NumberValue(1900), false},
		{"same bool", BoolValue(true), BoolValue(true), true},
		{"same date", DateValue(date), DateValue(date.In(time.FixedZone("X", 3600))), true},
		{"same entity ref", EntityRefValue(id), EntityRefValue(id), true},
		{"different entity ref", EntityRefValue(id), EntityRefValue(uuid.New()), false},
		{"kind mismatch", TextValue("1850"), NumberValue(1850), false},
		{"missing payload", Value{Kind: ValueText}, TextValue("a"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.expected {
				t.Errorf("Value.Equal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestValue_String(t *testing.T) {
	id := uuid.New()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		value    Value
		expected string
	}{
		{"text", TextValue("Peoria Lakes"), "Peoria Lakes"},
		{"whole number", NumberValue(48), "48"},
		{"fractional number", NumberValue(2.5), "2.5"},
		{"bool", BoolValue(false), "false"},
		{"date", DateValue(date), "2026-03-01"},
		{"entity ref", EntityRefValue(id), id.String()},
		{"missing payload", Value{Kind: ValueText}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.String(); got != tt.expected {
				t.Errorf("Value.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestValue_JSONRoundTrip_OmitsInactivePayloads(t *testing.T) {
	v := NumberValue(1850)

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(raw) != 2 {
		t.Errorf("expected only kind and number fields, got %v", raw)
	}

	var decoded Value
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !decoded.Equal(v) {
		t.Errorf("round trip changed value: %+v != %+v", decoded, v)
	}
}
