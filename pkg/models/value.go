package models

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ValueKind discriminates the Value tagged union.
type ValueKind string

const (
	ValueText      ValueKind = "text"
	ValueNumber    ValueKind = "number"
	ValueBool      ValueKind = "boolean"
	ValueDate      ValueKind = "date"
	ValueEntityRef ValueKind = "entity_ref"
)

// IsValid returns true if the value kind is recognized.
func (k ValueKind) IsValid() bool {
	switch k {
	case ValueText, ValueNumber, ValueBool, ValueDate, ValueEntityRef:
		return true
	}
	return false
}

// Value is the tagged union used for fact object values and entity metadata
// values. Exactly one payload field is set, selected by Kind. It serializes to
// JSON (and JSONB) with only the active payload present.
type Value struct {
	Kind     ValueKind  `json:"kind"`
	Text     *string    `json:"text,omitempty"`
	Number   *float64   `json:"number,omitempty"`
	Bool     *bool      `json:"boolean,omitempty"`
	Date     *time.Time `json:"date,omitempty"`
	EntityID *uuid.UUID `json:"entity_id,omitempty"`
}

// TextValue returns a text Value.
func TextValue(s string) Value {
	return Value{Kind: ValueText, Text: &s}
}

// NumberValue returns a numeric Value.
func NumberValue(f float64) Value {
	return Value{Kind: ValueNumber, Number: &f}
}

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value {
	return Value{Kind: ValueBool, Bool: &b}
}

// DateValue returns a date Value.
func DateValue(t time.Time) Value {
	return Value{Kind: ValueDate, Date: &t}
}

// EntityRefValue returns a Value referencing another entity, i.e. a graph edge.
func EntityRefValue(id uuid.UUID) Value {
	return Value{Kind: ValueEntityRef, EntityID: &id}
}

// Validate checks that the kind is known and the matching payload is set.
func (v Value) Validate() error {
	switch v.Kind {
	case ValueText:
		if v.Text == nil {
			return fmt.Errorf("text value has no text payload")
		}
	case ValueNumber:
		if v.Number == nil {
			return fmt.Errorf("number value has no number payload")
		}
	case ValueBool:
		if v.Bool == nil {
			return fmt.Errorf("boolean value has no boolean payload")
		}
	case ValueDate:
		if v.Date == nil {
			return fmt.Errorf("date value has no date payload")
		}
	case ValueEntityRef:
		if v.EntityID == nil {
			return fmt.Errorf("entity_ref value has no entity_id payload")
		}
	default:
		return fmt.Errorf("unknown value kind %q", v.Kind)
	}
	return nil
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ValueText:
		return v.Text != nil && other.Text != nil && *v.Text == *other.Text
	case ValueNumber:
		return v.Number != nil && other.Number != nil && *v.Number == *other.Number
	case ValueBool:
		return v.Bool != nil && other.Bool != nil && *v.Bool == *other.Bool
	case ValueDate:
		return v.Date != nil && other.Date != nil && v.Date.Equal(*other.Date)
	case ValueEntityRef:
		return v.EntityID != nil && other.EntityID != nil && *v.EntityID == *other.EntityID
	}
	return false
}

// String renders the active payload for logs and admin listings.
func (v Value) String() string {
	switch v.Kind {
	case ValueText:
		if v.Text != nil {
			return *v.Text
		}
	case ValueNumber:
		if v.Number != nil {
			return strconv.FormatFloat(*v.Number, 'f', -1, 64)
		}
	case ValueBool:
		if v.Bool != nil {
			return strconv.FormatBool(*v.Bool)
		}
	case ValueDate:
		if v.Date != nil {
			return v.Date.Format("2006-01-02")
		}
	case ValueEntityRef:
		if v.EntityID != nil {
			return v.EntityID.String()
		}
	}
	return ""
}
