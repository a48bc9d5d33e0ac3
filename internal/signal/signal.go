package signal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// IDSeparator separates the adapter prefix from the platform-local name.
const IDSeparator = ":"

// Kind identifies the scalar type held by a Value.
type Kind uint8

const (
	// KindNumber is a numeric value (float64).
	KindNumber Kind = iota + 1

	// KindString is a textual value (e.g. "OPEN", "ON").
	KindString
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		return "invalid"
	}
}

// Value is a normalised scalar: either a number or a string.
//
// The zero Value is invalid; construct with Number, String or ParseValue.
type Value struct {
	kind Kind
	num  float64
	str  string
}

// Number returns a numeric Value.
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// String returns a string Value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// ParseValue converts a raw platform state into a Value.
// Anything that parses as a float becomes a number, everything else a string.
func ParseValue(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return Number(f)
	}
	return String(raw)
}

// Kind returns the scalar kind.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether the value was constructed (not the zero Value).
func (v Value) IsValid() bool { return v.kind == KindNumber || v.kind == KindString }

// IsNumber reports whether the value is numeric.
func (v Value) IsNumber() bool { return v.kind == KindNumber }

// Float returns the numeric value and true, or 0 and false for strings.
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Text returns the string form of the value.
func (v Value) Text() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return v.str
	default:
		return ""
	}
}

// String implements fmt.Stringer.
func (v Value) String() string { return v.Text() }

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	default:
		return true
	}
}

// MarshalJSON encodes the value as a bare JSON number or string.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a bare JSON number or string.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("signal value must be a number or string: %w", err)
	}
	*v = Number(f)
	return nil
}

// Signal is the universal unit of state.
type Signal struct {
	// ID is namespaced by adapter prefix, e.g. "oh:LivingRoom_Temperature".
	ID string `json:"id"`

	// Value is the normalised scalar.
	Value Value `json:"value"`

	// Unit is set only for numeric values with a physical unit.
	Unit string `json:"unit,omitempty"`

	// Timestamp is the instant of the last known change.
	Timestamp time.Time `json:"timestamp"`

	// Source is the owning adapter's name.
	Source string `json:"source"`
}

// Equal reports whether value, unit and timestamp match.
// ID and Source are identity and are not compared.
func (s Signal) Equal(o Signal) bool {
	return s.Value.Equal(o.Value) && s.Unit == o.Unit && s.Timestamp.Equal(o.Timestamp)
}

// Prefix returns the adapter prefix part of the ID.
func (s Signal) Prefix() string {
	prefix, _, _ := SplitID(s.ID)
	return prefix
}

// ID builds a namespaced signal id.
//
// Example:
//
//	signal.ID("oh", "LivingRoom_Temperature") // "oh:LivingRoom_Temperature"
func ID(prefix, local string) string {
	return prefix + IDSeparator + local
}

// SplitID splits an id into prefix and local name.
// ok is false when the id has no prefix or an empty local part.
func SplitID(id string) (prefix, local string, ok bool) {
	prefix, local, found := strings.Cut(id, IDSeparator)
	if !found || prefix == "" || local == "" {
		return "", id, false
	}
	return prefix, local, true
}

// HasPrefix reports whether id belongs to the given adapter prefix.
func HasPrefix(id, prefix string) bool {
	p, _, ok := SplitID(id)
	return ok && p == prefix
}
