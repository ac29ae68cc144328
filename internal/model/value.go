// Package model defines the core domain models used throughout the application.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ValueKind discriminates the scalar variants a Value can hold.
type ValueKind string

// Value kind constants.
const (
	KindString ValueKind = "string"
	KindNumber ValueKind = "number"
	KindBool   ValueKind = "bool"
)

// Value is a scalar that round-trips losslessly through JSON. Columns,
// transfer data and interactive answers are all built from these, so the
// whole process state stays a plain serializable structure.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
}

// String creates a string value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number creates a numeric value.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// Boolean creates a boolean value.
func Boolean(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Truthy interprets the value as a yes/no answer.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num != 0
	default:
		switch strings.ToLower(v.Str) {
		case "yes", "true", "y", "1":
			return true
		}
		return false
	}
}

// Text renders the value as its textual form.
func (v Value) Text() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Str
	}
}

// MarshalJSON emits the raw scalar, not a wrapper object.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	default:
		return json.Marshal(v.Str)
	}
}

// UnmarshalJSON sniffs the scalar type from the raw token.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "true" || trimmed == "false":
		v.Kind = KindBool
		return json.Unmarshal(data, &v.Bool)
	case len(trimmed) > 0 && (trimmed[0] == '-' || (trimmed[0] >= '0' && trimmed[0] <= '9')):
		v.Kind = KindNumber
		return json.Unmarshal(data, &v.Num)
	default:
		v.Kind = KindString
		return json.Unmarshal(data, &v.Str)
	}
}

// ParseCents converts a textual decimal amount to integer minor currency
// units. It accepts both comma and period decimal separators and embedded
// group spaces, since exported bank files disagree on all of these.
func ParseCents(s string) (int64, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == ' ' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if strings.Contains(cleaned, ",") && !strings.Contains(cleaned, ".") {
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}
	if cleaned == "" {
		return 0, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

// CentsToText renders integer cents as a fixed two-decimal string.
func CentsToText(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
