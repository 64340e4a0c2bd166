// Package event models the flat key/value context that accompanies a business
// event. Values are tagged scalars; numbers are fixed-point decimals.
package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Kind tags the type held by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	}
	return "invalid"
}

// ErrNotScalar is returned when decoding JSON that is not a string, number or boolean.
var ErrNotScalar = errors.New("event: value must be a string, number or boolean")

// Value is a string, decimal number or boolean.
type Value struct {
	kind Kind
	str  string
	num  decimal.Decimal
	b    bool
}

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric value.
func Number(d decimal.Decimal) Value { return Value{kind: KindNumber, num: d} }

// Int returns a numeric value holding i.
func Int(i int64) Value { return Number(decimal.NewFromInt(i)) }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind reports the value's tag.
func (v Value) Kind() Kind { return v.kind }

// Equal compares kind and content. Numbers compare by value, so 1 equals 1.00.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num.Equal(o.num)
	case KindBool:
		return v.b == o.b
	}
	return false
}

// Decimal returns the numeric content. Strings holding a plain decimal literal
// are accepted so that amounts serialised as "50000.00" still resolve.
func (v Value) Decimal() (decimal.Decimal, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		d, err := decimal.NewFromString(v.str)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	}
	return decimal.Decimal{}, false
}

// Int64 returns the content as an integer when it holds a whole number.
func (v Value) Int64() (int64, bool) {
	d, ok := v.Decimal()
	if !ok || !d.IsInteger() {
		return 0, false
	}
	if d.GreaterThan(decimal.NewFromInt(1<<62)) || d.LessThan(decimal.NewFromInt(-(1 << 62))) {
		return 0, false
	}
	return d.IntPart(), true
}

// Text returns the string content.
func (v Value) Text() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num.String()
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	return "<invalid>"
}

// MarshalJSON encodes numbers as bare JSON numbers.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return []byte(v.num.String()), nil
	case KindBool:
		return json.Marshal(v.b)
	}
	return nil, fmt.Errorf("event: marshal %s value", v.kind)
}

// UnmarshalJSON accepts a JSON string, number or boolean.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := fromRaw(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func fromRaw(raw any) (Value, error) {
	switch t := raw.(type) {
	case string:
		return String(t), nil
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return Value{}, fmt.Errorf("event: number %q: %w", t, err)
		}
		return Number(d), nil
	case bool:
		return Bool(t), nil
	}
	return Value{}, ErrNotScalar
}
