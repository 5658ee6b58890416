// Package table parses submission and ground-truth files into keyed tables
// of values.
package table

import (
	"math"
	"strconv"
	"strings"
)

// ValueKind tags a Value.
type ValueKind uint8

const (
	Numeric ValueKind = iota + 1
	Categorical
)

func (k ValueKind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	default:
		return "invalid"
	}
}

// Value is a cell resolved once at parse time: either a finite number or a
// raw string label.
type Value struct {
	kind ValueKind
	num  float64
	str  string
}

// Num builds a numeric value.
func Num(f float64) Value { return Value{kind: Numeric, num: f} }

// Cat builds a categorical value.
func Cat(s string) Value { return Value{kind: Categorical, str: s} }

// Coerce trims s and returns a numeric value when it parses as a finite
// float, otherwise the trimmed string as a categorical value.
func Coerce(s string) Value {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return Num(f)
	}
	return Cat(s)
}

// Kind returns the value tag.
func (v Value) Kind() ValueKind { return v.kind }

// Float returns the number and whether v is numeric.
func (v Value) Float() (float64, bool) {
	return v.num, v.kind == Numeric
}

// Class returns the discrete class label of v. Numbers are rounded to the
// nearest integer so 1, 1.0 and "1" name the same class.
func (v Value) Class() string {
	if v.kind == Numeric {
		r := math.Round(v.num)
		if r == 0 {
			r = 0 // drop the sign of -0
		}
		return strconv.FormatFloat(r, 'f', -1, 64)
	}
	return v.str
}

// String renders the value for messages.
func (v Value) String() string {
	if v.kind == Numeric {
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	}
	return v.str
}

// normalizeKey canonicalizes a row key so that "1", "1.0" and JSON 1 agree.
func normalizeKey(s string) string {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return s
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}
