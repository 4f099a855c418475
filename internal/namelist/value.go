// SPDX-License-Identifier: AGPL-3.0-or-later

package namelist

import (
	"regexp"
	"strings"
)

// Kind classifies a namelist value.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindNumber
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	default:
		return "string"
	}
}

const (
	True  = ".TRUE."
	False = ".FALSE."
)

// numberPattern matches a floating point or integer literal.
const numberPattern = `[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`

var (
	numberExact  = regexp.MustCompile(`^` + numberPattern + `$`)
	numberPrefix = regexp.MustCompile(`^` + numberPattern)
)

// Value is a classified namelist value. Raw holds the canonical text:
// booleans are upper-cased, everything else is kept verbatim.
type Value struct {
	Raw  string
	Kind Kind
}

// Classify types a raw string once, at the point it enters a namelist.
func Classify(raw string) Value {
	switch strings.ToLower(raw) {
	case ".true.":
		return Value{Raw: True, Kind: KindBool}
	case ".false.":
		return Value{Raw: False, Kind: KindBool}
	}
	if numberExact.MatchString(raw) {
		return Value{Raw: raw, Kind: KindNumber}
	}
	return Value{Raw: raw, Kind: KindString}
}

// String is a shorthand for a string-kinded value.
func String(s string) Value { return Value{Raw: s, Kind: KindString} }

// Format renders the value as it appears in a namelist file.
func (v Value) Format() string {
	switch v.Kind {
	case KindBool, KindNumber:
		return v.Raw
	default:
		return `"` + v.Raw + `"`
	}
}

// Bool returns the boolean value and whether v is a boolean.
func (v Value) Bool() (bool, bool) {
	if v.Kind != KindBool {
		return false, false
	}
	return v.Raw == True, true
}

// LooksNumeric reports whether s starts with a numeric literal. Values such
// as "36x16" count as numeric for data-file discovery.
func LooksNumeric(s string) bool {
	return numberPrefix.MatchString(s)
}
