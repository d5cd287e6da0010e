/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package tracker

import (
	"math"
	"strings"
	"unicode"
)

func isNumberSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', ' ', '\u00a0', '\u2028', '\u2029', '\ufeff':
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func trimNumberSpace(s string) string {
	return strings.TrimFunc(s, isNumberSpace)
}

func isDigitIn(c byte, base int) bool {
	return digitValue(c) < base
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return 36
}

func allDigits(s string, base int) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigitIn(s[i], base) {
			return false
		}
	}
	return true
}

// looksNumeric reports whether s is a numeric literal under the loose grammar
// score fields have always accepted: surrounding whitespace, optional sign,
// decimals, exponents, Infinity, and unsigned 0x/0o/0b literals. A string made
// only of whitespace counts as numeric here.
func looksNumeric(s string) bool {
	s = trimNumberSpace(s)
	if s == "" {
		return true
	}

	if len(s) > 2 && s[0] == '0' {
		switch s[1] {
		case 'x', 'X':
			return allDigits(s[2:], 16)
		case 'o', 'O':
			return allDigits(s[2:], 8)
		case 'b', 'B':
			return allDigits(s[2:], 2)
		}
	}

	if s[0] == '+' || s[0] == '-' {
		s = s[1:]
	}
	if s == "Infinity" {
		return true
	}

	mantissa, exponent, hasExp := strings.Cut(s, "e")
	if !hasExp {
		mantissa, exponent, hasExp = strings.Cut(s, "E")
	}
	if hasExp {
		if exponent != "" && (exponent[0] == '+' || exponent[0] == '-') {
			exponent = exponent[1:]
		}
		if !allDigits(exponent, 10) {
			return false
		}
	}

	whole, frac, hasPoint := strings.Cut(mantissa, ".")
	if !hasPoint {
		return allDigits(whole, 10)
	}
	if whole == "" && frac == "" {
		return false
	}
	return (whole == "" || allDigits(whole, 10)) && (frac == "" || allDigits(frac, 10))
}

// leadingInt parses the integer at the start of s: leading whitespace, an
// optional sign, an optional 0x prefix selecting base 16, then the longest run
// of digits. Trailing text is ignored. It fails when no digit is found or the
// value does not fit in an int64.
func leadingInt(s string) (int, bool) {
	s = strings.TrimLeftFunc(s, isNumberSpace)

	negative := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		negative = s[0] == '-'
		s = s[1:]
	}

	base := 10
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base = 16
		s = s[2:]
	}

	var value uint64
	digits := 0
	for ; digits < len(s) && isDigitIn(s[digits], base); digits++ {
		d := uint64(digitValue(s[digits]))
		if value > (math.MaxUint64-d)/uint64(base) {
			return 0, false
		}
		value = value*uint64(base) + d
	}
	if digits == 0 {
		return 0, false
	}

	if negative {
		if value > uint64(math.MaxInt64)+1 {
			return 0, false
		}
		return int(-int64(value)), true
	}
	if value > math.MaxInt64 {
		return 0, false
	}
	return int(value), true
}

// parseScore applies the two-step check used for committed scores: the raw
// text must be non-empty and numeric, and the stored value is its leading
// integer ("12.9" stores 12).
func parseScore(raw string) (int, bool) {
	if raw == "" || !looksNumeric(raw) {
		return 0, false
	}
	return leadingInt(raw)
}
