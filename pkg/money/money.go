// Package money provides monetary parsing and rounding utilities for the
// cart platform. Prices arrive from upstream catalogs in possibly
// locale-formatted form ("12,90", "12.90", "1 299,00 €") and are parsed
// defensively into minor units.
package money

import (
	"math"
	"strings"
)

// RoundHalfUp rounds value to the specified decimals using HALF-UP mode
func RoundHalfUp(value float64, decimals int) float64 {
	mult := math.Pow(10, float64(decimals))
	if value >= 0 {
		return math.Floor(value*mult+0.5) / mult
	}
	return -math.Floor(-value*mult+0.5) / mult
}

// MinorFromMajor converts a major-unit amount to minor units (cents), HALF-UP.
func MinorFromMajor(major float64) int64 {
	if major >= 0 {
		return int64(major*100.0 + 0.5)
	}
	return -int64(-major*100.0 + 0.5)
}

// MajorFromMinor converts minor units (cents) to a major-unit amount.
func MajorFromMinor(minor int64) float64 {
	return float64(minor) / 100.0
}

// ParseAmount parses a possibly locale-formatted amount string into a
// major-unit float. Both "," and "." are accepted as decimal separators;
// currency symbols, spaces and other noise are stripped. The last
// separator in the string is treated as the decimal point, earlier ones
// as grouping. Unparseable input yields 0.
func ParseAmount(raw string) float64 {
	cleaned := make([]rune, 0, len(raw))
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			cleaned = append(cleaned, r)
		case r == ',' || r == '.':
			cleaned = append(cleaned, r)
		case r == '-' && len(cleaned) == 0:
			cleaned = append(cleaned, r)
		}
	}
	s := string(cleaned)
	if s == "" || s == "-" {
		return 0
	}

	// The last separator wins as the decimal point; all others are grouping.
	lastSep := strings.LastIndexAny(s, ",.")
	if lastSep >= 0 {
		intPart := strings.Map(dropSeparators, s[:lastSep])
		fracPart := strings.Map(dropSeparators, s[lastSep+1:])
		s = intPart + "." + fracPart
	}

	return atofSafe(s)
}

// ParseAmountMinor parses a locale-formatted amount directly into minor units.
func ParseAmountMinor(raw string) int64 {
	return MinorFromMajor(ParseAmount(raw))
}

func dropSeparators(r rune) rune {
	if r == ',' || r == '.' {
		return -1
	}
	return r
}

// atofSafe parses a normalized decimal string without error propagation;
// malformed input yields 0.
func atofSafe(s string) float64 {
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	var intPart, fracPart float64
	var fracDiv float64 = 1
	seenDot := false
	for _, r := range s {
		if r == '.' {
			if seenDot {
				return 0
			}
			seenDot = true
			continue
		}
		if r < '0' || r > '9' {
			return 0
		}
		d := float64(r - '0')
		if seenDot {
			fracDiv *= 10
			fracPart += d / fracDiv
		} else {
			intPart = intPart*10 + d
		}
	}
	v := intPart + fracPart
	if neg {
		return -v
	}
	return v
}
