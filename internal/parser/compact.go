// Package parser turns display-style dashboard text and loosely typed JSON
// into numbers. Every helper degrades to 0 instead of failing.
package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	compactPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)([KMB])?`)
	nonNumeric     = regexp.MustCompile(`[^\d.]`)
	leadingFloat   = regexp.MustCompile(`^(\d+(?:\.\d*)?|\.\d+)`)
)

// magnitude suffixes are applied as decimal exponents so "217.7K" parses to
// exactly 217700 rather than 217.7*1000.
var magnitudes = map[string]string{
	"K": "e3",
	"M": "e6",
	"B": "e9",
}

// ParseCompactNumber parses "1.2K", "3.4M", "5B" or a bare number.
func ParseCompactNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	m := compactPattern.FindStringSubmatch(s)
	if m == nil {
		return stripAndParse(s)
	}

	v, err := strconv.ParseFloat(m[1]+magnitudes[strings.ToUpper(m[2])], 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseCurrencyNumber parses "$23.48" style amounts.
func ParseCurrencyNumber(s string) float64 {
	return stripAndParse(s)
}

// ParsePercentage parses "60%" style values.
func ParsePercentage(s string) float64 {
	return stripAndParse(s)
}

// stripAndParse drops everything except digits and dots, then parses the
// longest leading decimal ("1.2.3" -> 1.2).
func stripAndParse(s string) float64 {
	if s == "" {
		return 0
	}
	m := leadingFloat.FindString(nonNumeric.ReplaceAllString(s, ""))
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}
