// Package phone normalizes patient phone numbers and names between their
// raw stored form, the display form shown to operators, and the canonical
// +222 dispatch form required by the messaging channel.
//
// Raw values may carry label artifacts ("Téléphone: 41234567") produced by
// upstream PDF extraction. All functions are pure and total: unrecognized
// input passes through unchanged.
package phone

import (
	"regexp"
	"strings"
)

// CountryCode is the Mauritanian dialing prefix expected by the dispatch API.
const CountryCode = "+222"

var (
	// Longest label first so "Téléphone" is never left half-stripped by "Tél".
	labelRe         = regexp.MustCompile(`(?:Téléphone|Phone|Tél|Tel)[\s:]*`)
	trailingLabelRe = regexp.MustCompile(`(?:Téléphone|Phone|Tél|Tel)[\s:]*$`)
	countryPrefixRe = regexp.MustCompile(`^\+222[\s-]*`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
	dispatchRe      = regexp.MustCompile(`^\+222\d{8}$`)
	groupedRe       = regexp.MustCompile(`^(\+222)(\d{2})(\d{2})(\d{2})(\d{2})$`)
)

// Display strips label artifacts and the country code for on-screen rendering.
func Display(raw string) string {
	if raw == "" {
		return ""
	}
	clean := strings.TrimSpace(labelRe.ReplaceAllString(raw, ""))
	return countryPrefixRe.ReplaceAllString(clean, "")
}

// Dispatch converts a raw phone into the canonical dispatch form, adding the
// country code when absent. Output is either empty or starts with "+".
func Dispatch(raw string) string {
	if raw == "" {
		return ""
	}
	clean := labelRe.ReplaceAllString(raw, "")
	clean = countryPrefixRe.ReplaceAllString(strings.TrimSpace(clean), "")
	clean = whitespaceRe.ReplaceAllString(clean, "")
	if clean != "" && !strings.HasPrefix(clean, "+") {
		clean = CountryCode + clean
	}
	return clean
}

// DisplayName strips label artifacts accidentally concatenated onto a name
// by the upstream extraction.
func DisplayName(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(trailingLabelRe.ReplaceAllString(raw, ""))
}

// IsDispatchable reports whether a phone already matches the +222XXXXXXXX
// form the messaging channel accepts.
func IsDispatchable(p string) bool {
	return dispatchRe.MatchString(p)
}

// Grouped renders a dispatchable number as "+222 XX XX XX XX" for history
// views; anything else passes through unchanged.
func Grouped(p string) string {
	return groupedRe.ReplaceAllString(p, "$1 $2 $3 $4 $5")
}
