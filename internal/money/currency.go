// Package money carries currency codes and rounding helpers. Codes are
// opaque strings: amounts in different currencies are tracked and displayed
// separately, never converted or summed across codes.
package money

import (
	"math"
	"strings"

	"golang.org/x/text/currency"
)

// NormalizeCurrency upper-cases the code and, when it parses as a
// well-formed ISO 4217 unit, canonicalises it. Unknown codes pass through
// unchanged so regional or internal codes keep working.
func NormalizeCurrency(code string) string {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if unit, err := currency.ParseISO(trimmed); err == nil {
		return unit.String()
	}
	return trimmed
}

// Round2 rounds to two decimal places, the precision every ledger amount is
// stored at.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
