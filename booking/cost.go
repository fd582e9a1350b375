/*
cost.go - Duration-based credit cost

PURPOSE:
  Converts a session duration and a credit's time unit into an integer
  credit cost, always rounding up. A 61-minute session against a 60-minute
  unit costs 2 whole credits, never 1.02.

The mismatch helpers flag inexact fits and render the explanation shown to
users (unused minutes, or multi-credit consumption). They are
presentation-adjacent pure formatters; nothing here touches storage.
*/
package booking

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CreditsRequired returns ceil(durationMinutes / unitMinutes), minimum 1.
func CreditsRequired(durationMinutes, unitMinutes int) int {
	if unitMinutes <= 0 || durationMinutes <= 0 {
		return 1
	}
	n := (durationMinutes + unitMinutes - 1) / unitMinutes
	if n < 1 {
		return 1
	}
	return n
}

// HasDurationMismatch reports whether the session duration is not an exact
// multiple of the credit unit.
func HasDurationMismatch(durationMinutes, unitMinutes int) bool {
	if unitMinutes <= 0 {
		return false
	}
	return durationMinutes%unitMinutes != 0
}

// MismatchWarning renders the human-readable explanation for an inexact
// duration/unit fit. Returns "" when the fit is exact. The exact ratio is
// computed with decimals so 95/60 reads "1.58", not a float artifact.
func MismatchWarning(durationMinutes, unitMinutes int) string {
	if !HasDurationMismatch(durationMinutes, unitMinutes) {
		return ""
	}

	ratio := decimal.NewFromInt(int64(durationMinutes)).
		Div(decimal.NewFromInt(int64(unitMinutes))).
		Round(2)

	if durationMinutes < unitMinutes {
		unused := unitMinutes - durationMinutes
		return fmt.Sprintf(
			"a %d-minute session uses one full %d-minute credit; %d minutes go unused",
			durationMinutes, unitMinutes, unused)
	}

	credits := CreditsRequired(durationMinutes, unitMinutes)
	return fmt.Sprintf(
		"a %d-minute session spans %s credit units and consumes %d whole credits",
		durationMinutes, ratio.String(), credits)
}
