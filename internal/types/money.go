// README: Monetary rounding helpers shared by pricing and settlement.
package types

import "math"

// RoundCents rounds a monetary amount to two decimal places, half away from zero.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// RoundKm keeps kilometre figures at one decimal.
func RoundKm(v float64) float64 {
	return math.Round(v*10) / 10
}
