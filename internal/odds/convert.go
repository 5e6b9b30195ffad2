package odds

import "math"

// ImpliedProbability converts decimal odds to the probability the price implies.
// Returns 0 for odds that are not above 1.
func ImpliedProbability(decimalOdds float64) float64 {
	if decimalOdds <= 1 {
		return 0
	}
	return 1 / decimalOdds
}

// DecimalToAmerican converts decimal odds to American odds, rounded to the
// nearest integer. 2.50 -> +150, 1.50 -> -200.
func DecimalToAmerican(decimalOdds float64) int {
	if decimalOdds <= 1 {
		return 0
	}
	if decimalOdds >= 2.0 {
		return int(math.Round((decimalOdds - 1) * 100))
	}
	return int(math.Round(-100 / (decimalOdds - 1)))
}

// AmericanToDecimal converts American odds to decimal odds.
func AmericanToDecimal(american int) float64 {
	switch {
	case american > 0:
		return 1 + float64(american)/100
	case american < 0:
		return 1 + 100/math.Abs(float64(american))
	default:
		return 0
	}
}
