package engine

import "plus-ev-alerts/internal/odds"

// KellyFraction returns the share of bankroll to stake at decimalOdds when the
// win probability is p, scaled by size (0.5 for half Kelly). Negative edges
// floor at zero since bets cannot be laid. decimalOdds must exceed 1; quotes
// enforce that on construction.
func KellyFraction(p, decimalOdds, size float64) float64 {
	b := decimalOdds - 1
	f := size * (p*b - (1 - p)) / b
	if f < 0 {
		return 0
	}
	return f
}

// StakeSizer annotates opportunities with full and fractional Kelly stakes.
type StakeSizer struct {
	Full float64
	Half float64
}

// DefaultStakeSizer sizes at full and half Kelly.
var DefaultStakeSizer = StakeSizer{Full: 1.0, Half: 0.5}

// Size fills Kelly and HalfKelly in place.
func (s StakeSizer) Size(opps []odds.Opportunity) {
	for i := range opps {
		o := &opps[i]
		o.Kelly = KellyFraction(o.PredictedProbability, o.DecimalOdds, s.Full)
		o.HalfKelly = KellyFraction(o.PredictedProbability, o.DecimalOdds, s.Half)
	}
}
