package engine

import (
	"fmt"

	"plus-ev-alerts/internal/odds"
)

// Evaluate computes the implied probabilities, predicted probability,
// break-even odds and expected value of a unit stake for one merged line.
// A predicted probability outside (0, 1) yields ErrInvalidProbability.
func Evaluate(line odds.MergedLine, predictor Predictor) (odds.Opportunity, error) {
	mean := 1 / line.AvgOdds
	p, err := predictor.Predict(mean)
	if err != nil {
		return odds.Opportunity{}, fmt.Errorf("%w: %v", ErrInvalidProbability, err)
	}
	if !(p > 0 && p < 1) {
		return odds.Opportunity{}, fmt.Errorf("%w: got %v for %s %s", ErrInvalidProbability, p, line.Matchup(), line.Outcome)
	}

	return odds.Opportunity{
		MergedLine:             line,
		MeanImpliedProbability: mean,
		BestImpliedProbability: 1 / line.DecimalOdds,
		PredictedProbability:   p,
		Thresh:                 1 / p,
		ExpectedValue:          ExpectedValue(p, line.DecimalOdds),
	}, nil
}

// Unevaluated keeps a merged line whose predicted probability was unusable.
// Thresh is zero, which marks it as not evaluated.
func Unevaluated(line odds.MergedLine) odds.Opportunity {
	return odds.Opportunity{
		MergedLine:             line,
		MeanImpliedProbability: 1 / line.AvgOdds,
		BestImpliedProbability: 1 / line.DecimalOdds,
	}
}

// ExpectedValue of a unit stake at decimalOdds when the win probability is p.
func ExpectedValue(p, decimalOdds float64) float64 {
	return p*(decimalOdds-1) - (1 - p)
}

// PositiveEV keeps the evaluated opportunities whose best price beats the
// break-even price.
func PositiveEV(opps []odds.Opportunity) []odds.Opportunity {
	out := make([]odds.Opportunity, 0)
	for _, o := range opps {
		if o.Thresh > 0 && o.DecimalOdds > o.Thresh {
			out = append(out, o)
		}
	}
	return out
}
