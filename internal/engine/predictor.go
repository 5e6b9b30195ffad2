package engine

import (
	"fmt"
	"math"
)

// Predictor estimates the true win probability of an outcome from the
// probability implied by the consensus price.
type Predictor interface {
	Predict(meanImplied float64) (float64, error)
}

// ConstantAlphaPredictor assumes a fixed edge: p = meanImplied - Alpha.
type ConstantAlphaPredictor struct {
	Alpha float64
}

// Predict implements Predictor.
func (c ConstantAlphaPredictor) Predict(meanImplied float64) (float64, error) {
	return meanImplied - c.Alpha, nil
}

// ProbabilityModel is a trained model mapping market probability to a win probability.
type ProbabilityModel interface {
	Probability(meanImplied float64) (float64, error)
}

// ExternalModelPredictor delegates to a ProbabilityModel.
type ExternalModelPredictor struct {
	Model ProbabilityModel
}

// Predict implements Predictor.
func (e ExternalModelPredictor) Predict(meanImplied float64) (float64, error) {
	if e.Model == nil {
		return 0, ErrNoPredictor
	}
	return e.Model.Probability(meanImplied)
}

// LogisticModel recalibrates a market probability in logit space:
// p = sigmoid(Intercept + Slope*logit(x)).
type LogisticModel struct {
	Intercept float64 `toml:"intercept"`
	Slope     float64 `toml:"slope"`
}

// Probability implements ProbabilityModel.
func (m LogisticModel) Probability(x float64) (float64, error) {
	if !(x > 0 && x < 1) {
		return 0, fmt.Errorf("logistic model input %v outside (0, 1)", x)
	}
	z := m.Intercept + m.Slope*math.Log(x/(1-x))
	return 1 / (1 + math.Exp(-z)), nil
}

var (
	_ Predictor        = ConstantAlphaPredictor{}
	_ Predictor        = ExternalModelPredictor{}
	_ ProbabilityModel = LogisticModel{}
)
