package storage

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"plus-ev-alerts/internal/odds"
)

// RecommendedBet is an archived opportunity with the time it was first recommended.
type RecommendedBet struct {
	odds.Opportunity
	RecommendedAt time.Time `json:"recommended_at"`
}

// encodeOdds renders a price as an exact decimal string for NUMERIC columns.
func encodeOdds(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func decodeOdds(column, s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", column, err)
	}
	return d.InexactFloat64(), nil
}
