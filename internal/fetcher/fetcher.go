package fetcher

import (
	"context"

	"plus-ev-alerts/internal/odds"
)

// QuoteSource retrieves current sportsbook prices for the given sports.
type QuoteSource interface {
	FetchQuotes(ctx context.Context, sports []string) ([]odds.Quote, error)
}

// ConsensusSource retrieves market-wide average prices.
type ConsensusSource interface {
	FetchConsensus(ctx context.Context) ([]odds.ConsensusQuote, error)
}

// TeamSource retrieves canonical team names.
type TeamSource interface {
	FetchTeams(ctx context.Context) ([]odds.TeamName, error)
}
