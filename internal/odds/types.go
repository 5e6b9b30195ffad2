package odds

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidOdds indicates a price that cannot pay out more than the stake.
var ErrInvalidOdds = errors.New("odds: decimal odds must be greater than 1.0")

// Draw is the canonical outcome name for a drawn event.
const Draw = "draw"

// Quote is one sportsbook's price for one outcome of one event.
type Quote struct {
	ID          string    `json:"id,omitempty"`
	Sport       string    `json:"sport"`
	HomeTeam    string    `json:"home_team"`
	AwayTeam    string    `json:"away_team"`
	StartTime   time.Time `json:"start_time"`
	Sportsbook  string    `json:"sportsbook"`
	Outcome     string    `json:"outcome"`
	DecimalOdds float64   `json:"decimal_odds"`
	UpdateTime  time.Time `json:"update_time"`
}

// NewQuote builds a Quote and enforces the decimal odds invariant.
func NewQuote(sport, home, away string, start time.Time, book, outcome string, decimalOdds float64, updated time.Time) (Quote, error) {
	q := Quote{
		Sport:       sport,
		HomeTeam:    home,
		AwayTeam:    away,
		StartTime:   start,
		Sportsbook:  book,
		Outcome:     outcome,
		DecimalOdds: decimalOdds,
		UpdateTime:  updated,
	}
	if err := q.Validate(); err != nil {
		return Quote{}, err
	}
	return q, nil
}

// Validate checks the quote invariants.
func (q Quote) Validate() error {
	if !(q.DecimalOdds > 1.0) {
		return fmt.Errorf("%w: %s %s@%s %q at %s quoted %v", ErrInvalidOdds, q.Sport, q.AwayTeam, q.HomeTeam, q.Outcome, q.Sportsbook, q.DecimalOdds)
	}
	return nil
}

// ConsensusQuote is a market-wide average price for one outcome of one event.
type ConsensusQuote struct {
	ID          string    `json:"id,omitempty"`
	Sport       string    `json:"sport"`
	HomeTeam    string    `json:"home_team"`
	AwayTeam    string    `json:"away_team"`
	StartTime   time.Time `json:"start_time"`
	Outcome     string    `json:"outcome"`
	DecimalOdds float64   `json:"decimal_odds"`
	UpdateTime  time.Time `json:"update_time"`
}

// Validate checks the consensus invariants.
func (c ConsensusQuote) Validate() error {
	if !(c.DecimalOdds > 1.0) {
		return fmt.Errorf("%w: consensus %s %s@%s %q quoted %v", ErrInvalidOdds, c.Sport, c.AwayTeam, c.HomeTeam, c.Outcome, c.DecimalOdds)
	}
	return nil
}

// TeamName is one authoritative team name for a sport.
type TeamName struct {
	Sport string `json:"sport" toml:"sport"`
	Name  string `json:"team_name" toml:"name"`
}

// MergedLine joins the best sportsbook quote with its consensus counterpart.
type MergedLine struct {
	Sport              string    `json:"sport"`
	StartTime          time.Time `json:"start_time"`
	HomeTeam           string    `json:"home_team"`
	AwayTeam           string    `json:"away_team"`
	Outcome            string    `json:"outcome"`
	Sportsbook         string    `json:"sportsbook"`
	DecimalOdds        float64   `json:"decimal_odds"`
	AvgOdds            float64   `json:"avg_odds"`
	BestOddsUpdateTime time.Time `json:"best_odds_update_time"`
	AvgOddsUpdateTime  time.Time `json:"avg_odds_update_time"`
}

// Matchup renders the event the way bettors read it.
func (m MergedLine) Matchup() string {
	return fmt.Sprintf("%s @ %s", m.AwayTeam, m.HomeTeam)
}

// Opportunity is a merged line annotated with the edge model outputs.
type Opportunity struct {
	MergedLine
	MeanImpliedProbability float64 `json:"mean_implied_probability"`
	BestImpliedProbability float64 `json:"best_implied_probability"`
	PredictedProbability   float64 `json:"predicted_probability"`
	Thresh                 float64 `json:"thresh"`
	ExpectedValue          float64 `json:"expected_value"`
	Kelly                  float64 `json:"kelly"`
	HalfKelly              float64 `json:"half_kelly"`
	ID                     string  `json:"id,omitempty"`
}

// IsDraw reports whether name denotes a draw outcome.
func IsDraw(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), Draw)
}
