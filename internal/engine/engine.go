// Package engine reconciles sportsbook and consensus quotes, flags positive
// expected value lines, sizes them with the Kelly criterion and suppresses
// repeat recommendations. Every stage is a pure, synchronous transformation
// over in-memory tables.
package engine

import (
	"time"

	"github.com/rs/zerolog"

	"plus-ev-alerts/internal/odds"
)

// Options configure an Engine.
type Options struct {
	Books       BookSet
	Teams       []odds.TeamName
	MatchCutoff int
	Predictor   Predictor
	Stake       StakeSizer
}

// Snapshot is one run's worth of input tables.
type Snapshot struct {
	Quotes    []odds.Quote
	Consensus []odds.ConsensusQuote
	Archive   []odds.Opportunity
	Now       time.Time
}

// Result holds the output tables of one run.
type Result struct {
	// Merged holds every joined line for future events.
	Merged []odds.MergedLine `json:"merged"`
	// Lines holds every merged line, sized. Lines the predictor could not
	// evaluate carry zero model fields and never reach PlusEV.
	Lines []odds.Opportunity `json:"lines"`
	// PlusEV holds the lines whose best price beats the break-even price.
	PlusEV []odds.Opportunity `json:"plus_ev"`
	// New holds the PlusEV rows not recommended in any earlier run.
	New []odds.Opportunity `json:"new"`
	// Archive is the previous archive plus New.
	Archive []odds.Opportunity `json:"archive"`

	Diagnostics Diagnostics `json:"-"`
}

// Engine runs the detection pipeline.
type Engine struct {
	opts   Options
	logger zerolog.Logger
}

// New validates opts and returns an Engine.
func New(opts Options, logger zerolog.Logger) (*Engine, error) {
	if opts.Predictor == nil {
		return nil, ErrNoPredictor
	}
	if opts.Stake == (StakeSizer{}) {
		opts.Stake = DefaultStakeSizer
	}
	if opts.MatchCutoff <= 0 {
		opts.MatchCutoff = DefaultMatchCutoff
	}
	return &Engine{opts: opts, logger: logger.With().Str("component", "engine").Logger()}, nil
}

// Run executes every stage over snap. The only error is a corrupt archive,
// which aborts the run; row-level problems are counted in Result.Diagnostics.
func (e *Engine) Run(snap Snapshot) (*Result, error) {
	archive, err := LoadArchive(snap.Archive)
	if err != nil {
		return nil, err
	}

	now := snap.Now
	if now.IsZero() {
		now = time.Now()
	}

	res := &Result{}
	diag := &res.Diagnostics
	diag.QuotesIn = len(snap.Quotes)
	diag.ConsensusIn = len(snap.Consensus)

	quotes := e.validQuotes(snap.Quotes, diag)
	consensus := e.validConsensus(snap.Consensus, diag)

	quotes = FilterBooks(quotes, e.opts.Books, diag)

	reconciler := NewReconciler(e.opts.Teams, e.opts.MatchCutoff)
	quotes = reconciler.ReconcileQuotes(quotes, diag)
	consensus = reconciler.ReconcileConsensus(consensus, diag)

	best := SelectBestLines(quotes)
	res.Merged = JoinConsensus(best, consensus, now, diag)

	res.Lines = make([]odds.Opportunity, 0, len(res.Merged))
	for _, line := range res.Merged {
		opp, err := Evaluate(line, e.opts.Predictor)
		if err != nil {
			diag.add(ReasonInvalidProbability)
			e.logger.Debug().Err(err).Str("sport", line.Sport).Msg("line not evaluated")
			opp = Unevaluated(line)
		}
		res.Lines = append(res.Lines, opp)
	}
	e.opts.Stake.Size(res.Lines)
	AssignIDs(res.Lines)

	res.PlusEV = PositiveEV(res.Lines)

	var updated *Archive
	res.New, updated = Deduplicate(res.PlusEV, archive)
	res.Archive = updated.Rows()

	e.logger.Debug().
		Int("best_lines", len(best)).
		Int("merged", len(res.Merged)).
		Int("plus_ev", len(res.PlusEV)).
		Int("new", len(res.New)).
		Int("archive", len(res.Archive)).
		Object("diagnostics", res.Diagnostics).
		Msg("pipeline complete")

	return res, nil
}

func (e *Engine) validQuotes(in []odds.Quote, diag *Diagnostics) []odds.Quote {
	out := make([]odds.Quote, 0, len(in))
	for _, q := range in {
		if err := q.Validate(); err != nil {
			diag.add(ReasonInvalidOdds)
			e.logger.Debug().Err(err).Msg("quote dropped")
			continue
		}
		out = append(out, q)
	}
	return out
}

func (e *Engine) validConsensus(in []odds.ConsensusQuote, diag *Diagnostics) []odds.ConsensusQuote {
	out := make([]odds.ConsensusQuote, 0, len(in))
	for _, c := range in {
		if err := c.Validate(); err != nil {
			diag.add(ReasonInvalidOdds)
			e.logger.Debug().Err(err).Msg("consensus quote dropped")
			continue
		}
		out = append(out, c)
	}
	return out
}
