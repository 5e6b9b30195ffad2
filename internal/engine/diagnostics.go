package engine

import (
	"sort"

	"github.com/rs/zerolog"
)

// Reason names why a row left the pipeline.
type Reason string

const (
	ReasonInvalidOdds        Reason = "invalid_odds"
	ReasonDisallowedBook     Reason = "disallowed_book"
	ReasonUnresolvedName     Reason = "unresolved_name"
	ReasonMissingReference   Reason = "missing_reference"
	ReasonUnmatched          Reason = "unmatched"
	ReasonStarted            Reason = "started"
	ReasonInvalidProbability Reason = "invalid_probability"
)

// Diagnostics aggregates the per-row anomalies of one run. MissingReference is
// a warning: those rows are kept with their names unchanged.
type Diagnostics struct {
	QuotesIn    int
	ConsensusIn int

	counts        map[Reason]int
	missingSports map[string]struct{}
}

func (d *Diagnostics) add(r Reason) {
	if d.counts == nil {
		d.counts = make(map[Reason]int)
	}
	d.counts[r]++
}

func (d *Diagnostics) missingSport(sport string) {
	if d.missingSports == nil {
		d.missingSports = make(map[string]struct{})
	}
	d.missingSports[sport] = struct{}{}
}

// Count returns how many rows were recorded under r.
func (d Diagnostics) Count(r Reason) int {
	return d.counts[r]
}

// Counts returns a copy of every non-zero reason count.
func (d Diagnostics) Counts() map[Reason]int {
	out := make(map[Reason]int, len(d.counts))
	for r, n := range d.counts {
		out[r] = n
	}
	return out
}

// MissingSports lists sports that had no canonical team names, sorted.
func (d Diagnostics) MissingSports() []string {
	sports := make([]string, 0, len(d.missingSports))
	for s := range d.missingSports {
		sports = append(sports, s)
	}
	sort.Strings(sports)
	return sports
}

// MarshalZerologObject renders the summary as a nested log object.
func (d Diagnostics) MarshalZerologObject(e *zerolog.Event) {
	e.Int("quotes_in", d.QuotesIn).Int("consensus_in", d.ConsensusIn)
	reasons := make([]string, 0, len(d.counts))
	for r := range d.counts {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		e.Int(r, d.counts[Reason(r)])
	}
	if len(d.missingSports) > 0 {
		e.Strs("missing_sports", d.MissingSports())
	}
}
