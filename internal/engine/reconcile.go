package engine

import (
	"plus-ev-alerts/internal/fuzzy"
	"plus-ev-alerts/internal/odds"
)

// DefaultMatchCutoff is the minimum token-set score accepted as a match.
const DefaultMatchCutoff = 80

// Resolution tells how a name was resolved.
type Resolution int

const (
	// Matched means a canonical name cleared the cutoff.
	Matched Resolution = iota
	// DrawOutcome means the name was a draw and needs no team identity.
	DrawOutcome
	// NoReference means the sport has no canonical list; the name is kept.
	NoReference
	// Unresolved means no canonical name cleared the cutoff.
	Unresolved
)

type nameKey struct {
	sport string
	name  string
}

type resolved struct {
	name string
	res  Resolution
}

// Reconciler maps source-specific team names onto a sport's canonical list.
// It memoises lookups and is not safe for concurrent use.
type Reconciler struct {
	teams  map[string][]string
	cutoff int
	cache  map[nameKey]resolved
}

// NewReconciler indexes the canonical names per sport, keeping input order.
func NewReconciler(teams []odds.TeamName, cutoff int) *Reconciler {
	if cutoff <= 0 {
		cutoff = DefaultMatchCutoff
	}
	bySport := make(map[string][]string)
	for _, t := range teams {
		bySport[t.Sport] = append(bySport[t.Sport], t.Name)
	}
	return &Reconciler{teams: bySport, cutoff: cutoff, cache: make(map[nameKey]resolved)}
}

// Resolve returns the canonical name for candidate within sport. Unresolved
// results carry an empty name.
func (r *Reconciler) Resolve(sport, candidate string) (string, Resolution) {
	if odds.IsDraw(candidate) {
		return odds.Draw, DrawOutcome
	}
	key := nameKey{sport: sport, name: candidate}
	if hit, ok := r.cache[key]; ok {
		return hit.name, hit.res
	}

	var out resolved
	choices := r.teams[sport]
	switch {
	case len(choices) == 0:
		out = resolved{name: candidate, res: NoReference}
	default:
		if m, ok := fuzzy.ExtractOne(candidate, choices, r.cutoff); ok {
			out = resolved{name: m.Choice, res: Matched}
		} else {
			out = resolved{res: Unresolved}
		}
	}
	r.cache[key] = out
	return out.name, out.res
}

// resolveTriple resolves home, away and outcome; ok is false when any is unresolved.
func (r *Reconciler) resolveTriple(sport, home, away, outcome string, diag *Diagnostics) (string, string, string, bool) {
	names := [3]string{home, away, outcome}
	missing := false
	for i, n := range names {
		name, res := r.Resolve(sport, n)
		switch res {
		case Unresolved:
			diag.add(ReasonUnresolvedName)
			return "", "", "", false
		case NoReference:
			missing = true
		}
		names[i] = name
	}
	if missing {
		diag.add(ReasonMissingReference)
		diag.missingSport(sport)
	}
	return names[0], names[1], names[2], true
}

// ReconcileQuotes rewrites team and outcome names of each quote and drops
// quotes with any unresolved name.
func (r *Reconciler) ReconcileQuotes(quotes []odds.Quote, diag *Diagnostics) []odds.Quote {
	out := make([]odds.Quote, 0, len(quotes))
	for _, q := range quotes {
		home, away, outcome, ok := r.resolveTriple(q.Sport, q.HomeTeam, q.AwayTeam, q.Outcome, diag)
		if !ok {
			continue
		}
		q.HomeTeam, q.AwayTeam, q.Outcome = home, away, outcome
		out = append(out, q)
	}
	return out
}

// ReconcileConsensus is ReconcileQuotes for the consensus feed.
func (r *Reconciler) ReconcileConsensus(quotes []odds.ConsensusQuote, diag *Diagnostics) []odds.ConsensusQuote {
	out := make([]odds.ConsensusQuote, 0, len(quotes))
	for _, c := range quotes {
		home, away, outcome, ok := r.resolveTriple(c.Sport, c.HomeTeam, c.AwayTeam, c.Outcome, diag)
		if !ok {
			continue
		}
		c.HomeTeam, c.AwayTeam, c.Outcome = home, away, outcome
		out = append(out, c)
	}
	return out
}
