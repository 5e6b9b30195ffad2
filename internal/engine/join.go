package engine

import (
	"time"

	"plus-ev-alerts/internal/odds"
)

type joinKey struct {
	sport   string
	home    string
	away    string
	outcome string
}

// indexConsensus keeps one consensus quote per join key, the most recently
// updated one. Equal update times keep the first seen.
func indexConsensus(consensus []odds.ConsensusQuote) map[joinKey]odds.ConsensusQuote {
	idx := make(map[joinKey]odds.ConsensusQuote, len(consensus))
	for _, c := range consensus {
		k := joinKey{sport: c.Sport, home: c.HomeTeam, away: c.AwayTeam, outcome: c.Outcome}
		if prev, ok := idx[k]; ok && !c.UpdateTime.After(prev.UpdateTime) {
			continue
		}
		idx[k] = c
	}
	return idx
}

// JoinConsensus inner-joins best lines with consensus quotes on
// (sport, home, away, outcome) and keeps events starting strictly after now.
// Output order follows best.
func JoinConsensus(best []odds.Quote, consensus []odds.ConsensusQuote, now time.Time, diag *Diagnostics) []odds.MergedLine {
	idx := indexConsensus(consensus)
	merged := make([]odds.MergedLine, 0, len(best))
	for _, q := range best {
		c, ok := idx[joinKey{sport: q.Sport, home: q.HomeTeam, away: q.AwayTeam, outcome: q.Outcome}]
		if !ok {
			diag.add(ReasonUnmatched)
			continue
		}
		if !q.StartTime.After(now) {
			diag.add(ReasonStarted)
			continue
		}
		merged = append(merged, odds.MergedLine{
			Sport:              q.Sport,
			StartTime:          q.StartTime,
			HomeTeam:           q.HomeTeam,
			AwayTeam:           q.AwayTeam,
			Outcome:            q.Outcome,
			Sportsbook:         q.Sportsbook,
			DecimalOdds:        q.DecimalOdds,
			AvgOdds:            c.DecimalOdds,
			BestOddsUpdateTime: q.UpdateTime,
			AvgOddsUpdateTime:  c.UpdateTime,
		})
	}
	return merged
}
