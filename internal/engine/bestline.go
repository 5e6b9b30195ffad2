package engine

import (
	"sort"

	"plus-ev-alerts/internal/odds"
)

// BookSet is the allow-list of sportsbooks a bet can actually be placed with.
// A nil set allows every book.
type BookSet map[string]struct{}

// NewBookSet builds a BookSet from titles.
func NewBookSet(titles ...string) BookSet {
	set := make(BookSet, len(titles))
	for _, t := range titles {
		set[t] = struct{}{}
	}
	return set
}

// Allows reports whether book is in the set.
func (b BookSet) Allows(book string) bool {
	if b == nil {
		return true
	}
	_, ok := b[book]
	return ok
}

type lineKey struct {
	sport   string
	home    string
	away    string
	start   int64
	outcome string
}

func quoteKey(q odds.Quote) lineKey {
	return lineKey{
		sport:   q.Sport,
		home:    q.HomeTeam,
		away:    q.AwayTeam,
		start:   q.StartTime.UTC().UnixNano(),
		outcome: q.Outcome,
	}
}

// FilterBooks keeps the quotes whose sportsbook is allowed.
func FilterBooks(quotes []odds.Quote, books BookSet, diag *Diagnostics) []odds.Quote {
	out := make([]odds.Quote, 0, len(quotes))
	for _, q := range quotes {
		if !books.Allows(q.Sportsbook) {
			diag.add(ReasonDisallowedBook)
			continue
		}
		out = append(out, q)
	}
	return out
}

// SelectBestLines keeps the highest priced quote per (sport, home, away,
// start, outcome). The first quote wins a tie. The result is ordered by start
// time, groups with equal start times keep first-seen order.
func SelectBestLines(quotes []odds.Quote) []odds.Quote {
	index := make(map[lineKey]int, len(quotes))
	best := make([]odds.Quote, 0, len(quotes))
	for _, q := range quotes {
		k := quoteKey(q)
		if i, ok := index[k]; ok {
			if q.DecimalOdds > best[i].DecimalOdds {
				best[i] = q
			}
			continue
		}
		index[k] = len(best)
		best = append(best, q)
	}
	sort.SliceStable(best, func(i, j int) bool {
		return best[i].StartTime.Before(best[j].StartTime)
	})
	return best
}
