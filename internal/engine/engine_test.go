package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"plus-ev-alerts/internal/odds"
)

const nba = "basketball_nba"

var (
	tipOff  = time.Date(2026, 10, 20, 23, 30, 0, 0, time.UTC)
	evalNow = time.Date(2026, 10, 20, 18, 0, 0, 0, time.UTC)
)

func nbaTeams() []odds.TeamName {
	return []odds.TeamName{
		{Sport: nba, Name: "Boston Celtics"},
		{Sport: nba, Name: "Miami Heat"},
		{Sport: nba, Name: "Los Angeles Lakers"},
	}
}

func quote(book, outcome string, price float64) odds.Quote {
	return odds.Quote{
		Sport:       nba,
		HomeTeam:    "Boston Celtics",
		AwayTeam:    "Miami Heat",
		StartTime:   tipOff,
		Sportsbook:  book,
		Outcome:     outcome,
		DecimalOdds: price,
		UpdateTime:  evalNow,
	}
}

func consensus(outcome string, price float64) odds.ConsensusQuote {
	return odds.ConsensusQuote{
		Sport:       nba,
		HomeTeam:    "Boston",
		AwayTeam:    "Miami",
		StartTime:   tipOff,
		Outcome:     outcome,
		DecimalOdds: price,
		UpdateTime:  evalNow,
	}
}

func newTestEngine(t *testing.T, alpha float64) *Engine {
	t.Helper()
	eng, err := New(Options{
		Books:     NewBookSet("FanDuel", "DraftKings", "BetMGM"),
		Teams:     nbaTeams(),
		Predictor: ConstantAlphaPredictor{Alpha: alpha},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNewRequiresPredictor(t *testing.T) {
	if _, err := New(Options{}, zerolog.Nop()); !errors.Is(err, ErrNoPredictor) {
		t.Fatalf("expected ErrNoPredictor, got %v", err)
	}
}

func TestRunPositiveEVScenario(t *testing.T) {
	eng := newTestEngine(t, 0.05)
	res, err := eng.Run(Snapshot{
		Quotes: []odds.Quote{
			quote("FanDuel", "Boston Celtics", 2.10),
			quote("DraftKings", "Boston Celtics", 2.30),
			quote("FanDuel", "Miami Heat", 1.70),
		},
		Consensus: []odds.ConsensusQuote{
			consensus("Boston Celtics", 2.00),
			consensus("Miami Heat", 1.80),
		},
		Now: evalNow,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Merged) != 2 {
		t.Fatalf("expected 2 merged lines, got %d", len(res.Merged))
	}
	if len(res.PlusEV) != 1 {
		t.Fatalf("expected 1 plus-EV line, got %d: %+v", len(res.PlusEV), res.PlusEV)
	}

	o := res.PlusEV[0]
	if o.Sportsbook != "DraftKings" || o.DecimalOdds != 2.30 {
		t.Fatalf("best line should be DraftKings 2.30, got %s %v", o.Sportsbook, o.DecimalOdds)
	}
	if o.HomeTeam != "Boston Celtics" || o.AwayTeam != "Miami Heat" {
		t.Fatalf("names should be canonical, got %q vs %q", o.HomeTeam, o.AwayTeam)
	}
	if !approx(o.MeanImpliedProbability, 0.5) || !approx(o.PredictedProbability, 0.45) {
		t.Fatalf("unexpected probabilities: mean %v predicted %v", o.MeanImpliedProbability, o.PredictedProbability)
	}
	if !approx(o.Thresh, 1/0.45) {
		t.Fatalf("thresh = %v, want %v", o.Thresh, 1/0.45)
	}
	if !approx(o.ExpectedValue, 0.035) {
		t.Fatalf("expected value = %v, want 0.035", o.ExpectedValue)
	}
	if !approx(o.Kelly, 0.035/1.3) || !approx(o.HalfKelly, 0.035/2.6) {
		t.Fatalf("unexpected kelly %v half %v", o.Kelly, o.HalfKelly)
	}
	if o.ID != OpportunityID("Boston Celtics", "Miami Heat", "Boston Celtics", tipOff) {
		t.Fatalf("unexpected id %s", o.ID)
	}

	if len(res.New) != 1 || len(res.Archive) != 1 {
		t.Fatalf("first run should recommend and archive the line, new=%d archive=%d", len(res.New), len(res.Archive))
	}
}

func TestRunSuppressesArchivedOpportunity(t *testing.T) {
	eng := newTestEngine(t, 0.05)
	first, err := eng.Run(Snapshot{
		Quotes:    []odds.Quote{quote("DraftKings", "Boston Celtics", 2.30)},
		Consensus: []odds.ConsensusQuote{consensus("Boston Celtics", 2.00)},
		Now:       evalNow,
	})
	if err != nil {
		t.Fatalf("run 1: %v", err)
	}

	second, err := eng.Run(Snapshot{
		Quotes:    []odds.Quote{quote("BetMGM", "Boston Celtics", 2.45)},
		Consensus: []odds.ConsensusQuote{consensus("Boston Celtics", 2.00)},
		Archive:   first.Archive,
		Now:       evalNow.Add(5 * time.Minute),
	})
	if err != nil {
		t.Fatalf("run 2: %v", err)
	}

	if len(second.PlusEV) != 1 || second.PlusEV[0].Sportsbook != "BetMGM" {
		t.Fatalf("run 2 should still report the opportunity at the new book, got %+v", second.PlusEV)
	}
	if len(second.New) != 0 {
		t.Fatalf("archived opportunity must not be recommended again, got %+v", second.New)
	}
	if len(second.Archive) != 1 || second.Archive[0].Sportsbook != "DraftKings" {
		t.Fatalf("archive should keep first-seen attributes, got %+v", second.Archive)
	}
}

func TestRunArchiveGrowsMonotonically(t *testing.T) {
	eng := newTestEngine(t, 0.05)
	before, err := eng.Run(Snapshot{
		Quotes:    []odds.Quote{quote("DraftKings", "Boston Celtics", 2.30)},
		Consensus: []odds.ConsensusQuote{consensus("Boston Celtics", 2.00)},
		Now:       evalNow,
	})
	if err != nil {
		t.Fatal(err)
	}

	// The Celtics line disappears; the Heat line now qualifies.
	after, err := eng.Run(Snapshot{
		Quotes:    []odds.Quote{quote("FanDuel", "Miami Heat", 2.60)},
		Consensus: []odds.ConsensusQuote{consensus("Miami Heat", 2.20)},
		Archive:   before.Archive,
		Now:       evalNow,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(after.Archive) < len(before.Archive) {
		t.Fatalf("archive shrank: %d -> %d", len(before.Archive), len(after.Archive))
	}
	ids := make(map[string]bool)
	for _, o := range after.Archive {
		ids[o.ID] = true
	}
	for _, o := range before.Archive {
		if !ids[o.ID] {
			t.Fatalf("archive lost id %s", o.ID)
		}
	}
	if len(after.New) != 1 || after.New[0].Outcome != "Miami Heat" {
		t.Fatalf("expected the Heat line to be new, got %+v", after.New)
	}
}

func TestRunDropsInvalidRows(t *testing.T) {
	eng := newTestEngine(t, 0.05)
	past := quote("FanDuel", "Miami Heat", 2.50)
	past.StartTime = evalNow.Add(-time.Hour)

	res, err := eng.Run(Snapshot{
		Quotes: []odds.Quote{
			quote("FanDuel", "Boston Celtics", 1.0),         // invalid odds
			quote("Bovada-Offshore", "Boston Celtics", 3.0), // not allowed
			quote("FanDuel", "Golden State Warriors", 2.2),  // unresolved name
			quote("DraftKings", "Boston Celtics", 2.30),
			past,
		},
		Consensus: []odds.ConsensusQuote{
			consensus("Boston Celtics", 2.00),
			{Sport: nba, HomeTeam: "Boston", AwayTeam: "Miami", StartTime: evalNow.Add(-time.Hour), Outcome: "Miami Heat", DecimalOdds: 1.9},
		},
		Now: evalNow,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	d := res.Diagnostics
	checks := map[Reason]int{
		ReasonInvalidOdds:    1,
		ReasonDisallowedBook: 1,
		ReasonUnresolvedName: 1,
		ReasonStarted:        1,
	}
	for reason, want := range checks {
		if got := d.Count(reason); got != want {
			t.Errorf("%s = %d, want %d", reason, got, want)
		}
	}
	if d.QuotesIn != 5 || d.ConsensusIn != 2 {
		t.Errorf("input counts = %d/%d", d.QuotesIn, d.ConsensusIn)
	}
	if len(res.Merged) != 1 {
		t.Fatalf("expected only the Celtics line to survive, got %+v", res.Merged)
	}
}

func TestRunInvalidProbabilityNotRecommended(t *testing.T) {
	eng := newTestEngine(t, 0.6)
	res, err := eng.Run(Snapshot{
		Quotes:    []odds.Quote{quote("DraftKings", "Boston Celtics", 2.30)},
		Consensus: []odds.ConsensusQuote{consensus("Boston Celtics", 2.00)},
		Now:       evalNow,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Merged) != 1 || len(res.Lines) != 1 || len(res.PlusEV) != 0 || len(res.New) != 0 {
		t.Fatalf("line with p<=0 should be kept in the lines table but not recommended: %+v", res)
	}
	line := res.Lines[0]
	if line.PredictedProbability != 0 || line.Thresh != 0 || line.Kelly != 0 || line.HalfKelly != 0 {
		t.Fatalf("unevaluated line should carry zero model fields: %+v", line)
	}
	if !approx(line.MeanImpliedProbability, 0.5) || line.ID == "" {
		t.Fatalf("unevaluated line should keep implied probability and id: %+v", line)
	}
	if res.Diagnostics.Count(ReasonInvalidProbability) != 1 {
		t.Fatalf("invalid probability not counted")
	}
}

func TestRunEmptyFeed(t *testing.T) {
	eng := newTestEngine(t, 0.05)
	res, err := eng.Run(Snapshot{Now: evalNow})
	if err != nil {
		t.Fatalf("empty feed should not fail: %v", err)
	}
	if len(res.Merged) != 0 || len(res.PlusEV) != 0 || len(res.New) != 0 || len(res.Archive) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestRunCorruptArchiveAborts(t *testing.T) {
	eng := newTestEngine(t, 0.05)
	_, err := eng.Run(Snapshot{
		Quotes:    []odds.Quote{quote("DraftKings", "Boston Celtics", 2.30)},
		Consensus: []odds.ConsensusQuote{consensus("Boston Celtics", 2.00)},
		Archive:   []odds.Opportunity{{ID: "not-a-hash"}},
		Now:       evalNow,
	})
	if !errors.Is(err, ErrArchiveCorrupt) {
		t.Fatalf("expected ErrArchiveCorrupt, got %v", err)
	}
	var ce *ArchiveCorruptionError
	if !errors.As(err, &ce) || ce.Row != 0 {
		t.Fatalf("expected row 0 corruption detail, got %v", err)
	}
}

func TestRunEVFilterSoundness(t *testing.T) {
	eng := newTestEngine(t, 0.02)
	quotes := []odds.Quote{
		quote("FanDuel", "Boston Celtics", 2.05),
		quote("DraftKings", "Miami Heat", 2.10),
	}
	res, err := eng.Run(Snapshot{
		Quotes:    quotes,
		Consensus: []odds.ConsensusQuote{consensus("Boston Celtics", 1.95), consensus("Miami Heat", 1.95)},
		Now:       evalNow,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, o := range res.PlusEV {
		if !(o.DecimalOdds > o.Thresh) {
			t.Errorf("%s: odds %v do not beat thresh %v", o.Outcome, o.DecimalOdds, o.Thresh)
		}
		if !(o.PredictedProbability > 0 && o.PredictedProbability < 1) {
			t.Errorf("%s: predicted probability %v out of range", o.Outcome, o.PredictedProbability)
		}
	}
}
