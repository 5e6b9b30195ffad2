package fetcher

import (
	"context"
	"strings"
	"testing"
	"time"

	"plus-ev-alerts/internal/odds"
)

func TestReadSnapshot(t *testing.T) {
	doc := `{
  "quotes": [{"sport": "basketball_nba", "home_team": "Boston Celtics", "away_team": "Miami Heat",
              "start_time": "2026-10-20T23:30:00Z", "sportsbook": "FanDuel", "outcome": "Miami Heat",
              "decimal_odds": 2.1, "update_time": "2026-10-20T18:00:00Z"}],
  "consensus": [],
  "team_names": [{"sport": "basketball_nba", "team_name": "Miami Heat"}]
}`
	snap, err := ReadSnapshot(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if len(snap.Quotes) != 1 || snap.Quotes[0].DecimalOdds != 2.1 {
		t.Fatalf("unexpected quotes %+v", snap.Quotes)
	}
	if len(snap.TeamNames) != 1 || snap.TeamNames[0].Name != "Miami Heat" {
		t.Fatalf("unexpected team names %+v", snap.TeamNames)
	}
	if snap.Archive != nil {
		t.Fatalf("missing archive should decode as nil")
	}
}

func TestReadSnapshotRejectsUnknownTables(t *testing.T) {
	if _, err := ReadSnapshot(strings.NewReader(`{"qoutes": []}`)); err == nil {
		t.Fatal("unknown table should fail")
	}
}

func TestSnapshotSourceSaveArchiveKeepsFirstSeen(t *testing.T) {
	src := NewSnapshotSource(&Snapshot{Archive: []odds.Opportunity{{ID: "a", MergedLine: odds.MergedLine{Sportsbook: "FanDuel"}}}})
	ctx := context.Background()

	n, err := src.SaveArchive(ctx, []odds.Opportunity{
		{ID: "a", MergedLine: odds.MergedLine{Sportsbook: "BetMGM"}},
		{ID: "b"},
		{ID: "b"},
	}, time.Now())
	if err != nil {
		t.Fatalf("SaveArchive: %v", err)
	}
	if n != 1 {
		t.Fatalf("inserted = %d, want 1", n)
	}

	rows, _ := src.LoadArchive(ctx)
	if len(rows) != 2 || rows[0].Sportsbook != "FanDuel" || rows[1].ID != "b" {
		t.Fatalf("unexpected archive %+v", rows)
	}
	if got := src.Snapshot().Archive; len(got) != 2 {
		t.Fatalf("snapshot archive = %d rows", len(got))
	}
}
