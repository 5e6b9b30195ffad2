package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"plus-ev-alerts/internal/config"
	"plus-ev-alerts/internal/metrics"
	"plus-ev-alerts/internal/odds"
	"plus-ev-alerts/internal/storage"
)

type fakeLines struct {
	lines, plusEV []odds.Opportunity
	err           error
}

func (f fakeLines) ListEvaluatedLines(context.Context) ([]odds.Opportunity, error) {
	return f.lines, f.err
}

func (f fakeLines) ListPlusEV(context.Context) ([]odds.Opportunity, error) {
	return f.plusEV, f.err
}

type fakeArchive struct {
	rows      []storage.RecommendedBet
	lastLimit int
}

func (f *fakeArchive) ListRecentArchive(_ context.Context, limit int) ([]storage.RecommendedBet, error) {
	f.lastLimit = limit
	if limit < len(f.rows) {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func opportunity(outcome string) odds.Opportunity {
	return odds.Opportunity{
		MergedLine: odds.MergedLine{Sport: "basketball_nba", Outcome: outcome, Sportsbook: "FanDuel", DecimalOdds: 2.3},
		ID:         outcome,
	}
}

func newTestServer(deps Deps) http.Handler {
	return New(config.ServerConfig{}, deps, zerolog.Nop()).Handler()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestBestLinesAndRecommendedBets(t *testing.T) {
	h := newTestServer(Deps{
		Lines:   fakeLines{lines: []odds.Opportunity{opportunity("A"), opportunity("B")}, plusEV: []odds.Opportunity{opportunity("A")}},
		Archive: &fakeArchive{},
	})

	rec := get(t, h, "/best-lines")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var lines []odds.Opportunity
	if err := json.NewDecoder(rec.Body).Decode(&lines); err != nil || len(lines) != 2 {
		t.Fatalf("best-lines = %v %v", lines, err)
	}

	rec = get(t, h, "/recommended-bets")
	var bets []odds.Opportunity
	if err := json.NewDecoder(rec.Body).Decode(&bets); err != nil || len(bets) != 1 || bets[0].ID != "A" {
		t.Fatalf("recommended-bets = %v %v", bets, err)
	}
}

func TestEmptyTablesEncodeAsArrays(t *testing.T) {
	h := newTestServer(Deps{Lines: fakeLines{}, Archive: &fakeArchive{}})
	for _, path := range []string{"/best-lines", "/recommended-bets", "/archive"} {
		if body := strings.TrimSpace(get(t, h, path).Body.String()); body != "[]" {
			t.Fatalf("%s body = %q", path, body)
		}
	}
}

func TestArchiveLimit(t *testing.T) {
	archive := &fakeArchive{rows: []storage.RecommendedBet{
		{Opportunity: opportunity("A"), RecommendedAt: time.Now()},
		{Opportunity: opportunity("B"), RecommendedAt: time.Now()},
	}}
	h := newTestServer(Deps{Lines: fakeLines{}, Archive: archive})

	rec := get(t, h, "/archive?limit=1")
	var rows []storage.RecommendedBet
	if err := json.NewDecoder(rec.Body).Decode(&rows); err != nil || len(rows) != 1 {
		t.Fatalf("archive = %v %v", rows, err)
	}

	get(t, h, "/archive")
	if archive.lastLimit != defaultArchiveLimit {
		t.Fatalf("default limit = %d", archive.lastLimit)
	}
	get(t, h, "/archive?limit=100000")
	if archive.lastLimit != maxArchiveLimit {
		t.Fatalf("limit should be capped, got %d", archive.lastLimit)
	}
	if rec := get(t, h, "/archive?limit=-3"); rec.Code != http.StatusBadRequest {
		t.Fatalf("negative limit status = %d", rec.Code)
	}
}

func TestStoreErrors(t *testing.T) {
	h := newTestServer(Deps{Lines: fakeLines{err: errors.New("db down")}, Archive: &fakeArchive{}})
	if rec := get(t, h, "/best-lines"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	ok := newTestServer(Deps{Lines: fakeLines{}, Archive: &fakeArchive{}, Health: fakePinger{}})
	if rec := get(t, ok, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthy status = %d", rec.Code)
	}
	down := newTestServer(Deps{Lines: fakeLines{}, Archive: &fakeArchive{}, Health: fakePinger{err: errors.New("refused")}})
	if rec := get(t, down, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.ObserveRun(metrics.StatusOK, time.Second)
	h := newTestServer(Deps{Lines: fakeLines{}, Archive: &fakeArchive{}, Metrics: m})

	rec := get(t, h, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "evwatcher_runs_total") {
		t.Fatalf("metrics body missing counter: %d", rec.Code)
	}
}
