package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var fetchNow = time.Date(2026, 10, 20, 18, 0, 0, 0, time.UTC)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func eventsFor(sport string) []map[string]any {
	return []map[string]any{
		{
			"id":            sport + "-1",
			"sport_key":     sport,
			"commence_time": fetchNow.Add(5 * time.Hour).Format(time.RFC3339),
			"home_team":     "Boston Celtics",
			"away_team":     "Miami Heat",
			"bookmakers": []map[string]any{
				{
					"key":   "fanduel",
					"title": "FanDuel",
					"markets": []map[string]any{
						{"key": "h2h", "outcomes": []map[string]any{
							{"name": "Boston Celtics", "price": 1.8},
							{"name": "Miami Heat", "price": 2.1},
						}},
					},
				},
			},
		},
		{
			"id":            sport + "-live",
			"sport_key":     sport,
			"commence_time": fetchNow.Add(-time.Hour).Format(time.RFC3339),
			"home_team":     "Chicago Bulls",
			"away_team":     "Utah Jazz",
			"bookmakers": []map[string]any{
				{"key": "betmgm", "title": "BetMGM", "markets": []map[string]any{
					{"key": "h2h", "outcomes": []map[string]any{{"name": "Utah Jazz", "price": 3.0}}},
				}},
			},
		},
	}
}

func newTestOddsAPI(baseURL string) *OddsAPI {
	o := NewOddsAPI(OddsAPIOptions{BaseURL: baseURL, APIKey: "key", Timeout: time.Second}, noopLogger())
	o.now = func() time.Time { return fetchNow }
	return o
}

func TestOddsAPIFetchQuotes(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 || parts[0] != "sports" || parts[2] != "odds" {
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		mu.Lock()
		seen[parts[1]] = r.URL.RawQuery
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(eventsFor(parts[1]))
	}))
	defer srv.Close()

	quotes, err := newTestOddsAPI(srv.URL).FetchQuotes(context.Background(), []string{"basketball_nba", "basketball_wnba"})
	if err != nil {
		t.Fatalf("FetchQuotes: %v", err)
	}
	if len(quotes) != 4 {
		t.Fatalf("expected 4 quotes from future events, got %d", len(quotes))
	}
	if quotes[0].Sport != "basketball_nba" || quotes[2].Sport != "basketball_wnba" {
		t.Fatalf("quotes should follow the order of the requested sports")
	}

	q := quotes[1]
	if q.Sportsbook != "FanDuel" || q.Outcome != "Miami Heat" || q.DecimalOdds != 2.1 {
		t.Fatalf("unexpected quote %+v", q)
	}
	if !q.UpdateTime.Equal(fetchNow) || q.ID == "" {
		t.Fatalf("quote should carry fetch time and id, got %+v", q)
	}
	if quotes[0].ID == quotes[1].ID {
		t.Fatal("quote ids must be unique")
	}

	query := seen["basketball_nba"]
	for _, want := range []string{"apiKey=key", "regions=us", "markets=h2h", "oddsFormat=decimal", "dateFormat=iso"} {
		if !strings.Contains(query, want) {
			t.Fatalf("query %q missing %s", query, want)
		}
	}
}

func TestOddsAPIHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "API key is not valid"})
	}))
	defer srv.Close()

	_, err := newTestOddsAPI(srv.URL).FetchQuotes(context.Background(), []string{"basketball_nba"})
	if err == nil || !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "API key is not valid") {
		t.Fatalf("expected 401 error with message, got %v", err)
	}
}

func TestOddsAPIRequiresKey(t *testing.T) {
	o := NewOddsAPI(OddsAPIOptions{}, noopLogger())
	if _, err := o.FetchQuotes(context.Background(), []string{"basketball_nba"}); err == nil {
		t.Fatal("missing api key should fail")
	}
}

func TestOddsAPIFetchSports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sports" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"key": "basketball_nba", "active": true},
			{"key": "golf_masters_winner", "active": true, "has_outrights": true},
			{"key": "baseball_mlb", "active": false},
		})
	}))
	defer srv.Close()

	sports, err := newTestOddsAPI(srv.URL).FetchSports(context.Background())
	if err != nil {
		t.Fatalf("FetchSports: %v", err)
	}
	if len(sports) != 1 || sports[0] != "basketball_nba" {
		t.Fatalf("unexpected sports %v", sports)
	}
}
