package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"plus-ev-alerts/internal/odds"
)

const defaultOddsAPIBase = "https://api.the-odds-api.com/v4"

// OddsAPIOptions parameterise the The Odds API fetcher.
type OddsAPIOptions struct {
	BaseURL           string
	APIKey            string
	Regions           string
	Markets           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
	// Concurrency bounds in-flight sport requests.
	Concurrency int
}

// OddsAPI fetches moneyline prices from The Odds API v4.
type OddsAPI struct {
	opts    OddsAPIOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
	now     func() time.Time
}

// NewOddsAPI constructs a sportsbook fetcher.
func NewOddsAPI(opts OddsAPIOptions, logger zerolog.Logger) *OddsAPI {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if opts.Regions == "" {
		opts.Regions = "us"
	}
	if opts.Markets == "" {
		opts.Markets = "h2h"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOddsAPIBase
	}

	return &OddsAPI{
		opts:    opts,
		logger:  logger.With().Str("component", "oddsapi_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		baseURL: baseURL,
		now:     time.Now,
	}
}

// FetchQuotes retrieves every sport concurrently and flattens the events into
// quotes, one per (event, bookmaker, market, outcome). Events that have
// already started are dropped. Any sport failing fails the whole call.
func (o *OddsAPI) FetchQuotes(ctx context.Context, sports []string) ([]odds.Quote, error) {
	if o.opts.APIKey == "" {
		return nil, errors.New("oddsapi: api key required")
	}

	fetched := o.now().UTC()
	perSport := make([][]odds.Quote, len(sports))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)
	for i, sport := range sports {
		g.Go(func() error {
			events, err := o.fetchEvents(gctx, sport)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", sport, err)
			}
			perSport[i] = flattenEvents(events, fetched)
			o.logger.Debug().Str("sport", sport).Int("events", len(events)).Int("quotes", len(perSport[i])).Msg("sport fetched")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	quotes := make([]odds.Quote, 0)
	for _, qs := range perSport {
		quotes = append(quotes, qs...)
	}
	return quotes, nil
}

// FetchSports lists the keys of the sports currently in season.
func (o *OddsAPI) FetchSports(ctx context.Context) ([]string, error) {
	var sports []sportPayload
	if err := o.getJSON(ctx, "/sports", nil, &sports); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(sports))
	for _, s := range sports {
		if s.Active && !s.HasOutrights {
			keys = append(keys, s.Key)
		}
	}
	return keys, nil
}

func (o *OddsAPI) fetchEvents(ctx context.Context, sport string) ([]eventPayload, error) {
	params := url.Values{}
	params.Set("regions", o.opts.Regions)
	params.Set("markets", o.opts.Markets)
	params.Set("oddsFormat", "decimal")
	params.Set("dateFormat", "iso")

	var events []eventPayload
	if err := o.getJSON(ctx, "/sports/"+url.PathEscape(sport)+"/odds/", params, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (o *OddsAPI) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return err
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("apiKey", o.opts.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(o.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "evwatcher/1.0")
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(resp.StatusCode, payload)
	}
	o.logger.Debug().
		Str("path", path).
		Str("requests_remaining", resp.Header.Get("x-requests-remaining")).
		Msg("odds api request")

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode odds api response: %w", err)
	}
	return nil
}

func flattenEvents(events []eventPayload, fetched time.Time) []odds.Quote {
	quotes := make([]odds.Quote, 0)
	for _, ev := range events {
		if !ev.CommenceTime.After(fetched) {
			continue
		}
		for _, book := range ev.Bookmakers {
			for _, market := range book.Markets {
				for _, outcome := range market.Outcomes {
					quotes = append(quotes, odds.Quote{
						ID:          uuid.NewString(),
						Sport:       ev.SportKey,
						HomeTeam:    ev.HomeTeam,
						AwayTeam:    ev.AwayTeam,
						StartTime:   ev.CommenceTime.UTC(),
						Sportsbook:  book.Title,
						Outcome:     outcome.Name,
						DecimalOdds: outcome.Price,
						UpdateTime:  fetched,
					})
				}
			}
		}
	}
	return quotes
}

type sportPayload struct {
	Key          string `json:"key"`
	Group        string `json:"group"`
	Title        string `json:"title"`
	Active       bool   `json:"active"`
	HasOutrights bool   `json:"has_outrights"`
}

type eventPayload struct {
	ID           string             `json:"id"`
	SportKey     string             `json:"sport_key"`
	CommenceTime time.Time          `json:"commence_time"`
	HomeTeam     string             `json:"home_team"`
	AwayTeam     string             `json:"away_team"`
	Bookmakers   []bookmakerPayload `json:"bookmakers"`
}

type bookmakerPayload struct {
	Key     string          `json:"key"`
	Title   string          `json:"title"`
	Markets []marketPayload `json:"markets"`
}

type marketPayload struct {
	Key      string           `json:"key"`
	Outcomes []outcomePayload `json:"outcomes"`
}

type outcomePayload struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type errorResponse struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("odds api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.ErrorCode != "" {
			return fmt.Errorf("odds api error (%d): %s", status, apiErr.ErrorCode)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("odds api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("odds api error (%d)", status)
}

var _ QuoteSource = (*OddsAPI)(nil)
