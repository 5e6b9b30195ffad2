package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"plus-ev-alerts/internal/fetcher"
	"plus-ev-alerts/internal/reference"
	"plus-ev-alerts/internal/storage"
)

// sportLister is satisfied by the Odds API fetcher.
type sportLister interface {
	FetchSports(ctx context.Context) ([]string, error)
}

// quoteIngester replaces the stored sportsbook feed with a fresh fetch.
type quoteIngester struct {
	api interface {
		fetcher.QuoteSource
		sportLister
	}
	store interface {
		storage.QuoteStore
		ListConsensusSports(ctx context.Context) ([]string, error)
	}
	sports []string
	logger zerolog.Logger
}

// Refresh implements service.Refresher.
func (q *quoteIngester) Refresh(ctx context.Context) (int, error) {
	sports, err := q.resolveSports(ctx)
	if err != nil {
		return 0, err
	}
	if len(sports) == 0 {
		q.logger.Warn().Msg("no sports to fetch")
		return 0, nil
	}

	quotes, err := q.api.FetchQuotes(ctx, sports)
	if err != nil {
		return 0, err
	}
	if err := q.store.ReplaceQuotes(ctx, sports, quotes); err != nil {
		return 0, err
	}
	return len(quotes), nil
}

// resolveSports picks the configured sports, else the sports the consensus
// feed covers, else every in-season sport the API reports.
func (q *quoteIngester) resolveSports(ctx context.Context) ([]string, error) {
	if len(q.sports) > 0 {
		return q.sports, nil
	}
	sports, err := q.store.ListConsensusSports(ctx)
	if err != nil {
		return nil, err
	}
	if len(sports) > 0 {
		return sports, nil
	}
	q.logger.Info().Msg("consensus feed empty; asking the odds api for in-season sports")
	return q.api.FetchSports(ctx)
}

// Ingest seeds canonical team names and pulls the sportsbook feed.
func (a *App) Ingest(ctx context.Context, opts IngestOptions) error {
	if opts.TeamsOnly && opts.TeamsPath == "" {
		return errors.New("--teams-only requires --teams")
	}

	var store *storage.Store
	if opts.DryRun {
		a.Logger.Warn().Msg("ingest dry-run: nothing will be written")
	} else {
		s, closeStore, err := a.requireStore(ctx, "ingest")
		if err != nil {
			return err
		}
		defer closeStore()
		store = s
	}

	if opts.TeamsPath != "" {
		teams, err := reference.LoadTeams(opts.TeamsPath)
		if err != nil {
			return err
		}
		inserted := 0
		if store != nil {
			if inserted, err = store.UpsertTeamNames(ctx, teams); err != nil {
				return err
			}
		}
		a.Logger.Info().Int("teams", len(teams)).Int("inserted", inserted).Msg("team names seeded")
	}
	if opts.TeamsOnly {
		return nil
	}

	sports := opts.Sports
	if len(sports) == 0 {
		sports = a.Config.OddsAPI.Sports
	}
	api := a.newOddsAPI()

	if store == nil {
		if len(sports) == 0 {
			list, err := api.FetchSports(ctx)
			if err != nil {
				return err
			}
			sports = list
		}
		quotes, err := api.FetchQuotes(ctx, sports)
		if err != nil {
			return err
		}
		a.Logger.Info().Strs("sports", sports).Int("quotes", len(quotes)).Msg("quotes fetched (dry-run)")
		return nil
	}

	ingester := &quoteIngester{api: api, store: store, sports: sports, logger: a.Logger}
	n, err := ingester.Refresh(ctx)
	if err != nil {
		return err
	}
	a.Logger.Info().Int("quotes", n).Msg("quotes ingested")
	return nil
}
