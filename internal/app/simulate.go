package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"plus-ev-alerts/internal/fetcher"
	"plus-ev-alerts/internal/metrics"
	"plus-ev-alerts/internal/odds"
	"plus-ev-alerts/internal/service"
)

// SimulateAlert pushes one synthetic line through the pipeline and dispatches
// the resulting recommendation to every configured channel.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting not enabled")
	}

	m := metrics.New()
	dispatcher, err := a.newDispatcher(m)
	if err != nil {
		return err
	}
	if !dispatcher.Enabled() {
		return errors.New("no alert channel configured")
	}

	engineOpts, err := a.engineOptions()
	if err != nil {
		return err
	}

	src := fetcher.NewSnapshotSource(simulatedSnapshot(opts, time.Now().UTC()))
	svc, err := service.New(service.Deps{
		Quotes:    src,
		Consensus: src,
		Teams:     src,
		Archive:   src,
		Notifier:  dispatcher,
		Metrics:   m,
	}, service.Options{Engine: engineOpts}, nil, a.Logger)
	if err != nil {
		return err
	}

	report, err := svc.RunOnce(ctx)
	if err != nil {
		return err
	}
	if len(report.Result.New) == 0 {
		return fmt.Errorf("simulated line is not positive EV: odds %.2f against consensus %.2f", opts.DecimalOdds, opts.ConsensusOdds)
	}
	if report.Delivered == 0 {
		return errors.New("no channel accepted the simulated alert")
	}
	return nil
}

func simulatedSnapshot(opts SimulateOptions, now time.Time) *fetcher.Snapshot {
	start := now.Add(opts.StartsIn)
	outcome := opts.Outcome
	if outcome == "" {
		outcome = opts.HomeTeam
	}
	return &fetcher.Snapshot{
		Quotes: []odds.Quote{{
			Sport:       opts.Sport,
			HomeTeam:    opts.HomeTeam,
			AwayTeam:    opts.AwayTeam,
			StartTime:   start,
			Sportsbook:  opts.Sportsbook,
			Outcome:     outcome,
			DecimalOdds: opts.DecimalOdds,
			UpdateTime:  now,
		}},
		Consensus: []odds.ConsensusQuote{{
			Sport:       opts.Sport,
			HomeTeam:    opts.HomeTeam,
			AwayTeam:    opts.AwayTeam,
			StartTime:   start,
			Outcome:     outcome,
			DecimalOdds: opts.ConsensusOdds,
			UpdateTime:  now,
		}},
		TeamNames: []odds.TeamName{
			{Sport: opts.Sport, Name: opts.HomeTeam},
			{Sport: opts.Sport, Name: opts.AwayTeam},
		},
	}
}
