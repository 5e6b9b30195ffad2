package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"plus-ev-alerts/internal/engine"
	"plus-ev-alerts/internal/fetcher"
	"plus-ev-alerts/internal/metrics"
	"plus-ev-alerts/internal/service"
)

// Evaluate runs the pipeline once against the database or a JSON snapshot.
func (a *App) Evaluate(ctx context.Context, opts EvaluateOptions) error {
	engineOpts, err := a.engineOptions()
	if err != nil {
		return err
	}
	m := metrics.New()
	dispatcher, err := a.newDispatcher(m)
	if err != nil {
		return err
	}

	deps := service.Deps{Notifier: dispatcher, Metrics: m}
	if opts.SnapshotPath != "" {
		snap, err := fetcher.LoadSnapshot(opts.SnapshotPath)
		if err != nil {
			return err
		}
		snapshot := fetcher.NewSnapshotSource(snap)
		deps.Quotes, deps.Consensus, deps.Teams, deps.Archive = snapshot, snapshot, snapshot, snapshot
	} else {
		store, closeStore, err := a.requireStore(ctx, "evaluate")
		if err != nil {
			return err
		}
		defer closeStore()

		archive, closeArchive, err := a.openArchive(ctx, store)
		if err != nil {
			return err
		}
		defer closeArchive()

		deps.Quotes, deps.Consensus, deps.Teams, deps.Archive = store, store, a.teamSource(store), archive
		deps.Outputs = store
		deps.Locker = store
	}

	svc, err := service.New(deps, service.Options{Engine: engineOpts, DryRun: opts.DryRun}, nil, a.Logger)
	if err != nil {
		return err
	}

	if key := a.Config.Scheduler.AdvisoryLockKey; deps.Locker != nil && key != 0 {
		unlock, acquired, err := deps.Locker.TryAdvisoryLock(ctx, key)
		if err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !acquired {
			return fmt.Errorf("another run holds the advisory lock")
		}
		defer unlock()
	}
	report, err := svc.RunOnce(ctx)
	if err != nil {
		return err
	}

	if err := writeReport(os.Stdout, report.Result); err != nil {
		return err
	}

	if opts.OutputPath != "" {
		out := struct {
			RunID string `json:"run_id"`
			*engine.Result
			Diagnostics map[engine.Reason]int `json:"diagnostics"`
		}{RunID: report.RunID, Result: report.Result, Diagnostics: report.Result.Diagnostics.Counts()}
		if err := writeJSONFile(opts.OutputPath, out); err != nil {
			return err
		}
	}
	return nil
}

func writeReport(w io.Writer, res *engine.Result) error {
	fmt.Fprintf(w, "merged lines: %d  plus-EV: %d  new: %d  archive: %d\n",
		len(res.Merged), len(res.PlusEV), len(res.New), len(res.Archive))
	if len(res.PlusEV) == 0 {
		return nil
	}

	fresh := make(map[string]bool, len(res.New))
	for _, o := range res.New {
		fresh[o.ID] = true
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Start (UTC)\tMatchup\tOutcome\tBook\tOdds\tThresh\tEV\tHalf Kelly\tNew")
	for _, o := range res.PlusEV {
		marker := ""
		if fresh[o.ID] {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.StartTime.UTC().Format("2006-01-02 15:04"),
			o.Matchup(),
			o.Outcome,
			o.Sportsbook,
			formatFloat(o.DecimalOdds, 2),
			formatFloat(o.Thresh, 3),
			formatFloat(o.ExpectedValue, 3),
			formatPercent(o.HalfKelly),
			marker,
		)
	}
	return tw.Flush()
}

func writeJSONFile(path string, v any) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
