package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"plus-ev-alerts/internal/storage"
)

var archiveCSVHeader = []string{
	"sport", "start_time", "home_team", "away_team", "outcome", "sportsbook",
	"decimal_odds", "avg_odds", "thresh", "kelly", "half_kelly", "expected_value",
}

// Export renders the recommendation archive as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxRows = a.Config.ResolveMaxRows(opts.MaxRows)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	archive, closeArchive, err := a.openArchive(ctx, store)
	if err != nil {
		return err
	}
	defer closeArchive()

	bets, err := archive.ListRecentArchive(ctx, opts.MaxRows)
	if err != nil {
		return err
	}
	if len(bets) == 0 {
		a.Logger.Info().Msg("archive is empty; nothing to export")
		return nil
	}
	sortByStart(bets)
	a.Logger.Info().Int("rows", len(bets)).Msg("exporting archive")

	if opts.CSVPath != "" {
		if err := writeArchiveCSV(opts.CSVPath, bets); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if len(bets) < 2 {
			a.Logger.Warn().Msg("chart needs at least two rows; skipping png")
			return nil
		}
		if err := writeArchivePNG(opts.PNGPath, bets); err != nil {
			return err
		}
	}

	return nil
}

func sortByStart(bets []storage.RecommendedBet) {
	sort.SliceStable(bets, func(i, j int) bool {
		return bets[i].StartTime.Before(bets[j].StartTime)
	})
}

func writeArchiveCSV(path string, bets []storage.RecommendedBet) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(archiveCSVHeader); err != nil {
		return err
	}

	for _, b := range bets {
		record := []string{
			b.Sport,
			b.StartTime.UTC().Format(time.RFC3339),
			b.HomeTeam,
			b.AwayTeam,
			b.Outcome,
			b.Sportsbook,
			formatFloat(b.DecimalOdds, 2),
			formatFloat(b.AvgOdds, 2),
			formatFloat(b.Thresh, 4),
			formatFloat(b.Kelly, 4),
			formatFloat(b.HalfKelly, 4),
			formatFloat(b.ExpectedValue, 4),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeArchivePNG(path string, bets []storage.RecommendedBet) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(bets))
	ev := make([]float64, len(bets))
	halfKelly := make([]float64, len(bets))

	for i, b := range bets {
		x[i] = b.StartTime
		ev[i] = b.ExpectedValue
		halfKelly[i] = b.HalfKelly * 100
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Expected value per unit",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.3f")
			},
		},
		YAxisSecondary: chart.YAxis{
			Name: "Half Kelly (%)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.1f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Expected value",
				XValues: x,
				YValues: ev,
			},
			chart.TimeSeries{
				Name:    "Half Kelly %",
				XValues: x,
				YValues: halfKelly,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
