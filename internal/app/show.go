package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"plus-ev-alerts/internal/storage"
)

// Show prints the most recently recommended bets.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
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

	bets, err := archive.ListRecentArchive(ctx, opts.Limit)
	if err != nil {
		return err
	}
	bets = filterSport(bets, opts.Sport)
	if opts.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(bets)
	}
	return writeArchiveTable(os.Stdout, bets)
}

func filterSport(bets []storage.RecommendedBet, sport string) []storage.RecommendedBet {
	if sport == "" {
		return bets
	}
	out := bets[:0]
	for _, b := range bets {
		if b.Sport == sport {
			out = append(out, b)
		}
	}
	return out
}

func writeArchiveTable(w io.Writer, bets []storage.RecommendedBet) error {
	if len(bets) == 0 {
		fmt.Fprintln(w, "no recommended bets found")
		return nil
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Recommended (UTC)\tStart (UTC)\tMatchup\tOutcome\tBook\tOdds\tThresh\tEV\tKelly%\tHalf%")

	for _, b := range bets {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			b.RecommendedAt.UTC().Format(time.RFC3339),
			b.StartTime.UTC().Format("2006-01-02 15:04"),
			sanitizeInline(b.Matchup()),
			sanitizeInline(b.Outcome),
			sanitizeInline(b.Sportsbook),
			formatFloat(b.DecimalOdds, 2),
			formatFloat(b.Thresh, 3),
			formatFloat(b.ExpectedValue, 3),
			formatPercent(b.Kelly),
			formatPercent(b.HalfKelly),
		)
	}

	return writer.Flush()
}

func formatFloat(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

func formatPercent(fraction float64) string {
	return decimal.NewFromFloat(fraction).Shift(2).StringFixed(1)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
