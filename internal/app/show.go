package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"match-alerts/internal/storage"
)

// Show prints recent fired alerts, detected patterns, or signal samples.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	switch {
	case opts.Fires:
		return showFires(ctx, store, opts.Limit)
	case opts.Patterns:
		return showPatterns(ctx, store, opts.Limit)
	default:
		return showSamples(ctx, store, opts.Limit)
	}
}

func showFires(ctx context.Context, store *storage.Store, limit int) error {
	fires, err := store.ListRecentFires(ctx, limit)
	if err != nil {
		return err
	}
	if len(fires) == 0 {
		fmt.Fprintln(os.Stdout, "no fired alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tRule\tFixture\tStatus\tMessage")

	for _, fire := range fires {
		name := fire.RuleName
		if name == "" {
			name = fmt.Sprintf("rule %d", fire.RuleID)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\t%s\t%s\n",
			fire.CreatedAt.UTC().Format(time.RFC3339),
			name,
			fire.FixtureID,
			fire.Status,
			sanitizeInline(fire.Message),
		)
	}

	return writer.Flush()
}

func showPatterns(ctx context.Context, store *storage.Store, limit int) error {
	patterns, err := store.ListRecentPatterns(ctx, limit)
	if err != nil {
		return err
	}
	if len(patterns) == 0 {
		fmt.Fprintln(os.Stdout, "no patterns found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Detected (UTC)\tFixture\tPattern\tSeverity\tConfidence\tSide")

	for _, p := range patterns {
		fmt.Fprintf(
			writer,
			"%s\t%d\t%s\t%s\t%.2f\t%s\n",
			p.DetectedAt.UTC().Format(time.RFC3339),
			p.FixtureID,
			p.Kind,
			p.Severity,
			p.Confidence,
			p.Side,
		)
	}

	return writer.Flush()
}

func showSamples(ctx context.Context, store *storage.Store, limit int) error {
	samples, err := store.ListRecentSamples(ctx, limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tMatch\tScore\tMin\txG H/A\tMomentum H/A\tWin% H/A/D")

	for _, sm := range samples {
		fmt.Fprintf(
			writer,
			"%s\t%s vs %s\t%d-%d\t%d\t%.2f/%.2f\t%.1f/%.1f\t%.0f/%.0f/%.0f\n",
			sm.CycleTS.UTC().Format(time.RFC3339),
			sm.HomeTeam,
			sm.AwayTeam,
			sm.HomeScore,
			sm.AwayScore,
			sm.Elapsed,
			sm.XGHome,
			sm.XGAway,
			sm.MomentumHome,
			sm.MomentumAway,
			sm.WinProbHome*100,
			sm.WinProbAway*100,
			sm.DrawProb*100,
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
