package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"match-alerts/internal/storage"
)

// Export renders one fixture's derived-signal history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.FixtureID == 0 {
		return errors.New("--fixture is required")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	samples, err := store.ListFixtureSamples(ctx, opts.FixtureID, from, to)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		a.Logger.Info().Int64("fixture_id", opts.FixtureID).Msg("no samples found for export window")
		return nil
	}

	downsampled := downsampleSamples(samples, opts.MaxPoints)
	a.Logger.Info().Int("total", len(samples)).Int("exported", len(downsampled)).Msg("exporting samples")

	if opts.CSVPath != "" {
		if err := writeSamplesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSamplesPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleSamples(samples []storage.SignalSample, max int) []storage.SignalSample {
	if max <= 0 || len(samples) <= max {
		return samples
	}

	result := make([]storage.SignalSample, 0, max)
	step := float64(len(samples)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		result = append(result, samples[idx])
	}
	return result
}

func writeSamplesCSV(path string, samples []storage.SignalSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"cycle_ts", "elapsed", "home_score", "away_score", "xg_home", "xg_away", "momentum_home", "momentum_away", "pressure_home", "pressure_away", "win_prob_home", "win_prob_away", "draw_prob"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sample := range samples {
		record := []string{
			sample.CycleTS.Format(time.RFC3339),
			strconv.Itoa(sample.Elapsed),
			strconv.Itoa(sample.HomeScore),
			strconv.Itoa(sample.AwayScore),
			formatFloat(sample.XGHome),
			formatFloat(sample.XGAway),
			formatFloat(sample.MomentumHome),
			formatFloat(sample.MomentumAway),
			formatFloat(sample.PressureHome),
			formatFloat(sample.PressureAway),
			formatFloat(sample.WinProbHome),
			formatFloat(sample.WinProbAway),
			formatFloat(sample.DrawProb),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSamplesPNG(path string, samples []storage.SignalSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(samples))
	xgHome := make([]float64, len(samples))
	xgAway := make([]float64, len(samples))
	momentumHome := make([]float64, len(samples))
	momentumAway := make([]float64, len(samples))
	winProbHome := make([]float64, len(samples))

	for i, sample := range samples {
		x[i] = sample.CycleTS
		xgHome[i] = sample.XGHome
		xgAway[i] = sample.XGAway
		momentumHome[i] = sample.MomentumHome
		momentumAway[i] = sample.MomentumAway
		winProbHome[i] = sample.WinProbHome
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}

	title := ""
	if len(samples) > 0 {
		title = fmt.Sprintf("%s vs %s", samples[0].HomeTeam, samples[0].AwayTeam)
	}

	graph := chart.Chart{
		Title:  title,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "xG / Momentum",
			ValueFormatter: valueFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Win probability",
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "xG home",
				XValues: x,
				YValues: xgHome,
			},
			chart.TimeSeries{
				Name:    "xG away",
				XValues: x,
				YValues: xgAway,
			},
			chart.TimeSeries{
				Name:    "Momentum home",
				XValues: x,
				YValues: momentumHome,
			},
			chart.TimeSeries{
				Name:    "Momentum away",
				XValues: x,
				YValues: momentumAway,
			},
			chart.TimeSeries{
				Name:    "Win prob home",
				XValues: x,
				YValues: winProbHome,
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

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
