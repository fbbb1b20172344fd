package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"match-alerts/internal/alerting"
	"match-alerts/internal/domain"
	"match-alerts/internal/engine"
	"match-alerts/internal/stats"
	"match-alerts/internal/storage"
)

// SimulateAlert evaluates a rule file against a synthetic snapshot and,
// when channels are configured, dispatches the resulting notification.
// No state is persisted and no dedup applies.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	rule, err := loadRuleFile(opts.RulePath)
	if err != nil {
		return err
	}

	snap := domain.MatchSnapshot{
		FixtureID: 0,
		HomeTeam:  opts.HomeTeam,
		AwayTeam:  opts.AwayTeam,
		HomeScore: opts.HomeScore,
		AwayScore: opts.AwayScore,
		Elapsed:   opts.Elapsed,
		Home: domain.TeamStats{
			ShotsOnTarget: opts.HomeSOT,
			Possession:    opts.HomePoss,
		},
		Away: domain.TeamStats{
			ShotsOnTarget: opts.AwaySOT,
			Possession:    100 - opts.HomePoss,
		},
		FetchedAt: time.Now().UTC(),
	}

	sig := stats.NewCalculator().Derive(snap)
	fired, message := engine.NewEvaluator(a.Logger).Evaluate(rule, snap, sig)

	if !fired {
		fmt.Fprintln(os.Stdout, "rule did not fire")
		return nil
	}

	fmt.Fprintf(os.Stdout, "rule fired: %s\n", message)

	if !a.Config.Alerting.Enabled {
		return nil
	}
	notifier, _, closeChannels, err := a.newChannels()
	if err != nil {
		return err
	}
	if closeChannels != nil {
		defer closeChannels()
	}
	if notifier == nil {
		a.Logger.Warn().Msg("no delivery channels configured; skipping dispatch")
		return nil
	}

	note := alerting.NewNotification(
		rule.ID, rule.Name, snap.FixtureID,
		fmt.Sprintf("%s vs %s", snap.HomeTeam, snap.AwayTeam),
		snap.Elapsed, message, rule.UserID, rule.Phone,
	)
	return notifier.Notify(ctx, note)
}

// loadRuleFile parses a rule definition from disk using the same JSON
// shape the rule store persists.
func loadRuleFile(path string) (domain.AlertRule, error) {
	if path == "" {
		return domain.AlertRule{}, errors.New("--rule file is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.AlertRule{}, fmt.Errorf("read rule file: %w", err)
	}

	var payload struct {
		Name        string          `json:"name"`
		UserID      string          `json:"user_id"`
		Phone       string          `json:"phone"`
		Condition   json.RawMessage `json:"condition"`
		TimeWindows json.RawMessage `json:"time_windows"`
		Sequences   json.RawMessage `json:"sequences"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.AlertRule{}, fmt.Errorf("parse rule file: %w", err)
	}

	rec := storage.RuleRecord{
		Name:        payload.Name,
		UserID:      payload.UserID,
		Phone:       payload.Phone,
		Condition:   payload.Condition,
		TimeWindows: payload.TimeWindows,
		Sequences:   payload.Sequences,
	}
	return rec.ToDomain()
}
