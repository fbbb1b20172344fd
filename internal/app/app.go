package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"match-alerts/internal/alerting"
	"match-alerts/internal/config"
	"match-alerts/internal/fetcher"
	"match-alerts/internal/scheduler"
	"match-alerts/internal/service"
	"match-alerts/internal/storage"
	"match-alerts/internal/telemetry"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSource() fetcher.SnapshotSource {
	return fetcher.NewSportsData(fetcher.SportsDataOptions{
		BaseURL:       a.Config.Sports.BaseURL,
		APIKey:        a.Config.Sports.APIKey,
		Timeout:       a.Config.Sports.RequestTimeout,
		UserAgent:     a.Config.Sports.UserAgent,
		RequestsPerS:  a.Config.Sports.RequestsPerSec,
		Burst:         a.Config.Sports.Burst,
		MaxConcurrent: a.Config.Sports.MaxConcurrent,
	}, a.Logger)
}

// newChannels builds the configured delivery channels. The publisher is
// returned separately because the pattern stream uses it directly.
func (a *App) newChannels() (alerting.Notifier, *alerting.EventPublisher, func(), error) {
	var channels []alerting.Notifier
	var publisher *alerting.EventPublisher

	if a.Config.Alerting.SMS.Enabled {
		sms := a.Config.Alerting.SMS
		channels = append(channels, alerting.NewSMSNotifier(sms.AccountSID, sms.AuthToken, sms.From, sms.APIBase, 10*time.Second, a.Logger))
	}
	if a.Config.Alerting.NATS.Enabled {
		pub, err := alerting.NewEventPublisher(a.Config.Alerting.NATS.URL, a.Config.Alerting.NATS.SubjectPrefix, a.Logger)
		if err != nil {
			return nil, nil, nil, err
		}
		publisher = pub
		channels = append(channels, pub)
	}

	closer := func() {
		publisher.Close()
	}

	if len(channels) == 0 {
		return nil, nil, closer, nil
	}
	return alerting.NewMultiNotifier(a.Logger, channels...), publisher, closer, nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; rules, history, and dedup disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	notifier, publisher, closeChannels, err := a.newChannels()
	if err != nil {
		return err
	}
	if closeChannels != nil {
		defer closeChannels()
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)
	telemetry.Serve(ctx, a.Config.Telemetry.ListenAddr, registry, a.Logger)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		ErrorBackoff: a.Config.Scheduler.ErrorBackoff,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	var stores service.Stores
	if store != nil {
		stores = service.Stores{
			Rules:    store,
			Fires:    store,
			Samples:  store,
			Patterns: store,
			Locker:   store,
		}
	}

	var patternPublisher service.PatternPublisher
	if publisher != nil {
		patternPublisher = publisher
	}

	svc := service.New(a.Config, sched, a.newSource(), stores, notifier, patternPublisher, metrics, a.Logger)

	a.Logger.Info().Msg("starting match alert service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("match alert service stopped")
	return nil
}

// ExportOptions hold parameters for exporting a fixture's signal history.
type ExportOptions struct {
	FixtureID int64
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit    int
	Fires    bool
	Patterns bool
}

// SimulateOptions configure the simulate-alert command.
type SimulateOptions struct {
	RulePath  string
	HomeTeam  string
	AwayTeam  string
	HomeScore int
	AwayScore int
	Elapsed   int
	HomeSOT   int
	AwaySOT   int
	HomePoss  float64
}
