package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"plus-ev-alerts/internal/alerting"
	"plus-ev-alerts/internal/config"
	"plus-ev-alerts/internal/engine"
	"plus-ev-alerts/internal/fetcher"
	"plus-ev-alerts/internal/metrics"
	"plus-ev-alerts/internal/reference"
	"plus-ev-alerts/internal/scheduler"
	"plus-ev-alerts/internal/server"
	"plus-ev-alerts/internal/service"
	"plus-ev-alerts/internal/storage"
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

func (a *App) requireStore(ctx context.Context, purpose string) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, fmt.Errorf("database.dsn not configured; cannot %s", purpose)
	}
	return store, closeStore, nil
}

// openArchive returns the configured archive backend. The postgres backend
// reuses store.
func (a *App) openArchive(ctx context.Context, store *storage.Store) (storage.ArchiveStore, func(), error) {
	switch a.Config.Archive.Backend {
	case config.ArchiveRedis:
		rdb, err := storage.NewRedisClient(ctx, a.Config.Redis)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisArchive(rdb, a.Config.Redis.KeyPrefix), func() { _ = rdb.Close() }, nil
	default:
		if store == nil {
			return nil, nil, errors.New("postgres archive backend requires database.dsn")
		}
		return store, func() {}, nil
	}
}

func (a *App) newPredictor() (engine.Predictor, error) {
	switch a.Config.Edge.Predictor {
	case config.PredictorModel:
		model, err := reference.LoadModel(a.Config.Edge.ModelPath)
		if err != nil {
			return nil, err
		}
		a.Logger.Info().Float64("intercept", model.Intercept).Float64("slope", model.Slope).Msg("loaded probability model")
		return engine.ExternalModelPredictor{Model: model}, nil
	default:
		return engine.ConstantAlphaPredictor{Alpha: a.Config.Edge.Alpha}, nil
	}
}

func (a *App) engineOptions() (engine.Options, error) {
	predictor, err := a.newPredictor()
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		Books:       engine.NewBookSet(a.Config.BettableBooks()...),
		MatchCutoff: a.Config.Reference.MatchCutoff,
		Predictor:   predictor,
		Stake:       engine.StakeSizer{Full: a.Config.Stake.Full, Half: a.Config.Stake.Half},
	}, nil
}

func (a *App) newDispatcher(m *metrics.Metrics) (*alerting.Dispatcher, error) {
	cfg := a.Config.Alerting
	if !cfg.Enabled {
		return nil, nil
	}

	loc, err := config.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	var notifiers []alerting.Notifier
	if cfg.Telegram.Enabled {
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, cfg.RequestTimeout, a.Logger))
	}
	if cfg.Discord.Enabled {
		notifiers = append(notifiers, alerting.NewDiscordNotifier(cfg.Discord.WebhookURL, cfg.RequestTimeout, a.Logger))
	}
	if len(notifiers) == 0 {
		a.Logger.Warn().Msg("alerting enabled but no channel configured")
	}
	return alerting.NewDispatcher(notifiers, loc, m, a.Logger), nil
}

func (a *App) newOddsAPI() *fetcher.OddsAPI {
	cfg := a.Config.OddsAPI
	return fetcher.NewOddsAPI(fetcher.OddsAPIOptions{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		Regions:           cfg.Regions,
		Markets:           cfg.Markets,
		Timeout:           cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		UserAgent:         cfg.UserAgent,
	}, a.Logger)
}

func (a *App) teamSource(store *storage.Store) fetcher.TeamSource {
	if a.Config.Reference.TeamsPath != "" {
		return reference.TeamsFile(a.Config.Reference.TeamsPath)
	}
	return service.StoreTeams{Store: store}
}

func (a *App) newScheduler() (*scheduler.Scheduler, error) {
	opts := scheduler.Options{
		Interval:       a.Config.Scheduler.Interval,
		AlignToBucket:  a.Config.Scheduler.AlignToBucket,
		StartupDelay:   a.Config.Scheduler.StartupDelay,
		RunImmediately: true,
	}
	if a.Config.Scheduler.StopAt != "" {
		hour, minute, err := config.ParseClock(a.Config.Scheduler.StopAt)
		if err != nil {
			return nil, err
		}
		loc, err := config.LoadLocation(a.Config.Scheduler.Timezone)
		if err != nil {
			return nil, err
		}
		opts.Deadline = scheduler.NextClock(time.Now(), hour, minute, loc)
		a.Logger.Info().Time("deadline", opts.Deadline).Msg("daily cutoff scheduled")
	}
	return scheduler.New(opts, a.Logger), nil
}

// Run executes the long-running evaluation service and, when enabled, the read API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.requireStore(ctx, "run the service")
	if err != nil {
		return err
	}
	defer closeStore()

	archive, closeArchive, err := a.openArchive(ctx, store)
	if err != nil {
		return err
	}
	defer closeArchive()

	engineOpts, err := a.engineOptions()
	if err != nil {
		return err
	}
	m := metrics.New()
	dispatcher, err := a.newDispatcher(m)
	if err != nil {
		return err
	}
	sched, err := a.newScheduler()
	if err != nil {
		return err
	}

	var refresher service.Refresher
	if a.Config.OddsAPI.APIKey != "" {
		refresher = &quoteIngester{api: a.newOddsAPI(), store: store, sports: a.Config.OddsAPI.Sports, logger: a.Logger}
	} else {
		a.Logger.Warn().Msg("oddsapi.api_key not configured; evaluating the stored quote feed only")
	}

	svc, err := service.New(service.Deps{
		Refresher: refresher,
		Quotes:    store,
		Consensus: store,
		Teams:     a.teamSource(store),
		Archive:   archive,
		Outputs:   store,
		Notifier:  dispatcher,
		Locker:    store,
		Metrics:   m,
	}, service.Options{
		Engine:        engineOpts,
		LockKey:       a.Config.Scheduler.AdvisoryLockKey,
		StopWhenEmpty: a.Config.Scheduler.StopWhenEmpty,
	}, sched, a.Logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.Config.Server.Enabled {
		srv := server.New(a.Config.Server, server.Deps{Lines: store, Archive: archive, Health: store, Metrics: m}, a.Logger)
		g.Go(func() error { return srv.Run(gctx) })
	}
	g.Go(func() error {
		defer cancel()
		a.Logger.Info().Msg("starting evaluation service")
		err := svc.Run(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error().Err(err).Msg("service terminated with error")
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.Logger.Info().Msg("evaluation service stopped")
	return nil
}

// Serve runs only the read API.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.requireStore(ctx, "serve")
	if err != nil {
		return err
	}
	defer closeStore()

	archive, closeArchive, err := a.openArchive(ctx, store)
	if err != nil {
		return err
	}
	defer closeArchive()

	srv := server.New(a.Config.Server, server.Deps{Lines: store, Archive: archive, Health: store, Metrics: metrics.New()}, a.Logger)
	return srv.Run(ctx)
}

// Migrate applies the schema files.
func (a *App) Migrate(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx, "migrate")
	if err != nil {
		return err
	}
	defer closeStore()

	n, err := store.Migrate(ctx, a.Config.Database.MigrationsPath)
	if err != nil {
		return err
	}
	a.Logger.Info().Int("files", n).Str("dir", a.Config.Database.MigrationsPath).Msg("migrations applied")
	return nil
}

// EvaluateOptions configure a one-shot pipeline run.
type EvaluateOptions struct {
	// SnapshotPath reads every input table from a JSON file instead of the database.
	SnapshotPath string
	// OutputPath writes the run result as JSON.
	OutputPath string
	DryRun     bool
}

// IngestOptions configure the ingest command.
type IngestOptions struct {
	Sports    []string
	TeamsPath string
	TeamsOnly bool
	DryRun    bool
}

// ExportOptions hold parameters for exporting the archive.
type ExportOptions struct {
	PNGPath string
	CSVPath string
	MaxRows int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
	Sport string
	JSON  bool
}

// SimulateOptions describe the synthetic line of simulate-alert.
type SimulateOptions struct {
	Sport         string
	HomeTeam      string
	AwayTeam      string
	Outcome       string
	Sportsbook    string
	DecimalOdds   float64
	ConsensusOdds float64
	StartsIn      time.Duration
}
