package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"market-pulse-bot/internal/compose"
	"market-pulse-bot/internal/config"
	"market-pulse-bot/internal/dedupe"
	"market-pulse-bot/internal/feed"
	"market-pulse-bot/internal/ops"
	"market-pulse-bot/internal/pipeline"
	"market-pulse-bot/internal/platform"
	"market-pulse-bot/internal/ratelimit"
	"market-pulse-bot/internal/scheduler"
	"market-pulse-bot/internal/storage"
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
		return nil, nil, errors.New("database.dsn not configured")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) buildCatalog() (feed.Catalog, error) {
	catalog := feed.DefaultCatalog()
	if len(a.Config.Scheduler.Sources) == 0 {
		return catalog, nil
	}
	return catalog.Filter(a.Config.Scheduler.Sources)
}

func (a *App) newPublishers() []platform.Publisher {
	var pubs []platform.Publisher
	if a.Config.Twitter.Enabled {
		pubs = append(pubs, platform.NewTwitter(a.Config.Twitter, a.Config.App.DryRun, a.Logger))
	}
	if a.Config.Discord.Enabled {
		pubs = append(pubs, platform.NewDiscord(a.Config.Discord, a.Config.App.DryRun, a.Logger))
	}
	return pubs
}

func (a *App) newGenerator() compose.Generator {
	if a.Config.OpenAI.APIKey == "" {
		return nil
	}
	return compose.NewOpenAIGenerator(a.Config.OpenAI, a.Logger)
}

// runtime bundles the assembled posting stack shared by the run and
// trigger commands.
type runtime struct {
	store   *storage.Store
	catalog feed.Catalog
	deduper *dedupe.Deduplicator
	limiter *ratelimit.Limiter
	charts  *platform.ChartCache
	runner  *pipeline.Runner
	close   func()
}

func (a *App) buildRuntime(ctx context.Context) (*runtime, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	catalog, err := a.buildCatalog()
	if err != nil {
		closeStore()
		return nil, err
	}

	registry := compose.NewRegistry(a.Logger)
	if err := registry.Validate(catalog.Names()); err != nil {
		closeStore()
		return nil, err
	}

	loc, err := time.LoadLocation(a.Config.Scheduler.Timezone)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("load timezone %q: %w", a.Config.Scheduler.Timezone, err)
	}

	deduper := dedupe.New(store, a.Logger)
	limiter := ratelimit.New(store, ratelimit.Options{
		Platform:  platform.NameTwitter,
		PerMinute: a.Config.Twitter.MaxPostsPerMinute,
		PerDay:    a.Config.Twitter.MaxPostsPerDay,
	}, a.Logger)
	charts := platform.NewChartCache(a.Config.Charts, a.Logger)

	runner := pipeline.NewRunner(pipeline.Dependencies{
		Fetcher:    feed.NewClient(a.Config.Hub, a.Logger),
		Dedupe:     deduper,
		Limiter:    limiter,
		Registry:   registry,
		Generator:  a.newGenerator(),
		Charts:     charts,
		Publishers: a.newPublishers(),
	}, pipeline.Options{
		Location:    loc,
		MarketOpen:  feed.ClockTime{Hour: a.Config.Market.OpenHour, Minute: a.Config.Market.OpenMinute},
		MarketClose: feed.ClockTime{Hour: a.Config.Market.CloseHour, Minute: a.Config.Market.CloseMinute},
	}, a.Logger)

	return &runtime{
		store:   store,
		catalog: catalog,
		deduper: deduper,
		limiter: limiter,
		charts:  charts,
		runner:  runner,
		close:   closeStore,
	}, nil
}

// newMaintenance builds the nightly retention pass: expired dedup journal
// rows, ledger entries past the rate-limit horizon, and stale cached
// chart images.
func (a *App) newMaintenance(rt *runtime) func(context.Context) {
	retention := time.Duration(a.Config.Retention.Days) * 24 * time.Hour
	return func(ctx context.Context) {
		cutoff := time.Now().Add(-retention)

		if removed, err := rt.deduper.Sweep(ctx, cutoff); err != nil {
			a.Logger.Error().Err(err).Msg("dedup journal sweep failed")
		} else if removed > 0 {
			a.Logger.Info().Int64("removed", removed).Msg("dedup journal swept")
		}

		if removed, err := rt.limiter.Prune(ctx, cutoff); err != nil {
			a.Logger.Error().Err(err).Msg("posting ledger prune failed")
		} else if removed > 0 {
			a.Logger.Info().Int64("removed", removed).Msg("posting ledger pruned")
		}

		if removed, err := rt.charts.Evict(); err != nil {
			a.Logger.Error().Err(err).Msg("chart cache eviction failed")
		} else if removed > 0 {
			a.Logger.Info().Int("removed", removed).Msg("chart cache evicted")
		}
	}
}

// Run executes the long-running posting service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !a.Config.App.DryRun {
		if missing := a.Config.MissingCredentials(); len(missing) > 0 {
			return fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
		}
	}

	rt, err := a.buildRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	sched, err := scheduler.New(rt.catalog, rt.runner, scheduler.Options{
		Timezone:    a.Config.Scheduler.Timezone,
		DailyCap:    a.Config.Scheduler.DailyCap,
		Maintenance: a.newMaintenance(rt),
		Stats:       rt.runner.Stats,
	}, a.Logger)
	if err != nil {
		return err
	}

	var opsSrv *ops.Server
	var opsErr <-chan error
	if a.Config.Ops.Enabled {
		opsSrv = ops.NewServer(a.Config.Ops, ops.Dependencies{
			Control:  sched,
			Pipeline: rt.runner,
			Journal:  rt.deduper,
			Limiter:  rt.limiter,
		}, a.Logger)
		opsErr = opsSrv.Start()
	}

	sched.Start(ctx)
	a.Logger.Info().
		Str("timezone", a.Config.Scheduler.Timezone).
		Int("daily_cap", a.Config.Scheduler.DailyCap).
		Int("sources", rt.catalog.Len()).
		Bool("dry_run", a.Config.App.DryRun).
		Msg("posting service started")

	var runErr error
	select {
	case <-ctx.Done():
		a.Logger.Info().Msg("shutdown signal received")
	case err, ok := <-opsErr: // nil channel blocks forever when ops is disabled
		if ok && err != nil {
			a.Logger.Error().Err(err).Msg("ops server terminated")
			runErr = fmt.Errorf("ops server: %w", err)
		}
	}

	if opsSrv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		if err := opsSrv.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn().Err(err).Msg("ops server shutdown incomplete")
		}
		cancelShutdown()
	}

	sched.Stop()
	a.Logger.Info().Msg("posting service stopped")
	return runErr
}

// ExportOptions hold parameters for exporting publish history.
type ExportOptions struct {
	From    *time.Time
	To      *time.Time
	PNGPath string
	CSVPath string
	Days    int
}
