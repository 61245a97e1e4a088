package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-redis/redis/v8"

	appconfig "scout-alerts/internal/config"
	pgRepo "scout-alerts/internal/infra/adapter/persistence/postgres"
	"scout-alerts/internal/infra/adapter/persistence/memory"
	"scout-alerts/internal/infra/cache"
	"scout-alerts/internal/infra/db"
	"scout-alerts/internal/infra/lock"
	"scout-alerts/internal/infra/provider"
	"scout-alerts/internal/observability/metrics"
	"scout-alerts/internal/repository"
	"scout-alerts/internal/usecase/delivery"
	"scout-alerts/internal/usecase/interest"
	"scout-alerts/internal/usecase/poll"
	"scout-alerts/internal/usecase/report"
)

// Repositories is one consistent set of stores.
type Repositories struct {
	Users         repository.UserRepository
	Tags          repository.TagRepository
	Interests     repository.InterestRepository
	Subscriptions repository.SubscriptionRepository
	SeenItems     repository.SeenItemRepository
	Deliveries    repository.DeliveryRepository
	Receipts      repository.ReceiptRepository
	Cache         repository.CacheRepository
	Reports       repository.ReportRepository
}

// App is the wired pipeline.
type App struct {
	Settings    Settings
	Repos       Repositories
	Registry    *provider.Registry
	Reports     report.Service
	Poller      *poll.Service
	Dispatcher  *delivery.Dispatcher
	Interests   *interest.Service
	Locker      poll.Locker
	ReadyChecks map[string]func(ctx context.Context) error
	closers     []func() error
	logger      *slog.Logger
}

// Build wires every component from s. The caller must Close the App.
func Build(ctx context.Context, logger *slog.Logger, s Settings) (*App, error) {
	a := &App{
		Settings:    s,
		ReadyChecks: make(map[string]func(ctx context.Context) error),
		logger:      logger,
	}

	if err := a.openStorage(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.openCache(); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.openLocker(); err != nil {
		_ = a.Close()
		return nil, err
	}

	providersCfg, err := appconfig.LoadProvidersConfig(s.ProvidersConfig)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("load providers config: %w", err)
	}
	fetchCfg, err := provider.LoadFetchConfigFromEnv()
	if err != nil {
		logger.Warn("invalid provider fetch configuration, using defaults", slog.Any("error", err))
		fetchCfg = provider.DefaultFetchConfig()
	}
	a.Registry = provider.NewRegistry(providersCfg, fetchCfg.DenyPrivateIPs)

	a.Reports = report.NewService(reportChannels(logger), a.Repos.Reports, report.Config{
		MaxConcurrent: s.ReportMaxConcurrent,
		MinStatus:     s.ReportMinStatus,
	})

	scheduler := delivery.NewScheduler(a.Repos.Users, a.Repos.Deliveries)
	a.Poller = poll.NewService(poll.Deps{
		Registry:      a.Registry,
		Fetcher:       provider.NewHTTPFetcher(fetchCfg),
		Cache:         a.Repos.Cache,
		SeenItems:     a.Repos.SeenItems,
		Subscriptions: a.Repos.Subscriptions,
		Interests:     a.Repos.Interests,
		Events:        a.Repos.Reports,
		Scheduler:     scheduler,
		Followers:     interest.NewFollowerFinder(a.Repos.Interests, a.Repos.Tags),
		Reporter:      a.Reports,
		Locker:        a.Locker,
	}, s.Poll)

	a.Dispatcher = delivery.NewDispatcher(delivery.Deps{
		Users:      a.Repos.Users,
		Interests:  a.Repos.Interests,
		Deliveries: a.Repos.Deliveries,
		Receipts:   a.Repos.Receipts,
		Transport:  newTransport(logger),
		Renderer:   delivery.NewRenderer(a.Registry, s.BaseURL),
		Reporter:   a.Reports,
		Locker:     a.Locker,
	})

	interestDeps := interest.Deps{
		Registry:      a.Registry,
		Interests:     a.Repos.Interests,
		Subscriptions: a.Repos.Subscriptions,
		SeenItems:     a.Repos.SeenItems,
		Deliveries:    a.Repos.Deliveries,
		Tags:          a.Repos.Tags,
		Initializer:   a.Poller,
		Finder:        a.Poller,
	}
	// feeds may be disabled; keep the interface nil rather than a nil *Feed
	if feed := a.Registry.Feed(); feed != nil {
		interestDeps.Feeds = feed
	}
	a.Interests = interest.NewService(interestDeps)

	logger.Info("pipeline wired",
		slog.String("storage", s.Storage),
		slog.String("cache", s.Cache),
		slog.Bool("redis_lock", s.RedisURL != ""),
		slog.Bool("dry_run", s.DryRun),
		slog.Int("poll_parallelism", s.Poll.Parallelism),
		slog.Duration("backfill_window", s.Poll.BackfillWindow))

	return a, nil
}

func (a *App) openStorage(ctx context.Context) error {
	if a.Settings.Storage == StorageMemory {
		store := memory.NewStore()
		a.Repos = Repositories{
			Users:         store.Users(),
			Tags:          store.Tags(),
			Interests:     store.Interests(),
			Subscriptions: store.Subscriptions(),
			SeenItems:     store.SeenItems(),
			Deliveries:    store.Deliveries(),
			Receipts:      store.Receipts(),
			Cache:         store.Cache(),
			Reports:       store.Reports(),
		}
		return nil
	}

	database, err := db.Open(ctx)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, database.Close)
	a.ReadyChecks["database"] = func(ctx context.Context) error {
		stats := database.Stats()
		metrics.UpdateDBConnectionStats(stats.InUse, stats.Idle)
		return database.PingContext(ctx)
	}
	a.Repos = postgresRepositories(database)
	return nil
}

func postgresRepositories(database *sql.DB) Repositories {
	return Repositories{
		Users:         pgRepo.NewUserRepo(database),
		Tags:          pgRepo.NewTagRepo(database),
		Interests:     pgRepo.NewInterestRepo(database),
		Subscriptions: pgRepo.NewSubscriptionRepo(database),
		SeenItems:     pgRepo.NewSeenItemRepo(database),
		Deliveries:    pgRepo.NewDeliveryRepo(database),
		Receipts:      pgRepo.NewReceiptRepo(database),
		Cache:         pgRepo.NewCacheRepo(database),
		Reports:       pgRepo.NewReportRepo(database),
	}
}

func (a *App) openCache() error {
	switch a.Settings.Cache {
	case CacheNone:
		a.Repos.Cache = nil
	case CacheBadger:
		bdb, err := cache.Open(a.Settings.BadgerDir)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, bdb.Close)
		a.ReadyChecks["cache"] = func(context.Context) error {
			if bdb.IsClosed() {
				return badger.ErrDBClosed
			}
			return nil
		}
		a.Repos.Cache = cache.NewBadgerCache(bdb)
	}
	// CachePostgres keeps the repository set by openStorage.
	return nil
}

func (a *App) openLocker() error {
	if a.Settings.RedisURL == "" {
		a.Locker = lock.NewKeyedMutex()
		return nil
	}
	client, err := lock.NewRedisClient(a.Settings.RedisURL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, client.Close)
	a.ReadyChecks["redis"] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	a.Locker = lock.NewRedisLocker(client, "scout:", a.Settings.LockTTL)
	return nil
}

// Close flushes pending reports and releases every backend, newest first.
func (a *App) Close() error {
	var errs []error
	if a.Reports != nil {
		ctx, cancel := context.WithTimeout(context.Background(), reportDrainTimeout)
		if err := a.Reports.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("report shutdown: %w", err))
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
