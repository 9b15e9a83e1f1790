// Package control wires storage, the chain poller, the finance engine and the
// API server into one runnable indexer.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/aquads/indexer/internal/core/config"
	"github.com/aquads/indexer/internal/core/worker"
	"github.com/aquads/indexer/internal/indexing/finance"
	"github.com/aquads/indexer/internal/indexing/overview"
	"github.com/aquads/indexer/internal/indexing/poller"
	"github.com/aquads/indexer/internal/indexing/projector"
	"github.com/aquads/indexer/internal/infra/chain/sui"
	redisclient "github.com/aquads/indexer/internal/infra/redis"
	"github.com/aquads/indexer/internal/infra/storage"
	"github.com/aquads/indexer/internal/infra/storage/memory"
	"github.com/aquads/indexer/internal/infra/storage/postgres"
	"github.com/aquads/indexer/internal/infra/viewlog"
	"github.com/aquads/indexer/internal/server"
)

// Indexer is the main application struct managing the service lifecycle.
type Indexer struct {
	cfg    config.AppConfig
	log    *slog.Logger
	db     *postgres.DB
	redis  *redisclient.Client
	poller *poller.Poller
	pruner *worker.Pruner
	api    *server.Server
	cancel context.CancelFunc
}

// NewIndexer creates an indexer with all dependencies initialized. Postgres
// backs storage when a database URL is configured, in-process maps otherwise;
// redis likewise upgrades the page annotations and the claim lock when
// configured.
func NewIndexer(cfg config.AppConfig, log *slog.Logger) (*Indexer, error) {
	if log == nil {
		log = slog.Default()
	}

	var (
		eventRepo  storage.EventRepository
		slotRepo   storage.SlotRepository
		claimRepo  storage.ClaimRepository
		cursorRepo storage.CursorRepository
		pageRepo   storage.PageRepository
		db         *postgres.DB
	)

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		eventRepo = postgres.NewEventRepo(db)
		slotRepo = postgres.NewSlotRepo(db)
		claimRepo = postgres.NewClaimRepo(db)
		cursorRepo = postgres.NewCursorRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		eventRepo = memory.NewEventRepo(store)
		slotRepo = memory.NewSlotRepo(store)
		claimRepo = memory.NewClaimRepo(store)
		cursorRepo = memory.NewCursorRepo(store)
		pageRepo = memory.NewPageRepo(store)
		log.Info("Using memory storage")
	}

	var (
		redisClient *redisclient.Client
		claimLocker finance.Locker
	)
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		pageRepo = redisclient.NewPageRepo(redisClient)
		claimLocker = redisclient.NewLocker(redisClient)
		log.Info("Using Redis for page annotations and claim locks")
	} else if pageRepo == nil {
		// Postgres without redis still needs somewhere for the page map.
		pageRepo = memory.NewPageRepo(memory.NewMemoryStorage())
		log.Warn("No redis configured; page annotations are process-local")
	}

	views, err := viewlog.NewFileLog(cfg.Views.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to init view log: %w", err)
	}

	proj := projector.New(slotRepo, log)
	source := sui.NewClient(cfg.Sui.RPCURL, cfg.Sui.PackageID, cfg.Sui.Module, 10*time.Second)

	chainPoller := poller.New(poller.Config{
		StreamID:      cfg.Sui.StreamID(),
		PackageID:     cfg.Sui.PackageID,
		Source:        source,
		Events:        eventRepo,
		Projector:     proj,
		Cursors:       cursorRepo,
		BatchSize:     cfg.Sui.BatchSize,
		PollInterval:  cfg.Sui.PollInterval.Std(),
		RetryInterval: cfg.Sui.RetryInterval.Std(),
		Log:           log.With("component", "poller"),
	})

	financeEngine := finance.NewEngine(eventRepo, claimRepo, claimLocker, log.With("component", "finance"))
	overviewAgg := overview.New(slotRepo, eventRepo, pageRepo, views)

	api := server.New(
		cfg.Server.Port,
		cfg.Sui,
		slotRepo,
		eventRepo,
		pageRepo,
		financeEngine,
		overviewAgg,
		views,
		log.With("component", "api"),
	)

	return &Indexer{
		cfg:    cfg,
		log:    log,
		db:     db,
		redis:  redisClient,
		poller: chainPoller,
		pruner: worker.NewPruner(cfg.Views, views, log.With("component", "pruner")),
		api:    api,
	}, nil
}

// Start launches the poller, the retention pruner and the API server. It
// returns immediately; the components run until Stop.
func (i *Indexer) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	i.cancel = cancel

	if i.db != nil {
		i.db.StartMetricsCollector(runCtx)
	}

	go func() {
		if err := i.poller.Start(runCtx); err != nil {
			i.log.Error("Poller exited", "error", err)
		}
	}()
	go i.pruner.Start(runCtx)
	go func() {
		if err := i.api.Start(); err != nil {
			i.log.Error("API server exited", "error", err)
		}
	}()

	i.log.Info("Indexer started",
		"stream", i.cfg.Sui.StreamID(),
		"network", i.cfg.Sui.Network,
		"port", i.cfg.Server.Port,
	)
	return nil
}

// Stop shuts everything down, draining the API server within ctx's deadline.
func (i *Indexer) Stop(ctx context.Context) error {
	if i.cancel != nil {
		i.cancel()
	}
	_ = i.poller.Stop()

	if err := i.api.Stop(ctx); err != nil {
		i.log.Warn("API shutdown incomplete", "error", err)
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			i.log.Warn("Redis close failed", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			i.log.Warn("Database close failed", "error", err)
		}
	}
	i.log.Info("Indexer stopped")
	return nil
}
