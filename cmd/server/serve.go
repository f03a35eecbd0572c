package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/yuzvak/crowdfund-service/internal/application/ports"
	"github.com/yuzvak/crowdfund-service/internal/application/use_cases"
	"github.com/yuzvak/crowdfund-service/internal/config"
	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
	httpserver "github.com/yuzvak/crowdfund-service/internal/infrastructure/http/server"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/persistence/memory"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/persistence/postgres"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/persistence/redis"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/rates"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/recipient"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/registry"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/scheduler"
	metricsserver "github.com/yuzvak/crowdfund-service/internal/infrastructure/server"
	"github.com/yuzvak/crowdfund-service/internal/pkg/clock"
	"github.com/yuzvak/crowdfund-service/internal/pkg/logger"
)

// store is what both persistence backends provide.
type store interface {
	ports.CrowdfundRepository
	ports.OutboxRepository
}

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, settlement keeper and outbox dispatcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(rootOpts.ConfigPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.NewLoggerWithConfig(logger.Config{
		Level:       cfg.Logger.Level,
		Development: cfg.Logger.Development,
	})
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("Starting Crowdfund Service", "database", cfg.Database.Driver, "redis", cfg.Redis.Host != "")

	var (
		repo store
		db   *sql.DB
	)
	if cfg.Database.Driver == "" {
		log.Warn("No database driver configured, state is kept in memory")
		repo = memory.NewCrowdfundRepository(memory.NewStore())
	} else {
		conn, err := postgres.NewConnection(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer conn.Close()

		if err := postgres.RunMigrations(ctx, conn, log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		repo = postgres.NewCrowdfundRepository(conn)
		db = conn.GetDB()
	}

	var (
		locker      ports.Locker = memory.NewLocker()
		publisher   ports.Publisher
		redisClient *goredis.Client
	)
	if cfg.Redis.Host != "" {
		redisConn, err := redis.NewConnection(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisConn.Close()

		locker = redis.NewLocker(redisConn, redis.DefaultLockOptions())
		publisher = redis.NewStreamPublisher(redisConn, cfg.Redis.Stream, 0)
		redisClient = redisConn.GetClient()
	}

	rateTable, err := rates.FromConfig(rateConfigs(cfg.Rates))
	if err != nil {
		return fmt.Errorf("invalid rates: %w", err)
	}
	addressBook := recipient.NewAddressBook(cfg.AddressBook.Entries, cfg.AddressBook.Strict)
	tokenRegistry := registry.NewMemoryRegistry()

	engine := crowdfund.NewEngine(rateTable, addressBook, tokenRegistry)
	blocks := clock.NewBlockOracle(clock.NewRealClock(), cfg.Chain.GenesisTime, cfg.Chain.GenesisHeight, cfg.Chain.BlockInterval.Duration)

	crowdfundUseCase := use_cases.NewCrowdfundUseCase(repo, locker, engine, blocks, log, use_cases.Options{
		Contract:      cfg.Sale.Contract,
		LockTTL:       cfg.Sale.LockTTL.Duration,
		RetryAttempts: cfg.Sale.RetryAttempts,
	})

	metricsServer := metricsserver.SetupMetrics(ctx, cfg.Server, db)
	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", "error", err)
			}
		}()
	}

	var keeper *scheduler.SettlementKeeper
	if cfg.Keeper.Enabled {
		keeper = scheduler.NewSettlementKeeper(crowdfundUseCase, log, scheduler.KeeperOptions{
			Interval:   cfg.Keeper.Interval.Duration,
			BatchLimit: cfg.Keeper.BatchLimit,
			Sender:     cfg.Keeper.Sender,
		})
		go keeper.Start(ctx)
	}

	var dispatcher *scheduler.OutboxDispatcher
	if cfg.Dispatcher.Enabled {
		dispatcher = scheduler.NewOutboxDispatcher(repo, tokenRegistry, publisher, log, scheduler.DispatcherOptions{
			Interval:    cfg.Dispatcher.Interval.Duration,
			BatchSize:   cfg.Dispatcher.BatchSize,
			MaxAttempts: cfg.Dispatcher.MaxAttempts,
		})
		go dispatcher.Start(ctx)
	}

	httpServer := httpserver.NewServer(cfg.Server, crowdfundUseCase, db, redisClient, log)

	serverErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")

	shutdownTimeout := cfg.Server.ShutdownTimeout.Duration
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if keeper != nil {
		keeper.Stop()
	}
	if dispatcher != nil {
		dispatcher.Stop()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			log.Error("Metrics server shutdown error", "error", err)
		}
	}

	log.Info("Server stopped")
	return nil
}

func rateConfigs(cfgs []config.RateConfig) []rates.RateConfig {
	out := make([]rates.RateConfig, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, rates.RateConfig{
			Name:      c.Name,
			Recipient: c.Recipient,
			Percent:   c.Percent,
			Deductive: c.Deductive,
		})
	}
	return out
}
