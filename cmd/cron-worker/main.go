package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nexavest/nexavest-backend/internal/accrual"
	"github.com/nexavest/nexavest-backend/internal/automation"
	"github.com/nexavest/nexavest-backend/internal/commission"
	"github.com/nexavest/nexavest-backend/internal/ledger"
	"github.com/nexavest/nexavest-backend/internal/positions"
	"github.com/nexavest/nexavest-backend/internal/specialbonus"
	"github.com/nexavest/nexavest-backend/internal/users"
	"github.com/nexavest/nexavest-backend/pkg/config"
	"github.com/nexavest/nexavest-backend/pkg/db"
	"github.com/nexavest/nexavest-backend/pkg/logger"
	"github.com/nexavest/nexavest-backend/pkg/metrics"
	"github.com/nexavest/nexavest-backend/pkg/migrate"
	"github.com/nexavest/nexavest-backend/pkg/redis"
)

const lockKeyFormat = "nv:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	orchestrator, err := buildOrchestrator(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build orchestrator", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := orchestrator.RunLoop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildOrchestrator(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*automation.Orchestrator, error) {
	conn := dbClient.DB()

	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)
	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		DB:      dbClient,
		Repo:    ledger.NewRepository(conn),
		Logger:  logg,
		Metrics: ledgerMetrics,
	})
	if err != nil {
		return nil, err
	}

	positionRepo := positions.NewRepository(conn)
	userRepo := users.NewRepository(conn)
	commissionRepo := commission.NewRepository(conn)
	bonusRepo := specialbonus.NewRepository(conn)

	accrualEngine, err := accrual.NewEngine(accrual.EngineParams{
		DB:        dbClient,
		Positions: positionRepo,
		Ledger:    ledgerService,
		Logger:    logg,
		BatchSize: cfg.Accrual.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	commissionEngine, err := commission.NewEngine(commission.EngineParams{
		DB:     dbClient,
		Repo:   commissionRepo,
		Users:  userRepo,
		Ledger: ledgerService,
		Logger: logg,
		Config: cfg.Commission,
	})
	if err != nil {
		return nil, err
	}

	bonusRate, err := cfg.SpecialBonus.Rate()
	if err != nil {
		return nil, err
	}
	bonusEngine, err := specialbonus.NewEngine(specialbonus.EngineParams{
		DB:          dbClient,
		Repo:        bonusRepo,
		Users:       userRepo,
		Positions:   positionRepo,
		Commissions: commissionRepo,
		Ledger:      ledgerService,
		Logger:      logg,
		Rate:        bonusRate,
	})
	if err != nil {
		return nil, err
	}

	lock, err := automation.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Automation.LockTTL)
	if err != nil {
		return nil, err
	}

	registry := automation.NewRegistry(
		automation.NewAccrualJob(accrualEngine),
		automation.NewCommissionJob(commissionEngine),
		automation.NewSpecialBonusJob(bonusEngine),
		automation.NewReconcileJob(ledgerService),
	)

	return automation.NewOrchestrator(automation.OrchestratorParams{
		Logger:   logg,
		Registry: registry,
		Runs:     automation.NewRunsRepository(conn),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Automation.TickInterval,
	})
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
