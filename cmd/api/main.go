package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nexavest/nexavest-backend/api/routes"
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

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	handler, err := buildHandler(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"port": cfg.App.Port,
	})

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "api server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server shut down gracefully")
}

// buildHandler wires the full service graph. The api hosts its own
// orchestrator instance for manual triggers; the scheduled loop runs only in
// the cron worker, and idempotency keys keep double execution harmless.
func buildHandler(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (http.Handler, error) {
	conn := dbClient.DB()

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		DB:      dbClient,
		Repo:    ledger.NewRepository(conn),
		Logger:  logg,
		Metrics: metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return nil, err
	}

	positionRepo := positions.NewRepository(conn)
	userRepo := users.NewRepository(conn)
	commissionRepo := commission.NewRepository(conn)
	bonusRepo := specialbonus.NewRepository(conn)

	bonusService, err := specialbonus.NewService(bonusRepo, userRepo, logg)
	if err != nil {
		return nil, err
	}

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

	lock, err := automation.NewRedisLock(redisClient, redisClient.LockKey("api-trigger"), cfg.Automation.LockTTL)
	if err != nil {
		return nil, err
	}

	registry := automation.NewRegistry(
		automation.NewAccrualJob(accrualEngine),
		automation.NewCommissionJob(commissionEngine),
		automation.NewSpecialBonusJob(bonusEngine),
		automation.NewReconcileJob(ledgerService),
	)

	orchestrator, err := automation.NewOrchestrator(automation.OrchestratorParams{
		Logger:   logg,
		Registry: registry,
		Runs:     automation.NewRunsRepository(conn),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Automation.TickInterval,
	})
	if err != nil {
		return nil, err
	}

	return routes.NewRouter(cfg, logg, dbClient, redisClient, ledgerService, bonusService, orchestrator), nil
}
