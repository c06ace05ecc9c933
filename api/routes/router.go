package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nexavest/nexavest-backend/api/controllers"
	"github.com/nexavest/nexavest-backend/api/middleware"
	"github.com/nexavest/nexavest-backend/internal/automation"
	"github.com/nexavest/nexavest-backend/internal/ledger"
	"github.com/nexavest/nexavest-backend/internal/specialbonus"
	"github.com/nexavest/nexavest-backend/pkg/config"
	"github.com/nexavest/nexavest-backend/pkg/db"
	"github.com/nexavest/nexavest-backend/pkg/logger"
	"github.com/nexavest/nexavest-backend/pkg/redis"
)

// NewRouter wires the admin/control surface. There is no authentication
// layer; the service is deployed on an internal network only.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	ledgerService *ledger.Service,
	bonusService *specialbonus.Service,
	orchestrator *automation.Orchestrator,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.MutationRateLimit(
			middleware.NewRateLimitPolicy(cfg.RateLimit.Window, cfg.RateLimit.Limit),
			redisClient,
			logg,
		),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP, redisClient, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/automation", func(r chi.Router) {
			r.Get("/status", controllers.AutomationStatus(orchestrator, logg))
			r.Get("/runs", controllers.AutomationRuns(orchestrator, logg))
			r.Post("/{job}/trigger", controllers.TriggerJob(orchestrator, logg))
			r.Post("/{job}/pause", controllers.PauseJob(orchestrator, logg))
			r.Post("/{job}/resume", controllers.ResumeJob(orchestrator, logg))
		})

		r.Get("/ledger/entries", controllers.ListLedgerEntries(ledgerService, logg))
		r.Get("/users/{id}/balance", controllers.UserBalance(ledgerService, logg))

		r.Route("/withdrawals", func(r chi.Router) {
			r.Post("/reserve", controllers.ReserveWithdrawal(ledgerService, logg))
			r.Post("/{ref}/finalize", controllers.FinalizeWithdrawal(ledgerService, logg))
			r.Post("/{ref}/reject", controllers.RejectWithdrawal(ledgerService, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/adjustments", controllers.AdminAdjust(ledgerService, logg))
			r.Post("/special-roles", controllers.AssignSpecialRole(bonusService, logg))
			r.Post("/special-roles/deactivate", controllers.DeactivateSpecialRole(bonusService, logg))
		})
	})

	return r
}
