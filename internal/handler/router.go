package handler

import (
	"net/http"
	"time"

	"github.com/finmate/finance-tracker-go/internal/domain"
	"github.com/finmate/finance-tracker-go/internal/infra/observability"
	"github.com/finmate/finance-tracker-go/internal/port"
	"github.com/finmate/finance-tracker-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Deps are the collaborators the HTTP layer calls into.
type Deps struct {
	Store      port.UserStore
	Clock      port.Clock
	Finance    *service.FinanceService
	Rollover   *service.RolloverService
	Milestones *service.MilestoneService
	Scheduler  *service.Scheduler
	Tokens     *service.TokenVerifier
	Metrics    *observability.Metrics
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(d Deps, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(d.Store))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(JWTAuthMiddleware(d.Tokens, logger))

		// Finance document
		r.Post("/finance", createFinanceHandler(d.Finance, logger))
		r.Get("/finance", getFinanceHandler(d.Finance, logger))
		r.Put("/finance/income", setIncomeHandler(d.Finance, logger))

		// Expenses
		r.Post("/finance/expenses/{kind}", addExpenseHandler(d.Finance, logger))
		r.Patch("/finance/expenses/{kind}/{expenseId}", updateExpenseHandler(d.Finance, logger))
		r.Delete("/finance/expenses/{kind}/{expenseId}", deleteExpenseHandler(d.Finance, logger))

		// Budget limits
		r.Put("/finance/budget-limits/{category}", setBudgetLimitHandler(d.Finance, logger))
		r.Delete("/finance/budget-limits/{category}", deleteBudgetLimitHandler(d.Finance, logger))

		// Rollover
		r.Get("/finance/history", historyHandler(d.Rollover, logger))
		r.Post("/finance/rollover", rolloverHandler(d.Rollover, logger))

		// Achievements
		r.Get("/achievements", listAchievementsHandler(d.Milestones, logger))
		r.Post("/achievements/seen", markSeenHandler(d.Milestones, logger))

		// Recurrence preview
		r.Post("/recurrence/next", nextOccurrenceHandler(d.Clock, logger))

		// Operator
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireOperator(logger))
			r.Post("/users/{userId}/rollover", adminRolloverHandler(d.Rollover, logger))
			r.Post("/rollover/run", adminRunBatchHandler(d.Scheduler, logger))
			r.Get("/rollover/stats", adminStatsHandler(d.Metrics))
		})
	})

	return r
}

func healthzHandler(store port.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "finance-tracker", Status: "healthy", LastChecked: now},
		}

		if store != nil {
			start := time.Now()
			err := store.Ping(r.Context())
			status := "healthy"
			if err != nil {
				status = "unhealthy"
			}
			services = append(services, domain.ServiceHealth{
				Name: "store", Status: status, LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
		}

		code := http.StatusOK
		if overallStatus != "healthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
