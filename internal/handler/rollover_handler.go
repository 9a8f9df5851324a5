package handler

import (
	"net/http"
	"time"

	"github.com/finmate/finance-tracker-go/internal/domain"
	"github.com/finmate/finance-tracker-go/internal/infra/observability"
	"github.com/finmate/finance-tracker-go/internal/port"
	"github.com/finmate/finance-tracker-go/internal/recurrence"
	"github.com/finmate/finance-tracker-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// ============================================================
// History & rollover
// GET  /v1/finance/history
// POST /v1/finance/rollover
// ============================================================

func historyHandler(svc *service.RolloverService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/finance/history")
		defer span.End()

		hist, err := svc.GetHistory(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, hist)
	}
}

func rolloverHandler(svc *service.RolloverService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/finance/rollover")
		defer span.End()

		res, err := svc.PerformRollover(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// ============================================================
// Achievements
// GET  /v1/achievements
// POST /v1/achievements/seen
// ============================================================

func listAchievementsHandler(svc *service.MilestoneService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/achievements")
		defer span.End()

		ach, err := svc.ListAchievements(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, ach)
	}
}

func markSeenHandler(svc *service.MilestoneService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/achievements/seen")
		defer span.End()

		n, err := svc.MarkMilestonesSeen(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.MarkSeenResponse{Updated: n})
	}
}

// ============================================================
// Recurrence preview
// POST /v1/recurrence/next
// ============================================================

func nextOccurrenceHandler(clock port.Clock, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /v1/recurrence/next")
		defer span.End()

		var req domain.NextOccurrenceRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		from := clock.Now()
		if req.From != "" {
			d, err := time.ParseInLocation(dateLayout, req.From, from.Location())
			if err != nil {
				writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
				return
			}
			from = d
		}

		sched := domain.Schedule{Frequency: req.Frequency, DayOfMonth: req.DayOfMonth, DayOfWeek: req.DayOfWeek}
		if err := recurrence.Validate(sched); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		next, err := recurrence.NextOccurrence(sched, from)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.NextOccurrenceResponse{
			Frequency:       req.Frequency,
			NextPaymentDate: next.Format(dateLayout),
		})
	}
}

// ============================================================
// Operator
// POST /v1/admin/users/{userId}/rollover
// POST /v1/admin/rollover/run
// GET  /v1/admin/rollover/stats
// ============================================================

func adminRolloverHandler(svc *service.RolloverService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/users/{userId}/rollover")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		span.SetAttributes(attribute.String("user.id", userID))

		logger.Info("operator triggered rollover",
			zap.String("operator_id", UserIDFromContext(ctx)),
			zap.String("user_id", userID),
		)

		resp, err := svc.TriggerRollover(ctx, userID)
		if err != nil {
			status, _ := errorStatus(err)
			logServiceError(logger, status, err)
			writeJSON(w, status, resp)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func adminRunBatchHandler(scheduler *service.Scheduler, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/rollover/run")
		defer span.End()

		logger.Info("operator triggered rollover batch", zap.String("operator_id", UserIDFromContext(ctx)))

		report, err := scheduler.RunNow(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func adminStatsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.RolloverSnapshot())
	}
}
