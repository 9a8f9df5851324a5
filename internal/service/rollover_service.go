package service

import (
	"context"
	"errors"
	"time"

	"github.com/finmate/finance-tracker-go/internal/domain"
	"github.com/finmate/finance-tracker-go/internal/infra/observability"
	"github.com/finmate/finance-tracker-go/internal/infra/resilience"
	"github.com/finmate/finance-tracker-go/internal/port"
	"github.com/finmate/finance-tracker-go/internal/recurrence"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var rolloverTracer = otel.Tracer("service/rollover")

// RolloverConfig bounds a single user's rollover.
type RolloverConfig struct {
	// Timeout caps the whole read-modify-write for one user. Zero disables it.
	Timeout time.Duration
	// Retry governs re-reads after a version conflict.
	Retry resilience.Config
}

// RolloverService closes a user's month: it archives the month into history,
// carries active recurring expenses forward, and resets the transient fields.
type RolloverService struct {
	store     port.UserStore
	evaluator port.MilestoneEvaluator
	clock     port.Clock
	locks     *UserLocks
	bulkhead  *resilience.Bulkhead
	history   port.Cache[[]domain.MonthRecord]
	cfg       RolloverConfig
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewRolloverService creates the rollover engine with all dependencies injected.
func NewRolloverService(
	store port.UserStore,
	evaluator port.MilestoneEvaluator,
	clock port.Clock,
	locks *UserLocks,
	bulkhead *resilience.Bulkhead,
	history port.Cache[[]domain.MonthRecord],
	cfg RolloverConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *RolloverService {
	return &RolloverService{
		store:     store,
		evaluator: evaluator,
		clock:     clock,
		locks:     locks,
		bulkhead:  bulkhead,
		history:   history,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// PerformRollover closes the current month for userID in one atomic write.
//
// Errors: *domain.ErrNotFound when the user has no document,
// *domain.ErrAlreadyRolledOver when this month was already closed, and
// *domain.ErrRolloverFailed (wrapping the cause) for everything else.
// On error nothing is committed.
func (s *RolloverService) PerformRollover(ctx context.Context, userID string) (*domain.RolloverResult, error) {
	ctx, span := rolloverTracer.Start(ctx, "RolloverService.PerformRollover")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	start := time.Now()

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	result, err := s.perform(ctx, userID)
	if err != nil {
		err = s.classify(ctx, userID, err)
		var already *domain.ErrAlreadyRolledOver
		if errors.As(err, &already) {
			s.metrics.RecordRollover(observability.OutcomeSkipped, time.Since(start))
			s.logger.Info("rollover skipped: month already closed",
				zap.String("user_id", userID),
				zap.String("month", already.Month),
			)
			return nil, err
		}
		s.metrics.RecordRollover(observability.OutcomeFailed, time.Since(start))
		span.RecordError(err)
		return nil, err
	}

	s.history.Delete(historyKey(userID))
	s.metrics.RecordRollover(observability.OutcomeSuccess, time.Since(start))
	for _, m := range result.NewMilestones {
		s.metrics.IncrMilestone(m.Type)
		s.logger.Info("milestone unlocked",
			zap.String("user_id", userID),
			zap.String("milestone", string(m.Type)),
		)
	}
	s.logger.Info("rollover completed",
		zap.String("user_id", userID),
		zap.String("month", result.Month),
		zap.Stringer("savings", result.PreviousMonthSavings),
		zap.Stringer("cumulative_savings", result.CumulativeSavings),
		zap.Int("recurring_kept", result.RecurringExpensesKept),
		zap.Int("new_milestones", len(result.NewMilestones)),
	)
	return result, nil
}

func (s *RolloverService) perform(ctx context.Context, userID string) (*domain.RolloverResult, error) {
	if err := s.bulkhead.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.bulkhead.Release()

	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *domain.RolloverResult
	err = resilience.RetryWithBackoff(ctx, s.cfg.Retry, resilience.IsVersionConflict, func() error {
		u, err := s.store.Find(ctx, userID)
		if err != nil {
			return err
		}
		r, err := s.apply(u, s.clock.Now())
		if err != nil {
			return err
		}
		if err := s.store.Save(ctx, u); err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

// apply mutates u in memory. It fails before touching u if any carried
// expense cannot be rescheduled.
func (s *RolloverService) apply(u *domain.UserFinance, now time.Time) (*domain.RolloverResult, error) {
	month := domain.MonthKey(now)
	if u.LastRolloverMonth == month {
		return nil, &domain.ErrAlreadyRolledOver{UserID: u.ID, Month: month}
	}

	kept := make([]domain.Expense, 0, len(u.FixedExpenses))
	for _, e := range domain.CloneExpenses(u.FixedExpenses) {
		if !e.SurvivesRollover() {
			continue
		}
		if e.NextPaymentDate != nil {
			next, err := recurrence.NextOccurrence(e.Schedule(), now)
			if err != nil {
				return nil, err
			}
			e.NextPaymentDate = &next
		}
		kept = append(kept, e)
	}

	fixedTotal := domain.SumAmounts(u.FixedExpenses)
	variableTotal := domain.SumAmounts(u.VariableExpenses)
	totalExpenses := fixedTotal.Add(variableTotal)
	savings := u.MonthlyIncome.Sub(totalExpenses)

	u.MonthlyHistory = append(u.MonthlyHistory, domain.MonthRecord{
		Month:            month,
		Year:             now.Year(),
		MonthName:        now.Month().String(),
		Income:           u.MonthlyIncome,
		TotalExpenses:    totalExpenses,
		Savings:          savings,
		FixedExpenses:    domain.CloneExpenses(u.FixedExpenses),
		VariableExpenses: domain.CloneExpenses(u.VariableExpenses),
		RolledOverAt:     now,
	})
	u.CumulativeSavings = u.CumulativeSavings.Add(savings)
	u.VariableExpenses = []domain.Expense{}
	u.MonthlyIncome = decimal.Zero
	u.FixedExpenses = kept
	u.LastRolloverMonth = month
	u.UpdatedAt = now

	streak := s.evaluator.UpdateSavingsStreak(u, savings)
	awarded := append(streak.NewMilestones, s.evaluator.CheckAndAwardMilestones(u, u.CumulativeSavings)...)
	if awarded == nil {
		awarded = []domain.MilestoneRecord{}
	}

	return &domain.RolloverResult{
		UserID:                u.ID,
		Month:                 month,
		PreviousMonthSavings:  savings,
		CumulativeSavings:     u.CumulativeSavings,
		RecurringExpensesKept: len(kept),
		CurrentStreak:         streak.CurrentStreak,
		NewMilestones:         awarded,
	}, nil
}

// classify leaves not-found and already-rolled-over errors as they are and
// wraps anything else in *domain.ErrRolloverFailed; deadline expiry becomes
// *domain.ErrTimeout underneath.
func (s *RolloverService) classify(ctx context.Context, userID string, err error) error {
	var notFound *domain.ErrNotFound
	var already *domain.ErrAlreadyRolledOver
	if errors.As(err, &notFound) || errors.As(err, &already) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = &domain.ErrTimeout{Operation: "rollover " + userID}
	}
	s.logger.Error("rollover failed", zap.String("user_id", userID), zap.Error(err))
	return &domain.ErrRolloverFailed{UserID: userID, Err: err}
}

// TriggerRollover is the operator entry point: the same engine call,
// reported as a success/failure envelope. The envelope is always set; err
// carries the cause when Success is false.
func (s *RolloverService) TriggerRollover(ctx context.Context, userID string) (*domain.TriggerRolloverResponse, error) {
	res, err := s.PerformRollover(ctx, userID)
	if err != nil {
		return &domain.TriggerRolloverResponse{Success: false, Message: err.Error()}, err
	}
	return &domain.TriggerRolloverResponse{
		Success:               true,
		Message:               "month " + res.Month + " closed",
		PreviousMonthSavings:  &res.PreviousMonthSavings,
		CumulativeSavings:     &res.CumulativeSavings,
		RecurringExpensesKept: res.RecurringExpensesKept,
		NewMilestones:         res.NewMilestones,
	}, nil
}

// GetHistory returns up to the last 12 closed months, most recent first.
// A miss is filled under the user's lock, ordering it against rollover's
// invalidation. Callers always get their own copy.
func (s *RolloverService) GetHistory(ctx context.Context, userID string) ([]domain.MonthRecord, error) {
	ctx, span := rolloverTracer.Start(ctx, "RolloverService.GetHistory")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	key := historyKey(userID)
	if cached, ok := s.history.Get(key); ok {
		s.metrics.IncrCacheHit("history")
		return domain.CloneMonthRecords(cached), nil
	}
	s.metrics.IncrCacheMiss("history")

	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	u, err := s.store.Find(ctx, userID)
	if err != nil {
		return nil, err
	}

	n := len(u.MonthlyHistory)
	count := n
	if count > domain.HistoryWindow {
		count = domain.HistoryWindow
	}
	out := make([]domain.MonthRecord, 0, count)
	for i := n - 1; i >= n-count; i-- {
		out = append(out, u.MonthlyHistory[i])
	}

	s.history.Set(key, out)
	return domain.CloneMonthRecords(out), nil
}

func historyKey(userID string) string {
	return "history:" + userID
}
