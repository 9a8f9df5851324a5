package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/finmate/finance-tracker-go/internal/domain"
	"github.com/finmate/finance-tracker-go/internal/infra/observability"
	"github.com/finmate/finance-tracker-go/internal/port"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var schedulerTracer = otel.Tracer("service/scheduler")

// DefaultRolloverSpec fires on day 1 at 00:01.
const DefaultRolloverSpec = "1 0 1 * *"

// Roller is the per-user rollover entry point the scheduler drives.
type Roller interface {
	PerformRollover(ctx context.Context, userID string) (*domain.RolloverResult, error)
}

// SchedulerConfig controls when and how wide the monthly batch runs.
type SchedulerConfig struct {
	Spec        string
	Location    *time.Location
	Concurrency int
}

// Scheduler runs the rollover for every user once per calendar month.
type Scheduler struct {
	store   port.UserStore
	roller  Roller
	clock   port.Clock
	cron    *cron.Cron
	limit   int
	metrics *observability.Metrics
	logger  *zap.Logger

	mu           sync.Mutex
	lastRunMonth string
}

// NewScheduler registers the monthly job. It does not start the cron loop.
func NewScheduler(store port.UserStore, roller Roller, clock port.Clock, cfg SchedulerConfig, metrics *observability.Metrics, logger *zap.Logger) (*Scheduler, error) {
	if cfg.Spec == "" {
		cfg.Spec = DefaultRolloverSpec
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	s := &Scheduler{
		store:   store,
		roller:  roller,
		clock:   clock,
		limit:   cfg.Concurrency,
		metrics: metrics,
		logger:  logger,
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
	}

	if _, err := s.cron.AddFunc(cfg.Spec, func() {
		if _, err := s.RunMonthly(context.Background()); err != nil {
			s.logger.Error("scheduled rollover run failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid rollover schedule %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Start begins firing the monthly job in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("rollover scheduler started", zap.Int("concurrency", s.limit))
}

// Stop prevents new runs and waits for a running batch to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("rollover scheduler stop timed out")
	}
}

// RunMonthly runs the batch unless this process already ran it for the
// current month. The returned report is nil when the run was skipped.
func (s *Scheduler) RunMonthly(ctx context.Context) (*domain.BatchReport, error) {
	month := domain.MonthKey(s.clock.Now())

	s.mu.Lock()
	if s.lastRunMonth == month {
		s.mu.Unlock()
		s.logger.Warn("rollover batch already ran this month", zap.String("month", month))
		return nil, nil
	}
	s.lastRunMonth = month
	s.mu.Unlock()

	report, err := s.runBatch(ctx)
	if err != nil {
		s.mu.Lock()
		s.lastRunMonth = ""
		s.mu.Unlock()
	}
	return report, err
}

// RunNow runs the batch immediately. Users already rolled over this month
// are reported as skipped.
func (s *Scheduler) RunNow(ctx context.Context) (*domain.BatchReport, error) {
	return s.runBatch(ctx)
}

func (s *Scheduler) runBatch(ctx context.Context) (*domain.BatchReport, error) {
	ctx, span := schedulerTracer.Start(ctx, "Scheduler.RunBatch")
	defer span.End()

	start := time.Now()
	started := s.clock.Now()
	report := &domain.BatchReport{
		RunID:     uuid.New().String(),
		Month:     domain.MonthKey(started),
		StartedAt: started,
	}
	span.SetAttributes(attribute.String("run.id", report.RunID))
	s.metrics.IncrSchedulerRun()

	users, err := s.store.FindAll(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list users for rollover: %w", err)
	}

	s.logger.Info("rollover batch started",
		zap.String("run_id", report.RunID),
		zap.String("month", report.Month),
		zap.Int("users", len(users)),
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)

	for i := range users {
		userID := users[i].ID
		g.Go(func() error {
			_, err := s.roller.PerformRollover(gctx, userID)

			mu.Lock()
			defer mu.Unlock()
			report.Processed++

			var already *domain.ErrAlreadyRolledOver
			var notFound *domain.ErrNotFound
			switch {
			case err == nil:
				report.Succeeded++
			case errors.As(err, &already), errors.As(err, &notFound):
				report.Skipped++
			default:
				report.Failed++
				report.FailedUsers = append(report.FailedUsers, userID)
				s.logger.Error("rollover failed for user, continuing batch",
					zap.String("run_id", report.RunID),
					zap.String("user_id", userID),
					zap.Error(err),
				)
			}
			// Per-user failures never abort the batch.
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)

	s.logger.Info("rollover batch finished",
		zap.String("run_id", report.RunID),
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}
