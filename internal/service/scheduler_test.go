package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/finmate/finance-tracker-go/internal/domain"
	"github.com/finmate/finance-tracker-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// failingRoller delegates to the real engine except for the listed users.
type failingRoller struct {
	next service.Roller
	fail map[string]bool

	mu    sync.Mutex
	calls []string
}

func (r *failingRoller) PerformRollover(ctx context.Context, userID string) (*domain.RolloverResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, userID)
	r.mu.Unlock()

	if r.fail[userID] {
		return nil, &domain.ErrRolloverFailed{UserID: userID, Err: errors.New("store unavailable")}
	}
	return r.next.PerformRollover(ctx, userID)
}

func newScheduler(t *testing.T, h *harness, roller service.Roller, concurrency int) *service.Scheduler {
	t.Helper()
	s, err := service.NewScheduler(h.store, roller, h.clock, service.SchedulerConfig{
		Location:    time.UTC,
		Concurrency: concurrency,
	}, h.metrics, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestScheduler_IsolatesPerUserFailures(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		h := newHarness(t, date(2025, time.July, 1))
		for _, id := range []string{"u1", "u2", "u3"} {
			h.seed(t, userWith(id, "1000", nil, []domain.Expense{oneOff("a", "100")}, h.clock.Now()))
		}
		roller := &failingRoller{next: h.rollover, fail: map[string]bool{"u2": true}}
		s := newScheduler(t, h, roller, concurrency)

		report, err := s.RunNow(context.Background())
		require.NoError(t, err)

		assert.NotEmpty(t, report.RunID)
		assert.Equal(t, "2025-07", report.Month)
		assert.Equal(t, 3, report.Processed)
		assert.Equal(t, 2, report.Succeeded)
		assert.Equal(t, 1, report.Failed)
		assert.Equal(t, []string{"u2"}, report.FailedUsers)
		assert.ElementsMatch(t, []string{"u1", "u2", "u3"}, roller.calls)

		assert.Len(t, h.load(t, "u1").MonthlyHistory, 1)
		assert.Empty(t, h.load(t, "u2").MonthlyHistory)
		assert.Len(t, h.load(t, "u3").MonthlyHistory, 1)
	}
}

func TestScheduler_RerunSkipsRolledOverUsers(t *testing.T) {
	h := newHarness(t, date(2025, time.July, 1))
	h.seed(t, userWith("u1", "500", nil, nil, h.clock.Now()))
	h.seed(t, userWith("u2", "500", nil, nil, h.clock.Now()))
	s := newScheduler(t, h, h.rollover, 2)

	first, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Succeeded)

	second, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Succeeded)
	assert.Equal(t, 2, second.Skipped)
	assert.Zero(t, second.Failed)

	assertMoney(t, "500", h.load(t, "u1").CumulativeSavings)
	assert.Equal(t, int64(2), h.metrics.RolloverSnapshot().SchedulerRuns)
}

func TestScheduler_RunMonthlyOncePerMonth(t *testing.T) {
	h := newHarness(t, date(2025, time.July, 1))
	h.seed(t, userWith("u1", "500", nil, nil, h.clock.Now()))
	roller := &failingRoller{next: h.rollover}
	s := newScheduler(t, h, roller, 1)

	report, err := s.RunMonthly(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	report, err = s.RunMonthly(context.Background())
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Len(t, roller.calls, 1)

	h.clock.Set(date(2025, time.August, 1))
	report, err = s.RunMonthly(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Succeeded)
	assert.Len(t, h.load(t, "u1").MonthlyHistory, 2)
}

func TestScheduler_ListFailureAllowsRetry(t *testing.T) {
	h := newHarness(t, date(2025, time.July, 1))
	s := newScheduler(t, h, h.rollover, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.RunMonthly(ctx)
	require.Error(t, err)

	report, err := s.RunMonthly(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, report)
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	h := newHarness(t, date(2025, time.July, 1))
	_, err := service.NewScheduler(h.store, h.rollover, h.clock, service.SchedulerConfig{Spec: "not a cron"}, h.metrics, zap.NewNop())
	assert.Error(t, err)
}

func TestScheduler_StartStop(t *testing.T) {
	h := newHarness(t, date(2025, time.July, 1))
	s := newScheduler(t, h, h.rollover, 1)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
