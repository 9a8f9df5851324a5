package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/finmate/finance-tracker-go/internal/domain"
	"github.com/finmate/finance-tracker-go/internal/infra/cache"
	"github.com/finmate/finance-tracker-go/internal/infra/memstore"
	"github.com/finmate/finance-tracker-go/internal/infra/observability"
	"github.com/finmate/finance-tracker-go/internal/infra/resilience"
	"github.com/finmate/finance-tracker-go/internal/port"
	"github.com/finmate/finance-tracker-go/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Fakes ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// hookStore wraps a real store and lets tests intercept calls.
type hookStore struct {
	port.UserStore
	beforeSave func(ctx context.Context, u *domain.UserFinance) error
	beforeFind func(ctx context.Context, userID string) error
	afterFind  func(ctx context.Context, userID string)
}

func (s *hookStore) Find(ctx context.Context, userID string) (*domain.UserFinance, error) {
	if s.beforeFind != nil {
		if err := s.beforeFind(ctx, userID); err != nil {
			return nil, err
		}
	}
	u, err := s.UserStore.Find(ctx, userID)
	if s.afterFind != nil {
		s.afterFind(ctx, userID)
	}
	return u, err
}

func (s *hookStore) Save(ctx context.Context, u *domain.UserFinance) error {
	if s.beforeSave != nil {
		if err := s.beforeSave(ctx, u); err != nil {
			return err
		}
	}
	return s.UserStore.Save(ctx, u)
}

// --- Harness ---

type harness struct {
	store     *hookStore
	clock     *fakeClock
	metrics   *observability.Metrics
	locks     *service.UserLocks
	milestone *service.MilestoneService
	rollover  *service.RolloverService
	finance   *service.FinanceService
}

var testRetry = resilience.Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxConcurrency: 4}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()

	h := &harness{
		store:   &hookStore{UserStore: memstore.New()},
		clock:   newFakeClock(now),
		metrics: observability.NewMetrics(),
		locks:   service.NewUserLocks(),
	}
	logger := zap.NewNop()

	history := cache.New[[]domain.MonthRecord](time.Minute)
	t.Cleanup(history.Close)

	h.milestone = service.NewMilestoneService(h.store, h.locks, h.clock, testRetry, logger)
	h.rollover = service.NewRolloverService(
		h.store, h.milestone, h.clock, h.locks,
		resilience.NewBulkhead(testRetry.MaxConcurrency),
		history,
		service.RolloverConfig{Timeout: time.Second, Retry: testRetry},
		h.metrics, logger,
	)
	h.finance = service.NewFinanceService(h.store, h.clock, h.locks, testRetry, h.metrics, logger)
	return h
}

func (h *harness) seed(t *testing.T, u *domain.UserFinance) {
	t.Helper()
	require.NoError(t, h.store.Create(context.Background(), u))
}

func (h *harness) load(t *testing.T, userID string) *domain.UserFinance {
	t.Helper()
	u, err := h.store.Find(context.Background(), userID)
	require.NoError(t, err)
	return u
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 1, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

// money parses an exact amount such as "0.70".
func money(v string) decimal.Decimal { return decimal.RequireFromString(v) }

// assertMoney compares amounts by value, ignoring scale.
func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, money(want).Equal(got), "expected %s, got %s", want, got)
}

func timePtr(t time.Time) *time.Time { return &t }

// recurringMonthly returns an active monthly fixed expense due on dom.
func recurringMonthly(id, amount string, dom int, next time.Time) domain.Expense {
	return domain.Expense{
		ID:              id,
		Name:            "rent",
		Amount:          money(amount),
		Category:        "housing",
		IsRecurring:     true,
		IsActive:        true,
		Frequency:       domain.FrequencyMonthly,
		DayOfMonth:      intPtr(dom),
		NextPaymentDate: timePtr(next),
	}
}

func oneOff(id, amount string) domain.Expense {
	return domain.Expense{ID: id, Name: "groceries", Amount: money(amount), Category: "food"}
}

// userWith builds a document holding one month of activity.
func userWith(id, income string, fixed, variable []domain.Expense, now time.Time) *domain.UserFinance {
	u := domain.NewUserFinance(id, now)
	u.MonthlyIncome = money(income)
	if fixed != nil {
		u.FixedExpenses = fixed
	}
	if variable != nil {
		u.VariableExpenses = variable
	}
	return u
}
