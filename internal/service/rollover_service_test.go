package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/finmate/finance-tracker-go/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformRollover_ClosesMonth(t *testing.T) {
	now := date(2025, time.June, 1)
	h := newHarness(t, now)
	h.seed(t, userWith("u1", "10000",
		[]domain.Expense{recurringMonthly("rent", "3000", 1, date(2025, time.June, 1))},
		[]domain.Expense{oneOff("food", "500")},
		now,
	))

	res, err := h.rollover.PerformRollover(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, "2025-06", res.Month)
	assertMoney(t, "6500", res.PreviousMonthSavings)
	assertMoney(t, "6500", res.CumulativeSavings)
	assert.Equal(t, 1, res.RecurringExpensesKept)

	u := h.load(t, "u1")
	require.Len(t, u.MonthlyHistory, 1)
	rec := u.MonthlyHistory[0]
	assertMoney(t, "10000", rec.Income)
	assertMoney(t, "3500", rec.TotalExpenses)
	assertMoney(t, "6500", rec.Savings)
	assert.True(t, rec.Income.Sub(rec.TotalExpenses).Equal(rec.Savings))
	assert.Equal(t, "June", rec.MonthName)
	assert.Equal(t, 2025, rec.Year)

	require.Len(t, u.FixedExpenses, 1)
	require.NotNil(t, u.FixedExpenses[0].NextPaymentDate)
	assert.Equal(t, date(2025, time.July, 1), *u.FixedExpenses[0].NextPaymentDate)
	assert.Empty(t, u.VariableExpenses)
	assert.True(t, u.MonthlyIncome.IsZero())
	assertMoney(t, "6500", u.CumulativeSavings)
	assert.Equal(t, "2025-06", u.LastRolloverMonth)
}

func TestPerformRollover_DropsNonRecurringButKeepsSnapshot(t *testing.T) {
	now := date(2025, time.March, 1)
	h := newHarness(t, now)

	paused := recurringMonthly("gym", "100", 5, date(2025, time.March, 5))
	paused.IsActive = false
	h.seed(t, userWith("u1", "5000",
		[]domain.Expense{
			recurringMonthly("rent", "2000", 1, date(2025, time.March, 1)),
			{ID: "repair", Name: "car repair", Amount: money("400"), Category: "car"},
			paused,
		},
		nil, now,
	))

	_, err := h.rollover.PerformRollover(context.Background(), "u1")
	require.NoError(t, err)

	u := h.load(t, "u1")
	require.Len(t, u.FixedExpenses, 1)
	assert.Equal(t, "rent", u.FixedExpenses[0].ID)

	snap := u.MonthlyHistory[0].FixedExpenses
	require.Len(t, snap, 3)
	assert.Equal(t, "repair", snap[1].ID)
	// Paused expenses still count toward the month's totals.
	assertMoney(t, "2500", u.MonthlyHistory[0].TotalExpenses)

	h.clock.Set(date(2025, time.April, 1))
	_, err = h.rollover.PerformRollover(context.Background(), "u1")
	require.NoError(t, err)

	u = h.load(t, "u1")
	require.Len(t, u.MonthlyHistory, 2)
	for _, e := range u.MonthlyHistory[1].FixedExpenses {
		assert.NotEqual(t, "repair", e.ID)
	}
	// The earlier snapshot is untouched.
	assert.Len(t, u.MonthlyHistory[0].FixedExpenses, 3)
}

func TestPerformRollover_ZeroNetMonthBreaksStreak(t *testing.T) {
	h := newHarness(t, date(2025, time.May, 1))
	u := userWith("u1", "0.80", nil, []domain.Expense{oneOff("bus", "0.70"), oneOff("gum", "0.10")}, h.clock.Now())
	u.Achievements.SavingsStreak = domain.StreakState{CurrentStreak: 2, LongestStreak: 2, LastSavingsMonth: "2025-04"}
	h.seed(t, u)

	res, err := h.rollover.PerformRollover(context.Background(), "u1")
	require.NoError(t, err)

	assert.True(t, res.PreviousMonthSavings.IsZero(), "savings = %s", res.PreviousMonthSavings)
	assert.Equal(t, 0, res.CurrentStreak)

	got := h.load(t, "u1")
	assertMoney(t, "0.80", got.MonthlyHistory[0].TotalExpenses)
	assert.True(t, got.MonthlyHistory[0].Savings.IsZero())
	assert.Equal(t, 0, got.Achievements.SavingsStreak.CurrentStreak)
	assert.Equal(t, 2, got.Achievements.SavingsStreak.LongestStreak)
}

func TestPerformRollover_CumulativeSavingsAreAdditive(t *testing.T) {
	h := newHarness(t, date(2025, time.January, 1))
	h.seed(t, userWith("u1", "3000", nil, []domain.Expense{oneOff("a", "1000")}, h.clock.Now()))

	_, err := h.rollover.PerformRollover(context.Background(), "u1")
	require.NoError(t, err)

	h.clock.Set(date(2025, time.February, 1))
	_, err = h.finance.SetIncome(context.Background(), "u1", money("1000"))
	require.NoError(t, err)
	_, err = h.finance.AddExpense(context.Background(), "u1", domain.ExpenseVariable, &domain.ExpenseInput{Name: "trip", Amount: money("1500")})
	require.NoError(t, err)

	res, err := h.rollover.PerformRollover(context.Background(), "u1")
	require.NoError(t, err)

	assertMoney(t, "-500", res.PreviousMonthSavings)
	assertMoney(t, "1500", res.CumulativeSavings)
	assert.Len(t, h.load(t, "u1").MonthlyHistory, 2)
}

func TestPerformRollover_SameMonthIsRejected(t *testing.T) {
	h := newHarness(t, date(2025, time.May, 1))
	h.seed(t, userWith("u1", "2000", nil, nil, h.clock.Now()))

	_, err := h.rollover.PerformRollover(context.Background(), "u1")
	require.NoError(t, err)

	_, err = h.rollover.PerformRollover(context.Background(), "u1")
	var already *domain.ErrAlreadyRolledOver
	require.ErrorAs(t, err, &already)
	assert.Equal(t, "2025-05", already.Month)

	u := h.load(t, "u1")
	assert.Len(t, u.MonthlyHistory, 1)
	assertMoney(t, "2000", u.CumulativeSavings)

	stats := h.metrics.RolloverSnapshot()
	assert.Equal(t, int64(1), stats.Succeeded)
	assert.Equal(t, int64(1), stats.Skipped)
}

func TestPerformRollover_UnknownUser(t *testing.T) {
	h := newHarness(t, date(2025, time.May, 1))

	_, err := h.rollover.PerformRollover(context.Background(), "ghost")
	var notFound *domain.ErrNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestPerformRollover_AwardsMilestonesInSameWrite(t *testing.T) {
	h := newHarness(t, date(2025, time.May, 1))
	h.seed(t, userWith("u1", "7000", nil, []domain.Expense{oneOff("a", "1000")}, h.clock.Now()))

	res, err := h.rollover.PerformRollover(context.Background(), "u1")
	require.NoError(t, err)

	types := make([]domain.MilestoneType, 0, len(res.NewMilestones))
	for _, m := range res.NewMilestones {
		types = append(types, m.Type)
		assert.False(t, m.Seen)
	}
	assert.ElementsMatch(t, []domain.MilestoneType{domain.MilestoneSavings1K, domain.MilestoneSavings5K}, types)
	assert.Equal(t, 1, res.CurrentStreak)

	u := h.load(t, "u1")
	assert.Len(t, u.Achievements.Milestones, 2)
	assert.Equal(t, 1, u.Achievements.SavingsStreak.CurrentStreak)
	assert.Equal(t, "2025-05", u.Achievements.SavingsStreak.LastSavingsMonth)
	assertMoney(t, "6000", u.Achievements.Stats.HighestMonthlySavings)
}

func TestPerformRollover_RetriesAfterConcurrentWrite(t *testing.T) {
	h := newHarness(t, date(2025, time.May, 1))
	h.seed(t, userWith("u1", "1000", nil, nil, h.clock.Now()))

	var interfered atomic.Bool
	h.store.beforeSave = func(ctx context.Context, u *domain.UserFinance) error {
		if !interfered.CompareAndSwap(false, true) {
			return nil
		}
		// Another writer lands between our read and our write.
		other, err := h.store.UserStore.Find(ctx, u.ID)
		if err != nil {
			return err
		}
		other.VariableExpenses = append(other.VariableExpenses, oneOff("late", "200"))
		return h.store.UserStore.Save(ctx, other)
	}

	res, err := h.rollover.PerformRollover(context.Background(), "u1")
	require.NoError(t, err)

	// The retry re-read the document, so the concurrent expense was not lost.
	assertMoney(t, "800", res.PreviousMonthSavings)
	u := h.load(t, "u1")
	require.Len(t, u.MonthlyHistory, 1)
	require.Len(t, u.MonthlyHistory[0].VariableExpenses, 1)
	assert.Empty(t, u.VariableExpenses)
}

func TestPerformRollover_PersistenceFailureCommitsNothing(t *testing.T) {
	h := newHarness(t, date(2025, time.May, 1))
	h.seed(t, userWith("u1", "1000", nil, []domain.Expense{oneOff("a", "10")}, h.clock.Now()))

	h.store.beforeSave = func(context.Context, *domain.UserFinance) error {
		return &domain.ErrPersistence{Op: "save", Err: errors.New("disk full")}
	}

	_, err := h.rollover.PerformRollover(context.Background(), "u1")
	var failed *domain.ErrRolloverFailed
	require.ErrorAs(t, err, &failed)
	var persistence *domain.ErrPersistence
	assert.ErrorAs(t, err, &persistence)

	u := h.load(t, "u1")
	assert.Empty(t, u.MonthlyHistory)
	assertMoney(t, "1000", u.MonthlyIncome)
	assert.Len(t, u.VariableExpenses, 1)
	assert.Empty(t, u.LastRolloverMonth)
}

func TestPerformRollover_Timeout(t *testing.T) {
	h := newHarness(t, date(2025, time.May, 1))
	h.seed(t, userWith("u1", "1000", nil, nil, h.clock.Now()))

	h.store.beforeFind = func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.rollover.PerformRollover(ctx, "u1")
	var timeout *domain.ErrTimeout
	require.ErrorAs(t, err, &timeout)

	h.store.beforeFind = nil
	assert.Empty(t, h.load(t, "u1").MonthlyHistory)
}

func TestPerformRollover_UnrecognizedStoredFrequencyAborts(t *testing.T) {
	h := newHarness(t, date(2025, time.May, 1))
	bad := recurringMonthly("odd", "50", 1, date(2025, time.May, 1))
	bad.Frequency = "fortnightly"
	h.seed(t, userWith("u1", "1000", []domain.Expense{bad}, nil, h.clock.Now()))

	_, err := h.rollover.PerformRollover(context.Background(), "u1")
	var unknown *domain.ErrUnrecognizedFrequency
	require.ErrorAs(t, err, &unknown)
	assert.Empty(t, h.load(t, "u1").MonthlyHistory)
}

func TestTriggerRollover_Envelope(t *testing.T) {
	h := newHarness(t, date(2025, time.May, 1))
	h.seed(t, userWith("u1", "1200", []domain.Expense{recurringMonthly("rent", "200", 1, date(2025, time.May, 1))}, nil, h.clock.Now()))

	ok, err := h.rollover.TriggerRollover(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, ok.Success)
	require.NotNil(t, ok.PreviousMonthSavings)
	assertMoney(t, "1000", *ok.PreviousMonthSavings)
	assert.Equal(t, 1, ok.RecurringExpensesKept)

	again, err := h.rollover.TriggerRollover(context.Background(), "u1")
	var already *domain.ErrAlreadyRolledOver
	assert.ErrorAs(t, err, &already)
	assert.False(t, again.Success)
	assert.Contains(t, again.Message, "already")
}

func TestGetHistory_MostRecentFirstAndCapped(t *testing.T) {
	start := date(2024, time.January, 1)
	h := newHarness(t, start)
	h.seed(t, userWith("u1", "0", nil, nil, start))

	for i := 0; i < 14; i++ {
		h.clock.Set(start.AddDate(0, i, 0))
		_, err := h.finance.SetIncome(context.Background(), "u1", decimal.NewFromInt(int64(i+1)))
		require.NoError(t, err)
		_, err = h.rollover.PerformRollover(context.Background(), "u1")
		require.NoError(t, err)
	}

	hist, err := h.rollover.GetHistory(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, hist, domain.HistoryWindow)
	assert.Equal(t, "2025-02", hist[0].Month)
	assert.Equal(t, "2024-03", hist[11].Month)

	// A new rollover invalidates the cached projection.
	h.clock.Set(date(2025, time.March, 1))
	_, err = h.rollover.PerformRollover(context.Background(), "u1")
	require.NoError(t, err)

	hist, err = h.rollover.GetHistory(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "2025-03", hist[0].Month)
}

func TestGetHistory_RolloverDuringCacheFillIsNotHidden(t *testing.T) {
	h := newHarness(t, date(2025, time.May, 1))
	h.seed(t, userWith("u1", "100", nil, nil, h.clock.Now()))

	var started atomic.Bool
	done := make(chan error, 1)
	h.store.afterFind = func(context.Context, string) {
		if !started.CompareAndSwap(false, true) {
			return
		}
		// A rollover arrives between the history read and the cache fill.
		go func() {
			_, err := h.rollover.PerformRollover(context.Background(), "u1")
			done <- err
		}()
		time.Sleep(20 * time.Millisecond)
	}

	_, err := h.rollover.GetHistory(context.Background(), "u1")
	require.NoError(t, err)
	require.NoError(t, <-done)

	hist, err := h.rollover.GetHistory(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "2025-05", hist[0].Month)
}

func TestGetHistory_ReturnsIndependentCopies(t *testing.T) {
	h := newHarness(t, date(2025, time.May, 1))
	h.seed(t, userWith("u1", "100", nil, []domain.Expense{oneOff("a", "40")}, h.clock.Now()))

	_, err := h.rollover.PerformRollover(context.Background(), "u1")
	require.NoError(t, err)

	first, err := h.rollover.GetHistory(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, first, 1)
	first[0].Month = "tampered"
	first[0].VariableExpenses[0].Name = "tampered"

	// Served from the cache this time.
	second, err := h.rollover.GetHistory(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "2025-05", second[0].Month)
	assert.Equal(t, "groceries", second[0].VariableExpenses[0].Name)
}
