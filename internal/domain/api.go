package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Rollover
// ============================================================

// RolloverResult is what a successful rollover reports back.
type RolloverResult struct {
	UserID                string            `json:"userId"`
	Month                 string            `json:"month"`
	PreviousMonthSavings  decimal.Decimal   `json:"previousMonthSavings"`
	CumulativeSavings     decimal.Decimal   `json:"cumulativeSavings"`
	RecurringExpensesKept int               `json:"recurringExpensesKept"`
	CurrentStreak         int               `json:"currentStreak"`
	NewMilestones         []MilestoneRecord `json:"newMilestones"`
}

// TriggerRolloverResponse is the success/failure envelope for a manual trigger.
type TriggerRolloverResponse struct {
	Success               bool              `json:"success"`
	Message               string            `json:"message,omitempty"`
	PreviousMonthSavings  *decimal.Decimal  `json:"previousMonthSavings,omitempty"`
	CumulativeSavings     *decimal.Decimal  `json:"cumulativeSavings,omitempty"`
	RecurringExpensesKept int               `json:"recurringExpensesKept,omitempty"`
	NewMilestones         []MilestoneRecord `json:"newMilestones,omitempty"`
}

// BatchReport summarises one scheduler run across all users.
type BatchReport struct {
	RunID       string        `json:"runId"`
	Month       string        `json:"month"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"duration"`
	Processed   int           `json:"processed"`
	Succeeded   int           `json:"succeeded"`
	Skipped     int           `json:"skipped"`
	Failed      int           `json:"failed"`
	FailedUsers []string      `json:"failedUsers,omitempty"`
}

// RolloverStats is returned by GET /v1/admin/rollover/stats.
type RolloverStats struct {
	Succeeded         int64  `json:"succeeded"`
	Skipped           int64  `json:"skipped"`
	Failed            int64  `json:"failed"`
	MilestonesAwarded int64  `json:"milestonesAwarded"`
	SchedulerRuns     int64  `json:"schedulerRuns"`
	Period            string `json:"period"`
}

// MarkSeenResponse reports how many milestones were flagged as seen.
type MarkSeenResponse struct {
	Updated int `json:"updated"`
}

// ============================================================
// Finance
// ============================================================

// ExpenseInput is the payload for adding an expense.
type ExpenseInput struct {
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	IsRecurring bool            `json:"isRecurring"`
	IsActive    *bool           `json:"isActive,omitempty"`
	Frequency   Frequency       `json:"frequency,omitempty"`
	DayOfMonth  *int            `json:"dayOfMonth,omitempty"`
	DayOfWeek   *int            `json:"dayOfWeek,omitempty"`
	AutoAdd     bool            `json:"autoAdd"`
}

// ExpensePatch updates only the fields that are set.
type ExpensePatch struct {
	Name       *string          `json:"name,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Category   *string          `json:"category,omitempty"`
	IsActive   *bool            `json:"isActive,omitempty"`
	Frequency  *Frequency       `json:"frequency,omitempty"`
	DayOfMonth *int             `json:"dayOfMonth,omitempty"`
	DayOfWeek  *int             `json:"dayOfWeek,omitempty"`
	AutoAdd    *bool            `json:"autoAdd,omitempty"`
}

// IncomeRequest is the payload for PUT /v1/finance/income.
type IncomeRequest struct {
	MonthlyIncome decimal.Decimal `json:"monthlyIncome"`
}

// BudgetLimitRequest is the payload for PUT /v1/finance/budget-limits/{category}.
type BudgetLimitRequest struct {
	Limit decimal.Decimal `json:"limit"`
}

// FinanceView is the current document plus derived totals.
type FinanceView struct {
	Finance *UserFinance    `json:"finance"`
	Summary *FinanceSummary `json:"summary"`
}

// FinanceSummary holds the totals derived from the current month.
type FinanceSummary struct {
	Month             string           `json:"month"`
	MonthlyIncome     decimal.Decimal  `json:"monthlyIncome"`
	FixedTotal        decimal.Decimal  `json:"fixedTotal"`
	VariableTotal     decimal.Decimal  `json:"variableTotal"`
	TotalExpenses     decimal.Decimal  `json:"totalExpenses"`
	ProjectedSavings  decimal.Decimal  `json:"projectedSavings"`
	CumulativeSavings decimal.Decimal  `json:"cumulativeSavings"`
	Budgets           []BudgetUsage    `json:"budgets"`
	UpcomingPayments  []UpcomingCharge `json:"upcomingPayments"`
}

// BudgetUsage compares category spend against its configured limit.
type BudgetUsage struct {
	Category   string          `json:"category"`
	Limit      decimal.Decimal `json:"limit"`
	Spent      decimal.Decimal `json:"spent"`
	Remaining  decimal.Decimal `json:"remaining"`
	UsedPct    decimal.Decimal `json:"usedPct"`
	OverBudget bool            `json:"overBudget"`
}

// UpcomingCharge is an active recurring expense and its next due date.
type UpcomingCharge struct {
	ExpenseID       string          `json:"expenseId"`
	Name            string          `json:"name"`
	Amount          decimal.Decimal `json:"amount"`
	NextPaymentDate time.Time       `json:"nextPaymentDate"`
}

// NextOccurrenceRequest previews a recurrence rule. From ("YYYY-MM-DD")
// defaults to today.
type NextOccurrenceRequest struct {
	Frequency  Frequency `json:"frequency"`
	DayOfMonth *int      `json:"dayOfMonth,omitempty"`
	DayOfWeek  *int      `json:"dayOfWeek,omitempty"`
	From       string    `json:"from,omitempty"`
}

// NextOccurrenceResponse is returned by POST /v1/recurrence/next.
type NextOccurrenceResponse struct {
	Frequency       Frequency `json:"frequency"`
	NextPaymentDate string    `json:"nextPaymentDate"` // YYYY-MM-DD
}
