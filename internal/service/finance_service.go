package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/finmate/finance-tracker-go/internal/domain"
	"github.com/finmate/finance-tracker-go/internal/infra/observability"
	"github.com/finmate/finance-tracker-go/internal/infra/resilience"
	"github.com/finmate/finance-tracker-go/internal/port"
	"github.com/finmate/finance-tracker-go/internal/recurrence"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var financeTracer = otel.Tracer("service/finance")

const defaultCategory = "other"

var hundred = decimal.NewFromInt(100)

// FinanceService handles the user-driven edits between rollovers: income,
// expenses, and budget limits. Every edit is one read-modify-write under the
// same per-user lock that rollover takes.
type FinanceService struct {
	store   port.UserStore
	clock   port.Clock
	locks   *UserLocks
	retry   resilience.Config
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewFinanceService creates a new finance service.
func NewFinanceService(store port.UserStore, clock port.Clock, locks *UserLocks, retry resilience.Config, metrics *observability.Metrics, logger *zap.Logger) *FinanceService {
	return &FinanceService{store: store, clock: clock, locks: locks, retry: retry, metrics: metrics, logger: logger}
}

// ============================================================
// Document
// ============================================================

// CreateFinance initialises an empty finance document for userID.
func (s *FinanceService) CreateFinance(ctx context.Context, userID string) (*domain.UserFinance, error) {
	ctx, span := financeTracer.Start(ctx, "FinanceService.CreateFinance")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if strings.TrimSpace(userID) == "" {
		return nil, &domain.ErrValidation{Field: "userId", Message: "required"}
	}

	u := domain.NewUserFinance(userID, s.clock.Now())
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("finance document created", zap.String("user_id", userID))
	return u, nil
}

// GetFinance returns the document together with its derived summary.
func (s *FinanceService) GetFinance(ctx context.Context, userID string) (*domain.FinanceView, error) {
	ctx, span := financeTracer.Start(ctx, "FinanceService.GetFinance")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	u, err := s.store.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &domain.FinanceView{Finance: u, Summary: Summarize(u, s.clock.Now())}, nil
}

// SetIncome replaces the current month's income.
func (s *FinanceService) SetIncome(ctx context.Context, userID string, amount decimal.Decimal) (*domain.UserFinance, error) {
	ctx, span := financeTracer.Start(ctx, "FinanceService.SetIncome")
	defer span.End()

	if err := validateAmount("monthlyIncome", amount); err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, "set_income", func(u *domain.UserFinance, _ time.Time) error {
		u.MonthlyIncome = amount
		return nil
	})
}

// ============================================================
// Expenses
// ============================================================

// AddExpense appends a new expense to the fixed or variable list.
// Recurring expenses must be fixed and get their first NextPaymentDate here.
func (s *FinanceService) AddExpense(ctx context.Context, userID string, kind domain.ExpenseKind, in *domain.ExpenseInput) (*domain.Expense, error) {
	ctx, span := financeTracer.Start(ctx, "FinanceService.AddExpense")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("expense.kind", string(kind)),
	)

	if !kind.Valid() {
		return nil, &domain.ErrValidation{Field: "kind", Message: "must be 'fixed' or 'variable'"}
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "required"}
	}
	if err := validateAmount("amount", in.Amount); err != nil {
		return nil, err
	}
	if in.IsRecurring && kind != domain.ExpenseFixed {
		return nil, &domain.ErrValidation{Field: "isRecurring", Message: "only fixed expenses can recur"}
	}

	e := domain.Expense{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(in.Name),
		Amount:      in.Amount,
		Category:    normalizeCategory(in.Category),
		IsRecurring: in.IsRecurring,
		IsActive:    true,
	}

	if in.IsRecurring {
		sched := domain.Schedule{Frequency: in.Frequency, DayOfMonth: in.DayOfMonth, DayOfWeek: in.DayOfWeek}
		if err := recurrence.Validate(sched); err != nil {
			return nil, err
		}
		e.Frequency = sched.Frequency
		e.DayOfMonth = sched.DayOfMonth
		e.DayOfWeek = sched.DayOfWeek
		e.AutoAdd = in.AutoAdd
		if in.IsActive != nil {
			e.IsActive = *in.IsActive
		}
	}

	_, err := s.mutate(ctx, userID, "add_expense", func(u *domain.UserFinance, now time.Time) error {
		e.CreatedAt = now
		if e.IsRecurring {
			next, err := recurrence.NextOccurrence(e.Schedule(), now)
			if err != nil {
				return err
			}
			e.NextPaymentDate = &next
		}
		u.SetExpenses(kind, append(u.Expenses(kind), e))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("expense added",
		zap.String("user_id", userID),
		zap.String("kind", string(kind)),
		zap.String("expense_id", e.ID),
		zap.Stringer("amount", e.Amount),
		zap.Bool("recurring", e.IsRecurring),
	)
	return &e, nil
}

// UpdateExpense applies the set fields of patch. Changing the recurrence
// rule of a recurring expense re-derives its NextPaymentDate.
func (s *FinanceService) UpdateExpense(ctx context.Context, userID string, kind domain.ExpenseKind, expenseID string, patch *domain.ExpensePatch) (*domain.Expense, error) {
	ctx, span := financeTracer.Start(ctx, "FinanceService.UpdateExpense")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("expense.id", expenseID),
	)

	if !kind.Valid() {
		return nil, &domain.ErrValidation{Field: "kind", Message: "must be 'fixed' or 'variable'"}
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "must not be empty"}
	}
	if patch.Amount != nil {
		if err := validateAmount("amount", *patch.Amount); err != nil {
			return nil, err
		}
	}

	var updated domain.Expense
	_, err := s.mutate(ctx, userID, "update_expense", func(u *domain.UserFinance, now time.Time) error {
		list := u.Expenses(kind)
		idx := indexOfExpense(list, expenseID)
		if idx < 0 {
			return &domain.ErrNotFound{Resource: "expense", ID: expenseID}
		}
		e := list[idx]

		ruleChanged := patch.Frequency != nil || patch.DayOfMonth != nil || patch.DayOfWeek != nil
		if (ruleChanged || patch.AutoAdd != nil) && !e.IsRecurring {
			return &domain.ErrValidation{Field: "frequency", Message: "expense is not recurring"}
		}

		if patch.Name != nil {
			e.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Amount != nil {
			e.Amount = *patch.Amount
		}
		if patch.Category != nil {
			e.Category = normalizeCategory(*patch.Category)
		}
		if patch.IsActive != nil {
			e.IsActive = *patch.IsActive
		}
		if patch.AutoAdd != nil {
			e.AutoAdd = *patch.AutoAdd
		}
		if ruleChanged {
			if patch.Frequency != nil {
				e.Frequency = *patch.Frequency
			}
			if patch.DayOfMonth != nil {
				e.DayOfMonth = patch.DayOfMonth
			}
			if patch.DayOfWeek != nil {
				e.DayOfWeek = patch.DayOfWeek
			}
			if err := recurrence.Validate(e.Schedule()); err != nil {
				return err
			}
			next, err := recurrence.NextOccurrence(e.Schedule(), now)
			if err != nil {
				return err
			}
			e.NextPaymentDate = &next
		}

		list[idx] = e
		u.SetExpenses(kind, list)
		updated = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteExpense removes an expense from the selected list.
func (s *FinanceService) DeleteExpense(ctx context.Context, userID string, kind domain.ExpenseKind, expenseID string) error {
	ctx, span := financeTracer.Start(ctx, "FinanceService.DeleteExpense")
	defer span.End()

	if !kind.Valid() {
		return &domain.ErrValidation{Field: "kind", Message: "must be 'fixed' or 'variable'"}
	}

	_, err := s.mutate(ctx, userID, "delete_expense", func(u *domain.UserFinance, _ time.Time) error {
		list := u.Expenses(kind)
		idx := indexOfExpense(list, expenseID)
		if idx < 0 {
			return &domain.ErrNotFound{Resource: "expense", ID: expenseID}
		}
		u.SetExpenses(kind, append(list[:idx], list[idx+1:]...))
		return nil
	})
	return err
}

// ============================================================
// Budget limits
// ============================================================

// SetBudgetLimit sets the monthly limit for a category. Rollover never touches limits.
func (s *FinanceService) SetBudgetLimit(ctx context.Context, userID, category string, limit decimal.Decimal) (*domain.UserFinance, error) {
	ctx, span := financeTracer.Start(ctx, "FinanceService.SetBudgetLimit")
	defer span.End()

	category = strings.TrimSpace(strings.ToLower(category))
	if category == "" {
		return nil, &domain.ErrValidation{Field: "category", Message: "required"}
	}
	if !limit.IsPositive() {
		return nil, &domain.ErrValidation{Field: "limit", Message: "must be positive"}
	}

	return s.mutate(ctx, userID, "set_budget_limit", func(u *domain.UserFinance, _ time.Time) error {
		if u.BudgetLimits == nil {
			u.BudgetLimits = map[string]decimal.Decimal{}
		}
		u.BudgetLimits[category] = limit
		return nil
	})
}

// DeleteBudgetLimit removes the limit for a category.
func (s *FinanceService) DeleteBudgetLimit(ctx context.Context, userID, category string) error {
	ctx, span := financeTracer.Start(ctx, "FinanceService.DeleteBudgetLimit")
	defer span.End()

	category = strings.TrimSpace(strings.ToLower(category))
	_, err := s.mutate(ctx, userID, "delete_budget_limit", func(u *domain.UserFinance, _ time.Time) error {
		if _, ok := u.BudgetLimits[category]; !ok {
			return &domain.ErrNotFound{Resource: "budget limit", ID: category}
		}
		delete(u.BudgetLimits, category)
		return nil
	})
	return err
}

// ============================================================
// Helpers
// ============================================================

// mutate runs fn against a fresh copy of the document and saves it,
// re-reading on version conflicts.
func (s *FinanceService) mutate(ctx context.Context, userID, op string, fn func(u *domain.UserFinance, now time.Time) error) (*domain.UserFinance, error) {
	start := time.Now()
	defer func() { s.metrics.RecordDuration(op, time.Since(start)) }()

	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *domain.UserFinance
	err = resilience.RetryWithBackoff(ctx, s.retry, resilience.IsVersionConflict, func() error {
		u, err := s.store.Find(ctx, userID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := fn(u, now); err != nil {
			return err
		}
		u.UpdatedAt = now
		if err := s.store.Save(ctx, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Summarize derives the current month's totals, budget usage, and the
// upcoming recurring charges. Totals use the same rule as rollover.
func Summarize(u *domain.UserFinance, now time.Time) *domain.FinanceSummary {
	fixedTotal := domain.SumAmounts(u.FixedExpenses)
	variableTotal := domain.SumAmounts(u.VariableExpenses)
	total := fixedTotal.Add(variableTotal)

	spent := map[string]decimal.Decimal{}
	for _, list := range [][]domain.Expense{u.FixedExpenses, u.VariableExpenses} {
		for _, e := range list {
			spent[e.Category] = spent[e.Category].Add(e.Amount)
		}
	}

	budgets := make([]domain.BudgetUsage, 0, len(u.BudgetLimits))
	for category, limit := range u.BudgetLimits {
		used := spent[category]
		b := domain.BudgetUsage{
			Category:   category,
			Limit:      limit,
			Spent:      used,
			Remaining:  limit.Sub(used),
			OverBudget: used.GreaterThan(limit),
		}
		if limit.IsPositive() {
			b.UsedPct = used.Div(limit).Mul(hundred).Round(2)
		}
		budgets = append(budgets, b)
	}
	sort.Slice(budgets, func(i, j int) bool { return budgets[i].Category < budgets[j].Category })

	upcoming := []domain.UpcomingCharge{}
	for _, e := range u.FixedExpenses {
		if e.SurvivesRollover() && e.NextPaymentDate != nil {
			upcoming = append(upcoming, domain.UpcomingCharge{
				ExpenseID:       e.ID,
				Name:            e.Name,
				Amount:          e.Amount,
				NextPaymentDate: *e.NextPaymentDate,
			})
		}
	}
	sort.Slice(upcoming, func(i, j int) bool {
		return upcoming[i].NextPaymentDate.Before(upcoming[j].NextPaymentDate)
	})

	return &domain.FinanceSummary{
		Month:             domain.MonthKey(now),
		MonthlyIncome:     u.MonthlyIncome,
		FixedTotal:        fixedTotal,
		VariableTotal:     variableTotal,
		TotalExpenses:     total,
		ProjectedSavings:  u.MonthlyIncome.Sub(total),
		CumulativeSavings: u.CumulativeSavings,
		Budgets:           budgets,
		UpcomingPayments:  upcoming,
	}
}

func validateAmount(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return &domain.ErrValidation{Field: field, Message: "must not be negative"}
	}
	return nil
}

func normalizeCategory(c string) string {
	c = strings.TrimSpace(strings.ToLower(c))
	if c == "" {
		return defaultCategory
	}
	return c
}

func indexOfExpense(list []domain.Expense, id string) int {
	for i, e := range list {
		if e.ID == id {
			return i
		}
	}
	return -1
}
