package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Finance document
// ============================================================

// MonthKeyLayout formats the "YYYY-MM" key used by history and streaks.
const MonthKeyLayout = "2006-01"

// HistoryWindow is how many months GetHistory returns.
const HistoryWindow = 12

// ExpenseKind selects one of the two expense lists on a finance document.
type ExpenseKind string

const (
	ExpenseFixed    ExpenseKind = "fixed"
	ExpenseVariable ExpenseKind = "variable"
)

// Valid reports whether k names a known expense list.
func (k ExpenseKind) Valid() bool {
	return k == ExpenseFixed || k == ExpenseVariable
}

// Frequency is the recurrence rule of a recurring expense.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// UserFinance is the single document holding one user's finances.
// Version is bumped on every successful write and guards against lost updates.
type UserFinance struct {
	ID                string             `bson:"_id" json:"id"`
	MonthlyIncome     decimal.Decimal            `bson:"monthlyIncome" json:"monthlyIncome"`
	FixedExpenses     []Expense                  `bson:"fixedExpenses" json:"fixedExpenses"`
	VariableExpenses  []Expense                  `bson:"variableExpenses" json:"variableExpenses"`
	CumulativeSavings decimal.Decimal            `bson:"cumulativeSavings" json:"cumulativeSavings"`
	MonthlyHistory    []MonthRecord              `bson:"monthlyHistory" json:"monthlyHistory"`
	BudgetLimits      map[string]decimal.Decimal `bson:"budgetLimits" json:"budgetLimits"`
	Achievements      Achievements               `bson:"achievements" json:"achievements"`
	LastRolloverMonth string                     `bson:"lastRolloverMonth,omitempty" json:"lastRolloverMonth,omitempty"`
	Version           int64                      `bson:"version" json:"version"`
	CreatedAt         time.Time                  `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time                  `bson:"updatedAt" json:"updatedAt"`
}

// NewUserFinance returns an empty document for userID.
func NewUserFinance(userID string, now time.Time) *UserFinance {
	return &UserFinance{
		ID:               userID,
		FixedExpenses:    []Expense{},
		VariableExpenses: []Expense{},
		MonthlyHistory:   []MonthRecord{},
		BudgetLimits:     map[string]decimal.Decimal{},
		Achievements: Achievements{
			Milestones: []MilestoneRecord{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Expenses returns the list selected by kind.
func (u *UserFinance) Expenses(kind ExpenseKind) []Expense {
	if kind == ExpenseFixed {
		return u.FixedExpenses
	}
	return u.VariableExpenses
}

// SetExpenses replaces the list selected by kind.
func (u *UserFinance) SetExpenses(kind ExpenseKind, list []Expense) {
	if kind == ExpenseFixed {
		u.FixedExpenses = list
		return
	}
	u.VariableExpenses = list
}

// Clone returns a deep copy so stores never share slices or maps with callers.
func (u *UserFinance) Clone() *UserFinance {
	if u == nil {
		return nil
	}
	c := *u
	c.FixedExpenses = CloneExpenses(u.FixedExpenses)
	c.VariableExpenses = CloneExpenses(u.VariableExpenses)
	c.MonthlyHistory = CloneMonthRecords(u.MonthlyHistory)
	c.BudgetLimits = make(map[string]decimal.Decimal, len(u.BudgetLimits))
	for k, v := range u.BudgetLimits {
		c.BudgetLimits[k] = v
	}
	c.Achievements.Milestones = append([]MilestoneRecord{}, u.Achievements.Milestones...)
	return &c
}

// CloneExpenses deep-copies list, including pointer fields.
func CloneExpenses(in []Expense) []Expense {
	out := make([]Expense, len(in))
	for i, e := range in {
		out[i] = e.clone()
	}
	return out
}

// CloneMonthRecords deep-copies history, including each record's expense snapshots.
func CloneMonthRecords(in []MonthRecord) []MonthRecord {
	out := make([]MonthRecord, len(in))
	for i, m := range in {
		m.FixedExpenses = CloneExpenses(m.FixedExpenses)
		m.VariableExpenses = CloneExpenses(m.VariableExpenses)
		out[i] = m
	}
	return out
}

// Expense is one entry of the fixed or variable expense list.
// NextPaymentDate is set iff IsRecurring.
type Expense struct {
	ID              string          `bson:"id" json:"id"`
	Name            string          `bson:"name" json:"name"`
	Amount          decimal.Decimal `bson:"amount" json:"amount"`
	Category        string          `bson:"category" json:"category"`
	IsRecurring     bool            `bson:"isRecurring" json:"isRecurring"`
	IsActive        bool            `bson:"isActive" json:"isActive"`
	Frequency       Frequency       `bson:"frequency,omitempty" json:"frequency,omitempty"`
	DayOfMonth      *int            `bson:"dayOfMonth,omitempty" json:"dayOfMonth,omitempty"`
	DayOfWeek       *int            `bson:"dayOfWeek,omitempty" json:"dayOfWeek,omitempty"`
	NextPaymentDate *time.Time      `bson:"nextPaymentDate,omitempty" json:"nextPaymentDate,omitempty"`
	AutoAdd         bool            `bson:"autoAdd" json:"autoAdd"`
	CreatedAt       time.Time       `bson:"createdAt" json:"createdAt"`
}

// Schedule extracts the recurrence rule of the expense.
func (e Expense) Schedule() Schedule {
	return Schedule{Frequency: e.Frequency, DayOfMonth: e.DayOfMonth, DayOfWeek: e.DayOfWeek}
}

// SurvivesRollover reports whether the expense is carried into the next month.
func (e Expense) SurvivesRollover() bool {
	return e.IsRecurring && e.IsActive
}

func (e Expense) clone() Expense {
	if e.DayOfMonth != nil {
		v := *e.DayOfMonth
		e.DayOfMonth = &v
	}
	if e.DayOfWeek != nil {
		v := *e.DayOfWeek
		e.DayOfWeek = &v
	}
	if e.NextPaymentDate != nil {
		v := *e.NextPaymentDate
		e.NextPaymentDate = &v
	}
	return e
}

// Schedule is the recurrence configuration consumed by the recurrence calculator.
type Schedule struct {
	Frequency  Frequency `json:"frequency"`
	DayOfMonth *int      `json:"dayOfMonth,omitempty"`
	DayOfWeek  *int      `json:"dayOfWeek,omitempty"`
}

// MonthRecord is one closed month. Never modified after it is appended.
type MonthRecord struct {
	Month            string          `bson:"month" json:"month"`
	Year             int             `bson:"year" json:"year"`
	MonthName        string          `bson:"monthName" json:"monthName"`
	Income           decimal.Decimal `bson:"income" json:"income"`
	TotalExpenses    decimal.Decimal `bson:"totalExpenses" json:"totalExpenses"`
	Savings          decimal.Decimal `bson:"savings" json:"savings"`
	FixedExpenses    []Expense       `bson:"fixedExpenses" json:"fixedExpenses"`
	VariableExpenses []Expense       `bson:"variableExpenses" json:"variableExpenses"`
	RolledOverAt     time.Time       `bson:"rolledOverAt" json:"rolledOverAt"`
}

// SumAmounts adds up the amounts of every expense in list.
// Paused recurring expenses count too: the same rule is used by rollover and summaries.
func SumAmounts(list []Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range list {
		total = total.Add(e.Amount)
	}
	return total
}

// MonthKey formats t as "YYYY-MM".
func MonthKey(t time.Time) string {
	return t.Format(MonthKeyLayout)
}
