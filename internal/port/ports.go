// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the service layer
// from concrete implementations (MongoDB, in-memory, wall clock).
package port

import (
	"context"
	"time"

	"github.com/finmate/finance-tracker-go/internal/domain"

	"github.com/shopspring/decimal"
)

// UserStore persists one finance document per user.
//
// Save is a compare-and-swap on Version: it succeeds only when the stored
// document still has u.Version, writes the whole document in one operation,
// and leaves u.Version incremented. A mismatch returns *domain.ErrVersionConflict.
type UserStore interface {
	Find(ctx context.Context, userID string) (*domain.UserFinance, error)
	FindAll(ctx context.Context) ([]domain.UserFinance, error)
	Create(ctx context.Context, u *domain.UserFinance) error
	Save(ctx context.Context, u *domain.UserFinance) error
	Ping(ctx context.Context) error
}

// Clock supplies the current time. Injected so month boundaries are testable.
type Clock interface {
	Now() time.Time
}

// MilestoneEvaluator awards achievements on a loaded finance document.
// It mutates u in memory only; persisting is the caller's job.
type MilestoneEvaluator interface {
	CheckAndAwardMilestones(u *domain.UserFinance, cumulativeSavings decimal.Decimal) []domain.MilestoneRecord
	UpdateSavingsStreak(u *domain.UserFinance, monthlySavings decimal.Decimal) domain.StreakResult
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
