package service

import (
	"context"
	"time"

	"github.com/finmate/finance-tracker-go/internal/domain"
	"github.com/finmate/finance-tracker-go/internal/infra/resilience"
	"github.com/finmate/finance-tracker-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var milestoneTracer = otel.Tracer("service/milestones")

// MilestoneService awards savings and streak milestones.
// The evaluator methods work on a loaded document and never touch the store,
// so rollover can apply them inside its own atomic write.
type MilestoneService struct {
	store  port.UserStore
	locks  *UserLocks
	clock  port.Clock
	retry  resilience.Config
	logger *zap.Logger
}

// NewMilestoneService creates the milestone evaluator.
func NewMilestoneService(store port.UserStore, locks *UserLocks, clock port.Clock, retry resilience.Config, logger *zap.Logger) *MilestoneService {
	return &MilestoneService{store: store, locks: locks, clock: clock, retry: retry, logger: logger}
}

var _ port.MilestoneEvaluator = (*MilestoneService)(nil)

// CheckAndAwardMilestones unlocks every savings threshold at or below
// cumulativeSavings that is not already unlocked.
func (s *MilestoneService) CheckAndAwardMilestones(u *domain.UserFinance, cumulativeSavings decimal.Decimal) []domain.MilestoneRecord {
	now := s.clock.Now()
	var awarded []domain.MilestoneRecord
	for _, t := range domain.SavingsThresholds {
		if cumulativeSavings.LessThan(t.Amount) {
			break
		}
		if rec, ok := award(u, t.Type, now); ok {
			awarded = append(awarded, rec)
		}
	}
	return awarded
}

// UpdateSavingsStreak folds one month's savings into the streak for the
// current calendar month.
//
// Positive savings extend the streak when the last savings month is exactly
// one month back, restart it at 1 after a longer gap, and do nothing when the
// month was already counted. Zero or negative savings reset it to 0.
func (s *MilestoneService) UpdateSavingsStreak(u *domain.UserFinance, monthlySavings decimal.Decimal) domain.StreakResult {
	now := s.clock.Now()
	month := domain.MonthKey(now)
	streak := &u.Achievements.SavingsStreak

	if monthlySavings.GreaterThan(u.Achievements.Stats.HighestMonthlySavings) {
		u.Achievements.Stats.HighestMonthlySavings = monthlySavings
	}

	if !monthlySavings.IsPositive() {
		streak.CurrentStreak = 0
		return domain.StreakResult{CurrentStreak: 0}
	}

	switch gap := monthsBetween(streak.LastSavingsMonth, month); {
	case streak.LastSavingsMonth == "":
		streak.CurrentStreak = 1
	case gap <= 0:
		return domain.StreakResult{CurrentStreak: streak.CurrentStreak}
	case gap == 1:
		streak.CurrentStreak++
	default:
		streak.CurrentStreak = 1
	}
	streak.LastSavingsMonth = month
	if streak.CurrentStreak > streak.LongestStreak {
		streak.LongestStreak = streak.CurrentStreak
	}

	var awarded []domain.MilestoneRecord
	for _, t := range domain.StreakThresholds {
		if streak.CurrentStreak < t.Months {
			break
		}
		if rec, ok := award(u, t.Type, now); ok {
			awarded = append(awarded, rec)
		}
	}
	return domain.StreakResult{NewMilestones: awarded, CurrentStreak: streak.CurrentStreak}
}

// ListAchievements returns the user's achievements block.
func (s *MilestoneService) ListAchievements(ctx context.Context, userID string) (*domain.Achievements, error) {
	ctx, span := milestoneTracer.Start(ctx, "MilestoneService.ListAchievements")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	u, err := s.store.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &u.Achievements, nil
}

// MarkMilestonesSeen flags every unseen milestone as seen and returns how many changed.
func (s *MilestoneService) MarkMilestonesSeen(ctx context.Context, userID string) (int, error) {
	ctx, span := milestoneTracer.Start(ctx, "MilestoneService.MarkMilestonesSeen")
	defer span.End()

	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var changed int
	err = resilience.RetryWithBackoff(ctx, s.retry, resilience.IsVersionConflict, func() error {
		u, err := s.store.Find(ctx, userID)
		if err != nil {
			return err
		}
		changed = 0
		for i := range u.Achievements.Milestones {
			if !u.Achievements.Milestones[i].Seen {
				u.Achievements.Milestones[i].Seen = true
				changed++
			}
		}
		if changed == 0 {
			return nil
		}
		u.UpdatedAt = s.clock.Now()
		return s.store.Save(ctx, u)
	})
	if err != nil {
		return 0, err
	}
	if changed > 0 {
		s.logger.Debug("milestones marked seen", zap.String("user_id", userID), zap.Int("count", changed))
	}
	return changed, nil
}

// award appends a milestone unless one of the same type exists.
func award(u *domain.UserFinance, t domain.MilestoneType, now time.Time) (domain.MilestoneRecord, bool) {
	if u.Achievements.HasMilestone(t) {
		return domain.MilestoneRecord{}, false
	}
	rec := domain.MilestoneRecord{Type: t, UnlockedAt: now, Seen: false}
	u.Achievements.Milestones = append(u.Achievements.Milestones, rec)
	return rec, true
}

// monthsBetween returns the number of calendar months from a to b ("YYYY-MM").
// Unparseable input yields 0.
func monthsBetween(a, b string) int {
	ta, err := time.Parse(domain.MonthKeyLayout, a)
	if err != nil {
		return 0
	}
	tb, err := time.Parse(domain.MonthKeyLayout, b)
	if err != nil {
		return 0
	}
	return (tb.Year()-ta.Year())*12 + int(tb.Month()) - int(ta.Month())
}
