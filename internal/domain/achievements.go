package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Achievements
// ============================================================

// MilestoneType is the unique key of an unlockable achievement.
type MilestoneType string

const (
	MilestoneSavings1K   MilestoneType = "savings_1000"
	MilestoneSavings5K   MilestoneType = "savings_5000"
	MilestoneSavings10K  MilestoneType = "savings_10000"
	MilestoneSavings25K  MilestoneType = "savings_25000"
	MilestoneSavings50K  MilestoneType = "savings_50000"
	MilestoneSavings100K MilestoneType = "savings_100000"

	MilestoneStreak3  MilestoneType = "streak_3"
	MilestoneStreak6  MilestoneType = "streak_6"
	MilestoneStreak12 MilestoneType = "streak_12"
)

// SavingsThreshold pairs a cumulative-savings amount with the milestone it unlocks.
type SavingsThreshold struct {
	Type   MilestoneType
	Amount decimal.Decimal
}

// SavingsThresholds is ordered ascending by Amount.
var SavingsThresholds = []SavingsThreshold{
	{Type: MilestoneSavings1K, Amount: decimal.NewFromInt(1000)},
	{Type: MilestoneSavings5K, Amount: decimal.NewFromInt(5000)},
	{Type: MilestoneSavings10K, Amount: decimal.NewFromInt(10000)},
	{Type: MilestoneSavings25K, Amount: decimal.NewFromInt(25000)},
	{Type: MilestoneSavings50K, Amount: decimal.NewFromInt(50000)},
	{Type: MilestoneSavings100K, Amount: decimal.NewFromInt(100000)},
}

// StreakThreshold pairs a streak length (in months) with its milestone.
type StreakThreshold struct {
	Type   MilestoneType
	Months int
}

// StreakThresholds is ordered ascending by Months.
var StreakThresholds = []StreakThreshold{
	{Type: MilestoneStreak3, Months: 3},
	{Type: MilestoneStreak6, Months: 6},
	{Type: MilestoneStreak12, Months: 12},
}

// Achievements is owned by the milestone evaluator; nothing else writes it.
type Achievements struct {
	Milestones    []MilestoneRecord `bson:"milestones" json:"milestones"`
	SavingsStreak StreakState       `bson:"savingsStreak" json:"savingsStreak"`
	Stats         AggregateStats    `bson:"stats" json:"stats"`
}

// HasMilestone reports whether t was already unlocked.
func (a *Achievements) HasMilestone(t MilestoneType) bool {
	for _, m := range a.Milestones {
		if m.Type == t {
			return true
		}
	}
	return false
}

// MilestoneRecord is appended once per type and never removed.
type MilestoneRecord struct {
	Type       MilestoneType `bson:"type" json:"type"`
	UnlockedAt time.Time     `bson:"unlockedAt" json:"unlockedAt"`
	Seen       bool          `bson:"seen" json:"seen"`
}

// StreakState tracks consecutive months with positive savings.
type StreakState struct {
	CurrentStreak    int    `bson:"currentStreak" json:"currentStreak"`
	LongestStreak    int    `bson:"longestStreak" json:"longestStreak"`
	LastSavingsMonth string `bson:"lastSavingsMonth,omitempty" json:"lastSavingsMonth,omitempty"`
}

// AggregateStats are running maxima maintained alongside the streak.
type AggregateStats struct {
	HighestMonthlySavings decimal.Decimal `bson:"highestMonthlySavings" json:"highestMonthlySavings"`
}

// StreakResult is returned by a streak update.
type StreakResult struct {
	NewMilestones []MilestoneRecord `json:"newMilestones"`
	CurrentStreak int               `json:"currentStreak"`
}
