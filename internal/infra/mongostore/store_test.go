package mongostore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/finmate/finance-tracker-go/internal/domain"
	"github.com/finmate/finance-tracker-go/internal/infra/mongostore"
	"github.com/finmate/finance-tracker-go/internal/infra/observability"
	"github.com/finmate/finance-tracker-go/internal/infra/resilience"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// connect returns a store on a throwaway collection, or skips when
// TEST_MONGODB_URI is not set.
func connect(t *testing.T) *mongostore.Store {
	t.Helper()

	uri := os.Getenv("TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("TEST_MONGODB_URI not set; skipping MongoDB integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := mongostore.Connect(ctx, uri, "finance_tracker_test", "users_"+uuid.NewString()[:8],
		resilience.NewCircuitBreaker("mongodb-test"), observability.NewMetrics(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func TestStore_CreateFindSave(t *testing.T) {
	store := connect(t)
	ctx := context.Background()
	now := time.Date(2025, time.May, 1, 0, 1, 0, 0, time.UTC)

	u := domain.NewUserFinance("u1", now)
	u.MonthlyIncome = decimal.RequireFromString("1000.10")
	require.NoError(t, store.Create(ctx, u))
	assert.Equal(t, int64(1), u.Version)

	var conflict *domain.ErrConflict
	assert.ErrorAs(t, store.Create(ctx, domain.NewUserFinance("u1", now)), &conflict)

	got, err := store.Find(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "1000.1", got.MonthlyIncome.String())

	got.MonthlyIncome = decimal.Zero
	got.MonthlyHistory = append(got.MonthlyHistory, domain.MonthRecord{Month: "2025-05", Income: decimal.RequireFromString("0.80"), Savings: decimal.RequireFromString("0.80").Sub(decimal.RequireFromString("0.70")).Sub(decimal.RequireFromString("0.10"))})
	require.NoError(t, store.Save(ctx, got))
	assert.Equal(t, int64(2), got.Version)

	// A writer holding the old version loses.
	u.MonthlyIncome = decimal.NewFromInt(5)
	var vc *domain.ErrVersionConflict
	assert.ErrorAs(t, store.Save(ctx, u), &vc)

	reloaded, err := store.Find(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, reloaded.MonthlyIncome.IsZero())
	require.Len(t, reloaded.MonthlyHistory, 1)
	assert.True(t, reloaded.MonthlyHistory[0].Savings.IsZero())
	assert.Equal(t, "0.8", reloaded.MonthlyHistory[0].Income.String())
}

func TestStore_NotFoundAndFindAll(t *testing.T) {
	store := connect(t)
	ctx := context.Background()

	_, err := store.Find(ctx, "ghost")
	var notFound *domain.ErrNotFound
	assert.ErrorAs(t, err, &notFound)

	ghost := domain.NewUserFinance("ghost", time.Now())
	ghost.Version = 1
	assert.ErrorAs(t, store.Save(ctx, ghost), &notFound)

	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, store.Create(ctx, domain.NewUserFinance(id, time.Now())))
	}
	all, err := store.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "c", all[2].ID)

	require.NoError(t, store.Ping(ctx))
}
