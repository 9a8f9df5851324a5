package mongostore_test

import (
	"testing"
	"time"

	"github.com/finmate/finance-tracker-go/internal/domain"
	"github.com/finmate/finance-tracker-go/internal/infra/mongostore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

func TestRegistry_StoresAmountsAsDecimal128(t *testing.T) {
	reg := mongostore.NewRegistry()

	u := domain.NewUserFinance("u1", time.Date(2025, time.May, 1, 0, 1, 0, 0, time.UTC))
	u.MonthlyIncome = decimal.RequireFromString("0.80")
	u.VariableExpenses = []domain.Expense{
		{ID: "a", Amount: decimal.RequireFromString("0.70")},
		{ID: "b", Amount: decimal.RequireFromString("0.10")},
	}
	u.BudgetLimits["food"] = decimal.RequireFromString("12.34")

	data, err := bson.MarshalWithRegistry(reg, u)
	require.NoError(t, err)
	assert.Equal(t, bsontype.Decimal128, bson.Raw(data).Lookup("monthlyIncome").Type)
	assert.Equal(t, bsontype.Decimal128, bson.Raw(data).Lookup("budgetLimits", "food").Type)

	var got domain.UserFinance
	require.NoError(t, bson.UnmarshalWithRegistry(reg, data, &got))

	assert.True(t, got.MonthlyIncome.Sub(domain.SumAmounts(got.VariableExpenses)).IsZero())
	assert.Equal(t, "12.34", got.BudgetLimits["food"].String())
}

func TestRegistry_DecodesLegacyNumbers(t *testing.T) {
	reg := mongostore.NewRegistry()

	data, err := bson.Marshal(bson.M{
		"_id":               "u1",
		"monthlyIncome":     1500.25,
		"cumulativeSavings": int64(300),
		"version":           int64(3),
	})
	require.NoError(t, err)

	var got domain.UserFinance
	require.NoError(t, bson.UnmarshalWithRegistry(reg, data, &got))
	assert.Equal(t, "1500.25", got.MonthlyIncome.String())
	assert.Equal(t, "300", got.CumulativeSavings.String())
}
