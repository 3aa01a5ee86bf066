package statistics

import (
	"context"
	"testing"
	"time"

	"github.com/CastPay/CastPay-Backend/services/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTransactions(t *testing.T) *ledger.MemoryStore {
	t.Helper()
	ctx := context.Background()

	current := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := ledger.NewMemoryStore().WithClock(func() time.Time { return current })
	store.SeedAccount(ledger.Account{ID: 1, Balance: decimal.NewFromInt(1000)})
	store.SeedAccount(ledger.Account{ID: 2, Balance: decimal.NewFromInt(1000)})

	complete := func(reference string, txType ledger.TransactionType, amount int64) {
		_, err := store.CreateTransaction(ctx, ledger.Draft{
			Reference: reference,
			AccountID: 1,
			Type:      txType,
			Amount:    decimal.NewFromInt(amount),
		})
		require.NoError(t, err)
		if txType.IsCredit() {
			_, err = store.CompleteTopup(ctx, reference, "", "")
		} else {
			_, err = store.CompleteWithdrawal(ctx, reference)
		}
		require.NoError(t, err)
	}

	complete("t1", ledger.TypeTopup, 100)
	complete("g1", ledger.TypeGiftReceived, 40)

	current = time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	complete("w1", ledger.TypeWithdrawal, 30)

	current = time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
	complete("t2", ledger.TypeTopup, 50)

	// Pending entries never count
	_, err := store.CreateTransaction(ctx, ledger.Draft{
		Reference: "pending",
		AccountID: 1,
		Type:      ledger.TypeTopup,
		Amount:    decimal.NewFromInt(999),
	})
	require.NoError(t, err)

	// Other accounts never leak in
	_, err = store.CreateTransaction(ctx, ledger.Draft{
		Reference: "other",
		AccountID: 2,
		Type:      ledger.TypeTopup,
		Amount:    decimal.NewFromInt(500),
	})
	require.NoError(t, err)
	_, err = store.CompleteTopup(ctx, "other", "", "")
	require.NoError(t, err)

	return store
}

func TestGetStatistics(t *testing.T) {
	store := seedTransactions(t)
	svc := NewStatisticsService(store)

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	stats, err := svc.GetStatistics(context.Background(), 1, from, to)
	require.NoError(t, err)

	assert.True(t, stats.TotalIncome.Equal(decimal.NewFromInt(190)), "income %s", stats.TotalIncome)
	assert.True(t, stats.TotalExpense.Equal(decimal.NewFromInt(30)))
	assert.True(t, stats.Net.Equal(decimal.NewFromInt(160)))

	assert.True(t, stats.ByType["TOPUP"].Equal(decimal.NewFromInt(150)))
	assert.True(t, stats.ByType["GIFT_RECEIVED"].Equal(decimal.NewFromInt(40)))
	assert.True(t, stats.ByType["WITHDRAWAL"].Equal(decimal.NewFromInt(30)))

	require.Len(t, stats.Daily, 3)
	assert.Equal(t, "2025-03-01", stats.Daily[0].Period)
	assert.True(t, stats.Daily[0].Income.Equal(decimal.NewFromInt(140)))
	assert.Equal(t, "2025-03-02", stats.Daily[1].Period)
	assert.True(t, stats.Daily[1].Expense.Equal(decimal.NewFromInt(30)))

	require.Len(t, stats.Monthly, 2)
	assert.Equal(t, "2025-03", stats.Monthly[0].Period)
	assert.Equal(t, "2025-04", stats.Monthly[1].Period)
}

func TestGetStatisticsRangeBounds(t *testing.T) {
	store := seedTransactions(t)
	svc := NewStatisticsService(store)

	// Only March; the April top-up falls outside the half-open range
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	stats, err := svc.GetStatistics(context.Background(), 1, from, to)
	require.NoError(t, err)
	assert.True(t, stats.TotalIncome.Equal(decimal.NewFromInt(140)))
	assert.True(t, stats.TotalExpense.Equal(decimal.NewFromInt(30)))
}

func TestGetStatisticsEmptyRange(t *testing.T) {
	store := seedTransactions(t)
	svc := NewStatisticsService(store)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	stats, err := svc.GetStatistics(context.Background(), 1, from, to)
	require.NoError(t, err)
	assert.True(t, stats.TotalIncome.IsZero())
	assert.True(t, stats.TotalExpense.IsZero())
	assert.True(t, stats.Net.IsZero())
	assert.Empty(t, stats.Daily)
	assert.Empty(t, stats.Monthly)
}
