package statistics

import (
	"context"
	"sort"
	"time"

	"github.com/CastPay/CastPay-Backend/services/ledger"
	"github.com/shopspring/decimal"
)

// Statistics summarises an account's completed transactions over a
// half-open interval [From, To).
type Statistics struct {
	From         time.Time                  `json:"from"`
	To           time.Time                  `json:"to"`
	TotalIncome  decimal.Decimal            `json:"total_income"`
	TotalExpense decimal.Decimal            `json:"total_expense"`
	Net          decimal.Decimal            `json:"net"`
	ByType       map[string]decimal.Decimal `json:"by_type"`
	Daily        []PeriodTotal              `json:"daily"`
	Monthly      []PeriodTotal              `json:"monthly"`
}

type PeriodTotal struct {
	Period  string          `json:"period"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

type StatisticsService struct {
	store ledger.Store
}

func NewStatisticsService(store ledger.Store) *StatisticsService {
	return &StatisticsService{store: store}
}

// GetStatistics aggregates completed transactions for the account.
// Only COMPLETED entries count; pending, failed and refunded movements
// never appear in the totals.
func (s *StatisticsService) GetStatistics(ctx context.Context, accountID int64, from, to time.Time) (Statistics, error) {
	stats := Statistics{
		From:         from,
		To:           to,
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
		Net:          decimal.Zero,
		ByType:       make(map[string]decimal.Decimal),
	}

	transactions, err := s.store.ListCompletedInRange(ctx, accountID, from, to)
	if err != nil {
		return stats, err
	}

	daily := make(map[string]*PeriodTotal)
	monthly := make(map[string]*PeriodTotal)

	for _, tx := range transactions {
		stats.ByType[string(tx.Type)] = stats.ByType[string(tx.Type)].Add(tx.Amount)

		dayKey := tx.CreatedAt.Format("2006-01-02")
		monthKey := tx.CreatedAt.Format("2006-01")

		if tx.Type.IsCredit() {
			stats.TotalIncome = stats.TotalIncome.Add(tx.Amount)
			bucket(daily, dayKey).Income = bucket(daily, dayKey).Income.Add(tx.Amount)
			bucket(monthly, monthKey).Income = bucket(monthly, monthKey).Income.Add(tx.Amount)
		} else {
			stats.TotalExpense = stats.TotalExpense.Add(tx.Amount)
			bucket(daily, dayKey).Expense = bucket(daily, dayKey).Expense.Add(tx.Amount)
			bucket(monthly, monthKey).Expense = bucket(monthly, monthKey).Expense.Add(tx.Amount)
		}
	}

	stats.Net = stats.TotalIncome.Sub(stats.TotalExpense)
	stats.Daily = sortedTotals(daily)
	stats.Monthly = sortedTotals(monthly)

	return stats, nil
}

func bucket(m map[string]*PeriodTotal, key string) *PeriodTotal {
	if total, ok := m[key]; ok {
		return total
	}
	total := &PeriodTotal{Period: key, Income: decimal.Zero, Expense: decimal.Zero}
	m[key] = total
	return total
}

func sortedTotals(m map[string]*PeriodTotal) []PeriodTotal {
	totals := make([]PeriodTotal, 0, len(m))
	for _, total := range m {
		totals = append(totals, *total)
	}
	sort.Slice(totals, func(i, j int) bool {
		return totals[i].Period < totals[j].Period
	})
	return totals
}
