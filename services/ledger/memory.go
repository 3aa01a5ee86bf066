package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore implements Store entirely in memory. It backs unit tests
// and local runs without Postgres. A single mutex serializes every
// operation, which trivially satisfies the per-account serialization
// the interface demands.
type MemoryStore struct {
	mu           sync.Mutex
	accounts     map[int64]*Account
	transactions map[string]*Transaction
	order        []string
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[int64]*Account),
		transactions: make(map[string]*Transaction),
		now:          time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

// SeedAccount registers an account. In production accounts are owned by
// the identity provider; this stands in for it.
func (m *MemoryStore) SeedAccount(account Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := account
	m.accounts[a.ID] = &a
}

func (m *MemoryStore) CreateTransaction(ctx context.Context, draft Draft) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(draft, StatusPending)
}

func (m *MemoryStore) createLocked(draft Draft, status TransactionStatus) (Transaction, error) {
	if _, ok := m.accounts[draft.AccountID]; !ok {
		return Transaction{}, ErrAccountNotFound
	}

	now := m.now()
	tx := &Transaction{
		ID:            uuid.New(),
		Reference:     draft.Reference,
		AccountID:     draft.AccountID,
		Type:          draft.Type,
		Amount:        draft.Amount,
		Status:        status,
		PaymentMethod: draft.PaymentMethod,
		Metadata:      draft.Metadata,
		Description:   draft.Description,
		OTPCode:       draft.OTPCode,
		OTPExpiresAt:  draft.OTPExpiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.transactions[tx.Reference] = tx
	m.order = append(m.order, tx.Reference)
	return *tx, nil
}

func (m *MemoryStore) FindByReference(ctx context.Context, reference string) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[reference]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return *tx, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, reference string, next, guard TransactionStatus) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.casLocked(reference, next, guard, "", "")
}

func (m *MemoryStore) casLocked(reference string, next, guard TransactionStatus, gatewayRef, note string) (Transaction, error) {
	tx, ok := m.transactions[reference]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	if tx.Status != guard {
		return Transaction{}, ErrStateConflict
	}

	tx.Status = next
	if gatewayRef != "" {
		tx.GatewayReference = gatewayRef
	}
	if note != "" {
		tx.GatewayResponse = note
	}
	tx.OTPCode = ""
	tx.OTPExpiresAt = time.Time{}
	tx.UpdatedAt = m.now()
	return *tx, nil
}

func (m *MemoryStore) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjustLocked(accountID, delta)
}

func (m *MemoryStore) adjustLocked(accountID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	account, ok := m.accounts[accountID]
	if !ok {
		return decimal.Zero, ErrAccountNotFound
	}

	next := account.Balance.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, ErrInsufficientFunds
	}
	account.Balance = next
	return next, nil
}

func (m *MemoryStore) GetAccount(ctx context.Context, accountID int64) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return *account, nil
}

func (m *MemoryStore) BalanceSummary(ctx context.Context, accountID int64) (BalanceSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return BalanceSummary{}, ErrAccountNotFound
	}

	summary := BalanceSummary{
		Balance:      account.Balance,
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
	}
	for _, tx := range m.transactions {
		if tx.AccountID != accountID {
			continue
		}
		switch {
		case tx.Status == StatusPending:
			summary.PendingCount++
		case tx.Status == StatusCompleted && tx.Type.IsCredit():
			summary.TotalIncome = summary.TotalIncome.Add(tx.Amount)
		case tx.Status == StatusCompleted && tx.Type.IsDebit():
			summary.TotalExpense = summary.TotalExpense.Add(tx.Amount)
		}
	}
	return summary, nil
}

func (m *MemoryStore) CompleteTopup(ctx context.Context, reference, gatewayReference, gatewayResponse string) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[reference]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	if tx.Status != StatusPending {
		return Transaction{}, ErrStateConflict
	}
	if _, ok := m.accounts[tx.AccountID]; !ok {
		return Transaction{}, ErrAccountNotFound
	}

	out, err := m.casLocked(reference, StatusCompleted, StatusPending, gatewayReference, gatewayResponse)
	if err != nil {
		return Transaction{}, err
	}
	if _, err := m.adjustLocked(tx.AccountID, tx.Amount); err != nil {
		return Transaction{}, err
	}
	return out, nil
}

func (m *MemoryStore) CompleteWithdrawal(ctx context.Context, reference string) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[reference]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	if tx.Status != StatusPending {
		return Transaction{}, ErrStateConflict
	}

	account, ok := m.accounts[tx.AccountID]
	if !ok {
		return Transaction{}, ErrAccountNotFound
	}
	// Authoritative check and debit under the same lock
	if account.Balance.LessThan(tx.Amount) {
		return Transaction{}, ErrInsufficientFunds
	}

	out, err := m.casLocked(reference, StatusCompleted, StatusPending, "", "OTP verified successfully")
	if err != nil {
		return Transaction{}, err
	}
	if _, err := m.adjustLocked(tx.AccountID, tx.Amount.Neg()); err != nil {
		return Transaction{}, err
	}
	return out, nil
}

func (m *MemoryStore) FailTransaction(ctx context.Context, reference, note string) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.casLocked(reference, StatusFailed, StatusPending, "", note)
}

func (m *MemoryStore) RefundWithdrawal(ctx context.Context, reference, note string) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[reference]
	if !ok {
		return Transaction{}, ErrNotFound
	}

	out, err := m.casLocked(reference, StatusRefunded, StatusCompleted, "", note)
	if err != nil {
		return Transaction{}, err
	}
	if _, err := m.adjustLocked(tx.AccountID, tx.Amount); err != nil {
		return Transaction{}, err
	}
	return out, nil
}

func (m *MemoryStore) RecordBankReference(ctx context.Context, reference, bankReference, note string) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[reference]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	// Audit fields attach to COMPLETED transactions only; a concurrent
	// refund must not end up stamped with a payout reference.
	if tx.Status != StatusCompleted {
		return Transaction{}, ErrStateConflict
	}
	if bankReference != "" {
		tx.GatewayReference = bankReference
	}
	if note != "" {
		tx.GatewayResponse = note
	}
	tx.UpdatedAt = m.now()
	return *tx, nil
}

func (m *MemoryStore) SettleGift(ctx context.Context, settlement GiftSettlement) (Transaction, Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sender, ok := m.accounts[settlement.SenderID]
	if !ok {
		return Transaction{}, Transaction{}, ErrAccountNotFound
	}
	if _, ok := m.accounts[settlement.ReceiverID]; !ok {
		return Transaction{}, Transaction{}, ErrAccountNotFound
	}
	if sender.Balance.LessThan(settlement.Amount) {
		return Transaction{}, Transaction{}, ErrInsufficientFunds
	}

	if _, err := m.adjustLocked(settlement.SenderID, settlement.Amount.Neg()); err != nil {
		return Transaction{}, Transaction{}, err
	}
	if _, err := m.adjustLocked(settlement.ReceiverID, settlement.ReceiverAmount); err != nil {
		return Transaction{}, Transaction{}, err
	}

	sent, err := m.createLocked(Draft{
		Reference:     settlement.SenderReference,
		AccountID:     settlement.SenderID,
		Type:          TypeGiftSent,
		Amount:        settlement.Amount,
		PaymentMethod: "GIFT",
		Description:   settlement.Description,
	}, StatusCompleted)
	if err != nil {
		return Transaction{}, Transaction{}, err
	}

	received, err := m.createLocked(Draft{
		Reference:     settlement.ReceiverReference,
		AccountID:     settlement.ReceiverID,
		Type:          TypeGiftReceived,
		Amount:        settlement.ReceiverAmount,
		PaymentMethod: "GIFT",
		Description:   "Gift received: " + settlement.Description,
	}, StatusCompleted)
	if err != nil {
		return Transaction{}, Transaction{}, err
	}

	return sent, received, nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, accountID int64, filter Filter, page Page) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if page.Limit <= 0 {
		page.Limit = 20
	}

	// Newest first
	var matched []Transaction
	for i := len(m.order) - 1; i >= 0; i-- {
		tx := m.transactions[m.order[i]]
		if tx.AccountID != accountID {
			continue
		}
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		matched = append(matched, *tx)
	}

	start := int(page.Offset)
	if start >= len(matched) {
		return nil, nil
	}
	end := start + int(page.Limit)
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (m *MemoryStore) ListCompletedInRange(ctx context.Context, accountID int64, from, to time.Time) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []Transaction
	for _, ref := range m.order {
		tx := m.transactions[ref]
		if tx.AccountID != accountID || tx.Status != StatusCompleted {
			continue
		}
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		matched = append(matched, *tx)
	}
	return matched, nil
}
