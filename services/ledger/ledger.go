package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType tags a ledger entry. Whether a type credits or debits
// the balance is a pure function of the type and is never stored.
type TransactionType string

const (
	TypeTopup        TransactionType = "TOPUP"
	TypeWithdrawal   TransactionType = "WITHDRAWAL"
	TypeGiftSent     TransactionType = "GIFT_SENT"
	TypeGiftReceived TransactionType = "GIFT_RECEIVED"
	TypeGiftPurchase TransactionType = "GIFT_PURCHASE"
	TypeGiftIncome   TransactionType = "GIFT_INCOME"
	TypeCommission   TransactionType = "COMMISSION"
	TypeRefund       TransactionType = "REFUND"
	TypePenalty      TransactionType = "PENALTY"
	TypeBonus        TransactionType = "BONUS"
)

// CreditTypes and DebitTypes partition every transaction type.
var (
	CreditTypes = []TransactionType{TypeTopup, TypeGiftIncome, TypeGiftReceived, TypeCommission, TypeRefund, TypeBonus}
	DebitTypes  = []TransactionType{TypeWithdrawal, TypeGiftSent, TypeGiftPurchase, TypePenalty}
)

func (t TransactionType) IsCredit() bool {
	for _, c := range CreditTypes {
		if t == c {
			return true
		}
	}
	return false
}

func (t TransactionType) IsDebit() bool {
	for _, d := range DebitTypes {
		if t == d {
			return true
		}
	}
	return false
}

func (t TransactionType) Valid() bool {
	return t.IsCredit() || t.IsDebit()
}

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
	StatusCancelled TransactionStatus = "CANCELLED"
	StatusRefunded  TransactionStatus = "REFUNDED"
)

// Terminal reports whether no further transition can start from s.
// COMPLETED is not terminal: a completed withdrawal may still be refunded.
func (s TransactionStatus) Terminal() bool {
	return s == StatusFailed || s == StatusCancelled || s == StatusRefunded
}

type Transaction struct {
	ID               uuid.UUID         `json:"id"`
	Reference        string            `json:"reference"`
	AccountID        int64             `json:"account_id"`
	Type             TransactionType   `json:"type"`
	Amount           decimal.Decimal   `json:"amount"`
	Status           TransactionStatus `json:"status"`
	PaymentMethod    string            `json:"payment_method"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Description      string            `json:"description"`
	GatewayReference string            `json:"gateway_reference,omitempty"`
	GatewayResponse  string            `json:"-"`
	OTPCode          string            `json:"-"`
	OTPExpiresAt     time.Time         `json:"-"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Draft is the caller-supplied part of a new PENDING transaction.
type Draft struct {
	Reference     string
	AccountID     int64
	Type          TransactionType
	Amount        decimal.Decimal
	PaymentMethod string
	Metadata      map[string]string
	Description   string
	OTPCode       string
	OTPExpiresAt  time.Time
}

// Account is the slice of the identity provider's record that the
// wallet core reads. Only the balance is ever mutated here.
type Account struct {
	ID       int64
	Email    string
	Phone    string
	FullName string
	Balance  decimal.Decimal
}

type BalanceSummary struct {
	Balance      decimal.Decimal `json:"balance"`
	TotalIncome  decimal.Decimal `json:"total_income"`
	TotalExpense decimal.Decimal `json:"total_expense"`
	PendingCount int64           `json:"pending_count"`
}

type Filter struct {
	Type   TransactionType
	Status TransactionStatus
}

type Page struct {
	Limit  int32
	Offset int32
}

// GiftSettlement describes the atomic peer-to-peer transfer: the sender
// is debited Amount, the receiver credited ReceiverAmount, and one
// ledger entry is written on each side.
type GiftSettlement struct {
	SenderID          int64
	ReceiverID        int64
	Amount            decimal.Decimal
	ReceiverAmount    decimal.Decimal
	SenderReference   string
	ReceiverReference string
	Description       string
}

var (
	ErrNotFound          = errors.New("transaction not found")
	ErrAccountNotFound   = errors.New("account not found")
	ErrStateConflict     = errors.New("transaction state conflict")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Store is the durable record of transactions and balances. The
// composite operations (CompleteTopup, CompleteWithdrawal,
// RefundWithdrawal, SettleGift) pair a balance mutation with a guarded
// status transition inside one atomic unit; a crash can never leave the
// balance moved but the transaction in its prior status.
type Store interface {
	CreateTransaction(ctx context.Context, draft Draft) (Transaction, error)
	FindByReference(ctx context.Context, reference string) (Transaction, error)

	// UpdateStatus is a compare-and-set: it applies only when the
	// transaction's current status equals guard, otherwise it fails
	// with ErrStateConflict.
	UpdateStatus(ctx context.Context, reference string, next, guard TransactionStatus) (Transaction, error)

	// AdjustBalance atomically applies delta to the account balance and
	// fails with ErrInsufficientFunds when the result would be negative.
	AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) (decimal.Decimal, error)

	GetAccount(ctx context.Context, accountID int64) (Account, error)
	BalanceSummary(ctx context.Context, accountID int64) (BalanceSummary, error)

	// CompleteTopup transitions PENDING -> COMPLETED and credits the
	// account, both or neither. Losing the status race yields
	// ErrStateConflict and no credit.
	CompleteTopup(ctx context.Context, reference, gatewayReference, gatewayResponse string) (Transaction, error)

	// CompleteWithdrawal debits the account (authoritative balance
	// check) and transitions PENDING -> COMPLETED as one unit.
	CompleteWithdrawal(ctx context.Context, reference string) (Transaction, error)

	// FailTransaction transitions PENDING -> FAILED with no balance effect.
	FailTransaction(ctx context.Context, reference, note string) (Transaction, error)

	// RefundWithdrawal credits the amount back and transitions
	// COMPLETED -> REFUNDED as one unit.
	RefundWithdrawal(ctx context.Context, reference, note string) (Transaction, error)

	// RecordBankReference attaches the settlement bank's reference to a
	// COMPLETED withdrawal. Audit-only, no status or balance effect; a
	// transaction in any other status fails with ErrStateConflict.
	RecordBankReference(ctx context.Context, reference, bankReference, note string) (Transaction, error)

	SettleGift(ctx context.Context, settlement GiftSettlement) (sent Transaction, received Transaction, err error)

	ListTransactions(ctx context.Context, accountID int64, filter Filter, page Page) ([]Transaction, error)
	ListCompletedInRange(ctx context.Context, accountID int64, from, to time.Time) ([]Transaction, error)
}
