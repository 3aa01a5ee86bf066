package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	db "github.com/CastPay/CastPay-Backend/db/sqlc"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sqlc-dev/pqtype"
)

// SQLStore is the production Store backed by Postgres. Atomicity of the
// composite operations comes from running them inside db.Store.ExecTx;
// per-account serialization comes from the single-statement balance
// UPDATE with its non-negative guard.
type SQLStore struct {
	store *db.Store
}

func NewSQLStore(store *db.Store) *SQLStore {
	return &SQLStore{store: store}
}

func (s *SQLStore) CreateTransaction(ctx context.Context, draft Draft) (Transaction, error) {
	params, err := toCreateParams(draft)
	if err != nil {
		return Transaction{}, err
	}

	row, err := s.store.CreateTransaction(ctx, params)
	if db.IsUniqueViolation(err) {
		return Transaction{}, ErrStateConflict
	} else if err != nil {
		return Transaction{}, err
	}
	return fromDBTransaction(row)
}

func (s *SQLStore) FindByReference(ctx context.Context, reference string) (Transaction, error) {
	row, err := s.store.GetTransactionByReference(ctx, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, ErrNotFound
	} else if err != nil {
		return Transaction{}, err
	}
	return fromDBTransaction(row)
}

func (s *SQLStore) UpdateStatus(ctx context.Context, reference string, next, guard TransactionStatus) (Transaction, error) {
	row, err := s.store.UpdateTransactionStatus(ctx, db.UpdateTransactionStatusParams{
		Reference:   reference,
		Status:      string(next),
		GuardStatus: string(guard),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, s.casFailure(ctx, s.store.Queries, reference)
	} else if err != nil {
		return Transaction{}, err
	}
	return fromDBTransaction(row)
}

func (s *SQLStore) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	row, err := s.store.AdjustAccountBalance(ctx, db.AdjustAccountBalanceParams{
		ID:    accountID,
		Delta: delta.String(),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, s.adjustFailure(ctx, s.store.Queries, accountID)
	} else if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(row.Balance)
}

func (s *SQLStore) GetAccount(ctx context.Context, accountID int64) (Account, error) {
	row, err := s.store.GetAccount(ctx, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	} else if err != nil {
		return Account{}, err
	}
	return fromDBAccount(row)
}

func (s *SQLStore) BalanceSummary(ctx context.Context, accountID int64) (BalanceSummary, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return BalanceSummary{}, err
	}

	income, err := s.sumByTypes(ctx, accountID, CreditTypes)
	if err != nil {
		return BalanceSummary{}, err
	}

	expense, err := s.sumByTypes(ctx, accountID, DebitTypes)
	if err != nil {
		return BalanceSummary{}, err
	}

	pending, err := s.store.CountTransactionsByStatus(ctx, db.CountTransactionsByStatusParams{
		AccountID: accountID,
		Status:    string(StatusPending),
	})
	if err != nil {
		return BalanceSummary{}, err
	}

	return BalanceSummary{
		Balance:      account.Balance,
		TotalIncome:  income,
		TotalExpense: expense,
		PendingCount: pending,
	}, nil
}

func (s *SQLStore) CompleteTopup(ctx context.Context, reference, gatewayReference, gatewayResponse string) (Transaction, error) {
	var out Transaction
	err := s.store.ExecTx(ctx, func(q *db.Queries) error {
		row, err := q.UpdateTransactionStatus(ctx, db.UpdateTransactionStatusParams{
			Reference:        reference,
			Status:           string(StatusCompleted),
			GuardStatus:      string(StatusPending),
			GatewayReference: nullString(gatewayReference),
			GatewayResponse:  nullString(gatewayResponse),
		})
		if errors.Is(err, sql.ErrNoRows) {
			return s.casFailure(ctx, q, reference)
		} else if err != nil {
			return err
		}

		tx, err := fromDBTransaction(row)
		if err != nil {
			return err
		}

		// Credit only on the transition that actually fired
		if _, err := q.AdjustAccountBalance(ctx, db.AdjustAccountBalanceParams{
			ID:    tx.AccountID,
			Delta: tx.Amount.String(),
		}); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAccountNotFound
			}
			return err
		}

		out = tx
		return nil
	})
	return out, serializationConflict(err)
}

func (s *SQLStore) CompleteWithdrawal(ctx context.Context, reference string) (Transaction, error) {
	var out Transaction
	err := s.store.ExecTx(ctx, func(q *db.Queries) error {
		row, err := q.UpdateTransactionStatus(ctx, db.UpdateTransactionStatusParams{
			Reference:       reference,
			Status:          string(StatusCompleted),
			GuardStatus:     string(StatusPending),
			GatewayResponse: nullString("OTP verified successfully"),
		})
		if errors.Is(err, sql.ErrNoRows) {
			return s.casFailure(ctx, q, reference)
		} else if err != nil {
			return err
		}

		tx, err := fromDBTransaction(row)
		if err != nil {
			return err
		}

		// The debit carries the authoritative balance check; an
		// insufficient balance rolls the status transition back too.
		if _, err := q.AdjustAccountBalance(ctx, db.AdjustAccountBalanceParams{
			ID:    tx.AccountID,
			Delta: tx.Amount.Neg().String(),
		}); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrInsufficientFunds
			}
			return err
		}

		out = tx
		return nil
	})
	return out, serializationConflict(err)
}

func (s *SQLStore) FailTransaction(ctx context.Context, reference, note string) (Transaction, error) {
	row, err := s.store.UpdateTransactionStatus(ctx, db.UpdateTransactionStatusParams{
		Reference:       reference,
		Status:          string(StatusFailed),
		GuardStatus:     string(StatusPending),
		GatewayResponse: nullString(note),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, s.casFailure(ctx, s.store.Queries, reference)
	} else if err != nil {
		return Transaction{}, err
	}
	return fromDBTransaction(row)
}

func (s *SQLStore) RefundWithdrawal(ctx context.Context, reference, note string) (Transaction, error) {
	var out Transaction
	err := s.store.ExecTx(ctx, func(q *db.Queries) error {
		row, err := q.UpdateTransactionStatus(ctx, db.UpdateTransactionStatusParams{
			Reference:       reference,
			Status:          string(StatusRefunded),
			GuardStatus:     string(StatusCompleted),
			GatewayResponse: nullString(note),
		})
		if errors.Is(err, sql.ErrNoRows) {
			return s.casFailure(ctx, q, reference)
		} else if err != nil {
			return err
		}

		tx, err := fromDBTransaction(row)
		if err != nil {
			return err
		}

		if _, err := q.AdjustAccountBalance(ctx, db.AdjustAccountBalanceParams{
			ID:    tx.AccountID,
			Delta: tx.Amount.String(),
		}); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAccountNotFound
			}
			return err
		}

		out = tx
		return nil
	})
	return out, serializationConflict(err)
}

func (s *SQLStore) RecordBankReference(ctx context.Context, reference, bankReference, note string) (Transaction, error) {
	row, err := s.store.SetTransactionAudit(ctx, db.SetTransactionAuditParams{
		Reference:        reference,
		GatewayReference: nullString(bankReference),
		GatewayResponse:  nullString(note),
	})
	if errors.Is(err, sql.ErrNoRows) {
		// Missing row or a row that left COMPLETED under our feet
		return Transaction{}, s.casFailure(ctx, s.store.Queries, reference)
	} else if err != nil {
		return Transaction{}, err
	}
	return fromDBTransaction(row)
}

func (s *SQLStore) SettleGift(ctx context.Context, settlement GiftSettlement) (Transaction, Transaction, error) {
	var sent, received Transaction
	err := s.store.ExecTx(ctx, func(q *db.Queries) error {
		if _, err := q.AdjustAccountBalance(ctx, db.AdjustAccountBalanceParams{
			ID:    settlement.SenderID,
			Delta: settlement.Amount.Neg().String(),
		}); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return s.adjustFailure(ctx, q, settlement.SenderID)
			}
			return err
		}

		if _, err := q.AdjustAccountBalance(ctx, db.AdjustAccountBalanceParams{
			ID:    settlement.ReceiverID,
			Delta: settlement.ReceiverAmount.String(),
		}); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAccountNotFound
			}
			return err
		}

		sentParams, err := toCreateParams(Draft{
			Reference:     settlement.SenderReference,
			AccountID:     settlement.SenderID,
			Type:          TypeGiftSent,
			Amount:        settlement.Amount,
			PaymentMethod: "GIFT",
			Description:   settlement.Description,
		})
		if err != nil {
			return err
		}
		sentParams.Status = string(StatusCompleted)

		sentRow, err := q.CreateTransaction(ctx, sentParams)
		if err != nil {
			return err
		}

		receivedParams, err := toCreateParams(Draft{
			Reference:     settlement.ReceiverReference,
			AccountID:     settlement.ReceiverID,
			Type:          TypeGiftReceived,
			Amount:        settlement.ReceiverAmount,
			PaymentMethod: "GIFT",
			Description:   "Gift received: " + settlement.Description,
		})
		if err != nil {
			return err
		}
		receivedParams.Status = string(StatusCompleted)

		receivedRow, err := q.CreateTransaction(ctx, receivedParams)
		if err != nil {
			return err
		}

		if sent, err = fromDBTransaction(sentRow); err != nil {
			return err
		}
		received, err = fromDBTransaction(receivedRow)
		return err
	})
	if err != nil {
		return Transaction{}, Transaction{}, serializationConflict(err)
	}
	return sent, received, nil
}

func (s *SQLStore) ListTransactions(ctx context.Context, accountID int64, filter Filter, page Page) ([]Transaction, error) {
	if page.Limit <= 0 {
		page.Limit = 20
	}

	rows, err := s.store.ListTransactionsByAccount(ctx, db.ListTransactionsByAccountParams{
		AccountID: accountID,
		Type:      string(filter.Type),
		Status:    string(filter.Status),
		Limit:     page.Limit,
		Offset:    page.Offset,
	})
	if err != nil {
		return nil, err
	}
	return fromDBTransactions(rows)
}

func (s *SQLStore) ListCompletedInRange(ctx context.Context, accountID int64, from, to time.Time) ([]Transaction, error) {
	rows, err := s.store.ListCompletedTransactionsInRange(ctx, db.ListCompletedTransactionsInRangeParams{
		AccountID: accountID,
		From:      from,
		To:        to,
	})
	if err != nil {
		return nil, err
	}
	return fromDBTransactions(rows)
}

func (s *SQLStore) sumByTypes(ctx context.Context, accountID int64, types []TransactionType) (decimal.Decimal, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	sum, err := s.store.SumCompletedAmountByTypes(ctx, db.SumCompletedAmountByTypesParams{
		AccountID: accountID,
		Types:     names,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(sum)
}

// serializationConflict converts the abort Postgres hands the loser of
// two serializable transactions into the same conflict a lost
// compare-and-set yields, so callers see one error either way.
func serializationConflict(err error) error {
	if db.IsSerializationFailure(err) {
		return ErrStateConflict
	}
	return err
}

// casFailure resolves a zero-row compare-and-set into the caller-facing
// error: the transaction either does not exist or is in another state.
func (s *SQLStore) casFailure(ctx context.Context, q *db.Queries, reference string) error {
	if _, err := q.GetTransactionByReference(ctx, reference); errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	return ErrStateConflict
}

func (s *SQLStore) adjustFailure(ctx context.Context, q *db.Queries, accountID int64) error {
	if _, err := q.GetAccount(ctx, accountID); errors.Is(err, sql.ErrNoRows) {
		return ErrAccountNotFound
	} else if err != nil {
		return err
	}
	return ErrInsufficientFunds
}

func toCreateParams(draft Draft) (db.CreateTransactionParams, error) {
	if !draft.Type.Valid() {
		return db.CreateTransactionParams{}, fmt.Errorf("unknown transaction type %q", draft.Type)
	}

	metadata := pqtype.NullRawMessage{}
	if len(draft.Metadata) > 0 {
		raw, err := json.Marshal(draft.Metadata)
		if err != nil {
			return db.CreateTransactionParams{}, fmt.Errorf("could not encode metadata: %w", err)
		}
		metadata = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}

	return db.CreateTransactionParams{
		ID:            uuid.New(),
		Reference:     draft.Reference,
		AccountID:     draft.AccountID,
		Type:          string(draft.Type),
		Amount:        draft.Amount.String(),
		Status:        string(StatusPending),
		PaymentMethod: draft.PaymentMethod,
		Metadata:      metadata,
		Description:   draft.Description,
		OtpCode:       nullString(draft.OTPCode),
		OtpExpiresAt:  sql.NullTime{Time: draft.OTPExpiresAt, Valid: !draft.OTPExpiresAt.IsZero()},
	}, nil
}

func fromDBTransaction(row db.Transaction) (Transaction, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("invalid stored amount %q: %w", row.Amount, err)
	}

	var metadata map[string]string
	if row.Metadata.Valid {
		if err := json.Unmarshal(row.Metadata.RawMessage, &metadata); err != nil {
			return Transaction{}, fmt.Errorf("could not decode metadata: %w", err)
		}
	}

	return Transaction{
		ID:               row.ID,
		Reference:        row.Reference,
		AccountID:        row.AccountID,
		Type:             TransactionType(row.Type),
		Amount:           amount,
		Status:           TransactionStatus(row.Status),
		PaymentMethod:    row.PaymentMethod,
		Metadata:         metadata,
		Description:      row.Description,
		GatewayReference: row.GatewayReference.String,
		GatewayResponse:  row.GatewayResponse.String,
		OTPCode:          row.OtpCode.String,
		OTPExpiresAt:     row.OtpExpiresAt.Time,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}, nil
}

func fromDBTransactions(rows []db.Transaction) ([]Transaction, error) {
	out := make([]Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := fromDBTransaction(row)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

func fromDBAccount(row db.Account) (Account, error) {
	balance, err := decimal.NewFromString(row.Balance)
	if err != nil {
		return Account{}, fmt.Errorf("invalid stored balance %q: %w", row.Balance, err)
	}

	return Account{
		ID:       row.ID,
		Email:    row.Email,
		Phone:    row.Phone.String,
		FullName: row.FullName,
		Balance:  balance,
	}, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
