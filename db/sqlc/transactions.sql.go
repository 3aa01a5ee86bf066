package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

const createTransaction = `-- name: CreateTransaction :one
INSERT INTO transactions (
    id, reference, account_id, type, amount, status, payment_method,
    metadata, description, otp_code, otp_expires_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)
RETURNING id, reference, account_id, type, amount, status, payment_method,
          metadata, description, gateway_reference, gateway_response,
          otp_code, otp_expires_at, created_at, updated_at
`

type CreateTransactionParams struct {
	ID            uuid.UUID
	Reference     string
	AccountID     int64
	Type          string
	Amount        string
	Status        string
	PaymentMethod string
	Metadata      pqtype.NullRawMessage
	Description   string
	OtpCode       sql.NullString
	OtpExpiresAt  sql.NullTime
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, createTransaction,
		arg.ID,
		arg.Reference,
		arg.AccountID,
		arg.Type,
		arg.Amount,
		arg.Status,
		arg.PaymentMethod,
		arg.Metadata,
		arg.Description,
		arg.OtpCode,
		arg.OtpExpiresAt,
	)
	return scanTransaction(row)
}

const getTransactionByReference = `-- name: GetTransactionByReference :one
SELECT id, reference, account_id, type, amount, status, payment_method,
       metadata, description, gateway_reference, gateway_response,
       otp_code, otp_expires_at, created_at, updated_at
FROM transactions
WHERE reference = $1
`

func (q *Queries) GetTransactionByReference(ctx context.Context, reference string) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, getTransactionByReference, reference)
	return scanTransaction(row)
}

const updateTransactionStatus = `-- name: UpdateTransactionStatus :one
UPDATE transactions
SET status = $2,
    gateway_reference = COALESCE($4, gateway_reference),
    gateway_response = COALESCE($5, gateway_response),
    otp_code = NULL,
    otp_expires_at = NULL,
    updated_at = now()
WHERE reference = $1
  AND status = $3
RETURNING id, reference, account_id, type, amount, status, payment_method,
          metadata, description, gateway_reference, gateway_response,
          otp_code, otp_expires_at, created_at, updated_at
`

type UpdateTransactionStatusParams struct {
	Reference        string
	Status           string
	GuardStatus      string
	GatewayReference sql.NullString
	GatewayResponse  sql.NullString
}

// UpdateTransactionStatus is a compare-and-set: the row only changes
// when its current status equals GuardStatus. A lost race surfaces as
// sql.ErrNoRows. Leaving PENDING clears the OTP fields.
func (q *Queries) UpdateTransactionStatus(ctx context.Context, arg UpdateTransactionStatusParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, updateTransactionStatus,
		arg.Reference,
		arg.Status,
		arg.GuardStatus,
		arg.GatewayReference,
		arg.GatewayResponse,
	)
	return scanTransaction(row)
}

const setTransactionAudit = `-- name: SetTransactionAudit :one
UPDATE transactions
SET gateway_reference = COALESCE($2, gateway_reference),
    gateway_response = COALESCE($3, gateway_response),
    updated_at = now()
WHERE reference = $1
  AND status = 'COMPLETED'
RETURNING id, reference, account_id, type, amount, status, payment_method,
          metadata, description, gateway_reference, gateway_response,
          otp_code, otp_expires_at, created_at, updated_at
`

type SetTransactionAuditParams struct {
	Reference        string
	GatewayReference sql.NullString
	GatewayResponse  sql.NullString
}

// SetTransactionAudit attaches external references to a COMPLETED
// transaction only. A row that raced into another state (e.g. a
// concurrent refund) is not touched and surfaces as sql.ErrNoRows.
func (q *Queries) SetTransactionAudit(ctx context.Context, arg SetTransactionAuditParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, setTransactionAudit,
		arg.Reference,
		arg.GatewayReference,
		arg.GatewayResponse,
	)
	return scanTransaction(row)
}

const listTransactionsByAccount = `-- name: ListTransactionsByAccount :many
SELECT id, reference, account_id, type, amount, status, payment_method,
       metadata, description, gateway_reference, gateway_response,
       otp_code, otp_expires_at, created_at, updated_at
FROM transactions
WHERE account_id = $1
  AND ($2::text = '' OR type = $2)
  AND ($3::text = '' OR status = $3)
ORDER BY created_at DESC
LIMIT $4 OFFSET $5
`

type ListTransactionsByAccountParams struct {
	AccountID int64
	Type      string
	Status    string
	Limit     int32
	Offset    int32
}

func (q *Queries) ListTransactionsByAccount(ctx context.Context, arg ListTransactionsByAccountParams) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactionsByAccount,
		arg.AccountID,
		arg.Type,
		arg.Status,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

const listCompletedTransactionsInRange = `-- name: ListCompletedTransactionsInRange :many
SELECT id, reference, account_id, type, amount, status, payment_method,
       metadata, description, gateway_reference, gateway_response,
       otp_code, otp_expires_at, created_at, updated_at
FROM transactions
WHERE account_id = $1
  AND status = 'COMPLETED'
  AND created_at >= $2
  AND created_at < $3
ORDER BY created_at ASC
`

type ListCompletedTransactionsInRangeParams struct {
	AccountID int64
	From      time.Time
	To        time.Time
}

func (q *Queries) ListCompletedTransactionsInRange(ctx context.Context, arg ListCompletedTransactionsInRangeParams) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listCompletedTransactionsInRange, arg.AccountID, arg.From, arg.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

const countTransactionsByStatus = `-- name: CountTransactionsByStatus :one
SELECT count(*) FROM transactions
WHERE account_id = $1 AND status = $2
`

type CountTransactionsByStatusParams struct {
	AccountID int64
	Status    string
}

func (q *Queries) CountTransactionsByStatus(ctx context.Context, arg CountTransactionsByStatusParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countTransactionsByStatus, arg.AccountID, arg.Status)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const sumCompletedAmountByTypes = `-- name: SumCompletedAmountByTypes :one
SELECT COALESCE(SUM(amount), 0)::text FROM transactions
WHERE account_id = $1
  AND status = 'COMPLETED'
  AND type = ANY($2::text[])
`

type SumCompletedAmountByTypesParams struct {
	AccountID int64
	Types     []string
}

func (q *Queries) SumCompletedAmountByTypes(ctx context.Context, arg SumCompletedAmountByTypesParams) (string, error) {
	row := q.db.QueryRowContext(ctx, sumCompletedAmountByTypes, arg.AccountID, pq.Array(arg.Types))
	var sum string
	err := row.Scan(&sum)
	return sum, err
}

func scanTransaction(row *sql.Row) (Transaction, error) {
	var i Transaction
	err := row.Scan(
		&i.ID,
		&i.Reference,
		&i.AccountID,
		&i.Type,
		&i.Amount,
		&i.Status,
		&i.PaymentMethod,
		&i.Metadata,
		&i.Description,
		&i.GatewayReference,
		&i.GatewayResponse,
		&i.OtpCode,
		&i.OtpExpiresAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func scanTransactions(rows *sql.Rows) ([]Transaction, error) {
	var items []Transaction
	for rows.Next() {
		var i Transaction
		if err := rows.Scan(
			&i.ID,
			&i.Reference,
			&i.AccountID,
			&i.Type,
			&i.Amount,
			&i.Status,
			&i.PaymentMethod,
			&i.Metadata,
			&i.Description,
			&i.GatewayReference,
			&i.GatewayResponse,
			&i.OtpCode,
			&i.OtpExpiresAt,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
