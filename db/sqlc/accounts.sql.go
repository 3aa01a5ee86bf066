package db

import (
	"context"
)

const getAccount = `-- name: GetAccount :one
SELECT id, email, phone, full_name, balance, created_at, updated_at
FROM accounts
WHERE id = $1
`

func (q *Queries) GetAccount(ctx context.Context, id int64) (Account, error) {
	row := q.db.QueryRowContext(ctx, getAccount, id)
	var i Account
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Phone,
		&i.FullName,
		&i.Balance,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const adjustAccountBalance = `-- name: AdjustAccountBalance :one
UPDATE accounts
SET balance = balance + $2,
    updated_at = now()
WHERE id = $1
  AND balance + $2 >= 0
RETURNING id, email, phone, full_name, balance, created_at, updated_at
`

type AdjustAccountBalanceParams struct {
	ID    int64
	Delta string
}

// AdjustAccountBalance applies delta atomically. The WHERE guard makes
// the statement a no-op (sql.ErrNoRows) when it would drive the balance
// negative, so the caller can distinguish insufficient funds from a
// missing account without a separate read.
func (q *Queries) AdjustAccountBalance(ctx context.Context, arg AdjustAccountBalanceParams) (Account, error) {
	row := q.db.QueryRowContext(ctx, adjustAccountBalance, arg.ID, arg.Delta)
	var i Account
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Phone,
		&i.FullName,
		&i.Balance,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}
