package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type Account struct {
	ID        int64
	Email     string
	Phone     sql.NullString
	FullName  string
	Balance   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Transaction struct {
	ID               uuid.UUID
	Reference        string
	AccountID        int64
	Type             string
	Amount           string
	Status           string
	PaymentMethod    string
	Metadata         pqtype.NullRawMessage
	Description      string
	GatewayReference sql.NullString
	GatewayResponse  sql.NullString
	OtpCode          sql.NullString
	OtpExpiresAt     sql.NullTime
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
