package wallet

import (
	"time"

	"github.com/CastPay/CastPay-Backend/services/ledger"
	"github.com/shopspring/decimal"
)

// TopupInitiation is returned to the client, who redirects the user to
// PaymentURL and later reconciles using Reference.
type TopupInitiation struct {
	Reference  string `json:"reference"`
	PaymentURL string `json:"payment_url"`
}

// BankDetails is the destination of a withdrawal. It is stored on the
// transaction's metadata so the payout side can read it back.
type BankDetails struct {
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// WithdrawalInitiation acknowledges a pending withdrawal awaiting OTP
// confirmation. The code itself travels out of band.
type WithdrawalInitiation struct {
	Reference    string          `json:"reference"`
	Amount       decimal.Decimal `json:"amount"`
	OTPExpiresAt time.Time       `json:"otp_expires_at"`
}

// GiftResult reports both sides of a settled gift.
type GiftResult struct {
	Sent     ledger.Transaction `json:"sent"`
	Received ledger.Transaction `json:"received"`
}
