package models

import (
	"github.com/shopspring/decimal"
)

type TopupRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required,decimalgt0"`
}

type WithdrawRequest struct {
	Amount        decimal.Decimal `json:"amount" binding:"required,decimalgt0"`
	BankCode      string          `json:"bank_code" binding:"required"`
	AccountNumber string          `json:"account_number" binding:"required,numeric"`
	AccountName   string          `json:"account_name" binding:"required"`
}

type VerifyWithdrawalRequest struct {
	Reference string `json:"reference" binding:"required"`
	OTP       string `json:"otp" binding:"required,numeric"`
}

type GiftRequest struct {
	ReceiverID  int64           `json:"receiver_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required,decimalgt0"`
	Description string          `json:"description"`
}

// BankSettlementRequest is the payout provider's result for a
// completed withdrawal.
type BankSettlementRequest struct {
	Reference     string `json:"reference" binding:"required"`
	BankReference string `json:"bank_reference"`
	Status        string `json:"status" binding:"required,oneof=SUCCESS FAILED"`
	Note          string `json:"note"`
}

type PaymentMethod struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
