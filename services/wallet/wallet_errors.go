package wallet

import "errors"

var (
	ErrInvalidSignature       = errors.New("callback signature invalid")
	ErrUnknownTransaction     = errors.New("unknown transaction reference")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidOrExpiredOTP    = errors.New("invalid or expired verification code")
	ErrAlreadyProcessed       = errors.New("transaction already processed")
	ErrStateConflict          = errors.New("transaction changed state concurrently")
	ErrForbidden              = errors.New("transaction does not belong to account")
	ErrInvalidCallbackOutcome = errors.New("callback outcome not applicable to transaction state")
	ErrTooManyAttempts        = errors.New("too many verification attempts")
	ErrInvalidAmount          = errors.New("amount must be positive with at most two decimal places")
	ErrSelfGift               = errors.New("cannot gift to the same account")
)
