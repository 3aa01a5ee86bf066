package apistrings

const (
	/// Basic Account Related Strings
	AccountNotFound = "account does not exist"

	/// Core Functionality Error
	ServerError = "a server error occurred, please try again later"

	/// Wallet Related Strings
	InvalidTopupInput    = "check 'amount' key, invalid request"
	InvalidWithdrawInput = "check 'amount' or bank detail keys, invalid request"
	InvalidVerifyInput   = "check 'reference' or 'otp' keys, invalid request"
	InvalidGiftInput     = "check 'receiver_id' or 'amount' keys, invalid request"
	InvalidListInput     = "check 'limit' or 'offset' keys, invalid request"
	InvalidDateRange     = "invalid 'from' or 'to' date, expected YYYY-MM-DD"
	InsufficientFunds    = "insufficient funds for this transaction"
	SelfGift             = "you cannot send a gift to yourself"

	/// Transaction Related Strings
	TransactionNotFound  = "transaction does not exist"
	TransactionForbidden = "transaction does not belong to this account"
	TransactionProcessed = "transaction has already been processed"
	TransactionConflict  = "transaction changed state, please re-check its status"
	InvalidOTP           = "invalid or expired verification code"
	TooManyAttempts      = "too many verification attempts, please request a new withdrawal"

	/// Payment Callback Strings
	InvalidSignature       = "callback signature could not be verified"
	InvalidCallback        = "callback does not apply to this transaction's state"
	InvalidSettlementInput = "check 'reference' or 'status' keys, invalid request"
)
