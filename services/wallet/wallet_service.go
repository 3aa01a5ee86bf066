package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/CastPay/CastPay-Backend/services/gateway"
	"github.com/CastPay/CastPay-Backend/services/ledger"
	"github.com/CastPay/CastPay-Backend/services/monitoring/logging"
	"github.com/CastPay/CastPay-Backend/services/security"
	"github.com/CastPay/CastPay-Backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	methodGateway      = "GATEWAY"
	methodBankTransfer = "BANK_TRANSFER"
	methodInternal     = "INTERNAL"

	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Notifier delivers out-of-band messages. Implementations must be
// fire-and-forget; the wallet never waits on delivery.
type Notifier interface {
	SendWithdrawalOTP(account ledger.Account, code string, amount decimal.Decimal, expiresAt time.Time)
	SendTransactionReceipt(account ledger.Account, tx ledger.Transaction)
}

// BalanceCache is a read-through cache for balance summaries. A nil
// cache is valid and means every read hits the store.
type BalanceCache interface {
	Get(ctx context.Context, accountID int64) (ledger.BalanceSummary, error)
	Store(ctx context.Context, accountID int64, summary ledger.BalanceSummary) error
	Invalidate(ctx context.Context, accountIDs ...int64) error
}

// WalletService orchestrates the money flows: top-ups through the
// payment gateway, OTP-confirmed withdrawals, gifts and balance reads.
// All balance arithmetic lives in the ledger store; this layer owns
// sequencing, verification and notification.
type WalletService struct {
	store    ledger.Store
	gateway  *gateway.Client
	refs     *utils.ReferenceGenerator
	notifier Notifier
	cache    BalanceCache
	limiter  *security.AttemptLimiter
	logger   *logging.Logger
	config   *utils.Config

	receiverShare decimal.Decimal
	now           func() time.Time
}

func NewWalletService(
	store ledger.Store,
	gatewayClient *gateway.Client,
	refs *utils.ReferenceGenerator,
	notifier Notifier,
	cache BalanceCache,
	limiter *security.AttemptLimiter,
	logger *logging.Logger,
	config *utils.Config,
) (*WalletService, error) {
	share, err := decimal.NewFromString(config.GiftReceiverShare)
	if err != nil {
		return nil, fmt.Errorf("invalid gift receiver share %q: %w", config.GiftReceiverShare, err)
	}
	if share.IsNegative() || share.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("gift receiver share %s out of range", share)
	}

	return &WalletService{
		store:         store,
		gateway:       gatewayClient,
		refs:          refs,
		notifier:      notifier,
		cache:         cache,
		limiter:       limiter,
		logger:        logger,
		config:        config,
		receiverShare: share,
		now:           time.Now,
	}, nil
}

// WithClock overrides the clock, for tests.
func (s *WalletService) WithClock(now func() time.Time) *WalletService {
	s.now = now
	return s
}

// amountValid reports whether the amount is positive and representable
// at the ledger's two-decimal currency scale. Finer fractions would be
// truncated by the gateway's minor-unit conversion and rounded by the
// NUMERIC(15,2) column, leaving the signed amount and the stored amount
// disagreeing.
func amountValid(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(2))
}

// GetBalance returns the account's balance summary, served from cache
// when a fresh entry exists.
func (s *WalletService) GetBalance(ctx context.Context, accountID int64) (ledger.BalanceSummary, error) {
	if s.cache != nil {
		if summary, err := s.cache.Get(ctx, accountID); err == nil {
			return summary, nil
		}
	}

	summary, err := s.store.BalanceSummary(ctx, accountID)
	if err != nil {
		return summary, err
	}

	if s.cache != nil {
		if err := s.cache.Store(ctx, accountID, summary); err != nil {
			s.logger.Warnf("unable to cache balance for account %d: %v", accountID, err)
		}
	}

	return summary, nil
}

// InitiateTopup records a PENDING top-up and returns the signed gateway
// URL the client must redirect the user to. The balance is untouched
// until the gateway confirms payment.
func (s *WalletService) InitiateTopup(ctx context.Context, accountID int64, amount decimal.Decimal, clientIP string) (TopupInitiation, error) {
	if !amountValid(amount) {
		return TopupInitiation{}, ErrInvalidAmount
	}

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return TopupInitiation{}, err
	}

	reference, err := s.refs.NewReference()
	if err != nil {
		return TopupInitiation{}, err
	}

	tx, err := s.store.CreateTransaction(ctx, ledger.Draft{
		Reference:     reference,
		AccountID:     account.ID,
		Type:          ledger.TypeTopup,
		Amount:        amount,
		PaymentMethod: methodGateway,
		Description:   fmt.Sprintf("Wallet top-up of %s", amount.StringFixed(2)),
	})
	if err != nil {
		return TopupInitiation{}, err
	}

	orderInfo := fmt.Sprintf("Top-up %s", reference)
	paymentURL, err := s.gateway.BuildPaymentURL(reference, amount, orderInfo, clientIP, "")
	if err != nil {
		if _, failErr := s.store.FailTransaction(ctx, reference, "payment url build failed"); failErr != nil {
			s.logger.Warnf("unable to fail transaction %s: %v", reference, failErr)
		}
		return TopupInitiation{}, err
	}

	return TopupInitiation{
		Reference:  tx.Reference,
		PaymentURL: paymentURL,
	}, nil
}

// HandleGatewayCallback settles a top-up from the gateway's signed
// callback. Replays of an already-settled callback succeed without
// moving the balance again.
func (s *WalletService) HandleGatewayCallback(ctx context.Context, params map[string]string) (ledger.Transaction, error) {
	if !s.gateway.ValidateCallback(params) {
		s.logger.SecurityEvent("gateway callback with invalid signature", logrus.Fields{
			"reference": params[gateway.ParamTxnRef],
		})
		return ledger.Transaction{}, ErrInvalidSignature
	}

	reference := params[gateway.ParamTxnRef]
	tx, err := s.store.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return ledger.Transaction{}, ErrUnknownTransaction
		}
		return ledger.Transaction{}, err
	}
	if tx.Type != ledger.TypeTopup {
		return ledger.Transaction{}, ErrUnknownTransaction
	}

	rawResponse := "{}"
	if encoded, err := json.Marshal(params); err == nil {
		rawResponse = string(encoded)
	}

	responseCode := params[gateway.ParamResponseCode]
	if responseCode == gateway.ResponseCodeSuccess {
		completed, err := s.store.CompleteTopup(ctx, reference, params[gateway.ParamTransactionNo], rawResponse)
		if err != nil {
			return s.resolveReplay(ctx, reference, ledger.StatusCompleted, err)
		}
		s.afterSettlement(ctx, completed)
		return completed, nil
	}

	failed, err := s.store.FailTransaction(ctx, reference, fmt.Sprintf("gateway declined with code %s", responseCode))
	if err != nil {
		return s.resolveReplay(ctx, reference, ledger.StatusFailed, err)
	}
	return failed, nil
}

// InitiateWithdrawal records a PENDING withdrawal and sends the
// confirmation code. Nothing is debited until the code is verified; an
// abandoned withdrawal stays PENDING and never moves the balance.
func (s *WalletService) InitiateWithdrawal(ctx context.Context, accountID int64, amount decimal.Decimal, bank BankDetails) (WithdrawalInitiation, error) {
	if !amountValid(amount) {
		return WithdrawalInitiation{}, ErrInvalidAmount
	}

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return WithdrawalInitiation{}, err
	}

	// Advisory check only; the authoritative check happens atomically
	// at settlement time in CompleteWithdrawal.
	if account.Balance.LessThan(amount) {
		return WithdrawalInitiation{}, ErrInsufficientFunds
	}

	code, err := utils.GenerateOTP(s.config.OTPLength)
	if err != nil {
		return WithdrawalInitiation{}, err
	}
	expiresAt := s.now().Add(s.config.OTPExpiry())

	reference, err := s.refs.NewReference()
	if err != nil {
		return WithdrawalInitiation{}, err
	}

	tx, err := s.store.CreateTransaction(ctx, ledger.Draft{
		Reference:     reference,
		AccountID:     account.ID,
		Type:          ledger.TypeWithdrawal,
		Amount:        amount,
		PaymentMethod: methodBankTransfer,
		Metadata: map[string]string{
			"bank_code":      bank.BankCode,
			"account_number": bank.AccountNumber,
			"account_name":   bank.AccountName,
		},
		Description:  fmt.Sprintf("Withdrawal of %s to %s", amount.StringFixed(2), bank.BankCode),
		OTPCode:      code,
		OTPExpiresAt: expiresAt,
	})
	if err != nil {
		return WithdrawalInitiation{}, err
	}

	if s.notifier != nil {
		s.notifier.SendWithdrawalOTP(account, code, amount, expiresAt)
	}

	return WithdrawalInitiation{
		Reference:    tx.Reference,
		Amount:       tx.Amount,
		OTPExpiresAt: expiresAt,
	}, nil
}

// VerifyWithdrawalOTP confirms a pending withdrawal. On a correct,
// unexpired code the account is debited and the withdrawal completed as
// one atomic unit; concurrent verifications settle at most once.
func (s *WalletService) VerifyWithdrawalOTP(ctx context.Context, accountID int64, reference, code string) (ledger.Transaction, error) {
	tx, err := s.store.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return ledger.Transaction{}, ErrUnknownTransaction
		}
		return ledger.Transaction{}, err
	}

	if tx.AccountID != accountID {
		return ledger.Transaction{}, ErrForbidden
	}
	if tx.Type != ledger.TypeWithdrawal {
		return ledger.Transaction{}, ErrUnknownTransaction
	}
	if tx.Status != ledger.StatusPending {
		return ledger.Transaction{}, ErrAlreadyProcessed
	}

	if s.limiter != nil && !s.limiter.Allow(reference) {
		s.logger.SecurityEvent("otp attempt limit reached", logrus.Fields{
			"reference":  reference,
			"account_id": accountID,
		})
		return ledger.Transaction{}, ErrTooManyAttempts
	}

	if !utils.ValidateOTP(code, tx.OTPCode, tx.OTPExpiresAt, s.now()) {
		if s.limiter != nil {
			s.limiter.RecordFailure(reference)
		}
		return ledger.Transaction{}, ErrInvalidOrExpiredOTP
	}

	if s.limiter != nil {
		s.limiter.Reset(reference)
	}

	completed, err := s.store.CompleteWithdrawal(ctx, reference)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			if _, failErr := s.store.FailTransaction(ctx, reference, "insufficient funds at settlement"); failErr != nil {
				s.logger.Warnf("unable to fail transaction %s: %v", reference, failErr)
			}
			return ledger.Transaction{}, ErrInsufficientFunds
		case errors.Is(err, ledger.ErrStateConflict):
			return ledger.Transaction{}, ErrAlreadyProcessed
		}
		return ledger.Transaction{}, err
	}

	s.afterSettlement(ctx, completed)
	return completed, nil
}

// HandleBankSettlement processes the payout bank's asynchronous result
// for a completed withdrawal. A failed payout refunds the full amount;
// a successful one only records the bank's reference for audit.
func (s *WalletService) HandleBankSettlement(ctx context.Context, reference, bankReference string, success bool, note string) (ledger.Transaction, error) {
	tx, err := s.store.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return ledger.Transaction{}, ErrUnknownTransaction
		}
		return ledger.Transaction{}, err
	}
	if tx.Type != ledger.TypeWithdrawal {
		return ledger.Transaction{}, ErrInvalidCallbackOutcome
	}

	switch tx.Status {
	case ledger.StatusCompleted:
		// fall through to settle below
	case ledger.StatusRefunded, ledger.StatusFailed, ledger.StatusCancelled:
		return ledger.Transaction{}, ErrAlreadyProcessed
	default:
		// A payout result for a withdrawal the user never confirmed.
		return ledger.Transaction{}, ErrInvalidCallbackOutcome
	}

	if success {
		recorded, err := s.store.RecordBankReference(ctx, reference, bankReference, note)
		if err != nil {
			// A refund raced in between our status read and the stamp
			if errors.Is(err, ledger.ErrStateConflict) {
				return ledger.Transaction{}, ErrAlreadyProcessed
			}
			return ledger.Transaction{}, err
		}
		return recorded, nil
	}

	refunded, err := s.store.RefundWithdrawal(ctx, reference, note)
	if err != nil {
		if errors.Is(err, ledger.ErrStateConflict) {
			return ledger.Transaction{}, ErrAlreadyProcessed
		}
		return ledger.Transaction{}, err
	}

	s.afterSettlement(ctx, refunded)
	return refunded, nil
}

// SendGift atomically transfers a gift: the sender is debited the full
// amount and the receiver credited their configured share, the platform
// keeping the remainder.
func (s *WalletService) SendGift(ctx context.Context, senderID, receiverID int64, amount decimal.Decimal, description string) (GiftResult, error) {
	if !amountValid(amount) {
		return GiftResult{}, ErrInvalidAmount
	}
	if senderID == receiverID {
		return GiftResult{}, ErrSelfGift
	}

	sender, err := s.store.GetAccount(ctx, senderID)
	if err != nil {
		return GiftResult{}, err
	}
	receiver, err := s.store.GetAccount(ctx, receiverID)
	if err != nil {
		return GiftResult{}, err
	}

	senderRef, err := s.refs.NewReference()
	if err != nil {
		return GiftResult{}, err
	}
	receiverRef, err := s.refs.NewReference()
	if err != nil {
		return GiftResult{}, err
	}

	receiverAmount := amount.Mul(s.receiverShare).Round(2)

	sent, received, err := s.store.SettleGift(ctx, ledger.GiftSettlement{
		SenderID:          sender.ID,
		ReceiverID:        receiver.ID,
		Amount:            amount,
		ReceiverAmount:    receiverAmount,
		SenderReference:   senderRef,
		ReceiverReference: receiverRef,
		Description:       description,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return GiftResult{}, ErrInsufficientFunds
		}
		return GiftResult{}, err
	}

	s.invalidateBalances(ctx, sender.ID, receiver.ID)
	if s.notifier != nil {
		s.notifier.SendTransactionReceipt(sender, sent)
		s.notifier.SendTransactionReceipt(receiver, received)
	}

	return GiftResult{Sent: sent, Received: received}, nil
}

// ListTransactions pages through an account's history, newest first.
func (s *WalletService) ListTransactions(ctx context.Context, accountID int64, filter ledger.Filter, page ledger.Page) ([]ledger.Transaction, error) {
	if page.Limit <= 0 {
		page.Limit = defaultPageLimit
	}
	if page.Limit > maxPageLimit {
		page.Limit = maxPageLimit
	}
	if page.Offset < 0 {
		page.Offset = 0
	}

	return s.store.ListTransactions(ctx, accountID, filter, page)
}

// resolveReplay turns a lost status race into an idempotent success
// when the transaction already sits in the state the caller wanted.
func (s *WalletService) resolveReplay(ctx context.Context, reference string, wanted ledger.TransactionStatus, cause error) (ledger.Transaction, error) {
	if !errors.Is(cause, ledger.ErrStateConflict) {
		return ledger.Transaction{}, cause
	}

	tx, err := s.store.FindByReference(ctx, reference)
	if err != nil {
		return ledger.Transaction{}, cause
	}
	if tx.Status == wanted {
		return tx, nil
	}
	return ledger.Transaction{}, ErrStateConflict
}

func (s *WalletService) afterSettlement(ctx context.Context, tx ledger.Transaction) {
	s.invalidateBalances(ctx, tx.AccountID)

	if s.notifier == nil {
		return
	}
	account, err := s.store.GetAccount(ctx, tx.AccountID)
	if err != nil {
		s.logger.Warnf("unable to load account %d for receipt: %v", tx.AccountID, err)
		return
	}
	s.notifier.SendTransactionReceipt(account, tx)
}

func (s *WalletService) invalidateBalances(ctx context.Context, accountIDs ...int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, accountIDs...); err != nil {
		s.logger.Warnf("unable to invalidate balance cache: %v", err)
	}
}
