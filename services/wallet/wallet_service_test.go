package wallet

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CastPay/CastPay-Backend/services/gateway"
	"github.com/CastPay/CastPay-Backend/services/ledger"
	"github.com/CastPay/CastPay-Backend/services/monitoring/logging"
	"github.com/CastPay/CastPay-Backend/services/security"
	"github.com/CastPay/CastPay-Backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGatewaySecret = "test-gateway-secret"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type stubNotifier struct {
	mu       sync.Mutex
	otpCodes []string
	receipts []ledger.Transaction
}

func (s *stubNotifier) SendWithdrawalOTP(account ledger.Account, code string, amount decimal.Decimal, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.otpCodes = append(s.otpCodes, code)
}

func (s *stubNotifier) SendTransactionReceipt(account ledger.Account, tx ledger.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, tx)
}

func (s *stubNotifier) lastOTP() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.otpCodes) == 0 {
		return ""
	}
	return s.otpCodes[len(s.otpCodes)-1]
}

type testWallet struct {
	svc      *WalletService
	store    *ledger.MemoryStore
	clock    *testClock
	notifier *stubNotifier
}

func newTestWallet(t *testing.T) *testWallet {
	t.Helper()

	clock := &testClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}

	store := ledger.NewMemoryStore().WithClock(clock.Now)
	store.SeedAccount(ledger.Account{ID: 1, Email: "alice@example.com", FullName: "Alice", Balance: decimal.NewFromInt(500)})
	store.SeedAccount(ledger.Account{ID: 2, Email: "bob@example.com", FullName: "Bob", Balance: decimal.Zero})

	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:      "https://pay.example.com/paymentv2/vpcpay.html",
		MerchantCode: "TESTMERCH",
		SecretKey:    testGatewaySecret,
		ReturnURL:    "https://app.example.com/payments/return",
	})

	refs, err := utils.NewReferenceGenerator("test-salt")
	require.NoError(t, err)

	notifier := &stubNotifier{}
	config := &utils.Config{
		OTPLength:         6,
		OTPExpiryMins:     5,
		GatewayExpiryMins: 30,
		GiftReceiverShare: "0.8",
	}

	svc, err := NewWalletService(
		store,
		gatewayClient,
		refs,
		notifier,
		nil,
		security.NewAttemptLimiter(),
		logging.NewLogger(nil),
		config,
	)
	require.NoError(t, err)
	svc.WithClock(clock.Now)

	return &testWallet{svc: svc, store: store, clock: clock, notifier: notifier}
}

func (w *testWallet) balance(t *testing.T, accountID int64) decimal.Decimal {
	t.Helper()
	account, err := w.store.GetAccount(context.Background(), accountID)
	require.NoError(t, err)
	return account.Balance
}

// signedCallback builds a gateway callback signed the same way the
// gateway itself would sign it.
func signedCallback(reference, responseCode string, extra map[string]string) map[string]string {
	params := map[string]string{
		gateway.ParamTxnRef:        reference,
		gateway.ParamResponseCode:  responseCode,
		gateway.ParamTransactionNo: "14422574",
		gateway.ParamAmount:        "10000",
	}
	for k, v := range extra {
		params[k] = v
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if params[k] == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var hashData strings.Builder
	for i, k := range keys {
		if i > 0 {
			hashData.WriteByte('&')
		}
		hashData.WriteString(k)
		hashData.WriteByte('=')
		hashData.WriteString(url.QueryEscape(params[k]))
	}

	mac := hmac.New(sha512.New, []byte(testGatewaySecret))
	mac.Write([]byte(hashData.String()))
	params[gateway.ParamSecureHash] = hex.EncodeToString(mac.Sum(nil))

	return params
}

func TestInitiateTopup(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	initiation, err := w.svc.InitiateTopup(ctx, 1, decimal.NewFromInt(100), "203.0.113.7")
	require.NoError(t, err)
	assert.NotEmpty(t, initiation.Reference)
	assert.Contains(t, initiation.PaymentURL, "https://pay.example.com/")
	assert.Contains(t, initiation.PaymentURL, initiation.Reference)

	tx, err := w.store.FindByReference(ctx, initiation.Reference)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, tx.Status)
	assert.Equal(t, ledger.TypeTopup, tx.Type)

	// Nothing is credited before the gateway confirms
	assert.True(t, w.balance(t, 1).Equal(decimal.NewFromInt(500)))
}

func TestInitiateTopupRejectsNonPositiveAmount(t *testing.T) {
	w := newTestWallet(t)

	_, err := w.svc.InitiateTopup(context.Background(), 1, decimal.Zero, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = w.svc.InitiateTopup(context.Background(), 1, decimal.NewFromInt(-5), "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestGatewayCallbackCreditsExactlyOnce(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	initiation, err := w.svc.InitiateTopup(ctx, 1, decimal.NewFromInt(100), "")
	require.NoError(t, err)

	params := signedCallback(initiation.Reference, gateway.ResponseCodeSuccess, nil)

	tx, err := w.svc.HandleGatewayCallback(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, tx.Status)
	assert.True(t, w.balance(t, 1).Equal(decimal.NewFromInt(600)))

	// A replayed callback succeeds but must not credit again
	replayed, err := w.svc.HandleGatewayCallback(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, replayed.Status)
	assert.True(t, w.balance(t, 1).Equal(decimal.NewFromInt(600)))
}

func TestGatewayCallbackRejectsBadSignature(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	initiation, err := w.svc.InitiateTopup(ctx, 1, decimal.NewFromInt(100), "")
	require.NoError(t, err)

	params := signedCallback(initiation.Reference, gateway.ResponseCodeSuccess, nil)
	params[gateway.ParamAmount] = "99999900"

	_, err = w.svc.HandleGatewayCallback(ctx, params)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	tx, err := w.store.FindByReference(ctx, initiation.Reference)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, tx.Status)
	assert.True(t, w.balance(t, 1).Equal(decimal.NewFromInt(500)))
}

func TestGatewayCallbackDecline(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	initiation, err := w.svc.InitiateTopup(ctx, 1, decimal.NewFromInt(100), "")
	require.NoError(t, err)

	params := signedCallback(initiation.Reference, "24", nil)

	tx, err := w.svc.HandleGatewayCallback(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, tx.Status)
	assert.True(t, w.balance(t, 1).Equal(decimal.NewFromInt(500)))

	// Replaying the decline is also idempotent
	replayed, err := w.svc.HandleGatewayCallback(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, replayed.Status)
}

func TestGatewayCallbackUnknownReference(t *testing.T) {
	w := newTestWallet(t)

	params := signedCallback("no-such-ref", gateway.ResponseCodeSuccess, nil)
	_, err := w.svc.HandleGatewayCallback(context.Background(), params)
	assert.ErrorIs(t, err, ErrUnknownTransaction)
}

func TestWithdrawalFlow(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	initiation, err := w.svc.InitiateWithdrawal(ctx, 1, decimal.NewFromInt(200), BankDetails{
		BankCode:      "VCB",
		AccountNumber: "0123456789",
		AccountName:   "ALICE",
	})
	require.NoError(t, err)

	// Initiation only records intent
	assert.True(t, w.balance(t, 1).Equal(decimal.NewFromInt(500)))

	tx, err := w.store.FindByReference(ctx, initiation.Reference)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, tx.Status)
	assert.Equal(t, "VCB", tx.Metadata["bank_code"])
	require.Len(t, tx.OTPCode, 6)
	assert.Equal(t, tx.OTPCode, w.notifier.lastOTP())

	// A wrong code is rejected
	wrongCode := "000000"
	if wrongCode == tx.OTPCode {
		wrongCode = "000001"
	}
	_, err = w.svc.VerifyWithdrawalOTP(ctx, 1, initiation.Reference, wrongCode)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredOTP)
	assert.True(t, w.balance(t, 1).Equal(decimal.NewFromInt(500)))

	// The correct code settles the withdrawal and debits once
	completed, err := w.svc.VerifyWithdrawalOTP(ctx, 1, initiation.Reference, tx.OTPCode)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, completed.Status)
	assert.True(t, w.balance(t, 1).Equal(decimal.NewFromInt(300)))
}

func TestAbandonedWithdrawalNeverMovesBalance(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	initiation, err := w.svc.InitiateWithdrawal(ctx, 1, decimal.NewFromInt(100), BankDetails{BankCode: "VCB", AccountNumber: "0123456789", AccountName: "ALICE"})
	require.NoError(t, err)

	w.clock.Advance(24 * time.Hour)

	tx, err := w.store.FindByReference(ctx, initiation.Reference)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, tx.Status)
	assert.True(t, w.balance(t, 1).Equal(decimal.NewFromInt(500)))
}

func TestExpiredOTPFailsEvenWhenCorrect(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	initiation, err := w.svc.InitiateWithdrawal(ctx, 1, decimal.NewFromInt(100), BankDetails{BankCode: "VCB", AccountNumber: "0123456789", AccountName: "ALICE"})
	require.NoError(t, err)

	tx, err := w.store.FindByReference(ctx, initiation.Reference)
	require.NoError(t, err)

	w.clock.Advance(6 * time.Minute)

	_, err = w.svc.VerifyWithdrawalOTP(ctx, 1, initiation.Reference, tx.OTPCode)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredOTP)
	assert.True(t, w.balance(t, 1).Equal(decimal.NewFromInt(500)))
}

func TestVerifyWithdrawalForbiddenForOtherAccount(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	initiation, err := w.svc.InitiateWithdrawal(ctx, 1, decimal.NewFromInt(100), BankDetails{BankCode: "VCB", AccountNumber: "0123456789", AccountName: "ALICE"})
	require.NoError(t, err)

	tx, err := w.store.FindByReference(ctx, initiation.Reference)
	require.NoError(t, err)

	_, err = w.svc.VerifyWithdrawalOTP(ctx, 2, initiation.Reference, tx.OTPCode)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestVerifyWithdrawalAttemptLimit(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	initiation, err := w.svc.InitiateWithdrawal(ctx, 1, decimal.NewFromInt(100), BankDetails{BankCode: "VCB", AccountNumber: "0123456789", AccountName: "ALICE"})
	require.NoError(t, err)

	tx, err := w.store.FindByReference(ctx, initiation.Reference)
	require.NoError(t, err)

	wrongCode := "000000"
	if wrongCode == tx.OTPCode {
		wrongCode = "000001"
	}

	for i := 0; i < 5; i++ {
		_, err = w.svc.VerifyWithdrawalOTP(ctx, 1, initiation.Reference, wrongCode)
		assert.ErrorIs(t, err, ErrInvalidOrExpiredOTP)
	}

	// Even the correct code is refused once the limit is hit
	_, err = w.svc.VerifyWithdrawalOTP(ctx, 1, initiation.Reference, tx.OTPCode)
	assert.ErrorIs(t, err, ErrTooManyAttempts)
	assert.True(t, w.balance(t, 1).Equal(decimal.NewFromInt(500)))
}

func TestConcurrentVerifySettlesOnce(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	initiation, err := w.svc.InitiateWithdrawal(ctx, 1, decimal.NewFromInt(200), BankDetails{BankCode: "VCB", AccountNumber: "0123456789", AccountName: "ALICE"})
	require.NoError(t, err)

	tx, err := w.store.FindByReference(ctx, initiation.Reference)
	require.NoError(t, err)

	const workers = 8
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.svc.VerifyWithdrawalOTP(ctx, 1, initiation.Reference, tx.OTPCode)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrAlreadyProcessed):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
	assert.True(t, w.balance(t, 1).Equal(decimal.NewFromInt(300)))
}

func TestVerifyWithdrawalInsufficientAtSettlement(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	initiation, err := w.svc.InitiateWithdrawal(ctx, 1, decimal.NewFromInt(100), BankDetails{BankCode: "VCB", AccountNumber: "0123456789", AccountName: "ALICE"})
	require.NoError(t, err)

	// Drain the balance between initiation and verification
	_, err = w.svc.SendGift(ctx, 1, 2, decimal.NewFromInt(450), "big gift")
	require.NoError(t, err)

	tx, err := w.store.FindByReference(ctx, initiation.Reference)
	require.NoError(t, err)

	_, err = w.svc.VerifyWithdrawalOTP(ctx, 1, initiation.Reference, tx.OTPCode)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	failed, err := w.store.FindByReference(ctx, initiation.Reference)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, failed.Status)
	assert.True(t, w.balance(t, 1).Equal(decimal.NewFromInt(50)))
}

func completedWithdrawal(t *testing.T, w *testWallet, amount int64) string {
	t.Helper()
	ctx := context.Background()

	initiation, err := w.svc.InitiateWithdrawal(ctx, 1, decimal.NewFromInt(amount), BankDetails{BankCode: "VCB", AccountNumber: "0123456789", AccountName: "ALICE"})
	require.NoError(t, err)

	tx, err := w.store.FindByReference(ctx, initiation.Reference)
	require.NoError(t, err)

	_, err = w.svc.VerifyWithdrawalOTP(ctx, 1, initiation.Reference, tx.OTPCode)
	require.NoError(t, err)

	return initiation.Reference
}

func TestBankSettlementSuccess(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	reference := completedWithdrawal(t, w, 200)

	tx, err := w.svc.HandleBankSettlement(ctx, reference, "BANK-77", true, "payout confirmed")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, tx.Status)
	assert.Equal(t, "BANK-77", tx.GatewayReference)
	assert.True(t, w.balance(t, 1).Equal(decimal.NewFromInt(300)))
}

func TestBankSettlementFailureRefundsExactly(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	reference := completedWithdrawal(t, w, 200)
	assert.True(t, w.balance(t, 1).Equal(decimal.NewFromInt(300)))

	tx, err := w.svc.HandleBankSettlement(ctx, reference, "", false, "account closed")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusRefunded, tx.Status)
	assert.True(t, w.balance(t, 1).Equal(decimal.NewFromInt(500)))

	// A replayed failure must not refund twice
	_, err = w.svc.HandleBankSettlement(ctx, reference, "", false, "account closed")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.True(t, w.balance(t, 1).Equal(decimal.NewFromInt(500)))
}

func TestBankSettlementRejectsUnconfirmedWithdrawal(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	initiation, err := w.svc.InitiateWithdrawal(ctx, 1, decimal.NewFromInt(100), BankDetails{BankCode: "VCB", AccountNumber: "0123456789", AccountName: "ALICE"})
	require.NoError(t, err)

	_, err = w.svc.HandleBankSettlement(ctx, initiation.Reference, "", false, "noise")
	assert.ErrorIs(t, err, ErrInvalidCallbackOutcome)
}

// refundingStore sneaks a refund in just before the audit stamp,
// reproducing a bank callback losing the race against a refund.
type refundingStore struct {
	ledger.Store
}

func (s *refundingStore) RecordBankReference(ctx context.Context, reference, bankReference, note string) (ledger.Transaction, error) {
	if _, err := s.Store.RefundWithdrawal(ctx, reference, "refund raced in"); err != nil {
		return ledger.Transaction{}, err
	}
	return s.Store.RecordBankReference(ctx, reference, bankReference, note)
}

func TestBankSettlementLosesRaceToRefund(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	reference := completedWithdrawal(t, w, 200)
	assert.True(t, w.balance(t, 1).Equal(decimal.NewFromInt(300)))

	w.svc.store = &refundingStore{Store: w.store}

	_, err := w.svc.HandleBankSettlement(ctx, reference, "BANK-77", true, "payout confirmed")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	// The refund stands and the bank reference never lands on it
	tx, err := w.store.FindByReference(ctx, reference)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusRefunded, tx.Status)
	assert.Empty(t, tx.GatewayReference)
	assert.True(t, w.balance(t, 1).Equal(decimal.NewFromInt(500)))
}

func TestSubCentAmountsRejected(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	subCent := decimal.RequireFromString("10.005")

	_, err := w.svc.InitiateTopup(ctx, 1, subCent, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = w.svc.InitiateWithdrawal(ctx, 1, subCent, BankDetails{BankCode: "VCB", AccountNumber: "0123456789", AccountName: "ALICE"})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = w.svc.SendGift(ctx, 1, 2, subCent, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// Two decimal places is the finest granularity accepted
	_, err = w.svc.InitiateTopup(ctx, 1, decimal.RequireFromString("10.05"), "")
	assert.NoError(t, err)
}

func TestSendGiftSplitsAmount(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	result, err := w.svc.SendGift(ctx, 1, 2, decimal.NewFromInt(100), "rose x10")
	require.NoError(t, err)

	assert.Equal(t, ledger.TypeGiftSent, result.Sent.Type)
	assert.Equal(t, ledger.TypeGiftReceived, result.Received.Type)
	assert.True(t, result.Sent.Amount.Equal(decimal.NewFromInt(100)))
	assert.True(t, result.Received.Amount.Equal(decimal.NewFromInt(80)))

	assert.True(t, w.balance(t, 1).Equal(decimal.NewFromInt(400)))
	assert.True(t, w.balance(t, 2).Equal(decimal.NewFromInt(80)))
}

func TestSendGiftValidation(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	_, err := w.svc.SendGift(ctx, 1, 1, decimal.NewFromInt(10), "")
	assert.ErrorIs(t, err, ErrSelfGift)

	_, err = w.svc.SendGift(ctx, 1, 2, decimal.Zero, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = w.svc.SendGift(ctx, 2, 1, decimal.NewFromInt(10), "")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = w.svc.SendGift(ctx, 1, 99, decimal.NewFromInt(10), "")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestGetBalance(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	summary, err := w.svc.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, summary.Balance.Equal(decimal.NewFromInt(500)))
}

func TestListTransactionsCapsPageSize(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	_, err := w.svc.InitiateTopup(ctx, 1, decimal.NewFromInt(10), "")
	require.NoError(t, err)

	transactions, err := w.svc.ListTransactions(ctx, 1, ledger.Filter{}, ledger.Page{Limit: 100000})
	require.NoError(t, err)
	assert.Len(t, transactions, 1)

	transactions, err = w.svc.ListTransactions(ctx, 1, ledger.Filter{}, ledger.Page{})
	require.NoError(t, err)
	assert.Len(t, transactions, 1)
}
