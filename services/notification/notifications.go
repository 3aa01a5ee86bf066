package notification

import (
	"time"

	"github.com/CastPay/CastPay-Backend/services/ledger"
	"github.com/CastPay/CastPay-Backend/services/monitoring/logging"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Channel represents the type of notification channel
type Channel string

const (
	EMAIL Channel = "EMAIL"
	SMS   Channel = "SMS"
)

type EmailSender interface {
	SendEmail(to, subject, body string) error
}

type SMSSender interface {
	SendSMS(to, message string) error
}

// NotificationService delivers OTP codes and transaction confirmations.
// Delivery is fire-and-forget: a failed or missing channel is logged
// and swallowed, it must never fail the owning wallet operation.
type NotificationService struct {
	logger *logging.Logger
	email  EmailSender
	sms    SMSSender
}

func NewNotificationService(logger *logging.Logger, email EmailSender, sms SMSSender) *NotificationService {
	return &NotificationService{
		logger: logger,
		email:  email,
		sms:    sms,
	}
}

// SendWithdrawalOTP delivers the withdrawal challenge code. Email is
// preferred; SMS is the fallback when the account has no email address.
// The code itself is never logged.
func (n *NotificationService) SendWithdrawalOTP(account ledger.Account, code string, amount decimal.Decimal, expiresAt time.Time) {
	n.dispatch("withdrawal_otp", account, func() error {
		if account.Email != "" && n.email != nil {
			subject, body, err := withdrawalOTPEmail(account.FullName, code, amount, expiresAt)
			if err != nil {
				return err
			}
			return n.email.SendEmail(account.Email, subject, body)
		}
		if account.Phone != "" && n.sms != nil {
			return n.sms.SendSMS(account.Phone, withdrawalOTPSMS(code, amount))
		}
		return errNoChannel
	})
}

// SendTransactionReceipt confirms a settled transaction to the account holder.
func (n *NotificationService) SendTransactionReceipt(account ledger.Account, tx ledger.Transaction) {
	n.dispatch("transaction_receipt", account, func() error {
		if account.Email == "" || n.email == nil {
			return errNoChannel
		}
		subject, body, err := receiptEmail(account.FullName, tx)
		if err != nil {
			return err
		}
		return n.email.SendEmail(account.Email, subject, body)
	})
}

func (n *NotificationService) dispatch(kind string, account ledger.Account, send func() error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				n.logger.WithFields(logrus.Fields{
					"notification": kind,
					"account_id":   account.ID,
					"panic":        r,
				}).Error("notification delivery panicked")
			}
		}()

		if err := send(); err != nil {
			n.logger.WithFields(logrus.Fields{
				"notification": kind,
				"account_id":   account.ID,
			}).Warnf("notification delivery failed: %v", err)
		}
	}()
}
