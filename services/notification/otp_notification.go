package notification

import (
	"errors"
	"fmt"
	"time"

	"github.com/CastPay/CastPay-Backend/services/ledger"
	"github.com/CastPay/CastPay-Backend/utils"
	"github.com/shopspring/decimal"
)

var errNoChannel = errors.New("no delivery channel available for account")

const withdrawalOTPTemplate = `
<html>
<body style="font-family: Arial, sans-serif;">
	<p>Hello {{.Name}},</p>
	<p>Your withdrawal confirmation code is:</p>
	<h2 style="letter-spacing: 4px;">{{.Code}}</h2>
	<p>Amount: <strong>{{.Amount}}</strong></p>
	<p>The code expires at {{.ExpiresAt}}. If you did not request this withdrawal, please contact support immediately.</p>
</body>
</html>
`

const receiptTemplate = `
<html>
<body style="font-family: Arial, sans-serif;">
	<p>Hello {{.Name}},</p>
	<p>Your {{.Type}} transaction has been processed.</p>
	<table>
		<tr><td>Reference</td><td>{{.Reference}}</td></tr>
		<tr><td>Amount</td><td>{{.Amount}}</td></tr>
		<tr><td>Status</td><td>{{.Status}}</td></tr>
		<tr><td>Date</td><td>{{.Date}}</td></tr>
	</table>
	<p>Thank you for using CastPay.</p>
</body>
</html>
`

func withdrawalOTPEmail(name, code string, amount decimal.Decimal, expiresAt time.Time) (subject, body string, err error) {
	body, err = utils.RenderTemplate("withdrawal_otp", withdrawalOTPTemplate, map[string]string{
		"Name":      name,
		"Code":      code,
		"Amount":    amount.StringFixed(2),
		"ExpiresAt": expiresAt.Format(time.RFC1123),
	})
	if err != nil {
		return "", "", err
	}
	return "Your withdrawal confirmation code", body, nil
}

func withdrawalOTPSMS(code string, amount decimal.Decimal) string {
	return fmt.Sprintf("CastPay: %s is your code to confirm a withdrawal of %s. It expires in a few minutes. Never share this code.", code, amount.StringFixed(2))
}

func receiptEmail(name string, tx ledger.Transaction) (subject, body string, err error) {
	body, err = utils.RenderTemplate("transaction_receipt", receiptTemplate, map[string]string{
		"Name":      name,
		"Type":      string(tx.Type),
		"Reference": tx.Reference,
		"Amount":    tx.Amount.StringFixed(2),
		"Status":    string(tx.Status),
		"Date":      tx.CreatedAt.Format(time.RFC1123),
	})
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("Transaction %s processed", tx.Reference), body, nil
}
