package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	protocolVersion = "2.1.0"
	commandPay      = "pay"
	orderTypeOther  = "other"
	currencyCode    = "VND"
	locale          = "vn"

	// Gateway timestamps use the merchant's local zone
	timeZone        = "Asia/Ho_Chi_Minh"
	timestampLayout = "20060102150405"

	ParamVersion       = "vnp_Version"
	ParamCommand       = "vnp_Command"
	ParamMerchantCode  = "vnp_TmnCode"
	ParamAmount        = "vnp_Amount"
	ParamCurrencyCode  = "vnp_CurrCode"
	ParamTxnRef        = "vnp_TxnRef"
	ParamOrderInfo     = "vnp_OrderInfo"
	ParamOrderType     = "vnp_OrderType"
	ParamLocale        = "vnp_Locale"
	ParamReturnURL     = "vnp_ReturnUrl"
	ParamClientIP      = "vnp_IpAddr"
	ParamCreateDate    = "vnp_CreateDate"
	ParamExpireDate    = "vnp_ExpireDate"
	ParamSecureHash    = "vnp_SecureHash"
	ParamSecureHashTyp = "vnp_SecureHashType"
	ParamResponseCode  = "vnp_ResponseCode"
	ParamTransactionNo = "vnp_TransactionNo"

	// ResponseCodeSuccess is the gateway's "payment approved" code.
	ResponseCodeSuccess = "00"
)

type Config struct {
	BaseURL      string
	MerchantCode string
	SecretKey    string
	ReturnURL    string
	ExpiryWindow time.Duration
}

// Client builds signed payment-initiation URLs and validates inbound
// callback signatures. Everything here is local computation; callers
// redirect the end user to the built URL, no request leaves this code.
type Client struct {
	config   Config
	location *time.Location
	now      func() time.Time
}

func NewClient(config Config) *Client {
	if config.ExpiryWindow == 0 {
		config.ExpiryWindow = 30 * time.Minute
	}

	location, err := time.LoadLocation(timeZone)
	if err != nil {
		location = time.UTC
	}

	return &Client{
		config:   config,
		location: location,
		now:      time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// BuildPaymentURL assembles the gateway redirect URL for a pending
// top-up. Amounts are scaled to the gateway's minor unit (VND x 100).
func (c *Client) BuildPaymentURL(reference string, amount decimal.Decimal, orderInfo, clientIP, returnURL string) (string, error) {
	if c.config.SecretKey == "" {
		return "", fmt.Errorf("gateway secret key not configured")
	}
	if returnURL == "" {
		returnURL = c.config.ReturnURL
	}

	createdAt := c.now().In(c.location)
	expiresAt := createdAt.Add(c.config.ExpiryWindow)

	params := map[string]string{
		ParamVersion:      protocolVersion,
		ParamCommand:      commandPay,
		ParamMerchantCode: c.config.MerchantCode,
		ParamAmount:       strconv.FormatInt(amount.Shift(2).IntPart(), 10),
		ParamCurrencyCode: currencyCode,
		ParamTxnRef:       reference,
		ParamOrderInfo:    orderInfo,
		ParamOrderType:    orderTypeOther,
		ParamLocale:       locale,
		ParamReturnURL:    returnURL,
		ParamClientIP:     clientIP,
		ParamCreateDate:   createdAt.Format(timestampLayout),
		ParamExpireDate:   expiresAt.Format(timestampLayout),
	}

	signingData, query := encodeParams(params)
	secureHash := c.sign(signingData)

	return c.config.BaseURL + "?" + query + "&" + ParamSecureHash + "=" + secureHash, nil
}

// ValidateCallback checks the HMAC on an inbound gateway callback. It
// returns false for any mismatch, missing hash, or missing secret and
// never panics: this path is attacker-reachable.
func (c *Client) ValidateCallback(params map[string]string) bool {
	if c.config.SecretKey == "" {
		return false
	}

	provided := params[ParamSecureHash]
	if provided == "" {
		return false
	}

	filtered := make(map[string]string, len(params))
	for k, v := range params {
		if k == ParamSecureHash || k == ParamSecureHashTyp {
			continue
		}
		filtered[k] = v
	}

	signingData, _ := encodeParams(filtered)
	expected := c.sign(signingData)

	return hmac.Equal([]byte(expected), []byte(provided))
}

// encodeParams returns the signing string and the URL query string.
// Keys are sorted lexicographically and empty values are skipped; both
// sides of the exchange must produce byte-identical signing strings.
func encodeParams(params map[string]string) (signingData, query string) {
	keys := make([]string, 0, len(params))
	for k := range params {
		if params[k] == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var hashData, queryData strings.Builder
	for i, k := range keys {
		if i > 0 {
			hashData.WriteByte('&')
			queryData.WriteByte('&')
		}
		hashData.WriteString(k)
		hashData.WriteByte('=')
		hashData.WriteString(url.QueryEscape(params[k]))

		queryData.WriteString(url.QueryEscape(k))
		queryData.WriteByte('=')
		queryData.WriteString(url.QueryEscape(params[k]))
	}

	return hashData.String(), queryData.String()
}

func (c *Client) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(c.config.SecretKey))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
