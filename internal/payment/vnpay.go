package payment

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

	"gymcore/internal/apperr"

	"github.com/shopspring/decimal"
)

const (
	vnpVersion   = "2.1.0"
	vnpCommand   = "pay"
	vnpCurrency  = "VND"
	vnpOrderType = "other"
	vnpLocale    = "vn"
	vnpDateFmt   = "20060102150405"

	CodeSuccess       = "00"
	CodeUserCancelled = "24"
)

var amountScale = decimal.NewFromInt(100)

type GatewayConfig struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
	// ExpireAfter bounds how long the gateway keeps the payment page open.
	ExpireAfter time.Duration
	Location    *time.Location
}

// Gateway signs outbound payment requests and verifies inbound callbacks for VNPay.
type Gateway struct {
	cfg GatewayConfig
}

func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Gateway{cfg: cfg}
}

// Notification is the verified content of an IPN or browser-return callback.
type Notification struct {
	AttemptID     int
	ResponseCode  string
	TransactionNo string
	Amount        decimal.Decimal
}

func (n Notification) Succeeded() bool {
	return n.ResponseCode == CodeSuccess
}

func (n Notification) Cancelled() bool {
	return n.ResponseCode == CodeUserCancelled
}

// PaymentURL builds the signed redirect carrying the attempt id as vnp_TxnRef.
func (g *Gateway) PaymentURL(a *Attempt, orderInfo, clientIP string, now time.Time) (string, error) {
	if a.ID == 0 {
		return "", fmt.Errorf("payment attempt has no id")
	}
	if clientIP == "" {
		clientIP = "127.0.0.1"
	}
	local := now.In(g.cfg.Location)

	params := url.Values{}
	params.Set("vnp_Version", vnpVersion)
	params.Set("vnp_Command", vnpCommand)
	params.Set("vnp_TmnCode", g.cfg.TmnCode)
	params.Set("vnp_Amount", a.Amount.Mul(amountScale).Round(0).String())
	params.Set("vnp_CurrCode", vnpCurrency)
	params.Set("vnp_TxnRef", strconv.Itoa(a.ID))
	params.Set("vnp_OrderInfo", orderInfo)
	params.Set("vnp_OrderType", vnpOrderType)
	params.Set("vnp_Locale", vnpLocale)
	params.Set("vnp_ReturnUrl", g.cfg.ReturnURL)
	params.Set("vnp_IpAddr", clientIP)
	params.Set("vnp_CreateDate", local.Format(vnpDateFmt))
	if g.cfg.ExpireAfter > 0 {
		params.Set("vnp_ExpireDate", local.Add(g.cfg.ExpireAfter).Format(vnpDateFmt))
	}

	query := canonicalQuery(params)
	return g.cfg.PayURL + "?" + query + "&vnp_SecureHash=" + g.sign(query), nil
}

// Verify checks vnp_SecureHash against the remaining vnp_ parameters and decodes them.
func (g *Gateway) Verify(params url.Values) (*Notification, error) {
	given := params.Get("vnp_SecureHash")
	if given == "" {
		return nil, apperr.Verificationf("missing vnp_SecureHash")
	}

	signed := url.Values{}
	for k, v := range params {
		if !strings.HasPrefix(k, "vnp_") || k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		if len(v) > 0 && v[0] != "" {
			signed.Set(k, v[0])
		}
	}

	expected := g.sign(canonicalQuery(signed))
	if !hmac.Equal([]byte(strings.ToLower(given)), []byte(expected)) {
		return nil, apperr.Verificationf("invalid payment signature")
	}

	id, err := strconv.Atoi(params.Get("vnp_TxnRef"))
	if err != nil {
		return nil, apperr.Verificationf("invalid vnp_TxnRef %q", params.Get("vnp_TxnRef"))
	}

	amount := decimal.Zero
	if raw := params.Get("vnp_Amount"); raw != "" {
		scaled, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, apperr.Verificationf("invalid vnp_Amount %q", raw)
		}
		amount = scaled.Div(amountScale)
	}

	return &Notification{
		AttemptID:     id,
		ResponseCode:  params.Get("vnp_ResponseCode"),
		TransactionNo: params.Get("vnp_TransactionNo"),
		Amount:        amount,
	}, nil
}

// SignParams appends vnp_SecureHash to params, as the gateway does on callbacks.
func (g *Gateway) SignParams(params url.Values) url.Values {
	signed := url.Values{}
	for k, v := range params {
		signed[k] = v
	}
	signed.Set("vnp_SecureHash", g.sign(canonicalQuery(params)))
	return signed
}

func (g *Gateway) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(g.cfg.HashSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalQuery joins key=value pairs sorted by key, both query-escaped.
func canonicalQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if params.Get(k) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params.Get(k)))
	}
	return b.String()
}
