package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fitpay/internal/config"
	"fitpay/internal/domain"
)

// ZaloPay return codes, per the v2 API docs: 1 is paid, 2 and 3 are
// processing/awaiting payment, negative codes are user cancellation or
// expiry. Anything undocumented is treated as failed.
const (
	zpCodeSuccess    = 1
	zpCodeProcessing = 2
	zpCodeAwaiting   = 3
)

type ZaloPay struct {
	cfg  config.ZaloPayConfig
	call *caller
	log  *logrus.Entry
}

func NewZaloPay(cfg config.ZaloPayConfig, log *logrus.Logger) *ZaloPay {
	return &ZaloPay{
		cfg:  cfg,
		call: newCaller("zalopay"),
		log:  log.WithField("gateway", "zalopay"),
	}
}

func (z *ZaloPay) Name() string { return "zalopay" }

// appTransID derives the gateway-local transaction id. ZaloPay requires a
// YYMMDD prefix; using the order's creation date, not the wall clock, keeps
// the id stable when a status query runs after midnight.
func (z *ZaloPay) appTransID(orderID string, createdAt time.Time) string {
	return fmt.Sprintf("%s_%s", createdAt.Format("060102"), orderID)
}

func (z *ZaloPay) sign(key string, fields ...string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

type zpCreateResponse struct {
	ReturnCode    int    `json:"return_code"`
	ReturnMessage string `json:"return_message"`
	OrderURL      string `json:"order_url"`
	ZpTransToken  string `json:"zp_trans_token"`
}

func (z *ZaloPay) CreateOrder(ctx context.Context, order *domain.Order, description string) (*OrderHandle, error) {
	embed, _ := json.Marshal(map[string]string{
		"redirecturl": fmt.Sprintf("%s/payment-status?orderId=%s", z.cfg.RedirectBase, order.OrderID),
		"order_id":    order.OrderID,
		"product_ref": order.ProductRef,
	})
	item := "[]"

	appTransID := z.appTransID(order.OrderID, order.CreatedAt)
	appUser := strconv.FormatInt(order.OwnerID, 10)
	appTime := strconv.FormatInt(time.Now().UnixMilli(), 10)
	amount := strconv.FormatInt(order.Amount, 10)

	form := url.Values{}
	form.Set("app_id", strconv.Itoa(z.cfg.AppID))
	form.Set("app_trans_id", appTransID)
	form.Set("app_user", appUser)
	form.Set("app_time", appTime)
	form.Set("item", item)
	form.Set("embed_data", string(embed))
	form.Set("amount", amount)
	form.Set("callback_url", z.cfg.CallbackURL)
	form.Set("description", description)
	form.Set("bank_code", "")

	// Field order is part of the ZaloPay contract; reordering breaks the MAC.
	form.Set("mac", z.sign(z.cfg.Key1,
		strconv.Itoa(z.cfg.AppID), appTransID, appUser, amount, appTime, string(embed), item))

	raw, err := z.call.postForm(ctx, z.cfg.Endpoint, form)
	if err != nil {
		return nil, &domain.GatewayError{Gateway: z.Name(), Op: "create", Err: err}
	}

	var resp zpCreateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &domain.GatewayError{Gateway: z.Name(), Op: "create", Err: err}
	}
	if resp.ReturnCode != zpCodeSuccess {
		return nil, &domain.GatewayError{
			Gateway: z.Name(), Op: "create",
			Err: fmt.Errorf("return_code %d: %s", resp.ReturnCode, resp.ReturnMessage),
		}
	}

	return &OrderHandle{PayURL: resp.OrderURL, GatewayTxnRef: resp.ZpTransToken}, nil
}

type zpCallback struct {
	Data string `json:"data"`
	Mac  string `json:"mac"`
	Type int    `json:"type"`
}

type zpCallbackData struct {
	AppID      int    `json:"app_id"`
	AppTransID string `json:"app_trans_id"`
	AppUser    string `json:"app_user"`
	Amount     int64  `json:"amount"`
	ZpTransID  int64  `json:"zp_trans_id"`
	EmbedData  string `json:"embed_data"`
}

// VerifyCallback recomputes the MAC over the opaque data payload with key2.
// hmac.Equal keeps the comparison constant time.
func (z *ZaloPay) VerifyCallback(raw []byte) error {
	var cb zpCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return fmt.Errorf("malformed callback: %w", err)
	}
	expected := z.sign(z.cfg.Key2, cb.Data)
	if !hmac.Equal([]byte(expected), []byte(cb.Mac)) {
		return domain.ErrSignatureMismatch
	}
	return nil
}

func (z *ZaloPay) ParseCallback(raw []byte) (*domain.CallbackResult, error) {
	var cb zpCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, fmt.Errorf("malformed callback: %w", err)
	}
	var data zpCallbackData
	if err := json.Unmarshal([]byte(cb.Data), &data); err != nil {
		return nil, fmt.Errorf("malformed callback data: %w", err)
	}

	// app_trans_id is <YYMMDD>_<order_id>.
	_, orderID, found := strings.Cut(data.AppTransID, "_")
	if !found || orderID == "" {
		return nil, fmt.Errorf("callback app_trans_id %q has no order id", data.AppTransID)
	}

	outcome := domain.CallbackFailure
	if cb.Type == 1 {
		outcome = domain.CallbackSuccess
	}

	var txnRef string
	if data.ZpTransID != 0 {
		txnRef = strconv.FormatInt(data.ZpTransID, 10)
	}

	return &domain.CallbackResult{
		OrderID:       orderID,
		Outcome:       outcome,
		Amount:        data.Amount,
		GatewayTxnRef: txnRef,
	}, nil
}

type zpQueryResponse struct {
	ReturnCode    int    `json:"return_code"`
	ReturnMessage string `json:"return_message"`
	Amount        int64  `json:"amount"`
	ZpTransID     int64  `json:"zp_trans_id"`
}

func (z *ZaloPay) QueryStatus(ctx context.Context, orderID string, createdAt time.Time) (*domain.GatewayStatus, error) {
	appTransID := z.appTransID(orderID, createdAt)
	appID := strconv.Itoa(z.cfg.AppID)

	form := url.Values{}
	form.Set("app_id", appID)
	form.Set("app_trans_id", appTransID)
	form.Set("mac", z.sign(z.cfg.Key1, appID, appTransID, z.cfg.Key1))

	raw, err := z.call.postForm(ctx, z.cfg.QueryURL, form)
	if err != nil {
		return nil, &domain.GatewayError{Gateway: z.Name(), Op: "query", Err: err}
	}

	var resp zpQueryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &domain.GatewayError{Gateway: z.Name(), Op: "query", Err: err}
	}

	z.log.WithFields(logrus.Fields{
		"order_id":    orderID,
		"return_code": resp.ReturnCode,
	}).Debug("status query")

	return &domain.GatewayStatus{
		Code:        resp.ReturnCode,
		Message:     resp.ReturnMessage,
		IsSuccess:   resp.ReturnCode == zpCodeSuccess,
		IsPending:   resp.ReturnCode == zpCodeProcessing || resp.ReturnCode == zpCodeAwaiting,
		IsCancelled: resp.ReturnCode < 0,
	}, nil
}
