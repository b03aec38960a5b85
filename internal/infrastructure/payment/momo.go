package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"fitpay/internal/config"
	"fitpay/internal/domain"
)

// MoMo result codes: 0 is paid, 9000 is authorized (still settling), 1000 is
// initiated, 1003/1006 are cancellation/denial. Undocumented codes fail.
const (
	mmCodeSuccess    = 0
	mmCodeAuthorized = 9000
	mmCodeInitiated  = 1000
	mmCodeCancelled  = 1003
	mmCodeDenied     = 1006
)

// MoMo signs a key=value query string instead of ZaloPay's pipe-joined field
// list, and speaks JSON instead of form encoding; the Gateway interface
// absorbs both differences.
type MoMo struct {
	cfg  config.MoMoConfig
	call *caller
	log  *logrus.Entry
}

func NewMoMo(cfg config.MoMoConfig, log *logrus.Logger) *MoMo {
	return &MoMo{
		cfg:  cfg,
		call: newCaller("momo"),
		log:  log.WithField("gateway", "momo"),
	}
}

func (m *MoMo) Name() string { return "momo" }

func (m *MoMo) sign(raw string) string {
	mac := hmac.New(sha256.New, []byte(m.cfg.SecretKey))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

type mmCreateResponse struct {
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
	PayURL     string `json:"payUrl"`
	RequestID  string `json:"requestId"`
}

func (m *MoMo) CreateOrder(ctx context.Context, order *domain.Order, description string) (*OrderHandle, error) {
	requestID := m.requestID(order.OrderID, order.CreatedAt)
	rawSig := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&ipnUrl=%s&orderId=%s&orderInfo=%s&partnerCode=%s&redirectUrl=%s&requestId=%s&requestType=%s",
		m.cfg.AccessKey, order.Amount, "", m.cfg.CallbackURL, order.OrderID,
		description, m.cfg.PartnerCode, m.cfg.CallbackURL, requestID, "captureWallet",
	)

	payload, _ := json.Marshal(map[string]interface{}{
		"partnerCode": m.cfg.PartnerCode,
		"accessKey":   m.cfg.AccessKey,
		"requestId":   requestID,
		"amount":      order.Amount,
		"orderId":     order.OrderID,
		"orderInfo":   description,
		"redirectUrl": m.cfg.CallbackURL,
		"ipnUrl":      m.cfg.CallbackURL,
		"extraData":   "",
		"requestType": "captureWallet",
		"signature":   m.sign(rawSig),
		"lang":        "vi",
	})

	raw, err := m.call.postJSON(ctx, m.cfg.Endpoint, payload)
	if err != nil {
		return nil, &domain.GatewayError{Gateway: m.Name(), Op: "create", Err: err}
	}

	var resp mmCreateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &domain.GatewayError{Gateway: m.Name(), Op: "create", Err: err}
	}
	if resp.ResultCode != mmCodeSuccess {
		return nil, &domain.GatewayError{
			Gateway: m.Name(), Op: "create",
			Err: fmt.Errorf("resultCode %d: %s", resp.ResultCode, resp.Message),
		}
	}
	return &OrderHandle{PayURL: resp.PayURL}, nil
}

type mmCallback struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

func (m *MoMo) callbackSignature(cb *mmCallback) string {
	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&message=%s&orderId=%s&orderInfo=%s&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%d&resultCode=%d&transId=%d",
		m.cfg.AccessKey, cb.Amount, cb.ExtraData, cb.Message, cb.OrderID,
		cb.OrderInfo, cb.OrderType, cb.PartnerCode, cb.PayType, cb.RequestID,
		cb.ResponseTime, cb.ResultCode, cb.TransID,
	)
	return m.sign(raw)
}

func (m *MoMo) VerifyCallback(raw []byte) error {
	var cb mmCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return fmt.Errorf("malformed callback: %w", err)
	}
	expected := m.callbackSignature(&cb)
	if !hmac.Equal([]byte(expected), []byte(cb.Signature)) {
		return domain.ErrSignatureMismatch
	}
	return nil
}

func (m *MoMo) ParseCallback(raw []byte) (*domain.CallbackResult, error) {
	var cb mmCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, fmt.Errorf("malformed callback: %w", err)
	}
	outcome := domain.CallbackFailure
	if cb.ResultCode == mmCodeSuccess {
		outcome = domain.CallbackSuccess
	}
	var txnRef string
	if cb.TransID != 0 {
		txnRef = fmt.Sprintf("%d", cb.TransID)
	}
	return &domain.CallbackResult{
		OrderID:       cb.OrderID,
		Outcome:       outcome,
		Amount:        cb.Amount,
		GatewayTxnRef: txnRef,
	}, nil
}

// requestID mirrors ZaloPay's app_trans_id trick: derived from the creation
// date so the query path reconstructs the same id the create path used.
func (m *MoMo) requestID(orderID string, createdAt time.Time) string {
	return fmt.Sprintf("%s-%s", createdAt.Format("060102"), orderID)
}

type mmQueryResponse struct {
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
	TransID    int64  `json:"transId"`
	Amount     int64  `json:"amount"`
}

func (m *MoMo) QueryStatus(ctx context.Context, orderID string, createdAt time.Time) (*domain.GatewayStatus, error) {
	requestID := m.requestID(orderID, createdAt)
	rawSig := fmt.Sprintf("accessKey=%s&orderId=%s&partnerCode=%s&requestId=%s",
		m.cfg.AccessKey, orderID, m.cfg.PartnerCode, requestID)

	payload, _ := json.Marshal(map[string]interface{}{
		"partnerCode": m.cfg.PartnerCode,
		"requestId":   requestID,
		"orderId":     orderID,
		"signature":   m.sign(rawSig),
		"lang":        "vi",
	})

	raw, err := m.call.postJSON(ctx, m.cfg.QueryURL, payload)
	if err != nil {
		return nil, &domain.GatewayError{Gateway: m.Name(), Op: "query", Err: err}
	}

	var resp mmQueryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &domain.GatewayError{Gateway: m.Name(), Op: "query", Err: err}
	}

	m.log.WithFields(logrus.Fields{
		"order_id":    orderID,
		"result_code": resp.ResultCode,
	}).Debug("status query")

	return &domain.GatewayStatus{
		Code:        resp.ResultCode,
		Message:     resp.Message,
		IsSuccess:   resp.ResultCode == mmCodeSuccess,
		IsPending:   resp.ResultCode == mmCodeInitiated || resp.ResultCode == mmCodeAuthorized,
		IsCancelled: resp.ResultCode == mmCodeCancelled || resp.ResultCode == mmCodeDenied,
	}, nil
}
