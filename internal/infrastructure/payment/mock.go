package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"fitpay/internal/domain"
)

// Mock is a scripted in-memory gateway for tests and the simulator. Orders
// default to pending; tests flip them with SettlePaid / SettleCancelled, or
// make the query path error with FailQueries to exercise fail-closed sweeps.
type Mock struct {
	mu          sync.RWMutex
	paid        map[string]bool
	cancelled   map[string]bool
	failQueries bool
	failCreates bool
	secret      string
}

func NewMock(secret string) *Mock {
	return &Mock{
		paid:      make(map[string]bool),
		cancelled: make(map[string]bool),
		secret:    secret,
	}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) SettlePaid(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paid[orderID] = true
}

func (m *Mock) SettleCancelled(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled[orderID] = true
}

func (m *Mock) FailQueries(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failQueries = fail
}

func (m *Mock) FailCreates(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCreates = fail
}

func (m *Mock) CreateOrder(ctx context.Context, order *domain.Order, description string) (*OrderHandle, error) {
	m.mu.RLock()
	fail := m.failCreates
	m.mu.RUnlock()
	if fail {
		return nil, &domain.GatewayError{Gateway: m.Name(), Op: "create", Err: errors.New("connection timeout")}
	}
	return &OrderHandle{PayURL: "https://mock.gateway/pay/" + order.OrderID}, nil
}

type mockCallback struct {
	Data string `json:"data"`
	Mac  string `json:"mac"`
}

type mockCallbackData struct {
	OrderID string `json:"order_id"`
	Paid    bool   `json:"paid"`
	Amount  int64  `json:"amount"`
	TxnRef  string `json:"txn_ref"`
}

func (m *Mock) sign(data string) string {
	h := hmac.New(sha256.New, []byte(m.secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// Callback fabricates a signed callback body the way the real gateway would.
func (m *Mock) Callback(orderID string, paid bool, amount int64) []byte {
	data, _ := json.Marshal(mockCallbackData{OrderID: orderID, Paid: paid, Amount: amount, TxnRef: "mock-" + orderID})
	body, _ := json.Marshal(mockCallback{Data: string(data), Mac: m.sign(string(data))})
	return body
}

func (m *Mock) VerifyCallback(raw []byte) error {
	var cb mockCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return fmt.Errorf("malformed callback: %w", err)
	}
	if !hmac.Equal([]byte(m.sign(cb.Data)), []byte(cb.Mac)) {
		return domain.ErrSignatureMismatch
	}
	return nil
}

func (m *Mock) ParseCallback(raw []byte) (*domain.CallbackResult, error) {
	var cb mockCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, fmt.Errorf("malformed callback: %w", err)
	}
	var data mockCallbackData
	if err := json.Unmarshal([]byte(cb.Data), &data); err != nil {
		return nil, fmt.Errorf("malformed callback data: %w", err)
	}
	outcome := domain.CallbackFailure
	if data.Paid {
		outcome = domain.CallbackSuccess
	}
	return &domain.CallbackResult{
		OrderID:       data.OrderID,
		Outcome:       outcome,
		Amount:        data.Amount,
		GatewayTxnRef: data.TxnRef,
	}, nil
}

func (m *Mock) QueryStatus(ctx context.Context, orderID string, createdAt time.Time) (*domain.GatewayStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failQueries {
		return nil, &domain.GatewayError{Gateway: m.Name(), Op: "query", Err: errors.New("connection timeout")}
	}
	switch {
	case m.paid[orderID]:
		return &domain.GatewayStatus{Code: 1, Message: "paid", IsSuccess: true}, nil
	case m.cancelled[orderID]:
		return &domain.GatewayStatus{Code: -2, Message: "cancelled", IsCancelled: true}, nil
	default:
		return &domain.GatewayStatus{Code: 3, Message: "awaiting payment", IsPending: true}, nil
	}
}
