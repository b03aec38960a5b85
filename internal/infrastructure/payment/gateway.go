package payment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"fitpay/internal/domain"
)

// OrderHandle is what a successful gateway submission hands back to the
// caller: somewhere to send the payer.
type OrderHandle struct {
	PayURL        string
	GatewayTxnRef string
}

// Gateway is one payment provider. Implementations hold no mutable state;
// everything is request/response plus signing.
type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, order *domain.Order, description string) (*OrderHandle, error)
	// VerifyCallback checks the callback MAC. It must run before
	// ParseCallback; a mismatch returns domain.ErrSignatureMismatch.
	VerifyCallback(raw []byte) error
	ParseCallback(raw []byte) (*domain.CallbackResult, error)
	// QueryStatus polls the gateway for an order. The gateway-local
	// transaction id is rebuilt from orderID and createdAt, so repeated
	// calls are deterministic regardless of when they run.
	QueryStatus(ctx context.Context, orderID string, createdAt time.Time) (*domain.GatewayStatus, error)
}

// Registry resolves a Gateway from an order's payment method.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway)}
	for _, gw := range gateways {
		r.gateways[gw.Name()] = gw
	}
	return r
}

func (r *Registry) Get(method string) (Gateway, error) {
	gw, ok := r.gateways[method]
	if !ok {
		return nil, &domain.ValidationError{Field: "payment_method", Reason: fmt.Sprintf("unknown gateway %q", method)}
	}
	return gw, nil
}

// caller wraps the outbound HTTP path with a circuit breaker so a flapping
// gateway trips fast instead of tying up callback and sweep workers.
type caller struct {
	name    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func newCaller(name string) *caller {
	return &caller{
		name:   name,
		client: &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
		}),
	}
}

func (c *caller) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	return c.post(ctx, endpoint, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

func (c *caller) postJSON(ctx context.Context, endpoint string, payload []byte) ([]byte, error) {
	return c.post(ctx, endpoint, "application/json", strings.NewReader(string(payload)))
}

func (c *caller) post(ctx context.Context, endpoint, contentType string, body io.Reader) ([]byte, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("http %d: %s", resp.StatusCode, raw)
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}
