package service

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitpay/internal/domain"
	"fitpay/internal/infrastructure/payment"
	"fitpay/internal/repo"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestService(t *testing.T) (*OrderService, repo.OrderRepo, *payment.Mock) {
	t.Helper()
	orders := repo.NewMemoryRepo()
	mock := payment.NewMock("test-secret")
	gateways := payment.NewRegistry(mock)
	return NewOrderService(orders, gateways, quietLogger()), orders, mock
}

func mustCreate(t *testing.T, svc *OrderService) *domain.Order {
	t.Helper()
	result, err := svc.Create(context.Background(), 7, "membership:2", 500000, "mock")
	require.NoError(t, err)
	return result.Order
}

func TestCreateRejectsNonPositiveAmount(t *testing.T) {
	svc, _, _ := newTestService(t)

	for _, amount := range []int64{0, -1, -500000} {
		_, err := svc.Create(context.Background(), 7, "membership:2", amount, "mock")
		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "amount", vErr.Field)
	}
}

func TestCreateRejectsUnknownGateway(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), 7, "membership:2", 500000, "vnpay")
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestCreateStartsPendingWithPayURL(t *testing.T) {
	svc, orders, _ := newTestService(t)

	result, err := svc.Create(context.Background(), 7, "membership:2", 500000, "mock")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, result.Order.Status)
	assert.NotEmpty(t, result.PayURL)

	stored, err := orders.FindByOrderID(context.Background(), result.Order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, stored.Status)
	assert.Equal(t, int64(500000), stored.Amount)
}

func TestCreateGatewayFailureLeavesPendingOrder(t *testing.T) {
	svc, orders, mock := newTestService(t)
	mock.FailCreates(true)

	result, err := svc.Create(context.Background(), 7, "membership:2", 500000, "mock")
	var gwErr *domain.GatewayError
	require.ErrorAs(t, err, &gwErr)
	require.NotNil(t, result.Order)

	// No phantom order: the row exists and the sweeper will revisit it.
	stored, err := orders.FindByOrderID(context.Background(), result.Order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, stored.Status)
}

func TestCallbackSuccessIsIdempotent(t *testing.T) {
	svc, orders, mock := newTestService(t)
	order := mustCreate(t, svc)

	body := mock.Callback(order.OrderID, true, order.Amount)

	ack := svc.ApplyCallback(context.Background(), "mock", body)
	assert.Equal(t, AckApplied, ack)

	stored, err := orders.FindByOrderID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderSucceeded, stored.Status)
	assert.NotEmpty(t, stored.GatewayTxnRef)

	// Duplicate delivery: same ack, same terminal state, no error.
	ack = svc.ApplyCallback(context.Background(), "mock", body)
	assert.Equal(t, AckApplied, ack)

	again, err := orders.FindByOrderID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderSucceeded, again.Status)
	assert.Equal(t, stored.UpdatedAt, again.UpdatedAt)
}

func TestCallbackFailureMarksFailed(t *testing.T) {
	svc, orders, mock := newTestService(t)
	order := mustCreate(t, svc)

	ack := svc.ApplyCallback(context.Background(), "mock", mock.Callback(order.OrderID, false, order.Amount))
	assert.Equal(t, AckApplied, ack)

	stored, err := orders.FindByOrderID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFailed, stored.Status)
}

func TestCallbackTamperedSignatureRejected(t *testing.T) {
	svc, orders, mock := newTestService(t)
	order := mustCreate(t, svc)

	// Valid MAC over a failure payload, then flip the outcome without
	// re-signing.
	body := mock.Callback(order.OrderID, false, order.Amount)
	tampered := bytes.Replace(body, []byte(`\"paid\":false`), []byte(`\"paid\":true`), 1)
	require.NotEqual(t, body, tampered)

	ack := svc.ApplyCallback(context.Background(), "mock", tampered)
	assert.Equal(t, AckBadMac, ack)

	stored, err := orders.FindByOrderID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, stored.Status)
}

func TestCallbackUnknownOrderDropped(t *testing.T) {
	svc, _, mock := newTestService(t)

	ack := svc.ApplyCallback(context.Background(), "mock", mock.Callback("MEM000000000", true, 100000))
	assert.Equal(t, AckApplied, ack)
}

func TestCallbackAmountMismatchRefused(t *testing.T) {
	svc, orders, mock := newTestService(t)
	order := mustCreate(t, svc)

	ack := svc.ApplyCallback(context.Background(), "mock", mock.Callback(order.OrderID, true, order.Amount+1))
	assert.Equal(t, 0, ack.ReturnCode)

	// Left pending for manual investigation, not auto-failed.
	stored, err := orders.FindByOrderID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, stored.Status)
}

func TestTerminalStatesAbsorbAllTriggers(t *testing.T) {
	svc, orders, mock := newTestService(t)
	order := mustCreate(t, svc)

	ack := svc.ApplyCallback(context.Background(), "mock", mock.Callback(order.OrderID, true, order.Amount))
	require.Equal(t, AckApplied, ack)

	// A contradictory callback, a cancelled query result and an expiry all
	// bounce off the terminal state.
	svc.ApplyCallback(context.Background(), "mock", mock.Callback(order.OrderID, false, order.Amount))

	fresh, err := svc.ApplyQueryResult(context.Background(), order.OrderID,
		&domain.GatewayStatus{Code: -2, IsCancelled: true})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderSucceeded, fresh.Status)

	fresh, err = svc.Expire(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderSucceeded, fresh.Status)

	stored, err := orders.FindByOrderID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderSucceeded, stored.Status)
}

func TestApplyQueryResultMapping(t *testing.T) {
	cases := []struct {
		name   string
		status domain.GatewayStatus
		want   domain.OrderStatus
	}{
		{"success", domain.GatewayStatus{Code: 1, IsSuccess: true}, domain.OrderSucceeded},
		{"still pending", domain.GatewayStatus{Code: 3, IsPending: true}, domain.OrderPending},
		{"cancelled", domain.GatewayStatus{Code: -2, IsCancelled: true}, domain.OrderFailed},
		{"undocumented code fails closed", domain.GatewayStatus{Code: 42}, domain.OrderFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, _ := newTestService(t)
			order := mustCreate(t, svc)

			fresh, err := svc.ApplyQueryResult(context.Background(), order.OrderID, &tc.status)
			require.NoError(t, err)
			assert.Equal(t, tc.want, fresh.Status)
		})
	}
}

func TestConcurrentResolutionKeepsOneTerminalState(t *testing.T) {
	for i := 0; i < 50; i++ {
		svc, orders, mock := newTestService(t)
		order := mustCreate(t, svc)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			svc.ApplyCallback(context.Background(), "mock", mock.Callback(order.OrderID, true, order.Amount))
		}()
		go func() {
			defer wg.Done()
			svc.Expire(context.Background(), order.OrderID)
		}()
		wg.Wait()

		stored, err := orders.FindByOrderID(context.Background(), order.OrderID)
		require.NoError(t, err)
		assert.True(t, stored.Status == domain.OrderSucceeded || stored.Status == domain.OrderFailed,
			"final status %q is not terminal", stored.Status)

		// The state must stay put once the race settles.
		later, err := orders.FindByOrderID(context.Background(), order.OrderID)
		require.NoError(t, err)
		assert.Equal(t, stored.Status, later.Status)
	}
}

func TestExampleScenario(t *testing.T) {
	svc, orders, mock := newTestService(t)

	result, err := svc.Create(context.Background(), 7, "membership:2", 500000, "mock")
	require.NoError(t, err)
	order := result.Order
	assert.Equal(t, domain.OrderPending, order.Status)
	assert.Equal(t, int64(7), order.OwnerID)

	body := mock.Callback(order.OrderID, true, 500000)
	assert.Equal(t, AckApplied, svc.ApplyCallback(context.Background(), "mock", body))

	stored, err := orders.FindByOrderID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderSucceeded, stored.Status)

	// Repeat delivery: still succeeded, no error, no second side effect.
	assert.Equal(t, AckApplied, svc.ApplyCallback(context.Background(), "mock", body))
	again, err := orders.FindByOrderID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderSucceeded, again.Status)
}

func TestOrderIDUsesCreationClock(t *testing.T) {
	svc, _, _ := newTestService(t)
	fixed := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	result, err := svc.Create(context.Background(), 42, "class:9", 120000, "mock")
	require.NoError(t, err)
	assert.Equal(t, domain.NewOrderID(42, "class:9", fixed), result.Order.OrderID)
	assert.Equal(t, fixed, result.Order.CreatedAt)
}
