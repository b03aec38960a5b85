package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitpay/internal/domain"
	"fitpay/internal/infrastructure/payment"
	"fitpay/internal/repo"
)

func newReconcileFixture(t *testing.T) (*ReconcileService, *OrderService, repo.OrderRepo, *payment.Mock) {
	t.Helper()
	orders := repo.NewMemoryRepo()
	mock := payment.NewMock("test-secret")
	gateways := payment.NewRegistry(mock)
	life := NewOrderService(orders, gateways, quietLogger())
	return NewReconcileService(orders, gateways, life, quietLogger()), life, orders, mock
}

func TestCheckUnknownOrderPropagatesNotFound(t *testing.T) {
	svc, _, _, _ := newReconcileFixture(t)

	_, err := svc.Check(context.Background(), "MEM000")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestCheckAppliesLiveQueryResult(t *testing.T) {
	svc, life, orders, mock := newReconcileFixture(t)
	order := mustCreate(t, life)
	mock.SettlePaid(order.OrderID)

	result, err := svc.Check(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.True(t, result.IsSuccess)
	assert.Equal(t, 1, result.Code)
	assert.Equal(t, domain.OrderSucceeded, result.Order.Status)

	stored, err := orders.FindByOrderID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderSucceeded, stored.Status)
}

func TestCheckStillPendingIsNoOp(t *testing.T) {
	svc, life, orders, _ := newReconcileFixture(t)
	order := mustCreate(t, life)

	result, err := svc.Check(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.True(t, result.IsPending)

	stored, err := orders.FindByOrderID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, stored.Status)
}

func TestCheckTerminalOrderSkipsGateway(t *testing.T) {
	svc, life, _, mock := newReconcileFixture(t)
	order := mustCreate(t, life)

	ack := life.ApplyCallback(context.Background(), "mock", mock.Callback(order.OrderID, true, order.Amount))
	require.Equal(t, AckApplied, ack)

	// If the short-circuit ever called the gateway, this would error.
	mock.FailQueries(true)

	result, err := svc.Check(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.True(t, result.IsSuccess)
	assert.Equal(t, domain.OrderSucceeded, result.Order.Status)
}

func TestCheckGatewayErrorIsRetryable(t *testing.T) {
	svc, life, orders, mock := newReconcileFixture(t)
	order := mustCreate(t, life)
	mock.FailQueries(true)

	_, err := svc.Check(context.Background(), order.OrderID)
	var gwErr *domain.GatewayError
	require.ErrorAs(t, err, &gwErr)

	// A transient gateway error never marks the order failed directly.
	stored, err := orders.FindByOrderID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, stored.Status)
}
