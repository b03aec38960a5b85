package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"fitpay/internal/domain"
	"fitpay/internal/infrastructure/payment"
	"fitpay/internal/repo"
)

// CheckResult is the answer of a synchronous "check now" on one order.
type CheckResult struct {
	Code        int           `json:"code"`
	Message     string        `json:"message"`
	IsSuccess   bool          `json:"isSuccess"`
	IsCancelled bool          `json:"isCancelled"`
	IsPending   bool          `json:"isPending"`
	Order       *domain.Order `json:"order"`
}

// ReconcileService is the synchronous status path used by user polling and
// admin tooling. Terminal orders answer from the store without touching the
// gateway; pending ones trigger a live query whose result is applied through
// the lifecycle manager before the snapshot is returned.
type ReconcileService struct {
	orders   repo.OrderRepo
	gateways *payment.Registry
	life     *OrderService
	log      *logrus.Logger
}

func NewReconcileService(orders repo.OrderRepo, gateways *payment.Registry, life *OrderService, log *logrus.Logger) *ReconcileService {
	return &ReconcileService{orders: orders, gateways: gateways, life: life, log: log}
}

func (s *ReconcileService) Check(ctx context.Context, orderID string) (*CheckResult, error) {
	order, err := s.orders.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status.IsTerminal() {
		return resultFromOrder(order), nil
	}

	gw, err := s.gateways.Get(order.PaymentMethod)
	if err != nil {
		return nil, err
	}

	status, err := gw.QueryStatus(ctx, order.OrderID, order.CreatedAt)
	if err != nil {
		// Retryable for the caller; the sweep owns forced resolution.
		return nil, err
	}

	fresh, err := s.life.ApplyQueryResult(ctx, orderID, status)
	if err != nil {
		return nil, err
	}

	return &CheckResult{
		Code:        status.Code,
		Message:     status.Message,
		IsSuccess:   status.IsSuccess,
		IsCancelled: status.IsCancelled,
		IsPending:   status.IsPending,
		Order:       fresh,
	}, nil
}

func resultFromOrder(order *domain.Order) *CheckResult {
	res := &CheckResult{Order: order}
	switch order.Status {
	case domain.OrderSucceeded:
		res.Code = 1
		res.Message = "success"
		res.IsSuccess = true
	case domain.OrderFailed:
		res.Code = -1
		res.Message = "failed"
		res.IsCancelled = true
	default:
		res.Code = 3
		res.Message = "pending"
		res.IsPending = true
	}
	return res
}
