package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"fitpay/internal/domain"
	"fitpay/internal/infrastructure/payment"
	"fitpay/internal/repo"
)

// CallbackAck is the acknowledgement body the gateway expects back from its
// callback webhook. 1 tells the gateway the callback was applied (or
// absorbed); -1 flags a MAC mismatch; 0 asks for a retry.
type CallbackAck struct {
	ReturnCode    int    `json:"return_code"`
	ReturnMessage string `json:"return_message"`
}

var (
	AckApplied = CallbackAck{ReturnCode: 1, ReturnMessage: "success"}
	AckBadMac  = CallbackAck{ReturnCode: -1, ReturnMessage: "mac not equal"}
)

func ackRetry(msg string) CallbackAck {
	return CallbackAck{ReturnCode: 0, ReturnMessage: msg}
}

// CreateResult pairs the persisted order with the gateway's payment URL.
// PayURL is empty when gateway submission failed; the order still exists and
// the sweeper will resolve it.
type CreateResult struct {
	Order  *domain.Order
	PayURL string
}

// OrderService is the lifecycle manager: it is the only component allowed to
// move an order between statuses. Transitions from the callback, the status
// poll and the timeout sweep all funnel through the repo's conditional
// update, so racing resolvers cannot corrupt an order and terminal states
// absorb every later attempt.
type OrderService struct {
	orders   repo.OrderRepo
	gateways *payment.Registry
	log      *logrus.Logger
	now      func() time.Time
}

func NewOrderService(orders repo.OrderRepo, gateways *payment.Registry, log *logrus.Logger) *OrderService {
	return &OrderService{
		orders:   orders,
		gateways: gateways,
		log:      log,
		now:      time.Now,
	}
}

// Create validates, persists a pending order, then submits it to the
// gateway. Persist-before-submit is deliberate: if the gateway call fails
// there is still a pending row for the sweeper to revisit, never a payment
// the system has no record of.
func (s *OrderService) Create(ctx context.Context, ownerID int64, productRef string, amount int64, method string) (*CreateResult, error) {
	if amount <= 0 {
		return nil, &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if productRef == "" {
		return nil, &domain.ValidationError{Field: "product_ref", Reason: "must not be empty"}
	}
	gw, err := s.gateways.Get(method)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := &domain.Order{
		OrderID:       domain.NewOrderID(ownerID, productRef, now),
		OwnerID:       ownerID,
		ProductRef:    productRef,
		Amount:        amount,
		Status:        domain.OrderPending,
		PaymentMethod: method,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	handle, err := gw.CreateOrder(ctx, order, fmt.Sprintf("Payment for %s", productRef))
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"order_id": order.OrderID,
			"gateway":  method,
		}).WithError(err).Warn("gateway submission failed, order stays pending")
		return &CreateResult{Order: order}, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id": order.OrderID,
		"owner_id": ownerID,
		"amount":   amount,
		"gateway":  method,
	}).Info("order created")

	return &CreateResult{Order: order, PayURL: handle.PayURL}, nil
}

// ApplyCallback verifies, parses and applies an asynchronous gateway
// callback. It never returns an error to the webhook: every outcome maps to
// an ack the gateway understands.
func (s *OrderService) ApplyCallback(ctx context.Context, gatewayName string, raw []byte) CallbackAck {
	gw, err := s.gateways.Get(gatewayName)
	if err != nil {
		s.log.WithField("gateway", gatewayName).Warn("callback for unknown gateway")
		return ackRetry("unknown gateway")
	}

	if err := gw.VerifyCallback(raw); err != nil {
		if errors.Is(err, domain.ErrSignatureMismatch) {
			// Possible tampering or a misconfigured key2; reject and leave
			// the order alone.
			s.log.WithField("gateway", gatewayName).Error("callback signature mismatch")
			return AckBadMac
		}
		s.log.WithField("gateway", gatewayName).WithError(err).Error("callback rejected")
		return ackRetry("malformed callback")
	}

	result, err := gw.ParseCallback(raw)
	if err != nil {
		s.log.WithField("gateway", gatewayName).WithError(err).Error("callback parse failed")
		return ackRetry("malformed callback")
	}

	order, err := s.orders.FindByOrderID(ctx, result.OrderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		// Callbacks can arrive for orders another deployment owns; the
		// store is the shared source of truth, so a miss here is final.
		s.log.WithFields(logrus.Fields{
			"order_id": result.OrderID,
			"gateway":  gatewayName,
		}).Warn("callback for unknown order, dropped")
		return AckApplied
	}
	if err != nil {
		s.log.WithError(err).Error("callback order lookup failed")
		return ackRetry("internal error")
	}

	if result.Outcome == domain.CallbackSuccess && result.Amount != order.Amount {
		mismatch := &domain.AmountMismatchError{
			OrderID:  order.OrderID,
			Expected: order.Amount,
			Reported: result.Amount,
		}
		// Left pending on purpose: an unverifiable success needs a human,
		// not an automatic failure.
		s.log.WithField("gateway", gatewayName).WithError(mismatch).Error("amount mismatch, transition refused")
		return ackRetry("amount mismatch")
	}

	terminal := domain.OrderFailed
	if result.Outcome == domain.CallbackSuccess {
		terminal = domain.OrderSucceeded
	}

	fresh, won, err := s.orders.ResolveIfPending(ctx, order.OrderID, terminal, result.GatewayTxnRef)
	if err != nil {
		s.log.WithError(err).Error("callback transition failed")
		return ackRetry("internal error")
	}

	s.log.WithFields(logrus.Fields{
		"order_id": order.OrderID,
		"gateway":  gatewayName,
		"status":   fresh.Status,
		"applied":  won,
	}).Info("callback processed")

	return AckApplied
}

// ApplyQueryResult feeds a synchronous status-query answer through the state
// machine. Shared by the reconciliation check and the timeout sweep.
func (s *OrderService) ApplyQueryResult(ctx context.Context, orderID string, status *domain.GatewayStatus) (*domain.Order, error) {
	switch {
	case status.IsSuccess:
		order, _, err := s.orders.ResolveIfPending(ctx, orderID, domain.OrderSucceeded, "")
		return order, err
	case status.IsPending:
		// Still in flight at the gateway; nothing to record.
		return s.orders.FindByOrderID(ctx, orderID)
	default:
		// Cancelled, expired, or an undocumented code: fail closed.
		order, _, err := s.orders.ResolveIfPending(ctx, orderID, domain.OrderFailed, "")
		return order, err
	}
}

// Expire force-fails a pending order whose deadline has passed and whose
// state the gateway could not confirm. No-op on terminal orders.
func (s *OrderService) Expire(ctx context.Context, orderID string) (*domain.Order, error) {
	order, won, err := s.orders.ResolveIfPending(ctx, orderID, domain.OrderFailed, "")
	if err != nil {
		return nil, err
	}
	if won {
		s.log.WithField("order_id", orderID).Info("order expired, marked failed")
	}
	return order, nil
}
