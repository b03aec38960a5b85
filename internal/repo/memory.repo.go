package repo

import (
	"context"
	"sync"
	"time"

	"fitpay/internal/domain"
)

// memoryRepo is an in-process OrderRepo with the same conditional-update
// semantics as the Postgres implementation. It backs the simulator and the
// service tests; production always runs on Postgres.
type memoryRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func NewMemoryRepo() OrderRepo {
	return &memoryRepo{orders: make(map[string]*domain.Order)}
}

func (r *memoryRepo) Create(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *order
	r.orders[order.OrderID] = &cp
	return nil
}

func (r *memoryRepo) FindByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (r *memoryRepo) ResolveIfPending(ctx context.Context, orderID string, terminal domain.OrderStatus, txnRef string) (*domain.Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return nil, false, domain.ErrOrderNotFound
	}
	if order.Status != domain.OrderPending {
		cp := *order
		return &cp, false, nil
	}
	order.Status = terminal
	if txnRef != "" {
		order.GatewayTxnRef = txnRef
	}
	order.UpdatedAt = time.Now()
	cp := *order
	return &cp, true, nil
}

func (r *memoryRepo) FindStalePending(ctx context.Context, olderThan time.Time) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []domain.Order
	for _, order := range r.orders {
		if order.Status == domain.OrderPending && order.CreatedAt.Before(olderThan) {
			stale = append(stale, *order)
		}
	}
	return stale, nil
}
