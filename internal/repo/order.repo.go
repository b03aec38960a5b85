package repo

import (
	"context"
	"database/sql"
	"time"

	"fitpay/internal/domain"
)

type OrderRepo interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByOrderID(ctx context.Context, orderID string) (*domain.Order, error)
	// ResolveIfPending moves an order into a terminal status with a single
	// conditional update. It returns the fresh row plus whether this caller
	// won the transition; a loser gets the already-applied row back.
	ResolveIfPending(ctx context.Context, orderID string, terminal domain.OrderStatus, txnRef string) (*domain.Order, bool, error)
	FindStalePending(ctx context.Context, olderThan time.Time) ([]domain.Order, error)
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

const orderColumns = `order_id, owner_id, product_ref, amount, status, payment_method, gateway_txn_ref, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	var o domain.Order
	var txnRef sql.NullString
	err := row.Scan(
		&o.OrderID,
		&o.OwnerID,
		&o.ProductRef,
		&o.Amount,
		&o.Status,
		&o.PaymentMethod,
		&txnRef,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.GatewayTxnRef = txnRef.String
	return &o, nil
}

func (r *orderRepo) Create(ctx context.Context, order *domain.Order) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO orders (order_id, owner_id, product_ref, amount, status, payment_method, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		order.OrderID, order.OwnerID, order.ProductRef, order.Amount,
		order.Status, order.PaymentMethod, order.CreatedAt, order.UpdatedAt,
	)
	return err
}

func (r *orderRepo) FindByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ResolveIfPending is the only status writer. The WHERE status = 'pending'
// clause is what serializes racing resolvers across processes: the row lock
// taken by UPDATE makes concurrent attempts queue, and whichever runs second
// no longer matches the predicate.
func (r *orderRepo) ResolveIfPending(ctx context.Context, orderID string, terminal domain.OrderStatus, txnRef string) (*domain.Order, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE orders
		 SET status = $2,
		     gateway_txn_ref = COALESCE(NULLIF($3, ''), gateway_txn_ref),
		     updated_at = now()
		 WHERE order_id = $1 AND status = $4
		 RETURNING `+orderColumns,
		orderID, terminal, txnRef, domain.OrderPending,
	)
	order, err := scanOrder(row)
	if err == nil {
		return order, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}

	// Lost the race or the order was already terminal; report what stuck.
	order, err = r.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	return order, false, nil
}

func (r *orderRepo) FindStalePending(ctx context.Context, olderThan time.Time) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = $1 AND created_at < $2`,
		domain.OrderPending, olderThan,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}
