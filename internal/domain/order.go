package domain

import (
	"fmt"
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderSucceeded OrderStatus = "succeeded"
	OrderFailed    OrderStatus = "failed"
	// OrderScheduled marks a future-dated order awaiting activation by the
	// calendar sweep. Payment transitions never produce this status.
	OrderScheduled OrderStatus = "scheduled"
)

// IsTerminal reports whether no further payment transition is accepted.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderSucceeded || s == OrderFailed
}

// Order is one payment attempt. OrderID is the correlation key with the
// gateway and never changes. Amount is in minor currency units and is
// authoritative over anything the gateway reports back.
type Order struct {
	OrderID       string
	OwnerID       int64
	ProductRef    string
	Amount        int64
	Status        OrderStatus
	PaymentMethod string
	GatewayTxnRef string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOrderID builds `<prefix><unix-millis><owner-id>`. The prefix comes from
// the product family so membership and class orders stay distinguishable in
// gateway dashboards.
func NewOrderID(ownerID int64, productRef string, now time.Time) string {
	prefix := "ORD"
	switch {
	case strings.HasPrefix(productRef, "membership:"):
		prefix = "MEM"
	case strings.HasPrefix(productRef, "class:"):
		prefix = "CLASS"
	}
	return fmt.Sprintf("%s%d%d", prefix, now.UnixMilli(), ownerID)
}
