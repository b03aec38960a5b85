package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound is returned when an order id has no row. On the
	// direct query path it propagates to the caller; on the callback path
	// it is logged and dropped.
	ErrOrderNotFound = errors.New("order not found")

	// ErrSignatureMismatch means the callback MAC did not verify. The
	// callback is rejected and the order is left untouched.
	ErrSignatureMismatch = errors.New("callback signature mismatch")
)

// ValidationError rejects malformed input before any order is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// GatewayError wraps a network, timeout or malformed-response failure from
// the payment gateway. It is retryable and never marks an order failed by
// itself; the timeout sweep owns that decision.
type GatewayError struct {
	Gateway string
	Op      string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Gateway, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// AmountMismatchError refuses a success transition whose gateway-reported
// amount disagrees with the recorded order amount. The order stays pending
// for manual investigation.
type AmountMismatchError struct {
	OrderID  string
	Expected int64
	Reported int64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("order %s: gateway reported amount %d, order records %d",
		e.OrderID, e.Reported, e.Expected)
}
