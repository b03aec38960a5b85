package domain

// CallbackOutcome is the normalized result coding of a gateway callback.
type CallbackOutcome int

const (
	CallbackFailure CallbackOutcome = iota
	CallbackSuccess
)

// CallbackResult is the parsed, verified payload of an asynchronous gateway
// callback. Raw gateway JSON never crosses into the lifecycle manager.
type CallbackResult struct {
	OrderID       string
	Outcome       CallbackOutcome
	Amount        int64
	GatewayTxnRef string
}

// GatewayStatus is the normalized answer of a synchronous status query.
// Exactly one of the Is* flags holds for codes the gateway documents; codes
// it does not are treated as failed (fail-closed).
type GatewayStatus struct {
	Code        int
	Message     string
	IsSuccess   bool
	IsPending   bool
	IsCancelled bool
}
