package gateway

import "fmt"

// ErrorKind is the typed error taxonomy exposed at the gateway boundary
// (spec §4.1, §7). The gateway never leaks raw HTTP status codes upward;
// every failure is classified into one of these kinds.
type ErrorKind string

const (
	KindTransient        ErrorKind = "transient"
	KindInvalidParam     ErrorKind = "invalid_param"
	KindInsufficientMargin ErrorKind = "insufficient_margin"
	KindRateLimited      ErrorKind = "rate_limited"
	KindAuthFailed       ErrorKind = "auth_failed"
	KindBelowMinQty      ErrorKind = "below_min_qty"
	KindUnknown          ErrorKind = "unknown"
)

// GatewayError carries its kind and a human-readable reason, per spec §7's
// propagation rule: "every error carries its kind and a human-readable
// reason."
type GatewayError struct {
	Kind    ErrorKind
	Reason  string
	Code    string
	RetryAfterSec int
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway: %s: %s", e.Kind, e.Reason)
}

// Retryable reports whether the caller should retry with backoff without
// altering the request parameters.
func (e *GatewayError) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindRateLimited
}

func newTransient(reason string) *GatewayError {
	return &GatewayError{Kind: KindTransient, Reason: reason}
}

func newAuthFailed(reason string) *GatewayError {
	return &GatewayError{Kind: KindAuthFailed, Reason: reason}
}

// classifyBitgetCode maps a Bitget V2 response code/message into the typed
// taxonomy. Bitget returns "00000" on success and a family of numeric codes
// on failure; unrecognized codes fall back to Unknown with the exchange's
// message in Reason and its code in Code, so nothing is silently swallowed.
func classifyBitgetCode(code, msg string) *GatewayError {
	switch code {
	case "40429", "429":
		return &GatewayError{Kind: KindRateLimited, Reason: msg, Code: code}
	case "40018", "40019", "40020":
		return &GatewayError{Kind: KindAuthFailed, Reason: msg, Code: code}
	case "40017":
		return &GatewayError{Kind: KindInsufficientMargin, Reason: msg, Code: code}
	case "40009", "45110":
		return &GatewayError{Kind: KindInvalidParam, Reason: msg, Code: code}
	case "40725":
		return &GatewayError{Kind: KindBelowMinQty, Reason: msg, Code: code}
	default:
		return &GatewayError{Kind: KindUnknown, Reason: msg, Code: code}
	}
}
