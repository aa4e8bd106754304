package gateway

import (
	"fmt"

	"github.com/tair/course-payments/internal/payment/domain"
)

// ErrorCode classifies a gateway failure
type ErrorCode string

const (
	CodeInsufficientFunds  ErrorCode = "insufficient_funds"
	CodeAccountBlocked     ErrorCode = "account_blocked"
	CodeInvalidDestination ErrorCode = "invalid_destination"
	CodeRejected           ErrorCode = "rejected"
	CodeUnavailable        ErrorCode = "unavailable"
)

// Error is a classified gateway failure. Only CodeUnavailable is transient;
// it unwraps to domain.ErrGatewayUnavailable.
type Error struct {
	Code       ErrorCode
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s (http %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	if e.Code == CodeUnavailable {
		return domain.ErrGatewayUnavailable
	}
	return nil
}

func unavailable(format string, args ...interface{}) *Error {
	return &Error{Code: CodeUnavailable, Message: fmt.Sprintf(format, args...)}
}

// classifyReason maps a provider cancellation or error code to an ErrorCode
func classifyReason(reason string) ErrorCode {
	switch reason {
	case "insufficient_funds", "one_time_limit_exceeded", "payout_limit_exceeded":
		return CodeInsufficientFunds
	case "card_expired", "permission_revoked", "fraud_suspected":
		return CodeAccountBlocked
	case "invalid_card_number", "invalid_csc", "recipient_not_found", "invalid_parameter",
		"country_forbidden", "identification_required":
		return CodeInvalidDestination
	case "internal_timeout", "issuer_unavailable", "payment_method_restricted_temporarily", "too_many_requests":
		return CodeUnavailable
	}
	return CodeRejected
}
