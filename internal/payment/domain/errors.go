package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is bad input; never retried
	ErrValidation = errors.New("validation error")
	// ErrInsufficientFunds means a debit would make the balance negative
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrGatewayUnavailable means the gateway could not be reached; the caller may retry
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrCircuitOpen is returned without calling the gateway
	ErrCircuitOpen = fmt.Errorf("%w: circuit breaker is open", ErrGatewayUnavailable)
	// ErrAlreadyProcessed marks a duplicate; callers treat it as success
	ErrAlreadyProcessed = errors.New("already processed")
	// ErrReconciliationRequired means ledger and gateway state diverged
	ErrReconciliationRequired = errors.New("reconciliation required")
	// ErrPayoutFailed means the gateway rejected a payout and the reserved funds were returned
	ErrPayoutFailed = errors.New("payout failed")

	ErrNotFound             = errors.New("not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrDuplicateRedemption  = errors.New("promocode already redeemed by user")
	ErrPromocodeUnavailable = errors.New("promocode unavailable")
	ErrSelfReferral         = errors.New("self referral is not allowed")
)

// Validationf builds a wrapped validation error
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// UserMessage renders a purchase-path error for the end user
func UserMessage(err error, method PaymentMethod) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientFunds):
		if method == MethodBalance {
			return "Not enough funds on your balance. Top up or choose another payment method."
		}
		return "Not enough funds. Please top up your balance."
	case errors.Is(err, ErrGatewayUnavailable):
		switch method {
		case MethodCard:
			return "Card payments are temporarily unavailable. Please try another payment method."
		case MethodSBP:
			return "SBP is temporarily unavailable. Please try paying by card."
		case MethodWallet:
			return "Wallet payments are temporarily unavailable. Please try another payment method."
		default:
			return "The payment provider is temporarily unavailable. Please try again later."
		}
	case errors.Is(err, ErrDuplicateRedemption):
		return "You have already used this promocode."
	case errors.Is(err, ErrPromocodeUnavailable):
		return "This promocode cannot be applied."
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrSelfReferral):
		return err.Error()
	case errors.Is(err, ErrPayoutFailed):
		return "The payout was declined. The full amount has been returned to your balance."
	case errors.Is(err, ErrReconciliationRequired):
		return "Your operation is being verified. Support has been notified."
	}
	return "Something went wrong. Please try again later."
}
