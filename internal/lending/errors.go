package lending

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation tags rejected inputs: bad loan terms, non-positive
	// amounts, unsupported frequency or lending type, gross overpayment.
	ErrValidation = errors.New("lending: validation failed")
	// ErrStateInconsistent indicates the schedule and the aggregate
	// balances disagree beyond tolerance. The engine never auto-corrects.
	ErrStateInconsistent = errors.New("lending: loan state inconsistent")
	// ErrCalendarConfig indicates a malformed working-day configuration.
	// Callers degrade to the identity calendar rather than failing.
	ErrCalendarConfig = errors.New("lending: invalid calendar configuration")
	// ErrLoanNotFound indicates the loan does not exist.
	ErrLoanNotFound = errors.New("lending: loan not found")
	// ErrPaymentNotFound indicates the payment does not exist.
	ErrPaymentNotFound = errors.New("lending: payment not found")
)

// validationError wraps ErrValidation with a reason.
func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
