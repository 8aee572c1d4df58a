package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrCatalogUnavailable is returned when the plan catalog cannot be read
	ErrCatalogUnavailable = errors.New("plan catalog unavailable")

	// ErrPlanNotFound is returned when a plan code has no active catalog row
	ErrPlanNotFound = errors.New("plan not found")

	// ErrAlreadyOnPlan is returned when subscribing to the plan already in force
	ErrAlreadyOnPlan = errors.New("already on plan")

	// ErrInvalidCreditType is returned for credit types other than listing, bump and feature
	ErrInvalidCreditType = errors.New("invalid credit type")

	// ErrNoActiveSubscription is returned when canceling without a current subscription
	ErrNoActiveSubscription = errors.New("no active subscription")
)

// QuotaExceededError is returned when a credit consumption would exceed the plan allowance
type QuotaExceededError struct {
	CreditType CreditType
	Used       int
	Limit      int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d/%d", e.CreditType, e.Used, e.Limit)
}

// IsQuotaExceeded checks if an error is a quota exceeded error
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// ValidationError is a field-level payment form error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidation checks if an error is a payment validation error
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
