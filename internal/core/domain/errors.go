package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrDuplicateRequest is returned when a request id has already been accepted.
var ErrDuplicateRequest = errors.New("duplicate request")

// ValidationError reports malformed input, detected before any lock is taken.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a referenced id that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// InsufficientStockError reports a stock adjustment that would drive a
// filled or empty counter negative. Detected after the stock row is locked.
type InsufficientStockError struct {
	VariantID string
	State     CylinderState
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient %s stock for variant %s: requested %d, available %d",
		e.State, e.VariantID, e.Requested, e.Available)
}

// InvalidReturnError reports returned empties exceeding the customer's
// outstanding cylinder balance for a variant.
type InvalidReturnError struct {
	CustomerID  string
	VariantID   string
	EmptyIn     int
	Outstanding int
}

func (e *InvalidReturnError) Error() string {
	return fmt.Sprintf("customer %s cannot return %d empties for variant %s: outstanding balance is %d",
		e.CustomerID, e.EmptyIn, e.VariantID, e.Outstanding)
}

// InsufficientBalanceError reports a withdrawal or debit adjustment that
// would drive a bank account balance negative.
type InsufficientBalanceError struct {
	AccountID string
	Amount    decimal.Decimal
	Balance   decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on account %s: amount %s, balance %s",
		e.AccountID, e.Amount, e.Balance)
}

// ConcurrencyConflictError reports an optimistic-version mismatch or a
// lock-wait timeout. The operation may be retried by the caller.
type ConcurrencyConflictError struct {
	Resource string
	Err      error
}

func (e *ConcurrencyConflictError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("concurrency conflict on %s: %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("concurrency conflict on %s", e.Resource)
}

func (e *ConcurrencyConflictError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient condition the caller may
// retry. Business-rule violations are never retryable.
func IsRetryable(err error) bool {
	var conflict *ConcurrencyConflictError
	return errors.As(err, &conflict)
}
