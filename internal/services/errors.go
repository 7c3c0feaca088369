package services

import (
	"errors"
	"fmt"

	"github.com/raffleworks/raffle-backend/internal/models"
)

// Validation and protocol errors of the round lifecycle. Validation
// errors are the caller's fault and leave state untouched; protocol
// errors are out-of-sequence randomness deliveries, also side-effect
// free.
var (
	// ErrInsufficientPayment is returned when the paid amount is below
	// the entrance fee.
	ErrInsufficientPayment = errors.New("paid amount is below the entrance fee")

	// ErrRoundNotOpen is returned when an entry arrives while the round
	// is awaiting randomness.
	ErrRoundNotOpen = errors.New("round is not open for entries")

	// ErrMissingParticipant is returned when an entry has no
	// participant address.
	ErrMissingParticipant = errors.New("participant address is required")

	// ErrUnknownRequest is returned when a randomness delivery does not
	// match the pending request.
	ErrUnknownRequest = errors.New("randomness delivery does not match any pending request")

	// ErrStaleRequest is returned when a randomness delivery references
	// a request the round has already settled.
	ErrStaleRequest = errors.New("randomness delivery references an already settled request")

	// ErrNoRandomValues is returned when the oracle delivers an empty
	// value set.
	ErrNoRandomValues = errors.New("randomness delivery carries no values")

	// ErrRequestNotStuck is returned when a re-request is attempted
	// before the grace period has elapsed or with no request pending.
	ErrRequestNotStuck = errors.New("no randomness request is stuck")
)

// NotEligibleError is returned by RequestSettlement when one or more
// eligibility conditions fail. It carries the full diagnostics so the
// caller can see the round state that caused the rejection.
type NotEligibleError struct {
	Eligibility models.Eligibility
}

// Error implements the error interface
func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("round not eligible for settlement (status=%s, balance=%d, entrants=%d, intervalElapsed=%t)",
		e.Eligibility.Status, e.Eligibility.Balance, e.Eligibility.EntrantCount, e.Eligibility.IntervalElapsed)
}

// TransferError wraps a ledger failure that happened after settlement
// state was already committed. The round is reset and the prize is
// recorded as a FAILED payout; reconciliation is external.
type TransferError struct {
	Winner string
	Amount int64
	Err    error
}

// Error implements the error interface
func (e *TransferError) Error() string {
	return fmt.Sprintf("prize transfer of %d to %s failed after settlement: %v", e.Amount, e.Winner, e.Err)
}

// Unwrap returns the underlying ledger error
func (e *TransferError) Unwrap() error {
	return e.Err
}
