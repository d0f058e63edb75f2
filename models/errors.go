package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError reports a caller-fixable problem with a draft transaction.
// Never retried automatically.
type ValidationError struct {
	Code      string
	Message   string
	Imbalance decimal.Decimal
}

func (e *ValidationError) Error() string {
	if !e.Imbalance.IsZero() {
		return fmt.Sprintf("%s: %s (imbalance %s)", e.Code, e.Message, e.Imbalance.String())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewValidationError(code, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// PeriodLockedError is returned when a posting targets a period that is not
// OPEN. It is never silently routed to another period.
type PeriodLockedError struct {
	PeriodName string
	Status     FiscalPeriodStatus
}

func (e *PeriodLockedError) Error() string {
	return fmt.Sprintf("fiscal period %q is %s; posting is not allowed", e.PeriodName, e.Status)
}

// DuplicateSubmissionError marks a genuine duplicate business document
// (e.g. the same invoice number submitted twice against one purchase order).
// True idempotent replays do NOT produce this error; they return the prior
// result instead.
type DuplicateSubmissionError struct {
	Reference string
	Detail    string
}

func (e *DuplicateSubmissionError) Error() string {
	return fmt.Sprintf("duplicate submission %q: %s", e.Reference, e.Detail)
}

// MatchRejectedError reports that a three-way match cannot proceed at all
// (missing receipt, cancelled purchase order). Tolerance failures are NOT
// errors; they surface as an AWAITING_APPROVAL match.
type MatchRejectedError struct {
	Reason string
}

func (e *MatchRejectedError) Error() string {
	return "three-way match rejected: " + e.Reason
}

// StoreCommitError wraps a failed atomic commit. Commits are all-or-nothing,
// so callers may retry with the same idempotency key.
type StoreCommitError struct {
	Op  string
	Err error
}

func (e *StoreCommitError) Error() string {
	return fmt.Sprintf("store commit failed during %s: %v", e.Op, e.Err)
}

func (e *StoreCommitError) Unwrap() error { return e.Err }
