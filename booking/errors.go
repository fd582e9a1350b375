/*
errors.go - Error taxonomy for the booking engine

PURPOSE:
  Every business-rule rejection is a distinct, caller-distinguishable
  error kind so the calling layer can render precise feedback: tier
  mismatch, cross-tier needs confirmation, insufficient credits, session
  full, policy forbids cancellation, not found, not owner. Nothing is
  reported as a generic failure.

PROPAGATION:
  Business rejections are client errors and are never retried. Lock-wait
  timeouts and storage outages are infrastructure errors, surfaced
  distinctly so callers retry only those.

USAGE:
  Structured errors wrap sentinels, so both forms work:

    if errors.Is(err, booking.ErrInsufficientCredits) { ... }

    var ice *booking.InsufficientCreditsError
    if errors.As(err, &ice) { render(ice.Required, ice.Available) }
*/
package booking

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced session, package, booking,
	// or waitlist entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the actor does not own the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrTierMismatch is returned when a credit cannot pay for a session's
	// kind or tier.
	ErrTierMismatch = errors.New("credit tier cannot pay for this session")

	// ErrCrossTierConfirmationRequired is returned for a valid cross-tier
	// booking submitted without the explicit confirmation flag.
	ErrCrossTierConfirmationRequired = errors.New("cross-tier booking requires confirmation")

	// ErrInsufficientCredits is returned when the package balance cannot
	// cover the computed cost.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrPackageExpired is returned when a debit is attempted against an
	// expired package. Refunds are never expiry-gated.
	ErrPackageExpired = errors.New("credit package expired")

	// ErrSessionFull is returned when no open seat remains.
	ErrSessionFull = errors.New("session full")

	// ErrCancellationNotAllowed is returned when the cancellation policy
	// blocks the request; the structured form carries the blocking reason.
	ErrCancellationNotAllowed = errors.New("cancellation not allowed")

	// ErrInvalidRequest is returned for malformed input, e.g. neither a
	// session id nor ad-hoc slot data supplied.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrAlreadyBooked is returned when the customer already holds a
	// confirmed booking on the session.
	ErrAlreadyBooked = errors.New("customer already booked on this session")

	// ErrSeatAvailable is returned when joining a waitlist on a session
	// that still has an open seat.
	ErrSeatAvailable = errors.New("session has an open seat; book it directly")

	// ErrAlreadyQueued is returned when the customer is already on the
	// session's waitlist.
	ErrAlreadyQueued = errors.New("customer already on the waitlist")

	// ErrInstructorBusy is returned when an ad-hoc slot overlaps another
	// scheduled session of the same instructor.
	ErrInstructorBusy = errors.New("instructor has a conflicting session")

	// ErrLockTimeout is returned when a per-package or per-session lock
	// could not be acquired in time. Retryable.
	ErrLockTimeout = errors.New("lock wait timeout")
)

// =============================================================================
// STRUCTURED ERRORS - Carry the numbers clients need
// =============================================================================

// NotFoundError names which kind of record was missing.
type NotFoundError struct {
	Kind string // "session", "package", "booking", "waitlist entry"
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// TierMismatchError explains why the credit cannot pay for the session.
type TierMismatchError struct {
	AllowanceKind ServiceKind
	AllowanceTier int
	SessionKind   ServiceKind
	SessionTier   int
}

func (e *TierMismatchError) Error() string {
	return fmt.Sprintf("%s credit (tier %d) cannot pay for %s session (tier %d)",
		e.AllowanceKind, e.AllowanceTier, e.SessionKind, e.SessionTier)
}
func (e *TierMismatchError) Unwrap() error { return ErrTierMismatch }

// CrossTierError carries the warning the caller must surface before
// resubmitting with confirmation set.
type CrossTierError struct {
	Warning string
}

func (e *CrossTierError) Error() string {
	return "cross-tier booking requires confirmation: " + e.Warning
}
func (e *CrossTierError) Unwrap() error { return ErrCrossTierConfirmationRequired }

// InsufficientCreditsError reports required vs available units.
type InsufficientCreditsError struct {
	PackageID PackageID
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits on package %s: required %d, available %d",
		e.PackageID, e.Required, e.Available)
}
func (e *InsufficientCreditsError) Unwrap() error { return ErrInsufficientCredits }

// SessionFullError reports the capacity that was hit.
type SessionFullError struct {
	SessionID SessionID
	Capacity  int
}

func (e *SessionFullError) Error() string {
	return fmt.Sprintf("session %s is full (capacity %d)", e.SessionID, e.Capacity)
}
func (e *SessionFullError) Unwrap() error { return ErrSessionFull }

// CancelBlockReason identifies which policy rule blocked a cancellation.
type CancelBlockReason string

const (
	CancelBlockedDisabled        CancelBlockReason = "cancellation_disabled"
	CancelBlockedTooLate         CancelBlockReason = "too_late"
	CancelBlockedRescheduleLimit CancelBlockReason = "reschedule_limit_reached"
)

// CancellationBlockedError carries the specific blocking rule plus the
// numbers needed to explain it.
type CancellationBlockedError struct {
	Reason           CancelBlockReason
	MinNoticeHours   int
	HoursBeforeStart float64
}

func (e *CancellationBlockedError) Error() string {
	switch e.Reason {
	case CancelBlockedTooLate:
		return fmt.Sprintf("cancellation not allowed: %.1f hours before start, policy requires %d",
			e.HoursBeforeStart, e.MinNoticeHours)
	case CancelBlockedRescheduleLimit:
		return "cancellation not allowed: reschedule limit reached"
	default:
		return "cancellation not allowed: feature disabled"
	}
}
func (e *CancellationBlockedError) Unwrap() error { return ErrCancellationNotAllowed }

// InvalidRequestError carries the validation detail.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string { return "invalid request: " + e.Reason }
func (e *InvalidRequestError) Unwrap() error { return ErrInvalidRequest }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
// Business rejections never do.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

// IsClientError returns true if the error is a business-rule rejection
// caused by the request, as opposed to an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrTierMismatch) ||
		errors.Is(err, ErrCrossTierConfirmationRequired) ||
		errors.Is(err, ErrInsufficientCredits) ||
		errors.Is(err, ErrPackageExpired) ||
		errors.Is(err, ErrSessionFull) ||
		errors.Is(err, ErrCancellationNotAllowed) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrAlreadyBooked) ||
		errors.Is(err, ErrSeatAvailable) ||
		errors.Is(err, ErrAlreadyQueued) ||
		errors.Is(err, ErrInstructorBusy)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
