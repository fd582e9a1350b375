/*
policy.go - Cancellation policy and pre-built configurations

PURPOSE:
  A configurable gate on booking cancellation: whether cancellation is
  allowed at all, how many hours before start it must happen, whether a
  cancelled booking refunds its debited credits, and how many reschedules
  a booking may go through.

  The pre-built constructors mirror common studio setups; real deployments
  tune the numbers via flags.

SEE ALSO:
  - errors.go: CancellationBlockedError reasons
  - engine: the only caller of these checks
*/
package booking

import "time"

// =============================================================================
// CANCELLATION POLICY
// =============================================================================

// CancellationPolicy configures when a booking may be cancelled and what
// happens to its credits.
//
// MaxReschedules < 0 means unlimited.
type CancellationPolicy struct {
	Enabled        bool
	MinNoticeHours int
	RefundOnCancel bool
	MaxReschedules int
}

// CheckCancel decides whether a cancellation at `now` of a session
// starting at `sessionStart` passes the policy. Returns a
// CancellationBlockedError with the specific blocking reason, or nil.
func (p CancellationPolicy) CheckCancel(now, sessionStart time.Time) error {
	if !p.Enabled {
		return &CancellationBlockedError{Reason: CancelBlockedDisabled}
	}
	hoursBefore := sessionStart.Sub(now).Hours()
	if hoursBefore < float64(p.MinNoticeHours) {
		return &CancellationBlockedError{
			Reason:           CancelBlockedTooLate,
			MinNoticeHours:   p.MinNoticeHours,
			HoursBeforeStart: hoursBefore,
		}
	}
	return nil
}

// CheckReschedule decides whether a booking that has already been
// rescheduled `count` times may be rescheduled again.
func (p CancellationPolicy) CheckReschedule(count int) error {
	if p.MaxReschedules >= 0 && count >= p.MaxReschedules {
		return &CancellationBlockedError{Reason: CancelBlockedRescheduleLimit}
	}
	return nil
}

// =============================================================================
// PRE-BUILT POLICIES
// =============================================================================

// StandardCancellationPolicy allows cancellation with 24 hours notice,
// refunds credits, and caps reschedules at 3.
func StandardCancellationPolicy() CancellationPolicy {
	return CancellationPolicy{
		Enabled:        true,
		MinNoticeHours: 24,
		RefundOnCancel: true,
		MaxReschedules: 3,
	}
}

// FlexibleCancellationPolicy allows cancellation up to 2 hours before
// start with unlimited reschedules.
func FlexibleCancellationPolicy() CancellationPolicy {
	return CancellationPolicy{
		Enabled:        true,
		MinNoticeHours: 2,
		RefundOnCancel: true,
		MaxReschedules: -1,
	}
}

// NoRefundCancellationPolicy frees the seat but keeps the credits.
func NoRefundCancellationPolicy() CancellationPolicy {
	return CancellationPolicy{
		Enabled:        true,
		MinNoticeHours: 0,
		RefundOnCancel: false,
		MaxReschedules: 0,
	}
}
