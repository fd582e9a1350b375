/*
Package engine orchestrates the booking lifecycle: session resolution,
tier validation, cost calculation, capacity check, ledger debit, and
booking creation as one atomic unit - plus cancellation with its
compensating actions and the waitlist promoter.

REQUEST FLOW:

  CreateBooking
    resolve session (load, or create an ad-hoc single-seat private slot)
    -> select allowance / cross-tier gate          (booking/tier.go)
    -> compute cost                                 (booking/cost.go)
    -> verify package unexpired + balance
    -> capacity check                               (capacity.go)
    -> debit ledger + insert booking                (one transaction)

  CancelBooking
    ownership + policy gate
    -> mark CANCELLED + refund exactly CreditsDebited (one transaction)
    -> ad-hoc session cancelled with its sole booking
    -> shared session: seat freed, waitlist promoter invoked

CONCURRENCY:
  A per-session lock serializes capacity-check-then-insert; the ledger's
  per-package lock serializes balance mutation. Lock order is always
  session before package before store transaction, so concurrent create,
  cancel, and promote calls cannot deadlock. Lock waits are bounded and
  surface the retryable ErrLockTimeout.

FAILURE SEMANTICS:
  Every rejection is one of the typed error kinds in the booking package;
  nothing is silently retried, and infra failures stay distinguishable
  from business rejections.
*/
package engine

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/events"
	"github.com/warp/booking-engine/ledger"
)

// Engine is the booking lifecycle manager.
type Engine struct {
	store  booking.TxStore
	ledger *ledger.Ledger
	events events.Publisher
	policy booking.CancellationPolicy

	claimWindow  time.Duration
	sessionLocks *booking.KeyMutex
	log          zerolog.Logger
	now          func() time.Time
}

// Config carries the engine's tunables.
type Config struct {
	Policy      booking.CancellationPolicy
	ClaimWindow time.Duration // waitlist offer validity
	LockWait    time.Duration // cap on lock acquisition
	Logger      zerolog.Logger
}

// New wires an engine over a store, ledger, and event publisher.
func New(store booking.TxStore, led *ledger.Ledger, pub events.Publisher, cfg Config) *Engine {
	if cfg.ClaimWindow <= 0 {
		cfg.ClaimWindow = 24 * time.Hour
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 5 * time.Second
	}
	return &Engine{
		store:        store,
		ledger:       led,
		events:       pub,
		policy:       cfg.Policy,
		claimWindow:  cfg.ClaimWindow,
		sessionLocks: booking.NewKeyMutex(cfg.LockWait),
		log:          cfg.Logger,
		now:          time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// =============================================================================
// CREATE BOOKING
// =============================================================================

// AdHocSlot describes a one-off private slot to create on demand.
type AdHocSlot struct {
	StartAt        time.Time
	EndAt          time.Time
	InstructorID   booking.InstructorID
	InstructorTier int
}

// CreateBookingRequest selects either an existing session (SessionID) or
// an ad-hoc slot, and optionally the credit that pays for it. Without a
// package reference the booking is comped at cost 1 and the ledger is
// never touched.
type CreateBookingRequest struct {
	CustomerID         booking.CustomerID
	SessionID          *booking.SessionID
	AdHoc              *AdHocSlot
	PackageID          *booking.PackageID
	AllowanceID        *booking.AllowanceID
	CrossTierConfirmed bool
}

func (r *CreateBookingRequest) validate() error {
	if r.CustomerID == "" {
		return &booking.InvalidRequestError{Reason: "customer id is required"}
	}
	if (r.SessionID == nil) == (r.AdHoc == nil) {
		return &booking.InvalidRequestError{Reason: "supply exactly one of session id or ad-hoc slot"}
	}
	if r.AllowanceID != nil && r.PackageID == nil {
		return &booking.InvalidRequestError{Reason: "allowance selector requires a package reference"}
	}
	return nil
}

// CreateBooking books the customer onto the session, debiting the chosen
// credit package. Steps 2-4 (tier, cost, capacity, debit, insert) run in
// one store transaction under the session and package locks.
func (e *Engine) CreateBooking(ctx context.Context, req CreateBookingRequest) (*booking.Booking, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	spec := bookingSpec{
		customerID:         req.CustomerID,
		packageID:          req.PackageID,
		allowanceID:        req.AllowanceID,
		crossTierConfirmed: req.CrossTierConfirmed,
	}
	if req.AdHoc != nil {
		adHoc := &booking.Session{
			ID:             booking.NewSessionID(),
			Kind:           booking.KindPrivate,
			StartAt:        req.AdHoc.StartAt,
			EndAt:          req.AdHoc.EndAt,
			Capacity:       1,
			Status:         booking.SessionScheduled,
			InstructorID:   req.AdHoc.InstructorID,
			InstructorTier: req.AdHoc.InstructorTier,
			AdHoc:          true,
			CreatedAt:      e.now(),
		}
		if err := adHoc.Validate(); err != nil {
			return nil, err
		}
		spec.sessionID = adHoc.ID
		spec.adHoc = adHoc
	} else {
		spec.sessionID = *req.SessionID
	}

	var b *booking.Booking
	err := e.withSessionTx(ctx, spec.sessionID, spec.packageID, func(tx booking.Store) error {
		var err error
		b, err = e.insertBookingTx(ctx, tx, spec)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("booking", string(b.ID)).
		Str("session", string(b.SessionID)).
		Str("customer", string(b.CustomerID)).
		Int("credits", b.CreditsDebited).
		Msg("booking confirmed")
	e.publish(ctx, confirmedEvent(b))
	return b, nil
}

// bookingSpec is the transaction-scoped input to insertBookingTx, shared
// by CreateBooking, RescheduleBooking, and waitlist promotion.
type bookingSpec struct {
	customerID         booking.CustomerID
	sessionID          booking.SessionID
	adHoc              *booking.Session
	packageID          *booking.PackageID
	allowanceID        *booking.AllowanceID
	crossTierConfirmed bool
	rescheduleCount    int
}

// insertBookingTx resolves the session, validates tier and cost, checks
// capacity, and debits and inserts, all against the transactional view.
// Callers hold the session lock (and the package lock when a package is
// referenced).
func (e *Engine) insertBookingTx(ctx context.Context, tx booking.Store, spec bookingSpec) (*booking.Booking, error) {
	// Step 1: resolve the session.
	var session *booking.Session
	if spec.adHoc != nil {
		if err := e.ensureInstructorFree(ctx, tx, spec.adHoc); err != nil {
			return nil, err
		}
		if err := tx.PutSession(ctx, spec.adHoc); err != nil {
			return nil, err
		}
		session = spec.adHoc
	} else {
		var err error
		session, err = tx.GetSession(ctx, spec.sessionID)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return nil, &booking.NotFoundError{Kind: "session", ID: string(spec.sessionID)}
		}
		if session.Status != booking.SessionScheduled {
			return nil, &booking.InvalidRequestError{Reason: "session is not open for booking"}
		}
	}

	existing, err := tx.ConfirmedBooking(ctx, session.ID, spec.customerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, booking.ErrAlreadyBooked
	}

	// Step 2: tier compatibility, cost, and package viability.
	cost := 1
	var allowanceRef *booking.AllowanceID
	if spec.packageID != nil {
		pkg, err := tx.GetPackage(ctx, *spec.packageID)
		if err != nil {
			return nil, err
		}
		if pkg == nil {
			return nil, &booking.NotFoundError{Kind: "package", ID: string(*spec.packageID)}
		}
		if pkg.CustomerID != spec.customerID {
			return nil, booking.ErrForbidden
		}

		allowance, err := booking.SelectAllowance(pkg, session, spec.allowanceID)
		if err != nil {
			return nil, err
		}
		if booking.IsCrossTier(allowance, session) && !spec.crossTierConfirmed {
			return nil, &booking.CrossTierError{Warning: booking.CrossTierWarning(allowance, session)}
		}

		cost = booking.CreditsRequired(session.DurationMinutes(), allowance.UnitMinutes)
		if pkg.ExpiredAt(e.now()) {
			return nil, booking.ErrPackageExpired
		}
		if pkg.Remaining < cost {
			return nil, &booking.InsufficientCreditsError{
				PackageID: pkg.ID,
				Required:  cost,
				Available: pkg.Remaining,
			}
		}

		id := allowance.ID
		allowanceRef = &id
	}

	// Step 3: capacity, inside the same transaction as the insert.
	if err := e.ensureOpenSeat(ctx, tx, session); err != nil {
		return nil, err
	}

	// Step 4: debit and insert together.
	b := &booking.Booking{
		ID:              booking.NewBookingID(),
		SessionID:       session.ID,
		CustomerID:      spec.customerID,
		PackageID:       spec.packageID,
		AllowanceID:     allowanceRef,
		CreditsDebited:  cost,
		Status:          booking.BookingConfirmed,
		RescheduleCount: spec.rescheduleCount,
		CreatedAt:       e.now(),
	}
	if spec.packageID != nil {
		if _, err := e.ledger.DebitTx(ctx, tx, *spec.packageID, cost, b.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.PutBooking(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ensureInstructorFree rejects ad-hoc slots overlapping another scheduled
// session of the same instructor. The original system let these through
// on one code path; here the conflict is always a hard failure.
func (e *Engine) ensureInstructorFree(ctx context.Context, tx booking.Store, s *booking.Session) error {
	others, err := tx.InstructorSessionsInRange(ctx, s.InstructorID, s.StartAt, s.EndAt)
	if err != nil {
		return err
	}
	for _, other := range others {
		if other.ID != s.ID && other.Status == booking.SessionScheduled && other.Overlaps(s.StartAt, s.EndAt) {
			return booking.ErrInstructorBusy
		}
	}
	return nil
}

// =============================================================================
// CANCEL BOOKING
// =============================================================================

// CancelResult reports what the cancellation did.
type CancelResult struct {
	BookingID         booking.BookingID
	Refunded          bool
	RefundedPackageID *booking.PackageID
	NewBalance        int
}

// CancelBooking transitions the booking to CANCELLED, refunds exactly the
// debited credits when the policy grants it, cancels a sole-use ad-hoc
// session, and offers a freed shared seat to the waitlist.
//
// asOperator bypasses the ownership check only; the cancellation policy
// applies to everyone.
func (e *Engine) CancelBooking(ctx context.Context, id booking.BookingID, actorID string, asOperator bool, reason string) (CancelResult, error) {
	b, err := e.store.GetBooking(ctx, id)
	if err != nil {
		return CancelResult{}, err
	}
	if b == nil {
		return CancelResult{}, &booking.NotFoundError{Kind: "booking", ID: string(id)}
	}
	if !asOperator && string(b.CustomerID) != actorID {
		return CancelResult{}, booking.ErrForbidden
	}

	session, err := e.store.GetSession(ctx, b.SessionID)
	if err != nil {
		return CancelResult{}, err
	}
	if session == nil {
		return CancelResult{}, &booking.NotFoundError{Kind: "session", ID: string(b.SessionID)}
	}

	if err := e.policy.CheckCancel(e.now(), session.StartAt); err != nil {
		return CancelResult{}, err
	}

	result := CancelResult{BookingID: b.ID}
	refund := e.policy.RefundOnCancel && b.PackageID != nil && b.CreditsDebited > 0

	var lockPkg *booking.PackageID
	if refund {
		lockPkg = b.PackageID
	}
	err = e.withSessionTx(ctx, b.SessionID, lockPkg, func(tx booking.Store) error {
		current, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if current == nil || current.Status != booking.BookingConfirmed {
			return &booking.InvalidRequestError{Reason: "booking is not confirmed"}
		}

		now := e.now()
		current.Status = booking.BookingCancelled
		current.CancelledAt = &now
		current.CancelReason = reason
		current.CancelledBy = actorID
		current.CancelledBySelf = actorID == string(current.CustomerID)
		if err := tx.UpdateBooking(ctx, current); err != nil {
			return err
		}

		if refund {
			balance, err := e.ledger.CreditTx(ctx, tx, *current.PackageID, current.CreditsDebited, current.ID)
			if err != nil {
				return err
			}
			result.Refunded = true
			result.RefundedPackageID = current.PackageID
			result.NewBalance = balance
		}

		// A one-off private session cannot be reused once its sole
		// booking is gone.
		if session.AdHoc {
			session.Status = booking.SessionCancelled
			return tx.UpdateSession(ctx, session)
		}
		return nil
	})
	if err != nil {
		return CancelResult{}, err
	}

	e.log.Info().
		Str("booking", string(b.ID)).
		Str("actor", actorID).
		Bool("refunded", result.Refunded).
		Msg("booking cancelled")
	e.publish(ctx, cancelledEvent(b, result, reason))

	if !session.AdHoc {
		e.publish(ctx, events.SeatFreed_v1{Header: events.NewHeader(), SessionID: string(session.ID)})
		if _, err := e.OnSeatFreed(ctx, session.ID); err != nil {
			// The cancellation already committed; a failed offer is
			// logged and retried on the next freed seat.
			e.log.Warn().Err(err).Str("session", string(session.ID)).Msg("waitlist offer failed")
		}
	}
	return result, nil
}

// =============================================================================
// RESCHEDULE
// =============================================================================

// RescheduleBooking atomically moves a booking to another session: the old
// booking is cancelled with its credits refunded to the same package, and
// a new booking is created against the target session carrying an
// incremented reschedule counter. The policy's notice window and
// reschedule cap both apply.
func (e *Engine) RescheduleBooking(ctx context.Context, id booking.BookingID, actorID string, asOperator bool, newSessionID booking.SessionID) (*booking.Booking, error) {
	old, err := e.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, &booking.NotFoundError{Kind: "booking", ID: string(id)}
	}
	if !asOperator && string(old.CustomerID) != actorID {
		return nil, booking.ErrForbidden
	}
	if newSessionID == old.SessionID {
		return nil, &booking.InvalidRequestError{Reason: "booking is already on that session"}
	}

	oldSession, err := e.store.GetSession(ctx, old.SessionID)
	if err != nil {
		return nil, err
	}
	if oldSession == nil {
		return nil, &booking.NotFoundError{Kind: "session", ID: string(old.SessionID)}
	}
	if err := e.policy.CheckCancel(e.now(), oldSession.StartAt); err != nil {
		return nil, err
	}
	if err := e.policy.CheckReschedule(old.RescheduleCount); err != nil {
		return nil, err
	}

	// Lock both sessions in sorted order, then the package.
	keys := []string{string(old.SessionID), string(newSessionID)}
	sort.Strings(keys)
	for _, k := range keys {
		if err := e.sessionLocks.Lock(ctx, k); err != nil {
			return nil, err
		}
		defer e.sessionLocks.Unlock(k)
	}

	var moved *booking.Booking
	run := func() error {
		return e.store.WithTx(ctx, func(tx booking.Store) error {
			current, err := tx.GetBooking(ctx, id)
			if err != nil {
				return err
			}
			if current == nil || current.Status != booking.BookingConfirmed {
				return &booking.InvalidRequestError{Reason: "booking is not confirmed"}
			}

			now := e.now()
			current.Status = booking.BookingCancelled
			current.CancelledAt = &now
			current.CancelReason = "rescheduled"
			current.CancelledBy = actorID
			current.CancelledBySelf = actorID == string(current.CustomerID)
			if err := tx.UpdateBooking(ctx, current); err != nil {
				return err
			}
			if current.PackageID != nil && current.CreditsDebited > 0 {
				if _, err := e.ledger.CreditTx(ctx, tx, *current.PackageID, current.CreditsDebited, current.ID); err != nil {
					return err
				}
			}
			if oldSession.AdHoc {
				oldSession.Status = booking.SessionCancelled
				if err := tx.UpdateSession(ctx, oldSession); err != nil {
					return err
				}
			}

			moved, err = e.insertBookingTx(ctx, tx, bookingSpec{
				customerID:         current.CustomerID,
				sessionID:          newSessionID,
				packageID:          current.PackageID,
				allowanceID:        current.AllowanceID,
				crossTierConfirmed: true, // the move was explicitly requested
				rescheduleCount:    current.RescheduleCount + 1,
			})
			return err
		})
	}
	if old.PackageID != nil {
		err = e.ledger.WithPackage(ctx, *old.PackageID, run)
	} else {
		err = run()
	}
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("booking", string(old.ID)).
		Str("moved_to", string(moved.ID)).
		Int("reschedules", moved.RescheduleCount).
		Msg("booking rescheduled")
	e.publish(ctx, cancelledEvent(old, CancelResult{}, "rescheduled"))
	e.publish(ctx, confirmedEvent(moved))

	if !oldSession.AdHoc {
		e.publish(ctx, events.SeatFreed_v1{Header: events.NewHeader(), SessionID: string(oldSession.ID)})
		if _, err := e.OnSeatFreed(ctx, oldSession.ID); err != nil {
			e.log.Warn().Err(err).Str("session", string(oldSession.ID)).Msg("waitlist offer failed")
		}
	}
	return moved, nil
}

// =============================================================================
// INTERNAL PLUMBING
// =============================================================================

// withSessionTx runs fn in a store transaction under the session lock,
// and under the package lock too when a package is referenced. Lock order
// is fixed: session, then package, then transaction.
func (e *Engine) withSessionTx(ctx context.Context, sessionID booking.SessionID, pkgID *booking.PackageID, fn func(booking.Store) error) error {
	if err := e.sessionLocks.Lock(ctx, string(sessionID)); err != nil {
		return err
	}
	defer e.sessionLocks.Unlock(string(sessionID))

	if pkgID != nil {
		return e.ledger.WithPackage(ctx, *pkgID, func() error {
			return e.store.WithTx(ctx, fn)
		})
	}
	return e.store.WithTx(ctx, fn)
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(ctx, ev); err != nil {
		e.log.Warn().Err(err).Str("event", ev.EventName()).Msg("event publish failed")
	}
}

func confirmedEvent(b *booking.Booking) events.BookingConfirmed_v1 {
	ev := events.BookingConfirmed_v1{
		Header:         events.NewHeader(),
		BookingID:      string(b.ID),
		SessionID:      string(b.SessionID),
		CustomerID:     string(b.CustomerID),
		CreditsDebited: b.CreditsDebited,
	}
	if b.PackageID != nil {
		ev.PackageID = string(*b.PackageID)
	}
	return ev
}

func cancelledEvent(b *booking.Booking, result CancelResult, reason string) events.BookingCancelled_v1 {
	ev := events.BookingCancelled_v1{
		Header:     events.NewHeader(),
		BookingID:  string(b.ID),
		SessionID:  string(b.SessionID),
		CustomerID: string(b.CustomerID),
		Refunded:   result.Refunded,
		Reason:     reason,
	}
	if result.RefundedPackageID != nil {
		ev.PackageID = string(*result.RefundedPackageID)
	}
	return ev
}
