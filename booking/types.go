/*
Package booking contains the domain model and pure decision logic for the
booking & credit-tier consumption engine.

PURPOSE:
  This package defines the entities the engine operates on (sessions,
  credit packages, allowances, bookings, waitlist entries) and the pure
  functions that decide bookability: which credit can pay for which
  session (tier.go), how many credit units a session consumes (cost.go),
  and whether a cancellation is permitted (policy.go).

KEY CONCEPTS IN THIS FILE (types.go):
  - Session: a bookable time slot with capacity and an owning instructor
  - CreditPackage: a purchased bundle of allowances with a running balance
  - Allowance: one usage right inside a package (kind + tier + time unit)
  - Booking: a confirmed or cancelled enrollment linking the three
  - WaitlistEntry: a FIFO queue slot on a full session

DESIGN PRINCIPLES:
  1. Relations are id-foreign-keys, never embedded object graphs
  2. Remaining balance is the only concurrently-mutable field, and it is
     owned exclusively by the ledger package
  3. CreditsDebited on a booking is immutable once written
  4. Type-safe identifiers prevent mixing session/package/booking ids

SEE ALSO:
  - tier.go: credit-to-session compatibility
  - cost.go: duration-based credit cost
  - store.go: persistence interfaces
*/
package booking

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	SessionID    string
	CustomerID   string
	InstructorID string
	PackageID    string
	AllowanceID  string
	BookingID    string
	WaitlistID   string
)

// NewSessionID mints a fresh session identifier.
func NewSessionID() SessionID { return SessionID(uuid.NewString()) }

// NewBookingID mints a fresh booking identifier.
func NewBookingID() BookingID { return BookingID(uuid.NewString()) }

// NewWaitlistID mints a fresh waitlist entry identifier.
func NewWaitlistID() WaitlistID { return WaitlistID(uuid.NewString()) }

// =============================================================================
// SESSION - A bookable time slot
// =============================================================================

// ServiceKind classifies what a session is: a one-on-one private lesson,
// a shared group class, or a step inside a course.
type ServiceKind string

const (
	KindPrivate    ServiceKind = "PRIVATE"
	KindGroup      ServiceKind = "GROUP"
	KindCourseStep ServiceKind = "COURSE_STEP"
)

type SessionStatus string

const (
	SessionScheduled SessionStatus = "SCHEDULED"
	SessionCancelled SessionStatus = "CANCELLED"
	SessionCompleted SessionStatus = "COMPLETED"
)

// Session is a bookable time slot.
//
// INVARIANTS: EndAt > StartAt, Capacity >= 1.
//
// AdHoc sessions are created on demand for one-off private bookings and are
// cancelled together with their sole booking. Shared sessions (group,
// course) are pre-created and stay SCHEDULED when an occupant cancels.
type Session struct {
	ID             SessionID
	Kind           ServiceKind
	StartAt        time.Time
	EndAt          time.Time
	Capacity       int
	Status         SessionStatus
	InstructorID   InstructorID
	InstructorTier int
	AdHoc          bool
	CreatedAt      time.Time
}

// DurationMinutes returns the scheduled length of the session.
func (s *Session) DurationMinutes() int {
	return int(s.EndAt.Sub(s.StartAt) / time.Minute)
}

// Validate checks the session invariants.
func (s *Session) Validate() error {
	if !s.EndAt.After(s.StartAt) {
		return &InvalidRequestError{Reason: "session end must be after start"}
	}
	if s.Capacity < 1 {
		return &InvalidRequestError{Reason: "session capacity must be at least 1"}
	}
	return nil
}

// Overlaps reports whether two time ranges intersect.
// Used for the instructor double-booking guard on ad-hoc creation.
func (s *Session) Overlaps(start, end time.Time) bool {
	return s.StartAt.Before(end) && start.Before(s.EndAt)
}

// =============================================================================
// CREDIT PACKAGE - A purchased bundle of usage rights
// =============================================================================

// Allowance is a single usage right inside a credit package: the service
// kind it authorizes, the highest instructor tier it covers, the length of
// one credit unit, and how many units were originally granted.
type Allowance struct {
	ID          AllowanceID
	Kind        ServiceKind
	Tier        int
	UnitMinutes int
	Granted     int
}

// CreditPackage is a purchased bundle of allowances with a running balance.
//
// Remaining is the one concurrently-mutable field in the whole model. It is
// read and written only by the ledger package under per-package exclusion.
// Packages are never hard-deleted: a drained package is soft-retired and
// kept for audit.
type CreditPackage struct {
	ID          PackageID
	CustomerID  CustomerID
	Allowances  []Allowance
	Remaining   int
	PurchasedAt time.Time
	ExpiresAt   *time.Time
	Retired     bool
}

// TotalGranted sums the originally granted units across allowances.
// Remaining must always stay within [0, TotalGranted].
func (p *CreditPackage) TotalGranted() int {
	total := 0
	for _, a := range p.Allowances {
		total += a.Granted
	}
	return total
}

// ExpiredAt reports whether the package rejects new debits at the given
// time. Refunds are never expiry-gated: the credit was already paid for.
func (p *CreditPackage) ExpiredAt(now time.Time) bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}

// Allowance returns the allowance with the given id, if present.
func (p *CreditPackage) Allowance(id AllowanceID) (Allowance, bool) {
	for _, a := range p.Allowances {
		if a.ID == id {
			return a, true
		}
	}
	return Allowance{}, false
}

// =============================================================================
// BOOKING - A confirmed enrollment
// =============================================================================

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// Booking links a customer to a session and to the credit that paid for it.
//
// State machine: (none) -> CONFIRMED -> CANCELLED, terminal. A cancelled
// booking is never reconfirmed; a new booking is created instead.
//
// PackageID is nil for comped (free/trial) bookings. CreditsDebited is set
// once at creation from the cost calculator and never changes; cancellation
// refunds exactly this amount.
type Booking struct {
	ID              BookingID
	SessionID       SessionID
	CustomerID      CustomerID
	PackageID       *PackageID
	AllowanceID     *AllowanceID
	CreditsDebited  int
	Status          BookingStatus
	RescheduleCount int
	CreatedAt       time.Time

	// Cancellation metadata, zero until the transition happens.
	CancelledAt     *time.Time
	CancelReason    string
	CancelledBy     string
	CancelledBySelf bool
}

// =============================================================================
// LEDGER ENTRY - Provenance for every balance change
// =============================================================================

type EntryKind string

const (
	EntryGrant  EntryKind = "grant"
	EntryDebit  EntryKind = "debit"
	EntryRefund EntryKind = "refund"
)

// LedgerEntry records a single change to a package balance: what happened,
// by how much, which booking caused it, and the balance after the change.
// Entries are append-only; corrections happen through new entries.
type LedgerEntry struct {
	ID        string
	PackageID PackageID
	Kind      EntryKind
	Delta     int
	Balance   int
	BookingID BookingID
	Reason    string
	CreatedAt time.Time
}

// =============================================================================
// WAITLIST ENTRY - A queued claim on a full session
// =============================================================================

// WaitlistEntry is one FIFO queue slot on a full session. Position is
// strictly increasing and unique per session. An entry is deleted, not
// marked, once promoted or once its claim window lapses during a re-offer.
type WaitlistEntry struct {
	ID         WaitlistID
	SessionID  SessionID
	CustomerID CustomerID
	Position   int
	CreatedAt  time.Time

	// Set when a freed seat is offered to this entry.
	NotifiedAt     *time.Time
	ClaimExpiresAt *time.Time
}

// OfferExpired reports whether a previously extended claim has lapsed.
// An expired offer counts as "not notified" when computing the next
// candidate.
func (w *WaitlistEntry) OfferExpired(now time.Time) bool {
	return w.NotifiedAt != nil && w.ClaimExpiresAt != nil && w.ClaimExpiresAt.Before(now)
}
