/*
store.go - Persistence interfaces

PURPOSE:
  Defines the boundary between the engine and storage. Implementations:
  store/memory (tests/dev) and store/sqlite (production).

UNIT OF WORK:
  TxStore.WithTx runs a function against a transactional view of the
  store. The ledger debit and the booking insert that caused it always run
  inside one WithTx - both commit or both roll back. Capacity checks run
  inside the same transaction as the insert they guard.

  Explicitly threading the transactional Store through ledger and engine
  operations replaces any ambient transaction state: a function either
  receives the tx view or it isn't part of the transaction.
*/
package booking

import (
	"context"
	"time"
)

// =============================================================================
// PER-AGGREGATE INTERFACES
// =============================================================================

// SessionStore persists sessions.
type SessionStore interface {
	PutSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id SessionID) (*Session, error)
	UpdateSession(ctx context.Context, s *Session) error

	// InstructorSessionsInRange returns the instructor's SCHEDULED
	// sessions overlapping [from, to). Used by the double-booking guard.
	InstructorSessionsInRange(ctx context.Context, id InstructorID, from, to time.Time) ([]*Session, error)
}

// PackageStore persists credit packages. Packages are created by the
// external purchase collaborator and never hard-deleted; the only field
// the engine mutates is the balance, through UpdateBalance.
type PackageStore interface {
	PutPackage(ctx context.Context, p *CreditPackage) error
	GetPackage(ctx context.Context, id PackageID) (*CreditPackage, error)
	PackagesByCustomer(ctx context.Context, id CustomerID) ([]*CreditPackage, error)
	UpdateBalance(ctx context.Context, id PackageID, remaining int, retired bool) error
}

// BookingStore persists bookings.
type BookingStore interface {
	PutBooking(ctx context.Context, b *Booking) error
	GetBooking(ctx context.Context, id BookingID) (*Booking, error)
	UpdateBooking(ctx context.Context, b *Booking) error

	// ConfirmedCount returns the number of CONFIRMED bookings on the
	// session. Only meaningful inside the transaction that also inserts.
	ConfirmedCount(ctx context.Context, id SessionID) (int, error)

	// ConfirmedBooking returns the customer's CONFIRMED booking on the
	// session, or nil. Enforces the one-per-(session, customer) invariant.
	ConfirmedBooking(ctx context.Context, sessionID SessionID, customerID CustomerID) (*Booking, error)
}

// EntryStore persists ledger entries. Append-only: no update, no delete.
type EntryStore interface {
	AppendEntry(ctx context.Context, e LedgerEntry) error
	EntriesByPackage(ctx context.Context, id PackageID) ([]LedgerEntry, error)
}

// WaitlistStore persists waitlist entries.
type WaitlistStore interface {
	PutWaitlistEntry(ctx context.Context, w *WaitlistEntry) error
	GetWaitlistEntry(ctx context.Context, id WaitlistID) (*WaitlistEntry, error)
	UpdateWaitlistEntry(ctx context.Context, w *WaitlistEntry) error
	DeleteWaitlistEntry(ctx context.Context, id WaitlistID) error

	// WaitlistBySession returns the session's entries ordered by position.
	WaitlistBySession(ctx context.Context, id SessionID) ([]*WaitlistEntry, error)

	// NextWaitlistPosition returns the next strictly-increasing position
	// for the session. Only meaningful inside the transaction that also
	// inserts the entry, so two concurrent joins cannot share a position.
	NextWaitlistPosition(ctx context.Context, id SessionID) (int, error)
}

// =============================================================================
// COMBINED STORE + UNIT OF WORK
// =============================================================================

// Store is the full persistence surface the engine works against.
type Store interface {
	SessionStore
	PackageStore
	BookingStore
	EntryStore
	WaitlistStore
}

// TxStore adds the unit-of-work boundary.
type TxStore interface {
	Store

	// WithTx executes fn against a transactional view. If fn returns an
	// error the transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
