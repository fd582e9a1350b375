/*
Package events defines the domain events the engine emits and the
publisher boundary used to emit them.

PURPOSE:
  Booking confirmations, cancellations, freed seats, and waitlist offers
  are consumed by external collaborators (notifications, calendar sync).
  The engine only publishes; it never waits on consumers, and a publish
  failure never rolls back a committed booking.

EVENTS:
  BookingConfirmed_v1, BookingCancelled_v1, SeatFreed_v1,
  WaitlistOfferExtended_v1. Payloads are JSON; the version suffix keeps
  consumers honest when fields evolve.
*/
package events

import (
	"time"

	"github.com/google/uuid"
)

// Header carries the identity and emission time common to all events.
type Header struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewHeader mints a header for an event emitted now.
func NewHeader() Header {
	return Header{ID: uuid.NewString(), OccurredAt: time.Now().UTC()}
}

// Event is implemented by every published payload.
type Event interface {
	// EventName doubles as the topic the event is published on.
	EventName() string
}

// =============================================================================
// EVENT PAYLOADS
// =============================================================================

type BookingConfirmed_v1 struct {
	Header         Header `json:"header"`
	BookingID      string `json:"booking_id"`
	SessionID      string `json:"session_id"`
	CustomerID     string `json:"customer_id"`
	PackageID      string `json:"package_id,omitempty"`
	CreditsDebited int    `json:"credits_debited"`
}

func (BookingConfirmed_v1) EventName() string { return "booking.confirmed.v1" }

type BookingCancelled_v1 struct {
	Header     Header `json:"header"`
	BookingID  string `json:"booking_id"`
	SessionID  string `json:"session_id"`
	CustomerID string `json:"customer_id"`
	Refunded   bool   `json:"refunded"`
	PackageID  string `json:"package_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func (BookingCancelled_v1) EventName() string { return "booking.cancelled.v1" }

type SeatFreed_v1 struct {
	Header    Header `json:"header"`
	SessionID string `json:"session_id"`
}

func (SeatFreed_v1) EventName() string { return "session.seat_freed.v1" }

type WaitlistOfferExtended_v1 struct {
	Header         Header    `json:"header"`
	EntryID        string    `json:"entry_id"`
	SessionID      string    `json:"session_id"`
	CustomerID     string    `json:"customer_id"`
	ClaimExpiresAt time.Time `json:"claim_expires_at"`
}

func (WaitlistOfferExtended_v1) EventName() string { return "waitlist.offer_extended.v1" }
