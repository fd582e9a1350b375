/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and in the engine, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - booking/legacy.go: The legacy allowance format CreatePackageRequest accepts
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/engine"
)

// =============================================================================
// SESSIONS
// =============================================================================

// SessionDTO represents a session in API responses.
type SessionDTO struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	StartAt        string `json:"start_at"`
	EndAt          string `json:"end_at"`
	Capacity       int    `json:"capacity"`
	Status         string `json:"status"`
	InstructorID   string `json:"instructor_id"`
	InstructorTier int    `json:"instructor_tier"`
	AdHoc          bool   `json:"ad_hoc"`
	OpenSeat       *bool  `json:"open_seat,omitempty"`
}

// CreateSessionRequest creates a pre-scheduled (shared) session.
type CreateSessionRequest struct {
	Kind           string `json:"kind"`
	StartAt        string `json:"start_at"`
	EndAt          string `json:"end_at"`
	Capacity       int    `json:"capacity"`
	InstructorID   string `json:"instructor_id"`
	InstructorTier int    `json:"instructor_tier"`
}

// =============================================================================
// PACKAGES
// =============================================================================

// AllowanceDTO is one usage right inside a package.
type AllowanceDTO struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Tier        int    `json:"tier"`
	UnitMinutes int    `json:"unit_minutes"`
	Granted     int    `json:"granted"`
}

// PackageDTO represents a credit package in API responses.
type PackageDTO struct {
	ID          string         `json:"id"`
	CustomerID  string         `json:"customer_id"`
	Allowances  []AllowanceDTO `json:"allowances"`
	Remaining   int            `json:"remaining"`
	Granted     int            `json:"granted"`
	PurchasedAt string         `json:"purchased_at"`
	ExpiresAt   *string        `json:"expires_at,omitempty"`
	Retired     bool           `json:"retired"`
}

// CreatePackageRequest registers a purchased package. Allowances may come
// in the current shape or as a raw legacy document (older storefront
// exports); exactly one of the two must be present.
type CreatePackageRequest struct {
	ID               string          `json:"id,omitempty"`
	CustomerID       string          `json:"customer_id"`
	Allowances       []AllowanceDTO  `json:"allowances,omitempty"`
	LegacyAllowances json.RawMessage `json:"legacy_allowances,omitempty"`
	ExpiresAt        *string         `json:"expires_at,omitempty"`
}

// LedgerEntryDTO is one balance change in the package's audit trail.
type LedgerEntryDTO struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Delta     int    `json:"delta"`
	Balance   int    `json:"balance"`
	BookingID string `json:"booking_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
}

// =============================================================================
// BOOKINGS
// =============================================================================

// AdHocSlotDTO describes a one-off private slot to create with the booking.
type AdHocSlotDTO struct {
	StartAt        string `json:"start_at"`
	EndAt          string `json:"end_at"`
	InstructorID   string `json:"instructor_id"`
	InstructorTier int    `json:"instructor_tier"`
}

// CreateBookingRequest books a customer onto a session. Exactly one of
// session_id or ad_hoc must be present. Without package_id the booking is
// comped.
type CreateBookingRequest struct {
	CustomerID         string        `json:"customer_id"`
	SessionID          string        `json:"session_id,omitempty"`
	AdHoc              *AdHocSlotDTO `json:"ad_hoc,omitempty"`
	PackageID          string        `json:"package_id,omitempty"`
	AllowanceID        string        `json:"allowance_id,omitempty"`
	CrossTierConfirmed bool          `json:"cross_tier_confirmed,omitempty"`
}

// BookingDTO represents a booking in API responses.
type BookingDTO struct {
	ID              string  `json:"id"`
	SessionID       string  `json:"session_id"`
	CustomerID      string  `json:"customer_id"`
	PackageID       *string `json:"package_id,omitempty"`
	AllowanceID     *string `json:"allowance_id,omitempty"`
	CreditsDebited  int     `json:"credits_debited"`
	Status          string  `json:"status"`
	RescheduleCount int     `json:"reschedule_count"`
	CreatedAt       string  `json:"created_at"`
	CancelledAt     *string `json:"cancelled_at,omitempty"`
	CancelReason    string  `json:"cancel_reason,omitempty"`
}

// CancelBookingRequest cancels a booking.
type CancelBookingRequest struct {
	ActorID    string `json:"actor_id"`
	AsOperator bool   `json:"as_operator,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// CancelResultDTO reports the outcome of a cancellation.
type CancelResultDTO struct {
	BookingID         string  `json:"booking_id"`
	Refunded          bool    `json:"refunded"`
	RefundedPackageID *string `json:"refunded_package_id,omitempty"`
	NewBalance        int     `json:"new_balance,omitempty"`
}

// RescheduleBookingRequest moves a booking to another session.
type RescheduleBookingRequest struct {
	ActorID      string `json:"actor_id"`
	AsOperator   bool   `json:"as_operator,omitempty"`
	NewSessionID string `json:"new_session_id"`
}

// =============================================================================
// WAITLIST
// =============================================================================

// JoinWaitlistRequest queues a customer on a full session.
type JoinWaitlistRequest struct {
	CustomerID string `json:"customer_id"`
}

// LeaveWaitlistRequest removes a waitlist entry.
type LeaveWaitlistRequest struct {
	ActorID    string `json:"actor_id"`
	AsOperator bool   `json:"as_operator,omitempty"`
}

// WaitlistEntryDTO represents a waitlist entry in API responses.
type WaitlistEntryDTO struct {
	ID             string  `json:"id"`
	SessionID      string  `json:"session_id"`
	CustomerID     string  `json:"customer_id"`
	Position       int     `json:"position"`
	CreatedAt      string  `json:"created_at"`
	NotifiedAt     *string `json:"notified_at,omitempty"`
	ClaimExpiresAt *string `json:"claim_expires_at,omitempty"`
}

// PromoteWaitlistRequest converts a waitlist entry into a booking.
type PromoteWaitlistRequest struct {
	OperatorID         string `json:"operator_id"`
	PackageID          string `json:"package_id,omitempty"`
	AllowanceID        string `json:"allowance_id,omitempty"`
	CrossTierConfirmed bool   `json:"cross_tier_confirmed,omitempty"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toSessionDTO(s *booking.Session) SessionDTO {
	return SessionDTO{
		ID:             string(s.ID),
		Kind:           string(s.Kind),
		StartAt:        s.StartAt.UTC().Format(time.RFC3339),
		EndAt:          s.EndAt.UTC().Format(time.RFC3339),
		Capacity:       s.Capacity,
		Status:         string(s.Status),
		InstructorID:   string(s.InstructorID),
		InstructorTier: s.InstructorTier,
		AdHoc:          s.AdHoc,
	}
}

func toPackageDTO(p *booking.CreditPackage) PackageDTO {
	dto := PackageDTO{
		ID:          string(p.ID),
		CustomerID:  string(p.CustomerID),
		Allowances:  make([]AllowanceDTO, 0, len(p.Allowances)),
		Remaining:   p.Remaining,
		Granted:     p.TotalGranted(),
		PurchasedAt: p.PurchasedAt.UTC().Format(time.RFC3339),
		Retired:     p.Retired,
	}
	for _, a := range p.Allowances {
		dto.Allowances = append(dto.Allowances, AllowanceDTO{
			ID:          string(a.ID),
			Kind:        string(a.Kind),
			Tier:        a.Tier,
			UnitMinutes: a.UnitMinutes,
			Granted:     a.Granted,
		})
	}
	if p.ExpiresAt != nil {
		dto.ExpiresAt = timePtrString(p.ExpiresAt)
	}
	return dto
}

func toBookingDTO(b *booking.Booking) BookingDTO {
	dto := BookingDTO{
		ID:              string(b.ID),
		SessionID:       string(b.SessionID),
		CustomerID:      string(b.CustomerID),
		CreditsDebited:  b.CreditsDebited,
		Status:          string(b.Status),
		RescheduleCount: b.RescheduleCount,
		CreatedAt:       b.CreatedAt.UTC().Format(time.RFC3339),
		CancelledAt:     timePtrString(b.CancelledAt),
		CancelReason:    b.CancelReason,
	}
	if b.PackageID != nil {
		s := string(*b.PackageID)
		dto.PackageID = &s
	}
	if b.AllowanceID != nil {
		s := string(*b.AllowanceID)
		dto.AllowanceID = &s
	}
	return dto
}

func toCancelResultDTO(r engine.CancelResult) CancelResultDTO {
	dto := CancelResultDTO{
		BookingID:  string(r.BookingID),
		Refunded:   r.Refunded,
		NewBalance: r.NewBalance,
	}
	if r.RefundedPackageID != nil {
		s := string(*r.RefundedPackageID)
		dto.RefundedPackageID = &s
	}
	return dto
}

func toWaitlistEntryDTO(w *booking.WaitlistEntry) WaitlistEntryDTO {
	return WaitlistEntryDTO{
		ID:             string(w.ID),
		SessionID:      string(w.SessionID),
		CustomerID:     string(w.CustomerID),
		Position:       w.Position,
		CreatedAt:      w.CreatedAt.UTC().Format(time.RFC3339),
		NotifiedAt:     timePtrString(w.NotifiedAt),
		ClaimExpiresAt: timePtrString(w.ClaimExpiresAt),
	}
}

func toLedgerEntryDTO(e booking.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		ID:        e.ID,
		Kind:      string(e.Kind),
		Delta:     e.Delta,
		Balance:   e.Balance,
		BookingID: string(e.BookingID),
		Reason:    e.Reason,
		CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func timePtrString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
