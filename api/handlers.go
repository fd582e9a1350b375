/*
handlers.go - HTTP API handlers for the booking engine

PURPOSE:
  Exposes the booking engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every decision to the engine and
  ledger.

ENDPOINTS:
  Sessions:
    POST   /api/sessions                     Create a shared session
    GET    /api/sessions/{id}                Session details + seat availability
    GET    /api/sessions/{id}/waitlist       Waitlist in position order
    POST   /api/sessions/{id}/waitlist       Join the waitlist

  Bookings:
    POST   /api/bookings                     Create a booking (session or ad-hoc)
    GET    /api/bookings/{id}                Booking details
    POST   /api/bookings/{id}/cancel         Cancel (+ refund per policy)
    POST   /api/bookings/{id}/reschedule     Move to another session

  Packages:
    POST   /api/packages                     Register a purchased package
    GET    /api/packages/{id}                Package details
    GET    /api/packages/{id}/entries        Ledger audit trail
    GET    /api/customers/{id}/packages      A customer's packages

  Waitlist:
    DELETE /api/waitlist/{id}                Leave the waitlist
    POST   /api/waitlist/{id}/promote        Promote into a booking (operator)

ERROR HANDLING:
  Domain errors map to HTTP status by kind:
  - 400: malformed input
  - 402: insufficient credits, expired package
  - 403: acting on someone else's booking
  - 404: unknown session/booking/package/waitlist entry
  - 409: full session, duplicate booking, open seat, pending cross-tier
         confirmation, already queued
  - 422: tier mismatch, cancellation blocked by policy
  - 503: lock wait timeout (retryable)

SECURITY NOTE:
  Currently NO authentication. actor_id/as_operator come from the request
  body and are trusted; an auth middleware must replace that before any
  public deployment.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/engine"
	"github.com/warp/booking-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *engine.Engine
	Ledger *ledger.Ledger
	Store  booking.TxStore
}

// NewHandler creates a new handler.
func NewHandler(eng *engine.Engine, led *ledger.Ledger, store booking.TxStore) *Handler {
	return &Handler{Engine: eng, Ledger: led, Store: store}
}

// =============================================================================
// SESSION ENDPOINTS
// =============================================================================

// CreateSession creates a pre-scheduled shared session.
// POST /api/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	startAt, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_at", err)
		return
	}
	endAt, err := time.Parse(time.RFC3339, req.EndAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_at", err)
		return
	}

	session, err := h.Engine.CreateSession(r.Context(), &booking.Session{
		Kind:           booking.ServiceKind(req.Kind),
		StartAt:        startAt,
		EndAt:          endAt,
		Capacity:       req.Capacity,
		InstructorID:   booking.InstructorID(req.InstructorID),
		InstructorTier: req.InstructorTier,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionDTO(session))
}

// GetSession returns session details plus current seat availability.
// GET /api/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := booking.SessionID(chi.URLParam(r, "id"))
	session, err := h.Engine.Session(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dto := toSessionDTO(session)
	if open, err := h.Engine.HasOpenSeat(r.Context(), id); err == nil {
		dto.OpenSeat = &open
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetWaitlist returns the session's queue in position order.
// GET /api/sessions/{id}/waitlist
func (h *Handler) GetWaitlist(w http.ResponseWriter, r *http.Request) {
	id := booking.SessionID(chi.URLParam(r, "id"))
	entries, err := h.Engine.Waitlist(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]WaitlistEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toWaitlistEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// JoinWaitlist queues a customer on a full session.
// POST /api/sessions/{id}/waitlist
func (h *Handler) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	var req JoinWaitlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	entry, err := h.Engine.JoinWaitlist(r.Context(),
		booking.SessionID(chi.URLParam(r, "id")),
		booking.CustomerID(req.CustomerID))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWaitlistEntryDTO(entry))
}

// =============================================================================
// BOOKING ENDPOINTS
// =============================================================================

// CreateBooking books a customer onto a session or a fresh ad-hoc slot.
// POST /api/bookings
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	in := engine.CreateBookingRequest{
		CustomerID:         booking.CustomerID(req.CustomerID),
		CrossTierConfirmed: req.CrossTierConfirmed,
	}
	if req.SessionID != "" {
		id := booking.SessionID(req.SessionID)
		in.SessionID = &id
	}
	if req.AdHoc != nil {
		startAt, err := time.Parse(time.RFC3339, req.AdHoc.StartAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid ad_hoc.start_at", err)
			return
		}
		endAt, err := time.Parse(time.RFC3339, req.AdHoc.EndAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid ad_hoc.end_at", err)
			return
		}
		in.AdHoc = &engine.AdHocSlot{
			StartAt:        startAt,
			EndAt:          endAt,
			InstructorID:   booking.InstructorID(req.AdHoc.InstructorID),
			InstructorTier: req.AdHoc.InstructorTier,
		}
	}
	if req.PackageID != "" {
		id := booking.PackageID(req.PackageID)
		in.PackageID = &id
	}
	if req.AllowanceID != "" {
		id := booking.AllowanceID(req.AllowanceID)
		in.AllowanceID = &id
	}

	b, err := h.Engine.CreateBooking(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingDTO(b))
}

// GetBooking returns booking details.
// GET /api/bookings/{id}
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Engine.Booking(r.Context(), booking.BookingID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// CancelBooking cancels a booking, refunding per the active policy.
// POST /api/bookings/{id}/cancel
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req CancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result, err := h.Engine.CancelBooking(r.Context(),
		booking.BookingID(chi.URLParam(r, "id")),
		req.ActorID, req.AsOperator, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCancelResultDTO(result))
}

// RescheduleBooking moves a booking to another session.
// POST /api/bookings/{id}/reschedule
func (h *Handler) RescheduleBooking(w http.ResponseWriter, r *http.Request) {
	var req RescheduleBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.NewSessionID == "" {
		writeError(w, http.StatusBadRequest, "new_session_id is required", nil)
		return
	}

	moved, err := h.Engine.RescheduleBooking(r.Context(),
		booking.BookingID(chi.URLParam(r, "id")),
		req.ActorID, req.AsOperator,
		booking.SessionID(req.NewSessionID))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(moved))
}

// =============================================================================
// PACKAGE ENDPOINTS
// =============================================================================

// CreatePackage registers a purchased package and writes its grant entry.
// POST /api/packages
func (h *Handler) CreatePackage(w http.ResponseWriter, r *http.Request) {
	var req CreatePackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "customer_id is required", nil)
		return
	}
	if (len(req.Allowances) == 0) == (len(req.LegacyAllowances) == 0) {
		writeError(w, http.StatusBadRequest, "supply exactly one of allowances or legacy_allowances", nil)
		return
	}

	var allowances []booking.Allowance
	if len(req.LegacyAllowances) > 0 {
		var err error
		allowances, err = booking.AllowancesFromLegacyJSON(req.LegacyAllowances)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid legacy allowances", err)
			return
		}
	} else {
		for _, a := range req.Allowances {
			allowances = append(allowances, booking.Allowance{
				ID:          booking.AllowanceID(a.ID),
				Kind:        booking.ServiceKind(a.Kind),
				Tier:        a.Tier,
				UnitMinutes: a.UnitMinutes,
				Granted:     a.Granted,
			})
		}
	}

	pkg := &booking.CreditPackage{
		ID:          booking.PackageID(req.ID),
		CustomerID:  booking.CustomerID(req.CustomerID),
		Allowances:  allowances,
		PurchasedAt: time.Now().UTC(),
	}
	if pkg.ID == "" {
		pkg.ID = booking.PackageID(uuid.NewString())
	}
	if req.ExpiresAt != nil {
		expiresAt, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid expires_at", err)
			return
		}
		pkg.ExpiresAt = &expiresAt
	}

	if err := h.Ledger.Grant(r.Context(), pkg); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPackageDTO(pkg))
}

// GetPackage returns package details.
// GET /api/packages/{id}
func (h *Handler) GetPackage(w http.ResponseWriter, r *http.Request) {
	pkg, err := h.Store.GetPackage(r.Context(), booking.PackageID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if pkg == nil {
		writeError(w, http.StatusNotFound, "package not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toPackageDTO(pkg))
}

// GetPackageEntries returns the package's ledger audit trail, oldest first.
// GET /api/packages/{id}/entries
func (h *Handler) GetPackageEntries(w http.ResponseWriter, r *http.Request) {
	id := booking.PackageID(chi.URLParam(r, "id"))
	pkg, err := h.Store.GetPackage(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if pkg == nil {
		writeError(w, http.StatusNotFound, "package not found", nil)
		return
	}

	entries, err := h.Ledger.Entries(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]LedgerEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toLedgerEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCustomerPackages returns a customer's packages.
// GET /api/customers/{id}/packages
func (h *Handler) GetCustomerPackages(w http.ResponseWriter, r *http.Request) {
	pkgs, err := h.Store.PackagesByCustomer(r.Context(), booking.CustomerID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]PackageDTO, 0, len(pkgs))
	for _, p := range pkgs {
		dtos = append(dtos, toPackageDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// WAITLIST ENDPOINTS
// =============================================================================

// LeaveWaitlist removes a waitlist entry.
// DELETE /api/waitlist/{id}
func (h *Handler) LeaveWaitlist(w http.ResponseWriter, r *http.Request) {
	var req LeaveWaitlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	err := h.Engine.LeaveWaitlist(r.Context(),
		booking.WaitlistID(chi.URLParam(r, "id")),
		req.ActorID, req.AsOperator)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PromoteWaitlist converts a waitlist entry into a confirmed booking.
// POST /api/waitlist/{id}/promote
func (h *Handler) PromoteWaitlist(w http.ResponseWriter, r *http.Request) {
	var req PromoteWaitlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	in := engine.PromoteRequest{
		EntryID:            booking.WaitlistID(chi.URLParam(r, "id")),
		OperatorID:         req.OperatorID,
		CrossTierConfirmed: req.CrossTierConfirmed,
	}
	if req.PackageID != "" {
		id := booking.PackageID(req.PackageID)
		in.PackageID = &id
	}
	if req.AllowanceID != "" {
		id := booking.AllowanceID(req.AllowanceID)
		in.AllowanceID = &id
	}

	b, err := h.Engine.PromoteFromWaitlist(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingDTO(b))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps a domain error kind to an HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case booking.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, booking.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, booking.ErrInsufficientCredits),
		errors.Is(err, booking.ErrPackageExpired):
		writeError(w, http.StatusPaymentRequired, err.Error(), nil)
	case errors.Is(err, booking.ErrCrossTierConfirmationRequired),
		errors.Is(err, booking.ErrSessionFull),
		errors.Is(err, booking.ErrAlreadyBooked),
		errors.Is(err, booking.ErrSeatAvailable),
		errors.Is(err, booking.ErrAlreadyQueued),
		errors.Is(err, booking.ErrInstructorBusy):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, booking.ErrTierMismatch),
		errors.Is(err, booking.ErrCancellationNotAllowed):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, booking.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case booking.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}
