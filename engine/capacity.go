package engine

import (
	"context"

	"github.com/warp/booking-engine/booking"
)

// ===== CAPACITY GUARD =====
//
// Seat counts are derived, never stored: a seat is the count of CONFIRMED
// bookings against the session's fixed capacity. The check only means
// anything inside the same transaction (and under the same session lock)
// as the insert it guards.

// ensureOpenSeat rejects with SessionFullError when every seat is taken.
func (e *Engine) ensureOpenSeat(ctx context.Context, tx booking.Store, s *booking.Session) error {
	taken, err := tx.ConfirmedCount(ctx, s.ID)
	if err != nil {
		return err
	}
	if taken >= s.Capacity {
		return &booking.SessionFullError{SessionID: s.ID, Capacity: s.Capacity}
	}
	return nil
}

// HasOpenSeat reports whether the session currently has a free seat. It
// is a read-only convenience for callers deciding whether to offer the
// waitlist; the authoritative check happens at booking time.
func (e *Engine) HasOpenSeat(ctx context.Context, id booking.SessionID) (bool, error) {
	session, err := e.store.GetSession(ctx, id)
	if err != nil {
		return false, err
	}
	if session == nil {
		return false, &booking.NotFoundError{Kind: "session", ID: string(id)}
	}
	taken, err := e.store.ConfirmedCount(ctx, id)
	if err != nil {
		return false, err
	}
	return taken < session.Capacity, nil
}
