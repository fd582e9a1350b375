package engine

import (
	"context"

	"github.com/warp/booking-engine/booking"
)

// ===== SESSION MANAGEMENT =====
//
// Shared sessions (group classes, course steps) are created up front by
// scheduling; ad-hoc private slots are created inside CreateBooking. Both
// paths run the instructor double-booking guard.

// CreateSession registers a pre-scheduled session.
func (e *Engine) CreateSession(ctx context.Context, s *booking.Session) (*booking.Session, error) {
	if s.ID == "" {
		s.ID = booking.NewSessionID()
	}
	if s.Status == "" {
		s.Status = booking.SessionScheduled
	}
	s.CreatedAt = e.now()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch s.Kind {
	case booking.KindPrivate, booking.KindGroup, booking.KindCourseStep:
	default:
		return nil, &booking.InvalidRequestError{Reason: "unknown service kind"}
	}

	err := e.withSessionTx(ctx, s.ID, nil, func(tx booking.Store) error {
		if err := e.ensureInstructorFree(ctx, tx, s); err != nil {
			return err
		}
		return tx.PutSession(ctx, s)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("session", string(s.ID)).
		Str("kind", string(s.Kind)).
		Int("capacity", s.Capacity).
		Msg("session created")
	return s, nil
}

// Session loads a session or reports it missing.
func (e *Engine) Session(ctx context.Context, id booking.SessionID) (*booking.Session, error) {
	s, err := e.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, &booking.NotFoundError{Kind: "session", ID: string(id)}
	}
	return s, nil
}

// Booking loads a booking or reports it missing.
func (e *Engine) Booking(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	b, err := e.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, &booking.NotFoundError{Kind: "booking", ID: string(id)}
	}
	return b, nil
}

// Waitlist returns the session's queue in position order.
func (e *Engine) Waitlist(ctx context.Context, id booking.SessionID) ([]*booking.WaitlistEntry, error) {
	s, err := e.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, &booking.NotFoundError{Kind: "session", ID: string(id)}
	}
	return e.store.WaitlistBySession(ctx, id)
}
