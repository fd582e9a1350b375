package engine

import (
	"context"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/events"
)

// ===== WAITLIST =====
//
// A session's waitlist is a FIFO queue keyed by position. Freed seats are
// offered one entry at a time: the head gets a claim window, and only
// when that window lapses (or the entry is removed) does the next entry
// get its turn. Promotion is an operator action that runs the full
// booking path, so a promoted customer is subject to the same capacity
// and tier rules as anyone else.

// JoinWaitlist queues the customer on a full session. Joining an open
// session is rejected with ErrSeatAvailable so clients book directly;
// joining twice is rejected with ErrAlreadyQueued.
func (e *Engine) JoinWaitlist(ctx context.Context, sessionID booking.SessionID, customerID booking.CustomerID) (*booking.WaitlistEntry, error) {
	if customerID == "" {
		return nil, &booking.InvalidRequestError{Reason: "customer id is required"}
	}

	var entry *booking.WaitlistEntry
	err := e.withSessionTx(ctx, sessionID, nil, func(tx booking.Store) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return &booking.NotFoundError{Kind: "session", ID: string(sessionID)}
		}
		if session.Status != booking.SessionScheduled {
			return &booking.InvalidRequestError{Reason: "session is not open for booking"}
		}

		taken, err := tx.ConfirmedCount(ctx, sessionID)
		if err != nil {
			return err
		}
		if taken < session.Capacity {
			return booking.ErrSeatAvailable
		}

		queued, err := tx.WaitlistBySession(ctx, sessionID)
		if err != nil {
			return err
		}
		for _, q := range queued {
			if q.CustomerID == customerID {
				return booking.ErrAlreadyQueued
			}
		}

		pos, err := tx.NextWaitlistPosition(ctx, sessionID)
		if err != nil {
			return err
		}
		entry = &booking.WaitlistEntry{
			ID:         booking.NewWaitlistID(),
			SessionID:  sessionID,
			CustomerID: customerID,
			Position:   pos,
			CreatedAt:  e.now(),
		}
		return tx.PutWaitlistEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("session", string(sessionID)).
		Str("customer", string(customerID)).
		Int("position", entry.Position).
		Msg("joined waitlist")
	return entry, nil
}

// LeaveWaitlist removes the customer's entry. Self-service or operator.
func (e *Engine) LeaveWaitlist(ctx context.Context, entryID booking.WaitlistID, actorID string, asOperator bool) error {
	entry, err := e.store.GetWaitlistEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return &booking.NotFoundError{Kind: "waitlist entry", ID: string(entryID)}
	}
	if !asOperator && string(entry.CustomerID) != actorID {
		return booking.ErrForbidden
	}
	return e.withSessionTx(ctx, entry.SessionID, nil, func(tx booking.Store) error {
		return tx.DeleteWaitlistEntry(ctx, entryID)
	})
}

// OnSeatFreed walks the queue in position order: entries whose claim
// window already lapsed are dropped, the first never-notified entry gets
// an offer stamped with the claim deadline, and a still-live outstanding
// offer stops the walk so only one offer is ever open per session. The
// extended offer (if any) is returned.
func (e *Engine) OnSeatFreed(ctx context.Context, sessionID booking.SessionID) (*booking.WaitlistEntry, error) {
	var offered *booking.WaitlistEntry
	err := e.withSessionTx(ctx, sessionID, nil, func(tx booking.Store) error {
		queued, err := tx.WaitlistBySession(ctx, sessionID)
		if err != nil {
			return err
		}
		now := e.now()
		for _, entry := range queued {
			if entry.OfferExpired(now) {
				if err := tx.DeleteWaitlistEntry(ctx, entry.ID); err != nil {
					return err
				}
				continue
			}
			if entry.NotifiedAt != nil {
				// Live offer outstanding; its holder keeps first claim.
				return nil
			}
			deadline := now.Add(e.claimWindow)
			entry.NotifiedAt = &now
			entry.ClaimExpiresAt = &deadline
			if err := tx.UpdateWaitlistEntry(ctx, entry); err != nil {
				return err
			}
			offered = entry
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if offered != nil {
		e.log.Info().
			Str("session", string(sessionID)).
			Str("customer", string(offered.CustomerID)).
			Time("claim_expires", *offered.ClaimExpiresAt).
			Msg("waitlist offer extended")
		e.publish(ctx, events.WaitlistOfferExtended_v1{
			Header:         events.NewHeader(),
			EntryID:        string(offered.ID),
			SessionID:      string(offered.SessionID),
			CustomerID:     string(offered.CustomerID),
			ClaimExpiresAt: *offered.ClaimExpiresAt,
		})
	}
	return offered, nil
}

// PromoteRequest identifies the entry to promote and, optionally, the
// credit that pays for the resulting booking. Without a package the
// promoted booking is comped.
type PromoteRequest struct {
	EntryID            booking.WaitlistID
	OperatorID         string
	PackageID          *booking.PackageID
	AllowanceID        *booking.AllowanceID
	CrossTierConfirmed bool
}

// PromoteFromWaitlist converts a waitlist entry into a confirmed booking.
// The promotion runs the full booking path in one transaction with the
// entry's removal: if the seat was taken back, the package expired, or
// the tiers clash, nothing moves and the entry stays queued.
func (e *Engine) PromoteFromWaitlist(ctx context.Context, req PromoteRequest) (*booking.Booking, error) {
	entry, err := e.store.GetWaitlistEntry(ctx, req.EntryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, &booking.NotFoundError{Kind: "waitlist entry", ID: string(req.EntryID)}
	}

	var b *booking.Booking
	var lapsed bool
	err = e.withSessionTx(ctx, entry.SessionID, req.PackageID, func(tx booking.Store) error {
		current, err := tx.GetWaitlistEntry(ctx, req.EntryID)
		if err != nil {
			return err
		}
		if current == nil {
			return &booking.NotFoundError{Kind: "waitlist entry", ID: string(req.EntryID)}
		}
		if current.OfferExpired(e.now()) {
			// Drop the lapsed entry; the rejection itself must not roll
			// this cleanup back.
			lapsed = true
			return tx.DeleteWaitlistEntry(ctx, current.ID)
		}

		b, err = e.insertBookingTx(ctx, tx, bookingSpec{
			customerID:         current.CustomerID,
			sessionID:          current.SessionID,
			packageID:          req.PackageID,
			allowanceID:        req.AllowanceID,
			crossTierConfirmed: req.CrossTierConfirmed,
		})
		if err != nil {
			return err
		}
		return tx.DeleteWaitlistEntry(ctx, current.ID)
	})
	if err != nil {
		return nil, err
	}
	if lapsed {
		return nil, &booking.InvalidRequestError{Reason: "waitlist offer has expired"}
	}

	e.log.Info().
		Str("booking", string(b.ID)).
		Str("customer", string(b.CustomerID)).
		Str("operator", req.OperatorID).
		Msg("promoted from waitlist")
	e.publish(ctx, confirmedEvent(b))
	return b, nil
}
