package engine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/engine"
)

// fillSession books capacity seats with throwaway customers.
func fillSession(t *testing.T, env *testEnv, sessionID string, capacity int) {
	t.Helper()
	for i := 0; i < capacity; i++ {
		id := booking.SessionID(sessionID)
		_, err := env.eng.CreateBooking(context.Background(), engine.CreateBookingRequest{
			CustomerID: booking.CustomerID(fmt.Sprintf("filler-%d", i)),
			SessionID:  &id,
		})
		require.NoError(t, err)
	}
}

// =============================================================================
// JOIN
// =============================================================================

func TestJoinWaitlist_OpenSeat_Rejected(t *testing.T) {
	// An open seat means book, not queue.
	env := newTestEnv(t, booking.StandardCancellationPolicy())
	env.addSession(t, "sess-1", booking.KindGroup, 1, 4, 60)

	_, err := env.eng.JoinWaitlist(context.Background(), "sess-1", "cust-1")
	assert.ErrorIs(t, err, booking.ErrSeatAvailable)
}

func TestJoinWaitlist_FullSession_QueuesInOrder(t *testing.T) {
	env := newTestEnv(t, booking.StandardCancellationPolicy())
	ctx := context.Background()
	env.addSession(t, "sess-1", booking.KindGroup, 1, 1, 60)
	fillSession(t, env, "sess-1", 1)

	first, err := env.eng.JoinWaitlist(ctx, "sess-1", "cust-1")
	require.NoError(t, err)
	second, err := env.eng.JoinWaitlist(ctx, "sess-1", "cust-2")
	require.NoError(t, err)

	assert.Equal(t, 1, first.Position)
	assert.Equal(t, 2, second.Position)
	assert.Nil(t, first.NotifiedAt, "queueing is not an offer")
}

func TestJoinWaitlist_Twice_Rejected(t *testing.T) {
	env := newTestEnv(t, booking.StandardCancellationPolicy())
	ctx := context.Background()
	env.addSession(t, "sess-1", booking.KindGroup, 1, 1, 60)
	fillSession(t, env, "sess-1", 1)

	_, err := env.eng.JoinWaitlist(ctx, "sess-1", "cust-1")
	require.NoError(t, err)
	_, err = env.eng.JoinWaitlist(ctx, "sess-1", "cust-1")
	assert.ErrorIs(t, err, booking.ErrAlreadyQueued)
}

func TestJoinWaitlist_ConcurrentJoins_UniquePositions(t *testing.T) {
	env := newTestEnv(t, booking.StandardCancellationPolicy())
	ctx := context.Background()
	env.addSession(t, "sess-1", booking.KindGroup, 1, 1, 60)
	fillSession(t, env, "sess-1", 1)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := env.eng.JoinWaitlist(ctx, "sess-1", booking.CustomerID(fmt.Sprintf("cust-%d", n)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := env.eng.Waitlist(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, entries, 10)

	seen := make(map[int]bool)
	for _, e := range entries {
		assert.False(t, seen[e.Position], "position %d assigned twice", e.Position)
		seen[e.Position] = true
	}
}

// =============================================================================
// FREED SEATS AND OFFERS
// =============================================================================

func TestCancelBooking_SharedSession_OffersFreedSeatToHead(t *testing.T) {
	// GIVEN: A full group session with two queued customers
	// WHEN: An occupant cancels
	// THEN: The head of the queue gets a claim window; the second waits

	env := newTestEnv(t, booking.StandardCancellationPolicy())
	ctx := context.Background()
	env.addSession(t, "sess-1", booking.KindGroup, 1, 1, 60)
	b, err := env.eng.CreateBooking(ctx, engine.CreateBookingRequest{
		CustomerID: "occupant", SessionID: strSession("sess-1"),
	})
	require.NoError(t, err)

	head, err := env.eng.JoinWaitlist(ctx, "sess-1", "cust-head")
	require.NoError(t, err)
	_, err = env.eng.JoinWaitlist(ctx, "sess-1", "cust-next")
	require.NoError(t, err)

	_, err = env.eng.CancelBooking(ctx, b.ID, "occupant", false, "")
	require.NoError(t, err)

	offered, err := env.store.GetWaitlistEntry(ctx, head.ID)
	require.NoError(t, err)
	require.NotNil(t, offered.NotifiedAt)
	require.NotNil(t, offered.ClaimExpiresAt)
	assert.Equal(t, env.now.Add(24*time.Hour), *offered.ClaimExpiresAt)

	entries, err := env.eng.Waitlist(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, entries[1].NotifiedAt, "only one live offer per session")
}

func TestOnSeatFreed_LiveOfferOutstanding_NoSecondOffer(t *testing.T) {
	env := newTestEnv(t, booking.StandardCancellationPolicy())
	ctx := context.Background()
	env.addSession(t, "sess-1", booking.KindGroup, 1, 1, 60)
	fillSession(t, env, "sess-1", 1)

	_, err := env.eng.JoinWaitlist(ctx, "sess-1", "cust-1")
	require.NoError(t, err)
	_, err = env.eng.JoinWaitlist(ctx, "sess-1", "cust-2")
	require.NoError(t, err)

	offered, err := env.eng.OnSeatFreed(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, offered)

	again, err := env.eng.OnSeatFreed(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, again, "the live offer holder keeps first claim")
}

func TestOnSeatFreed_ExpiredClaim_DroppedAndNextOffered(t *testing.T) {
	// GIVEN: The head's claim window has lapsed
	// WHEN: The seat is offered again
	// THEN: The head is removed and the next entry gets the offer

	env := newTestEnv(t, booking.StandardCancellationPolicy())
	ctx := context.Background()
	env.addSession(t, "sess-1", booking.KindGroup, 1, 1, 60)
	fillSession(t, env, "sess-1", 1)

	head, err := env.eng.JoinWaitlist(ctx, "sess-1", "cust-1")
	require.NoError(t, err)
	next, err := env.eng.JoinWaitlist(ctx, "sess-1", "cust-2")
	require.NoError(t, err)

	_, err = env.eng.OnSeatFreed(ctx, "sess-1")
	require.NoError(t, err)

	env.now = env.now.Add(25 * time.Hour) // past the 24h claim window

	offered, err := env.eng.OnSeatFreed(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, offered)
	assert.Equal(t, next.ID, offered.ID)

	gone, err := env.store.GetWaitlistEntry(ctx, head.ID)
	require.NoError(t, err)
	assert.Nil(t, gone, "lapsed claims are removed, not re-queued")
}

// =============================================================================
// PROMOTION
// =============================================================================

func TestPromoteFromWaitlist_WithCredit_FullBookingPath(t *testing.T) {
	// GIVEN: A freed seat offered to the queue head
	// WHEN: An operator promotes the entry with the customer's package
	// THEN: A confirmed booking exists, the debit happened, and the
	//       entry is gone - all in one transaction

	env := newTestEnv(t, booking.StandardCancellationPolicy())
	ctx := context.Background()
	env.addSession(t, "sess-1", booking.KindGroup, 1, 1, 60)
	b, err := env.eng.CreateBooking(ctx, engine.CreateBookingRequest{
		CustomerID: "occupant", SessionID: strSession("sess-1"),
	})
	require.NoError(t, err)

	pkgID := env.grant(t, "pkg-1", "cust-1", booking.KindGroup, 1, 60, 10)
	entry, err := env.eng.JoinWaitlist(ctx, "sess-1", "cust-1")
	require.NoError(t, err)

	_, err = env.eng.CancelBooking(ctx, b.ID, "occupant", false, "")
	require.NoError(t, err)

	promoted, err := env.eng.PromoteFromWaitlist(ctx, engine.PromoteRequest{
		EntryID:    entry.ID,
		OperatorID: "op-1",
		PackageID:  strPkg(pkgID),
	})
	require.NoError(t, err)
	assert.Equal(t, booking.CustomerID("cust-1"), promoted.CustomerID)
	assert.Equal(t, 1, promoted.CreditsDebited)
	assert.Equal(t, 9, env.balance(t, pkgID))

	gone, err := env.store.GetWaitlistEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestPromoteFromWaitlist_WithoutPackage_Comped(t *testing.T) {
	env := newTestEnv(t, booking.StandardCancellationPolicy())
	ctx := context.Background()
	env.addSession(t, "sess-1", booking.KindGroup, 1, 1, 60)
	b, err := env.eng.CreateBooking(ctx, engine.CreateBookingRequest{
		CustomerID: "occupant", SessionID: strSession("sess-1"),
	})
	require.NoError(t, err)

	entry, err := env.eng.JoinWaitlist(ctx, "sess-1", "cust-1")
	require.NoError(t, err)
	_, err = env.eng.CancelBooking(ctx, b.ID, "occupant", false, "")
	require.NoError(t, err)

	promoted, err := env.eng.PromoteFromWaitlist(ctx, engine.PromoteRequest{
		EntryID: entry.ID, OperatorID: "op-1",
	})
	require.NoError(t, err)
	assert.Nil(t, promoted.PackageID)
}

func TestPromoteFromWaitlist_SeatTakenBack_EntryStaysQueued(t *testing.T) {
	// GIVEN: The freed seat was rebooked before promotion
	// WHEN: The operator promotes
	// THEN: SessionFullError; the waitlist entry survives

	env := newTestEnv(t, booking.StandardCancellationPolicy())
	ctx := context.Background()
	env.addSession(t, "sess-1", booking.KindGroup, 1, 1, 60)
	b, err := env.eng.CreateBooking(ctx, engine.CreateBookingRequest{
		CustomerID: "occupant", SessionID: strSession("sess-1"),
	})
	require.NoError(t, err)

	entry, err := env.eng.JoinWaitlist(ctx, "sess-1", "cust-1")
	require.NoError(t, err)
	_, err = env.eng.CancelBooking(ctx, b.ID, "occupant", false, "")
	require.NoError(t, err)

	// Someone else grabs the seat directly.
	_, err = env.eng.CreateBooking(ctx, engine.CreateBookingRequest{
		CustomerID: "sniper", SessionID: strSession("sess-1"),
	})
	require.NoError(t, err)

	_, err = env.eng.PromoteFromWaitlist(ctx, engine.PromoteRequest{
		EntryID: entry.ID, OperatorID: "op-1",
	})
	assert.ErrorIs(t, err, booking.ErrSessionFull)

	still, err := env.store.GetWaitlistEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.NotNil(t, still, "failed promotion keeps the entry queued")
}

func TestPromoteFromWaitlist_ExpiredOffer_Rejected(t *testing.T) {
	env := newTestEnv(t, booking.StandardCancellationPolicy())
	ctx := context.Background()
	env.addSession(t, "sess-1", booking.KindGroup, 1, 1, 60)
	b, err := env.eng.CreateBooking(ctx, engine.CreateBookingRequest{
		CustomerID: "occupant", SessionID: strSession("sess-1"),
	})
	require.NoError(t, err)

	entry, err := env.eng.JoinWaitlist(ctx, "sess-1", "cust-1")
	require.NoError(t, err)
	_, err = env.eng.CancelBooking(ctx, b.ID, "occupant", false, "")
	require.NoError(t, err)

	env.now = env.now.Add(25 * time.Hour)

	_, err = env.eng.PromoteFromWaitlist(ctx, engine.PromoteRequest{
		EntryID: entry.ID, OperatorID: "op-1",
	})
	assert.ErrorIs(t, err, booking.ErrInvalidRequest)

	gone, err := env.store.GetWaitlistEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Nil(t, gone, "an expired offer is cleaned up on promotion attempt")
}

func TestLeaveWaitlist_OwnerOrOperator(t *testing.T) {
	env := newTestEnv(t, booking.StandardCancellationPolicy())
	ctx := context.Background()
	env.addSession(t, "sess-1", booking.KindGroup, 1, 1, 60)
	fillSession(t, env, "sess-1", 1)

	entry, err := env.eng.JoinWaitlist(ctx, "sess-1", "cust-1")
	require.NoError(t, err)

	err = env.eng.LeaveWaitlist(ctx, entry.ID, "cust-2", false)
	assert.ErrorIs(t, err, booking.ErrForbidden)

	require.NoError(t, env.eng.LeaveWaitlist(ctx, entry.ID, "cust-1", false))

	gone, err := env.store.GetWaitlistEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
