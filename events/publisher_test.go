package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/booking-engine/events"
)

func TestWatermillPublisher_RoundTrip(t *testing.T) {
	// GIVEN: A subscriber on the confirmed-booking topic
	// WHEN: The engine-facing publisher emits an event
	// THEN: The subscriber receives the same payload as JSON

	pubsub := events.NewGoChannelPubSub(watermill.NopLogger{})
	defer pubsub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := pubsub.Subscribe(ctx, events.BookingConfirmed_v1{}.EventName())
	require.NoError(t, err)

	pub := events.NewWatermillPublisher(pubsub)
	sent := events.BookingConfirmed_v1{
		Header:         events.NewHeader(),
		BookingID:      "bk-1",
		SessionID:      "sess-1",
		CustomerID:     "cust-1",
		PackageID:      "pkg-1",
		CreditsDebited: 2,
	}
	require.NoError(t, pub.Publish(ctx, sent))

	select {
	case msg := <-messages:
		msg.Ack()
		var got events.BookingConfirmed_v1
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, sent.BookingID, got.BookingID)
		assert.Equal(t, sent.CreditsDebited, got.CreditsDebited)
		assert.Equal(t, sent.Header.ID, got.Header.ID)
	case <-ctx.Done():
		t.Fatal("no message received before timeout")
	}
}

func TestWatermillPublisher_TopicPerEventName(t *testing.T) {
	pubsub := events.NewGoChannelPubSub(watermill.NopLogger{})
	defer pubsub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	freed, err := pubsub.Subscribe(ctx, events.SeatFreed_v1{}.EventName())
	require.NoError(t, err)

	pub := events.NewWatermillPublisher(pubsub)
	require.NoError(t, pub.Publish(ctx, events.BookingCancelled_v1{
		Header: events.NewHeader(), BookingID: "bk-1", SessionID: "sess-1", CustomerID: "cust-1",
	}))
	require.NoError(t, pub.Publish(ctx, events.SeatFreed_v1{
		Header: events.NewHeader(), SessionID: "sess-1",
	}))

	select {
	case msg := <-freed:
		msg.Ack()
		var got events.SeatFreed_v1
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, "sess-1", got.SessionID)
	case <-ctx.Done():
		t.Fatal("no message received before timeout")
	}
}

func TestNopPublisher_SwallowsEverything(t *testing.T) {
	var p events.NopPublisher
	assert.NoError(t, p.Publish(context.Background(), events.SeatFreed_v1{Header: events.NewHeader()}))
}
