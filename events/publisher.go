package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Publisher is what the engine emits events through.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// =============================================================================
// WATERMILL PUBLISHER
// =============================================================================

// WatermillPublisher publishes events as JSON messages, one topic per
// event name.
type WatermillPublisher struct {
	pub message.Publisher
}

func NewWatermillPublisher(pub message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{pub: pub}
}

func (p *WatermillPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return p.pub.Publish(ev.EventName(), msg)
}

// NewGoChannelPubSub builds the in-process pub/sub used by the single
// binary deployment. External-broker publishers satisfy the same
// message.Publisher contract.
func NewGoChannelPubSub(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{}, logger)
}

// =============================================================================
// NOP PUBLISHER
// =============================================================================

// NopPublisher drops every event. Tests and tooling.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
