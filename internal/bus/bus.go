// Package bus decouples channels from the relay pipeline: channels publish
// inbound messages and subscribe for outbound ones, the relay does the
// reverse. Everything is in-process; the queues exist so a slow backend
// call never blocks the platform event handler.
package bus

import "context"

// queueSize bounds each direction. Publishing blocks once the consumer is
// this far behind.
const queueSize = 256

// MessageBus is the in-process MessageRouter implementation.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

func New() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, queueSize),
		outbound: make(chan OutboundMessage, queueSize),
	}
}

func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.inbound <- msg
}

// ConsumeInbound blocks until a message arrives or ctx is done. The second
// return value is false only on cancellation.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// SubscribeOutbound blocks until a message arrives or ctx is done. The
// second return value is false only on cancellation.
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}
