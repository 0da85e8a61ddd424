package bus

import "context"

// Peer kinds carried on inbound messages.
const (
	PeerDirect = "direct"
	PeerGroup  = "group"
)

// InboundMessage represents a message received from a channel.
type InboundMessage struct {
	Channel  string            `json:"channel"`
	SenderID string            `json:"sender_id"`
	SelfID   string            `json:"self_id"`             // the channel account's own user ID (for mention detection)
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	PeerKind string            `json:"peer_kind,omitempty"` // "direct" or "group"
	Metadata map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage represents a message to be sent to a channel.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"` // channel-specific metadata
}

// MessageRouter abstracts inbound/outbound message routing between channels
// and the relay pipeline.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	SubscribeOutbound(ctx context.Context) (OutboundMessage, bool)
}
