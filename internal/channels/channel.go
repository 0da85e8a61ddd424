// Package channels provides the platform abstraction layer. A channel
// connects one messaging platform to the relay pipeline via the message
// bus: received messages are published inbound, replies come back through
// the manager's outbound dispatcher and the channel's Send.
package channels

import (
	"context"

	"github.com/nextlevelbuilder/goanswer/internal/bus"
)

// Channel defines the interface that all channel implementations must satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g. "discord").
	Name() string

	// Start begins listening for messages. Should be non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// IsRunning returns whether the channel is actively processing messages.
	IsRunning() bool
}

// TypingNotifier is an optional capability for channels that can show a
// typing indicator while an answer is being produced. StartTyping returns a
// stop function; the indicator keeps itself alive (platform indicators
// expire after a few seconds) until stop is called or it times out on its
// own.
type TypingNotifier interface {
	StartTyping(chatID string) (stop func())
}

// BaseChannel provides shared functionality for channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name    string
	bus     bus.MessageRouter
	running bool
}

func NewBaseChannel(name string, msgBus bus.MessageRouter) *BaseChannel {
	return &BaseChannel{name: name, bus: msgBus}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool { return c.running }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running = running }

// Bus returns the message bus reference.
func (c *BaseChannel) Bus() bus.MessageRouter { return c.bus }

// HandleMessage stamps the channel name onto an inbound message and
// publishes it. This is the standard way for channels to forward received
// messages.
func (c *BaseChannel) HandleMessage(msg bus.InboundMessage) {
	msg.Channel = c.name
	c.bus.PublishInbound(msg)
}
