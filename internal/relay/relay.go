// Package relay consumes inbound chat events and drives the question
// pipeline: classify the event, load the sender's conversation history,
// ask the answer service, persist the exchange, and publish the reply.
//
// Every event is handled in its own goroutine. Two concurrent questions
// from the same user can interleave; the store's last write wins, which
// is accepted behaviour for a chat assistant.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/goanswer/internal/answer"
	"github.com/nextlevelbuilder/goanswer/internal/bus"
	"github.com/nextlevelbuilder/goanswer/internal/history"
	"github.com/nextlevelbuilder/goanswer/internal/store"
)

var tracer = otel.Tracer("github.com/nextlevelbuilder/goanswer/internal/relay")

const (
	// startCommand is the only registered command. Anything else behind
	// the prefix falls through to normal question gating.
	startCommand = "start"

	emptyQuestionReply = "Please provide a question after mentioning me."
)

// Options tunes the consumer.
type Options struct {
	// CommandPrefix introduces commands, "!" by default.
	CommandPrefix string

	// StartTyping begins a typing indicator for a chat and returns a stop
	// function. Optional; nil disables indicators.
	StartTyping func(channel, chatID string) func()
}

// Consumer routes inbound messages through the question pipeline.
type Consumer struct {
	bus     bus.MessageRouter
	store   store.HistoryStore
	answers *answer.Client
	prefix  string
	typing  func(channel, chatID string) func()
}

// New creates a relay consumer. The store and answer client are required;
// see Options for the rest.
func New(msgBus bus.MessageRouter, historyStore store.HistoryStore, client *answer.Client, opts Options) *Consumer {
	prefix := opts.CommandPrefix
	if prefix == "" {
		prefix = "!"
	}
	typing := opts.StartTyping
	if typing == nil {
		typing = func(string, string) func() { return func() {} }
	}
	return &Consumer{
		bus:     msgBus,
		store:   historyStore,
		answers: client,
		prefix:  prefix,
		typing:  typing,
	}
}

// Run consumes inbound messages until ctx is cancelled. Each event is
// processed in its own goroutine so a slow answer call never blocks the
// rest of the queue.
func (c *Consumer) Run(ctx context.Context) {
	slog.Info("relay consumer started", "command_prefix", c.prefix)

	for {
		msg, ok := c.bus.ConsumeInbound(ctx)
		if !ok {
			slog.Info("relay consumer stopped")
			return
		}
		go c.process(ctx, msg)
	}
}

// process handles a single inbound event end to end.
func (c *Consumer) process(ctx context.Context, msg bus.InboundMessage) {
	eventID := uuid.NewString()[:8]

	ctx, span := tracer.Start(ctx, "relay.process", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.String("channel", msg.Channel),
		attribute.String("chat.id", msg.ChatID),
		attribute.String("peer.kind", msg.PeerKind),
	))
	defer span.End()

	content := strings.TrimSpace(msg.Content)

	// Commands run first and consume the event entirely. They work in
	// shared channels without a mention.
	if name, ok := c.command(content); ok {
		span.SetAttributes(attribute.String("event.kind", "command"))
		c.handleCommand(msg, name, eventID)
		return
	}

	// Everything else needs a DM, or a shared-channel message that opens by
	// mentioning the bot. The mention prefix is cut from the question; a
	// mention later in the text does not count.
	question := content
	if msg.PeerKind != bus.PeerDirect {
		rest, ok := cutLeadingMention(content, msg.SelfID)
		if !ok {
			return
		}
		question = rest
	}
	span.SetAttributes(attribute.String("event.kind", "question"))

	if question == "" {
		c.reply(msg, emptyQuestionReply)
		return
	}

	slog.Info("relay: processing question",
		"event_id", eventID,
		"channel", msg.Channel,
		"chat_id", msg.ChatID,
		"sender_id", msg.SenderID,
	)

	stopTyping := c.typing(msg.Channel, msg.ChatID)
	defer stopTyping()

	rec := c.store.Load(ctx, msg.SenderID)
	turns := append(rec.History, history.Turn{Role: history.RoleUser, Content: question})

	askCtx, askSpan := tracer.Start(ctx, "answer.ask")
	res := c.answers.Ask(askCtx, question, turns, rec.ConversationID)
	askSpan.End()

	turns = append(turns, history.Turn{Role: history.RoleAssistant, Content: res.Answer})

	// Persist before replying so a crash after the send cannot lose the
	// exchange that the user already saw.
	if err := c.store.Save(ctx, msg.SenderID, turns, res.ConversationID, userInfo(msg)); err != nil {
		slog.Error("relay: failed to persist conversation",
			"event_id", eventID,
			"sender_id", msg.SenderID,
			"error", err,
		)
	}

	c.reply(msg, res.Answer)
}

// handleCommand dispatches a recognized command.
func (c *Consumer) handleCommand(msg bus.InboundMessage, name, eventID string) {
	slog.Info("relay: command",
		"event_id", eventID,
		"command", name,
		"channel", msg.Channel,
		"sender_id", msg.SenderID,
	)

	switch name {
	case startCommand:
		c.reply(msg, fmt.Sprintf("Hi <@%s>! How can I assist you today?", msg.SenderID))
	}
}

// command reports whether content invokes a registered command and returns
// its name. The command word must follow the prefix immediately, so
// "! start" is not a command. Unregistered words behind the prefix are not
// commands either; both fall through to question gating unchanged.
func (c *Consumer) command(content string) (string, bool) {
	rest, ok := strings.CutPrefix(content, c.prefix)
	if !ok || rest == "" {
		return "", false
	}
	if r, _ := utf8.DecodeRuneInString(rest); unicode.IsSpace(r) {
		return "", false
	}
	fields := strings.Fields(rest)
	if fields[0] != startCommand {
		return "", false
	}
	return fields[0], true
}

func (c *Consumer) reply(msg bus.InboundMessage, content string) {
	c.bus.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: content,
	})
}

// cutLeadingMention removes a mention of the bot user at the start of
// content, in either the plain "<@id>" or the nickname "<@!id>" form,
// along with the whitespace after it. The second return reports whether
// such a mention was present.
func cutLeadingMention(content, selfID string) (string, bool) {
	if selfID == "" {
		return content, false
	}
	for _, form := range []string{"<@" + selfID + ">", "<@!" + selfID + ">"} {
		if rest, ok := strings.CutPrefix(content, form); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return content, false
}

// userInfo builds the persisted sender snapshot from channel metadata.
func userInfo(msg bus.InboundMessage) *store.UserInfo {
	info := &store.UserInfo{ID: msg.SenderID}
	if md := msg.Metadata; md != nil {
		info.Name = md["username"]
		info.Discriminator = md["discriminator"]
		info.DisplayName = md["display_name"]
		info.IsBot = md["is_bot"] == "true"
	}
	return info
}
