package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/goanswer/internal/bus"
	"github.com/nextlevelbuilder/goanswer/internal/channels"
	"github.com/nextlevelbuilder/goanswer/internal/channels/typing"
	"github.com/nextlevelbuilder/goanswer/internal/config"
)

// maxMessageLen is Discord's per-message character limit; longer replies
// are split by splitMessage.
const maxMessageLen = 2000

// Discord's own typing indicator lasts about 10s, so the keepalive refires
// just under that. The cap stops stuck indicators when a pipeline dies.
const (
	typingKeepalive   = 9 * time.Second
	typingMaxDuration = 60 * time.Second
)

// Channel connects to Discord via the Bot API using gateway events.
//
// The channel is deliberately thin: it forwards every message except the
// bot's own to the bus and leaves command and mention classification to
// the relay. Replies come back through Send.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	config    config.DiscordConfig
	botUserID string // populated on start

	// limiter paces outbound sends under Discord's per-channel message
	// budget (5 per 5s) so multi-chunk replies don't trip HTTP 429s.
	limiter *rate.Limiter
}

// New creates a new Discord channel from config.
func New(cfg config.DiscordConfig, msgBus bus.MessageRouter) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord", msgBus),
		session:     session,
		config:      cfg,
		limiter:     rate.NewLimiter(rate.Every(time.Second), 5),
	}, nil
}

// Start opens the Discord gateway connection and begins receiving events.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord bot")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)

	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	c.SetRunning(false)
	return c.session.Close()
}

// Send delivers an outbound message, splitting it into Discord-sized
// chunks. A permission error aborts the remaining chunks; any other send
// failure is logged and the rest are still attempted.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	if msg.ChatID == "" {
		return fmt.Errorf("empty chat ID for discord send")
	}
	if msg.Content == "" {
		return nil
	}

	for i, chunk := range splitMessage(msg.Content, maxMessageLen) {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
		if _, err := c.session.ChannelMessageSend(msg.ChatID, chunk); err != nil {
			if isForbidden(err) {
				return fmt.Errorf("no permission to post in channel %s: %w", msg.ChatID, err)
			}
			slog.Warn("discord send failed, continuing with remaining chunks",
				"channel_id", msg.ChatID,
				"chunk", i,
				"error", err,
			)
		}
	}

	return nil
}

// StartTyping implements channels.TypingNotifier.
func (c *Channel) StartTyping(chatID string) func() {
	ctrl := typing.New(typing.Options{
		MaxDuration:       typingMaxDuration,
		KeepaliveInterval: typingKeepalive,
		StartFn: func() error {
			return c.session.ChannelTyping(chatID)
		},
	})
	ctrl.Start()
	return ctrl.Stop
}

// handleMessage forwards incoming Discord messages to the bus. Only the
// bot's own messages are dropped here; other bots are legitimate askers
// and their flag travels in the metadata.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID {
		return
	}

	peerKind := bus.PeerGroup
	if m.GuildID == "" {
		peerKind = bus.PeerDirect
	}

	slog.Debug("discord message received",
		"sender_id", m.Author.ID,
		"channel_id", m.ChannelID,
		"is_dm", peerKind == bus.PeerDirect,
	)

	md := map[string]string{
		"message_id":   m.ID,
		"guild_id":     m.GuildID,
		"username":     m.Author.Username,
		"display_name": resolveDisplayName(m),
		"is_bot":       strconv.FormatBool(m.Author.Bot),
	}
	// Accounts migrated off legacy usernames report discriminator "0".
	if d := m.Author.Discriminator; d != "" && d != "0" {
		md["discriminator"] = d
	}

	c.HandleMessage(bus.InboundMessage{
		SenderID: m.Author.ID,
		SelfID:   c.botUserID,
		ChatID:   m.ChannelID,
		Content:  m.Content,
		PeerKind: peerKind,
		Metadata: md,
	})
}

// splitMessage breaks content into chunks of at most maxLen characters,
// cutting at the last newline or space within the limit (whichever comes
// later) and hard-cutting between characters when there is no usable break.
// Discord counts characters, not bytes, so the window is measured in runes.
// Leading whitespace is stripped from continuation chunks so they don't
// start mid-break.
func splitMessage(content string, maxLen int) []string {
	var chunks []string

	for {
		window := runePrefix(content, maxLen)
		if len(window) == len(content) {
			break
		}
		cutAt := max(strings.LastIndexByte(window, '\n'), strings.LastIndexByte(window, ' '))
		if cutAt <= 0 {
			cutAt = len(window)
		}
		chunks = append(chunks, content[:cutAt])
		content = strings.TrimLeft(content[cutAt:], " \n\t\r")
	}

	if content != "" || len(chunks) == 0 {
		chunks = append(chunks, content)
	}
	return chunks
}

// runePrefix returns the longest prefix of s holding at most n runes. The
// cut always lands on a rune boundary, so a hard split cannot tear a
// multi-byte character.
func runePrefix(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}

// isForbidden reports whether a send failed for lack of permission, which
// means the remaining chunks would fail the same way.
func isForbidden(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) &&
		restErr.Response != nil &&
		restErr.Response.StatusCode == http.StatusForbidden
}

// resolveDisplayName returns the best available display name for a Discord
// message author. Priority: server nickname > global display name > username.
func resolveDisplayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
