// Package discord is the bot front end: it receives Discord messages,
// dispatches them into PersonalityChatCore, and relays replies (including
// generated images) back to the channel they came from.
//
// Grounded on the teacher's internal/channels/discord/discord.go — the
// discordgo session setup, intents, typing indicator, and chunked-send
// plumbing are carried over largely unchanged, since
// none of that is specific to the teacher's coding-agent domain. What's
// replaced is the dispatch target: the teacher hands messages to a
// channel-agnostic message bus feeding a tool-calling agent loop; here a
// message goes straight to personality.Core.Chat, and an image-generation
// reply is resolved by polling the queue through toolsurface.Surface.
//
// The teacher's generic multi-channel registry (internal/channels'
// BaseChannel/manager/instance_loader, DB-backed channel_instances, and the
// feishu/telegram/whatsapp/zalo siblings) isn't carried forward: the spec
// calls for exactly one bot front end, configured from the static config
// file like every other component, not a pluggable multi-tenant channel
// fleet loaded from a database. See DESIGN.md.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
	"github.com/sdforge/sdforge-gateway/internal/config"
	"github.com/sdforge/sdforge-gateway/internal/convstore"
	"github.com/sdforge/sdforge-gateway/internal/personality"
	"github.com/sdforge/sdforge-gateway/internal/queue"
	"github.com/sdforge/sdforge-gateway/internal/toolsurface"
)

const (
	discordMessageLimit = 2000
	typingInterval      = 8 * time.Second
	imagePollInterval   = 2 * time.Second
	imagePollTimeout    = 5 * time.Minute
)

// Bot is the Discord front end.
type Bot struct {
	session *discordgo.Session
	cfg     config.DiscordConfig
	rate    config.RateLimitConfig

	core    *personality.Core
	surface *toolsurface.Surface
	conv    *convstore.Store

	logger *slog.Logger

	botUserID string
	typingMu  sync.Mutex
	typing    map[string]chan struct{}
}

// New builds a Bot from a discord bot token and wires it to the chat core
// and tool surface used to answer messages.
func New(cfg config.DiscordConfig, rate config.RateLimitConfig, core *personality.Core,
	surface *toolsurface.Surface, conv *convstore.Store, logger *slog.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, apperr.New(apperr.Configuration, "discord token is required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, apperr.Wrap(apperr.Configuration, "create discord session", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	b := &Bot{
		session: session,
		cfg:     cfg,
		rate:    rate,
		core:    core,
		surface: surface,
		conv:    conv,
		logger:  logger,
		typing:  make(map[string]chan struct{}),
	}
	session.AddHandler(b.handleMessage)
	return b, nil
}

// Start opens the gateway connection and resolves the bot's own user ID so
// it can filter out its own messages and detect @mentions.
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return apperr.Wrap(apperr.Transport, "open discord session", err)
	}
	if b.session.State.User != nil {
		b.botUserID = b.session.State.User.ID
	}
	b.logger.Info("discord bot connected", "bot_user_id", b.botUserID)
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() error {
	return b.session.Close()
}

func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.Author.ID == b.botUserID {
		return
	}

	isDM := m.GuildID == ""
	mentioned := b.isMentioned(m)
	if !isDM && !mentioned {
		return
	}

	content := stripMention(m.Content, b.botUserID)
	if content == "" {
		return
	}

	if admin := b.handleAdminCommand(m, content); admin {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	stopTyping := b.startTyping(m.ChannelID)
	defer stopTyping()

	contextKey := convstore.DeriveContextKey(m.GuildID, m.ChannelID, "", m.Author.ID)
	reply, err := b.core.Chat(ctx, m.Author.ID, contextKey, content, b.rate.ChatPerMinute)
	if err != nil {
		b.logger.Error("chat turn failed", "error", err, "user", resolveDisplayName(m))
		b.sendChunked(m.ChannelID, "Something went wrong processing that — try again in a moment.")
		return
	}
	if reply.Refused {
		b.sendChunked(m.ChannelID, reply.RefusalReason)
		return
	}

	if reply.Text != "" {
		b.sendChunked(m.ChannelID, reply.Text)
	}
	if reply.ImageJobID != "" {
		go b.awaitImageJob(m.ChannelID, reply.ImageJobID)
	}
}

// awaitImageJob polls the job queue through the tool surface until the
// enqueued generation finishes, then posts the resulting image(s) or a
// failure notice.
func (b *Bot) awaitImageJob(channelID, jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), imagePollTimeout)
	defer cancel()

	ticker := time.NewTicker(imagePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.sendChunked(channelID, fmt.Sprintf("Job `%s` timed out waiting for the engine.", jobID))
			return
		case <-ticker.C:
			result := b.surface.GetGenerationProgress(ctx, jobID)
			if !result.Success {
				b.sendChunked(channelID, fmt.Sprintf("Lost track of job `%s`: %s", jobID, result.Error))
				return
			}
			job, ok := result.Payload.(*queue.Job)
			if !ok {
				continue
			}
			switch job.Status {
			case queue.StatusDone:
				if len(job.ResultPaths) == 0 {
					b.sendChunked(channelID, "Generation finished with no output image.")
					return
				}
				b.sendChunked(channelID, strings.Join(job.ResultPaths, "\n"))
				return
			case queue.StatusFailed:
				b.sendChunked(channelID, fmt.Sprintf("Generation failed: %s", job.Err))
				return
			case queue.StatusCanceled:
				b.sendChunked(channelID, "Generation was canceled.")
				return
			}
		}
	}
}

func (b *Bot) isMentioned(m *discordgo.MessageCreate) bool {
	if b.botUserID == "" {
		return false
	}
	for _, u := range m.Mentions {
		if u.ID == b.botUserID {
			return true
		}
	}
	return false
}

func stripMention(content, botUserID string) string {
	if botUserID == "" {
		return strings.TrimSpace(content)
	}
	content = strings.ReplaceAll(content, "<@"+botUserID+">", "")
	content = strings.ReplaceAll(content, "<@!"+botUserID+">", "")
	return strings.TrimSpace(content)
}

// startTyping sends a typing indicator immediately and every typingInterval
// until the returned stop function is called.
func (b *Bot) startTyping(channelID string) func() {
	stop := make(chan struct{})
	_ = b.session.ChannelTyping(channelID)
	go func() {
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = b.session.ChannelTyping(channelID)
			}
		}
	}()
	return func() { close(stop) }
}

// sendChunked splits content into Discord's 2000-character message limit,
// breaking on the last newline before the limit when possible.
func (b *Bot) sendChunked(channelID, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	for len(content) > 0 {
		if len(content) <= discordMessageLimit {
			b.send(channelID, content)
			return
		}
		cut := lastIndexByte(content[:discordMessageLimit], '\n')
		if cut <= 0 {
			cut = discordMessageLimit
		}
		b.send(channelID, content[:cut])
		content = strings.TrimSpace(content[cut:])
	}
}

func (b *Bot) send(channelID, content string) {
	if _, err := b.session.ChannelMessageSend(channelID, content); err != nil {
		b.logger.Error("send discord message failed", "error", err, "channel_id", channelID)
	}
}

func lastIndexByte(s string, c byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == c {
			return i
		}
	}
	return -1
}

func resolveDisplayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}
