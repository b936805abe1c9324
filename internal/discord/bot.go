// Package discord connects the command layer to a Discord gateway session.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/commands"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/config"
	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
	"github.com/rs/zerolog/log"
)

// typingRefresh is how often the typing indicator is renewed while a turn
// runs. Discord clears it after about ten seconds.
const typingRefresh = 8 * time.Second

// Sender is the part of a Discord session the bot writes through.
type Sender interface {
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// ChannelNamer resolves a channel id to its name.
type ChannelNamer func(channelID string) (string, error)

// Bot relays Discord messages. Plain messages in the AI channel become chat
// turns; prefixed messages run as commands in any channel.
type Bot struct {
	dispatcher  *commands.Dispatcher
	channelName string
	token       string
}

// New creates a bot. The token is only needed by Run.
func New(cfg config.DiscordConfig, d *commands.Dispatcher) *Bot {
	return &Bot{dispatcher: d, channelName: cfg.ChannelName, token: cfg.Token}
}

// Run connects to the gateway and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if b.token == "" {
		return errors.New("DISCORD_BOT_TOKEN not found in environment variables")
	}
	s, err := discordgo.New("Bot " + b.token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Info().
			Str("user", r.User.String()).
			Int("guilds", len(r.Guilds)).
			Str("channel", "#"+b.channelName).
			Msg("🤖 Connected to Discord")
	})
	s.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || s.State.User == nil {
			return
		}
		b.HandleMessage(ctx, s, sessionNamer(s), s.State.User.ID, m.Message)
	})

	if err := s.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	defer s.Close()

	<-ctx.Done()
	log.Info().Msg("Disconnecting from Discord")
	return nil
}

func sessionNamer(s *discordgo.Session) ChannelNamer {
	return func(channelID string) (string, error) {
		if ch, err := s.State.Channel(channelID); err == nil {
			return ch.Name, nil
		}
		ch, err := s.Channel(channelID)
		if err != nil {
			return "", err
		}
		return ch.Name, nil
	}
}

// HandleMessage processes one incoming message. selfID is the bot's user id.
func (b *Bot) HandleMessage(ctx context.Context, out Sender, names ChannelNamer, selfID string, m *discordgo.Message) {
	if m.Author == nil || m.Author.ID == selfID || m.Author.Bot {
		return
	}
	content := strings.TrimSpace(m.Content)
	if content == "" {
		return
	}
	key := models.ConversationKey(m.ChannelID)

	if b.dispatcher.IsCommand(content) {
		replies := b.withTyping(ctx, out, m.ChannelID, func() []commands.Reply {
			r, _ := b.dispatcher.Handle(ctx, key, content)
			return r
		})
		b.send(out, m.ChannelID, replies)
		return
	}

	name, err := names(m.ChannelID)
	if err != nil {
		log.Debug().Err(err).Str("channel", m.ChannelID).Msg("Channel lookup failed")
		return
	}
	if name != b.channelName {
		return
	}
	replies := b.withTyping(ctx, out, m.ChannelID, func() []commands.Reply {
		return b.dispatcher.Chat(ctx, key, content)
	})
	b.send(out, m.ChannelID, replies)
}

// withTyping shows the typing indicator for as long as fn runs.
func (b *Bot) withTyping(ctx context.Context, out Sender, channelID string, fn func() []commands.Reply) []commands.Reply {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(typingRefresh)
		defer t.Stop()
		for {
			if err := out.ChannelTyping(channelID); err != nil {
				log.Debug().Err(err).Msg("Typing indicator failed")
			}
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
	defer close(done)
	return fn()
}

func (b *Bot) send(out Sender, channelID string, replies []commands.Reply) {
	for _, r := range replies {
		if r.Text != "" {
			if _, err := out.ChannelMessageSend(channelID, r.Text); err != nil {
				log.Error().Err(err).Str("channel", channelID).Msg("Failed to send message")
			}
		}
		if r.Embed != nil {
			if _, err := out.ChannelMessageSendEmbed(channelID, toEmbed(r.Embed)); err != nil {
				log.Error().Err(err).Str("channel", channelID).Msg("Failed to send embed")
			}
		}
	}
}

func toEmbed(e *commands.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	return out
}
