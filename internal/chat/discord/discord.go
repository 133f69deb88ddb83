// Package discord connects the bot to Discord channels over the Gateway.
package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/your-org/facebot/internal/bot"
	"github.com/your-org/facebot/internal/chat"
	"github.com/your-org/facebot/internal/config"
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	AddHandler(handler interface{}) func()
}

// UpdateHandler receives every inbound message.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u bot.Update) error
}

// Transport sends replies to Discord channels and feeds inbound channel
// messages to a handler. Chat ids are channel ids.
type Transport struct {
	sess  session
	retry chat.RetryPolicy

	mu        sync.Mutex
	botUserID string
	remove    []func()
}

func New(cfg config.DiscordConfig) (*Transport, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	return newTransport(dg, chat.DefaultRetryPolicy(cfg.MaxRetries)), nil
}

func newTransport(sess session, retry chat.RetryPolicy) *Transport {
	return &Transport{sess: sess, retry: retry}
}

// Listen opens the Gateway connection and dispatches each message to h.
// It blocks until ctx ends, then closes the connection.
func (t *Transport) Listen(ctx context.Context, h UpdateHandler) error {
	t.mu.Lock()
	t.remove = append(t.remove,
		t.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			t.mu.Lock()
			t.botUserID = r.User.ID
			t.mu.Unlock()
			slog.Info("discord connected", "user", r.User.Username)
		}),
		t.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			t.dispatch(ctx, h, m)
		}),
	)
	t.mu.Unlock()

	if err := t.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	<-ctx.Done()
	return t.Close()
}

func (t *Transport) dispatch(ctx context.Context, h UpdateHandler, m *discordgo.MessageCreate) {
	u, ok := t.updateFromMessage(m)
	if !ok {
		return
	}
	if err := h.HandleUpdate(ctx, u); err != nil {
		slog.Error("handle discord message", "channel", m.ChannelID, "error", err)
	}
}

// updateFromMessage skips messages written by bots, including this one.
func (t *Transport) updateFromMessage(m *discordgo.MessageCreate) (bot.Update, bool) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot {
		return bot.Update{}, false
	}
	t.mu.Lock()
	self := t.botUserID
	t.mu.Unlock()
	if m.Author.ID == self {
		return bot.Update{}, false
	}

	u := bot.Update{ChatID: m.ChannelID}
	if m.Content != "" {
		text := m.Content
		u.Text = &text
	}
	return u, true
}

func (t *Transport) SendMessage(ctx context.Context, channelID, text string) error {
	err := t.retry.Do(ctx, retryable, func() error {
		_, err := t.sess.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

func (t *Transport) SendPhoto(ctx context.Context, channelID, name string, image []byte) error {
	err := t.retry.Do(ctx, retryable, func() error {
		_, err := t.sess.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Files: []*discordgo.File{{
				Name:        name,
				ContentType: http.DetectContentType(image),
				Reader:      bytes.NewReader(image),
			}},
		}, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return fmt.Errorf("discord: send photo: %w", err)
	}
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	for _, rm := range t.remove {
		rm()
	}
	t.remove = nil
	t.mu.Unlock()
	return t.sess.Close()
}

// retryable retries rate limits, server errors and transport failures.
func retryable(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		code := restErr.Response.StatusCode
		return code == http.StatusTooManyRequests || code >= 500
	}
	return true
}
