// Package telegram connects the bot to the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/your-org/facebot/internal/bot"
	"github.com/your-org/facebot/internal/chat"
	"github.com/your-org/facebot/internal/config"
)

// Transport sends bot replies through the Bot API with bounded retries.
type Transport struct {
	api   *tgbotapi.BotAPI
	retry chat.RetryPolicy
}

// New authenticates the token with getMe.
func New(cfg config.TelegramConfig) (*Transport, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	client := &http.Client{Timeout: cfg.Timeout}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	return &Transport{api: api, retry: chat.DefaultRetryPolicy(cfg.MaxRetries)}, nil
}

func (t *Transport) SendMessage(ctx context.Context, chatID, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	return t.send(ctx, tgbotapi.NewMessage(id, text))
}

func (t *Transport) SendPhoto(ctx context.Context, chatID, name string, image []byte) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	return t.send(ctx, tgbotapi.NewPhoto(id, tgbotapi.FileBytes{Name: name, Bytes: image}))
}

func (t *Transport) send(ctx context.Context, c tgbotapi.Chattable) error {
	err := t.retry.Do(ctx, retryable, func() error {
		_, err := t.api.Send(c)
		return err
	})
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

// Username is the bot account name reported by getMe.
func (t *Transport) Username() string {
	return t.api.Self.UserName
}

// retryable reports whether a send may succeed on retry. API errors other
// than rate limits and server faults are final; transport failures are not.
func retryable(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return true
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: chat id %q: %w", chatID, err)
	}
	return id, nil
}

// UpdateFromTelegram converts a webhook update. ok is false for updates
// that carry no message, such as callback queries or edits.
func UpdateFromTelegram(u tgbotapi.Update) (update bot.Update, ok bool) {
	msg := u.Message
	if msg == nil || msg.Chat == nil {
		return bot.Update{}, false
	}
	update.ChatID = strconv.FormatInt(msg.Chat.ID, 10)
	if msg.Text != "" {
		text := msg.Text
		update.Text = &text
	}
	return update, true
}
