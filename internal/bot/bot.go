// Package bot implements the labeling conversation: it hands out unlabeled
// faces, records the names users reply with and finds photos by name.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/models"
	"github.com/your-org/facebot/internal/observability"
	"github.com/your-org/facebot/internal/session"
)

const (
	cmdGetFace = "/getface"
	cmdFind    = "/find"
)

// Update is one inbound chat message. Text is nil for messages without
// text, such as stickers or photos.
type Update struct {
	ChatID string
	Text   *string
}

// Transport delivers replies to a chat.
type Transport interface {
	SendMessage(ctx context.Context, chatID, text string) error
	SendPhoto(ctx context.Context, chatID, name string, image []byte) error
}

// FaceStore is the part of storage.FaceStore the conversation needs.
type FaceStore interface {
	ScanUnlabeled(ctx context.Context) (*models.FaceRecord, error)
	ScanByName(ctx context.Context, name string) ([]models.FaceRecord, error)
	UpdateName(ctx context.Context, faceID, name string) error
}

type Options struct {
	Messages config.BotMessages
	// FindOriginals sends the source photo of each match instead of its crop.
	FindOriginals bool
}

type Bot struct {
	faces    FaceStore
	images   Retriever
	sessions session.Store
	out      Transport
	opts     Options
}

func New(faces FaceStore, images Retriever, sessions session.Store, out Transport, opts Options) *Bot {
	return &Bot{faces: faces, images: images, sessions: sessions, out: out, opts: opts}
}

// HandleUpdate runs one step of the conversation for u.ChatID. Failures of
// the store, retrieval or transport are returned after the chat has been
// told, where possible, that the bot is temporarily unavailable.
func (b *Bot) HandleUpdate(ctx context.Context, u Update) error {
	if u.Text == nil {
		return b.reply(ctx, "none", u.ChatID, b.opts.Messages.NoText)
	}

	text := *u.Text
	switch {
	case strings.HasPrefix(text, cmdGetFace):
		return b.getFace(ctx, u.ChatID)
	case strings.HasPrefix(text, cmdFind):
		return b.find(ctx, u.ChatID, findArgument(text))
	default:
		return b.assignName(ctx, u.ChatID, text)
	}
}

func (b *Bot) getFace(ctx context.Context, chatID string) error {
	rec, err := b.faces.ScanUnlabeled(ctx)
	if err != nil {
		return b.fail(ctx, cmdGetFace, chatID, fmt.Errorf("scan unlabeled: %w", err))
	}
	if rec == nil {
		return b.reply(ctx, cmdGetFace, chatID, b.opts.Messages.FaceNotFound)
	}

	img, err := b.images.FaceImage(ctx, rec.FaceID)
	if err != nil {
		return b.fail(ctx, cmdGetFace, chatID, fmt.Errorf("fetch face %s: %w", rec.FaceID, err))
	}
	if err := b.out.SendPhoto(ctx, chatID, rec.FaceID, img); err != nil {
		observability.BotCommands.WithLabelValues(cmdGetFace, "error").Inc()
		return fmt.Errorf("send face %s: %w", rec.FaceID, err)
	}
	if err := b.sessions.Save(ctx, chatID, session.Awaiting(rec.FaceID)); err != nil {
		return b.fail(ctx, cmdGetFace, chatID, fmt.Errorf("save session: %w", err))
	}
	observability.BotCommands.WithLabelValues(cmdGetFace, "ok").Inc()
	return nil
}

func (b *Bot) find(ctx context.Context, chatID, name string) error {
	matches, err := b.faces.ScanByName(ctx, name)
	if err != nil {
		return b.fail(ctx, cmdFind, chatID, fmt.Errorf("scan by name: %w", err))
	}
	if len(matches) == 0 {
		return b.reply(ctx, cmdFind, chatID, b.opts.Messages.PhotosNotFound)
	}

	var firstErr error
	sent := 0
	for _, rec := range matches {
		if err := b.sendMatch(ctx, chatID, rec); err != nil {
			slog.Warn("send find result", "chat", chatID, "face", rec.FaceID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent++
	}

	if firstErr != nil {
		if sent == 0 {
			return b.fail(ctx, cmdFind, chatID, firstErr)
		}
		observability.BotCommands.WithLabelValues(cmdFind, "partial").Inc()
		return firstErr
	}
	observability.BotCommands.WithLabelValues(cmdFind, "ok").Inc()
	return nil
}

func (b *Bot) sendMatch(ctx context.Context, chatID string, rec models.FaceRecord) error {
	name, fetch := rec.FaceID, b.images.FaceImage
	if b.opts.FindOriginals {
		name, fetch = rec.OriginalImageKey, b.images.OriginalImage
	}
	img, err := fetch(ctx, name)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", name, err)
	}
	if err := b.out.SendPhoto(ctx, chatID, name, img); err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	return nil
}

func (b *Bot) assignName(ctx context.Context, chatID, name string) error {
	state, err := b.sessions.Load(ctx, chatID)
	if err != nil {
		return b.fail(ctx, "text", chatID, fmt.Errorf("load session: %w", err))
	}
	if state.Idle() {
		return b.reply(ctx, "text", chatID, b.opts.Messages.RequestFaceFirst)
	}

	if err := b.faces.UpdateName(ctx, state.AwaitingFaceID, name); err != nil {
		return b.fail(ctx, "text", chatID, fmt.Errorf("update name of %s: %w", state.AwaitingFaceID, err))
	}
	if err := b.sessions.Save(ctx, chatID, session.State{}); err != nil {
		return b.fail(ctx, "text", chatID, fmt.Errorf("reset session: %w", err))
	}
	slog.Info("face labeled", "chat", chatID, "face", state.AwaitingFaceID)
	return b.reply(ctx, "text", chatID, b.opts.Messages.NameSaved)
}

func (b *Bot) reply(ctx context.Context, command, chatID, text string) error {
	if err := b.out.SendMessage(ctx, chatID, text); err != nil {
		observability.BotCommands.WithLabelValues(command, "error").Inc()
		return fmt.Errorf("send message: %w", err)
	}
	observability.BotCommands.WithLabelValues(command, "ok").Inc()
	return nil
}

// fail tells the chat the bot is unavailable and returns err.
func (b *Bot) fail(ctx context.Context, command, chatID string, err error) error {
	observability.BotCommands.WithLabelValues(command, "error").Inc()
	if sendErr := b.out.SendMessage(ctx, chatID, b.opts.Messages.Unavailable); sendErr != nil {
		slog.Warn("notify chat of failure", "chat", chatID, "error", sendErr)
	}
	return err
}

// findArgument returns what follows the first run of whitespace, trimmed.
func findArgument(text string) string {
	i := strings.IndexFunc(text, unicode.IsSpace)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(text[i:])
}
