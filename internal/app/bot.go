// Package app wires the components shared by the binaries.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"

	"github.com/your-org/facebot/internal/bot"
	"github.com/your-org/facebot/internal/chat/discord"
	"github.com/your-org/facebot/internal/chat/telegram"
	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/session"
)

// BotRuntime is a ready conversation bot with its transport. Discord is set
// when the bot listens on the Discord gateway; Telegram updates arrive
// through the API webhook instead.
type BotRuntime struct {
	Bot      *bot.Bot
	Sessions session.Store
	Discord  *discord.Transport

	redis *redis.Client
}

func (r *BotRuntime) Close() {
	if r.redis != nil {
		r.redis.Close()
	}
}

// NewBot builds the bot from config: session store, image retriever and
// chat transport.
func NewBot(ctx context.Context, cfg *config.Config, faces bot.FaceStore, blobs bot.BlobGetter) (*BotRuntime, error) {
	rt := &BotRuntime{}

	if cfg.Session.Backend == "redis" {
		client, err := session.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		rt.redis = client
	}
	sessions, err := session.New(cfg.Session, rt.redis)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Sessions = sessions

	var images bot.Retriever
	switch cfg.Bot.Retrieval {
	case "http":
		images = bot.NewHTTPRetriever(cfg.Bot.RetrievalBaseURL, &http.Client{Timeout: cfg.Telegram.Timeout})
	default:
		images = bot.NewBlobRetriever(blobs, cfg.MinIO.TargetBucket, cfg.MinIO.SourceBucket)
	}

	var out bot.Transport
	switch cfg.Bot.Transport {
	case "discord":
		d, err := discord.New(cfg.Discord)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.Discord = d
		out = d
	case "telegram":
		t, err := telegram.New(cfg.Telegram)
		if err != nil {
			rt.Close()
			return nil, err
		}
		out = t
	default:
		rt.Close()
		return nil, fmt.Errorf("unsupported bot transport %q", cfg.Bot.Transport)
	}

	rt.Bot = bot.New(faces, images, sessions, out, bot.Options{
		Messages:      cfg.Bot.Messages,
		FindOriginals: cfg.Bot.FindOriginals,
	})
	return rt, nil
}
