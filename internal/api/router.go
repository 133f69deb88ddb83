package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facebot/internal/api/handlers"
	"github.com/your-org/facebot/internal/auth"
)

type RouterConfig struct {
	APIKey string
	Faces  handlers.FaceStore
	Blobs  handlers.BlobGetter
	// Uploads publishes upload notifications; nil disables POST /v1/uploads.
	Uploads handlers.UploadPublisher
	// Bot answers Telegram webhook updates; nil disables the webhook.
	Bot           handlers.UpdateHandler
	WebhookSecret string
	FaceBucket    string
	SourceBucket  string
	Checks        []handlers.Check
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Faces, cfg.Checks...)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public retrieval URLs used by the bot and chat clients
	faceH := handlers.NewFaceHandler(cfg.Faces, cfg.Blobs, cfg.FaceBucket, cfg.SourceBucket)
	r.GET("/", faceH.Root)
	r.GET("/faces/*key", faceH.FaceImage)
	r.GET("/original", faceH.Original)
	r.GET("/originals/*key", faceH.OriginalImage)

	if cfg.Bot != nil {
		webhookH := handlers.NewWebhookHandler(cfg.Bot, cfg.WebhookSecret)
		r.POST("/webhook/telegram", webhookH.Telegram)
	}

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Uploads != nil {
		uploadH := handlers.NewUploadHandler(cfg.Uploads)
		v1.POST("/uploads", uploadH.Notify)
	}

	v1.GET("/faces", faceH.List)
	v1.GET("/faces/unlabeled", faceH.Unlabeled)
	v1.GET("/faces/:key", faceH.Get)
	v1.PUT("/faces/:key/name", faceH.Rename)

	return r
}
