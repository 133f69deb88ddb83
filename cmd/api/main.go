package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/your-org/facebot/internal/api"
	"github.com/your-org/facebot/internal/api/handlers"
	"github.com/your-org/facebot/internal/app"
	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/janitor"
	"github.com/your-org/facebot/internal/observability"
	"github.com/your-org/facebot/internal/provision"
	"github.com/your-org/facebot/internal/queue"
	"github.com/your-org/facebot/internal/storage"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facebot API service", "port", cfg.Server.Port, "transport", cfg.Bot.Transport)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Face records
	faces, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("open face store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer faces.Close()

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if cfg.Server.Provision {
		err := provision.Run(ctx, provision.Targets{
			Faces:   faces,
			Blobs:   minioStore,
			Buckets: []string{cfg.MinIO.SourceBucket, cfg.MinIO.TargetBucket},
			Streams: producer,
		})
		if err != nil {
			slog.Error("provision", "error", err)
			os.Exit(1)
		}
	}

	checks := []handlers.Check{
		{Name: cfg.Database.Driver, Ping: faces.Ping},
		{Name: "minio", Ping: func(ctx context.Context) error { return minioStore.Ping(ctx, cfg.MinIO.TargetBucket) }},
		{Name: "nats", Ping: func(context.Context) error { return producer.Ping() }},
	}

	routerCfg := api.RouterConfig{
		APIKey:        cfg.Server.APIKey,
		Faces:         faces,
		Blobs:         minioStore,
		Uploads:       producer,
		WebhookSecret: cfg.Telegram.WebhookSecret,
		FaceBucket:    cfg.MinIO.TargetBucket,
		SourceBucket:  cfg.MinIO.SourceBucket,
	}

	// Conversation bot
	rt, err := app.NewBot(ctx, cfg, faces, minioStore)
	if err != nil {
		slog.Warn("chat bot disabled", "error", err)
	} else {
		defer rt.Close()
		checks = append(checks, handlers.Check{Name: "sessions", Ping: rt.Sessions.Ping})
		if rt.Discord != nil {
			go func() {
				if err := rt.Discord.Listen(ctx, rt.Bot); err != nil {
					slog.Error("discord listener stopped", "error", err)
				}
			}()
		} else {
			routerCfg.Bot = rt.Bot
		}
	}
	routerCfg.Checks = checks

	// Orphan crop sweeper
	if cfg.Janitor.Enabled {
		sweeper := janitor.NewSweeper(minioStore, faces, cfg.MinIO.TargetBucket, cfg.Janitor)
		if err := sweeper.Start(ctx, cfg.Janitor.Schedule); err != nil {
			slog.Error("start janitor", "error", err)
			os.Exit(1)
		}
	}

	router := api.NewRouter(routerCfg)

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
