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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/observability"
	"github.com/your-org/facebot/internal/pipeline"
	"github.com/your-org/facebot/internal/queue"
	"github.com/your-org/facebot/internal/storage"
	"github.com/your-org/facebot/internal/vision"
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

	slog.Info("starting facebot worker",
		"detector_workers", cfg.Worker.DetectorWorkers,
		"cropper_workers", cfg.Worker.CropperWorkers,
		"face_id_mode", cfg.Pipeline.FaceIDMode,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	// Vision API client
	tokens, err := vision.NewTokenSource(cfg.Vision, nil)
	if err != nil {
		slog.Error("vision credentials", "error", err)
		os.Exit(1)
	}
	visionClient := vision.NewClient(cfg.Vision, tokens)

	ids, err := pipeline.NewIDGenerator(cfg.Pipeline.FaceIDMode)
	if err != nil {
		slog.Error("face id generator", "error", err)
		os.Exit(1)
	}

	detector := pipeline.NewDetector(minioStore, visionClient, producer, cfg.MinIO.SourceBucket)
	cropper := pipeline.NewCropper(minioStore, faces, pipeline.CropperConfig{
		SourceBucket: cfg.MinIO.SourceBucket,
		TargetBucket: cfg.MinIO.TargetBucket,
		JPEGQuality:  cfg.Pipeline.JPEGQuality,
		IDs:          ids,
		EnsureSchema: cfg.Pipeline.EnsureSchemaOnStart,
	})

	// Create NATS consumer
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.Consume(ctx, queue.ConsumerSpec{
		Stream:         queue.UploadsStreamName,
		Name:           "face-detector",
		Subject:        queue.UploadsSubject,
		Workers:        cfg.Worker.DetectorWorkers,
		MaxDeliver:     cfg.Worker.MaxDeliver,
		HandlerTimeout: cfg.Worker.TaskTimeout,
	}, pipeline.UploadHandler(detector))
	if err != nil {
		slog.Error("start detector consumer", "error", err)
		os.Exit(1)
	}

	err = consumer.Consume(ctx, queue.ConsumerSpec{
		Stream:         queue.TasksStreamName,
		Name:           "face-cropper",
		Subject:        queue.TasksSubject,
		Workers:        cfg.Worker.CropperWorkers,
		MaxDeliver:     cfg.Worker.MaxDeliver,
		HandlerTimeout: cfg.Worker.TaskTimeout,
	}, pipeline.TaskHandler(cropper))
	if err != nil {
		slog.Error("start cropper consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", cfg.Worker.MetricsAddr)
		if err := http.ListenAndServe(cfg.Worker.MetricsAddr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, stream := range []string{queue.UploadsStreamName, queue.TasksStreamName} {
					depth, err := producer.QueueDepth(ctx, stream)
					if err == nil {
						observability.QueueDepth.WithLabelValues(stream).Set(float64(depth))
					}
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}
