package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facebot/internal/models"
)

const (
	UploadsStreamName = "UPLOADS"
	UploadsSubject    = "uploads.new"
	TasksStreamName   = "TASKS"
	TasksSubject      = "tasks.crop"

	// DuplicateWindow bounds how long JetStream remembers message ids for
	// de-duplicating re-published tasks.
	DuplicateWindow = 10 * time.Minute
)

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

// StreamConfigs lists the work-queue streams the pipeline runs on.
func StreamConfigs() []jetstream.StreamConfig {
	return []jetstream.StreamConfig{
		{
			Name:        UploadsStreamName,
			Subjects:    []string{"uploads.>"},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      7 * 24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Duplicates:  DuplicateWindow,
			Description: "Upload notifications for the face detector",
		},
		{
			Name:        TasksStreamName,
			Subjects:    []string{"tasks.>"},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      7 * 24 * time.Hour,
			MaxMsgs:     1000000,
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
			Duplicates:  DuplicateWindow,
			Description: "Per-face crop tasks",
		},
	}
}

// EnsureStreams creates JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := StreamConfigs()

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streams {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// PublishUpload enqueues an upload notification for the detector.
func (p *Producer) PublishUpload(ctx context.Context, ev models.UploadEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal upload event: %w", err)
	}
	msgID := ev.Bucket + "/" + ev.ObjectKey
	if ev.ETag != "" {
		msgID += "@" + ev.ETag
	}
	if _, err := p.js.Publish(ctx, UploadsSubject, payload, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("publish upload %s: %w", msgID, err)
	}
	return nil
}

// PublishTask enqueues one crop task. msgID lets JetStream drop a republish of
// the same task inside DuplicateWindow.
func (p *Producer) PublishTask(ctx context.Context, task models.DetectionTask, msgID string) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal detection task: %w", err)
	}
	var opts []jetstream.PublishOpt
	if msgID != "" {
		opts = append(opts, jetstream.WithMsgID(msgID))
	}
	if _, err := p.js.Publish(ctx, TasksSubject, payload, opts...); err != nil {
		return fmt.Errorf("publish task for %s: %w", task.ImageKey, err)
	}
	return nil
}

// QueueDepth returns the number of pending messages in the named stream.
func (p *Producer) QueueDepth(ctx context.Context, stream string) (uint64, error) {
	s, err := p.js.Stream(ctx, stream)
	if err != nil {
		return 0, err
	}
	info, err := s.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
