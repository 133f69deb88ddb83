package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/facebot/internal/models"
	"github.com/your-org/facebot/internal/observability"
)

type BlobStore interface {
	BlobReader
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// FaceWriter persists face records. EnsureSchema is only used when the
// cropper is configured to provision the table itself.
type FaceWriter interface {
	Put(ctx context.Context, rec models.FaceRecord) error
	EnsureSchema(ctx context.Context) error
}

type CropperConfig struct {
	SourceBucket string
	TargetBucket string
	JPEGQuality  int
	IDs          IDGenerator
	// EnsureSchema provisions the record table before the first write.
	EnsureSchema bool
}

// Cropper cuts one face out of its original photo and stores the crop and
// its record.
type Cropper struct {
	blobs   BlobStore
	records FaceWriter
	cfg     CropperConfig

	schemaMu    sync.Mutex
	schemaReady bool
}

func NewCropper(blobs BlobStore, records FaceWriter, cfg CropperConfig) *Cropper {
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 90
	}
	if cfg.IDs == nil {
		cfg.IDs = DeterministicIDs{}
	}
	return &Cropper{blobs: blobs, records: records, cfg: cfg}
}

// Process validates task, crops the face and writes blob then record. The
// box is checked before the original is read.
func (c *Cropper) Process(ctx context.Context, task models.DetectionTask) (models.FaceRecord, error) {
	if task.ImageKey == "" {
		return models.FaceRecord{}, fmt.Errorf("%w: empty image key", ErrMalformedTask)
	}
	rect, err := CropRect(task.BoundingBox)
	if err != nil {
		return models.FaceRecord{}, err
	}

	start := time.Now()
	data, err := c.blobs.Get(ctx, c.cfg.SourceBucket, task.ImageKey)
	if err != nil {
		return models.FaceRecord{}, fmt.Errorf("read original %s: %w", task.ImageKey, err)
	}
	sourceID := ContentID(data)
	if task.SourceID != "" && task.SourceID != sourceID {
		return models.FaceRecord{}, fmt.Errorf("%w: %s changed since detection", ErrStaleTask, task.ImageKey)
	}
	img, err := DecodeImage(data)
	if err != nil {
		return models.FaceRecord{}, fmt.Errorf("image %s: %w", task.ImageKey, err)
	}
	face, err := Crop(img, rect)
	if err != nil {
		return models.FaceRecord{}, fmt.Errorf("image %s: %w", task.ImageKey, err)
	}
	jpg, err := EncodeJPEG(face, c.cfg.JPEGQuality)
	if err != nil {
		return models.FaceRecord{}, err
	}

	faceID := c.cfg.IDs.FaceID(task.ImageKey, sourceID, rect)
	if err := c.blobs.Put(ctx, c.cfg.TargetBucket, faceID, jpg, "image/jpeg"); err != nil {
		return models.FaceRecord{}, fmt.Errorf("store crop %s: %w", faceID, err)
	}

	if err := c.ensureSchema(ctx); err != nil {
		return models.FaceRecord{}, err
	}

	rec := models.FaceRecord{FaceID: faceID, OriginalImageKey: task.ImageKey}
	if err := c.records.Put(ctx, rec); err != nil {
		return models.FaceRecord{}, fmt.Errorf("save face record %s: %w", faceID, err)
	}

	observability.StageDuration.WithLabelValues("crop").Observe(time.Since(start).Seconds())
	observability.TasksProcessed.Inc()
	slog.Debug("face stored", "face", faceID, "image", task.ImageKey, "rect", rect.String())
	return rec, nil
}

// ensureSchema provisions the table once per process when configured to.
// A failed attempt is retried on the next task.
func (c *Cropper) ensureSchema(ctx context.Context) error {
	if !c.cfg.EnsureSchema {
		return nil
	}
	c.schemaMu.Lock()
	defer c.schemaMu.Unlock()
	if c.schemaReady {
		return nil
	}
	if err := c.records.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	c.schemaReady = true
	return nil
}
