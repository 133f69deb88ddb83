package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/facebot/internal/models"
	"github.com/your-org/facebot/internal/observability"
)

type BlobReader interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

type FaceDetector interface {
	DetectFaces(ctx context.Context, image []byte) ([]models.BoundingBox, error)
}

type TaskPublisher interface {
	PublishTask(ctx context.Context, task models.DetectionTask, msgID string) error
}

// Detector fans an uploaded photo out into one DetectionTask per face.
type Detector struct {
	blobs        BlobReader
	faces        FaceDetector
	tasks        TaskPublisher
	sourceBucket string
}

func NewDetector(blobs BlobReader, faces FaceDetector, tasks TaskPublisher, sourceBucket string) *Detector {
	return &Detector{blobs: blobs, faces: faces, tasks: tasks, sourceBucket: sourceBucket}
}

// HandleUpload detects the faces of one uploaded object and publishes a
// task for each. It returns the number of tasks published; zero faces is
// not an error.
func (d *Detector) HandleUpload(ctx context.Context, ev models.UploadEvent) (int, error) {
	if ev.ObjectKey == "" {
		return 0, fmt.Errorf("%w: empty object key", ErrMalformedEvent)
	}
	if ev.Bucket != "" && ev.Bucket != d.sourceBucket {
		return 0, fmt.Errorf("%w: bucket %q is not the source bucket %q", ErrMalformedEvent, ev.Bucket, d.sourceBucket)
	}

	start := time.Now()
	image, err := d.blobs.Get(ctx, d.sourceBucket, ev.ObjectKey)
	if err != nil {
		return 0, fmt.Errorf("read upload %s: %w", ev.ObjectKey, err)
	}

	boxes, err := d.faces.DetectFaces(ctx, image)
	if err != nil {
		return 0, fmt.Errorf("detect faces in %s: %w", ev.ObjectKey, err)
	}
	observability.StageDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	observability.FacesDetected.Add(float64(len(boxes)))

	sourceID := ContentID(image)
	for i, box := range boxes {
		task := models.DetectionTask{ImageKey: ev.ObjectKey, BoundingBox: box, SourceID: sourceID}
		if err := d.tasks.PublishTask(ctx, task, TaskKey(task)); err != nil {
			return i, fmt.Errorf("publish task %d for %s: %w", i, ev.ObjectKey, err)
		}
		observability.TasksPublished.Inc()
	}

	slog.Info("upload processed", "image", ev.ObjectKey, "faces", len(boxes))
	return len(boxes), nil
}
