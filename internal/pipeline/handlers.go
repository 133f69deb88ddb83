package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facebot/internal/models"
	"github.com/your-org/facebot/internal/observability"
	"github.com/your-org/facebot/internal/queue"
)

// UploadHandler adapts the Detector to the UPLOADS consumer. Malformed
// events are terminated instead of redelivered.
func UploadHandler(d *Detector) queue.MessageHandler {
	return func(ctx context.Context, msg jetstream.Msg) error {
		err := handleUpload(ctx, d, msg.Data())
		switch {
		case err == nil:
			observability.UploadsHandled.WithLabelValues("ok").Inc()
		case errors.Is(err, ErrMalformedEvent):
			observability.UploadsHandled.WithLabelValues("malformed").Inc()
			return queue.Permanent(err)
		default:
			observability.UploadsHandled.WithLabelValues("error").Inc()
		}
		return err
	}
}

func handleUpload(ctx context.Context, d *Detector, data []byte) error {
	var ev models.UploadEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	_, err := d.HandleUpload(ctx, ev)
	return err
}

// TaskHandler adapts the Cropper to the TASKS consumer.
func TaskHandler(c *Cropper) queue.MessageHandler {
	return func(ctx context.Context, msg jetstream.Msg) error {
		var task models.DetectionTask
		if err := json.Unmarshal(msg.Data(), &task); err != nil {
			return queue.Permanent(fmt.Errorf("%w: %v", ErrMalformedTask, err))
		}
		if _, err := c.Process(ctx, task); err != nil {
			if errors.Is(err, ErrMalformedTask) || errors.Is(err, ErrStaleTask) {
				return queue.Permanent(err)
			}
			return err
		}
		return nil
	}
}
