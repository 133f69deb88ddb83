package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facebot/internal/models"
	"github.com/your-org/facebot/pkg/dto"
)

type UploadPublisher interface {
	PublishUpload(ctx context.Context, ev models.UploadEvent) error
}

// UploadHandler turns bucket notifications into upload events for the detector.
type UploadHandler struct {
	publisher UploadPublisher
}

func NewUploadHandler(publisher UploadPublisher) *UploadHandler {
	return &UploadHandler{publisher: publisher}
}

func (h *UploadHandler) Notify(c *gin.Context) {
	var req dto.UploadNotification
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, skipped := uploadEvents(req)
	if len(events) == 0 && skipped == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no object in notification"})
		return
	}

	for _, ev := range events {
		if err := h.publisher.PublishUpload(c.Request.Context(), ev); err != nil {
			slog.Error("publish upload", "bucket", ev.Bucket, "key", ev.ObjectKey, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusAccepted, dto.UploadsAcceptedResponse{Published: len(events), Skipped: skipped})
}

// uploadEvents extracts object-created records. Keys in S3 notifications
// are URL-encoded.
func uploadEvents(req dto.UploadNotification) (events []models.UploadEvent, skipped int) {
	if len(req.Records) == 0 {
		if req.ObjectKey == "" {
			return nil, 0
		}
		return []models.UploadEvent{{Bucket: req.Bucket, ObjectKey: req.ObjectKey}}, 0
	}

	for _, rec := range req.Records {
		if rec.EventName != "" && !strings.Contains(rec.EventName, "ObjectCreated") {
			skipped++
			continue
		}
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil || key == "" {
			skipped++
			continue
		}
		events = append(events, models.UploadEvent{
			Bucket:    rec.S3.Bucket.Name,
			ObjectKey: key,
			ETag:      rec.S3.Object.ETag,
		})
	}
	return events, skipped
}
