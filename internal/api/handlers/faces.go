package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facebot/internal/models"
	"github.com/your-org/facebot/internal/storage"
	"github.com/your-org/facebot/pkg/dto"
)

type BlobGetter interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

type FaceStore interface {
	FaceCounter
	Get(ctx context.Context, faceID string) (*models.FaceRecord, error)
	ScanByName(ctx context.Context, name string) ([]models.FaceRecord, error)
	ListUnlabeled(ctx context.Context, limit int) ([]models.FaceRecord, error)
	UpdateName(ctx context.Context, faceID, name string) error
}

const defaultListLimit = 50

type FaceHandler struct {
	faces        FaceStore
	blobs        BlobGetter
	faceBucket   string
	sourceBucket string
}

func NewFaceHandler(faces FaceStore, blobs BlobGetter, faceBucket, sourceBucket string) *FaceHandler {
	return &FaceHandler{faces: faces, blobs: blobs, faceBucket: faceBucket, sourceBucket: sourceBucket}
}

// Root serves GET /?face=<faceID>, the crop retrieval URL.
func (h *FaceHandler) Root(c *gin.Context) {
	key := c.Query("face")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "face parameter required"})
		return
	}
	h.serveBlob(c, h.faceBucket, key)
}

// FaceImage serves GET /faces/*key. Keys may contain slashes.
func (h *FaceHandler) FaceImage(c *gin.Context) {
	h.servePathKey(c, h.faceBucket)
}

// Original serves GET /original?image=<key>.
func (h *FaceHandler) Original(c *gin.Context) {
	key := c.Query("image")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image parameter required"})
		return
	}
	h.serveBlob(c, h.sourceBucket, key)
}

// OriginalImage serves GET /originals/*key.
func (h *FaceHandler) OriginalImage(c *gin.Context) {
	h.servePathKey(c, h.sourceBucket)
}

func (h *FaceHandler) servePathKey(c *gin.Context, bucket string) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "object key required"})
		return
	}
	h.serveBlob(c, bucket, key)
}

func (h *FaceHandler) serveBlob(c *gin.Context, bucket, key string) {
	data, err := h.blobs.Get(c.Request.Context(), bucket, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

// List serves GET /v1/faces?name=<name>: every face labeled exactly name.
func (h *FaceHandler) List(c *gin.Context) {
	name, ok := c.GetQuery("name")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name parameter required"})
		return
	}
	recs, err := h.faces.ScanByName(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toFaceResponses(recs))
}

func (h *FaceHandler) Unlabeled(c *gin.Context) {
	limit := defaultListLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	recs, err := h.faces.ListUnlabeled(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toFaceResponses(recs))
}

func (h *FaceHandler) Get(c *gin.Context) {
	rec, err := h.faces.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "face not found"})
		return
	}
	c.JSON(http.StatusOK, toFaceResponse(*rec))
}

// Rename serves PUT /v1/faces/:key/name. Unlike the chat flow it reports a
// missing face as 404.
func (h *FaceHandler) Rename(c *gin.Context) {
	var req dto.RenameFaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key := c.Param("key")
	rec, err := h.faces.Get(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "face not found"})
		return
	}

	if err := h.faces.UpdateName(c.Request.Context(), key, req.Name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	rec.PersonName = req.Name
	c.JSON(http.StatusOK, toFaceResponse(*rec))
}

func toFaceResponse(rec models.FaceRecord) dto.FaceResponse {
	return dto.FaceResponse{
		FaceImageKey:     rec.FaceID,
		OriginalImageKey: rec.OriginalImageKey,
		PersonName:       rec.PersonName,
		CreatedAt:        rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toFaceResponses(recs []models.FaceRecord) []dto.FaceResponse {
	resp := make([]dto.FaceResponse, 0, len(recs))
	for _, r := range recs {
		resp = append(resp, toFaceResponse(r))
	}
	return resp
}
