package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/your-org/facebot/internal/storage"
)

// Retriever fetches image bytes to send to a chat.
type Retriever interface {
	FaceImage(ctx context.Context, faceID string) ([]byte, error)
	OriginalImage(ctx context.Context, imageKey string) ([]byte, error)
}

type BlobGetter interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// BlobRetriever reads crops and originals straight from the buckets.
type BlobRetriever struct {
	blobs          BlobGetter
	faceBucket     string
	originalBucket string
}

func NewBlobRetriever(blobs BlobGetter, faceBucket, originalBucket string) *BlobRetriever {
	return &BlobRetriever{blobs: blobs, faceBucket: faceBucket, originalBucket: originalBucket}
}

func (r *BlobRetriever) FaceImage(ctx context.Context, faceID string) ([]byte, error) {
	return r.blobs.Get(ctx, r.faceBucket, faceID)
}

func (r *BlobRetriever) OriginalImage(ctx context.Context, imageKey string) ([]byte, error) {
	return r.blobs.Get(ctx, r.originalBucket, imageKey)
}

// HTTPRetriever goes through the API's public retrieval URLs
// (/?face= and /original?image=).
type HTTPRetriever struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRetriever(baseURL string, client *http.Client) *HTTPRetriever {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRetriever{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (r *HTTPRetriever) FaceImage(ctx context.Context, faceID string) ([]byte, error) {
	return r.fetch(ctx, "/?face="+url.QueryEscape(faceID))
}

func (r *HTTPRetriever) OriginalImage(ctx context.Context, imageKey string) ([]byte, error) {
	return r.fetch(ctx, "/original?image="+url.QueryEscape(imageKey))
}

func (r *HTTPRetriever) fetch(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("get %s: %w", path, storage.ErrObjectNotFound)
	default:
		return nil, fmt.Errorf("get %s: status %d", path, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
