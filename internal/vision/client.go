// Package vision calls the remote face-detection service.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/models"
)

const featureFaceDetection = "FACE_DETECTION"

type Client struct {
	endpoint string
	folderID string
	tokens   oauth2.TokenSource
	http     *http.Client
}

func NewClient(cfg config.VisionConfig, tokens oauth2.TokenSource) *Client {
	return &Client{
		endpoint: cfg.Endpoint,
		folderID: cfg.FolderID,
		tokens:   tokens,
		http:     &http.Client{Timeout: cfg.Timeout},
	}
}

type analyzeRequest struct {
	FolderID     string        `json:"folderId,omitempty"`
	AnalyzeSpecs []analyzeSpec `json:"analyze_specs"`
}

type analyzeSpec struct {
	Content  string    `json:"content"`
	Features []feature `json:"features"`
}

type feature struct {
	Type string `json:"type"`
}

type apiStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type analyzeResponse struct {
	Results []struct {
		Results []struct {
			FaceDetection *struct {
				Faces []struct {
					BoundingBox models.BoundingBox `json:"boundingBox"`
				} `json:"faces"`
			} `json:"faceDetection"`
			Error *apiStatus `json:"error"`
		} `json:"results"`
		Error *apiStatus `json:"error"`
	} `json:"results"`
}

// DetectFaces sends one image for face detection and returns the bounding
// box of every face found. An image without faces yields an empty slice.
func (c *Client) DetectFaces(ctx context.Context, image []byte) ([]models.BoundingBox, error) {
	body, err := json.Marshal(analyzeRequest{
		FolderID: c.folderID,
		AnalyzeSpecs: []analyzeSpec{{
			Content:  base64.StdEncoding.EncodeToString(image),
			Features: []feature{{Type: featureFaceDetection}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal analyze request: %w", err)
	}

	tok, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("vision credential: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tok.SetAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call vision api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("vision api status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var parsed analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode analyze response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return nil, fmt.Errorf("vision api returned no results")
	}

	spec := parsed.Results[0]
	if spec.Error != nil {
		return nil, fmt.Errorf("vision api: %s (code %d)", spec.Error.Message, spec.Error.Code)
	}

	var boxes []models.BoundingBox
	for _, r := range spec.Results {
		if r.Error != nil {
			return nil, fmt.Errorf("face detection: %s (code %d)", r.Error.Message, r.Error.Code)
		}
		if r.FaceDetection == nil {
			continue
		}
		for _, f := range r.FaceDetection.Faces {
			boxes = append(boxes, f.BoundingBox)
		}
	}
	return boxes, nil
}
