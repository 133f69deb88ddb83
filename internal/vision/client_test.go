package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/your-org/facebot/internal/config"
)

const twoFaces = `{"results":[{"results":[{"faceDetection":{"faces":[
	{"boundingBox":{"vertices":[{"x":"10","y":"20"},{"x":"10","y":"80"},{"x":"70","y":"80"},{"x":"70","y":"20"}]}},
	{"boundingBox":{"vertices":[{"x":"100","y":"20"},{"x":"100","y":"60"},{"x":"140","y":"60"},{"x":"140","y":"20"}]}}
]}}]}]}`

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg config.VisionConfig) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.Endpoint = srv.URL
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	tokens, err := NewTokenSource(cfg, srv.Client())
	if err != nil {
		t.Fatalf("token source: %v", err)
	}
	return NewClient(cfg, tokens)
}

func TestDetectFacesSendsImageAndParsesBoxes(t *testing.T) {
	image := []byte("jpeg bytes")
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer iam-token" {
			t.Errorf("Authorization = %q", got)
		}
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.FolderID != "folder-1" {
			t.Errorf("folderId = %q", req.FolderID)
		}
		if len(req.AnalyzeSpecs) != 1 || req.AnalyzeSpecs[0].Features[0].Type != "FACE_DETECTION" {
			t.Fatalf("unexpected specs: %+v", req.AnalyzeSpecs)
		}
		if req.AnalyzeSpecs[0].Content != base64.StdEncoding.EncodeToString(image) {
			t.Error("content is not the base64 image")
		}
		w.Write([]byte(twoFaces))
	}, config.VisionConfig{FolderID: "folder-1", IAMToken: "iam-token"})

	boxes, err := client.DetectFaces(context.Background(), image)
	if err != nil {
		t.Fatalf("DetectFaces: %v", err)
	}
	if len(boxes) != 2 {
		t.Fatalf("boxes = %d, want 2", len(boxes))
	}
	if v := boxes[1].Vertices[2]; v.X != 140 || v.Y != 60 {
		t.Errorf("second box vertex 2 = %+v", v)
	}
}

func TestDetectFacesNoFacesIsEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"results":[{"faceDetection":{}}]}]}`))
	}, config.VisionConfig{APIKey: "key"})

	boxes, err := client.DetectFaces(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("DetectFaces: %v", err)
	}
	if len(boxes) != 0 {
		t.Fatalf("boxes = %d, want 0", len(boxes))
	}
}

func TestDetectFacesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http status", http.StatusUnauthorized, `{"message":"bad token"}`},
		{"no results", http.StatusOK, `{"results":[]}`},
		{"spec error", http.StatusOK, `{"results":[{"error":{"code":3,"message":"bad image"}}]}`},
		{"feature error", http.StatusOK, `{"results":[{"results":[{"error":{"code":3,"message":"too large"}}]}]}`},
		{"garbage", http.StatusOK, `not json`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}, config.VisionConfig{APIKey: "key"})
			if _, err := client.DetectFaces(context.Background(), []byte("x")); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestAPIKeyAuthorizationScheme(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Api-Key secret" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(twoFaces))
	}, config.VisionConfig{APIKey: "secret"})

	if _, err := client.DetectFaces(context.Background(), []byte("x")); err != nil {
		t.Fatalf("DetectFaces: %v", err)
	}
}

func TestMetadataTokenIsCached(t *testing.T) {
	var calls atomic.Int32
	meta := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Metadata-Flavor") != "Google" {
			t.Errorf("missing Metadata-Flavor header")
		}
		w.Write([]byte(`{"access_token":"vm-token","expires_in":3600,"token_type":"Bearer"}`))
	}))
	defer meta.Close()

	ts, err := NewTokenSource(config.VisionConfig{UseMetadata: true, MetadataURL: meta.URL}, meta.Client())
	if err != nil {
		t.Fatalf("token source: %v", err)
	}
	for i := 0; i < 3; i++ {
		tok, err := ts.Token()
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok.AccessToken != "vm-token" {
			t.Fatalf("token = %q", tok.AccessToken)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("metadata calls = %d, want 1", n)
	}
}

func TestNewTokenSourceRequiresCredential(t *testing.T) {
	if _, err := NewTokenSource(config.VisionConfig{}, nil); err == nil {
		t.Fatal("expected error without credentials")
	}
}
