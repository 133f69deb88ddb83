package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facebot/internal/models"
	"github.com/your-org/facebot/internal/storage"
)

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (m *memBlobs) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, storage.ErrObjectNotFound)
	}
	return data, nil
}

func (m *memBlobs) Put(_ context.Context, bucket, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = data
	return nil
}

func (m *memBlobs) count(bucket string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.objects {
		if len(k) > len(bucket) && k[:len(bucket)+1] == bucket+"/" {
			n++
		}
	}
	return n
}

type memRecords struct {
	mu      sync.Mutex
	records map[string]models.FaceRecord
	schema  int
}

func newMemRecords() *memRecords { return &memRecords{records: map[string]models.FaceRecord{}} }

func (m *memRecords) Put(_ context.Context, rec models.FaceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.records[rec.FaceID]; ok && rec.PersonName == "" {
		rec.PersonName = old.PersonName
	}
	m.records[rec.FaceID] = rec
	return nil
}

func (m *memRecords) EnsureSchema(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schema++
	return nil
}

type stubDetector struct {
	boxes []models.BoundingBox
	err   error
}

func (s stubDetector) DetectFaces(context.Context, []byte) ([]models.BoundingBox, error) {
	return s.boxes, s.err
}

// cropPublisher hands every task straight to a Cropper, standing in for the queue.
type cropPublisher struct {
	cropper *Cropper
	msgIDs  []string
}

func (p *cropPublisher) PublishTask(ctx context.Context, task models.DetectionTask, msgID string) error {
	p.msgIDs = append(p.msgIDs, msgID)
	_, err := p.cropper.Process(ctx, task)
	return err
}

type fakeMsg struct {
	jetstream.Msg
	data []byte
}

func (m fakeMsg) Data() []byte { return m.data }

func box(x0, y0, x2, y2 int64) models.BoundingBox {
	return models.BoundingBox{Vertices: []models.Vertex{
		{X: models.Coord(x0), Y: models.Coord(y0)},
		{X: models.Coord(x0), Y: models.Coord(y2)},
		{X: models.Coord(x2), Y: models.Coord(y2)},
		{X: models.Coord(x2), Y: models.Coord(y0)},
	}}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
