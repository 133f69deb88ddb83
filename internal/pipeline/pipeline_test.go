package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/your-org/facebot/internal/models"
	"github.com/your-org/facebot/internal/queue"
	"github.com/your-org/facebot/internal/storage"
)

const (
	srcBucket = "photos"
	dstBucket = "faces"
)

func newTestCropper(blobs *memBlobs, records *memRecords, ids IDGenerator) *Cropper {
	return NewCropper(blobs, records, CropperConfig{
		SourceBucket: srcBucket,
		TargetBucket: dstBucket,
		IDs:          ids,
	})
}

func TestUploadWithTwoFacesCreatesTwoRecords(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	records := newMemRecords()
	blobs.Put(ctx, srcBucket, "party.png", testPNG(t, 200, 100), "image/png")

	pub := &cropPublisher{cropper: newTestCropper(blobs, records, DeterministicIDs{})}
	det := NewDetector(blobs, stubDetector{boxes: []models.BoundingBox{
		box(10, 10, 60, 60),
		box(100, 20, 150, 90),
	}}, pub, srcBucket)

	n, err := det.HandleUpload(ctx, models.UploadEvent{Bucket: srcBucket, ObjectKey: "party.png"})
	if err != nil {
		t.Fatalf("HandleUpload: %v", err)
	}
	if n != 2 {
		t.Fatalf("published %d tasks, want 2", n)
	}
	if len(records.records) != 2 {
		t.Fatalf("records = %d, want 2", len(records.records))
	}
	for id, rec := range records.records {
		if rec.OriginalImageKey != "party.png" {
			t.Errorf("record %s original = %q", id, rec.OriginalImageKey)
		}
		if rec.Labeled() {
			t.Errorf("record %s is labeled", id)
		}
		if _, err := blobs.Get(ctx, dstBucket, id); err != nil {
			t.Errorf("crop blob %s: %v", id, err)
		}
	}
	if pub.msgIDs[0] == pub.msgIDs[1] {
		t.Error("tasks for different faces share a message id")
	}
}

func TestUploadWithoutFaces(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	blobs.Put(ctx, srcBucket, "empty.png", testPNG(t, 10, 10), "image/png")
	pub := &cropPublisher{cropper: newTestCropper(blobs, newMemRecords(), nil)}

	n, err := NewDetector(blobs, stubDetector{}, pub, srcBucket).
		HandleUpload(ctx, models.UploadEvent{Bucket: srcBucket, ObjectKey: "empty.png"})
	if err != nil || n != 0 {
		t.Fatalf("HandleUpload = %d, %v; want 0, nil", n, err)
	}
}

func TestUploadErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	pub := &cropPublisher{cropper: newTestCropper(blobs, newMemRecords(), nil)}

	det := NewDetector(blobs, stubDetector{}, pub, srcBucket)
	if _, err := det.HandleUpload(ctx, models.UploadEvent{ObjectKey: "missing.png"}); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("missing image err = %v", err)
	}

	blobs.Put(ctx, srcBucket, "x.png", testPNG(t, 10, 10), "image/png")
	visionDown := errors.New("vision unavailable")
	det = NewDetector(blobs, stubDetector{err: visionDown}, pub, srcBucket)
	if _, err := det.HandleUpload(ctx, models.UploadEvent{ObjectKey: "x.png"}); !errors.Is(err, visionDown) {
		t.Fatalf("detector err = %v", err)
	}
}

func TestUploadRejectsMalformedEvents(t *testing.T) {
	det := NewDetector(newMemBlobs(), stubDetector{}, &cropPublisher{}, srcBucket)
	for _, ev := range []models.UploadEvent{
		{Bucket: srcBucket},
		{Bucket: "elsewhere", ObjectKey: "a.jpg"},
	} {
		if _, err := det.HandleUpload(context.Background(), ev); !errors.Is(err, ErrMalformedEvent) {
			t.Errorf("event %+v: err = %v, want ErrMalformedEvent", ev, err)
		}
	}
}

func TestRedeliveryWithDeterministicIDsConverges(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	records := newMemRecords()
	blobs.Put(ctx, srcBucket, "p.png", testPNG(t, 100, 100), "image/png")
	c := newTestCropper(blobs, records, DeterministicIDs{})

	task := models.DetectionTask{ImageKey: "p.png", BoundingBox: box(10, 10, 50, 50)}
	first, err := c.Process(ctx, task)
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}
	records.records[first.FaceID] = models.FaceRecord{FaceID: first.FaceID, OriginalImageKey: "p.png", PersonName: "Alice"}

	second, err := c.Process(ctx, task)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if first.FaceID != second.FaceID {
		t.Fatalf("ids differ: %q vs %q", first.FaceID, second.FaceID)
	}
	if len(records.records) != 1 || blobs.count(dstBucket) != 1 {
		t.Fatalf("records = %d, blobs = %d; want 1 each", len(records.records), blobs.count(dstBucket))
	}
	if records.records[first.FaceID].PersonName != "Alice" {
		t.Fatal("redelivery cleared the label")
	}
}

func TestReuploadUnderSameKeyGetsNewRecord(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	records := newMemRecords()
	pub := &cropPublisher{cropper: newTestCropper(blobs, records, DeterministicIDs{})}
	det := NewDetector(blobs, stubDetector{boxes: []models.BoundingBox{box(10, 10, 50, 50)}}, pub, srcBucket)
	ev := models.UploadEvent{Bucket: srcBucket, ObjectKey: "p.png"}

	blobs.Put(ctx, srcBucket, "p.png", testPNG(t, 100, 100), "image/png")
	if _, err := det.HandleUpload(ctx, ev); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if len(records.records) != 1 {
		t.Fatalf("records = %d, want 1", len(records.records))
	}
	var oldID string
	for id := range records.records {
		oldID = id
	}
	records.records[oldID] = models.FaceRecord{FaceID: oldID, OriginalImageKey: "p.png", PersonName: "Alice"}

	blobs.Put(ctx, srcBucket, "p.png", testPNG(t, 120, 90), "image/png")
	if _, err := det.HandleUpload(ctx, ev); err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if len(records.records) != 2 {
		t.Fatalf("records = %d, want 2 after re-upload", len(records.records))
	}
	for id, rec := range records.records {
		if id != oldID && rec.Labeled() {
			t.Fatalf("new face %s inherited label %q", id, rec.PersonName)
		}
	}
	if records.records[oldID].PersonName != "Alice" {
		t.Fatal("old record lost its label")
	}
	if pub.msgIDs[0] == pub.msgIDs[1] {
		t.Fatal("re-upload tasks share a message id with the original upload")
	}
}

func TestCropperDropsTaskForReplacedOriginal(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	records := newMemRecords()
	c := newTestCropper(blobs, records, DeterministicIDs{})

	old := testPNG(t, 100, 100)
	blobs.Put(ctx, srcBucket, "p.png", testPNG(t, 120, 90), "image/png")
	task := models.DetectionTask{ImageKey: "p.png", BoundingBox: box(10, 10, 50, 50), SourceID: ContentID(old)}

	_, err := c.Process(ctx, task)
	if !errors.Is(err, ErrStaleTask) {
		t.Fatalf("err = %v, want ErrStaleTask", err)
	}
	if len(records.records) != 0 || blobs.count(dstBucket) != 0 {
		t.Fatal("stale task wrote a crop")
	}

	data, _ := json.Marshal(task)
	if got := queue.OutcomeFor(TaskHandler(c)(ctx, fakeMsg{data: data})); got != queue.Term {
		t.Fatalf("stale task outcome %s, want %s", got, queue.Term)
	}
}

func TestRedeliveryWithRandomIDsDuplicates(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	records := newMemRecords()
	blobs.Put(ctx, srcBucket, "p.png", testPNG(t, 100, 100), "image/png")
	c := newTestCropper(blobs, records, RandomIDs{Length: 10})

	task := models.DetectionTask{ImageKey: "p.png", BoundingBox: box(10, 10, 50, 50)}
	for i := 0; i < 2; i++ {
		if _, err := c.Process(ctx, task); err != nil {
			t.Fatalf("Process #%d: %v", i, err)
		}
	}
	if len(records.records) != 2 {
		t.Fatalf("records = %d, want 2 with random ids", len(records.records))
	}
}

func TestMalformedTaskValidatedBeforeRead(t *testing.T) {
	blobs := newMemBlobs()
	records := newMemRecords()
	c := newTestCropper(blobs, records, nil)

	_, err := c.Process(context.Background(), models.DetectionTask{ImageKey: "never-read.png", BoundingBox: box(10, 10, 10, 50)})
	if !errors.Is(err, ErrMalformedTask) {
		t.Fatalf("err = %v, want ErrMalformedTask", err)
	}
	if errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatal("blob was read before validation")
	}
	if len(records.records) != 0 {
		t.Fatal("malformed task wrote a record")
	}
}

func TestCropperEnsuresSchemaOnce(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	records := newMemRecords()
	blobs.Put(ctx, srcBucket, "p.png", testPNG(t, 100, 100), "image/png")
	c := NewCropper(blobs, records, CropperConfig{SourceBucket: srcBucket, TargetBucket: dstBucket, EnsureSchema: true})

	for _, b := range []models.BoundingBox{box(0, 0, 10, 10), box(20, 20, 40, 40)} {
		if _, err := c.Process(ctx, models.DetectionTask{ImageKey: "p.png", BoundingBox: b}); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	if records.schema != 1 {
		t.Fatalf("EnsureSchema calls = %d, want 1", records.schema)
	}
}

func TestHandlersSettleMalformedMessagesPermanently(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	c := newTestCropper(blobs, newMemRecords(), nil)
	d := NewDetector(blobs, stubDetector{}, &cropPublisher{cropper: c}, srcBucket)

	taskHandler := TaskHandler(c)
	uploadHandler := UploadHandler(d)

	degenerate, _ := json.Marshal(models.DetectionTask{ImageKey: "p.png", BoundingBox: box(5, 5, 5, 5)})
	cases := []struct {
		name string
		err  error
		want queue.Outcome
	}{
		{"task not json", taskHandler(ctx, fakeMsg{data: []byte("{")}), queue.Term},
		{"degenerate box", taskHandler(ctx, fakeMsg{data: degenerate}), queue.Term},
		{"upload not json", uploadHandler(ctx, fakeMsg{data: []byte("nope")}), queue.Term},
		{"upload without key", uploadHandler(ctx, fakeMsg{data: []byte(`{"bucket":"photos"}`)}), queue.Term},
		{"upload missing blob", uploadHandler(ctx, fakeMsg{data: []byte(`{"bucket":"photos","object_key":"gone.png"}`)}), queue.Nak},
	}
	for _, tc := range cases {
		if got := queue.OutcomeFor(tc.err); got != tc.want {
			t.Errorf("%s: outcome %s (err %v), want %s", tc.name, got, tc.err, tc.want)
		}
	}
}
