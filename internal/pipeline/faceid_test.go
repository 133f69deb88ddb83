package pipeline

import (
	"image"
	"regexp"
	"testing"

	"github.com/your-org/facebot/internal/models"
)

var randomIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{10}\.jpg$`)

func TestRandomIDsShapeAndUniqueness(t *testing.T) {
	gen := RandomIDs{Length: 10}
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := gen.FaceID("photo.jpg", "src", image.Rect(0, 0, 1, 1))
		if !randomIDPattern.MatchString(id) {
			t.Fatalf("id %q does not match %s", id, randomIDPattern)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q after %d draws", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestDeterministicIDsAreStable(t *testing.T) {
	gen := DeterministicIDs{}
	rect := image.Rect(10, 20, 70, 80)

	src := ContentID([]byte("original bytes"))

	a := gen.FaceID("photo.jpg", src, rect)
	if b := gen.FaceID("photo.jpg", src, rect); a != b {
		t.Fatalf("same input gave %q and %q", a, b)
	}
	if other := gen.FaceID("photo.jpg", src, image.Rect(10, 20, 70, 81)); other == a {
		t.Fatal("different rectangles share an id")
	}
	if other := gen.FaceID("other.jpg", src, rect); other == a {
		t.Fatal("different images share an id")
	}
	if other := gen.FaceID("photo.jpg", ContentID([]byte("replaced bytes")), rect); other == a {
		t.Fatal("different content under one key shares an id")
	}
	if len(a) != 36+len(".jpg") {
		t.Fatalf("id %q is not a uuid with .jpg suffix", a)
	}
}

func TestNewIDGenerator(t *testing.T) {
	if g, err := NewIDGenerator("deterministic"); err != nil {
		t.Fatal(err)
	} else if _, ok := g.(DeterministicIDs); !ok {
		t.Fatalf("deterministic mode gave %T", g)
	}
	if g, err := NewIDGenerator("random"); err != nil {
		t.Fatal(err)
	} else if _, ok := g.(RandomIDs); !ok {
		t.Fatalf("random mode gave %T", g)
	}
	if _, err := NewIDGenerator("sequential"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestTaskKeyUsesRawVertices(t *testing.T) {
	a := models.DetectionTask{ImageKey: "p.jpg", BoundingBox: box(10, 20, 70, 80)}
	b := models.DetectionTask{ImageKey: "p.jpg", BoundingBox: box(10, 20, 70, 80)}
	c := models.DetectionTask{ImageKey: "p.jpg", BoundingBox: box(10, 20, 70, 81)}
	if TaskKey(a) != TaskKey(b) {
		t.Fatal("equal tasks must share a key")
	}
	if TaskKey(a) == TaskKey(c) {
		t.Fatal("different boxes must not share a key")
	}
}

func TestTaskKeyIncludesSource(t *testing.T) {
	a := models.DetectionTask{ImageKey: "p.jpg", BoundingBox: box(10, 20, 70, 80), SourceID: ContentID([]byte("v1"))}
	b := a
	b.SourceID = ContentID([]byte("v2"))
	if TaskKey(a) == TaskKey(b) {
		t.Fatal("re-uploaded image must not share task keys with the old one")
	}
}
