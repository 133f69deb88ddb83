package pipeline

import (
	"fmt"
	"image"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"github.com/your-org/facebot/internal/models"
)

const faceIDSuffix = ".jpg"

// IDGenerator names the crop produced for one face of one image. sourceID
// is the ContentID of the original the face was cut from.
type IDGenerator interface {
	FaceID(imageKey, sourceID string, rect image.Rectangle) string
}

var (
	// faceNamespace scopes the name-based UUIDs of face crops.
	faceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("facebot:faces"))
	// sourceNamespace scopes the content UUIDs of uploaded originals.
	sourceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("facebot:sources"))
)

// ContentID fingerprints the bytes of an original. A photo re-uploaded
// under the same key gets a new ContentID.
func ContentID(data []byte) string {
	return uuid.NewSHA1(sourceNamespace, data).String()
}

// DeterministicIDs derives the id from the image key, the original's
// content and the rectangle. A redelivered task overwrites the same blob
// and record; a different photo under the same key does not.
type DeterministicIDs struct{}

func (DeterministicIDs) FaceID(imageKey, sourceID string, rect image.Rectangle) string {
	name := fmt.Sprintf("%s|%s|%d,%d,%d,%d", imageKey, sourceID, rect.Min.X, rect.Min.Y, rect.Max.X, rect.Max.Y)
	return uuid.NewSHA1(faceNamespace, []byte(name)).String() + faceIDSuffix
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomIDs draws Length alphanumeric characters per id. Redelivery yields
// a second crop and record for the same face.
type RandomIDs struct {
	Length int
}

func (r RandomIDs) FaceID(string, string, image.Rectangle) string {
	n := r.Length
	if n <= 0 {
		n = 10
	}
	var b strings.Builder
	b.Grow(n + len(faceIDSuffix))
	for i := 0; i < n; i++ {
		b.WriteByte(idAlphabet[rand.IntN(len(idAlphabet))])
	}
	b.WriteString(faceIDSuffix)
	return b.String()
}

// NewIDGenerator maps the pipeline.face_id_mode setting to a generator.
func NewIDGenerator(mode string) (IDGenerator, error) {
	switch mode {
	case "deterministic", "":
		return DeterministicIDs{}, nil
	case "random":
		return RandomIDs{Length: 10}, nil
	default:
		return nil, fmt.Errorf("unknown face id mode %q", mode)
	}
}

// TaskKey identifies a task by its image, the image content and the raw
// vertices. It is used as the queue message id so a detector re-run does
// not enqueue the task twice, while a re-upload under the same key does.
func TaskKey(task models.DetectionTask) string {
	var b strings.Builder
	b.WriteString(task.ImageKey)
	if task.SourceID != "" {
		b.WriteString("@" + task.SourceID)
	}
	for _, v := range task.BoundingBox.Vertices {
		fmt.Fprintf(&b, "|%d,%d", v.X, v.Y)
	}
	return b.String()
}
