package models

import (
	"bytes"
	"fmt"
	"strconv"
)

// Coord is a pixel coordinate. The vision API encodes int64 values as JSON
// strings, so both "12" and 12 are accepted.
type Coord int64

func (c *Coord) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse coordinate %q: %w", s, err)
	}
	*c = Coord(f)
	return nil
}

type Vertex struct {
	X Coord `json:"x"`
	Y Coord `json:"y"`
}

// BoundingBox is the detected face polygon. By convention of the vision API
// vertex 0 is the top-left corner and vertex 2 the bottom-right one.
type BoundingBox struct {
	Vertices []Vertex `json:"vertices"`
}

// DetectionTask is the work item the detector publishes for the cropper,
// one per detected face.
type DetectionTask struct {
	ImageKey    string      `json:"image_key"`
	BoundingBox BoundingBox `json:"face_coordinates"`
	// SourceID is the content id of the original the box was detected in.
	// Empty for tasks published by older detectors.
	SourceID string `json:"source_id,omitempty"`
}

// UploadEvent announces a new object in the source bucket.
type UploadEvent struct {
	Bucket    string `json:"bucket"`
	ObjectKey string `json:"object_key"`
	// ETag distinguishes successive uploads under the same key.
	ETag string `json:"etag,omitempty"`
}
