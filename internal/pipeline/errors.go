// Package pipeline turns uploaded photos into stored face crops: the
// Detector fans an upload out into one task per face and the Cropper turns
// each task into a crop blob plus a face record.
package pipeline

import "errors"

var (
	// ErrMalformedTask marks a detection task that can never be processed,
	// such as a degenerate bounding box or an undecodable image.
	ErrMalformedTask = errors.New("malformed detection task")
	// ErrMalformedEvent marks an upload notification without a usable object.
	ErrMalformedEvent = errors.New("malformed upload event")
	// ErrStaleTask marks a task whose original was replaced after detection.
	// The replacement upload carries its own tasks.
	ErrStaleTask = errors.New("stale detection task")
)
