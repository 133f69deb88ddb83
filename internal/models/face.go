package models

import "time"

// FaceRecord links one stored face crop to the image it was cut from.
// An empty PersonName means the face has not been labeled yet.
type FaceRecord struct {
	FaceID           string    `json:"face_image_key" db:"face_image_key"`
	OriginalImageKey string    `json:"original_image_key" db:"original_image_key"`
	PersonName       string    `json:"person_name,omitempty" db:"person_name"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

func (f FaceRecord) Labeled() bool {
	return f.PersonName != ""
}
