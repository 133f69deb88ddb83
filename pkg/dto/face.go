package dto

type FaceResponse struct {
	FaceImageKey     string `json:"face_image_key"`
	OriginalImageKey string `json:"original_image_key"`
	PersonName       string `json:"person_name,omitempty"`
	CreatedAt        string `json:"created_at"`
}

type RenameFaceRequest struct {
	Name string `json:"name" binding:"required"`
}

// UploadNotification is either an S3/MinIO bucket notification (Records)
// or a bare {bucket, object_key} pair.
type UploadNotification struct {
	Records   []S3EventRecord `json:"Records"`
	Bucket    string          `json:"bucket"`
	ObjectKey string          `json:"object_key"`
}

type S3EventRecord struct {
	EventName string `json:"eventName"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key  string `json:"key"`
			ETag string `json:"eTag"`
		} `json:"object"`
	} `json:"s3"`
}

type UploadsAcceptedResponse struct {
	Published int `json:"published"`
	Skipped   int `json:"skipped"`
}
