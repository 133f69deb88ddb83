package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/models"
)

// ErrObjectNotFound is returned by blob reads for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// TableName is the face record table shared by every FaceStore backend.
const TableName = "faces_data"

// FaceStore is the durable keyed table of face records.
//
// Scans are index-backed but unpaginated: ScanByName returns every match.
type FaceStore interface {
	// EnsureSchema creates the table and its indexes if absent. Safe to call
	// repeatedly and from concurrent processes.
	EnsureSchema(ctx context.Context) error
	// Put inserts or overwrites the record keyed by FaceID. An existing
	// person_name is kept when rec.PersonName is empty.
	Put(ctx context.Context, rec models.FaceRecord) error
	// UpdateName sets person_name. Updating a missing face is a no-op, not an error.
	UpdateName(ctx context.Context, faceID, name string) error
	// ScanUnlabeled returns the oldest record with an absent or empty name,
	// or nil when every face is labeled.
	ScanUnlabeled(ctx context.Context) (*models.FaceRecord, error)
	// ScanByName returns all records whose name equals name exactly.
	ScanByName(ctx context.Context, name string) ([]models.FaceRecord, error)
	// Get returns the record or nil when it does not exist.
	Get(ctx context.Context, faceID string) (*models.FaceRecord, error)
	ListUnlabeled(ctx context.Context, limit int) ([]models.FaceRecord, error)
	Counts(ctx context.Context) (total, labeled int, err error)
	Ping(ctx context.Context) error
	Close()
}

// Open connects the FaceStore backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (FaceStore, error) {
	switch cfg.Driver {
	case "postgres", "":
		return NewPostgresStore(ctx, cfg)
	case "sqlite", "mysql":
		return NewSQLStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
