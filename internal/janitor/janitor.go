// Package janitor finds face crops whose record was never written, which
// happens when a cropper dies between the blob write and the upsert.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/models"
	"github.com/your-org/facebot/internal/observability"
	"github.com/your-org/facebot/internal/storage"
)

type BlobLister interface {
	List(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error)
	Delete(ctx context.Context, bucket, key string) error
}

type FaceLookup interface {
	Get(ctx context.Context, faceID string) (*models.FaceRecord, error)
}

type Report struct {
	Scanned int
	Orphans int
	Deleted int
	// Keys lists every orphan found, deleted or not.
	Keys []string
}

type Sweeper struct {
	blobs  BlobLister
	faces  FaceLookup
	bucket string
	delete bool
	minAge time.Duration
	now    func() time.Time
}

func NewSweeper(blobs BlobLister, faces FaceLookup, bucket string, cfg config.JanitorConfig) *Sweeper {
	return &Sweeper{
		blobs:  blobs,
		faces:  faces,
		bucket: bucket,
		delete: cfg.Delete,
		minAge: cfg.MinAge,
		now:    time.Now,
	}
}

// Sweep makes one pass over the crop bucket. Orphans younger than minAge
// are reported but never deleted, since their cropper may still be running.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	objects, err := s.blobs.List(ctx, s.bucket, "")
	if err != nil {
		return Report{}, fmt.Errorf("list crops: %w", err)
	}

	var rep Report
	for _, obj := range objects {
		rep.Scanned++
		rec, err := s.faces.Get(ctx, obj.Key)
		if err != nil {
			return rep, fmt.Errorf("look up %s: %w", obj.Key, err)
		}
		if rec != nil {
			continue
		}

		rep.Orphans++
		rep.Keys = append(rep.Keys, obj.Key)
		if !s.delete || s.now().Sub(obj.LastModified) < s.minAge {
			continue
		}
		if err := s.blobs.Delete(ctx, s.bucket, obj.Key); err != nil {
			return rep, fmt.Errorf("delete orphan %s: %w", obj.Key, err)
		}
		rep.Deleted++
	}

	observability.OrphanBlobs.Set(float64(rep.Orphans - rep.Deleted))
	slog.Info("orphan sweep finished", "scanned", rep.Scanned, "orphans", rep.Orphans, "deleted", rep.Deleted)
	return rep, nil
}

// Start runs Sweep on the cron schedule until ctx ends. Overlapping runs
// are skipped.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			slog.Error("orphan sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("janitor schedule %q: %w", schedule, err)
	}

	c.Start()
	slog.Info("janitor scheduled", "schedule", schedule, "bucket", s.bucket, "delete", s.delete)
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}
