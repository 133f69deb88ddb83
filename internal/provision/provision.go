// Package provision creates the record table, buckets and streams the
// pipeline runs on. Every step is idempotent.
package provision

import (
	"context"
	"fmt"
	"log/slog"
)

type SchemaProvisioner interface {
	EnsureSchema(ctx context.Context) error
}

type BucketProvisioner interface {
	EnsureBucket(ctx context.Context, bucket string) error
}

type StreamProvisioner interface {
	EnsureStreams(ctx context.Context) error
}

// Targets lists what to provision. Nil provisioners are skipped.
type Targets struct {
	Faces   SchemaProvisioner
	Blobs   BucketProvisioner
	Buckets []string
	Streams StreamProvisioner
}

// Run provisions the schema, then the buckets, then the streams, stopping
// at the first failure.
func Run(ctx context.Context, t Targets) error {
	if t.Faces != nil {
		if err := t.Faces.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("provision schema: %w", err)
		}
		slog.Info("face table ready")
	}
	if t.Blobs != nil {
		for _, b := range t.Buckets {
			if err := t.Blobs.EnsureBucket(ctx, b); err != nil {
				return fmt.Errorf("provision bucket %s: %w", b, err)
			}
			slog.Info("bucket ready", "bucket", b)
		}
	}
	if t.Streams != nil {
		if err := t.Streams.EnsureStreams(ctx); err != nil {
			return fmt.Errorf("provision streams: %w", err)
		}
	}
	return nil
}
