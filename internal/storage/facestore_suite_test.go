package storage

import (
	"context"
	"testing"

	"github.com/your-org/facebot/internal/models"
)

// runFaceStoreSuite checks the FaceStore contract against any backend.
func runFaceStoreSuite(t *testing.T, store FaceStore) {
	ctx := context.Background()

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema is not idempotent: %v", err)
	}

	t.Run("empty table has no unlabeled face", func(t *testing.T) {
		rec, err := store.ScanUnlabeled(ctx)
		if err != nil {
			t.Fatalf("scan unlabeled: %v", err)
		}
		if rec != nil {
			t.Fatalf("got %+v, want nil", rec)
		}
	})

	for _, rec := range []models.FaceRecord{
		{FaceID: "a.jpg", OriginalImageKey: "group.jpg"},
		{FaceID: "b.jpg", OriginalImageKey: "group.jpg"},
		{FaceID: "c.jpg", OriginalImageKey: "solo.jpg", PersonName: "Bob"},
	} {
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("put %s: %v", rec.FaceID, err)
		}
	}

	t.Run("scan unlabeled skips labeled faces", func(t *testing.T) {
		rec, err := store.ScanUnlabeled(ctx)
		if err != nil {
			t.Fatalf("scan unlabeled: %v", err)
		}
		if rec == nil {
			t.Fatal("expected an unlabeled face")
		}
		if rec.Labeled() {
			t.Fatalf("scan returned labeled face %+v", rec)
		}
		if rec.FaceID != "a.jpg" && rec.FaceID != "b.jpg" {
			t.Fatalf("unexpected face %s", rec.FaceID)
		}
	})

	t.Run("update name then scan by name", func(t *testing.T) {
		if err := store.UpdateName(ctx, "a.jpg", "Alice"); err != nil {
			t.Fatalf("update name: %v", err)
		}
		got, err := store.ScanByName(ctx, "Alice")
		if err != nil {
			t.Fatalf("scan by name: %v", err)
		}
		if len(got) != 1 || got[0].FaceID != "a.jpg" || got[0].OriginalImageKey != "group.jpg" {
			t.Fatalf("scan by name = %+v", got)
		}

		for _, other := range []string{"Bob", "alice", "Alic", ""} {
			recs, err := store.ScanByName(ctx, other)
			if err != nil {
				t.Fatalf("scan by name %q: %v", other, err)
			}
			for _, r := range recs {
				if r.FaceID == "a.jpg" {
					t.Fatalf("scan by name %q returned a.jpg", other)
				}
			}
		}
	})

	t.Run("update of missing face is silent", func(t *testing.T) {
		if err := store.UpdateName(ctx, "missing.jpg", "Nobody"); err != nil {
			t.Fatalf("update missing: %v", err)
		}
		rec, err := store.Get(ctx, "missing.jpg")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if rec != nil {
			t.Fatalf("update created a record: %+v", rec)
		}
	})

	t.Run("empty name counts as unlabeled", func(t *testing.T) {
		if err := store.UpdateName(ctx, "b.jpg", ""); err != nil {
			t.Fatalf("update name: %v", err)
		}
		rec, err := store.ScanUnlabeled(ctx)
		if err != nil {
			t.Fatalf("scan unlabeled: %v", err)
		}
		if rec == nil || rec.FaceID != "b.jpg" {
			t.Fatalf("scan unlabeled = %+v, want b.jpg", rec)
		}
	})

	t.Run("put keeps an existing label", func(t *testing.T) {
		if err := store.Put(ctx, models.FaceRecord{FaceID: "a.jpg", OriginalImageKey: "group.jpg"}); err != nil {
			t.Fatalf("put: %v", err)
		}
		rec, err := store.Get(ctx, "a.jpg")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if rec == nil || rec.PersonName != "Alice" {
			t.Fatalf("label lost after re-put: %+v", rec)
		}
	})

	t.Run("counts and listing", func(t *testing.T) {
		total, labeled, err := store.Counts(ctx)
		if err != nil {
			t.Fatalf("counts: %v", err)
		}
		if total != 3 || labeled != 2 {
			t.Fatalf("counts = %d/%d, want 3/2", total, labeled)
		}
		list, err := store.ListUnlabeled(ctx, 10)
		if err != nil {
			t.Fatalf("list unlabeled: %v", err)
		}
		if len(list) != 1 || list[0].FaceID != "b.jpg" {
			t.Fatalf("list unlabeled = %+v", list)
		}
	})

	t.Run("no unlabeled face once all are named", func(t *testing.T) {
		if err := store.UpdateName(ctx, "b.jpg", "Carol"); err != nil {
			t.Fatalf("update name: %v", err)
		}
		rec, err := store.ScanUnlabeled(ctx)
		if err != nil {
			t.Fatalf("scan unlabeled: %v", err)
		}
		if rec != nil {
			t.Fatalf("got %+v, want nil", rec)
		}
	})
}
