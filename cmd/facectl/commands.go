package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/your-org/facebot/internal/janitor"
	"github.com/your-org/facebot/internal/models"
	"github.com/your-org/facebot/internal/provision"
	"github.com/your-org/facebot/internal/queue"
	"github.com/your-org/facebot/internal/storage"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Create the face table, buckets and streams",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		blobs, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			return fmt.Errorf("connect to minio: %w", err)
		}
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer producer.Close()

		err = provision.Run(cmd.Context(), provision.Targets{
			Faces:   faces,
			Blobs:   blobs,
			Buckets: []string{cfg.MinIO.SourceBucket, cfg.MinIO.TargetBucket},
			Streams: producer,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "provisioned")
		return nil
	},
}

var listLimit int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List faces that have no name yet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		recs, err := faces.ListUnlabeled(cmd.Context(), listLimit)
		if err != nil {
			return fmt.Errorf("list unlabeled faces: %w", err)
		}
		if len(recs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No unlabeled faces.")
			return nil
		}
		writeFaces(cmd.OutOrStdout(), recs)
		return nil
	},
}

var labelCmd = &cobra.Command{
	Use:   "label <face_id> <name>",
	Short: "Assign a person name to a face",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		faceID, name := args[0], args[1]
		rec, err := faces.Get(cmd.Context(), faceID)
		if err != nil {
			return fmt.Errorf("get face: %w", err)
		}
		if rec == nil {
			return fmt.Errorf("face %s not found", faceID)
		}
		if err := faces.UpdateName(cmd.Context(), faceID, name); err != nil {
			return fmt.Errorf("label face: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Face %s labeled as '%s'\n", faceID, name)
		return nil
	},
}

var findCmd = &cobra.Command{
	Use:   "find <name>",
	Short: "List faces labeled with a name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recs, err := faces.ScanByName(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("find faces: %w", err)
		}
		if len(recs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No photos found.")
			return nil
		}
		writeFaces(cmd.OutOrStdout(), recs)
		return nil
	},
}

var sweepDelete bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Report face crops that have no record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		blobs, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			return fmt.Errorf("connect to minio: %w", err)
		}
		jc := cfg.Janitor
		if cmd.Flags().Changed("delete") {
			jc.Delete = sweepDelete
		}
		report, err := janitor.NewSweeper(blobs, faces, cfg.MinIO.TargetBucket, jc).Sweep(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, key := range report.Keys {
			fmt.Fprintln(out, key)
		}
		fmt.Fprintf(out, "scanned %d, orphans %d, deleted %d\n", report.Scanned, report.Orphans, report.Deleted)
		return nil
	},
}

func init() {
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum number of faces to show")
	sweepCmd.Flags().BoolVar(&sweepDelete, "delete", false, "delete orphans older than janitor.min_age")
}

func writeFaces(out io.Writer, recs []models.FaceRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FACE ID\tORIGINAL\tNAME\tCREATED")
	fmt.Fprintln(w, "-------\t--------\t----\t-------")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.FaceID, r.OriginalImageKey, r.PersonName, r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}
