// Command facectl is the operator CLI for the face labeling pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/observability"
	"github.com/your-org/facebot/internal/storage"
)

var (
	configPath string

	// cfg and faces are set up by the root PersistentPreRunE for every subcommand.
	cfg   *config.Config
	faces storage.FaceStore
)

var rootCmd = &cobra.Command{
	Use:          "facectl",
	Short:        "Operate the face labeling pipeline",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		observability.SetupLogger(cfg.Logging.Level, "text")

		faces, err = storage.Open(cmd.Context(), cfg.Database)
		if err != nil {
			return fmt.Errorf("open face store: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if faces != nil {
			faces.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "path to config file")
	rootCmd.AddCommand(provisionCmd, listCmd, labelCmd, findCmd, sweepCmd)
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
