package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aquads/indexer/internal/core/config"
	"github.com/aquads/indexer/internal/infra/storage/postgres"
)

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [stream_id]",
	Short: "Delete the stored cursor so the poller replays the stream from the origin",
	Long: `Deletes the cursor row for a stream (package::module). The next run
refetches every event from the beginning; the event log's dedup makes the
replay idempotent. Omit the argument to reset the configured stream.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runResetCursor,
}

func init() {
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	streamID := cfg.Sui.StreamID()
	if len(args) == 1 {
		streamID = args[0]
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := postgres.NewCursorRepo(db).Delete(ctx, streamID); err != nil {
		slog.Error("Failed to reset cursor", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Cursor reset for %s; next run replays from the origin\n", streamID)
}
