package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aquads/indexer/internal/core/config"
	"github.com/aquads/indexer/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored cursor and event counts",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
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

	rows, err := db.QueryContext(ctx,
		"SELECT stream_id, tx_digest, event_seq, updated_at FROM cursors")
	if err != nil {
		slog.Error("Failed to query cursors", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "STREAM\tTX DIGEST\tSEQ\tUPDATED")

	for rows.Next() {
		var streamID, txDigest, eventSeq string
		var updatedAt int64
		if err := rows.Scan(&streamID, &txDigest, &eventSeq, &updatedAt); err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			streamID, txDigest, eventSeq,
			time.Unix(updatedAt, 0).UTC().Format(time.RFC3339))
	}
	_ = w.Flush()

	var events, slots int64
	_ = db.GetContext(ctx, &events, "SELECT COUNT(*) FROM events")
	_ = db.GetContext(ctx, &slots, "SELECT COUNT(*) FROM slots")
	fmt.Printf("\nevents: %d\nslots: %d\n", events, slots)
}
