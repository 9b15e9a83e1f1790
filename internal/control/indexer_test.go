package control

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aquads/indexer/internal/core/config"
)

// Builds the indexer the same way the CLI does: from a file loaded through
// config.Load, with memory storage and no redis.
func TestNewIndexer_FromLoadedConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 0
sui:
  rpc_url: http://localhost:9
  package_id: "0xpkg"
  module: ad_market
  network: testnet
views:
  path: ` + filepath.Join(dir, "views.log") + `
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}

	app, err := NewIndexer(*cfg, nil)
	if err != nil {
		t.Fatalf("NewIndexer failed: %v", err)
	}
	if app.poller == nil || app.api == nil || app.pruner == nil {
		t.Fatal("components not wired")
	}
	if app.db != nil || app.redis != nil {
		t.Error("expected memory-only wiring without database/redis URLs")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		t.Errorf("stop failed: %v", err)
	}
}
