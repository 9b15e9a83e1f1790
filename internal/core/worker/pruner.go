package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/aquads/indexer/internal/core/config"
	"github.com/aquads/indexer/internal/infra/viewlog"
)

// Pruner trims old view-log records based on the retention policy.
type Pruner struct {
	cfg   config.ViewsConfig
	views *viewlog.FileLog
	log   *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(cfg config.ViewsConfig, views *viewlog.FileLog, log *slog.Logger) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{cfg: cfg, views: views, log: log}
}

// Start runs the pruner loop until the context is cancelled.
func (p *Pruner) Start(ctx context.Context) {
	retention := p.cfg.Retention.Std()
	if retention <= 0 {
		return // Retention disabled
	}

	// Check interval: 10% of the retention period, between 1m and 1h.
	interval := min(retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.cfg.Retention.Std())
	removed, err := p.views.Prune(ctx, cutoff)
	if err != nil {
		p.log.Error("Failed to prune view log", "error", err)
		return
	}
	if removed > 0 {
		p.log.Info("Pruned view log", "removed", removed, "cutoff", cutoff)
	}
}
