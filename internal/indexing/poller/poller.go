// Package poller runs the single fetch-and-apply loop that replays the chain
// event stream into local state.
//
// The loop is cooperative and never re-entrant: the next iteration is
// scheduled only after the previous one completes, success or failure. The
// cursor advances only after an event is durably stored and projected, which
// gives at-least-once delivery; the event log's id-dedup makes redelivery
// harmless.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aquads/indexer/internal/core/domain"
	"github.com/aquads/indexer/internal/indexing/metrics"
	"github.com/aquads/indexer/internal/infra/chain/sui"
	"github.com/aquads/indexer/internal/infra/storage"
)

// EventSource fetches ascending, cursor-bounded pages of chain events.
type EventSource interface {
	QueryEvents(ctx context.Context, cursor *domain.EventID, limit int) (*sui.Page, error)
}

// Applier projects a single event.
type Applier interface {
	Apply(ctx context.Context, ev *domain.Event) error
}

// Config holds poller configuration.
type Config struct {
	StreamID  string // package::module, keys the persisted cursor
	PackageID string

	Source    EventSource
	Events    storage.EventRepository
	Projector Applier
	Cursors   storage.CursorRepository

	BatchSize     int           // default 50
	PollInterval  time.Duration // delay after a completed iteration, default 2s
	RetryInterval time.Duration // delay when misconfigured, default 3s

	Log *slog.Logger

	// Now overrides the clock for events missing a chain timestamp.
	Now func() time.Time
}

// Poller owns cursor advancement for one event stream.
type Poller struct {
	cfg     Config
	cursor  *domain.EventID
	running atomic.Bool
	stopped atomic.Bool
	stop    chan struct{}
}

// New creates a poller. The durable cursor is loaded on Start.
func New(cfg Config) *Poller {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 3 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Poller{
		cfg:  cfg,
		stop: make(chan struct{}),
	}
}

// Start runs the polling loop until the context is cancelled or Stop is
// called. Transient failures are logged and retried indefinitely; nothing in
// this path is fatal.
func (p *Poller) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("poller already running")
	}
	defer p.running.Store(false)

	if err := p.loadCursor(ctx); err != nil {
		return err
	}

	for {
		delay := p.pollOnce(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-p.stop:
			return nil
		case <-time.After(delay):
		}
	}
}

// Stop stops the polling loop. Safe to call more than once.
func (p *Poller) Stop() error {
	if p.stopped.CompareAndSwap(false, true) {
		close(p.stop)
	}
	return nil
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	return p.running.Load()
}

func (p *Poller) loadCursor(ctx context.Context) error {
	cur, err := p.cfg.Cursors.Get(ctx, p.cfg.StreamID)
	switch {
	case err == nil:
		id := cur.EventID()
		p.cursor = &id
		p.cfg.Log.Info("Resuming from stored cursor",
			"stream", p.cfg.StreamID, "cursor", id.String())
	case err == storage.ErrNotFound:
		p.cursor = nil
		p.cfg.Log.Info("No stored cursor, starting from stream origin",
			"stream", p.cfg.StreamID)
	default:
		return fmt.Errorf("failed to load cursor: %w", err)
	}
	return nil
}

// pollOnce runs one fetch-and-apply cycle and returns the delay before the
// next one. The cursor is never advanced past a failing event.
func (p *Poller) pollOnce(ctx context.Context) time.Duration {
	if p.cfg.PackageID == "" {
		p.cfg.Log.Warn("Package ID is empty; skipping poll")
		return p.cfg.RetryInterval
	}

	page, err := p.cfg.Source.QueryEvents(ctx, p.cursor, p.cfg.BatchSize)
	if err != nil {
		metrics.PollErrors.Inc()
		p.cfg.Log.Error("Event query failed", "error", err)
		return p.cfg.PollInterval
	}

	for _, raw := range page.Events {
		if err := p.handleEvent(ctx, raw); err != nil {
			metrics.PollErrors.Inc()
			p.cfg.Log.Error("Event handling failed",
				"id", raw.ID.String(), "error", err)
			// Stop here: the failing event will be refetched next
			// cycle because the cursor was not advanced past it.
			return p.cfg.PollInterval
		}
	}

	metrics.PollCycles.Inc()
	return p.cfg.PollInterval
}

func (p *Poller) handleEvent(ctx context.Context, raw sui.Event) error {
	ev := p.toDomain(raw)

	// 1. Record in the append-only log. Replayed ids are a no-op.
	if err := p.cfg.Events.Append(ctx, ev); err != nil {
		return fmt.Errorf("append: %w", err)
	}

	// 2. Project.
	if err := p.cfg.Projector.Apply(ctx, ev); err != nil {
		return fmt.Errorf("project: %w", err)
	}

	// 3. Advance the durable cursor past this event.
	if err := p.cfg.Cursors.Save(ctx, &domain.Cursor{
		StreamID: p.cfg.StreamID,
		TxDigest: raw.ID.TxDigest,
		EventSeq: raw.ID.EventSeq,
	}); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	id := raw.ID
	p.cursor = &id
	return nil
}

func (p *Poller) toDomain(raw sui.Event) *domain.Event {
	// Chain timestamps keep replay deterministic; wall clock is the
	// fallback for nodes that omit them.
	ts := raw.TimestampMs / 1000
	if raw.TimestampMs == 0 {
		ts = p.cfg.Now().Unix()
	}
	return &domain.Event{
		ID:      raw.ID.String(),
		SlotID:  domain.StringField(raw.ParsedJSON, "slot", "slot_id"),
		Kind:    domain.KindFromType(raw.Type),
		RawType: raw.Type,
		Data:    raw.ParsedJSON,
		TS:      ts,
	}
}
