// Package server exposes the indexer's read model and annotation writes over
// JSON HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aquads/indexer/internal/core/config"
	"github.com/aquads/indexer/internal/indexing/finance"
	"github.com/aquads/indexer/internal/indexing/overview"
	"github.com/aquads/indexer/internal/infra/storage"
	"github.com/aquads/indexer/internal/infra/viewlog"
)

// Server wires the HTTP routes to the stores and engines behind them.
type Server struct {
	cfg      config.SuiConfig
	slots    storage.SlotRepository
	events   storage.EventRepository
	pages    storage.PageRepository
	finance  *finance.Engine
	overview *overview.Aggregator
	views    *viewlog.FileLog
	log      *slog.Logger

	httpServer *http.Server
}

// New creates the API server listening on the given port.
func New(
	port int,
	cfg config.SuiConfig,
	slots storage.SlotRepository,
	events storage.EventRepository,
	pages storage.PageRepository,
	financeEngine *finance.Engine,
	overviewAgg *overview.Aggregator,
	views *viewlog.FileLog,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		slots:    slots,
		events:   events,
		pages:    pages,
		finance:  financeEngine,
		overview: overviewAgg,
		views:    views,
		log:      log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/config", s.handleConfig)
	mux.HandleFunc("GET /api/slots", s.handleListSlots)
	mux.HandleFunc("GET /api/slot/{id}/current", s.handleSlotCurrent)
	mux.HandleFunc("GET /api/slot/{id}/finance", s.handleSlotFinance)
	mux.HandleFunc("POST /api/slot/{id}/claim", s.handleSlotClaim)
	mux.HandleFunc("GET /api/slot/{id}/creatives", s.handleSlotCreatives)
	mux.HandleFunc("POST /api/slot/{id}/page", s.handleSetPage)
	mux.HandleFunc("POST /api/slot/register", s.handleRegisterSlot)
	mux.HandleFunc("GET /api/publisher/{addr}/slots", s.handlePublisherSlots)
	mux.HandleFunc("GET /api/wallet/{addr}/overview", s.handleWalletOverview)
	mux.HandleFunc("POST /api/track/view", s.handleTrackView)
	mux.HandleFunc("POST /api/track/click", s.handleTrackClick)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.withMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start serves until the listener is closed. ErrServerClosed is swallowed so
// a graceful Stop doesn't surface as a failure.
func (s *Server) Start() error {
	s.log.Info("API server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
