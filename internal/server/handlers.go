package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aquads/indexer/internal/core/domain"
	"github.com/aquads/indexer/internal/indexing/finance"
	"github.com/aquads/indexer/internal/infra/storage"
)

const listingCap = 50

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// slotJSON is the wire shape of a slot projection. Mist amounts travel as
// decimal strings so browser clients never round them.
type slotJSON struct {
	ID            string  `json:"id"`
	Publisher     string  `json:"publisher"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	DomainHash    string  `json:"domain_hash"`
	ReservePrice  string  `json:"reserve_price"`
	CurrentRenter *string `json:"current_renter"`
	RentalExpiry  int64   `json:"rental_expiry"`
	LastPrice     string  `json:"last_price"`
	LatestMetaCID *string `json:"latest_meta_cid"`
	CreatedAt     int64   `json:"created_at"`
}

func serializeSlot(s *domain.Slot) slotJSON {
	return slotJSON{
		ID:            s.ID,
		Publisher:     s.Publisher,
		Width:         s.Width,
		Height:        s.Height,
		DomainHash:    s.DomainHash,
		ReservePrice:  strconv.FormatInt(s.ReservePrice, 10),
		CurrentRenter: s.CurrentRenter,
		RentalExpiry:  s.RentalExpiry,
		LastPrice:     strconv.FormatInt(s.LastPrice, 10),
		LatestMetaCID: s.LatestMetaCID,
		CreatedAt:     s.CreatedAt,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleConfig exposes the public chain identifiers embed scripts need.
func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"packageId":  s.cfg.PackageID,
		"moduleName": s.cfg.Module,
		"network":    s.cfg.Network,
	})
}

func (s *Server) handleSlotCurrent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	slot, err := s.slots.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		s.log.Error("Slot lookup failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed")
		return
	}

	pageURL, err := s.pages.Get(r.Context(), id)
	if err != nil {
		s.log.Warn("Page URL lookup failed", "id", id, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"slot":          serializeSlot(slot),
		"renter":        slot.CurrentRenter,
		"expiry":        slot.RentalExpiry,
		"lastPrice":     strconv.FormatInt(slot.LastPrice, 10),
		"latestMetaCid": slot.LatestMetaCID,
		"pageUrl":       nullableString(pageURL),
	})
}

// handleListSlots serves the marketplace browse listing. The website filter
// matches against annotated page URLs, so it runs above the store; the result
// is capped either way.
func (s *Server) handleListSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := domain.SlotFilter{
		DomainHash: q.Get("domainHash"),
		Sort:       parseSort(q.Get("sort")),
	}
	if size := strings.ToLower(q.Get("size")); size != "" {
		parts := strings.SplitN(size, "x", 2)
		if len(parts) == 2 {
			filter.Width, _ = strconv.Atoi(parts[0])
			filter.Height, _ = strconv.Atoi(parts[1])
		}
	}

	website := strings.TrimSpace(q.Get("website"))
	if website == "" {
		filter.Limit = listingCap
	}

	slots, err := s.slots.List(r.Context(), filter)
	if err != nil {
		s.log.Error("Slot listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed")
		return
	}

	if website != "" {
		pages, err := s.pages.All(r.Context())
		if err != nil {
			s.log.Error("Page map load failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed")
			return
		}
		slots = filterByWebsite(slots, pages, website)
		if len(slots) > listingCap {
			slots = slots[:listingCap]
		}
	}

	out := make([]slotJSON, 0, len(slots))
	for _, slot := range slots {
		out = append(out, serializeSlot(slot))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePublisherSlots(w http.ResponseWriter, r *http.Request) {
	addr := domain.NormalizeAddress(r.PathValue("addr"))
	slots, err := s.slots.List(r.Context(), domain.SlotFilter{
		Publisher: addr,
		Sort:      domain.SortNewest,
	})
	if err != nil {
		s.log.Error("Publisher listing failed", "publisher", addr, "error", err)
		writeError(w, http.StatusInternalServerError, "failed")
		return
	}
	out := make([]slotJSON, 0, len(slots))
	for _, slot := range slots {
		out = append(out, serializeSlot(slot))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSlotFinance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	summary, err := s.finance.Summary(r.Context(), id)
	if err != nil {
		s.log.Error("Finance summary failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalMist":     strconv.FormatInt(summary.Total, 10),
		"claimableMist": strconv.FormatInt(summary.Claimable, 10),
		"claimedMist":   strconv.FormatInt(summary.Claimed, 10),
		"availableMist": strconv.FormatInt(summary.Available, 10),
		"vestDays":      finance.VestDays,
	})
}

func (s *Server) handleSlotClaim(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body struct {
		AmountMist string `json:"amountMist"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AmountMist == "" {
		writeError(w, http.StatusBadRequest, "amountMist required")
		return
	}
	amount, err := strconv.ParseInt(body.AmountMist, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	claim, err := s.finance.Claim(r.Context(), id, amount)
	if errors.Is(err, finance.ErrInvalidClaim) {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	if errors.Is(err, finance.ErrClaimInProgress) {
		writeError(w, http.StatusConflict, "claim in progress")
		return
	}
	if err != nil {
		s.log.Error("Claim failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"claimedMist": strconv.FormatInt(claim.Amount, 10),
	})
}

// handleSlotCreatives serves the CreativeUpdated history, newest first.
func (s *Server) handleSlotCreatives(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	events, err := s.events.ListByKinds(
		r.Context(), id,
		[]domain.EventKind{domain.EventKindCreativeUpdated},
		false, listingCap,
	)
	if err != nil {
		s.log.Error("Creative history failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed")
		return
	}

	out := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		out = append(out, map[string]any{
			"id":      ev.ID,
			"ts":      ev.TS,
			"metaCid": domain.BytesField(ev.Data, "meta_cid"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetPage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body struct {
		PageURL string `json:"pageUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := s.pages.Set(r.Context(), id, body.PageURL); err != nil {
		s.log.Error("Page URL save failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleRegisterSlot creates the projection row before the chain event is
// observed, so a freshly created slot shows up immediately. The later
// SlotCreated replay converges to the same row.
func (s *Server) handleRegisterSlot(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	slotID := domain.StringField(body, "slotId", "id")
	if slotID == "" {
		writeError(w, http.StatusBadRequest, "slotId required")
		return
	}

	now := time.Now().Unix()
	publisher := domain.NormalizeAddress(domain.StringField(body, "publisher"))
	width := int(domain.Int64Field(body, "width"))
	height := int(domain.Int64Field(body, "height"))
	domainHash := domain.StringField(body, "domainHash", "domain_hash")
	reservePrice := domain.Int64Field(body, "reservePrice", "reserve_price")

	patch := domain.SlotPatch{
		ID:           slotID,
		EventTS:      now,
		Publisher:    &publisher,
		Width:        &width,
		Height:       &height,
		DomainHash:   &domainHash,
		ReservePrice: &reservePrice,
		CreatedAt:    &now,
	}
	if err := s.slots.Upsert(r.Context(), patch); err != nil {
		s.log.Error("Slot registration failed", "id", slotID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed")
		return
	}

	if pageURL := domain.StringField(body, "pageUrl"); pageURL != "" {
		if err := s.pages.Set(r.Context(), slotID, pageURL); err != nil {
			s.log.Warn("Page URL save failed", "id", slotID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "slotId": slotID})
}

func (s *Server) handleWalletOverview(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("addr")
	ov, err := s.overview.Overview(r.Context(), addr)
	if err != nil {
		s.log.Error("Wallet overview failed", "wallet", addr, "error", err)
		writeError(w, http.StatusInternalServerError, "failed")
		return
	}

	purchased := make([]map[string]any, 0, len(ov.Purchased))
	purchasedViews := 0
	for _, ps := range ov.Purchased {
		purchasedViews += ps.Views.Views
		purchased = append(purchased, map[string]any{
			"slot":       serializeSlot(ps.Slot),
			"pageUrl":    nullableString(ps.PageURL),
			"viewStats":  viewStatsJSON(ps.Views),
			"lastRental": rentalJSON(ps.LastRental, ps.Slot, false),
		})
	}

	created := make([]map[string]any, 0, len(ov.Created))
	createdViews := 0
	for _, cs := range ov.Created {
		createdViews += cs.Views.Views
		created = append(created, map[string]any{
			"slot":         serializeSlot(cs.Slot),
			"pageUrl":      nullableString(cs.PageURL),
			"viewStats":    viewStatsJSON(cs.Views),
			"revenueMist":  strconv.FormatInt(cs.TotalRevenue, 10),
			"pendingMist":  strconv.FormatInt(cs.PendingRevenue, 10),
			"latestRental": rentalJSON(cs.LatestRental, cs.Slot, true),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"wallet": ov.Address,
		"purchased": map[string]any{
			"totalSlots": len(purchased),
			"totalViews": purchasedViews,
			"slots":      purchased,
		},
		"created": map[string]any{
			"totalSlots":           len(created),
			"totalViews":           createdViews,
			"totalRevenueMist":     strconv.FormatInt(ov.TotalRevenue, 10),
			"pendingRevenueMist":   strconv.FormatInt(ov.PendingRevenue, 10),
			"depositedRevenueMist": strconv.FormatInt(ov.DepositedRevenue, 10),
			"slots":                created,
		},
	})
}

func (s *Server) handleTrackView(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SlotID     string  `json:"slotId"`
		MaxPct     float64 `json:"maxPct"`
		DurationMs int64   `json:"durationMs"`
		TS         int64   `json:"ts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SlotID == "" {
		writeError(w, http.StatusBadRequest, "slotId required")
		return
	}
	if body.TS == 0 {
		body.TS = time.Now().UnixMilli()
	}

	rec := &domain.ViewRecord{
		SlotID:     body.SlotID,
		MaxPct:     body.MaxPct,
		DurationMs: body.DurationMs,
		TS:         body.TS,
	}
	if err := s.views.Append(r.Context(), rec); err != nil {
		s.log.Error("View track failed", "slot", body.SlotID, "error", err)
		writeError(w, http.StatusInternalServerError, "track failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleTrackClick is an accepted stub; clicks are not persisted yet.
func (s *Server) handleTrackClick(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func viewStatsJSON(st domain.ViewStats) map[string]any {
	return map[string]any{
		"views":           st.Views,
		"totalDurationMs": st.TotalDurationMs,
		"avgMaxViewPct":   st.AvgMaxPct(),
	}
}

// rentalJSON renders a rental event summary. Expiry falls back to the slot
// projection when the event payload lacks one.
func rentalJSON(ev *domain.Event, slot *domain.Slot, withRenter bool) map[string]any {
	if ev == nil {
		return nil
	}
	expiry := domain.Int64Field(ev.Data, "expiry", "lock_until")
	if expiry == 0 {
		expiry = slot.RentalExpiry
	}
	out := map[string]any{
		"type":      string(ev.Kind),
		"ts":        ev.TS,
		"priceMist": strconv.FormatInt(domain.Int64Field(ev.Data, "price", "amount"), 10),
		"expiry":    expiry,
	}
	if withRenter {
		out["renter"] = domain.NormalizeAddress(
			domain.StringField(ev.Data, "renter", "new_renter"))
	}
	return out
}

func parseSort(s string) domain.SlotSort {
	switch domain.SlotSort(s) {
	case domain.SortPriceAsc, domain.SortNewest, domain.SortOldest:
		return domain.SlotSort(s)
	default:
		return domain.SortPriceDesc
	}
}

// filterByWebsite keeps slots whose annotated page URL's host matches the
// search term. Slots without a page URL never match.
func filterByWebsite(slots []*domain.Slot, pages map[string]string, term string) []*domain.Slot {
	want := hostOf(strings.ToLower(term))
	out := make([]*domain.Slot, 0, len(slots))
	for _, slot := range slots {
		pageURL, ok := pages[slot.ID]
		if !ok {
			continue
		}
		host := hostOf(strings.ToLower(pageURL))
		if want == "" || strings.Contains(host, want) {
			out = append(out, slot)
		}
	}
	return out
}

// hostOf extracts a bare hostname from a URL or naked domain, dropping any
// leading www.
func hostOf(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return strings.TrimPrefix(strings.TrimSpace(raw), "www.")
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
