package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aquads/indexer/internal/core/config"
	"github.com/aquads/indexer/internal/core/domain"
	"github.com/aquads/indexer/internal/indexing/finance"
	"github.com/aquads/indexer/internal/indexing/overview"
	"github.com/aquads/indexer/internal/infra/storage/memory"
	"github.com/aquads/indexer/internal/infra/viewlog"
)

const nowTS int64 = 1_700_000_000

type testEnv struct {
	srv    *httptest.Server
	store  *memory.MemoryStorage
	slots  *memory.SlotRepo
	events *memory.EventRepo
	pages  *memory.PageRepo
	views  *viewlog.FileLog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewMemoryStorage()
	slots := memory.NewSlotRepo(store)
	events := memory.NewEventRepo(store)
	claims := memory.NewClaimRepo(store)
	pages := memory.NewPageRepo(store)

	views, err := viewlog.NewFileLog(filepath.Join(t.TempDir(), "views.log"))
	if err != nil {
		t.Fatalf("view log init failed: %v", err)
	}

	engine := finance.NewEngine(events, claims, nil, nil)
	engine.SetNow(func() time.Time { return time.Unix(nowTS, 0) })
	agg := overview.New(slots, events, pages, views)
	agg.SetNow(func() time.Time { return time.Unix(nowTS, 0) })

	s := New(
		0,
		config.SuiConfig{PackageID: "0xpkg", Module: "ad_market", Network: "testnet"},
		slots, events, pages, engine, agg, views, nil,
	)

	srv := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, store: store, slots: slots, events: events, pages: pages, views: views}
}

func (e *testEnv) get(t *testing.T, path string, wantStatus int) map[string]any {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: status %d, want %d", path, resp.StatusCode, wantStatus)
	}
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return out
}

func (e *testEnv) getList(t *testing.T, path string) []map[string]any {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", path, resp.StatusCode)
	}
	var out []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("GET %s: decode failed: %v", path, err)
	}
	return out
}

func (e *testEnv) post(t *testing.T, path string, body any, wantStatus int) map[string]any {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(e.srv.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("POST %s: status %d, want %d", path, resp.StatusCode, wantStatus)
	}
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return out
}

func (e *testEnv) seedSlot(t *testing.T, patch domain.SlotPatch) {
	t.Helper()
	if err := e.slots.Upsert(context.Background(), patch); err != nil {
		t.Fatalf("seed slot failed: %v", err)
	}
}

func (e *testEnv) seedEvent(t *testing.T, ev *domain.Event) {
	t.Helper()
	if err := e.events.Append(context.Background(), ev); err != nil {
		t.Fatalf("seed event failed: %v", err)
	}
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func i64Ptr(i int64) *int64   { return &i }

func TestHealthAndConfig(t *testing.T) {
	env := newTestEnv(t)

	health := env.get(t, "/health", http.StatusOK)
	if health["status"] != "ok" {
		t.Errorf("unexpected health body: %v", health)
	}

	cfg := env.get(t, "/api/config", http.StatusOK)
	if cfg["packageId"] != "0xpkg" || cfg["moduleName"] != "ad_market" || cfg["network"] != "testnet" {
		t.Errorf("unexpected config body: %v", cfg)
	}
}

func TestSlotCurrent(t *testing.T) {
	env := newTestEnv(t)

	env.get(t, "/api/slot/0xmissing/current", http.StatusNotFound)

	env.seedSlot(t, domain.SlotPatch{
		ID: "0xslot", EventTS: 100,
		Publisher:     strPtr("0xpub"),
		Width:         intPtr(728),
		Height:        intPtr(90),
		CurrentRenter: strPtr("0xalice"),
		RentalExpiry:  i64Ptr(9999),
		LastPrice:     i64Ptr(2500),
		CreatedAt:     i64Ptr(100),
	})
	if err := env.pages.Set(context.Background(), "0xslot", "https://example.com"); err != nil {
		t.Fatalf("seed page failed: %v", err)
	}

	body := env.get(t, "/api/slot/0xslot/current", http.StatusOK)
	if body["renter"] != "0xalice" {
		t.Errorf("renter: %v", body["renter"])
	}
	if body["expiry"] != float64(9999) {
		t.Errorf("expiry: %v", body["expiry"])
	}
	if body["lastPrice"] != "2500" {
		t.Errorf("lastPrice must be a decimal string: %v", body["lastPrice"])
	}
	if body["pageUrl"] != "https://example.com" {
		t.Errorf("pageUrl: %v", body["pageUrl"])
	}
	slot, _ := body["slot"].(map[string]any)
	if slot["width"] != float64(728) || slot["last_price"] != "2500" {
		t.Errorf("unexpected slot shape: %v", slot)
	}
}

func TestListSlots(t *testing.T) {
	env := newTestEnv(t)

	env.seedSlot(t, domain.SlotPatch{
		ID: "s1", EventTS: 1, Width: intPtr(300), Height: intPtr(250),
		LastPrice: i64Ptr(100), CreatedAt: i64Ptr(10),
	})
	env.seedSlot(t, domain.SlotPatch{
		ID: "s2", EventTS: 2, Width: intPtr(728), Height: intPtr(90),
		LastPrice: i64Ptr(300), CreatedAt: i64Ptr(20),
	})
	env.seedSlot(t, domain.SlotPatch{
		ID: "s3", EventTS: 3, Width: intPtr(300), Height: intPtr(250),
		LastPrice: i64Ptr(200), CreatedAt: i64Ptr(30),
	})
	_ = env.pages.Set(context.Background(), "s1", "https://www.news.example.com/story")
	_ = env.pages.Set(context.Background(), "s2", "https://blog.other.org/post")

	// Default sort: price desc.
	list := env.getList(t, "/api/slots")
	if len(list) != 3 || list[0]["id"] != "s2" || list[2]["id"] != "s1" {
		t.Errorf("unexpected default listing: %v", list)
	}

	// Size filter.
	list = env.getList(t, "/api/slots?size=300x250&sort=price_asc")
	if len(list) != 2 || list[0]["id"] != "s1" || list[1]["id"] != "s3" {
		t.Errorf("unexpected size-filtered listing: %v", list)
	}

	// Website filter matches against annotated page hosts; s3 has no page
	// and never matches.
	list = env.getList(t, "/api/slots?website=news.example.com")
	if len(list) != 1 || list[0]["id"] != "s1" {
		t.Errorf("unexpected website-filtered listing: %v", list)
	}

	list = env.getList(t, "/api/slots?website=nomatch.io")
	if len(list) != 0 {
		t.Errorf("expected empty listing, got %v", list)
	}
}

func TestPublisherSlots(t *testing.T) {
	env := newTestEnv(t)

	env.seedSlot(t, domain.SlotPatch{
		ID: "s1", EventTS: 1, Publisher: strPtr("0xpub"), CreatedAt: i64Ptr(10),
	})
	env.seedSlot(t, domain.SlotPatch{
		ID: "s2", EventTS: 2, Publisher: strPtr("0xpub"), CreatedAt: i64Ptr(20),
	})
	env.seedSlot(t, domain.SlotPatch{
		ID: "s3", EventTS: 3, Publisher: strPtr("0xother"), CreatedAt: i64Ptr(30),
	})

	list := env.getList(t, "/api/publisher/0xPUB/slots")
	if len(list) != 2 || list[0]["id"] != "s2" || list[1]["id"] != "s1" {
		t.Errorf("expected newest-first publisher slots, got %v", list)
	}
}

func TestSlotFinanceAndClaim(t *testing.T) {
	env := newTestEnv(t)

	// Revenue of 1000 fully vested (event 30 days old at nowTS).
	env.seedEvent(t, &domain.Event{
		ID: "e1", SlotID: "0xslot", Kind: domain.EventKindRented,
		Data: map[string]any{"price": "1000"},
		TS:   nowTS - 30*86400,
	})

	fin := env.get(t, "/api/slot/0xslot/finance", http.StatusOK)
	if fin["totalMist"] != "1000" || fin["claimableMist"] != "1000" ||
		fin["claimedMist"] != "0" || fin["availableMist"] != "1000" {
		t.Errorf("unexpected finance body: %v", fin)
	}
	if fin["vestDays"] != float64(30) {
		t.Errorf("vestDays: %v", fin["vestDays"])
	}

	// Invalid claims are 400 and leave the ledger alone.
	env.post(t, "/api/slot/0xslot/claim", map[string]any{"amountMist": "2000"}, http.StatusBadRequest)
	env.post(t, "/api/slot/0xslot/claim", map[string]any{"amountMist": "-5"}, http.StatusBadRequest)
	env.post(t, "/api/slot/0xslot/claim", map[string]any{}, http.StatusBadRequest)

	res := env.post(t, "/api/slot/0xslot/claim", map[string]any{"amountMist": "600"}, http.StatusOK)
	if res["ok"] != true || res["claimedMist"] != "600" {
		t.Errorf("unexpected claim body: %v", res)
	}

	fin = env.get(t, "/api/slot/0xslot/finance", http.StatusOK)
	if fin["claimedMist"] != "600" || fin["availableMist"] != "400" {
		t.Errorf("finance not updated after claim: %v", fin)
	}
}

func TestSlotCreatives(t *testing.T) {
	env := newTestEnv(t)

	env.seedEvent(t, &domain.Event{
		ID: "e1", SlotID: "0xslot", Kind: domain.EventKindCreativeUpdated,
		Data: map[string]any{"meta_cid": "0x636964"},
		TS:   100,
	})
	env.seedEvent(t, &domain.Event{
		ID: "e2", SlotID: "0xslot", Kind: domain.EventKindCreativeUpdated,
		Data: map[string]any{"meta_cid": []any{float64('n'), float64('e'), float64('w')}},
		TS:   200,
	})

	list := env.getList(t, "/api/slot/0xslot/creatives")
	if len(list) != 2 {
		t.Fatalf("expected 2 creatives, got %d", len(list))
	}
	if list[0]["metaCid"] != "new" || list[0]["ts"] != float64(200) {
		t.Errorf("expected newest first with decoded cid: %v", list[0])
	}
	if list[1]["metaCid"] != "cid" {
		t.Errorf("hex cid not decoded: %v", list[1])
	}
}

func TestSetPage(t *testing.T) {
	env := newTestEnv(t)

	env.post(t, "/api/slot/0xslot/page", map[string]any{"pageUrl": "https://example.com/p"}, http.StatusOK)
	url, _ := env.pages.Get(context.Background(), "0xslot")
	if url != "https://example.com/p" {
		t.Errorf("page url not stored: %s", url)
	}

	// Empty url clears.
	env.post(t, "/api/slot/0xslot/page", map[string]any{"pageUrl": ""}, http.StatusOK)
	url, _ = env.pages.Get(context.Background(), "0xslot")
	if url != "" {
		t.Errorf("page url not cleared: %s", url)
	}
}

func TestRegisterSlot(t *testing.T) {
	env := newTestEnv(t)

	env.post(t, "/api/slot/register", map[string]any{"width": 300}, http.StatusBadRequest)

	res := env.post(t, "/api/slot/register", map[string]any{
		"slotId":       "0xnew",
		"publisher":    "0xPUB",
		"width":        300,
		"height":       250,
		"domainHash":   "0xhash",
		"reservePrice": "5000",
		"pageUrl":      "https://example.com",
	}, http.StatusOK)
	if res["slotId"] != "0xnew" {
		t.Errorf("unexpected register body: %v", res)
	}

	body := env.get(t, "/api/slot/0xnew/current", http.StatusOK)
	slot, _ := body["slot"].(map[string]any)
	if slot["publisher"] != "0xpub" {
		t.Errorf("publisher not normalized: %v", slot["publisher"])
	}
	if slot["reserve_price"] != "5000" || slot["width"] != float64(300) {
		t.Errorf("unexpected registered slot: %v", slot)
	}
	if body["pageUrl"] != "https://example.com" {
		t.Errorf("page url not stored on register: %v", body["pageUrl"])
	}
}

func TestRegisterThenEventReplayConverges(t *testing.T) {
	env := newTestEnv(t)

	env.post(t, "/api/slot/register", map[string]any{
		"slotId":    "0xslot",
		"publisher": "0xpub",
		"width":     300,
		"height":    250,
	}, http.StatusOK)

	// The chain event for the same slot arrives later with the canonical
	// creation timestamp; the row must converge, not duplicate.
	err := env.slots.Upsert(context.Background(), domain.SlotPatch{
		ID: "0xslot", EventTS: 500,
		Publisher: strPtr("0xpub"),
		Width:     intPtr(300),
		Height:    intPtr(250),
		CreatedAt: i64Ptr(500),
	})
	if err != nil {
		t.Fatalf("replay upsert failed: %v", err)
	}

	body := env.get(t, "/api/slot/0xslot/current", http.StatusOK)
	slot, _ := body["slot"].(map[string]any)
	if slot["created_at"] != float64(500) {
		t.Errorf("created_at not converged to event ts: %v", slot["created_at"])
	}
	if slot["width"] != float64(300) {
		t.Errorf("width lost in replay: %v", slot["width"])
	}
}

func TestTrackViewAndClick(t *testing.T) {
	env := newTestEnv(t)

	env.post(t, "/api/track/view", map[string]any{}, http.StatusBadRequest)

	env.post(t, "/api/track/view", map[string]any{
		"slotId":     "0xslot",
		"maxPct":     85.5,
		"durationMs": 2000,
		"ts":         123456789,
	}, http.StatusOK)

	stats, err := env.views.Stats(context.Background(), []string{"0xslot"})
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats["0xslot"].Views != 1 || stats["0xslot"].MaxPctSum != 85.5 {
		t.Errorf("view not recorded: %+v", stats["0xslot"])
	}

	res := env.post(t, "/api/track/click", map[string]any{"slotId": "0xslot"}, http.StatusOK)
	if res["ok"] != true {
		t.Errorf("unexpected click body: %v", res)
	}
}

func TestWalletOverviewShape(t *testing.T) {
	env := newTestEnv(t)

	env.seedSlot(t, domain.SlotPatch{
		ID: "s1", EventTS: 1, Publisher: strPtr("0xpub"), CreatedAt: i64Ptr(100),
	})
	env.seedEvent(t, &domain.Event{
		ID: "e1", SlotID: "s1", Kind: domain.EventKindRented,
		Data: map[string]any{"renter": "0xalice", "price": "300", "expiry": float64(nowTS + 86400)},
		TS:   nowTS - 100,
	})
	env.seedEvent(t, &domain.Event{
		ID: "e2", SlotID: "s1", Kind: domain.EventKindBuyoutLocked,
		Data: map[string]any{"renter": "0xbob", "amount": "700", "lock_until": float64(nowTS + 3600)},
		TS:   nowTS - 50,
	})

	body := env.get(t, "/api/wallet/0xPUB/overview", http.StatusOK)
	if body["wallet"] != "0xpub" {
		t.Errorf("wallet not normalized: %v", body["wallet"])
	}

	created, _ := body["created"].(map[string]any)
	if created["totalSlots"] != float64(1) {
		t.Errorf("created totalSlots: %v", created["totalSlots"])
	}
	if created["totalRevenueMist"] != "1000" ||
		created["pendingRevenueMist"] != "700" ||
		created["depositedRevenueMist"] != "300" {
		t.Errorf("unexpected revenue totals: %v", created)
	}

	slots, _ := created["slots"].([]any)
	if len(slots) != 1 {
		t.Fatalf("expected 1 created slot entry, got %d", len(slots))
	}
	entry, _ := slots[0].(map[string]any)
	if entry["revenueMist"] != "1000" || entry["pendingMist"] != "700" {
		t.Errorf("per-slot revenue wrong: %v", entry)
	}
	latest, _ := entry["latestRental"].(map[string]any)
	if latest["type"] != "BuyoutLocked" || latest["renter"] != "0xbob" || latest["priceMist"] != "700" {
		t.Errorf("latestRental wrong: %v", latest)
	}

	purchased, _ := body["purchased"].(map[string]any)
	if purchased["totalSlots"] != float64(0) {
		t.Errorf("purchased totalSlots: %v", purchased["totalSlots"])
	}
}

type heldLocker struct{}

func (heldLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return false, nil
}

func (heldLocker) Release(ctx context.Context, key string) error { return nil }

func TestSlotClaim_ContendedLockIsConflict(t *testing.T) {
	store := memory.NewMemoryStorage()
	slots := memory.NewSlotRepo(store)
	events := memory.NewEventRepo(store)
	claims := memory.NewClaimRepo(store)
	pages := memory.NewPageRepo(store)

	views, err := viewlog.NewFileLog(filepath.Join(t.TempDir(), "views.log"))
	if err != nil {
		t.Fatalf("view log init failed: %v", err)
	}

	err = events.Append(context.Background(), &domain.Event{
		ID: "e1", SlotID: "s1", Kind: domain.EventKindRented,
		Data: map[string]any{"renter": "0xalice", "price": "1000"},
		TS:   nowTS - 40*86400,
	})
	if err != nil {
		t.Fatalf("seed event failed: %v", err)
	}

	engine := finance.NewEngine(events, claims, heldLocker{}, nil)
	engine.SetNow(func() time.Time { return time.Unix(nowTS, 0) })
	agg := overview.New(slots, events, pages, views)

	s := New(
		0,
		config.SuiConfig{PackageID: "0xpkg", Module: "ad_market", Network: "testnet"},
		slots, events, pages, engine, agg, views, nil,
	)
	srv := httptest.NewServer(s.httpServer.Handler)
	defer srv.Close()

	data, _ := json.Marshal(map[string]any{"amountMist": "100"})
	resp, err := http.Post(srv.URL+"/api/slot/s1/claim", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST claim failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("contended claim: status %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}
