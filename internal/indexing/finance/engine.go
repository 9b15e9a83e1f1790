// Package finance derives vesting revenue and claimable balances from the
// event log and the claims ledger.
package finance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aquads/indexer/internal/core/domain"
	"github.com/aquads/indexer/internal/indexing/metrics"
	"github.com/aquads/indexer/internal/infra/storage"
)

// VestWindowSeconds is the fixed linear vesting window per revenue event.
const VestWindowSeconds int64 = 30 * 86400

// VestDays is the window expressed in days, reported by the API.
const VestDays = 30

// ErrInvalidClaim is returned for non-positive or over-available amounts.
// No ledger mutation happens on rejection.
var ErrInvalidClaim = errors.New("invalid claim amount")

// ErrClaimInProgress is returned when another process holds the claim lock
// for the slot. The caller should retry.
var ErrClaimInProgress = errors.New("claim already in progress")

// Locker is an optional cross-process claim lock (redis SetNX when
// configured). The in-process per-slot mutex is always held regardless.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Summary is the financial state of one slot at a point in time.
type Summary struct {
	Total     int64
	Claimable int64
	Claimed   int64
	Available int64
}

// Engine computes vesting summaries and serializes claims per slot.
type Engine struct {
	events storage.EventRepository
	claims storage.ClaimRepository
	locker Locker
	log    *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a finance engine. locker may be nil.
func NewEngine(
	events storage.EventRepository,
	claims storage.ClaimRepository,
	locker Locker,
	log *slog.Logger,
) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		events: events,
		claims: claims,
		locker: locker,
		log:    log,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

// SetNow overrides the clock, for tests.
func (e *Engine) SetNow(now func() time.Time) {
	e.now = now
}

// Summary computes the vesting state for a slot. Revenue events vest linearly
// over the 30-day window; claimable is clamped up to claimed so late events or
// clock skew can never make the ledger look overdrawn.
func (e *Engine) Summary(ctx context.Context, slotID string) (Summary, error) {
	events, err := e.events.ListByKinds(ctx, slotID, domain.RentalKinds, true, 0)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load revenue events: %w", err)
	}
	claimed, err := e.claims.SumBySlot(ctx, slotID)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to sum claims: %w", err)
	}

	now := e.now().Unix()
	var total, claimable int64
	for _, ev := range events {
		amount := domain.Int64Field(ev.Data, "price", "amount")
		total += amount
		claimable += vestedAmount(amount, now-ev.TS)
	}

	if claimable < claimed {
		claimable = claimed
	}

	return Summary{
		Total:     total,
		Claimable: claimable,
		Claimed:   claimed,
		Available: claimable - claimed,
	}, nil
}

// Claim validates and appends a withdrawal against the slot's vested revenue.
// The read-validate-append sequence runs under a per-slot lock; available is
// recomputed inside the critical section, never cached, so concurrent claims
// cannot overdraw.
func (e *Engine) Claim(ctx context.Context, slotID string, amount int64) (*domain.Claim, error) {
	if amount <= 0 {
		metrics.ClaimsRejected.Inc()
		return nil, ErrInvalidClaim
	}

	lock := e.slotLock(slotID)
	lock.Lock()
	defer lock.Unlock()

	if e.locker != nil {
		key := "claim_lock:" + slotID
		acquired, err := e.locker.Acquire(ctx, key, 10*time.Second)
		if err != nil {
			e.log.Warn("Claim lock unavailable, proceeding with local lock",
				"slot", slotID, "error", err)
		} else if !acquired {
			return nil, fmt.Errorf("slot %s: %w", slotID, ErrClaimInProgress)
		} else {
			defer func() {
				if err := e.locker.Release(ctx, key); err != nil {
					e.log.Warn("Failed to release claim lock",
						"slot", slotID, "error", err)
				}
			}()
		}
	}

	summary, err := e.Summary(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if amount > summary.Available {
		metrics.ClaimsRejected.Inc()
		return nil, ErrInvalidClaim
	}

	claim := &domain.Claim{
		ID:     uuid.NewString(),
		SlotID: slotID,
		Amount: amount,
		TS:     e.now().Unix(),
	}
	if err := e.claims.Append(ctx, claim); err != nil {
		return nil, fmt.Errorf("failed to append claim: %w", err)
	}

	metrics.ClaimsAppended.Inc()
	e.log.Info("Claim recorded", "slot", slotID, "amount", amount)
	return claim, nil
}

func (e *Engine) slotLock(slotID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[slotID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[slotID] = l
	}
	return l
}

// vestedAmount returns the linearly vested portion of amount after elapsed
// seconds, truncating. The split multiplication avoids int64 overflow for any
// amount: the remainder is below the window and elapsed is clamped to it.
func vestedAmount(amount, elapsed int64) int64 {
	if elapsed <= 0 {
		return 0
	}
	if elapsed >= VestWindowSeconds {
		return amount
	}
	w := VestWindowSeconds
	return amount/w*elapsed + amount%w*elapsed/w
}
