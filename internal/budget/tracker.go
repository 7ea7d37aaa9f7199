// Package budget tracks per-provider call counters against the persistent
// store so capacity survives restarts and holds up under concurrent workers.
package budget

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/placematch/internal/store"
)

// DefaultWindow is the budget reset window.
const DefaultWindow = 24 * time.Hour

// Tracker gates provider calls against their configured limits. Limits are
// supplied at construction; counters live in the store and are incremented
// with an atomic check so a second worker cannot overrun the budget.
type Tracker struct {
	store  store.Store
	limits map[string]*int
	window time.Duration
}

// New creates a Tracker. A missing or nil limit for a provider means
// unlimited.
func New(st store.Store, limits map[string]*int, window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{store: st, limits: limits, window: window}
}

// RecordCall atomically consumes one call from the provider's budget.
// Returns false without incrementing when the budget is exhausted.
func (t *Tracker) RecordCall(ctx context.Context, provider string) (bool, error) {
	ok, err := t.store.TryRecordCall(ctx, provider, t.limits[provider], t.window)
	if err != nil {
		return false, err
	}
	if !ok {
		zap.L().Warn("budget exhausted", zap.String("provider", provider))
	}
	return ok, nil
}

// CanCall reports whether at least one call remains without consuming it.
func (t *Tracker) CanCall(ctx context.Context, provider string) (bool, error) {
	limit := t.limits[provider]
	if limit == nil {
		return true, nil
	}
	remaining, err := t.Remaining(ctx, provider)
	if err != nil {
		return false, err
	}
	return remaining != 0, nil
}

// Remaining returns the calls left in the current window, or -1 if unlimited.
// A provider with no recorded calls has its full limit remaining.
func (t *Tracker) Remaining(ctx context.Context, provider string) (int, error) {
	limit := t.limits[provider]
	if limit == nil {
		return -1, nil
	}

	b, err := t.store.GetBudget(ctx, provider)
	if err != nil {
		return 0, err
	}
	if b == nil || !b.ResetsAt.After(time.Now().UTC()) {
		// No usage yet, or the window has elapsed.
		return *limit, nil
	}
	left := *limit - b.Calls
	if left < 0 {
		left = 0
	}
	return left, nil
}
