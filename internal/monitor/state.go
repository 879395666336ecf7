// Package monitor implements the periodic position risk monitors: per-symbol
// risk state tracking plus the stop-loss, trailing-stop, and partial
// take-profit loops that evaluate the rule set and execute reduce-only
// closes.
package monitor

import (
	"sync"
	"time"
)

// State is the per-symbol risk memory shared by the three monitor families.
type State struct {
	Symbol string

	// PeakPnLPercent is the high-water mark of leveraged PnL% since the
	// symbol was first observed with an open position. Non-decreasing for
	// the life of the tracking entry.
	PeakPnLPercent float64

	// PartialClosedPct is the cumulative percentage of the original size
	// already closed by staged take-profit, in [0, 100].
	PartialClosedPct float64

	// OriginalQty is the absolute position size at first observation, the
	// basis for staged close percentages.
	OriginalQty float64

	FirstSeen    time.Time
	LastPricedAt time.Time

	// Close-failure bookkeeping for the level-triggered retry policy: a
	// failed close leaves the entry untouched so the next tick re-fires,
	// and these fields measure how long the position has been stuck past
	// its risk boundary.
	ConsecutiveFailures int
	FirstFailureAt      time.Time
	StaleAlerted        bool
}

// Tracker holds the risk state for every symbol with an open position. It is
// shared by all monitor families so that peak updates and partial-close
// accounting are visible across them.
type Tracker struct {
	mu     sync.Mutex
	states map[string]*State
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]*State)}
}

// Observe records one successful price observation. The first observation of
// a symbol creates its entry with the peak initialised to the current PnL%;
// subsequent observations ratchet the peak up, never down. The peak update is
// unconditional: it happens whether or not any auto-close is enabled, because
// downstream consumers rely on an accurate peak either way. It returns a
// snapshot of the entry after the update.
func (t *Tracker) Observe(symbol string, qty, pnlPct float64, now time.Time) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[symbol]
	if !ok {
		st = &State{
			Symbol:         symbol,
			PeakPnLPercent: pnlPct,
			OriginalQty:    qty,
			FirstSeen:      now,
		}
		t.states[symbol] = st
	}
	if pnlPct > st.PeakPnLPercent {
		st.PeakPnLPercent = pnlPct
	}
	st.LastPricedAt = now
	return *st
}

// Restore seeds an entry from a persisted snapshot so a restarted process
// resumes with its peak and partial-close history instead of a clean slate.
// Existing entries are not overwritten.
func (t *Tracker) Restore(st State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.states[st.Symbol]; ok {
		return
	}
	cp := st
	t.states[st.Symbol] = &cp
}

// Get returns a snapshot of the entry for a symbol.
func (t *Tracker) Get(symbol string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[symbol]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// RecordPartialClose ratchets the cumulative closed percentage after a
// confirmed staged close. The percentage never decreases.
func (t *Tracker) RecordPartialClose(symbol string, totalPct float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[symbol]
	if !ok {
		return
	}
	if totalPct > st.PartialClosedPct {
		st.PartialClosedPct = totalPct
	}
	st.ConsecutiveFailures = 0
	st.FirstFailureAt = time.Time{}
	st.StaleAlerted = false
}

// RecordFailure notes a failed close attempt and returns the updated
// snapshot. The risk state is otherwise untouched so the next tick
// re-evaluates and retries.
func (t *Tracker) RecordFailure(symbol string, now time.Time) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[symbol]
	if !ok {
		return State{Symbol: symbol, ConsecutiveFailures: 1, FirstFailureAt: now}
	}
	st.ConsecutiveFailures++
	if st.FirstFailureAt.IsZero() {
		st.FirstFailureAt = now
	}
	return *st
}

// MarkStaleAlerted suppresses repeat staleness alerts for a symbol until its
// failure bookkeeping is cleared.
func (t *Tracker) MarkStaleAlerted(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.states[symbol]; ok {
		st.StaleAlerted = true
	}
}

// ClearFailures resets the failure bookkeeping after a successful close.
func (t *Tracker) ClearFailures(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.states[symbol]; ok {
		st.ConsecutiveFailures = 0
		st.FirstFailureAt = time.Time{}
		st.StaleAlerted = false
	}
}

// Remove deletes a symbol's entry. Called only after a confirmed full close
// so a freshly opened position starts with a clean peak.
func (t *Tracker) Remove(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, symbol)
}

// Sweep removes entries for symbols that no longer have an open position and
// returns the removed symbols.
func (t *Tracker) Sweep(open map[string]bool) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []string
	for sym := range t.states {
		if !open[sym] {
			delete(t.states, sym)
			removed = append(removed, sym)
		}
	}
	return removed
}

// Len returns the number of tracked symbols.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}
