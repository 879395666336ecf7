package monitor

import (
	"sort"
	"testing"
	"time"
)

func TestObservePeakRatchet(t *testing.T) {
	tr := NewTracker()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// First sight: peak starts at the current PnL, even when negative.
	st := tr.Observe("BTCUSDT", 0.5, -4, now)
	if st.PeakPnLPercent != -4 {
		t.Errorf("initial peak = %f, want -4", st.PeakPnLPercent)
	}
	if st.OriginalQty != 0.5 {
		t.Errorf("original qty = %f, want 0.5", st.OriginalQty)
	}
	if !st.FirstSeen.Equal(now) {
		t.Errorf("first seen = %v, want %v", st.FirstSeen, now)
	}

	steps := []struct {
		pnl  float64
		peak float64
	}{
		{2, 2},
		{16, 16},
		{10, 16}, // drawdown does not lower the peak
		{16, 16},
		{31, 31},
	}
	for i, s := range steps {
		now = now.Add(10 * time.Second)
		st = tr.Observe("BTCUSDT", 0.5, s.pnl, now)
		if st.PeakPnLPercent != s.peak {
			t.Errorf("step %d: peak = %f, want %f", i, st.PeakPnLPercent, s.peak)
		}
		if !st.LastPricedAt.Equal(now) {
			t.Errorf("step %d: lastPricedAt not advanced", i)
		}
	}
}

func TestObserveDoesNotResetOriginalQty(t *testing.T) {
	tr := NewTracker()
	now := time.Now()

	tr.Observe("ETHUSDT", 3, 5, now)
	// A staged close shrank the live position; the basis must stay 3.
	st := tr.Observe("ETHUSDT", 2.1, 22, now.Add(time.Minute))
	if st.OriginalQty != 3 {
		t.Errorf("original qty = %f, want frozen 3", st.OriginalQty)
	}
}

func TestRestoreSkipsExistingEntries(t *testing.T) {
	tr := NewTracker()
	now := time.Now()

	tr.Restore(State{Symbol: "BTCUSDT", PeakPnLPercent: 40, PartialClosedPct: 30, OriginalQty: 1})
	st, ok := tr.Get("BTCUSDT")
	if !ok {
		t.Fatal("restored entry missing")
	}
	if st.PeakPnLPercent != 40 || st.PartialClosedPct != 30 {
		t.Errorf("restored state = %+v", st)
	}

	// A live observation keeps the restored peak when lower.
	st = tr.Observe("BTCUSDT", 1, 12, now)
	if st.PeakPnLPercent != 40 {
		t.Errorf("peak = %f, want restored 40", st.PeakPnLPercent)
	}

	// Restore after observation must not clobber live state.
	tr.Restore(State{Symbol: "BTCUSDT", PeakPnLPercent: 99})
	st, _ = tr.Get("BTCUSDT")
	if st.PeakPnLPercent != 40 {
		t.Errorf("peak = %f, restore overwrote a live entry", st.PeakPnLPercent)
	}
}

func TestRecordPartialCloseRatchetsAndClearsFailures(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.Observe("BTCUSDT", 1, 25, now)
	tr.RecordFailure("BTCUSDT", now)
	tr.MarkStaleAlerted("BTCUSDT")

	tr.RecordPartialClose("BTCUSDT", 30)
	st, _ := tr.Get("BTCUSDT")
	if st.PartialClosedPct != 30 {
		t.Errorf("partial = %f, want 30", st.PartialClosedPct)
	}
	if st.ConsecutiveFailures != 0 || !st.FirstFailureAt.IsZero() || st.StaleAlerted {
		t.Errorf("failure bookkeeping not cleared: %+v", st)
	}

	// Lower totals are ignored.
	tr.RecordPartialClose("BTCUSDT", 20)
	st, _ = tr.Get("BTCUSDT")
	if st.PartialClosedPct != 30 {
		t.Errorf("partial = %f, ratchet went backwards", st.PartialClosedPct)
	}
}

func TestRecordFailureBookkeeping(t *testing.T) {
	tr := NewTracker()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr.Observe("BTCUSDT", 1, -20, t0)

	st := tr.RecordFailure("BTCUSDT", t0)
	if st.ConsecutiveFailures != 1 || !st.FirstFailureAt.Equal(t0) {
		t.Errorf("first failure: %+v", st)
	}
	st = tr.RecordFailure("BTCUSDT", t0.Add(10*time.Second))
	if st.ConsecutiveFailures != 2 {
		t.Errorf("failures = %d, want 2", st.ConsecutiveFailures)
	}
	// FirstFailureAt anchors the episode, it does not slide.
	if !st.FirstFailureAt.Equal(t0) {
		t.Errorf("firstFailureAt = %v, want %v", st.FirstFailureAt, t0)
	}

	// A failure does not disturb the risk state itself.
	if st.PeakPnLPercent != -20 {
		t.Errorf("peak = %f, failure mutated risk state", st.PeakPnLPercent)
	}

	tr.ClearFailures("BTCUSDT")
	st, _ = tr.Get("BTCUSDT")
	if st.ConsecutiveFailures != 0 || !st.FirstFailureAt.IsZero() {
		t.Errorf("clear did not reset: %+v", st)
	}
}

func TestSweepRemovesClosedSymbols(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	for _, sym := range []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"} {
		tr.Observe(sym, 1, 0, now)
	}

	removed := tr.Sweep(map[string]bool{"ETHUSDT": true})
	sort.Strings(removed)
	if len(removed) != 2 || removed[0] != "BTCUSDT" || removed[1] != "SOLUSDT" {
		t.Errorf("removed = %v, want [BTCUSDT SOLUSDT]", removed)
	}
	if tr.Len() != 1 {
		t.Errorf("len = %d, want 1", tr.Len())
	}
	if _, ok := tr.Get("ETHUSDT"); !ok {
		t.Error("open symbol was swept")
	}
}

func TestRemoveResetsForNextPosition(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.Observe("BTCUSDT", 1, 60, now)
	tr.RecordPartialClose("BTCUSDT", 60)

	tr.Remove("BTCUSDT")
	if _, ok := tr.Get("BTCUSDT"); ok {
		t.Fatal("entry survived Remove")
	}

	// A fresh position starts with a clean slate.
	st := tr.Observe("BTCUSDT", 2, -1, now.Add(time.Hour))
	if st.PeakPnLPercent != -1 || st.PartialClosedPct != 0 || st.OriginalQty != 2 {
		t.Errorf("fresh entry carried old state: %+v", st)
	}
}
