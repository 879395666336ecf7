package monitor

import (
	"context"
	"testing"

	"github.com/tkarev/futguard/internal/domain"
	"github.com/tkarev/futguard/internal/risk"
)

type fakePricer struct {
	marks map[string]float64
	err   error
}

func (f *fakePricer) Mark(_ context.Context, symbol string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.marks[symbol], nil
}

func monitorProfile() risk.Profile {
	return risk.Profile{
		LeverageMin:  5,
		LeverageMax:  20,
		StopLossLow:  -15,
		StopLossMid:  -12,
		StopLossHigh: -10,
		Tiers: [3]risk.Tier{
			{Trigger: 15, StopAt: 8},
			{Trigger: 30, StopAt: 20},
			{Trigger: 50, StopAt: 35},
		},
		Stages: [3]risk.Stage{
			{Trigger: 20, ClosePercent: 30},
			{Trigger: 40, ClosePercent: 60},
			{Trigger: 80, ClosePercent: 100},
		},
	}
}

func newTickMonitor(kind domain.TriggerKind, ex *fakeExchange, pricer Pricer, tr *Tracker, autoClose bool) *Monitor {
	cfg := Config{AutoClose: autoClose}
	closer, _, _, _, _ := newTestCloser(CloserConfig{}, ex, tr)
	switch kind {
	case domain.TriggerStopLoss:
		return NewStopLossMonitor(cfg, monitorProfile(), ex, pricer, tr, closer, testLogger())
	case domain.TriggerTrailingStop:
		return NewTrailingStopMonitor(cfg, monitorProfile(), ex, pricer, tr, closer, testLogger())
	default:
		return NewPartialTakeProfitMonitor(cfg, monitorProfile(), ex, pricer, tr, closer, testLogger())
	}
}

func TestTickSkipsSymbolsWithoutPrices(t *testing.T) {
	pos := longPosition()
	ex := &fakeExchange{positions: []domain.Position{pos}}
	tr := NewTracker()
	// Mark of zero means the feed has not produced a price yet.
	m := newTickMonitor(domain.TriggerStopLoss, ex, &fakePricer{marks: map[string]float64{}}, tr, true)

	m.tick(context.Background())

	if tr.Len() != 0 {
		t.Errorf("tracked %d symbols, want none observed without a price", tr.Len())
	}
	if len(ex.placed) != 0 {
		t.Errorf("placed %d orders without a price", len(ex.placed))
	}
}

func TestTickSkipsIncompletePositionData(t *testing.T) {
	pos := longPosition()
	pos.EntryPrice = 0
	ex := &fakeExchange{positions: []domain.Position{pos}}
	tr := NewTracker()
	m := newTickMonitor(domain.TriggerStopLoss, ex, &fakePricer{marks: map[string]float64{"BTCUSDT": 42000}}, tr, true)

	m.tick(context.Background())

	if tr.Len() != 0 {
		t.Errorf("tracked %d symbols, want incomplete data skipped", tr.Len())
	}
}

func TestTickObservesPeakWithAutoCloseOff(t *testing.T) {
	pos := longPosition()
	ex := &fakeExchange{positions: []domain.Position{pos}}
	tr := NewTracker()
	pricer := &fakePricer{marks: map[string]float64{"BTCUSDT": 51000}}
	m := newTickMonitor(domain.TriggerTrailingStop, ex, pricer, tr, false)

	// +2% price at 10x = +20% leveraged.
	m.tick(context.Background())
	st, ok := tr.Get("BTCUSDT")
	if !ok {
		t.Fatal("symbol not tracked")
	}
	if st.PeakPnLPercent != 20 {
		t.Errorf("peak = %f, want 20", st.PeakPnLPercent)
	}

	// Drawdown through the armed tier's stop: peak holds, nothing trades.
	pricer.marks["BTCUSDT"] = 50100
	m.tick(context.Background())
	st, _ = tr.Get("BTCUSDT")
	if st.PeakPnLPercent != 20 {
		t.Errorf("peak = %f, want held at 20", st.PeakPnLPercent)
	}
	if len(ex.placed) != 0 {
		t.Errorf("placed %d orders with auto-close off", len(ex.placed))
	}
}

func TestStopLossMonitorClosesThroughThreshold(t *testing.T) {
	pos := longPosition() // leverage 10 lands in the mid bracket: -12
	ex := &fakeExchange{
		positions: []domain.Position{pos},
		order:     domain.Order{ID: "ord-sl", Status: domain.OrderStatusFilled, FillPrice: 49000},
	}
	tr := NewTracker()
	pricer := &fakePricer{marks: map[string]float64{"BTCUSDT": 49500}}
	m := newTickMonitor(domain.TriggerStopLoss, ex, pricer, tr, true)

	// -1% at 10x = -10%, above the -12 threshold.
	m.tick(context.Background())
	if len(ex.placed) != 0 {
		t.Fatalf("closed above threshold")
	}

	// -1.3% at 10x = -13%.
	pricer.marks["BTCUSDT"] = 49350
	m.tick(context.Background())
	if len(ex.placed) != 1 {
		t.Fatalf("placed %d orders, want the stop-loss close", len(ex.placed))
	}
	if ex.placed[0].Size != -10 || !ex.placed[0].ReduceOnly {
		t.Errorf("order = %+v, want reduce-only full close", ex.placed[0])
	}
}

func TestTrailingStopMonitorUsesTrackedPeak(t *testing.T) {
	pos := longPosition()
	ex := &fakeExchange{
		positions: []domain.Position{pos},
		order:     domain.Order{ID: "ord-ts", Status: domain.OrderStatusFilled, FillPrice: 50300},
	}
	tr := NewTracker()
	pricer := &fakePricer{marks: map[string]float64{"BTCUSDT": 50800}}
	m := newTickMonitor(domain.TriggerTrailingStop, ex, pricer, tr, true)

	// Peak +16% arms level1 (trigger 15, stop 8).
	m.tick(context.Background())
	if len(ex.placed) != 0 {
		t.Fatalf("closed while above the stop")
	}

	// Falls to +6%, through level1's stop at 8.
	pricer.marks["BTCUSDT"] = 50300
	m.tick(context.Background())
	if len(ex.placed) != 1 {
		t.Fatalf("placed %d orders, want the trailing close", len(ex.placed))
	}
}

func TestPartialTakeProfitMonitorClosesStageIncrement(t *testing.T) {
	pos := longPosition()
	ex := &fakeExchange{
		positions: []domain.Position{pos},
		order:     domain.Order{ID: "ord-tp", Status: domain.OrderStatusFilled, FillPrice: 51100},
	}
	tr := NewTracker()
	// +2.2% at 10x = +22%, past stage1's trigger at 20.
	pricer := &fakePricer{marks: map[string]float64{"BTCUSDT": 51100}}
	m := newTickMonitor(domain.TriggerPartialTakeProfit, ex, pricer, tr, true)

	m.tick(context.Background())
	if len(ex.placed) != 1 {
		t.Fatalf("placed %d orders, want stage1's close", len(ex.placed))
	}
	if ex.placed[0].Size != -3 {
		t.Errorf("size = %f, want -3 (30%% of 10)", ex.placed[0].Size)
	}
	st, _ := tr.Get("BTCUSDT")
	if st.PartialClosedPct != 30 {
		t.Errorf("partial = %f, want 30", st.PartialClosedPct)
	}

	// Same PnL on the next tick: stage1 already satisfied, nothing fires.
	pos.Size = 7
	ex.positions = []domain.Position{pos}
	m.tick(context.Background())
	if len(ex.placed) != 1 {
		t.Errorf("placed %d orders, stage must fire at most once", len(ex.placed))
	}
}

func TestTickSweepsDepartedSymbols(t *testing.T) {
	pos := longPosition()
	ex := &fakeExchange{positions: []domain.Position{pos}}
	tr := NewTracker()
	pricer := &fakePricer{marks: map[string]float64{"BTCUSDT": 50000}}
	m := newTickMonitor(domain.TriggerStopLoss, ex, pricer, tr, false)

	m.tick(context.Background())
	if tr.Len() != 1 {
		t.Fatalf("tracked %d, want 1", tr.Len())
	}

	ex.positions = nil
	m.tick(context.Background())
	if tr.Len() != 0 {
		t.Errorf("tracked %d after the position left, want 0", tr.Len())
	}
}
