package monitor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tkarev/futguard/internal/domain"
	"github.com/tkarev/futguard/internal/risk"
)

// Pricer resolves the current mark price for a symbol. Implementations may
// serve from a cache and fall back to the exchange.
type Pricer interface {
	Mark(ctx context.Context, symbol string) (float64, error)
}

// Decision is a concrete close instruction produced by a family evaluator.
type Decision struct {
	Kind  domain.TriggerKind
	Level string

	// ClosePercent is the incremental share of the original size to close
	// now; 100 means close the whole remaining position.
	ClosePercent float64

	// TotalClosedPercent is the cumulative closed share after this close
	// succeeds. 100 marks a full close.
	TotalClosedPercent float64

	PnLPercent  float64
	Threshold   float64
	Description string
}

type evalFunc func(pos domain.Position, pnlPct float64, st State, p risk.Profile) (Decision, bool)

// Config holds the knobs shared by all monitor families.
type Config struct {
	Interval      time.Duration
	MaxConcurrent int

	// AutoClose gates execution. When false the monitor still observes
	// prices and maintains risk state but never places orders.
	AutoClose bool
}

// Monitor runs one evaluation family (stop loss, trailing stop, or partial
// take profit) on a fixed interval. Families share the Tracker and the Closer
// but tick independently.
type Monitor struct {
	kind     domain.TriggerKind
	cfg      Config
	profile  risk.Profile
	exchange domain.Exchange
	pricer   Pricer
	tracker  *Tracker
	closer   *Closer
	eval     evalFunc
	logger   *slog.Logger
	now      func() time.Time
}

func newMonitor(kind domain.TriggerKind, eval evalFunc, cfg Config, profile risk.Profile, exchange domain.Exchange, pricer Pricer, tracker *Tracker, closer *Closer, logger *slog.Logger) *Monitor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	return &Monitor{
		kind:     kind,
		cfg:      cfg,
		profile:  profile,
		exchange: exchange,
		pricer:   pricer,
		tracker:  tracker,
		closer:   closer,
		eval:     eval,
		logger:   logger.With("component", "monitor", "kind", string(kind)),
		now:      time.Now,
	}
}

// Run ticks until the context is cancelled. A tick that fails wholesale (for
// example the position snapshot call errors) is logged and skipped; the next
// tick starts from scratch.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started",
		"interval", m.cfg.Interval.String(),
		"auto_close", m.cfg.AutoClose,
		"max_concurrent", m.cfg.MaxConcurrent)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	positions, err := m.exchange.GetPositions(ctx)
	if err != nil {
		m.logger.Error("fetch positions failed", "error", err)
		return
	}

	open := make(map[string]bool, len(positions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.MaxConcurrent)

	for _, pos := range positions {
		if pos.Size == 0 {
			continue
		}
		open[pos.Symbol] = true
		pos := pos
		g.Go(func() error {
			m.evaluate(gctx, pos)
			return nil
		})
	}
	_ = g.Wait()

	for _, sym := range m.tracker.Sweep(open) {
		m.logger.Info("position gone, risk state dropped", "symbol", sym)
	}
}

// evaluate runs one symbol through the family's rule. Missing or zero-valued
// inputs mean the data is not available yet, so the symbol is skipped for
// this tick rather than scored against a bogus PnL.
func (m *Monitor) evaluate(ctx context.Context, pos domain.Position) {
	mark, err := m.pricer.Mark(ctx, pos.Symbol)
	if err != nil {
		m.logger.Warn("mark price unavailable, skipping", "symbol", pos.Symbol, "error", err)
		return
	}
	if mark == 0 || pos.EntryPrice == 0 || pos.Leverage == 0 {
		m.logger.Warn("incomplete position data, skipping",
			"symbol", pos.Symbol,
			"mark", mark,
			"entry", pos.EntryPrice,
			"leverage", pos.Leverage)
		return
	}

	pnlPct := pos.PnLPercent(mark)
	st := m.tracker.Observe(pos.Symbol, pos.Qty(), pnlPct, m.now())

	if !m.cfg.AutoClose {
		return
	}

	dec, ok := m.eval(pos, pnlPct, st, m.profile)
	if !ok {
		return
	}

	m.logger.Info("trigger fired",
		"symbol", pos.Symbol,
		"kind", string(dec.Kind),
		"level", dec.Level,
		"pnl_pct", pnlPct,
		"threshold", dec.Threshold,
		"close_pct", dec.ClosePercent)

	if err := m.closer.Execute(ctx, pos, dec, mark); err != nil {
		m.logger.Error("close failed, will retry next tick",
			"symbol", pos.Symbol,
			"kind", string(dec.Kind),
			"error", err)
	}
}
