package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tkarev/futguard/internal/config"
	"github.com/tkarev/futguard/internal/domain"
	"github.com/tkarev/futguard/internal/executor"
	"github.com/tkarev/futguard/internal/feed"
	"github.com/tkarev/futguard/internal/ledger"
	"github.com/tkarev/futguard/internal/monitor"
	"github.com/tkarev/futguard/internal/platform/rest"
	"github.com/tkarev/futguard/internal/risk"
)

// PaperMode runs the monitors against the in-process margin ledger. Orders
// fill synchronously at the cached mark adjusted for slippage; no real
// capital moves.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode",
		slog.Float64("initial_balance", a.cfg.Ledger.InitialBalance))

	g, ctx := errgroup.WithContext(ctx)

	// In paper mode the venue never quotes; marks come from the stream (or
	// a live ticker endpoint when one is configured).
	var tickerSource domain.TickerSource
	if a.cfg.Exchange.BaseURL != "" {
		tickerSource = rest.NewClient(a.cfg.Exchange.BaseURL, a.cfg.Exchange.APIKey, a.cfg.Exchange.APISecret)
	}
	pricer := feed.NewCachedPricer(deps.PriceCache, tickerSource, a.cfg.Monitor.MaxStaleness.Duration)

	book := ledger.New(ledger.Config{
		InitialBalance:      a.cfg.Ledger.InitialBalance,
		BufferRatio:         a.cfg.Ledger.BufferRatio,
		ContractMultipliers: a.cfg.Ledger.ContractMultipliers,
	})
	paper := ledger.NewPaperExchange(book, pricer.Mark, ledger.PaperConfig{
		FeeRate:         a.cfg.Ledger.FeeRate,
		SlippageRate:    a.cfg.Ledger.SlippageRate,
		DefaultLeverage: a.cfg.Ledger.DefaultLeverage,
	})

	a.startFeed(ctx, g, deps)
	a.startMonitors(ctx, g, deps, paper, pricer, true, book.Multiplier)
	a.startArchiver(ctx, g, deps)
	g.Go(func() error {
		return a.logEquity(ctx, deps, book)
	})

	return g.Wait()
}

// logEquity periodically marks the paper book to market so the paper run
// leaves an equity trail in the logs.
func (a *App) logEquity(ctx context.Context, deps *Dependencies, book *ledger.Ledger) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			marks, err := deps.PriceCache.GetMarks(ctx, a.cfg.Exchange.Symbols)
			if err != nil {
				a.logger.WarnContext(ctx, "equity snapshot failed",
					slog.String("error", err.Error()))
				continue
			}
			a.logger.InfoContext(ctx, "paper equity",
				slog.Float64("balance", book.Balance()),
				slog.Float64("equity", book.Equity(marks)),
				slog.Int("open_positions", len(book.Positions())))
		}
	}
}

// LiveMode runs the monitors against the real venue with auto-close enabled.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode")

	g, ctx := errgroup.WithContext(ctx)

	exchange := rest.NewClient(a.cfg.Exchange.BaseURL, a.cfg.Exchange.APIKey, a.cfg.Exchange.APISecret)
	pricer := feed.NewCachedPricer(deps.PriceCache, exchange, a.cfg.Monitor.MaxStaleness.Duration)

	a.startFeed(ctx, g, deps)
	a.startMonitors(ctx, g, deps, exchange, pricer, true, nil)
	a.startArchiver(ctx, g, deps)

	// Live fills sometimes resolve their price late; the reconciler patches
	// the provisional records.
	rec := executor.NewReconciler(deps.TradeStore, exchange, a.cfg.Monitor.ReconcileInterval.Duration, a.logger)
	g.Go(func() error {
		return rec.Run(ctx)
	})

	return g.Wait()
}

// MonitorMode observes the venue without ever placing orders: risk state is
// tracked and logged, triggers are evaluated, but execution stays off.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode (observe only)")

	g, ctx := errgroup.WithContext(ctx)

	exchange := rest.NewClient(a.cfg.Exchange.BaseURL, a.cfg.Exchange.APIKey, a.cfg.Exchange.APISecret)
	pricer := feed.NewCachedPricer(deps.PriceCache, exchange, a.cfg.Monitor.MaxStaleness.Duration)

	a.startFeed(ctx, g, deps)
	a.startMonitors(ctx, g, deps, exchange, pricer, false, nil)

	return g.Wait()
}

// startFeed adds the websocket mark price stream when one is configured.
// Without it the pricer falls back to per-symbol ticker queries.
func (a *App) startFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if a.cfg.Exchange.WsURL == "" {
		a.logger.InfoContext(ctx, "no ws_url configured, marks come from ticker polling")
		return
	}
	wsFeed := feed.NewMarkPriceFeed(a.cfg.Exchange.WsURL, a.cfg.Exchange.Symbols, deps.PriceCache, a.logger)
	g.Go(func() error {
		defer wsFeed.Close()
		return wsFeed.Run(ctx)
	})
}

// startMonitors builds the shared tracker and closer, restores persisted risk
// state, and launches one goroutine per enabled monitor family.
func (a *App) startMonitors(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	exchange domain.Exchange,
	pricer monitor.Pricer,
	autoClose bool,
	mult func(string) float64,
) {
	tracker := monitor.NewTracker()
	a.restoreRiskState(ctx, deps, tracker)

	closer := monitor.NewCloser(
		monitor.CloserConfig{
			PollAttempts: a.cfg.Monitor.OrderPollAttempts,
			PollBackoff:  a.cfg.Monitor.OrderPollBackoff.Duration,
			LockTTL:      a.cfg.Monitor.LockTTL.Duration,
			MaxStaleness: a.cfg.Monitor.MaxStaleness.Duration,
		},
		exchange,
		deps.TradeStore,
		deps.DecisionStore,
		deps.PositionStore,
		deps.LockManager,
		tracker,
		deps.Notifier,
		mult,
		a.logger,
	)

	mcfg := monitor.Config{
		Interval:      a.cfg.Monitor.Interval.Duration,
		MaxConcurrent: a.cfg.Monitor.MaxConcurrent,
		AutoClose:     autoClose,
	}
	profile := riskProfile(a.cfg.Risk)

	if a.cfg.Monitor.StopLossEnabled {
		m := monitor.NewStopLossMonitor(mcfg, profile, exchange, pricer, tracker, closer, a.logger)
		g.Go(func() error { return m.Run(ctx) })
	}
	if a.cfg.Monitor.TrailingStopEnabled {
		m := monitor.NewTrailingStopMonitor(mcfg, profile, exchange, pricer, tracker, closer, a.logger)
		g.Go(func() error { return m.Run(ctx) })
	}
	if a.cfg.Monitor.PartialProfitEnabled {
		m := monitor.NewPartialTakeProfitMonitor(mcfg, profile, exchange, pricer, tracker, closer, a.logger)
		g.Go(func() error { return m.Run(ctx) })
	}
}

// restoreRiskState reloads persisted position snapshots so peaks and staged
// close progress survive restarts.
func (a *App) restoreRiskState(ctx context.Context, deps *Dependencies, tracker *monitor.Tracker) {
	snaps, err := deps.PositionStore.ListOpen(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "risk state restore failed, starting fresh",
			slog.String("error", err.Error()))
		return
	}
	now := time.Now()
	for _, p := range snaps {
		tracker.Restore(monitor.State{
			Symbol:           p.Symbol,
			PeakPnLPercent:   p.PeakPnLPercent,
			PartialClosedPct: p.PartialClosePct,
			OriginalQty:      p.OriginalQty,
			FirstSeen:        p.OpenedAt,
			LastPricedAt:     now,
		})
	}
	if len(snaps) > 0 {
		a.logger.InfoContext(ctx, "risk state restored", slog.Int("positions", len(snaps)))
	}
}

func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	g.Go(func() error {
		return deps.Archiver.Run(ctx)
	})
}

// riskProfile converts the validated configuration into the rule set's
// profile.
func riskProfile(r config.Risk) risk.Profile {
	return risk.Profile{
		LeverageMin:  r.LeverageMin,
		LeverageMax:  r.LeverageMax,
		StopLossLow:  r.StopLoss.Low,
		StopLossMid:  r.StopLoss.Mid,
		StopLossHigh: r.StopLoss.High,
		Tiers: [3]risk.Tier{
			{Trigger: r.TrailingLevel1.Trigger, StopAt: r.TrailingLevel1.StopAt},
			{Trigger: r.TrailingLevel2.Trigger, StopAt: r.TrailingLevel2.StopAt},
			{Trigger: r.TrailingLevel3.Trigger, StopAt: r.TrailingLevel3.StopAt},
		},
		Stages: [3]risk.Stage{
			{Trigger: r.PartialStage1.Trigger, ClosePercent: r.PartialStage1.ClosePercent},
			{Trigger: r.PartialStage2.Trigger, ClosePercent: r.PartialStage2.ClosePercent},
			{Trigger: r.PartialStage3.Trigger, ClosePercent: r.PartialStage3.ClosePercent},
		},
	}
}
