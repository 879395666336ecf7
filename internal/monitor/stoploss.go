package monitor

import (
	"fmt"
	"log/slog"

	"github.com/tkarev/futguard/internal/domain"
	"github.com/tkarev/futguard/internal/risk"
)

// NewStopLossMonitor builds the stop-loss family: full close when leveraged
// PnL% falls to or below the leverage-bracketed threshold.
func NewStopLossMonitor(cfg Config, profile risk.Profile, exchange domain.Exchange, pricer Pricer, tracker *Tracker, closer *Closer, logger *slog.Logger) *Monitor {
	return newMonitor(domain.TriggerStopLoss, evalStopLoss, cfg, profile, exchange, pricer, tracker, closer, logger)
}

func evalStopLoss(pos domain.Position, pnlPct float64, _ State, p risk.Profile) (Decision, bool) {
	d := risk.CheckStopLoss(pnlPct, pos.Leverage, p)
	if !d.Triggered {
		return Decision{}, false
	}
	return Decision{
		Kind:               domain.TriggerStopLoss,
		ClosePercent:       100,
		TotalClosedPercent: 100,
		PnLPercent:         pnlPct,
		Threshold:          d.Threshold,
		Description: fmt.Sprintf("stop loss at %dx: pnl %.2f%% breached %.2f%%",
			pos.Leverage, pnlPct, d.Threshold),
	}, true
}
