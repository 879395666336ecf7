package monitor

import (
	"fmt"
	"log/slog"

	"github.com/tkarev/futguard/internal/domain"
	"github.com/tkarev/futguard/internal/risk"
)

// NewPartialTakeProfitMonitor builds the staged take-profit family: close a
// growing share of the original size as PnL% reaches each stage trigger.
func NewPartialTakeProfitMonitor(cfg Config, profile risk.Profile, exchange domain.Exchange, pricer Pricer, tracker *Tracker, closer *Closer, logger *slog.Logger) *Monitor {
	return newMonitor(domain.TriggerPartialTakeProfit, evalPartialTakeProfit, cfg, profile, exchange, pricer, tracker, closer, logger)
}

func evalPartialTakeProfit(_ domain.Position, pnlPct float64, st State, p risk.Profile) (Decision, bool) {
	d := risk.CheckPartialTakeProfit(pnlPct, st.PartialClosedPct, p)
	if !d.ShouldClose {
		return Decision{}, false
	}
	return Decision{
		Kind:               domain.TriggerPartialTakeProfit,
		Level:              d.Stage,
		ClosePercent:       d.ClosePercent,
		TotalClosedPercent: d.TotalClosedPercent,
		PnLPercent:         pnlPct,
		Threshold:          d.Trigger,
		Description: fmt.Sprintf("partial take profit %s: pnl %.2f%% reached %.2f%%, closing %.1f%% (total %.1f%%)",
			d.Stage, pnlPct, d.Trigger, d.ClosePercent, d.TotalClosedPercent),
	}, true
}
