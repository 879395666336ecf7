package monitor

import (
	"fmt"
	"log/slog"

	"github.com/tkarev/futguard/internal/domain"
	"github.com/tkarev/futguard/internal/risk"
)

// NewTrailingStopMonitor builds the trailing-stop family: full close when
// PnL% retraces from its peak through the stop level of the highest armed
// tier.
func NewTrailingStopMonitor(cfg Config, profile risk.Profile, exchange domain.Exchange, pricer Pricer, tracker *Tracker, closer *Closer, logger *slog.Logger) *Monitor {
	return newMonitor(domain.TriggerTrailingStop, evalTrailingStop, cfg, profile, exchange, pricer, tracker, closer, logger)
}

func evalTrailingStop(_ domain.Position, pnlPct float64, st State, p risk.Profile) (Decision, bool) {
	d := risk.CheckTrailingStop(st.PeakPnLPercent, pnlPct, p)
	if !d.ShouldClose {
		return Decision{}, false
	}
	return Decision{
		Kind:               domain.TriggerTrailingStop,
		Level:              d.Level,
		ClosePercent:       100,
		TotalClosedPercent: 100,
		PnLPercent:         pnlPct,
		Threshold:          d.StopAt,
		Description: fmt.Sprintf("trailing stop %s: peak %.2f%% armed at %.2f%%, pnl fell to %.2f%% through %.2f%%",
			d.Level, st.PeakPnLPercent, d.Trigger, pnlPct, d.StopAt),
	}, true
}
