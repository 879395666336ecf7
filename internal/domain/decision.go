package domain

import "time"

// TriggerKind identifies which risk rule family produced a decision.
type TriggerKind string

const (
	TriggerStopLoss          TriggerKind = "stop_loss"
	TriggerTrailingStop      TriggerKind = "trailing_stop"
	TriggerPartialTakeProfit TriggerKind = "partial_take_profit"
)

// DecisionRecord is an append-only audit entry written whenever a risk rule
// fires (or a close attempt fails). It captures the inputs that drove the
// decision so the behaviour of the monitors can be audited after the fact.
type DecisionRecord struct {
	ID          string
	Timestamp   time.Time
	Trigger     TriggerKind
	Symbol      string
	PnLPercent  float64
	Threshold   float64
	Level       string
	Description string
}
