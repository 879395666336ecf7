package domain

import "time"

// TradeType distinguishes fills that open exposure from fills that reduce it.
type TradeType string

const (
	TradeTypeOpen  TradeType = "open"
	TradeTypeClose TradeType = "close"
)

// TradeStatus tracks the post-fill bookkeeping state of a trade record.
type TradeStatus string

const (
	// TradeStatusFilled means the fill price in the record is authoritative.
	TradeStatusFilled TradeStatus = "filled"
	// TradeStatusReconcile means the price is a mark-price placeholder and a
	// reconciliation pass must rewrite it once the true fill price is known.
	TradeStatusReconcile TradeStatus = "reconcile"
)

// TradeRecord is an append-only log entry for one executed fill. Records are
// never mutated after write except by the reconciliation pass, which corrects
// a placeholder price once the exchange reports the real one.
type TradeRecord struct {
	ID        string
	OrderID   string
	Symbol    string
	Side      Side
	Type      TradeType
	Price     float64
	Quantity  float64
	Leverage  int
	PnL       float64
	Fee       float64
	Timestamp time.Time
	Status    TradeStatus
}
