package domain

import (
	"math"
	"time"
)

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Position represents a leveraged futures position for one symbol. Size is a
// signed quantity in contracts: positive for long, negative for short. A
// position with zero size does not exist; the ledger deletes the record
// instead of storing it.
type Position struct {
	Symbol     string
	Size       float64
	EntryPrice float64
	Leverage   int

	// Margin is the collateral allocated to the position; ReservedMargin is
	// margin plus the maintenance buffer and is what was actually debited
	// from the wallet.
	Margin         float64
	ReservedMargin float64

	OpenedAt  time.Time
	UpdatedAt time.Time

	// RealizedPnL accumulates the profit locked in by every reducing fill,
	// net of fees.
	RealizedPnL float64

	// PeakPnLPercent is the high-water mark of the leveraged PnL percentage
	// since the current open. It is non-decreasing for the life of the
	// position and resets only when the position is fully closed and a new
	// one opens.
	PeakPnLPercent float64

	// PartialClosePct is the cumulative percentage of the original size
	// already closed by staged take-profit, in [0, 100].
	PartialClosePct float64

	// OriginalQty is the basis for staged close percentages: the absolute
	// size at open time, rebased to the combined size when a same-direction
	// add grows the position. Partial closes never shrink it.
	OriginalQty float64
}

// Side returns the direction implied by the sign of Size.
func (p Position) Side() Side {
	if p.Size < 0 {
		return SideShort
	}
	return SideLong
}

// Sign returns +1 for long positions and -1 for short positions.
func (p Position) Sign() float64 {
	if p.Size < 0 {
		return -1
	}
	return 1
}

// Qty returns the absolute position size in contracts.
func (p Position) Qty() float64 {
	return math.Abs(p.Size)
}

// PnLPercent returns the leveraged PnL percentage of the position at the
// given mark price: ((mark-entry)/entry * 100 * direction) * leverage.
// It returns 0 when the entry price or leverage is zero.
func (p Position) PnLPercent(mark float64) float64 {
	if p.EntryPrice == 0 || p.Leverage == 0 {
		return 0
	}
	return (mark - p.EntryPrice) / p.EntryPrice * 100 * p.Sign() * float64(p.Leverage)
}
