// Package ledger implements the margin ledger: a wallet balance and the map
// of open leveraged positions, with all mutation funnelled through ApplyFill.
// The ledger is the ground truth for the paper trading mode and the reference
// model the risk monitors are tested against.
package ledger

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tkarev/futguard/internal/domain"
)

// Config holds the ledger parameters.
type Config struct {
	InitialBalance float64
	// BufferRatio is the maintenance buffer: reserved margin is
	// margin * (1 + BufferRatio).
	BufferRatio float64
	// ContractMultipliers maps symbol to contract size; unlisted symbols
	// default to 1.
	ContractMultipliers map[string]float64
}

// FillResult reports the outcome of one applied fill.
type FillResult struct {
	// Position is the surviving position after the fill, nil when the fill
	// closed the position entirely (or when the re-open half of a flip
	// failed its margin check).
	Position *domain.Position
	// RealizedPnL is the PnL locked in by the reducing portion of the fill,
	// net of fee. Zero for pure opens and adds.
	RealizedPnL float64
	// Fee is the fee charged for the fill.
	Fee float64
	// Closed reports the absolute quantity that was closed by this fill.
	Closed float64
}

// Ledger owns the wallet balance and open positions for one account. All
// methods are safe for concurrent use; every mutation goes through ApplyFill.
type Ledger struct {
	mu        sync.Mutex
	balance   float64
	positions map[string]*domain.Position

	bufferRatio float64
	multipliers map[string]float64

	now func() time.Time
}

// New creates a Ledger with the given starting balance and parameters.
func New(cfg Config) *Ledger {
	mults := make(map[string]float64, len(cfg.ContractMultipliers))
	for sym, m := range cfg.ContractMultipliers {
		mults[sym] = m
	}
	return &Ledger{
		balance:     cfg.InitialBalance,
		positions:   make(map[string]*domain.Position),
		bufferRatio: cfg.BufferRatio,
		multipliers: mults,
		now:         time.Now,
	}
}

// Multiplier returns the contract size multiplier for a symbol.
func (l *Ledger) Multiplier(symbol string) float64 {
	if m, ok := l.multipliers[symbol]; ok {
		return m
	}
	return 1
}

// Balance returns the free collateral.
func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Position returns a copy of the open position for the symbol, if any.
func (l *Ledger) Position(symbol string) (domain.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// Positions returns copies of all open positions.
func (l *Ledger) Positions() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	return out
}

// UnrealizedPnL computes the mark-to-market PnL of a position:
// (mark - entry) * sign(size) * |size| * multiplier. No side effects.
func UnrealizedPnL(p domain.Position, mark, multiplier float64) float64 {
	return (mark - p.EntryPrice) * p.Sign() * p.Qty() * multiplier
}

// Equity returns balance + reserved margin + unrealized PnL across all open
// positions at the given mark prices. Positions without a mark contribute
// only their reserved margin.
func (l *Ledger) Equity(marks map[string]float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	eq := l.balance
	for sym, p := range l.positions {
		eq += p.ReservedMargin
		if mark, ok := marks[sym]; ok {
			eq += UnrealizedPnL(*p, mark, l.Multiplier(sym))
		}
	}
	return eq
}

// ApplyFill applies one fill to the ledger. fillSize is signed (positive
// long, negative short) and must be nonzero and finite; fillPrice must be
// positive; leverage must be >= 1.
//
// Opening and adding fills debit reserved margin plus fee and fail with
// domain.ErrInsufficientMargin when the balance cannot cover them, leaving
// the ledger untouched. Opposite-direction fills close up to the existing
// size, releasing reserved margin pro-rata before crediting realized PnL; a
// remainder flips into a fresh position with a new margin allocation. If the
// flip's margin check fails the already-realized close still stands and only
// the re-open errors.
func (l *Ledger) ApplyFill(symbol string, fillSize, fillPrice float64, leverage int, fee float64) (FillResult, error) {
	if fillSize == 0 || math.IsNaN(fillSize) || math.IsInf(fillSize, 0) {
		return FillResult{}, fmt.Errorf("ledger: fill size %v is invalid", fillSize)
	}
	if fillPrice <= 0 || math.IsNaN(fillPrice) || math.IsInf(fillPrice, 0) {
		return FillResult{}, fmt.Errorf("ledger: fill price %v is invalid", fillPrice)
	}
	if leverage < 1 {
		return FillResult{}, fmt.Errorf("ledger: leverage %d must be >= 1", leverage)
	}
	if fee < 0 {
		return FillResult{}, fmt.Errorf("ledger: fee %v must be >= 0", fee)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, exists := l.positions[symbol]
	if !exists || pos.Size == 0 {
		return l.open(symbol, fillSize, fillPrice, leverage, fee)
	}

	sameDirection := (pos.Size > 0) == (fillSize > 0)
	if sameDirection {
		return l.add(pos, fillSize, fillPrice, fee)
	}
	return l.reduce(pos, fillSize, fillPrice, fee)
}

// open creates a new position. Caller holds l.mu.
func (l *Ledger) open(symbol string, fillSize, fillPrice float64, leverage int, fee float64) (FillResult, error) {
	mult := l.Multiplier(symbol)
	notional := math.Abs(fillSize) * fillPrice * mult
	margin := notional / float64(leverage)
	reserved := margin * (1 + l.bufferRatio)

	if l.balance < reserved+fee {
		return FillResult{}, fmt.Errorf("ledger: open %s needs %.8f, balance %.8f: %w",
			symbol, reserved+fee, l.balance, domain.ErrInsufficientMargin)
	}

	now := l.now()
	l.balance -= reserved + fee
	p := &domain.Position{
		Symbol:         symbol,
		Size:           fillSize,
		EntryPrice:     fillPrice,
		Leverage:       leverage,
		Margin:         margin,
		ReservedMargin: reserved,
		OpenedAt:       now,
		UpdatedAt:      now,
		RealizedPnL:    -fee,
		OriginalQty:    math.Abs(fillSize),
	}
	l.positions[symbol] = p

	cp := *p
	return FillResult{Position: &cp, Fee: fee}, nil
}

// add increases an existing position in its own direction, recomputing the
// size-weighted average entry and debiting only the reserved-margin delta
// plus fee. Caller holds l.mu.
func (l *Ledger) add(pos *domain.Position, fillSize, fillPrice, fee float64) (FillResult, error) {
	mult := l.Multiplier(pos.Symbol)

	oldQty := pos.Qty()
	addQty := math.Abs(fillSize)
	newQty := oldQty + addQty
	newEntry := (pos.EntryPrice*oldQty + fillPrice*addQty) / newQty

	newNotional := newQty * newEntry * mult
	newMargin := newNotional / float64(pos.Leverage)
	newReserved := newMargin * (1 + l.bufferRatio)
	delta := newReserved - pos.ReservedMargin

	if l.balance < delta+fee {
		return FillResult{}, fmt.Errorf("ledger: add %s needs %.8f, balance %.8f: %w",
			pos.Symbol, delta+fee, l.balance, domain.ErrInsufficientMargin)
	}

	l.balance -= delta + fee
	pos.Size += fillSize
	pos.EntryPrice = newEntry
	pos.Margin = newMargin
	pos.ReservedMargin = newReserved
	pos.RealizedPnL -= fee
	pos.OriginalQty = newQty
	pos.UpdatedAt = l.now()

	cp := *pos
	return FillResult{Position: &cp, Fee: fee}, nil
}

// reduce applies an opposite-direction fill: close up to the existing size,
// then flip any remainder into a fresh position. Caller holds l.mu.
//
// The ordering is load-bearing: reserved margin is released back to the
// balance before the realized PnL is credited, so a failed flip cannot
// double-count either leg.
func (l *Ledger) reduce(pos *domain.Position, fillSize, fillPrice, fee float64) (FillResult, error) {
	mult := l.Multiplier(pos.Symbol)
	existingQty := pos.Qty()
	closingQty := math.Min(existingQty, math.Abs(fillSize))

	realized := (fillPrice-pos.EntryPrice)*pos.Sign()*closingQty*mult - fee

	released := pos.ReservedMargin * (closingQty / existingQty)
	if released > pos.ReservedMargin+1e-9 {
		panic(fmt.Sprintf("ledger: releasing %.8f of %.8f reserved margin for %s: corrupted position",
			released, pos.ReservedMargin, pos.Symbol))
	}
	l.balance += released
	l.balance += realized
	if l.balance < 0 {
		// A close can push the balance negative only when the loss exceeds
		// the margin that was held against it; the paper model clamps at
		// zero the way a liquidation would.
		l.balance = 0
	}

	res := FillResult{RealizedPnL: realized, Fee: fee, Closed: closingQty}

	remainingQty := existingQty - closingQty
	if remainingQty > 0 {
		frac := remainingQty / existingQty
		pos.Size = pos.Sign() * remainingQty
		pos.Margin *= frac
		pos.ReservedMargin -= released
		pos.RealizedPnL += realized
		pos.UpdatedAt = l.now()
		cp := *pos
		res.Position = &cp
		return res, nil
	}

	// Full close; delete the record rather than keeping a zero-size row.
	delete(l.positions, pos.Symbol)

	flipQty := math.Abs(fillSize) - closingQty
	if flipQty == 0 {
		return res, nil
	}

	// Flip: open the remainder in the opposite direction at the fill price
	// with a fresh margin allocation. The close above already stands; only
	// this re-open can fail. The flip pays no second fee: the fill's fee was
	// charged against the closing leg.
	flipSize := flipQty
	if fillSize < 0 {
		flipSize = -flipQty
	}
	openRes, err := l.open(pos.Symbol, flipSize, fillPrice, pos.Leverage, 0)
	if err != nil {
		return res, err
	}
	res.Position = openRes.Position
	return res, nil
}
