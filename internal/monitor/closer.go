package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/tkarev/futguard/internal/domain"
)

// Alerter delivers out-of-band notifications about positions stuck past
// their risk boundary. The returned bool reports whether the alert actually
// reached the channels; a filtered-out event is not an error but must not
// count as delivered.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) (bool, error)
}

// CloserConfig holds the execution knobs for triggered closes.
type CloserConfig struct {
	// PollAttempts and PollBackoff shape the fill confirmation loop. The
	// backoff doubles per attempt starting from PollBackoff.
	PollAttempts int
	PollBackoff  time.Duration

	// LockTTL bounds how long a per-symbol close lock may be held if the
	// process dies mid-close.
	LockTTL time.Duration

	// MaxStaleness is how long a position may sit in a triggered state
	// with failing closes before an alert goes out.
	MaxStaleness time.Duration
}

// Closer executes a single triggered close end to end: it serialises on a
// per-symbol lock, submits a reduce-only order, confirms the fill, persists
// the trade and decision records, and updates the shared risk state. Failures
// leave the risk state untouched so the same trigger re-fires next tick.
type Closer struct {
	cfg       CloserConfig
	exchange  domain.Exchange
	trades    domain.TradeStore
	decisions domain.DecisionStore
	positions domain.PositionStore
	locks     domain.LockManager
	tracker   *Tracker
	alerter   Alerter
	mult      func(symbol string) float64
	logger    *slog.Logger
	now       func() time.Time
}

// NewCloser wires a Closer. positions and alerter may be nil; mult may be nil
// when every contract has multiplier 1.
func NewCloser(cfg CloserConfig, exchange domain.Exchange, trades domain.TradeStore, decisions domain.DecisionStore, positions domain.PositionStore, locks domain.LockManager, tracker *Tracker, alerter Alerter, mult func(string) float64, logger *slog.Logger) *Closer {
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 5
	}
	if cfg.PollBackoff <= 0 {
		cfg.PollBackoff = time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if mult == nil {
		mult = func(string) float64 { return 1 }
	}
	return &Closer{
		cfg:       cfg,
		exchange:  exchange,
		trades:    trades,
		decisions: decisions,
		positions: positions,
		locks:     locks,
		tracker:   tracker,
		alerter:   alerter,
		mult:      mult,
		logger:    logger.With("component", "closer"),
		now:       time.Now,
	}
}

// closeQty converts a close percentage into a contract quantity: floor of the
// proportional size, at least one contract, the whole remaining position at
// 100% cumulative.
func closeQty(pos domain.Position, dec Decision) float64 {
	remaining := pos.Qty()
	if dec.TotalClosedPercent >= 100 {
		return remaining
	}
	qty := math.Floor(remaining * dec.ClosePercent / 100)
	if qty < 1 {
		qty = 1
	}
	if qty > remaining {
		qty = remaining
	}
	return qty
}

// Execute runs one close. Returning nil means the close is confirmed and
// recorded; any error means nothing about the risk state changed and the
// caller should expect a retry on the next tick.
func (c *Closer) Execute(ctx context.Context, pos domain.Position, dec Decision, mark float64) error {
	unlock, err := c.locks.Acquire(ctx, "close:"+pos.Symbol, c.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			c.logger.Debug("close already in flight", "symbol", pos.Symbol, "kind", string(dec.Kind))
			return nil
		}
		return fmt.Errorf("closer: acquire lock: %w", err)
	}
	defer unlock()

	qty := closeQty(pos, dec)
	req := domain.OrderRequest{
		Symbol:     pos.Symbol,
		Size:       -pos.Sign() * qty,
		Leverage:   pos.Leverage,
		ReduceOnly: true,
	}

	order, err := c.exchange.PlaceOrder(ctx, req)
	if err != nil {
		c.noteFailure(ctx, pos, dec)
		return fmt.Errorf("closer: %s %s: %w", dec.Kind, pos.Symbol, errors.Join(domain.ErrOrderSubmission, err))
	}

	fillPrice, fee, status, err := c.awaitFill(ctx, order, mark)
	if err != nil {
		c.noteFailure(ctx, pos, dec)
		return fmt.Errorf("closer: confirm fill %s: %w", order.ID, err)
	}

	now := c.now()
	pnl := (fillPrice - pos.EntryPrice) * pos.Sign() * qty * c.mult(pos.Symbol)

	trade := domain.TradeRecord{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		Symbol:    pos.Symbol,
		Side:      pos.Side(),
		Type:      domain.TradeTypeClose,
		Price:     fillPrice,
		Quantity:  qty,
		Leverage:  pos.Leverage,
		PnL:       pnl,
		Fee:       fee,
		Timestamp: now,
		Status:    status,
	}
	if err := c.trades.Insert(ctx, trade); err != nil {
		c.logger.Error("trade record insert failed", "order_id", order.ID, "error", err)
	}

	record := domain.DecisionRecord{
		ID:          uuid.NewString(),
		Timestamp:   now,
		Trigger:     dec.Kind,
		Symbol:      pos.Symbol,
		PnLPercent:  dec.PnLPercent,
		Threshold:   dec.Threshold,
		Level:       dec.Level,
		Description: dec.Description,
	}
	if err := c.decisions.Insert(ctx, record); err != nil {
		c.logger.Error("decision record insert failed", "symbol", pos.Symbol, "error", err)
	}

	fullClose := dec.TotalClosedPercent >= 100 || qty >= pos.Qty()
	if fullClose {
		c.tracker.Remove(pos.Symbol)
		if c.positions != nil {
			if err := c.positions.Delete(ctx, pos.Symbol); err != nil {
				c.logger.Error("position snapshot delete failed", "symbol", pos.Symbol, "error", err)
			}
		}
	} else {
		c.tracker.RecordPartialClose(pos.Symbol, dec.TotalClosedPercent)
		if c.positions != nil {
			snap := pos
			snap.Size -= pos.Sign() * qty
			snap.PartialClosePct = dec.TotalClosedPercent
			snap.UpdatedAt = now
			if err := c.positions.Upsert(ctx, snap); err != nil {
				c.logger.Error("position snapshot upsert failed", "symbol", pos.Symbol, "error", err)
			}
		}
	}

	c.logger.Info("position closed",
		"symbol", pos.Symbol,
		"kind", string(dec.Kind),
		"level", dec.Level,
		"qty", qty,
		"fill_price", fillPrice,
		"pnl", pnl,
		"full_close", fullClose,
		"status", string(status))
	return nil
}

// awaitFill confirms the order filled and resolves its fill price and fee.
// The poll backoff escalates per attempt. A confirmed fill with no price
// reported falls back to the mark price observed at trigger time and flags
// the trade for later reconciliation against the exchange's trade history.
func (c *Closer) awaitFill(ctx context.Context, order domain.Order, mark float64) (float64, float64, domain.TradeStatus, error) {
	if order.Status == domain.OrderStatusFilled && order.FillPrice > 0 {
		return order.FillPrice, order.Fee, domain.TradeStatusFilled, nil
	}

	filled := order.Status == domain.OrderStatusFilled
	fee := order.Fee
	backoff := c.cfg.PollBackoff
	for attempt := 0; attempt < c.cfg.PollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return 0, 0, "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2

		got, err := c.exchange.GetOrder(ctx, order.ID)
		if err != nil {
			c.logger.Warn("order status poll failed", "order_id", order.ID, "attempt", attempt+1, "error", err)
			continue
		}
		switch got.Status {
		case domain.OrderStatusFilled:
			filled = true
			fee = got.Fee
			if got.FillPrice > 0 {
				return got.FillPrice, got.Fee, domain.TradeStatusFilled, nil
			}
		case domain.OrderStatusCanceled, domain.OrderStatusFailed:
			return 0, 0, "", fmt.Errorf("order %s ended %s: %w", order.ID, got.Status, domain.ErrOrderSubmission)
		}
	}

	if filled {
		if mark <= 0 {
			return 0, 0, "", fmt.Errorf("order %s filled with no queryable price and no mark: %w", order.ID, domain.ErrFillPriceUnresolved)
		}
		c.logger.Warn("fill price unresolved, recording mark price", "order_id", order.ID, "mark", mark)
		return mark, fee, domain.TradeStatusReconcile, nil
	}
	return 0, 0, "", fmt.Errorf("order %s not confirmed after %d polls: %w", order.ID, c.cfg.PollAttempts, domain.ErrOrderSubmission)
}

// noteFailure records a failed close attempt and escalates once the position
// has been stuck past its boundary longer than the staleness budget.
func (c *Closer) noteFailure(ctx context.Context, pos domain.Position, dec Decision) {
	st := c.tracker.RecordFailure(pos.Symbol, c.now())
	if c.alerter == nil || c.cfg.MaxStaleness <= 0 || st.StaleAlerted {
		return
	}
	if st.FirstFailureAt.IsZero() || c.now().Sub(st.FirstFailureAt) < c.cfg.MaxStaleness {
		return
	}
	msg := fmt.Sprintf("%s on %s keeps failing to close (%d attempts since %s): %s",
		dec.Kind, pos.Symbol, st.ConsecutiveFailures,
		st.FirstFailureAt.Format(time.RFC3339), dec.Description)
	delivered, err := c.alerter.Notify(ctx, "stale_position", "position stuck past risk boundary", msg)
	if err != nil {
		c.logger.Error("staleness alert failed", "symbol", pos.Symbol, "error", err)
		return
	}
	if delivered {
		c.tracker.MarkStaleAlerted(pos.Symbol)
	}
}
