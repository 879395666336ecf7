// Package executor holds the background jobs that settle trade records
// against the exchange after the fact.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tkarev/futguard/internal/domain"
)

// Reconciler replaces provisional fill prices. A close whose fill price could
// not be resolved during order polling is recorded at the mark price and
// flagged; this job periodically re-queries the exchange and rewrites the
// record once the real fill price is known.
type Reconciler struct {
	trades   domain.TradeStore
	exchange domain.Exchange
	interval time.Duration
	logger   *slog.Logger
}

func NewReconciler(trades domain.TradeStore, exchange domain.Exchange, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reconciler{
		trades:   trades,
		exchange: exchange,
		interval: interval,
		logger:   logger.With("component", "reconciler"),
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("reconciler started", "interval", r.interval.String())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.Error("reconcile sweep failed", "error", err)
			}
		}
	}
}

// Sweep resolves every flagged trade it can. A trade whose order still
// reports no fill price stays flagged for the next sweep.
func (r *Reconciler) Sweep(ctx context.Context) error {
	pending, err := r.trades.ListUnreconciled(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	r.logger.Info("reconciling trades", "count", len(pending))

	for _, trade := range pending {
		order, err := r.exchange.GetOrder(ctx, trade.OrderID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				r.logger.Warn("order gone from exchange, keeping mark price record", "order_id", trade.OrderID)
				continue
			}
			r.logger.Warn("order lookup failed", "order_id", trade.OrderID, "error", err)
			continue
		}
		if order.Status != domain.OrderStatusFilled || order.FillPrice <= 0 {
			continue
		}
		if err := r.trades.Reconcile(ctx, trade.OrderID, order.FillPrice); err != nil {
			r.logger.Error("trade reconcile failed", "order_id", trade.OrderID, "error", err)
			continue
		}
		r.logger.Info("trade reconciled",
			"order_id", trade.OrderID,
			"symbol", trade.Symbol,
			"recorded_price", trade.Price,
			"fill_price", order.FillPrice)
	}
	return nil
}
