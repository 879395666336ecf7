package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeStore persists the append-only trade log.
type TradeStore interface {
	Insert(ctx context.Context, t TradeRecord) error
	ListBySymbol(ctx context.Context, symbol string, opts ListOpts) ([]TradeRecord, error)

	// ListUnreconciled returns trades whose price is a placeholder awaiting
	// the true fill price.
	ListUnreconciled(ctx context.Context) ([]TradeRecord, error)
	// Reconcile rewrites the price of the trade for the given order and
	// marks it filled. The only permitted mutation of a written trade.
	Reconcile(ctx context.Context, orderID string, price float64) error

	ListBefore(ctx context.Context, before time.Time) ([]TradeRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// DecisionStore persists the append-only risk decision audit log.
type DecisionStore interface {
	Insert(ctx context.Context, d DecisionRecord) error
	ListRecent(ctx context.Context, limit int) ([]DecisionRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]DecisionRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// PositionStore persists snapshots of open positions so a restarted process
// can resume risk tracking without a clean slate.
type PositionStore interface {
	Upsert(ctx context.Context, p Position) error
	Delete(ctx context.Context, symbol string) error
	ListOpen(ctx context.Context) ([]Position, error)
}

// PriceCache provides fast access to the latest mark price per symbol.
type PriceCache interface {
	SetMark(ctx context.Context, symbol string, mark float64, ts time.Time) error
	GetMark(ctx context.Context, symbol string) (float64, time.Time, error)
	GetMarks(ctx context.Context, symbols []string) (map[string]float64, error)
}

// LockManager serializes the evaluate-and-close critical section per symbol.
// Two monitor families must never concurrently submit closes for the same
// symbol.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
