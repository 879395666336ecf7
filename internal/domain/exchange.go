package domain

import (
	"context"
	"time"
)

// Ticker is a price snapshot for one symbol.
type Ticker struct {
	Symbol      string
	Last        float64
	Mark        float64
	FundingRate float64
	Time        time.Time
}

// OrderStatus is the lifecycle state of an exchange order.
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusFailed   OrderStatus = "failed"
)

// OrderRequest describes an order to submit. Size is signed in contracts;
// ReduceOnly orders may only decrease an existing position and never open or
// flip one.
type OrderRequest struct {
	Symbol     string
	Size       float64
	Leverage   int
	ReduceOnly bool
}

// Order is the exchange's view of a submitted order. Fee is the commission
// charged for the filled portion, in quote currency.
type Order struct {
	ID        string
	Symbol    string
	Size      float64
	FillPrice float64
	FilledQty float64
	Fee       float64
	Status    OrderStatus
	CreatedAt time.Time
}

// TickerSource supplies price snapshots. It is the read-only subset of
// Exchange used by components that never submit orders.
type TickerSource interface {
	GetTicker(ctx context.Context, symbol string) (Ticker, error)
}

// Exchange is the boundary to the trading venue. Every method may be slow or
// fail transiently; callers are expected to retry per their own policy and
// must never let a single symbol's failure take down a monitor loop.
type Exchange interface {
	TickerSource
	GetPositions(ctx context.Context) ([]Position, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (Order, error)
	GetOrder(ctx context.Context, id string) (Order, error)
}
