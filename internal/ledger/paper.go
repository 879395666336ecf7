package ledger

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tkarev/futguard/internal/domain"
)

// QuoteFunc supplies the current mark price for a symbol. The paper exchange
// fills orders against it, adjusted for slippage.
type QuoteFunc func(ctx context.Context, symbol string) (float64, error)

// PaperConfig holds the simulation parameters of the paper exchange.
type PaperConfig struct {
	FeeRate      float64
	SlippageRate float64
	// DefaultLeverage is applied to orders that do not specify one.
	DefaultLeverage int
}

// PaperExchange implements domain.Exchange on top of the margin ledger:
// orders fill immediately at the quoted mark adjusted for slippage, fees are
// charged at a flat rate on notional, and fills mutate the ledger. It lets
// the monitors run end to end without a live venue.
type PaperExchange struct {
	ledger *Ledger
	quote  QuoteFunc
	cfg    PaperConfig

	mu     sync.Mutex
	orders map[string]domain.Order
}

// NewPaperExchange creates a paper exchange over the given ledger, quoting
// prices through quote.
func NewPaperExchange(l *Ledger, quote QuoteFunc, cfg PaperConfig) *PaperExchange {
	if cfg.DefaultLeverage < 1 {
		cfg.DefaultLeverage = 1
	}
	return &PaperExchange{
		ledger: l,
		quote:  quote,
		cfg:    cfg,
		orders: make(map[string]domain.Order),
	}
}

// Ledger returns the underlying margin ledger.
func (p *PaperExchange) Ledger() *Ledger {
	return p.ledger
}

// GetTicker quotes the symbol through the configured quote source.
func (p *PaperExchange) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	mark, err := p.quote(ctx, symbol)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("paper: quote %s: %w", symbol, err)
	}
	return domain.Ticker{Symbol: symbol, Last: mark, Mark: mark, Time: time.Now().UTC()}, nil
}

// GetPositions returns the ledger's open positions.
func (p *PaperExchange) GetPositions(_ context.Context) ([]domain.Position, error) {
	return p.ledger.Positions(), nil
}

// PlaceOrder fills the order immediately against the quoted mark price with
// slippage applied against the taker, then applies the fill to the ledger.
// Reduce-only orders are clamped to the open position's size and rejected
// when no position exists.
func (p *PaperExchange) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	if req.Size == 0 {
		return domain.Order{}, fmt.Errorf("paper: zero size: %w", domain.ErrInvalidOrder)
	}

	size := req.Size
	if req.ReduceOnly {
		pos, ok := p.ledger.Position(req.Symbol)
		if !ok {
			return domain.Order{}, fmt.Errorf("paper: reduce-only %s with no open position: %w",
				req.Symbol, domain.ErrInvalidOrder)
		}
		if (pos.Size > 0) == (size > 0) {
			return domain.Order{}, fmt.Errorf("paper: reduce-only %s would increase the position: %w",
				req.Symbol, domain.ErrInvalidOrder)
		}
		if math.Abs(size) > pos.Qty() {
			size = -pos.Sign() * pos.Qty()
		}
	}

	mark, err := p.quote(ctx, req.Symbol)
	if err != nil {
		return domain.Order{}, fmt.Errorf("paper: quote %s: %w", req.Symbol, domain.ErrPriceUnavailable)
	}

	// Slippage always moves the price against the taker: buys fill higher,
	// sells fill lower.
	fillPrice := mark * (1 + p.cfg.SlippageRate)
	if size < 0 {
		fillPrice = mark * (1 - p.cfg.SlippageRate)
	}

	leverage := req.Leverage
	if leverage < 1 {
		if pos, ok := p.ledger.Position(req.Symbol); ok {
			leverage = pos.Leverage
		} else {
			leverage = p.cfg.DefaultLeverage
		}
	}

	notional := math.Abs(size) * fillPrice * p.ledger.Multiplier(req.Symbol)
	fee := notional * p.cfg.FeeRate

	if _, err := p.ledger.ApplyFill(req.Symbol, size, fillPrice, leverage, fee); err != nil {
		return domain.Order{}, fmt.Errorf("paper: fill %s: %w", req.Symbol, err)
	}

	order := domain.Order{
		ID:        uuid.New().String(),
		Symbol:    req.Symbol,
		Size:      size,
		FillPrice: fillPrice,
		FilledQty: math.Abs(size),
		Fee:       fee,
		Status:    domain.OrderStatusFilled,
		CreatedAt: time.Now().UTC(),
	}

	p.mu.Lock()
	p.orders[order.ID] = order
	p.mu.Unlock()

	return order, nil
}

// GetOrder returns a previously placed order.
func (p *PaperExchange) GetOrder(_ context.Context, id string) (domain.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	order, ok := p.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("paper: order %s: %w", id, domain.ErrNotFound)
	}
	return order, nil
}

// Compile-time interface check.
var _ domain.Exchange = (*PaperExchange)(nil)
