package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tkarev/futguard/internal/domain"
)

// CachedPricer resolves mark prices from the cache first and falls back to a
// direct exchange query when the cached mark is missing or older than MaxAge.
// Fallback results are written back to the cache.
type CachedPricer struct {
	cache  domain.PriceCache
	source domain.TickerSource
	maxAge time.Duration
	now    func() time.Time
}

// NewCachedPricer builds a pricer. maxAge of zero accepts any cached mark.
func NewCachedPricer(cache domain.PriceCache, source domain.TickerSource, maxAge time.Duration) *CachedPricer {
	return &CachedPricer{
		cache:  cache,
		source: source,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Mark returns the current mark price for a symbol. It wraps
// domain.ErrPriceUnavailable when neither the cache nor the exchange can
// produce one.
func (p *CachedPricer) Mark(ctx context.Context, symbol string) (float64, error) {
	if p.cache != nil {
		// Cache misses and cache trouble both fall through to the
		// exchange.
		mark, ts, err := p.cache.GetMark(ctx, symbol)
		if err == nil && mark > 0 {
			if p.maxAge <= 0 || p.now().Sub(ts) <= p.maxAge {
				return mark, nil
			}
		}
	}

	if p.source == nil {
		return 0, fmt.Errorf("feed: no mark for %s: %w", symbol, domain.ErrPriceUnavailable)
	}
	ticker, err := p.source.GetTicker(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("feed: ticker %s: %w", symbol, errors.Join(domain.ErrPriceUnavailable, err))
	}
	mark := ticker.Mark
	if mark <= 0 {
		mark = ticker.Last
	}
	if mark <= 0 {
		return 0, fmt.Errorf("feed: zero mark for %s: %w", symbol, domain.ErrPriceUnavailable)
	}

	if p.cache != nil {
		_ = p.cache.SetMark(ctx, symbol, mark, p.now())
	}
	return mark, nil
}
