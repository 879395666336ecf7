package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tkarev/futguard/internal/domain"
)

type memCache struct {
	marks map[string]float64
	times map[string]time.Time
	sets  int
	err   error
}

func newMemCache() *memCache {
	return &memCache{marks: make(map[string]float64), times: make(map[string]time.Time)}
}

func (m *memCache) SetMark(_ context.Context, symbol string, mark float64, ts time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.marks[symbol] = mark
	m.times[symbol] = ts
	m.sets++
	return nil
}

func (m *memCache) GetMark(_ context.Context, symbol string) (float64, time.Time, error) {
	if m.err != nil {
		return 0, time.Time{}, m.err
	}
	mark, ok := m.marks[symbol]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return mark, m.times[symbol], nil
}

func (m *memCache) GetMarks(_ context.Context, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, s := range symbols {
		if mark, ok := m.marks[s]; ok {
			out[s] = mark
		}
	}
	return out, nil
}

type stubTicker struct {
	ticker domain.Ticker
	err    error
	calls  int
}

func (s *stubTicker) GetTicker(_ context.Context, symbol string) (domain.Ticker, error) {
	s.calls++
	if s.err != nil {
		return domain.Ticker{}, s.err
	}
	t := s.ticker
	t.Symbol = symbol
	return t, nil
}

func TestMarkServesFreshCacheEntry(t *testing.T) {
	now := time.Now()
	cache := newMemCache()
	cache.marks["BTCUSDT"] = 50000
	cache.times["BTCUSDT"] = now.Add(-5 * time.Second)
	source := &stubTicker{ticker: domain.Ticker{Mark: 99999}}

	p := NewCachedPricer(cache, source, 30*time.Second)
	p.now = func() time.Time { return now }

	mark, err := p.Mark(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if mark != 50000 {
		t.Errorf("mark = %f, want cached 50000", mark)
	}
	if source.calls != 0 {
		t.Errorf("source called %d times, want 0", source.calls)
	}
}

func TestMarkFallsBackWhenCacheStale(t *testing.T) {
	now := time.Now()
	cache := newMemCache()
	cache.marks["BTCUSDT"] = 48000
	cache.times["BTCUSDT"] = now.Add(-2 * time.Minute)
	source := &stubTicker{ticker: domain.Ticker{Mark: 50100}}

	p := NewCachedPricer(cache, source, 30*time.Second)
	p.now = func() time.Time { return now }

	mark, err := p.Mark(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if mark != 50100 {
		t.Errorf("mark = %f, want exchange 50100", mark)
	}
	// The fallback result backfills the cache.
	if cache.marks["BTCUSDT"] != 50100 {
		t.Errorf("cache = %f, want backfilled 50100", cache.marks["BTCUSDT"])
	}
}

func TestMarkZeroMaxAgeAcceptsAnyCachedMark(t *testing.T) {
	now := time.Now()
	cache := newMemCache()
	cache.marks["BTCUSDT"] = 47000
	cache.times["BTCUSDT"] = now.Add(-24 * time.Hour)

	p := NewCachedPricer(cache, &stubTicker{ticker: domain.Ticker{Mark: 1}}, 0)
	p.now = func() time.Time { return now }

	mark, err := p.Mark(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if mark != 47000 {
		t.Errorf("mark = %f, want 47000 regardless of age", mark)
	}
}

func TestMarkUsesLastWhenMarkMissing(t *testing.T) {
	source := &stubTicker{ticker: domain.Ticker{Last: 2050}}
	p := NewCachedPricer(newMemCache(), source, time.Minute)

	mark, err := p.Mark(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if mark != 2050 {
		t.Errorf("mark = %f, want last 2050", mark)
	}
}

func TestMarkWrapsPriceUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		cache  domain.PriceCache
		source domain.TickerSource
	}{
		{"no source", newMemCache(), nil},
		{"source errors", newMemCache(), &stubTicker{err: errors.New("http 503")}},
		{"source returns zero", newMemCache(), &stubTicker{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewCachedPricer(tt.cache, tt.source, time.Minute)
			_, err := p.Mark(context.Background(), "BTCUSDT")
			if !errors.Is(err, domain.ErrPriceUnavailable) {
				t.Errorf("err = %v, want ErrPriceUnavailable", err)
			}
		})
	}
}

func TestMarkCacheErrorFallsThroughToSource(t *testing.T) {
	cache := newMemCache()
	cache.err = errors.New("redis down")
	source := &stubTicker{ticker: domain.Ticker{Mark: 50200}}

	p := NewCachedPricer(cache, source, time.Minute)
	mark, err := p.Mark(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if mark != 50200 {
		t.Errorf("mark = %f, want 50200", mark)
	}
}
