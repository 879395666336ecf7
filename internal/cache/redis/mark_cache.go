package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tkarev/futguard/internal/domain"
)

// MarkCache implements domain.PriceCache on Redis hashes. Each symbol's mark
// price lives at key "mark:{symbol}" with fields "mark" and "ts" (Unix
// nanoseconds). Keys expire so a dead feed cannot serve week-old prices as
// fresh.
type MarkCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ domain.PriceCache = (*MarkCache)(nil)

// NewMarkCache creates a MarkCache. ttl bounds how long a mark survives
// without an update; zero disables expiry.
func NewMarkCache(c *Client, ttl time.Duration) *MarkCache {
	return &MarkCache{rdb: c.Underlying(), ttl: ttl}
}

func markKey(symbol string) string {
	return "mark:" + symbol
}

func (mc *MarkCache) SetMark(ctx context.Context, symbol string, mark float64, ts time.Time) error {
	key := markKey(symbol)
	fields := map[string]interface{}{
		"mark": strconv.FormatFloat(mark, 'f', -1, 64),
		"ts":   strconv.FormatInt(ts.UnixNano(), 10),
	}

	pipe := mc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	if mc.ttl > 0 {
		pipe.Expire(ctx, key, mc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set mark %s: %w", symbol, err)
	}
	return nil
}

// GetMark returns domain.ErrNotFound when no fresh mark exists for the
// symbol.
func (mc *MarkCache) GetMark(ctx context.Context, symbol string) (float64, time.Time, error) {
	vals, err := mc.rdb.HGetAll(ctx, markKey(symbol)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get mark %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	mark, err := strconv.ParseFloat(vals["mark"], 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse mark %s: %w", symbol, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse mark ts %s: %w", symbol, err)
	}
	return mark, time.Unix(0, tsNano), nil
}

// GetMarks fetches marks for many symbols in one pipeline. Symbols without a
// cached mark are omitted from the result.
func (mc *MarkCache) GetMarks(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	pipe := mc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(symbols))
	for _, sym := range symbols {
		cmds[sym] = pipe.HGetAll(ctx, markKey(sym))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get marks pipeline: %w", err)
	}

	out := make(map[string]float64, len(symbols))
	for sym, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		mark, err := strconv.ParseFloat(vals["mark"], 64)
		if err != nil {
			continue
		}
		out[sym] = mark
	}
	return out, nil
}
