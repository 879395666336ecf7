// Package feed streams mark prices from the exchange into the price cache
// and serves them to the monitors.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tkarev/futguard/internal/domain"
)

// markPriceMsg is one mark price tick on the wire.
type markPriceMsg struct {
	Symbol    string  `json:"symbol"`
	MarkPrice float64 `json:"markPrice,string"`
	Timestamp int64   `json:"ts"`
}

type subscribeMsg struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// MarkPriceFeed subscribes to the exchange's mark price stream for the given
// symbols and writes each tick into the price cache. It reconnects with
// backoff on disconnect.
type MarkPriceFeed struct {
	wsURL     string
	symbols   []string
	cache     domain.PriceCache
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewMarkPriceFeed creates a feed for the given symbols.
func NewMarkPriceFeed(wsURL string, symbols []string, cache domain.PriceCache, logger *slog.Logger) *MarkPriceFeed {
	return &MarkPriceFeed{
		wsURL:   wsURL,
		symbols: symbols,
		cache:   cache,
		logger:  logger.With(slog.String("component", "markprice_feed")),
		done:    make(chan struct{}),
	}
}

// Run connects and streams until ctx is cancelled, reconnecting with
// escalating backoff capped at 30 seconds.
func (f *MarkPriceFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		return nil
	}

	backoff := 2 * time.Second
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("mark price stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (f *MarkPriceFeed) runConnection(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.wsURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	args := make([]string, 0, len(f.symbols))
	for _, sym := range f.symbols {
		args = append(args, "markPrice:"+sym)
	}
	if err := conn.WriteJSON(subscribeMsg{Op: "subscribe", Args: args}); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("mark price stream subscribed", slog.Int("symbols", len(f.symbols)))

	// Unblock the read loop when the context ends.
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		}
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed: read: %w", err)
		}

		var msg markPriceMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Warn("unparseable mark price frame", slog.String("error", err.Error()))
			continue
		}
		if msg.Symbol == "" || msg.MarkPrice <= 0 {
			continue
		}

		ts := time.UnixMilli(msg.Timestamp)
		if msg.Timestamp == 0 {
			ts = time.Now()
		}
		if err := f.cache.SetMark(ctx, msg.Symbol, msg.MarkPrice, ts); err != nil {
			f.logger.Warn("mark cache write failed",
				slog.String("symbol", msg.Symbol),
				slog.String("error", err.Error()))
		}
	}
}

// Close stops the feed.
func (f *MarkPriceFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
