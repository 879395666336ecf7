package rest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tkarev/futguard/internal/domain"
)

func TestGetTickerDecodesStringNumerics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/ticker" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol = %q", got)
		}
		io.WriteString(w, `{"symbol":"BTCUSDT","lastPrice":"50123.5","markPrice":"50120.1","fundingRate":"0.0001","ts":1756300000000}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret")
	ticker, err := c.GetTicker(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("GetTicker: %v", err)
	}
	if ticker.Mark != 50120.1 {
		t.Errorf("mark = %f, want 50120.1", ticker.Mark)
	}
	if ticker.Last != 50123.5 {
		t.Errorf("last = %f, want 50123.5", ticker.Last)
	}
	if ticker.FundingRate != 0.0001 {
		t.Errorf("funding = %f", ticker.FundingRate)
	}
}

func TestRequestSigning(t *testing.T) {
	const secret = "topsecret"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-KEY"); got != "key-1" {
			t.Errorf("api key = %q", got)
		}
		ts := r.Header.Get("X-API-TIMESTAMP")
		if ts == "" {
			t.Error("timestamp header missing")
		}
		body, _ := io.ReadAll(r.Body)

		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(ts))
		mac.Write([]byte(r.Method))
		mac.Write([]byte(r.URL.RequestURI()))
		mac.Write(body)
		want := hex.EncodeToString(mac.Sum(nil))
		if got := r.Header.Get("X-API-SIGNATURE"); got != want {
			t.Errorf("signature = %q, want %q", got, want)
		}

		io.WriteString(w, `{"orderId":"o1","symbol":"BTCUSDT","side":"sell","quantity":"1","filledQty":"1","avgPrice":"50000","status":"filled","createdAt":1756300000000}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-1", secret)
	if _, err := c.PlaceOrder(context.Background(), domain.OrderRequest{Symbol: "BTCUSDT", Size: -1}); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
}

func TestPlaceOrderWireFormat(t *testing.T) {
	var got orderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/orders" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		io.WriteString(w, `{"orderId":"o2","symbol":"ETHUSDT","side":"sell","quantity":"2.5","filledQty":"2.5","avgPrice":"2000.5","fee":"2.0005","status":"filled","createdAt":1756300000000}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "s")
	order, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
		Symbol: "ETHUSDT", Size: -2.5, Leverage: 5, ReduceOnly: true,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	if got.Side != "sell" || got.Quantity != "2.5" || !got.ReduceOnly || got.OrderType != "market" {
		t.Errorf("wire request = %+v", got)
	}
	if got.Leverage != 5 {
		t.Errorf("leverage = %d, want 5", got.Leverage)
	}

	// Sell fills come back with a negative signed size.
	if order.Size != -2.5 {
		t.Errorf("order size = %f, want -2.5", order.Size)
	}
	if order.FillPrice != 2000.5 {
		t.Errorf("fill price = %f", order.FillPrice)
	}
	if order.Fee != 2.0005 {
		t.Errorf("fee = %f, want 2.0005", order.Fee)
	}
}

func TestPlaceOrderZeroSizeRejectedLocally(t *testing.T) {
	c := NewClient("http://unreachable.invalid", "k", "s")
	_, err := c.PlaceOrder(context.Background(), domain.OrderRequest{Symbol: "BTCUSDT"})
	if !errors.Is(err, domain.ErrInvalidOrder) {
		t.Errorf("err = %v, want ErrInvalidOrder", err)
	}
}

func TestGetPositionsSkipsFlatEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"positions":[
			{"symbol":"BTCUSDT","size":"0.5","entryPrice":"50000","leverage":10,"margin":"2500","openedAt":1756300000000,"updatedAt":1756300000000},
			{"symbol":"ETHUSDT","size":"0","entryPrice":"0","leverage":0,"margin":"0","openedAt":0,"updatedAt":0},
			{"symbol":"SOLUSDT","size":"-20","entryPrice":"150","leverage":5,"margin":"600","openedAt":1756300000000,"updatedAt":1756300000000}
		]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "s")
	positions, err := c.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("positions = %d, want flat entry skipped", len(positions))
	}
	if positions[0].Symbol != "BTCUSDT" || positions[1].Symbol != "SOLUSDT" {
		t.Errorf("positions = %+v", positions)
	}
	if positions[1].Size != -20 {
		t.Errorf("short size = %f, want -20", positions[1].Size)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		wire string
		want domain.OrderStatus
	}{
		{"filled", domain.OrderStatusFilled},
		{"canceled", domain.OrderStatusCanceled},
		{"cancelled", domain.OrderStatusCanceled},
		{"rejected", domain.OrderStatusFailed},
		{"failed", domain.OrderStatusFailed},
		{"expired", domain.OrderStatusFailed},
		{"new", domain.OrderStatusOpen},
		{"partially_filled", domain.OrderStatusOpen},
	}
	for _, tt := range tests {
		if got := toStatus(tt.wire); got != tt.want {
			t.Errorf("toStatus(%q) = %s, want %s", tt.wire, got, tt.want)
		}
	}
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		sentinel error
	}{
		{"not found", http.StatusNotFound, domain.ErrNotFound},
		{"bad request", http.StatusBadRequest, domain.ErrInvalidOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				io.WriteString(w, `{"code":"E100","message":"nope"}`)
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "k", "s")
			_, err := c.GetOrder(context.Background(), "missing")
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("err = %v, want %v", err, tt.sentinel)
			}
		})
	}
}
