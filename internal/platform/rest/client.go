// Package rest is the signed HTTP gateway to the futures venue. It implements
// domain.Exchange.
package rest

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tkarev/futguard/internal/domain"
)

// Client is the REST client for the futures exchange API.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  []byte
	httpClient *http.Client
}

var _ domain.Exchange = (*Client)(nil)

// NewClient creates a client. baseURL is the API root without a trailing
// slash.
func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetTicker returns the current price snapshot for a symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	path := "/v1/ticker?symbol=" + url.QueryEscape(symbol)

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("rest: get ticker %s: %w", symbol, err)
	}

	var resp tickerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Ticker{}, fmt.Errorf("rest: decode ticker: %w", err)
	}
	return domain.Ticker{
		Symbol:      resp.Symbol,
		Last:        resp.LastPrice,
		Mark:        resp.MarkPrice,
		FundingRate: resp.FundingRate,
		Time:        time.UnixMilli(resp.Timestamp),
	}, nil
}

// GetPositions returns all open positions on the account.
func (c *Client) GetPositions(ctx context.Context) ([]domain.Position, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, "/v1/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("rest: get positions: %w", err)
	}

	var resp struct {
		Positions []positionResponse `json:"positions"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("rest: decode positions: %w", err)
	}

	out := make([]domain.Position, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		if p.Size == 0 {
			continue
		}
		out = append(out, domain.Position{
			Symbol:     p.Symbol,
			Size:       p.Size,
			EntryPrice: p.EntryPrice,
			Leverage:   p.Leverage,
			Margin:     p.Margin,
			OpenedAt:   time.UnixMilli(p.OpenedAt),
			UpdatedAt:  time.UnixMilli(p.UpdatedAt),
		})
	}
	return out, nil
}

// PlaceOrder submits a market order. Size carries direction in its sign.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	if req.Size == 0 {
		return domain.Order{}, fmt.Errorf("rest: zero size order: %w", domain.ErrInvalidOrder)
	}

	side := "buy"
	if req.Size < 0 {
		side = "sell"
	}
	wire := orderRequest{
		Symbol:     req.Symbol,
		Side:       side,
		Quantity:   strconv.FormatFloat(math.Abs(req.Size), 'f', -1, 64),
		Leverage:   req.Leverage,
		ReduceOnly: req.ReduceOnly,
		OrderType:  "market",
	}

	body, err := c.doSignedRequest(ctx, http.MethodPost, "/v1/orders", wire)
	if err != nil {
		return domain.Order{}, fmt.Errorf("rest: place order %s: %w", req.Symbol, err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("rest: decode order response: %w", err)
	}
	return toOrder(resp), nil
}

// GetOrder fetches an order by ID. Returns domain.ErrNotFound for unknown
// IDs.
func (c *Client) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	path := "/v1/orders/" + url.PathEscape(id)

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("rest: get order %s: %w", id, err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("rest: decode order: %w", err)
	}
	return toOrder(resp), nil
}

func toOrder(resp orderResponse) domain.Order {
	size := resp.Quantity
	if resp.Side == "sell" {
		size = -size
	}
	return domain.Order{
		ID:        resp.OrderID,
		Symbol:    resp.Symbol,
		Size:      size,
		FillPrice: resp.AvgPrice,
		FilledQty: resp.FilledQty,
		Fee:       resp.Fee,
		Status:    toStatus(resp.Status),
		CreatedAt: time.UnixMilli(resp.CreatedAt),
	}
}

func toStatus(s string) domain.OrderStatus {
	switch s {
	case "filled":
		return domain.OrderStatusFilled
	case "canceled", "cancelled":
		return domain.OrderStatusCanceled
	case "rejected", "failed", "expired":
		return domain.OrderStatusFailed
	default:
		return domain.OrderStatusOpen
	}
}

// doSignedRequest builds, signs, sends, and reads a request against the API.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var (
		bodyReader io.Reader
		bodyBytes  []byte
	)
	if reqBody != nil {
		var err error
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.signRequest(req, method, path, bodyBytes)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// signRequest adds HMAC-SHA256 authentication headers. The signed message is
// timestamp + method + path + body.
func (c *Client) signRequest(req *http.Request, method, path string, body []byte) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	mac := hmac.New(sha256.New, c.apiSecret)
	mac.Write([]byte(ts))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write(body)

	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("X-API-SIGNATURE", hex.EncodeToString(mac.Sum(nil)))
	req.Header.Set("X-API-TIMESTAMP", ts)
}

// checkStatus maps non-2xx responses to errors, preserving sentinel matching
// for not-found.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s (%s): %w", apiErr.Message, apiErr.Code, domain.ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("unauthorized: %s (%s)", apiErr.Message, apiErr.Code)
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited: %s (%s)", apiErr.Message, apiErr.Code)
	case http.StatusBadRequest:
		return fmt.Errorf("bad request: %s (%s): %w", apiErr.Message, apiErr.Code, domain.ErrInvalidOrder)
	default:
		return fmt.Errorf("HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}
