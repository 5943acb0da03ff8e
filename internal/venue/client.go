// Package venue is the REST connector the keeper trades through. It owns the
// network/parsing details the reconciliation engine must not care about:
// bounded timeouts, decimal-string tolerant payloads, the venue's amount
// granularity, and the fee bid attached to each submission.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"mm-keeper/internal/gasprice"
	"mm-keeper/internal/micros"
)

// Options configure the client beyond the host.
type Options struct {
	// APIKey is sent as-is in an X-API-Key header when set. Request signing
	// is the venue's own SDK's job, not ours.
	APIKey string

	// LotMicros is the venue's amount granularity. Submissions are refused
	// (not silently rounded) when an amount is off-grid; rounding is the
	// caller's decision.
	LotMicros uint64

	Timeout time.Duration

	// Gas computes the fee bid attached to submissions. Optional.
	Gas *gasprice.Strategy
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 12 * time.Second
	}
	return o
}

type Client struct {
	host       string
	httpClient *http.Client
	opts       Options

	// pendingCancels keys order ID to the first cancel attempt, so the fee
	// bid escalates when a cancel is retried on later ticks.
	mu             sync.Mutex
	pendingCancels map[string]time.Time
}

func NewClient(host string, opts Options) (*Client, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, fmt.Errorf("venue host required")
	}
	host = strings.TrimRight(host, "/")
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("venue url parse %q: %w", host, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("venue host must be http(s), got %q", host)
	}

	opts = opts.withDefaults()
	return &Client{
		host:           host,
		httpClient:     &http.Client{Timeout: opts.Timeout},
		opts:           opts,
		pendingCancels: make(map[string]time.Time),
	}, nil
}

// LotMicros reports the venue's amount granularity.
func (c *Client) LotMicros() uint64 { return c.opts.LotMicros }

type orderPayload struct {
	ID        string        `json:"id"`
	Side      string        `json:"side"`
	Price     decimalMicros `json:"price"`
	Remaining decimalMicros `json:"remaining"`
}

type openOrdersResp struct {
	Orders []orderPayload `json:"orders"`
}

// OpenOrders lists the account's open orders.
func (c *Client) OpenOrders(ctx context.Context) ([]Order, error) {
	var resp openOrdersResp
	if err := c.doJSON(ctx, http.MethodGet, "/orders", nil, &resp); err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}

	out := make([]Order, 0, len(resp.Orders))
	for _, p := range resp.Orders {
		side := Side(strings.ToUpper(strings.TrimSpace(p.Side)))
		if side != SideBuy && side != SideSell {
			return nil, fmt.Errorf("order %s: unknown side %q", p.ID, p.Side)
		}
		out = append(out, Order{
			ID:              p.ID,
			Side:            side,
			PriceMicros:     uint64(p.Price),
			RemainingMicros: uint64(p.Remaining),
		})
	}
	return out, nil
}

type placeOrderReq struct {
	Side          string `json:"side"`
	Price         string `json:"price"`
	Amount        string `json:"amount"`
	CounterAmount string `json:"counter_amount"`
	FeeBidGwei    uint64 `json:"fee_bid_gwei,omitempty"`
}

type placeOrderResp struct {
	ID string `json:"id"`
}

// PlaceOrder submits a new order and returns the venue's order ID. Amounts
// must already be truncated to the venue granularity.
func (c *Client) PlaceOrder(ctx context.Context, o NewOrder) (string, error) {
	if o.Side != SideBuy && o.Side != SideSell {
		return "", fmt.Errorf("place order: unknown side %q", o.Side)
	}
	if o.PriceMicros == 0 || o.AmountMicros == 0 || o.CounterMicros == 0 {
		return "", fmt.Errorf("place order: zero price/amount")
	}
	if lot := c.opts.LotMicros; lot != 0 {
		if o.AmountMicros%lot != 0 || o.CounterMicros%lot != 0 {
			return "", fmt.Errorf("place order: amount off venue granularity (lot=%s amount=%s counter=%s)",
				micros.Format(lot), micros.Format(o.AmountMicros), micros.Format(o.CounterMicros))
		}
	}

	req := placeOrderReq{
		Side:          string(o.Side),
		Price:         micros.Format(o.PriceMicros),
		Amount:        micros.Format(o.AmountMicros),
		CounterAmount: micros.Format(o.CounterMicros),
	}
	if c.opts.Gas != nil {
		req.FeeBidGwei = c.opts.Gas.BidGwei(0)
	}

	var resp placeOrderResp
	if err := c.doJSON(ctx, http.MethodPost, "/order", req, &resp); err != nil {
		return "", fmt.Errorf("place order: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("place order: venue returned empty id")
	}
	return resp.ID, nil
}

type cancelOrderResp struct {
	Canceled bool `json:"canceled"`
}

// CancelOrder cancels a single order. Repeated attempts for the same order
// escalate the fee bid from the first attempt's timestamp.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("cancel order: id required")
	}

	var bid uint64
	if c.opts.Gas != nil {
		c.mu.Lock()
		first, ok := c.pendingCancels[orderID]
		if !ok {
			first = time.Now()
			c.pendingCancels[orderID] = first
		}
		c.mu.Unlock()
		bid = c.opts.Gas.BidGwei(time.Since(first))
	}

	path := "/order/" + url.PathEscape(orderID)
	q := url.Values{}
	if bid != 0 {
		q.Set("fee_bid_gwei", fmt.Sprintf("%d", bid))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp cancelOrderResp
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	if !resp.Canceled {
		return fmt.Errorf("cancel order %s: venue refused", orderID)
	}

	c.mu.Lock()
	delete(c.pendingCancels, orderID)
	c.mu.Unlock()
	return nil
}

type balanceResp struct {
	Asset     string        `json:"asset"`
	Available decimalMicros `json:"available"`
}

// Balance returns the available (unlocked) balance of an asset in micros.
func (c *Client) Balance(ctx context.Context, asset string) (uint64, error) {
	asset = strings.TrimSpace(asset)
	if asset == "" {
		return 0, fmt.Errorf("balance: asset required")
	}
	var resp balanceResp
	if err := c.doJSON(ctx, http.MethodGet, "/balance/"+url.PathEscape(asset), nil, &resp); err != nil {
		return 0, fmt.Errorf("balance %s: %w", asset, err)
	}
	return uint64(resp.Available), nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.opts.APIKey != "" {
		req.Header.Set("X-API-Key", c.opts.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}
