package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenOrders_ParsesQuotedAndNumericDecimals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" || r.Method != http.MethodGet {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "k123" {
			t.Fatalf("api key header=%q", got)
		}
		_, _ = w.Write([]byte(`{"orders":[
			{"id":"a","side":"buy","price":"97.5","remaining":"4"},
			{"id":"b","side":"SELL","price":103,"remaining":2.25}
		]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, Options{APIKey: "k123"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	orders, err := c.OpenOrders(context.Background())
	if err != nil {
		t.Fatalf("OpenOrders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("len=%d want 2", len(orders))
	}
	if orders[0].Side != SideBuy || orders[0].PriceMicros != 97_500_000 || orders[0].RemainingMicros != 4_000_000 {
		t.Fatalf("order a=%+v", orders[0])
	}
	if orders[1].Side != SideSell || orders[1].PriceMicros != 103_000_000 || orders[1].RemainingMicros != 2_250_000 {
		t.Fatalf("order b=%+v", orders[1])
	}
}

func TestPlaceOrder_RefusesOffGridAmount(t *testing.T) {
	c, err := NewClient("http://venue.local", Options{LotMicros: 10_000})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.PlaceOrder(context.Background(), NewOrder{
		Side:          SideBuy,
		PriceMicros:   97_000_000,
		AmountMicros:  5_005_000, // not a multiple of 0.01
		CounterMicros: 50_000,
	})
	if err == nil {
		t.Fatalf("expected off-grid rejection")
	}
}

func TestPlaceOrder_SubmitsDecimalStrings(t *testing.T) {
	var got placeOrderReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/order" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"id":"ord-9"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, Options{LotMicros: 10_000})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	id, err := c.PlaceOrder(context.Background(), NewOrder{
		Side:          SideBuy,
		PriceMicros:   97_000_000,
		AmountMicros:  5_000_000,
		CounterMicros: 51_540_000,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if id != "ord-9" {
		t.Fatalf("id=%q want ord-9", id)
	}
	if got.Side != "BUY" || got.Price != "97" || got.Amount != "5" || got.CounterAmount != "51.54" {
		t.Fatalf("request=%+v", got)
	}
}

func TestCancelOrder_VenueRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Fatalf("method=%s", r.Method)
		}
		_, _ = w.Write([]byte(`{"canceled":false}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, Options{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.CancelOrder(context.Background(), "ord-1"); err == nil {
		t.Fatalf("expected refusal error")
	}
}

func TestBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/balance/DAI" {
			t.Fatalf("path=%s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"asset":"DAI","available":"123.456789"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, Options{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	got, err := c.Balance(context.Background(), "DAI")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if got != 123_456_789 {
		t.Fatalf("balance=%d want %d", got, 123_456_789)
	}
}

func TestNewClient_RejectsBadHost(t *testing.T) {
	for _, host := range []string{"", "ftp://venue", "   "} {
		if _, err := NewClient(host, Options{}); err == nil {
			t.Fatalf("NewClient(%q) expected error", host)
		}
	}
}
