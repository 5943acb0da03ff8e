package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mm-keeper/internal/micros"
)

const (
	tickerPingInterval = 5 * time.Second
	tickerBackoffMin   = 500 * time.Millisecond
	tickerBackoffMax   = 15 * time.Second
)

// tickerMessage matches the ticker stream envelope: one price per message for
// the subscribed pair.
type tickerMessage struct {
	Pair  string `json:"pair"`
	Price string `json:"price"`
	TsMs  int64  `json:"ts_ms"`
}

type tickerSubscribe struct {
	Action string `json:"action"`
	Pair   string `json:"pair"`
}

// ErrTickerStale is returned when no price arrived within MaxAge.
var ErrTickerStale = errors.New("ticker price stale")

// Ticker streams the reference price over a WebSocket feed. It keeps only the
// latest observed price plus its arrival time; reads past MaxAge report a
// transient error so the tick is skipped instead of trading on a dead feed.
type Ticker struct {
	url    string
	pair   string
	maxAge time.Duration
	now    func() time.Time

	mu          sync.RWMutex
	priceMicros uint64
	observedAt  time.Time
}

func NewTicker(url, pair string, maxAge time.Duration) (*Ticker, error) {
	if url == "" {
		return nil, fmt.Errorf("oracle: ticker url required")
	}
	if pair == "" {
		return nil, fmt.Errorf("oracle: ticker pair required")
	}
	if maxAge <= 0 {
		maxAge = 30 * time.Second
	}
	return &Ticker{url: url, pair: pair, maxAge: maxAge, now: time.Now}, nil
}

// Start runs the connect/reconnect loop until ctx is done.
func (t *Ticker) Start(ctx context.Context) {
	go func() {
		backoff := tickerBackoffMin
		for {
			if ctx.Err() != nil {
				return
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("[warn] ticker dial: %v", err)
				}
				sleepWithJitter(ctx, backoff)
				backoff = nextBackoff(backoff, tickerBackoffMax)
				continue
			}
			backoff = tickerBackoffMin

			if err := t.runSession(ctx, conn); err != nil && ctx.Err() == nil {
				log.Printf("[warn] ticker session: %v", err)
			}
			_ = conn.Close()

			if ctx.Err() != nil {
				return
			}
			sleepWithJitter(ctx, backoff)
			backoff = nextBackoff(backoff, tickerBackoffMax)
		}
	}()
}

func (t *Ticker) runSession(ctx context.Context, conn *websocket.Conn) error {
	sub, err := json.Marshal(tickerSubscribe{Action: "subscribe", Pair: t.pair})
	if err != nil {
		return fmt.Errorf("ticker subscribe marshal: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return fmt.Errorf("ticker subscribe write: %w", err)
	}

	var writeMu sync.Mutex
	stop := make(chan struct{})
	var stopOnce sync.Once
	stopAll := func() { stopOnce.Do(func() { close(stop) }) }

	go func() {
		defer stopAll()
		tick := time.NewTicker(tickerPingInterval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-tick.C:
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
				werr := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
				writeMu.Unlock()
				if werr != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			stopAll()
			if errors.Is(err, websocket.ErrCloseSent) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ticker read: %w", err)
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		if len(msg) == 0 || string(msg) == "pong" || string(msg) == "ping" {
			continue
		}

		var m tickerMessage
		if err := json.Unmarshal(msg, &m); err != nil {
			log.Printf("[warn] ticker decode: %v", err)
			continue
		}
		if m.Pair != "" && m.Pair != t.pair {
			continue
		}
		t.observe(m)
	}
}

func (t *Ticker) observe(m tickerMessage) {
	price, err := micros.Parse(m.Price)
	if err != nil || price == 0 {
		return
	}
	t.mu.Lock()
	t.priceMicros = price
	t.observedAt = t.now()
	t.mu.Unlock()
}

// TargetPriceMicros returns the latest streamed price, or ErrTickerStale when
// nothing fresh enough has arrived.
func (t *Ticker) TargetPriceMicros(ctx context.Context) (uint64, error) {
	t.mu.RLock()
	price := t.priceMicros
	at := t.observedAt
	t.mu.RUnlock()

	if price == 0 || t.now().Sub(at) > t.maxAge {
		return 0, ErrTickerStale
	}
	return price, nil
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	j := int64(d) / 7
	if j > 0 {
		d = time.Duration(int64(d) + rand.Int64N(2*j+1) - j)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
