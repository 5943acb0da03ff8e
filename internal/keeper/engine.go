// Package keeper runs the reconciliation loop of the market-making bot: each
// tick it compares the open orders on the venue against the configured band
// policy at the current target price, cancels orders that violate the policy,
// and tops up bands whose open inventory fell below their minimum.
package keeper

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"mm-keeper/internal/band"
	"mm-keeper/internal/jsonl"
	"mm-keeper/internal/micros"
	"mm-keeper/internal/state"
	"mm-keeper/internal/venue"
)

// Oracle supplies the reference price. A transient error skips the tick;
// no reconciliation decision is made on a missing price.
type Oracle interface {
	TargetPriceMicros(ctx context.Context) (uint64, error)
}

// Venue is the trading connector the engine reconciles through. Each call is
// issued at most once per tick per target order.
type Venue interface {
	OpenOrders(ctx context.Context) ([]venue.Order, error)
	PlaceOrder(ctx context.Context, o venue.NewOrder) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	Balance(ctx context.Context, asset string) (uint64, error)
}

// Registry entries for orders that stopped appearing in the venue listing
// (filled or cancelled) are pruned after this grace period.
const registryPruneAfter = time.Minute

type Options struct {
	BaseAsset  string
	QuoteAsset string

	// LotMicros is the venue's amount granularity; computed amounts are
	// truncated to it before submission.
	LotMicros uint64

	// EnableTrading gates live submission. A dry run computes and logs the
	// full cancel/place decision without touching the venue.
	EnableTrading bool

	// AdoptOpenOrders registers orders already open on the first tick as
	// ours, instead of treating them as orphans of an unknown owner.
	AdoptOpenOrders bool

	RegistryPath string
	EventLog     *jsonl.Writer
}

// Engine owns no state between ticks except the placed-order registry.
type Engine struct {
	venue  Venue
	oracle Oracle
	opts   Options

	buys  *band.Set
	sells *band.Set

	// mu guards the registry, which concurrent submissions update.
	mu       sync.Mutex
	registry state.Registry
	adopted  bool

	startedAt time.Time
}

func New(v Venue, o Oracle, buys, sells *band.Set, opts Options) (*Engine, error) {
	if v == nil || o == nil {
		return nil, fmt.Errorf("keeper: venue and oracle required")
	}
	if buys == nil || sells == nil {
		return nil, fmt.Errorf("keeper: band sets required")
	}
	if opts.BaseAsset == "" || opts.QuoteAsset == "" {
		return nil, fmt.Errorf("keeper: base and quote assets required")
	}

	registry, found, err := state.LoadRegistry(opts.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("keeper: %w", err)
	}
	if found {
		log.Printf("[cfg] order registry: %s (%d orders)", opts.RegistryPath, registry.Len())
	}

	return &Engine{
		venue:     v,
		oracle:    o,
		opts:      opts,
		buys:      buys,
		sells:     sells,
		registry:  registry,
		startedAt: time.Now(),
	}, nil
}

// ReplaceBands swaps in a reloaded band policy. The caller must only invoke
// it from the tick goroutine.
func (e *Engine) ReplaceBands(buys, sells *band.Set) {
	e.buys = buys
	e.sells = sells
}

// Tick runs one reconciliation pass. It returns an error only for fatal
// conditions (an ambiguous band policy); transient failures are logged and
// the tick is skipped, to be retried on the next trigger.
func (e *Engine) Tick(ctx context.Context) error {
	if err := e.buys.Validate(); err != nil {
		return fmt.Errorf("buy bands: %w", err)
	}
	if err := e.sells.Validate(); err != nil {
		return fmt.Errorf("sell bands: %w", err)
	}

	target, err := e.oracle.TargetPriceMicros(ctx)
	if err != nil {
		log.Printf("[warn] tick skipped: target price: %v", err)
		e.logEvent(keeperEvent{Event: "skip", Reason: "no_target_price", Err: err.Error()})
		return nil
	}

	open, err := e.venue.OpenOrders(ctx)
	if err != nil {
		log.Printf("[warn] tick skipped: open orders: %v", err)
		e.logEvent(keeperEvent{Event: "skip", Reason: "no_open_orders", Err: err.Error()})
		return nil
	}

	ours := e.claimOrders(open)
	buyOrders, sellOrders := splitBySide(ours)

	e.logEvent(keeperEvent{
		Event:       "tick",
		TargetPrice: micros.Format(target),
		OpenBuys:    len(buyOrders),
		OpenSells:   len(sellOrders),
	})

	cancels := append(
		e.buys.CancellableOrders(toBandOrders(buyOrders), target),
		e.sells.CancellableOrders(toBandOrders(sellOrders), target)...,
	)
	e.submitCancels(ctx, cancels)

	places := append(
		e.topUpSide(ctx, e.buys, toBandOrders(buyOrders), target),
		e.topUpSide(ctx, e.sells, toBandOrders(sellOrders), target)...,
	)
	e.submitPlaces(ctx, places)

	e.saveRegistry()
	return nil
}

// claimOrders filters the venue listing down to orders this keeper owns and
// keeps the registry in sync with the book.
func (e *Engine) claimOrders(open []venue.Order) []venue.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	adopt := e.opts.AdoptOpenOrders && !e.adopted
	e.adopted = true

	nowMs := time.Now().UnixMilli()
	listed := make(map[string]struct{}, len(open))
	ours := make([]venue.Order, 0, len(open))
	for _, o := range open {
		listed[o.ID] = struct{}{}
		if e.registry.Has(o.ID) {
			ours = append(ours, o)
			continue
		}
		if adopt {
			log.Printf("[cfg] adopting open order %s (%s %s @ %s)",
				o.ID, o.Side, micros.Format(o.RemainingMicros), micros.Format(o.PriceMicros))
			e.registry.Add(o.ID, nowMs)
			ours = append(ours, o)
		}
	}

	// Orders gone from the listing were filled or cancelled; keep them around
	// briefly in case the venue listing lags a fresh placement.
	for id, placedAtMs := range e.registry.Orders {
		if _, ok := listed[id]; ok {
			continue
		}
		if nowMs-placedAtMs > registryPruneAfter.Milliseconds() {
			e.registry.Remove(id)
		}
	}
	return ours
}

func splitBySide(orders []venue.Order) (buys, sells []venue.Order) {
	for _, o := range orders {
		if o.Side == venue.SideBuy {
			buys = append(buys, o)
		} else {
			sells = append(sells, o)
		}
	}
	return buys, sells
}

func toBandOrders(orders []venue.Order) []band.Order {
	out := make([]band.Order, len(orders))
	for i, o := range orders {
		out[i] = band.Order{ID: o.ID, PriceMicros: o.PriceMicros, RemainingMicros: o.RemainingMicros}
	}
	return out
}

// submitCancels dispatches all cancels concurrently and joins. A failed
// cancel is logged and retried naturally on the next tick.
func (e *Engine) submitCancels(ctx context.Context, cancels []band.Order) {
	if len(cancels) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, o := range cancels {
		if !e.opts.EnableTrading {
			log.Printf("[dry] cancel %s (remaining=%s price=%s)",
				o.ID, micros.Format(o.RemainingMicros), micros.Format(o.PriceMicros))
			e.logEvent(keeperEvent{Event: "cancel", OrderID: o.ID, Dry: true})
			continue
		}

		wg.Add(1)
		go func(o band.Order) {
			defer wg.Done()
			if err := e.venue.CancelOrder(ctx, o.ID); err != nil {
				log.Printf("[warn] cancel %s: %v", o.ID, err)
				e.logEvent(keeperEvent{Event: "cancel", OrderID: o.ID, Err: err.Error()})
				return
			}
			e.mu.Lock()
			e.registry.Remove(o.ID)
			e.mu.Unlock()
			e.logEvent(keeperEvent{Event: "cancel", OrderID: o.ID, Ok: true})
		}(o)
	}
	wg.Wait()
}

// topUpSide computes the placements needed to bring each under-provisioned
// band of one side up to its average amount, spending from a single available
// balance that is debited in-memory so later bands cannot double-spend it.
func (e *Engine) topUpSide(ctx context.Context, set *band.Set, orders []band.Order, target uint64) []venue.NewOrder {
	side := venue.SideBuy
	asset := e.opts.QuoteAsset
	if set.Side() == band.SideSell {
		side = venue.SideSell
		asset = e.opts.BaseAsset
	}

	avail, err := e.venue.Balance(ctx, asset)
	if err != nil {
		log.Printf("[warn] top-up %s skipped: balance %s: %v", side, asset, err)
		e.logEvent(keeperEvent{Event: "skip", Side: string(side), Reason: "no_balance", Err: err.Error()})
		return nil
	}

	var places []venue.NewOrder
	for _, b := range set.Bands() {
		var inBand []band.Order
		for _, o := range orders {
			if b.Includes(o, target) {
				inBand = append(inBand, o)
			}
		}
		total := band.TotalRemainingMicros(inBand)
		if total >= b.MinAmountMicros {
			continue
		}

		size := b.AvgAmountMicros - total
		if size > avail {
			size = avail
		}
		if size == 0 || size < b.DustCutoffMicros {
			e.logEvent(keeperEvent{Event: "skip", Side: string(side), Reason: "dust", Amount: micros.Format(size)})
			continue
		}

		size = micros.RoundDown(size, e.opts.LotMicros)
		if size == 0 {
			e.logEvent(keeperEvent{Event: "skip", Side: string(side), Reason: "rounded_to_zero"})
			continue
		}

		price := b.AvgPriceMicros(target)
		if price == 0 {
			e.logEvent(keeperEvent{Event: "skip", Side: string(side), Reason: "zero_price"})
			continue
		}

		// The counter leg is the other asset's amount at the band price; a
		// zero counter after rounding is a no-op, not an error.
		var counter uint64
		if side == venue.SideBuy {
			counter = micros.MulDiv(size, micros.Scale, price)
		} else {
			counter = micros.MulDiv(size, price, micros.Scale)
		}
		counter = micros.RoundDown(counter, e.opts.LotMicros)
		if counter == 0 {
			e.logEvent(keeperEvent{Event: "skip", Side: string(side), Reason: "zero_counter"})
			continue
		}

		avail -= size
		places = append(places, venue.NewOrder{
			Side:          side,
			PriceMicros:   price,
			AmountMicros:  size,
			CounterMicros: counter,
		})
	}
	return places
}

// submitPlaces dispatches all placements concurrently and joins. Failures are
// scoped to their order; the band re-tops-up next tick.
func (e *Engine) submitPlaces(ctx context.Context, places []venue.NewOrder) {
	if len(places) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, p := range places {
		if !e.opts.EnableTrading {
			log.Printf("[dry] place %s amount=%s price=%s counter=%s",
				p.Side, micros.Format(p.AmountMicros), micros.Format(p.PriceMicros), micros.Format(p.CounterMicros))
			e.logEvent(keeperEvent{
				Event: "place", Side: string(p.Side), Dry: true,
				Price: micros.Format(p.PriceMicros), Amount: micros.Format(p.AmountMicros),
			})
			continue
		}

		wg.Add(1)
		go func(p venue.NewOrder) {
			defer wg.Done()
			id, err := e.venue.PlaceOrder(ctx, p)
			if err != nil {
				log.Printf("[warn] place %s amount=%s price=%s: %v",
					p.Side, micros.Format(p.AmountMicros), micros.Format(p.PriceMicros), err)
				e.logEvent(keeperEvent{Event: "place", Side: string(p.Side), Err: err.Error()})
				return
			}
			e.mu.Lock()
			e.registry.Add(id, time.Now().UnixMilli())
			e.mu.Unlock()
			log.Printf("[info] placed %s %s amount=%s price=%s",
				p.Side, id, micros.Format(p.AmountMicros), micros.Format(p.PriceMicros))
			e.logEvent(keeperEvent{
				Event: "place", OrderID: id, Side: string(p.Side), Ok: true,
				Price: micros.Format(p.PriceMicros), Amount: micros.Format(p.AmountMicros),
			})
		}(p)
	}
	wg.Wait()
}

func (e *Engine) saveRegistry() {
	e.mu.Lock()
	snapshot := state.Registry{Orders: make(map[string]int64, len(e.registry.Orders))}
	for id, at := range e.registry.Orders {
		snapshot.Orders[id] = at
	}
	e.mu.Unlock()

	if err := state.SaveRegistry(e.opts.RegistryPath, snapshot); err != nil {
		log.Printf("[warn] save registry: %v", err)
	}
}
