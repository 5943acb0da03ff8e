// Package gasprice decides the fee bid for pending venue transactions: a
// background feed tracks the network's "fast" gas level, and a strategy
// escalates the bid the longer a submission goes unconfirmed.
package gasprice

import (
	"context"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Source produces the current fast gas level in gwei.
type Source interface {
	FastGwei(ctx context.Context) (uint64, error)
}

// NodeSource reads the fast level from an Ethereum node.
type NodeSource struct {
	Client *ethclient.Client
}

var gweiWei = big.NewInt(1_000_000_000)

func (s NodeSource) FastGwei(ctx context.Context) (uint64, error) {
	wei, err := s.Client.SuggestGasPrice(ctx)
	if err != nil {
		return 0, err
	}
	gwei := new(big.Int).Div(wei, gweiWei)
	if !gwei.IsUint64() {
		return 0, nil
	}
	return gwei.Uint64(), nil
}

// FixedSource returns a constant fast level. Used by tools and tests.
type FixedSource uint64

func (s FixedSource) FastGwei(ctx context.Context) (uint64, error) {
	return uint64(s), nil
}

// FeedOptions tune the refresh loop.
type FeedOptions struct {
	RefreshEvery time.Duration
	FetchTimeout time.Duration

	// Expiry is how long the last good value stays readable. Past it, reads
	// report unavailable rather than a stale number.
	Expiry time.Duration
}

func (o FeedOptions) withDefaults() FeedOptions {
	if o.RefreshEvery <= 0 {
		o.RefreshEvery = 30 * time.Second
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 10 * time.Second
	}
	if o.Expiry <= 0 {
		o.Expiry = 2 * time.Minute
	}
	return o
}

type feedSnapshot struct {
	fastGwei  uint64
	fetchedAt time.Time
}

// Feed periodically refreshes the fast gas level on its own goroutine and
// publishes immutable snapshots. A failed fetch keeps the previous snapshot.
type Feed struct {
	source Source
	opts   FeedOptions
	now    func() time.Time

	mu   sync.RWMutex
	snap *feedSnapshot
}

func NewFeed(source Source, opts FeedOptions) *Feed {
	return &Feed{
		source: source,
		opts:   opts.withDefaults(),
		now:    time.Now,
	}
}

// Start launches the refresh loop. It fetches once immediately, then on the
// configured interval until ctx is done.
func (f *Feed) Start(ctx context.Context) {
	go func() {
		f.refresh(ctx)
		ticker := time.NewTicker(f.opts.RefreshEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.refresh(ctx)
			}
		}
	}()
}

func (f *Feed) refresh(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, f.opts.FetchTimeout)
	defer cancel()

	fast, err := f.source.FastGwei(fetchCtx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[warn] gas feed refresh: %v", err)
		}
		return
	}

	snap := &feedSnapshot{fastGwei: fast, fetchedAt: f.now()}
	f.mu.Lock()
	f.snap = snap
	f.mu.Unlock()
}

// FastGwei returns the last fast level and whether it is still fresh. Once
// the snapshot is older than Expiry, or if no fetch ever succeeded, ok is
// false.
func (f *Feed) FastGwei() (uint64, bool) {
	f.mu.RLock()
	snap := f.snap
	f.mu.RUnlock()

	if snap == nil {
		return 0, false
	}
	if f.now().Sub(snap.fetchedAt) > f.opts.Expiry {
		return 0, false
	}
	return snap.fastGwei, true
}
