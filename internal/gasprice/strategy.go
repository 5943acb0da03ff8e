package gasprice

import "time"

// Escalation defaults. The feed-backed bid starts feedBumpGwei over the fast
// level and may not exceed feedCapGwei over it; the no-feed fallback walks a
// fixed schedule independent of any feed history.
const (
	feedBumpGwei = 10
	feedCapGwei  = 50

	DefaultStepEvery   = 60 * time.Second
	DefaultStartGwei   = 10
	DefaultStepGwei    = 10
	DefaultFallbackMax = 100
)

// FastReader is the read side of Feed.
type FastReader interface {
	FastGwei() (uint64, bool)
}

// StrategyOptions override the fallback schedule.
type StrategyOptions struct {
	StepEvery       time.Duration
	FallbackStart   uint64
	FallbackStep    uint64
	FallbackMaxGwei uint64
}

func (o StrategyOptions) withDefaults() StrategyOptions {
	if o.StepEvery <= 0 {
		o.StepEvery = DefaultStepEvery
	}
	if o.FallbackStart == 0 {
		o.FallbackStart = DefaultStartGwei
	}
	if o.FallbackStep == 0 {
		o.FallbackStep = DefaultStepGwei
	}
	if o.FallbackMaxGwei == 0 {
		o.FallbackMaxGwei = DefaultFallbackMax
	}
	return o
}

// Strategy computes the fee bid for a pending transaction as a function of
// how long it has been pending. Under-bidding risks a transaction that never
// confirms while the market moves away from the intended price.
type Strategy struct {
	feed FastReader
	opts StrategyOptions
}

func NewStrategy(feed FastReader, opts StrategyOptions) *Strategy {
	return &Strategy{feed: feed, opts: opts.withDefaults()}
}

// BidGwei returns the bid for a transaction pending for elapsed. The bid is
// non-decreasing in elapsed within one feed reading.
func (s *Strategy) BidGwei(elapsed time.Duration) uint64 {
	steps := uint64(0)
	if elapsed > 0 {
		steps = uint64(elapsed / s.opts.StepEvery)
	}

	if s.feed != nil {
		if fast, ok := s.feed.FastGwei(); ok {
			bump := uint64(feedCapGwei)
			if steps < (feedCapGwei-feedBumpGwei)/feedBumpGwei {
				bump = feedBumpGwei + feedBumpGwei*steps
			}
			return fast + bump
		}
	}

	// Feed stale or never populated: fixed escalating schedule.
	bid := s.opts.FallbackMaxGwei
	if steps < (s.opts.FallbackMaxGwei-s.opts.FallbackStart)/s.opts.FallbackStep {
		bid = s.opts.FallbackStart + s.opts.FallbackStep*steps
	}
	return bid
}
