// Package oracle supplies the target price the keeper reconciles against.
// Every implementation returns a transient error when its source is
// unavailable; the engine skips the tick rather than trade on a stale price.
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	latestAnswerSelector = crypto.Keccak256([]byte("latestAnswer()"))[:4]
	decimalsSelector     = crypto.Keccak256([]byte("decimals()"))[:4]
)

// Chainlink reads a Chainlink-style aggregator: latestAnswer() scaled by
// decimals(), rescaled to micros.
type Chainlink struct {
	client     *ethclient.Client
	aggregator common.Address
	timeout    time.Duration

	mu       sync.Mutex
	decimals *int64 // cached after the first successful read
}

func NewChainlink(client *ethclient.Client, aggregator common.Address, timeout time.Duration) (*Chainlink, error) {
	if client == nil {
		return nil, fmt.Errorf("oracle: eth client required")
	}
	if (aggregator == common.Address{}) {
		return nil, fmt.Errorf("oracle: aggregator address required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Chainlink{client: client, aggregator: aggregator, timeout: timeout}, nil
}

func (o *Chainlink) call(ctx context.Context, selector []byte) (*big.Int, error) {
	out, err := o.client.CallContract(ctx, ethereum.CallMsg{To: &o.aggregator, Data: selector}, nil)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty result")
	}
	return new(big.Int).SetBytes(out), nil
}

func (o *Chainlink) feedDecimals(ctx context.Context) (int64, error) {
	o.mu.Lock()
	cached := o.decimals
	o.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	raw, err := o.call(ctx, decimalsSelector)
	if err != nil {
		return 0, fmt.Errorf("decimals(): %w", err)
	}
	d := raw.Int64()
	if d < 0 || d > 30 {
		return 0, fmt.Errorf("decimals() out of range: %d", d)
	}

	o.mu.Lock()
	o.decimals = &d
	o.mu.Unlock()
	return d, nil
}

// TargetPriceMicros reads the current feed answer. Errors are transient:
// the next tick retries.
func (o *Chainlink) TargetPriceMicros(ctx context.Context) (uint64, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	decimals, err := o.feedDecimals(callCtx)
	if err != nil {
		return 0, err
	}

	answer, err := o.call(callCtx, latestAnswerSelector)
	if err != nil {
		return 0, fmt.Errorf("latestAnswer(): %w", err)
	}
	if answer.Sign() <= 0 {
		return 0, fmt.Errorf("latestAnswer() not positive: %s", answer.String())
	}

	return rescaleToMicros(answer, decimals)
}

// rescaleToMicros converts a feed answer with the given decimals into micros.
func rescaleToMicros(answer *big.Int, decimals int64) (uint64, error) {
	v := new(big.Int).Set(answer)
	switch {
	case decimals > 6:
		v.Div(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(decimals-6), nil))
	case decimals < 6:
		v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(6-decimals), nil))
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("price overflows micros: %s (decimals=%d)", answer.String(), decimals)
	}
	return v.Uint64(), nil
}
