package oracle

import "context"

// Fixed always returns the same price. Useful for dry runs and tools.
type Fixed uint64

func (f Fixed) TargetPriceMicros(ctx context.Context) (uint64, error) {
	return uint64(f), nil
}
