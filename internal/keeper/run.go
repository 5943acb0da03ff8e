package keeper

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mm-keeper/internal/band"
)

// RunConfig drives the control loop around the engine.
type RunConfig struct {
	TickInterval time.Duration

	// BandsPath, when set, is re-read on SIGHUP. A reload that produces an
	// overlapping policy is fatal; other reload errors keep the previous
	// bands in place.
	BandsPath string
}

// Run ticks the engine until ctx is done or a fatal error occurs. One pass
// runs at a time; a pass started is never cancelled mid-flight, though its
// individual submissions may fail independently.
func (e *Engine) Run(ctx context.Context, cfg RunConfig) error {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 10 * time.Second
	}

	reloadCh := make(chan os.Signal, 1)
	if cfg.BandsPath != "" {
		signal.Notify(reloadCh, syscall.SIGHUP)
		defer signal.Stop(reloadCh)
	}

	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()

	if err := e.Tick(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-reloadCh:
			buys, sells, err := band.LoadFile(cfg.BandsPath)
			if err != nil {
				if errors.Is(err, band.ErrOverlap) {
					return err
				}
				log.Printf("[warn] band reload failed, keeping current bands: %v", err)
				continue
			}
			e.ReplaceBands(buys, sells)
			log.Printf("[cfg] bands reloaded from %s (buy=%d sell=%d)",
				cfg.BandsPath, len(buys.Bands()), len(sells.Bands()))

		case <-ticker.C:
			if err := e.Tick(ctx); err != nil {
				return err
			}
		}
	}
}
