package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"mm-keeper/internal/dotenv"
	"mm-keeper/internal/gasprice"
)

// gasbid prints the node's current fast gas level and the fee-bid schedule the
// keeper would use for a transaction pending 0..N minutes, for both the
// feed-backed and the no-feed fallback paths.
func main() {
	log.SetFlags(0)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	var rpcFlag string
	var minutesFlag int
	flag.StringVar(&rpcFlag, "eth-rpc", "", "Ethereum RPC URL (or ETH_RPC_URL env)")
	flag.IntVar(&minutesFlag, "minutes", 10, "Minutes of pending time to tabulate")
	flag.Parse()

	rpcURL := strings.TrimSpace(rpcFlag)
	if rpcURL == "" {
		rpcURL = strings.TrimSpace(os.Getenv("ETH_RPC_URL"))
	}
	if rpcURL == "" {
		log.Fatalf("[fatal] rpc url required via --eth-rpc or ETH_RPC_URL")
	}
	if minutesFlag < 0 {
		log.Fatalf("[fatal] minutes must be >= 0")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		log.Fatalf("[fatal] dial %s: %v", rpcURL, err)
	}
	defer eth.Close()

	fast, err := gasprice.NodeSource{Client: eth}.FastGwei(ctx)
	if err != nil {
		log.Fatalf("[fatal] fetch fast gas: %v", err)
	}
	fmt.Printf("fast: %d gwei\n", fast)

	withFeed := gasprice.NewStrategy(staticFeed(fast), gasprice.StrategyOptions{})
	noFeed := gasprice.NewStrategy(nil, gasprice.StrategyOptions{})

	fmt.Printf("%-8s %-10s %s\n", "pending", "with-feed", "fallback")
	for m := 0; m <= minutesFlag; m++ {
		elapsed := time.Duration(m) * time.Minute
		fmt.Printf("%-8s %-10d %d\n", elapsed, withFeed.BidGwei(elapsed), noFeed.BidGwei(elapsed))
	}
}

// staticFeed pins the fetched fast level so the table is self-consistent.
type staticFeed uint64

func (f staticFeed) FastGwei() (uint64, bool) { return uint64(f), true }
