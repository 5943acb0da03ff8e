package main

import (
	"flag"
	"fmt"
	"log"

	"mm-keeper/internal/band"
	"mm-keeper/internal/micros"
)

// checkbands validates a band configuration file and prints the price window
// each band resolves to at a chosen target price, so a config change can be
// reviewed before the keeper trades under it.
func main() {
	log.SetFlags(0)

	var bandsFlag string
	var targetFlag string
	flag.StringVar(&bandsFlag, "bands", "", "Band configuration file (JSON)")
	flag.StringVar(&targetFlag, "target", "1", "Target price to resolve band windows at (decimal)")
	flag.Parse()

	if bandsFlag == "" {
		log.Fatalf("[fatal] bands file required via --bands")
	}
	target, err := micros.Parse(targetFlag)
	if err != nil {
		log.Fatalf("[fatal] invalid --target %q: %v", targetFlag, err)
	}
	if target == 0 {
		log.Fatalf("[fatal] target must be positive")
	}

	buys, sells, err := band.LoadFile(bandsFlag)
	if err != nil {
		log.Fatalf("[fatal] %s: %v", bandsFlag, err)
	}

	fmt.Printf("bands: %s ok (buy=%d sell=%d)\n", bandsFlag, len(buys.Bands()), len(sells.Bands()))
	fmt.Printf("target: %s\n", micros.Format(target))
	printSide(buys, target)
	printSide(sells, target)
}

func printSide(set *band.Set, target uint64) {
	for i, b := range set.Bands() {
		fmt.Printf("%s band %d: margin [%s..%s] avg %s → place at %s, amount [%s..%s] avg %s dust %s\n",
			set.Side(), i,
			micros.FormatSigned(b.MinMarginMicros), micros.FormatSigned(b.MaxMarginMicros),
			micros.FormatSigned(b.AvgMarginMicros),
			micros.Format(b.AvgPriceMicros(target)),
			micros.Format(b.MinAmountMicros), micros.Format(b.MaxAmountMicros),
			micros.Format(b.AvgAmountMicros), micros.Format(b.DustCutoffMicros))
	}
}
