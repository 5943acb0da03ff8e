package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"mm-keeper/internal/band"
	"mm-keeper/internal/dotenv"
	"mm-keeper/internal/gasprice"
	"mm-keeper/internal/jsonl"
	"mm-keeper/internal/keeper"
	"mm-keeper/internal/micros"
	"mm-keeper/internal/oracle"
	"mm-keeper/internal/venue"
)

type args struct {
	bandsFile string

	venueURL   string
	apiKey     string
	baseAsset  string
	quoteAsset string
	lotMicros  uint64

	oracleKind  string // chainlink | ws | fixed
	ethRPC      string
	aggregator  common.Address
	tickerWs    string
	tickerPair  string
	maxPriceAge time.Duration
	fixedPrice  uint64

	tickInterval    time.Duration
	enableTrading   bool
	adoptOpenOrders bool
	registryFile    string
	outFile         string
}

const defaultEventsOutFile = "./out/keeper.jsonl"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	parsed, err := parseArgs()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	buys, sells, err := band.LoadFile(parsed.bandsFile)
	if err != nil {
		log.Fatalf("[fatal] bands %s: %v", parsed.bandsFile, err)
	}
	log.Printf("Market-maker keeper → %s", parsed.venueURL)
	log.Printf("Pair: %s/%s", parsed.baseAsset, parsed.quoteAsset)
	log.Printf("Bands: %s (buy=%d sell=%d)", parsed.bandsFile, len(buys.Bands()), len(sells.Bands()))
	log.Printf("Oracle: %s", parsed.oracleKind)
	log.Printf("Tick interval: %s", parsed.tickInterval)
	log.Printf("Dry-run: %v", !parsed.enableTrading)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		log.Printf("Shutting down...")
		cancel()
	}()

	var eth *ethclient.Client
	if parsed.ethRPC != "" {
		eth, err = ethclient.DialContext(ctx, parsed.ethRPC)
		if err != nil {
			log.Fatalf("[fatal] eth rpc %s: %v", parsed.ethRPC, err)
		}
		defer eth.Close()
	}

	var gas *gasprice.Strategy
	if eth != nil {
		feed := gasprice.NewFeed(gasprice.NodeSource{Client: eth}, gasprice.FeedOptions{})
		feed.Start(ctx)
		gas = gasprice.NewStrategy(feed, gasprice.StrategyOptions{})
		log.Printf("Gas feed: node-backed (refresh every 30s)")
	} else {
		gas = gasprice.NewStrategy(nil, gasprice.StrategyOptions{})
		log.Printf("Gas feed: none, using fallback schedule")
	}

	var priceOracle keeper.Oracle
	switch parsed.oracleKind {
	case "chainlink":
		cl, err := oracle.NewChainlink(eth, parsed.aggregator, 10*time.Second)
		if err != nil {
			log.Fatalf("[fatal] %v", err)
		}
		priceOracle = cl
	case "ws":
		tk, err := oracle.NewTicker(parsed.tickerWs, parsed.tickerPair, parsed.maxPriceAge)
		if err != nil {
			log.Fatalf("[fatal] %v", err)
		}
		tk.Start(ctx)
		priceOracle = tk
	case "fixed":
		priceOracle = oracle.Fixed(parsed.fixedPrice)
	}

	venueClient, err := venue.NewClient(parsed.venueURL, venue.Options{
		APIKey:    parsed.apiKey,
		LotMicros: parsed.lotMicros,
		Gas:       gas,
	})
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	eventLog := jsonl.New(parsed.outFile)
	if eventLog != nil {
		log.Printf("Event log: %s (JSONL)", parsed.outFile)
		defer func() {
			if err := eventLog.Close(); err != nil {
				log.Printf("[warn] event log close: %v", err)
			}
		}()
	}

	engine, err := keeper.New(venueClient, priceOracle, buys, sells, keeper.Options{
		BaseAsset:       parsed.baseAsset,
		QuoteAsset:      parsed.quoteAsset,
		LotMicros:       parsed.lotMicros,
		EnableTrading:   parsed.enableTrading,
		AdoptOpenOrders: parsed.adoptOpenOrders,
		RegistryPath:    parsed.registryFile,
		EventLog:        eventLog,
	})
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	if err := engine.Run(ctx, keeper.RunConfig{
		TickInterval: parsed.tickInterval,
		BandsPath:    parsed.bandsFile,
	}); err != nil {
		log.Fatalf("[fatal] %v", err)
	}
}

func parseArgs() (args, error) {
	var bandsFlag string
	var venueURLFlag string
	var apiKeyFlag string
	var baseFlag string
	var quoteFlag string
	var lotFlag string

	var oracleFlag string
	var ethRPCFlag string
	var aggregatorFlag string
	var tickerWsFlag string
	var tickerPairFlag string
	var maxPriceAgeFlag time.Duration
	var fixedPriceFlag string

	var tickIntervalFlag time.Duration
	var enableTradingFlag bool
	var adoptFlag bool
	var registryFlag string
	var outFlag string

	enableTradingDefault := false
	if env := strings.TrimSpace(os.Getenv("ENABLE_TRADING")); env != "" {
		v, err := strconv.ParseBool(env)
		if err != nil {
			return args{}, fmt.Errorf("invalid ENABLE_TRADING %q: %w", env, err)
		}
		enableTradingDefault = v
	}

	flag.StringVar(&bandsFlag, "bands", "", "Band configuration file (JSON) (or BANDS_FILE env)")
	flag.StringVar(&venueURLFlag, "venue-url", "", "Venue REST base URL (or VENUE_URL env)")
	flag.StringVar(&apiKeyFlag, "api-key", "", "Venue API key (or VENUE_API_KEY env)")
	flag.StringVar(&baseFlag, "base", "", "Base asset symbol, e.g. WETH (or BASE_ASSET env)")
	flag.StringVar(&quoteFlag, "quote", "", "Quote asset symbol, e.g. DAI (or QUOTE_ASSET env)")
	flag.StringVar(&lotFlag, "lot", "0", "Venue amount granularity as a decimal, e.g. 0.01 (0 = no rounding)")

	flag.StringVar(&oracleFlag, "oracle", "ws", "Price oracle: chainlink, ws or fixed")
	flag.StringVar(&ethRPCFlag, "eth-rpc", "", "Ethereum RPC URL for the chainlink oracle and gas feed (or ETH_RPC_URL env)")
	flag.StringVar(&aggregatorFlag, "aggregator", "", "Chainlink aggregator address 0x... (oracle=chainlink)")
	flag.StringVar(&tickerWsFlag, "ticker-ws", "", "Price ticker WebSocket URL (oracle=ws; or TICKER_WS_URL env)")
	flag.StringVar(&tickerPairFlag, "pair", "", "Ticker pair symbol, e.g. ETH-DAI (oracle=ws)")
	flag.DurationVar(&maxPriceAgeFlag, "max-price-age", 30*time.Second, "Oldest ticker price still usable (oracle=ws)")
	flag.StringVar(&fixedPriceFlag, "fixed-price", "", "Constant target price as a decimal (oracle=fixed)")

	flag.DurationVar(&tickIntervalFlag, "tick-interval", 10*time.Second, "Time between reconciliation passes")
	flag.BoolVar(&enableTradingFlag, "enable-trading", enableTradingDefault, "Actually place/cancel orders (default is dry-run)")
	flag.BoolVar(&adoptFlag, "adopt-open-orders", false, "Claim orders already open on the first tick instead of ignoring them")
	flag.StringVar(&registryFlag, "registry-file", "./out/keeper.orders.json", "Placed-order registry path")
	flag.StringVar(&outFlag, "out", "", "Optional output file path (JSONL; logs keeper decisions)")

	flag.Parse()

	bands := strings.TrimSpace(bandsFlag)
	if bands == "" {
		bands = strings.TrimSpace(os.Getenv("BANDS_FILE"))
	}
	if bands == "" {
		return args{}, fmt.Errorf("bands file required via --bands or BANDS_FILE")
	}

	venueURL := strings.TrimSpace(venueURLFlag)
	if venueURL == "" {
		venueURL = strings.TrimSpace(os.Getenv("VENUE_URL"))
	}
	if venueURL == "" {
		return args{}, fmt.Errorf("venue url required via --venue-url or VENUE_URL")
	}

	apiKey := strings.TrimSpace(apiKeyFlag)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("VENUE_API_KEY"))
	}

	base := strings.ToUpper(strings.TrimSpace(baseFlag))
	if base == "" {
		base = strings.ToUpper(strings.TrimSpace(os.Getenv("BASE_ASSET")))
	}
	quote := strings.ToUpper(strings.TrimSpace(quoteFlag))
	if quote == "" {
		quote = strings.ToUpper(strings.TrimSpace(os.Getenv("QUOTE_ASSET")))
	}
	if base == "" || quote == "" {
		return args{}, fmt.Errorf("base and quote assets required via --base/--quote or BASE_ASSET/QUOTE_ASSET")
	}
	if base == quote {
		return args{}, fmt.Errorf("base and quote must differ (got %s/%s)", base, quote)
	}

	lot, err := micros.Parse(lotFlag)
	if err != nil {
		return args{}, fmt.Errorf("invalid --lot %q: %w", lotFlag, err)
	}

	ethRPC := strings.TrimSpace(ethRPCFlag)
	if ethRPC == "" {
		ethRPC = strings.TrimSpace(os.Getenv("ETH_RPC_URL"))
	}

	out := args{
		bandsFile:       bands,
		venueURL:        venueURL,
		apiKey:          apiKey,
		baseAsset:       base,
		quoteAsset:      quote,
		lotMicros:       lot,
		ethRPC:          ethRPC,
		maxPriceAge:     maxPriceAgeFlag,
		tickInterval:    tickIntervalFlag,
		enableTrading:   enableTradingFlag,
		adoptOpenOrders: adoptFlag,
		registryFile:    strings.TrimSpace(registryFlag),
		outFile:         strings.TrimSpace(outFlag),
	}
	if out.outFile == "" {
		out.outFile = strings.TrimSpace(os.Getenv("KEEPER_OUT_FILE"))
	}
	if out.outFile == "" {
		out.outFile = defaultEventsOutFile
	}

	out.oracleKind = strings.ToLower(strings.TrimSpace(oracleFlag))
	switch out.oracleKind {
	case "chainlink":
		if ethRPC == "" {
			return args{}, fmt.Errorf("oracle=chainlink requires --eth-rpc or ETH_RPC_URL")
		}
		if !common.IsHexAddress(strings.TrimSpace(aggregatorFlag)) {
			return args{}, fmt.Errorf("oracle=chainlink requires a valid --aggregator address (got %q)", aggregatorFlag)
		}
		out.aggregator = common.HexToAddress(strings.TrimSpace(aggregatorFlag))
	case "ws":
		out.tickerWs = strings.TrimSpace(tickerWsFlag)
		if out.tickerWs == "" {
			out.tickerWs = strings.TrimSpace(os.Getenv("TICKER_WS_URL"))
		}
		if out.tickerWs == "" {
			return args{}, fmt.Errorf("oracle=ws requires --ticker-ws or TICKER_WS_URL")
		}
		out.tickerPair = strings.TrimSpace(tickerPairFlag)
		if out.tickerPair == "" {
			return args{}, fmt.Errorf("oracle=ws requires --pair")
		}
	case "fixed":
		price, err := micros.Parse(fixedPriceFlag)
		if err != nil {
			return args{}, fmt.Errorf("invalid --fixed-price %q: %w", fixedPriceFlag, err)
		}
		if price == 0 {
			return args{}, fmt.Errorf("oracle=fixed requires a positive --fixed-price")
		}
		out.fixedPrice = price
	default:
		return args{}, fmt.Errorf("unsupported oracle %q (use chainlink, ws or fixed)", oracleFlag)
	}

	return out, nil
}
