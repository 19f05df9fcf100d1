// cmd/symboltool resolves and searches signal symbols against the
// instrument index from the command line, using the same resolver the
// service runs. Handy for checking what a signal like "NIFTY 25000 CE"
// turns into before letting it trade.
//
// Usage:
//
//	go run ./cmd/symboltool resolve "NIFTY 25000 CE"
//	go run ./cmd/symboltool --exchange=NSE --limit=5 search RELIANCE
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/khannoor710/TelegramSignalTrader/config"
	"github.com/khannoor710/TelegramSignalTrader/internal/instruments"
	"github.com/khannoor710/TelegramSignalTrader/internal/logger"
	"github.com/khannoor710/TelegramSignalTrader/internal/resolver"
)

func main() {
	log.SetFlags(0)
	godotenv.Load()

	exchange := flag.String("exchange", "NSE", "Exchange hint (NSE, BSE, NFO, BFO)")
	limit := flag.Int("limit", 10, "Max search results")
	force := flag.Bool("force", false, "Re-download the scrip master even when the cache is fresh")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(2)
	}
	mode, query := args[0], args[1]

	cfg := config.Load()
	appLog := logger.Init("symboltool", slog.LevelWarn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	index := instruments.New(instruments.NewHTTPFetcher(), cfg.InstrumentCachePath, cfg.InstrumentCacheTTL, appLog)
	if !index.Load(ctx, *force) {
		log.Fatal("[symboltool] instrument index load failed")
	}
	fmt.Printf("index: %d instruments\n\n", index.Count())

	switch mode {
	case "resolve":
		ov, err := resolver.LoadOverrides(cfg.ResolverConfigPath)
		if err != nil {
			log.Fatalf("[symboltool] %v", err)
		}
		res := resolver.New(index, ov, appLog).Resolve(ctx, query, *exchange)
		fmt.Printf("original:   %s\n", res.Original)
		fmt.Printf("resolved:   %s\n", res.ResolvedSymbol)
		fmt.Printf("exchange:   %s\n", res.Exchange)
		fmt.Printf("type:       %s\n", res.InstrumentType)
		if res.Token != "" {
			fmt.Printf("token:      %s\n", res.Token)
		} else {
			fmt.Printf("token:      (unconfirmed)\n")
		}
		fmt.Printf("success:    %v\n", res.Success)
		fmt.Printf("message:    %s\n", res.Message)
		if !res.Success {
			os.Exit(1)
		}

	case "search":
		hits := index.Search(ctx, query, *exchange, *limit)
		if len(hits) == 0 {
			fmt.Println("no matches")
			os.Exit(1)
		}
		for _, in := range hits {
			fmt.Printf("%-8s %-24s token=%-8s %s", in.Exchange, in.TradingSymbol, in.Token, in.Name)
			if in.Expiry != "" {
				fmt.Printf("  expiry=%s", in.Expiry)
			}
			fmt.Println()
		}

	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: symboltool [flags] resolve|search <query>")
	flag.PrintDefaults()
}
