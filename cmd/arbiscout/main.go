package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/arbiscout/arbiscout/internal/browser"
	"github.com/arbiscout/arbiscout/internal/config"
	"github.com/arbiscout/arbiscout/internal/database"
	"github.com/arbiscout/arbiscout/internal/market"
	"github.com/arbiscout/arbiscout/internal/matcher"
	"github.com/arbiscout/arbiscout/internal/models"
	"github.com/arbiscout/arbiscout/internal/orchestrator"
	"github.com/arbiscout/arbiscout/internal/ratelimit"
	"github.com/arbiscout/arbiscout/internal/scraper"
	"github.com/arbiscout/arbiscout/internal/similarity"
	"github.com/arbiscout/arbiscout/pkg/logger"
)

func main() {
	var (
		keyword    = flag.String("keyword", "", "Search keyword")
		category   = flag.String("category", "", "eBay category ID")
		maxResults = flag.Int("max-results", 20, "Maximum number of products")
		minPrice   = flag.Float64("min-price", 0, "Minimum sold price filter")
		maxPrice   = flag.Float64("max-price", 0, "Maximum sold price filter")
		minSold    = flag.Int("min-sold", 0, "Minimum sold count filter")
		sellerInfo = flag.Bool("seller-info", false, "Include seller information")
		runMatch   = flag.Bool("match", false, "Match scanned products against Amazon offers")
		output     = flag.String("output", "text", "Output format: text, json")
		headless   = flag.Bool("headless", true, "Run browser in headless mode")
	)
	flag.Parse()

	// Missing .env is fine, env vars still apply.
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	slogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slogger.Info("starting arbiscout scan", "keyword", *keyword)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slogger.Info("shutdown signal received")
		cancel()
	}()

	b, err := browser.New(&browser.Options{
		Headless:       *headless && cfg.Browser.Headless,
		Timeout:        cfg.Browser.Timeout,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		TimezoneID:     cfg.Browser.TimezoneID,
		Locale:         cfg.Browser.Locale,
		ProxyServer:    cfg.Browser.ProxyServer,
	})
	if err != nil {
		log.Fatalf("Failed to start browser: %v", err)
	}
	defer b.Close()

	limiter := ratelimit.NewMultiLimiter(
		ratelimit.NewAdaptiveRateLimiter(cfg.Scraper.RateLimitMin, cfg.Scraper.RateLimitMax),
		ratelimit.NewSlidingWindowLimiter(cfg.Scraper.WindowMaxCalls, cfg.Scraper.WindowDuration),
	)

	analyzer := market.NewAnalyzer(b, limiter)
	ebayScraper := scraper.NewEbayScraper(b, limiter)
	store := database.NewMemoryResultStore()

	orch := orchestrator.New(analyzer, ebayScraper, store, orchestrator.RetryConfig{
		MaxAttempts: cfg.Scraper.MaxRetries,
		BaseDelay:   cfg.Scraper.RetryBaseDelay,
		MaxDelay:    cfg.Scraper.RetryMaxDelay,
		Factor:      cfg.Scraper.RetryFactor,
	})

	criteria := models.SearchCriteria{
		Keyword:           *keyword,
		CategoryID:        *category,
		MaxResults:        *maxResults,
		MinPrice:          *minPrice,
		MaxPrice:          *maxPrice,
		MinSoldCount:      *minSold,
		IncludeSellerInfo: *sellerInfo,
	}

	result, err := orch.Scan(ctx, criteria)
	if err != nil {
		slogger.Error("scan failed", "error", err, "status", result.Status)
		os.Exit(1)
	}

	var matches []models.ProductMatch
	if *runMatch {
		matches, err = matchAgainstAmazon(ctx, cfg, b, limiter, result.Products)
		if err != nil {
			slogger.Error("matching failed", "error", err)
			os.Exit(1)
		}
	}

	if *output == "json" {
		printJSON(result, matches)
	} else {
		printText(result, matches)
	}
}

func matchAgainstAmazon(ctx context.Context, cfg *config.Config, b *browser.Browser, limiter ratelimit.RateLimiter, products []models.EbayProduct) ([]models.ProductMatch, error) {
	amazonScraper := scraper.NewAmazonScraper(b, limiter)
	images := similarity.NewImageMatcher(cfg.Matcher.ImageMatching, cfg.Matcher.ImageTimeout)

	m, err := matcher.New(matcher.Config{
		MinTextSimilarity:      cfg.Matcher.MinTextSimilarity,
		MinConfidence:          cfg.Matcher.MinConfidence,
		MinProfitMarginPercent: cfg.Matcher.MinProfitMarginPercent,
	}, images)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var candidates []models.AmazonProduct
	for _, product := range products {
		offers, err := amazonScraper.Search(ctx, product.Title, 10)
		if err != nil {
			continue
		}
		for _, offer := range offers {
			if _, ok := seen[offer.URL]; ok {
				continue
			}
			seen[offer.URL] = struct{}{}
			candidates = append(candidates, offer)
		}
	}

	return m.Match(ctx, products, candidates)
}

func printJSON(result *models.ScanResult, matches []models.ProductMatch) {
	out := map[string]any{"scan": result}
	if matches != nil {
		out["matches"] = matches
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(out)
}

func printText(result *models.ScanResult, matches []models.ProductMatch) {
	fmt.Printf("Scan %s: %s (%d products, %.1fs)\n",
		result.ResultID, result.Status, len(result.Products), result.Duration)

	if result.MarketAnalysis != nil {
		a := result.MarketAnalysis
		fmt.Printf("Market: avg sold $%.2f, range $%.2f-$%.2f, %d sellers, %d sales\n",
			a.AvgSoldPrice, a.PriceRange.Min, a.PriceRange.Max, a.SellerCount, a.TotalSales)
	}

	for i, p := range result.Products {
		fmt.Printf("%3d. $%8.2f  %4d sold  %s\n", i+1, p.Price, p.SoldCount, p.Title)
	}

	if matches == nil {
		return
	}
	fmt.Printf("\n%d arbitrage matches:\n", len(matches))
	for i, m := range matches {
		fmt.Printf("%3d. confidence %.2f  margin %+.1f%%  ebay $%.2f -> amazon $%.2f\n",
			i+1, m.OverallConfidence, m.ProfitMarginPercent, m.Ebay.Price, m.Amazon.Price)
		fmt.Printf("     %s\n", m.Ebay.Title)
		fmt.Printf("     %s\n", m.Amazon.Title)
	}
}
