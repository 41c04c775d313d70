package market

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/arbiscout/arbiscout/internal/browser"
	"github.com/arbiscout/arbiscout/internal/extract"
	"github.com/arbiscout/arbiscout/internal/models"
	"github.com/arbiscout/arbiscout/internal/ratelimit"
	"github.com/arbiscout/arbiscout/internal/scraper"
)

const researchBaseURL = "https://www.ebay.com/sh/research"

// Analyzer runs the primary research strategy: the authenticated seller
// research page, which exposes aggregate sold-market statistics that the
// plain results page does not.
type Analyzer struct {
	browser  *browser.Browser
	limiter  ratelimit.RateLimiter
	dayRange int
	logger   *slog.Logger
}

func NewAnalyzer(b *browser.Browser, limiter ratelimit.RateLimiter) *Analyzer {
	return &Analyzer{
		browser:  b,
		limiter:  limiter,
		dayRange: 30,
		logger:   slog.Default().With("component", "market_analyzer"),
	}
}

func (a *Analyzer) BuildResearchURL(keyword string) string {
	params := url.Values{}
	params.Set("marketplace", "EBAY-US")
	params.Set("keywords", keyword)
	params.Set("dayRange", fmt.Sprintf("%d", a.dayRange))
	params.Set("tabName", "SOLD")
	return fmt.Sprintf("%s?%s", researchBaseURL, params.Encode())
}

// Analyze loads the research page for the keyword and parses its metric
// tiles. A bot challenge surfaces as scraper.ErrBotDetected so the
// orchestrator can stop the whole scan instead of falling back.
func (a *Analyzer) Analyze(ctx context.Context, criteria models.SearchCriteria) (*models.MarketAnalysis, error) {
	if criteria.Keyword == "" {
		return nil, fmt.Errorf("%w: research requires a keyword", scraper.ErrInvalidSearch)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	researchURL := a.BuildResearchURL(criteria.Keyword)
	a.logger.Info("running market research", "url", researchURL, "keyword", criteria.Keyword)

	page, err := a.browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", scraper.ErrBrowserClosed, err)
	}
	defer page.Close()

	html, err := a.browser.Navigate(page, researchURL)
	if err != nil {
		ratelimit.RecordError(a.limiter)
		return nil, fmt.Errorf("%w: %v", scraper.ErrPageLoadFailed, err)
	}

	if browser.DetectRateLimit(html) {
		ratelimit.RecordError(a.limiter)
		return nil, scraper.ErrRateLimited
	}

	if browser.DetectBotProtection(html) {
		a.logger.Warn("bot protection on research page")
		ratelimit.RecordError(a.limiter)
		return nil, scraper.ErrBotDetected
	}

	analysis, err := a.ParseResearchHTML(html, criteria.Keyword)
	if err != nil {
		return nil, err
	}
	ratelimit.RecordSuccess(a.limiter)

	a.logger.Info("market research completed",
		"keyword", criteria.Keyword,
		"avg_sold_price", analysis.AvgSoldPrice,
		"total_sales", analysis.TotalSales)
	return analysis, nil
}

// ParseResearchHTML extracts aggregate metrics from the research page.
// The page must carry at least an average sold price; anything less means
// the session is not authenticated or the layout changed.
func (a *Analyzer) ParseResearchHTML(html, keyword string) (*models.MarketAnalysis, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	root := doc.Selection
	analysis := &models.MarketAnalysis{
		Keyword:     keyword,
		LastUpdated: time.Now().UTC(),
	}

	avg, ok := extract.Price(root, []string{
		".research-metrics .avg-sold-price .metric-value",
		"[data-metric='avgSoldPrice'] .metric-value",
	})
	if !ok {
		return nil, fmt.Errorf("%w: research metrics missing", scraper.ErrNoResults)
	}
	analysis.AvgSoldPrice = avg

	if min, ok := extract.Price(root, []string{"[data-metric='priceRangeMin'] .metric-value", ".price-range .range-min"}); ok {
		analysis.PriceRange.Min = min
	}
	if max, ok := extract.Price(root, []string{"[data-metric='priceRangeMax'] .metric-value", ".price-range .range-max"}); ok {
		analysis.PriceRange.Max = max
	}

	if text, ok := extract.FirstText(root, []string{"[data-metric='sellThrough'] .metric-value", ".sell-through-rate .metric-value"}); ok {
		if rate, ok := extract.ExtractNumber(text); ok {
			analysis.SellThroughRate = rate
		}
	}
	if text, ok := extract.FirstText(root, []string{"[data-metric='freeShipping'] .metric-value", ".free-shipping-rate .metric-value"}); ok {
		if rate, ok := extract.ExtractNumber(text); ok {
			analysis.FreeShippingRate = rate
		}
	}

	if text, ok := extract.FirstText(root, []string{"[data-metric='sellerCount'] .metric-value", ".seller-count .metric-value"}); ok {
		analysis.SellerCount = extract.ExtractSoldCount(text)
	}
	if text, ok := extract.FirstText(root, []string{"[data-metric='totalSales'] .metric-value", ".total-sales .metric-value"}); ok {
		analysis.TotalSales = extract.ExtractSoldCount(text)
	}

	return analysis, nil
}

// ComputeFromListings derives a coarse analysis from already scraped sold
// listings. The fallback path uses this when the research page is
// unavailable, so downstream consumers always see the same shape.
func ComputeFromListings(keyword string, products []models.EbayProduct) *models.MarketAnalysis {
	analysis := &models.MarketAnalysis{
		Keyword:     keyword,
		LastUpdated: time.Now().UTC(),
	}
	if len(products) == 0 {
		return analysis
	}

	var (
		sum          float64
		freeShipping int
		sellers      = make(map[string]struct{})
	)
	analysis.PriceRange.Min = products[0].Price
	analysis.PriceRange.Max = products[0].Price

	for _, p := range products {
		sum += p.Price
		if p.Price < analysis.PriceRange.Min {
			analysis.PriceRange.Min = p.Price
		}
		if p.Price > analysis.PriceRange.Max {
			analysis.PriceRange.Max = p.Price
		}
		analysis.TotalSales += p.SoldCount
		if strings.Contains(strings.ToLower(p.Shipping), "free") {
			freeShipping++
		}
		if p.Seller != nil && p.Seller.Username != "" {
			sellers[p.Seller.Username] = struct{}{}
		}
	}

	analysis.AvgSoldPrice = sum / float64(len(products))
	analysis.FreeShippingRate = float64(freeShipping) / float64(len(products)) * 100
	analysis.SellerCount = len(sellers)
	return analysis
}
