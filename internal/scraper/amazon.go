package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arbiscout/arbiscout/internal/browser"
	"github.com/arbiscout/arbiscout/internal/extract"
	"github.com/arbiscout/arbiscout/internal/models"
	"github.com/arbiscout/arbiscout/internal/ratelimit"
)

const amazonBaseURL = "https://www.amazon.com"

// AmazonScraper searches Amazon and extracts offers from the results
// grid. Offers come back cheapest-first since the matcher wants the
// lowest sourcing price.
type AmazonScraper struct {
	browser *browser.Browser
	limiter ratelimit.RateLimiter
	logger  *slog.Logger
}

func NewAmazonScraper(b *browser.Browser, limiter ratelimit.RateLimiter) *AmazonScraper {
	return &AmazonScraper{
		browser: b,
		limiter: limiter,
		logger:  slog.Default().With("component", "amazon_scraper"),
	}
}

func (s *AmazonScraper) Name() string { return "amazon" }

func (s *AmazonScraper) BuildSearchURL(query string) string {
	params := url.Values{}
	params.Set("k", query)
	params.Set("ref", "sr_pg_1")
	return fmt.Sprintf("%s/s?%s", amazonBaseURL, params.Encode())
}

// Search drives a browser page through the search and returns the
// extracted offers sorted by ascending price.
func (s *AmazonScraper) Search(ctx context.Context, query string, maxResults int) ([]models.AmazonProduct, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidSearch)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	searchURL := s.BuildSearchURL(query)
	s.logger.Info("searching amazon", "url", searchURL, "query", query)

	page, err := s.browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserClosed, err)
	}
	defer page.Close()

	if err := s.browser.HumanizeInteraction(page); err != nil {
		s.logger.Warn("failed to humanize interaction", "error", err)
	}

	html, err := s.browser.NavigateWithRetry(page, searchURL, 3)
	if err != nil {
		ratelimit.RecordError(s.limiter)
		return nil, fmt.Errorf("%w: %v", ErrPageLoadFailed, err)
	}

	if browser.DetectRateLimit(html) {
		ratelimit.RecordError(s.limiter)
		return nil, ErrRateLimited
	}

	if browser.DetectBotProtection(html) {
		s.logger.Warn("bot protection markers in results page", "marketplace", "amazon")
		ratelimit.RecordError(s.limiter)
	}

	products, err := s.ParseSearchHTML(html, maxResults)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, ErrNoResults
	}
	ratelimit.RecordSuccess(s.limiter)

	s.logger.Info("amazon search completed", "query", query, "products", len(products))
	return products, nil
}

// ParseSearchHTML extracts offers from a results page, scanning at most
// twice the requested count of result containers.
func (s *AmazonScraper) ParseSearchHTML(html string, maxResults int) ([]models.AmazonProduct, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	if maxResults <= 0 {
		maxResults = 20
	}

	var products []models.AmazonProduct
	doc.Find(`div[data-component-type="s-search-result"]`).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if i >= maxResults*2 || len(products) >= maxResults {
			return false
		}
		if product, ok := s.parseOffer(sel); ok {
			products = append(products, product)
		}
		return true
	})

	sort.SliceStable(products, func(i, j int) bool {
		return products[i].Price < products[j].Price
	})
	if len(products) > maxResults {
		products = products[:maxResults]
	}
	return products, nil
}

func (s *AmazonScraper) parseOffer(sel *goquery.Selection) (models.AmazonProduct, bool) {
	var product models.AmazonProduct

	title, ok := extract.Title(sel, []string{"h2 a span", "h2 span", ".a-text-normal"})
	if !ok {
		return product, false
	}

	price, ok := extract.Price(sel, []string{".a-price .a-offscreen", ".a-price-whole"})
	if !ok {
		return product, false
	}

	product.Title = title
	product.Price = price

	href, _ := extract.FirstAttr(sel, []string{"h2 a", "a.a-link-normal"}, "href")
	product.URL = extract.AbsoluteURL(href, amazonBaseURL)
	product.ImageURL, _ = extract.FirstAttr(sel, []string{"img.s-image"}, "src")

	if ratingText, ok := extract.FirstText(sel, []string{"span.a-icon-alt", ".a-icon-star-small .a-icon-alt"}); ok {
		if rating, ok := extract.NormalizeRating(ratingText); ok {
			product.Rating = &rating
		}
	}

	if reviewsText, ok := extract.FirstText(sel, []string{"span.a-size-base.s-underline-text", ".a-link-normal .a-size-base"}); ok {
		if count := extract.ExtractSoldCount(reviewsText); count > 0 {
			product.ReviewsCount = &count
		}
	}

	product.Prime = sel.Find("i.a-icon-prime, .s-prime").Length() > 0
	return product, true
}
