package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arbiscout/arbiscout/internal/browser"
	"github.com/arbiscout/arbiscout/internal/extract"
	"github.com/arbiscout/arbiscout/internal/models"
	"github.com/arbiscout/arbiscout/internal/ratelimit"
)

const ebayBaseURL = "https://www.ebay.com"

// EbayScraper searches eBay sold listings and extracts product data from
// the result pages.
type EbayScraper struct {
	browser *browser.Browser
	limiter ratelimit.RateLimiter
	logger  *slog.Logger
}

func NewEbayScraper(b *browser.Browser, limiter ratelimit.RateLimiter) *EbayScraper {
	return &EbayScraper{
		browser: b,
		limiter: limiter,
		logger:  slog.Default().With("component", "ebay_scraper"),
	}
}

func (s *EbayScraper) Name() string { return "ebay" }

// BuildSearchURL renders the sold-listings search URL for the criteria.
func (s *EbayScraper) BuildSearchURL(criteria models.SearchCriteria) string {
	params := url.Values{}
	if criteria.Keyword != "" {
		params.Set("_nkw", criteria.Keyword)
	}
	if criteria.CategoryID != "" {
		params.Set("_sacat", criteria.CategoryID)
	}
	params.Set("LH_Sold", "1")
	params.Set("LH_Complete", "1")
	params.Set("_sop", "12")
	params.Set("_ipg", "60")
	params.Set("rt", "nc")
	if criteria.MinPrice > 0 {
		params.Set("_udlo", strconv.FormatFloat(criteria.MinPrice, 'f', 2, 64))
	}
	if criteria.MaxPrice > 0 {
		params.Set("_udhi", strconv.FormatFloat(criteria.MaxPrice, 'f', 2, 64))
	}
	return fmt.Sprintf("%s/sch/i.html?%s", ebayBaseURL, params.Encode())
}

// Search drives a browser page through the search and returns the
// extracted products, most-sold first.
func (s *EbayScraper) Search(ctx context.Context, criteria models.SearchCriteria) ([]models.EbayProduct, error) {
	if err := criteria.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSearch, err)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	searchURL := s.BuildSearchURL(criteria)
	s.logger.Info("searching ebay", "url", searchURL, "keyword", criteria.Keyword)

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

	// A bot challenge here is logged but not raised: whatever listings
	// made it into the page still count, and an empty page surfaces as
	// ErrNoResults below.
	if browser.DetectBotProtection(html) {
		s.logger.Warn("bot protection markers in results page", "marketplace", "ebay")
		ratelimit.RecordError(s.limiter)
	}

	products, err := s.ParseSearchHTML(html, criteria)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, ErrNoResults
	}
	ratelimit.RecordSuccess(s.limiter)

	s.logger.Info("ebay search completed", "keyword", criteria.Keyword, "products", len(products))
	return products, nil
}

// ParseSearchHTML extracts listings from a results page. It scans up to
// twice the requested number of result containers so that skipped
// containers (ads, malformed entries) do not starve the result set.
func (s *EbayScraper) ParseSearchHTML(html string, criteria models.SearchCriteria) ([]models.EbayProduct, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	maxResults := criteria.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	var products []models.EbayProduct
	doc.Find("li.s-item, div.s-item").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if i >= maxResults*2 || len(products) >= maxResults {
			return false
		}
		product, ok := s.parseListing(sel, criteria)
		if !ok {
			return true
		}
		if criteria.MinSoldCount > 0 && product.SoldCount < criteria.MinSoldCount {
			return true
		}
		products = append(products, product)
		return true
	})

	sort.SliceStable(products, func(i, j int) bool {
		return products[i].SoldCount > products[j].SoldCount
	})
	return products, nil
}

func (s *EbayScraper) parseListing(sel *goquery.Selection, criteria models.SearchCriteria) (models.EbayProduct, bool) {
	var product models.EbayProduct

	title, ok := extract.Title(sel, []string{".s-item__title span", ".s-item__title"})
	if !ok || strings.EqualFold(title, "Shop on eBay") {
		return product, false
	}

	price, ok := extract.Price(sel, []string{".s-item__price"})
	if !ok {
		return product, false
	}

	product.Title = title
	product.Price = price
	href, _ := extract.FirstAttr(sel, []string{"a.s-item__link", ".s-item__info a"}, "href")
	product.URL = extract.AbsoluteURL(href, ebayBaseURL)
	product.Condition, _ = extract.FirstText(sel, []string{".SECONDARY_INFO", ".s-item__subtitle"})
	product.Shipping, _ = extract.FirstText(sel, []string{".s-item__shipping", ".s-item__logisticsCost", ".s-item__freeXDays"})
	product.ImageURL, _ = extract.FirstAttr(sel, []string{".s-item__image img", ".s-item__image-wrapper img"}, "src")

	soldText, _ := extract.FirstText(sel, []string{".s-item__quantitySold", ".s-item__hotness", ".s-item__additionalItemHitCount"})
	product.SoldCount = extract.ExtractSoldCount(soldText)

	if criteria.IncludeSellerInfo {
		product.Seller = parseSellerInfo(sel)
	}
	return product, true
}

// parseSellerInfo pulls seller name, feedback score, and positive
// percentage from the listing footer when the results page carries them.
// Fields the page does not expose stay at their zero value.
func parseSellerInfo(sel *goquery.Selection) *models.SellerInfo {
	text, ok := extract.FirstText(sel, []string{".s-item__seller-info-text", ".s-item__seller-info"})
	if !ok {
		return nil
	}

	info := &models.SellerInfo{}
	// Typical format: "seller_name (12,345) 99.1%"
	if idx := strings.Index(text, "("); idx > 0 {
		info.Username = strings.TrimSpace(text[:idx])
		rest := text[idx:]
		info.FeedbackCount = extract.ExtractSoldCount(rest)
		if pct := strings.Index(rest, "%"); pct > 0 {
			start := strings.LastIndexAny(rest[:pct], " )")
			if start >= 0 && start+1 < pct {
				if v, err := strconv.ParseFloat(strings.TrimSpace(rest[start+1:pct]), 64); err == nil {
					info.FeedbackPercentage = v
				}
			}
		}
	} else {
		info.Username = strings.TrimSpace(text)
	}
	if badge := sel.Find(".s-item__etrs-badge, .s-item__top-rated-seller"); badge.Length() > 0 {
		info.IsTopRated = true
	}
	return info
}
