package models

import (
	"fmt"
	"time"
)

// ScanStatus tracks the lifecycle of one orchestrated scan.
type ScanStatus string

const (
	StatusPending     ScanStatus = "pending"
	StatusInProgress  ScanStatus = "in_progress"
	StatusCompleted   ScanStatus = "completed"
	StatusFailed      ScanStatus = "failed"
	StatusRateLimited ScanStatus = "rate_limited"
)

// SellerInfo holds best-effort seller data scraped from a result node.
// Feedback figures stay zero when the listing does not expose them.
type SellerInfo struct {
	Username           string  `json:"username"`
	FeedbackPercentage float64 `json:"feedback_percentage"`
	FeedbackCount      int     `json:"feedback_count"`
	IsTopRated         bool    `json:"is_top_rated"`
}

// EbayProduct is one normalized eBay listing.
type EbayProduct struct {
	Title     string      `json:"title"`
	Price     float64     `json:"price"`
	SoldCount int         `json:"sold_count"`
	URL       string      `json:"url"`
	ImageURL  string      `json:"image_url,omitempty"`
	Condition string      `json:"condition"`
	Shipping  string      `json:"shipping"`
	Seller    *SellerInfo `json:"seller,omitempty"`
}

// AmazonProduct is one normalized Amazon listing.
type AmazonProduct struct {
	Title        string   `json:"title"`
	Price        float64  `json:"price"`
	URL          string   `json:"url"`
	ImageURL     string   `json:"image_url,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	ReviewsCount *int     `json:"reviews_count,omitempty"`
	Prime        bool     `json:"prime"`
}

// ProductMatch pairs an eBay listing with its best Amazon candidate.
type ProductMatch struct {
	Ebay                EbayProduct   `json:"ebay"`
	Amazon              AmazonProduct `json:"amazon"`
	TextSimilarity      float64       `json:"text_similarity"`
	ImageSimilarity     float64       `json:"image_similarity"`
	OverallConfidence   float64       `json:"overall_confidence"`
	ProfitMarginPercent float64       `json:"profit_margin_percent"`
	PriceDifference     float64       `json:"price_difference"`
}

// ProfitMarginPercent computes (sell - buy) / buy * 100.
// eBay is the sell side, Amazon the buy side.
func ProfitMarginPercent(ebayPrice, amazonPrice float64) float64 {
	if amazonPrice <= 0 {
		return 0
	}
	return ((ebayPrice - amazonPrice) / amazonPrice) * 100
}

// SearchCriteria describes one scan request.
type SearchCriteria struct {
	Keyword           string  `json:"keyword"`
	CategoryID        string  `json:"category_id,omitempty"`
	MaxResults        int     `json:"max_results"`
	MinPrice          float64 `json:"min_price,omitempty"`
	MaxPrice          float64 `json:"max_price,omitempty"`
	MinSoldCount      int     `json:"min_sold_count,omitempty"`
	IncludeSellerInfo bool    `json:"include_seller_info"`
}

func (c *SearchCriteria) Validate() error {
	if c.Keyword == "" && c.CategoryID == "" {
		return fmt.Errorf("either keyword or category_id is required")
	}
	if c.MaxResults < 1 || c.MaxResults > 100 {
		return fmt.Errorf("max_results must be between 1 and 100, got %d", c.MaxResults)
	}
	if c.MinPrice < 0 || c.MaxPrice < 0 {
		return fmt.Errorf("price filters must not be negative")
	}
	if c.MaxPrice > 0 && c.MinPrice > c.MaxPrice {
		return fmt.Errorf("min_price %.2f exceeds max_price %.2f", c.MinPrice, c.MaxPrice)
	}
	return nil
}

// PriceRange is the observed sold-price spread for a keyword.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// TrendPoint is one day of market trend data.
type TrendPoint struct {
	Date           time.Time `json:"date"`
	AvgPrice       float64   `json:"avg_price"`
	SalesVolume    int       `json:"sales_volume"`
	ActiveListings int       `json:"active_listings"`
}

// MarketAnalysis aggregates market statistics from the primary
// (authenticated research) strategy.
type MarketAnalysis struct {
	Keyword          string       `json:"keyword"`
	AvgSoldPrice     float64      `json:"avg_sold_price"`
	PriceRange       PriceRange   `json:"price_range"`
	SellThroughRate  float64      `json:"sell_through_rate"`
	FreeShippingRate float64      `json:"free_shipping_rate"`
	SellerCount      int          `json:"seller_count"`
	TotalSales       int          `json:"total_sales"`
	Trend            []TrendPoint `json:"trend,omitempty"`
	LastUpdated      time.Time    `json:"last_updated"`
}

// ScanResult is the complete outcome of one orchestrated scan, persisted
// on every invocation regardless of success.
type ScanResult struct {
	ResultID       string          `json:"result_id,omitempty"`
	Criteria       SearchCriteria  `json:"criteria"`
	Products       []EbayProduct   `json:"products"`
	MarketAnalysis *MarketAnalysis `json:"market_analysis,omitempty"`
	Status         ScanStatus      `json:"status"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	Duration       float64         `json:"scraping_duration"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// Success reports whether the scan completed and found listings.
func (r *ScanResult) Success() bool {
	return r.Status == StatusCompleted && len(r.Products) > 0
}
