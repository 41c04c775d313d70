package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/arbiscout/arbiscout/internal/models"
	"github.com/arbiscout/arbiscout/internal/similarity"
)

const (
	textWeight  = 0.6
	imageWeight = 0.4
)

// Config controls which candidate pairs survive matching.
type Config struct {
	MinTextSimilarity      float64
	MinConfidence          float64
	MinProfitMarginPercent float64
}

// DefaultConfig returns the thresholds used when the caller does not
// supply any. The confidence gate defaults to off: the text-similarity
// and profit-margin thresholds alone decide, and MinConfidence exists as
// an opt-in extra cut for image-weighted matching.
func DefaultConfig() Config {
	return Config{
		MinTextSimilarity:      0.3,
		MinConfidence:          0,
		MinProfitMarginPercent: 20.0,
	}
}

// Validate rejects thresholds outside their usable ranges.
func (c Config) Validate() error {
	if c.MinTextSimilarity < 0 || c.MinTextSimilarity > 1 {
		return fmt.Errorf("min text similarity must be within [0, 1], got %v", c.MinTextSimilarity)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be within [0, 1], got %v", c.MinConfidence)
	}
	if c.MinProfitMarginPercent < 0 {
		return fmt.Errorf("min profit margin must not be negative, got %v", c.MinProfitMarginPercent)
	}
	return nil
}

// Matcher pairs sold eBay listings with Amazon offers and scores each
// pairing. One eBay product yields at most one match, its best-scoring
// Amazon counterpart.
type Matcher struct {
	cfg    Config
	images *similarity.ImageMatcher
	logger *slog.Logger
}

// New builds a Matcher. The image matcher may be disabled, in which case
// confidence is driven by text similarity alone.
func New(cfg Config, images *similarity.ImageMatcher) (*Matcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matcher config: %w", err)
	}
	return &Matcher{
		cfg:    cfg,
		images: images,
		logger: slog.Default().With("component", "matcher"),
	}, nil
}

// Match scores every eBay product against every Amazon product and keeps
// the best pairing per eBay product, subject to the configured thresholds.
// Results are ordered by descending confidence.
func (m *Matcher) Match(ctx context.Context, ebayProducts []models.EbayProduct, amazonProducts []models.AmazonProduct) ([]models.ProductMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matches := make([]models.ProductMatch, 0, len(ebayProducts))
	for i := range ebayProducts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if match, ok := m.bestMatch(ctx, &ebayProducts[i], amazonProducts); ok {
			matches = append(matches, match)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].OverallConfidence > matches[j].OverallConfidence
	})

	m.logger.Info("matching completed",
		"ebay_products", len(ebayProducts),
		"amazon_products", len(amazonProducts),
		"matches", len(matches))
	return matches, nil
}

// bestMatch scans the Amazon candidates for one eBay product. The first
// candidate to reach a given confidence wins ties; later candidates must
// score strictly higher to replace it.
func (m *Matcher) bestMatch(ctx context.Context, ebay *models.EbayProduct, amazonProducts []models.AmazonProduct) (models.ProductMatch, bool) {
	var (
		best  models.ProductMatch
		found bool
	)

	for i := range amazonProducts {
		amazon := &amazonProducts[i]

		textSim := similarity.TextSimilarity(ebay.Title, amazon.Title)
		if textSim < m.cfg.MinTextSimilarity {
			continue
		}

		confidence := textSim
		imageSim := 0.5
		if m.images.Enabled() {
			imageSim = m.images.Similarity(ctx, ebay.ImageURL, amazon.ImageURL)
			confidence = textSim*textWeight + imageSim*imageWeight
		}
		if confidence < m.cfg.MinConfidence {
			continue
		}

		margin := models.ProfitMarginPercent(ebay.Price, amazon.Price)
		if margin < m.cfg.MinProfitMarginPercent {
			continue
		}

		if !found || confidence > best.OverallConfidence {
			best = models.ProductMatch{
				Ebay:                *ebay,
				Amazon:              *amazon,
				TextSimilarity:      textSim,
				ImageSimilarity:     imageSim,
				OverallConfidence:   confidence,
				ProfitMarginPercent: margin,
				PriceDifference:     ebay.Price - amazon.Price,
			}
			found = true
		}
	}
	return best, found
}

// FilterProfitable keeps matches whose margin reaches minMarginPercent.
func FilterProfitable(matches []models.ProductMatch, minMarginPercent float64) []models.ProductMatch {
	filtered := make([]models.ProductMatch, 0, len(matches))
	for _, match := range matches {
		if match.ProfitMarginPercent >= minMarginPercent {
			filtered = append(filtered, match)
		}
	}
	return filtered
}
