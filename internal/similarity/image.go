package similarity

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
)

const (
	// neutralImageScore is substituted when image matching is disabled or an
	// image URL is missing, so the matcher is not biased either way.
	neutralImageScore = 0.5

	// phashBits is the size of the perceptual hash, and therefore the
	// maximum possible Hamming distance.
	phashBits = 64

	maxImageBytes = 10 * 1024 * 1024
)

// ImageMatcher downloads product images and scores their similarity with a
// perceptual hash plus local-feature matching. All fetch and decode
// failures degrade to a 0.0 score for that pair, never an error.
type ImageMatcher struct {
	client  *http.Client
	enabled bool
	logger  *slog.Logger
}

// NewImageMatcher builds a matcher with a bounded-timeout HTTP client.
// When enabled is false, Similarity always returns the neutral score.
func NewImageMatcher(enabled bool, timeout time.Duration) *ImageMatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ImageMatcher{
		client:  &http.Client{Timeout: timeout},
		enabled: enabled,
		logger:  slog.Default().With("component", "image_matcher"),
	}
}

// Enabled reports whether image matching is active.
func (m *ImageMatcher) Enabled() bool {
	return m != nil && m.enabled
}

// Similarity scores two product images in [0, 1]:
// 0.7 x perceptual-hash similarity + 0.3 x feature-match similarity.
func (m *ImageMatcher) Similarity(ctx context.Context, url1, url2 string) float64 {
	if !m.Enabled() || url1 == "" || url2 == "" {
		return neutralImageScore
	}

	img1, err := m.download(ctx, url1)
	if err != nil {
		m.logger.Warn("failed to fetch image", "url", url1, "error", err)
		return 0.0
	}
	img2, err := m.download(ctx, url2)
	if err != nil {
		m.logger.Warn("failed to fetch image", "url", url2, "error", err)
		return 0.0
	}

	hashSim := hashSimilarity(img1, img2)
	featSim := featureSimilarity(img1, img2)

	return clamp01(hashSim*0.7 + featSim*0.3)
}

func (m *ImageMatcher) download(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "image/*,*/*")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download status: %d", resp.StatusCode)
	}

	img, _, err := image.Decode(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return img, nil
}

// hashSimilarity converts the perceptual-hash Hamming distance into a
// similarity in [0, 1]. Hash failures count as no similarity.
func hashSimilarity(img1, img2 image.Image) float64 {
	h1, err := goimagehash.PerceptionHash(img1)
	if err != nil {
		return 0.0
	}
	h2, err := goimagehash.PerceptionHash(img2)
	if err != nil {
		return 0.0
	}
	dist, err := h1.Distance(h2)
	if err != nil {
		return 0.0
	}
	return clamp01(1.0 - float64(dist)/float64(phashBits))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
