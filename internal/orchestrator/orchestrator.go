package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/arbiscout/arbiscout/internal/market"
	"github.com/arbiscout/arbiscout/internal/models"
	"github.com/arbiscout/arbiscout/internal/scraper"
)

// MarketAnalyzer is the primary research strategy.
type MarketAnalyzer interface {
	Analyze(ctx context.Context, criteria models.SearchCriteria) (*models.MarketAnalysis, error)
}

// ProductScraper is the fallback strategy: plain sold-listing scraping.
type ProductScraper interface {
	Search(ctx context.Context, criteria models.SearchCriteria) ([]models.EbayProduct, error)
}

// ResultStore persists every scan outcome and returns an opaque result ID.
type ResultStore interface {
	StoreScanResult(ctx context.Context, result *models.ScanResult) (string, error)
}

// Orchestrator runs a scan end to end: primary research with retries,
// fallback scraping, status bookkeeping, and unconditional persistence.
type Orchestrator struct {
	analyzer MarketAnalyzer
	scraper  ProductScraper
	store    ResultStore
	retryCfg RetryConfig
	logger   *slog.Logger
}

func New(analyzer MarketAnalyzer, productScraper ProductScraper, store ResultStore, retryCfg RetryConfig) *Orchestrator {
	if retryCfg.MaxAttempts < 1 {
		retryCfg = DefaultRetryConfig()
	}
	return &Orchestrator{
		analyzer: analyzer,
		scraper:  productScraper,
		store:    store,
		retryCfg: retryCfg,
		logger:   slog.Default().With("component", "orchestrator"),
	}
}

// Scan executes the two-step strategy and always persists the result,
// even when both steps fail. The returned ScanResult carries the stored
// result ID; the error reflects the terminal failure, if any.
//
// Bot detection during the primary step aborts the whole scan without
// trying the fallback, since the fallback would hit the same protection
// from the same session.
func (o *Orchestrator) Scan(ctx context.Context, criteria models.SearchCriteria) (*models.ScanResult, error) {
	start := time.Now()
	result := &models.ScanResult{
		Criteria:  criteria,
		Status:    models.StatusInProgress,
		CreatedAt: start.UTC(),
	}

	if err := criteria.Validate(); err != nil {
		o.finish(ctx, result, start, err)
		return result, err
	}

	o.logger.Info("scan started", "keyword", criteria.Keyword, "category", criteria.CategoryID)

	// The whole two-step workflow retries as one unit: a failed attempt
	// reruns primary and fallback together.
	data, err := retry(ctx, o.retryCfg, o.logger, "scan_workflow", func(ctx context.Context) (scanData, error) {
		return o.runWorkflow(ctx, criteria)
	})
	if err != nil {
		o.finish(ctx, result, start, err)
		return result, err
	}

	result.Products = data.products
	result.MarketAnalysis = data.analysis
	if result.MarketAnalysis == nil {
		result.MarketAnalysis = market.ComputeFromListings(criteria.Keyword, data.products)
	}

	o.finish(ctx, result, start, nil)
	o.logger.Info("scan completed",
		"keyword", criteria.Keyword,
		"products", len(result.Products),
		"duration", result.Duration,
		"result_id", result.ResultID)
	return result, nil
}

// scanData is the outcome of one workflow attempt.
type scanData struct {
	analysis *models.MarketAnalysis
	products []models.EbayProduct
}

// runWorkflow executes one attempt of the two-step strategy: the primary
// research page, then the public sold-listing scrape. Bot detection and
// rate limiting propagate so the retry loop can stop; any other primary
// failure just hands over to the fallback.
func (o *Orchestrator) runWorkflow(ctx context.Context, criteria models.SearchCriteria) (scanData, error) {
	var data scanData

	analysis, primaryErr := o.analyzer.Analyze(ctx, criteria)
	switch {
	case primaryErr == nil:
		data.analysis = analysis
	case errors.Is(primaryErr, scraper.ErrBotDetected), errors.Is(primaryErr, scraper.ErrRateLimited):
		return data, primaryErr
	default:
		o.logger.Warn("primary strategy failed, falling back to scraping", "error", primaryErr)
	}

	products, scrapeErr := o.scraper.Search(ctx, criteria)
	if scrapeErr != nil {
		if data.analysis == nil {
			return scanData{}, scrapeErr
		}
		o.logger.Warn("fallback scrape failed, keeping analysis-only result", "error", scrapeErr)
		return data, nil
	}
	data.products = products

	if len(data.products) == 0 && data.analysis == nil {
		return scanData{}, scraper.ErrNoResults
	}
	return data, nil
}

// finish stamps the terminal status and persists the result. Persistence
// happens on every path so failed scans leave an audit trail too.
func (o *Orchestrator) finish(ctx context.Context, result *models.ScanResult, start time.Time, scanErr error) {
	completed := time.Now()
	result.Duration = completed.Sub(start).Seconds()
	result.CompletedAt = &completed

	switch {
	case scanErr == nil:
		result.Status = models.StatusCompleted
	case errors.Is(scanErr, scraper.ErrRateLimited):
		result.Status = models.StatusRateLimited
		result.ErrorMessage = scanErr.Error()
	default:
		result.Status = models.StatusFailed
		result.ErrorMessage = scanErr.Error()
	}

	if o.store == nil {
		return
	}
	// Persist with a detached timeout so a canceled scan still gets stored.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	id, err := o.store.StoreScanResult(storeCtx, result)
	if err != nil {
		o.logger.Error("failed to persist scan result", "error", err)
		return
	}
	result.ResultID = id
}
