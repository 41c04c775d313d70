package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arbiscout/arbiscout/internal/database"
	"github.com/arbiscout/arbiscout/internal/jobs"
	"github.com/arbiscout/arbiscout/internal/matcher"
	"github.com/arbiscout/arbiscout/internal/models"
)

// ResultReader serves stored scan results.
type ResultReader interface {
	GetScanResult(ctx context.Context, id string) (*models.ScanResult, error)
	ListScanResults(ctx context.Context, limit int) ([]*models.ScanResult, error)
}

// AmazonSearcher runs Amazon offer searches for the match endpoint.
type AmazonSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]models.AmazonProduct, error)
}

type Handlers struct {
	jobs    *jobs.Manager
	results ResultReader
	amazon  AmazonSearcher
	matcher *matcher.Matcher
	logger  *slog.Logger
}

func NewHandlers(jobManager *jobs.Manager, results ResultReader, amazon AmazonSearcher, productMatcher *matcher.Matcher) *Handlers {
	return &Handlers{
		jobs:    jobManager,
		results: results,
		amazon:  amazon,
		matcher: productMatcher,
		logger:  slog.Default().With("component", "api"),
	}
}

// CreateScanRequest enqueues one scan job.
type CreateScanRequest struct {
	models.SearchCriteria
	Priority int `json:"priority"`
}

type CreateScanResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// CreateScan handles POST /scans.
func (h *Handlers) CreateScan(w http.ResponseWriter, r *http.Request) {
	var req CreateScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.MaxResults == 0 {
		req.MaxResults = 20
	}
	if err := req.SearchCriteria.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), req.SearchCriteria, req.Priority)
	if err != nil {
		h.logger.Error("failed to create scan job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create scan job")
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateScanResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// GetScan handles GET /scans/{jobID}.
func (h *Handlers) GetScan(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		h.respondError(w, http.StatusNotFound, "scan job not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get scan job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get scan job")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

// ListScans handles GET /scans.
func (h *Handlers) ListScans(w http.ResponseWriter, r *http.Request) {
	scanJobs, err := h.jobs.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list scan jobs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list scan jobs")
		return
	}

	h.respondJSON(w, http.StatusOK, scanJobs)
}

// GetResult handles GET /results/{resultID}.
func (h *Handlers) GetResult(w http.ResponseWriter, r *http.Request) {
	resultID := chi.URLParam(r, "resultID")

	result, err := h.results.GetScanResult(r.Context(), resultID)
	if errors.Is(err, database.ErrResultNotFound) {
		h.respondError(w, http.StatusNotFound, "scan result not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get scan result", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get scan result")
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// ListResults handles GET /results.
func (h *Handlers) ListResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.results.ListScanResults(r.Context(), 50)
	if err != nil {
		h.logger.Error("failed to list scan results", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list scan results")
		return
	}

	h.respondJSON(w, http.StatusOK, results)
}

// MatchResponse is the arbitrage report for one stored scan result.
type MatchResponse struct {
	ResultID string                `json:"result_id"`
	Keyword  string                `json:"keyword"`
	Matches  []models.ProductMatch `json:"matches"`
}

// MatchResult handles POST /results/{resultID}/match: it searches Amazon
// for each scanned eBay title and returns the scored pairings.
func (h *Handlers) MatchResult(w http.ResponseWriter, r *http.Request) {
	resultID := chi.URLParam(r, "resultID")

	result, err := h.results.GetScanResult(r.Context(), resultID)
	if errors.Is(err, database.ErrResultNotFound) {
		h.respondError(w, http.StatusNotFound, "scan result not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get scan result", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get scan result")
		return
	}
	if len(result.Products) == 0 {
		h.respondError(w, http.StatusUnprocessableEntity, "scan result has no products to match")
		return
	}

	amazonProducts := h.collectAmazonCandidates(r.Context(), result.Products)
	if len(amazonProducts) == 0 {
		h.respondError(w, http.StatusBadGateway, "no Amazon offers found for scanned products")
		return
	}

	matches, err := h.matcher.Match(r.Context(), result.Products, amazonProducts)
	if err != nil {
		h.logger.Error("matching failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "matching failed")
		return
	}

	h.respondJSON(w, http.StatusOK, MatchResponse{
		ResultID: resultID,
		Keyword:  result.Criteria.Keyword,
		Matches:  matches,
	})
}

// collectAmazonCandidates searches Amazon once per eBay title and merges
// the offers, deduplicated by URL. Individual search failures are logged
// and skipped so one blocked query does not sink the whole report.
func (h *Handlers) collectAmazonCandidates(ctx context.Context, ebayProducts []models.EbayProduct) []models.AmazonProduct {
	seen := make(map[string]struct{})
	var candidates []models.AmazonProduct

	for _, product := range ebayProducts {
		offers, err := h.amazon.Search(ctx, product.Title, 10)
		if err != nil {
			h.logger.Warn("amazon search failed", "title", product.Title, "error", err)
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
	return candidates
}

// GetStats handles GET /stats.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.jobs.GetStats(r.Context())
	if err != nil {
		h.logger.Error("failed to get stats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
