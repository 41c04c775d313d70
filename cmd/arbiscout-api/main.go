package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/arbiscout/arbiscout/internal/api"
	"github.com/arbiscout/arbiscout/internal/browser"
	"github.com/arbiscout/arbiscout/internal/config"
	"github.com/arbiscout/arbiscout/internal/database"
	"github.com/arbiscout/arbiscout/internal/jobs"
	"github.com/arbiscout/arbiscout/internal/market"
	"github.com/arbiscout/arbiscout/internal/matcher"
	"github.com/arbiscout/arbiscout/internal/orchestrator"
	"github.com/arbiscout/arbiscout/internal/ratelimit"
	"github.com/arbiscout/arbiscout/internal/scraper"
	"github.com/arbiscout/arbiscout/internal/similarity"
	"github.com/arbiscout/arbiscout/pkg/logger"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	slogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		slogger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	b, err := browser.New(&browser.Options{
		Headless:       cfg.Browser.Headless,
		Timeout:        cfg.Browser.Timeout,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		TimezoneID:     cfg.Browser.TimezoneID,
		Locale:         cfg.Browser.Locale,
		ProxyServer:    cfg.Browser.ProxyServer,
	})
	if err != nil {
		slogger.Error("failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		slogger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	relay := database.NewRelay(db, redisClient, slogger, database.RelayConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
	})
	go func() {
		if err := relay.Start(ctx); err != nil && err != context.Canceled {
			slogger.Error("relay stopped with error", "error", err)
		}
	}()

	// Per-call adaptive delay plus the calls-per-window cap. Scrapers
	// record outcomes so the adaptive half backs off on challenges.
	limiter := ratelimit.NewMultiLimiter(
		ratelimit.NewAdaptiveRateLimiter(cfg.Scraper.RateLimitMin, cfg.Scraper.RateLimitMax),
		ratelimit.NewSlidingWindowLimiter(cfg.Scraper.WindowMaxCalls, cfg.Scraper.WindowDuration),
	)
	store := database.NewScanResultStore(db)

	orch := orchestrator.New(
		market.NewAnalyzer(b, limiter),
		scraper.NewEbayScraper(b, limiter),
		store,
		orchestrator.RetryConfig{
			MaxAttempts: cfg.Scraper.MaxRetries,
			BaseDelay:   cfg.Scraper.RetryBaseDelay,
			MaxDelay:    cfg.Scraper.RetryMaxDelay,
			Factor:      cfg.Scraper.RetryFactor,
		},
	)

	jobManager := jobs.NewManager(db, orch)
	go jobManager.StartWorker(ctx)

	images := similarity.NewImageMatcher(cfg.Matcher.ImageMatching, cfg.Matcher.ImageTimeout)
	productMatcher, err := matcher.New(matcher.Config{
		MinTextSimilarity:      cfg.Matcher.MinTextSimilarity,
		MinConfidence:          cfg.Matcher.MinConfidence,
		MinProfitMarginPercent: cfg.Matcher.MinProfitMarginPercent,
	}, images)
	if err != nil {
		slogger.Error("invalid matcher configuration", "error", err)
		os.Exit(1)
	}

	handlers := api.NewHandlers(jobManager, store, scraper.NewAmazonScraper(b, limiter), productMatcher)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		pendingCount, _ := relay.GetPendingCount(context.Background())
		deadLetterCount, _ := relay.GetDeadLetterCount(context.Background())

		health := map[string]interface{}{
			"status": "ok",
			"outbox": map[string]interface{}{
				"pending":     pendingCount,
				"dead_letter": deadLetterCount,
			},
		}

		status := http.StatusOK
		if pendingCount > 1000 {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetterCount > 100 {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}

		w.WriteHeader(status)
		json.NewEncoder(w).Encode(health)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scans", handlers.CreateScan)
		r.Get("/scans", handlers.ListScans)
		r.Get("/scans/{jobID}", handlers.GetScan)

		r.Get("/results", handlers.ListResults)
		r.Get("/results/{resultID}", handlers.GetResult)
		r.Post("/results/{resultID}/match", handlers.MatchResult)

		r.Get("/stats", handlers.GetStats)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		slogger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slogger.Error("server shutdown failed", "error", err)
		}
	}()

	slogger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slogger.Error("server failed", "error", err)
		os.Exit(1)
	}

	slogger.Info("server stopped")
}
