package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Matcher  MatcherConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ScraperConfig struct {
	RateLimitMin      time.Duration
	RateLimitMax      time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	RetryFactor       float64
	WindowMaxCalls    int
	WindowDuration    time.Duration
	DefaultMaxResults int
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type MatcherConfig struct {
	MinTextSimilarity      float64
	MinConfidence          float64
	MinProfitMarginPercent float64
	ImageMatching          bool
	ImageTimeout           time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getIntOrDefault("SERVER_PORT", 8080),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Scraper: ScraperConfig{
			RateLimitMin:      getDurationOrDefault("SCRAPER_RATE_LIMIT_MIN", 2*time.Second),
			RateLimitMax:      getDurationOrDefault("SCRAPER_RATE_LIMIT_MAX", 8*time.Second),
			MaxRetries:        getIntOrDefault("SCRAPER_MAX_RETRIES", 3),
			RetryBaseDelay:    getDurationOrDefault("SCRAPER_RETRY_BASE_DELAY", 2*time.Second),
			RetryMaxDelay:     getDurationOrDefault("SCRAPER_RETRY_MAX_DELAY", 60*time.Second),
			RetryFactor:       getFloatOrDefault("SCRAPER_RETRY_FACTOR", 2.0),
			WindowMaxCalls:    getIntOrDefault("SCRAPER_WINDOW_MAX_CALLS", 15),
			WindowDuration:    getDurationOrDefault("SCRAPER_WINDOW_DURATION", time.Minute),
			DefaultMaxResults: getIntOrDefault("SCRAPER_DEFAULT_MAX_RESULTS", 20),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "America/New_York"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Matcher: MatcherConfig{
			MinTextSimilarity:      getFloatOrDefault("MATCHER_MIN_TEXT_SIMILARITY", 0.3),
			MinConfidence:          getFloatOrDefault("MATCHER_MIN_CONFIDENCE", 0),
			MinProfitMarginPercent: getFloatOrDefault("MATCHER_MIN_PROFIT_MARGIN", 20.0),
			ImageMatching:          getBoolOrDefault("MATCHER_IMAGE_MATCHING", false),
			ImageTimeout:           getDurationOrDefault("MATCHER_IMAGE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "arbiscout"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.RateLimitMin > c.Scraper.RateLimitMax {
		return fmt.Errorf("SCRAPER_RATE_LIMIT_MIN cannot be greater than SCRAPER_RATE_LIMIT_MAX")
	}
	if c.Scraper.MaxRetries < 1 {
		return fmt.Errorf("SCRAPER_MAX_RETRIES must be at least 1")
	}
	if c.Scraper.WindowMaxCalls < 1 {
		return fmt.Errorf("SCRAPER_WINDOW_MAX_CALLS must be at least 1")
	}
	if c.Matcher.MinTextSimilarity < 0 || c.Matcher.MinTextSimilarity > 1 {
		return fmt.Errorf("MATCHER_MIN_TEXT_SIMILARITY must be within [0, 1]")
	}
	if c.Matcher.MinConfidence < 0 || c.Matcher.MinConfidence > 1 {
		return fmt.Errorf("MATCHER_MIN_CONFIDENCE must be within [0, 1]")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
