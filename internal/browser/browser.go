package browser

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// botMarkers are content fragments that indicate a marketplace served a
// bot challenge instead of real results. Matching is case-insensitive.
var botMarkers = []string{
	"captcha",
	"robot",
	"blocked",
	"security measure",
}

// rateLimitMarkers indicate the marketplace is throttling the session
// rather than challenging it. Matching is case-insensitive.
var rateLimitMarkers = []string{
	"too many requests",
	"rate limit exceeded",
	"429 too many requests",
}

type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "en-US,en;q=0.9",
		TimezoneID:     "America/New_York",
		Locale:         "en-US",
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Encoding": "gzip, deflate, br",
			"DNT":             "1",
		},
	}
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	defaults := DefaultOptions()
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.ViewportWidth <= 0 || opts.ViewportHeight <= 0 {
		opts.ViewportWidth = defaults.ViewportWidth
		opts.ViewportHeight = defaults.ViewportHeight
	}
	if opts.ExtraHeaders == nil {
		opts.ExtraHeaders = defaults.ExtraHeaders
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--window-size=1920,1080",
			"--start-maximized",
			"--user-agent=" + opts.UserAgent,
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: opts.ExtraHeaders,
	}

	context, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: context,
		opts:    opts,
		logger:  slog.Default().With("component", "browser"),
	}, nil
}

func (b *Browser) NewPage() (playwright.Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	return page, nil
}

func (b *Browser) Context() playwright.BrowserContext {
	return b.context
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}

// Navigate loads the URL, waits for the DOM, and returns the page HTML.
func (b *Browser) Navigate(page playwright.Page, url string) (string, error) {
	_, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(b.opts.Timeout.Milliseconds())),
	})
	if err != nil {
		return "", fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	content, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return content, nil
}

// NavigateWithRetry retries transient navigation failures with a linear
// backoff between attempts.
func (b *Browser) NavigateWithRetry(page playwright.Page, url string, maxRetries int) (string, error) {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			b.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			time.Sleep(time.Duration(i+1) * time.Second)
		}

		content, err := b.Navigate(page, url)
		if err == nil {
			return content, nil
		}

		lastErr = err
		b.logger.Error("navigation failed", "error", err, "attempt", i+1)
	}

	return "", fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

// DetectBotProtection reports whether the page content looks like a bot
// challenge rather than a results page.
func DetectBotProtection(content string) bool {
	return containsMarker(content, botMarkers)
}

// DetectRateLimit reports whether the page content looks like a throttle
// response.
func DetectRateLimit(content string) bool {
	return containsMarker(content, rateLimitMarkers)
}

func containsMarker(content string, markers []string) bool {
	lower := strings.ToLower(content)
	for _, marker := range markers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// HumanizeInteraction adds human-like mouse movement and scrolling so a
// page session looks less automated.
func (b *Browser) HumanizeInteraction(page playwright.Page) error {
	for i := 0; i < 3; i++ {
		x := float64(100 + rand.Intn(800))
		y := float64(100 + rand.Intn(500))
		page.Mouse().Move(x, y)
		time.Sleep(time.Millisecond * time.Duration(200+i*100))
	}

	page.Evaluate(`window.scrollBy(0, Math.random() * 300)`)
	time.Sleep(time.Second)

	return nil
}
