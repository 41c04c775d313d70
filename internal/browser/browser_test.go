package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.Headless)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 1920, opts.ViewportWidth)
	assert.Equal(t, 1080, opts.ViewportHeight)
	assert.Equal(t, "en-US", opts.Locale)
}

func TestDetectBotProtection(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		detected bool
	}{
		{"captcha page", "<html><body>Please solve this CAPTCHA to continue</body></html>", true},
		{"robot check", "<html><body>Are you a Robot?</body></html>", true},
		{"blocked", "<html><body>Your IP has been BLOCKED</body></html>", true},
		{"security measure", "<html><body>This is a Security Measure</body></html>", true},
		{"normal results", "<html><body><div class=\"s-item\">Nike Air Max</div></body></html>", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.detected, DetectBotProtection(tt.content))
		})
	}
}

func TestDetectRateLimit(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		detected bool
	}{
		{"too many requests", "<html><body>Too Many Requests</body></html>", true},
		{"rate limit exceeded", "<html><body>Rate limit exceeded, try again later</body></html>", true},
		{"429 page", "<html><body>429 Too Many Requests</body></html>", true},
		{"price containing 429", "<html><body><span class=\"s-item__price\">$429.00</span></body></html>", false},
		{"normal results", "<html><body><div class=\"s-item\">Nike Air Max</div></body></html>", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.detected, DetectRateLimit(tt.content))
		})
	}
}
