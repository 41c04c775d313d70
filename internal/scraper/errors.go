package scraper

import "errors"

var (
	ErrBotDetected    = errors.New("bot protection detected")
	ErrRateLimited    = errors.New("rate limited by marketplace")
	ErrNoResults      = errors.New("no products extracted")
	ErrInvalidSearch  = errors.New("invalid search criteria")
	ErrBrowserClosed  = errors.New("browser session closed")
	ErrPageLoadFailed = errors.New("page failed to load")
)
