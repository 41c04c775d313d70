package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// minTitleLength guards against selector false positives: a "title" of ten
// characters or fewer is treated as a miss and the next selector is tried.
const minTitleLength = 10

var (
	priceDigitsRe = regexp.MustCompile(`[^\d.,]`)
	numberRe      = regexp.MustCompile(`\d+(?:\.\d+)?`)
	intRe         = regexp.MustCompile(`\d+`)
	whitespaceRe  = regexp.MustCompile(`\s+`)

	// Marketplace boilerplate stripped from titles before matching.
	boilerplateTerms = []string{
		"Brand New",
		"Free Shipping",
		"Fast Delivery",
		"Ships Free",
		"New with Tags",
		"NWT",
		"NIB",
		"New in Box",
		"Amazon's Choice",
	}
	boilerplateRes = compileBoilerplate()
)

func compileBoilerplate() []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(boilerplateTerms))
	for _, term := range boilerplateTerms {
		res = append(res, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(term)))
	}
	return res
}

// CleanTitle collapses whitespace and strips marketplace boilerplate.
func CleanTitle(title string) string {
	if title == "" {
		return ""
	}
	title = whitespaceRe.ReplaceAllString(strings.TrimSpace(title), " ")
	for _, re := range boilerplateRes {
		title = re.ReplaceAllString(title, "")
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(title, " "))
}

// CleanPriceString extracts a numeric price from raw text such as "$59.99"
// or "EUR 1.299,00" with US-style separators. Returns false when no number
// survives the cleanup.
func CleanPriceString(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	cleaned := priceDigitsRe.ReplaceAllString(raw, "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0, false
	}
	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

// ExtractSoldCount pulls the leading integer out of text like "25 sold" or
// "1,000+ sold". Returns 0 when no number is present.
func ExtractSoldCount(text string) int {
	if text == "" {
		return 0
	}
	m := intRe.FindString(strings.ReplaceAll(text, ",", ""))
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// ExtractNumber parses the first numeric token in text, ignoring thousand
// separators.
func ExtractNumber(text string) (float64, bool) {
	m := numberRe.FindString(strings.ReplaceAll(text, ",", ""))
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// NormalizeRating parses the first numeric token of a rating string and
// maps it onto a 0-5 scale. Sources that report 0-10 (value above 5) are
// halved.
func NormalizeRating(text string) (float64, bool) {
	m := numberRe.FindString(text)
	if m == "" {
		return 0, false
	}
	rating, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	if rating > 5 {
		rating = rating / 2
	}
	if rating < 0 {
		return 0, false
	}
	return rating, true
}

// AbsoluteURL resolves a scraped href against the marketplace base URL.
// Empty or unusable hrefs fall back to the base so product URLs are never
// empty.
func AbsoluteURL(href, base string) string {
	switch {
	case href == "":
		return base
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "/"):
		return strings.TrimSuffix(base, "/") + href
	default:
		return base
	}
}

// FirstText returns the first non-empty trimmed text produced by the ordered
// selector chain. Selector misses are skipped, never propagated.
func FirstText(sel *goquery.Selection, selectors []string) (string, bool) {
	for _, s := range selectors {
		text := strings.TrimSpace(sel.Find(s).First().Text())
		if text != "" {
			return text, true
		}
	}
	return "", false
}

// FirstAttr returns the first non-empty attribute value produced by the
// ordered selector chain.
func FirstAttr(sel *goquery.Selection, selectors []string, attr string) (string, bool) {
	for _, s := range selectors {
		if val, ok := sel.Find(s).First().Attr(attr); ok {
			val = strings.TrimSpace(val)
			if val != "" {
				return val, true
			}
		}
	}
	return "", false
}

// Title walks the selector chain and returns the first cleaned title longer
// than the minimum length. Shorter hits are treated as false positives and
// the next selector is tried.
func Title(sel *goquery.Selection, selectors []string) (string, bool) {
	for _, s := range selectors {
		raw := strings.TrimSpace(sel.Find(s).First().Text())
		if raw == "" {
			continue
		}
		cleaned := CleanTitle(raw)
		if len(cleaned) > minTitleLength {
			return cleaned, true
		}
	}
	return "", false
}

// Price walks the selector chain and returns the first parseable positive
// price. Zero and negative parses are rejected, not returned.
func Price(sel *goquery.Selection, selectors []string) (float64, bool) {
	for _, s := range selectors {
		raw := strings.TrimSpace(sel.Find(s).First().Text())
		if raw == "" {
			continue
		}
		if price, ok := CleanPriceString(raw); ok && price > 0 {
			return price, true
		}
	}
	return 0, false
}
