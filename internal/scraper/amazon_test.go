package scraper

import (
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amazonOffer(title, price string, prime bool) string {
	primeIcon := ""
	if prime {
		primeIcon = `<i class="a-icon-prime"></i>`
	}
	return fmt.Sprintf(`
		<div data-component-type="s-search-result">
			<h2><a href="/dp/B0TEST1234"><span>%s</span></a></h2>
			<span class="a-price"><span class="a-offscreen">%s</span></span>
			<img class="s-image" src="https://m.media-amazon.com/images/I/test.jpg"/>
			<span class="a-icon-alt">4.5 out of 5 stars</span>
			<span class="a-size-base s-underline-text">1,234</span>
			%s
		</div>`, title, price, primeIcon)
}

func amazonResultsPage(offers ...string) string {
	return fmt.Sprintf(`<html><body><div class="s-result-list">%s</div></body></html>`,
		strings.Join(offers, "\n"))
}

func TestAmazonBuildSearchURL(t *testing.T) {
	s := &AmazonScraper{}

	u, err := url.Parse(s.BuildSearchURL("bluetooth headphones"))
	require.NoError(t, err)

	assert.Equal(t, "www.amazon.com", u.Host)
	assert.Equal(t, "/s", u.Path)
	assert.Equal(t, "bluetooth headphones", u.Query().Get("k"))
}

func TestAmazonParseSearchHTML(t *testing.T) {
	s := NewAmazonScraper(nil, nil)
	html := amazonResultsPage(
		amazonOffer("Wireless Bluetooth Headphones Over Ear", "$35.99", true),
		amazonOffer("Bluetooth Earbuds Noise Cancelling Wireless", "$22.49", false),
	)

	products, err := s.ParseSearchHTML(html, 10)
	require.NoError(t, err)
	require.Len(t, products, 2)

	// Offers come back cheapest first.
	cheapest := products[0]
	assert.Equal(t, "Bluetooth Earbuds Noise Cancelling Wireless", cheapest.Title)
	assert.InDelta(t, 22.49, cheapest.Price, 0.001)
	assert.False(t, cheapest.Prime)

	offer := products[1]
	assert.Equal(t, "Wireless Bluetooth Headphones Over Ear", offer.Title)
	assert.Equal(t, "https://www.amazon.com/dp/B0TEST1234", offer.URL)
	assert.Equal(t, "https://m.media-amazon.com/images/I/test.jpg", offer.ImageURL)
	assert.True(t, offer.Prime)

	require.NotNil(t, offer.Rating)
	assert.InDelta(t, 4.5, *offer.Rating, 0.001)
	require.NotNil(t, offer.ReviewsCount)
	assert.Equal(t, 1234, *offer.ReviewsCount)
}

func TestAmazonParseSearchHTML_TruncatesToMaxResults(t *testing.T) {
	s := NewAmazonScraper(nil, nil)

	var offers []string
	for i := 0; i < 6; i++ {
		offers = append(offers, amazonOffer(
			fmt.Sprintf("USB C Charging Cable Braided Variant %d", i),
			fmt.Sprintf("$%d.99", 10+i),
			false))
	}

	products, err := s.ParseSearchHTML(amazonResultsPage(offers...), 3)
	require.NoError(t, err)
	require.Len(t, products, 3)

	// Truncation happens after the price sort, keeping the cheapest.
	assert.InDelta(t, 10.99, products[0].Price, 0.001)
	assert.InDelta(t, 12.99, products[2].Price, 0.001)
}

func TestAmazonParseSearchHTML_SkipsOfferWithoutPrice(t *testing.T) {
	s := NewAmazonScraper(nil, nil)
	broken := `
		<div data-component-type="s-search-result">
			<h2><a href="/dp/B0BROKEN"><span>Stainless Steel Water Bottle 32oz</span></a></h2>
		</div>`
	html := amazonResultsPage(broken, amazonOffer("Insulated Water Bottle 24oz Leak Proof", "$18.99", false))

	products, err := s.ParseSearchHTML(html, 10)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Insulated Water Bottle 24oz Leak Proof", products[0].Title)
}

func TestAmazonParseSearchHTML_URLNeverEmpty(t *testing.T) {
	s := NewAmazonScraper(nil, nil)
	noLink := `
		<div data-component-type="s-search-result">
			<h2><span>Collapsible Silicone Food Storage Containers</span></h2>
			<span class="a-price"><span class="a-offscreen">$15.99</span></span>
		</div>`

	products, err := s.ParseSearchHTML(amazonResultsPage(noLink), 10)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "https://www.amazon.com", products[0].URL)
}

func TestAmazonParseSearchHTML_EmptyPage(t *testing.T) {
	s := NewAmazonScraper(nil, nil)

	products, err := s.ParseSearchHTML("<html><body></body></html>", 10)
	require.NoError(t, err)
	assert.Empty(t, products)
}
