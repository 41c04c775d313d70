package scraper

import (
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiscout/arbiscout/internal/models"
)

func ebayListing(title, price, sold string) string {
	return fmt.Sprintf(`
		<li class="s-item">
			<a class="s-item__link" href="https://www.ebay.com/itm/123456"></a>
			<div class="s-item__info">
				<div class="s-item__title"><span>%s</span></div>
				<span class="s-item__price">%s</span>
				<span class="SECONDARY_INFO">Pre-Owned</span>
				<span class="s-item__shipping">Free shipping</span>
				<span class="s-item__quantitySold">%s</span>
			</div>
			<div class="s-item__image"><img src="https://i.ebayimg.com/thumbs/123.jpg"/></div>
		</li>`, title, price, sold)
}

func ebayResultsPage(listings ...string) string {
	return fmt.Sprintf(`<html><body><ul class="srp-results">%s</ul></body></html>`,
		strings.Join(listings, "\n"))
}

func TestEbayBuildSearchURL(t *testing.T) {
	s := &EbayScraper{}

	raw := s.BuildSearchURL(models.SearchCriteria{
		Keyword:    "vintage camera",
		CategoryID: "625",
		MaxResults: 20,
		MinPrice:   10,
		MaxPrice:   99.5,
	})

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/sch/i.html", u.Path)

	q := u.Query()
	assert.Equal(t, "vintage camera", q.Get("_nkw"))
	assert.Equal(t, "625", q.Get("_sacat"))
	assert.Equal(t, "1", q.Get("LH_Sold"))
	assert.Equal(t, "1", q.Get("LH_Complete"))
	assert.Equal(t, "12", q.Get("_sop"))
	assert.Equal(t, "10.00", q.Get("_udlo"))
	assert.Equal(t, "99.50", q.Get("_udhi"))
}

func TestEbayBuildSearchURL_OmitsUnsetPriceBounds(t *testing.T) {
	s := &EbayScraper{}

	u, err := url.Parse(s.BuildSearchURL(models.SearchCriteria{Keyword: "lego", MaxResults: 10}))
	require.NoError(t, err)

	q := u.Query()
	assert.False(t, q.Has("_udlo"))
	assert.False(t, q.Has("_udhi"))
	assert.False(t, q.Has("_sacat"))
}

func TestEbayParseSearchHTML(t *testing.T) {
	s := NewEbayScraper(nil, nil)
	html := ebayResultsPage(
		ebayListing("Canon AE-1 35mm Film Camera with 50mm Lens", "$129.99", "34 sold"),
		ebayListing("Nikon FM2 Film Camera Body Black Tested", "$210.00", "87 sold"),
	)

	products, err := s.ParseSearchHTML(html, models.SearchCriteria{Keyword: "film camera", MaxResults: 10})
	require.NoError(t, err)
	require.Len(t, products, 2)

	// Highest sold count must come first.
	assert.Equal(t, "Nikon FM2 Film Camera Body Black Tested", products[0].Title)
	assert.Equal(t, 87, products[0].SoldCount)
	assert.InDelta(t, 210.00, products[0].Price, 0.001)

	second := products[1]
	assert.Equal(t, "Canon AE-1 35mm Film Camera with 50mm Lens", second.Title)
	assert.Equal(t, "https://www.ebay.com/itm/123456", second.URL)
	assert.Equal(t, "Pre-Owned", second.Condition)
	assert.Equal(t, "Free shipping", second.Shipping)
	assert.Equal(t, "https://i.ebayimg.com/thumbs/123.jpg", second.ImageURL)
	assert.Equal(t, 34, second.SoldCount)
}

func TestEbayParseSearchHTML_SkipsPlaceholderListing(t *testing.T) {
	s := NewEbayScraper(nil, nil)
	html := ebayResultsPage(
		ebayListing("Shop on eBay", "$20.00", ""),
		ebayListing("Sony WH-1000XM4 Wireless Headphones", "$179.99", "12 sold"),
	)

	products, err := s.ParseSearchHTML(html, models.SearchCriteria{Keyword: "headphones", MaxResults: 10})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Sony WH-1000XM4 Wireless Headphones", products[0].Title)
}

func TestEbayParseSearchHTML_SkipsListingWithoutPrice(t *testing.T) {
	s := NewEbayScraper(nil, nil)
	broken := `
		<li class="s-item">
			<div class="s-item__title"><span>Vintage Omega Seamaster Watch Automatic</span></div>
		</li>`
	html := ebayResultsPage(broken, ebayListing("Seiko 5 Automatic Watch Stainless Steel", "$85.00", "5 sold"))

	products, err := s.ParseSearchHTML(html, models.SearchCriteria{Keyword: "watch", MaxResults: 10})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Seiko 5 Automatic Watch Stainless Steel", products[0].Title)
}

func TestEbayParseSearchHTML_MinSoldCountFilter(t *testing.T) {
	s := NewEbayScraper(nil, nil)
	html := ebayResultsPage(
		ebayListing("Instant Pot Pressure Cooker 6 Quart", "$59.00", "3 sold"),
		ebayListing("Ninja Air Fryer 4 Quart Black Kitchen", "$75.00", "42 sold"),
	)

	products, err := s.ParseSearchHTML(html, models.SearchCriteria{
		Keyword:      "kitchen",
		MaxResults:   10,
		MinSoldCount: 10,
	})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 42, products[0].SoldCount)
}

func TestEbayParseSearchHTML_RespectsMaxResults(t *testing.T) {
	s := NewEbayScraper(nil, nil)

	var listings []string
	for i := 0; i < 8; i++ {
		listings = append(listings, ebayListing(
			fmt.Sprintf("Mechanical Keyboard RGB Backlit Model %d", i),
			"$49.99",
			fmt.Sprintf("%d sold", i+1)))
	}

	products, err := s.ParseSearchHTML(ebayResultsPage(listings...), models.SearchCriteria{
		Keyword:    "keyboard",
		MaxResults: 3,
	})
	require.NoError(t, err)
	assert.Len(t, products, 3)
}

func TestEbayParseSearchHTML_SellerInfo(t *testing.T) {
	s := NewEbayScraper(nil, nil)
	listing := `
		<li class="s-item">
			<div class="s-item__title"><span>Apple AirPods Pro 2nd Generation Sealed</span></div>
			<span class="s-item__price">$189.00</span>
			<span class="s-item__seller-info-text">techdeals_usa (12,345) 99.1%</span>
			<span class="s-item__etrs-badge"></span>
		</li>`

	products, err := s.ParseSearchHTML(ebayResultsPage(listing), models.SearchCriteria{
		Keyword:           "airpods",
		MaxResults:        5,
		IncludeSellerInfo: true,
	})
	require.NoError(t, err)
	require.Len(t, products, 1)

	seller := products[0].Seller
	require.NotNil(t, seller)
	assert.Equal(t, "techdeals_usa", seller.Username)
	assert.Equal(t, 12345, seller.FeedbackCount)
	assert.InDelta(t, 99.1, seller.FeedbackPercentage, 0.001)
	assert.True(t, seller.IsTopRated)
}

func TestEbayParseSearchHTML_NoSellerInfoWhenNotRequested(t *testing.T) {
	s := NewEbayScraper(nil, nil)
	html := ebayResultsPage(ebayListing("Bose SoundLink Bluetooth Speaker Mini", "$99.00", "8 sold"))

	products, err := s.ParseSearchHTML(html, models.SearchCriteria{Keyword: "speaker", MaxResults: 5})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Nil(t, products[0].Seller)
}

func TestEbayParseSearchHTML_URLNeverEmpty(t *testing.T) {
	s := NewEbayScraper(nil, nil)
	noLink := `
		<li class="s-item">
			<div class="s-item__title"><span>Cast Iron Dutch Oven 5 Quart Enameled</span></div>
			<span class="s-item__price">$64.00</span>
		</li>`
	relativeLink := `
		<li class="s-item">
			<a class="s-item__link" href="/itm/987654"></a>
			<div class="s-item__title"><span>Stainless Steel Stock Pot 12 Quart</span></div>
			<span class="s-item__price">$38.00</span>
		</li>`

	products, err := s.ParseSearchHTML(ebayResultsPage(noLink, relativeLink), models.SearchCriteria{
		Keyword:    "cookware",
		MaxResults: 10,
	})
	require.NoError(t, err)
	require.Len(t, products, 2)

	byTitle := map[string]string{}
	for _, p := range products {
		byTitle[p.Title] = p.URL
	}
	// Missing link falls back to the marketplace root, relative hrefs
	// resolve against it.
	assert.Equal(t, "https://www.ebay.com", byTitle["Cast Iron Dutch Oven 5 Quart Enameled"])
	assert.Equal(t, "https://www.ebay.com/itm/987654", byTitle["Stainless Steel Stock Pot 12 Quart"])
}

func TestEbayParseSearchHTML_EmptyPage(t *testing.T) {
	s := NewEbayScraper(nil, nil)

	products, err := s.ParseSearchHTML("<html><body></body></html>", models.SearchCriteria{
		Keyword:    "nothing",
		MaxResults: 5,
	})
	require.NoError(t, err)
	assert.Empty(t, products)
}
