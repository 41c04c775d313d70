package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextSimilarity(t *testing.T) {
	t.Run("identical titles score one", func(t *testing.T) {
		score := TextSimilarity("Apple AirPods Pro 2nd Generation", "Apple AirPods Pro 2nd Generation")
		assert.InDelta(t, 1.0, score, 0.001)
	})

	t.Run("case and boilerplate insensitive", func(t *testing.T) {
		score := TextSimilarity("apple airpods pro 2nd generation", "Apple AirPods Pro 2nd Generation Brand New Free Shipping")
		assert.InDelta(t, 1.0, score, 0.001)
	})

	t.Run("symmetric", func(t *testing.T) {
		a := "Sony WH-1000XM5 Wireless Noise Canceling Headphones"
		b := "Sony WH1000XM5 Headphones Black Wireless"
		assert.InDelta(t, TextSimilarity(a, b), TextSimilarity(b, a), 1e-9)
	})

	t.Run("empty input scores zero", func(t *testing.T) {
		assert.Zero(t, TextSimilarity("", "Sony Headphones"))
		assert.Zero(t, TextSimilarity("Sony Headphones", ""))
		assert.Zero(t, TextSimilarity("", ""))
	})

	t.Run("boilerplate-only title scores zero", func(t *testing.T) {
		assert.Zero(t, TextSimilarity("Brand New Free Shipping", "Sony Headphones Wireless"))
	})

	t.Run("unrelated titles score low", func(t *testing.T) {
		score := TextSimilarity("Cast Iron Skillet 12 Inch", "USB-C Charging Cable 6ft")
		assert.Less(t, score, 0.3)
	})

	t.Run("related titles outrank unrelated", func(t *testing.T) {
		related := TextSimilarity("Nike Air Max 90 White Size 10", "Nike Air Max 90 Mens White")
		unrelated := TextSimilarity("Nike Air Max 90 White Size 10", "Lego Star Wars Millennium Falcon")
		assert.Greater(t, related, unrelated)
		assert.Greater(t, related, 0.5)
	})

	t.Run("bounded", func(t *testing.T) {
		score := TextSimilarity("abc def ghi", "xyz uvw abc")
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	})
}

func TestJaccard(t *testing.T) {
	assert.InDelta(t, 1.0, jaccard("red mug", "mug red"), 0.001)
	assert.InDelta(t, 1.0/3.0, jaccard("red mug", "red cup"), 0.001)
	assert.Zero(t, jaccard("red mug", "blue cup"))
}

func TestSequenceRatio(t *testing.T) {
	assert.InDelta(t, 1.0, sequenceRatio("abcdef", "abcdef"), 0.001)
	assert.Zero(t, sequenceRatio("abc", "xyz"))

	// 2M/(len(a)+len(b)) with M the total matched characters.
	ratio := sequenceRatio("abcd", "bcde")
	assert.InDelta(t, 0.75, ratio, 0.001)
}
