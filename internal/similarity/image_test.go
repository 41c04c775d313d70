package similarity

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(t *testing.T, seed int64) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func imageServer(t *testing.T, images map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := images[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestImageMatcher_Disabled(t *testing.T) {
	m := NewImageMatcher(false, time.Second)
	score := m.Similarity(context.Background(), "http://example.com/a.png", "http://example.com/b.png")
	assert.InDelta(t, neutralImageScore, score, 0.001)
}

func TestImageMatcher_MissingURLs(t *testing.T) {
	m := NewImageMatcher(true, time.Second)
	ctx := context.Background()

	assert.InDelta(t, neutralImageScore, m.Similarity(ctx, "", "http://example.com/b.png"), 0.001)
	assert.InDelta(t, neutralImageScore, m.Similarity(ctx, "http://example.com/a.png", ""), 0.001)
}

func TestImageMatcher_FetchFailure(t *testing.T) {
	srv := imageServer(t, map[string][]byte{"/a.png": testImage(t, 1)})
	m := NewImageMatcher(true, 2*time.Second)

	score := m.Similarity(context.Background(), srv.URL+"/a.png", srv.URL+"/missing.png")
	assert.Zero(t, score)
}

func TestImageMatcher_DecodeFailure(t *testing.T) {
	srv := imageServer(t, map[string][]byte{
		"/a.png":    testImage(t, 1),
		"/junk.png": []byte("not an image at all"),
	})
	m := NewImageMatcher(true, 2*time.Second)

	score := m.Similarity(context.Background(), srv.URL+"/a.png", srv.URL+"/junk.png")
	assert.Zero(t, score)
}

func TestImageMatcher_IdenticalImages(t *testing.T) {
	img := testImage(t, 42)
	srv := imageServer(t, map[string][]byte{"/a.png": img, "/b.png": img})
	m := NewImageMatcher(true, 5*time.Second)

	score := m.Similarity(context.Background(), srv.URL+"/a.png", srv.URL+"/b.png")

	// Hash similarity alone contributes 0.7 for identical images.
	assert.GreaterOrEqual(t, score, 0.69)
	assert.LessOrEqual(t, score, 1.0)
}

func TestImageMatcher_DifferentImages(t *testing.T) {
	imgA := testImage(t, 1)
	imgB := testImage(t, 2)
	same := testImage(t, 1)
	srv := imageServer(t, map[string][]byte{"/a.png": imgA, "/b.png": imgB, "/c.png": same})
	m := NewImageMatcher(true, 5*time.Second)
	ctx := context.Background()

	identical := m.Similarity(ctx, srv.URL+"/a.png", srv.URL+"/c.png")
	different := m.Similarity(ctx, srv.URL+"/a.png", srv.URL+"/b.png")
	assert.Greater(t, identical, different)
}
