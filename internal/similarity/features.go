package similarity

import (
	"image"
	"math"
	"sort"

	"github.com/nfnt/resize"
)

const (
	featureImageSize  = 128
	maxKeypoints      = 64
	descriptorPatch   = 8
	ratioTestMax      = 0.7
	cornerNMSRadius   = 4
	cornerMinResponse = 1e-4
)

type keypoint struct {
	x, y     int
	response float64
}

type descriptor [descriptorPatch * descriptorPatch]float64

// featureSimilarity matches local keypoints between two images and returns
// the fraction of good matches relative to the smaller keypoint set. It is
// a coarse structural check that complements the global perceptual hash.
func featureSimilarity(img1, img2 image.Image) float64 {
	g1 := toGray(img1)
	g2 := toGray(img2)

	kp1 := detectCorners(g1)
	kp2 := detectCorners(g2)
	if len(kp1) == 0 || len(kp2) == 0 {
		return 0.0
	}

	d1 := describe(g1, kp1)
	d2 := describe(g2, kp2)

	good := 0
	for _, d := range d1 {
		best, second := math.MaxFloat64, math.MaxFloat64
		for _, e := range d2 {
			dist := descriptorDistance(d, e)
			if dist < best {
				second = best
				best = dist
			} else if dist < second {
				second = dist
			}
		}
		// Lowe ratio test: a match only counts when it is clearly
		// better than the runner-up.
		if second > 0 && best/second < ratioTestMax {
			good++
		}
	}

	minKeypoints := len(kp1)
	if len(kp2) < minKeypoints {
		minKeypoints = len(kp2)
	}
	return clamp01(float64(good) / float64(minKeypoints))
}

// toGray downscales to a fixed working size and converts to a float
// luminance grid. The fixed size keeps the corner detector scale-stable
// across differently sized product photos.
func toGray(img image.Image) [][]float64 {
	small := resize.Resize(featureImageSize, featureImageSize, img, resize.Bilinear)
	b := small.Bounds()
	w, h := b.Dx(), b.Dy()

	gray := make([][]float64, h)
	for y := 0; y < h; y++ {
		gray[y] = make([]float64, w)
		for x := 0; x < w; x++ {
			r, g, bl, _ := small.At(b.Min.X+x, b.Min.Y+y).RGBA()
			gray[y][x] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 65535.0
		}
	}
	return gray
}

// detectCorners runs a Harris corner detector with non-maximum suppression
// and keeps the strongest keypoints.
func detectCorners(gray [][]float64) []keypoint {
	h := len(gray)
	if h == 0 {
		return nil
	}
	w := len(gray[0])
	margin := descriptorPatch/2 + 1
	if w <= 2*margin || h <= 2*margin {
		return nil
	}

	response := make([][]float64, h)
	for y := range response {
		response[y] = make([]float64, w)
	}

	for y := margin; y < h-margin; y++ {
		for x := margin; x < w-margin; x++ {
			var sxx, syy, sxy float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					ix := (gray[y+dy][x+dx+1] - gray[y+dy][x+dx-1]) / 2
					iy := (gray[y+dy+1][x+dx] - gray[y+dy-1][x+dx]) / 2
					sxx += ix * ix
					syy += iy * iy
					sxy += ix * iy
				}
			}
			det := sxx*syy - sxy*sxy
			trace := sxx + syy
			response[y][x] = det - 0.04*trace*trace
		}
	}

	var kps []keypoint
	for y := margin; y < h-margin; y++ {
		for x := margin; x < w-margin; x++ {
			r := response[y][x]
			if r < cornerMinResponse {
				continue
			}
			if !isLocalMax(response, x, y, cornerNMSRadius) {
				continue
			}
			kps = append(kps, keypoint{x: x, y: y, response: r})
		}
	}

	sort.Slice(kps, func(i, j int) bool { return kps[i].response > kps[j].response })
	if len(kps) > maxKeypoints {
		kps = kps[:maxKeypoints]
	}
	return kps
}

func isLocalMax(response [][]float64, x, y, radius int) bool {
	r := response[y][x]
	for dy := -radius; dy <= radius; dy++ {
		ny := y + dy
		if ny < 0 || ny >= len(response) {
			continue
		}
		for dx := -radius; dx <= radius; dx++ {
			nx := x + dx
			if nx < 0 || nx >= len(response[ny]) || (dx == 0 && dy == 0) {
				continue
			}
			if response[ny][nx] > r {
				return false
			}
		}
	}
	return true
}

// describe samples a normalized intensity patch around each keypoint.
// Mean and variance normalization makes the descriptor tolerant to
// brightness and contrast differences between listings.
func describe(gray [][]float64, kps []keypoint) []descriptor {
	half := descriptorPatch / 2
	descs := make([]descriptor, 0, len(kps))

	for _, kp := range kps {
		var d descriptor
		var sum float64
		i := 0
		for dy := -half; dy < half; dy++ {
			for dx := -half; dx < half; dx++ {
				v := gray[kp.y+dy][kp.x+dx]
				d[i] = v
				sum += v
				i++
			}
		}
		mean := sum / float64(len(d))
		var variance float64
		for i := range d {
			d[i] -= mean
			variance += d[i] * d[i]
		}
		if norm := math.Sqrt(variance); norm > 1e-9 {
			for i := range d {
				d[i] /= norm
			}
		}
		descs = append(descs, d)
	}
	return descs
}

func descriptorDistance(a, b descriptor) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
