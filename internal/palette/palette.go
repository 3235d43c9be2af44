// Package palette derives theme colours from album artwork.
package palette

import (
	"image"
	"image/color"
	"math"

	"github.com/EdlinOrg/prominentcolor"
	"github.com/nfnt/resize"
)

// GridSize is the edge of the square sampling grid.
const GridSize = 40

// Palette is the set of colours the display is themed with.
type Palette struct {
	Background Color  `json:"background"`
	Accent     *Color `json:"accent,omitempty"`
	Dark       bool   `json:"dark"`
}

// accentClusters is the number of k-means clusters the accent is picked from.
const accentClusters = 3

// Extract computes the background colour of img and, when one stands out, an accent colour.
func Extract(img image.Image) Palette {
	if img == nil || img.Bounds().Empty() {
		return Palette{Background: Fallback, Dark: Fallback.Dark()}
	}

	grid := sample(img)
	bg := average(grid)
	p := Palette{
		Background: bg,
		Dark:       bg.Dark(),
	}
	if accent, ok := dominant(img, grid); ok {
		p.Accent = &accent
	}
	return p
}

// Average rasterises img onto a GridSize x GridSize grid and returns the mean colour of
// the pixels that are not fully transparent, each channel rounded to the nearest integer.
// Fallback is returned when every pixel is transparent.
func Average(img image.Image) Color {
	if img == nil || img.Bounds().Empty() {
		return Fallback
	}
	return average(sample(img))
}

func average(grid image.Image) Color {
	var r, g, b, count uint64
	forEachVisible(grid, func(c color.NRGBA) {
		r += uint64(c.R)
		g += uint64(c.G)
		b += uint64(c.B)
		count++
	})

	if count == 0 {
		return Fallback
	}

	return Color{
		R: mean(r, count),
		G: mean(g, count),
		B: mean(b, count),
	}
}

// forEachVisible calls fn with every pixel of img that is not fully transparent.
// Canvas pixel data is not premultiplied, so neither are the values passed to fn.
func forEachVisible(img image.Image, fn func(color.NRGBA)) {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A != 0 {
				fn(c)
			}
		}
	}
}

func sample(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() == GridSize && b.Dy() == GridSize {
		return img
	}
	return resize.Resize(GridSize, GridSize, img, resize.Bilinear)
}

func mean(sum, count uint64) uint8 {
	return uint8(math.Round(float64(sum) / float64(count)))
}

// dominant picks the largest k-means cluster of img. Images with fewer distinct colours
// than clusters skip k-means and use their most frequent colour.
func dominant(img, grid image.Image) (Color, bool) {
	counts := make(map[Color]int)
	forEachVisible(grid, func(c color.NRGBA) {
		counts[Color{R: c.R, G: c.G, B: c.B}]++
	})
	if len(counts) == 0 {
		return Color{}, false
	}

	if len(counts) < accentClusters {
		var best Color
		bestCount := 0
		for c, n := range counts {
			if n > bestCount || (n == bestCount && c.Hex() < best.Hex()) {
				best, bestCount = c, n
			}
		}
		return best, true
	}

	items, err := prominentcolor.KmeansWithAll(accentClusters, img, prominentcolor.ArgumentNoCropping, prominentcolor.DefaultSize, nil)
	if err != nil || len(items) == 0 {
		return Color{}, false
	}

	c := items[0].Color
	return Color{R: uint8(c.R), G: uint8(c.G), B: uint8(c.B)}, true
}
