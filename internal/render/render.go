// Package render turns NDVI rasters and vegetation masks into images.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/chrissnell/ndvimonitor/internal/ndvi"
	"github.com/lucasb-eyer/go-colorful"
)

// rdYlGnStops are the ColorBrewer RdYlGn stops, red (stressed) to green (dense).
var rdYlGnStops = []string{
	"#a50026", "#d73027", "#f46d43", "#fdae61", "#fee08b", "#ffffbf",
	"#d9ef8b", "#a6d96a", "#66bd63", "#1a9850", "#006837",
}

// MaskColor is used for vegetated pixels in a rendered mask.
var MaskColor = color.NRGBA{R: 0x1a, G: 0x98, B: 0x50, A: 0xff}

// Colormap maps values in [Min, Max] onto a sequence of color stops,
// blending neighbouring stops in CIE-Lab.
type Colormap struct {
	Min, Max float64
	stops    []colorful.Color
}

// NewColormap parses hex stops. At least two stops are required.
func NewColormap(lo, hi float64, hexStops ...string) (*Colormap, error) {
	if len(hexStops) < 2 {
		return nil, fmt.Errorf("colormap needs at least two stops, got %d", len(hexStops))
	}
	if !(hi > lo) {
		return nil, fmt.Errorf("colormap range [%v, %v] is empty", lo, hi)
	}

	stops := make([]colorful.Color, len(hexStops))
	for i, h := range hexStops {
		c, err := colorful.Hex(h)
		if err != nil {
			return nil, fmt.Errorf("colormap stop %d: %w", i, err)
		}
		stops[i] = c
	}
	return &Colormap{Min: lo, Max: hi, stops: stops}, nil
}

// RdYlGn returns the diverging red-yellow-green map fixed to the NDVI range.
func RdYlGn() *Colormap {
	cm, err := NewColormap(-1, 1, rdYlGnStops...)
	if err != nil {
		panic(err)
	}
	return cm
}

// At returns the color for v. Values outside the range are clamped and NaN
// is fully transparent.
func (c *Colormap) At(v float64) color.NRGBA {
	if math.IsNaN(v) {
		return color.NRGBA{}
	}

	t := (v - c.Min) / (c.Max - c.Min)
	t = math.Max(0, math.Min(1, t))

	pos := t * float64(len(c.stops)-1)
	i := int(pos)
	frac := pos - float64(i)

	var col colorful.Color
	if i >= len(c.stops)-1 || frac == 0 {
		col = c.stops[min(i, len(c.stops)-1)]
	} else {
		col = c.stops[i].BlendLab(c.stops[i+1], frac).Clamped()
	}

	r, g, b := col.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}
}

// Raster renders r through cm. Row 0 is the top of the image.
func Raster(r *ndvi.Raster, cm *Colormap) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, r.W, r.H))
	for y := 0; y < r.H; y++ {
		for x := 0; x < r.W; x++ {
			img.SetNRGBA(x, y, cm.At(float64(r.At(x, y))))
		}
	}
	return img
}

// Mask renders vegetated pixels in MaskColor on a transparent background.
func Mask(m *ndvi.Mask) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, m.W, m.H))
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if m.At(x, y) {
				img.SetNRGBA(x, y, MaskColor)
			}
		}
	}
	return img
}

// WritePNG encodes img as PNG.
func WritePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(w, img); err != nil {
		return fmt.Errorf("encoding png: %w", err)
	}
	return nil
}
