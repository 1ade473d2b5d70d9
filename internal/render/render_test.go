package render

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/chrissnell/ndvimonitor/internal/ndvi"
)

func TestRdYlGnAt(t *testing.T) {
	cm := RdYlGn()

	tests := []struct {
		name string
		v    float64
		want color.NRGBA
	}{
		{"lowest stop", -1, color.NRGBA{R: 0xa5, G: 0x00, B: 0x26, A: 0xff}},
		{"midpoint", 0, color.NRGBA{R: 0xff, G: 0xff, B: 0xbf, A: 0xff}},
		{"highest stop", 1, color.NRGBA{R: 0x00, G: 0x68, B: 0x37, A: 0xff}},
		{"clamped below", -3, color.NRGBA{R: 0xa5, G: 0x00, B: 0x26, A: 0xff}},
		{"clamped above", 2, color.NRGBA{R: 0x00, G: 0x68, B: 0x37, A: 0xff}},
		{"nan is transparent", math.NaN(), color.NRGBA{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cm.At(tt.v); got != tt.want {
				t.Errorf("At(%v) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}

func TestRdYlGnGetsGreener(t *testing.T) {
	cm := RdYlGn()
	low := cm.At(-0.5)
	high := cm.At(0.7)
	if int(high.G)-int(high.R) <= int(low.G)-int(low.R) {
		t.Errorf("At(0.7) = %v should be greener than At(-0.5) = %v", high, low)
	}
}

func TestNewColormapErrors(t *testing.T) {
	if _, err := NewColormap(-1, 1, "#ffffff"); err == nil {
		t.Error("expected error for single stop")
	}
	if _, err := NewColormap(1, 1, "#000000", "#ffffff"); err == nil {
		t.Error("expected error for empty range")
	}
	if _, err := NewColormap(0, 1, "#000000", "not-a-color"); err == nil {
		t.Error("expected error for bad hex")
	}
}

func TestRasterAndMaskPNG(t *testing.T) {
	nan := float32(math.NaN())
	r, err := ndvi.RasterFromRows([][]float32{
		{-1, 0, 1},
		{nan, 0.5, 0.2},
	})
	if err != nil {
		t.Fatalf("RasterFromRows: %v", err)
	}

	img := Raster(r, RdYlGn())
	if b := img.Bounds(); b.Dx() != 3 || b.Dy() != 2 {
		t.Fatalf("bounds = %v, want 3x2", b)
	}
	if got := img.NRGBAAt(0, 1); got.A != 0 {
		t.Errorf("NaN pixel alpha = %d, want 0", got.A)
	}
	if got := img.NRGBAAt(2, 0); got != (color.NRGBA{R: 0x00, G: 0x68, B: 0x37, A: 0xff}) {
		t.Errorf("pixel (2,0) = %v", got)
	}

	mask := ndvi.Segment(r, 0.3)
	maskImg := Mask(mask)
	if got := maskImg.NRGBAAt(1, 1); got != MaskColor {
		t.Errorf("vegetated pixel = %v, want %v", got, MaskColor)
	}
	if got := maskImg.NRGBAAt(0, 0); got.A != 0 {
		t.Errorf("bare pixel alpha = %d, want 0", got.A)
	}

	var buf bytes.Buffer
	if err := WritePNG(&buf, img); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decoding written png: %v", err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Errorf("decoded bounds = %v, want %v", decoded.Bounds(), img.Bounds())
	}
}
