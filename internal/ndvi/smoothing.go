package ndvi

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// GaussianTruncate is the kernel half-width in standard deviations.
const GaussianTruncate = 4.0

// GaussianKernel returns the normalized 1-D Gaussian weights for sigma,
// truncated at int(GaussianTruncate*sigma + 0.5) samples on each side.
// A non-positive sigma yields the identity kernel [1].
func GaussianKernel(sigma float64) []float64 {
	if !(sigma > 0) {
		return []float64{1}
	}

	radius := int(GaussianTruncate*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	for i := -radius; i <= radius; i++ {
		kernel[i+radius] = math.Exp(-0.5 * float64(i*i) / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)

	return kernel
}

// Smooth applies an isotropic Gaussian blur with standard deviation sigma.
//
// A sigma of zero (or less, or NaN) returns r itself. Otherwise a new raster
// of the same shape is returned; edges are extended by half-sample symmetric
// reflection (d c b a | a b c d | d c b a).
//
// NaN pixels are not filtered out: every output pixel whose kernel window
// covers a NaN input becomes NaN.
func Smooth(r *Raster, sigma float64) *Raster {
	if !(sigma > 0) {
		return r
	}
	if r.W == 0 || r.H == 0 {
		return NewRaster(r.W, r.H)
	}

	kernel := GaussianKernel(sigma)
	return correlateRows(correlateColumns(r, kernel), kernel)
}

// correlateColumns filters every column (vertical pass).
func correlateColumns(src *Raster, kernel []float64) *Raster {
	radius := len(kernel) / 2
	out := NewRaster(src.W, src.H)
	line := make([]float64, src.H+2*radius)

	for x := 0; x < src.W; x++ {
		for i := range line {
			line[i] = float64(src.Pix[reflectIndex(i-radius, src.H)*src.W+x])
		}
		for y := 0; y < src.H; y++ {
			out.Pix[y*src.W+x] = float32(floats.Dot(kernel, line[y:y+len(kernel)]))
		}
	}

	return out
}

// correlateRows filters every row (horizontal pass).
func correlateRows(src *Raster, kernel []float64) *Raster {
	radius := len(kernel) / 2
	out := NewRaster(src.W, src.H)
	line := make([]float64, src.W+2*radius)

	for y := 0; y < src.H; y++ {
		row := src.Pix[y*src.W : (y+1)*src.W]
		for i := range line {
			line[i] = float64(row[reflectIndex(i-radius, src.W)])
		}
		for x := 0; x < src.W; x++ {
			out.Pix[y*src.W+x] = float32(floats.Dot(kernel, line[x:x+len(kernel)]))
		}
	}

	return out
}

// reflectIndex maps any index onto [0, n) by repeated half-sample symmetric reflection.
func reflectIndex(i, n int) int {
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}
