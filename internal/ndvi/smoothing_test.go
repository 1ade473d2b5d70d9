package ndvi

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func TestGaussianKernel(t *testing.T) {
	tests := []struct {
		name   string
		sigma  float64
		length int
	}{
		{name: "zero sigma is identity", sigma: 0, length: 1},
		{name: "negative sigma is identity", sigma: -1, length: 1},
		{name: "small sigma", sigma: 0.3, length: 3},
		{name: "unit sigma", sigma: 1, length: 9},
		{name: "slider maximum", sigma: 5, length: 41},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := GaussianKernel(tt.sigma)
			if len(k) != tt.length {
				t.Fatalf("kernel length = %d, expected %d", len(k), tt.length)
			}
			if !nearly(floats.Sum(k), 1, 1e-12) {
				t.Errorf("kernel sums to %v, expected 1", floats.Sum(k))
			}
			for i := range k {
				if k[i] != k[len(k)-1-i] {
					t.Errorf("kernel not symmetric at %d", i)
				}
			}
		})
	}
}

func TestReflectIndex(t *testing.T) {
	// d c b a | a b c d | d c b a
	tests := []struct {
		i, n, expected int
	}{
		{-1, 4, 0},
		{-4, 4, 3},
		{-5, 4, 3},
		{0, 4, 0},
		{3, 4, 3},
		{4, 4, 3},
		{7, 4, 0},
		{8, 4, 0},
		{-3, 1, 0},
		{5, 1, 0},
	}

	for _, tt := range tests {
		if got := reflectIndex(tt.i, tt.n); got != tt.expected {
			t.Errorf("reflectIndex(%d, %d) = %d, expected %d", tt.i, tt.n, got, tt.expected)
		}
	}
}

func TestSmoothZeroSigmaIsIdentity(t *testing.T) {
	r := mustRaster(t, [][]float32{{0.1, -0.4, nan32}, {1, 0.25, -1}})

	result := Smooth(r, 0)

	if result != r {
		t.Fatal("expected the input raster to be returned unchanged")
	}
	for i := range r.Pix {
		if !sameSample(result.Pix[i], r.Pix[i]) {
			t.Errorf("pixel %d changed: %v -> %v", i, r.Pix[i], result.Pix[i])
		}
	}
}

func TestSmoothPreservesShape(t *testing.T) {
	r := NewRaster(7, 5)
	for i := range r.Pix {
		r.Pix[i] = float32(i%3) * 0.3
	}

	for _, sigma := range []float64{0, 0.5, 1, 2.5, 5} {
		result := Smooth(r, sigma)
		if result.Shape() != r.Shape() {
			t.Errorf("sigma %v: shape %v, expected %v", sigma, result.Shape(), r.Shape())
		}
		if len(result.Pix) != len(r.Pix) {
			t.Errorf("sigma %v: %d pixels, expected %d", sigma, len(result.Pix), len(r.Pix))
		}
	}
}

func TestSmoothConstantRaster(t *testing.T) {
	r := NewRaster(6, 4)
	for i := range r.Pix {
		r.Pix[i] = 0.42
	}

	result := Smooth(r, 1.5)

	for i, v := range result.Pix {
		if !nearly(float64(v), 0.42, 1e-6) {
			t.Errorf("pixel %d: expected 0.42, got %v", i, v)
		}
	}
	if r.Pix[0] != 0.42 {
		t.Error("Smooth modified its input")
	}
}

func TestSmoothImpulseResponse(t *testing.T) {
	r := NewRaster(11, 11)
	r.Pix[5*11+5] = 1

	result := Smooth(r, 1)

	k := GaussianKernel(1)
	for _, c := range []struct{ x, y int }{{5, 5}, {6, 5}, {5, 3}, {8, 9}} {
		expected := k[4+c.x-5] * k[4+c.y-5]
		if !nearly(float64(result.At(c.x, c.y)), expected, 1e-7) {
			t.Errorf("(%d,%d): expected %v, got %v", c.x, c.y, expected, result.At(c.x, c.y))
		}
	}
	// Peak of a unit 2-D Gaussian: 1/(2π).
	if !nearly(float64(result.At(5, 5)), 1/(2*math.Pi), 1e-4) {
		t.Errorf("peak = %v, expected about %v", result.At(5, 5), 1/(2*math.Pi))
	}
}

func TestSmoothCheckerboardVariance(t *testing.T) {
	const size = 32
	board := NewRaster(size, size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x+y)%2 == 0 {
				board.Pix[y*size+x] = 1
			} else {
				board.Pix[y*size+x] = -1
			}
		}
	}

	prev := math.Inf(1)
	for _, sigma := range []float64{0, 0.5, 1, 2} {
		smoothed := Smooth(board, sigma)
		values := make([]float64, len(smoothed.Pix))
		for i, v := range smoothed.Pix {
			values[i] = float64(v)
		}
		std := stat.PopStdDev(values, nil)
		if std >= prev {
			t.Errorf("sigma %v: stddev %v did not drop below %v", sigma, std, prev)
		}
		prev = std
	}
}

// NaN is not filtered by the smoother: it spreads to every pixel whose
// kernel window covers it. Callers rely on this being stable.
func TestSmoothSpreadsNaN(t *testing.T) {
	r := NewRaster(15, 15)
	for i := range r.Pix {
		r.Pix[i] = 0.5
	}
	r.Pix[0] = nan32

	result := Smooth(r, 1) // radius 4

	tests := []struct {
		x, y    int
		wantNaN bool
	}{
		{0, 0, true},
		{4, 4, true},
		{4, 0, true},
		{0, 4, true},
		{5, 5, false},
		{5, 0, false},
		{0, 5, false},
		{10, 10, false},
	}
	for _, tt := range tests {
		v := result.At(tt.x, tt.y)
		if isNaN(v) != tt.wantNaN {
			t.Errorf("(%d,%d) = %v, expected NaN: %v", tt.x, tt.y, v, tt.wantNaN)
		}
	}
}
