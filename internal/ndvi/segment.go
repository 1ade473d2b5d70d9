package ndvi

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes one NDVI raster. Mean, Min, Max and StdDev ignore NaN
// pixels; VegetatedFraction counts NaN pixels in its denominator only.
type Stats struct {
	Mean              float64 `json:"mean"`
	Min               float64 `json:"min"`
	Max               float64 `json:"max"`
	StdDev            float64 `json:"stddev"`
	VegetatedFraction float64 `json:"vegetated_fraction"`
	ValidPixels       int     `json:"valid_pixels"`
	VegetatedPixels   int     `json:"vegetated_pixels"`
	TotalPixels       int     `json:"total_pixels"`
}

// Segment marks pixels whose value is strictly greater than threshold.
// NaN pixels are never marked.
func Segment(r *Raster, threshold float64) *Mask {
	m := NewMask(r.W, r.H)
	// Compare at the raster's precision so a pixel equal to the threshold is not marked.
	t := float32(threshold)
	for i, v := range r.Pix {
		// NaN compares false, so it never passes.
		m.Pix[i] = v > t
	}
	return m
}

// Summarize computes statistics over the non-NaN pixels of r. When mask is
// non-nil it must match r and fills the vegetation fields. ErrEmptyInput is
// returned when r has no valid pixels.
func Summarize(r *Raster, mask *Mask) (Stats, error) {
	valid := make([]float64, 0, len(r.Pix))
	for _, v := range r.Pix {
		if !isNaN(v) {
			valid = append(valid, float64(v))
		}
	}
	if len(valid) == 0 {
		return Stats{}, fmt.Errorf("summarize %v raster: %w", r.Shape(), ErrEmptyInput)
	}

	mean, std := stat.PopMeanStdDev(valid, nil)
	s := Stats{
		Mean:        mean,
		Min:         floats.Min(valid),
		Max:         floats.Max(valid),
		StdDev:      std,
		ValidPixels: len(valid),
		TotalPixels: len(r.Pix),
	}

	if mask != nil {
		if mask.Shape() != r.Shape() {
			return Stats{}, fmt.Errorf("mask shape %v does not match raster shape %v", mask.Shape(), r.Shape())
		}
		s.VegetatedPixels = mask.Count()
		s.VegetatedFraction = float64(s.VegetatedPixels) / float64(s.TotalPixels)
	}

	return s, nil
}

// SegmentAndSummarize thresholds r and summarizes it. Either both results are
// returned or neither is.
func SegmentAndSummarize(r *Raster, threshold float64) (*Mask, Stats, error) {
	mask := Segment(r, threshold)
	s, err := Summarize(r, mask)
	if err != nil {
		return nil, Stats{}, err
	}
	return mask, s, nil
}
