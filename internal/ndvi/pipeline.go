package ndvi

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Params holds the tunables of one pipeline run.
type Params struct {
	// Sigma is the Gaussian standard deviation in pixels. 0 disables smoothing.
	Sigma float64

	// Threshold is the NDVI value a pixel must exceed to count as vegetated.
	Threshold float64

	// Segment enables the vegetation mask and the vegetation fields of Stats.
	Segment bool
}

// DefaultParams returns the fallback values used by callers that do not
// supply their own.
func DefaultParams() Params {
	return Params{
		Sigma:     1.0,
		Threshold: 0.3,
		Segment:   true,
	}
}

// Validate rejects parameters no stage can honor.
func (p Params) Validate() error {
	if math.IsNaN(p.Sigma) || math.IsInf(p.Sigma, 0) || p.Sigma < 0 {
		return fmt.Errorf("sigma must be a finite non-negative number, got %v", p.Sigma)
	}
	if math.IsNaN(p.Threshold) {
		return fmt.Errorf("threshold must be a number")
	}
	return nil
}

// Result is the output of a successful pipeline run.
type Result struct {
	Shape    Shape
	Raw      *Raster // NDVI before smoothing
	Smoothed *Raster // same as Raw when Sigma is 0
	Mask     *Mask   // nil unless Params.Segment
	Stats    Stats   // computed over Smoothed
	Params   Params
}

// Pipeline runs load → NDVI → smooth → segment/summarize.
type Pipeline struct {
	logger *zap.SugaredLogger
}

// NewPipeline creates a Pipeline that logs stage timings to logger.
func NewPipeline(logger *zap.SugaredLogger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Pipeline{logger: logger}
}

// Run executes every stage in order. The context is checked between stages;
// a stage that has started always runs to completion. Any failure aborts the
// run and no partial result is returned.
func (p *Pipeline) Run(ctx context.Context, src Source, params Params) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()

	red, nir, err := LoadBands(src)
	if err != nil {
		return nil, err
	}
	p.logger.Debugf("loaded %v red/nir bands in %v", red.Shape(), time.Since(start))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := ComputeNDVI(red, nir)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stageStart := time.Now()
	smoothed := Smooth(raw, params.Sigma)
	p.logger.Debugf("smoothed NDVI with sigma=%.2f in %v", params.Sigma, time.Since(stageStart))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var mask *Mask
	var stats Stats
	if params.Segment {
		mask, stats, err = SegmentAndSummarize(smoothed, params.Threshold)
	} else {
		stats, err = Summarize(smoothed, nil)
	}
	if err != nil {
		return nil, err
	}

	p.logger.Debugw("NDVI pipeline complete",
		"shape", raw.Shape().String(),
		"sigma", params.Sigma,
		"threshold", params.Threshold,
		"mean", stats.Mean,
		"valid_pixels", stats.ValidPixels,
		"vegetated_fraction", stats.VegetatedFraction,
		"elapsed", time.Since(start),
	)

	return &Result{
		Shape:    raw.Shape(),
		Raw:      raw,
		Smoothed: smoothed,
		Mask:     mask,
		Stats:    stats,
		Params:   params,
	}, nil
}
