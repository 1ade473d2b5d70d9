package ndvi

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when statistics are requested over a raster that
// has no valid (non-NaN) pixels.
var ErrEmptyInput = errors.New("no valid pixels to summarize")

// DecodeError reports an input resource that could not be read as a raster or array.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ShapeMismatchError reports red and near-infrared bands of different dimensions.
type ShapeMismatchError struct {
	Red Shape
	NIR Shape
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("band shapes differ: red is %v, nir is %v", e.Red, e.NIR)
}

// BandIndexError reports a band index outside the bands of a stacked array.
type BandIndexError struct {
	Band  string // "red" or "nir"
	Index int
	Bands int
}

func (e *BandIndexError) Error() string {
	return fmt.Sprintf("%s band index %d out of range: array has %d bands", e.Band, e.Index, e.Bands)
}
