// Package ndvi computes the Normalized Difference Vegetation Index from paired
// red and near-infrared bands, smooths it, segments vegetated pixels and
// summarizes the result.
//
// Every stage is a pure function that returns a new array. Nothing in this
// package holds state between calls, so independent invocations may run
// concurrently.
package ndvi

import (
	"fmt"
	"math"
)

// Shape is the size of a 2D grid.
type Shape struct {
	Height int `json:"height"`
	Width  int `json:"width"`
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%d", s.Height, s.Width)
}

// Raster is a row-major 2D grid of float32 samples. A Raster is treated as
// immutable once a stage has returned it.
type Raster struct {
	W, H int
	Pix  []float32 // len = W*H
}

// NewRaster allocates a zeroed w×h raster.
func NewRaster(w, h int) *Raster {
	return &Raster{
		W:   w,
		H:   h,
		Pix: make([]float32, w*h),
	}
}

// RasterFromRows builds a raster from row slices. All rows must have the same length.
func RasterFromRows(rows [][]float32) (*Raster, error) {
	if len(rows) == 0 {
		return NewRaster(0, 0), nil
	}
	w := len(rows[0])
	r := NewRaster(w, len(rows))
	for y, row := range rows {
		if len(row) != w {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", y, len(row), w)
		}
		copy(r.Pix[y*w:(y+1)*w], row)
	}
	return r, nil
}

// Shape returns the raster dimensions.
func (r *Raster) Shape() Shape {
	return Shape{Height: r.H, Width: r.W}
}

// At returns the sample at column x, row y.
func (r *Raster) At(x, y int) float32 {
	return r.Pix[y*r.W+x]
}

// Rows returns a copy of the raster as row slices.
func (r *Raster) Rows() [][]float32 {
	rows := make([][]float32, r.H)
	for y := range rows {
		rows[y] = append([]float32(nil), r.Pix[y*r.W:(y+1)*r.W]...)
	}
	return rows
}

// NullableRows returns the raster as row slices with NaN samples replaced by
// nil, which encodes as null in JSON and MessagePack.
func (r *Raster) NullableRows() [][]*float32 {
	rows := make([][]*float32, r.H)
	for y := range rows {
		row := make([]*float32, r.W)
		for x := range row {
			v := r.Pix[y*r.W+x]
			if isNaN(v) {
				continue
			}
			row[x] = &v
		}
		rows[y] = row
	}
	return rows
}

// Mask is a row-major 2D grid of booleans with the same layout as Raster.
type Mask struct {
	W, H int
	Pix  []bool
}

// NewMask allocates an all-false w×h mask.
func NewMask(w, h int) *Mask {
	return &Mask{
		W:   w,
		H:   h,
		Pix: make([]bool, w*h),
	}
}

// Shape returns the mask dimensions.
func (m *Mask) Shape() Shape {
	return Shape{Height: m.H, Width: m.W}
}

// At returns the mask value at column x, row y.
func (m *Mask) At(x, y int) bool {
	return m.Pix[y*m.W+x]
}

// Count returns the number of true cells.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// Rows returns a copy of the mask as row slices.
func (m *Mask) Rows() [][]bool {
	rows := make([][]bool, m.H)
	for y := range rows {
		rows[y] = append([]bool(nil), m.Pix[y*m.W:(y+1)*m.W]...)
	}
	return rows
}

func isNaN(v float32) bool {
	return v != v
}

var nan32 = float32(math.NaN())
