package ndvi

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/sbinet/npyio"
)

var npyMagic = []byte("\x93NUMPY")

// MaxSamples caps the number of values a single decoded array or raster may
// hold, whatever its header claims.
const MaxSamples = 1 << 28

// Bytes per value of the dtypes readNPY understands, keyed without the byte
// order character.
var npyItemSize = map[string]int{
	"f4": 4, "f8": 8,
	"u1": 1, "i1": 1,
	"u2": 2, "i2": 2,
	"u4": 4, "i4": 4,
	"u8": 8, "i8": 8,
}

// hasNPYMagic reports whether the buffered stream starts with a NumPy header.
func hasNPYMagic(br *bufio.Reader) bool {
	b, err := br.Peek(len(npyMagic))
	return err == nil && bytes.Equal(b, npyMagic)
}

type npyNumber interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// readNPY decodes a C-ordered .npy array and returns its shape and samples
// converted to float32. When size is positive it is the byte length of r, and
// a header promising more data than that is rejected before anything is
// allocated.
func readNPY(r io.Reader, size int64) ([]int, []float32, error) {
	nr, err := npyio.NewReader(r)
	if err != nil {
		return nil, nil, err
	}

	descr := nr.Header.Descr
	if descr.Fortran {
		return nil, nil, fmt.Errorf("fortran-ordered arrays are not supported")
	}
	if len(descr.Type) < 2 {
		return nil, nil, fmt.Errorf("invalid dtype %q", descr.Type)
	}
	itemSize, ok := npyItemSize[descr.Type[1:]]
	if !ok {
		return nil, nil, fmt.Errorf("unsupported dtype %q", descr.Type)
	}
	n, err := sampleCount(descr.Shape)
	if err != nil {
		return nil, nil, err
	}
	if size > 0 && int64(n)*int64(itemSize) > size {
		return nil, nil, fmt.Errorf("shape %v needs %d bytes of %s data, resource holds %d", descr.Shape, n*itemSize, descr.Type, size)
	}

	var data []float32
	// The first character is the byte order; npyio honors it while reading.
	switch descr.Type[1:] {
	case "f4":
		data, err = readNPYAs[float32](nr)
	case "f8":
		data, err = readNPYAs[float64](nr)
	case "u1":
		data, err = readNPYAs[uint8](nr)
	case "i1":
		data, err = readNPYAs[int8](nr)
	case "u2":
		data, err = readNPYAs[uint16](nr)
	case "i2":
		data, err = readNPYAs[int16](nr)
	case "u4":
		data, err = readNPYAs[uint32](nr)
	case "i4":
		data, err = readNPYAs[int32](nr)
	case "u8":
		data, err = readNPYAs[uint64](nr)
	case "i8":
		data, err = readNPYAs[int64](nr)
	default:
		return nil, nil, fmt.Errorf("unsupported dtype %q", descr.Type)
	}
	if err != nil {
		return nil, nil, err
	}

	shape := append([]int(nil), descr.Shape...)
	if len(data) != n {
		return nil, nil, fmt.Errorf("array holds %d values, shape %v needs %d", len(data), shape, n)
	}

	return shape, data, nil
}

// sampleCount multiplies out shape, rejecting empty axes and counts above
// MaxSamples.
func sampleCount(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("shape %v has an empty axis", shape)
		}
		if n > math.MaxInt/d || n*d > MaxSamples {
			return 0, fmt.Errorf("shape %v exceeds the limit of %d values", shape, MaxSamples)
		}
		n *= d
	}
	return n, nil
}

func readNPYAs[T npyNumber](nr *npyio.Reader) ([]float32, error) {
	var raw []T
	if err := nr.Read(&raw); err != nil {
		return nil, err
	}
	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = float32(v)
	}
	return out, nil
}
