package ndvi

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"testing"
)

// encodeNPY writes a version 1.0 .npy file holding data with the given
// shape. data must be a slice of a fixed-size numeric type matching dtype.
func encodeNPY(t *testing.T, dtype string, shape []int, data any) []byte {
	t.Helper()

	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = fmt.Sprint(d)
	}
	tuple := "(" + strings.Join(dims, ", ")
	if len(shape) == 1 {
		tuple += ","
	}
	tuple += ")"

	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", dtype, tuple)
	// magic(6) + version(2) + header length(2) + header, padded to 64 bytes.
	total := 10 + len(header) + 1
	if rem := total % 64; rem != 0 {
		header += strings.Repeat(" ", 64-rem)
	}
	header += "\n"

	var buf bytes.Buffer
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	if err := binary.Write(&buf, binary.LittleEndian, uint16(len(header))); err != nil {
		t.Fatalf("writing header length: %v", err)
	}
	buf.WriteString(header)
	if err := binary.Write(&buf, binary.LittleEndian, data); err != nil {
		t.Fatalf("writing array data: %v", err)
	}
	return buf.Bytes()
}

func mustRaster(t *testing.T, rows [][]float32) *Raster {
	t.Helper()
	r, err := RasterFromRows(rows)
	if err != nil {
		t.Fatalf("RasterFromRows: %v", err)
	}
	return r
}

// sameSample treats NaN as equal to NaN.
func sameSample(a, b float32) bool {
	if isNaN(a) || isNaN(b) {
		return isNaN(a) && isNaN(b)
	}
	return a == b
}

func nearly(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}
