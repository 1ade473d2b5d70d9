package ndvi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"

	"golang.org/x/image/tiff"
)

// stackFixture builds a (13, 2, 3) Sentinel-2 style stack where every sample
// of band b at pixel i is b*100 + i.
func stackFixture() (shape []int, data []float32) {
	shape = []int{13, 2, 3}
	data = make([]float32, 13*2*3)
	for b := 0; b < 13; b++ {
		for i := 0; i < 6; i++ {
			data[b*6+i] = float32(b*100 + i)
		}
	}
	return shape, data
}

func TestLoadBandsStack(t *testing.T) {
	shape, data := stackFixture()

	u16 := make([]uint16, len(data))
	for i, v := range data {
		u16[i] = uint16(v)
	}

	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "float32 stack", payload: encodeNPY(t, "<f4", shape, data)},
		{name: "uint16 stack", payload: encodeNPY(t, "<u2", shape, u16)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			red, nir, err := LoadBands(StackSource{
				Reader: bytes.NewReader(tt.payload),
				Name:   "all_bands.npy",
				Layout: Sentinel2Layout,
				Size:   int64(len(tt.payload)),
			})
			if err != nil {
				t.Fatalf("LoadBands returned error: %v", err)
			}

			if red.Shape() != (Shape{Height: 2, Width: 3}) {
				t.Fatalf("red shape = %v, expected 2x3", red.Shape())
			}
			for i := 0; i < 6; i++ {
				if red.Pix[i] != float32(300+i) {
					t.Errorf("red pixel %d = %v, expected %d", i, red.Pix[i], 300+i)
				}
				if nir.Pix[i] != float32(700+i) {
					t.Errorf("nir pixel %d = %v, expected %d", i, nir.Pix[i], 700+i)
				}
			}
		})
	}
}

func TestLoadBandsStackCustomLayout(t *testing.T) {
	shape, data := stackFixture()
	layout := BandLayout{Name: "landsat-8", Red: 3, NIR: 4}

	red, nir, err := LoadBands(StackSource{
		Reader: bytes.NewReader(encodeNPY(t, "<f4", shape, data)),
		Layout: layout,
	})
	if err != nil {
		t.Fatalf("LoadBands returned error: %v", err)
	}
	if red.Pix[0] != 300 || nir.Pix[0] != 400 {
		t.Errorf("unexpected bands: red[0]=%v nir[0]=%v", red.Pix[0], nir.Pix[0])
	}
}

func TestLoadBandsStackErrors(t *testing.T) {
	shape, data := stackFixture()

	t.Run("band index out of range", func(t *testing.T) {
		_, _, err := LoadBands(StackSource{
			Reader: bytes.NewReader(encodeNPY(t, "<f4", shape, data)),
			Layout: BandLayout{Red: 3, NIR: 13},
		})
		var bandErr *BandIndexError
		if !errors.As(err, &bandErr) {
			t.Fatalf("expected BandIndexError, got %v", err)
		}
		if bandErr.Band != "nir" || bandErr.Index != 13 || bandErr.Bands != 13 {
			t.Errorf("unexpected error fields: %+v", bandErr)
		}
	})

	t.Run("negative band index", func(t *testing.T) {
		_, _, err := LoadBands(StackSource{
			Reader: bytes.NewReader(encodeNPY(t, "<f4", shape, data)),
			Layout: BandLayout{Red: -1, NIR: 7},
		})
		var bandErr *BandIndexError
		if !errors.As(err, &bandErr) || bandErr.Band != "red" {
			t.Fatalf("expected red BandIndexError, got %v", err)
		}
	})

	t.Run("two-dimensional stack", func(t *testing.T) {
		_, _, err := LoadBands(StackSource{
			Reader: bytes.NewReader(encodeNPY(t, "<f4", []int{2, 3}, data[:6])),
			Layout: Sentinel2Layout,
		})
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("expected DecodeError, got %v", err)
		}
	})

	t.Run("not a numpy file", func(t *testing.T) {
		_, _, err := LoadBands(StackSource{
			Reader: bytes.NewReader([]byte("definitely not an array")),
			Name:   "junk.npy",
			Layout: Sentinel2Layout,
		})
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("expected DecodeError, got %v", err)
		}
		if decodeErr.Source != "junk.npy" {
			t.Errorf("Source = %q, expected junk.npy", decodeErr.Source)
		}
	})

	t.Run("nil reader", func(t *testing.T) {
		_, _, err := LoadBands(StackSource{Layout: Sentinel2Layout})
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("expected DecodeError, got %v", err)
		}
	})

	t.Run("nil source", func(t *testing.T) {
		_, _, err := LoadBands(nil)
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("expected DecodeError, got %v", err)
		}
	})
}

func gray16Image(w, h int, value func(x, y int) uint16) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray16(x, y, color.Gray16{Y: value(x, y)})
		}
	}
	return img
}

func TestLoadBandsPair(t *testing.T) {
	redImg := gray16Image(4, 3, func(x, y int) uint16 { return uint16(1000 + 10*y + x) })
	nirImg := gray16Image(4, 3, func(x, y int) uint16 { return uint16(3000 + 10*y + x) })

	var redPNG, nirTIFF bytes.Buffer
	if err := png.Encode(&redPNG, redImg); err != nil {
		t.Fatalf("encoding PNG: %v", err)
	}
	if err := tiff.Encode(&nirTIFF, nirImg, nil); err != nil {
		t.Fatalf("encoding TIFF: %v", err)
	}

	red, nir, err := LoadBands(PairSource{
		Red:     &redPNG,
		NIR:     &nirTIFF,
		RedName: "B04.png",
		NIRName: "B08.tif",
	})
	if err != nil {
		t.Fatalf("LoadBands returned error: %v", err)
	}

	if red.Shape() != (Shape{Height: 3, Width: 4}) || nir.Shape() != red.Shape() {
		t.Fatalf("unexpected shapes: red %v, nir %v", red.Shape(), nir.Shape())
	}
	if red.At(2, 1) != 1012 {
		t.Errorf("red(2,1) = %v, expected 1012", red.At(2, 1))
	}
	if nir.At(3, 2) != 3023 {
		t.Errorf("nir(3,2) = %v, expected 3023", nir.At(3, 2))
	}
}

func TestLoadBandsPairNPY(t *testing.T) {
	red := []float64{0.1, 0.2, 0.3, 0.4}
	nir := []float64{0.5, 0.6, 0.7, 0.8}

	r, n, err := LoadBands(PairSource{
		Red: bytes.NewReader(encodeNPY(t, "<f8", []int{2, 2}, red)),
		NIR: bytes.NewReader(encodeNPY(t, "<f8", []int{1, 2, 2}, nir)),
	})
	if err != nil {
		t.Fatalf("LoadBands returned error: %v", err)
	}
	if r.At(1, 1) != float32(0.4) || n.At(0, 1) != float32(0.7) {
		t.Errorf("unexpected values: red(1,1)=%v nir(0,1)=%v", r.At(1, 1), n.At(0, 1))
	}
}

func TestLoadBandsPairErrors(t *testing.T) {
	small := gray16Image(2, 2, func(x, y int) uint16 { return 1 })
	large := gray16Image(3, 2, func(x, y int) uint16 { return 1 })

	encode := func(img image.Image) *bytes.Buffer {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			t.Fatalf("encoding PNG: %v", err)
		}
		return &buf
	}

	t.Run("shape mismatch", func(t *testing.T) {
		_, _, err := LoadBands(PairSource{Red: encode(small), NIR: encode(large)})
		var shapeErr *ShapeMismatchError
		if !errors.As(err, &shapeErr) {
			t.Fatalf("expected ShapeMismatchError, got %v", err)
		}
	})

	t.Run("multi-band raster", func(t *testing.T) {
		rgba := image.NewRGBA(image.Rect(0, 0, 2, 2))
		_, _, err := LoadBands(PairSource{Red: encode(rgba), NIR: encode(small), RedName: "rgb.png"})
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("expected DecodeError, got %v", err)
		}
		if decodeErr.Source != "rgb.png" {
			t.Errorf("Source = %q, expected rgb.png", decodeErr.Source)
		}
	})

	t.Run("missing nir", func(t *testing.T) {
		_, _, err := LoadBands(PairSource{Red: encode(small)})
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("expected DecodeError, got %v", err)
		}
	})

	t.Run("stack given as a band", func(t *testing.T) {
		shape, data := stackFixture()
		_, _, err := LoadBands(PairSource{
			Red: bytes.NewReader(encodeNPY(t, "<f4", shape, data)),
			NIR: encode(small),
		})
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("expected DecodeError, got %v", err)
		}
	})
}

// pngHeader returns a PNG signature and IHDR chunk for a w x h 8-bit
// grayscale image with no pixel data behind it.
func pngHeader(w, h uint32) []byte {
	var ihdr bytes.Buffer
	ihdr.WriteString("IHDR")
	binary.Write(&ihdr, binary.BigEndian, w)
	binary.Write(&ihdr, binary.BigEndian, h)
	ihdr.Write([]byte{8, 0, 0, 0, 0})

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(ihdr.Len()-4))
	buf.Write(ihdr.Bytes())
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(ihdr.Bytes()))
	return buf.Bytes()
}

func TestLoadBandsRejectsOversizedHeaders(t *testing.T) {
	few := []float32{1, 2, 3, 4}
	truncated := encodeNPY(t, "<f4", []int{13, 64, 64}, few)

	tests := []struct {
		name string
		src  Source
	}{
		{
			name: "stack shape beyond sample limit",
			src: StackSource{
				Reader: bytes.NewReader(encodeNPY(t, "<f4", []int{13, 200000, 200000}, few)),
				Layout: Sentinel2Layout,
			},
		},
		{
			name: "stack shape overflowing int",
			src: StackSource{
				Reader: bytes.NewReader(encodeNPY(t, "<f4", []int{13, 1 << 31, 1 << 31}, few)),
				Layout: Sentinel2Layout,
			},
		},
		{
			name: "stack with an empty axis",
			src: StackSource{
				Reader: bytes.NewReader(encodeNPY(t, "<f4", []int{13, 0, 4}, []float32{})),
				Layout: Sentinel2Layout,
			},
		},
		{
			name: "stack header larger than the upload",
			src: StackSource{
				Reader: bytes.NewReader(truncated),
				Layout: Sentinel2Layout,
				Size:   int64(len(truncated)),
			},
		},
		{
			name: "npy band beyond sample limit",
			src: PairSource{
				Red: bytes.NewReader(encodeNPY(t, "<f8", []int{200000, 200000}, []float64{1})),
				NIR: bytes.NewReader(encodeNPY(t, "<f8", []int{1, 1}, []float64{1})),
			},
		},
		{
			name: "png band beyond pixel limit",
			src: PairSource{
				Red:     bytes.NewReader(pngHeader(100000, 100000)),
				NIR:     bytes.NewReader(pngHeader(1, 1)),
				RedName: "huge.png",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := LoadBands(tt.src)
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("expected DecodeError, got %v", err)
			}
		})
	}
}
