package ndvi

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	// Raster formats accepted for single-band uploads.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff"
)

// Sentinel-2 L1C band order in a 13-band stack:
// B01, B02, B03, B04, B05, B06, B07, B08, B8A, B09, B10, B11, B12
const (
	Sentinel2RedBand = 3 // B04
	Sentinel2NIRBand = 7 // B08
)

// BandLayout names the positions of the red and near-infrared bands inside a
// stacked array. Alternate sensors are described by their own layout.
type BandLayout struct {
	Name string
	Red  int
	NIR  int
}

// Sentinel2Layout is the layout of a Sentinel-2 all_bands.npy stack.
var Sentinel2Layout = BandLayout{
	Name: "sentinel-2",
	Red:  Sentinel2RedBand,
	NIR:  Sentinel2NIRBand,
}

// Source is an input from which a red/NIR band pair can be loaded. It is
// implemented by StackSource and PairSource only.
type Source interface {
	bands() (red, nir *Raster, err error)
}

// StackSource is a single (bands, height, width) .npy array. Size is the
// byte length of Reader when known; zero means unknown.
type StackSource struct {
	Reader io.Reader
	Name   string
	Layout BandLayout
	Size   int64
}

// PairSource is two single-band resources. Each may be a 2-D .npy array or a
// grayscale raster image (TIFF, PNG or JPEG).
type PairSource struct {
	Red     io.Reader
	NIR     io.Reader
	RedName string
	NIRName string
	RedSize int64
	NIRSize int64
}

// LoadBands reads the red and near-infrared bands from src. The returned
// rasters always have the same shape.
func LoadBands(src Source) (red, nir *Raster, err error) {
	if src == nil {
		return nil, nil, &DecodeError{Source: "input", Err: errors.New("no source given")}
	}

	red, nir, err = src.bands()
	if err != nil {
		return nil, nil, err
	}

	if red.Shape() != nir.Shape() {
		return nil, nil, &ShapeMismatchError{Red: red.Shape(), NIR: nir.Shape()}
	}

	return red, nir, nil
}

func (s StackSource) bands() (*Raster, *Raster, error) {
	name := sourceName(s.Name, "stack")
	if s.Reader == nil {
		return nil, nil, &DecodeError{Source: name, Err: errors.New("no data")}
	}

	shape, data, err := readNPY(s.Reader, s.Size)
	if err != nil {
		return nil, nil, &DecodeError{Source: name, Err: err}
	}
	if len(shape) != 3 {
		return nil, nil, &DecodeError{
			Source: name,
			Err:    fmt.Errorf("expected a (bands, height, width) array, got shape %v", shape),
		}
	}

	numBands, h, w := shape[0], shape[1], shape[2]
	if s.Layout.Red < 0 || s.Layout.Red >= numBands {
		return nil, nil, &BandIndexError{Band: "red", Index: s.Layout.Red, Bands: numBands}
	}
	if s.Layout.NIR < 0 || s.Layout.NIR >= numBands {
		return nil, nil, &BandIndexError{Band: "nir", Index: s.Layout.NIR, Bands: numBands}
	}

	plane := w * h
	slice := func(band int) *Raster {
		lo, hi := band*plane, (band+1)*plane
		return &Raster{W: w, H: h, Pix: data[lo:hi:hi]}
	}

	return slice(s.Layout.Red), slice(s.Layout.NIR), nil
}

func (s PairSource) bands() (*Raster, *Raster, error) {
	red, err := decodeBand(s.Red, sourceName(s.RedName, "red band"), s.RedSize)
	if err != nil {
		return nil, nil, err
	}
	nir, err := decodeBand(s.NIR, sourceName(s.NIRName, "nir band"), s.NIRSize)
	if err != nil {
		return nil, nil, err
	}
	return red, nir, nil
}

// decodeBand reads one single-band resource. NumPy input is recognized by its
// magic bytes; everything else goes through the registered image decoders.
func decodeBand(r io.Reader, name string, size int64) (*Raster, error) {
	if r == nil {
		return nil, &DecodeError{Source: name, Err: errors.New("no data")}
	}

	br := bufio.NewReader(r)
	if hasNPYMagic(br) {
		shape, data, err := readNPY(br, size)
		if err != nil {
			return nil, &DecodeError{Source: name, Err: err}
		}
		// A leading singleton band axis is accepted: (1, height, width).
		if len(shape) == 3 && shape[0] == 1 {
			shape = shape[1:]
		}
		if len(shape) != 2 {
			return nil, &DecodeError{
				Source: name,
				Err:    fmt.Errorf("expected a single-band (height, width) array, got shape %v", shape),
			}
		}
		return &Raster{W: shape[1], H: shape[0], Pix: data}, nil
	}

	// Check the dimensions before the decoder allocates pixel storage.
	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(br, &head))
	if err != nil {
		return nil, &DecodeError{Source: name, Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > MaxSamples/cfg.Height {
		return nil, &DecodeError{
			Source: name,
			Err:    fmt.Errorf("%dx%d raster exceeds the limit of %d pixels", cfg.Width, cfg.Height, MaxSamples),
		}
	}

	img, format, err := image.Decode(io.MultiReader(&head, br))
	if err != nil {
		return nil, &DecodeError{Source: name, Err: err}
	}
	band, err := rasterFromImage(img)
	if err != nil {
		return nil, &DecodeError{Source: name, Err: fmt.Errorf("%s: %w", format, err)}
	}
	return band, nil
}

// rasterFromImage extracts the single band of a grayscale image.
func rasterFromImage(img image.Image) (*Raster, error) {
	b := img.Bounds()
	out := NewRaster(b.Dx(), b.Dy())

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < out.H; y++ {
			for x := 0; x < out.W; x++ {
				out.Pix[y*out.W+x] = float32(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	case *image.Gray:
		for y := 0; y < out.H; y++ {
			for x := 0; x < out.W; x++ {
				out.Pix[y*out.W+x] = float32(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	default:
		return nil, fmt.Errorf("expected a single-band grayscale raster, got %T", img)
	}

	return out, nil
}

func sourceName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
