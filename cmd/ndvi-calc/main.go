// ndvi-calc runs the NDVI pipeline once over local files and prints the
// raw and smoothed summaries.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/chrissnell/ndvimonitor/internal/log"
	"github.com/chrissnell/ndvimonitor/internal/ndvi"
	"github.com/chrissnell/ndvimonitor/internal/render"
	"github.com/chrissnell/ndvimonitor/pkg/config"
)

func main() {
	defaults := ndvi.DefaultParams()

	var (
		stackFile = flag.String("stack", "", "Path to a (bands, height, width) .npy stack")
		redFile   = flag.String("red", "", "Path to the red band (.npy, .tif, .png)")
		nirFile   = flag.String("nir", "", "Path to the near-infrared band (.npy, .tif, .png)")
		sigma     = flag.Float64("sigma", defaults.Sigma, "Gaussian smoothing sigma in pixels; 0 disables smoothing")
		threshold = flag.Float64("threshold", defaults.Threshold, "NDVI above which a pixel counts as vegetated")
		redBand   = flag.Int("sensor-red", ndvi.Sentinel2RedBand, "Index of the red band inside -stack")
		nirBand   = flag.Int("sensor-nir", ndvi.Sentinel2NIRBand, "Index of the near-infrared band inside -stack")
		noSegment = flag.Bool("no-segment", false, "Skip vegetation segmentation")
		pngDir    = flag.String("png-dir", "", "Write raw.png, smoothed.png and mask.png to this directory")
		debug     = flag.Bool("debug", false, "Turn on debugging output")
	)
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	params, err := buildParams(*sigma, *threshold, !*noSegment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	src, closeFiles, err := openSource(*stackFile, *redFile, *nirFile, ndvi.BandLayout{Name: "custom", Red: *redBand, NIR: *nirBand})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}
	defer closeFiles()
	log.Debugf("running pipeline with %+v", params)

	result, err := ndvi.NewPipeline(log.GetSugaredLogger()).Run(context.Background(), src, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := printSummary(os.Stdout, result); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *pngDir != "" {
		if err := writeImages(*pngDir, result); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing images: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Images written to %s\n", *pngDir)
	}
}

// buildParams applies the same ranges the HTTP API enforces.
func buildParams(sigma, threshold float64, segment bool) (ndvi.Params, error) {
	if err := config.ValidateSigma(sigma); err != nil {
		return ndvi.Params{}, fmt.Errorf("invalid -sigma: %w", err)
	}
	if err := config.ValidateThreshold(threshold); err != nil {
		return ndvi.Params{}, fmt.Errorf("invalid -threshold: %w", err)
	}
	return ndvi.Params{Sigma: sigma, Threshold: threshold, Segment: segment}, nil
}

func openSource(stackFile, redFile, nirFile string, layout ndvi.BandLayout) (ndvi.Source, func(), error) {
	var files []*os.File
	closeFiles := func() {
		for _, f := range files {
			f.Close()
		}
	}
	open := func(path string) (*os.File, int64, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, err
		}
		files = append(files, f)
		info, err := f.Stat()
		if err != nil {
			return nil, 0, err
		}
		return f, info.Size(), nil
	}

	switch {
	case stackFile != "" && (redFile != "" || nirFile != ""):
		return nil, nil, errors.New("use either -stack or -red/-nir, not both")
	case stackFile != "":
		f, size, err := open(stackFile)
		if err != nil {
			closeFiles()
			return nil, nil, err
		}
		return ndvi.StackSource{Reader: f, Name: filepath.Base(stackFile), Layout: layout, Size: size}, closeFiles, nil
	case redFile != "" && nirFile != "":
		red, redSize, err := open(redFile)
		if err != nil {
			closeFiles()
			return nil, nil, err
		}
		nir, nirSize, err := open(nirFile)
		if err != nil {
			closeFiles()
			return nil, nil, err
		}
		return ndvi.PairSource{
			Red:     red,
			NIR:     nir,
			RedName: filepath.Base(redFile),
			NIRName: filepath.Base(nirFile),
			RedSize: redSize,
			NIRSize: nirSize,
		}, closeFiles, nil
	default:
		return nil, nil, errors.New("either -stack or both -red and -nir are required")
	}
}

func printSummary(w io.Writer, result *ndvi.Result) error {
	raw, err := ndvi.Summarize(result.Raw, nil)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Image: %v\n", result.Shape)
	fmt.Fprintf(w, "Raw NDVI      mean %.2f  min %.2f  max %.2f  std %.2f\n", raw.Mean, raw.Min, raw.Max, raw.StdDev)

	s := result.Stats
	fmt.Fprintf(w, "Smoothed NDVI mean %.2f  min %.2f  max %.2f  std %.2f  (sigma %.1f)\n",
		s.Mean, s.Min, s.Max, s.StdDev, result.Params.Sigma)
	if result.Mask != nil {
		fmt.Fprintf(w, "Vegetated fraction %.2f (NDVI > %.2f)\n", s.VegetatedFraction, result.Params.Threshold)
	}
	return nil
}

func writeImages(dir string, result *ndvi.Result) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	cm := render.RdYlGn()
	layers := map[string]image.Image{
		"raw.png":      render.Raster(result.Raw, cm),
		"smoothed.png": render.Raster(result.Smoothed, cm),
	}
	if result.Mask != nil {
		layers["mask.png"] = render.Mask(result.Mask)
	}

	for name, img := range layers {
		if err := writePNG(filepath.Join(dir, name), img); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render.WritePNG(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
