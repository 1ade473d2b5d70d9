package restserver

import (
	"context"
	"errors"
	"fmt"
	"image"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chrissnell/ndvimonitor/internal/ndvi"
	"github.com/chrissnell/ndvimonitor/internal/render"
	"github.com/chrissnell/ndvimonitor/pkg/config"
	"github.com/chrissnell/ndvimonitor/pkg/responseformat"
	"github.com/google/uuid"
)

// Multipart parts held in memory before spilling to temporary files.
const multipartMemory = 32 << 20

// Layers accepted by PostNDVIImage.
const (
	LayerRaw      = "raw"
	LayerSmoothed = "smoothed"
	LayerMask     = "mask"
)

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// NDVIResponse summarizes one pipeline run. Raw, Smoothed and Mask are only
// filled in when the caller asks for arrays; missing NDVI values are null.
type NDVIResponse struct {
	ID           string       `json:"id"`
	Sensor       string       `json:"sensor,omitempty"`
	Sigma        float64      `json:"sigma"`
	Threshold    float64      `json:"threshold"`
	Segmentation bool         `json:"segmentation"`
	Width        int          `json:"width"`
	Height       int          `json:"height"`
	Stats        ndvi.Stats   `json:"stats"`
	Raw          [][]*float32 `json:"raw,omitempty"`
	Smoothed     [][]*float32 `json:"smoothed,omitempty"`
	Mask         [][]bool     `json:"mask,omitempty"`
	ElapsedMS    float64      `json:"elapsed_ms"`
}

// DefaultsResponse describes the parameters a client may send.
type DefaultsResponse struct {
	Sigma          float64             `json:"sigma"`
	Threshold      float64             `json:"threshold"`
	Segmentation   bool                `json:"segmentation"`
	DefaultSensor  string              `json:"default_sensor"`
	SigmaRange     [2]float64          `json:"sigma_range"`
	ThresholdRange [2]float64          `json:"threshold_range"`
	Sensors        []config.SensorData `json:"sensors"`
	Layers         []string            `json:"layers"`
}

// requestError carries the status code a failed request should produce.
type requestError struct {
	status  int
	message string
	err     error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

func badRequest(message string, err error) *requestError {
	return &requestError{status: http.StatusBadRequest, message: message, err: err}
}

// run holds a completed pipeline invocation.
type run struct {
	id      string
	sensor  string
	result  *ndvi.Result
	elapsed time.Duration
}

// PostNDVI runs the pipeline over an uploaded stack or band pair and returns
// the summary statistics.
func (h *Handlers) PostNDVI(w http.ResponseWriter, req *http.Request) {
	rn, ok := h.runPipeline(w, req, "")
	if !ok {
		return
	}

	res := rn.result
	resp := NDVIResponse{
		ID:           rn.id,
		Sensor:       rn.sensor,
		Sigma:        res.Params.Sigma,
		Threshold:    res.Params.Threshold,
		Segmentation: res.Params.Segment,
		Width:        res.Shape.Width,
		Height:       res.Shape.Height,
		Stats:        res.Stats,
		ElapsedMS:    float64(rn.elapsed.Microseconds()) / 1000,
	}

	if wantArrays(req) {
		resp.Raw = res.Raw.NullableRows()
		resp.Smoothed = res.Smoothed.NullableRows()
		if res.Mask != nil {
			resp.Mask = res.Mask.Rows()
		}
	}

	h.sendResponse(w, req, http.StatusOK, resp, rn.id)
}

// PostNDVIImage runs the pipeline and renders one layer as PNG.
func (h *Handlers) PostNDVIImage(w http.ResponseWriter, req *http.Request) {
	layer := req.URL.Query().Get("layer")
	if layer == "" {
		layer = LayerSmoothed
	}
	switch layer {
	case LayerRaw, LayerSmoothed, LayerMask:
	default:
		h.sendError(w, req, badRequest(fmt.Sprintf("unknown layer %q", layer), nil), "")
		return
	}

	rn, ok := h.runPipeline(w, req, layer)
	if !ok {
		return
	}

	res := rn.result
	var img image.Image
	switch layer {
	case LayerRaw:
		img = render.Raster(res.Raw, h.controller.colormap)
	case LayerMask:
		img = render.Mask(res.Mask)
	default:
		img = render.Raster(res.Smoothed, h.controller.colormap)
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Request-ID", rn.id)
	w.Header().Set("X-NDVI-Mean", strconv.FormatFloat(res.Stats.Mean, 'f', 4, 64))
	w.Header().Set("X-NDVI-Vegetated-Fraction", strconv.FormatFloat(res.Stats.VegetatedFraction, 'f', 4, 64))
	if err := render.WritePNG(w, img); err != nil {
		h.controller.logger.Errorf("request %v: writing %v layer: %v", rn.id, layer, err)
	}
}

// GetDefaults returns the configured defaults, ranges and sensors.
func (h *Handlers) GetDefaults(w http.ResponseWriter, req *http.Request) {
	cfg := h.controller.cfg
	resp := DefaultsResponse{
		Sigma:          cfg.Pipeline.Sigma,
		Threshold:      cfg.Pipeline.Threshold,
		Segmentation:   cfg.Pipeline.SegmentationEnabled,
		DefaultSensor:  cfg.Pipeline.DefaultSensor,
		SigmaRange:     [2]float64{config.MinSigma, config.MaxSigma},
		ThresholdRange: [2]float64{config.MinThreshold, config.MaxThreshold},
		Sensors:        cfg.Sensors,
		Layers:         []string{LayerRaw, LayerSmoothed, LayerMask},
	}
	h.sendResponse(w, req, http.StatusOK, resp, "")
}

// GetHealth reports that the server is accepting requests.
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	h.sendResponse(w, req, http.StatusOK, map[string]string{"status": "ok"}, "")
}

// runPipeline parses the upload, runs the pipeline and records metrics. On
// failure it has already written the error response.
func (h *Handlers) runPipeline(w http.ResponseWriter, req *http.Request, layer string) (*run, bool) {
	id := uuid.New().String()
	logger := h.controller.logger

	req.Body = http.MaxBytesReader(w, req.Body, h.controller.maxUpload)
	if err := req.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			h.sendError(w, req, &requestError{
				status:  http.StatusRequestEntityTooLarge,
				message: fmt.Sprintf("upload exceeds %d MB", h.controller.restConfig.MaxUploadMB),
			}, id)
			return nil, false
		}
		h.sendError(w, req, badRequest("expected a multipart/form-data upload", err), id)
		return nil, false
	}
	defer req.MultipartForm.RemoveAll()

	params, sensor, err := h.parseParams(req)
	if err != nil {
		h.sendError(w, req, err, id)
		return nil, false
	}
	if layer == LayerMask {
		params.Segment = true
	}

	src, closeFiles, err := h.openSource(req, sensor)
	if err != nil {
		h.sendError(w, req, err, id)
		return nil, false
	}
	defer closeFiles()

	start := time.Now()
	result, err := h.controller.pipeline.Run(req.Context(), src, params)
	elapsed := time.Since(start)
	if err != nil {
		h.controller.metrics.observeRun(outcome(err), elapsed)
		logger.Warnw("NDVI pipeline failed", "request_id", id, "error", err)
		h.sendError(w, req, err, id)
		return nil, false
	}
	h.controller.metrics.observeRun("success", elapsed)
	if params.Segment {
		h.controller.metrics.vegetatedFraction.Observe(result.Stats.VegetatedFraction)
	}

	logger.Infow("NDVI pipeline finished",
		"request_id", id,
		"sensor", sensor.Name,
		"shape", result.Shape.String(),
		"sigma", params.Sigma,
		"threshold", params.Threshold,
		"mean", result.Stats.Mean,
		"vegetated_fraction", result.Stats.VegetatedFraction,
		"elapsed", elapsed,
	)

	name := ""
	if _, ok := src.(ndvi.StackSource); ok {
		name = sensor.Name
	}
	return &run{id: id, sensor: name, result: result, elapsed: elapsed}, true
}

// parseParams overlays form values onto the configured defaults.
func (h *Handlers) parseParams(req *http.Request) (ndvi.Params, config.SensorData, error) {
	cfg := h.controller.cfg
	params := cfg.Pipeline.Params()

	if v := req.FormValue("sigma"); v != "" {
		sigma, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return params, config.SensorData{}, badRequest("sigma must be a number", err)
		}
		if err := config.ValidateSigma(sigma); err != nil {
			return params, config.SensorData{}, badRequest("invalid sigma", err)
		}
		params.Sigma = sigma
	}

	if v := req.FormValue("threshold"); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return params, config.SensorData{}, badRequest("threshold must be a number", err)
		}
		if err := config.ValidateThreshold(threshold); err != nil {
			return params, config.SensorData{}, badRequest("invalid threshold", err)
		}
		params.Threshold = threshold
	}

	if v := req.FormValue("segment"); v != "" {
		segment, err := strconv.ParseBool(v)
		if err != nil {
			return params, config.SensorData{}, badRequest("segment must be true or false", err)
		}
		params.Segment = segment
	}

	sensorName := req.FormValue("sensor")
	if sensorName == "" {
		sensorName = cfg.Pipeline.DefaultSensor
	}
	sensor, ok := cfg.Sensor(sensorName)
	if !ok {
		return params, config.SensorData{}, badRequest(fmt.Sprintf("unknown sensor %q", sensorName), nil)
	}

	return params, sensor, nil
}

// openSource picks a stack upload over a band pair. The returned func closes
// every opened part.
func (h *Handlers) openSource(req *http.Request, sensor config.SensorData) (ndvi.Source, func(), error) {
	var files []multipart.File
	closeFiles := func() {
		for _, f := range files {
			f.Close()
		}
	}

	open := func(field string) (multipart.File, *multipart.FileHeader, error) {
		f, hdr, err := req.FormFile(field)
		if err != nil {
			return nil, nil, err
		}
		files = append(files, f)
		return f, hdr, nil
	}

	stack, stackHdr, err := open("stack")
	if err == nil {
		return ndvi.StackSource{
			Reader: stack,
			Name:   stackHdr.Filename,
			Layout: sensor.Layout(),
			Size:   stackHdr.Size,
		}, closeFiles, nil
	}
	if !errors.Is(err, http.ErrMissingFile) {
		closeFiles()
		return nil, nil, badRequest("reading stack upload", err)
	}

	red, redHdr, redErr := open("red")
	nir, nirHdr, nirErr := open("nir")
	if redErr != nil || nirErr != nil {
		closeFiles()
		return nil, nil, badRequest("upload either a stack file or both red and nir files", errors.Join(redErr, nirErr))
	}

	return ndvi.PairSource{
		Red:     red,
		NIR:     nir,
		RedName: redHdr.Filename,
		NIRName: nirHdr.Filename,
		RedSize: redHdr.Size,
		NIRSize: nirHdr.Size,
	}, closeFiles, nil
}

// sendResponse writes data in the requested format with the request ID header.
func (h *Handlers) sendResponse(w http.ResponseWriter, req *http.Request, status int, data any, id string) {
	headers := map[string]string{}
	if id != "" {
		headers["X-Request-ID"] = id
	}
	if err := h.formatter.WriteResponseWithStatus(w, req, status, data, headers); err != nil {
		h.controller.logger.Errorf("error encoding response: %v", err)
	}
}

// sendError maps err to a status code and writes an error body
func (h *Handlers) sendError(w http.ResponseWriter, req *http.Request, err error, id string) {
	statusCode, message := classify(err)

	errorResponse := map[string]any{
		"error":     message,
		"status":    statusCode,
		"timestamp": time.Now().Unix(),
	}
	if id != "" {
		errorResponse["request_id"] = id
	}

	var re *requestError
	if errors.As(err, &re) {
		if re.err != nil {
			errorResponse["details"] = re.err.Error()
		}
	} else {
		errorResponse["details"] = err.Error()
	}

	h.sendResponse(w, req, statusCode, errorResponse, id)
}

// classify maps pipeline errors onto HTTP status codes.
func classify(err error) (int, string) {
	var (
		re       *requestError
		decode   *ndvi.DecodeError
		bandIdx  *ndvi.BandIndexError
		mismatch *ndvi.ShapeMismatchError
	)

	switch {
	case errors.As(err, &re):
		return re.status, re.message
	case errors.As(err, &decode):
		return http.StatusBadRequest, "input could not be decoded"
	case errors.As(err, &bandIdx):
		return http.StatusUnprocessableEntity, "band index out of range"
	case errors.As(err, &mismatch):
		return http.StatusUnprocessableEntity, "red and nir bands differ in shape"
	case errors.Is(err, ndvi.ErrEmptyInput):
		return http.StatusUnprocessableEntity, "no valid pixels"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// outcome is the metrics label for a failed run.
func outcome(err error) string {
	status, _ := classify(err)
	switch status {
	case http.StatusBadRequest:
		return "decode_error"
	case http.StatusUnprocessableEntity:
		return "invalid_input"
	case http.StatusServiceUnavailable:
		return "cancelled"
	default:
		return "error"
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

func wantArrays(req *http.Request) bool {
	v, err := strconv.ParseBool(req.URL.Query().Get("arrays"))
	return err == nil && v
}
