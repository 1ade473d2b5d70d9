package config

import (
	"fmt"
	"math"

	"github.com/chrissnell/ndvimonitor/internal/ndvi"
)

// Advisory parameter ranges. They match the analyst UI sliders and are
// enforced on configured defaults and HTTP requests.
const (
	MinSigma     = 0.0
	MaxSigma     = 5.0
	MinThreshold = 0.0
	MaxThreshold = 0.8
)

// DefaultSensorName is the sensor used when none is configured or requested.
const DefaultSensorName = "sentinel-2"

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetPipelineConfig() (*PipelineData, error)
	GetSensors() ([]SensorData, error)
	GetRESTServerConfig() (*RESTServerData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Pipeline   PipelineData   `json:"pipeline"`
	Sensors    []SensorData   `json:"sensors,omitempty"`
	RESTServer RESTServerData `json:"rest"`
}

// PipelineData holds the defaults applied to pipeline runs that don't
// override them
type PipelineData struct {
	Sigma               float64 `json:"sigma"`
	Threshold           float64 `json:"threshold"`
	SegmentationEnabled bool    `json:"segmentation_enabled"`
	DefaultSensor       string  `json:"default_sensor,omitempty"`
}

// SensorData describes where the red and near-infrared bands sit in a
// stacked array produced by a given sensor
type SensorData struct {
	Name    string `json:"name"`
	RedBand int    `json:"red_band"`
	NIRBand int    `json:"nir_band"`
}

// RESTServerData holds configuration for the HTTP API
type RESTServerData struct {
	ListenAddr  string `json:"listen_addr,omitempty"`
	Port        int    `json:"port,omitempty"`
	MaxUploadMB int    `json:"max_upload_mb,omitempty"`
	TLSCertPath string `json:"tls_cert_path,omitempty"`
	TLSKeyPath  string `json:"tls_key_path,omitempty"`
}

// Layout converts the sensor to the band layout used by the pipeline.
func (s SensorData) Layout() ndvi.BandLayout {
	return ndvi.BandLayout{
		Name: s.Name,
		Red:  s.RedBand,
		NIR:  s.NIRBand,
	}
}

// Params converts the pipeline defaults to pipeline parameters.
func (p PipelineData) Params() ndvi.Params {
	return ndvi.Params{
		Sigma:     p.Sigma,
		Threshold: p.Threshold,
		Segment:   p.SegmentationEnabled,
	}
}

// DefaultPipelineData returns σ=1.0, threshold 0.3, segmentation on.
func DefaultPipelineData() PipelineData {
	defaults := ndvi.DefaultParams()
	return PipelineData{
		Sigma:               defaults.Sigma,
		Threshold:           defaults.Threshold,
		SegmentationEnabled: defaults.Segment,
		DefaultSensor:       DefaultSensorName,
	}
}

// Sentinel2Sensor is always available, even when no sensors are configured.
func Sentinel2Sensor() SensorData {
	return SensorData{
		Name:    DefaultSensorName,
		RedBand: ndvi.Sentinel2Layout.Red,
		NIRBand: ndvi.Sentinel2Layout.NIR,
	}
}

// DefaultConfigData returns a configuration with every default applied.
func DefaultConfigData() *ConfigData {
	return &ConfigData{
		Pipeline: DefaultPipelineData(),
		Sensors:  []SensorData{Sentinel2Sensor()},
	}
}

// Sensor looks up a sensor by name.
func (c *ConfigData) Sensor(name string) (SensorData, bool) {
	for _, s := range c.Sensors {
		if s.Name == name {
			return s, true
		}
	}
	return SensorData{}, false
}

// Validate checks ranges and fills in the Sentinel-2 sensor and default
// sensor name when they are missing.
func (c *ConfigData) Validate() error {
	if err := ValidateSigma(c.Pipeline.Sigma); err != nil {
		return fmt.Errorf("pipeline.sigma: %w", err)
	}
	if err := ValidateThreshold(c.Pipeline.Threshold); err != nil {
		return fmt.Errorf("pipeline.threshold: %w", err)
	}

	if _, ok := c.Sensor(DefaultSensorName); !ok {
		c.Sensors = append([]SensorData{Sentinel2Sensor()}, c.Sensors...)
	}

	seen := make(map[string]bool)
	for _, s := range c.Sensors {
		if s.Name == "" {
			return fmt.Errorf("sensor with red_band %d and nir_band %d has no name", s.RedBand, s.NIRBand)
		}
		if seen[s.Name] {
			return fmt.Errorf("sensor %q is defined more than once", s.Name)
		}
		seen[s.Name] = true
		if s.RedBand < 0 || s.NIRBand < 0 {
			return fmt.Errorf("sensor %q: band indices must be non-negative", s.Name)
		}
		if s.RedBand == s.NIRBand {
			return fmt.Errorf("sensor %q: red and nir bands are both %d", s.Name, s.RedBand)
		}
	}

	if c.Pipeline.DefaultSensor == "" {
		c.Pipeline.DefaultSensor = DefaultSensorName
	}
	if _, ok := c.Sensor(c.Pipeline.DefaultSensor); !ok {
		return fmt.Errorf("pipeline.default_sensor %q is not a configured sensor", c.Pipeline.DefaultSensor)
	}

	if c.RESTServer.Port < 0 || c.RESTServer.Port > 65535 {
		return fmt.Errorf("rest.port %d is out of range", c.RESTServer.Port)
	}
	if c.RESTServer.MaxUploadMB < 0 {
		return fmt.Errorf("rest.max_upload_mb must not be negative")
	}

	return nil
}

// ValidateSigma checks sigma against [MinSigma, MaxSigma].
func ValidateSigma(sigma float64) error {
	if math.IsNaN(sigma) || sigma < MinSigma || sigma > MaxSigma {
		return fmt.Errorf("sigma %v outside [%v, %v]", sigma, MinSigma, MaxSigma)
	}
	return nil
}

// ValidateThreshold checks threshold against [MinThreshold, MaxThreshold].
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < MinThreshold || threshold > MaxThreshold {
		return fmt.Errorf("threshold %v outside [%v, %v]", threshold, MinThreshold, MaxThreshold)
	}
	return nil
}
