package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// PipelineYAML uses pointers so that an explicit zero (sigma: 0 disables
// smoothing) can be told apart from an omitted key
type PipelineYAML struct {
	Sigma         *float64 `yaml:"sigma,omitempty"`
	Threshold     *float64 `yaml:"threshold,omitempty"`
	Segmentation  *bool    `yaml:"segmentation,omitempty"`
	DefaultSensor string   `yaml:"default_sensor,omitempty"`
}

type SensorYAML struct {
	Name    string `yaml:"name"`
	RedBand int    `yaml:"red_band"`
	NIRBand int    `yaml:"nir_band"`
}

type RESTServerYAML struct {
	ListenAddr  string `yaml:"listen_addr,omitempty"`
	Port        int    `yaml:"port,omitempty"`
	MaxUploadMB int    `yaml:"max_upload_mb,omitempty"`
	TLSCertPath string `yaml:"tls_cert_path,omitempty"`
	TLSKeyPath  string `yaml:"tls_key_path,omitempty"`
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	if y.config != nil {
		return y.config, nil
	}

	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	// Load into temporary struct with YAML tags
	var yamlConfig struct {
		Pipeline   PipelineYAML   `yaml:"pipeline,omitempty"`
		Sensors    []SensorYAML   `yaml:"sensors,omitempty"`
		RESTServer RESTServerYAML `yaml:"rest,omitempty"`
	}

	err = yaml.Unmarshal(cfgFile, &yamlConfig)
	if err != nil {
		return nil, err
	}

	// Convert to our internal format, starting from defaults
	config := DefaultConfigData()

	if yamlConfig.Pipeline.Sigma != nil {
		config.Pipeline.Sigma = *yamlConfig.Pipeline.Sigma
	}
	if yamlConfig.Pipeline.Threshold != nil {
		config.Pipeline.Threshold = *yamlConfig.Pipeline.Threshold
	}
	if yamlConfig.Pipeline.Segmentation != nil {
		config.Pipeline.SegmentationEnabled = *yamlConfig.Pipeline.Segmentation
	}
	if yamlConfig.Pipeline.DefaultSensor != "" {
		config.Pipeline.DefaultSensor = yamlConfig.Pipeline.DefaultSensor
	}

	if len(yamlConfig.Sensors) > 0 {
		config.Sensors = make([]SensorData, len(yamlConfig.Sensors))
		for i, s := range yamlConfig.Sensors {
			config.Sensors[i] = SensorData{
				Name:    s.Name,
				RedBand: s.RedBand,
				NIRBand: s.NIRBand,
			}
		}
	}

	config.RESTServer = RESTServerData{
		ListenAddr:  yamlConfig.RESTServer.ListenAddr,
		Port:        yamlConfig.RESTServer.Port,
		MaxUploadMB: yamlConfig.RESTServer.MaxUploadMB,
		TLSCertPath: yamlConfig.RESTServer.TLSCertPath,
		TLSKeyPath:  yamlConfig.RESTServer.TLSKeyPath,
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	y.config = config
	return config, nil
}

// GetPipelineConfig returns the pipeline defaults
func (y *YAMLProvider) GetPipelineConfig() (*PipelineData, error) {
	config, err := y.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &config.Pipeline, nil
}

// GetSensors returns the configured sensor band layouts
func (y *YAMLProvider) GetSensors() ([]SensorData, error) {
	config, err := y.LoadConfig()
	if err != nil {
		return nil, err
	}
	return config.Sensors, nil
}

// GetRESTServerConfig returns the REST server configuration
func (y *YAMLProvider) GetRESTServerConfig() (*RESTServerData, error) {
	config, err := y.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &config.RESTServer, nil
}

// IsReadOnly returns true since YAML files are read-only in this implementation
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close does nothing for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}
