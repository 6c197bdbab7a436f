// Package config provides configuration loading and management for spindlefit.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"spindlefit/pkg/fitting"
	"spindlefit/pkg/threshold"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many frames are fitted in parallel
		NumCores int `yaml:"numCores"`

		// OverwriteManual lets a batch run replace manually set frames
		OverwriteManual bool `yaml:"overwriteManual"`
	} `yaml:"processing"`

	// Threshold parameters
	Threshold struct {
		// Method is "fixed" or "percentile"
		Method string `yaml:"method"`

		// Cutoff is an intensity for the fixed method or a percentile (0-100).
		// The default of 1000 suits 16-bit stacks; 8-bit images top out at 255
		Cutoff float64 `yaml:"cutoff"`

		// MinRegionSize drops connected regions with fewer pixels
		MinRegionSize int `yaml:"minRegionSize"`

		// ErosionIterations is the number of erosion passes, 0 disables erosion
		ErosionIterations int `yaml:"erosionIterations"`

		// ErosionFactor is the 3x3 neighbour count a pixel needs to survive erosion
		ErosionFactor int `yaml:"erosionFactor"`

		// ClearBorder removes signal touching the frame edge
		ClearBorder bool `yaml:"clearBorder"`

		// MedianFilter smooths each frame with a 3x3 median before thresholding
		MedianFilter bool `yaml:"medianFilter"`
	} `yaml:"threshold"`

	// Pole fitting parameters
	Fitting struct {
		// MinQuality is the minimum fraction of variance along the spindle axis
		MinQuality float64 `yaml:"minQuality"`

		// EndpointWindow is the distance along the axis averaged into each pole
		EndpointWindow float64 `yaml:"endpointWindow"`

		// SelectRegion restricts the fit to the most central large object
		SelectRegion bool `yaml:"selectRegion"`

		// MergeDistance joins fragments closer than this many pixels
		MergeDistance int `yaml:"mergeDistance"`

		// CurveSamples is the quadrature order of the shape metrics, 0 disables them
		CurveSamples int `yaml:"curveSamples"`
	} `yaml:"fitting"`

	// Output parameters
	Output struct {
		// TextFile is the path of the tab-separated results file
		TextFile string `yaml:"textFile"`

		// Database is an optional SQLite file receiving the results
		Database string `yaml:"database"`

		// SaveIntermediaryResults determines whether to save masks and frames as PNG
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where intermediary results are written
		IntermediaryDir string `yaml:"intermediaryDir"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Manual corrections applied after the batch run
	Manual struct {
		// Poles are hand-placed pole pairs
		Poles []ManualPoles `yaml:"poles"`

		// Excluded lists frames tossed from the results
		Excluded []int `yaml:"excluded"`
	} `yaml:"manual"`
}

// ManualPoles is a pole pair placed by hand on one frame
type ManualPoles struct {
	Frame int        `yaml:"frame"`
	PoleA [2]float64 `yaml:"poleA"`
	PoleB [2]float64 `yaml:"poleB"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.OverwriteManual = false

	// Set default threshold parameters
	tp := threshold.DefaultParams()
	cfg.Threshold.Method = tp.Method.String()
	cfg.Threshold.Cutoff = tp.Cutoff
	cfg.Threshold.MinRegionSize = tp.MinRegionSize
	cfg.Threshold.ErosionIterations = tp.ErosionIterations
	cfg.Threshold.ErosionFactor = tp.ErosionFactor
	cfg.Threshold.ClearBorder = tp.ClearBorder
	cfg.Threshold.MedianFilter = tp.MedianFilter

	// Set default fitting parameters
	fp := fitting.DefaultParams()
	cfg.Fitting.MinQuality = fp.MinQuality
	cfg.Fitting.EndpointWindow = fp.EndpointWindow
	cfg.Fitting.SelectRegion = fp.SelectRegion
	cfg.Fitting.MergeDistance = fp.MergeDistance
	cfg.Fitting.CurveSamples = fp.CurveSamples

	// Set default output parameters
	cfg.Output.TextFile = "spindle_results.txt"
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.Verbose = false

	return cfg
}

// ThresholdParams converts the threshold section to thresholder parameters
func (c *Config) ThresholdParams() (threshold.Params, error) {
	method, err := threshold.ParseMethod(c.Threshold.Method)
	if err != nil {
		return threshold.Params{}, err
	}
	p := threshold.Params{
		Method:            method,
		Cutoff:            c.Threshold.Cutoff,
		MinRegionSize:     c.Threshold.MinRegionSize,
		ErosionIterations: c.Threshold.ErosionIterations,
		ErosionFactor:     c.Threshold.ErosionFactor,
		ClearBorder:       c.Threshold.ClearBorder,
		MedianFilter:      c.Threshold.MedianFilter,
	}
	return p, p.Validate()
}

// FitParams converts the fitting section to fitter parameters
func (c *Config) FitParams() (fitting.Params, error) {
	p := fitting.Params{
		MinQuality:     c.Fitting.MinQuality,
		EndpointWindow: c.Fitting.EndpointWindow,
		SelectRegion:   c.Fitting.SelectRegion,
		MergeDistance:  c.Fitting.MergeDistance,
		CurveSamples:   c.Fitting.CurveSamples,
	}
	return p, p.Validate()
}

// Validate checks the configuration for values no component accepts
func (c *Config) Validate() error {
	if c.Processing.NumCores < 0 {
		return fmt.Errorf("processing.numCores must be non-negative, got %d", c.Processing.NumCores)
	}
	if _, err := c.ThresholdParams(); err != nil {
		return fmt.Errorf("threshold: %w", err)
	}
	if _, err := c.FitParams(); err != nil {
		return fmt.Errorf("fitting: %w", err)
	}
	for _, m := range c.Manual.Poles {
		if m.Frame < 0 {
			return fmt.Errorf("manual.poles: frame index must be non-negative, got %d", m.Frame)
		}
	}
	for _, i := range c.Manual.Excluded {
		if i < 0 {
			return fmt.Errorf("manual.excluded: frame index must be non-negative, got %d", i)
		}
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
