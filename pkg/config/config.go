// Package config provides configuration loading and management for the
// aberration estimation tools. It handles loading configuration from
// YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the estimator configuration loaded from YAML.
type Config struct {
	// Estimation parameters
	Estimation struct {
		// KMin is the inner frequency threshold for beam-tilt
		// estimation, in angstroms.
		KMin float64 `yaml:"kmin"`

		// AberrMaxN is the maximum degree of Zernike polynomials used
		// to fit odd (antisymmetric) aberrations. Below 3 only the
		// beam tilt is fitted.
		AberrMaxN int `yaml:"aberrMaxN"`

		// XRing0 and XRing1 bound the exclusion ring in angstroms.
		// Negative values disable the ring.
		XRing0 float64 `yaml:"xring0"`
		XRing1 float64 `yaml:"xring1"`

		// Threads is the worker-pool size used during accumulation.
		Threads int `yaml:"threads"`

		// ImageSize is the particle box size in pixels.
		ImageSize int `yaml:"imageSize"`
	} `yaml:"estimation"`

	// Output parameters
	Output struct {
		// Path is the directory checkpoints and diagnostics are
		// written under.
		Path string `yaml:"path"`

		// Diagnostics enables per-group phase-field dumps.
		Diagnostics bool `yaml:"diagnostics"`

		// Verbose controls progress output.
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Estimation.KMin = 20.0
	cfg.Estimation.AberrMaxN = 0
	cfg.Estimation.XRing0 = -1
	cfg.Estimation.XRing1 = -1
	cfg.Estimation.Threads = runtime.NumCPU()
	cfg.Estimation.ImageSize = 0 // taken from the input data when zero

	cfg.Output.Path = "AberrationFit"
	cfg.Output.Diagnostics = false
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
