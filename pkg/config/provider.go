package config

import (
	"errors"
	"fmt"
	"runtime"
	"slices"

	"github.com/chrissnell/landchange/internal/regression"
	"github.com/chrissnell/landchange/internal/segment"
	"github.com/chrissnell/landchange/internal/structbreak"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetDetectionConfig() (*DetectionData, error)
	GetStorageConfig() (*StorageData, error)

	IsReadOnly() bool
	Close() error
}

var (
	ErrNoInput       = errors.New("config: input path is required")
	ErrInvalidOption = errors.New("config: invalid option")
)

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Detection DetectionData `json:"detection" yaml:"detection"`
	Input     InputData     `json:"input" yaml:"input"`
	Storage   StorageData   `json:"storage,omitempty" yaml:"storage,omitempty"`
	Metrics   MetricsData   `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Workers   int           `json:"workers,omitempty" yaml:"workers,omitempty"`
	FailFast  bool          `json:"fail_fast,omitempty" yaml:"fail_fast,omitempty"`
}

// DetectionData holds the break detection parameters shared by every pixel
type DetectionData struct {
	Consecutive int     `json:"consecutive,omitempty" yaml:"consecutive,omitempty"`
	Threshold   float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	MinObs      int     `json:"min_obs,omitempty" yaml:"min_obs,omitempty"`
	MinRMSE     float64 `json:"min_rmse,omitempty" yaml:"min_rmse,omitempty"`
	FitIndices  []int   `json:"fit_indices,omitempty" yaml:"fit_indices,omitempty"`
	TestIndices []int   `json:"test_indices,omitempty" yaml:"test_indices,omitempty"`
	Strategy    string  `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Lambda      float64 `json:"lambda,omitempty" yaml:"lambda,omitempty"`
	MaskCrit    float64 `json:"mask_crit,omitempty" yaml:"mask_crit,omitempty"`
	// Band indices may legitimately be zero, so absence is nil.
	GreenBand *int `json:"green_band,omitempty" yaml:"green_band,omitempty"`
	SWIR1Band *int `json:"swir1_band,omitempty" yaml:"swir1_band,omitempty"`
	Robust    bool `json:"robust,omitempty" yaml:"robust,omitempty"`

	// ResidualCheck, when set, runs a control chart over each segment's
	// residuals after detection.
	ResidualCheck *ResidualCheckData `json:"residual_check,omitempty" yaml:"residual_check,omitempty"`
}

// ResidualCheckData configures the EWMA test of segment residuals
type ResidualCheckData struct {
	Band   int     `json:"band" yaml:"band"`
	Lambda float64 `json:"lambda,omitempty" yaml:"lambda,omitempty"`
	Crit   float64 `json:"crit,omitempty" yaml:"crit,omitempty"`
	SDType string  `json:"sd_type,omitempty" yaml:"sd_type,omitempty"`
}

// InputData describes where the per-pixel series come from
type InputData struct {
	Path        string `json:"path" yaml:"path"`
	Frequencies []int  `json:"frequencies,omitempty" yaml:"frequencies,omitempty"`
}

// StorageData holds the configuration for the result sinks
type StorageData struct {
	SQLite      *SQLiteData      `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
	TimescaleDB *TimescaleDBData `json:"timescaledb,omitempty" yaml:"timescaledb,omitempty"`
	File        *FileData        `json:"file,omitempty" yaml:"file,omitempty"`
}

type SQLiteData struct {
	Path string `json:"path" yaml:"path"`
}

type TimescaleDBData struct {
	ConnectionString string `json:"connection_string" yaml:"connection_string"`
}

// FileData configures the flat-file result writer. Format is "json" or
// "msgpack".
type FileData struct {
	Path   string `json:"path" yaml:"path"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

type MetricsData struct {
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
}

// DefaultFrequencies are the annual harmonics modeled when none are configured.
var DefaultFrequencies = []int{1, 2, 3}

// ApplyDefaults fills every unset option with its default value.
func (c *ConfigData) ApplyDefaults() {
	def := segment.DefaultConfig()
	d := &c.Detection

	if d.Consecutive <= 0 {
		d.Consecutive = def.Consecutive
	}
	if d.Threshold <= 0 {
		d.Threshold = def.Threshold
	}
	if d.Strategy == "" {
		d.Strategy = string(def.Strategy)
	}
	if d.Lambda <= 0 {
		d.Lambda = def.Lambda
	}
	if d.MaskCrit <= 0 {
		d.MaskCrit = def.MaskCrit
	}
	if d.GreenBand == nil {
		b := def.GreenBand
		d.GreenBand = &b
	}
	if d.SWIR1Band == nil {
		b := def.SWIR1Band
		d.SWIR1Band = &b
	}

	if rc := d.ResidualCheck; rc != nil {
		if rc.Lambda <= 0 {
			rc.Lambda = structbreak.DefaultLambda
		}
		if rc.Crit <= 0 {
			rc.Crit = structbreak.DefaultCrit
		}
		if rc.SDType == "" {
			rc.SDType = string(structbreak.SampleSD)
		}
	}

	if len(c.Input.Frequencies) == 0 {
		c.Input.Frequencies = append([]int(nil), DefaultFrequencies...)
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Storage.File != nil && c.Storage.File.Format == "" {
		c.Storage.File.Format = "json"
	}
}

// Validate reports the first option that cannot be used.
func (c *ConfigData) Validate() error {
	if c.Input.Path == "" {
		return ErrNoInput
	}
	if c.Detection.Consecutive < 1 {
		return fmt.Errorf("%w: consecutive must be at least 1, got %d", ErrInvalidOption, c.Detection.Consecutive)
	}
	if c.Detection.Threshold <= 0 {
		return fmt.Errorf("%w: threshold must be positive, got %g", ErrInvalidOption, c.Detection.Threshold)
	}
	switch regression.Strategy(c.Detection.Strategy) {
	case regression.StrategyFixedPenalty, regression.StrategyBIC:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidOption, c.Detection.Strategy)
	}
	if rc := c.Detection.ResidualCheck; rc != nil {
		if rc.Band < 0 || (c.Detection.FitIndices != nil && !slices.Contains(c.Detection.FitIndices, rc.Band)) {
			return fmt.Errorf("%w: residual check band %d is not a fit band", ErrInvalidOption, rc.Band)
		}
		if rc.Lambda > 1 {
			return fmt.Errorf("%w: residual check lambda must be at most 1, got %g", ErrInvalidOption, rc.Lambda)
		}
		switch structbreak.SDType(rc.SDType) {
		case structbreak.SampleSD, structbreak.MovingRange:
		default:
			return fmt.Errorf("%w: unknown residual check sd_type %q", ErrInvalidOption, rc.SDType)
		}
	}
	for _, f := range c.Input.Frequencies {
		if f < 1 {
			return fmt.Errorf("%w: frequency must be positive, got %d", ErrInvalidOption, f)
		}
	}
	if f := c.Storage.File; f != nil {
		if f.Path == "" {
			return fmt.Errorf("%w: file sink path is required", ErrInvalidOption)
		}
		if f.Format != "json" && f.Format != "msgpack" {
			return fmt.Errorf("%w: unknown file format %q", ErrInvalidOption, f.Format)
		}
	}
	return nil
}

// ToModelConfig converts the detection options into the detector's
// parameters for the pixel at (px, py).
func (d DetectionData) ToModelConfig(px, py int) segment.Config {
	cfg := segment.DefaultConfig()

	if d.Consecutive > 0 {
		cfg.Consecutive = d.Consecutive
	}
	if d.Threshold > 0 {
		cfg.Threshold = d.Threshold
	}
	if d.Strategy != "" {
		cfg.Strategy = regression.Strategy(d.Strategy)
	}
	if d.Lambda > 0 {
		cfg.Lambda = d.Lambda
	}
	if d.MaskCrit > 0 {
		cfg.MaskCrit = d.MaskCrit
	}
	if d.GreenBand != nil {
		cfg.GreenBand = *d.GreenBand
	}
	if d.SWIR1Band != nil {
		cfg.SWIR1Band = *d.SWIR1Band
	}

	cfg.MinObs = d.MinObs
	cfg.MinRMSE = d.MinRMSE
	if d.FitIndices != nil {
		cfg.FitIndices = append([]int{}, d.FitIndices...)
	}
	if d.TestIndices != nil {
		cfg.TestIndices = append([]int{}, d.TestIndices...)
	}
	cfg.Px, cfg.Py = px, py

	return cfg
}
