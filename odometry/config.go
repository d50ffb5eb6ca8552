// Package odometry implements a real-time LiDAR odometry pipeline: scan
// deskewing, voxel preprocessing, adaptive-threshold point-to-point
// registration against a voxel-hashed local map, and map maintenance.
package odometry

import (
	"os"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the immutable per-run parameter set for a pipeline. There is one
// flat structure; the nested shape only exists at the YAML boundary.
type Config struct {
	// VoxelSize is the map voxel edge length. Zero or negative means derive
	// it as MaxRange/100 during validation.
	VoxelSize float64
	// MaxRange and MinRange bound the usable distance of scan points from
	// the sensor.
	MaxRange float64
	MinRange float64
	// MaxPointsPerVoxel caps how many map points one voxel retains.
	MaxPointsPerVoxel int
	// MinMotionTh is the per-frame motion magnitude below which the
	// adaptive threshold ignores the observation.
	MinMotionTh float64
	// InitialThreshold is the correspondence threshold used before any
	// motion history exists.
	InitialThreshold float64
	// MaxNumIterations caps registration rounds per frame.
	MaxNumIterations int
	// ConvergenceCriterion stops registration once the pose increment
	// magnitude falls below it.
	ConvergenceCriterion float64
	// MaxNumThreads bounds per-frame data parallelism; 0 uses all CPUs.
	MaxNumThreads int
	// Deskew enables motion compensation when per-point timestamps are given.
	Deskew bool
}

// DefaultConfig returns the standard parameter set.
func DefaultConfig() Config {
	return Config{
		VoxelSize:            1.0,
		MaxRange:             100.0,
		MinRange:             0.0,
		MaxPointsPerVoxel:    20,
		MinMotionTh:          0.1,
		InitialThreshold:     2.0,
		MaxNumIterations:     500,
		ConvergenceCriterion: 0.0001,
		MaxNumThreads:        0,
		Deskew:               true,
	}
}

// Validate normalizes a config in place: a min range above the max range is
// forced back to 0 with a warning, and an unset voxel size becomes
// MaxRange/100.
func (c *Config) Validate(logger golog.Logger) {
	if c.MaxRange < c.MinRange {
		logger.Warn("max_range is smaller than min_range, setting min_range to 0.0")
		c.MinRange = 0.0
	}
	if c.VoxelSize <= 0 {
		c.VoxelSize = c.MaxRange / 100.0
	}
}

// yamlConfig is the nested on-disk schema. Pointer fields distinguish
// "absent" from zero so defaults survive partial files.
type yamlConfig struct {
	Data struct {
		MaxRange *float64 `yaml:"max_range"`
		MinRange *float64 `yaml:"min_range"`
		Deskew   *bool    `yaml:"deskew"`
	} `yaml:"data"`
	Mapping struct {
		VoxelSize         *float64 `yaml:"voxel_size"`
		MaxPointsPerVoxel *int     `yaml:"max_points_per_voxel"`
	} `yaml:"mapping"`
	AdaptiveThreshold struct {
		InitialThreshold *float64 `yaml:"initial_threshold"`
		MinMotionTh      *float64 `yaml:"min_motion_th"`
	} `yaml:"adaptive_threshold"`
	Registration struct {
		MaxNumIterations     *int     `yaml:"max_num_iterations"`
		ConvergenceCriterion *float64 `yaml:"convergence_criterion"`
		MaxNumThreads        *int     `yaml:"max_num_threads"`
	} `yaml:"registration"`
}

// LoadConfig reads a nested YAML config file, flattens it over the defaults,
// and validates the result. An empty path returns the validated defaults.
func LoadConfig(path string, logger golog.Logger) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "cannot read config file %q", path)
		}
		var yc yamlConfig
		if err := yaml.Unmarshal(raw, &yc); err != nil {
			return Config{}, errors.Wrapf(err, "cannot parse config file %q", path)
		}
		if yc.Data.MaxRange != nil {
			cfg.MaxRange = *yc.Data.MaxRange
		}
		if yc.Data.MinRange != nil {
			cfg.MinRange = *yc.Data.MinRange
		}
		if yc.Data.Deskew != nil {
			cfg.Deskew = *yc.Data.Deskew
		}
		if yc.Mapping.VoxelSize != nil {
			cfg.VoxelSize = *yc.Mapping.VoxelSize
		} else {
			// unset in the file still means "derive from max range"
			cfg.VoxelSize = 0
		}
		if yc.Mapping.MaxPointsPerVoxel != nil {
			cfg.MaxPointsPerVoxel = *yc.Mapping.MaxPointsPerVoxel
		}
		if yc.AdaptiveThreshold.InitialThreshold != nil {
			cfg.InitialThreshold = *yc.AdaptiveThreshold.InitialThreshold
		}
		if yc.AdaptiveThreshold.MinMotionTh != nil {
			cfg.MinMotionTh = *yc.AdaptiveThreshold.MinMotionTh
		}
		if yc.Registration.MaxNumIterations != nil {
			cfg.MaxNumIterations = *yc.Registration.MaxNumIterations
		}
		if yc.Registration.ConvergenceCriterion != nil {
			cfg.ConvergenceCriterion = *yc.Registration.ConvergenceCriterion
		}
		if yc.Registration.MaxNumThreads != nil {
			cfg.MaxNumThreads = *yc.Registration.MaxNumThreads
		}
	}
	cfg.Validate(logger)
	return cfg, nil
}

// WriteConfig dumps a config to the nested YAML schema.
func WriteConfig(cfg Config, path string) error {
	var yc yamlConfig
	yc.Data.MaxRange = &cfg.MaxRange
	yc.Data.MinRange = &cfg.MinRange
	yc.Data.Deskew = &cfg.Deskew
	yc.Mapping.VoxelSize = &cfg.VoxelSize
	yc.Mapping.MaxPointsPerVoxel = &cfg.MaxPointsPerVoxel
	yc.AdaptiveThreshold.InitialThreshold = &cfg.InitialThreshold
	yc.AdaptiveThreshold.MinMotionTh = &cfg.MinMotionTh
	yc.Registration.MaxNumIterations = &cfg.MaxNumIterations
	yc.Registration.ConvergenceCriterion = &cfg.ConvergenceCriterion
	yc.Registration.MaxNumThreads = &cfg.MaxNumThreads
	raw, err := yaml.Marshal(&yc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
