package marker

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/fengyu3941/marker-based-ar-demo/rimage/transform"
	"github.com/fengyu3941/marker-based-ar-demo/vision/keypoints"
)

// DefaultMaxDistance is the largest hamming distance of a kept match, out of 256 bits.
const DefaultMaxDistance = 64

// Config contains the tunable parameters of a Detector.
type Config struct {
	transform.HomographyConfig
	Ratio       float64 `json:"ratio"`
	MaxDistance int     `json:"max_distance"`
	CrossCheck  bool    `json:"cross_check"`
	// ORB is used when building a pattern. Frames are always described like their pattern.
	ORB *keypoints.ORBConfig `json:"orb,omitempty"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		HomographyConfig: transform.DefaultHomographyConfig(),
		Ratio:            keypoints.DefaultRatio,
		MaxDistance:      DefaultMaxDistance,
		ORB:              keypoints.DefaultORBConfig(),
	}
}

// LoadConfig reads a JSON5 configuration, so hand-tuned files may carry comments, unquoted keys
// and trailing commas. Missing fields keep their default value and the reprojection threshold is
// clamped to its valid range.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	//nolint:gosec
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "decoding %q", path)
	}
	cfg.ReprojectionThreshold = transform.ClampReprojectionThreshold(cfg.ReprojectionThreshold)
	if err := cfg.Validate(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns every invalid field of the configuration.
func (cfg *Config) Validate(path string) error {
	var err error
	err = multierr.Append(err, cfg.HomographyConfig.Validate(path))
	if cfg.Ratio <= 0 || cfg.Ratio > 1 {
		err = multierr.Append(err, goutils.NewConfigValidationError(path, errors.New("ratio should be in (0, 1]")))
	}
	if cfg.MaxDistance < 0 {
		err = multierr.Append(err, goutils.NewConfigValidationError(path, errors.New("max_distance should be >= 0")))
	}
	if cfg.ORB != nil {
		err = multierr.Append(err, cfg.ORB.Validate(path+".orb"))
	}
	return err
}

// Clone returns a deep copy of the configuration.
func (cfg *Config) Clone() *Config {
	out := *cfg
	if cfg.ORB != nil {
		orb := *cfg.ORB
		if orb.FastConf != nil {
			fast := *orb.FastConf
			orb.FastConf = &fast
		}
		if orb.BRIEFConf != nil {
			brief := *orb.BRIEFConf
			orb.BRIEFConf = &brief
		}
		out.ORB = &orb
	}
	return &out
}
