package keypoints

import (
	"context"
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	uts "go.viam.com/utils"

	"github.com/fengyu3941/marker-based-ar-demo/rimage"
	"github.com/fengyu3941/marker-based-ar-demo/utils"
)

// ORBConfig contains the parameters / configs needed to compute ORB features.
type ORBConfig struct {
	Layers          int          `json:"n_layers"`
	DownscaleFactor int          `json:"downscale_factor"`
	MaxFeatures     int          `json:"max_features"`
	FastConf        *FASTConfig  `json:"fast"`
	BRIEFConf       *BRIEFConfig `json:"brief"`
}

// DefaultORBConfig returns the ORB parameters used when no configuration is given.
func DefaultORBConfig() *ORBConfig {
	return &ORBConfig{
		Layers:          3,
		DownscaleFactor: 2,
		MaxFeatures:     500,
		FastConf: &FASTConfig{
			Threshold:      20,
			NMatchesCircle: 9,
			NMSWinSize:     7,
			Oriented:       true,
		},
		BRIEFConf: &BRIEFConfig{
			N:              256,
			Sampling:       normal,
			UseOrientation: true,
			PatchSize:      31,
		},
	}
}

// LoadORBConfiguration loads a ORBConfig from a json file.
func LoadORBConfiguration(file string) (*ORBConfig, error) {
	var config ORBConfig
	filePath := filepath.Clean(file)
	//nolint:gosec
	configFile, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer uts.UncheckedErrorFunc(configFile.Close)
	if err := json.NewDecoder(configFile).Decode(&config); err != nil {
		return nil, errors.Wrapf(err, "decoding %q", file)
	}
	if err := config.Validate(file); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate ensures all parts of the ORBConfig are valid.
func (config *ORBConfig) Validate(path string) error {
	if config.Layers < 1 {
		return uts.NewConfigValidationError(path, errors.New("n_layers should be >= 1"))
	}
	if config.DownscaleFactor <= 1 {
		return uts.NewConfigValidationError(path, errors.New("downscale_factor should be greater than 1"))
	}
	if config.MaxFeatures < 0 {
		return uts.NewConfigValidationError(path, errors.New("max_features should be >= 0"))
	}
	if config.FastConf == nil {
		return uts.NewConfigValidationFieldRequiredError(path, "fast")
	}
	if config.BRIEFConf == nil {
		return uts.NewConfigValidationFieldRequiredError(path, "brief")
	}
	if err := config.FastConf.Validate(path + ".fast"); err != nil {
		return err
	}
	return config.BRIEFConf.Validate(path + ".brief")
}

// ORBExtractor computes ORB keypoints and descriptors. The BRIEF sample pairs are drawn once, so
// descriptors computed by the same extractor on different images can be matched.
type ORBExtractor struct {
	cfg   *ORBConfig
	pairs *SamplePairs
}

// NewORBExtractor validates the configuration and draws the BRIEF sample pairs.
func NewORBExtractor(cfg *ORBConfig) (*ORBExtractor, error) {
	if cfg == nil {
		return nil, errors.New("no ORB configuration")
	}
	if err := cfg.Validate("orb"); err != nil {
		return nil, err
	}
	b := cfg.BRIEFConf
	return &ORBExtractor{
		cfg:   cfg,
		pairs: GenerateSamplePairs(b.Sampling, b.N, b.PatchSize, b.Seed),
	}, nil
}

// Config returns the extractor configuration.
func (e *ORBExtractor) Config() *ORBConfig {
	return e.cfg
}

// Compute computes ORB keypoints on a gray image. Pyramid levels are processed concurrently but the
// output only depends on the image: keypoints are ordered by decreasing response, ties by level
// then row major position.
func (e *ORBExtractor) Compute(ctx context.Context, im *image.Gray) ([]Descriptor, KeyPoints, error) {
	return ComputeORBKeypoints(ctx, im, e.pairs, e.cfg)
}

type levelFeatures struct {
	descs []Descriptor
	kps   KeyPoints
}

// ComputeORBKeypoints compute ORB keypoints on gray image.
func ComputeORBKeypoints(ctx context.Context, im *image.Gray, sp *SamplePairs, cfg *ORBConfig) ([]Descriptor, KeyPoints, error) {
	if im.Bounds().Min != (image.Point{}) {
		im = rimage.ConvertToGray(im)
	}
	pyramid, err := GetImagePyramid(im, cfg.Layers, float64(cfg.DownscaleFactor))
	if err != nil {
		return nil, nil, err
	}
	levels := make([]levelFeatures, len(pyramid.Images))
	fs := make([]utils.SimpleFunc, len(pyramid.Images))
	for i := range pyramid.Images {
		level := i
		fs[i] = func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			descs, kps, err := computeLevel(pyramid.Images[level], level, im.Bounds(), sp, cfg)
			if err != nil {
				return errors.Wrapf(err, "pyramid level %d", level)
			}
			levels[level] = levelFeatures{descs, kps}
			return nil
		}
	}
	if _, err := utils.RunInParallel(ctx, fs); err != nil {
		return nil, nil, err
	}

	type feature struct {
		desc Descriptor
		kp   KeyPoint
	}
	var features []feature
	for _, l := range levels {
		for i := range l.kps {
			features = append(features, feature{l.descs[i], l.kps[i]})
		}
	}
	sort.SliceStable(features, func(i, j int) bool { return features[i].kp.Response > features[j].kp.Response })
	if cfg.MaxFeatures > 0 && len(features) > cfg.MaxFeatures {
		features = features[:cfg.MaxFeatures]
	}
	descs := make([]Descriptor, len(features))
	kps := make(KeyPoints, len(features))
	for i, f := range features {
		descs[i], kps[i] = f.desc, f.kp
	}
	return descs, kps, nil
}

func computeLevel(img *image.Gray, level int, original image.Rectangle, sp *SamplePairs, cfg *ORBConfig,
) ([]Descriptor, KeyPoints, error) {
	pts, responses := ComputeFAST(img, cfg.FastConf)
	// drop keypoints whose descriptor patch would leave the image
	margin := descriptorMargin(cfg.BRIEFConf)
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	fastKps := &FASTKeypoints{}
	for i, p := range pts {
		if p.X < margin || p.Y < margin || p.X >= w-margin || p.Y >= h-margin {
			continue
		}
		fastKps.Points = append(fastKps.Points, p)
		fastKps.Responses = append(fastKps.Responses, responses[i])
	}
	if len(fastKps.Points) == 0 {
		return nil, nil, nil
	}
	if cfg.FastConf.Oriented {
		okps, err := GetOrientedKeyPointsFromKeyPoints(img, fastKps.Points)
		if err != nil {
			return nil, nil, err
		}
		fastKps.Orientations = okps.Orientations
	}
	descs, err := ComputeBRIEFDescriptors(img, sp, fastKps, cfg.BRIEFConf)
	if err != nil {
		return nil, nil, err
	}
	kps := make(KeyPoints, len(fastKps.Points))
	for i, p := range fastKps.Points {
		x, y := levelToImage(p, img.Bounds(), original)
		kps[i] = KeyPoint{X: x, Y: y, Response: fastKps.Responses[i], Octave: level}
		if fastKps.IsOriented() {
			kps[i].Angle = fastKps.Orientations[i]
		}
	}
	return descs, kps, nil
}
