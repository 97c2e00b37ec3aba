package keypoints

import (
	"encoding/json"
	"image"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	uts "go.viam.com/utils"

	"github.com/fengyu3941/marker-based-ar-demo/rimage"
	"github.com/fengyu3941/marker-based-ar-demo/utils"
)

// Descriptor is a BRIEF bit string packed in 64 bit words.
type Descriptor []uint64

// SamplingType stores 0 if a sampling of image points for BRIEF is uniform, 1 if gaussian, 2 if fixed.
type SamplingType int

const (
	uniform SamplingType = iota // 0
	normal                      // 1
	fixed                       // 2
)

// SamplePairs are N pairs of points used to create the BRIEF Descriptors of a patch.
type SamplePairs struct {
	P0 []image.Point
	P1 []image.Point
	N  int
}

// GenerateSamplePairs generates n samples for a patch size with the chosen Sampling Type. The
// random samplings are drawn from a source seeded with seed, so that the descriptors of a pattern
// and of the frames it is searched in are comparable.
func GenerateSamplePairs(dist SamplingType, n, patchSize int, seed int64) *SamplePairs {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec
	// sample positions
	var xs0, ys0, xs1, ys1 []int
	if dist == fixed {
		xs0 = sampleIntegers(patchSize, n, dist, rng)
		ys0 = sampleIntegers(patchSize, n, dist, rng)
		xs1 = sampleIntegers(patchSize, n, dist, rng)
		for i := 0; i < n; i++ {
			ys1 = append(ys1, -ys0[i])
			if i%2 == 0 {
				xs0[i] = 2 * xs0[i] / 3
				xs1[i] = -2 * xs1[i] / 3
				ys1[i] = ys0[i]
			}
		}
		// regularly spaced positions line up along the diagonal, shuffle them to decorrelate the bits
		rng.Shuffle(n, func(i, j int) { xs0[i], xs0[j] = xs0[j], xs0[i] })
		rng.Shuffle(n, func(i, j int) { xs1[i], xs1[j] = xs1[j], xs1[i] })
	} else {
		xs0 = sampleIntegers(patchSize, n, dist, rng)
		ys0 = sampleIntegers(patchSize, n, dist, rng)
		xs1 = sampleIntegers(patchSize, n, dist, rng)
		ys1 = sampleIntegers(patchSize, n, dist, rng)
	}
	p0 := make([]image.Point, 0, n)
	p1 := make([]image.Point, 0, n)
	for i := 0; i < n; i++ {
		p0 = append(p0, image.Point{X: xs0[i], Y: ys0[i]})
		p1 = append(p1, image.Point{X: xs1[i], Y: ys1[i]})
	}

	return &SamplePairs{P0: p0, P1: p1, N: n}
}

func sampleIntegers(patchSize, n int, sampling SamplingType, rng *rand.Rand) []int {
	half := float64(patchSize / 2)
	switch sampling {
	case normal:
		return utils.SampleNIntegersNormal(n, -half, half, rng)
	case fixed:
		return utils.SampleNRegularlySpaced(n, -half, half)
	default:
		return utils.SampleNIntegersUniform(n, -half, half, rng)
	}
}

// BRIEFConfig stores the parameters.
type BRIEFConfig struct {
	N              int          `json:"n"` // number of samples taken
	Sampling       SamplingType `json:"sampling"`
	UseOrientation bool         `json:"use_orientation"`
	PatchSize      int          `json:"patch_size"`
	Seed           int64        `json:"seed"`
}

// LoadBRIEFConfiguration loads a BRIEFConfig from a json file.
func LoadBRIEFConfiguration(file string) (*BRIEFConfig, error) {
	var config BRIEFConfig
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

// Validate ensures all parts of the BRIEFConfig are valid.
func (config *BRIEFConfig) Validate(path string) error {
	if config.N < 64 || config.N%64 != 0 {
		return uts.NewConfigValidationError(path, errors.New("n should be a positive multiple of 64"))
	}
	if config.Sampling < uniform || config.Sampling > fixed {
		return uts.NewConfigValidationError(path, errors.Errorf("unknown sampling type %d", config.Sampling))
	}
	if config.PatchSize < 5 {
		return uts.NewConfigValidationError(path, errors.New("patch_size should be >= 5"))
	}
	return nil
}

// descriptorMargin is the distance to the image border a keypoint needs for every, possibly
// rotated, sample of its patch to fall inside the image.
func descriptorMargin(cfg *BRIEFConfig) int {
	half := float64(cfg.PatchSize / 2)
	if cfg.UseOrientation {
		half *= math.Sqrt2
	}
	return int(math.Ceil(half)) + 1
}

// ComputeBRIEFDescriptors computes BRIEF descriptors on image img at keypoints kps. Every keypoint
// must be at least descriptorMargin pixels away from the image border.
func ComputeBRIEFDescriptors(img *image.Gray, sp *SamplePairs, kps *FASTKeypoints, cfg *BRIEFConfig) ([]Descriptor, error) {
	if sp.N%64 != 0 {
		return nil, errors.Errorf("number of samples %d is not a multiple of 64", sp.N)
	}
	// blur image
	kernel := rimage.GetGaussian5()
	normalized := kernel.Normalize()
	blurred, err := rimage.ConvolveGray(img, normalized, image.Point{2, 2}, rimage.BorderReflect)
	if err != nil {
		return nil, err
	}
	descs := make([]Descriptor, len(kps.Points))
	for k, kp := range kps.Points {
		// Divide by 64 since we store a descriptor as a uint64 array.
		descriptor := make(Descriptor, sp.N/64)
		cosTheta := 1.0
		sinTheta := 0.0
		// if use orientation and keypoints are oriented, compute rotation matrix
		if cfg.UseOrientation && kps.IsOriented() {
			angle := kps.Orientations[k]
			cosTheta = math.Cos(angle)
			sinTheta = math.Sin(angle)
		}
		for i := 0; i < sp.N; i++ {
			x0, y0 := float64(sp.P0[i].X), float64(sp.P0[i].Y)
			x1, y1 := float64(sp.P1[i].X), float64(sp.P1[i].Y)
			// compute rotated sampled coordinates (Identity matrix if no orientation)
			outx0 := int(math.Round(cosTheta*x0 - sinTheta*y0))
			outy0 := int(math.Round(sinTheta*x0 + cosTheta*y0))
			outx1 := int(math.Round(cosTheta*x1 - sinTheta*y1))
			outy1 := int(math.Round(sinTheta*x1 + cosTheta*y1))
			p0Val := blurred.GrayAt(kp.X+outx0, kp.Y+outy0).Y
			p1Val := blurred.GrayAt(kp.X+outx1, kp.Y+outy1).Y
			if p0Val > p1Val {
				// This flips the bit at i%64 of word i/64 to 1.
				descriptor[i/64] |= 1 << uint(i%64)
			}
		}
		descs[k] = descriptor
	}
	return descs, nil
}
