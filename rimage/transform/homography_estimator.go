package transform

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

const (
	// MinReprojectionThreshold and MaxReprojectionThreshold bound the RANSAC inlier threshold, in pixels.
	MinReprojectionThreshold = 0.0
	MaxReprojectionThreshold = 10.0
	// ReprojectionThresholdStep is the increment used by interactive tuning.
	ReprojectionThresholdStep = 0.2
	// DefaultReprojectionThreshold is the inlier threshold used when none is configured.
	DefaultReprojectionThreshold = 3.0
	// DefaultRANSACIterations is the fixed number of minimal samples drawn per estimation.
	DefaultRANSACIterations = 1000
	// DefaultMinInliers is the minimum number of inliers of an accepted homography.
	DefaultMinInliers = 8
	// DefaultMinInlierRatio is the minimum share of correspondences that must be inliers.
	DefaultMinInlierRatio = 0.25

	minimalSampleSize = 4
)

// HomographyConfig contains the parameters of the robust homography estimation.
type HomographyConfig struct {
	ReprojectionThreshold float64 `json:"reprojection_threshold"`
	RefineHomography      bool    `json:"refine_homography"`
	MaxIterations         int     `json:"ransac_iterations"`
	MinInliers            int     `json:"min_inliers"`
	MinInlierRatio        float64 `json:"min_inlier_ratio"`
	Seed                  int64   `json:"seed"`
}

// DefaultHomographyConfig returns the configuration used when nothing is specified.
func DefaultHomographyConfig() HomographyConfig {
	return HomographyConfig{
		ReprojectionThreshold: DefaultReprojectionThreshold,
		RefineHomography:      true,
		MaxIterations:         DefaultRANSACIterations,
		MinInliers:            DefaultMinInliers,
		MinInlierRatio:        DefaultMinInlierRatio,
		Seed:                  1,
	}
}

// ClampReprojectionThreshold clamps a threshold to [MinReprojectionThreshold, MaxReprojectionThreshold].
func ClampReprojectionThreshold(th float64) float64 {
	if math.IsNaN(th) {
		return DefaultReprojectionThreshold
	}
	return math.Max(MinReprojectionThreshold, math.Min(MaxReprojectionThreshold, th))
}

// Validate ensures all parts of the HomographyConfig are valid. The threshold is not checked
// since it is clamped instead.
func (cfg *HomographyConfig) Validate(path string) error {
	if cfg.MaxIterations < 1 {
		return utils.NewConfigValidationError(path, errors.New("ransac_iterations should be >= 1"))
	}
	if cfg.MinInliers < minimalSampleSize {
		return utils.NewConfigValidationError(path, errors.Errorf("min_inliers should be >= %d", minimalSampleSize))
	}
	if cfg.MinInlierRatio < 0 || cfg.MinInlierRatio > 1 {
		return utils.NewConfigValidationError(path, errors.New("min_inlier_ratio should be in [0, 1]"))
	}
	return nil
}

// ReprojectionStats summarizes the reprojection errors of the inliers, in pixels.
type ReprojectionStats struct {
	Mean   float64
	Median float64
	Max    float64
	RMS    float64
}

// HomographyResult is a homography accepted by the estimator with its inlier set.
type HomographyResult struct {
	H *Homography
	// Inliers holds the indices of the inlier pairs, in increasing order.
	Inliers []int
	// Mask[i] is true when pair i is an inlier.
	Mask []bool
	// Errors[i] is the reprojection error of pair i under H.
	Errors []float64
	// Refined is true when the least squares refinement replaced the RANSAC candidate.
	Refined bool
	Stats   ReprojectionStats
}

// HomographyEstimator fits a homography to noisy point pairs with RANSAC, optionally refined by a
// least squares fit on the inliers. The sample sequence only depends on the seed and the number
// of pairs, so the inlier count never decreases when the threshold grows and repeated calls on the
// same input give the same result.
type HomographyEstimator struct {
	cfg HomographyConfig
}

// NewHomographyEstimator returns an estimator for the given configuration. The reprojection
// threshold is clamped and missing values take their defaults.
func NewHomographyEstimator(cfg HomographyConfig) *HomographyEstimator {
	cfg.ReprojectionThreshold = ClampReprojectionThreshold(cfg.ReprojectionThreshold)
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultRANSACIterations
	}
	if cfg.MinInliers < minimalSampleSize {
		cfg.MinInliers = minimalSampleSize
	}
	return &HomographyEstimator{cfg: cfg}
}

// Config returns the effective configuration.
func (he *HomographyEstimator) Config() HomographyConfig {
	return he.cfg
}

type candidate struct {
	h        *Homography
	mask     []bool
	inliers  int
	errorSum float64
}

func (he *HomographyEstimator) score(h *Homography, src, dst []r2.Point) candidate {
	c := candidate{h: h, mask: make([]bool, len(src))}
	for i := range src {
		e := h.ReprojectionError(src[i], dst[i])
		if e <= he.cfg.ReprojectionThreshold {
			c.mask[i] = true
			c.inliers++
			c.errorSum += e
		}
	}
	return c
}

func (c *candidate) betterThan(other *candidate) bool {
	if other.h == nil {
		return true
	}
	if c.inliers != other.inliers {
		return c.inliers > other.inliers
	}
	return c.errorSum < other.errorSum
}

// sampleIndices draws 4 distinct indices in [0, n).
func sampleIndices(rng *rand.Rand, n int) [minimalSampleSize]int {
	var idx [minimalSampleSize]int
	for i := 0; i < minimalSampleSize; i++ {
	draw:
		for {
			v := rng.Intn(n)
			for j := 0; j < i; j++ {
				if idx[j] == v {
					continue draw
				}
			}
			idx[i] = v
			break
		}
	}
	return idx
}

// Estimate finds the homography mapping src onto dst. src[i] and dst[i] form a pair.
func (he *HomographyEstimator) Estimate(src, dst []r2.Point) Estimate[*HomographyResult] {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	if n < minimalSampleSize {
		return NotFound[*HomographyResult](ReasonInsufficientCorrespondences)
	}
	src, dst = src[:n], dst[:n]

	rng := rand.New(rand.NewSource(he.cfg.Seed)) //nolint:gosec
	var best candidate
	var sampleSrc, sampleDst [minimalSampleSize]r2.Point
	for it := 0; it < he.cfg.MaxIterations; it++ {
		idx := sampleIndices(rng, n)
		for i, k := range idx {
			sampleSrc[i], sampleDst[i] = src[k], dst[k]
		}
		if degenerateSample(sampleSrc) || degenerateSample(sampleDst) {
			continue
		}
		h, err := ComputeHomography(sampleSrc[:], sampleDst[:])
		if err != nil {
			continue
		}
		c := he.score(h, src, dst)
		if c.betterThan(&best) {
			best = c
		}
	}
	if best.h == nil || !he.enoughInliers(best.inliers, n) {
		return NotFound[*HomographyResult](ReasonDegenerateHomography)
	}

	result := &HomographyResult{H: best.h, Mask: best.mask}
	for i, in := range best.mask {
		if in {
			result.Inliers = append(result.Inliers, i)
		}
	}
	if he.cfg.RefineHomography && len(result.Inliers) > minimalSampleSize {
		inSrc := make([]r2.Point, len(result.Inliers))
		inDst := make([]r2.Point, len(result.Inliers))
		for i, k := range result.Inliers {
			inSrc[i], inDst[i] = src[k], dst[k]
		}
		if refined, err := ComputeHomography(inSrc, inDst); err == nil &&
			rms(refined, inSrc, inDst) <= rms(best.h, inSrc, inDst) {
			result.H = refined
			result.Refined = true
		}
	}
	result.Errors = make([]float64, n)
	inlierErrors := make([]float64, 0, len(result.Inliers))
	for i := range src {
		result.Errors[i] = result.H.ReprojectionError(src[i], dst[i])
		if result.Mask[i] {
			inlierErrors = append(inlierErrors, result.Errors[i])
		}
	}
	result.Stats = reprojectionStats(inlierErrors)
	return Found(result)
}

func (he *HomographyEstimator) enoughInliers(inliers, n int) bool {
	return inliers >= he.cfg.MinInliers && float64(inliers) >= he.cfg.MinInlierRatio*float64(n)
}

func rms(h *Homography, src, dst []r2.Point) float64 {
	sum := 0.
	for i := range src {
		e := h.ReprojectionError(src[i], dst[i])
		sum += e * e
	}
	return math.Sqrt(sum / float64(len(src)))
}

func reprojectionStats(errs []float64) ReprojectionStats {
	data := stats.LoadRawData(errs)
	var out ReprojectionStats
	// the stats functions only fail on empty input, which leaves the zero values
	out.Mean, _ = data.Mean()
	out.Median, _ = data.Median()
	out.Max, _ = data.Max()
	if sq, err := stats.Sum(squares(errs)); err == nil && len(errs) > 0 {
		out.RMS = math.Sqrt(sq / float64(len(errs)))
	}
	return out
}

func squares(v []float64) stats.Float64Data {
	out := make(stats.Float64Data, len(v))
	for i, x := range v {
		out[i] = x * x
	}
	return out
}
