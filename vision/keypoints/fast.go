package keypoints

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	uts "go.viam.com/utils"

	"github.com/fengyu3941/marker-based-ar-demo/rimage"
	"github.com/fengyu3941/marker-based-ar-demo/utils"
)

// FASTConfig holds the parameters for FAST keypoints.
type FASTConfig struct {
	// Threshold is the minimum intensity difference between the center and the circle pixels.
	Threshold      int  `json:"threshold"`
	NMatchesCircle int  `json:"n_matches_circle"`
	NMSWinSize     int  `json:"nms_win_size"`
	Oriented       bool `json:"oriented"`
}

// FASTKeypoints stores keypoint locations, their scores and, when computed, their orientations.
type FASTKeypoints struct {
	Points       []image.Point
	Responses    []float64
	Orientations []float64
}

// PixelType stores 0 if a pixel is darker than center pixel, and 1 if brighter.
type PixelType int

const (
	darker PixelType = iota
	brighter
)

var (
	// CrossIdx contains the neighbors coordinates in a 3-cross neighborhood.
	CrossIdx = []image.Point{{0, 3}, {3, 0}, {0, -3}, {-3, 0}}
	// CircleIdx contains the neighbors coordinates in a circle of radius 3 neighborhood.
	CircleIdx = []image.Point{
		{0, -3},
		{1, -3},
		{2, -2},
		{3, -1},
		{3, 0},
		{3, 1},
		{2, 2},
		{1, 3},
		{0, 3},
		{-1, 3},
		{-2, 2},
		{-3, 1},
		{-3, 0},
		{-3, -1},
		{-2, -2},
		{-1, -3},
	}
)

// circleRadius is the distance to the image border below which no corner is tested.
const circleRadius = 3

// LoadFASTConfiguration loads a FASTConfig from a json file.
func LoadFASTConfiguration(file string) (*FASTConfig, error) {
	var config FASTConfig
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

// Validate ensures all parts of the FASTConfig are valid.
func (config *FASTConfig) Validate(path string) error {
	if config.Threshold < 1 || config.Threshold > 255 {
		return uts.NewConfigValidationError(path, errors.New("threshold should be in [1, 255]"))
	}
	if config.NMatchesCircle < 1 || config.NMatchesCircle > len(CircleIdx) {
		return uts.NewConfigValidationError(path, errors.Errorf("n_matches_circle should be in [1, %d]", len(CircleIdx)))
	}
	if config.NMSWinSize < 1 {
		return uts.NewConfigValidationError(path, errors.New("nms_win_size should be >= 1"))
	}
	return nil
}

// GetPointValuesInNeighborhood returns a slice of floats containing the values of neighborhood pixels in image img.
func GetPointValuesInNeighborhood(img *image.Gray, coords image.Point, neighborhood []image.Point) []float64 {
	vals := make([]float64, len(neighborhood))
	for i := 0; i < len(neighborhood); i++ {
		vals[i] = float64(img.GrayAt(coords.X+neighborhood[i].X, coords.Y+neighborhood[i].Y).Y)
	}
	return vals
}

// isValidSliceVals returns true if s holds at least n contiguous positive values, wrapping around
// the end of the slice.
func isValidSliceVals(s []float64, n int) bool {
	if n <= 0 {
		return true
	}
	if n > len(s) {
		return false
	}
	count := 0
	for i := 0; i < 2*len(s); i++ {
		if s[i%len(s)] > 0 {
			count++
			if count >= n {
				return true
			}
		} else {
			count = 0
		}
	}
	return false
}

// sumOfPositiveValuesSlice returns the sum of the positive elements of a slice.
func sumOfPositiveValuesSlice(s []float64) float64 {
	sum := 0.
	for _, v := range s {
		if v > 0 {
			sum += v
		}
	}
	return sum
}

// sumOfNegativeValuesSlice returns the sum of the negative elements of a slice.
func sumOfNegativeValuesSlice(s []float64) float64 {
	sum := 0.
	for _, v := range s {
		if v < 0 {
			sum += v
		}
	}
	return sum
}

// getBrighterValues returns a slice of 1 where the value is strictly brighter than t, 0 elsewhere.
func getBrighterValues(s []float64, t float64) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		if v > t {
			out[i] = 1
		}
	}
	return out
}

// getDarkerValues returns a slice of 1 where the value is strictly darker than t, 0 elsewhere.
func getDarkerValues(s []float64, t float64) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		if v < t {
			out[i] = 1
		}
	}
	return out
}

// cornerScore returns the FAST score of the pixel, 0 if it is not a corner. The score is the
// larger of the summed absolute differences, minus the threshold, over the brighter and the
// darker circle pixels.
func cornerScore(img *image.Gray, pt image.Point, cfg *FASTConfig) float64 {
	center := float64(img.GrayAt(pt.X, pt.Y).Y)
	th := float64(cfg.Threshold)
	highThresh := center + th
	lowThresh := center - th

	// any arc of 9 or more circle pixels contains at least 2 of the 4 cross pixels
	if cfg.NMatchesCircle >= 9 {
		cross := GetPointValuesInNeighborhood(img, pt, CrossIdx)
		nBright := sumOfPositiveValuesSlice(getBrighterValues(cross, highThresh))
		nDark := sumOfPositiveValuesSlice(getDarkerValues(cross, lowThresh))
		if nBright < 2 && nDark < 2 {
			return 0
		}
	}
	circle := GetPointValuesInNeighborhood(img, pt, CircleIdx)
	var kind PixelType
	switch {
	case isValidSliceVals(getBrighterValues(circle, highThresh), cfg.NMatchesCircle):
		kind = brighter
	case isValidSliceVals(getDarkerValues(circle, lowThresh), cfg.NMatchesCircle):
		kind = darker
	default:
		return 0
	}
	diffs := make([]float64, len(circle))
	for i, v := range circle {
		d := v - center
		switch {
		case d > th:
			diffs[i] = d - th
		case d < -th:
			diffs[i] = d + th
		}
	}
	if kind == brighter {
		return sumOfPositiveValuesSlice(diffs)
	}
	return -sumOfNegativeValuesSlice(diffs)
}

// ComputeFAST computes the location of FAST keypoints, after non maximum suppression. Keypoints are
// returned in row major order with their scores.
func ComputeFAST(img *image.Gray, cfg *FASTConfig) ([]image.Point, []float64) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 2*circleRadius || h <= 2*circleRadius {
		return nil, nil
	}
	// work in a zero based image
	if bounds.Min != (image.Point{}) {
		img = rimage.ConvertToGray(img)
	}
	scores := make([]float64, w*h)
	utils.ParallelForEachPixel(image.Point{w, h}, func(x, y int) {
		if x < circleRadius || y < circleRadius || x >= w-circleRadius || y >= h-circleRadius {
			return
		}
		scores[y*w+x] = cornerScore(img, image.Point{x, y}, cfg)
	})
	half := cfg.NMSWinSize / 2
	var points []image.Point
	var responses []float64
	for y := circleRadius; y < h-circleRadius; y++ {
		for x := circleRadius; x < w-circleRadius; x++ {
			s := scores[y*w+x]
			if s <= 0 || !isLocalMaximum(scores, w, h, x, y, half) {
				continue
			}
			points = append(points, image.Point{x, y})
			responses = append(responses, s)
		}
	}
	return points, responses
}

// isLocalMaximum reports whether the score at (x, y) beats its window. Equal scores are resolved
// in favor of the first pixel in row major order, so plateaus keep exactly one keypoint.
func isLocalMaximum(scores []float64, w, h, x, y, half int) bool {
	idx := y*w + x
	s := scores[idx]
	for yy := y - half; yy <= y+half; yy++ {
		if yy < 0 || yy >= h {
			continue
		}
		for xx := x - half; xx <= x+half; xx++ {
			if xx < 0 || xx >= w {
				continue
			}
			other := yy*w + xx
			if scores[other] > s || (scores[other] == s && other < idx) {
				return false
			}
		}
	}
	return true
}

// NewFASTKeypointsFromImage returns a pointer to a FASTKeypoints struct containing keypoints
// locations, scores and orientations if cfg.Oriented is set.
func NewFASTKeypointsFromImage(img *image.Gray, cfg *FASTConfig) (*FASTKeypoints, error) {
	pts, responses := ComputeFAST(img, cfg)
	kps := &FASTKeypoints{Points: pts, Responses: responses}
	if cfg.Oriented {
		okps, err := GetOrientedKeyPointsFromKeyPoints(img, pts)
		if err != nil {
			return nil, err
		}
		kps.Orientations = okps.Orientations
	}
	return kps, nil
}

// IsOriented returns true if FASTKeypoints contains orientations.
func (kps *FASTKeypoints) IsOriented() bool {
	return kps.Orientations != nil
}
