package keypoints

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/fengyu3941/marker-based-ar-demo/logging"
	"github.com/fengyu3941/marker-based-ar-demo/utils"
)

// DefaultRatio is the default maximum ratio between the best and the second best distance of a
// match.
const DefaultRatio = 0.8

// MatchingConfig contains the parameters for matching descriptors.
type MatchingConfig struct {
	DoCrossCheck bool `json:"do_cross_check"`
	// MaxDist is the largest accepted hamming distance, 0 disables the check.
	MaxDist int `json:"max_dist"`
	// Ratio rejects a match when its distance is not strictly below Ratio times the distance of the
	// second best candidate. Values outside (0, 1] disable the test.
	Ratio float64 `json:"ratio"`
}

// DescriptorMatch contains the index of a match in the first and second set of descriptors.
type DescriptorMatch struct {
	Idx1     int
	Idx2     int
	Distance int
	// SecondDistance is the distance to the second best candidate, -1 if there was none.
	SecondDistance int
}

func toWords(descs []Descriptor) [][]uint64 {
	out := make([][]uint64, len(descs))
	for i, d := range descs {
		out[i] = d
	}
	return out
}

// argminPerColumn returns, for every column, the row holding the smallest value, lowest row first.
func argminPerColumn(distances [][]int, nCols int) []int {
	out := make([]int, nCols)
	for j := range out {
		out[j] = -1
		best := 0
		for i, row := range distances {
			if out[j] == -1 || row[j] < best {
				out[j], best = i, row[j]
			}
		}
	}
	return out
}

// MatchDescriptors matches every descriptor of desc1 to its nearest descriptor of desc2 by hamming
// distance. Each index of desc1 appears at most once in the output, sorted by increasing distance
// and then by Idx1.
func MatchDescriptors(desc1, desc2 []Descriptor, cfg *MatchingConfig, logger logging.Logger) ([]DescriptorMatch, error) {
	if len(desc1) == 0 || len(desc2) == 0 {
		return nil, nil
	}
	distances, err := utils.DescriptorsHammingDistance(toWords(desc1), toWords(desc2))
	if err != nil {
		return nil, errors.Wrap(err, "cannot compare descriptors")
	}
	argmin, best, second := utils.TwoSmallestPerRow(distances)
	var backward []int
	if cfg.DoCrossCheck {
		backward = argminPerColumn(distances, len(desc2))
	}
	useRatio := cfg.Ratio > 0 && cfg.Ratio <= 1
	var rejectedDist, rejectedRatio, rejectedCross int
	matches := make([]DescriptorMatch, 0, len(desc1))
	for i := range desc1 {
		if cfg.MaxDist > 0 && best[i] > cfg.MaxDist {
			rejectedDist++
			continue
		}
		hasSecond := len(desc2) > 1
		if useRatio && hasSecond && float64(best[i]) >= cfg.Ratio*float64(second[i]) {
			rejectedRatio++
			continue
		}
		if cfg.DoCrossCheck && backward[argmin[i]] != i {
			rejectedCross++
			continue
		}
		m := DescriptorMatch{Idx1: i, Idx2: argmin[i], Distance: best[i], SecondDistance: -1}
		if hasSecond {
			m.SecondDistance = second[i]
		}
		matches = append(matches, m)
	}
	sort.SliceStable(matches, func(a, b int) bool { return matches[a].Distance < matches[b].Distance })
	if logger != nil {
		logger.Debugw("matched descriptors",
			"candidates", len(desc1), "matches", len(matches),
			"rejected_distance", rejectedDist, "rejected_ratio", rejectedRatio, "rejected_cross_check", rejectedCross)
	}
	return matches, nil
}

// GetMatchingKeyPoints takes the matches and the keypoints and returns the corresponding keypoints that are matched.
func GetMatchingKeyPoints(matches []DescriptorMatch, kps1, kps2 KeyPoints) (KeyPoints, KeyPoints, error) {
	matchedKps1 := make(KeyPoints, len(matches))
	matchedKps2 := make(KeyPoints, len(matches))
	for i, match := range matches {
		if match.Idx1 < 0 || match.Idx1 >= len(kps1) {
			return nil, nil, errors.Errorf("match %d refers to keypoint %d of the first set, which has %d", i, match.Idx1, len(kps1))
		}
		if match.Idx2 < 0 || match.Idx2 >= len(kps2) {
			return nil, nil, errors.Errorf("match %d refers to keypoint %d of the second set, which has %d", i, match.Idx2, len(kps2))
		}
		matchedKps1[i] = kps1[match.Idx1]
		matchedKps2[i] = kps2[match.Idx2]
	}
	return matchedKps1, matchedKps2, nil
}
