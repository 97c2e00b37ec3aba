package marker

import (
	"context"
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opencensus.io/trace"

	"github.com/fengyu3941/marker-based-ar-demo/logging"
	"github.com/fengyu3941/marker-based-ar-demo/vision/keypoints"
)

// Correspondence pairs a pattern keypoint with a frame keypoint.
type Correspondence struct {
	PatternIdx int
	FrameIdx   int
	// Distance is the hamming distance between the two descriptors.
	Distance int
	// Confidence is 1 - best / second best distance, 1 when there was no second candidate.
	Confidence float64
}

// Correspondences are sorted by increasing distance, then frame index. Every frame keypoint
// appears at most once.
type Correspondences []Correspondence

// PatternPoints returns the pattern plane location of every correspondence.
func (cs Correspondences) PatternPoints(p *Pattern) []r2.Point {
	return lo.Map(cs, func(c Correspondence, _ int) r2.Point { return p.PlanePoints[c.PatternIdx] })
}

// FramePoints returns the frame location of every correspondence.
func (cs Correspondences) FramePoints(kps keypoints.KeyPoints) []r2.Point {
	return lo.Map(cs, func(c Correspondence, _ int) r2.Point { return kps[c.FrameIdx].Point() })
}

// FeatureMatcher finds the pattern keypoints visible in a frame.
type FeatureMatcher struct {
	cfg    keypoints.MatchingConfig
	logger logging.Logger
}

// NewFeatureMatcher returns a matcher rejecting matches farther than maxDistance (0 disables the
// check) or not passing the ratio test.
func NewFeatureMatcher(ratio float64, maxDistance int, crossCheck bool, logger logging.Logger) *FeatureMatcher {
	return &FeatureMatcher{
		cfg: keypoints.MatchingConfig{
			DoCrossCheck: crossCheck,
			MaxDist:      maxDistance,
			Ratio:        ratio,
		},
		logger: logger,
	}
}

// Match extracts the frame features with the pattern extractor and matches every frame
// descriptor to its nearest pattern descriptor. No match is not an error.
func (fm *FeatureMatcher) Match(ctx context.Context, frame *image.Gray, p *Pattern,
) (Correspondences, keypoints.KeyPoints, error) {
	ctx, span := trace.StartSpan(ctx, "marker::FeatureMatcher::Match")
	defer span.End()

	descs, kps, err := p.Extractor().Compute(ctx, frame)
	if err != nil {
		return nil, nil, errors.Wrap(err, "cannot extract frame features")
	}
	matches, err := keypoints.MatchDescriptors(descs, p.Descriptors, &fm.cfg, fm.logger)
	if err != nil {
		return nil, nil, err
	}
	corrs := lo.Map(matches, func(m keypoints.DescriptorMatch, _ int) Correspondence {
		c := Correspondence{PatternIdx: m.Idx2, FrameIdx: m.Idx1, Distance: m.Distance, Confidence: 1}
		switch {
		case m.SecondDistance == 0:
			// two exact matches
			c.Confidence = 0
		case m.SecondDistance > 0:
			c.Confidence = 1 - float64(m.Distance)/float64(m.SecondDistance)
		}
		return c
	})
	return corrs, kps, nil
}
