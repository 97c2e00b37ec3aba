// Package marker detects a known planar pattern in camera frames and estimates its pose.
//
// A Pattern is built once from a reference image. A Detector then matches the ORB features of
// every frame against it, fits a homography with RANSAC and decomposes it into a rotation and a
// translation with the camera intrinsics. Frames are processed independently: the detector keeps
// the latest outcome only.
package marker

import (
	"context"
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/fengyu3941/marker-based-ar-demo/rimage"
	"github.com/fengyu3941/marker-based-ar-demo/vision/keypoints"
)

// MinPatternKeyPoints is the smallest number of keypoints a reference image must yield.
const MinPatternKeyPoints = 4

// ErrInvalidPattern is returned when a reference image cannot be used as a pattern.
var ErrInvalidPattern = errors.New("invalid pattern")

// Pattern holds the features of a reference image together with its geometry on the pattern
// plane. It is immutable and can be shared between detectors.
type Pattern struct {
	// Size is the reference image size in pixels.
	Size image.Point
	// KeyPoints are in reference image pixels.
	KeyPoints   keypoints.KeyPoints
	Descriptors []keypoints.Descriptor
	// PlanePoints[i] is KeyPoints[i] on the pattern plane.
	PlanePoints []r2.Point
	// Corners2D are the image corners, clockwise from the top left one.
	Corners2D [4]r2.Point
	// Corners3D are the same corners on the z = 0 pattern plane.
	Corners3D [4]r3.Vector

	extractor *keypoints.ORBExtractor
}

// NewPattern extracts the ORB features of a reference image. Frames searched for the pattern must
// be described with the same configuration, so the pattern keeps its extractor.
func NewPattern(ctx context.Context, img image.Image, cfg *keypoints.ORBConfig) (*Pattern, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, errors.Wrap(ErrInvalidPattern, "empty image")
	}
	if cfg == nil {
		cfg = keypoints.DefaultORBConfig()
	}
	extractor, err := keypoints.NewORBExtractor(cfg)
	if err != nil {
		return nil, err
	}
	gray := rimage.ConvertToGray(img)
	descs, kps, err := extractor.Compute(ctx, gray)
	if err != nil {
		return nil, errors.Wrap(err, "cannot extract pattern features")
	}
	if len(kps) < MinPatternKeyPoints {
		return nil, errors.Wrapf(ErrInvalidPattern, "only %d keypoints found, need at least %d", len(kps), MinPatternKeyPoints)
	}

	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	p := &Pattern{
		Size:        image.Point{w, h},
		KeyPoints:   kps,
		Descriptors: descs,
		PlanePoints: make([]r2.Point, len(kps)),
		extractor:   extractor,
	}
	for i, kp := range kps {
		p.PlanePoints[i] = p.ToPlane(kp.Point())
	}
	fw, fh := float64(w), float64(h)
	p.Corners2D = [4]r2.Point{{X: 0, Y: 0}, {X: fw, Y: 0}, {X: fw, Y: fh}, {X: 0, Y: fh}}
	for i, c := range p.Corners2D {
		pp := p.ToPlane(c)
		p.Corners3D[i] = r3.Vector{X: pp.X, Y: pp.Y, Z: 0}
	}
	return p, nil
}

// ToPlane maps reference image pixels to the pattern plane. The plane is centered on the image
// and its longest side spans [-1, 1].
func (p *Pattern) ToPlane(px r2.Point) r2.Point {
	w, h := float64(p.Size.X), float64(p.Size.Y)
	m := w
	if h > m {
		m = h
	}
	return r2.Point{X: (2*px.X - w) / m, Y: (2*px.Y - h) / m}
}

// Extractor returns the feature extractor the pattern was described with.
func (p *Pattern) Extractor() *keypoints.ORBExtractor {
	return p.extractor
}
