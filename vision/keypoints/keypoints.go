// Package keypoints contains the implementation of keypoints in an image. For now:
// - FAST keypoints
// - BRIEF descriptors
// - ORB keypoints and descriptors over an image pyramid
// - brute force descriptor matching
package keypoints

import (
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"

	"github.com/fengyu3941/marker-based-ar-demo/rimage"
)

// KeyPoint is a detected feature location in full resolution image coordinates.
type KeyPoint struct {
	X, Y float64
	// Response is the FAST corner score, larger is stronger.
	Response float64
	// Angle is the orientation of the patch around the keypoint, in radians.
	Angle float64
	// Octave is the pyramid level the keypoint was detected on.
	Octave int
}

// Point returns the keypoint location.
func (kp KeyPoint) Point() r2.Point {
	return r2.Point{X: kp.X, Y: kp.Y}
}

// KeyPoints is a set of keypoints.
type KeyPoints []KeyPoint

// Points returns the locations of the keypoints.
func (kps KeyPoints) Points() []r2.Point {
	out := make([]r2.Point, len(kps))
	for i, kp := range kps {
		out[i] = kp.Point()
	}
	return out
}

// OrientedKeypoints contains keypoints and their corresponding orientations.
type OrientedKeypoints struct {
	Points       []image.Point
	Orientations []float64
}

const orientationPatchRadius = 15

// computeMaskOrientationFAST creates the circular mask used to compute orientations of corners.
func computeMaskOrientationFAST() *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, 31, 31))
	indices := []int{15, 15, 15, 15, 14, 14, 14, 13, 13, 12, 11, 10, 9, 8, 6, 3}
	for i := -15; i < 16; i++ {
		for j := -indices[int(math.Abs(float64(i)))]; j < indices[int(math.Abs(float64(i)))]+1; j++ {
			mask.Set(j+15, i+15, color.Gray{1})
		}
	}
	return mask
}

var orientationMask = computeMaskOrientationFAST()

// computeKeypointsOrientations returns the angle of the intensity centroid of the patch around
// every keypoint. Pixels outside the image count as black.
func computeKeypointsOrientations(img *image.Gray, kps []image.Point) ([]float64, error) {
	size := 2*orientationPatchRadius + 1
	padded, err := rimage.PaddingGray(img, image.Point{size, size},
		image.Point{orientationPatchRadius, orientationPatchRadius}, rimage.BorderConstant)
	if err != nil {
		return nil, err
	}
	orientations := make([]float64, len(kps))
	for i, kp := range kps {
		m01, m10 := 0, 0
		for y := 0; y < size; y++ {
			m01Temp := 0
			maskRow := orientationMask.Pix[y*orientationMask.Stride:]
			row := padded.Pix[(kp.Y+y)*padded.Stride+kp.X:]
			for x := 0; x < size; x++ {
				if maskRow[x] > 0 {
					pixVal := int(row[x])
					m10 += pixVal * (x - orientationPatchRadius)
					m01Temp += pixVal
				}
			}
			m01 += m01Temp * (y - orientationPatchRadius)
		}
		orientations[i] = math.Atan2(float64(m01), float64(m10))
	}
	return orientations, nil
}

// GetOrientedKeyPointsFromKeyPoints computes the orientation of keypoints in the corresponding image
// and return kps and corresponding orientations in a OrientedKeypoints struct.
func GetOrientedKeyPointsFromKeyPoints(img *image.Gray, kps []image.Point) (*OrientedKeypoints, error) {
	orientations, err := computeKeypointsOrientations(img, kps)
	if err != nil {
		return nil, err
	}
	return &OrientedKeypoints{
		kps,
		orientations,
	}, nil
}

// PlotKeypoints plots keypoints on image and saves the result as a PNG.
func PlotKeypoints(img *image.Gray, kps KeyPoints, outName string) error {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	dc := gg.NewContext(w, h)
	dc.DrawImage(img, 0, 0)

	// draw keypoints on image
	dc.SetRGBA(0, 0, 1, 0.5)
	for _, p := range kps {
		radius := 3.0 * math.Pow(2, float64(p.Octave))
		dc.DrawCircle(p.X, p.Y, radius)
		dc.Fill()
	}
	dc.SetRGBA(1, 0, 0, 0.8)
	dc.SetLineWidth(1)
	for _, p := range kps {
		radius := 3.0 * math.Pow(2, float64(p.Octave))
		dc.DrawLine(p.X, p.Y, p.X+2*radius*math.Cos(p.Angle), p.Y+2*radius*math.Sin(p.Angle))
		dc.Stroke()
	}
	return dc.SavePNG(outName)
}
