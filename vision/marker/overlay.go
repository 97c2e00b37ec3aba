package marker

import (
	"image"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/fengyu3941/marker-based-ar-demo/rimage/transform"
)

const axisLength = 0.5

func octaveColor(octave int) colorful.Color {
	return colorful.Hsv(math.Mod(220+30*float64(octave), 360), 1, 1)
}

// DrawResult draws the outcome of a frame on top of it: frame keypoints in shades of blue to
// purple by pyramid level, inlier correspondences in green, the pattern outline in yellow and, when a pose was found, the pattern
// axes (x red, y green, z blue).
func DrawResult(img image.Image, p *Pattern, intrinsics *transform.PinholeCameraIntrinsics, res Result) image.Image {
	dc := gg.NewContextForImage(img)

	for _, kp := range res.FrameKeyPoints {
		c := octaveColor(kp.Octave)
		dc.SetRGBA(c.R, c.G, c.B, 0.6)
		dc.DrawCircle(kp.X, kp.Y, 2*math.Pow(1.5, float64(kp.Octave)))
		dc.Fill()
	}
	dc.SetRGB(0, 1, 0)
	for _, i := range res.Inliers {
		kp := res.FrameKeyPoints[res.Correspondences[i].FrameIdx]
		dc.DrawCircle(kp.X, kp.Y, 3)
		dc.Fill()
	}

	if res.Homography != nil {
		dc.SetRGB(1, 1, 0)
		dc.SetLineWidth(2)
		for i, c := range p.Corners3D {
			pt := res.Homography.Apply(r2.Point{X: c.X, Y: c.Y})
			if i == 0 {
				dc.MoveTo(pt.X, pt.Y)
			} else {
				dc.LineTo(pt.X, pt.Y)
			}
		}
		dc.ClosePath()
		dc.Stroke()
	}

	if res.Present {
		origin := intrinsics.Project(res.Transformation.Apply(r3.Vector{}))
		axes := []struct {
			dir     r3.Vector
			r, g, b float64
		}{
			{r3.Vector{X: axisLength}, 1, 0, 0},
			{r3.Vector{Y: axisLength}, 0, 1, 0},
			// the pattern faces the camera along -z
			{r3.Vector{Z: -axisLength}, 0, 0, 1},
		}
		dc.SetLineWidth(3)
		for _, a := range axes {
			end := intrinsics.Project(res.Transformation.Apply(a.dir))
			dc.SetRGB(a.r, a.g, a.b)
			dc.DrawLine(origin.X, origin.Y, end.X, end.Y)
			dc.Stroke()
		}
	}
	return dc.Image()
}
