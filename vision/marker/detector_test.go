package marker

import (
	"context"
	"image"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/disintegration/imaging"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/fengyu3941/marker-based-ar-demo/logging"
	"github.com/fengyu3941/marker-based-ar-demo/rimage"
	"github.com/fengyu3941/marker-based-ar-demo/rimage/transform"
	"github.com/fengyu3941/marker-based-ar-demo/spatialmath"
	"github.com/fengyu3941/marker-based-ar-demo/testutils"
)

const testFocal = 400.0

func newTestDetector(t *testing.T, p *Pattern, w, h int, ppx, ppy float64, opts ...Option) *Detector {
	t.Helper()
	intrinsics, err := transform.NewPinholeCameraIntrinsics(testFocal, testFocal, ppx, ppy, w, h)
	test.That(t, err, test.ShouldBeNil)
	d, err := NewDetector(p, intrinsics, DefaultConfig(), logging.NewTestLogger(t), opts...)
	test.That(t, err, test.ShouldBeNil)
	return d
}

// expectPose checks the pose of a pattern seen straight on, centered on the principal point.
func expectPose(t *testing.T, res Result, rot *spatialmath.RotationMatrix, angleTol, transTol float64) {
	t.Helper()
	test.That(t, res.Present, test.ShouldBeTrue)
	test.That(t, res.State, test.ShouldEqual, Tracking)
	test.That(t, res.Reason, test.ShouldEqual, transform.ReasonNone)
	tf := res.Transformation
	test.That(t, spatialmath.RotationBetween(tf.Rotation, rot), test.ShouldBeLessThan, angleTol)
	// the long side spans 2 plane units and patternWidth pixels
	want := r3.Vector{Z: 2 * testFocal / patternWidth}
	test.That(t, tf.Translation.Sub(want).Norm(), test.ShouldBeLessThan, transTol)
}

func TestDetectorReferenceFrame(t *testing.T) {
	p := newTestPattern(t)
	d := newTestDetector(t, p, patternWidth, patternHeight, patternWidth/2, patternHeight/2)
	test.That(t, d.State(), test.ShouldEqual, Idle)
	test.That(t, d.IsPatternPresent(), test.ShouldBeFalse)
	test.That(t, d.Transformations(), test.ShouldBeEmpty)

	res, err := d.Process(context.Background(), referenceImage())
	test.That(t, err, test.ShouldBeNil)
	expectPose(t, res, spatialmath.NewIdentityRotation(), 1e-3, 1e-3)
	test.That(t, len(res.Correspondences), test.ShouldBeGreaterThanOrEqualTo, len(p.KeyPoints)/2)
	test.That(t, len(res.Inliers), test.ShouldBeGreaterThanOrEqualTo, transform.DefaultMinInliers)
	test.That(t, res.Stats.Max, test.ShouldBeLessThan, 1e-3)
	for i, c := range res.Correspondences {
		test.That(t, c.Distance, test.ShouldEqual, 0)
		test.That(t, c.Confidence, test.ShouldEqual, 1)
		test.That(t, res.FrameKeyPoints[c.FrameIdx], test.ShouldResemble, p.KeyPoints[c.PatternIdx])
		if i > 0 {
			test.That(t, c.FrameIdx, test.ShouldBeGreaterThan, res.Correspondences[i-1].FrameIdx)
		}
	}

	test.That(t, d.State(), test.ShouldEqual, Tracking)
	test.That(t, d.IsPatternPresent(), test.ShouldBeTrue)
	test.That(t, d.Transformations(), test.ShouldHaveLength, 1)
	test.That(t, d.Transformations()[0], test.ShouldResemble, res.Transformation)
	test.That(t, d.LastResult(), test.ShouldResemble, res)
}

func TestDetectorIdempotent(t *testing.T) {
	p := newTestPattern(t)
	mockClock := clock.NewMock()
	d := newTestDetector(t, p, patternWidth, patternHeight, patternWidth/2, patternHeight/2, WithClock(mockClock))
	frame := referenceImage()
	res1, err := d.Process(context.Background(), frame)
	test.That(t, err, test.ShouldBeNil)
	res2, err := d.Process(context.Background(), frame)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res2, test.ShouldResemble, res1)
	// time only moves with the mock
	test.That(t, res1.Elapsed, test.ShouldEqual, time.Duration(0))

	// a second detector on the same pattern agrees
	other := newTestDetector(t, p, patternWidth, patternHeight, patternWidth/2, patternHeight/2, WithClock(mockClock))
	res3, err := other.Process(context.Background(), frame)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res3, test.ShouldResemble, res1)
}

func TestDetectorTranslatedFrame(t *testing.T) {
	p := newTestPattern(t)
	// offsets are multiples of the pyramid scales so that every level sees the same pixels
	offset := image.Point{48, 32}
	frame := testutils.EmbedGray(referenceImage(), 400, 300, offset, 128)
	d := newTestDetector(t, p, 400, 300,
		float64(offset.X+patternWidth/2), float64(offset.Y+patternHeight/2))
	res, err := d.Process(context.Background(), frame)
	test.That(t, err, test.ShouldBeNil)
	// the pattern border makes a few wrong matches, which may join the refinement
	expectPose(t, res, spatialmath.NewIdentityRotation(), 1e-2, 1e-2)

	// projecting the pattern corners lands on the embedded image corners
	for i, c := range p.Corners3D {
		px := d.Intrinsics().Project(res.Transformation.Apply(c))
		test.That(t, px.X, test.ShouldAlmostEqual, p.Corners2D[i].X+float64(offset.X), 0.5)
		test.That(t, px.Y, test.ShouldAlmostEqual, p.Corners2D[i].Y+float64(offset.Y), 0.5)
	}
}

func TestDetectorRotatedFrame(t *testing.T) {
	p := newTestPattern(t)
	// counter-clockwise: the pattern x axis points up, its y axis points right
	frame := rimage.ConvertToGray(imaging.Rotate90(referenceImage()))
	d := newTestDetector(t, p, patternHeight, patternWidth, patternHeight/2, patternWidth/2)
	res, err := d.Process(context.Background(), frame)
	test.That(t, err, test.ShouldBeNil)
	rot, err := spatialmath.NewRotationMatrix([]float64{
		0, 1, 0,
		-1, 0, 0,
		0, 0, 1,
	})
	test.That(t, err, test.ShouldBeNil)
	expectPose(t, res, rot, 3*math.Pi/180, 0.05)
}

func TestDetectorNoPattern(t *testing.T) {
	p := newTestPattern(t)
	d := newTestDetector(t, p, patternWidth, patternHeight, patternWidth/2, patternHeight/2)

	res, err := d.Process(context.Background(), referenceImage())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Present, test.ShouldBeTrue)

	for name, frame := range map[string]*image.Gray{
		"noise": testutils.NoiseImage(patternWidth, patternHeight, 99),
		"other": testutils.RandomCellImage(patternWidth, patternHeight, 16, 12345),
		"flat":  testutils.UniformGray(patternWidth, patternHeight, 30),
	} {
		t.Run(name, func(t *testing.T) {
			res, err := d.Process(context.Background(), frame)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, res.Present, test.ShouldBeFalse)
			test.That(t, res.State, test.ShouldEqual, Searching)
			test.That(t, res.Reason, test.ShouldNotEqual, transform.ReasonNone)
			test.That(t, res.Transformations(), test.ShouldBeEmpty)
			test.That(t, d.State(), test.ShouldEqual, Searching)
			test.That(t, d.IsPatternPresent(), test.ShouldBeFalse)
			test.That(t, d.Transformations(), test.ShouldBeEmpty)
		})
	}

	res, err = d.Process(context.Background(), testutils.UniformGray(patternWidth, patternHeight, 30))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Reason, test.ShouldEqual, transform.ReasonInsufficientCorrespondences)
}

func TestDetectorProcessFrame(t *testing.T) {
	p := newTestPattern(t)
	d := newTestDetector(t, p, patternWidth, patternHeight, patternWidth/2, patternHeight/2)

	res, err := d.ProcessFrame(context.Background(), rimage.FrameFromImage(referenceImage()))
	test.That(t, err, test.ShouldBeNil)
	expectPose(t, res, spatialmath.NewIdentityRotation(), 1e-3, 1e-3)

	// invalid frames leave the state alone
	_, err = d.ProcessFrame(context.Background(), rimage.Frame{Width: 10, Height: 10, Layout: rimage.LayoutBGR})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, d.State(), test.ShouldEqual, Tracking)
	test.That(t, d.IsPatternPresent(), test.ShouldBeTrue)

	_, err = d.Process(context.Background(), image.NewGray(image.Rectangle{}))
	test.That(t, err, test.ShouldNotBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Process(ctx, referenceImage())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, d.State(), test.ShouldEqual, Tracking)
}

func TestDetectorFrameAdapter(t *testing.T) {
	p := newTestPattern(t)
	// frames twice as large are brought back to the pattern scale
	adapter := rimage.FrameAdapter{WorkingSize: image.Point{patternWidth, patternHeight}}
	d := newTestDetector(t, p, patternWidth, patternHeight, patternWidth/2, patternHeight/2, WithFrameAdapter(adapter))
	big := rimage.FrameFromImage(testutils.RandomCellImage(2*patternWidth, 2*patternHeight, 32, 11))
	res, err := d.ProcessFrame(context.Background(), big)
	test.That(t, err, test.ShouldBeNil)
	expectPose(t, res, spatialmath.NewIdentityRotation(), 5*math.Pi/180, 0.1)

	gray, err := adapter.ToGray(big)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, gray.Bounds().Size(), test.ShouldResemble, p.Size)
	direct, err := d.Process(context.Background(), gray)
	test.That(t, err, test.ShouldBeNil)
	direct.Elapsed = res.Elapsed
	test.That(t, direct, test.ShouldResemble, res)
}

func TestDetectorConfiguration(t *testing.T) {
	p := newTestPattern(t)
	d := newTestDetector(t, p, patternWidth, patternHeight, patternWidth/2, patternHeight/2)

	test.That(t, d.SetReprojectionThreshold(12), test.ShouldEqual, transform.MaxReprojectionThreshold)
	test.That(t, d.StepReprojectionThreshold(-1), test.ShouldAlmostEqual, 9.8)
	test.That(t, d.StepReprojectionThreshold(1), test.ShouldAlmostEqual, 10)
	test.That(t, d.StepReprojectionThreshold(1), test.ShouldAlmostEqual, 10)
	test.That(t, d.SetReprojectionThreshold(-3), test.ShouldEqual, transform.MinReprojectionThreshold)
	test.That(t, d.StepReprojectionThreshold(2), test.ShouldAlmostEqual, 0.4)
	test.That(t, d.Config().ReprojectionThreshold, test.ShouldAlmostEqual, 0.4)

	test.That(t, d.Config().RefineHomography, test.ShouldBeTrue)
	test.That(t, d.ToggleRefinement(), test.ShouldBeFalse)
	test.That(t, d.Config().RefineHomography, test.ShouldBeFalse)
	test.That(t, d.ToggleRefinement(), test.ShouldBeTrue)

	cfg := DefaultConfig()
	cfg.ReprojectionThreshold = 50
	test.That(t, d.SetConfig(cfg), test.ShouldBeNil)
	test.That(t, d.Config().ReprojectionThreshold, test.ShouldEqual, transform.MaxReprojectionThreshold)
	// the caller's copy is not modified
	test.That(t, cfg.ReprojectionThreshold, test.ShouldEqual, 50)

	cfg.Ratio = 0
	test.That(t, d.SetConfig(cfg), test.ShouldNotBeNil)
	test.That(t, d.Config().Ratio, test.ShouldEqual, DefaultConfig().Ratio)

	// config changes apply from the next frame and keep the pattern present on its reference
	d.ToggleRefinement()
	res, err := d.Process(context.Background(), referenceImage())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Present, test.ShouldBeTrue)
}

func TestDetectorThresholdMonotonic(t *testing.T) {
	p := newTestPattern(t)
	offset := image.Point{48, 32}
	frame := testutils.EmbedGray(referenceImage(), 400, 300, offset, 128)
	d := newTestDetector(t, p, 400, 300,
		float64(offset.X+patternWidth/2), float64(offset.Y+patternHeight/2))
	prev := -1
	for _, th := range []float64{0.5, 1, 2, 4, 8} {
		d.SetReprojectionThreshold(th)
		res, err := d.Process(context.Background(), frame)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, len(res.Inliers), test.ShouldBeGreaterThanOrEqualTo, prev)
		prev = len(res.Inliers)
	}
}

func TestNewDetectorErrors(t *testing.T) {
	p := newTestPattern(t)
	_, err := NewDetector(nil, transform.DefaultIntrinsics(), nil, nil)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewDetector(p, &transform.PinholeCameraIntrinsics{}, nil, nil)
	test.That(t, err, test.ShouldNotBeNil)
	bad := DefaultConfig()
	bad.MinInliers = 1
	_, err = NewDetector(p, transform.DefaultIntrinsics(), bad, nil)
	test.That(t, err, test.ShouldNotBeNil)

	d, err := NewDetector(p, transform.DefaultIntrinsics(), nil, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Pattern(), test.ShouldEqual, p)
	test.That(t, d.Config(), test.ShouldResemble, DefaultConfig())
}

func TestDrawResult(t *testing.T) {
	p := newTestPattern(t)
	d := newTestDetector(t, p, patternWidth, patternHeight, patternWidth/2, patternHeight/2)
	frame := referenceImage()
	res, err := d.Process(context.Background(), frame)
	test.That(t, err, test.ShouldBeNil)
	out := DrawResult(frame, p, d.Intrinsics(), res)
	test.That(t, out.Bounds(), test.ShouldResemble, frame.Bounds())
	// the outline is drawn in yellow along the top border
	r, g, b, _ := out.At(patternWidth/2, 0).RGBA()
	test.That(t, r>>8, test.ShouldBeGreaterThan, 200)
	test.That(t, g>>8, test.ShouldBeGreaterThan, 200)
	test.That(t, b>>8, test.ShouldBeLessThan, 50)
	test.That(t, rimage.WriteImageToFile(filepath.Join(t.TempDir(), "overlay.png"), out), test.ShouldBeNil)
}

func TestOctaveColor(t *testing.T) {
	base := octaveColor(0)
	test.That(t, base.B, test.ShouldBeGreaterThan, base.R)
	test.That(t, base.B, test.ShouldBeGreaterThan, base.G)
	test.That(t, octaveColor(1), test.ShouldNotResemble, base)
	test.That(t, octaveColor(12), test.ShouldResemble, base)
}
