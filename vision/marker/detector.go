package marker

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/atomic"

	"github.com/fengyu3941/marker-based-ar-demo/logging"
	"github.com/fengyu3941/marker-based-ar-demo/rimage"
	"github.com/fengyu3941/marker-based-ar-demo/rimage/transform"
	"github.com/fengyu3941/marker-based-ar-demo/spatialmath"
	"github.com/fengyu3941/marker-based-ar-demo/vision/keypoints"
)

// State is the detection state of the latest frame.
type State int32

const (
	// Idle means no frame was processed yet.
	Idle State = iota
	// Searching means the latest frame did not contain the pattern.
	Searching
	// Tracking means the pattern was found in the latest frame.
	Tracking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Tracking:
		return "tracking"
	default:
		return "unknown"
	}
}

// Result is the outcome of processing one frame.
type Result struct {
	State   State
	Present bool
	// Transformation maps pattern plane coordinates to camera coordinates. Only set when Present.
	Transformation spatialmath.Transformation
	// Homography maps the pattern plane to frame pixels. Set as soon as one was accepted.
	Homography      *transform.Homography
	Correspondences Correspondences
	// FrameKeyPoints are the features extracted from the frame.
	FrameKeyPoints keypoints.KeyPoints
	// Inliers indexes Correspondences.
	Inliers []int
	Stats   transform.ReprojectionStats
	// Reason tells why the pattern is not present.
	Reason  transform.NotFoundReason
	Elapsed time.Duration
}

// Transformations returns the pose of the pattern, zero or one element.
func (r *Result) Transformations() []spatialmath.Transformation {
	if !r.Present {
		return nil
	}
	return []spatialmath.Transformation{r.Transformation}
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock sets the clock used to time frames.
func WithClock(c clock.Clock) Option {
	return func(d *Detector) {
		d.clock = c
	}
}

// WithFrameAdapter sets how raw frames are converted before detection.
func WithFrameAdapter(fa rimage.FrameAdapter) Option {
	return func(d *Detector) {
		d.adapter = fa
	}
}

// Detector finds a pattern in frames. Frames are processed independently; the detector only
// remembers the latest result. Configuration changes are safe from any goroutine and apply from
// the next frame on.
type Detector struct {
	pattern    *Pattern
	intrinsics *transform.PinholeCameraIntrinsics
	logger     logging.Logger
	clock      clock.Clock
	adapter    rimage.FrameAdapter

	cfg   atomic.Pointer[Config]
	state atomic.Int32

	mu   sync.Mutex
	last Result
}

// NewDetector returns a detector searching for pattern with the camera described by intrinsics.
func NewDetector(
	pattern *Pattern,
	intrinsics *transform.PinholeCameraIntrinsics,
	cfg *Config,
	logger logging.Logger,
	opts ...Option,
) (*Detector, error) {
	if pattern == nil {
		return nil, errors.Wrap(ErrInvalidPattern, "no pattern")
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewBlankLogger("marker")
	}
	d := &Detector{
		pattern:    pattern,
		intrinsics: intrinsics,
		logger:     logger,
		clock:      clock.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.SetConfig(cfg); err != nil {
		return nil, err
	}
	return d, nil
}

// Pattern returns the pattern the detector searches for.
func (d *Detector) Pattern() *Pattern {
	return d.pattern
}

// Intrinsics returns the camera model.
func (d *Detector) Intrinsics() *transform.PinholeCameraIntrinsics {
	return d.intrinsics
}

// Config returns a copy of the current configuration.
func (d *Detector) Config() *Config {
	return d.cfg.Load().Clone()
}

// SetConfig validates and publishes a new configuration.
func (d *Detector) SetConfig(cfg *Config) error {
	cfg = cfg.Clone()
	cfg.ReprojectionThreshold = transform.ClampReprojectionThreshold(cfg.ReprojectionThreshold)
	if err := cfg.Validate("marker"); err != nil {
		return err
	}
	d.cfg.Store(cfg)
	return nil
}

// update publishes a modified copy of the current configuration. There is a single writer, so
// the load and the store do not race with other updates.
func (d *Detector) update(f func(cfg *Config)) *Config {
	cfg := d.cfg.Load().Clone()
	f(cfg)
	d.cfg.Store(cfg)
	return cfg
}

// SetReprojectionThreshold sets the RANSAC inlier threshold, clamped to its valid range, and
// returns the value in use.
func (d *Detector) SetReprojectionThreshold(th float64) float64 {
	cfg := d.update(func(cfg *Config) {
		cfg.ReprojectionThreshold = transform.ClampReprojectionThreshold(th)
	})
	d.logger.Infow("reprojection threshold changed", "threshold", cfg.ReprojectionThreshold)
	return cfg.ReprojectionThreshold
}

// StepReprojectionThreshold moves the threshold by steps increments of
// transform.ReprojectionThresholdStep and returns the value in use.
func (d *Detector) StepReprojectionThreshold(steps int) float64 {
	th := d.cfg.Load().ReprojectionThreshold + float64(steps)*transform.ReprojectionThresholdStep
	return d.SetReprojectionThreshold(th)
}

// ToggleRefinement switches the least squares refinement of homographies and returns the new
// setting.
func (d *Detector) ToggleRefinement() bool {
	cfg := d.update(func(cfg *Config) {
		cfg.RefineHomography = !cfg.RefineHomography
	})
	d.logger.Infow("homography refinement changed", "refine", cfg.RefineHomography)
	return cfg.RefineHomography
}

// State returns the state after the latest frame.
func (d *Detector) State() State {
	return State(d.state.Load())
}

// IsPatternPresent reports whether the latest frame contained the pattern.
func (d *Detector) IsPatternPresent() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last.Present
}

// Transformations returns the pattern pose found in the latest frame, zero or one element.
func (d *Detector) Transformations() []spatialmath.Transformation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last.Transformations()
}

// LastResult returns the result of the latest frame.
func (d *Detector) LastResult() Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// ProcessFrame converts a raw frame and processes it. Invalid frames are returned as errors and
// leave the detector state unchanged.
func (d *Detector) ProcessFrame(ctx context.Context, f rimage.Frame) (Result, error) {
	gray, err := d.adapter.ToGray(f)
	if err != nil {
		return Result{State: d.State()}, errors.Wrap(err, "invalid frame")
	}
	return d.Process(ctx, gray)
}

// Process searches for the pattern in a gray frame. Not finding the pattern is reported in the
// result; errors only come from a cancelled context or an unusable frame.
func (d *Detector) Process(ctx context.Context, frame *image.Gray) (Result, error) {
	ctx, span := trace.StartSpan(ctx, "marker::Detector::Process")
	defer span.End()

	if frame == nil || frame.Bounds().Empty() {
		return Result{State: d.State()}, errors.New("empty frame")
	}
	start := d.clock.Now()
	cfg := d.cfg.Load()
	res, err := d.detect(ctx, frame, cfg)
	if err != nil {
		return Result{State: d.State()}, err
	}
	res.Elapsed = d.clock.Since(start)
	res.State = Searching
	if res.Present {
		res.State = Tracking
	}
	if prev := State(d.state.Swap(int32(res.State))); prev != res.State {
		d.logger.Infow("detection state changed", "from", prev, "to", res.State)
	}
	d.logger.Debugw("processed frame",
		"present", res.Present,
		"reason", res.Reason,
		"correspondences", len(res.Correspondences),
		"inliers", len(res.Inliers),
		"elapsed", res.Elapsed)

	d.mu.Lock()
	d.last = res
	d.mu.Unlock()
	return res, nil
}

func (d *Detector) detect(ctx context.Context, frame *image.Gray, cfg *Config) (Result, error) {
	var res Result
	matcher := NewFeatureMatcher(cfg.Ratio, cfg.MaxDistance, cfg.CrossCheck, d.logger)
	corrs, frameKps, err := matcher.Match(ctx, frame, d.pattern)
	if err != nil {
		return res, err
	}
	res.Correspondences, res.FrameKeyPoints = corrs, frameKps

	_, span := trace.StartSpan(ctx, "marker::Detector::estimateHomography")
	est := transform.NewHomographyEstimator(cfg.HomographyConfig).
		Estimate(corrs.PatternPoints(d.pattern), corrs.FramePoints(frameKps))
	span.End()
	hr, ok := est.Get()
	if !ok {
		res.Reason = est.Reason()
		return res, nil
	}
	res.Homography, res.Inliers, res.Stats = hr.H, hr.Inliers, hr.Stats

	_, span = trace.StartSpan(ctx, "marker::Detector::estimatePose")
	pose := transform.EstimatePose(hr.H, d.intrinsics)
	span.End()
	tf, ok := pose.Get()
	if !ok {
		res.Reason = pose.Reason()
		return res, nil
	}
	res.Present, res.Transformation = true, tf
	return res, nil
}
