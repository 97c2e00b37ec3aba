package cli

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/disintegration/imaging"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"github.com/fengyu3941/marker-based-ar-demo/rimage"
	"github.com/fengyu3941/marker-based-ar-demo/vision/marker"
)

const (
	glNear = 0.01
	glFar  = 100
)

// DetectAction runs the detector over a frame or a directory of frames and prints one line per
// frame.
func DetectAction(c *cli.Context) error {
	patternPath, framesPath, err := twoArgs(c)
	if err != nil {
		return err
	}
	repeat := c.Int(detectFlagRepeat)
	if repeat < 1 {
		return errors.Errorf("--%s must be at least 1", detectFlagRepeat)
	}
	frames, err := listFrames(framesPath)
	if err != nil {
		return err
	}
	s, err := newDetectorSession(c, patternPath)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(s.logger.Sync)

	if c.Bool(detectFlagWatch) {
		path := c.Path(flagConfig)
		if path == "" {
			return errors.Errorf("--%s needs --%s", detectFlagWatch, flagConfig)
		}
		cw, err := marker.NewConfigWatcher(path, s.detector, 0, s.logger.Sublogger("watcher"))
		if err != nil {
			return err
		}
		defer utils.UncheckedErrorFunc(cw.Close)
	}

	overlayDir := c.Path(detectFlagOverlayDir)
	if overlayDir != "" {
		if err := os.MkdirAll(overlayDir, 0o750); err != nil {
			return err
		}
	}
	var keys *bufio.Scanner
	if c.Bool(detectFlagInteractive) {
		keys = bufio.NewScanner(c.App.Reader)
	}

	var processed, present int
	var elapsed time.Duration
	for i := 0; i < repeat; i++ {
		for _, path := range frames {
			img, err := rimage.ReadImageFromFile(path)
			if err != nil {
				return err
			}
			res, err := s.detector.ProcessFrame(c.Context, rimage.FrameFromImage(img))
			if err != nil {
				return errors.Wrapf(err, "processing %q", path)
			}
			processed++
			elapsed += res.Elapsed
			if res.Present {
				present++
			}
			printResult(c.App.Writer, filepath.Base(path), &res)
			if c.Bool(detectFlagHistogram) {
				if err := printDistanceHistogram(c.App.Writer, &res); err != nil {
					return err
				}
			}
			if c.Bool(detectFlagGL) && res.Present {
				printMatrix(c.App.Writer, "model view", res.Transformation.GLModelView())
				printMatrix(c.App.Writer, "projection", s.intrinsics.GLProjectionMatrix(glNear, glFar))
			}
			if overlayDir != "" {
				if err := writeOverlay(overlayDir, processed, path, img, s, &res); err != nil {
					return err
				}
			}
			if keys != nil && !applyKeys(c.App.Writer, keys, s.detector) {
				printSummary(c.App.Writer, processed, present, elapsed)
				return nil
			}
		}
	}
	printSummary(c.App.Writer, processed, present, elapsed)
	return nil
}

func printResult(w io.Writer, name string, res *marker.Result) {
	if !res.Present {
		printf(w, "%s: %s (%s) correspondences=%d", name, res.State, res.Reason, len(res.Correspondences))
		return
	}
	printf(w, "%s: %s present inliers=%d/%d rms=%.3fpx pose=%v",
		name, res.State, len(res.Inliers), len(res.Correspondences), res.Stats.RMS, res.Transformation)
}

func printMatrix(w io.Writer, name string, m mgl64.Mat4) {
	rows := make([]string, 0, 4)
	for r := 0; r < 4; r++ {
		rows = append(rows, fmt.Sprintf("[% .5f % .5f % .5f % .5f]", m.At(r, 0), m.At(r, 1), m.At(r, 2), m.At(r, 3)))
	}
	printf(w, "  GL %s: %s", name, strings.Join(rows, " "))
}

const (
	histogramBins  = 8
	histogramWidth = 40
)

func printDistanceHistogram(w io.Writer, res *marker.Result) error {
	if len(res.Correspondences) == 0 {
		return nil
	}
	distances := lo.Map(res.Correspondences, func(c marker.Correspondence, _ int) float64 {
		return float64(c.Distance)
	})
	printf(w, "  descriptor distances:")
	if lo.Min(distances) == lo.Max(distances) {
		// a single value has no bin width
		printf(w, "  %v: %d", distances[0], len(distances))
		return nil
	}
	return histogram.Fprint(w, histogram.Hist(histogramBins, distances), histogram.Linear(histogramWidth))
}

func printSummary(w io.Writer, processed, present int, elapsed time.Duration) {
	var avg time.Duration
	if processed > 0 {
		avg = elapsed / time.Duration(processed)
	}
	printf(w, "processed %d frames, pattern present in %d, %v per frame", processed, present, avg)
}

// writeOverlay draws the result over the frame, brought to the size the detector worked at.
func writeOverlay(dir string, n int, path string, img image.Image, s *detectorSession, res *marker.Result) error {
	if img.Bounds().Size() != s.adapter.WorkingSize {
		img = imaging.Resize(img, s.adapter.WorkingSize.X, s.adapter.WorkingSize.Y, imaging.Linear)
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(dir, fmt.Sprintf("%04d-%s.png", n, stem))
	return rimage.WriteImageToFile(out, marker.DrawResult(img, s.detector.Pattern(), s.intrinsics, *res))
}

// applyKeys reads one line of tuning keys and applies them. It returns false when the user quits
// or the input ends.
func applyKeys(w io.Writer, keys *bufio.Scanner, d *marker.Detector) bool {
	if !keys.Scan() {
		return false
	}
	for _, k := range keys.Text() {
		switch k {
		case '+', '=':
			printf(w, "reprojection threshold %.1f", d.StepReprojectionThreshold(1))
		case '-':
			printf(w, "reprojection threshold %.1f", d.StepReprojectionThreshold(-1))
		case 'h':
			printf(w, "homography refinement %v", d.ToggleRefinement())
		case 'q':
			return false
		case ' ', '\t':
		default:
			warningf(w, "unknown key %q", k)
		}
	}
	return true
}
