package cli

import (
	"fmt"
	"math"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/fengyu3941/marker-based-ar-demo/rimage"
	"github.com/fengyu3941/marker-based-ar-demo/rimage/transform"
)

// SweepAction processes one frame at every reprojection threshold from 0 to --max, with and
// without homography refinement, then prints the inlier counts and charts them.
func SweepAction(c *cli.Context) error {
	patternPath, framePath, err := twoArgs(c)
	if err != nil {
		return err
	}
	step := c.Float64(sweepFlagStep)
	if step <= 0 {
		return errors.Errorf("--%s must be positive", sweepFlagStep)
	}
	maxThreshold := transform.ClampReprojectionThreshold(c.Float64(sweepFlagMax))
	s, err := newDetectorSession(c, patternPath)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(s.logger.Sync)

	img, err := rimage.ReadImageFromFile(framePath)
	if err != nil {
		return err
	}
	frame, err := s.adapter.ToGray(rimage.FrameFromImage(img))
	if err != nil {
		return err
	}

	steps := int(math.Floor(maxThreshold/step + 1e-9))
	var refined, raw plotter.XYs
	for _, refine := range []bool{true, false} {
		xys := make(plotter.XYs, 0, steps+1)
		for i := 0; i <= steps; i++ {
			cfg := s.cfg.Clone()
			cfg.RefineHomography = refine
			cfg.ReprojectionThreshold = float64(i) * step
			if err := s.detector.SetConfig(cfg); err != nil {
				return err
			}
			res, err := s.detector.Process(c.Context, frame)
			if err != nil {
				return err
			}
			xys = append(xys, plotter.XY{X: cfg.ReprojectionThreshold, Y: float64(len(res.Inliers))})
		}
		if refine {
			refined = xys
		} else {
			raw = xys
		}
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Threshold", "Inliers refined", "Inliers raw"})
	for i := range refined {
		t.AppendRow(table.Row{fmt.Sprintf("%.1f", refined[i].X), int(refined[i].Y), int(raw[i].Y)})
	}
	printf(c.App.Writer, "%s", t.Render())

	output := c.Path(sweepFlagOutput)
	if err := plotInliers(output, refined, raw); err != nil {
		return err
	}
	printf(c.App.Writer, "chart written to %s", output)
	return nil
}

func plotInliers(path string, refined, raw plotter.XYs) error {
	p := plot.New()
	p.Title.Text = "Homography inliers"
	p.X.Label.Text = "reprojection threshold (px)"
	p.Y.Label.Text = "inliers"
	p.Legend.Top = true
	p.Legend.Left = true
	if err := plotutil.AddLinePoints(p, "refined", refined, "raw", raw); err != nil {
		return errors.Wrap(err, "could not draw chart")
	}
	if err := p.Save(15*vg.Centimeter, 10*vg.Centimeter, path); err != nil {
		return errors.Wrap(err, "could not save chart")
	}
	return nil
}
