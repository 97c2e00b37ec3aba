// Package cli contains the markerless-ar command line tool: it runs the pattern detector over
// still images or directories of recorded frames and reports presence and pose per frame.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	// Global flags.
	flagConfig     = "config"
	flagIntrinsics = "intrinsics"
	flagDebug      = "debug"
	flagLogFile    = "log-file"

	detectFlagRepeat      = "repeat"
	detectFlagOverlayDir  = "overlay-dir"
	detectFlagWatch       = "watch"
	detectFlagGL          = "gl"
	detectFlagInteractive = "interactive"
	detectFlagHistogram   = "histogram"

	sweepFlagOutput = "output"
	sweepFlagStep   = "step"
	sweepFlagMax    = "max"
)

var app = &cli.App{
	Name:            "markerless-ar",
	Usage:           "find a planar pattern in camera frames and estimate its pose",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.PathFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "load detector configuration from `FILE`",
		},
		&cli.PathFlag{
			Name:  flagIntrinsics,
			Usage: "load camera intrinsics from `FILE`, defaults to the 653x368 demo webcam",
		},
		&cli.BoolFlag{
			Name:    flagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
		&cli.PathFlag{
			Name:  flagLogFile,
			Usage: "also write logs to the rotated `FILE`",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "detect",
			Usage:     "detect the pattern in an image or in every image of a directory",
			ArgsUsage: "<pattern image> <frame image or directory>",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  detectFlagRepeat,
					Value: 1,
					Usage: "process the frames `N` times",
				},
				&cli.PathFlag{
					Name:  detectFlagOverlayDir,
					Usage: "write annotated frames to `DIR`",
				},
				&cli.BoolFlag{
					Name:  detectFlagWatch,
					Usage: "reload the configuration file whenever it changes",
				},
				&cli.BoolFlag{
					Name:  detectFlagGL,
					Usage: "print OpenGL model view and projection matrices of detected poses",
				},
				&cli.BoolFlag{
					Name:  detectFlagHistogram,
					Usage: "print a histogram of the descriptor distances of every frame's correspondences",
				},
				&cli.BoolFlag{
					Name: detectFlagInteractive,
					Usage: "read tuning keys after every frame: '+' and '-' step the reprojection threshold, " +
						"'h' toggles homography refinement, 'q' quits",
				},
			},
			Action: DetectAction,
		},
		{
			Name:      "sweep",
			Usage:     "count homography inliers of a frame over the reprojection threshold range",
			ArgsUsage: "<pattern image> <frame image>",
			Flags: []cli.Flag{
				&cli.PathFlag{
					Name:  sweepFlagOutput,
					Value: "sweep.png",
					Usage: "write the chart to `FILE`",
				},
				&cli.Float64Flag{
					Name:  sweepFlagStep,
					Value: 0.2,
					Usage: "threshold increment in pixels",
				},
				&cli.Float64Flag{
					Name:  sweepFlagMax,
					Value: 10,
					Usage: "largest threshold in pixels",
				},
			},
			Action: SweepAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
