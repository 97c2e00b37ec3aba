package cli

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/fengyu3941/marker-based-ar-demo/logging"
	"github.com/fengyu3941/marker-based-ar-demo/rimage"
	"github.com/fengyu3941/marker-based-ar-demo/rimage/transform"
	"github.com/fengyu3941/marker-based-ar-demo/vision/marker"
)

var frameExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".ppm", ".qoi"}

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// warningf prints a message prefixed with a bold yellow "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	color.New(color.Bold, color.FgYellow).Fprint(w, "Warning: ")
	printf(w, format, a...)
}

// newLogger returns the logger of a command. Logs go to the error writer of the app, or to
// stdout and a rotated file when a log file is given.
func newLogger(c *cli.Context) logging.Logger {
	level := logging.INFO
	if c.Bool(flagDebug) {
		level = logging.DEBUG
	}
	if path := c.Path(flagLogFile); path != "" {
		return logging.NewFileLogger("markerless-ar", path, level)
	}
	logger := logging.NewBlankLogger("markerless-ar")
	logger.SetLevel(level)
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	return logger
}

func loadConfig(c *cli.Context) (*marker.Config, error) {
	path := c.Path(flagConfig)
	if path == "" {
		return marker.DefaultConfig(), nil
	}
	return marker.LoadConfig(path)
}

func loadIntrinsics(c *cli.Context) (*transform.PinholeCameraIntrinsics, error) {
	path := c.Path(flagIntrinsics)
	if path == "" {
		return transform.DefaultIntrinsics(), nil
	}
	return transform.NewPinholeCameraIntrinsicsFromJSONFile(path)
}

func loadGray(path string) (*image.Gray, error) {
	img, err := rimage.ReadImageFromFile(path)
	if err != nil {
		return nil, err
	}
	return rimage.ConvertToGray(img), nil
}

// detectorSession holds what every command builds from its flags and first argument.
type detectorSession struct {
	logger     logging.Logger
	cfg        *marker.Config
	intrinsics *transform.PinholeCameraIntrinsics
	adapter    rimage.FrameAdapter
	detector   *marker.Detector
}

func newDetectorSession(c *cli.Context, patternPath string) (*detectorSession, error) {
	logger := newLogger(c)
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	intrinsics, err := loadIntrinsics(c)
	if err != nil {
		return nil, err
	}
	gray, err := loadGray(patternPath)
	if err != nil {
		return nil, errors.Wrap(err, "cannot load pattern")
	}
	pattern, err := marker.NewPattern(c.Context, gray, cfg.ORB)
	if err != nil {
		return nil, err
	}
	logger.Infow("pattern loaded", "path", patternPath, "size", pattern.Size, "keypoints", len(pattern.KeyPoints))

	// frames are brought to the calibrated size
	adapter := rimage.FrameAdapter{WorkingSize: image.Pt(intrinsics.Width, intrinsics.Height)}
	detector, err := marker.NewDetector(pattern, intrinsics, cfg, logger.Sublogger("detector"),
		marker.WithFrameAdapter(adapter))
	if err != nil {
		return nil, err
	}
	return &detectorSession{
		logger:     logger,
		cfg:        cfg,
		intrinsics: intrinsics,
		adapter:    adapter,
		detector:   detector,
	}, nil
}

func isFrameFile(name string) bool {
	return lo.Contains(frameExtensions, strings.ToLower(filepath.Ext(name)))
}

// listFrames returns path itself when it is a file, or the image files of the directory sorted by
// name, which is the order of a recording saved as numbered frames.
func listFrames(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	frames := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		return filepath.Join(path, e.Name()), !e.IsDir() && isFrameFile(e.Name())
	})
	if len(frames) == 0 {
		return nil, errors.Errorf("no frames in %q", path)
	}
	return frames, nil
}

// twoArgs checks that exactly two positional arguments were given.
func twoArgs(c *cli.Context) (string, string, error) {
	if c.Args().Len() != 2 {
		return "", "", errors.Errorf("expected 2 arguments %s, got %d", c.Command.ArgsUsage, c.Args().Len())
	}
	return c.Args().Get(0), c.Args().Get(1), nil
}
