package rimage

import (
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"github.com/xfmoulet/qoi"
	"go.viam.com/utils"
)

// ReadImageFromFile decodes an image file. PPM and QOI files are decoded with their own decoders,
// everything else with imaging, which honours EXIF orientation.
func ReadImageFromFile(path string) (image.Image, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".ppm", ".qoi":
		//nolint:gosec
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(f.Close)
		decode := ppm.Decode
		if ext == ".qoi" {
			decode = qoi.Decode
		}
		img, err := decode(f)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding %q", path)
		}
		return img, nil
	default:
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil {
			return nil, errors.Wrapf(err, "decoding %q", path)
		}
		return img, nil
	}
}

// WriteImageToFile encodes img to path; the format follows the file extension.
func WriteImageToFile(path string, img image.Image) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".ppm" || ext == ".qoi" {
		//nolint:gosec
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if ext == ".qoi" {
			err = qoi.Encode(f, img)
		} else {
			err = ppm.Encode(f, toRGBA(img))
		}
		if err != nil {
			utils.UncheckedError(f.Close())
			return err
		}
		return f.Close()
	}
	return imaging.Save(img, path)
}

// toRGBA copies img into a tightly packed RGBA image anchored at the origin, the only form the PPM
// encoder writes.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
