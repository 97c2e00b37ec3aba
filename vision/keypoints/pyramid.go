package keypoints

import (
	"image"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// minPyramidSize is the smallest side of an image kept in a pyramid.
const minPyramidSize = 32

// ImagePyramid contains the successive downscaled versions of an image and their scales relative to
// the original image.
type ImagePyramid struct {
	Images []*image.Gray
	Scales []float64
}

// GetImagePyramid computes up to nLayers levels, each level downscaled by factor from the previous
// one with a bilinear filter. It stops early when a level would get smaller than minPyramidSize.
func GetImagePyramid(img *image.Gray, nLayers int, factor float64) (*ImagePyramid, error) {
	if nLayers < 1 {
		return nil, errors.New("number of layers should be > 0")
	}
	if factor <= 1 {
		return nil, errors.New("downscale factor should be greater than 1")
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pyramid := &ImagePyramid{
		Images: []*image.Gray{img},
		Scales: []float64{1},
	}
	for i := 1; i < nLayers; i++ {
		scale := math.Pow(factor, float64(i))
		nw, nh := int(math.Round(float64(w)/scale)), int(math.Round(float64(h)/scale))
		if nw < minPyramidSize || nh < minPyramidSize {
			break
		}
		down := image.NewGray(image.Rect(0, 0, nw, nh))
		draw.BiLinear.Scale(down, down.Bounds(), img, bounds, draw.Src, nil)
		pyramid.Images = append(pyramid.Images, down)
		pyramid.Scales = append(pyramid.Scales, scale)
	}
	return pyramid, nil
}

// levelToImage maps a pixel of a pyramid level back to full resolution coordinates, matching pixel
// centers.
func levelToImage(p image.Point, level, original image.Rectangle) (float64, float64) {
	sx := float64(original.Dx()) / float64(level.Dx())
	sy := float64(original.Dy()) / float64(level.Dy())
	return (float64(p.X)+0.5)*sx - 0.5, (float64(p.Y)+0.5)*sy - 0.5
}
