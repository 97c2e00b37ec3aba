package rimage

import (
	"image"
	"math"

	"github.com/pkg/errors"

	"github.com/fengyu3941/marker-based-ar-demo/utils"
)

// BorderPad selects how pixels outside an image are filled when padding.
type BorderPad int

const (
	// BorderConstant fills with zeros.
	BorderConstant BorderPad = iota
	// BorderReplicate repeats the closest edge pixel.
	BorderReplicate
	// BorderReflect mirrors the image at its edge.
	BorderReflect
)

// Kernel is a convolution matrix, indexed [y][x].
type Kernel struct {
	Content [][]float64
	Width   int
	Height  int
}

// NewKernel builds a kernel from rows of equal length.
func NewKernel(content [][]float64) (*Kernel, error) {
	if len(content) == 0 || len(content[0]) == 0 {
		return nil, errors.New("kernel must not be empty")
	}
	for _, row := range content {
		if len(row) != len(content[0]) {
			return nil, errors.New("kernel rows must have the same length")
		}
	}
	return &Kernel{Content: content, Width: len(content[0]), Height: len(content)}, nil
}

// At returns the kernel coefficient at column x, row y.
func (k *Kernel) At(x, y int) float64 {
	return k.Content[y][x]
}

// Size returns the kernel dimensions.
func (k *Kernel) Size() image.Point {
	return image.Point{k.Width, k.Height}
}

// Normalize returns a copy of the kernel whose coefficients sum to 1.
func (k *Kernel) Normalize() *Kernel {
	sum := 0.
	for _, row := range k.Content {
		for _, v := range row {
			sum += v
		}
	}
	if sum == 0 {
		sum = 1
	}
	content := make([][]float64, k.Height)
	for y, row := range k.Content {
		content[y] = make([]float64, k.Width)
		for x, v := range row {
			content[y][x] = v / sum
		}
	}
	return &Kernel{Content: content, Width: k.Width, Height: k.Height}
}

// GetGaussian5 returns the 5x5 binomial approximation of a gaussian kernel (not normalized).
func GetGaussian5() *Kernel {
	return &Kernel{
		Content: [][]float64{
			{1, 4, 7, 4, 1},
			{4, 16, 26, 16, 4},
			{7, 26, 41, 26, 7},
			{4, 16, 26, 16, 4},
			{1, 4, 7, 4, 1},
		},
		Width:  5,
		Height: 5,
	}
}

func borderIndex(i, n int, border BorderPad) (int, bool) {
	if i >= 0 && i < n {
		return i, true
	}
	switch border {
	case BorderReplicate:
		if i < 0 {
			return 0, true
		}
		return n - 1, true
	case BorderReflect:
		for i < 0 || i >= n {
			if i < 0 {
				i = -i - 1
			}
			if i >= n {
				i = 2*n - i - 1
			}
		}
		return i, true
	default:
		return 0, false
	}
}

// PaddingGray pads a gray image so that a kernel of size kernelSize anchored at anchor can be applied
// on every pixel of img.
func PaddingGray(img *image.Gray, kernelSize, anchor image.Point, border BorderPad) (*image.Gray, error) {
	if anchor.X < 0 || anchor.Y < 0 || anchor.X >= kernelSize.X || anchor.Y >= kernelSize.Y {
		return nil, errors.Errorf("anchor %v must be inside the kernel of size %v", anchor, kernelSize)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	padded := image.NewGray(image.Rect(0, 0, w+kernelSize.X-1, h+kernelSize.Y-1))
	for y := 0; y < padded.Rect.Dy(); y++ {
		sy, okY := borderIndex(y-anchor.Y, h, border)
		for x := 0; x < padded.Rect.Dx(); x++ {
			sx, okX := borderIndex(x-anchor.X, w, border)
			if !okX || !okY {
				continue
			}
			padded.Pix[y*padded.Stride+x] = img.GrayAt(bounds.Min.X+sx, bounds.Min.Y+sy).Y
		}
	}
	return padded, nil
}

// ConvolveGray applies a convolution matrix (Kernel) to a grayscale image.
// Example of usage:
//
//	res, err := rimage.ConvolveGray(img, kernel, image.Point{1, 1}, rimage.BorderReflect)
//
// Note: the anchor represents a point inside the area of the kernel. After every step of the convolution the position
// specified by the anchor point gets updated on the result image.
func ConvolveGray(img *image.Gray, kernel *Kernel, anchor image.Point, border BorderPad) (*image.Gray, error) {
	kernelSize := kernel.Size()
	padded, err := PaddingGray(img, kernelSize, anchor, border)
	if err != nil {
		return nil, err
	}
	originalSize := img.Bounds().Size()
	resultImage := image.NewGray(image.Rectangle{Max: originalSize})
	utils.ParallelForEachPixel(originalSize, func(x, y int) {
		sum := float64(0)
		for ky := 0; ky < kernelSize.Y; ky++ {
			row := padded.Pix[(y+ky)*padded.Stride+x:]
			for kx := 0; kx < kernelSize.X; kx++ {
				sum += float64(row[kx]) * kernel.At(kx, ky)
			}
		}
		sum = utils.ClampF64(math.Round(sum), 0, 255)
		resultImage.Pix[y*resultImage.Stride+x] = uint8(sum)
	})
	return resultImage, nil
}
