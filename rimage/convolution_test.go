package rimage

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"go.viam.com/test"
)

func createTestImage() *image.Gray {
	rectImage := image.NewGray(image.Rect(0, 0, 30, 20))
	whiteRect := image.Rect(5, 3, 10, 15)
	draw.Draw(rectImage, rectImage.Bounds(), &image.Uniform{color.Gray{0}}, image.Point{0, 0}, draw.Src)
	draw.Draw(rectImage, whiteRect, &image.Uniform{color.Gray{255}}, image.Point{0, 0}, draw.Src)
	return rectImage
}

func TestPaddingGray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	copy(img.Pix, []uint8{1, 2, 3, 4, 5, 6})

	padded, err := PaddingGray(img, image.Point{3, 3}, image.Point{1, 1}, BorderConstant)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, padded.Bounds().Size(), test.ShouldResemble, image.Point{5, 4})
	test.That(t, padded.GrayAt(0, 0).Y, test.ShouldEqual, 0)
	test.That(t, padded.GrayAt(1, 1).Y, test.ShouldEqual, 1)
	test.That(t, padded.GrayAt(3, 2).Y, test.ShouldEqual, 6)

	replicated, err := PaddingGray(img, image.Point{3, 3}, image.Point{1, 1}, BorderReplicate)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, replicated.GrayAt(0, 0).Y, test.ShouldEqual, 1)
	test.That(t, replicated.GrayAt(4, 3).Y, test.ShouldEqual, 6)

	reflected, err := PaddingGray(img, image.Point{5, 1}, image.Point{2, 0}, BorderReflect)
	test.That(t, err, test.ShouldBeNil)
	// row 0 becomes 2 1 | 1 2 3 | 3 2
	row := reflected.Pix[:reflected.Stride]
	test.That(t, row, test.ShouldResemble, []uint8{2, 1, 1, 2, 3, 3, 2})

	_, err = PaddingGray(img, image.Point{3, 3}, image.Point{3, 1}, BorderConstant)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestConvolveGray(t *testing.T) {
	img := createTestImage()
	identity, err := NewKernel([][]float64{{0, 0, 0}, {0, 1, 0}, {0, 0, 0}})
	test.That(t, err, test.ShouldBeNil)
	same, err := ConvolveGray(img, identity, image.Point{1, 1}, BorderReplicate)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, same.Pix, test.ShouldResemble, img.Pix)

	blurred, err := ConvolveGray(img, GetGaussian5().Normalize(), image.Point{2, 2}, BorderReflect)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, blurred.Bounds(), test.ShouldResemble, img.Bounds())
	// deep inside the rectangle and far outside it the blur is a no-op
	test.That(t, blurred.GrayAt(7, 9).Y, test.ShouldEqual, 255)
	test.That(t, blurred.GrayAt(25, 10).Y, test.ShouldEqual, 0)
	// on the edge it is somewhere in between
	edge := blurred.GrayAt(5, 9).Y
	test.That(t, edge, test.ShouldBeGreaterThan, 0)
	test.That(t, edge, test.ShouldBeLessThan, 255)

	_, err = NewKernel([][]float64{{1, 2}, {3}})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewKernel(nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestKernelNormalize(t *testing.T) {
	k := GetGaussian5().Normalize()
	sum := 0.
	for y := 0; y < k.Height; y++ {
		for x := 0; x < k.Width; x++ {
			sum += k.At(x, y)
		}
	}
	test.That(t, sum, test.ShouldAlmostEqual, 1)
	test.That(t, k.Size(), test.ShouldResemble, image.Point{5, 5})
}
