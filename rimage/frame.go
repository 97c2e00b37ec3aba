package rimage

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// ColorLayout describes how the channels of a pixel are laid out in a frame buffer.
type ColorLayout int

const (
	// LayoutGray is one 8-bit luminance channel per pixel.
	LayoutGray ColorLayout = iota
	// LayoutBGR is three 8-bit channels in blue, green, red order.
	LayoutBGR
	// LayoutBGRA is BGR followed by an alpha channel, as delivered by most capture devices.
	LayoutBGRA
	// LayoutRGB is three 8-bit channels in red, green, blue order.
	LayoutRGB
	// LayoutRGBA is RGB followed by an alpha channel.
	LayoutRGBA
)

// Channels returns the number of bytes per pixel of the layout.
func (l ColorLayout) Channels() int {
	switch l {
	case LayoutGray:
		return 1
	case LayoutBGR, LayoutRGB:
		return 3
	case LayoutBGRA, LayoutRGBA:
		return 4
	default:
		return 0
	}
}

func (l ColorLayout) String() string {
	switch l {
	case LayoutGray:
		return "gray"
	case LayoutBGR:
		return "bgr"
	case LayoutBGRA:
		return "bgra"
	case LayoutRGB:
		return "rgb"
	case LayoutRGBA:
		return "rgba"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// Frame is a raw pixel buffer handed over by a capture source. The buffer is borrowed: nothing in
// this module keeps a reference to Pix after the call it was passed to returns.
type Frame struct {
	Width  int
	Height int
	// Stride is the number of bytes between two rows. Zero means tightly packed rows.
	Stride int
	Pix    []byte
	Layout ColorLayout
}

func (f Frame) rowStride() int {
	if f.Stride != 0 {
		return f.Stride
	}
	return f.Width * f.Layout.Channels()
}

// Validate checks that the frame dimensions, layout and buffer size are consistent.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return errors.Errorf("invalid frame size (%d, %d)", f.Width, f.Height)
	}
	channels := f.Layout.Channels()
	if channels == 0 {
		return errors.Errorf("unsupported color layout %v", f.Layout)
	}
	stride := f.rowStride()
	if stride < f.Width*channels {
		return errors.Errorf("stride %d is smaller than a row of %d %v pixels", stride, f.Width, f.Layout)
	}
	if need := stride*(f.Height-1) + f.Width*channels; len(f.Pix) < need {
		return errors.Errorf("frame buffer holds %d bytes, %dx%d %v needs %d", len(f.Pix), f.Width, f.Height, f.Layout, need)
	}
	return nil
}

// FrameFromImage copies an image into a BGRA frame. Channels are stored unpremultiplied so that
// translucent pixels keep their colour.
func FrameFromImage(img image.Image) Frame {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pix := make([]byte, 4*w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c, _ := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			i := 4 * (y*w + x)
			pix[i], pix[i+1], pix[i+2], pix[i+3] = c.B, c.G, c.R, c.A
		}
	}
	return Frame{Width: w, Height: h, Pix: pix, Layout: LayoutBGRA}
}

// luma uses the ITU-R BT.601 weights, rounded to the nearest integer.
func luma(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}

// FrameAdapter normalizes frames into the 8-bit grayscale images the detector works on.
type FrameAdapter struct {
	// WorkingSize, when non-zero, is the size every frame is resized to before detection.
	WorkingSize image.Point
}

// ToGray converts the frame to grayscale, resizing it to the working size if one is set.
func (fa FrameAdapter) ToGray(f Frame) (*image.Gray, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	gray := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	channels := f.Layout.Channels()
	stride := f.rowStride()
	for y := 0; y < f.Height; y++ {
		row := f.Pix[y*stride:]
		out := gray.Pix[y*gray.Stride:]
		for x := 0; x < f.Width; x++ {
			p := row[x*channels:]
			switch f.Layout {
			case LayoutGray:
				out[x] = p[0]
			case LayoutBGR, LayoutBGRA:
				out[x] = luma(p[2], p[1], p[0])
			case LayoutRGB, LayoutRGBA:
				out[x] = luma(p[0], p[1], p[2])
			}
		}
	}
	if fa.WorkingSize == (image.Point{}) || fa.WorkingSize == gray.Bounds().Size() {
		return gray, nil
	}
	if fa.WorkingSize.X <= 0 || fa.WorkingSize.Y <= 0 {
		return nil, errors.Errorf("invalid working size %v", fa.WorkingSize)
	}
	resized := imaging.Resize(gray, fa.WorkingSize.X, fa.WorkingSize.Y, imaging.Linear)
	return ConvertToGray(resized), nil
}

// ConvertToGray converts any image to grayscale with the same weights used for frames, so that a
// reference image and a frame built from the same picture give identical pixels.
func ConvertToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		out := image.NewGray(image.Rect(0, 0, g.Bounds().Dx(), g.Bounds().Dy()))
		for y := 0; y < out.Rect.Dy(); y++ {
			copy(out.Pix[y*out.Stride:(y+1)*out.Stride], g.Pix[g.PixOffset(g.Rect.Min.X, g.Rect.Min.Y+y):])
		}
		return out
	}
	gray, err := FrameAdapter{}.ToGray(FrameFromImage(img))
	if err != nil {
		// FrameFromImage always produces a consistent frame; only empty images end up here.
		return image.NewGray(image.Rectangle{})
	}
	return gray
}
