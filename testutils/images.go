package testutils

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"math/rand"
)

// RandomCellImage returns a w x h gray image tiled with cell x cell squares of random intensity.
// Cell junctions make strong, well spread corners with distinct neighborhoods.
func RandomCellImage(w, h, cell int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y0 := 0; y0 < h; y0 += cell {
		for x0 := 0; x0 < w; x0 += cell {
			c := color.Gray{uint8(rng.Intn(256))}
			draw.Draw(img, image.Rect(x0, y0, x0+cell, y0+cell), &image.Uniform{c}, image.Point{}, draw.Src)
		}
	}
	return img
}

// NoiseImage returns a w x h image of independent uniformly distributed pixels.
func NoiseImage(w, h int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec
	img := image.NewGray(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	return img
}

// UniformGray returns a w x h image filled with value v.
func UniformGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// EmbedGray copies src at offset inside a w x h canvas filled with bg.
func EmbedGray(src *image.Gray, w, h int, offset image.Point, bg uint8) *image.Gray {
	dst := UniformGray(w, h, bg)
	draw.Draw(dst, src.Bounds().Add(offset), src, src.Bounds().Min, draw.Src)
	return dst
}

// WarpGray renders src through a perspective mapping into a w x h canvas filled with bg.
// inv is the row major 3x3 matrix mapping destination pixels back to source pixels. Samples
// are bilinearly interpolated.
func WarpGray(src *image.Gray, inv [9]float64, w, h int, bg uint8) *image.Gray {
	dst := UniformGray(w, h, bg)
	b := src.Bounds()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fx, fy := float64(x), float64(y)
			z := inv[6]*fx + inv[7]*fy + inv[8]
			if math.Abs(z) < 1e-12 {
				continue
			}
			sx := (inv[0]*fx + inv[1]*fy + inv[2]) / z
			sy := (inv[3]*fx + inv[4]*fy + inv[5]) / z
			x0, y0 := int(math.Floor(sx)), int(math.Floor(sy))
			if x0 < b.Min.X || y0 < b.Min.Y || x0+1 >= b.Max.X || y0+1 >= b.Max.Y {
				continue
			}
			ax, ay := sx-float64(x0), sy-float64(y0)
			v00 := float64(src.GrayAt(x0, y0).Y)
			v10 := float64(src.GrayAt(x0+1, y0).Y)
			v01 := float64(src.GrayAt(x0, y0+1).Y)
			v11 := float64(src.GrayAt(x0+1, y0+1).Y)
			v := (1-ay)*((1-ax)*v00+ax*v10) + ay*((1-ax)*v01+ax*v11)
			dst.SetGray(x, y, color.Gray{uint8(math.Round(v))})
		}
	}
	return dst
}
