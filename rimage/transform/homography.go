package transform

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateConfiguration is returned when a set of point pairs does not determine a homography.
var ErrDegenerateConfiguration = errors.New("degenerate point configuration")

// Homography is a 3x3 matrix used to transform points of one plane to another plane. Here it maps
// the pattern plane to frame pixels.
type Homography struct {
	matrix *mat.Dense
}

// NewHomography creates a Homography from a slice of floats in row major order.
func NewHomography(vals []float64) (*Homography, error) {
	if len(vals) != 9 {
		return nil, errors.Errorf("input to NewHomography must have length of 9. Has length of %d", len(vals))
	}
	data := make([]float64, 9)
	copy(data, vals)
	return &Homography{mat.NewDense(3, 3, data)}, nil
}

// NewIdentityHomography returns the homography leaving every point in place.
func NewIdentityHomography() *Homography {
	return &Homography{eye(3)}
}

func newHomographyFromDense(m mat.Matrix) *Homography {
	return &Homography{mat.DenseCopyOf(m)}
}

// At returns the value of the homography at the given index.
func (h *Homography) At(row, col int) float64 {
	return h.matrix.At(row, col)
}

// Dense returns a copy of the homography as a gonum matrix.
func (h *Homography) Dense() *mat.Dense {
	return mat.DenseCopyOf(h.matrix)
}

// Apply will transform the given point according to the homography. A point mapped to infinity
// comes back with infinite coordinates.
func (h *Homography) Apply(pt r2.Point) r2.Point {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	z := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	if math.Abs(z) < 1e-15 {
		return r2.Point{X: math.Inf(1), Y: math.Inf(1)}
	}
	return r2.Point{X: x / z, Y: y / z}
}

// Inverse inverts the homography. If homography went from color -> depth, Inverse makes it point
// from depth -> color.
func (h *Homography) Inverse() (*Homography, error) {
	var hInv mat.Dense
	if err := hInv.Inverse(h.matrix); err != nil {
		return nil, errors.Wrap(ErrDegenerateConfiguration, err.Error())
	}
	return &Homography{&hInv}, nil
}

// Normalized returns the homography scaled so that its bottom right element is 1, or so that it
// has a unit Frobenius norm when that element vanishes.
func (h *Homography) Normalized() *Homography {
	out := mat.DenseCopyOf(h.matrix)
	if s := out.At(2, 2); math.Abs(s) > 1e-12 {
		out.Scale(1/s, out)
	} else if n := mat.Norm(out, 2); n > 0 {
		out.Scale(1/n, out)
	}
	return &Homography{out}
}

// ReprojectionError is the distance in pixels between h(src) and dst.
func (h *Homography) ReprojectionError(src, dst r2.Point) float64 {
	p := h.Apply(src)
	if math.IsInf(p.X, 0) {
		return math.Inf(1)
	}
	return p.Sub(dst).Norm()
}

func (h *Homography) String() string {
	return fmt.Sprintf("%v", mat.Formatted(h.matrix, mat.Squeeze()))
}

// ComputeHomography estimates the homography mapping src onto dst with the normalized direct
// linear transform, a least squares fit when more than 4 pairs are given.
func ComputeHomography(src, dst []r2.Point) (*Homography, error) {
	if len(src) != len(dst) {
		return nil, errors.Errorf("sets of points must have the same number of elements, got %d and %d", len(src), len(dst))
	}
	if len(src) < 4 {
		return nil, errors.Wrapf(ErrDegenerateConfiguration, "need at least 4 point pairs, got %d", len(src))
	}
	srcN, t1, err := normalizePoints(src)
	if err != nil {
		return nil, errors.Wrap(ErrDegenerateConfiguration, err.Error())
	}
	dstN, t2, err := normalizePoints(dst)
	if err != nil {
		return nil, errors.Wrap(ErrDegenerateConfiguration, err.Error())
	}
	a := mat.NewDense(2*len(src), 9, nil)
	for i := range srcN {
		x, y := srcN[i].X, srcN[i].Y
		u, v := dstN[i].X, dstN[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}
	mats, err := performSVD(a)
	if err != nil {
		return nil, err
	}
	// the solution is the right singular vector of the smallest singular value
	hN := mat.NewDense(3, 3, mat.Col(nil, 8, mats.V))
	// denormalize: T2^-1 * Hn * T1
	var h mat.Dense
	h.Mul(invertNormalization(t2), hN)
	h.Mul(&h, t1)

	out := newHomographyFromDense(&h).Normalized()
	var scaled mat.Dense
	scaled.Scale(1/mat.Norm(out.matrix, 2), out.matrix)
	if math.Abs(mat.Det(&scaled)) < 1e-10 {
		return nil, errors.Wrap(ErrDegenerateConfiguration, "homography is singular")
	}
	return out, nil
}

// collinear reports whether three points lie on a line, relative to the size of the triangle.
func collinear(a, b, c r2.Point) bool {
	ab, ac := b.Sub(a), c.Sub(a)
	scale := math.Max(ab.Norm()*ac.Norm(), 1e-12)
	return math.Abs(ab.Cross(ac))/scale < 1e-6
}

// degenerateSample reports whether any three of the four points are collinear.
func degenerateSample(pts [4]r2.Point) bool {
	return collinear(pts[0], pts[1], pts[2]) ||
		collinear(pts[0], pts[1], pts[3]) ||
		collinear(pts[0], pts[2], pts[3]) ||
		collinear(pts[1], pts[2], pts[3])
}
