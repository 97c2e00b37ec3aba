package spatialmath

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

// represent a 45 degree rotation around the x axis
var (
	th    = math.Pi / 4.
	q45x  = quat.Number{Real: math.Cos(th / 2.), Imag: math.Sin(th / 2.)}
	aa45x = &R4AA{th, 1., 0., 0.}
)

func TestRotationMatrixQuaternion(t *testing.T) {
	rm := aa45x.RotationMatrix()
	test.That(t, rm.At(1, 1), test.ShouldAlmostEqual, math.Cos(th))
	test.That(t, rm.At(1, 2), test.ShouldAlmostEqual, -math.Sin(th))
	test.That(t, rm.At(2, 1), test.ShouldAlmostEqual, math.Sin(th))
	test.That(t, rm.Det(), test.ShouldAlmostEqual, 1)

	q := rm.Quaternion()
	test.That(t, q.Real, test.ShouldAlmostEqual, q45x.Real)
	test.That(t, q.Imag, test.ShouldAlmostEqual, q45x.Imag)
	test.That(t, q.Jmag, test.ShouldAlmostEqual, 0)
	test.That(t, q.Kmag, test.ShouldAlmostEqual, 0)

	aa := rm.AxisAngles()
	test.That(t, aa.Theta, test.ShouldAlmostEqual, th)
	test.That(t, aa.RX, test.ShouldAlmostEqual, 1)

	// a half turn exercises the branches of the conversion that do not rely on the trace
	for _, axis := range []r3.Vector{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}} {
		half := (&R4AA{math.Pi, axis.X, axis.Y, axis.Z}).RotationMatrix()
		back := QuatToRotationMatrix(half.Quaternion())
		test.That(t, RotationBetween(half, back), test.ShouldAlmostEqual, 0, 1e-6)
	}
}

func TestNewRotationMatrix(t *testing.T) {
	_, err := NewRotationMatrix([]float64{1, 0, 0})
	test.That(t, err, test.ShouldNotBeNil)
	rm, err := NewRotationMatrix([]float64{0, -1, 0, 1, 0, 0, 0, 0, 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rm.Mul(r3.Vector{1, 0, 0}), test.ShouldResemble, r3.Vector{0, 1, 0})
	test.That(t, rm.Col(0), test.ShouldResemble, r3.Vector{0, 1, 0})
	test.That(t, rm.Transpose().MulMatrix(rm), test.ShouldResemble, NewIdentityRotation())

	fromDense, err := NewRotationMatrixFromDense(rm.Dense())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fromDense, test.ShouldResemble, rm)
}

func TestTransformation(t *testing.T) {
	tf := NewTransformation(aa45x.RotationMatrix(), r3.Vector{1, 2, 3})
	p := r3.Vector{0.5, -0.25, 0.75}
	back := tf.Inverse().Apply(tf.Apply(p))
	test.That(t, back.Sub(p).Norm(), test.ShouldBeLessThan, 1e-12)

	identity := tf.Compose(tf.Inverse())
	test.That(t, identity.Translation.Norm(), test.ShouldBeLessThan, 1e-12)
	test.That(t, identity.AngleTo(NewTransformation(nil, r3.Vector{})), test.ShouldBeLessThan, 1e-6)
	test.That(t, tf.AngleTo(NewTransformation(nil, r3.Vector{})), test.ShouldAlmostEqual, th)

	m := tf.Mat4()
	got := m.Mul4x1(mgl64.Vec4{p.X, p.Y, p.Z, 1})
	want := tf.Apply(p)
	test.That(t, got.X(), test.ShouldAlmostEqual, want.X)
	test.That(t, got.Y(), test.ShouldAlmostEqual, want.Y)
	test.That(t, got.Z(), test.ShouldAlmostEqual, want.Z)

	gl := tf.GLModelView().Mul4x1(mgl64.Vec4{p.X, p.Y, p.Z, 1})
	test.That(t, gl.X(), test.ShouldAlmostEqual, want.X)
	test.That(t, gl.Y(), test.ShouldAlmostEqual, -want.Y)
	test.That(t, gl.Z(), test.ShouldAlmostEqual, -want.Z)
	test.That(t, tf.String(), test.ShouldContainSubstring, "45.00 deg")
}

func TestR4AANormalize(t *testing.T) {
	aa := &R4AA{Theta: 1, RX: 0, RY: 3, RZ: 4}
	aa.Normalize()
	test.That(t, aa.RY, test.ShouldAlmostEqual, 0.6)
	test.That(t, aa.RZ, test.ShouldAlmostEqual, 0.8)
	zero := &R4AA{Theta: 1}
	zero.Normalize()
	test.That(t, zero.ToR3(), test.ShouldResemble, r3.Vector{0, 0, 1})
}
