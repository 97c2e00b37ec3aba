package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/fengyu3941/marker-based-ar-demo/spatialmath"
)

const (
	minColumnNorm = 1e-9
	detTolerance  = 1e-6
)

func colVector(m *mat.Dense, j int) r3.Vector {
	return r3.Vector{X: m.At(0, j), Y: m.At(1, j), Z: m.At(2, j)}
}

// EstimatePose recovers the transformation from the pattern plane (z = 0 in pattern units) to the
// camera frame from a homography mapping that plane to pixels. With M = K^-1 H, the first two
// columns of M are the scaled rotation axes of the plane and the third is the scaled translation.
// The rotation is snapped to the closest proper rotation matrix and the pattern is always placed
// in front of the camera.
func EstimatePose(h *Homography, intrinsics *PinholeCameraIntrinsics) Estimate[spatialmath.Transformation] {
	if h == nil || intrinsics.CheckValid() != nil {
		return NotFound[spatialmath.Transformation](ReasonDegeneratePose)
	}
	var m mat.Dense
	m.Mul(intrinsics.inverseCameraMatrix(), h.matrix)
	m1, m2, m3 := colVector(&m, 0), colVector(&m, 1), colVector(&m, 2)
	n1, n2 := m1.Norm(), m2.Norm()
	if n1 < minColumnNorm || n2 < minColumnNorm {
		return NotFound[spatialmath.Transformation](ReasonDegeneratePose)
	}
	lambda := 2 / (n1 + n2)
	if m3.Z < 0 {
		lambda = -lambda
	}
	rx := m1.Mul(lambda)
	ry := m2.Mul(lambda)
	rz := rx.Cross(ry)
	q := mat.NewDense(3, 3, []float64{
		rx.X, ry.X, rz.X,
		rx.Y, ry.Y, rz.Y,
		rx.Z, ry.Z, rz.Z,
	})
	mats, err := performSVD(q)
	if err != nil {
		return NotFound[spatialmath.Transformation](ReasonDegeneratePose)
	}
	var rot mat.Dense
	rot.Mul(mats.U, mats.VT)
	if mat.Det(&rot) < 0 {
		flip := eye(3)
		flip.Set(2, 2, -1)
		rot.Mul(mats.U, flip)
		rot.Mul(&rot, mats.VT)
	}
	if math.Abs(mat.Det(&rot)-1) > detTolerance {
		return NotFound[spatialmath.Transformation](ReasonDegeneratePose)
	}
	rm, err := spatialmath.NewRotationMatrixFromDense(&rot)
	if err != nil {
		return NotFound[spatialmath.Transformation](ReasonDegeneratePose)
	}
	return Found(spatialmath.NewTransformation(rm, m3.Mul(lambda)))
}
