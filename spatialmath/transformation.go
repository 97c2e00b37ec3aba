package spatialmath

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
)

// Transformation is a rigid transformation mapping points of the pattern plane frame into the
// camera frame: p_cam = Rotation * p_pattern + Translation. Translation is expressed in pattern
// units, where the long side of the pattern spans 2.
type Transformation struct {
	Rotation    *RotationMatrix
	Translation r3.Vector
}

// NewTransformation builds a transformation from a rotation and a translation.
func NewTransformation(rot *RotationMatrix, t r3.Vector) Transformation {
	if rot == nil {
		rot = NewIdentityRotation()
	}
	return Transformation{Rotation: rot, Translation: t}
}

// Apply maps a point of the pattern frame into the camera frame.
func (tf Transformation) Apply(p r3.Vector) r3.Vector {
	return tf.Rotation.Mul(p).Add(tf.Translation)
}

// Inverse returns the transformation from the camera frame back to the pattern frame.
func (tf Transformation) Inverse() Transformation {
	rt := tf.Rotation.Transpose()
	return Transformation{Rotation: rt, Translation: rt.Mul(tf.Translation).Mul(-1)}
}

// Compose returns the transformation applying other first, then tf.
func (tf Transformation) Compose(other Transformation) Transformation {
	return Transformation{
		Rotation:    tf.Rotation.MulMatrix(other.Rotation),
		Translation: tf.Apply(other.Translation),
	}
}

// Mat4 returns the homogeneous 4x4 matrix of the transformation.
func (tf Transformation) Mat4() mgl64.Mat4 {
	r := tf.Rotation
	t := tf.Translation
	// mgl64 matrices are column major
	return mgl64.Mat4{
		r.At(0, 0), r.At(1, 0), r.At(2, 0), 0,
		r.At(0, 1), r.At(1, 1), r.At(2, 1), 0,
		r.At(0, 2), r.At(1, 2), r.At(2, 2), 0,
		t.X, t.Y, t.Z, 1,
	}
}

// GLModelView returns the model view matrix an OpenGL renderer expects. The camera frame used
// here looks down +z with y pointing down, OpenGL looks down -z with y pointing up, so y and z
// rows are negated.
func (tf Transformation) GLModelView() mgl64.Mat4 {
	return mgl64.Scale3D(1, -1, -1).Mul4(tf.Mat4())
}

// AngleTo returns the angle in radians of the rotation between tf and other.
func (tf Transformation) AngleTo(other Transformation) float64 {
	return RotationBetween(tf.Rotation, other.Rotation)
}

func (tf Transformation) String() string {
	aa := tf.Rotation.AxisAngles()
	return fmt.Sprintf("{rotation: %.2f deg about (%.3f %.3f %.3f), translation: (%.4f %.4f %.4f)}",
		aa.Theta*180/math.Pi, aa.RX, aa.RY, aa.RZ, tf.Translation.X, tf.Translation.Y, tf.Translation.Z)
}
