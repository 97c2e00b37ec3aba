package transform

import (
	"fmt"
	"io"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// NewPinholeCameraIntrinsics builds and validates a camera model.
func NewPinholeCameraIntrinsics(fx, fy, ppx, ppy float64, width, height int) (*PinholeCameraIntrinsics, error) {
	params := &PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     fx,
		Fy:     fy,
		Ppx:    ppx,
		Ppy:    ppy,
	}
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	return params, nil
}

// DefaultIntrinsics returns the calibration of the demo webcam, for 653x368 frames.
func DefaultIntrinsics() *PinholeCameraIntrinsics {
	return &PinholeCameraIntrinsics{
		Width:  653,
		Height: 368,
		Fx:     545.31565719766058,
		Fy:     545.31565719766058,
		Ppx:    326,
		Ppy:    183.5,
	}
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// NewPinholeCameraIntrinsicsFromJSONFile takes in a file path to a JSON or JSON5 file and turns it into
// PinholeCameraIntrinsics.
func NewPinholeCameraIntrinsicsFromJSONFile(jsonPath string) (*PinholeCameraIntrinsics, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	intrinsics := &PinholeCameraIntrinsics{}
	if err := json5.Unmarshal(byteValue, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, errors.Wrapf(err, "invalid intrinsics in %q", jsonPath)
	}
	return intrinsics, nil
}

// Project maps a 3D point of the camera frame to a pixel. Points on or behind the image plane
// (z <= 0) land at (-1, -1), outside any image.
func (params *PinholeCameraIntrinsics) Project(pt r3.Vector) r2.Point {
	if pt.Z <= 0 {
		return r2.Point{X: -1, Y: -1}
	}
	return r2.Point{
		X: (pt.X/pt.Z)*params.Fx + params.Ppx,
		Y: (pt.Y/pt.Z)*params.Fy + params.Ppy,
	}
}

// Unproject returns the 3D point of the camera frame seen at pixel px at the given depth.
func (params *PinholeCameraIntrinsics) Unproject(px r2.Point, depth float64) r3.Vector {
	return r3.Vector{
		X: (px.X - params.Ppx) / params.Fx * depth,
		Y: (px.Y - params.Ppy) / params.Fy * depth,
		Z: depth,
	}
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx 0 ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}

// inverseCameraMatrix returns K^-1, written out since K is upper triangular.
func (params *PinholeCameraIntrinsics) inverseCameraMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1 / params.Fx, 0, -params.Ppx / params.Fx,
		0, 1 / params.Fy, -params.Ppy / params.Fy,
		0, 0, 1,
	})
}

// GLProjectionMatrix returns the OpenGL projection matrix matching the camera, for an eye frame
// looking down -z with y up, as produced by spatialmath.Transformation.GLModelView. Pixel (0, 0)
// is the top left corner of the image.
func (params *PinholeCameraIntrinsics) GLProjectionMatrix(near, far float64) mgl64.Mat4 {
	w, h := float64(params.Width), float64(params.Height)
	var m mgl64.Mat4
	set := func(row, col int, v float64) { m[col*4+row] = v }
	set(0, 0, 2*params.Fx/w)
	set(0, 2, 1-2*params.Ppx/w)
	set(1, 1, 2*params.Fy/h)
	set(1, 2, 2*params.Ppy/h-1)
	set(2, 2, -(far+near)/(far-near))
	set(2, 3, -2*far*near/(far-near))
	set(3, 2, -1)
	return m
}
