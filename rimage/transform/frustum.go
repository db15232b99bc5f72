package transform

import (
	"github.com/go-gl/mathgl/mgl64"
)

// HandednessFlip negates the Y row of a projection, converting between a y-down image convention
// and a y-up, left-handed engine.
var HandednessFlip = mgl64.Diag4(mgl64.Vec4{1, -1, 1, 1})

// Frustum is an off-axis viewing volume. Left, Right, Bottom and Top are measured on the near plane.
// Bottom and Top come straight from image rows, so Bottom > Top for a y-down image.
type Frustum struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Top    float64 `json:"top"`
	Near   float64 `json:"near"`
	Far    float64 `json:"far"`
}

// NewFrustum places the frustum edges on the near plane by back-projecting the image borders
// through the intrinsics.
func NewFrustum(intrinsics *PinholeCameraIntrinsics, width, height int, near, far float64) Frustum {
	w, h := float64(width), float64(height)
	return Frustum{
		Left:   near * -intrinsics.Ppx / intrinsics.Fx,
		Right:  near * (w - intrinsics.Ppx) / intrinsics.Fx,
		Bottom: near * intrinsics.Ppy / intrinsics.Fy,
		Top:    near * (intrinsics.Ppy - h) / intrinsics.Fy,
		Near:   near,
		Far:    far,
	}
}

// Perspective fills the perspective terms row-major: [0][0], [1][1], the third row and [3][2].
// It is the transpose of the classic glFrustum matrix.
func (f Frustum) Perspective() mgl64.Mat4 {
	var m mgl64.Mat4
	m.Set(0, 0, 2*f.Near/(f.Right-f.Left))
	m.Set(1, 1, 2*f.Near/(f.Top-f.Bottom))
	m.Set(2, 0, (f.Right+f.Left)/(f.Right-f.Left))
	m.Set(2, 1, (f.Top+f.Bottom)/(f.Top-f.Bottom))
	m.Set(2, 2, -(f.Far+f.Near)/(f.Far-f.Near))
	m.Set(2, 3, -1)
	m.Set(3, 2, -(2*f.Far*f.Near)/(f.Far-f.Near))
	return m
}

// ProjectionMatrix is the engine projection: HandednessFlip × Perspective()ᵀ.
func (f Frustum) ProjectionMatrix() mgl64.Mat4 {
	return HandednessFlip.Mul4(f.Perspective().Transpose())
}

// ProjectionMatrixFromIntrinsics chains NewFrustum and ProjectionMatrix.
func ProjectionMatrixFromIntrinsics(intrinsics *PinholeCameraIntrinsics, width, height int, near, far float64) mgl64.Mat4 {
	return NewFrustum(intrinsics, width, height, near, far).ProjectionMatrix()
}
