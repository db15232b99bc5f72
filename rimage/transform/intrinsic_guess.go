package transform

import (
	"math"

	"go.viam.com/camcalib/utils"
)

// FieldOfView is a pair of horizontal and vertical viewing angles, in degrees.
type FieldOfView struct {
	Horizontal float64 `json:"horizontal_deg" yaml:"horizontal_deg"`
	Vertical   float64 `json:"vertical_deg" yaml:"vertical_deg"`
}

// DefaultFieldOfView is the nominal field of view of the capture device the calibration pipeline
// was tuned for. It only seeds the solver; the refined intrinsics replace it.
var DefaultFieldOfView = FieldOfView{
	Horizontal: 91.2705674249382,
	Vertical:   59.8076333281726,
}

// NewIntrinsicGuess builds the initial intrinsics for an image of the given size: focal lengths
// from the field of view and the principal point at the image center.
func NewIntrinsicGuess(width, height int, fov FieldOfView) *PinholeCameraIntrinsics {
	w, h := float64(width), float64(height)
	return &PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     w / (2 * math.Tan(utils.DegToRad(fov.Horizontal)/2)),
		Fy:     h / (2 * math.Tan(utils.DegToRad(fov.Vertical)/2)),
		Ppx:    w / 2,
		Ppy:    h / 2,
	}
}

// FieldOfView returns the viewing angles implied by the focal lengths and image size.
func (params *PinholeCameraIntrinsics) FieldOfView() FieldOfView {
	return FieldOfView{
		Horizontal: utils.RadToDeg(2 * math.Atan(float64(params.Width)/(2*params.Fx))),
		Vertical:   utils.RadToDeg(2 * math.Atan(float64(params.Height)/(2*params.Fy))),
	}
}
