package utils

import (
	"math"

	"github.com/pkg/errors"
)

// ErrInvalidWrapWindow is returned by WrapAngle when the requested window is not a full circle.
var ErrInvalidWrapWindow = errors.New("wrap window must span exactly 2π")

// wrapWindowTolerance is the largest accepted gap between the requested window and a full turn.
const wrapWindowTolerance = 1e-7

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// WrapAngle brings angle (radians) into [lower, upper) by adding or subtracting whole turns.
// The window must be a full turn within 1e-7. A result that lands on upper, through rounding
// or a window a hair short of a full turn, is reported as lower.
func WrapAngle(angle, lower, upper float64) (float64, error) {
	const window = 2 * math.Pi
	if math.Abs(window-(upper-lower)) > wrapWindowTolerance {
		return 0, errors.Wrapf(ErrInvalidWrapWindow, "got [%v, %v)", lower, upper)
	}
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return 0, errors.Errorf("cannot wrap non-finite angle %v", angle)
	}
	turns := math.Mod(angle-lower, window)
	if turns < 0 {
		turns += window
	}
	wrapped := lower + turns
	if wrapped >= upper {
		wrapped = lower
	}
	return wrapped, nil
}
