package transform

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestNewIntrinsicGuess(t *testing.T) {
	guess := NewIntrinsicGuess(1920, 1080, DefaultFieldOfView)
	test.That(t, guess.Width, test.ShouldEqual, 1920)
	test.That(t, guess.Height, test.ShouldEqual, 1080)
	test.That(t, guess.Ppx, test.ShouldEqual, 960)
	test.That(t, guess.Ppy, test.ShouldEqual, 540)
	test.That(t, guess.Fx, test.ShouldAlmostEqual, 1920/(2*math.Tan(91.2705674249382*math.Pi/360)), 1e-9)
	test.That(t, guess.Fy, test.ShouldAlmostEqual, 1080/(2*math.Tan(59.8076333281726*math.Pi/360)), 1e-9)
	test.That(t, guess.CheckValid(), test.ShouldBeNil)

	t.Run("deterministic", func(t *testing.T) {
		again := NewIntrinsicGuess(1920, 1080, DefaultFieldOfView)
		test.That(t, again, test.ShouldResemble, guess)
	})

	t.Run("field of view round trip", func(t *testing.T) {
		fov := guess.FieldOfView()
		test.That(t, fov.Horizontal, test.ShouldAlmostEqual, DefaultFieldOfView.Horizontal, 1e-9)
		test.That(t, fov.Vertical, test.ShouldAlmostEqual, DefaultFieldOfView.Vertical, 1e-9)
	})

	t.Run("ninety degrees", func(t *testing.T) {
		square := NewIntrinsicGuess(640, 480, FieldOfView{Horizontal: 90, Vertical: 90})
		test.That(t, square.Fx, test.ShouldAlmostEqual, 320, 1e-9)
		test.That(t, square.Fy, test.ShouldAlmostEqual, 240, 1e-9)
	})
}

func TestCheckValid(t *testing.T) {
	var nilIntrinsics *PinholeCameraIntrinsics
	err := nilIntrinsics.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "Intrinsics do not exist")

	bad := &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 0, Fy: 500, Ppx: 320, Ppy: 240}
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)

	bad = &PinholeCameraIntrinsics{Width: 0, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240}
	test.That(t, bad.CheckValid().Error(), test.ShouldContainSubstring, "Invalid size")

	good := &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240}
	test.That(t, good.CheckValid(), test.ShouldBeNil)
	k := good.GetCameraMatrix()
	test.That(t, k.At(0, 0), test.ShouldEqual, 500)
	test.That(t, k.At(0, 2), test.ShouldEqual, 320)
	test.That(t, k.At(2, 2), test.ShouldEqual, 1)
	test.That(t, k.At(1, 0), test.ShouldEqual, 0)
}
