package virtual

import (
	"context"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/rimage/calibration"
	"go.viam.com/camcalib/rimage/transform"
	"go.viam.com/camcalib/spatialmath"
)

var _ calibration.Camera = (*Camera)(nil)

func TestNewCamera(t *testing.T) {
	cam := NewCamera(1280, 720)
	test.That(t, cam.PixelWidth(), test.ShouldEqual, 1280)
	test.That(t, cam.PixelHeight(), test.ShouldEqual, 720)
	test.That(t, cam.NearClipPlane(), test.ShouldEqual, DefaultNearClipPlane)
	test.That(t, cam.FarClipPlane(), test.ShouldEqual, DefaultFarClipPlane)
	test.That(t, cam.Position(), test.ShouldResemble, r3.Vector{})
	test.That(t, cam.EulerAngles(), test.ShouldResemble, r3.Vector{})
	test.That(t, cam.LocalToWorld().ApproxEqual(mgl64.Ident4()), test.ShouldBeTrue)

	test.That(t, cam.SetClipPlanes(0, 10), test.ShouldNotBeNil)
	test.That(t, cam.SetClipPlanes(5, 5), test.ShouldNotBeNil)
	test.That(t, cam.SetClipPlanes(0.1, 50), test.ShouldBeNil)
	test.That(t, cam.NearClipPlane(), test.ShouldEqual, 0.1)
	test.That(t, cam.FarClipPlane(), test.ShouldEqual, 50.)
}

func TestConfig(t *testing.T) {
	conf := &Config{Width: 640, Height: 480}
	test.That(t, conf.Validate("path"), test.ShouldBeNil)

	conf = &Config{Width: 0, Height: 480}
	err := conf.Validate("path")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "path: viewport")

	conf = &Config{Width: 640, Height: 480, Near: 2, Far: 1}
	test.That(t, conf.Validate("path"), test.ShouldNotBeNil)

	cam, err := NewCameraFromConfig(&Config{Width: 640, Height: 480, Near: 0.5})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam.NearClipPlane(), test.ShouldEqual, 0.5)
	test.That(t, cam.FarClipPlane(), test.ShouldEqual, DefaultFarClipPlane)

	_, err = NewCameraFromConfig(&Config{Width: 640, Height: 480, Near: 2000})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestWorldToScreenPoint(t *testing.T) {
	cam := NewCamera(1280, 720)

	center := cam.WorldToScreenPoint(r3.Vector{Z: 10})
	test.That(t, center.X, test.ShouldAlmostEqual, 640)
	test.That(t, center.Y, test.ShouldAlmostEqual, 360)
	test.That(t, center.Z, test.ShouldAlmostEqual, 10)

	// screen space is y-up, gui space is y-down
	up := cam.WorldToScreenPoint(r3.Vector{Y: 1, Z: 10})
	test.That(t, up.Y, test.ShouldBeGreaterThan, 360)
	gui := cam.WorldToGUIPoint(r3.Vector{Y: 1, Z: 10})
	test.That(t, gui.Y, test.ShouldBeLessThan, 360)
	test.That(t, gui.Y, test.ShouldAlmostEqual, 720-up.Y)

	right := cam.WorldToGUIPoint(r3.Vector{X: 1, Z: 10})
	test.That(t, right.X, test.ShouldBeGreaterThan, 640)
	test.That(t, right.Y, test.ShouldAlmostEqual, 360)

	behind := cam.WorldToScreenPoint(r3.Vector{Z: -10})
	test.That(t, behind.Z, test.ShouldAlmostEqual, -10)
}

func TestLocalToWorld(t *testing.T) {
	cam := NewCamera(1280, 720)
	cam.SetPosition(r3.Vector{X: 1, Y: 2, Z: 3})
	cam.SetEulerAngles(r3.Vector{Y: 90})

	forward := cam.LocalToWorld().Mul4x1(mgl64.Vec4{0, 0, 1, 0})
	test.That(t, forward.X(), test.ShouldAlmostEqual, 1)
	test.That(t, forward.Y(), test.ShouldAlmostEqual, 0)
	test.That(t, forward.Z(), test.ShouldAlmostEqual, 0)

	origin := cam.LocalToWorld().Mul4x1(mgl64.Vec4{0, 0, 0, 1})
	test.That(t, origin.Vec3(), test.ShouldResemble, mgl64.Vec3{1, 2, 3})

	// a point straight ahead of the rotated camera lands on the image center
	pt := cam.WorldToGUIPoint(r3.Vector{X: 11, Y: 2, Z: 3})
	test.That(t, pt.X, test.ShouldAlmostEqual, 640)
	test.That(t, pt.Y, test.ShouldAlmostEqual, 360)
}

// scenePoints is a non-planar set of world points around the origin.
func scenePoints() []r3.Vector {
	var pts []r3.Vector
	for _, x := range []float64{-1.5, 0, 1.5} {
		for _, y := range []float64{-1, 1} {
			for _, z := range []float64{-0.5, 0.5} {
				pts = append(pts, r3.Vector{X: x, Y: y + 0.1*x, Z: z + 0.2*y})
			}
		}
	}
	return pts
}

// captureImage renders world points with a y-down pinhole camera. The camera sees the scene
// through a z mirror, the same convention the calibrator undoes.
func captureImage(intr *transform.PinholeCameraIntrinsics, rvec, tvec r3.Vector, world []r3.Vector) []r2.Point {
	rot := spatialmath.NewRotationMatrixFromRotationVector(rvec)
	out := make([]r2.Point, len(world))
	for i, p := range world {
		c := rot.Mul(r3.Vector{X: p.X, Y: p.Y, Z: -p.Z}).Add(tvec)
		out[i] = r2.Point{X: intr.Fx*c.X/c.Z + intr.Ppx, Y: intr.Fy*c.Y/c.Z + intr.Ppy}
	}
	return out
}

func TestCalibratedCameraReproducesImage(t *testing.T) {
	logger := logging.NewTestLogger(t)
	guess := transform.NewIntrinsicGuess(1280, 720, transform.DefaultFieldOfView)

	for _, tc := range []struct {
		name       string
		rvec, tvec r3.Vector
	}{
		{"facing", r3.Vector{}, r3.Vector{Z: 8}},
		{"oblique", r3.Vector{X: 0.15, Y: -0.3, Z: 0.1}, r3.Vector{X: 0.4, Y: -0.2, Z: 7}},
		{"rolled", r3.Vector{Z: 0.6}, r3.Vector{X: -0.3, Y: 0.3, Z: 9}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			truth := *guess
			truth.Fx *= 1.03
			truth.Fy *= 1.03
			truth.Ppx += 6
			truth.Ppy -= 4
			world := scenePoints()
			image := captureImage(&truth, tc.rvec, tc.tvec, world)

			cam := NewCamera(1280, 720)
			calibrator := calibration.NewCalibrator(cam, transform.NewLevenbergMarquardtSolver(logger), logger)
			rms, err := calibrator.Calibrate(context.Background(), image, world)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, rms, test.ShouldBeLessThan, 1e-3)

			for i, p := range world {
				got := cam.WorldToGUIPoint(p)
				test.That(t, got.X, test.ShouldAlmostEqual, image[i].X, 1e-2)
				test.That(t, got.Y, test.ShouldAlmostEqual, image[i].Y, 1e-2)
				test.That(t, cam.WorldToScreenPoint(p).Z, test.ShouldBeGreaterThan, cam.NearClipPlane())
			}

			// the engine rotation is a proper rotation even though the solver pose is mirrored
			rot := cam.LocalToWorld().Mat3()
			test.That(t, rot.Det(), test.ShouldAlmostEqual, 1, 1e-9)
			test.That(t, math.IsNaN(cam.Position().Norm()), test.ShouldBeFalse)
		})
	}
}
