package transform

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestNewBrownConrady(t *testing.T) {
	bc, err := NewBrownConrady(nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bc.Parameters(), test.ShouldResemble, make([]float64, 8))

	bc, err = NewBrownConrady([]float64{0.1, -0.05, 0.001})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bc.RadialK1, test.ShouldEqual, 0.1)
	test.That(t, bc.RadialK2, test.ShouldEqual, -0.05)
	test.That(t, bc.TangentialP1, test.ShouldEqual, 0.001)
	test.That(t, bc.RadialK3, test.ShouldEqual, 0)
	test.That(t, bc.ModelType(), test.ShouldEqual, BrownConradyDistortionType)

	_, err = NewBrownConrady(make([]float64, 9))
	test.That(t, err, test.ShouldBeError, "list of parameters too long, expected max 8, got 9")

	var nilBC *BrownConrady
	test.That(t, nilBC.CheckValid(), test.ShouldNotBeNil)
	x, y := nilBC.Transform(0.3, 0.2)
	test.That(t, x, test.ShouldEqual, 0.3)
	test.That(t, y, test.ShouldEqual, 0.2)
}

func TestNewDistorter(t *testing.T) {
	d, err := NewDistorter(BrownConradyDistortionType, []float64{0.1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.ModelType(), test.ShouldEqual, BrownConradyDistortionType)

	d, err = NewDistorter(InverseBrownConradyDistortionType, []float64{0.1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.ModelType(), test.ShouldEqual, InverseBrownConradyDistortionType)
	test.That(t, d.Parameters()[0], test.ShouldEqual, 0.1)

	_, err = NewDistorter("kannala_brandt", nil)
	test.That(t, err, test.ShouldBeError, `do not know how to parse "kannala_brandt" distortion model`)
}

func TestZeroDistortionIsIdentity(t *testing.T) {
	bc, err := NewBrownConrady(make([]float64, 8))
	test.That(t, err, test.ShouldBeNil)
	for _, pt := range []r2.Point{{X: 0, Y: 0}, {X: 0.4, Y: -0.3}, {X: -1.2, Y: 0.9}} {
		x, y := bc.Transform(pt.X, pt.Y)
		test.That(t, x, test.ShouldEqual, pt.X)
		test.That(t, y, test.ShouldEqual, pt.Y)
	}
}

func TestInverseBrownConrady(t *testing.T) {
	for _, tc := range []struct {
		name   string
		coeffs []float64
	}{
		{"radial", []float64{0.12, -0.05, 0, 0, 0.01}},
		{"tangential", []float64{-0.1, 0.02, 0.002, -0.0015, 0}},
		{"rational", []float64{0.3, 0.05, 0.001, 0.001, 0.002, 0.25, 0.04, 0.003}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			forward, err := NewBrownConrady(tc.coeffs)
			test.That(t, err, test.ShouldBeNil)
			inverse, err := NewInverseBrownConrady(tc.coeffs)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, inverse.CheckValid(), test.ShouldBeNil)
			for _, pt := range []r2.Point{{X: 0, Y: 0}, {X: 0.1, Y: 0.05}, {X: -0.3, Y: 0.25}, {X: 0.45, Y: -0.4}} {
				xd, yd := forward.Transform(pt.X, pt.Y)
				xu, yu := inverse.Transform(xd, yd)
				test.That(t, xu, test.ShouldAlmostEqual, pt.X, 1e-9)
				test.That(t, yu, test.ShouldAlmostEqual, pt.Y, 1e-9)
			}
		})
	}
}

func TestPinholeCameraModel(t *testing.T) {
	intrinsics := &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240}
	model, err := NewPinholeCameraModel(intrinsics, []float64{0.1, -0.02, 0.001, 0.0005})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.CheckValid(), test.ShouldBeNil)

	pt := r3.Vector{X: 0.4, Y: -0.3, Z: 2}
	px := model.ProjectPoint(pt)
	n := model.PixelToNormalized(px)
	test.That(t, n.X, test.ShouldAlmostEqual, 0.2, 1e-9)
	test.That(t, n.Y, test.ShouldAlmostEqual, -0.15, 1e-9)

	// distortion moves the pixel off the ideal projection
	x, y := intrinsics.PointToPixel(pt.X, pt.Y, pt.Z)
	test.That(t, math.Hypot(px.X-x, px.Y-y), test.ShouldBeGreaterThan, 1)

	test.That(t, model.ProjectPoint(r3.Vector{X: 1, Y: 1}), test.ShouldResemble, r2.Point{X: -1, Y: -1})

	_, err = NewPinholeCameraModel(&PinholeCameraIntrinsics{}, nil)
	test.That(t, err, test.ShouldNotBeNil)
}
