package spatialmath

import (
	"math"
	"math/rand"
	"testing"

	"go.viam.com/test"
)

func TestEulerZXYRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	checked := 0
	for checked < 500 {
		rm := NewRotationMatrixFromRotationVector(randomRotationVector(rnd))
		cosBeta := math.Hypot(rm.At(2, 2), rm.At(0, 2))
		if cosBeta < 1e-3 {
			continue
		}
		checked++

		e, err := NewEulerZXYFromRotationMatrix(rm)
		test.That(t, err, test.ShouldBeNil)
		for _, a := range []float64{e.Z, e.X, e.Y} {
			test.That(t, a, test.ShouldBeGreaterThanOrEqualTo, 0)
			test.That(t, a, test.ShouldBeLessThan, 2*math.Pi)
		}
		test.That(t, RotationMatrixAlmostEqual(e.RotationMatrix(), rm, 1e-6), test.ShouldBeTrue)
	}
}

func TestEulerZXYKnownAngles(t *testing.T) {
	z, x, y := 0.3, -0.7, 2.1
	rm := NewRotationMatrixY(y).MatMul(NewRotationMatrixX(x)).MatMul(NewRotationMatrixZ(z))
	e, err := NewEulerZXYFromRotationMatrix(rm)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, e.Z, test.ShouldAlmostEqual, z)
	test.That(t, e.X, test.ShouldAlmostEqual, x+2*math.Pi)
	test.That(t, e.Y, test.ShouldAlmostEqual, y)

	deg := e.Degrees()
	test.That(t, deg.Y, test.ShouldAlmostEqual, y*180/math.Pi)
}

func TestEulerZXYGimbalBoundary(t *testing.T) {
	z, y := 0.4, 0.9
	for _, sign := range []float64{1, -1} {
		var previousBeta float64
		for i, delta := range []float64{1e-3, 1e-4, 6e-5, 4e-5, 1e-5, 0} {
			beta := sign * (math.Pi/2 - delta)
			rm := NewRotationMatrixY(y).MatMul(NewRotationMatrixX(beta)).MatMul(NewRotationMatrixZ(z))
			e, err := NewEulerZXYFromRotationMatrix(rm)
			test.That(t, err, test.ShouldBeNil)

			// X varies continuously across the threshold.
			wrappedBeta := math.Mod(beta+2*math.Pi, 2*math.Pi)
			test.That(t, e.X, test.ShouldAlmostEqual, wrappedBeta, 1e-9)
			if i > 0 {
				test.That(t, math.Abs(e.X-previousBeta), test.ShouldBeLessThan, 1e-3)
			}
			previousBeta = e.X

			cosBeta := math.Hypot(rm.At(2, 2), rm.At(0, 2))
			if cosBeta > eulerEpsilon {
				test.That(t, e.Y, test.ShouldAlmostEqual, y, 1e-6)
				test.That(t, RotationMatrixAlmostEqual(e.RotationMatrix(), rm, 1e-6), test.ShouldBeTrue)
			} else {
				// Locked: Y jumps to zero and Z absorbs the in-plane rotation.
				test.That(t, e.Y, test.ShouldEqual, 0)
				test.That(t, RotationMatrixAlmostEqual(e.RotationMatrix(), rm, 5e-4), test.ShouldBeTrue)
			}
		}
	}
}

func TestEngineDegrees(t *testing.T) {
	// The solver's identity rotation with the third axis negated.
	e, err := NewEulerZXYFromRotationMatrix(NewReflectionZ())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, e.Z, test.ShouldAlmostEqual, 0)
	test.That(t, e.X, test.ShouldAlmostEqual, 0)
	test.That(t, e.Y, test.ShouldAlmostEqual, math.Pi)

	engine := e.EngineDegrees()
	test.That(t, engine.X, test.ShouldAlmostEqual, 0)
	test.That(t, engine.Y, test.ShouldAlmostEqual, 180)
	test.That(t, engine.Z, test.ShouldAlmostEqual, 180)

	e = &EulerZXY{Z: math.Pi / 2, X: 0, Y: 0}
	test.That(t, e.EngineDegrees().Z, test.ShouldAlmostEqual, 90)
}

func TestEulerZXYRejectsNonOrthonormal(t *testing.T) {
	scaled, err := NewRotationMatrix([]float64{3, 0, 0, 0, 3, 0, 0, 0, 3})
	test.That(t, err, test.ShouldBeNil)
	_, err = NewEulerZXYFromRotationMatrix(scaled)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not orthonormal")
}
