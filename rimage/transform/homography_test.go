package transform

import (
	"errors"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestNewHomography(t *testing.T) {
	_, err := NewHomography([]float64{})
	test.That(t, err, test.ShouldBeError, "input to NewHomography must have length of 9. Has length of 0")

	vals := []float64{
		2.32700501e-01, -8.33535395e-03, -3.61894025e+01,
		-1.90671303e-03, 2.35303232e-01, 8.38582614e+00,
		-6.39101664e-05, -4.64582754e-05, 1.00000000e+00,
	}
	h, err := NewHomography(vals)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, h.At(0, 2), test.ShouldEqual, vals[2])

	inv, err := h.Inverse()
	test.That(t, err, test.ShouldBeNil)
	pt := r2.Point{X: 350, Y: 120}
	back := inv.Apply(h.Apply(pt))
	test.That(t, back.X, test.ShouldAlmostEqual, pt.X, 1e-6)
	test.That(t, back.Y, test.ShouldAlmostEqual, pt.Y, 1e-6)
}

func TestComputeHomography(t *testing.T) {
	truth, err := NewHomography([]float64{
		1.2, 0.1, 30,
		-0.05, 0.9, 12,
		0.0004, -0.0002, 1,
	})
	test.That(t, err, test.ShouldBeNil)

	src := []r2.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 80}, {X: 0, Y: 80}, {X: 50, Y: 40}, {X: 20, Y: 70}}
	dst := make([]r2.Point, len(src))
	for i, pt := range src {
		dst[i] = truth.Apply(pt)
	}

	t.Run("minimal", func(t *testing.T) {
		h, err := ComputeHomography(src[:4], dst[:4])
		test.That(t, err, test.ShouldBeNil)
		for i, pt := range src {
			got := h.Apply(pt)
			test.That(t, got.X, test.ShouldAlmostEqual, dst[i].X, 1e-6)
			test.That(t, got.Y, test.ShouldAlmostEqual, dst[i].Y, 1e-6)
		}
	})

	t.Run("overdetermined", func(t *testing.T) {
		h, err := ComputeHomography(src, dst)
		test.That(t, err, test.ShouldBeNil)
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				test.That(t, h.At(r, c), test.ShouldAlmostEqual, truth.At(r, c), 1e-6)
			}
		}
	})

	t.Run("too few points", func(t *testing.T) {
		_, err := ComputeHomography(src[:3], dst[:3])
		test.That(t, errors.Is(err, ErrTooFewPoints), test.ShouldBeTrue)
	})

	t.Run("collinear", func(t *testing.T) {
		line := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}}
		_, err := ComputeHomography(line, line)
		test.That(t, errors.Is(err, ErrDegenerateCorrespondences), test.ShouldBeTrue)
	})

	t.Run("coincident", func(t *testing.T) {
		same := []r2.Point{{X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}}
		_, err := ComputeHomography(same, dst[:4])
		test.That(t, errors.Is(err, ErrDegenerateCorrespondences), test.ShouldBeTrue)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := ComputeHomography(src, dst[:4])
		test.That(t, err, test.ShouldNotBeNil)
	})
}
