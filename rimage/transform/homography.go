package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 matrix used to transform a plane from the perspective of a 2D
// camera to the perspective of another 2D camera, or a planar target onto an image.
type Homography struct {
	matrix *mat.Dense
}

// NewHomography creates a homography from a slice of floats in row-major order.
func NewHomography(vals []float64) (*Homography, error) {
	if len(vals) != 9 {
		return nil, errors.Errorf("input to NewHomography must have length of 9. Has length of %d", len(vals))
	}
	data := make([]float64, 9)
	copy(data, vals)
	return &Homography{mat.NewDense(3, 3, data)}, nil
}

// At returns the value of the homography at the given row and column.
func (h *Homography) At(row, col int) float64 {
	return h.matrix.At(row, col)
}

// Col returns a column of the homography as a plain slice.
func (h *Homography) Col(col int) []float64 {
	return mat.Col(nil, col, h.matrix)
}

// Apply will transform the given point according to the homography.
func (h *Homography) Apply(pt r2.Point) r2.Point {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	z := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	return r2.Point{X: x / z, Y: y / z}
}

// Inverse inverts the homography. If homography went from color -> depth, Inverse makes it point
// from depth -> color.
func (h *Homography) Inverse() (*Homography, error) {
	var inv mat.Dense
	if err := inv.Inverse(h.matrix); err != nil {
		return nil, errors.Wrap(err, "homography is not invertible")
	}
	return &Homography{&inv}, nil
}

// ComputeHomography estimates the homography mapping src onto dst with the normalized direct
// linear transform. At least 4 correspondences are required, no 3 of them collinear.
func ComputeHomography(src, dst []r2.Point) (*Homography, error) {
	if len(src) != len(dst) {
		return nil, errors.Errorf("sets of points must have the same number of elements, got %d and %d", len(src), len(dst))
	}
	if len(src) < 4 {
		return nil, errors.Wrapf(ErrTooFewPoints, "homography needs at least 4 points, got %d", len(src))
	}
	srcN, T1, err := normalizePoints(src)
	if err != nil {
		return nil, err
	}
	dstN, T2, err := normalizePoints(dst)
	if err != nil {
		return nil, err
	}

	a := mat.NewDense(2*len(src), 9, nil)
	for i := range srcN {
		x, y := srcN[i].X, srcN[i].Y
		u, v := dstN[i].X, dstN[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}
	h, err := nullVector(a, 8)
	if err != nil {
		return nil, err
	}
	hn := mat.NewDense(3, 3, h)

	// denormalize: T2⁻¹ · Hn · T1
	var t2Inv, out mat.Dense
	if err := t2Inv.Inverse(T2); err != nil {
		return nil, err
	}
	out.Mul(&t2Inv, hn)
	out.Mul(&out, T1)

	if s := out.At(2, 2); math.Abs(s) > 1e-12 {
		out.Scale(1/s, &out)
	}
	if mat.Det(&out) == 0 || math.IsNaN(out.At(0, 0)) {
		return nil, errors.Wrap(ErrDegenerateCorrespondences, "homography is singular")
	}
	return &Homography{&out}, nil
}
