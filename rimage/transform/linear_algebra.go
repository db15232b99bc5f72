package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// normalizePoints normalizes points as described in Multiple View Geometry, Alg 4.2: centroid at the
// origin and mean distance sqrt(2). Coincident points cannot be normalized.
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense, error) {
	nPoints := len(pts)
	mu := r2.Point{}
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1. / float64(nPoints))

	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm() / float64(nPoints)
	}
	if d == 0 || math.IsNaN(d) {
		return nil, nil, errors.Wrap(ErrDegenerateCorrespondences, "all points coincide")
	}
	scale := math.Sqrt(2) / d
	T := mat.NewDense(3, 3, []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	})
	pointsTransformed := make([]r2.Point, nPoints)
	for i, pt := range pts {
		pointsTransformed[i] = pt.Sub(mu).Mul(scale)
	}
	return pointsTransformed, T, nil
}

// normalizeVectors is the 3D counterpart of normalizePoints (mean distance sqrt(3)).
func normalizeVectors(pts []r3.Vector) ([]r3.Vector, *mat.Dense, error) {
	nPoints := len(pts)
	mu := r3.Vector{}
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1. / float64(nPoints))

	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm() / float64(nPoints)
	}
	if d == 0 || math.IsNaN(d) {
		return nil, nil, errors.Wrap(ErrDegenerateCorrespondences, "all points coincide")
	}
	scale := math.Sqrt(3) / d
	T := mat.NewDense(4, 4, []float64{
		scale, 0, 0, -scale * mu.X,
		0, scale, 0, -scale * mu.Y,
		0, 0, scale, -scale * mu.Z,
		0, 0, 0, 1,
	})
	pointsTransformed := make([]r3.Vector, nPoints)
	for i, pt := range pts {
		pointsTransformed[i] = pt.Sub(mu).Mul(scale)
	}
	return pointsTransformed, T, nil
}

const rankTolerance = 1e-10

// matsSVD stores the matrices from SVD decomposition.
type matsSVD struct {
	U      *mat.Dense
	V      *mat.Dense
	VT     *mat.Dense
	Values []float64
}

// performSVD performs a full SVD on inputMatrix. Singular values are in decreasing order.
func performSVD(inputMatrix mat.Matrix) (*matsSVD, error) {
	var svd mat.SVD
	if ok := svd.Factorize(inputMatrix, mat.SVDFull); !ok {
		return nil, errors.New("failed to factorize matrix")
	}
	u, v, vt := &mat.Dense{}, &mat.Dense{}, &mat.Dense{}
	svd.UTo(u)
	svd.VTo(v)
	vt.CloneFrom(v.T())
	return &matsSVD{U: u, V: v, VT: vt, Values: svd.Values(nil)}, nil
}

// nullVector returns the right singular vector of the smallest singular value, the least squares
// solution of A·x = 0 with |x| = 1. A must have at least the given rank for the solution to be unique.
func nullVector(a mat.Matrix, rank int) ([]float64, error) {
	mats, err := performSVD(a)
	if err != nil {
		return nil, err
	}
	if len(mats.Values) < rank || mats.Values[rank-1] <= rankTolerance*mats.Values[0] {
		return nil, errors.Wrap(ErrDegenerateCorrespondences, "linear system is rank deficient")
	}
	_, c := mats.V.Dims()
	return mat.Col(nil, c-1, mats.V), nil
}

// nearestRotation projects a 3x3 matrix onto SO(3) in the Frobenius sense (U·Vᵀ with the sign of
// the last singular direction chosen so the determinant is +1).
func nearestRotation(m mat.Matrix) (*mat.Dense, error) {
	mats, err := performSVD(m)
	if err != nil {
		return nil, err
	}
	var r mat.Dense
	r.Mul(mats.U, mats.VT)
	if mat.Det(&r) < 0 {
		flip := mat.NewDiagDense(3, []float64{1, 1, -1})
		var tmp mat.Dense
		tmp.Mul(mats.U, flip)
		r.Mul(&tmp, mats.VT)
	}
	return &r, nil
}
