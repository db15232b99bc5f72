package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// RotationMatrix is a 3x3 matrix in row major order.
// m_{ij} = mat[3*i+j].
// Most callers hold proper rotations; a rotation composed with an axis reflection (det -1) is
// also representable and is what the engine handedness correction produces.
type RotationMatrix struct {
	mat [9]float64
}

// NewRotationMatrix creates a rotation matrix from a row major slice of 9 floats.
func NewRotationMatrix(m []float64) (*RotationMatrix, error) {
	if len(m) != 9 {
		return nil, errors.Errorf("input slice has %d elements, need exactly 9", len(m))
	}
	var rm RotationMatrix
	copy(rm.mat[:], m)
	return &rm, nil
}

// NewRotationMatrixFromDense copies a 3x3 gonum matrix into a RotationMatrix.
func NewRotationMatrixFromDense(m mat.Matrix) (*RotationMatrix, error) {
	if r, c := m.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("expected a 3x3 matrix, got %dx%d", r, c)
	}
	var rm RotationMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rm.mat[3*i+j] = m.At(i, j)
		}
	}
	return &rm, nil
}

// NewIdentityRotationMatrix returns the identity rotation.
func NewIdentityRotationMatrix() *RotationMatrix {
	return &RotationMatrix{[9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// NewReflectionZ returns diag(1, 1, -1), which negates the third axis.
func NewReflectionZ() *RotationMatrix {
	return &RotationMatrix{[9]float64{1, 0, 0, 0, 1, 0, 0, 0, -1}}
}

// NewRotationMatrixX returns the right-handed rotation by theta radians about the X axis.
func NewRotationMatrixX(theta float64) *RotationMatrix {
	s, c := math.Sincos(theta)
	return &RotationMatrix{[9]float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	}}
}

// NewRotationMatrixY returns the right-handed rotation by theta radians about the Y axis.
func NewRotationMatrixY(theta float64) *RotationMatrix {
	s, c := math.Sincos(theta)
	return &RotationMatrix{[9]float64{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	}}
}

// NewRotationMatrixZ returns the right-handed rotation by theta radians about the Z axis.
func NewRotationMatrixZ(theta float64) *RotationMatrix {
	s, c := math.Sincos(theta)
	return &RotationMatrix{[9]float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	}}
}

// At returns the element at the given row and column.
func (rm *RotationMatrix) At(row, col int) float64 {
	return rm.mat[3*row+col]
}

// Row returns the given row as a vector.
func (rm *RotationMatrix) Row(row int) r3.Vector {
	return r3.Vector{X: rm.mat[3*row], Y: rm.mat[3*row+1], Z: rm.mat[3*row+2]}
}

// Col returns the given column as a vector.
func (rm *RotationMatrix) Col(col int) r3.Vector {
	return r3.Vector{X: rm.mat[col], Y: rm.mat[3+col], Z: rm.mat[6+col]}
}

// Data returns a row major copy of the elements.
func (rm *RotationMatrix) Data() []float64 {
	out := make([]float64, 9)
	copy(out, rm.mat[:])
	return out
}

// Mul applies the matrix to a column vector.
func (rm *RotationMatrix) Mul(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: rm.Row(0).Dot(v),
		Y: rm.Row(1).Dot(v),
		Z: rm.Row(2).Dot(v),
	}
}

// MatMul returns rm·other.
func (rm *RotationMatrix) MatMul(other *RotationMatrix) *RotationMatrix {
	var out RotationMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.mat[3*i+j] = rm.Row(i).Dot(other.Col(j))
		}
	}
	return &out
}

// Transpose returns the transpose, which is the inverse for an orthonormal matrix.
func (rm *RotationMatrix) Transpose() *RotationMatrix {
	var out RotationMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.mat[3*j+i] = rm.mat[3*i+j]
		}
	}
	return &out
}

// Det returns the determinant.
func (rm *RotationMatrix) Det() float64 {
	return rm.Row(0).Dot(rm.Row(1).Cross(rm.Row(2)))
}

// IsOrthonormal reports whether RᵀR is the identity within tol.
func (rm *RotationMatrix) IsOrthonormal(tol float64) bool {
	rtr := rm.Transpose().MatMul(rm)
	return RotationMatrixAlmostEqual(rtr, NewIdentityRotationMatrix(), tol)
}

// RotationVector returns the axis-angle vector (axis scaled by angle in radians), the inverse of
// NewRotationMatrixFromRotationVector. Only meaningful for proper rotations.
func (rm *RotationMatrix) RotationVector() r3.Vector {
	cosTheta := (rm.At(0, 0) + rm.At(1, 1) + rm.At(2, 2) - 1) / 2
	cosTheta = math.Max(-1, math.Min(1, cosTheta))
	theta := math.Acos(cosTheta)

	if theta < 1e-12 {
		return r3.Vector{}
	}
	if math.Pi-theta > 1e-6 {
		axis := r3.Vector{
			X: rm.At(2, 1) - rm.At(1, 2),
			Y: rm.At(0, 2) - rm.At(2, 0),
			Z: rm.At(1, 0) - rm.At(0, 1),
		}
		return axis.Mul(theta / (2 * math.Sin(theta)))
	}

	// Near a half turn the skew part vanishes; recover the axis from the symmetric part using the
	// largest diagonal element for stability.
	i := 0
	for k := 1; k < 3; k++ {
		if rm.At(k, k) > rm.At(i, i) {
			i = k
		}
	}
	var axis [3]float64
	axis[i] = math.Sqrt(math.Max(0, (rm.At(i, i)+1)/2))
	for k := 0; k < 3; k++ {
		if k != i {
			axis[k] = (rm.At(i, k) + rm.At(k, i)) / (4 * axis[i])
		}
	}
	v := r3.Vector{X: axis[0], Y: axis[1], Z: axis[2]}.Normalize()
	// Pick the sign consistent with the remaining skew part, if any.
	skew := r3.Vector{
		X: rm.At(2, 1) - rm.At(1, 2),
		Y: rm.At(0, 2) - rm.At(2, 0),
		Z: rm.At(1, 0) - rm.At(0, 1),
	}
	if skew.Dot(v) < 0 {
		v = v.Mul(-1)
	}
	return v.Mul(theta)
}

// NewRotationMatrixFromRotationVector converts an axis-angle vector to a rotation matrix with the
// exponential map (Rodrigues' formula).
func NewRotationMatrixFromRotationVector(v r3.Vector) *RotationMatrix {
	theta := v.Norm()
	if theta < 1e-12 {
		// first order expansion, I + [v]x
		return &RotationMatrix{[9]float64{
			1, -v.Z, v.Y,
			v.Z, 1, -v.X,
			-v.Y, v.X, 1,
		}}
	}
	k := v.Mul(1 / theta)
	s, c := math.Sincos(theta)
	t := 1 - c
	return &RotationMatrix{[9]float64{
		c + t*k.X*k.X, t*k.X*k.Y - s*k.Z, t*k.X*k.Z + s*k.Y,
		t*k.Y*k.X + s*k.Z, c + t*k.Y*k.Y, t*k.Y*k.Z - s*k.X,
		t*k.Z*k.X - s*k.Y, t*k.Z*k.Y + s*k.X, c + t*k.Z*k.Z,
	}}
}

// RotationMatrixAlmostEqual compares two matrices element wise.
func RotationMatrixAlmostEqual(a, b *RotationMatrix, tol float64) bool {
	for i := range a.mat {
		if math.Abs(a.mat[i]-b.mat[i]) > tol {
			return false
		}
	}
	return true
}

func (rm *RotationMatrix) String() string {
	return fmt.Sprintf("[[%.6f %.6f %.6f] [%.6f %.6f %.6f] [%.6f %.6f %.6f]]",
		rm.mat[0], rm.mat[1], rm.mat[2], rm.mat[3], rm.mat[4], rm.mat[5], rm.mat[6], rm.mat[7], rm.mat[8])
}
