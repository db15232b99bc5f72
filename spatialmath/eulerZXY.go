package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/camcalib/utils"
)

const (
	// eulerEpsilon is the gimbal lock threshold on cos(X).
	eulerEpsilon = 5e-5
	// orthonormalTolerance bounds the element wise deviation of RᵀR from the identity.
	orthonormalTolerance = 1e-6
)

// EulerZXY holds Tait-Bryan angles in radians for the axis order Z (outer), X (middle), Y (inner),
// each wrapped into [0, 2π). For a proper rotation R = Ry(Y)·Rx(X)·Rz(Z), which is the order a
// left-handed Y-up engine applies its Euler angles in: Z first, then X, then Y.
type EulerZXY struct {
	Z float64 `json:"z"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewEulerZXYFromRotationMatrix decomposes rm into Z, X and Y angles. rm must be orthonormal. When |cos(X)| falls to
// eulerEpsilon or below the Z and Y axes align; the whole in-plane rotation is then reported on Z
// and Y is set to 0.
func NewEulerZXYFromRotationMatrix(rm *RotationMatrix) (*EulerZXY, error) {
	if !rm.IsOrthonormal(orthonormalTolerance) {
		return nil, errors.Errorf("cannot decompose %v, it is not orthonormal", rm)
	}
	cosBeta := math.Sqrt(rm.At(2, 2)*rm.At(2, 2) + rm.At(0, 2)*rm.At(0, 2))

	var alpha, beta, gamma float64
	if cosBeta > eulerEpsilon {
		alpha = math.Atan2(rm.At(1, 0), rm.At(1, 1))
		beta = math.Atan2(-rm.At(1, 2), cosBeta)
		gamma = math.Atan2(rm.At(0, 2), rm.At(2, 2))
	} else {
		alpha = math.Atan2(-rm.At(0, 1), rm.At(0, 0))
		beta = math.Atan2(-rm.At(1, 2), cosBeta)
		gamma = 0
	}

	var err error
	out := &EulerZXY{}
	if out.Z, err = utils.WrapAngle(alpha, 0, 2*math.Pi); err != nil {
		return nil, errors.Wrap(err, "wrapping Z angle")
	}
	if out.X, err = utils.WrapAngle(beta, 0, 2*math.Pi); err != nil {
		return nil, errors.Wrap(err, "wrapping X angle")
	}
	if out.Y, err = utils.WrapAngle(gamma, 0, 2*math.Pi); err != nil {
		return nil, errors.Wrap(err, "wrapping Y angle")
	}
	return out, nil
}

// RotationMatrix composes Ry(Y)·Rx(X)·Rz(Z).
func (e *EulerZXY) RotationMatrix() *RotationMatrix {
	return NewRotationMatrixY(e.Y).MatMul(NewRotationMatrixX(e.X)).MatMul(NewRotationMatrixZ(e.Z))
}

// Degrees returns (X, Y, Z) in degrees.
func (e *EulerZXY) Degrees() r3.Vector {
	return r3.Vector{X: utils.RadToDeg(e.X), Y: utils.RadToDeg(e.Y), Z: utils.RadToDeg(e.Z)}
}

// EngineDegrees returns the (X, Y, Z) degrees a left-handed Y-up engine expects when the
// decomposed matrix is a solver rotation with its third axis negated. Z is reported as
// 180 - Z; this offset was derived against that one engine and does not carry over to other
// conventions.
func (e *EulerZXY) EngineDegrees() r3.Vector {
	deg := e.Degrees()
	return r3.Vector{X: deg.X, Y: deg.Y, Z: 180 - deg.Z}
}
