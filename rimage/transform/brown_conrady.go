package transform

import (
	"math"

	"github.com/pkg/errors"
)

// BrownConrady is the Brown-Conrady lens model with the rational radial extension. Coefficients
// follow the k1, k2, p1, p2, k3, k4, k5, k6 ordering used by most calibration toolkits.
//
//	radial = (1 + k1*r² + k2*r⁴ + k3*r⁶) / (1 + k4*r² + k5*r⁴ + k6*r⁶)
//	x_d = x*radial + 2*p1*x*y + p2*(r² + 2*x²)
//	y_d = y*radial + p1*(r² + 2*y²) + 2*p2*x*y
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
	RadialK3     float64 `json:"rk3"`
	RationalK4   float64 `json:"rk4"`
	RationalK5   float64 `json:"rk5"`
	RationalK6   float64 `json:"rk6"`
}

// NewBrownConrady takes in a slice of floats that will be passed into the struct in order.
// Missing trailing coefficients are zero.
func NewBrownConrady(inp []float64) (*BrownConrady, error) {
	if len(inp) > NumDistortionCoefficients {
		return nil, errors.Errorf("list of parameters too long, expected max %d, got %d", NumDistortionCoefficients, len(inp))
	}
	var c [NumDistortionCoefficients]float64
	copy(c[:], inp)
	bc := &BrownConrady{c[0], c[1], c[2], c[3], c[4], c[5], c[6], c[7]}
	if err := bc.CheckValid(); err != nil {
		return nil, err
	}
	return bc, nil
}

// CheckValid checks if the fields for BrownConrady have valid inputs.
func (bc *BrownConrady) CheckValid() error {
	if bc == nil {
		return InvalidDistortionError("BrownConrady shaped distortion_parameters not provided")
	}
	for i, p := range bc.Parameters() {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return InvalidDistortionError("coefficient " + distortionNames[i] + " is not finite")
		}
	}
	return nil
}

// ModelType returns the type of distortion model.
func (bc *BrownConrady) ModelType() DistortionType {
	return BrownConradyDistortionType
}

// Parameters returns the distortion parameters as a list of floats.
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	return []float64{
		bc.RadialK1, bc.RadialK2, bc.TangentialP1, bc.TangentialP2,
		bc.RadialK3, bc.RationalK4, bc.RationalK5, bc.RationalK6,
	}
}

// Transform distorts the normalized image coordinates (x, y).
func (bc *BrownConrady) Transform(x, y float64) (float64, float64) {
	if bc == nil {
		return x, y
	}
	xd, yd, _ := bc.distortWithJacobian(x, y)
	return xd, yd
}

// distortWithJacobian returns the distorted point and the 2x2 Jacobian
// [[dxd/dx, dxd/dy], [dyd/dx, dyd/dy]] in row-major order.
func (bc *BrownConrady) distortWithJacobian(x, y float64) (float64, float64, [4]float64) {
	r2 := x*x + y*y
	r4 := r2 * r2
	r6 := r4 * r2
	num := 1 + bc.RadialK1*r2 + bc.RadialK2*r4 + bc.RadialK3*r6
	den := 1 + bc.RationalK4*r2 + bc.RationalK5*r4 + bc.RationalK6*r6
	radial := num / den
	dNum := bc.RadialK1 + 2*bc.RadialK2*r2 + 3*bc.RadialK3*r4
	dDen := bc.RationalK4 + 2*bc.RationalK5*r2 + 3*bc.RationalK6*r4
	// derivative of radial with respect to r²
	dRadial := (dNum*den - num*dDen) / (den * den)

	p1, p2 := bc.TangentialP1, bc.TangentialP2
	xd := x*radial + 2*p1*x*y + p2*(r2+2*x*x)
	yd := y*radial + p1*(r2+2*y*y) + 2*p2*x*y

	jac := [4]float64{
		radial + 2*x*x*dRadial + 2*p1*y + 6*p2*x,
		2*x*y*dRadial + 2*p1*x + 2*p2*y,
		2*x*y*dRadial + 2*p1*x + 2*p2*y,
		radial + 2*y*y*dRadial + 6*p1*y + 2*p2*x,
	}
	return xd, yd, jac
}

var distortionNames = [NumDistortionCoefficients]string{"k1", "k2", "p1", "p2", "k3", "k4", "k5", "k6"}
