package transform

import (
	"context"
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/spatialmath"
)

var (
	// ErrTooFewPoints is returned when a view has fewer than the 4 correspondences a pose needs.
	ErrTooFewPoints = errors.New("too few correspondences")
	// ErrDegenerateCorrespondences is returned when no pose can be initialized from the points,
	// e.g. collinear targets or non-planar targets with fewer than 6 points.
	ErrDegenerateCorrespondences = errors.New("degenerate correspondences")
	// ErrNotConverged is returned when the refinement runs out of iterations.
	ErrNotConverged = errors.New("calibration did not converge")
)

const (
	// DefaultMaxIterations bounds the Levenberg-Marquardt loop.
	DefaultMaxIterations = 100
	// DefaultTolerance is the gradient and relative step tolerance of the Levenberg-Marquardt loop.
	DefaultTolerance = 1e-10

	// MinPointsPerView is the fewest correspondences a view's pose can be estimated from.
	MinPointsPerView = 4

	initialDamping = 1e-3
)

// CalibrationView is one image of the calibration target: observed pixels and the matching
// target points, in the same order.
type CalibrationView struct {
	ImagePoints  []r2.Point  `json:"image_points"`
	ObjectPoints []r3.Vector `json:"object_points"`
}

// CameraCalibration is the output of a Solver.
type CameraCalibration struct {
	Intrinsics         *PinholeCameraIntrinsics `json:"intrinsics"`
	Distortion         []float64                `json:"distortion"`
	RotationVectors    []r3.Vector              `json:"rotation_vectors"`
	TranslationVectors []r3.Vector              `json:"translation_vectors"`
	RMSError           float64                  `json:"rms_error"`
	Iterations         int                      `json:"iterations"`
}

// Model returns the camera model described by the calibration.
func (c *CameraCalibration) Model() (*PinholeCameraModel, error) {
	return NewPinholeCameraModel(c.Intrinsics, c.Distortion)
}

// Reproject projects target points through the calibrated camera as seen in the given view.
func (c *CameraCalibration) Reproject(view int, objectPoints []r3.Vector) ([]r2.Point, error) {
	if view < 0 || view >= len(c.RotationVectors) || view >= len(c.TranslationVectors) {
		return nil, errors.Errorf("view %d out of range, calibration has %d views", view, len(c.RotationVectors))
	}
	model, err := c.Model()
	if err != nil {
		return nil, err
	}
	pose := NewCamPoseFromVectors(c.RotationVectors[view], c.TranslationVectors[view])
	out := make([]r2.Point, len(objectPoints))
	for i, pt := range objectPoints {
		out[i] = model.ProjectPoint(pose.Transform(pt))
	}
	return out, nil
}

// Solver estimates camera intrinsics, distortion and one pose per view from correspondences.
// distortion holds k1, k2, p1, p2, k3, k4, k5, k6 (shorter slices are zero padded) and flags
// select which parameters are held fixed.
type Solver interface {
	CalibrateCamera(
		ctx context.Context,
		views []CalibrationView,
		size image.Point,
		guess *PinholeCameraIntrinsics,
		distortion []float64,
		flags CalibrationFlags,
	) (*CameraCalibration, error)
}

// LevenbergMarquardtSolver minimizes the reprojection error over all free parameters with a
// damped Gauss-Newton (Levenberg-Marquardt) loop and a central finite difference Jacobian.
type LevenbergMarquardtSolver struct {
	MaxIterations int
	Tolerance     float64
	logger        logging.Logger
}

// NewLevenbergMarquardtSolver returns a solver with the default stopping criteria.
func NewLevenbergMarquardtSolver(logger logging.Logger) *LevenbergMarquardtSolver {
	return &LevenbergMarquardtSolver{
		MaxIterations: DefaultMaxIterations,
		Tolerance:     DefaultTolerance,
		logger:        logger,
	}
}

var _ Solver = (*LevenbergMarquardtSolver)(nil)

// CalibrateCamera implements Solver.
func (s *LevenbergMarquardtSolver) CalibrateCamera(
	ctx context.Context,
	views []CalibrationView,
	size image.Point,
	guess *PinholeCameraIntrinsics,
	distortion []float64,
	flags CalibrationFlags,
) (*CameraCalibration, error) {
	if len(views) == 0 {
		return nil, errors.New("at least one view is required")
	}
	nPoints := 0
	for i, v := range views {
		if len(v.ImagePoints) != len(v.ObjectPoints) {
			return nil, errors.Errorf("view %d: %d image points but %d object points", i, len(v.ImagePoints), len(v.ObjectPoints))
		}
		if len(v.ImagePoints) < MinPointsPerView {
			return nil, errors.Wrapf(ErrTooFewPoints, "view %d has %d points, need at least %d", i, len(v.ImagePoints), MinPointsPerView)
		}
		nPoints += len(v.ImagePoints)
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, errors.Errorf("invalid image size %v", size)
	}
	if len(distortion) > NumDistortionCoefficients {
		return nil, errors.Errorf("expected at most %d distortion coefficients, got %d", NumDistortionCoefficients, len(distortion))
	}

	var initial PinholeCameraIntrinsics
	if flags.Has(UseIntrinsicGuess) {
		if err := guess.CheckValid(); err != nil {
			return nil, errors.Wrap(err, "intrinsic guess requested but not usable")
		}
		initial = *guess
	} else {
		initial = *NewIntrinsicGuess(size.X, size.Y, DefaultFieldOfView)
	}
	initial.Width, initial.Height = size.X, size.Y

	layout := newParameterLayout(initial, distortion, flags, len(views))
	model, err := NewPinholeCameraModel(&initial, layout.distortion[:])
	if err != nil {
		return nil, err
	}
	poses := make([]*CamPose, len(views))
	for i, v := range views {
		pose, err := EstimateInitialPose(model, v.ImagePoints, v.ObjectPoints)
		if err != nil {
			return nil, errors.Wrapf(err, "view %d", i)
		}
		poses[i] = pose
	}

	x := layout.pack(initial, layout.distortion, poses)
	residuals := func(y, x []float64) {
		layout.residuals(y, x, views)
	}
	x, iterations, err := s.minimize(ctx, residuals, x, 2*nPoints)
	if err != nil {
		return nil, err
	}

	r := make([]float64, 2*nPoints)
	residuals(r, x)
	intrinsics, dist, rvecs, tvecs := layout.unpack(x)
	rms := math.Sqrt(floats.Dot(r, r) / float64(nPoints))
	if math.IsNaN(rms) || math.IsInf(rms, 0) {
		return nil, errors.Wrap(ErrNotConverged, "reprojection error is not finite")
	}
	for i, rv := range rvecs {
		rvecs[i] = spatialmath.NewRotationMatrixFromRotationVector(rv).RotationVector()
	}
	if s.logger != nil {
		s.logger.Debugw("calibration solved", "iterations", iterations, "rms", rms, "flags", flags.String())
	}
	return &CameraCalibration{
		Intrinsics:         intrinsics,
		Distortion:         dist[:],
		RotationVectors:    rvecs,
		TranslationVectors: tvecs,
		RMSError:           rms,
		Iterations:         iterations,
	}, nil
}

// minimize runs Levenberg-Marquardt with Nielsen's damping update on the sum of squared residuals.
func (s *LevenbergMarquardtSolver) minimize(
	ctx context.Context,
	f func(y, x []float64),
	x []float64,
	m int,
) ([]float64, int, error) {
	maxIterations := s.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	tol := s.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	n := len(x)

	r := make([]float64, m)
	f(r, x)
	cost := 0.5 * floats.Dot(r, r)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return nil, 0, errors.Wrap(ErrDegenerateCorrespondences, "initial reprojection is not finite")
	}

	jac := mat.NewDense(m, n, nil)
	var normal mat.Dense
	grad := mat.NewVecDense(n, nil)
	linearize := func() {
		fd.Jacobian(jac, f, x, &fd.JacobianSettings{Formula: fd.Central})
		normal.Mul(jac.T(), jac)
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))
	}
	linearize()

	maxDiag := 0.0
	for i := 0; i < n; i++ {
		maxDiag = math.Max(maxDiag, normal.At(i, i))
	}
	mu := initialDamping * maxDiag
	if mu == 0 {
		mu = initialDamping
	}
	nu := 2.0

	damped := mat.NewSymDense(n, nil)
	negGrad := mat.NewVecDense(n, nil)
	var step mat.VecDense
	var chol mat.Cholesky
	xNew := make([]float64, n)
	rNew := make([]float64, m)

	for iter := 1; iter <= maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, iter, err
		}
		if floats.Norm(grad.RawVector().Data, math.Inf(1)) <= tol || cost <= 0.5*float64(m)*tol*tol {
			return x, iter, nil
		}

		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				v := 0.5 * (normal.At(i, j) + normal.At(j, i))
				if i == j {
					v += mu
				}
				damped.SetSym(i, j, v)
			}
		}
		negGrad.ScaleVec(-1, grad)
		if ok := chol.Factorize(damped); !ok {
			mu *= nu
			nu *= 2
			continue
		}
		if err := chol.SolveVecTo(&step, negGrad); err != nil {
			mu *= nu
			nu *= 2
			continue
		}
		delta := step.RawVector().Data
		if floats.Norm(delta, 2) <= tol*(floats.Norm(x, 2)+tol) {
			return x, iter, nil
		}

		floats.AddTo(xNew, x, delta)
		f(rNew, xNew)
		costNew := 0.5 * floats.Dot(rNew, rNew)
		// predicted decrease of the local quadratic model: ½ δᵀ(μδ − g)
		predicted := 0.0
		for i := range delta {
			predicted += 0.5 * delta[i] * (mu*delta[i] - grad.AtVec(i))
		}
		rho := (cost - costNew) / predicted
		if !math.IsNaN(costNew) && predicted > 0 && rho > 0 {
			copy(x, xNew)
			copy(r, rNew)
			cost = costNew
			linearize()
			mu *= math.Max(1./3, 1-math.Pow(2*rho-1, 3))
			nu = 2
			if s.logger != nil {
				s.logger.Debugw("levenberg-marquardt step accepted", "iteration", iter, "cost", cost, "damping", mu)
			}
		} else {
			mu *= nu
			nu *= 2
		}
		if math.IsInf(mu, 0) {
			break
		}
	}
	return nil, maxIterations, errors.Wrapf(ErrNotConverged, "stopped after %d iterations", maxIterations)
}

// parameterLayout maps between the calibration quantities and the flat vector of free parameters:
// free intrinsics, then free distortion coefficients, then rvec and tvec of every view.
type parameterLayout struct {
	flags      CalibrationFlags
	base       PinholeCameraIntrinsics
	distortion [NumDistortionCoefficients]float64
	aspect     float64
	freeDist   []int
	nViews     int
}

func newParameterLayout(
	initial PinholeCameraIntrinsics,
	distortion []float64,
	flags CalibrationFlags,
	nViews int,
) *parameterLayout {
	l := &parameterLayout{flags: flags, base: initial, nViews: nViews, aspect: initial.Fx / initial.Fy}
	copy(l.distortion[:], distortion)
	if flags.Has(ZeroTangentDist) {
		l.distortion[2], l.distortion[3] = 0, 0
	}
	if !flags.Has(RationalModel) {
		l.distortion[5], l.distortion[6], l.distortion[7] = 0, 0, 0
	}

	fixed := [NumDistortionCoefficients]bool{
		flags.Has(FixK1),
		flags.Has(FixK2),
		flags.Has(ZeroTangentDist),
		flags.Has(ZeroTangentDist),
		flags.Has(FixK3),
		flags.Has(FixK4) || !flags.Has(RationalModel),
		flags.Has(FixK5) || !flags.Has(RationalModel),
		flags.Has(FixK6) || !flags.Has(RationalModel),
	}
	for i, isFixed := range fixed {
		if !isFixed {
			l.freeDist = append(l.freeDist, i)
		}
	}
	return l
}

func (l *parameterLayout) pack(
	intr PinholeCameraIntrinsics,
	dist [NumDistortionCoefficients]float64,
	poses []*CamPose,
) []float64 {
	var x []float64
	switch {
	case l.flags.Has(FixFocalLength):
	case l.flags.Has(FixAspectRatio):
		x = append(x, intr.Fy)
	default:
		x = append(x, intr.Fx, intr.Fy)
	}
	if !l.flags.Has(FixPrincipalPoint) {
		x = append(x, intr.Ppx, intr.Ppy)
	}
	for _, i := range l.freeDist {
		x = append(x, dist[i])
	}
	for _, pose := range poses {
		rv := pose.RotationVector()
		x = append(x, rv.X, rv.Y, rv.Z, pose.Translation.X, pose.Translation.Y, pose.Translation.Z)
	}
	return x
}

func (l *parameterLayout) unpack(x []float64) (
	*PinholeCameraIntrinsics,
	[NumDistortionCoefficients]float64,
	[]r3.Vector,
	[]r3.Vector,
) {
	intr := l.base
	dist := l.distortion
	i := 0
	switch {
	case l.flags.Has(FixFocalLength):
	case l.flags.Has(FixAspectRatio):
		intr.Fy = x[i]
		intr.Fx = l.aspect * x[i]
		i++
	default:
		intr.Fx, intr.Fy = x[i], x[i+1]
		i += 2
	}
	if !l.flags.Has(FixPrincipalPoint) {
		intr.Ppx, intr.Ppy = x[i], x[i+1]
		i += 2
	}
	for _, d := range l.freeDist {
		dist[d] = x[i]
		i++
	}
	rvecs := make([]r3.Vector, l.nViews)
	tvecs := make([]r3.Vector, l.nViews)
	for v := 0; v < l.nViews; v++ {
		rvecs[v] = r3.Vector{X: x[i], Y: x[i+1], Z: x[i+2]}
		tvecs[v] = r3.Vector{X: x[i+3], Y: x[i+4], Z: x[i+5]}
		i += 6
	}
	return &intr, dist, rvecs, tvecs
}

// residuals writes predicted minus observed pixel coordinates, u then v for every point.
func (l *parameterLayout) residuals(y, x []float64, views []CalibrationView) {
	intr, dist, rvecs, tvecs := l.unpack(x)
	bc := BrownConrady{dist[0], dist[1], dist[2], dist[3], dist[4], dist[5], dist[6], dist[7]}
	model := PinholeCameraModel{PinholeCameraIntrinsics: intr, Distortion: &bc}
	k := 0
	for v, view := range views {
		rot := spatialmath.NewRotationMatrixFromRotationVector(rvecs[v])
		for i, pt := range view.ObjectPoints {
			px := model.ProjectPoint(rot.Mul(pt).Add(tvecs[v]))
			y[k] = px.X - view.ImagePoints[i].X
			y[k+1] = px.Y - view.ImagePoints[i].Y
			k += 2
		}
	}
}
