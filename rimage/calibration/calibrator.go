// Package calibration turns 2D/3D point correspondences into the projection, position and
// orientation of a virtual camera so rendered content lines up with a real camera image.
package calibration

import (
	"context"
	"image"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/rimage/transform"
	"go.viam.com/camcalib/spatialmath"
	"go.viam.com/camcalib/utils"
)

const (
	// NumViews is the number of target images a calibration is solved from.
	NumViews = 1
	// MinCorrespondences is the fewest point pairs Calibrate accepts.
	MinCorrespondences = transform.MinPointsPerView
)

// ErrInvalidCorrespondences is returned before any solving when the correspondence set is unusable.
var ErrInvalidCorrespondences = errors.New("invalid correspondences")

// ErrSolverFailed classifies every error coming back from the Solver.
var ErrSolverFailed = errors.New("calibration solver failed")

// SolverError wraps an error returned by the Solver. It matches ErrSolverFailed and unwraps to
// the solver's own error.
type SolverError struct {
	Err error
}

func (e *SolverError) Error() string {
	return ErrSolverFailed.Error() + ": " + e.Err.Error()
}

// Unwrap returns the solver's error.
func (e *SolverError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrSolverFailed.
func (e *SolverError) Is(target error) bool {
	return target == ErrSolverFailed //nolint:errorlint
}

// Camera is the virtual camera that receives the calibration. Angles are in degrees, in the
// engine's Z-X-Y rotation order.
type Camera interface {
	SetProjectionMatrix(mgl64.Mat4)
	SetPosition(r3.Vector)
	SetEulerAngles(r3.Vector)
	NearClipPlane() float64
	FarClipPlane() float64
	PixelWidth() int
	PixelHeight() int
}

// The solver works in a right-handed frame; the engine is left-handed. Negating the third
// column of the rotation (and world z on the way in) moves between the two.
var handednessCorrection = spatialmath.NewReflectionZ()

// Option configures a Calibrator.
type Option func(*Calibrator)

// WithFieldOfView overrides the field of view used for the initial intrinsics.
func WithFieldOfView(fov transform.FieldOfView) Option {
	return func(c *Calibrator) {
		c.fov = fov
	}
}

// WithConstraintFlags overrides transform.DefaultConstraintFlags.
func WithConstraintFlags(flags transform.CalibrationFlags) Option {
	return func(c *Calibrator) {
		c.flags = flags
	}
}

// Calibrator calibrates a single Camera. Calls on the same Calibrator must not overlap.
type Calibrator struct {
	camera Camera
	solver transform.Solver
	logger logging.Logger
	fov    transform.FieldOfView
	flags  transform.CalibrationFlags
}

// NewCalibrator returns a Calibrator that applies its results to camera.
func NewCalibrator(camera Camera, solver transform.Solver, logger logging.Logger, opts ...Option) *Calibrator {
	c := &Calibrator{
		camera: camera,
		solver: solver,
		logger: logger,
		fov:    transform.DefaultFieldOfView,
		flags:  transform.DefaultConstraintFlags,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calibrate solves for the camera from the correspondences, applies projection, position and
// orientation to the camera and returns the RMS reprojection error in pixels.
func (c *Calibrator) Calibrate(ctx context.Context, imagePoints []r2.Point, worldPoints []r3.Vector) (float64, error) {
	res, err := c.CalibrateWithResult(ctx, imagePoints, worldPoints)
	if err != nil {
		return 0, err
	}
	return res.RMSError, nil
}

// CalibrateWithResult is Calibrate returning everything that was computed. The camera is only
// touched once every step has succeeded.
func (c *Calibrator) CalibrateWithResult(
	ctx context.Context,
	imagePoints []r2.Point,
	worldPoints []r3.Vector,
) (*Result, error) {
	if err := validateCorrespondences(imagePoints, worldPoints); err != nil {
		return nil, err
	}
	width, height := c.camera.PixelWidth(), c.camera.PixelHeight()
	near, far := c.camera.NearClipPlane(), c.camera.FarClipPlane()
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("camera has invalid pixel size %dx%d", width, height)
	}
	if near <= 0 || far <= near {
		return nil, errors.Errorf("camera has invalid clip planes near=%v far=%v", near, far)
	}

	objectPoints := make([]r3.Vector, len(worldPoints))
	for i, pt := range worldPoints {
		objectPoints[i] = r3.Vector{X: pt.X, Y: pt.Y, Z: -pt.Z}
	}
	observed := make([]r2.Point, len(imagePoints))
	copy(observed, imagePoints)

	guess := transform.NewIntrinsicGuess(width, height, c.fov)
	c.logger.Debugw("initial intrinsics", "fx", guess.Fx, "fy", guess.Fy, "ppx", guess.Ppx, "ppy", guess.Ppy)

	views := make([]transform.CalibrationView, NumViews)
	views[0] = transform.CalibrationView{ImagePoints: observed, ObjectPoints: objectPoints}
	calib, err := c.solver.CalibrateCamera(
		ctx,
		views,
		image.Point{X: width, Y: height},
		guess,
		make([]float64, transform.NumDistortionCoefficients),
		c.flags,
	)
	if err != nil {
		return nil, &SolverError{Err: err}
	}
	if calib == nil || calib.Intrinsics == nil || len(calib.RotationVectors) < NumViews || len(calib.TranslationVectors) < NumViews {
		return nil, &SolverError{Err: errors.New("solver returned an incomplete calibration")}
	}
	rvec, tvec := calib.RotationVectors[0], calib.TranslationVectors[0]
	c.logger.Debugw("solver output",
		"fx", calib.Intrinsics.Fx, "fy", calib.Intrinsics.Fy, "ppx", calib.Intrinsics.Ppx, "ppy", calib.Intrinsics.Ppy,
		"rvec", rvec, "tvec", tvec, "rms", calib.RMSError)

	rot := spatialmath.NewRotationMatrixFromRotationVector(rvec).MatMul(handednessCorrection)
	inverse := rot.Transpose()
	position := inverse.Mul(tvec).Mul(-1)
	euler, err := spatialmath.NewEulerZXYFromRotationMatrix(inverse)
	if err != nil {
		return nil, err
	}
	projection := transform.ProjectionMatrixFromIntrinsics(calib.Intrinsics, width, height, near, far)

	residuals, err := computeResiduals(calib, observed, objectPoints)
	if err != nil {
		return nil, &SolverError{Err: err}
	}

	res := &Result{
		ProjectionMatrix:  projection,
		Position:          position,
		EulerAngles:       euler.EngineDegrees(),
		Intrinsics:        calib.Intrinsics,
		RotationVector:    rvec,
		TranslationVector: tvec,
		RMSError:          calib.RMSError,
		Residuals:         residuals,
	}

	c.camera.SetProjectionMatrix(res.ProjectionMatrix)
	c.camera.SetPosition(res.Position)
	c.camera.SetEulerAngles(res.EulerAngles)
	c.logger.Debugw("applied calibration", "position", res.Position, "euler_deg", res.EulerAngles, "rms", res.RMSError)
	return res, nil
}

func validateCorrespondences(imagePoints []r2.Point, worldPoints []r3.Vector) error {
	if len(imagePoints) != len(worldPoints) {
		return errors.Wrap(ErrInvalidCorrespondences,
			utils.NewDimensionMismatchError("world points", len(imagePoints), len(worldPoints)).Error())
	}
	if len(imagePoints) < MinCorrespondences {
		return errors.Wrapf(ErrInvalidCorrespondences, "need at least %d points, got %d", MinCorrespondences, len(imagePoints))
	}
	for i := range imagePoints {
		p, w := imagePoints[i], worldPoints[i]
		for _, v := range []float64{p.X, p.Y, w.X, w.Y, w.Z} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Wrapf(ErrInvalidCorrespondences, "point %d is not finite", i)
			}
		}
	}
	return nil
}
