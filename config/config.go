// Package config defines the file format of a calibration run: the viewport of the virtual
// camera, the intrinsic guess, the solver settings and the point correspondences.
package config

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/camcalib/components/camera/virtual"
	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/rimage/calibration"
	"go.viam.com/camcalib/rimage/transform"
)

// A Config describes a single calibration run.
type Config struct {
	Viewport        Viewport               `json:"viewport" yaml:"viewport"`
	FieldOfView     *transform.FieldOfView `json:"field_of_view,omitempty" yaml:"field_of_view,omitempty"`
	ClipPlanes      ClipPlanes             `json:"clip_planes" yaml:"clip_planes"`
	Solver          SolverConfig           `json:"solver" yaml:"solver"`
	Correspondences []Correspondence       `json:"correspondences" yaml:"correspondences"`

	ConfigFilePath string `json:"-" yaml:"-"`
}

// Viewport is the pixel size of the virtual camera.
type Viewport struct {
	Width  int `json:"width_px" yaml:"width_px"`
	Height int `json:"height_px" yaml:"height_px"`
}

// ClipPlanes are the near and far distances of the virtual camera. Zero values take the camera defaults.
type ClipPlanes struct {
	Near float64 `json:"near,omitempty" yaml:"near,omitempty"`
	Far  float64 `json:"far,omitempty" yaml:"far,omitempty"`
}

// SolverConfig tunes the reference solver. Flags are names as accepted by
// transform.ParseCalibrationFlags; an empty list selects transform.DefaultConstraintFlags.
type SolverConfig struct {
	MaxIterations int      `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	Tolerance     float64  `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
	Flags         []string `json:"flags,omitempty" yaml:"flags,omitempty"`
}

// Correspondence pairs a pixel (top-left origin) with the world point it shows.
type Correspondence struct {
	Image []float64 `json:"image" yaml:"image"`
	World []float64 `json:"world" yaml:"world"`
}

// Validate ensures all parts of the config are valid. Every problem found is reported.
func (c *Config) Validate() error {
	var errs error
	if err := c.Viewport.Validate("viewport"); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.FieldOfView != nil {
		fov := c.FieldOfView
		if !(fov.Horizontal > 0 && fov.Horizontal < 180) || !(fov.Vertical > 0 && fov.Vertical < 180) {
			errs = multierr.Append(errs, utils.NewConfigValidationError("field_of_view",
				errors.Errorf("angles must be in (0, 180) degrees, got %vx%v", fov.Horizontal, fov.Vertical)))
		}
	}
	if err := c.ClipPlanes.Validate("clip_planes"); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := c.Solver.Validate("solver"); err != nil {
		errs = multierr.Append(errs, err)
	}
	if len(c.Correspondences) == 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError("", "correspondences"))
	}
	for idx := range c.Correspondences {
		if err := c.Correspondences[idx].Validate(fmt.Sprintf("%s.%d", "correspondences", idx)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Validate checks the viewport size.
func (v Viewport) Validate(path string) error {
	if v.Width <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "width_px")
	}
	if v.Height <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "height_px")
	}
	return nil
}

// Validate checks 0 < near < far for whichever planes are set.
func (cp ClipPlanes) Validate(path string) error {
	if cp.Near < 0 || cp.Far < 0 {
		return utils.NewConfigValidationError(path, errors.New("clip planes cannot be negative"))
	}
	near, far := cp.Near, cp.Far
	if near == 0 {
		near = virtual.DefaultNearClipPlane
	}
	if far == 0 {
		far = virtual.DefaultFarClipPlane
	}
	if far <= near {
		return utils.NewConfigValidationError(path, errors.Errorf("far (%v) must be beyond near (%v)", far, near))
	}
	return nil
}

// Validate checks the solver limits and flag names.
func (s SolverConfig) Validate(path string) error {
	var errs error
	if s.MaxIterations < 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path, errors.New("max_iterations cannot be negative")))
	}
	if s.Tolerance < 0 || math.IsNaN(s.Tolerance) {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path, errors.New("tolerance cannot be negative")))
	}
	if _, err := transform.ParseCalibrationFlags(s.Flags); err != nil {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path+".flags", err))
	}
	return errs
}

// Validate checks the dimensions and values of a correspondence.
func (c Correspondence) Validate(path string) error {
	if len(c.Image) != 2 {
		return utils.NewConfigValidationError(path, errors.Errorf("image must have 2 values, got %d", len(c.Image)))
	}
	if len(c.World) != 3 {
		return utils.NewConfigValidationError(path, errors.Errorf("world must have 3 values, got %d", len(c.World)))
	}
	for _, v := range append(append([]float64{}, c.Image...), c.World...) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return utils.NewConfigValidationError(path, errors.New("values must be finite"))
		}
	}
	return nil
}

// Points splits the correspondences into image and world points.
func (c *Config) Points() ([]r2.Point, []r3.Vector) {
	image := make([]r2.Point, 0, len(c.Correspondences))
	world := make([]r3.Vector, 0, len(c.Correspondences))
	for _, corr := range c.Correspondences {
		if len(corr.Image) != 2 || len(corr.World) != 3 {
			continue
		}
		image = append(image, r2.Point{X: corr.Image[0], Y: corr.Image[1]})
		world = append(world, r3.Vector{X: corr.World[0], Y: corr.World[1], Z: corr.World[2]})
	}
	return image, world
}

// CameraConfig is the virtual camera described by the viewport and clip planes.
func (c *Config) CameraConfig() *virtual.Config {
	return &virtual.Config{
		Width:  c.Viewport.Width,
		Height: c.Viewport.Height,
		Near:   c.ClipPlanes.Near,
		Far:    c.ClipPlanes.Far,
	}
}

// ConstraintFlags parses the solver flags.
func (c *Config) ConstraintFlags() (transform.CalibrationFlags, error) {
	if len(c.Solver.Flags) == 0 {
		return transform.DefaultConstraintFlags, nil
	}
	return transform.ParseCalibrationFlags(c.Solver.Flags)
}

// NewSolver returns the reference solver tuned by the solver section.
func (c *Config) NewSolver(logger logging.Logger) *transform.LevenbergMarquardtSolver {
	solver := transform.NewLevenbergMarquardtSolver(logger)
	if c.Solver.MaxIterations > 0 {
		solver.MaxIterations = c.Solver.MaxIterations
	}
	if c.Solver.Tolerance > 0 {
		solver.Tolerance = c.Solver.Tolerance
	}
	return solver
}

// CalibratorOptions translates the config into calibrator options.
func (c *Config) CalibratorOptions() ([]calibration.Option, error) {
	flags, err := c.ConstraintFlags()
	if err != nil {
		return nil, err
	}
	opts := []calibration.Option{calibration.WithConstraintFlags(flags)}
	if c.FieldOfView != nil {
		opts = append(opts, calibration.WithFieldOfView(*c.FieldOfView))
	}
	return opts, nil
}
