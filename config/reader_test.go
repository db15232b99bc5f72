package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
	"go.viam.com/test"

	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/rimage/transform"
)

const minimalJSON = `{
	"viewport": {"width_px": 640, "height_px": 480},
	"correspondences": [{"image": [1, 2], "world": [3, 4, 5]}]
}`

func TestFromReaderValidate(t *testing.T) {
	_, err := FromReader("somepath", strings.NewReader(""))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "EOF")

	_, err = FromReader("somepath", strings.NewReader(`{"viewport": 1}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unmarshal")

	_, err = FromReader("somepath", strings.NewReader(`{}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"width_px" is required`)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"correspondences" is required`)

	conf, err := FromReader("somepath", strings.NewReader(minimalJSON))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf, test.ShouldResemble, &Config{
		ConfigFilePath: "somepath",
		Viewport:       Viewport{Width: 640, Height: 480},
		Correspondences: []Correspondence{
			{Image: []float64{1, 2}, World: []float64{3, 4, 5}},
		},
	})

	_, err = FromReader("somepath", strings.NewReader(`{
		"viewport": {"width_px": 640, "height_px": 480},
		"correspondences": [{"image": [1, 2], "world": [3, 4]}]
	}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "correspondences.0")
	test.That(t, err.Error(), test.ShouldContainSubstring, "world must have 3 values")
}

func TestValidateReportsEveryProblem(t *testing.T) {
	conf := &Config{
		Viewport:    Viewport{Width: 640},
		FieldOfView: &transform.FieldOfView{Horizontal: 190, Vertical: 40},
		ClipPlanes:  ClipPlanes{Near: 10, Far: 5},
		Solver:      SolverConfig{MaxIterations: -1, Flags: []string{"fix_everything"}},
		Correspondences: []Correspondence{
			{Image: []float64{1}, World: []float64{1, 2, 3}},
		},
	}
	err := conf.Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, len(multierr.Errors(err)), test.ShouldEqual, 6)
	for _, want := range []string{
		`"height_px" is required`,
		"field_of_view",
		"clip_planes",
		"max_iterations",
		`unknown calibration flag "fix_everything"`,
		"correspondences.0",
	} {
		test.That(t, err.Error(), test.ShouldContainSubstring, want)
	}
}

func TestReadJSON(t *testing.T) {
	conf, err := Read(filepath.Join("data", "square.json"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Viewport, test.ShouldResemble, Viewport{Width: 1280, Height: 720})
	test.That(t, conf.FieldOfView, test.ShouldResemble, &transform.DefaultFieldOfView)
	test.That(t, conf.ClipPlanes, test.ShouldResemble, ClipPlanes{Near: 0.3, Far: 1000})

	image, world := conf.Points()
	test.That(t, len(image), test.ShouldEqual, 4)
	test.That(t, image[0], test.ShouldResemble, r2.Point{X: 765.19, Y: 234.81})
	test.That(t, world[0], test.ShouldResemble, r3.Vector{X: 1, Y: -1})

	flags, err := conf.ConstraintFlags()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, flags, test.ShouldEqual, transform.DefaultConstraintFlags)

	solver := conf.NewSolver(logging.NewTestLogger(t))
	test.That(t, solver.MaxIterations, test.ShouldEqual, 200)
	test.That(t, solver.Tolerance, test.ShouldEqual, 1e-12)

	opts, err := conf.CalibratorOptions()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(opts), test.ShouldEqual, 2)

	cam := conf.CameraConfig()
	test.That(t, cam.Width, test.ShouldEqual, 1280)
	test.That(t, cam.Validate("camera"), test.ShouldBeNil)
}

func TestReadYAMLWithEnvironment(t *testing.T) {
	t.Setenv("CALIB_WIDTH", "1280")
	conf, err := Read(filepath.Join("data", "square.yaml"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Viewport.Width, test.ShouldEqual, 1280)
	test.That(t, conf.FieldOfView, test.ShouldBeNil)

	flags, err := conf.ConstraintFlags()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, flags, test.ShouldEqual, transform.UseIntrinsicGuess|transform.FixPrincipalPoint|
		transform.ZeroTangentDist|transform.FixK1|transform.FixK2|transform.FixK3)

	solver := conf.NewSolver(logging.NewTestLogger(t))
	test.That(t, solver.MaxIterations, test.ShouldEqual, transform.DefaultMaxIterations)

	jsonConf, err := Read(filepath.Join("data", "square.json"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Correspondences, test.ShouldResemble, jsonConf.Correspondences)
}

func TestReadMissingVariable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calib.json")
	contents := strings.Replace(minimalJSON, "640", "${CALIB_TEST_UNSET_WIDTH}", 1)
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)

	_, err := Read(path)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = Read(filepath.Join(dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSchema(t *testing.T) {
	b, err := json.Marshal(Schema())
	test.That(t, err, test.ShouldBeNil)
	for _, field := range []string{"viewport", "width_px", "field_of_view", "horizontal_deg", "correspondences", "max_iterations"} {
		test.That(t, string(b), test.ShouldContainSubstring, `"`+field+`"`)
	}
	test.That(t, string(b), test.ShouldNotContainSubstring, "ConfigFilePath")
}
