package calibration

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/camcalib/rimage/transform"
)

// Result is everything a calibration computed and applied.
type Result struct {
	ProjectionMatrix  mgl64.Mat4                         `json:"projection_matrix"`
	Position          r3.Vector                          `json:"position"`
	EulerAngles       r3.Vector                          `json:"euler_angles_deg"`
	Intrinsics        *transform.PinholeCameraIntrinsics `json:"intrinsics"`
	RotationVector    r3.Vector                          `json:"rotation_vector"`
	TranslationVector r3.Vector                          `json:"translation_vector"`
	RMSError          float64                            `json:"rms_error"`
	Residuals         []PointResidual                    `json:"residuals"`
}

// PointResidual compares one observed pixel with the reprojection of its world point.
type PointResidual struct {
	Observed    r2.Point `json:"observed"`
	Reprojected r2.Point `json:"reprojected"`
	Error       float64  `json:"error_px"`
}

// ResidualSummary holds summary statistics of the per-point reprojection errors, in pixels.
type ResidualSummary struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	Max    float64 `json:"max"`
}

func computeResiduals(calib *transform.CameraCalibration, observed []r2.Point, objectPoints []r3.Vector) ([]PointResidual, error) {
	reprojected, err := calib.Reproject(0, objectPoints)
	if err != nil {
		return nil, err
	}
	out := make([]PointResidual, len(observed))
	for i := range observed {
		out[i] = PointResidual{
			Observed:    observed[i],
			Reprojected: reprojected[i],
			Error:       reprojected[i].Sub(observed[i]).Norm(),
		}
	}
	return out, nil
}

// Summary computes statistics over the per-point errors.
func (r *Result) Summary() (ResidualSummary, error) {
	errs := stats.Float64Data(lo.Map(r.Residuals, func(res PointResidual, _ int) float64 { return res.Error }))
	mean, err := errs.Mean()
	if err != nil {
		return ResidualSummary{}, errors.Wrap(err, "no residuals")
	}
	median, err := errs.Median()
	if err != nil {
		return ResidualSummary{}, err
	}
	p95, err := errs.Percentile(95)
	if err != nil {
		return ResidualSummary{}, err
	}
	maximum, err := errs.Max()
	if err != nil {
		return ResidualSummary{}, err
	}
	return ResidualSummary{Mean: mean, Median: median, P95: p95, Max: maximum}, nil
}

// ResidualTable renders the per-point residuals as a text table.
func (r *Result) ResidualTable() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Observed", "Reprojected", "Error (px)"})
	for i, res := range r.Residuals {
		t.AppendRow(table.Row{
			i,
			fmt.Sprintf("(%.2f, %.2f)", res.Observed.X, res.Observed.Y),
			fmt.Sprintf("(%.2f, %.2f)", res.Reprojected.X, res.Reprojected.Y),
			fmt.Sprintf("%.4f", res.Error),
		})
	}
	t.AppendFooter(table.Row{"", "", "RMS", fmt.Sprintf("%.4f", r.RMSError)})
	return t.Render()
}
