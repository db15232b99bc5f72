package calibration

import (
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// SaveResidualPlot writes a scatter plot of observed and reprojected pixels. The image y axis is
// flipped so the plot reads like the camera image. The format follows the file extension.
func (r *Result) SaveResidualPlot(path string) error {
	if len(r.Residuals) == 0 {
		return errors.New("no residuals to plot")
	}
	p := plot.New()
	p.Title.Text = "Reprojection"
	p.X.Label.Text = "u (px)"
	p.Y.Label.Text = "-v (px)"

	observed := make(plotter.XYs, len(r.Residuals))
	reprojected := make(plotter.XYs, len(r.Residuals))
	for i, res := range r.Residuals {
		observed[i] = plotter.XY{X: res.Observed.X, Y: -res.Observed.Y}
		reprojected[i] = plotter.XY{X: res.Reprojected.X, Y: -res.Reprojected.Y}
	}

	obsScatter, err := plotter.NewScatter(observed)
	if err != nil {
		return errors.Wrap(err, "observed points")
	}
	obsScatter.GlyphStyle.Shape = draw.CircleGlyph{}
	obsScatter.GlyphStyle.Color = color.RGBA{B: 200, A: 255}
	obsScatter.GlyphStyle.Radius = vg.Points(3)

	reprojScatter, err := plotter.NewScatter(reprojected)
	if err != nil {
		return errors.Wrap(err, "reprojected points")
	}
	reprojScatter.GlyphStyle.Shape = draw.CrossGlyph{}
	reprojScatter.GlyphStyle.Color = color.RGBA{R: 200, A: 255}
	reprojScatter.GlyphStyle.Radius = vg.Points(3)

	p.Add(plotter.NewGrid(), obsScatter, reprojScatter)
	p.Legend.Add("observed", obsScatter)
	p.Legend.Add("reprojected", reprojScatter)
	p.Legend.Top = true

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.Wrap(err, "save residual plot")
	}
	return nil
}
