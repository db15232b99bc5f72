// Package main runs a single-view calibration from a config file and prints the virtual camera
// settings it produces.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/camcalib/components/camera/virtual"
	"go.viam.com/camcalib/config"
	"go.viam.com/camcalib/logging"
	"go.viam.com/camcalib/rimage/calibration"
)

const (
	flagConfig = "config"
	flagDebug  = "debug"
	flagPlot   = "plot"
	flagJSON   = "json"
)

type options struct {
	configPath string
	plotPath   string
	asJSON     bool
}

func main() {
	var logger logging.Logger

	app := &cli.App{
		Name:  "calibrate",
		Usage: "fit a virtual camera to pixel/world correspondences",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load the calibration from `FILE` (json or yaml)",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagPlot,
				Usage: "write an observed vs reprojected scatter plot to `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagJSON,
				Usage: "print the result as json",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger = logging.NewDebugLogger("calibrate")
			} else {
				logger = logging.NewLogger("calibrate")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "schema",
				Usage: "print the json schema of the config file",
				Action: func(c *cli.Context) error {
					return printSchema(c.App.Writer)
				},
			},
		},
		Action: func(c *cli.Context) error {
			if c.String(flagConfig) == "" {
				return errors.Errorf("--%s is required", flagConfig)
			}
			return calibrate(c.Context, options{
				configPath: c.String(flagConfig),
				plotPath:   c.String(flagPlot),
				asJSON:     c.Bool(flagJSON),
			}, c.App.Writer, logger)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func calibrate(ctx context.Context, opts options, out io.Writer, logger logging.Logger) error {
	cfg, err := config.Read(opts.configPath)
	if err != nil {
		return err
	}
	cam, err := virtual.NewCameraFromConfig(cfg.CameraConfig())
	if err != nil {
		return err
	}
	calibOpts, err := cfg.CalibratorOptions()
	if err != nil {
		return err
	}
	calibrator := calibration.NewCalibrator(cam, cfg.NewSolver(logger), logger, calibOpts...)

	imagePoints, worldPoints := cfg.Points()
	result, err := calibrator.CalibrateWithResult(ctx, imagePoints, worldPoints)
	if err != nil {
		return err
	}
	logger.Infow("calibrated", "points", len(imagePoints), "rms", result.RMSError)

	if opts.plotPath != "" {
		if err := result.SaveResidualPlot(opts.plotPath); err != nil {
			return errors.Wrap(err, "cannot write residual plot")
		}
	}
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return printResult(out, result)
}

func printSchema(out io.Writer) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(config.Schema())
}

func printResult(out io.Writer, result *calibration.Result) error {
	summary, err := result.Summary()
	if err != nil {
		return err
	}
	intr := result.Intrinsics
	fmt.Fprintf(out, "intrinsics: fx=%.3f fy=%.3f cx=%.3f cy=%.3f (%dx%d)\n",
		intr.Fx, intr.Fy, intr.Ppx, intr.Ppy, intr.Width, intr.Height)
	fov := intr.FieldOfView()
	fmt.Fprintf(out, "fov deg:    h=%.4f v=%.4f\n", fov.Horizontal, fov.Vertical)
	fmt.Fprintf(out, "position:   (%.4f, %.4f, %.4f)\n", result.Position.X, result.Position.Y, result.Position.Z)
	fmt.Fprintf(out, "euler deg:  (%.4f, %.4f, %.4f)\n", result.EulerAngles.X, result.EulerAngles.Y, result.EulerAngles.Z)
	fmt.Fprintln(out, "projection:")
	for row := 0; row < 4; row++ {
		r := result.ProjectionMatrix.Row(row)
		fmt.Fprintf(out, "  [% .6f % .6f % .6f % .6f]\n", r[0], r[1], r[2], r[3])
	}
	fmt.Fprintln(out, result.ResidualTable())
	fmt.Fprintf(out, "residuals:  mean=%.4f median=%.4f p95=%.4f max=%.4f\n",
		summary.Mean, summary.Median, summary.P95, summary.Max)
	return nil
}
