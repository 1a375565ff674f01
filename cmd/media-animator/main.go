package main

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"media-animator/internal/bootstrap"
)

func main() {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	var app *bootstrap.App
	withApp := func(action func(app *bootstrap.App, ctx *cli.Context) error) cli.ActionFunc {
		return func(ctx *cli.Context) error {
			return action(app, ctx)
		}
	}

	cliApp := cli.App{
		Name:        "media-animator",
		Usage:       "convert short video clips into animated WebP images",
		Description: "frame-samples, resizes and encodes videos into looping animated WebP files",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log per-frame and memory checkpoints",
			},
		},
		Before: func(ctx *cli.Context) error {
			if ctx.Bool("debug") {
				logger.SetLevel(logrus.DebugLevel)
			}
			var err error
			app, err = bootstrap.New(logger)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
		Commands: []*cli.Command{{
			Name:      "convert",
			Usage:     "convert video files into animations",
			ArgsUsage: "FILE...",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "out",
					Usage: "output directory (defaults to the configured one)",
				},
				&cli.Float64Flag{
					Name:  "fps",
					Usage: "target frames per second",
				},
				&cli.IntFlag{
					Name:  "width",
					Usage: "resize to this width, keeping the aspect ratio",
				},
				&cli.IntFlag{
					Name:  "height",
					Usage: "resize to this height, keeping the aspect ratio",
				},
				&cli.BoolFlag{
					Name:  "lossless",
					Usage: "encode frames losslessly",
				},
				&cli.IntFlag{
					Name:  "quality",
					Usage: "lossy quality from 0 to 100",
				},
				&cli.IntFlag{
					Name:  "compression",
					Usage: "extra lossy compression from 0 to 100",
				},
				&cli.StringFlag{
					Name:  "report",
					Usage: "write a JSON batch report to this file",
				},
			},
			Action: withApp(func(app *bootstrap.App, ctx *cli.Context) error {
				return runConvert(app, ctx, logger)
			}),
		}, {
			Name:  "doctor",
			Usage: "check ffmpeg, the output directory and memory pressure",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "json",
					Usage: "print the report as JSON",
				},
			},
			Action: withApp(runDoctor),
		}, {
			Name:   "outputs",
			Usage:  "list animations in the output directory",
			Action: withApp(runOutputs),
		}, {
			Name:  "config",
			Usage: "inspect and change settings",
			Subcommands: []*cli.Command{{
				Name:   "show",
				Usage:  "print the effective settings",
				Action: withApp(runConfigShow),
			}, {
				Name:      "set-output",
				Usage:     "set and create the output directory",
				ArgsUsage: "DIR",
				Action:    withApp(runConfigSetOutput),
			}},
		}},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Fatal(err)
	}
}
