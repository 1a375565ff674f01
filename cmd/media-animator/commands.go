package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v2"

	"media-animator/internal/bootstrap"
	"media-animator/internal/domain"
)

func runDoctor(app *bootstrap.App, ctx *cli.Context) error {
	report, err := app.RefreshDiagnostics()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if ctx.Bool("json") {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling diagnostics to JSON: %w", err)
		}
		fmt.Printf("%s\n", data)
	} else {
		printDiagnostics(os.Stdout, report)
	}

	if report.HasFailures {
		return cli.Exit("environment check failed", 1)
	}
	return nil
}

func printDiagnostics(w io.Writer, report domain.DiagnosticReport) {
	for _, item := range report.Items {
		fmt.Fprintf(w, "[%s] %s: %s\n", item.Status, item.Name, item.Message)
		if item.Hint != "" && item.Status != domain.DiagnosticStatusPass {
			fmt.Fprintf(w, "       %s\n", item.Hint)
		}
	}
}

func runOutputs(app *bootstrap.App, _ *cli.Context) error {
	files, err := app.ListOutputs()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if len(files) == 0 {
		fmt.Printf("no animations in %s\n", app.Settings().OutputDir)
		return nil
	}
	return printOutputs(os.Stdout, files)
}

func printOutputs(w io.Writer, files []domain.OutputFile) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Name, humanize.IBytes(uint64(max(f.Size, 0))), f.Modified.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func runConfigShow(app *bootstrap.App, _ *cli.Context) error {
	data, err := yaml.Marshal(app.Settings())
	if err != nil {
		return fmt.Errorf("marshaling settings to YAML: %w", err)
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runConfigSetOutput(app *bootstrap.App, ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.Exit("config set-output: exactly one DIR is required", 2)
	}
	settings, err := app.SetOutputDir(ctx.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Printf("output directory set to %s\n", settings.OutputDir)
	return nil
}
