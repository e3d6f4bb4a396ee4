package main

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"repcount/internal/capture"
	"repcount/internal/config"
	"repcount/internal/pose"
	"repcount/internal/services"
)

// runProcess counts repetitions in a local video file.
func runProcess(ctx context.Context, args []string) (*services.BatchResult, error) {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	var (
		exerciseF = fs.String("exercise", "", "Exercise identifier")
		outF      = fs.String("o", "", "Annotated output video (default INPUT_output.mp4)")
		reportF   = fs.Bool("report", false, "Write PNG and HTML angle reports next to the output (default from REPORTS_ENABLED)")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, fmt.Errorf("process: exactly one input file required")
	}
	in := fs.Arg(0)

	out := *outF
	if out == "" {
		out = strings.TrimSuffix(in, filepath.Ext(in)) + "_output.mp4"
	}

	cfg := config.Load()
	openSource, openSink, err := capture.New(cfg.Capture())
	if err != nil {
		return nil, err
	}
	detectors, err := pose.NewFactory(cfg.Pose())
	if err != nil {
		return nil, err
	}

	svc := services.NewBatchService(services.BatchConfig{
		Open:     openSource,
		Sink:     openSink,
		Detector: detectors,
		Quality:  cfg.JPEGQuality,
		Reports:  reportsEnabled(fs, *reportF, cfg.ReportsEnabled),
	})
	return svc.ProcessFile(ctx, *exerciseF, in, out)
}

// reportsEnabled lets an explicit -report flag, true or false, override the
// configured default.
func reportsEnabled(fs *flag.FlagSet, flagValue, configured bool) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "report" {
			set = true
		}
	})
	if set {
		return flagValue
	}
	return configured
}
