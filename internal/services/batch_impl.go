package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"repcount/internal/capture"
	"repcount/internal/exercise"
	"repcount/internal/pipeline"
	"repcount/internal/pose"
	"repcount/internal/report"
)

// BatchResult is the outcome of processing one video file.
type BatchResult struct {
	Exercise   string          `json:"exercise"`
	Count      int             `json:"count"`
	Frames     int             `json:"frames"`
	Output     string          `json:"output"`
	PlotPath   string          `json:"plot,omitempty"`
	ReportPath string          `json:"report,omitempty"`
	Summary    *report.Summary `json:"summary,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

// BatchConfig wires the batch service to its backends.
type BatchConfig struct {
	Open     capture.OpenFunc
	Sink     capture.SinkFunc
	Detector pose.Factory
	Quality  int
	Reports  bool // write PNG and HTML angle reports next to the output
}

// BatchImplementation processes recorded videos. Every call opens and
// releases its own source, sink and detector.
type BatchImplementation struct {
	cfg BatchConfig
}

// NewBatchService creates a batch service.
func NewBatchService(cfg BatchConfig) *BatchImplementation {
	return &BatchImplementation{cfg: cfg}
}

// ProcessFile counts exerciseID repetitions in the video at in and writes
// the annotated video to out.
func (b *BatchImplementation) ProcessFile(ctx context.Context, exerciseID, in, out string) (*BatchResult, error) {
	profile, err := exercise.Resolve(exerciseID)
	if err != nil {
		return nil, err
	}

	src, err := b.cfg.Open(ctx, in)
	if err != nil {
		if !errors.Is(err, capture.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %v", capture.ErrSourceUnavailable, err)
		}
		return nil, err
	}

	sink, err := b.cfg.Sink(out, src.Info())
	if err != nil {
		src.Close()
		if !errors.Is(err, capture.ErrSinkUnavailable) {
			err = fmt.Errorf("%w: %v", capture.ErrSinkUnavailable, err)
		}
		return nil, err
	}

	detector, err := b.cfg.Detector(ctx)
	if err != nil {
		src.Close()
		sink.Close()
		return nil, err
	}
	defer func() {
		if err := detector.Close(); err != nil {
			log.Printf("[Batch] Closing detector: %v", err)
		}
	}()

	log.Printf("[Batch] Processing %s as %s with %s", in, profile.ID, detector.Name())

	trace := report.NewTrace(profile)
	res, err := pipeline.RunBatch(ctx, src, sink, profile, pipeline.NewProcessor(detector, b.cfg.Quality), trace.Record)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{
		Exercise:   profile.ID,
		Count:      res.Count,
		Frames:     res.Frames,
		Output:     out,
		DurationMs: res.Duration.Milliseconds(),
	}

	if res.Frames == 0 {
		log.Printf("[Batch] %s contained no frames", in)
		result.Output = ""
	}

	summary := trace.Summarize()
	result.Summary = &summary

	if b.cfg.Reports && res.Frames > 0 {
		base := strings.TrimSuffix(out, filepath.Ext(out))
		if err := trace.WritePlot(base + "_angle.png"); err != nil {
			log.Printf("[Batch] Angle plot: %v", err)
		} else {
			result.PlotPath = base + "_angle.png"
		}
		if err := trace.WriteHTML(base + "_trace.html"); err != nil {
			log.Printf("[Batch] Trace report: %v", err)
		} else {
			result.ReportPath = base + "_trace.html"
		}
	}

	return result, nil
}
