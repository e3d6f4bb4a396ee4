package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"repcount/internal/capture"
	"repcount/internal/exercise"
)

// Sample is the per-frame trace of a batch run.
type Sample struct {
	Seq      uint64
	Angle    float64
	HasAngle bool
	Count    int
	Stage    exercise.Stage
}

// TraceFunc receives one sample per processed frame.
type TraceFunc func(Sample)

// Result summarizes a finished batch run.
type Result struct {
	Count    int
	Frames   int
	Duration time.Duration
}

// RunBatch processes every frame of src into sink with a fresh counter.
// RunBatch owns src and sink and closes both on every return path. trace
// may be nil.
func RunBatch(ctx context.Context, src capture.Source, sink capture.Sink, profile exercise.Profile, proc *Processor, trace TraceFunc) (res Result, err error) {
	start := time.Now()
	defer func() {
		if cerr := src.Close(); cerr != nil {
			log.Printf("[Batch] Closing source: %v", cerr)
		}
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = cerr
			if !errors.Is(cerr, capture.ErrSinkUnavailable) {
				err = fmt.Errorf("%w: %v", capture.ErrSinkUnavailable, cerr)
			}
		}
		res.Duration = time.Since(start)
	}()

	counter := exercise.NewCounter(profile)

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		f, err := src.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if errors.Is(err, capture.ErrSourceUnavailable) {
				return res, err
			}
			return res, fmt.Errorf("%w: %v", capture.ErrSourceUnavailable, err)
		}

		out, m, err := proc.ProcessFrame(ctx, f, profile, counter)
		if err != nil {
			return res, fmt.Errorf("processing frame %d: %w", f.Seq, err)
		}

		if err := sink.Write(out); err != nil {
			if errors.Is(err, capture.ErrSinkUnavailable) {
				return res, err
			}
			return res, fmt.Errorf("%w: %v", capture.ErrSinkUnavailable, err)
		}

		res.Frames++
		res.Count = counter.Count()

		if trace != nil {
			trace(Sample{
				Seq:      f.Seq,
				Angle:    m.Angle,
				HasAngle: m.HasAngle,
				Count:    counter.Count(),
				Stage:    counter.Stage(),
			})
		}
	}

	res.Count = counter.Count()
	log.Printf("[Batch] %s: %d reps over %d frames", profile.Label, res.Count, res.Frames)
	return res, nil
}
