// Package pipeline turns raw frames into annotated frames: pose detection,
// joint angle measurement, rep counting and overlay drawing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"math"

	"repcount/internal/exercise"
	"repcount/internal/frame"
	"repcount/internal/pose"
	"repcount/internal/stream"
)

// Measurement is what one frame says about the tracked joint.
type Measurement struct {
	Angle    float64
	HasAngle bool
	Joints   []image.Point // pixel positions of the profile joints, empty on no detection
}

// Processor runs the per-frame work shared by live sessions and batch runs.
// It holds no per-session state and is safe for concurrent use as long as
// its detector is.
type Processor struct {
	detector pose.Detector
	quality  int
}

// NewProcessor binds a processor to a pose detector.
func NewProcessor(detector pose.Detector, quality int) *Processor {
	if quality <= 0 {
		quality = frame.DefaultQuality
	}
	return &Processor{
		detector: detector,
		quality:  quality,
	}
}

// Measure detects the pose in f and computes the profile's joint angle.
// Failures on a single frame are logged and reported as no detection. The
// error is non-nil only when the detector can no longer serve any frame; it
// wraps pose.ErrDetectionUnavailable.
func (p *Processor) Measure(ctx context.Context, f *frame.Frame, profile exercise.Profile) (Measurement, error) {
	result, err := p.detector.Detect(ctx, f)
	if err != nil {
		if errors.Is(err, pose.ErrDetectionUnavailable) {
			return Measurement{}, err
		}
		log.Printf("[Pipeline] %s detection failed on frame %d: %v", p.detector.Name(), f.Seq, err)
		return Measurement{}, nil
	}

	lms, ok := result.Pick(profile.Joints[0], profile.Joints[1], profile.Joints[2])
	if !ok {
		return Measurement{}, nil
	}

	w, h, err := f.Size()
	if err != nil {
		log.Printf("[Pipeline] Cannot size frame %d: %v", f.Seq, err)
		return Measurement{}, nil
	}

	pts := make([]exercise.Point, len(lms))
	joints := make([]image.Point, len(lms))
	for i, lm := range lms {
		pts[i] = exercise.Point{X: lm.X * float64(w), Y: lm.Y * float64(h)}
		joints[i] = image.Pt(int(math.Round(pts[i].X)), int(math.Round(pts[i].Y)))
	}

	m := Measurement{Joints: joints}
	m.Angle, m.HasAngle = exercise.AngleAt(pts[0], pts[1], pts[2])
	return m, nil
}

// Annotate draws the measurement and count onto f and returns it with
// freshly encoded JPEG data.
func (p *Processor) Annotate(f *frame.Frame, profile exercise.Profile, m Measurement, count int) (*frame.Frame, error) {
	img, err := f.RGBA()
	if err != nil {
		return nil, err
	}

	o := stream.Overlay{
		Label:    profile.Label,
		Count:    count,
		Joints:   m.Joints,
		Angle:    m.Angle,
		HasAngle: m.HasAngle,
	}
	if len(m.Joints) == 3 {
		o.Vertex = m.Joints[1]
	}
	stream.Draw(img, o)

	data, err := frame.Encode(img, p.quality)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", f.Seq, err)
	}

	out := frame.FromImage(f.Seq, img)
	out.Timestamp = f.Timestamp
	out.Data = data
	return out, nil
}

// ProcessFrame measures f, feeds the angle to counter and annotates the
// frame with the updated count.
func (p *Processor) ProcessFrame(ctx context.Context, f *frame.Frame, profile exercise.Profile, counter *exercise.Counter) (*frame.Frame, Measurement, error) {
	m, err := p.Measure(ctx, f, profile)
	if err != nil {
		return nil, m, err
	}
	counter.Update(m.Angle, m.HasAngle)

	out, err := p.Annotate(f, profile, m, counter.Count())
	if err != nil {
		return nil, m, err
	}
	return out, m, nil
}
