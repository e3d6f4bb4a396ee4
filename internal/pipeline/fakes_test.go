package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"sync"

	"repcount/internal/capture"
	"repcount/internal/frame"
	"repcount/internal/pose"
)

// fakeSource yields n blank frames, then err (io.EOF when nil).
type fakeSource struct {
	n      int
	err    error
	read   int
	closed int
}

func (s *fakeSource) Read(ctx context.Context) (*frame.Frame, error) {
	if s.read >= s.n {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	s.read++
	return frame.FromImage(uint64(s.read), image.NewRGBA(image.Rect(0, 0, 100, 100))), nil
}

func (s *fakeSource) Info() capture.StreamInfo { return capture.StreamInfo{Width: 100, Height: 100} }
func (s *fakeSource) Close() error             { s.closed++; return nil }

// fakeSink records written frames and fails after failAfter writes when set.
type fakeSink struct {
	failAfter int
	frames    []*frame.Frame
	closed    int
}

func (s *fakeSink) Write(f *frame.Frame) error {
	if s.failAfter > 0 && len(s.frames) >= s.failAfter {
		return errors.New("disk full")
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSink) Close() error { s.closed++; return nil }

// scriptedDetector answers frame i with a pose whose profile angle is
// angles[i-1]. NaN entries mean no detection. With deadAfter set, every
// call after that many fails as if the backend died.
type scriptedDetector struct {
	joints    [3]int
	angles    []float64
	err       error
	deadAfter int

	mu     sync.Mutex
	calls  int
	closed bool
}

func (d *scriptedDetector) Name() string { return "scripted" }

func (d *scriptedDetector) Detect(ctx context.Context, f *frame.Frame) (*pose.Result, error) {
	d.mu.Lock()
	d.calls++
	calls := d.calls
	d.mu.Unlock()

	if d.deadAfter > 0 && calls > d.deadAfter {
		return nil, fmt.Errorf("%w: backend exited", pose.ErrDetectionUnavailable)
	}
	if d.err != nil {
		return nil, d.err
	}
	i := int(f.Seq) - 1
	if i < 0 || i >= len(d.angles) || math.IsNaN(d.angles[i]) {
		return &pose.Result{}, nil
	}
	return poseWithAngle(d.joints, d.angles[i]), nil
}

func (d *scriptedDetector) Close() error { d.closed = true; return nil }

// poseWithAngle builds a full landmark set where the angle at joints[1]
// between joints[0] and joints[2] is deg.
func poseWithAngle(joints [3]int, deg float64) *pose.Result {
	r := &pose.Result{Landmarks: make([]pose.Landmark, pose.NumLandmarks)}
	rad := deg * math.Pi / 180
	r.Landmarks[joints[1]] = pose.Landmark{X: 0.5, Y: 0.5, Visibility: 1}
	r.Landmarks[joints[0]] = pose.Landmark{X: 0.5, Y: 0.2, Visibility: 1}
	r.Landmarks[joints[2]] = pose.Landmark{X: 0.5 + 0.3*math.Sin(rad), Y: 0.5 - 0.3*math.Cos(rad), Visibility: 1}
	return r
}
