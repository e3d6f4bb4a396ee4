package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repcount/internal/capture"
	"repcount/internal/exercise"
	"repcount/internal/frame"
	"repcount/internal/pose"
)

// camera hands out fake sources and tracks how many are open at once.
type camera struct {
	mu      sync.Mutex
	fail    error
	readErr error
	opened  int
	open    int
	maxOpen int
}

func (c *camera) Open(ctx context.Context, source string) (capture.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return nil, c.fail
	}
	c.opened++
	c.open++
	c.maxOpen = max(c.maxOpen, c.open)
	return &fakeSource{cam: c, readErr: c.readErr}, nil
}

func (c *camera) stats() (opened, open, maxOpen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened, c.open, c.maxOpen
}

type fakeSource struct {
	cam     *camera
	readErr error
	seq     atomic.Uint64
	closed  atomic.Bool
}

func (s *fakeSource) Read(ctx context.Context) (*frame.Frame, error) {
	if s.closed.Load() {
		return nil, io.ErrClosedPipe
	}
	if s.readErr != nil {
		return nil, s.readErr
	}
	return frame.FromImage(s.seq.Add(1), image.NewRGBA(image.Rect(0, 0, 400, 400))), nil
}

func (s *fakeSource) Info() capture.StreamInfo { return capture.StreamInfo{Width: 400, Height: 400} }

func (s *fakeSource) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.cam.mu.Lock()
		s.cam.open--
		s.cam.mu.Unlock()
	}
	return nil
}

// detectors builds scripted detectors. Each detector replays angles by
// call order; NaN means no pose. With hangFirst the first Detect blocks
// until its context ends. With deadAfter set, calls after that many fail
// as if the backend died.
type detectors struct {
	mu        sync.Mutex
	fail      error
	angles    []float64
	hangFirst bool
	deadAfter int
	created   []*fakeDetector
}

func (d *detectors) New(ctx context.Context) (pose.Detector, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return nil, d.fail
	}
	det := &fakeDetector{angles: d.angles, hang: d.hangFirst, deadAfter: d.deadAfter}
	d.created = append(d.created, det)
	return det, nil
}

type fakeDetector struct {
	mu        sync.Mutex
	angles    []float64
	hang      bool
	deadAfter int
	calls     int
	closed    bool
}

func (d *fakeDetector) Name() string { return "fake" }

func (d *fakeDetector) Detect(ctx context.Context, f *frame.Frame) (*pose.Result, error) {
	d.mu.Lock()
	if d.hang {
		d.hang = false
		d.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("%w: detector closed", pose.ErrDetectionUnavailable)
	}
	if d.deadAfter > 0 && d.calls >= d.deadAfter {
		return nil, fmt.Errorf("%w: backend exited", pose.ErrDetectionUnavailable)
	}
	i := d.calls
	d.calls++
	if i >= len(d.angles) || math.IsNaN(d.angles[i]) {
		return &pose.Result{}, nil
	}
	return squatPose(d.angles[i]), nil
}

func (d *fakeDetector) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDetector) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// squatPose places hip, knee and ankle so the knee angle is deg. The same
// layout works for any profile sharing the joint order.
func squatPose(deg float64) *pose.Result {
	r := &pose.Result{Landmarks: make([]pose.Landmark, pose.NumLandmarks)}
	rad := deg * math.Pi / 180
	r.Landmarks[pose.RightKnee] = pose.Landmark{X: 0.5, Y: 0.6}
	r.Landmarks[pose.RightHip] = pose.Landmark{X: 0.5, Y: 0.3}
	r.Landmarks[pose.RightAnkle] = pose.Landmark{X: 0.5 + 0.3*math.Sin(rad), Y: 0.6 - 0.3*math.Cos(rad)}
	return r
}

func newTestSession(cam *camera, dets *detectors) *Session {
	return New(Config{
		Source:   "0",
		Open:     cam.Open,
		Detector: dets.New,
	})
}

func TestIdleSession(t *testing.T) {
	t.Parallel()

	s := newTestSession(&camera{}, &detectors{})
	assert.False(t, s.Running())
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, Status{}, s.Status())

	s.Stop()
	s.Stop()

	_, err := s.NextFrame(context.Background())
	assert.True(t, errors.Is(err, ErrSessionEnded))
}

func TestStartInvalidExercise(t *testing.T) {
	t.Parallel()

	cam, dets := &camera{}, &detectors{}
	s := newTestSession(cam, dets)

	err := s.Start(context.Background(), "lunge")
	require.Error(t, err)
	assert.True(t, errors.Is(err, exercise.ErrInvalidExercise))
	assert.False(t, s.Running())

	opened, _, _ := cam.stats()
	assert.Zero(t, opened)
	assert.Empty(t, dets.created)
}

func TestStartCameraUnavailable(t *testing.T) {
	t.Parallel()

	cam := &camera{fail: errors.New("no such device")}
	dets := &detectors{}
	s := newTestSession(cam, dets)

	err := s.Start(context.Background(), "squat")
	require.Error(t, err)
	assert.True(t, errors.Is(err, capture.ErrSourceUnavailable))
	assert.False(t, s.Running())
	assert.Empty(t, dets.created, "detector not acquired without a camera")
}

func TestStartDetectorUnavailableReleasesCamera(t *testing.T) {
	t.Parallel()

	cam := &camera{}
	dets := &detectors{fail: errors.New("python missing")}
	s := newTestSession(cam, dets)

	err := s.Start(context.Background(), "squat")
	require.Error(t, err)
	assert.True(t, errors.Is(err, pose.ErrDetectionUnavailable))
	assert.False(t, s.Running())

	opened, open, _ := cam.stats()
	assert.Equal(t, 1, opened)
	assert.Zero(t, open, "camera closed after detector failure")
}

func TestStartWhileRunning(t *testing.T) {
	t.Parallel()

	cam := &camera{}
	s := newTestSession(cam, &detectors{})

	require.NoError(t, s.Start(context.Background(), "squat"))
	err := s.Start(context.Background(), "pushup")
	assert.True(t, errors.Is(err, ErrAlreadyRunning))
	assert.Equal(t, "squat", s.Status().Exercise)

	opened, open, _ := cam.stats()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, open)
}

func TestStopReleasesEverything(t *testing.T) {
	t.Parallel()

	cam, dets := &camera{}, &detectors{}
	s := newTestSession(cam, dets)

	require.NoError(t, s.Start(context.Background(), "squat"))
	s.Stop()
	s.Stop()

	assert.False(t, s.Running())
	assert.Equal(t, 0, s.Count())
	_, open, _ := cam.stats()
	assert.Zero(t, open)
	require.Len(t, dets.created, 1)
	assert.True(t, dets.created[0].isClosed())
}

func TestRestartKeepsOneCameraOpen(t *testing.T) {
	t.Parallel()

	cam, dets := &camera{}, &detectors{}
	s := newTestSession(cam, dets)

	require.NoError(t, s.Start(context.Background(), "squat"))
	first := s.Status().ID
	for _, id := range []string{"pushup", "pullup", "crunch", "squat"} {
		require.NoError(t, s.Restart(context.Background(), id))
		assert.Equal(t, id, s.Status().Exercise)
	}

	opened, open, maxOpen := cam.stats()
	assert.Equal(t, 5, opened)
	assert.Equal(t, 1, open)
	assert.Equal(t, 1, maxOpen)
	assert.NotEqual(t, first, s.Status().ID)
	for _, d := range dets.created[:4] {
		assert.True(t, d.isClosed())
	}
}

func TestRestartFailureLeavesIdle(t *testing.T) {
	t.Parallel()

	cam := &camera{}
	s := newTestSession(cam, &detectors{})
	require.NoError(t, s.Start(context.Background(), "squat"))

	err := s.Restart(context.Background(), "burpee")
	assert.True(t, errors.Is(err, exercise.ErrInvalidExercise))
	assert.False(t, s.Running())
	_, open, _ := cam.stats()
	assert.Zero(t, open)
}

func TestNextFrameCounts(t *testing.T) {
	t.Parallel()

	dets := &detectors{angles: []float64{170, 140, 80, math.NaN(), 60, 95, 165}}
	s := newTestSession(&camera{}, dets)

	ch, unsubscribe := s.Events().SubscribeChannel(8)
	defer unsubscribe()
	drain := func() []Event {
		var evs []Event
		for len(ch) > 0 {
			evs = append(evs, <-ch)
		}
		return evs
	}

	require.NoError(t, s.Start(context.Background(), "squat"))
	for i := 0; i < 7; i++ {
		chunk, err := s.NextFrame(context.Background())
		require.NoError(t, err)
		assert.Contains(t, string(chunk[:64]), "--frame\r\nContent-Type: image/jpeg")
	}

	assert.Equal(t, 1, s.Count())
	st := s.Status()
	assert.True(t, st.Running)
	assert.Equal(t, exercise.StageUp, st.Stage)
	assert.Equal(t, uint64(7), st.Frames)

	events := drain()
	require.Len(t, events, 2)
	assert.Equal(t, EventStarted, events[0].Kind)
	assert.Equal(t, EventCount, events[1].Kind)
	assert.Equal(t, 1, events[1].Count)
	assert.Equal(t, st.ID, events[1].SessionID)

	s.Stop()
	events = drain()
	require.Len(t, events, 1)
	assert.Equal(t, EventStopped, events[0].Kind)
	assert.Equal(t, 1, events[0].Count)
}

func TestNextFrameReadFailureEndsStream(t *testing.T) {
	t.Parallel()

	s := newTestSession(&camera{readErr: errors.New("usb unplugged")}, &detectors{})
	require.NoError(t, s.Start(context.Background(), "squat"))

	_, err := s.NextFrame(context.Background())
	assert.True(t, errors.Is(err, ErrSessionEnded))

	var n int
	for range s.Frames(context.Background()) {
		n++
	}
	assert.Zero(t, n)
}

func TestFramesEndsOnStop(t *testing.T) {
	t.Parallel()

	s := newTestSession(&camera{}, &detectors{})
	require.NoError(t, s.Start(context.Background(), "squat"))

	n := 0
	for range s.Frames(context.Background()) {
		n++
		if n == 3 {
			s.Stop()
		}
	}
	assert.Equal(t, 3, n)
}

func TestFramesDoesNotFollowRestart(t *testing.T) {
	t.Parallel()

	s := newTestSession(&camera{}, &detectors{})
	require.NoError(t, s.Start(context.Background(), "squat"))

	seq := s.Frames(context.Background())
	n := 0
	for range seq {
		n++
		break
	}
	require.Equal(t, 1, n)

	require.NoError(t, s.Restart(context.Background(), "pushup"))
	for range seq {
		n++
	}
	assert.Equal(t, 1, n, "stream bound to the replaced session")

	// A fresh stream follows the new session.
	for range s.Frames(context.Background()) {
		n++
		break
	}
	assert.Equal(t, 2, n)
}

func TestFramesStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	s := newTestSession(&camera{}, &detectors{})
	require.NoError(t, s.Start(context.Background(), "squat"))
	defer s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := 0
	for range s.Frames(ctx) {
		n++
		if n == 2 {
			cancel()
		}
	}
	assert.Equal(t, 2, n)
	assert.True(t, s.Running(), "cancelling a stream does not stop the session")
}

func TestConcurrentControl(t *testing.T) {
	t.Parallel()

	angles := make([]float64, 0, 400)
	for i := 0; i < 100; i++ {
		angles = append(angles, 170, 60, 60, 170)
	}
	cam := &camera{}
	s := newTestSession(cam, &detectors{angles: angles})
	require.NoError(t, s.Start(context.Background(), "squat"))

	var (
		wg       sync.WaitGroup
		streamed atomic.Int64
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range s.Frames(context.Background()) {
			streamed.Add(1)
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for j := 0; j < 200; j++ {
				c := s.Count()
				st := s.Status()
				if !st.Running {
					return
				}
				assert.GreaterOrEqual(t, c, last, "count never decreases within a session")
				last = c
			}
		}()
	}

	require.Eventually(t, func() bool { return s.Count() >= 5 }, 5*time.Second, time.Millisecond)
	s.Stop()
	wg.Wait()

	assert.Positive(t, streamed.Load())
	assert.Equal(t, 0, s.Count())
	_, open, maxOpen := cam.stats()
	assert.Zero(t, open)
	assert.Equal(t, 1, maxOpen)
}

func TestStreamDisconnectDuringDetection(t *testing.T) {
	t.Parallel()

	dets := &detectors{hangFirst: true, angles: []float64{170, 60, 170, 60, 170}}
	s := newTestSession(&camera{}, dets)
	require.NoError(t, s.Start(context.Background(), "squat"))

	// The first viewer goes away while its frame is being analyzed.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.NextFrame(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	st := s.Status()
	assert.True(t, st.Running)
	assert.Zero(t, st.Frames, "an abandoned frame is not counted")
	assert.False(t, dets.created[0].isClosed())

	// A second viewer keeps counting on the same detector.
	frames := 0
	for range s.Frames(context.Background()) {
		frames++
		if frames == 5 {
			break
		}
	}
	assert.Equal(t, 5, frames)
	assert.Equal(t, 2, s.Count())
}

func TestDeadDetectorEndsSession(t *testing.T) {
	t.Parallel()

	cam := &camera{}
	dets := &detectors{angles: []float64{170, 60, 170}, deadAfter: 3}
	s := newTestSession(cam, dets)
	ch, unsubscribe := s.Events().SubscribeChannel(8)
	defer unsubscribe()
	require.NoError(t, s.Start(context.Background(), "squat"))

	frames := 0
	for range s.Frames(context.Background()) {
		frames++
	}
	assert.Equal(t, 3, frames)

	assert.False(t, s.Running())
	assert.Zero(t, s.Count())
	_, open, _ := cam.stats()
	assert.Zero(t, open, "camera released")
	assert.True(t, dets.created[0].isClosed())

	var kinds []EventKind
	for len(ch) > 0 {
		kinds = append(kinds, (<-ch).Kind)
	}
	assert.Equal(t, []EventKind{EventStarted, EventCount, EventStopped}, kinds)

	_, err := s.NextFrame(context.Background())
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestDeadDetectorLeavesNewerSession(t *testing.T) {
	t.Parallel()

	s := newTestSession(&camera{}, &detectors{})
	require.NoError(t, s.Start(context.Background(), "squat"))
	s.mu.Lock()
	stale := s.gen
	s.mu.Unlock()

	require.NoError(t, s.Restart(context.Background(), "pushup"))

	s.end(stale, errors.New("old backend exited"))
	assert.True(t, s.Running())
	assert.Equal(t, "pushup", s.Status().Exercise)
}
