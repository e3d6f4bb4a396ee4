// Package session runs the live rep counting session: one camera, one pose
// detector and one counter, shared by the video stream and the control API.
package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"repcount/internal/capture"
	"repcount/internal/exercise"
	"repcount/internal/frame"
	"repcount/internal/pipeline"
	"repcount/internal/pose"
	"repcount/internal/stream"
)

var (
	ErrAlreadyRunning = errors.New("session already running")
	ErrSessionEnded   = errors.New("session ended")
)

// Config wires a session to its capture and detection backends.
type Config struct {
	Source   string           // camera device, file or stream URL
	Open     capture.OpenFunc // opens Source on Start
	Detector pose.Factory     // creates a detector on Start
	Quality  int              // JPEG quality of streamed frames
}

// Status is a point-in-time view of the session.
type Status struct {
	Running   bool           `json:"running"`
	ID        string         `json:"id,omitempty"`
	Exercise  string         `json:"exercise,omitempty"`
	Label     string         `json:"label,omitempty"`
	Count     int            `json:"count"`
	Stage     exercise.Stage `json:"stage,omitempty"`
	StartedAt time.Time      `json:"started_at,omitzero"`
	Frames    uint64         `json:"frames"`
}

// Session is the process-wide live session. It is idle until Start and
// returns to idle on Stop. All methods are safe for concurrent use.
//
// mu guards every field below it and is never held across capture reads,
// pose detection or encoding. lifecycle serializes Start, Stop and Restart
// so that at most one capture handle is open at any time.
type Session struct {
	cfg       Config
	events    *EventBus
	lifecycle sync.Mutex

	mu        sync.Mutex
	running   bool
	id        string
	gen       uint64
	startedAt time.Time
	frames    uint64
	src       capture.Source
	detector  pose.Detector
	proc      *pipeline.Processor
	profile   exercise.Profile
	counter   *exercise.Counter
}

// New creates an idle session.
func New(cfg Config) *Session {
	if cfg.Quality <= 0 {
		cfg.Quality = frame.DefaultQuality
	}
	return &Session{
		cfg:    cfg,
		events: NewEventBus(),
	}
}

// Events returns the bus start, count and stop events are published on.
func (s *Session) Events() *EventBus {
	return s.events
}

// Start opens the camera and pose detector and begins counting exerciseID.
// It fails with ErrAlreadyRunning if a session is active; use Restart to
// replace one. On failure nothing is retained and the session stays idle.
func (s *Session) Start(ctx context.Context, exerciseID string) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.start(ctx, exerciseID)
}

// Restart stops the running session, if any, and starts a new one. The
// previous capture and detector are released before new ones are opened.
func (s *Session) Restart(ctx context.Context, exerciseID string) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.stop()
	return s.start(ctx, exerciseID)
}

// Stop ends the session and releases its camera and detector. Stopping an
// idle session is a no-op.
func (s *Session) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.stop()
}

// start requires lifecycle to be held.
func (s *Session) start(ctx context.Context, exerciseID string) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		return ErrAlreadyRunning
	}

	profile, err := exercise.Resolve(exerciseID)
	if err != nil {
		return err
	}

	if s.cfg.Open == nil {
		return fmt.Errorf("%w: no capture backend configured", capture.ErrSourceUnavailable)
	}
	src, err := s.cfg.Open(ctx, s.cfg.Source)
	if err != nil {
		if !errors.Is(err, capture.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %v", capture.ErrSourceUnavailable, err)
		}
		return err
	}

	if s.cfg.Detector == nil {
		src.Close()
		return fmt.Errorf("%w: no pose backend configured", pose.ErrDetectionUnavailable)
	}
	detector, err := s.cfg.Detector(ctx)
	if err != nil {
		if cerr := src.Close(); cerr != nil {
			log.Printf("[LiveSession] Closing capture after detector failure: %v", cerr)
		}
		if !errors.Is(err, pose.ErrDetectionUnavailable) {
			err = fmt.Errorf("%w: %v", pose.ErrDetectionUnavailable, err)
		}
		return err
	}

	s.mu.Lock()
	s.running = true
	s.id = uuid.New().String()
	s.gen++
	s.startedAt = time.Now()
	s.frames = 0
	s.src = src
	s.detector = detector
	s.proc = pipeline.NewProcessor(detector, s.cfg.Quality)
	s.profile = profile
	s.counter = exercise.NewCounter(profile)
	ev := s.eventLocked(EventStarted)
	s.mu.Unlock()

	log.Printf("[LiveSession] Started %s session %s on %s (detector: %s)", profile.ID, ev.SessionID, s.cfg.Source, detector.Name())
	s.events.Publish(ev)
	return nil
}

// stop requires lifecycle to be held.
func (s *Session) stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	ev := s.eventLocked(EventStopped)
	src, detector := s.src, s.detector
	s.running = false
	s.src = nil
	s.detector = nil
	s.proc = nil
	s.counter = nil
	s.mu.Unlock()

	if err := detector.Close(); err != nil {
		log.Printf("[LiveSession] Closing detector: %v", err)
	}
	if err := src.Close(); err != nil {
		log.Printf("[LiveSession] Closing capture: %v", err)
	}

	log.Printf("[LiveSession] Stopped session %s at %d reps", ev.SessionID, ev.Count)
	s.events.Publish(ev)
}

// NextFrame reads, analyzes and annotates one camera frame and returns it
// as a multipart chunk. It returns ErrSessionEnded when the session is idle,
// was replaced, or the camera stopped delivering frames. A detector that can
// no longer serve frames stops the session. When ctx ends during detection
// the frame is dropped without touching the count.
func (s *Session) NextFrame(ctx context.Context) ([]byte, error) {
	chunk, _, err := s.next(ctx, 0, false)
	return chunk, err
}

// Frames yields annotated chunks until the session ends or ctx is done.
// The sequence binds to the session generation that is running when it is
// first pulled and never follows a later Start.
func (s *Session) Frames(ctx context.Context) iter.Seq[[]byte] {
	var (
		gen   uint64
		bound bool
		ended bool
	)
	return func(yield func([]byte) bool) {
		for !ended {
			chunk, g, err := s.next(ctx, gen, bound)
			if err != nil {
				ended = true
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					log.Printf("[LiveSession] Stream ended: %v", err)
				}
				return
			}
			gen, bound = g, true
			if !yield(chunk) {
				return
			}
		}
	}
}

func (s *Session) next(ctx context.Context, want uint64, bound bool) ([]byte, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.Lock()
	if !s.running || (bound && s.gen != want) {
		s.mu.Unlock()
		return nil, 0, ErrSessionEnded
	}
	gen, src, proc, profile := s.gen, s.src, s.proc, s.profile
	s.mu.Unlock()

	f, err := src.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, gen, ctx.Err()
		}
		return nil, gen, fmt.Errorf("%w: %v", ErrSessionEnded, err)
	}

	m, err := proc.Measure(ctx, f, profile)
	if ctx.Err() != nil {
		// The viewer left mid-detection; the frame is not counted.
		return nil, gen, ctx.Err()
	}
	if err != nil {
		s.end(gen, err)
		return nil, gen, fmt.Errorf("%w: %v", ErrSessionEnded, err)
	}

	s.mu.Lock()
	if !s.running || s.gen != gen {
		s.mu.Unlock()
		return nil, gen, ErrSessionEnded
	}
	changed := s.counter.Update(m.Angle, m.HasAngle)
	count := s.counter.Count()
	s.frames++
	var ev Event
	if changed {
		ev = s.eventLocked(EventCount)
	}
	s.mu.Unlock()

	if changed {
		s.events.Publish(ev)
	}

	out, err := proc.Annotate(f, profile, m, count)
	if err != nil {
		return nil, gen, fmt.Errorf("%w: %v", ErrSessionEnded, err)
	}
	return stream.Chunk(out.Data), gen, nil
}

// end stops generation gen when its detector failed for good. A later
// generation is left alone.
func (s *Session) end(gen uint64, cause error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	current := s.running && s.gen == gen
	s.mu.Unlock()
	if !current {
		return
	}
	log.Printf("[LiveSession] Ending session: %v", cause)
	s.stop()
}

// Count returns the current rep count, or 0 when idle.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return 0
	}
	return s.counter.Count()
}

// Running reports whether a session is active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return Status{}
	}
	return Status{
		Running:   true,
		ID:        s.id,
		Exercise:  s.profile.ID,
		Label:     s.profile.Label,
		Count:     s.counter.Count(),
		Stage:     s.counter.Stage(),
		StartedAt: s.startedAt,
		Frames:    s.frames,
	}
}

// eventLocked requires mu to be held and the session to be running.
func (s *Session) eventLocked(kind EventKind) Event {
	return Event{
		Kind:      kind,
		SessionID: s.id,
		Exercise:  s.profile.ID,
		Label:     s.profile.Label,
		Count:     s.counter.Count(),
		Stage:     s.counter.Stage(),
		Time:      time.Now(),
	}
}
