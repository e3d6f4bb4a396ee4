// Package services implements the control and batch operations exposed by
// the HTTP server and the CLI.
package services

import (
	"context"
	"iter"

	"repcount/internal/exercise"
	"repcount/internal/session"
)

// ExerciseInfo describes one selectable exercise.
type ExerciseInfo struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Up    float64 `json:"up_threshold"`
	Down  float64 `json:"down_threshold"`
}

// SessionImplementation is the control surface of the live session.
type SessionImplementation struct {
	session *session.Session
}

// NewSessionService wraps the process-wide live session.
func NewSessionService(s *session.Session) *SessionImplementation {
	return &SessionImplementation{session: s}
}

// Start replaces any running session with a new one for exerciseID. The
// previous session is fully stopped before the camera is reopened.
func (s *SessionImplementation) Start(ctx context.Context, exerciseID string) (session.Status, error) {
	if _, err := exercise.Resolve(exerciseID); err != nil {
		return session.Status{}, err
	}
	if err := s.session.Restart(ctx, exerciseID); err != nil {
		return session.Status{}, err
	}
	return s.session.Status(), nil
}

// Stop ends the running session, if any.
func (s *SessionImplementation) Stop(ctx context.Context) session.Status {
	s.session.Stop()
	return s.session.Status()
}

// Count returns the live rep count, 0 when idle.
func (s *SessionImplementation) Count(ctx context.Context) int {
	return s.session.Count()
}

// Status returns the live session status.
func (s *SessionImplementation) Status(ctx context.Context) session.Status {
	return s.session.Status()
}

// Stream returns the annotated multipart chunks of the running session.
func (s *SessionImplementation) Stream(ctx context.Context) iter.Seq[[]byte] {
	return s.session.Frames(ctx)
}

// Exercises lists the supported exercises.
func (s *SessionImplementation) Exercises(ctx context.Context) []ExerciseInfo {
	return ListExercises()
}

// ListExercises lists the supported exercises in identifier order.
func ListExercises() []ExerciseInfo {
	ids := exercise.IDs()
	out := make([]ExerciseInfo, 0, len(ids))
	for _, id := range ids {
		p, err := exercise.Resolve(id)
		if err != nil {
			continue
		}
		out = append(out, ExerciseInfo{ID: p.ID, Label: p.Label, Up: p.Up, Down: p.Down})
	}
	return out
}
