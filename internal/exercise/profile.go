package exercise

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"repcount/internal/pose"
)

var (
	ErrInvalidExercise = errors.New("invalid exercise")
)

// Profile is the immutable configuration of one exercise.
type Profile struct {
	ID     string
	Label  string
	Joints [3]int // endpoint, vertex, endpoint
	Up     float64
	Down   float64
}

// Vertex returns the landmark index the angle is measured at.
func (p Profile) Vertex() int {
	return p.Joints[1]
}

var profiles = map[string]Profile{
	"squat": {
		ID:     "squat",
		Label:  "Squats",
		Joints: [3]int{pose.RightHip, pose.RightKnee, pose.RightAnkle},
		Up:     160,
		Down:   90,
	},
	"pushup": {
		ID:     "pushup",
		Label:  "Pushups",
		Joints: [3]int{pose.RightShoulder, pose.RightElbow, pose.RightWrist},
		Up:     150,
		Down:   100,
	},
	"pullup": {
		ID:     "pullup",
		Label:  "Pullups",
		Joints: [3]int{pose.RightShoulder, pose.RightElbow, pose.RightWrist},
		Up:     150,
		Down:   70,
	},
	"crunch": {
		ID:     "crunch",
		Label:  "Crunches",
		Joints: [3]int{pose.RightShoulder, pose.RightHip, pose.RightKnee},
		Up:     120,
		Down:   80,
	},
}

// Resolve looks up an exercise by identifier. Lookup ignores case and
// surrounding whitespace.
func Resolve(id string) (Profile, error) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrInvalidExercise, id)
	}
	return p, nil
}

// IDs returns the known exercise identifiers in sorted order.
func IDs() []string {
	ids := make([]string, 0, len(profiles))
	for id := range profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
