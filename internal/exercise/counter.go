package exercise

// Stage is the phase of a repetition.
type Stage string

const (
	// StageUp is the extended position. Counters start here.
	StageUp Stage = "up"
	// StageDown is the bent position.
	StageDown Stage = "down"
)

// Counter is a two-threshold hysteresis state machine. A repetition is
// counted when the angle climbs back above Up after having dropped below
// Down. Angles between the thresholds never change state.
//
// Counter is not safe for concurrent use; callers that share one must
// serialize access.
type Counter struct {
	up    float64
	down  float64
	stage Stage
	count int
}

// NewCounter returns a counter in StageUp with a zero count.
func NewCounter(p Profile) *Counter {
	return &Counter{
		up:    p.Up,
		down:  p.Down,
		stage: StageUp,
	}
}

// Update feeds one reading into the counter. ok is false for frames without
// a pose detection; such frames leave the state untouched. Update reports
// whether the count changed.
func (c *Counter) Update(angle float64, ok bool) bool {
	if !ok {
		return false
	}

	switch c.stage {
	case StageUp:
		if angle < c.down {
			c.stage = StageDown
		}
	case StageDown:
		if angle > c.up {
			c.stage = StageUp
			c.count++
			return true
		}
	}
	return false
}

// Count returns the number of completed repetitions.
func (c *Counter) Count() int {
	return c.count
}

// Stage returns the current phase.
func (c *Counter) Stage() Stage {
	return c.stage
}
