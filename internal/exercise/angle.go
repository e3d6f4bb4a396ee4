// Package exercise holds the repetition counting core: joint angle math,
// the hysteresis counter and the fixed table of exercise profiles.
package exercise

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Point is a 2-D position in pixel space.
type Point = r2.Vec

// minArm is the shortest vector length treated as a real limb segment.
const minArm = 1e-9

// AngleAt returns the angle in degrees at vertex b formed by the segments
// b→a and b→c. The second result is false when either segment has zero
// length, in which case the angle is undefined.
func AngleAt(a, b, c Point) (float64, bool) {
	ba := r2.Sub(a, b)
	bc := r2.Sub(c, b)

	na, nc := r2.Norm(ba), r2.Norm(bc)
	if na < minArm || nc < minArm {
		return 0, false
	}

	cos := r2.Dot(ba, bc) / (na * nc)
	cos = math.Max(-1, math.Min(1, cos))

	deg := math.Acos(cos) * 180 / math.Pi
	if math.IsNaN(deg) {
		return 0, false
	}
	return math.Max(0, math.Min(180, deg)), true
}
