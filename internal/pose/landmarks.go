// Package pose talks to pose-estimation backends and exposes their output as
// normalized 2-D body landmarks.
package pose

// Body landmark indices following the MediaPipe Pose convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose          = 0
	LeftShoulder  = 11
	RightShoulder = 12
	LeftElbow     = 13
	RightElbow    = 14
	LeftWrist     = 15
	RightWrist    = 16
	LeftHip       = 23
	RightHip      = 24
	LeftKnee      = 25
	RightKnee     = 26
	LeftAnkle     = 27
	RightAnkle    = 28
	NumLandmarks  = 33
)

// Landmark is a body joint position normalized to [0,1] of the frame width
// and height.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Visibility float64 `json:"visibility,omitempty"`
}

// Result is the output of one detection call. A nil Result or one without
// landmarks means nobody was detected in the frame.
type Result struct {
	Landmarks       []Landmark `json:"landmarks"`
	InferenceTimeMs float32    `json:"inference_time_ms,omitempty"`
}

// Detected reports whether the result holds a pose.
func (r *Result) Detected() bool {
	return r != nil && len(r.Landmarks) > 0
}

// Pick returns the landmarks at the given indices. ok is false when the
// result holds no pose or any index is out of range.
func (r *Result) Pick(indices ...int) ([]Landmark, bool) {
	if !r.Detected() {
		return nil, false
	}
	out := make([]Landmark, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(r.Landmarks) {
			return nil, false
		}
		out[i] = r.Landmarks[idx]
	}
	return out, true
}
