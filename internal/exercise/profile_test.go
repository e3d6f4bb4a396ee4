package exercise

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repcount/internal/pose"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id     string
		label  string
		joints [3]int
		down   float64
		up     float64
	}{
		{"squat", "Squats", [3]int{pose.RightHip, pose.RightKnee, pose.RightAnkle}, 90, 160},
		{"pushup", "Pushups", [3]int{pose.RightShoulder, pose.RightElbow, pose.RightWrist}, 100, 150},
		{"pullup", "Pullups", [3]int{pose.RightShoulder, pose.RightElbow, pose.RightWrist}, 70, 150},
		{"crunch", "Crunches", [3]int{pose.RightShoulder, pose.RightHip, pose.RightKnee}, 80, 120},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			t.Parallel()
			p, err := Resolve(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.id, p.ID)
			assert.Equal(t, tt.label, p.Label)
			assert.Equal(t, tt.joints, p.Joints)
			assert.Equal(t, tt.joints[1], p.Vertex())
			assert.Equal(t, tt.down, p.Down)
			assert.Equal(t, tt.up, p.Up)
			assert.Less(t, p.Down, p.Up)
		})
	}
}

func TestResolveNormalizesID(t *testing.T) {
	t.Parallel()

	p, err := Resolve("  PushUp ")
	require.NoError(t, err)
	assert.Equal(t, "pushup", p.ID)
}

func TestResolveUnknown(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"", "lunge", "squats"} {
		_, err := Resolve(id)
		require.Error(t, err, id)
		assert.True(t, errors.Is(err, ErrInvalidExercise), id)
	}
}

func TestIDs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"crunch", "pullup", "pushup", "squat"}, IDs())
}
